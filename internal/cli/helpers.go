package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/usagegate/usagegate/internal/config"
	"github.com/usagegate/usagegate/internal/engine"
	"github.com/usagegate/usagegate/internal/logging"
	"github.com/usagegate/usagegate/internal/models"
	"github.com/usagegate/usagegate/internal/quota"
	"github.com/usagegate/usagegate/internal/store"
)

// localService wires a quota service against the database directly, for
// admin commands that run without the HTTP server.
type localService struct {
	svc   *quota.Service
	store store.RecordStore
}

func (l *localService) close() {
	l.store.Close()
}

func newLocalService() (*localService, error) {
	cfg := config.Default()
	if loaded, err := config.NewLoader(globalFlags.Config).Load(); err == nil {
		cfg = loaded
	}

	st, err := store.NewSQLiteStore(globalFlags.DBPath)
	if err != nil {
		return nil, err
	}

	level := logging.LevelWarn
	if globalFlags.Verbose {
		level = logging.LevelDebug
	}
	logger := logging.NewLogger(logging.WithLevel(level))

	eng := engine.New(st, engine.Limits{
		Daily:   cfg.Quota.DailyLimit,
		Weekly:  cfg.Quota.WeeklyLimit,
		Monthly: cfg.Quota.MonthlyLimit,
	},
		engine.WithLogger(logger),
		engine.WithMaxRetries(cfg.Quota.MaxRetries),
	)

	return &localService{
		svc:   quota.NewService(eng, st, nil, logger),
		store: st,
	}, nil
}

func outputJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func formatReset(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04")
}

func formatUsage(v models.PeriodView) string {
	if v.Limit <= 0 {
		return fmt.Sprintf("%d/-", v.Count)
	}
	return fmt.Sprintf("%d/%d", v.Count, v.Limit)
}
