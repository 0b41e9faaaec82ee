package cli

import (
	stderrors "errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/usagegate/usagegate/internal/alerts"
	"github.com/usagegate/usagegate/internal/api"
	"github.com/usagegate/usagegate/internal/cleanup"
	"github.com/usagegate/usagegate/internal/config"
	"github.com/usagegate/usagegate/internal/engine"
	"github.com/usagegate/usagegate/internal/errors"
	"github.com/usagegate/usagegate/internal/logging"
	"github.com/usagegate/usagegate/internal/metrics"
	"github.com/usagegate/usagegate/internal/quota"
	"github.com/usagegate/usagegate/internal/store"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the quota HTTP API server",
	Long: `Start the usagegate HTTP API server.

The server loads its configuration from the file given by --config and
reloads the default quota limits when that file changes on disk. Records
are kept in SQLite by default; set store.backend to "memory" for an
ephemeral store.`,
	RunE: runServe,
}

func init() {
	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		// A missing config file is fine: run on defaults, still watch the
		// path so dropping a file in later picks it up.
		var notFound *errors.ErrConfigNotFound
		if !stderrors.As(err, &notFound) {
			return err
		}
		cfg = config.Default()
	}

	logger := logging.NewLogger(logging.WithLevel(logging.ParseLevel(cfg.Server.LogLevel)))
	if globalFlags.Verbose {
		logger = logging.NewLogger(logging.WithLevel(logging.LevelDebug))
	}

	m := metrics.NewMetrics("usagegate")

	st, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	eng := engine.New(st, engine.Limits{
		Daily:   cfg.Quota.DailyLimit,
		Weekly:  cfg.Quota.WeeklyLimit,
		Monthly: cfg.Quota.MonthlyLimit,
	},
		engine.WithMetrics(m),
		engine.WithLogger(logger),
		engine.WithMaxRetries(cfg.Quota.MaxRetries),
	)

	svc := quota.NewService(eng, st, m, logger)

	var notifier alerts.Notifier
	if cfg.Alerts.Enabled {
		tg, err := alerts.NewTelegramNotifier(cfg.Alerts.Telegram)
		if err != nil {
			logger.Error("telegram notifier init failed, alerts disabled", "error", err.Error())
		} else {
			notifier = tg
		}
	}
	svc.SetAlerts(alerts.NewManager(cfg.Alerts, notifier, logger))

	if cfg.Store.Retention > 0 {
		if pruner, ok := st.(cleanup.Pruner); ok {
			sweeper := cleanup.NewManager(pruner, cleanup.Config{
				Interval:  cfg.Store.SweepInterval,
				Retention: cfg.Store.Retention,
			}, logger)
			sweeper.Start()
			defer sweeper.Stop()
		}
	}

	loader.SetOnChange(func(next *config.Config) {
		eng.SetDefaultLimits(engine.Limits{
			Daily:   next.Quota.DailyLimit,
			Weekly:  next.Quota.WeeklyLimit,
			Monthly: next.Quota.MonthlyLimit,
		})
		logger.Info("default limits updated",
			"daily", next.Quota.DailyLimit,
			"weekly", next.Quota.WeeklyLimit,
			"monthly", next.Quota.MonthlyLimit,
		)
	})
	if err := loader.StartWatcher(); err != nil {
		logger.Warn("config watcher unavailable, hot reload disabled", "error", err.Error())
	}
	defer loader.StopWatcher()

	server := api.NewServer(cfg.Server, cfg.API, svc, st, m, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	sigCh := api.SetupSignalHandler()
	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		if err := api.GracefulShutdown(server.HTTPServer(), cfg.Server.ShutdownTimeout); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// openStore builds the record store selected by config. The --db flag wins
// over the config file so operators can point at a copy for inspection.
func openStore(cfg config.StoreConfig) (store.RecordStore, error) {
	if cfg.Backend == "memory" {
		return store.NewMemoryStore(), nil
	}
	dbPath := cfg.DBPath
	if globalFlags.DBPath != "" && globalFlags.DBPath != "./data/usagegate.db" {
		dbPath = globalFlags.DBPath
	}
	return store.NewSQLiteStore(dbPath)
}
