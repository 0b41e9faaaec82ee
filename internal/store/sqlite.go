package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/usagegate/usagegate/internal/errors"
	"github.com/usagegate/usagegate/internal/logging"
	"github.com/usagegate/usagegate/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore provides SQLite-backed storage for usage records with WAL mode.
// Optimistic concurrency is implemented with a version column: Update only
// matches a row whose version equals the one the caller read.
type SQLiteStore struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewSQLiteStore creates a new SQLite store with WAL mode enabled
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &errors.ErrDirectoryCreate{Path: dir, Err: err}
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{
		db:     db,
		logger: logging.NewLogger(),
	}, nil
}

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "create migrations table", Err: err}
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "get current migration version", Err: err}
	}

	migrations := []struct {
		version int
		up      string
	}{
		{
			version: 1,
			up: `
				CREATE TABLE IF NOT EXISTS usage_records (
					user_id TEXT PRIMARY KEY,
					daily_count INTEGER NOT NULL DEFAULT 0,
					daily_limit INTEGER NOT NULL,
					daily_window_start DATETIME NOT NULL,
					weekly_count INTEGER NOT NULL DEFAULT 0,
					weekly_limit INTEGER NOT NULL,
					weekly_window_start DATETIME NOT NULL,
					monthly_count INTEGER NOT NULL DEFAULT 0,
					monthly_limit INTEGER NOT NULL,
					monthly_window_start DATETIME NOT NULL,
					custom_daily_limit INTEGER,
					unlimited INTEGER NOT NULL DEFAULT 0,
					last_consumed_at DATETIME,
					version INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_usage_records_updated_at ON usage_records(updated_at);
			`,
		},
	}

	tx, err := db.Begin()
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "begin transaction", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, m := range migrations {
		if m.version > currentVersion {
			if _, err := tx.Exec(m.up); err != nil {
				return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
			if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
				return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "commit migrations", Err: err}
	}

	return nil
}

const recordColumns = `user_id,
	daily_count, daily_limit, daily_window_start,
	weekly_count, weekly_limit, weekly_window_start,
	monthly_count, monthly_limit, monthly_window_start,
	custom_daily_limit, unlimited, last_consumed_at,
	version, created_at, updated_at`

func scanRecord(row interface{ Scan(...any) error }) (*models.UsageRecord, error) {
	var rec models.UsageRecord
	var customLimit sql.NullInt64
	var lastConsumed sql.NullTime

	err := row.Scan(
		&rec.UserID,
		&rec.Daily.Count, &rec.Daily.Limit, &rec.Daily.WindowStart,
		&rec.Weekly.Count, &rec.Weekly.Limit, &rec.Weekly.WindowStart,
		&rec.Monthly.Count, &rec.Monthly.Limit, &rec.Monthly.WindowStart,
		&customLimit, &rec.Unlimited, &lastConsumed,
		&rec.Version, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if customLimit.Valid {
		v := int(customLimit.Int64)
		rec.CustomDailyLimit = &v
	}
	if lastConsumed.Valid {
		v := lastConsumed.Time
		rec.LastConsumedAt = &v
	}
	return &rec, nil
}

// Get retrieves a usage record by user ID.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*models.UsageRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM usage_records WHERE user_id = ?
	`, userID)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &errors.ErrDatabaseQuery{Operation: "get usage record", Err: err}
	}
	return rec, true, nil
}

// Create inserts a new usage record with version 1.
func (s *SQLiteStore) Create(ctx context.Context, rec *models.UsageRecord) error {
	var customLimit interface{}
	if rec.CustomDailyLimit != nil {
		customLimit = *rec.CustomDailyLimit
	}
	var lastConsumed interface{}
	if rec.LastConsumedAt != nil {
		lastConsumed = rec.LastConsumedAt.UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`,
		rec.UserID,
		rec.Daily.Count, rec.Daily.Limit, rec.Daily.WindowStart.UTC(),
		rec.Weekly.Count, rec.Weekly.Limit, rec.Weekly.WindowStart.UTC(),
		rec.Monthly.Count, rec.Monthly.Limit, rec.Monthly.WindowStart.UTC(),
		customLimit, rec.Unlimited, lastConsumed,
		rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.ErrVersionConflict
		}
		return &errors.ErrDatabaseQuery{Operation: "create usage record", Err: err}
	}
	rec.Version = 1
	return nil
}

// Update writes a record only if the stored version matches expectedVersion.
func (s *SQLiteStore) Update(ctx context.Context, rec *models.UsageRecord, expectedVersion int64) error {
	var customLimit interface{}
	if rec.CustomDailyLimit != nil {
		customLimit = *rec.CustomDailyLimit
	}
	var lastConsumed interface{}
	if rec.LastConsumedAt != nil {
		lastConsumed = rec.LastConsumedAt.UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE usage_records SET
			daily_count = ?, daily_limit = ?, daily_window_start = ?,
			weekly_count = ?, weekly_limit = ?, weekly_window_start = ?,
			monthly_count = ?, monthly_limit = ?, monthly_window_start = ?,
			custom_daily_limit = ?, unlimited = ?, last_consumed_at = ?,
			version = ?, updated_at = ?
		WHERE user_id = ? AND version = ?
	`,
		rec.Daily.Count, rec.Daily.Limit, rec.Daily.WindowStart.UTC(),
		rec.Weekly.Count, rec.Weekly.Limit, rec.Weekly.WindowStart.UTC(),
		rec.Monthly.Count, rec.Monthly.Limit, rec.Monthly.WindowStart.UTC(),
		customLimit, rec.Unlimited, lastConsumed,
		rec.Version, rec.UpdatedAt.UTC(),
		rec.UserID, expectedVersion,
	)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "update usage record", Err: err}
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "update usage record", Err: err}
	}
	if rows == 0 {
		// Either the version moved or the record is gone; distinguish so the
		// caller can decide whether to retry or recreate.
		var exists int
		err := s.db.QueryRowContext(ctx, "SELECT 1 FROM usage_records WHERE user_id = ?", rec.UserID).Scan(&exists)
		if err == sql.ErrNoRows {
			return &errors.ErrRecordNotFound{UserID: rec.UserID}
		}
		if err != nil {
			return &errors.ErrDatabaseQuery{Operation: "update usage record", Err: err}
		}
		return errors.ErrVersionConflict
	}
	return nil
}

// List returns all usage records.
func (s *SQLiteStore) List(ctx context.Context) ([]*models.UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM usage_records ORDER BY user_id
	`)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list usage records", Err: err}
	}
	defer rows.Close()

	var records []*models.UsageRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			s.logger.Warn("failed to scan usage record", "error", err.Error())
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list usage records", Err: err}
	}
	return records, nil
}

// PruneStale deletes records not written since before. Safe because any
// record idle that long has every window already expired; the next access
// recreates it with fresh defaults.
func (s *SQLiteStore) PruneStale(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM usage_records WHERE updated_at < ?", before.UTC())
	if err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "prune stale records", Err: err}
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "prune stale records", Err: err}
	}
	return deleted, nil
}

// Stats returns statistics about the store
func (s *SQLiteStore) Stats(ctx context.Context) (StoreStats, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM usage_records").Scan(&count); err != nil {
		return StoreStats{}, &errors.ErrDatabaseQuery{Operation: "count usage records", Err: err}
	}
	return StoreStats{RecordCount: count}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Ensure SQLiteStore implements the RecordStore interface
var _ RecordStore = (*SQLiteStore)(nil)
