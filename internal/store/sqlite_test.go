package store

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/usagegate/usagegate/internal/errors"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// TestNewSQLiteStore tests creating a new SQLite store with WAL mode
func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	st, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}
	defer st.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("Database file should exist")
	}
}

// TestSQLiteStoreMigrationsIdempotent tests that reopening the store reruns
// migrations cleanly
func TestSQLiteStoreMigrationsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	st, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	if err := st.Create(context.Background(), testRecord("user-1", now)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	st.Close()

	st2, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen SQLite store: %v", err)
	}
	defer st2.Close()

	_, found, err := st2.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if !found {
		t.Fatal("Record should survive reopen")
	}
}

// TestSQLiteStoreRoundTrip tests that all record fields survive storage
func TestSQLiteStoreRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 15, 12, 30, 45, 0, time.UTC)
	rec := testRecord("user-1", now)
	customLimit := 25
	rec.CustomDailyLimit = &customLimit
	rec.Unlimited = true
	lastConsumed := now.Add(-time.Hour)
	rec.LastConsumedAt = &lastConsumed
	rec.Daily.Count = 3
	rec.Weekly.Count = 7
	rec.Monthly.Count = 12

	if err := st.Create(ctx, rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, found, err := st.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Fatal("Record should be found")
	}

	if got.Daily.Count != 3 || got.Weekly.Count != 7 || got.Monthly.Count != 12 {
		t.Errorf("Counts did not round-trip: %d/%d/%d", got.Daily.Count, got.Weekly.Count, got.Monthly.Count)
	}
	if got.CustomDailyLimit == nil || *got.CustomDailyLimit != 25 {
		t.Errorf("Custom daily limit did not round-trip: %v", got.CustomDailyLimit)
	}
	if !got.Unlimited {
		t.Error("Unlimited flag did not round-trip")
	}
	if got.LastConsumedAt == nil || !got.LastConsumedAt.Equal(lastConsumed) {
		t.Errorf("LastConsumedAt did not round-trip: %v", got.LastConsumedAt)
	}
	if !got.Daily.WindowStart.Equal(now) {
		t.Errorf("Window start did not round-trip: %v vs %v", got.Daily.WindowStart, now)
	}
	if got.Version != 1 {
		t.Errorf("Expected version 1, got %d", got.Version)
	}
}

// TestSQLiteStoreCreateConflict tests the unique constraint on user_id
func TestSQLiteStoreCreateConflict(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	if err := st.Create(ctx, testRecord("user-1", now)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	err := st.Create(ctx, testRecord("user-1", now))
	if !stderrors.Is(err, errors.ErrVersionConflict) {
		t.Fatalf("Expected ErrVersionConflict, got %v", err)
	}
}

// TestSQLiteStoreConditionalUpdate tests the versioned update path
func TestSQLiteStoreConditionalUpdate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	rec := testRecord("user-1", now)
	if err := st.Create(ctx, rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	rec.Daily.Count = 1
	rec.Version = 2
	rec.UpdatedAt = now
	if err := st.Update(ctx, rec, 1); err != nil {
		t.Fatalf("Update with matching version failed: %v", err)
	}

	// Replaying the same update against the old version must conflict.
	if err := st.Update(ctx, rec, 1); !stderrors.Is(err, errors.ErrVersionConflict) {
		t.Fatalf("Expected ErrVersionConflict for stale version, got %v", err)
	}

	got, _, err := st.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("Expected version 2, got %d", got.Version)
	}
	if got.Daily.Count != 1 {
		t.Errorf("Expected daily count 1, got %d", got.Daily.Count)
	}
}

// TestSQLiteStoreUpdateMissing tests that updating a deleted record reports
// not found rather than a plain conflict
func TestSQLiteStoreUpdateMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	rec := testRecord("ghost", time.Now().UTC())
	rec.Version = 2
	err := st.Update(context.Background(), rec, 1)

	var notFound *errors.ErrRecordNotFound
	if !stderrors.As(err, &notFound) {
		t.Fatalf("Expected ErrRecordNotFound, got %v", err)
	}
}

// TestSQLiteStoreList tests listing records in user ID order
func TestSQLiteStoreList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for _, id := range []string{"charlie", "alice", "bob"} {
		if err := st.Create(ctx, testRecord(id, now)); err != nil {
			t.Fatalf("Create %s failed: %v", id, err)
		}
	}

	records, err := st.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	want := []string{"alice", "bob", "charlie"}
	for i, rec := range records {
		if rec.UserID != want[i] {
			t.Errorf("Expected %s at index %d, got %s", want[i], i, rec.UserID)
		}
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.RecordCount != 3 {
		t.Errorf("Expected record count 3, got %d", stats.RecordCount)
	}
}
