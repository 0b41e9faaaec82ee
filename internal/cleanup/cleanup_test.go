package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/usagegate/usagegate/internal/clock"
	"github.com/usagegate/usagegate/internal/models"
	"github.com/usagegate/usagegate/internal/store"
)

// TestRunOncePrunesOnlyStale tests that only records idle past retention are
// removed
func TestRunOncePrunesOnlyStale(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC)

	fresh := models.NewUsageRecord("fresh", 10, 50, 150, now.Add(-24*time.Hour))
	if err := st.Create(ctx, fresh); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	stale := models.NewUsageRecord("stale", 10, 50, 150, now.Add(-120*24*time.Hour))
	if err := st.Create(ctx, stale); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	m := NewManager(st, Config{Interval: time.Hour, Retention: 90 * 24 * time.Hour}, nil)
	m.SetClock(clock.NewFake(now))

	pruned, err := m.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("Expected 1 pruned record, got %d", pruned)
	}

	if _, found, _ := st.Get(ctx, "stale"); found {
		t.Error("Stale record should be gone")
	}
	if _, found, _ := st.Get(ctx, "fresh"); !found {
		t.Error("Fresh record should survive")
	}

	stats := m.Stats()
	if stats.TotalRuns != 1 || stats.TotalPruned != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

// TestRetentionFloor tests that retention can never undercut a live monthly
// window
func TestRetentionFloor(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC)

	// 20 days idle: inside a possible monthly window, must survive even when
	// the configured retention is shorter.
	rec := models.NewUsageRecord("recent", 10, 50, 150, now.Add(-20*24*time.Hour))
	if err := st.Create(ctx, rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	m := NewManager(st, Config{Interval: time.Hour, Retention: 24 * time.Hour}, nil)
	m.SetClock(clock.NewFake(now))

	if _, err := m.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if _, found, _ := st.Get(ctx, "recent"); !found {
		t.Error("Retention floor should protect records inside a monthly window")
	}
}

// TestStartStop tests the background sweeper lifecycle
func TestStartStop(t *testing.T) {
	m := NewManager(store.NewMemoryStore(), DefaultConfig(), nil)
	m.Start()
	m.Start() // second start is a no-op
	m.Stop()
	m.Stop() // second stop is a no-op
}
