package cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/usagegate/usagegate/internal/clock"
	"github.com/usagegate/usagegate/internal/logging"
)

// Pruner deletes usage records whose last write predates a cutoff. Both store
// backends implement it.
type Pruner interface {
	PruneStale(ctx context.Context, before time.Time) (int64, error)
}

// Config contains the retention sweeper configuration.
type Config struct {
	// Interval between sweeps.
	Interval time.Duration
	// Retention is how long an idle record is kept. Must exceed the longest
	// quota window so no live counter is ever discarded.
	Retention time.Duration
}

// DefaultConfig returns the default sweeper configuration.
func DefaultConfig() Config {
	return Config{
		Interval:  time.Hour,
		Retention: 90 * 24 * time.Hour,
	}
}

// MinRetention is the shortest allowed retention. A monthly window spans at
// most 31 days; anything older than this has no live counters left.
const MinRetention = 32 * 24 * time.Hour

// Stats contains sweeper statistics.
type Stats struct {
	TotalRuns   int       `json:"total_runs"`
	TotalPruned int64     `json:"total_pruned"`
	LastRunAt   time.Time `json:"last_run_at"`
}

// Manager periodically prunes usage records idle past the retention window.
type Manager struct {
	pruner Pruner
	config Config
	clock  clock.Clock
	logger *logging.Logger

	mu      sync.Mutex
	stats   Stats
	done    chan struct{}
	running bool
}

// NewManager creates a retention sweeper.
func NewManager(pruner Pruner, config Config, logger *logging.Logger) *Manager {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.Retention < MinRetention {
		config.Retention = MinRetention
	}
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &Manager{
		pruner: pruner,
		config: config,
		clock:  clock.System{},
		logger: logger,
		done:   make(chan struct{}),
	}
}

// SetClock overrides the wall clock, for tests.
func (m *Manager) SetClock(c clock.Clock) {
	m.clock = c
}

// Start begins periodic sweeping in a background goroutine.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.done:
				return
			case <-ticker.C:
				if _, err := m.RunOnce(context.Background()); err != nil {
					m.logger.Error("retention sweep failed", "error", err.Error())
				}
			}
		}
	}()
}

// Stop terminates the background sweeper.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.done)
}

// RunOnce performs a single sweep and returns how many records were pruned.
func (m *Manager) RunOnce(ctx context.Context) (int64, error) {
	cutoff := m.clock.Now().Add(-m.config.Retention)
	pruned, err := m.pruner.PruneStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.stats.TotalRuns++
	m.stats.TotalPruned += pruned
	m.stats.LastRunAt = m.clock.Now()
	m.mu.Unlock()

	if pruned > 0 {
		m.logger.Info("pruned stale usage records", "count", pruned, "cutoff", cutoff.Format(time.RFC3339))
	}
	return pruned, nil
}

// Stats returns a copy of the sweeper statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
