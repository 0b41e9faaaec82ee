package alerts

import (
	"fmt"
	"sync"
	"time"

	"github.com/usagegate/usagegate/internal/config"
	"github.com/usagegate/usagegate/internal/logging"
)

// EventKind classifies operational alert events.
type EventKind string

const (
	// EventContention fires when a consume call exhausts its
	// conditional-write retries for a user.
	EventContention EventKind = "contention"
	// EventStoreUnavailable fires when the record store cannot be reached.
	EventStoreUnavailable EventKind = "store_unavailable"
	// EventInvalidRecord fires when a stored record fails validation.
	EventInvalidRecord EventKind = "invalid_record"
)

// Notifier delivers an alert message to an operator channel.
type Notifier interface {
	Notify(message string) error
}

// Manager dedups and forwards operational alerts. Events with the same kind
// and subject within the dedup interval are dropped so a stuck store does not
// flood the channel.
type Manager struct {
	notifier Notifier
	logger   *logging.Logger
	interval time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewManager creates an alert manager. A nil notifier disables delivery; the
// manager still logs events.
func NewManager(cfg config.AlertsConfig, notifier Notifier, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewLogger()
	}
	interval := cfg.MinInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Manager{
		notifier: notifier,
		logger:   logger,
		interval: interval,
		lastSent: make(map[string]time.Time),
	}
}

// Fire reports an event about a subject (usually a user ID). Delivery errors
// are logged, never propagated; alerting must not affect quota decisions.
func (m *Manager) Fire(kind EventKind, subject, detail string) {
	if m == nil {
		return
	}

	key := string(kind) + "/" + subject
	now := time.Now()

	m.mu.Lock()
	last, seen := m.lastSent[key]
	if seen && now.Sub(last) < m.interval {
		m.mu.Unlock()
		return
	}
	m.lastSent[key] = now
	m.mu.Unlock()

	m.logger.Warn("operational alert", "kind", string(kind), "subject", subject, "detail", detail)

	if m.notifier == nil {
		return
	}
	msg := fmt.Sprintf("[usagegate] %s: %s (%s)", kind, subject, detail)
	if err := m.notifier.Notify(msg); err != nil {
		m.logger.Error("alert delivery failed", "kind", string(kind), "error", err.Error())
	}
}
