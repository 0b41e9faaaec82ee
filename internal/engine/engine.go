package engine

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/usagegate/usagegate/internal/clock"
	"github.com/usagegate/usagegate/internal/errors"
	"github.com/usagegate/usagegate/internal/logging"
	"github.com/usagegate/usagegate/internal/metrics"
	"github.com/usagegate/usagegate/internal/models"
	"github.com/usagegate/usagegate/internal/period"
	"github.com/usagegate/usagegate/internal/store"
)

// DefaultMaxRetries bounds the conditional-write loop. Contention on a single
// user's record is rare (duplicate client retries, mostly), so a handful of
// attempts is enough to converge without risking a retry storm.
const DefaultMaxRetries = 5

// Limits holds the default per-period limits applied to new records.
type Limits struct {
	Daily   int
	Weekly  int
	Monthly int
}

// Engine decides whether a metered operation may run for a user and maintains
// the per-user counters. All coordination happens through the record store's
// conditional writes; the engine itself holds no per-user state and is safe
// for concurrent use.
type Engine struct {
	store      store.RecordStore
	clock      clock.Clock
	metrics    *metrics.Metrics
	logger     *logging.Logger
	maxRetries int

	mu       sync.RWMutex
	defaults Limits
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithMetrics attaches metrics recording.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger overrides the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMaxRetries overrides the conditional-write retry bound.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

// New creates an engine with the given store and default limits.
func New(s store.RecordStore, defaults Limits, opts ...Option) *Engine {
	e := &Engine{
		store:      s,
		clock:      clock.System{},
		logger:     logging.NewLogger(),
		maxRetries: DefaultMaxRetries,
		defaults:   defaults,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetDefaultLimits replaces the limits applied to newly created records.
// Existing records keep the limits they were created with.
func (e *Engine) SetDefaultLimits(l Limits) {
	e.mu.Lock()
	e.defaults = l
	e.mu.Unlock()
}

// DefaultLimits returns the current default limits.
func (e *Engine) DefaultLimits() Limits {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.defaults
}

// NewRecord synthesizes the zeroed default record for a user.
func (e *Engine) NewRecord(userID string, now time.Time) *models.UsageRecord {
	l := e.DefaultLimits()
	return models.NewUsageRecord(userID, l.Daily, l.Weekly, l.Monthly, now)
}

// Now returns the engine's current instant.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// applyResets zeroes every counter whose window no longer contains now and
// restarts its window at now. Returns true if any counter was reset.
func applyResets(rec *models.UsageRecord, now time.Time) bool {
	reset := false
	for _, k := range period.Kinds {
		c := rec.Counter(k)
		if !period.SameWindow(k, c.WindowStart, now) {
			c.Count = 0
			c.WindowStart = now
			reset = true
		}
	}
	return reset
}

// exceededPeriod returns the first period, in enforcement order, whose count
// has reached its effective limit. Counters must already be reset for now.
func exceededPeriod(rec *models.UsageRecord) *period.Kind {
	if rec.Unlimited {
		return nil
	}
	for _, k := range period.Kinds {
		k := k
		if rec.Counter(k).Count >= rec.EffectiveLimit(k) {
			return &k
		}
	}
	return nil
}

// Evaluate computes the quota decision for a record at the given instant
// without touching storage. Counters that rolled over appear reset in the
// returned snapshot only; persisting resets is the consume path's job.
func Evaluate(rec *models.UsageRecord, now time.Time) models.Decision {
	snapshot := rec.Clone()
	applyResets(snapshot, now)

	exceeded := exceededPeriod(snapshot)
	return models.Decision{
		Allowed:        exceeded == nil,
		ExceededPeriod: exceeded,
		Usage:          models.ViewOf(snapshot),
		NextReset:      models.NextResets(now),
	}
}

// TryConsume atomically checks the user's quota and, if allowed, consumes one
// invocation from all three windows. It retries on version conflicts up to
// the configured bound; exhausting the bound is a transient failure, never a
// silent grant or denial.
//
// For a single user the conditional writes totally order successful consumes,
// so the count of allowed calls within a window can never exceed the limit,
// even under concurrent duplicate requests.
func (e *Engine) TryConsume(ctx context.Context, userID string) (models.Decision, error) {
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		decision, err := e.tryConsumeOnce(ctx, userID)
		if stderrors.Is(err, errors.ErrVersionConflict) {
			e.metrics.RecordVersionConflict()
			e.logger.DebugWithContext(ctx, "consume lost conditional write, retrying",
				"user_id", userID, "attempt", attempt)
			continue
		}
		if err != nil {
			e.metrics.RecordConsumeAttempts("error", attempt)
			return models.Decision{}, err
		}
		outcome := "denied"
		if decision.Allowed {
			outcome = "allowed"
		}
		e.metrics.RecordConsumeAttempts(outcome, attempt)
		return decision, nil
	}

	e.metrics.RecordConsumeAttempts("exhausted", e.maxRetries)
	e.logger.WarnWithContext(ctx, "consume retries exhausted",
		"user_id", userID, "attempts", e.maxRetries)
	return models.Decision{}, &errors.ErrRetriesExhausted{UserID: userID, Attempts: e.maxRetries}
}

// tryConsumeOnce performs one read-check-write cycle. It returns
// ErrVersionConflict when the conditional write loses the race.
func (e *Engine) tryConsumeOnce(ctx context.Context, userID string) (models.Decision, error) {
	start := time.Now()
	rec, found, err := e.store.Get(ctx, userID)
	e.metrics.RecordStoreLatency("get", time.Since(start).Seconds())
	if err != nil {
		return models.Decision{}, &errors.ErrStoreUnavailable{Operation: "get", Err: err}
	}

	now := e.clock.Now()
	if !found {
		rec = e.NewRecord(userID, now)
	}

	if err := rec.Validate(); err != nil {
		// Corrupt stored state fails closed: deny rather than grant
		// unbounded access, and leave the record untouched for inspection.
		e.metrics.RecordInvalidRecord()
		e.metrics.RecordDecision("consume", "invalid", "")
		e.logger.ErrorWithContext(ctx, "usage record failed validation, denying",
			"user_id", userID, "error", err.Error())
		return models.Decision{
			Allowed:   false,
			Usage:     models.ViewOf(rec),
			NextReset: models.NextResets(now),
		}, nil
	}

	loadedVersion := rec.Version
	resetsApplied := applyResets(rec, now)

	exceeded := exceededPeriod(rec)
	if exceeded != nil {
		// Rejected attempts never increment, but resets that just happened
		// are persisted so a long-idle user's first call after a boundary
		// starts the new window cleanly.
		if resetsApplied {
			if err := e.write(ctx, rec, found, loadedVersion, now); err != nil {
				return models.Decision{}, err
			}
		}
		e.metrics.RecordDecision("consume", "denied", exceeded.String())
		return models.Decision{
			Allowed:        false,
			ExceededPeriod: exceeded,
			Usage:          models.ViewOf(rec),
			NextReset:      models.NextResets(now),
		}, nil
	}

	if rec.Unlimited {
		// Counters stay frozen for unlimited users; only the last-use
		// metadata and any pending resets are recorded.
		rec.LastConsumedAt = &now
	} else {
		rec.Daily.Count++
		rec.Weekly.Count++
		rec.Monthly.Count++
		rec.LastConsumedAt = &now
	}

	if err := e.write(ctx, rec, found, loadedVersion, now); err != nil {
		return models.Decision{}, err
	}

	e.metrics.RecordDecision("consume", "allowed", "")
	return models.Decision{
		Allowed:   true,
		Usage:     models.ViewOf(rec),
		NextReset: models.NextResets(now),
	}, nil
}

// write persists rec, creating it on first access or conditionally updating
// it against the version observed at read time. ErrVersionConflict propagates
// untouched so the consume loop can retry.
func (e *Engine) write(ctx context.Context, rec *models.UsageRecord, found bool, loadedVersion int64, now time.Time) error {
	rec.UpdatedAt = now
	start := time.Now()
	var err error
	if !found {
		err = e.store.Create(ctx, rec)
		e.metrics.RecordStoreLatency("create", time.Since(start).Seconds())
		if err == nil {
			e.metrics.RecordCreated()
		}
	} else {
		rec.Version = loadedVersion + 1
		err = e.store.Update(ctx, rec, loadedVersion)
		e.metrics.RecordStoreLatency("update", time.Since(start).Seconds())
	}
	if err != nil {
		if stderrors.Is(err, errors.ErrVersionConflict) {
			return errors.ErrVersionConflict
		}
		var notFound *errors.ErrRecordNotFound
		if stderrors.As(err, &notFound) {
			// The record vanished between read and write (external cleanup);
			// treat as a conflict so the next attempt re-reads.
			return errors.ErrVersionConflict
		}
		return &errors.ErrStoreUnavailable{Operation: "write", Err: err}
	}
	return nil
}
