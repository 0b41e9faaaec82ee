package models

import (
	"fmt"
	"time"

	"github.com/usagegate/usagegate/internal/errors"
	"github.com/usagegate/usagegate/internal/period"
)

// PeriodCounter tracks consumption within one rolling calendar window.
// WindowStart is the instant the current window began; it is not aligned to a
// fixed boundary, the window membership test in internal/period decides
// whether it is still current.
type PeriodCounter struct {
	Count       int       `json:"count"`
	Limit       int       `json:"limit"`
	WindowStart time.Time `json:"window_start"`
}

// Remaining returns how many invocations are left in the window, never
// negative.
func (c PeriodCounter) Remaining() int {
	if c.Count >= c.Limit {
		return 0
	}
	return c.Limit - c.Count
}

// UsageRecord is the durable per-user usage state. One record exists per user
// identifier; it is mutated only through the engine's conditional writes.
// Version is the optimistic-concurrency token checked by RecordStore.Update.
type UsageRecord struct {
	UserID           string        `json:"user_id"`
	Daily            PeriodCounter `json:"daily"`
	Weekly           PeriodCounter `json:"weekly"`
	Monthly          PeriodCounter `json:"monthly"`
	CustomDailyLimit *int          `json:"custom_daily_limit,omitempty"`
	Unlimited        bool          `json:"unlimited"`
	LastConsumedAt   *time.Time    `json:"last_consumed_at,omitempty"`
	Version          int64         `json:"version"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// NewUsageRecord creates a zeroed record for a user with all windows starting
// now and the given default limits.
func NewUsageRecord(userID string, daily, weekly, monthly int, now time.Time) *UsageRecord {
	return &UsageRecord{
		UserID:    userID,
		Daily:     PeriodCounter{Limit: daily, WindowStart: now},
		Weekly:    PeriodCounter{Limit: weekly, WindowStart: now},
		Monthly:   PeriodCounter{Limit: monthly, WindowStart: now},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Counter returns the counter for a period kind.
func (r *UsageRecord) Counter(k period.Kind) *PeriodCounter {
	switch k {
	case period.Daily:
		return &r.Daily
	case period.Weekly:
		return &r.Weekly
	case period.Monthly:
		return &r.Monthly
	}
	return nil
}

// EffectiveDailyLimit returns the per-user override when set, otherwise the
// record's daily limit.
func (r *UsageRecord) EffectiveDailyLimit() int {
	if r.CustomDailyLimit != nil {
		return *r.CustomDailyLimit
	}
	return r.Daily.Limit
}

// EffectiveLimit returns the limit actually enforced for a period kind,
// accounting for the daily override.
func (r *UsageRecord) EffectiveLimit(k period.Kind) int {
	if k == period.Daily {
		return r.EffectiveDailyLimit()
	}
	return r.Counter(k).Limit
}

// Clone returns a deep copy so a retry loop can mutate freely without
// aliasing the state another caller observed.
func (r *UsageRecord) Clone() *UsageRecord {
	cp := *r
	if r.CustomDailyLimit != nil {
		v := *r.CustomDailyLimit
		cp.CustomDailyLimit = &v
	}
	if r.LastConsumedAt != nil {
		v := *r.LastConsumedAt
		cp.LastConsumedAt = &v
	}
	return &cp
}

// Validate checks the record for corrupt stored state. Callers treat an
// invalid record as quota exceeded (fail closed) rather than granting
// unbounded access.
func (r *UsageRecord) Validate() error {
	if r.UserID == "" {
		return &errors.ErrInvalidRecord{UserID: r.UserID, Err: fmt.Errorf("user ID is required")}
	}
	for _, k := range period.Kinds {
		c := r.Counter(k)
		if c.Count < 0 {
			return &errors.ErrInvalidRecord{UserID: r.UserID, Err: fmt.Errorf("%s count is negative: %d", k, c.Count)}
		}
		if c.Limit <= 0 {
			return &errors.ErrInvalidRecord{UserID: r.UserID, Err: fmt.Errorf("%s limit must be positive: %d", k, c.Limit)}
		}
		if c.WindowStart.IsZero() {
			return &errors.ErrInvalidRecord{UserID: r.UserID, Err: fmt.Errorf("%s window start is unset", k)}
		}
	}
	if r.CustomDailyLimit != nil && *r.CustomDailyLimit <= 0 {
		return &errors.ErrInvalidRecord{UserID: r.UserID, Err: fmt.Errorf("custom daily limit must be positive: %d", *r.CustomDailyLimit)}
	}
	return nil
}
