package models

import (
	"time"

	"github.com/usagegate/usagegate/internal/period"
)

// PeriodView is the caller-facing view of a single window.
type PeriodView struct {
	Count int `json:"count"`
	Limit int `json:"limit"`
}

// UsageView mirrors UsageRecord as plain display data.
type UsageView struct {
	Daily          PeriodView `json:"daily"`
	Weekly         PeriodView `json:"weekly"`
	Monthly        PeriodView `json:"monthly"`
	CustomLimit    *int       `json:"custom_limit,omitempty"`
	IsUnlimited    bool       `json:"is_unlimited"`
	LastConsumedAt *time.Time `json:"last_consumed_at,omitempty"`
}

// Decision is the outcome of a status read or a consume attempt. It is
// computed fresh on every call and never persisted.
type Decision struct {
	Allowed        bool                      `json:"allowed"`
	ExceededPeriod *period.Kind              `json:"exceeded_period,omitempty"`
	Usage          UsageView                 `json:"usage"`
	NextReset      map[period.Kind]time.Time `json:"next_reset_at"`
}

// ViewOf builds the display view of a record. Limits reflect the effective
// limit per period, so a custom daily override shows as the daily limit.
func ViewOf(r *UsageRecord) UsageView {
	v := UsageView{
		Daily:       PeriodView{Count: r.Daily.Count, Limit: r.EffectiveDailyLimit()},
		Weekly:      PeriodView{Count: r.Weekly.Count, Limit: r.Weekly.Limit},
		Monthly:     PeriodView{Count: r.Monthly.Count, Limit: r.Monthly.Limit},
		IsUnlimited: r.Unlimited,
	}
	if r.CustomDailyLimit != nil {
		limit := *r.CustomDailyLimit
		v.CustomLimit = &limit
	}
	if r.LastConsumedAt != nil {
		ts := *r.LastConsumedAt
		v.LastConsumedAt = &ts
	}
	return v
}

// NextResets computes the next boundary for every period kind at the given
// instant.
func NextResets(now time.Time) map[period.Kind]time.Time {
	resets := make(map[period.Kind]time.Time, len(period.Kinds))
	for _, k := range period.Kinds {
		resets[k] = period.NextBoundary(k, now)
	}
	return resets
}
