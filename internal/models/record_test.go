package models

import (
	"testing"
	"time"

	"github.com/usagegate/usagegate/internal/period"
)

// TestNewUsageRecord tests record initialization
func TestNewUsageRecord(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	rec := NewUsageRecord("user-1", 10, 50, 150, now)

	if rec.UserID != "user-1" {
		t.Errorf("Expected user-1, got %s", rec.UserID)
	}
	if rec.Daily.Limit != 10 || rec.Weekly.Limit != 50 || rec.Monthly.Limit != 150 {
		t.Errorf("Limits not applied: %d/%d/%d", rec.Daily.Limit, rec.Weekly.Limit, rec.Monthly.Limit)
	}
	for _, k := range period.Kinds {
		c := rec.Counter(k)
		if c.Count != 0 {
			t.Errorf("%s count should start at 0, got %d", k, c.Count)
		}
		if !c.WindowStart.Equal(now) {
			t.Errorf("%s window should start now, got %v", k, c.WindowStart)
		}
	}
	if rec.Version != 0 {
		t.Errorf("New record version should be 0 before persistence, got %d", rec.Version)
	}
}

// TestEffectiveLimits tests the custom daily limit override
func TestEffectiveLimits(t *testing.T) {
	now := time.Now().UTC()
	rec := NewUsageRecord("user-1", 10, 50, 150, now)

	if rec.EffectiveDailyLimit() != 10 {
		t.Errorf("Expected default daily limit 10, got %d", rec.EffectiveDailyLimit())
	}

	custom := 3
	rec.CustomDailyLimit = &custom
	if rec.EffectiveDailyLimit() != 3 {
		t.Errorf("Expected custom daily limit 3, got %d", rec.EffectiveDailyLimit())
	}
	if rec.EffectiveLimit(period.Daily) != 3 {
		t.Errorf("EffectiveLimit(daily) should honor the override, got %d", rec.EffectiveLimit(period.Daily))
	}

	// Weekly and monthly are not overridable.
	if rec.EffectiveLimit(period.Weekly) != 50 {
		t.Errorf("Expected weekly limit 50, got %d", rec.EffectiveLimit(period.Weekly))
	}
	if rec.EffectiveLimit(period.Monthly) != 150 {
		t.Errorf("Expected monthly limit 150, got %d", rec.EffectiveLimit(period.Monthly))
	}
}

// TestRemaining tests the remaining-count helper
func TestRemaining(t *testing.T) {
	c := PeriodCounter{Count: 7, Limit: 10}
	if c.Remaining() != 3 {
		t.Errorf("Expected 3 remaining, got %d", c.Remaining())
	}

	c.Count = 10
	if c.Remaining() != 0 {
		t.Errorf("Expected 0 remaining at limit, got %d", c.Remaining())
	}

	// Over-limit state (custom limit lowered below count) stays at zero.
	c.Count = 15
	if c.Remaining() != 0 {
		t.Errorf("Expected 0 remaining over limit, got %d", c.Remaining())
	}
}

// TestClone tests that clones share no mutable state
func TestClone(t *testing.T) {
	now := time.Now().UTC()
	rec := NewUsageRecord("user-1", 10, 50, 150, now)
	custom := 5
	rec.CustomDailyLimit = &custom
	last := now.Add(-time.Minute)
	rec.LastConsumedAt = &last

	cp := rec.Clone()
	cp.Daily.Count = 9
	*cp.CustomDailyLimit = 99
	*cp.LastConsumedAt = now

	if rec.Daily.Count != 0 {
		t.Errorf("Clone aliased counters, count %d", rec.Daily.Count)
	}
	if *rec.CustomDailyLimit != 5 {
		t.Errorf("Clone aliased custom limit, got %d", *rec.CustomDailyLimit)
	}
	if !rec.LastConsumedAt.Equal(last) {
		t.Errorf("Clone aliased last consumed, got %v", rec.LastConsumedAt)
	}
}

// TestValidate tests corrupt-record detection
func TestValidate(t *testing.T) {
	now := time.Now().UTC()

	valid := NewUsageRecord("user-1", 10, 50, 150, now)
	if err := valid.Validate(); err != nil {
		t.Fatalf("Valid record failed validation: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*UsageRecord)
	}{
		{"missing user ID", func(r *UsageRecord) { r.UserID = "" }},
		{"negative daily count", func(r *UsageRecord) { r.Daily.Count = -1 }},
		{"negative weekly count", func(r *UsageRecord) { r.Weekly.Count = -5 }},
		{"zero monthly limit", func(r *UsageRecord) { r.Monthly.Limit = 0 }},
		{"negative weekly limit", func(r *UsageRecord) { r.Weekly.Limit = -10 }},
		{"zero daily window start", func(r *UsageRecord) { r.Daily.WindowStart = time.Time{} }},
		{"non-positive custom limit", func(r *UsageRecord) { v := 0; r.CustomDailyLimit = &v }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewUsageRecord("user-1", 10, 50, 150, now)
			tt.mutate(rec)
			if err := rec.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}

	// A count above its limit is legal state: custom limits can be lowered
	// below the current count, and unlimited users keep frozen counters.
	over := NewUsageRecord("user-1", 10, 50, 150, now)
	over.Daily.Count = 10
	custom := 2
	over.CustomDailyLimit = &custom
	if err := over.Validate(); err != nil {
		t.Errorf("Over-limit count should validate: %v", err)
	}
}

// TestViewOf tests the display view construction
func TestViewOf(t *testing.T) {
	now := time.Now().UTC()
	rec := NewUsageRecord("user-1", 10, 50, 150, now)
	rec.Daily.Count = 4
	custom := 6
	rec.CustomDailyLimit = &custom

	view := ViewOf(rec)
	if view.Daily.Count != 4 {
		t.Errorf("Expected daily count 4, got %d", view.Daily.Count)
	}
	// The view shows the effective limit, not the stored default.
	if view.Daily.Limit != 6 {
		t.Errorf("Expected effective daily limit 6, got %d", view.Daily.Limit)
	}
	if view.CustomLimit == nil || *view.CustomLimit != 6 {
		t.Errorf("Expected custom limit 6 in view, got %v", view.CustomLimit)
	}

	// Mutating the view's pointer must not reach the record.
	*view.CustomLimit = 999
	if *rec.CustomDailyLimit != 6 {
		t.Errorf("View aliased the record's custom limit: %d", *rec.CustomDailyLimit)
	}
}

// TestNextResets tests that a boundary exists for every period kind
func TestNextResets(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	resets := NextResets(now)

	if len(resets) != len(period.Kinds) {
		t.Fatalf("Expected %d resets, got %d", len(period.Kinds), len(resets))
	}
	for _, k := range period.Kinds {
		boundary, ok := resets[k]
		if !ok {
			t.Errorf("Missing reset for %s", k)
			continue
		}
		if !boundary.After(now) {
			t.Errorf("%s reset %v should be after %v", k, boundary, now)
		}
	}
	if !resets[period.Daily].Equal(time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected daily reset at next midnight, got %v", resets[period.Daily])
	}
}
