package quota

import (
	"context"
	stderrors "errors"

	"github.com/usagegate/usagegate/internal/alerts"
	"github.com/usagegate/usagegate/internal/engine"
	"github.com/usagegate/usagegate/internal/errors"
	"github.com/usagegate/usagegate/internal/logging"
	"github.com/usagegate/usagegate/internal/metrics"
	"github.com/usagegate/usagegate/internal/models"
	"github.com/usagegate/usagegate/internal/store"
)

// Service is the entry point callers use before performing the metered
// operation. The contract: a caller must receive Allowed=true from TryConsume
// before doing the expensive work, and must skip the work otherwise.
// GetStatus is advisory and may be called at any time for display.
type Service struct {
	engine  *engine.Engine
	store   store.RecordStore
	metrics *metrics.Metrics
	logger  *logging.Logger
	alerts  *alerts.Manager
}

// NewService creates the quota service boundary.
func NewService(eng *engine.Engine, st store.RecordStore, m *metrics.Metrics, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &Service{
		engine:  eng,
		store:   st,
		metrics: m,
		logger:  logger,
	}
}

// SetAlerts attaches an alert manager for operational events.
func (s *Service) SetAlerts(a *alerts.Manager) {
	s.alerts = a
}

// GetStatus returns the user's current quota decision without consuming
// anything. On first-ever access it persists the freshly-initialized default
// record so later calls read consistent state; it never persists virtual
// resets.
func (s *Service) GetStatus(ctx context.Context, userID string) (models.Decision, error) {
	rec, found, err := s.store.Get(ctx, userID)
	if err != nil {
		return models.Decision{}, &errors.ErrStoreUnavailable{Operation: "get", Err: err}
	}

	now := s.engine.Now()
	if !found {
		rec = s.engine.NewRecord(userID, now)
		if err := s.store.Create(ctx, rec); err != nil {
			if stderrors.Is(err, errors.ErrVersionConflict) {
				// Another caller initialized the record first; read theirs.
				rec, _, err = s.store.Get(ctx, userID)
				if err != nil || rec == nil {
					return models.Decision{}, &errors.ErrStoreUnavailable{Operation: "get", Err: err}
				}
			} else {
				return models.Decision{}, &errors.ErrStoreUnavailable{Operation: "create", Err: err}
			}
		} else {
			s.metrics.RecordCreated()
		}
	}

	if err := rec.Validate(); err != nil {
		s.metrics.RecordInvalidRecord()
		s.metrics.RecordDecision("status", "invalid", "")
		s.logger.ErrorWithContext(ctx, "usage record failed validation, denying",
			"user_id", userID, "error", err.Error())
		s.alerts.Fire(alerts.EventInvalidRecord, userID, err.Error())
		return models.Decision{
			Allowed:   false,
			Usage:     models.ViewOf(rec),
			NextReset: models.NextResets(now),
		}, nil
	}

	decision := engine.Evaluate(rec, now)
	outcome := "denied"
	if decision.Allowed {
		outcome = "allowed"
	}
	periodLabel := ""
	if decision.ExceededPeriod != nil {
		periodLabel = decision.ExceededPeriod.String()
	}
	s.metrics.RecordDecision("status", outcome, periodLabel)
	return decision, nil
}

// TryConsume checks and consumes one invocation. A denied decision is a
// normal outcome carried as data; errors are transient store or contention
// failures, after which the metered operation must be treated as not
// attempted.
func (s *Service) TryConsume(ctx context.Context, userID string) (models.Decision, error) {
	decision, err := s.engine.TryConsume(ctx, userID)
	if err != nil {
		var exhausted *errors.ErrRetriesExhausted
		if stderrors.As(err, &exhausted) {
			// Contention, not outage. Logged distinctly for observability.
			s.logger.WarnWithContext(ctx, "quota consume contention",
				"user_id", userID, "attempts", exhausted.Attempts)
			s.alerts.Fire(alerts.EventContention, userID, err.Error())
		} else {
			s.logger.ErrorWithContext(ctx, "quota consume failed",
				"user_id", userID, "error", err.Error())
			s.alerts.Fire(alerts.EventStoreUnavailable, userID, err.Error())
		}
		return models.Decision{}, err
	}
	return decision, nil
}

// ListRecords returns all stored usage records for display and admin tooling.
func (s *Service) ListRecords(ctx context.Context) ([]*models.UsageRecord, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, &errors.ErrStoreUnavailable{Operation: "list", Err: err}
	}
	return records, nil
}

// Overrides carries the optional per-user limit overrides. Nil fields are
// left unchanged by SetOverrides.
type Overrides struct {
	CustomDailyLimit *int
	Unlimited        *bool
}

// SetOverrides updates a user's custom daily limit and unlimited flag through
// the same conditional-write path consumes use, so an admin change can never
// clobber a concurrent consume.
func (s *Service) SetOverrides(ctx context.Context, userID string, ov Overrides) (*models.UsageRecord, error) {
	for attempt := 0; attempt < engine.DefaultMaxRetries; attempt++ {
		rec, found, err := s.store.Get(ctx, userID)
		if err != nil {
			return nil, &errors.ErrStoreUnavailable{Operation: "get", Err: err}
		}

		now := s.engine.Now()
		if !found {
			rec = s.engine.NewRecord(userID, now)
			applyOverrides(rec, ov)
			if err := s.store.Create(ctx, rec); err != nil {
				if stderrors.Is(err, errors.ErrVersionConflict) {
					continue
				}
				return nil, &errors.ErrStoreUnavailable{Operation: "create", Err: err}
			}
			s.metrics.RecordCreated()
			return rec, nil
		}

		loadedVersion := rec.Version
		applyOverrides(rec, ov)
		rec.Version = loadedVersion + 1
		rec.UpdatedAt = now
		if err := s.store.Update(ctx, rec, loadedVersion); err != nil {
			if stderrors.Is(err, errors.ErrVersionConflict) {
				s.metrics.RecordVersionConflict()
				continue
			}
			return nil, &errors.ErrStoreUnavailable{Operation: "update", Err: err}
		}
		return rec, nil
	}
	return nil, &errors.ErrRetriesExhausted{UserID: userID, Attempts: engine.DefaultMaxRetries}
}

// ClearOverrides removes the custom daily limit and unlimited flag.
func (s *Service) ClearOverrides(ctx context.Context, userID string) (*models.UsageRecord, error) {
	disabled := false
	return s.SetOverrides(ctx, userID, Overrides{
		CustomDailyLimit: new(int),
		Unlimited:        &disabled,
	})
}

func applyOverrides(rec *models.UsageRecord, ov Overrides) {
	if ov.CustomDailyLimit != nil {
		if *ov.CustomDailyLimit <= 0 {
			rec.CustomDailyLimit = nil
		} else {
			v := *ov.CustomDailyLimit
			rec.CustomDailyLimit = &v
		}
	}
	if ov.Unlimited != nil {
		rec.Unlimited = *ov.Unlimited
	}
}
