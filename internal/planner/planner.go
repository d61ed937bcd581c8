// Package planner generates and activates AI plans.
//
// One generation is: look up the profile, make exactly one completion call,
// classify service errors, validate and normalize the content, then make it
// the single active plan of its category. Nothing is written unless the
// content validated.
package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/carpenike/fitcoach/internal/llm"
	"github.com/carpenike/fitcoach/internal/models"
	"github.com/carpenike/fitcoach/internal/plan"
)

// ProfileRepository reads user profiles.
type ProfileRepository interface {
	Get(ctx context.Context, userID int64) (*models.Profile, error)
}

// PlanStore writes plans. DeactivateAll must be idempotent; InsertActive
// appends without checking for other active plans.
type PlanStore interface {
	DeactivateAll(ctx context.Context, userID int64, category plan.Category) error
	InsertActive(ctx context.Context, p *models.Plan) (*models.Plan, error)
}

// Activator is implemented by stores that can deactivate and insert in one
// transaction. The orchestrator prefers it over the two-step sequence.
type Activator interface {
	Activate(ctx context.Context, p *models.Plan) (*models.Plan, error)
}

// Notifier is told about newly activated plans. It must not block.
type Notifier interface {
	PlanReady(p *models.Plan)
}

// Observer records generation outcomes.
type Observer interface {
	ObserveGeneration(category, outcome string, d time.Duration)
}

// Orchestrator runs plan generation.
type Orchestrator struct {
	Profiles  ProfileRepository
	Completer llm.Completer
	Store     PlanStore
	Notifier  Notifier         // optional
	Metrics   Observer         // optional
	Now       func() time.Time // defaults to time.Now
}

// Generate produces a new active plan of category for the user. Blank
// preferences are replaced by a goal-based default. On any error the store
// is untouched, except for ErrStoreWriteFailed from a store without
// Activator, which may leave the category with no active plan.
func (o *Orchestrator) Generate(ctx context.Context, userID int64, preferences, category string) (p *models.Plan, err error) {
	start := o.now()
	label := category
	defer func() {
		if o.Metrics != nil {
			o.Metrics.ObserveGeneration(label, Outcome(err), o.now().Sub(start))
		}
		if err != nil {
			log.WithFields(log.Fields{"user_id": userID, "category": label}).Warnf("planner: generate: %v", err)
		}
	}()

	cat, err := plan.ParseCategory(category)
	if err != nil {
		label = "unknown"
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	label = string(cat)

	profile, err := o.Profiles.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: user %d: %w", ErrProfileUnavailable, userID, err)
	}
	if profile == nil {
		return nil, fmt.Errorf("%w: user %d", ErrProfileMissing, userID)
	}

	raw, err := o.Completer.Complete(ctx, llm.PromptSpec{
		Category:    cat.CompletionKind(),
		Profile:     profile,
		Preferences: llm.ResolvePreferences(preferences, profile.Goal),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompletionUnavailable, err)
	}

	if msg, ok := plan.CheckServiceError(raw); ok {
		if msg == llm.QuotaExceeded {
			return nil, ErrQuotaExceeded
		}
		return nil, fmt.Errorf("%w: %s", ErrCompletionUnavailable, msg)
	}

	content, err := plan.Validate(raw, cat)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlanFormat, err)
	}

	record, err := models.NewPlan(userID, content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreWriteFailed, err)
	}
	record.CreatedAt = start

	saved, err := o.persist(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreWriteFailed, err)
	}

	log.WithFields(log.Fields{
		"user_id":  userID,
		"category": label,
		"plan_id":  saved.ID,
		"days":     content.DayCount(),
	}).Info("planner: plan activated")

	if o.Notifier != nil {
		o.Notifier.PlanReady(saved)
	}
	return saved, nil
}

func (o *Orchestrator) persist(ctx context.Context, p *models.Plan) (*models.Plan, error) {
	if a, ok := o.Store.(Activator); ok {
		return a.Activate(ctx, p)
	}
	if err := o.Store.DeactivateAll(ctx, p.UserID, p.Category); err != nil {
		return nil, err
	}
	saved, err := o.Store.InsertActive(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("insert after deactivate: %w", err)
	}
	return saved, nil
}

func (o *Orchestrator) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// IsValidationFailure reports whether err came from content validation and,
// if so, returns the detail.
func IsValidationFailure(err error) (*plan.ValidationError, bool) {
	var verr *plan.ValidationError
	if errors.As(err, &verr) && errors.Is(err, ErrInvalidPlanFormat) {
		return verr, true
	}
	return nil, false
}
