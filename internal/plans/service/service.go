// Package service implements the recurring plan engine: plan lifecycle,
// rule management, occurrence generation and occurrence-level operations.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dispatch_backend/internal/events"
	"dispatch_backend/internal/plans/domain"
	"dispatch_backend/internal/plans/repository"
	"dispatch_backend/platform/apperr"
	"dispatch_backend/platform/config"
	"dispatch_backend/platform/logger"
)

// VisitSpec carries everything the visits module needs to materialize a job
// visit from a planned occurrence, including the plan's billing hints.
type VisitSpec struct {
	OccurrenceID       uuid.UUID
	PlanID             uuid.UUID
	ClientID           uuid.UUID
	Name               string
	Address            *string
	Latitude           *float64
	Longitude          *float64
	StartAt            time.Time
	EndAt              time.Time
	ArrivalWindowStart *time.Time
	ArrivalWindowEnd   *time.Time
	Priority           string
	BillingMode        string
	InvoiceTiming      string
	AutoInvoice        bool
	LineItems          []repository.LineItem
}

// VisitCreator is the narrow dependency on the visits module.
type VisitCreator interface {
	CreateFromOccurrence(ctx context.Context, spec VisitSpec) (uuid.UUID, error)
}

// Service orchestrates plans, rules and occurrences on top of the store.
type Service struct {
	store     repository.Store
	visits    VisitCreator
	bus       events.Bus
	clock     domain.Clock
	defaults  domain.ResolveDefaults
	daysAhead int
	log       *logger.Logger
}

func New(store repository.Store, visits VisitCreator, bus events.Bus, clock domain.Clock, defaults domain.ResolveDefaults, defaultDaysAhead int, log *logger.Logger) *Service {
	return &Service{
		store:     store,
		visits:    visits,
		bus:       bus,
		clock:     clock,
		defaults:  defaults,
		daysAhead: defaultDaysAhead,
		log:       log,
	}
}

// DefaultsFromConfig builds the resolver defaults from engine configuration.
func DefaultsFromConfig(cfg config.EngineConfig) (domain.ResolveDefaults, error) {
	anchor, err := domain.ParseTimeOfDay(cfg.GetAnytimeArrivalAnchor())
	if err != nil {
		return domain.ResolveDefaults{}, fmt.Errorf("invalid anytime arrival anchor: %w", err)
	}
	return domain.ResolveDefaults{
		AnytimeAnchor: anchor,
		VisitDuration: cfg.GetDefaultVisitDuration(),
		ArriveByLead:  cfg.GetArriveByLeadTime(),
	}, nil
}

// LineItemInput is one template line on a new plan.
type LineItemInput struct {
	Name      string
	Quantity  float64
	UnitPrice float64
	ItemType  string
	SortOrder int
}

// CreatePlanInput is the validated input for plan creation. StartsAt and
// EndsAt are midnight-UTC calendar dates; EndsAt is exclusive.
type CreatePlanInput struct {
	ClientID             uuid.UUID
	Name                 string
	Description          *string
	Address              *string
	Latitude             *float64
	Longitude            *float64
	StartsAt             time.Time
	EndsAt               *time.Time
	Timezone             string
	GenerationWindowDays int
	MinAdvanceDays       int
	BillingMode          string
	InvoiceTiming        string
	AutoInvoice          bool
	Priority             string
	Rule                 domain.Rule
	LineItems            []LineItemInput
}

// PlanDetail is a plan with its rule and line item templates.
type PlanDetail struct {
	Plan      repository.Plan
	Rule      domain.Rule
	LineItems []repository.LineItem
}

// CreatePlan validates and persists a new plan with its rule and line items.
// New plans start active with no occurrences; generation materializes them.
func (s *Service) CreatePlan(ctx context.Context, input CreatePlanInput) (*PlanDetail, error) {
	if err := input.Rule.Validate(); err != nil {
		return nil, err
	}
	if _, err := time.LoadLocation(input.Timezone); err != nil {
		return nil, apperr.Validation(fmt.Sprintf("unknown timezone %q", input.Timezone))
	}
	if input.EndsAt != nil && !input.EndsAt.After(input.StartsAt) {
		return nil, apperr.Validation("endsAt must be after startsAt")
	}
	if input.GenerationWindowDays < 0 {
		return nil, apperr.Validation("generationWindowDays must not be negative")
	}
	if input.MinAdvanceDays < 0 {
		return nil, apperr.Validation("minAdvanceDays must not be negative")
	}

	plan := &repository.Plan{
		ID:                   uuid.New(),
		ClientID:             input.ClientID,
		Name:                 input.Name,
		Description:          input.Description,
		Address:              input.Address,
		Latitude:             input.Latitude,
		Longitude:            input.Longitude,
		StartsAt:             input.StartsAt,
		EndsAt:               input.EndsAt,
		Timezone:             input.Timezone,
		GenerationWindowDays: input.GenerationWindowDays,
		MinAdvanceDays:       input.MinAdvanceDays,
		BillingMode:          input.BillingMode,
		InvoiceTiming:        input.InvoiceTiming,
		AutoInvoice:          input.AutoInvoice,
		Priority:             input.Priority,
		Status:               string(domain.PlanActive),
	}

	items := make([]repository.LineItem, 0, len(input.LineItems))
	for _, li := range input.LineItems {
		items = append(items, repository.LineItem{
			ID:        uuid.New(),
			PlanID:    plan.ID,
			Name:      li.Name,
			Quantity:  li.Quantity,
			UnitPrice: li.UnitPrice,
			ItemType:  li.ItemType,
			SortOrder: li.SortOrder,
		})
	}

	if err := s.store.CreatePlan(ctx, plan, fromDomainRule(plan.ID, input.Rule), items); err != nil {
		return nil, err
	}

	s.log.Info("plan created", "plan_id", plan.ID.String(), "client_id", plan.ClientID.String())
	return &PlanDetail{Plan: *plan, Rule: input.Rule, LineItems: items}, nil
}

// GetPlan loads a plan with its rule and line item templates.
func (s *Service) GetPlan(ctx context.Context, id uuid.UUID) (*PlanDetail, error) {
	plan, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	ruleRow, err := s.store.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	rule, err := toDomainRule(ruleRow)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListLineItems(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PlanDetail{Plan: *plan, Rule: rule, LineItems: items}, nil
}

// ListPlans returns a filtered, paginated plan listing.
func (s *Service) ListPlans(ctx context.Context, params repository.ListPlansParams) (*repository.ListPlansResult, error) {
	return s.store.ListPlans(ctx, params)
}

// UpdateRule replaces a plan's recurrence rule. The change only affects
// future generation runs; occurrences that already exist keep their dates
// and resolved times.
func (s *Service) UpdateRule(ctx context.Context, planID uuid.UUID, rule domain.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	if domain.PlanStatus(plan.Status).Terminal() {
		return apperr.InvalidState(fmt.Sprintf("cannot edit the rule of a %s plan", plan.Status))
	}
	if err := s.store.UpdateRule(ctx, fromDomainRule(planID, rule)); err != nil {
		return err
	}
	s.log.Info("plan rule updated", "plan_id", planID.String())
	return nil
}

// PausePlan suspends generation for an active plan. Existing occurrences
// are untouched.
func (s *Service) PausePlan(ctx context.Context, id uuid.UUID) error {
	_, err := s.transition(ctx, id, domain.PlanPaused)
	return err
}

// ResumePlan reactivates a paused plan.
func (s *Service) ResumePlan(ctx context.Context, id uuid.UUID) error {
	_, err := s.transition(ctx, id, domain.PlanActive)
	return err
}

// CancelPlan terminally cancels a plan and cascades the cancellation to
// every occurrence still in the planned state. Generated, completed and
// skipped occurrences are untouched.
func (s *Service) CancelPlan(ctx context.Context, id uuid.UUID) error {
	plan, err := s.transition(ctx, id, domain.PlanCancelled)
	if err != nil {
		return err
	}
	cancelled, err := s.store.CancelPlanned(ctx, id, plan.StartsAt)
	if err != nil {
		return err
	}
	s.log.Info("plan cancelled", "plan_id", id.String(), "cancelled_occurrences", cancelled)
	s.bus.Publish(ctx, events.PlanCancelled{
		BaseEvent:           events.NewBaseEvent(),
		PlanID:              id,
		ClientID:            plan.ClientID,
		CancelledOccurrence: cancelled,
	})
	return nil
}

// CompletePlan terminally completes a plan. Like cancellation it retires
// any occurrences still in the planned state.
func (s *Service) CompletePlan(ctx context.Context, id uuid.UUID) error {
	plan, err := s.transition(ctx, id, domain.PlanCompleted)
	if err != nil {
		return err
	}
	cancelled, err := s.store.CancelPlanned(ctx, id, plan.StartsAt)
	if err != nil {
		return err
	}
	s.log.Info("plan completed", "plan_id", id.String(), "cancelled_occurrences", cancelled)
	s.bus.Publish(ctx, events.PlanCompleted{
		BaseEvent: events.NewBaseEvent(),
		PlanID:    id,
		ClientID:  plan.ClientID,
	})
	return nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to domain.PlanStatus) (*repository.Plan, error) {
	plan, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.CheckPlanTransition(domain.PlanStatus(plan.Status), to); err != nil {
		return nil, err
	}
	if err := s.store.TransitionPlan(ctx, id, plan.Status, string(to)); err != nil {
		return nil, err
	}
	plan.Status = string(to)
	return plan, nil
}
