// Package service implements job visit management, including the
// materialization of visits from recurring plan occurrences.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"dispatch_backend/internal/events"
	plansvc "dispatch_backend/internal/plans/service"
	"dispatch_backend/internal/visits/repository"
	"dispatch_backend/platform/logger"
)

// Service manages job visits.
type Service struct {
	store repository.Store
	bus   events.Bus
	log   *logger.Logger
}

func New(store repository.Store, bus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, bus: bus, log: log}
}

// Service satisfies the plan engine's visit collaborator.
var _ plansvc.VisitCreator = (*Service)(nil)

// CreateFromOccurrence materializes a visit from a planned occurrence,
// copying the plan's line item templates and billing hints. The published
// VisitGenerated event carries the billing hints for the invoicing
// collaborator; this module never computes invoices itself.
func (s *Service) CreateFromOccurrence(ctx context.Context, spec plansvc.VisitSpec) (uuid.UUID, error) {
	visit := &repository.Visit{
		ID:                 uuid.New(),
		ClientID:           spec.ClientID,
		PlanID:             &spec.PlanID,
		OccurrenceID:       &spec.OccurrenceID,
		Name:               spec.Name,
		Address:            spec.Address,
		Latitude:           spec.Latitude,
		Longitude:          spec.Longitude,
		StartAt:            spec.StartAt,
		EndAt:              spec.EndAt,
		ArrivalWindowStart: spec.ArrivalWindowStart,
		ArrivalWindowEnd:   spec.ArrivalWindowEnd,
		Priority:           spec.Priority,
		Status:             "scheduled",
		BillingMode:        spec.BillingMode,
		InvoiceTiming:      spec.InvoiceTiming,
		AutoInvoice:        spec.AutoInvoice,
	}

	items := make([]repository.LineItem, 0, len(spec.LineItems))
	for _, li := range spec.LineItems {
		items = append(items, repository.LineItem{
			ID:        uuid.New(),
			VisitID:   visit.ID,
			Name:      li.Name,
			Quantity:  li.Quantity,
			UnitPrice: li.UnitPrice,
			ItemType:  li.ItemType,
			SortOrder: li.SortOrder,
		})
	}

	if err := s.store.CreateVisit(ctx, visit, items); err != nil {
		return uuid.Nil, err
	}

	s.log.Info("visit created from occurrence",
		"visit_id", visit.ID.String(),
		"occurrence_id", spec.OccurrenceID.String(),
		"plan_id", spec.PlanID.String())
	s.bus.Publish(ctx, events.VisitGenerated{
		BaseEvent:     events.NewBaseEvent(),
		VisitID:       visit.ID,
		OccurrenceID:  spec.OccurrenceID,
		PlanID:        spec.PlanID,
		ClientID:      spec.ClientID,
		BillingMode:   spec.BillingMode,
		InvoiceTiming: spec.InvoiceTiming,
		AutoInvoice:   spec.AutoInvoice,
		StartAt:       spec.StartAt,
		EndAt:         spec.EndAt,
	})
	return visit.ID, nil
}

// VisitDetail is a visit with its line items.
type VisitDetail struct {
	Visit     repository.Visit
	LineItems []repository.LineItem
}

// GetVisit loads a visit with its line items.
func (s *Service) GetVisit(ctx context.Context, id uuid.UUID) (*VisitDetail, error) {
	visit, err := s.store.GetVisit(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListLineItems(ctx, id)
	if err != nil {
		return nil, err
	}
	return &VisitDetail{Visit: *visit, LineItems: items}, nil
}

// ListByPlan returns every visit generated from a plan, ordered by start.
func (s *Service) ListByPlan(ctx context.Context, planID uuid.UUID) ([]repository.Visit, error) {
	return s.store.ListByPlan(ctx, planID)
}

// CompleteVisit marks a scheduled visit as completed and announces it so
// the plan engine can retire the linked occurrence.
func (s *Service) CompleteVisit(ctx context.Context, id uuid.UUID) (*repository.Visit, error) {
	visit, err := s.store.CompleteVisit(ctx, id, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.log.Info("visit completed", "visit_id", id.String())
	s.bus.Publish(ctx, events.VisitCompleted{
		BaseEvent:    events.NewBaseEvent(),
		VisitID:      visit.ID,
		PlanID:       visit.PlanID,
		OccurrenceID: visit.OccurrenceID,
		ClientID:     visit.ClientID,
	})
	return visit, nil
}
