package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"dispatch_backend/internal/plans/domain"
	"dispatch_backend/internal/plans/repository"
	"dispatch_backend/platform/apperr"
)

// GetOccurrence loads a single occurrence.
func (s *Service) GetOccurrence(ctx context.Context, id uuid.UUID) (*repository.Occurrence, error) {
	return s.store.GetOccurrence(ctx, id)
}

// ListOccurrences returns a plan's occurrences, filtered and paginated.
func (s *Service) ListOccurrences(ctx context.Context, params repository.ListOccurrencesParams) (*repository.ListOccurrencesResult, error) {
	if _, err := s.store.GetPlan(ctx, params.PlanID); err != nil {
		return nil, err
	}
	return s.store.ListOccurrences(ctx, params)
}

// SkipOccurrence retires a planned occurrence with a reason. Skipped
// occurrences free their date for rescheduling and are never regenerated.
func (s *Service) SkipOccurrence(ctx context.Context, id uuid.UUID, reason string) (*repository.Occurrence, error) {
	occ, err := s.store.MarkSkipped(ctx, id, reason)
	if err != nil {
		return nil, err
	}
	s.log.Info("occurrence skipped", "occurrence_id", id.String(), "plan_id", occ.PlanID.String())
	return occ, nil
}

// RescheduleInput moves a planned occurrence to a new date. Date is a
// midnight-UTC calendar date; omitted times carry the occurrence's current
// wall-clock times onto the new date.
type RescheduleInput struct {
	Date      time.Time
	StartTime *domain.TimeOfDay
	EndTime   *domain.TimeOfDay
}

// RescheduleOccurrence moves a planned occurrence. The target date must be
// free of any active occurrence for the plan and must fall inside the
// plan's date bounds. The occurrence keeps its planned status; the resolved
// arrival window does not carry over.
func (s *Service) RescheduleOccurrence(ctx context.Context, id uuid.UUID, input RescheduleInput) (*repository.Occurrence, error) {
	occ, err := s.store.GetOccurrence(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := domain.RequirePlanned(domain.OccurrenceStatus(occ.Status), "reschedule"); err != nil {
		return nil, err
	}

	plan, err := s.store.GetPlan(ctx, occ.PlanID)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(plan.Timezone)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "plan has unknown timezone", err)
	}

	if input.Date.Before(plan.StartsAt) {
		return nil, apperr.Validation("new date is before the plan starts")
	}
	if plan.EndsAt != nil && !input.Date.Before(*plan.EndsAt) {
		return nil, apperr.Validation("new date is on or after the plan ends")
	}

	taken, err := s.store.ActiveDateTaken(ctx, occ.PlanID, input.Date, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.Conflict("an occurrence already exists on that date")
	}

	startAt := reanchor(occ.StartAt, input.StartTime, input.Date, loc)
	endAt := reanchor(occ.EndAt, input.EndTime, input.Date, loc)
	if !endAt.After(startAt) {
		return nil, apperr.Validation("end time must be after start time")
	}

	updated, err := s.store.Reschedule(ctx, id, input.Date, startAt, endAt)
	if err != nil {
		return nil, err
	}
	s.log.Info("occurrence rescheduled",
		"occurrence_id", id.String(),
		"plan_id", occ.PlanID.String(),
		"date", input.Date.Format("2006-01-02"))
	return updated, nil
}

// reanchor places either the override clock time or current's wall-clock
// time in loc onto the new date.
func reanchor(current time.Time, override *domain.TimeOfDay, date time.Time, loc *time.Location) time.Time {
	tod := domain.TimeOfDay{Hour: current.In(loc).Hour(), Minute: current.In(loc).Minute()}
	if override != nil {
		tod = *override
	}
	return tod.On(date, loc)
}

// GenerateVisit promotes a planned occurrence into a concrete job visit,
// copying the plan's line item templates and billing hints onto it. The
// visit is created first; only then does the occurrence flip to generated.
// If the visits collaborator fails, the occurrence stays planned and the
// returned error is retryable.
func (s *Service) GenerateVisit(ctx context.Context, id uuid.UUID) (*repository.Occurrence, uuid.UUID, error) {
	occ, err := s.store.GetOccurrence(ctx, id)
	if err != nil {
		return nil, uuid.Nil, err
	}
	if err := domain.RequirePlanned(domain.OccurrenceStatus(occ.Status), "generate a visit from"); err != nil {
		return nil, uuid.Nil, err
	}

	plan, err := s.store.GetPlan(ctx, occ.PlanID)
	if err != nil {
		return nil, uuid.Nil, err
	}
	items, err := s.store.ListLineItems(ctx, occ.PlanID)
	if err != nil {
		return nil, uuid.Nil, err
	}

	visitID, err := s.visits.CreateFromOccurrence(ctx, VisitSpec{
		OccurrenceID:       occ.ID,
		PlanID:             plan.ID,
		ClientID:           plan.ClientID,
		Name:               plan.Name,
		Address:            plan.Address,
		Latitude:           plan.Latitude,
		Longitude:          plan.Longitude,
		StartAt:            occ.StartAt,
		EndAt:              occ.EndAt,
		ArrivalWindowStart: occ.ArrivalWindowStart,
		ArrivalWindowEnd:   occ.ArrivalWindowEnd,
		Priority:           plan.Priority,
		BillingMode:        plan.BillingMode,
		InvoiceTiming:      plan.InvoiceTiming,
		AutoInvoice:        plan.AutoInvoice,
		LineItems:          items,
	})
	if err != nil {
		return nil, uuid.Nil, apperr.External("visit creation failed", err)
	}

	updated, err := s.store.MarkGenerated(ctx, id, visitID)
	if err != nil {
		// The visit exists but the occurrence did not flip; surface the
		// link so an operator can reconcile.
		s.log.Error("visit created but occurrence not marked generated",
			"occurrence_id", id.String(), "visit_id", visitID.String(), "error", err.Error())
		return nil, uuid.Nil, err
	}

	s.log.Info("visit generated from occurrence",
		"occurrence_id", id.String(), "visit_id", visitID.String(), "plan_id", plan.ID.String())
	return updated, visitID, nil
}

// BulkVisitResult is the per-occurrence outcome of a bulk generation call.
type BulkVisitResult struct {
	OccurrenceID uuid.UUID
	VisitID      *uuid.UUID
	Error        string
}

// BulkGenerateVisits promotes a set of planned occurrences independently.
// Failures never abort the batch; each entry reports its own outcome.
func (s *Service) BulkGenerateVisits(ctx context.Context, ids []uuid.UUID) []BulkVisitResult {
	results := make([]BulkVisitResult, 0, len(ids))
	for _, id := range ids {
		res := BulkVisitResult{OccurrenceID: id}
		if _, visitID, err := s.GenerateVisit(ctx, id); err != nil {
			res.Error = err.Error()
		} else {
			res.VisitID = &visitID
		}
		results = append(results, res)
	}
	return results
}

// BulkOpResult is the per-occurrence outcome of a bulk skip or reschedule.
type BulkOpResult struct {
	OccurrenceID uuid.UUID
	Error        string
}

// BulkSkip retires a set of planned occurrences under one reason. Failures
// never abort the batch; each entry reports its own outcome.
func (s *Service) BulkSkip(ctx context.Context, ids []uuid.UUID, reason string) []BulkOpResult {
	results := make([]BulkOpResult, 0, len(ids))
	for _, id := range ids {
		res := BulkOpResult{OccurrenceID: id}
		if _, err := s.SkipOccurrence(ctx, id, reason); err != nil {
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results
}

// BulkReschedule shifts a set of planned occurrences by a day offset,
// keeping each occurrence's wall-clock times. Entries are applied in order;
// a shift onto a date still held by a later entry fails with a conflict.
func (s *Service) BulkReschedule(ctx context.Context, ids []uuid.UUID, offsetDays int) []BulkOpResult {
	results := make([]BulkOpResult, 0, len(ids))
	for _, id := range ids {
		res := BulkOpResult{OccurrenceID: id}
		if err := s.rescheduleByOffset(ctx, id, offsetDays); err != nil {
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results
}

func (s *Service) rescheduleByOffset(ctx context.Context, id uuid.UUID, offsetDays int) error {
	occ, err := s.store.GetOccurrence(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.RescheduleOccurrence(ctx, id, RescheduleInput{
		Date: occ.OccurrenceDate.AddDate(0, 0, offsetDays),
	})
	return err
}

// CompleteOccurrenceForVisit marks the occurrence linked to a completed
// visit as completed. Unlinked visits are a no-op.
func (s *Service) CompleteOccurrenceForVisit(ctx context.Context, visitID uuid.UUID) error {
	return s.store.MarkCompletedByVisit(ctx, visitID)
}
