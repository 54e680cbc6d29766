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
)

// maxDaysAhead caps a single generation run regardless of what the caller
// asks for.
const maxDaysAhead = 365

// GenerationResult summarizes one generation run for a plan.
type GenerationResult struct {
	PlanID          uuid.UUID
	CreatedIDs      []uuid.UUID
	SkippedExisting int
	From            time.Time
	Through         time.Time
}

// Generate materializes occurrences for one active plan: it expands the
// recurrence rule over the generation window, resolves the arrival and
// finish constraints per date, and persists the batch together with the
// watermark advance in a single transaction. Re-running with the same
// inputs creates nothing new. daysAhead <= 0 selects the configured
// default horizon.
func (s *Service) Generate(ctx context.Context, planID uuid.UUID, daysAhead int) (*GenerationResult, error) {
	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if domain.PlanStatus(plan.Status) != domain.PlanActive {
		return nil, apperr.InvalidState(fmt.Sprintf("cannot generate occurrences for a %s plan", plan.Status))
	}

	ruleRow, err := s.store.GetRule(ctx, planID)
	if err != nil {
		return nil, err
	}
	rule, err := toDomainRule(ruleRow)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(plan.Timezone)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, fmt.Sprintf("plan has unknown timezone %q", plan.Timezone), err)
	}

	if daysAhead <= 0 {
		daysAhead = s.daysAhead
	}
	if daysAhead > maxDaysAhead {
		daysAhead = maxDaysAhead
	}

	today := domain.DateOf(s.clock.Now(), loc)
	var lastGenerated time.Time
	if plan.LastGeneratedThrough != nil {
		lastGenerated = *plan.LastGeneratedThrough
	}

	result := &GenerationResult{PlanID: planID}
	start, end, ok := domain.GenerationWindow(today, lastGenerated, daysAhead, plan.GenerationWindowDays, plan.MinAdvanceDays, plan.EndsAt)
	if !ok {
		s.log.GenerationResult(planID.String(), 0, 0)
		return result, nil
	}
	result.From = start
	result.Through = end

	dates := domain.Expand(rule, plan.StartsAt, plan.EndsAt, start, end)

	existing, err := s.store.ExistingDates(ctx, planID, start, end)
	if err != nil {
		return nil, err
	}

	occs := make([]repository.Occurrence, 0, len(dates))
	for _, date := range dates {
		if existing[date] {
			result.SkippedExisting++
			continue
		}
		resolved, err := domain.ResolveConstraints(date, loc, rule.Arrival, rule.Finish, s.defaults)
		if err != nil {
			return nil, err
		}
		occs = append(occs, repository.Occurrence{
			ID:                 uuid.New(),
			PlanID:             planID,
			OccurrenceDate:     date,
			StartAt:            resolved.StartAt,
			EndAt:              resolved.EndAt,
			ArrivalWindowStart: resolved.ArrivalWindowStart,
			ArrivalWindowEnd:   resolved.ArrivalWindowEnd,
		})
	}

	// Persist even when the batch is empty so the watermark still advances
	// and the next run starts past this window.
	created, err := s.store.InsertBatch(ctx, planID, occs, end)
	if err != nil {
		return nil, err
	}
	result.CreatedIDs = created
	// Rows the uniqueness constraint dropped raced with another writer.
	result.SkippedExisting += len(occs) - len(created)

	s.log.GenerationResult(planID.String(), len(created), result.SkippedExisting)
	if len(created) > 0 {
		s.bus.Publish(ctx, events.OccurrencesGenerated{
			BaseEvent:       events.NewBaseEvent(),
			PlanID:          planID,
			OccurrenceIDs:   created,
			SkippedExisting: result.SkippedExisting,
			Through:         end,
		})
	}
	return result, nil
}

// ActivePlanIDs lists the plans the sweeper should fan out over.
func (s *Service) ActivePlanIDs(ctx context.Context) ([]uuid.UUID, error) {
	return s.store.ListActivePlanIDs(ctx)
}
