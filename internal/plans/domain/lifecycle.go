package domain

import (
	"fmt"
	"time"

	"dispatch_backend/platform/apperr"
)

// PlanStatus is the top-level state of a recurring plan.
type PlanStatus string

const (
	PlanActive    PlanStatus = "active"
	PlanPaused    PlanStatus = "paused"
	PlanCompleted PlanStatus = "completed"
	PlanCancelled PlanStatus = "cancelled"
)

// Terminal reports whether no further transitions are accepted.
func (s PlanStatus) Terminal() bool {
	return s == PlanCompleted || s == PlanCancelled
}

// CheckPlanTransition validates a plan state transition. Allowed moves:
// active↔paused, and active/paused → completed/cancelled. Terminal states
// accept nothing.
func CheckPlanTransition(from, to PlanStatus) error {
	if from.Terminal() {
		return apperr.InvalidState(fmt.Sprintf("plan is %s; no further transitions allowed", from))
	}
	switch to {
	case PlanActive:
		if from != PlanPaused {
			return apperr.InvalidState(fmt.Sprintf("cannot resume a plan that is %s", from))
		}
	case PlanPaused:
		if from != PlanActive {
			return apperr.InvalidState(fmt.Sprintf("cannot pause a plan that is %s", from))
		}
	case PlanCompleted, PlanCancelled:
		// any non-terminal state may finish or cancel
	default:
		return apperr.InvalidState(fmt.Sprintf("unknown plan status %q", to))
	}
	return nil
}

// OccurrenceStatus is the lifecycle state of a single occurrence.
type OccurrenceStatus string

const (
	OccurrencePlanned   OccurrenceStatus = "planned"
	OccurrenceGenerated OccurrenceStatus = "generated"
	OccurrenceCompleted OccurrenceStatus = "completed"
	OccurrenceSkipped   OccurrenceStatus = "skipped"
	OccurrenceCancelled OccurrenceStatus = "cancelled"
)

// RequirePlanned rejects any occurrence mutation whose precondition is the
// planned state, naming the blocking status.
func RequirePlanned(current OccurrenceStatus, op string) error {
	if current != OccurrencePlanned {
		return apperr.InvalidState(fmt.Sprintf("cannot %s an occurrence that is %s", op, current))
	}
	return nil
}

// GenerationWindow computes the date span a generation run may materialize,
// honoring the sliding window, the advance-notice floor, and the plan's end
// date. today and lastGeneratedThrough are midnight-UTC dates;
// lastGeneratedThrough is the zero time for plans that never generated.
// ok is false when the window is empty.
func GenerationWindow(today, lastGeneratedThrough time.Time, daysAhead, windowDays, minAdvanceDays int, endsAt *time.Time) (start, end time.Time, ok bool) {
	start = today
	if !lastGeneratedThrough.IsZero() {
		if next := lastGeneratedThrough.AddDate(0, 0, 1); next.After(start) {
			start = next
		}
	}
	// Advance-notice floor: dates inside [today, today+minAdvanceDays) are
	// never newly generated.
	if minAdvanceDays > 0 {
		if floor := today.AddDate(0, 0, minAdvanceDays); floor.After(start) {
			start = floor
		}
	}

	ahead := daysAhead
	if windowDays > 0 && windowDays < ahead {
		ahead = windowDays
	}
	end = today.AddDate(0, 0, ahead)
	if endsAt != nil {
		if lastDay := endsAt.AddDate(0, 0, -1); lastDay.Before(end) {
			end = lastDay
		}
	}

	return start, end, !start.After(end)
}
