package service

import (
	"time"

	"github.com/google/uuid"

	"dispatch_backend/internal/plans/domain"
	"dispatch_backend/internal/plans/repository"
	"dispatch_backend/platform/apperr"
)

// toDomainRule rehydrates a stored rule row into the domain representation.
// Stored rows were validated on the way in, so a parse failure here means
// the row was corrupted outside the application.
func toDomainRule(r *repository.Rule) (domain.Rule, error) {
	rule := domain.Rule{
		Frequency: domain.Frequency(r.Frequency),
		Interval:  r.Interval,
	}
	for _, wd := range r.ByWeekday {
		rule.ByWeekday = append(rule.ByWeekday, time.Weekday(wd))
	}
	if r.ByMonthDay != nil {
		rule.ByMonthDay = *r.ByMonthDay
	}
	if r.ByMonth != nil {
		rule.ByMonth = time.Month(*r.ByMonth)
	}

	arrival, err := arrivalFromRow(r)
	if err != nil {
		return domain.Rule{}, err
	}
	finish, err := finishFromRow(r)
	if err != nil {
		return domain.Rule{}, err
	}
	rule.Arrival = arrival
	rule.Finish = finish

	if err := rule.Validate(); err != nil {
		return domain.Rule{}, apperr.Wrap(apperr.KindInternal, "stored recurrence rule is invalid", err)
	}
	return rule, nil
}

func arrivalFromRow(r *repository.Rule) (domain.ArrivalConstraint, error) {
	switch domain.ArrivalKind(r.ArrivalKind) {
	case domain.ArrivalAnytime:
		return domain.ArriveAnytime(), nil
	case domain.ArrivalAt:
		t, err := parseStoredTime(r.ArrivalTime)
		if err != nil {
			return domain.ArrivalConstraint{}, err
		}
		return domain.ArriveAt(t), nil
	case domain.ArrivalBetween:
		start, err := parseStoredTime(r.ArrivalWindowStart)
		if err != nil {
			return domain.ArrivalConstraint{}, err
		}
		end, err := parseStoredTime(r.ArrivalWindowEnd)
		if err != nil {
			return domain.ArrivalConstraint{}, err
		}
		return domain.ArriveBetween(start, end), nil
	case domain.ArrivalBy:
		t, err := parseStoredTime(r.ArrivalDeadline)
		if err != nil {
			return domain.ArrivalConstraint{}, err
		}
		return domain.ArriveBy(t), nil
	default:
		return domain.ArrivalConstraint{}, apperr.Internal("stored rule has unknown arrival kind")
	}
}

func finishFromRow(r *repository.Rule) (domain.FinishConstraint, error) {
	switch domain.FinishKind(r.FinishKind) {
	case domain.FinishWhenDone:
		return domain.FinishOpenEnded(), nil
	case domain.FinishAt:
		t, err := parseStoredTime(r.FinishTime)
		if err != nil {
			return domain.FinishConstraint{}, err
		}
		return domain.FinishAtTime(t), nil
	case domain.FinishBy:
		t, err := parseStoredTime(r.FinishTime)
		if err != nil {
			return domain.FinishConstraint{}, err
		}
		return domain.FinishByTime(t), nil
	default:
		return domain.FinishConstraint{}, apperr.Internal("stored rule has unknown finish kind")
	}
}

func parseStoredTime(s *string) (domain.TimeOfDay, error) {
	if s == nil {
		return domain.TimeOfDay{}, apperr.Internal("stored rule is missing a required time field")
	}
	t, err := domain.ParseTimeOfDay(*s)
	if err != nil {
		return domain.TimeOfDay{}, apperr.Wrap(apperr.KindInternal, "stored rule has a malformed time field", err)
	}
	return t, nil
}

// fromDomainRule flattens a validated domain rule into its storage row.
func fromDomainRule(planID uuid.UUID, r domain.Rule) *repository.Rule {
	row := &repository.Rule{
		PlanID:      planID,
		Frequency:   string(r.Frequency),
		Interval:    r.Interval,
		ArrivalKind: string(r.Arrival.Kind),
		FinishKind:  string(r.Finish.Kind),
	}
	for _, wd := range r.ByWeekday {
		row.ByWeekday = append(row.ByWeekday, int32(wd))
	}
	if r.Frequency == domain.FrequencyMonthly || r.Frequency == domain.FrequencyYearly {
		day := r.ByMonthDay
		row.ByMonthDay = &day
	}
	if r.Frequency == domain.FrequencyYearly {
		month := int(r.ByMonth)
		row.ByMonth = &month
	}

	switch r.Arrival.Kind {
	case domain.ArrivalAt:
		row.ArrivalTime = timeString(r.Arrival.At)
	case domain.ArrivalBetween:
		row.ArrivalWindowStart = timeString(r.Arrival.WindowStart)
		row.ArrivalWindowEnd = timeString(r.Arrival.WindowEnd)
	case domain.ArrivalBy:
		row.ArrivalDeadline = timeString(r.Arrival.Deadline)
	}
	if r.Finish.Kind == domain.FinishAt || r.Finish.Kind == domain.FinishBy {
		row.FinishTime = timeString(r.Finish.At)
	}
	return row
}

func timeString(t *domain.TimeOfDay) *string {
	if t == nil {
		return nil
	}
	s := t.String()
	return &s
}
