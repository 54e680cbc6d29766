package domain

import "time"

// ResolveDefaults carries the configurable fallbacks the resolver applies
// when a constraint leaves a timestamp open. The zero value is not usable;
// callers populate it from configuration.
type ResolveDefaults struct {
	// AnytimeAnchor is the start-of-business clock time used for
	// unconstrained arrivals.
	AnytimeAnchor TimeOfDay
	// VisitDuration is the assumed length of a visit when the finish
	// constraint is open-ended.
	VisitDuration time.Duration
	// ArriveByLead is how far before an arrive-by deadline the visit is
	// assumed to start.
	ArriveByLead time.Duration
}

// ResolvedTimes are the concrete instants derived for one occurrence date.
type ResolvedTimes struct {
	StartAt            time.Time
	EndAt              time.Time
	ArrivalWindowStart *time.Time
	ArrivalWindowEnd   *time.Time
}

// ResolveConstraints turns a candidate date plus the rule's arrival/finish
// constraints into concrete start/end timestamps in the plan's timezone.
// date must be a midnight-UTC calendar date; all returned instants are
// absolute. Constraints are validated again before resolution.
func ResolveConstraints(date time.Time, loc *time.Location, arrival ArrivalConstraint, finish FinishConstraint, defaults ResolveDefaults) (ResolvedTimes, error) {
	if err := arrival.Validate(); err != nil {
		return ResolvedTimes{}, err
	}
	if err := finish.Validate(); err != nil {
		return ResolvedTimes{}, err
	}

	var resolved ResolvedTimes

	switch arrival.Kind {
	case ArrivalAnytime:
		resolved.StartAt = defaults.AnytimeAnchor.On(date, loc)

	case ArrivalAt:
		resolved.StartAt = arrival.At.On(date, loc)

	case ArrivalBetween:
		windowStart := arrival.WindowStart.On(date, loc)
		windowEnd := arrival.WindowEnd.On(date, loc)
		resolved.StartAt = windowStart
		resolved.ArrivalWindowStart = &windowStart
		resolved.ArrivalWindowEnd = &windowEnd

	case ArrivalBy:
		deadline := arrival.Deadline.On(date, loc)
		start := deadline.Add(-defaults.ArriveByLead)
		// The assumed start never crosses back past midnight of the
		// occurrence date.
		if midnight := (TimeOfDay{}).On(date, loc); start.Before(midnight) {
			start = midnight
		}
		resolved.StartAt = start
		resolved.ArrivalWindowEnd = &deadline
	}

	switch finish.Kind {
	case FinishWhenDone:
		resolved.EndAt = resolved.StartAt.Add(defaults.VisitDuration)
	case FinishAt, FinishBy:
		// finish-by resolves to the same timestamp as finish-at; the
		// distinction is purely presentational.
		resolved.EndAt = finish.At.On(date, loc)
	}

	return resolved, nil
}
