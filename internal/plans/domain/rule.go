// Package domain holds the pure scheduling logic of the recurring plan
// engine: recurrence rules, rule expansion, constraint resolution and the
// plan/occurrence state machines. Nothing in this package touches storage
// or the system clock.
package domain

import (
	"fmt"
	"time"

	"dispatch_backend/platform/apperr"
)

// Frequency is the base recurrence period of a rule.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// ArrivalKind tags the arrival constraint variant.
type ArrivalKind string

const (
	ArrivalAnytime ArrivalKind = "anytime"
	ArrivalAt      ArrivalKind = "at"
	ArrivalBetween ArrivalKind = "between"
	ArrivalBy      ArrivalKind = "by"
)

// FinishKind tags the finish constraint variant.
type FinishKind string

const (
	FinishWhenDone FinishKind = "when_done"
	FinishAt       FinishKind = "at"
	FinishBy       FinishKind = "by"
)

// ArrivalConstraint is a closed variant describing how a technician's
// arrival is bounded on an occurrence date. Use the constructors; the Kind
// decides which time fields are meaningful.
type ArrivalConstraint struct {
	Kind        ArrivalKind
	At          *TimeOfDay // ArrivalAt
	WindowStart *TimeOfDay // ArrivalBetween
	WindowEnd   *TimeOfDay // ArrivalBetween
	Deadline    *TimeOfDay // ArrivalBy
}

// ArriveAnytime places no constraint on arrival.
func ArriveAnytime() ArrivalConstraint {
	return ArrivalConstraint{Kind: ArrivalAnytime}
}

// ArriveAt pins arrival to an exact clock time.
func ArriveAt(t TimeOfDay) ArrivalConstraint {
	return ArrivalConstraint{Kind: ArrivalAt, At: &t}
}

// ArriveBetween bounds arrival to a clock-time window.
func ArriveBetween(start, end TimeOfDay) ArrivalConstraint {
	return ArrivalConstraint{Kind: ArrivalBetween, WindowStart: &start, WindowEnd: &end}
}

// ArriveBy requires arrival no later than the deadline.
func ArriveBy(deadline TimeOfDay) ArrivalConstraint {
	return ArrivalConstraint{Kind: ArrivalBy, Deadline: &deadline}
}

// Validate checks that the variant carries its required time fields.
func (a ArrivalConstraint) Validate() error {
	switch a.Kind {
	case ArrivalAnytime:
		return nil
	case ArrivalAt:
		if a.At == nil {
			return apperr.Validation("arrival constraint 'at' requires arrivalTime")
		}
		return nil
	case ArrivalBetween:
		if a.WindowStart == nil || a.WindowEnd == nil {
			return apperr.Validation("arrival constraint 'between' requires windowStart and windowEnd")
		}
		if !a.WindowStart.Before(*a.WindowEnd) {
			return apperr.Validation("arrival windowStart must be before windowEnd")
		}
		return nil
	case ArrivalBy:
		if a.Deadline == nil {
			return apperr.Validation("arrival constraint 'by' requires deadline")
		}
		return nil
	default:
		return apperr.Validation(fmt.Sprintf("unknown arrival constraint kind %q", a.Kind))
	}
}

// FinishConstraint is the closed variant for how an occurrence's finish time
// is bounded. FinishAt and FinishBy produce identical timestamps; only the
// display semantics differ.
type FinishConstraint struct {
	Kind FinishKind
	At   *TimeOfDay // FinishAt / FinishBy
}

// FinishOpenEnded finishes whenever the work is done.
func FinishOpenEnded() FinishConstraint {
	return FinishConstraint{Kind: FinishWhenDone}
}

// FinishAtTime pins the finish to an exact clock time.
func FinishAtTime(t TimeOfDay) FinishConstraint {
	return FinishConstraint{Kind: FinishAt, At: &t}
}

// FinishByTime requires the work to be finished by the deadline.
func FinishByTime(t TimeOfDay) FinishConstraint {
	return FinishConstraint{Kind: FinishBy, At: &t}
}

// Validate checks that the variant carries its required time field.
func (f FinishConstraint) Validate() error {
	switch f.Kind {
	case FinishWhenDone:
		return nil
	case FinishAt, FinishBy:
		if f.At == nil {
			return apperr.Validation(fmt.Sprintf("finish constraint %q requires finishTime", f.Kind))
		}
		return nil
	default:
		return apperr.Validation(fmt.Sprintf("unknown finish constraint kind %q", f.Kind))
	}
}

// Rule is the recurrence definition attached 1:1 to a plan. The rule is
// versionless: editing it never rewrites occurrences that already exist.
type Rule struct {
	Frequency  Frequency
	Interval   int
	ByWeekday  []time.Weekday // required, non-empty iff weekly
	ByMonthDay int            // 1..31, required iff monthly or yearly
	ByMonth    time.Month     // 1..12, required iff yearly
	Arrival    ArrivalConstraint
	Finish     FinishConstraint
}

// Validate enforces the structural invariants of the rule. The service
// layer calls this on every stored or incoming rule.
func (r Rule) Validate() error {
	if r.Interval < 1 {
		return apperr.Validation("interval must be a positive integer")
	}

	switch r.Frequency {
	case FrequencyDaily:
		// no extra fields
	case FrequencyWeekly:
		if len(r.ByWeekday) == 0 {
			return apperr.Validation("weekly rule requires at least one weekday")
		}
		seen := map[time.Weekday]bool{}
		for _, wd := range r.ByWeekday {
			if wd < time.Sunday || wd > time.Saturday {
				return apperr.Validation("invalid weekday in byWeekday")
			}
			if seen[wd] {
				return apperr.Validation("duplicate weekday in byWeekday")
			}
			seen[wd] = true
		}
	case FrequencyMonthly:
		if r.ByMonthDay < 1 || r.ByMonthDay > 31 {
			return apperr.Validation("monthly rule requires byMonthDay between 1 and 31")
		}
	case FrequencyYearly:
		if r.ByMonth < time.January || r.ByMonth > time.December {
			return apperr.Validation("yearly rule requires byMonth between 1 and 12")
		}
		if r.ByMonthDay < 1 || r.ByMonthDay > 31 {
			return apperr.Validation("yearly rule requires byMonthDay between 1 and 31")
		}
	default:
		return apperr.Validation(fmt.Sprintf("unknown frequency %q", r.Frequency))
	}

	if err := r.Arrival.Validate(); err != nil {
		return err
	}
	return r.Finish.Validate()
}
