package domain

import "time"

// Expand turns a rule into the ordered, deduplicated sequence of candidate
// calendar dates (midnight UTC, no time-of-day) that fall inside
// [windowStart, windowEnd]. The anchor is the plan's start date; no date is
// emitted before it, and endsAt (exclusive) caps the sequence when set.
//
// Expansion walks the window day by day and tests each date against the
// rule, so monthly day-31 rules naturally skip 30-day months instead of
// clamping: February simply never matches day 31.
func Expand(rule Rule, anchor time.Time, endsAt *time.Time, windowStart, windowEnd time.Time) []time.Time {
	lower := windowStart
	if anchor.After(lower) {
		lower = anchor
	}
	upper := windowEnd
	if endsAt != nil {
		// ends_at is an exclusive bound on the plan's life.
		lastDay := endsAt.AddDate(0, 0, -1)
		if lastDay.Before(upper) {
			upper = lastDay
		}
	}

	var dates []time.Time
	for d := lower; !d.After(upper); d = d.AddDate(0, 0, 1) {
		if ruleMatches(rule, anchor, d) {
			dates = append(dates, d)
		}
	}
	return dates
}

// ruleMatches reports whether the rule produces an occurrence on date,
// given the plan's anchor date. Both arguments are midnight-UTC dates.
func ruleMatches(rule Rule, anchor, date time.Time) bool {
	switch rule.Frequency {
	case FrequencyDaily:
		return daysBetween(anchor, date)%rule.Interval == 0

	case FrequencyWeekly:
		if !weekdayIncluded(rule.ByWeekday, date.Weekday()) {
			return false
		}
		weeks := daysBetween(weekStart(anchor), weekStart(date)) / 7
		return weeks%rule.Interval == 0

	case FrequencyMonthly:
		if date.Day() != rule.ByMonthDay {
			return false
		}
		return monthsBetween(anchor, date)%rule.Interval == 0

	case FrequencyYearly:
		if date.Month() != rule.ByMonth || date.Day() != rule.ByMonthDay {
			return false
		}
		return (date.Year()-anchor.Year())%rule.Interval == 0

	default:
		return false
	}
}

// weekStart returns the Monday of the week containing date.
func weekStart(date time.Time) time.Time {
	offset := int(date.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	return date.AddDate(0, 0, -offset)
}

func weekdayIncluded(set []time.Weekday, wd time.Weekday) bool {
	for _, w := range set {
		if w == wd {
			return true
		}
	}
	return false
}

// daysBetween counts whole days from a to b. Both must be midnight-UTC
// dates, which makes the division exact.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}
