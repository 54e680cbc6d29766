package domain

import (
	"testing"
	"time"
)

func dates(ds ...time.Time) []time.Time { return ds }

func assertDates(t *testing.T, got, want []time.Time) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d dates, want %d: got=%v want=%v", len(got), len(want), got, want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("date[%d] = %s, want %s", i, got[i].Format("2006-01-02"), want[i].Format("2006-01-02"))
		}
	}
}

func TestExpandDaily(t *testing.T) {
	anchor := Date(2025, time.March, 1)
	rule := Rule{Frequency: FrequencyDaily, Interval: 3, Arrival: ArriveAnytime(), Finish: FinishOpenEnded()}

	got := Expand(rule, anchor, nil, Date(2025, time.March, 1), Date(2025, time.March, 10))
	assertDates(t, got, dates(
		Date(2025, time.March, 1),
		Date(2025, time.March, 4),
		Date(2025, time.March, 7),
		Date(2025, time.March, 10),
	))
}

func TestExpandDailyWindowClipsBeforeAnchor(t *testing.T) {
	anchor := Date(2025, time.March, 5)
	rule := Rule{Frequency: FrequencyDaily, Interval: 1}

	got := Expand(rule, anchor, nil, Date(2025, time.March, 1), Date(2025, time.March, 7))
	assertDates(t, got, dates(
		Date(2025, time.March, 5),
		Date(2025, time.March, 6),
		Date(2025, time.March, 7),
	))
}

func TestExpandRespectsExclusiveEndsAt(t *testing.T) {
	anchor := Date(2025, time.March, 1)
	endsAt := Date(2025, time.March, 5)
	rule := Rule{Frequency: FrequencyDaily, Interval: 1}

	got := Expand(rule, anchor, &endsAt, Date(2025, time.March, 1), Date(2025, time.March, 31))
	// March 5 itself is excluded: ends_at is an exclusive upper bound.
	assertDates(t, got, dates(
		Date(2025, time.March, 1),
		Date(2025, time.March, 2),
		Date(2025, time.March, 3),
		Date(2025, time.March, 4),
	))
}

func TestExpandWeeklyEmitsEachMatchingWeekday(t *testing.T) {
	// 2025-03-03 is a Monday.
	anchor := Date(2025, time.March, 3)
	rule := Rule{
		Frequency: FrequencyWeekly,
		Interval:  1,
		ByWeekday: []time.Weekday{time.Monday, time.Wednesday, time.Friday},
	}

	got := Expand(rule, anchor, nil, Date(2025, time.March, 3), Date(2025, time.March, 16))
	assertDates(t, got, dates(
		Date(2025, time.March, 3),
		Date(2025, time.March, 5),
		Date(2025, time.March, 7),
		Date(2025, time.March, 10),
		Date(2025, time.March, 12),
		Date(2025, time.March, 14),
	))
}

func TestExpandWeeklyCompleteness(t *testing.T) {
	// Every 7-day window in range must contain exactly 3 occurrences for a
	// MO/WE/FR interval-1 rule.
	anchor := Date(2025, time.March, 3)
	rule := Rule{
		Frequency: FrequencyWeekly,
		Interval:  1,
		ByWeekday: []time.Weekday{time.Monday, time.Wednesday, time.Friday},
	}

	windowStart := Date(2025, time.March, 3)
	windowEnd := Date(2025, time.April, 27)
	got := Expand(rule, anchor, nil, windowStart, windowEnd)

	for ws := windowStart; !ws.AddDate(0, 0, 6).After(windowEnd); ws = ws.AddDate(0, 0, 1) {
		we := ws.AddDate(0, 0, 6)
		count := 0
		for _, d := range got {
			if !d.Before(ws) && !d.After(we) {
				count++
			}
		}
		if count != 3 {
			t.Errorf("window %s..%s contains %d occurrences, want 3", ws.Format("2006-01-02"), we.Format("2006-01-02"), count)
		}
	}
}

func TestExpandWeeklyInterval(t *testing.T) {
	// Biweekly Tuesdays, anchored mid-week: the anchor's own week counts as
	// week zero.
	anchor := Date(2025, time.March, 4) // Tuesday
	rule := Rule{
		Frequency: FrequencyWeekly,
		Interval:  2,
		ByWeekday: []time.Weekday{time.Tuesday},
	}

	got := Expand(rule, anchor, nil, Date(2025, time.March, 4), Date(2025, time.April, 1))
	assertDates(t, got, dates(
		Date(2025, time.March, 4),
		Date(2025, time.March, 18),
		Date(2025, time.April, 1),
	))
}

func TestExpandMonthlySkipsNonexistentDay(t *testing.T) {
	anchor := Date(2025, time.January, 31)
	rule := Rule{Frequency: FrequencyMonthly, Interval: 1, ByMonthDay: 31}

	got := Expand(rule, anchor, nil, Date(2025, time.January, 1), Date(2025, time.June, 30))
	// February (28 days), April and June (30 days) produce nothing.
	assertDates(t, got, dates(
		Date(2025, time.January, 31),
		Date(2025, time.March, 31),
		Date(2025, time.May, 31),
	))
}

func TestExpandMonthlyInterval(t *testing.T) {
	anchor := Date(2025, time.January, 15)
	rule := Rule{Frequency: FrequencyMonthly, Interval: 3, ByMonthDay: 15}

	got := Expand(rule, anchor, nil, Date(2025, time.January, 1), Date(2025, time.December, 31))
	assertDates(t, got, dates(
		Date(2025, time.January, 15),
		Date(2025, time.April, 15),
		Date(2025, time.July, 15),
		Date(2025, time.October, 15),
	))
}

func TestExpandYearly(t *testing.T) {
	anchor := Date(2024, time.February, 29)
	rule := Rule{Frequency: FrequencyYearly, Interval: 1, ByMonth: time.February, ByMonthDay: 29}

	got := Expand(rule, anchor, nil, Date(2024, time.January, 1), Date(2028, time.December, 31))
	// Non-leap years produce nothing; no clamping to Feb 28.
	assertDates(t, got, dates(
		Date(2024, time.February, 29),
		Date(2028, time.February, 29),
	))
}

func TestExpandNeverEmitsBeforeAnchor(t *testing.T) {
	anchor := Date(2025, time.June, 15)
	rule := Rule{Frequency: FrequencyMonthly, Interval: 1, ByMonthDay: 15}

	got := Expand(rule, anchor, nil, Date(2025, time.January, 1), Date(2025, time.August, 31))
	assertDates(t, got, dates(
		Date(2025, time.June, 15),
		Date(2025, time.July, 15),
		Date(2025, time.August, 15),
	))
}

func TestExpandEmptyWindow(t *testing.T) {
	anchor := Date(2025, time.March, 1)
	rule := Rule{Frequency: FrequencyDaily, Interval: 1}

	got := Expand(rule, anchor, nil, Date(2025, time.March, 10), Date(2025, time.March, 9))
	if len(got) != 0 {
		t.Errorf("expected no dates for inverted window, got %v", got)
	}
}
