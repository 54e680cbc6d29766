package domain

import (
	"testing"
	"time"
)

func chicago(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func testDefaults() ResolveDefaults {
	return ResolveDefaults{
		AnytimeAnchor: TimeOfDay{Hour: 9},
		VisitDuration: 2 * time.Hour,
		ArriveByLead:  4 * time.Hour,
	}
}

func mustTime(t *testing.T, s string) TimeOfDay {
	t.Helper()
	tod, err := ParseTimeOfDay(s)
	if err != nil {
		t.Fatalf("parse time of day %q: %v", s, err)
	}
	return tod
}

func TestResolveBetweenWindowWithOpenFinish(t *testing.T) {
	loc := chicago(t)
	date := Date(2025, time.March, 10)

	got, err := ResolveConstraints(date,
		loc,
		ArriveBetween(mustTime(t, "09:00"), mustTime(t, "11:00")),
		FinishOpenEnded(),
		testDefaults(),
	)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// 2025-03-10 is after the US DST transition, so local time is CDT (-5).
	wantStart := time.Date(2025, time.March, 10, 9, 0, 0, 0, loc)
	wantEnd := time.Date(2025, time.March, 10, 11, 0, 0, 0, loc)

	if !got.StartAt.Equal(wantStart) {
		t.Errorf("StartAt = %v, want %v", got.StartAt, wantStart)
	}
	if !got.EndAt.Equal(wantEnd) {
		t.Errorf("EndAt = %v, want %v", got.EndAt, wantEnd)
	}
	if got.ArrivalWindowStart == nil || !got.ArrivalWindowStart.Equal(wantStart) {
		t.Errorf("ArrivalWindowStart = %v, want %v", got.ArrivalWindowStart, wantStart)
	}
	if got.ArrivalWindowEnd == nil || !got.ArrivalWindowEnd.Equal(wantEnd) {
		t.Errorf("ArrivalWindowEnd = %v, want %v", got.ArrivalWindowEnd, wantEnd)
	}
	if _, offset := got.StartAt.In(loc).Zone(); offset != -5*3600 {
		t.Errorf("expected CDT offset -5h, got %ds", offset)
	}
}

func TestResolveAnytimeUsesAnchor(t *testing.T) {
	loc := chicago(t)
	date := Date(2025, time.March, 10)

	got, err := ResolveConstraints(date, loc, ArriveAnytime(), FinishOpenEnded(), testDefaults())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	wantStart := time.Date(2025, time.March, 10, 9, 0, 0, 0, loc)
	if !got.StartAt.Equal(wantStart) {
		t.Errorf("StartAt = %v, want anchor %v", got.StartAt, wantStart)
	}
	if !got.EndAt.Equal(wantStart.Add(2 * time.Hour)) {
		t.Errorf("EndAt = %v, want start+2h", got.EndAt)
	}
	if got.ArrivalWindowStart != nil || got.ArrivalWindowEnd != nil {
		t.Error("anytime arrival must not set an arrival window")
	}
}

func TestResolveExactArrivalAndFinish(t *testing.T) {
	loc := chicago(t)
	date := Date(2025, time.July, 4)

	got, err := ResolveConstraints(date,
		loc,
		ArriveAt(mustTime(t, "13:30")),
		FinishAtTime(mustTime(t, "16:00")),
		testDefaults(),
	)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if want := time.Date(2025, time.July, 4, 13, 30, 0, 0, loc); !got.StartAt.Equal(want) {
		t.Errorf("StartAt = %v, want %v", got.StartAt, want)
	}
	if want := time.Date(2025, time.July, 4, 16, 0, 0, 0, loc); !got.EndAt.Equal(want) {
		t.Errorf("EndAt = %v, want %v", got.EndAt, want)
	}
}

func TestResolveArriveByBacksOffLeadTime(t *testing.T) {
	loc := chicago(t)
	date := Date(2025, time.March, 10)

	got, err := ResolveConstraints(date,
		loc,
		ArriveBy(mustTime(t, "14:00")),
		FinishOpenEnded(),
		testDefaults(),
	)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	wantDeadline := time.Date(2025, time.March, 10, 14, 0, 0, 0, loc)
	wantStart := wantDeadline.Add(-4 * time.Hour)

	if !got.StartAt.Equal(wantStart) {
		t.Errorf("StartAt = %v, want deadline-4h %v", got.StartAt, wantStart)
	}
	if got.ArrivalWindowEnd == nil || !got.ArrivalWindowEnd.Equal(wantDeadline) {
		t.Errorf("ArrivalWindowEnd = %v, want %v", got.ArrivalWindowEnd, wantDeadline)
	}
	if got.ArrivalWindowStart != nil {
		t.Error("arrive-by must not set an arrival window start")
	}
}

func TestResolveArriveByClampsToMidnight(t *testing.T) {
	loc := chicago(t)
	date := Date(2025, time.March, 10)

	got, err := ResolveConstraints(date,
		loc,
		ArriveBy(mustTime(t, "02:00")),
		FinishOpenEnded(),
		testDefaults(),
	)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	midnight := time.Date(2025, time.March, 10, 0, 0, 0, 0, loc)
	if !got.StartAt.Equal(midnight) {
		t.Errorf("StartAt = %v, want clamp to midnight %v", got.StartAt, midnight)
	}
}

func TestResolveFinishByMatchesFinishAt(t *testing.T) {
	loc := chicago(t)
	date := Date(2025, time.March, 10)

	at, err := ResolveConstraints(date, loc, ArriveAnytime(), FinishAtTime(mustTime(t, "17:00")), testDefaults())
	if err != nil {
		t.Fatalf("resolve finish-at: %v", err)
	}
	by, err := ResolveConstraints(date, loc, ArriveAnytime(), FinishByTime(mustTime(t, "17:00")), testDefaults())
	if err != nil {
		t.Fatalf("resolve finish-by: %v", err)
	}

	if !at.EndAt.Equal(by.EndAt) {
		t.Errorf("finish-by EndAt %v differs from finish-at %v", by.EndAt, at.EndAt)
	}
}

func TestResolveRejectsMalformedConstraints(t *testing.T) {
	loc := chicago(t)
	date := Date(2025, time.March, 10)

	cases := []struct {
		name    string
		arrival ArrivalConstraint
		finish  FinishConstraint
	}{
		{"at without time", ArrivalConstraint{Kind: ArrivalAt}, FinishOpenEnded()},
		{"between missing end", ArrivalConstraint{Kind: ArrivalBetween, WindowStart: &TimeOfDay{Hour: 9}}, FinishOpenEnded()},
		{"by without deadline", ArrivalConstraint{Kind: ArrivalBy}, FinishOpenEnded()},
		{"finish at without time", ArriveAnytime(), FinishConstraint{Kind: FinishAt}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ResolveConstraints(date, loc, tc.arrival, tc.finish, testDefaults()); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestResolveDSTSpringForward(t *testing.T) {
	loc := chicago(t)
	// 2025-03-09: 02:00-03:00 local does not exist; the time package
	// resolves the gap by civil-time rules rather than failing.
	date := Date(2025, time.March, 9)

	got, err := ResolveConstraints(date, loc, ArriveAt(mustTime(t, "02:30")), FinishOpenEnded(), testDefaults())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.StartAt.IsZero() {
		t.Error("expected a resolved instant for a DST-gap time")
	}
}
