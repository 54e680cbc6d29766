package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"dispatch_backend/internal/events"
	"dispatch_backend/internal/plans/domain"
	"dispatch_backend/internal/plans/repository"
	"dispatch_backend/platform/apperr"
	"dispatch_backend/platform/logger"
)

// fakeStore is an in-memory repository.Store mirroring the guard semantics
// of the Postgres implementation.
type fakeStore struct {
	mu    sync.Mutex
	plans map[uuid.UUID]*repository.Plan
	rules map[uuid.UUID]*repository.Rule
	items map[uuid.UUID][]repository.LineItem
	occs  map[uuid.UUID]*repository.Occurrence
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		plans: map[uuid.UUID]*repository.Plan{},
		rules: map[uuid.UUID]*repository.Rule{},
		items: map[uuid.UUID][]repository.LineItem{},
		occs:  map[uuid.UUID]*repository.Occurrence{},
	}
}

var _ repository.Store = (*fakeStore)(nil)

func (f *fakeStore) GetPlan(_ context.Context, id uuid.UUID) (*repository.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok {
		return nil, apperr.NotFound("plan not found")
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) GetRule(_ context.Context, planID uuid.UUID) (*repository.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rules[planID]
	if !ok {
		return nil, apperr.NotFound("recurrence rule not found")
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) ListPlans(_ context.Context, params repository.ListPlansParams) (*repository.ListPlansResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := []repository.Plan{}
	for _, p := range f.plans {
		if params.Status != nil && p.Status != *params.Status {
			continue
		}
		if params.ClientID != nil && p.ClientID != *params.ClientID {
			continue
		}
		items = append(items, *p)
	}
	return &repository.ListPlansResult{Items: items, Total: len(items), Page: 1, PageSize: len(items) + 1, TotalPages: 1}, nil
}

func (f *fakeStore) ListActivePlanIDs(_ context.Context) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := []uuid.UUID{}
	for id, p := range f.plans {
		if p.Status == string(domain.PlanActive) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeStore) ListLineItems(_ context.Context, planID uuid.UUID) ([]repository.LineItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]repository.LineItem{}, f.items[planID]...), nil
}

func (f *fakeStore) CreatePlan(_ context.Context, plan *repository.Plan, rule *repository.Rule, items []repository.LineItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	cp := *plan
	cp.CreatedAt = now
	cp.UpdatedAt = now
	f.plans[plan.ID] = &cp
	rcp := *rule
	f.rules[plan.ID] = &rcp
	f.items[plan.ID] = append([]repository.LineItem{}, items...)
	return nil
}

func (f *fakeStore) UpdateRule(_ context.Context, rule *repository.Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rules[rule.PlanID]; !ok {
		return apperr.NotFound("recurrence rule not found")
	}
	cp := *rule
	f.rules[rule.PlanID] = &cp
	return nil
}

func (f *fakeStore) TransitionPlan(_ context.Context, id uuid.UUID, from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok {
		return apperr.NotFound("plan not found")
	}
	if p.Status != from {
		return apperr.InvalidState("plan status changed concurrently")
	}
	p.Status = to
	return nil
}

func (f *fakeStore) GetOccurrence(_ context.Context, id uuid.UUID) (*repository.Occurrence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.occs[id]
	if !ok {
		return nil, apperr.NotFound("occurrence not found")
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) ListOccurrences(_ context.Context, params repository.ListOccurrencesParams) (*repository.ListOccurrencesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := []repository.Occurrence{}
	for _, o := range f.occs {
		if o.PlanID != params.PlanID {
			continue
		}
		if params.Status != nil && o.Status != *params.Status {
			continue
		}
		items = append(items, *o)
	}
	return &repository.ListOccurrencesResult{Items: items, Total: len(items), Page: 1, PageSize: len(items) + 1, TotalPages: 1}, nil
}

func (f *fakeStore) ExistingDates(_ context.Context, planID uuid.UUID, from, to time.Time) (map[time.Time]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dates := map[time.Time]bool{}
	for _, o := range f.occs {
		if o.PlanID != planID {
			continue
		}
		if o.OccurrenceDate.Before(from) || o.OccurrenceDate.After(to) {
			continue
		}
		dates[domain.Date(o.OccurrenceDate.Year(), o.OccurrenceDate.Month(), o.OccurrenceDate.Day())] = true
	}
	return dates, nil
}

func (f *fakeStore) ActiveDateTaken(_ context.Context, planID uuid.UUID, date time.Time, excludeID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeDateTakenLocked(planID, date, excludeID), nil
}

func (f *fakeStore) activeDateTakenLocked(planID uuid.UUID, date time.Time, excludeID uuid.UUID) bool {
	for _, o := range f.occs {
		if o.PlanID != planID || o.ID == excludeID {
			continue
		}
		if o.Status == string(domain.OccurrenceCancelled) || o.Status == string(domain.OccurrenceSkipped) {
			continue
		}
		if o.OccurrenceDate.Equal(date) {
			return true
		}
	}
	return false
}

func (f *fakeStore) InsertBatch(_ context.Context, planID uuid.UUID, occs []repository.Occurrence, through time.Time) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	created := []uuid.UUID{}
	for _, o := range occs {
		if f.activeDateTakenLocked(planID, o.OccurrenceDate, o.ID) {
			continue
		}
		cp := o
		cp.Status = string(domain.OccurrencePlanned)
		f.occs[o.ID] = &cp
		created = append(created, o.ID)
	}
	p := f.plans[planID]
	if p.LastGeneratedThrough == nil || p.LastGeneratedThrough.Before(through) {
		t := through
		p.LastGeneratedThrough = &t
	}
	return created, nil
}

func (f *fakeStore) mutatePlanned(id uuid.UUID, apply func(*repository.Occurrence)) (*repository.Occurrence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.occs[id]
	if !ok {
		return nil, apperr.NotFound("occurrence not found")
	}
	if o.Status != string(domain.OccurrencePlanned) {
		return nil, apperr.InvalidState("occurrence is " + o.Status + ", expected planned")
	}
	apply(o)
	cp := *o
	return &cp, nil
}

func (f *fakeStore) MarkSkipped(_ context.Context, id uuid.UUID, reason string) (*repository.Occurrence, error) {
	return f.mutatePlanned(id, func(o *repository.Occurrence) {
		o.Status = string(domain.OccurrenceSkipped)
		o.SkipReason = &reason
	})
}

func (f *fakeStore) Reschedule(_ context.Context, id uuid.UUID, date time.Time, startAt, endAt time.Time) (*repository.Occurrence, error) {
	f.mu.Lock()
	o := f.occs[id]
	if o != nil && f.activeDateTakenLocked(o.PlanID, date, id) {
		f.mu.Unlock()
		return nil, apperr.Conflict("another occurrence already exists on that date")
	}
	f.mu.Unlock()
	return f.mutatePlanned(id, func(o *repository.Occurrence) {
		o.OccurrenceDate = date
		o.StartAt = startAt
		o.EndAt = endAt
		o.ArrivalWindowStart = nil
		o.ArrivalWindowEnd = nil
	})
}

func (f *fakeStore) MarkGenerated(_ context.Context, id uuid.UUID, visitID uuid.UUID) (*repository.Occurrence, error) {
	return f.mutatePlanned(id, func(o *repository.Occurrence) {
		o.Status = string(domain.OccurrenceGenerated)
		o.JobVisitID = &visitID
	})
}

func (f *fakeStore) MarkCompletedByVisit(_ context.Context, visitID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.occs {
		if o.JobVisitID != nil && *o.JobVisitID == visitID && o.Status == string(domain.OccurrenceGenerated) {
			o.Status = string(domain.OccurrenceCompleted)
		}
	}
	return nil
}

func (f *fakeStore) CancelPlanned(_ context.Context, planID uuid.UUID, from time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, o := range f.occs {
		if o.PlanID == planID && o.Status == string(domain.OccurrencePlanned) && !o.OccurrenceDate.Before(from) {
			o.Status = string(domain.OccurrenceCancelled)
			n++
		}
	}
	return n, nil
}

// recordingBus captures published events synchronously.
type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) byName(name string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, e := range b.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

// fakeVisits either mints visit ids or fails every call.
type fakeVisits struct {
	fail    error
	created []VisitSpec
}

func (v *fakeVisits) CreateFromOccurrence(_ context.Context, spec VisitSpec) (uuid.UUID, error) {
	if v.fail != nil {
		return uuid.Nil, v.fail
	}
	v.created = append(v.created, spec)
	return uuid.New(), nil
}

var testNow = time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *fakeStore, *recordingBus, *fakeVisits) {
	t.Helper()
	store := newFakeStore()
	bus := &recordingBus{}
	visits := &fakeVisits{}
	defaults := domain.ResolveDefaults{
		AnytimeAnchor: domain.TimeOfDay{Hour: 9},
		VisitDuration: 2 * time.Hour,
		ArriveByLead:  4 * time.Hour,
	}
	svc := New(store, visits, bus, domain.FixedClock{T: testNow}, defaults, 30, logger.New("development"))
	return svc, store, bus, visits
}

func dailyPlanInput() CreatePlanInput {
	return CreatePlanInput{
		ClientID:      uuid.New(),
		Name:          "Weekly lawn care",
		StartsAt:      domain.Date(2025, time.June, 1),
		Timezone:      "UTC",
		BillingMode:   "per_visit",
		InvoiceTiming: "after_visit",
		Priority:      "normal",
		Rule: domain.Rule{
			Frequency: domain.FrequencyDaily,
			Interval:  1,
			Arrival:   domain.ArriveAnytime(),
			Finish:    domain.FinishOpenEnded(),
		},
	}
}

func mustCreatePlan(t *testing.T, svc *Service, input CreatePlanInput) *PlanDetail {
	t.Helper()
	detail, err := svc.CreatePlan(context.Background(), input)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	return detail
}

func TestCreatePlanValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	tests := []struct {
		name   string
		mutate func(*CreatePlanInput)
	}{
		{"unknown timezone", func(in *CreatePlanInput) { in.Timezone = "Mars/Olympus" }},
		{"ends before starts", func(in *CreatePlanInput) {
			end := domain.Date(2025, time.May, 1)
			in.EndsAt = &end
		}},
		{"zero interval", func(in *CreatePlanInput) { in.Rule.Interval = 0 }},
		{"weekly without weekdays", func(in *CreatePlanInput) { in.Rule.Frequency = domain.FrequencyWeekly }},
		{"negative advance", func(in *CreatePlanInput) { in.MinAdvanceDays = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := dailyPlanInput()
			tt.mutate(&input)
			_, err := svc.CreatePlan(context.Background(), input)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("want validation error, got %v", err)
			}
		})
	}
}

func TestCreatePlanStartsActive(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	detail := mustCreatePlan(t, svc, dailyPlanInput())

	if detail.Plan.Status != string(domain.PlanActive) {
		t.Fatalf("status = %s, want active", detail.Plan.Status)
	}
	if detail.Plan.LastGeneratedThrough != nil {
		t.Fatalf("new plan should have no generation watermark")
	}

	got, err := svc.GetPlan(context.Background(), detail.Plan.ID)
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if got.Rule.Frequency != domain.FrequencyDaily {
		t.Fatalf("rule round-trip lost frequency: %s", got.Rule.Frequency)
	}
}

func TestPauseResume(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	detail := mustCreatePlan(t, svc, dailyPlanInput())
	ctx := context.Background()

	if err := svc.PausePlan(ctx, detail.Plan.ID); err != nil {
		t.Fatalf("PausePlan: %v", err)
	}
	if got := store.plans[detail.Plan.ID].Status; got != string(domain.PlanPaused) {
		t.Fatalf("status = %s, want paused", got)
	}
	if err := svc.PausePlan(ctx, detail.Plan.ID); !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("double pause: want invalid state, got %v", err)
	}
	if err := svc.ResumePlan(ctx, detail.Plan.ID); err != nil {
		t.Fatalf("ResumePlan: %v", err)
	}
	if got := store.plans[detail.Plan.ID].Status; got != string(domain.PlanActive) {
		t.Fatalf("status = %s, want active", got)
	}
}

func TestCancelPlanCascadesToPlanned(t *testing.T) {
	svc, store, bus, _ := newTestService(t)
	detail := mustCreatePlan(t, svc, dailyPlanInput())
	ctx := context.Background()

	res, err := svc.Generate(ctx, detail.Plan.ID, 6)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.CreatedIDs) != 7 {
		t.Fatalf("created = %d, want 7", len(res.CreatedIDs))
	}

	// Promote two occurrences to generated; they must survive the cascade.
	for _, id := range res.CreatedIDs[:2] {
		if _, _, err := svc.GenerateVisit(ctx, id); err != nil {
			t.Fatalf("GenerateVisit: %v", err)
		}
	}

	if err := svc.CancelPlan(ctx, detail.Plan.ID); err != nil {
		t.Fatalf("CancelPlan: %v", err)
	}

	var cancelled, generated int
	for _, o := range store.occs {
		switch o.Status {
		case string(domain.OccurrenceCancelled):
			cancelled++
		case string(domain.OccurrenceGenerated):
			generated++
		}
	}
	if cancelled != 5 || generated != 2 {
		t.Fatalf("cancelled=%d generated=%d, want 5 and 2", cancelled, generated)
	}

	published := bus.byName(events.PlanCancelled{}.EventName())
	if len(published) != 1 {
		t.Fatalf("PlanCancelled events = %d, want 1", len(published))
	}
	if ev := published[0].(events.PlanCancelled); ev.CancelledOccurrence != 5 {
		t.Fatalf("event cancelled count = %d, want 5", ev.CancelledOccurrence)
	}

	// Terminal: nothing else is allowed.
	if err := svc.ResumePlan(ctx, detail.Plan.ID); !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("resume after cancel: want invalid state, got %v", err)
	}
	if _, err := svc.Generate(ctx, detail.Plan.ID, 7); !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("generate after cancel: want invalid state, got %v", err)
	}
}

func TestCompletePlanPublishesEvent(t *testing.T) {
	svc, _, bus, _ := newTestService(t)
	detail := mustCreatePlan(t, svc, dailyPlanInput())
	ctx := context.Background()

	if err := svc.CompletePlan(ctx, detail.Plan.ID); err != nil {
		t.Fatalf("CompletePlan: %v", err)
	}
	if got := bus.byName(events.PlanCompleted{}.EventName()); len(got) != 1 {
		t.Fatalf("PlanCompleted events = %d, want 1", len(got))
	}
	if err := svc.CancelPlan(ctx, detail.Plan.ID); !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("cancel after complete: want invalid state, got %v", err)
	}
}

func TestUpdateRuleRejectsTerminalPlan(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	detail := mustCreatePlan(t, svc, dailyPlanInput())
	ctx := context.Background()

	rule := detail.Rule
	rule.Interval = 2
	if err := svc.UpdateRule(ctx, detail.Plan.ID, rule); err != nil {
		t.Fatalf("UpdateRule on active plan: %v", err)
	}

	if err := svc.CancelPlan(ctx, detail.Plan.ID); err != nil {
		t.Fatalf("CancelPlan: %v", err)
	}
	if err := svc.UpdateRule(ctx, detail.Plan.ID, rule); !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("UpdateRule on cancelled plan: want invalid state, got %v", err)
	}
}

func TestUpdateRuleDoesNotRewriteExistingOccurrences(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	detail := mustCreatePlan(t, svc, dailyPlanInput())
	ctx := context.Background()

	res, err := svc.Generate(ctx, detail.Plan.ID, 3)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	before := map[uuid.UUID]time.Time{}
	for _, id := range res.CreatedIDs {
		before[id] = store.occs[id].StartAt
	}

	rule := detail.Rule
	rule.Arrival = domain.ArriveAt(domain.TimeOfDay{Hour: 14})
	if err := svc.UpdateRule(ctx, detail.Plan.ID, rule); err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}

	for id, startAt := range before {
		if !store.occs[id].StartAt.Equal(startAt) {
			t.Fatalf("occurrence %s start changed after rule edit", id)
		}
	}
}
