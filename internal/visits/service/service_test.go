package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"dispatch_backend/internal/events"
	plansrepo "dispatch_backend/internal/plans/repository"
	plansvc "dispatch_backend/internal/plans/service"
	"dispatch_backend/internal/visits/repository"
	"dispatch_backend/platform/apperr"
	"dispatch_backend/platform/logger"
)

type fakeStore struct {
	mu     sync.Mutex
	visits map[uuid.UUID]*repository.Visit
	items  map[uuid.UUID][]repository.LineItem
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		visits: map[uuid.UUID]*repository.Visit{},
		items:  map[uuid.UUID][]repository.LineItem{},
	}
}

var _ repository.Store = (*fakeStore)(nil)

func (f *fakeStore) CreateVisit(_ context.Context, visit *repository.Visit, items []repository.LineItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *visit
	f.visits[visit.ID] = &cp
	f.items[visit.ID] = append([]repository.LineItem{}, items...)
	return nil
}

func (f *fakeStore) GetVisit(_ context.Context, id uuid.UUID) (*repository.Visit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.visits[id]
	if !ok {
		return nil, apperr.NotFound("visit not found")
	}
	cp := *v
	return &cp, nil
}

func (f *fakeStore) ListLineItems(_ context.Context, visitID uuid.UUID) ([]repository.LineItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]repository.LineItem{}, f.items[visitID]...), nil
}

func (f *fakeStore) ListByPlan(_ context.Context, planID uuid.UUID) ([]repository.Visit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []repository.Visit{}
	for _, v := range f.visits {
		if v.PlanID != nil && *v.PlanID == planID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (f *fakeStore) CompleteVisit(_ context.Context, id uuid.UUID, at time.Time) (*repository.Visit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.visits[id]
	if !ok {
		return nil, apperr.NotFound("visit not found")
	}
	if v.Status != "scheduled" {
		return nil, apperr.InvalidState("visit is " + v.Status + ", expected scheduled")
	}
	v.Status = "completed"
	v.CompletedAt = &at
	cp := *v
	return &cp, nil
}

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

func testSpec() plansvc.VisitSpec {
	addr := "12 Elm Street"
	return plansvc.VisitSpec{
		OccurrenceID:  uuid.New(),
		PlanID:        uuid.New(),
		ClientID:      uuid.New(),
		Name:          "Weekly lawn care",
		Address:       &addr,
		StartAt:       time.Date(2025, time.June, 12, 9, 0, 0, 0, time.UTC),
		EndAt:         time.Date(2025, time.June, 12, 11, 0, 0, 0, time.UTC),
		Priority:      "normal",
		BillingMode:   "per_visit",
		InvoiceTiming: "after_visit",
		AutoInvoice:   true,
		LineItems: []plansrepo.LineItem{
			{ID: uuid.New(), Name: "Mowing", Quantity: 1, UnitPrice: 45, ItemType: "service", SortOrder: 0},
			{ID: uuid.New(), Name: "Edging", Quantity: 1, UnitPrice: 15, ItemType: "service", SortOrder: 1},
		},
	}
}

func TestCreateFromOccurrence(t *testing.T) {
	store := newFakeStore()
	bus := &recordingBus{}
	svc := New(store, bus, logger.New("development"))
	ctx := context.Background()

	spec := testSpec()
	visitID, err := svc.CreateFromOccurrence(ctx, spec)
	if err != nil {
		t.Fatalf("CreateFromOccurrence: %v", err)
	}

	detail, err := svc.GetVisit(ctx, visitID)
	if err != nil {
		t.Fatalf("GetVisit: %v", err)
	}
	v := detail.Visit
	if v.Status != "scheduled" {
		t.Fatalf("status = %s, want scheduled", v.Status)
	}
	if v.PlanID == nil || *v.PlanID != spec.PlanID {
		t.Fatalf("plan link missing")
	}
	if v.OccurrenceID == nil || *v.OccurrenceID != spec.OccurrenceID {
		t.Fatalf("occurrence link missing")
	}
	if v.BillingMode != "per_visit" || !v.AutoInvoice {
		t.Fatalf("billing hints not copied")
	}
	if len(detail.LineItems) != 2 {
		t.Fatalf("line items = %d, want 2", len(detail.LineItems))
	}
	for _, it := range detail.LineItems {
		if it.VisitID != visitID {
			t.Fatalf("line item not relinked to the visit")
		}
	}

	if len(bus.events) != 1 {
		t.Fatalf("events = %d, want 1", len(bus.events))
	}
	gen, ok := bus.events[0].(events.VisitGenerated)
	if !ok {
		t.Fatalf("event type = %T, want VisitGenerated", bus.events[0])
	}
	if gen.VisitID != visitID || gen.InvoiceTiming != "after_visit" {
		t.Fatalf("event payload incomplete: %+v", gen)
	}
}

func TestCompleteVisit(t *testing.T) {
	store := newFakeStore()
	bus := &recordingBus{}
	svc := New(store, bus, logger.New("development"))
	ctx := context.Background()

	visitID, err := svc.CreateFromOccurrence(ctx, testSpec())
	if err != nil {
		t.Fatalf("CreateFromOccurrence: %v", err)
	}

	visit, err := svc.CompleteVisit(ctx, visitID)
	if err != nil {
		t.Fatalf("CompleteVisit: %v", err)
	}
	if visit.Status != "completed" || visit.CompletedAt == nil {
		t.Fatalf("visit not completed: %+v", visit)
	}

	var sawCompleted bool
	for _, e := range bus.events {
		if completed, ok := e.(events.VisitCompleted); ok {
			sawCompleted = true
			if completed.OccurrenceID == nil {
				t.Fatalf("completion event must carry the occurrence link")
			}
		}
	}
	if !sawCompleted {
		t.Fatalf("VisitCompleted event not published")
	}

	if _, err := svc.CompleteVisit(ctx, visitID); !apperr.Is(err, apperr.KindInvalidState) {
		t.Fatalf("double complete: want invalid state, got %v", err)
	}
}

func TestListByPlan(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &recordingBus{}, logger.New("development"))
	ctx := context.Background()

	spec := testSpec()
	if _, err := svc.CreateFromOccurrence(ctx, spec); err != nil {
		t.Fatalf("CreateFromOccurrence: %v", err)
	}
	other := testSpec()
	if _, err := svc.CreateFromOccurrence(ctx, other); err != nil {
		t.Fatalf("CreateFromOccurrence: %v", err)
	}

	visits, err := svc.ListByPlan(ctx, spec.PlanID)
	if err != nil {
		t.Fatalf("ListByPlan: %v", err)
	}
	if len(visits) != 1 {
		t.Fatalf("visits = %d, want 1", len(visits))
	}
}
