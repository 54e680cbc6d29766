package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Plan is the recurring plan database model.
type Plan struct {
	ID                   uuid.UUID  `db:"id"`
	ClientID             uuid.UUID  `db:"client_id"`
	Name                 string     `db:"name"`
	Description          *string    `db:"description"`
	Address              *string    `db:"address"`
	Latitude             *float64   `db:"latitude"`
	Longitude            *float64   `db:"longitude"`
	StartsAt             time.Time  `db:"starts_at"`
	EndsAt               *time.Time `db:"ends_at"`
	Timezone             string     `db:"timezone"`
	GenerationWindowDays int        `db:"generation_window_days"`
	MinAdvanceDays       int        `db:"min_advance_days"`
	BillingMode          string     `db:"billing_mode"`
	InvoiceTiming        string     `db:"invoice_timing"`
	AutoInvoice          bool       `db:"auto_invoice"`
	Priority             string     `db:"priority"`
	Status               string     `db:"status"`
	LastGeneratedThrough *time.Time `db:"last_generated_through"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
}

// Rule is the persisted recurrence definition, 1:1 with a plan.
// Clock times are stored as "HH:MM" strings; weekdays as 0(Sunday)..6.
type Rule struct {
	PlanID             uuid.UUID `db:"plan_id"`
	Frequency          string    `db:"frequency"`
	Interval           int       `db:"interval"`
	ByWeekday          []int32   `db:"by_weekday"`
	ByMonthDay         *int      `db:"by_month_day"`
	ByMonth            *int      `db:"by_month"`
	ArrivalKind        string    `db:"arrival_kind"`
	ArrivalTime        *string   `db:"arrival_time"`
	ArrivalWindowStart *string   `db:"arrival_window_start"`
	ArrivalWindowEnd   *string   `db:"arrival_window_end"`
	ArrivalDeadline    *string   `db:"arrival_deadline"`
	FinishKind         string    `db:"finish_kind"`
	FinishTime         *string   `db:"finish_time"`
	UpdatedAt          time.Time `db:"updated_at"`
}

// LineItem is one template line copied onto every generated visit.
type LineItem struct {
	ID        uuid.UUID `db:"id"`
	PlanID    uuid.UUID `db:"plan_id"`
	Name      string    `db:"name"`
	Quantity  float64   `db:"quantity"`
	UnitPrice float64   `db:"unit_price"`
	ItemType  string    `db:"item_type"`
	SortOrder int       `db:"sort_order"`
}

// Occurrence is one concrete scheduled instance derived from a plan.
type Occurrence struct {
	ID                 uuid.UUID  `db:"id"`
	PlanID             uuid.UUID  `db:"plan_id"`
	OccurrenceDate     time.Time  `db:"occurrence_date"`
	StartAt            time.Time  `db:"occurrence_start_at"`
	EndAt              time.Time  `db:"occurrence_end_at"`
	ArrivalWindowStart *time.Time `db:"arrival_window_start"`
	ArrivalWindowEnd   *time.Time `db:"arrival_window_end"`
	Status             string     `db:"status"`
	JobVisitID         *uuid.UUID `db:"job_visit_id"`
	SkipReason         *string    `db:"skip_reason"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

// ListPlansParams filters plan listings.
type ListPlansParams struct {
	ClientID *uuid.UUID
	Status   *string
	Search   string
	Page     int
	PageSize int
}

// ListPlansResult is a paginated plan listing.
type ListPlansResult struct {
	Items      []Plan
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// ListOccurrencesParams filters occurrence listings for one plan.
type ListOccurrencesParams struct {
	PlanID   uuid.UUID
	Status   *string
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	PageSize int
}

// ListOccurrencesResult is a paginated occurrence listing.
type ListOccurrencesResult struct {
	Items      []Occurrence
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// PlanReader provides read operations for plans and their rules.
type PlanReader interface {
	GetPlan(ctx context.Context, id uuid.UUID) (*Plan, error)
	GetRule(ctx context.Context, planID uuid.UUID) (*Rule, error)
	ListPlans(ctx context.Context, params ListPlansParams) (*ListPlansResult, error)
	ListActivePlanIDs(ctx context.Context) ([]uuid.UUID, error)
	ListLineItems(ctx context.Context, planID uuid.UUID) ([]LineItem, error)
}

// PlanWriter provides write operations for plans and their rules.
type PlanWriter interface {
	CreatePlan(ctx context.Context, plan *Plan, rule *Rule, items []LineItem) error
	UpdateRule(ctx context.Context, rule *Rule) error
	// TransitionPlan moves a plan between statuses, guarded by the expected
	// current status so concurrent transitions cannot double-apply.
	TransitionPlan(ctx context.Context, id uuid.UUID, from, to string) error
}

// OccurrenceReader provides read operations for occurrences.
type OccurrenceReader interface {
	GetOccurrence(ctx context.Context, id uuid.UUID) (*Occurrence, error)
	ListOccurrences(ctx context.Context, params ListOccurrencesParams) (*ListOccurrencesResult, error)
	// ExistingDates returns every occurrence date (any status) the plan
	// already has inside [from, to].
	ExistingDates(ctx context.Context, planID uuid.UUID, from, to time.Time) (map[time.Time]bool, error)
	// ActiveDateTaken reports whether a non-cancelled, non-skipped
	// occurrence other than excludeID exists on the date.
	ActiveDateTaken(ctx context.Context, planID uuid.UUID, date time.Time, excludeID uuid.UUID) (bool, error)
}

// OccurrenceWriter provides write operations for occurrences. Status-guarded
// methods return apperr.KindInvalidState when the row exists but its status
// no longer permits the mutation.
type OccurrenceWriter interface {
	// InsertBatch persists newly generated occurrences and advances the
	// plan's last_generated_through to through, all in one transaction.
	// Rows colliding with an existing active occurrence date are dropped
	// by the storage uniqueness constraint; the returned ids are the rows
	// actually created.
	InsertBatch(ctx context.Context, planID uuid.UUID, occs []Occurrence, through time.Time) ([]uuid.UUID, error)
	MarkSkipped(ctx context.Context, id uuid.UUID, reason string) (*Occurrence, error)
	Reschedule(ctx context.Context, id uuid.UUID, date time.Time, startAt, endAt time.Time) (*Occurrence, error)
	MarkGenerated(ctx context.Context, id uuid.UUID, visitID uuid.UUID) (*Occurrence, error)
	MarkCompletedByVisit(ctx context.Context, visitID uuid.UUID) error
	// CancelPlanned cascades a terminal plan transition: every still-planned
	// occurrence on or after from flips to cancelled. Returns the count.
	CancelPlanned(ctx context.Context, planID uuid.UUID, from time.Time) (int, error)
}

// Store combines all plan and occurrence repository operations.
type Store interface {
	PlanReader
	PlanWriter
	OccurrenceReader
	OccurrenceWriter
}
