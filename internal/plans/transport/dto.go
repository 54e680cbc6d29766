// Package transport defines the request and response DTOs of the plans API
// and their conversions to and from the service layer.
package transport

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"dispatch_backend/internal/plans/domain"
	"dispatch_backend/internal/plans/repository"
	"dispatch_backend/internal/plans/service"
	"dispatch_backend/platform/apperr"
)

const dateLayout = "2006-01-02"

var weekdayCodes = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

var weekdayNames = map[time.Weekday]string{
	time.Sunday:    "SU",
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
}

// ArrivalRequest selects an arrival constraint variant. Times are "HH:MM".
type ArrivalRequest struct {
	Kind        string  `json:"kind" validate:"required,oneof=anytime at between by"`
	Time        *string `json:"time,omitempty" validate:"omitempty,timeofday"`
	WindowStart *string `json:"windowStart,omitempty" validate:"omitempty,timeofday"`
	WindowEnd   *string `json:"windowEnd,omitempty" validate:"omitempty,timeofday"`
	Deadline    *string `json:"deadline,omitempty" validate:"omitempty,timeofday"`
}

// FinishRequest selects a finish constraint variant.
type FinishRequest struct {
	Kind string  `json:"kind" validate:"required,oneof=when_done at by"`
	Time *string `json:"time,omitempty" validate:"omitempty,timeofday"`
}

// RuleRequest is the wire form of a recurrence rule. Weekdays use the
// two-letter codes MO through SU.
type RuleRequest struct {
	Frequency  string         `json:"frequency" validate:"required,oneof=daily weekly monthly yearly"`
	Interval   int            `json:"interval" validate:"omitempty,min=1,max=52"`
	ByWeekday  []string       `json:"byWeekday,omitempty" validate:"omitempty,max=7,dive,oneof=MO TU WE TH FR SA SU"`
	ByMonthDay int            `json:"byMonthDay,omitempty" validate:"omitempty,min=1,max=31"`
	ByMonth    int            `json:"byMonth,omitempty" validate:"omitempty,min=1,max=12"`
	Arrival    ArrivalRequest `json:"arrival" validate:"required"`
	Finish     FinishRequest  `json:"finish" validate:"required"`
}

// ToDomain converts the wire rule into its validated domain form.
func (r RuleRequest) ToDomain() (domain.Rule, error) {
	rule := domain.Rule{
		Frequency:  domain.Frequency(r.Frequency),
		Interval:   r.Interval,
		ByMonthDay: r.ByMonthDay,
		ByMonth:    time.Month(r.ByMonth),
	}
	if rule.Interval == 0 {
		rule.Interval = 1
	}
	for _, code := range r.ByWeekday {
		wd, ok := weekdayCodes[code]
		if !ok {
			return domain.Rule{}, apperr.Validation(fmt.Sprintf("unknown weekday code %q", code))
		}
		rule.ByWeekday = append(rule.ByWeekday, wd)
	}

	arrival, err := r.Arrival.toDomain()
	if err != nil {
		return domain.Rule{}, err
	}
	finish, err := r.Finish.toDomain()
	if err != nil {
		return domain.Rule{}, err
	}
	rule.Arrival = arrival
	rule.Finish = finish

	if err := rule.Validate(); err != nil {
		return domain.Rule{}, err
	}
	return rule, nil
}

func (a ArrivalRequest) toDomain() (domain.ArrivalConstraint, error) {
	switch domain.ArrivalKind(a.Kind) {
	case domain.ArrivalAnytime:
		return domain.ArriveAnytime(), nil
	case domain.ArrivalAt:
		t, err := parseOptionalTime(a.Time, "arrival time")
		if err != nil {
			return domain.ArrivalConstraint{}, err
		}
		return domain.ArriveAt(t), nil
	case domain.ArrivalBetween:
		start, err := parseOptionalTime(a.WindowStart, "arrival windowStart")
		if err != nil {
			return domain.ArrivalConstraint{}, err
		}
		end, err := parseOptionalTime(a.WindowEnd, "arrival windowEnd")
		if err != nil {
			return domain.ArrivalConstraint{}, err
		}
		return domain.ArriveBetween(start, end), nil
	case domain.ArrivalBy:
		t, err := parseOptionalTime(a.Deadline, "arrival deadline")
		if err != nil {
			return domain.ArrivalConstraint{}, err
		}
		return domain.ArriveBy(t), nil
	default:
		return domain.ArrivalConstraint{}, apperr.Validation(fmt.Sprintf("unknown arrival kind %q", a.Kind))
	}
}

func (f FinishRequest) toDomain() (domain.FinishConstraint, error) {
	switch domain.FinishKind(f.Kind) {
	case domain.FinishWhenDone:
		return domain.FinishOpenEnded(), nil
	case domain.FinishAt:
		t, err := parseOptionalTime(f.Time, "finish time")
		if err != nil {
			return domain.FinishConstraint{}, err
		}
		return domain.FinishAtTime(t), nil
	case domain.FinishBy:
		t, err := parseOptionalTime(f.Time, "finish time")
		if err != nil {
			return domain.FinishConstraint{}, err
		}
		return domain.FinishByTime(t), nil
	default:
		return domain.FinishConstraint{}, apperr.Validation(fmt.Sprintf("unknown finish kind %q", f.Kind))
	}
}

func parseOptionalTime(s *string, field string) (domain.TimeOfDay, error) {
	if s == nil {
		return domain.TimeOfDay{}, apperr.Validation(field + " is required for this constraint kind")
	}
	return domain.ParseTimeOfDay(*s)
}

// LineItemRequest is one template line on a new plan.
type LineItemRequest struct {
	Name      string  `json:"name" validate:"required,min=1,max=200"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice float64 `json:"unitPrice" validate:"min=0"`
	ItemType  string  `json:"itemType" validate:"omitempty,oneof=service material fee"`
	SortOrder int     `json:"sortOrder" validate:"min=0"`
}

// CreatePlanRequest creates a recurring plan. Dates use YYYY-MM-DD; endsAt
// is exclusive.
type CreatePlanRequest struct {
	ClientID             string            `json:"clientId" validate:"required,uuid"`
	Name                 string            `json:"name" validate:"required,min=2,max=200"`
	Description          *string           `json:"description,omitempty" validate:"omitempty,max=2000"`
	Address              *string           `json:"address,omitempty" validate:"omitempty,max=500"`
	Latitude             *float64          `json:"latitude,omitempty" validate:"omitempty,min=-90,max=90"`
	Longitude            *float64          `json:"longitude,omitempty" validate:"omitempty,min=-180,max=180"`
	StartsAt             string            `json:"startsAt" validate:"required,datetime=2006-01-02"`
	EndsAt               *string           `json:"endsAt,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Timezone             string            `json:"timezone" validate:"required,max=64"`
	GenerationWindowDays int               `json:"generationWindowDays" validate:"min=0,max=365"`
	MinAdvanceDays       int               `json:"minAdvanceDays" validate:"min=0,max=90"`
	BillingMode          string            `json:"billingMode" validate:"omitempty,oneof=per_visit flat_monthly none"`
	InvoiceTiming        string            `json:"invoiceTiming" validate:"omitempty,oneof=after_visit monthly manual"`
	AutoInvoice          bool              `json:"autoInvoice"`
	Priority             string            `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	Rule                 RuleRequest       `json:"rule" validate:"required"`
	LineItems            []LineItemRequest `json:"lineItems,omitempty" validate:"omitempty,max=50,dive"`
}

// ToServiceInput converts the request into the service input.
func (r CreatePlanRequest) ToServiceInput() (service.CreatePlanInput, error) {
	clientID, err := uuid.Parse(r.ClientID)
	if err != nil {
		return service.CreatePlanInput{}, apperr.Validation("clientId must be a valid UUID")
	}
	startsAt, err := parseDate(r.StartsAt)
	if err != nil {
		return service.CreatePlanInput{}, err
	}
	var endsAt *time.Time
	if r.EndsAt != nil {
		d, err := parseDate(*r.EndsAt)
		if err != nil {
			return service.CreatePlanInput{}, err
		}
		endsAt = &d
	}
	rule, err := r.Rule.ToDomain()
	if err != nil {
		return service.CreatePlanInput{}, err
	}

	input := service.CreatePlanInput{
		ClientID:             clientID,
		Name:                 r.Name,
		Description:          r.Description,
		Address:              r.Address,
		Latitude:             r.Latitude,
		Longitude:            r.Longitude,
		StartsAt:             startsAt,
		EndsAt:               endsAt,
		Timezone:             r.Timezone,
		GenerationWindowDays: r.GenerationWindowDays,
		MinAdvanceDays:       r.MinAdvanceDays,
		BillingMode:          defaultString(r.BillingMode, "per_visit"),
		InvoiceTiming:        defaultString(r.InvoiceTiming, "after_visit"),
		AutoInvoice:          r.AutoInvoice,
		Priority:             defaultString(r.Priority, "normal"),
		Rule:                 rule,
	}
	for _, li := range r.LineItems {
		input.LineItems = append(input.LineItems, service.LineItemInput{
			Name:      li.Name,
			Quantity:  li.Quantity,
			UnitPrice: li.UnitPrice,
			ItemType:  defaultString(li.ItemType, "service"),
			SortOrder: li.SortOrder,
		})
	}
	return input, nil
}

// GenerateRequest triggers a generation run.
type GenerateRequest struct {
	DaysAhead int `json:"daysAhead" validate:"omitempty,min=1,max=365"`
}

// SkipRequest retires a planned occurrence.
type SkipRequest struct {
	Reason string `json:"reason" validate:"required,min=2,max=500"`
}

// RescheduleRequest moves a planned occurrence to a new date. Omitted times
// keep the occurrence's current wall-clock times.
type RescheduleRequest struct {
	Date      string  `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime *string `json:"startTime,omitempty" validate:"omitempty,timeofday"`
	EndTime   *string `json:"endTime,omitempty" validate:"omitempty,timeofday"`
}

// ToServiceInput converts the request into the service input.
func (r RescheduleRequest) ToServiceInput() (service.RescheduleInput, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return service.RescheduleInput{}, err
	}
	input := service.RescheduleInput{Date: date}
	if r.StartTime != nil {
		t, err := domain.ParseTimeOfDay(*r.StartTime)
		if err != nil {
			return service.RescheduleInput{}, err
		}
		input.StartTime = &t
	}
	if r.EndTime != nil {
		t, err := domain.ParseTimeOfDay(*r.EndTime)
		if err != nil {
			return service.RescheduleInput{}, err
		}
		input.EndTime = &t
	}
	return input, nil
}

// BulkGenerateRequest promotes a batch of planned occurrences to visits.
type BulkGenerateRequest struct {
	OccurrenceIDs []string `json:"occurrenceIds" validate:"required,min=1,max=100,dive,uuid"`
}

// BulkSkipRequest retires a batch of planned occurrences under one reason.
type BulkSkipRequest struct {
	OccurrenceIDs []string `json:"occurrenceIds" validate:"required,min=1,max=100,dive,uuid"`
	Reason        string   `json:"reason" validate:"required,min=2,max=500"`
}

// BulkRescheduleRequest shifts a batch of planned occurrences by a day
// offset, keeping each occurrence's wall-clock times.
type BulkRescheduleRequest struct {
	OccurrenceIDs []string `json:"occurrenceIds" validate:"required,min=1,max=100,dive,uuid"`
	OffsetDays    int      `json:"offsetDays" validate:"required,ne=0,min=-365,max=365"`
}

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, apperr.Validation(fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", s))
	}
	return d, nil
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// RuleResponse is the wire form of a stored rule.
type RuleResponse struct {
	Frequency  string         `json:"frequency"`
	Interval   int            `json:"interval"`
	ByWeekday  []string       `json:"byWeekday,omitempty"`
	ByMonthDay int            `json:"byMonthDay,omitempty"`
	ByMonth    int            `json:"byMonth,omitempty"`
	Arrival    ArrivalRequest `json:"arrival"`
	Finish     FinishRequest  `json:"finish"`
}

func RuleToResponse(r domain.Rule) RuleResponse {
	resp := RuleResponse{
		Frequency:  string(r.Frequency),
		Interval:   r.Interval,
		ByMonthDay: r.ByMonthDay,
		ByMonth:    int(r.ByMonth),
		Arrival:    ArrivalRequest{Kind: string(r.Arrival.Kind)},
		Finish:     FinishRequest{Kind: string(r.Finish.Kind)},
	}
	for _, wd := range r.ByWeekday {
		resp.ByWeekday = append(resp.ByWeekday, weekdayNames[wd])
	}
	switch r.Arrival.Kind {
	case domain.ArrivalAt:
		resp.Arrival.Time = timeStringPtr(r.Arrival.At)
	case domain.ArrivalBetween:
		resp.Arrival.WindowStart = timeStringPtr(r.Arrival.WindowStart)
		resp.Arrival.WindowEnd = timeStringPtr(r.Arrival.WindowEnd)
	case domain.ArrivalBy:
		resp.Arrival.Deadline = timeStringPtr(r.Arrival.Deadline)
	}
	if r.Finish.Kind == domain.FinishAt || r.Finish.Kind == domain.FinishBy {
		resp.Finish.Time = timeStringPtr(r.Finish.At)
	}
	return resp
}

func timeStringPtr(t *domain.TimeOfDay) *string {
	if t == nil {
		return nil
	}
	s := t.String()
	return &s
}

// LineItemResponse is one template line on a plan.
type LineItemResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	ItemType  string  `json:"itemType"`
	SortOrder int     `json:"sortOrder"`
}

// PlanResponse is the wire form of a plan.
type PlanResponse struct {
	ID                   string             `json:"id"`
	ClientID             string             `json:"clientId"`
	Name                 string             `json:"name"`
	Description          *string            `json:"description,omitempty"`
	Address              *string            `json:"address,omitempty"`
	Latitude             *float64           `json:"latitude,omitempty"`
	Longitude            *float64           `json:"longitude,omitempty"`
	StartsAt             string             `json:"startsAt"`
	EndsAt               *string            `json:"endsAt,omitempty"`
	Timezone             string             `json:"timezone"`
	GenerationWindowDays int                `json:"generationWindowDays"`
	MinAdvanceDays       int                `json:"minAdvanceDays"`
	BillingMode          string             `json:"billingMode"`
	InvoiceTiming        string             `json:"invoiceTiming"`
	AutoInvoice          bool               `json:"autoInvoice"`
	Priority             string             `json:"priority"`
	Status               string             `json:"status"`
	LastGeneratedThrough *string            `json:"lastGeneratedThrough,omitempty"`
	Rule                 *RuleResponse      `json:"rule,omitempty"`
	LineItems            []LineItemResponse `json:"lineItems,omitempty"`
	CreatedAt            time.Time          `json:"createdAt"`
	UpdatedAt            time.Time          `json:"updatedAt"`
}

func PlanToResponse(p repository.Plan) PlanResponse {
	resp := PlanResponse{
		ID:                   p.ID.String(),
		ClientID:             p.ClientID.String(),
		Name:                 p.Name,
		Description:          p.Description,
		Address:              p.Address,
		Latitude:             p.Latitude,
		Longitude:            p.Longitude,
		StartsAt:             p.StartsAt.Format(dateLayout),
		Timezone:             p.Timezone,
		GenerationWindowDays: p.GenerationWindowDays,
		MinAdvanceDays:       p.MinAdvanceDays,
		BillingMode:          p.BillingMode,
		InvoiceTiming:        p.InvoiceTiming,
		AutoInvoice:          p.AutoInvoice,
		Priority:             p.Priority,
		Status:               p.Status,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
	if p.EndsAt != nil {
		s := p.EndsAt.Format(dateLayout)
		resp.EndsAt = &s
	}
	if p.LastGeneratedThrough != nil {
		s := p.LastGeneratedThrough.Format(dateLayout)
		resp.LastGeneratedThrough = &s
	}
	return resp
}

func PlanDetailToResponse(d *service.PlanDetail) PlanResponse {
	resp := PlanToResponse(d.Plan)
	rule := RuleToResponse(d.Rule)
	resp.Rule = &rule
	for _, it := range d.LineItems {
		resp.LineItems = append(resp.LineItems, LineItemResponse{
			ID:        it.ID.String(),
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			ItemType:  it.ItemType,
			SortOrder: it.SortOrder,
		})
	}
	return resp
}

// OccurrenceResponse is the wire form of an occurrence.
type OccurrenceResponse struct {
	ID                 string     `json:"id"`
	PlanID             string     `json:"planId"`
	Date               string     `json:"date"`
	StartAt            time.Time  `json:"startAt"`
	EndAt              time.Time  `json:"endAt"`
	ArrivalWindowStart *time.Time `json:"arrivalWindowStart,omitempty"`
	ArrivalWindowEnd   *time.Time `json:"arrivalWindowEnd,omitempty"`
	Status             string     `json:"status"`
	JobVisitID         *string    `json:"jobVisitId,omitempty"`
	SkipReason         *string    `json:"skipReason,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func OccurrenceToResponse(o repository.Occurrence) OccurrenceResponse {
	resp := OccurrenceResponse{
		ID:                 o.ID.String(),
		PlanID:             o.PlanID.String(),
		Date:               o.OccurrenceDate.Format(dateLayout),
		StartAt:            o.StartAt,
		EndAt:              o.EndAt,
		ArrivalWindowStart: o.ArrivalWindowStart,
		ArrivalWindowEnd:   o.ArrivalWindowEnd,
		Status:             o.Status,
		SkipReason:         o.SkipReason,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
	if o.JobVisitID != nil {
		s := o.JobVisitID.String()
		resp.JobVisitID = &s
	}
	return resp
}

// GenerationResponse reports the outcome of one generation run.
type GenerationResponse struct {
	PlanID          string   `json:"planId"`
	Created         int      `json:"created"`
	OccurrenceIDs   []string `json:"occurrenceIds"`
	SkippedExisting int      `json:"skippedExisting"`
	From            *string  `json:"from,omitempty"`
	Through         *string  `json:"through,omitempty"`
}

func GenerationToResponse(res *service.GenerationResult) GenerationResponse {
	resp := GenerationResponse{
		PlanID:          res.PlanID.String(),
		Created:         len(res.CreatedIDs),
		OccurrenceIDs:   make([]string, 0, len(res.CreatedIDs)),
		SkippedExisting: res.SkippedExisting,
	}
	for _, id := range res.CreatedIDs {
		resp.OccurrenceIDs = append(resp.OccurrenceIDs, id.String())
	}
	if !res.From.IsZero() {
		s := res.From.Format(dateLayout)
		resp.From = &s
	}
	if !res.Through.IsZero() {
		s := res.Through.Format(dateLayout)
		resp.Through = &s
	}
	return resp
}

// BulkVisitResponse is the per-occurrence outcome of a bulk promotion.
type BulkVisitResponse struct {
	OccurrenceID string  `json:"occurrenceId"`
	VisitID      *string `json:"visitId,omitempty"`
	Error        string  `json:"error,omitempty"`
}

func BulkResultsToResponse(results []service.BulkVisitResult) []BulkVisitResponse {
	out := make([]BulkVisitResponse, 0, len(results))
	for _, r := range results {
		item := BulkVisitResponse{OccurrenceID: r.OccurrenceID.String(), Error: r.Error}
		if r.VisitID != nil {
			s := r.VisitID.String()
			item.VisitID = &s
		}
		out = append(out, item)
	}
	return out
}

// BulkOpResponse is the per-occurrence outcome of a bulk skip or reschedule.
type BulkOpResponse struct {
	OccurrenceID string `json:"occurrenceId"`
	Error        string `json:"error,omitempty"`
}

func BulkOpResultsToResponse(results []service.BulkOpResult) []BulkOpResponse {
	out := make([]BulkOpResponse, 0, len(results))
	for _, r := range results {
		out = append(out, BulkOpResponse{OccurrenceID: r.OccurrenceID.String(), Error: r.Error})
	}
	return out
}

// Paginated wraps a listing with its page metadata.
type Paginated[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}
