// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"dispatch_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Recurring Plan Events
// =============================================================================

// OccurrencesGenerated is published after a generation run persists new
// occurrences for a plan.
type OccurrencesGenerated struct {
	BaseEvent
	PlanID          uuid.UUID   `json:"planId"`
	OccurrenceIDs   []uuid.UUID `json:"occurrenceIds"`
	SkippedExisting int         `json:"skippedExisting"`
	Through         time.Time   `json:"through"`
}

func (e OccurrencesGenerated) EventName() string { return "plans.occurrences.generated" }

// PlanCancelled is published when a plan is cancelled and its remaining
// planned occurrences are cascaded to cancelled.
type PlanCancelled struct {
	BaseEvent
	PlanID              uuid.UUID `json:"planId"`
	ClientID            uuid.UUID `json:"clientId"`
	CancelledOccurrence int       `json:"cancelledOccurrences"`
}

func (e PlanCancelled) EventName() string { return "plans.cancelled" }

// PlanCompleted is published when a plan reaches its Completed terminal state.
type PlanCompleted struct {
	BaseEvent
	PlanID   uuid.UUID `json:"planId"`
	ClientID uuid.UUID `json:"clientId"`
}

func (e PlanCompleted) EventName() string { return "plans.completed" }

// =============================================================================
// Visit Events
// =============================================================================

// VisitGenerated is published when a planned occurrence is promoted into a
// job visit. It carries the plan's billing hints so an external billing
// collaborator can decide whether and when to invoice; the engine itself
// never computes invoices.
type VisitGenerated struct {
	BaseEvent
	VisitID       uuid.UUID `json:"visitId"`
	OccurrenceID  uuid.UUID `json:"occurrenceId"`
	PlanID        uuid.UUID `json:"planId"`
	ClientID      uuid.UUID `json:"clientId"`
	BillingMode   string    `json:"billingMode"`
	InvoiceTiming string    `json:"invoiceTiming"`
	AutoInvoice   bool      `json:"autoInvoice"`
	StartAt       time.Time `json:"startAt"`
	EndAt         time.Time `json:"endAt"`
}

func (e VisitGenerated) EventName() string { return "visits.generated" }

// VisitCompleted is published when a job visit is marked complete.
type VisitCompleted struct {
	BaseEvent
	VisitID      uuid.UUID  `json:"visitId"`
	PlanID       *uuid.UUID `json:"planId,omitempty"`
	OccurrenceID *uuid.UUID `json:"occurrenceId,omitempty"`
	ClientID     uuid.UUID  `json:"clientId"`
}

func (e VisitCompleted) EventName() string { return "visits.completed" }
