// Package transport defines the wire DTOs of the visits API.
package transport

import (
	"time"

	"dispatch_backend/internal/visits/repository"
	"dispatch_backend/internal/visits/service"
)

// LineItemResponse is one billable line on a visit.
type LineItemResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	ItemType  string  `json:"itemType"`
	SortOrder int     `json:"sortOrder"`
}

// VisitResponse is the wire form of a job visit.
type VisitResponse struct {
	ID                 string             `json:"id"`
	ClientID           string             `json:"clientId"`
	PlanID             *string            `json:"planId,omitempty"`
	OccurrenceID       *string            `json:"occurrenceId,omitempty"`
	Name               string             `json:"name"`
	Address            *string            `json:"address,omitempty"`
	Latitude           *float64           `json:"latitude,omitempty"`
	Longitude          *float64           `json:"longitude,omitempty"`
	StartAt            time.Time          `json:"startAt"`
	EndAt              time.Time          `json:"endAt"`
	ArrivalWindowStart *time.Time         `json:"arrivalWindowStart,omitempty"`
	ArrivalWindowEnd   *time.Time         `json:"arrivalWindowEnd,omitempty"`
	Priority           string             `json:"priority"`
	Status             string             `json:"status"`
	BillingMode        string             `json:"billingMode"`
	InvoiceTiming      string             `json:"invoiceTiming"`
	AutoInvoice        bool               `json:"autoInvoice"`
	CompletedAt        *time.Time         `json:"completedAt,omitempty"`
	LineItems          []LineItemResponse `json:"lineItems,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

func VisitToResponse(v repository.Visit) VisitResponse {
	resp := VisitResponse{
		ID:                 v.ID.String(),
		ClientID:           v.ClientID.String(),
		Name:               v.Name,
		Address:            v.Address,
		Latitude:           v.Latitude,
		Longitude:          v.Longitude,
		StartAt:            v.StartAt,
		EndAt:              v.EndAt,
		ArrivalWindowStart: v.ArrivalWindowStart,
		ArrivalWindowEnd:   v.ArrivalWindowEnd,
		Priority:           v.Priority,
		Status:             v.Status,
		BillingMode:        v.BillingMode,
		InvoiceTiming:      v.InvoiceTiming,
		AutoInvoice:        v.AutoInvoice,
		CompletedAt:        v.CompletedAt,
		CreatedAt:          v.CreatedAt,
		UpdatedAt:          v.UpdatedAt,
	}
	if v.PlanID != nil {
		s := v.PlanID.String()
		resp.PlanID = &s
	}
	if v.OccurrenceID != nil {
		s := v.OccurrenceID.String()
		resp.OccurrenceID = &s
	}
	return resp
}

func VisitDetailToResponse(d *service.VisitDetail) VisitResponse {
	resp := VisitToResponse(d.Visit)
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
