// Package handler exposes the visits HTTP endpoints.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dispatch_backend/internal/visits/service"
	"dispatch_backend/internal/visits/transport"
	"dispatch_backend/platform/httpkit"
)

type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// GetVisit handles GET /visits/:visitId.
func (h *Handler) GetVisit(c *gin.Context) {
	id, err := uuid.Parse(c.Param("visitId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid visitId", nil)
		return
	}
	detail, err := h.svc.GetVisit(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.VisitDetailToResponse(detail))
}

// ListVisits handles GET /visits?planId=...
func (h *Handler) ListVisits(c *gin.Context) {
	raw := c.Query("planId")
	if raw == "" {
		httpkit.Error(c, http.StatusBadRequest, "planId query parameter is required", nil)
		return
	}
	planID, err := uuid.Parse(raw)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid planId", nil)
		return
	}

	visits, err := h.svc.ListByPlan(c.Request.Context(), planID)
	if httpkit.HandleError(c, err) {
		return
	}
	items := make([]transport.VisitResponse, 0, len(visits))
	for _, v := range visits {
		items = append(items, transport.VisitToResponse(v))
	}
	httpkit.OK(c, gin.H{"items": items, "total": len(items)})
}

// CompleteVisit handles POST /visits/:visitId/complete.
func (h *Handler) CompleteVisit(c *gin.Context) {
	id, err := uuid.Parse(c.Param("visitId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid visitId", nil)
		return
	}
	visit, err := h.svc.CompleteVisit(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.VisitToResponse(*visit))
}
