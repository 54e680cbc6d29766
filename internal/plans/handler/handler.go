// Package handler exposes the plans and occurrences HTTP endpoints.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dispatch_backend/internal/plans/repository"
	"dispatch_backend/internal/plans/service"
	"dispatch_backend/internal/plans/transport"
	"dispatch_backend/platform/httpkit"
	"dispatch_backend/platform/validator"
)

type Handler struct {
	svc      *service.Service
	validate *validator.Validator
}

func New(svc *service.Service, validate *validator.Validator) *Handler {
	return &Handler{svc: svc, validate: validate}
}

// CreatePlan handles POST /plans.
func (h *Handler) CreatePlan(c *gin.Context) {
	var req transport.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	input, err := req.ToServiceInput()
	if httpkit.HandleError(c, err) {
		return
	}
	detail, err := h.svc.CreatePlan(c.Request.Context(), input)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.PlanDetailToResponse(detail))
}

// GetPlan handles GET /plans/:planId.
func (h *Handler) GetPlan(c *gin.Context) {
	id, ok := parseID(c, "planId")
	if !ok {
		return
	}
	detail, err := h.svc.GetPlan(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.PlanDetailToResponse(detail))
}

// ListPlans handles GET /plans.
func (h *Handler) ListPlans(c *gin.Context) {
	params := repository.ListPlansParams{
		Search:   c.Query("search"),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "pageSize", 20),
	}
	if raw := c.Query("clientId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid clientId", nil)
			return
		}
		params.ClientID = &id
	}
	if status := c.Query("status"); status != "" {
		params.Status = &status
	}

	result, err := h.svc.ListPlans(c.Request.Context(), params)
	if httpkit.HandleError(c, err) {
		return
	}

	items := make([]transport.PlanResponse, 0, len(result.Items))
	for _, p := range result.Items {
		items = append(items, transport.PlanToResponse(p))
	}
	httpkit.OK(c, transport.Paginated[transport.PlanResponse]{
		Items:      items,
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	})
}

// UpdateRule handles PUT /plans/:planId/rule.
func (h *Handler) UpdateRule(c *gin.Context) {
	id, ok := parseID(c, "planId")
	if !ok {
		return
	}
	var req transport.RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	rule, err := req.ToDomain()
	if httpkit.HandleError(c, err) {
		return
	}
	if err := h.svc.UpdateRule(c.Request.Context(), id, rule); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"updated": true})
}

// PausePlan handles POST /plans/:planId/pause.
func (h *Handler) PausePlan(c *gin.Context) {
	h.transition(c, h.svc.PausePlan)
}

// ResumePlan handles POST /plans/:planId/resume.
func (h *Handler) ResumePlan(c *gin.Context) {
	h.transition(c, h.svc.ResumePlan)
}

// CancelPlan handles POST /plans/:planId/cancel.
func (h *Handler) CancelPlan(c *gin.Context) {
	h.transition(c, h.svc.CancelPlan)
}

// CompletePlan handles POST /plans/:planId/complete.
func (h *Handler) CompletePlan(c *gin.Context) {
	h.transition(c, h.svc.CompletePlan)
}

func (h *Handler) transition(c *gin.Context, fn func(ctx context.Context, id uuid.UUID) error) {
	id, ok := parseID(c, "planId")
	if !ok {
		return
	}
	if err := fn(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	detail, err := h.svc.GetPlan(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.PlanDetailToResponse(detail))
}

// Generate handles POST /plans/:planId/generate.
func (h *Handler) Generate(c *gin.Context) {
	id, ok := parseID(c, "planId")
	if !ok {
		return
	}
	req := transport.GenerateRequest{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
			return
		}
	}

	result, err := h.svc.Generate(c.Request.Context(), id, req.DaysAhead)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.GenerationToResponse(result))
}

// ListOccurrences handles GET /plans/:planId/occurrences.
func (h *Handler) ListOccurrences(c *gin.Context) {
	id, ok := parseID(c, "planId")
	if !ok {
		return
	}
	params := repository.ListOccurrencesParams{
		PlanID:   id,
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "pageSize", 50),
	}
	if status := c.Query("status"); status != "" {
		params.Status = &status
	}
	var ok2 bool
	if params.DateFrom, ok2 = queryDate(c, "from"); !ok2 {
		return
	}
	if params.DateTo, ok2 = queryDate(c, "to"); !ok2 {
		return
	}

	result, err := h.svc.ListOccurrences(c.Request.Context(), params)
	if httpkit.HandleError(c, err) {
		return
	}

	items := make([]transport.OccurrenceResponse, 0, len(result.Items))
	for _, o := range result.Items {
		items = append(items, transport.OccurrenceToResponse(o))
	}
	httpkit.OK(c, transport.Paginated[transport.OccurrenceResponse]{
		Items:      items,
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	})
}

// GetOccurrence handles GET /occurrences/:occurrenceId.
func (h *Handler) GetOccurrence(c *gin.Context) {
	id, ok := parseID(c, "occurrenceId")
	if !ok {
		return
	}
	occ, err := h.svc.GetOccurrence(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.OccurrenceToResponse(*occ))
}

// SkipOccurrence handles POST /occurrences/:occurrenceId/skip.
func (h *Handler) SkipOccurrence(c *gin.Context) {
	id, ok := parseID(c, "occurrenceId")
	if !ok {
		return
	}
	var req transport.SkipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	occ, err := h.svc.SkipOccurrence(c.Request.Context(), id, req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.OccurrenceToResponse(*occ))
}

// RescheduleOccurrence handles POST /occurrences/:occurrenceId/reschedule.
func (h *Handler) RescheduleOccurrence(c *gin.Context) {
	id, ok := parseID(c, "occurrenceId")
	if !ok {
		return
	}
	var req transport.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	input, err := req.ToServiceInput()
	if httpkit.HandleError(c, err) {
		return
	}
	occ, err := h.svc.RescheduleOccurrence(c.Request.Context(), id, input)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.OccurrenceToResponse(*occ))
}

// GenerateVisit handles POST /occurrences/:occurrenceId/generate-visit.
func (h *Handler) GenerateVisit(c *gin.Context) {
	id, ok := parseID(c, "occurrenceId")
	if !ok {
		return
	}
	occ, visitID, err := h.svc.GenerateVisit(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, gin.H{
		"occurrence": transport.OccurrenceToResponse(*occ),
		"visitId":    visitID.String(),
	})
}

// BulkGenerateVisits handles POST /occurrences/bulk-generate-visits.
func (h *Handler) BulkGenerateVisits(c *gin.Context) {
	var req transport.BulkGenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	ids := make([]uuid.UUID, 0, len(req.OccurrenceIDs))
	for _, raw := range req.OccurrenceIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid occurrence id", raw)
			return
		}
		ids = append(ids, id)
	}

	results := h.svc.BulkGenerateVisits(c.Request.Context(), ids)
	httpkit.OK(c, gin.H{"results": transport.BulkResultsToResponse(results)})
}

// BulkSkip handles POST /occurrences/bulk/skip.
func (h *Handler) BulkSkip(c *gin.Context) {
	var req transport.BulkSkipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	ids := make([]uuid.UUID, 0, len(req.OccurrenceIDs))
	for _, raw := range req.OccurrenceIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid occurrence id", raw)
			return
		}
		ids = append(ids, id)
	}

	results := h.svc.BulkSkip(c.Request.Context(), ids, req.Reason)
	httpkit.OK(c, gin.H{"results": transport.BulkOpResultsToResponse(results)})
}

// BulkReschedule handles POST /occurrences/bulk/reschedule.
func (h *Handler) BulkReschedule(c *gin.Context) {
	var req transport.BulkRescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	ids := make([]uuid.UUID, 0, len(req.OccurrenceIDs))
	for _, raw := range req.OccurrenceIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid occurrence id", raw)
			return
		}
		ids = append(ids, id)
	}

	results := h.svc.BulkReschedule(c.Request.Context(), ids, req.OffsetDays)
	httpkit.OK(c, gin.H{"results": transport.BulkOpResultsToResponse(results)})
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid "+param, nil)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func queryDate(c *gin.Context, key string) (*time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid "+key+" date, expected YYYY-MM-DD", nil)
		return nil, false
	}
	return &d, true
}
