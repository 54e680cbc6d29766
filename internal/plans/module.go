// Package plans wires the recurring plan engine: repository, service and
// HTTP handlers for plans and their occurrences.
package plans

import (
	"context"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatch_backend/internal/events"
	apphttp "dispatch_backend/internal/http"
	"dispatch_backend/internal/plans/domain"
	"dispatch_backend/internal/plans/handler"
	"dispatch_backend/internal/plans/repository"
	"dispatch_backend/internal/plans/service"
	"dispatch_backend/platform/config"
	"dispatch_backend/platform/logger"
	"dispatch_backend/platform/validator"
)

// Module bundles the plans bounded context.
type Module struct {
	svc     *service.Service
	handler *handler.Handler
}

// New wires the module. visits may not be nil; the occurrence promotion
// endpoints depend on it.
func New(pool *pgxpool.Pool, visits service.VisitCreator, bus events.Bus, cfg config.EngineConfig, log *logger.Logger, validate *validator.Validator) (*Module, error) {
	defaults, err := service.DefaultsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if err := validate.RegisterValidation("timeofday", func(fl validatorv10.FieldLevel) bool {
		_, err := domain.ParseTimeOfDay(fl.Field().String())
		return err == nil
	}); err != nil {
		return nil, err
	}

	store := repository.NewPostgresStore(pool)
	svc := service.New(store, visits, bus, domain.SystemClock{}, defaults, cfg.GetDefaultDaysAhead(), log)

	// Retire the linked occurrence whenever a visit finishes.
	bus.Subscribe(events.VisitCompleted{}.EventName(), events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		completed, ok := e.(events.VisitCompleted)
		if !ok {
			return nil
		}
		return svc.CompleteOccurrenceForVisit(ctx, completed.VisitID)
	}))

	return &Module{
		svc:     svc,
		handler: handler.New(svc, validate),
	}, nil
}

// Service exposes the plan service for other modules and the sweeper.
func (m *Module) Service() *service.Service { return m.svc }

func (m *Module) Name() string { return "plans" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	plans := ctx.V1.Group("/plans")
	{
		plans.POST("", m.handler.CreatePlan)
		plans.GET("", m.handler.ListPlans)
		plans.GET("/:planId", m.handler.GetPlan)
		plans.PUT("/:planId/rule", m.handler.UpdateRule)
		plans.POST("/:planId/pause", m.handler.PausePlan)
		plans.POST("/:planId/resume", m.handler.ResumePlan)
		plans.POST("/:planId/cancel", m.handler.CancelPlan)
		plans.POST("/:planId/complete", m.handler.CompletePlan)
		plans.POST("/:planId/generate", m.handler.Generate)
		plans.GET("/:planId/occurrences", m.handler.ListOccurrences)
	}

	occurrences := ctx.V1.Group("/occurrences")
	{
		occurrences.GET("/:occurrenceId", m.handler.GetOccurrence)
		occurrences.POST("/:occurrenceId/skip", m.handler.SkipOccurrence)
		occurrences.POST("/:occurrenceId/reschedule", m.handler.RescheduleOccurrence)
		occurrences.POST("/:occurrenceId/generate-visit", m.handler.GenerateVisit)
		occurrences.POST("/bulk/skip", m.handler.BulkSkip)
		occurrences.POST("/bulk/reschedule", m.handler.BulkReschedule)
		occurrences.POST("/bulk/generate-visits", m.handler.BulkGenerateVisits)
	}
}
