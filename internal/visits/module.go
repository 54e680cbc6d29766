// Package visits wires the job visit bounded context.
package visits

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatch_backend/internal/events"
	apphttp "dispatch_backend/internal/http"
	"dispatch_backend/internal/visits/handler"
	"dispatch_backend/internal/visits/repository"
	"dispatch_backend/internal/visits/service"
	"dispatch_backend/platform/logger"
)

// Module bundles the visits bounded context.
type Module struct {
	svc     *service.Service
	handler *handler.Handler
}

func New(pool *pgxpool.Pool, bus events.Bus, log *logger.Logger) *Module {
	store := repository.NewPostgresStore(pool)
	svc := service.New(store, bus, log)
	return &Module{
		svc:     svc,
		handler: handler.New(svc),
	}
}

// Service exposes the visit service so the plans module can promote
// occurrences through it.
func (m *Module) Service() *service.Service { return m.svc }

func (m *Module) Name() string { return "visits" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	visits := ctx.V1.Group("/visits")
	{
		visits.GET("", m.handler.ListVisits)
		visits.GET("/:visitId", m.handler.GetVisit)
		visits.POST("/:visitId/complete", m.handler.CompleteVisit)
	}
}
