package sweeper

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	plansvc "dispatch_backend/internal/plans/service"
	"dispatch_backend/platform/apperr"
	"dispatch_backend/platform/config"
	"dispatch_backend/platform/logger"
)

// Worker consumes sweep and generation tasks. A sweep lists the active
// plans and fans out one generation task per plan, so a slow plan never
// stalls its siblings.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	client *Client
	plans  *plansvc.Service
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, plans *plansvc.Service, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		client: client,
		plans:  plans,
		log:    log,
	}

	mux.HandleFunc(TaskPlanSweep, w.handlePlanSweep)
	mux.HandleFunc(TaskPlanGenerate, w.handlePlanGenerate)

	return w, nil
}

func (w *Worker) handlePlanSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParsePlanSweepPayload(task)
	if err != nil {
		return err
	}

	ids, err := w.plans.ActivePlanIDs(ctx)
	if err != nil {
		return err
	}
	w.log.Info("plan sweep started", "active_plans", len(ids))

	for _, id := range ids {
		err := w.client.EnqueuePlanGenerate(ctx, PlanGeneratePayload{
			PlanID:    id.String(),
			DaysAhead: payload.DaysAhead,
		})
		if err != nil {
			w.log.Warn("failed to enqueue plan generation", "plan_id", id.String(), "error", err)
		}
	}
	return nil
}

func (w *Worker) handlePlanGenerate(ctx context.Context, task *asynq.Task) error {
	payload, err := ParsePlanGeneratePayload(task)
	if err != nil {
		return err
	}

	planID, err := uuid.Parse(payload.PlanID)
	if err != nil {
		return err
	}

	_, err = w.plans.Generate(ctx, planID, payload.DaysAhead)
	if err != nil {
		// The plan may have been paused or retired since the sweep; that
		// is not a task failure.
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			switch appErr.Kind {
			case apperr.KindInvalidState, apperr.KindNotFound:
				w.log.Info("skipping generation", "plan_id", payload.PlanID, "reason", appErr.Message)
				return nil
			}
		}
		return err
	}
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("sweeper worker stopped", "error", err)
	}
}

func (w *Worker) Close() error {
	return w.client.Close()
}
