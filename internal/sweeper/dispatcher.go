package sweeper

import (
	"context"
	"time"

	"dispatch_backend/platform/config"
	"dispatch_backend/platform/logger"
)

// Dispatcher enqueues a sweep task on a fixed interval. It owns no
// scheduling state; the plans' generation watermarks make repeated sweeps
// harmless.
type Dispatcher struct {
	client   *Client
	interval time.Duration
	log      *logger.Logger
}

func NewDispatcher(cfg config.SchedulerConfig, client *Client, log *logger.Logger) *Dispatcher {
	interval := cfg.GetSweepInterval()
	if interval <= 0 {
		interval = time.Hour
	}
	return &Dispatcher{
		client:   client,
		interval: interval,
		log:      log,
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil {
		return
	}

	// Sweep once on startup so a fresh deployment catches up immediately.
	if err := d.client.EnqueueSweep(ctx, PlanSweepPayload{}); err != nil {
		d.log.Warn("initial sweep enqueue failed", "error", err)
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := d.client.EnqueueSweep(ctx, PlanSweepPayload{}); err != nil {
			d.log.Warn("sweep enqueue failed", "error", err)
		}
	}
}
