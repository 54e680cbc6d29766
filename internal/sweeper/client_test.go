package sweeper

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type testSchedulerConfig struct {
	url string
}

func (c testSchedulerConfig) GetRedisURL() string             { return c.url }
func (c testSchedulerConfig) GetRedisTLSInsecure() bool       { return false }
func (c testSchedulerConfig) GetAsynqQueueName() string       { return "dispatch" }
func (c testSchedulerConfig) GetAsynqConcurrency() int        { return 5 }
func (c testSchedulerConfig) GetSweepInterval() time.Duration { return time.Minute }

func TestClientEnqueuesTasks(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(testSchedulerConfig{url: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	planID := uuid.New()
	if err := client.EnqueueSweep(ctx, PlanSweepPayload{}); err != nil {
		t.Fatalf("EnqueueSweep: %v", err)
	}
	if err := client.EnqueuePlanGenerate(ctx, PlanGeneratePayload{PlanID: planID.String(), DaysAhead: 14}); err != nil {
		t.Fatalf("EnqueuePlanGenerate: %v", err)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer inspector.Close()

	tasks, err := inspector.ListPendingTasks("dispatch")
	if err != nil {
		t.Fatalf("ListPendingTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("pending tasks = %d, want 2", len(tasks))
	}

	byType := map[string][]byte{}
	for _, task := range tasks {
		byType[task.Type] = task.Payload
	}
	if _, ok := byType[TaskPlanSweep]; !ok {
		t.Fatalf("sweep task not enqueued")
	}
	raw, ok := byType[TaskPlanGenerate]
	if !ok {
		t.Fatalf("generate task not enqueued")
	}

	var payload PlanGeneratePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("payload unmarshal: %v", err)
	}
	if payload.PlanID != planID.String() || payload.DaysAhead != 14 {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestNewClientRequiresRedisURL(t *testing.T) {
	if _, err := NewClient(testSchedulerConfig{url: ""}); err == nil {
		t.Fatalf("want error for missing redis url")
	}
}
