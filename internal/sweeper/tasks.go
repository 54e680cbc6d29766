// Package sweeper runs the background generation loop: a periodic sweep
// task fans out into one generation task per active plan.
package sweeper

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskPlanSweep = "plans.sweep"

const TaskPlanGenerate = "plans.generate"

type PlanSweepPayload struct {
	// DaysAhead overrides the configured horizon; zero keeps the default.
	DaysAhead int `json:"daysAhead,omitempty"`
}

type PlanGeneratePayload struct {
	PlanID    string `json:"planId"`
	DaysAhead int    `json:"daysAhead,omitempty"`
}

func NewPlanSweepTask(payload PlanSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPlanSweep, data), nil
}

func ParsePlanSweepPayload(task *asynq.Task) (PlanSweepPayload, error) {
	var payload PlanSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return PlanSweepPayload{}, err
	}
	return payload, nil
}

func NewPlanGenerateTask(payload PlanGeneratePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPlanGenerate, data), nil
}

func ParsePlanGeneratePayload(task *asynq.Task) (PlanGeneratePayload, error) {
	var payload PlanGeneratePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return PlanGeneratePayload{}, err
	}
	return payload, nil
}
