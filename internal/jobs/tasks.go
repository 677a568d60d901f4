package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeSessionPrune     = "session:prune"
	TaskTypeIdempotencySweep = "idempotency:sweep"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues is the priority map handed to the worker.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

// SessionPrunePayload overrides the configured session ttl when OlderThan is set.
type SessionPrunePayload struct {
	OlderThan time.Duration `json:"older_than,omitempty"`
}

type IdempotencySweepPayload struct {
	MaxTTL time.Duration `json:"max_ttl"`
}

func NewSessionPruneTask(olderThan time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(SessionPrunePayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeSessionPrune, payload, asynq.Queue(QueueLow), asynq.MaxRetry(3)), nil
}

func NewIdempotencySweepTask(maxTTL time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(IdempotencySweepPayload{MaxTTL: maxTTL})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeIdempotencySweep, payload, asynq.Queue(QueueLow), asynq.MaxRetry(1)), nil
}
