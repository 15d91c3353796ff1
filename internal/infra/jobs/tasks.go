// Package jobs provides background job definitions and handlers using Asynq.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task types.
const (
	TypeRunConnector = "connector:run"
)

// Queue names.
const (
	QueueDefault    = "default"
	QueueConnectors = "connectors"
)

// RunConnectorPayload identifies the persisted job a worker should execute.
type RunConnectorPayload struct {
	JobID     string `json:"job_id"`
	EnclaveID string `json:"enclave_id"`
}

// NewRunConnectorTask creates a connector run task. Retries are disabled:
// the job row is the source of truth and a failed run is terminal; the next
// trigger creates a fresh job.
func NewRunConnectorTask(payload RunConnectorPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run connector payload: %w", err)
	}
	return asynq.NewTask(
		TypeRunConnector,
		data,
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Minute),
		asynq.Queue(QueueConnectors),
	), nil
}
