// Package job defines one execution attempt of a connector and its state
// machine: pending -> running -> completed | failed.
package job

import (
	"fmt"
	"time"

	"github.com/opennhi/api/pkg/domain/shared"
)

// Status is the job state.
type Status string

// Job states. Completed and failed are terminal.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Trigger records what started the job.
type Trigger string

// Triggers.
const (
	TriggerSchedule  Trigger = "schedule"
	TriggerManual    Trigger = "manual"
	TriggerCollector Trigger = "collector"
)

// Job is one execution attempt of a connector.
type Job struct {
	id              shared.ID
	connectorID     shared.ID
	enclaveID       shared.ID
	status          Status
	triggeredBy     Trigger
	startedAt       *time.Time
	completedAt     *time.Time
	recordsFound    int
	findingsCount   int
	unresolvedCount int
	errorMessage    string
	createdAt       time.Time
	updatedAt       time.Time
}

// New creates a pending Job.
func New(connectorID, enclaveID shared.ID, triggeredBy Trigger) (*Job, error) {
	if connectorID.IsZero() {
		return nil, fmt.Errorf("%w: connector id is required", shared.ErrValidation)
	}
	if enclaveID.IsZero() {
		return nil, fmt.Errorf("%w: enclave id is required", shared.ErrValidation)
	}

	now := time.Now().UTC()
	return &Job{
		id:          shared.NewID(),
		connectorID: connectorID,
		enclaveID:   enclaveID,
		status:      StatusPending,
		triggeredBy: triggeredBy,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// Reconstitute recreates a Job from persistence.
func Reconstitute(
	id, connectorID, enclaveID shared.ID,
	status Status,
	triggeredBy Trigger,
	startedAt, completedAt *time.Time,
	recordsFound, findingsCount, unresolvedCount int,
	errorMessage string,
	createdAt, updatedAt time.Time,
) *Job {
	return &Job{
		id:              id,
		connectorID:     connectorID,
		enclaveID:       enclaveID,
		status:          status,
		triggeredBy:     triggeredBy,
		startedAt:       startedAt,
		completedAt:     completedAt,
		recordsFound:    recordsFound,
		findingsCount:   findingsCount,
		unresolvedCount: unresolvedCount,
		errorMessage:    errorMessage,
		createdAt:       createdAt,
		updatedAt:       updatedAt,
	}
}

// ID returns the job ID.
func (j *Job) ID() shared.ID { return j.id }

// ConnectorID returns the connector this job executes.
func (j *Job) ConnectorID() shared.ID { return j.connectorID }

// EnclaveID returns the owning enclave.
func (j *Job) EnclaveID() shared.ID { return j.enclaveID }

// Status returns the current state.
func (j *Job) Status() Status { return j.status }

// TriggeredBy returns what started the job.
func (j *Job) TriggeredBy() Trigger { return j.triggeredBy }

// StartedAt returns when the job began running.
func (j *Job) StartedAt() *time.Time { return j.startedAt }

// CompletedAt returns when the job reached a terminal state.
func (j *Job) CompletedAt() *time.Time { return j.completedAt }

// RecordsFound returns how many raw records the fetch produced.
func (j *Job) RecordsFound() int { return j.recordsFound }

// FindingsCount returns how many findings were durably written.
func (j *Job) FindingsCount() int { return j.findingsCount }

// UnresolvedCount returns how many findings could not be fingerprinted.
func (j *Job) UnresolvedCount() int { return j.unresolvedCount }

// ErrorMessage returns the failure cause for failed jobs.
func (j *Job) ErrorMessage() string { return j.errorMessage }

// CreatedAt returns the creation timestamp.
func (j *Job) CreatedAt() time.Time { return j.createdAt }

// UpdatedAt returns the last update timestamp.
func (j *Job) UpdatedAt() time.Time { return j.updatedAt }

// Start transitions pending -> running.
func (j *Job) Start() error {
	if j.status != StatusPending {
		return transitionError(j.status, StatusRunning)
	}
	now := time.Now().UTC()
	j.status = StatusRunning
	j.startedAt = &now
	j.updatedAt = now
	return nil
}

// Complete transitions running -> completed. By the time a job completes,
// normalization has already upserted the identities for its findings.
func (j *Job) Complete(recordsFound, findingsCount, unresolvedCount int) error {
	if j.status != StatusRunning {
		return transitionError(j.status, StatusCompleted)
	}
	now := time.Now().UTC()
	j.status = StatusCompleted
	j.completedAt = &now
	j.recordsFound = recordsFound
	j.findingsCount = findingsCount
	j.unresolvedCount = unresolvedCount
	j.updatedAt = now
	return nil
}

// Fail transitions pending|running -> failed. Findings already written stay
// written; raw data is never rolled back.
func (j *Job) Fail(message string) error {
	if j.status.IsTerminal() {
		return transitionError(j.status, StatusFailed)
	}
	now := time.Now().UTC()
	j.status = StatusFailed
	j.completedAt = &now
	j.errorMessage = message
	j.updatedAt = now
	return nil
}

// SetCounts updates the record tallies on a non-terminal job, used when
// findings are written before the terminal transition.
func (j *Job) SetCounts(recordsFound, findingsCount, unresolvedCount int) {
	j.recordsFound = recordsFound
	j.findingsCount = findingsCount
	j.unresolvedCount = unresolvedCount
	j.updatedAt = time.Now().UTC()
}

func transitionError(from, to Status) error {
	return fmt.Errorf("%w: invalid job transition %s -> %s", shared.ErrConflict, from, to)
}
