package app

import (
	"context"
	"fmt"

	"github.com/opennhi/api/pkg/domain/connector"
	"github.com/opennhi/api/pkg/domain/finding"
	"github.com/opennhi/api/pkg/domain/job"
	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/logger"
	"github.com/opennhi/api/pkg/pagination"
)

// TaskEnqueuer hands a persisted job off to the background worker pool.
type TaskEnqueuer interface {
	EnqueueRunConnector(ctx context.Context, jobID, enclaveID shared.ID) error
}

// JobService handles job business logic. At most one job per connector is
// pending or running at any time; a second trigger is rejected without
// touching the in-flight job.
type JobService struct {
	repo       job.Repository
	connectors connector.Repository
	findings   finding.Repository
	enqueuer   TaskEnqueuer
	logger     *logger.Logger
}

// NewJobService creates a new job service.
func NewJobService(repo job.Repository, conns connector.Repository, findings finding.Repository, enqueuer TaskEnqueuer, log *logger.Logger) *JobService {
	return &JobService{
		repo:       repo,
		connectors: conns,
		findings:   findings,
		enqueuer:   enqueuer,
		logger:     log,
	}
}

// ListJobsInput represents input for listing jobs.
type ListJobsInput struct {
	EnclaveID   shared.ID
	ConnectorID string
	Statuses    []string
	Page        int
	PerPage     int
}

// TriggerJob creates and enqueues a job for a connector. Returns
// job.ErrJobInProgress when one is already pending or running.
func (s *JobService) TriggerJob(ctx context.Context, enclaveID shared.ID, connectorID string, trigger job.Trigger) (*job.Job, error) {
	connID, err := shared.IDFromString(connectorID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid connector ID", shared.ErrValidation)
	}

	conn, err := s.connectors.GetByID(ctx, enclaveID, connID)
	if err != nil {
		return nil, err
	}
	if !conn.Enabled() {
		return nil, connector.ErrConnectorDisabled
	}

	j, err := job.New(conn.ID(), enclaveID, trigger)
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateIfIdle(ctx, j); err != nil {
		return nil, err
	}

	if err := s.enqueuer.EnqueueRunConnector(ctx, j.ID(), enclaveID); err != nil {
		// the job row exists but nothing will pick it up; fail it so the
		// connector is not wedged
		if ferr := j.Fail(fmt.Sprintf("enqueue failed: %v", err)); ferr == nil {
			if uerr := s.repo.Update(ctx, j); uerr != nil {
				s.logger.Error("failed to mark unenqueued job failed",
					"job_id", j.ID(), "error", uerr)
			}
		}
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("job triggered",
		"job_id", j.ID(),
		"connector_id", conn.ID(),
		"enclave_id", enclaveID,
		"triggered_by", trigger)
	return j, nil
}

// GetJob retrieves a job by ID within an enclave.
func (s *JobService) GetJob(ctx context.Context, enclaveID shared.ID, id string) (*job.Job, error) {
	jobID, err := shared.IDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid job ID", shared.ErrValidation)
	}
	return s.repo.GetByID(ctx, enclaveID, jobID)
}

// ListJobs returns a page of jobs, newest first.
func (s *JobService) ListJobs(ctx context.Context, input ListJobsInput) (pagination.Result[*job.Job], error) {
	filter := job.Filter{EnclaveID: &input.EnclaveID}

	if input.ConnectorID != "" {
		connID, err := shared.IDFromString(input.ConnectorID)
		if err != nil {
			return pagination.Result[*job.Job]{}, fmt.Errorf("%w: invalid connector ID", shared.ErrValidation)
		}
		filter.ConnectorID = &connID
	}

	for _, st := range input.Statuses {
		status := job.Status(st)
		switch status {
		case job.StatusPending, job.StatusRunning, job.StatusCompleted, job.StatusFailed:
			filter.Statuses = append(filter.Statuses, status)
		default:
			return pagination.Result[*job.Job]{}, fmt.Errorf("%w: invalid job status %q", shared.ErrValidation, st)
		}
	}

	return s.repo.List(ctx, filter, pagination.New(input.Page, input.PerPage))
}

// ListJobFindings returns the raw findings a job produced, oldest first.
// Findings persist even when the job later failed.
func (s *JobService) ListJobFindings(ctx context.Context, enclaveID shared.ID, id string, page, perPage int) (pagination.Result[*finding.Finding], error) {
	jobID, err := shared.IDFromString(id)
	if err != nil {
		return pagination.Result[*finding.Finding]{}, fmt.Errorf("%w: invalid job ID", shared.ErrValidation)
	}

	if _, err := s.repo.GetByID(ctx, enclaveID, jobID); err != nil {
		return pagination.Result[*finding.Finding]{}, err
	}

	return s.findings.ListByJob(ctx, enclaveID, jobID, pagination.New(page, perPage))
}
