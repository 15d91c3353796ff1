// Package ingest accepts record batches pushed by external collectors. A
// push runs through the same job state machine and resolution pipeline as a
// connector-initiated pull, so provenance and serialization behave
// identically regardless of which side initiated the transfer.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/opennhi/api/internal/app/pipeline"
	"github.com/opennhi/api/internal/infra/connectors"
	"github.com/opennhi/api/internal/metrics"
	"github.com/opennhi/api/pkg/domain/connector"
	"github.com/opennhi/api/pkg/domain/finding"
	"github.com/opennhi/api/pkg/domain/job"
	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/domain/sourcetype"
	"github.com/opennhi/api/pkg/logger"
)

// Service handles pushed ingestion.
type Service struct {
	connectors connector.Repository
	jobs       job.Repository
	findings   finding.Repository
	resolver   *pipeline.Resolver
	maxRecords int
	logger     *logger.Logger
}

// NewService creates a new ingest service. maxRecords caps a single push;
// zero means no cap.
func NewService(
	conns connector.Repository,
	jobs job.Repository,
	findings finding.Repository,
	resolver *pipeline.Resolver,
	maxRecords int,
	log *logger.Logger,
) *Service {
	return &Service{
		connectors: conns,
		jobs:       jobs,
		findings:   findings,
		resolver:   resolver,
		maxRecords: maxRecords,
		logger:     log.With("service", "ingest"),
	}
}

// Result reports what a push produced.
type Result struct {
	JobID      shared.ID `json:"job_id"`
	Records    int       `json:"records"`
	Findings   int       `json:"findings"`
	Resolved   int       `json:"resolved"`
	Created    int       `json:"created"`
	Merged     int       `json:"merged"`
	Unresolved int       `json:"unresolved"`
}

// Push ingests a raw CSV or JSON batch for a connector. With no job ID the
// batch becomes its own collector-triggered job, rejected while another job
// for the connector is in flight. With a job ID the batch attaches to that
// job, which must belong to the connector and must not be terminal. Findings
// are recorded and resolved immediately either way.
func (s *Service) Push(ctx context.Context, enclaveID shared.ID, connectorID, jobID string, payload []byte) (Result, error) {
	connID, err := shared.IDFromString(connectorID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: invalid connector ID", shared.ErrValidation)
	}

	conn, err := s.connectors.GetByID(ctx, enclaveID, connID)
	if err != nil {
		return Result{}, err
	}
	if !conn.Enabled() {
		return Result{}, connector.ErrConnectorDisabled
	}
	sourceType, ok := conn.SourceType()
	if !ok {
		return Result{}, fmt.Errorf("%w: connector type %q has no source type", shared.ErrValidation, conn.TypeCode())
	}

	records, err := connectors.ParseCertExport(payload)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if s.maxRecords > 0 && len(records) > s.maxRecords {
		return Result{}, fmt.Errorf("%w: batch of %d records exceeds limit of %d", shared.ErrValidation, len(records), s.maxRecords)
	}

	j, err := s.claimJob(ctx, enclaveID, conn, jobID)
	if err != nil {
		return Result{}, err
	}
	if j.Status() == job.StatusPending {
		if err := j.Start(); err != nil {
			return Result{}, err
		}
		if err := s.jobs.Update(ctx, j); err != nil {
			return Result{}, err
		}
	}

	result, err := s.process(ctx, j, conn, sourceType, records)
	if err != nil {
		if ferr := j.Fail(err.Error()); ferr == nil {
			if uerr := s.jobs.Update(ctx, j); uerr != nil {
				s.logger.Error("failed to persist failed push job", "job_id", j.ID(), "error", uerr)
			}
		}
		metrics.JobsTotal.WithLabelValues(enclaveID.String(), string(conn.TypeCode()), string(job.StatusFailed)).Inc()
		return Result{}, err
	}

	conn.RecordRun(time.Now().UTC(), connector.RunStatusCompleted)
	if err := s.connectors.Update(ctx, conn); err != nil {
		s.logger.Warn("failed to record connector run", "connector_id", conn.ID(), "error", err)
	}

	metrics.JobsTotal.WithLabelValues(enclaveID.String(), string(conn.TypeCode()), string(job.StatusCompleted)).Inc()
	return result, nil
}

// claimJob returns the job the push runs under. Without a job ID the push
// creates its own collector-triggered job; otherwise it attaches to a
// non-terminal job already created for the same connector.
func (s *Service) claimJob(ctx context.Context, enclaveID shared.ID, conn *connector.Connector, jobID string) (*job.Job, error) {
	if jobID == "" {
		j, err := job.New(conn.ID(), enclaveID, job.TriggerCollector)
		if err != nil {
			return nil, err
		}
		if err := s.jobs.CreateIfIdle(ctx, j); err != nil {
			return nil, err
		}
		return j, nil
	}

	jID, err := shared.IDFromString(jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid job ID", shared.ErrValidation)
	}
	j, err := s.jobs.GetByID(ctx, enclaveID, jID)
	if err != nil {
		return nil, err
	}
	if !j.ConnectorID().Equals(conn.ID()) {
		return nil, fmt.Errorf("%w: job %s does not belong to connector %s", shared.ErrValidation, j.ID(), conn.ID())
	}
	if j.Status().IsTerminal() {
		return nil, fmt.Errorf("%w: job %s is already %s", shared.ErrConflict, j.ID(), j.Status())
	}
	return j, nil
}

func (s *Service) process(ctx context.Context, j *job.Job, conn *connector.Connector, sourceType sourcetype.SourceType, records []connectors.Record) (Result, error) {
	now := time.Now().UTC()
	batch := make([]*finding.Finding, 0, len(records))
	for _, rec := range records {
		f, err := finding.New(j.ID(), conn.ID(), j.EnclaveID(), sourceType, rec, now)
		if err != nil {
			return Result{}, fmt.Errorf("build finding: %w", err)
		}
		batch = append(batch, f)
	}

	if err := s.findings.Record(ctx, batch); err != nil {
		return Result{}, fmt.Errorf("record findings: %w", err)
	}
	metrics.FindingsIngestedTotal.WithLabelValues(j.EnclaveID().String(), string(sourceType)).Add(float64(len(batch)))

	stats, err := s.resolver.Resolve(ctx, batch)
	if err != nil {
		// findings are already durable; the job fails but nothing rolls back
		return Result{}, fmt.Errorf("resolve findings: %w", err)
	}

	if err := j.Complete(len(records), len(batch), stats.Unresolved); err != nil {
		return Result{}, err
	}
	if err := s.jobs.Update(ctx, j); err != nil {
		return Result{}, err
	}

	s.logger.Info("push ingested",
		"job_id", j.ID(),
		"connector_id", conn.ID(),
		"records", len(records),
		"created", stats.Created,
		"merged", stats.Merged,
		"unresolved", stats.Unresolved)

	return Result{
		JobID:      j.ID(),
		Records:    len(records),
		Findings:   len(batch),
		Resolved:   stats.Resolved,
		Created:    stats.Created,
		Merged:     stats.Merged,
		Unresolved: stats.Unresolved,
	}, nil
}
