package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/opennhi/api/internal/app/pipeline"
	"github.com/opennhi/api/internal/infra/connectors"
	"github.com/opennhi/api/internal/metrics"
	"github.com/opennhi/api/pkg/domain/connector"
	"github.com/opennhi/api/pkg/domain/finding"
	"github.com/opennhi/api/pkg/domain/job"
	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/logger"
)

// RunnerConfig tunes connector execution.
type RunnerConfig struct {
	// FetchTimeout bounds a single source fetch.
	FetchTimeout time.Duration
	// BatchSize is how many findings are written per insert batch.
	BatchSize int
}

// Runner executes connector run tasks: fetch from the source, record
// findings, resolve identities, and walk the job through its state machine.
// A fetch failure fails the job; findings already recorded are never rolled
// back.
type Runner struct {
	jobs       job.Repository
	connectors connector.Repository
	findings   finding.Repository
	resolver   *pipeline.Resolver
	factory    *connectors.Factory
	cfg        RunnerConfig
	logger     *logger.Logger
}

// NewRunner creates a connector run handler.
func NewRunner(
	jobs job.Repository,
	conns connector.Repository,
	findings finding.Repository,
	resolver *pipeline.Resolver,
	factory *connectors.Factory,
	cfg RunnerConfig,
	log *logger.Logger,
) *Runner {
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 10 * time.Minute
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 500
	}
	return &Runner{
		jobs:       jobs,
		connectors: conns,
		findings:   findings,
		resolver:   resolver,
		factory:    factory,
		cfg:        cfg,
		logger:     log.With("component", "connector_runner"),
	}
}

// HandleRunConnector processes one queued connector run. Errors that are the
// job's own outcome (fetch failure, bad config) are recorded on the job and
// not returned, so the task is not retried against a terminal job.
func (r *Runner) HandleRunConnector(ctx context.Context, t *asynq.Task) error {
	var payload RunConnectorPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal run connector payload: %w", err)
	}

	jobID, err := shared.IDFromString(payload.JobID)
	if err != nil {
		return fmt.Errorf("invalid job ID %q: %w", payload.JobID, err)
	}
	enclaveID, err := shared.IDFromString(payload.EnclaveID)
	if err != nil {
		return fmt.Errorf("invalid enclave ID %q: %w", payload.EnclaveID, err)
	}

	j, err := r.jobs.GetByID(ctx, enclaveID, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if j.Status() != job.StatusPending {
		// duplicate delivery of an already picked-up job
		r.logger.Warn("skipping job not in pending state", "job_id", jobID, "status", j.Status())
		return nil
	}

	conn, err := r.connectors.GetByID(ctx, enclaveID, j.ConnectorID())
	if err != nil {
		r.failJob(ctx, j, conn, fmt.Sprintf("load connector: %v", err))
		return nil
	}

	if err := j.Start(); err != nil {
		return err
	}
	if err := r.jobs.Update(ctx, j); err != nil {
		return fmt.Errorf("persist job start: %w", err)
	}

	metrics.JobsInProgress.WithLabelValues(enclaveID.String()).Inc()
	defer metrics.JobsInProgress.WithLabelValues(enclaveID.String()).Dec()
	started := time.Now()

	r.logger.Info("job started",
		"job_id", jobID,
		"connector_id", conn.ID(),
		"type", conn.TypeCode(),
		"triggered_by", j.TriggeredBy())

	records, err := r.fetch(ctx, conn)
	if err != nil {
		r.failJob(ctx, j, conn, err.Error())
		return nil
	}

	stats, findingsCount, err := r.ingest(ctx, j, conn, records)
	if err != nil {
		r.failJob(ctx, j, conn, err.Error())
		return nil
	}

	if err := j.Complete(len(records), findingsCount, stats.Unresolved); err != nil {
		return err
	}
	if err := r.jobs.Update(ctx, j); err != nil {
		return fmt.Errorf("persist job completion: %w", err)
	}

	conn.RecordRun(time.Now().UTC(), connector.RunStatusCompleted)
	if err := r.connectors.Update(ctx, conn); err != nil {
		r.logger.Warn("failed to record connector run", "connector_id", conn.ID(), "error", err)
	}

	metrics.JobsTotal.WithLabelValues(enclaveID.String(), string(conn.TypeCode()), string(job.StatusCompleted)).Inc()
	metrics.JobDuration.WithLabelValues(enclaveID.String(), string(conn.TypeCode())).Observe(time.Since(started).Seconds())

	r.logger.Info("job completed",
		"job_id", jobID,
		"records", len(records),
		"findings", findingsCount,
		"created", stats.Created,
		"merged", stats.Merged,
		"unresolved", stats.Unresolved,
		"duration", time.Since(started))
	return nil
}

func (r *Runner) fetch(ctx context.Context, conn *connector.Connector) ([]connectors.Record, error) {
	source, err := r.factory.ForConnector(conn)
	if err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	started := time.Now()
	records, err := source.Fetch(fetchCtx)
	metrics.FetchDuration.WithLabelValues(string(conn.TypeCode())).Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ingest records findings in batches and resolves them. Batches already
// written stay written even when a later batch or the resolution fails.
func (r *Runner) ingest(ctx context.Context, j *job.Job, conn *connector.Connector, records []connectors.Record) (pipeline.Stats, int, error) {
	sourceType, ok := conn.SourceType()
	if !ok {
		return pipeline.Stats{}, 0, fmt.Errorf("connector type %q has no source type", conn.TypeCode())
	}

	now := time.Now().UTC()
	all := make([]*finding.Finding, 0, len(records))
	for _, rec := range records {
		f, err := finding.New(j.ID(), conn.ID(), j.EnclaveID(), sourceType, rec, now)
		if err != nil {
			return pipeline.Stats{}, 0, fmt.Errorf("build finding: %w", err)
		}
		all = append(all, f)
	}

	for start := 0; start < len(all); start += r.cfg.BatchSize {
		end := start + r.cfg.BatchSize
		if end > len(all) {
			end = len(all)
		}
		if err := r.findings.Record(ctx, all[start:end]); err != nil {
			return pipeline.Stats{}, start, fmt.Errorf("record findings: %w", err)
		}
		metrics.FindingsIngestedTotal.WithLabelValues(
			j.EnclaveID().String(), string(sourceType)).Add(float64(end - start))
	}

	stats, err := r.resolver.Resolve(ctx, all)
	if err != nil {
		return stats, len(all), fmt.Errorf("resolve findings: %w", err)
	}
	return stats, len(all), nil
}

func (r *Runner) failJob(ctx context.Context, j *job.Job, conn *connector.Connector, message string) {
	if err := j.Fail(message); err != nil {
		r.logger.Error("invalid job failure transition", "job_id", j.ID(), "error", err)
		return
	}
	if err := r.jobs.Update(ctx, j); err != nil {
		r.logger.Error("failed to persist failed job", "job_id", j.ID(), "error", err)
	}

	typeCode := ""
	if conn != nil {
		typeCode = string(conn.TypeCode())
		conn.RecordRun(time.Now().UTC(), connector.RunStatusFailed)
		if err := r.connectors.Update(ctx, conn); err != nil {
			r.logger.Warn("failed to record connector run", "connector_id", conn.ID(), "error", err)
		}
	}

	metrics.JobsTotal.WithLabelValues(j.EnclaveID().String(), typeCode, string(job.StatusFailed)).Inc()
	r.logger.Error("job failed", "job_id", j.ID(), "error", message)
}
