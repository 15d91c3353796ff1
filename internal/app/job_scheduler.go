package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/opennhi/api/pkg/domain/connector"
	"github.com/opennhi/api/pkg/domain/job"
	"github.com/opennhi/api/pkg/logger"
)

var schedulerCronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// JobScheduler periodically checks connector cron schedules and triggers due
// jobs. A connector whose previous job is still in flight is skipped for the
// tick; the serialization check in the job store is the authority.
type JobScheduler struct {
	connectors connector.Repository
	jobs       *JobService
	logger     *logger.Logger

	interval time.Duration
	lastTick time.Time
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// JobSchedulerConfig holds configuration for the job scheduler.
type JobSchedulerConfig struct {
	// CheckInterval is how often to check for due connectors (default: 1 minute)
	CheckInterval time.Duration
}

// NewJobScheduler creates a new JobScheduler.
func NewJobScheduler(conns connector.Repository, jobs *JobService, cfg JobSchedulerConfig, log *logger.Logger) *JobScheduler {
	interval := cfg.CheckInterval
	if interval == 0 {
		interval = time.Minute
	}

	return &JobScheduler{
		connectors: conns,
		jobs:       jobs,
		logger:     log.With("component", "job_scheduler"),
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
}

// Start starts the scheduler loop.
func (s *JobScheduler) Start() {
	s.lastTick = time.Now()
	s.wg.Add(1)
	go s.run()
	s.logger.Info("job scheduler started", "interval", s.interval)
}

// Stop stops the scheduler gracefully.
func (s *JobScheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("job scheduler stopped")
}

func (s *JobScheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.checkAndTrigger()
		case <-s.stopCh:
			return
		}
	}
}

func (s *JobScheduler) checkAndTrigger() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now()
	since := s.lastTick
	s.lastTick = now

	scheduled, err := s.connectors.ListScheduled(ctx)
	if err != nil {
		s.logger.Error("failed to list scheduled connectors", "error", err)
		return
	}

	triggered := 0
	for _, conn := range scheduled {
		if !s.due(conn, since, now) {
			continue
		}

		_, err := s.jobs.TriggerJob(ctx, conn.EnclaveID(), conn.ID().String(), job.TriggerSchedule)
		switch {
		case err == nil:
			triggered++
		case errors.Is(err, job.ErrJobInProgress):
			s.logger.Debug("connector busy, skipping scheduled run", "connector_id", conn.ID())
		default:
			s.logger.Error("failed to trigger scheduled job", "connector_id", conn.ID(), "error", err)
		}
	}

	if triggered > 0 {
		s.logger.Info("triggered scheduled jobs", "count", triggered)
	}
}

// due reports whether the connector's cron schedule fires in (since, now].
func (s *JobScheduler) due(conn *connector.Connector, since, now time.Time) bool {
	schedule, err := schedulerCronParser.Parse(conn.CronExpression())
	if err != nil {
		s.logger.Warn("invalid cron expression", "connector_id", conn.ID(), "expr", conn.CronExpression())
		return false
	}
	next := schedule.Next(since)
	return !next.After(now)
}
