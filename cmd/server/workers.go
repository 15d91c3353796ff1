package main

import (
	"github.com/opennhi/api/internal/app"
	"github.com/opennhi/api/internal/config"
	"github.com/opennhi/api/internal/infra/jobs"
	"github.com/opennhi/api/pkg/logger"
)

// Workers holds all background worker instances.
type Workers struct {
	JobWorker *jobs.Worker
	Scheduler *app.JobScheduler
}

// WorkerDeps contains dependencies needed to create workers.
type WorkerDeps struct {
	Config   *config.Config
	Log      *logger.Logger
	Repos    *Repositories
	Services *Services
}

// NewWorkers initializes the connector run worker and, when enabled, the
// cron schedule ticker.
func NewWorkers(deps *WorkerDeps) *Workers {
	cfg := deps.Config
	log := deps.Log
	repos := deps.Repos
	svc := deps.Services

	runner := jobs.NewRunner(
		repos.Job,
		repos.Connector,
		repos.Finding,
		svc.Resolver,
		svc.Factory,
		jobs.RunnerConfig{
			FetchTimeout: cfg.Worker.FetchTimeout,
			BatchSize:    cfg.Worker.BatchSize,
		},
		log,
	)

	w := &Workers{
		JobWorker: jobs.NewWorker(jobs.WorkerConfig{
			RedisAddr:     cfg.Redis.Addr(),
			RedisPassword: cfg.Redis.Password,
			RedisDB:       cfg.Redis.DB,
			Concurrency:   cfg.Worker.Concurrency,
		}, runner, log),
	}

	if cfg.Scheduler.Enabled {
		w.Scheduler = app.NewJobScheduler(
			repos.Connector,
			svc.Job,
			app.JobSchedulerConfig{CheckInterval: cfg.Scheduler.CheckInterval},
			log,
		)
	}

	return w
}

// Start starts all workers.
func (w *Workers) Start(log *logger.Logger) error {
	if err := w.JobWorker.Start(); err != nil {
		return err
	}
	log.Info("job worker started")

	if w.Scheduler != nil {
		w.Scheduler.Start()
		log.Info("job scheduler started")
	}
	return nil
}

// Stop stops all workers, letting in-flight runs finish.
func (w *Workers) Stop(log *logger.Logger) {
	if w.Scheduler != nil {
		w.Scheduler.Stop()
		log.Info("job scheduler stopped")
	}
	w.JobWorker.Stop()
	log.Info("job worker stopped")
}
