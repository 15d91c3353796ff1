package main

import (
	"time"

	"github.com/opennhi/api/internal/app"
	"github.com/opennhi/api/internal/app/ingest"
	"github.com/opennhi/api/internal/app/pipeline"
	"github.com/opennhi/api/internal/config"
	"github.com/opennhi/api/internal/infra/connectors"
	"github.com/opennhi/api/internal/infra/redis"
	"github.com/opennhi/api/pkg/crypto"
	"github.com/opennhi/api/pkg/logger"
)

// Services holds all service instances.
type Services struct {
	Enclave   *app.EnclaveService
	Connector *app.ConnectorService
	Job       *app.JobService
	Identity  *app.IdentityService
	Ingest    *ingest.Service

	// Resolver is shared between the push ingest path and the worker.
	Resolver *pipeline.Resolver

	// Factory builds connector sources from stored configuration.
	Factory *connectors.Factory
}

// ServiceDeps contains dependencies needed to create services.
type ServiceDeps struct {
	Config      *config.Config
	Log         *logger.Logger
	Repos       *Repositories
	RedisClient *redis.Client
	Encryptor   crypto.Encryptor
	Enqueuer    app.TaskEnqueuer
}

// NewServices initializes all application services.
func NewServices(deps *ServiceDeps) (*Services, error) {
	cfg := deps.Config
	log := deps.Log
	repos := deps.Repos

	factory := connectors.NewFactory(deps.Encryptor, log)
	resolver := pipeline.NewResolver(repos.Identity, log)

	var statsCache *redis.Cache[app.IdentityStats]
	if deps.RedisClient != nil {
		var err error
		statsCache, err = redis.NewCache[app.IdentityStats](deps.RedisClient, "identity:stats", 5*time.Minute)
		if err != nil {
			return nil, err
		}
	}

	return &Services{
		Enclave:   app.NewEnclaveService(repos.Enclave, log),
		Connector: app.NewConnectorService(repos.Connector, factory, deps.Encryptor, log),
		Job:       app.NewJobService(repos.Job, repos.Connector, repos.Finding, deps.Enqueuer, log),
		Identity:  app.NewIdentityService(repos.Identity, repos.Finding, statsCache, log),
		Ingest:    ingest.NewService(repos.Connector, repos.Job, repos.Finding, resolver, cfg.Ingest.MaxRecords, log),
		Resolver:  resolver,
		Factory:   factory,
	}, nil
}

// newEncryptor builds the secret encryptor from configuration. Without a key
// connector secrets are stored as-is, acceptable only in development.
func newEncryptor(cfg *config.Config, log *logger.Logger) (crypto.Encryptor, error) {
	if !cfg.Encryption.IsConfigured() {
		log.Warn("encryption key not configured, connector secrets will be stored unencrypted")
		return crypto.NewNoOpEncryptor(), nil
	}
	return crypto.NewCipherFromKey(cfg.Encryption.Key, cfg.Encryption.KeyFormat)
}
