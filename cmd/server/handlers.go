package main

import (
	"github.com/opennhi/api/internal/config"
	"github.com/opennhi/api/internal/infra/http/handler"
	"github.com/opennhi/api/internal/infra/http/routes"
	"github.com/opennhi/api/internal/infra/postgres"
	"github.com/opennhi/api/internal/infra/redis"
	"github.com/opennhi/api/pkg/logger"
	"github.com/opennhi/api/pkg/validator"
)

// HandlerDeps contains dependencies needed to create handlers.
type HandlerDeps struct {
	Config      *config.Config
	Log         *logger.Logger
	Validator   *validator.Validator
	DB          *postgres.DB
	RedisClient *redis.Client
	Services    *Services
}

// NewHandlers initializes all HTTP handlers.
func NewHandlers(deps *HandlerDeps) routes.Handlers {
	log := deps.Log
	v := deps.Validator
	svc := deps.Services

	healthOpts := []handler.HealthHandlerOption{
		handler.WithDatabase(deps.DB),
	}
	if deps.RedisClient != nil {
		healthOpts = append(healthOpts, handler.WithRedis(deps.RedisClient))
	}

	return routes.Handlers{
		Health:    handler.NewHealthHandler(healthOpts...),
		Enclave:   handler.NewEnclaveHandler(svc.Enclave, v, log),
		Connector: handler.NewConnectorHandler(svc.Connector, svc.Job, v, log),
		Job:       handler.NewJobHandler(svc.Job, log),
		Identity:  handler.NewIdentityHandler(svc.Identity, v, log),
		Ingest:    handler.NewIngestHandler(svc.Ingest, log),
	}
}
