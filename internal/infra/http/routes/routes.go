// Package routes registers all HTTP routes for the API.
package routes

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"

	infrahttp "github.com/opennhi/api/internal/infra/http"
	"github.com/opennhi/api/internal/infra/http/handler"
	"github.com/opennhi/api/internal/infra/http/middleware"
	"github.com/opennhi/api/pkg/domain/enclave"
)

// Middleware is an alias to the http package's Middleware type.
type Middleware = infrahttp.Middleware

// Router is an alias to the http package's Router interface.
type Router = infrahttp.Router

// Handlers holds all HTTP handlers for route registration.
type Handlers struct {
	Health    *handler.HealthHandler
	Enclave   *handler.EnclaveHandler
	Connector *handler.ConnectorHandler
	Job       *handler.JobHandler
	Identity  *handler.IdentityHandler
	Ingest    *handler.IngestHandler
}

// Register mounts every route. Enclave-scoped routes sit behind the
// X-Enclave-ID resolution middleware; enclave management itself and the
// type catalog do not.
func Register(r Router, h Handlers, enclaves enclave.Repository) {
	r.GET("/health", h.Health.Health)
	r.GET("/ready", h.Health.Ready)
	r.GET("/metrics", promhttp.Handler().ServeHTTP)

	scoped := middleware.EnclaveContext(enclaves)

	r.Group("/api/v1", func(api Router) {
		api.GET("/health", h.Health.Health)

		// enclave management is the tenancy root and takes no enclave header
		api.POST("/enclaves", h.Enclave.Create)
		api.GET("/enclaves", h.Enclave.List)
		api.GET("/enclaves/{id}", h.Enclave.Get)
		api.PATCH("/enclaves/{id}", h.Enclave.Update)
		api.DELETE("/enclaves/{id}", h.Enclave.Delete)

		api.GET("/connector-types", h.Connector.ListTypes)

		api.POST("/connectors", h.Connector.Create, scoped)
		api.GET("/connectors", h.Connector.List, scoped)
		api.GET("/connectors/{id}", h.Connector.Get, scoped)
		api.PATCH("/connectors/{id}", h.Connector.Update, scoped)
		api.DELETE("/connectors/{id}", h.Connector.Delete, scoped)
		api.POST("/connectors/{id}/test", h.Connector.Test, scoped)
		api.POST("/connectors/{id}/run", h.Connector.Run, scoped)
		api.POST("/connectors/{id}/ingest", h.Ingest.Push, scoped)

		api.GET("/jobs", h.Job.List, scoped)
		api.GET("/jobs/{id}", h.Job.Get, scoped)
		api.GET("/jobs/{id}/findings", h.Job.ListFindings, scoped)

		api.GET("/identities", h.Identity.List, scoped)
		api.GET("/identities/stats", h.Identity.Stats, scoped)
		api.POST("/identities/correlate", h.Identity.Correlate, scoped)
		api.GET("/identities/{id}", h.Identity.Get, scoped)
		api.PATCH("/identities/{id}", h.Identity.Enrich, scoped)
		api.DELETE("/identities/{id}", h.Identity.Delete, scoped)
		api.GET("/identities/{id}/provenance", h.Identity.ListProvenance, scoped)
		api.GET("/identities/{id}/findings", h.Identity.ListFindings, scoped)
	})
}
