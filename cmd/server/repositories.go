package main

import (
	"github.com/opennhi/api/internal/infra/postgres"
)

// Repositories holds all repository instances.
type Repositories struct {
	Enclave   *postgres.EnclaveRepository
	Connector *postgres.ConnectorRepository
	Job       *postgres.JobRepository
	Finding   *postgres.FindingRepository
	Identity  *postgres.IdentityRepository
}

// NewRepositories initializes all repositories against the database.
func NewRepositories(db *postgres.DB) *Repositories {
	return &Repositories{
		Enclave:   postgres.NewEnclaveRepository(db),
		Connector: postgres.NewConnectorRepository(db),
		Job:       postgres.NewJobRepository(db),
		Finding:   postgres.NewFindingRepository(db),
		Identity:  postgres.NewIdentityRepository(db),
	}
}
