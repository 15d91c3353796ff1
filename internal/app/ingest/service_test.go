package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opennhi/api/internal/app/pipeline"
	"github.com/opennhi/api/pkg/domain/connector"
	"github.com/opennhi/api/pkg/domain/finding"
	"github.com/opennhi/api/pkg/domain/identity"
	"github.com/opennhi/api/pkg/domain/job"
	"github.com/opennhi/api/pkg/domain/shared"
	"github.com/opennhi/api/pkg/domain/sourcetype"
	"github.com/opennhi/api/pkg/logger"
	"github.com/opennhi/api/pkg/pagination"
)

type mockConnectorRepo struct {
	connectors map[string]*connector.Connector
	updates    int
}

func (m *mockConnectorRepo) Create(ctx context.Context, c *connector.Connector) error {
	m.connectors[c.ID().String()] = c
	return nil
}

func (m *mockConnectorRepo) GetByID(ctx context.Context, enclaveID, id shared.ID) (*connector.Connector, error) {
	c, ok := m.connectors[id.String()]
	if !ok || !c.EnclaveID().Equals(enclaveID) {
		return nil, connector.ErrConnectorNotFound
	}
	return c, nil
}

func (m *mockConnectorRepo) Update(ctx context.Context, c *connector.Connector) error {
	m.updates++
	return nil
}

func (m *mockConnectorRepo) Delete(ctx context.Context, enclaveID, id shared.ID) error {
	delete(m.connectors, id.String())
	return nil
}

func (m *mockConnectorRepo) List(ctx context.Context, filter connector.Filter, page pagination.Pagination) (pagination.Result[*connector.Connector], error) {
	return pagination.Result[*connector.Connector]{}, nil
}

func (m *mockConnectorRepo) ListScheduled(ctx context.Context) ([]*connector.Connector, error) {
	return nil, nil
}

type mockJobRepo struct {
	jobs   map[string]*job.Job
	active map[string]bool // connector id -> in-flight
}

func (m *mockJobRepo) CreateIfIdle(ctx context.Context, j *job.Job) error {
	if m.active[j.ConnectorID().String()] {
		return job.ErrJobInProgress
	}
	m.active[j.ConnectorID().String()] = true
	m.jobs[j.ID().String()] = j
	return nil
}

func (m *mockJobRepo) GetByID(ctx context.Context, enclaveID, id shared.ID) (*job.Job, error) {
	j, ok := m.jobs[id.String()]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	return j, nil
}

func (m *mockJobRepo) Update(ctx context.Context, j *job.Job) error {
	m.jobs[j.ID().String()] = j
	if j.Status().IsTerminal() {
		delete(m.active, j.ConnectorID().String())
	}
	return nil
}

func (m *mockJobRepo) List(ctx context.Context, filter job.Filter, page pagination.Pagination) (pagination.Result[*job.Job], error) {
	return pagination.Result[*job.Job]{}, nil
}

type mockFindingRepo struct {
	findings []*finding.Finding
}

func (m *mockFindingRepo) Record(ctx context.Context, findings []*finding.Finding) error {
	m.findings = append(m.findings, findings...)
	return nil
}

func (m *mockFindingRepo) GetByID(ctx context.Context, enclaveID, id shared.ID) (*finding.Finding, error) {
	return nil, finding.ErrFindingNotFound
}

func (m *mockFindingRepo) ListByJob(ctx context.Context, enclaveID, jobID shared.ID, p pagination.Pagination) (pagination.Result[*finding.Finding], error) {
	data := make([]*finding.Finding, 0)
	for _, f := range m.findings {
		if f.JobID().Equals(jobID) {
			data = append(data, f)
		}
	}
	return pagination.NewResult(data, int64(len(data)), p), nil
}

func (m *mockFindingRepo) ListByIdentity(ctx context.Context, enclaveID, identityID shared.ID, p pagination.Pagination) (pagination.Result[*finding.Finding], error) {
	return pagination.Result[*finding.Finding]{}, nil
}

// mockIdentityRepo backs the resolver with an in-memory fingerprint map.
type mockIdentityRepo struct {
	identities map[string]*identity.Identity
	links      int
	linked     map[string]bool
}

func (m *mockIdentityRepo) Create(ctx context.Context, ident *identity.Identity) error {
	m.identities[ident.Fingerprint()] = ident
	return nil
}

func (m *mockIdentityRepo) GetByID(ctx context.Context, enclaveID, id shared.ID) (*identity.Identity, error) {
	return nil, identity.ErrIdentityNotFound
}

func (m *mockIdentityRepo) GetByFingerprint(ctx context.Context, enclaveID shared.ID, fingerprint string) (*identity.Identity, error) {
	ident, ok := m.identities[fingerprint]
	if !ok {
		return nil, identity.ErrIdentityNotFound
	}
	return ident, nil
}

func (m *mockIdentityRepo) Update(ctx context.Context, ident *identity.Identity) error {
	m.identities[ident.Fingerprint()] = ident
	return nil
}

func (m *mockIdentityRepo) Delete(ctx context.Context, enclaveID, id shared.ID) error {
	return nil
}

func (m *mockIdentityRepo) List(ctx context.Context, filter identity.Filter, p pagination.Pagination, sort *pagination.SortOption) (pagination.Result[*identity.Identity], error) {
	return pagination.Result[*identity.Identity]{}, nil
}

func (m *mockIdentityRepo) AddProvenance(ctx context.Context, link *identity.ProvenanceLink) error {
	k := link.IdentityID().String() + "|" + link.FindingID().String()
	if m.linked[k] {
		return nil
	}
	m.linked[k] = true
	m.links++
	return nil
}

func (m *mockIdentityRepo) ListProvenance(ctx context.Context, enclaveID, identityID shared.ID, p pagination.Pagination) (pagination.Result[*identity.ProvenanceLink], error) {
	return pagination.Result[*identity.ProvenanceLink]{}, nil
}

func (m *mockIdentityRepo) CountByType(ctx context.Context, enclaveID shared.ID) (map[sourcetype.IdentityType]int, error) {
	return map[sourcetype.IdentityType]int{}, nil
}

type ingestFixture struct {
	service    *Service
	connectors *mockConnectorRepo
	jobs       *mockJobRepo
	findings   *mockFindingRepo
	identities *mockIdentityRepo
	enclaveID  shared.ID
	connector  *connector.Connector
}

func newIngestFixture(t *testing.T, maxRecords int) *ingestFixture {
	t.Helper()
	log := logger.NewDefault()

	conns := &mockConnectorRepo{connectors: make(map[string]*connector.Connector)}
	jobs := &mockJobRepo{jobs: make(map[string]*job.Job), active: make(map[string]bool)}
	findings := &mockFindingRepo{}
	identities := &mockIdentityRepo{
		identities: make(map[string]*identity.Identity),
		linked:     make(map[string]bool),
	}

	enclaveID := shared.NewID()
	conn, err := connector.New(enclaveID, connector.TypeADCSFile, "cert export", map[string]any{}, "")
	require.NoError(t, err)
	require.NoError(t, conns.Create(context.Background(), conn))

	resolver := pipeline.NewResolver(identities, log)
	return &ingestFixture{
		service:    NewService(conns, jobs, findings, resolver, maxRecords, log),
		connectors: conns,
		jobs:       jobs,
		findings:   findings,
		identities: identities,
		enclaveID:  enclaveID,
		connector:  conn,
	}
}

func TestPush_JSONBatch(t *testing.T) {
	fx := newIngestFixture(t, 0)

	payload := []byte(`[
		{"subject_dn": "CN=web01.corp.example.com", "issuer_dn": "CN=Corp CA", "serial_number": "AA01", "san": ["web01.corp.example.com"]},
		{"subject_dn": "CN=db01.corp.example.com", "issuer_dn": "CN=Corp CA", "serial_number": "AA02"}
	]`)

	result, err := fx.service.Push(context.Background(), fx.enclaveID, fx.connector.ID().String(), "", payload)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Records)
	assert.Equal(t, 2, result.Findings)
	assert.Equal(t, 2, result.Resolved)
	assert.Equal(t, 2, result.Created)
	assert.Zero(t, result.Unresolved)

	j, err := fx.jobs.GetByID(context.Background(), fx.enclaveID, result.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, j.Status())
	assert.Equal(t, job.TriggerCollector, j.TriggeredBy())

	assert.Len(t, fx.findings.findings, 2)
	assert.Len(t, fx.identities.identities, 2)
	assert.Equal(t, 2, fx.identities.links)
}

func TestPush_CSVBatch(t *testing.T) {
	fx := newIngestFixture(t, 0)

	payload := []byte("Subject DN,Issuer DN,Serial Number,SAN\nCN=web01,CN=Corp CA,AA01,web01.corp.example.com\n")

	result, err := fx.service.Push(context.Background(), fx.enclaveID, fx.connector.ID().String(), "", payload)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
}

func TestPush_UnresolvableRecordsKeptAsFindings(t *testing.T) {
	fx := newIngestFixture(t, 0)

	// second record has no serial number, so it cannot be fingerprinted
	payload := []byte(`[
		{"issuer_dn": "CN=Corp CA", "serial_number": "AA01"},
		{"issuer_dn": "CN=Corp CA"}
	]`)

	result, err := fx.service.Push(context.Background(), fx.enclaveID, fx.connector.ID().String(), "", payload)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Resolved)
	assert.Equal(t, 1, result.Unresolved)
	// the unresolved record is still a durable finding
	assert.Len(t, fx.findings.findings, 2)

	j, err := fx.jobs.GetByID(context.Background(), fx.enclaveID, result.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1, j.UnresolvedCount())
}

func TestPush_AttachesToExistingJob(t *testing.T) {
	fx := newIngestFixture(t, 0)

	j, err := job.New(fx.connector.ID(), fx.enclaveID, job.TriggerManual)
	require.NoError(t, err)
	require.NoError(t, fx.jobs.CreateIfIdle(context.Background(), j))

	payload := []byte(`[{"issuer_dn": "CN=Corp CA", "serial_number": "AA01"}]`)
	result, err := fx.service.Push(context.Background(), fx.enclaveID, fx.connector.ID().String(), j.ID().String(), payload)
	require.NoError(t, err)

	assert.Equal(t, j.ID(), result.JobID)
	assert.Equal(t, job.StatusCompleted, j.Status())
	assert.Equal(t, job.TriggerManual, j.TriggeredBy())
	// the push ran under the pre-created job, no second job appeared
	assert.Len(t, fx.jobs.jobs, 1)
}

func TestPush_RejectsJobOfAnotherConnector(t *testing.T) {
	fx := newIngestFixture(t, 0)

	other, err := job.New(shared.NewID(), fx.enclaveID, job.TriggerManual)
	require.NoError(t, err)
	require.NoError(t, fx.jobs.CreateIfIdle(context.Background(), other))

	_, err = fx.service.Push(context.Background(), fx.enclaveID, fx.connector.ID().String(), other.ID().String(), []byte(`[]`))
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestPush_RejectsTerminalJob(t *testing.T) {
	fx := newIngestFixture(t, 0)

	j, err := job.New(fx.connector.ID(), fx.enclaveID, job.TriggerManual)
	require.NoError(t, err)
	require.NoError(t, fx.jobs.CreateIfIdle(context.Background(), j))
	require.NoError(t, j.Start())
	require.NoError(t, j.Fail("collector went away"))
	require.NoError(t, fx.jobs.Update(context.Background(), j))

	_, err = fx.service.Push(context.Background(), fx.enclaveID, fx.connector.ID().String(), j.ID().String(), []byte(`[]`))
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestPush_UnknownJob(t *testing.T) {
	fx := newIngestFixture(t, 0)

	_, err := fx.service.Push(context.Background(), fx.enclaveID, fx.connector.ID().String(), shared.NewID().String(), []byte(`[]`))
	assert.ErrorIs(t, err, job.ErrJobNotFound)
}

func TestPush_RejectedWhileJobInFlight(t *testing.T) {
	fx := newIngestFixture(t, 0)
	fx.jobs.active[fx.connector.ID().String()] = true

	_, err := fx.service.Push(context.Background(), fx.enclaveID, fx.connector.ID().String(), "", []byte(`[]`))
	assert.ErrorIs(t, err, job.ErrJobInProgress)
}

func TestPush_DisabledConnector(t *testing.T) {
	fx := newIngestFixture(t, 0)
	fx.connector.Disable()

	_, err := fx.service.Push(context.Background(), fx.enclaveID, fx.connector.ID().String(), "", []byte(`[]`))
	assert.ErrorIs(t, err, connector.ErrConnectorDisabled)
}

func TestPush_BatchLimit(t *testing.T) {
	fx := newIngestFixture(t, 1)

	payload := []byte(`[
		{"issuer_dn": "CN=Corp CA", "serial_number": "AA01"},
		{"issuer_dn": "CN=Corp CA", "serial_number": "AA02"}
	]`)

	_, err := fx.service.Push(context.Background(), fx.enclaveID, fx.connector.ID().String(), "", payload)
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Empty(t, fx.findings.findings)
}

func TestPush_InvalidPayload(t *testing.T) {
	fx := newIngestFixture(t, 0)

	_, err := fx.service.Push(context.Background(), fx.enclaveID, fx.connector.ID().String(), "", []byte(`[{"broken": `))
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestPush_UnknownConnector(t *testing.T) {
	fx := newIngestFixture(t, 0)

	_, err := fx.service.Push(context.Background(), fx.enclaveID, shared.NewID().String(), "", []byte(`[]`))
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
