package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/opennhi/api/internal/app/ingest"
	infrahttp "github.com/opennhi/api/internal/infra/http"
	"github.com/opennhi/api/internal/infra/http/middleware"
	"github.com/opennhi/api/pkg/apierror"
	"github.com/opennhi/api/pkg/domain/connector"
	"github.com/opennhi/api/pkg/domain/job"
	"github.com/opennhi/api/pkg/logger"
)

// IngestHandler accepts pushed record batches from external collectors.
type IngestHandler struct {
	service *ingest.Service
	logger  *logger.Logger
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(svc *ingest.Service, log *logger.Logger) *IngestHandler {
	return &IngestHandler{service: svc, logger: log}
}

// Push handles POST /api/v1/connectors/{id}/ingest. The batch arrives as a
// raw CSV export, a JSON array of records, a {"records": [...]} envelope, or
// a multipart form with a "file" field. An optional job_id query parameter
// attaches the batch to an existing non-terminal job for the connector.
func (h *IngestHandler) Push(w http.ResponseWriter, r *http.Request) {
	enclaveID := middleware.MustGetEnclaveID(r.Context())

	payload, err := readPayload(r)
	if err != nil {
		apierror.BadRequest("Failed to read request body").WriteJSON(w)
		return
	}
	if len(payload) == 0 {
		apierror.BadRequest("Request body is empty").WriteJSON(w)
		return
	}

	result, err := h.service.Push(r.Context(), enclaveID, infrahttp.PathParam(r, "id"), r.URL.Query().Get("job_id"), payload)
	if err != nil {
		switch {
		case errors.Is(err, job.ErrJobInProgress):
			apierror.JobInProgress("A job for this connector is already pending or running").WriteJSON(w)
		case errors.Is(err, connector.ErrConnectorDisabled):
			apierror.Conflict("Connector is disabled").WriteJSON(w)
		default:
			handleServiceError(w, h.logger, "Connector", err)
		}
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// maxMultipartMemory caps how much of a multipart upload is buffered in
// memory before spilling to disk.
const maxMultipartMemory = 32 << 20

// readPayload returns the pushed batch from either a multipart "file" field
// or the raw request body.
func readPayload(r *http.Request) ([]byte, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		return io.ReadAll(r.Body)
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, err
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}
