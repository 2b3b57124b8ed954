package handlers

import (
	"io"
	"net/http"

	"git.home.luguber.info/inful/osforge/internal/errors"
	"git.home.luguber.info/inful/osforge/internal/server/responses"
	"git.home.luguber.info/inful/osforge/internal/store"
)

// maxSubmissionBytes bounds the accepted specification document size.
const maxSubmissionBytes = 1 << 20

// Submitter accepts a raw specification and returns a build identifier.
type Submitter interface {
	Submit(raw []byte) (string, error)
}

// RecordReader is the read side of the build record store.
type RecordReader interface {
	Get(buildID string) (*store.BuildRecord, error)
	List() []*store.BuildRecord
}

// BuildHandlers serves submission, status polling and the build list.
type BuildHandlers struct {
	submitter Submitter
	records   RecordReader
	adapter   *errors.HTTPErrorAdapter
}

// NewBuildHandlers creates build endpoint handlers.
func NewBuildHandlers(submitter Submitter, records RecordReader, adapter *errors.HTTPErrorAdapter) *BuildHandlers {
	return &BuildHandlers{submitter: submitter, records: records, adapter: adapter}
}

// StartBuild handles POST /api/build/start: validate synchronously, accept
// asynchronously with 202 and the build identifier.
func (h *BuildHandlers) StartBuild(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSubmissionBytes+1))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, errors.ValidationError("failed to read request body"))
		return
	}
	if len(body) > maxSubmissionBytes {
		h.adapter.WriteErrorResponse(w, r, errors.ValidationError("specification document too large"))
		return
	}

	buildID, err := h.submitter.Submit(body)
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}

	_ = writeJSON(w, http.StatusAccepted, responses.BuildAcceptedResponse{BuildID: buildID})
}

// BuildStatus handles GET /api/build/status/{buildId}.
func (h *BuildHandlers) BuildStatus(w http.ResponseWriter, r *http.Request) {
	buildID := r.PathValue("buildId")
	rec, err := h.records.Get(buildID)
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}

	_ = writeJSONPretty(w, r, http.StatusOK, responses.BuildStatusResponse{
		BuildID:     rec.BuildID,
		Status:      string(rec.Status),
		Logs:        rec.Logs,
		Artifacts:   rec.Artifacts,
		CreatedAt:   rec.CreatedAt,
		CompletedAt: rec.CompletedAt,
	})
}

// ListBuilds handles GET /api/builds.
func (h *BuildHandlers) ListBuilds(w http.ResponseWriter, r *http.Request) {
	all := h.records.List()
	summaries := make([]responses.BuildSummary, 0, len(all))
	for _, rec := range all {
		s := responses.BuildSummary{
			BuildID:     rec.BuildID,
			Status:      string(rec.Status),
			Artifacts:   len(rec.Artifacts),
			CreatedAt:   rec.CreatedAt,
			CompletedAt: rec.CompletedAt,
		}
		if rec.Spec != nil {
			s.Base = string(rec.Spec.Base)
			s.Architecture = string(rec.Spec.Architecture)
		}
		summaries = append(summaries, s)
	}

	_ = writeJSONPretty(w, r, http.StatusOK, responses.BuildListResponse{
		Builds: summaries,
		Count:  len(summaries),
	})
}
