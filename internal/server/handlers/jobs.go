package handlers

import (
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/3leaps/gridharvest/internal/errors"
	"github.com/3leaps/gridharvest/pkg/jobregistry"
)

// JobsHandler serves the submission registry over HTTP.
type JobsHandler struct {
	store *jobregistry.Store
}

// NewJobsHandler creates a handler backed by the given registry store.
func NewJobsHandler(store *jobregistry.Store) *JobsHandler {
	return &JobsHandler{store: store}
}

// JobsResponse is the GET /jobs payload.
type JobsResponse struct {
	Submissions []jobregistry.SubmissionRecord `json:"submissions"`
	Count       int                            `json:"count"`
}

// List serves GET /jobs, newest first.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.List()
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if records == nil {
		records = []jobregistry.SubmissionRecord{}
	}
	writeJSON(w, http.StatusOK, JobsResponse{Submissions: records, Count: len(records)})
}

// Get serves GET /jobs/{testID}.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "testID")
	record, err := h.store.Get(testID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			apperrors.Write(w, http.StatusNotFound, apperrors.HTTPError{
				Code:    apperrors.CodeNotFound,
				Message: "submission not found: " + testID,
			})
			return
		}
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}
