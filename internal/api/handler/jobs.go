// Package handler contains the HTTP handlers behind the versioned API.
// Handlers depend on narrow interfaces so tests can stub the pipeline
// and the store independently.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/reviewlens/reviewlens/internal/api/middleware"
	"github.com/reviewlens/reviewlens/internal/api/response"
	"github.com/reviewlens/reviewlens/internal/pipeline"
	"github.com/reviewlens/reviewlens/internal/store"
	"github.com/reviewlens/reviewlens/pkg/models"
)

// JobCreator starts an analysis run. Implemented by pipeline.Orchestrator.
type JobCreator interface {
	CreateJob(ctx context.Context, owner *models.Owner, appID string) (*models.Job, error)
}

// NewCreateJobHandler returns the handler for POST /api/v1/jobs.
func NewCreateJobHandler(st store.Store, creator JobCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := mw.GetOwnerID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing owner", nil)
			return
		}

		var req struct {
			AppID string `json:"app_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.AppID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "app_id is required", nil)
			return
		}

		owner, err := st.GetOwner(r.Context(), ownerID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load account", nil)
			return
		}

		job, err := creator.CreateJob(r.Context(), owner, req.AppID)
		if err != nil {
			switch {
			case errors.Is(err, pipeline.ErrInvalidSubject):
				response.Error(w, http.StatusBadRequest, "INVALID_SUBJECT",
					"app_id must be a dot-separated package name", nil)
			case errors.Is(err, pipeline.ErrQuotaExceeded):
				response.Error(w, http.StatusForbidden, "QUOTA_EXCEEDED",
					"Free tier job limit reached", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to create job", nil)
			}
			return
		}

		response.Accepted(w, job)
	}
}

// NewGetJobHandler returns the handler for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, ok := mw.GetOwnerID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing owner", nil)
			return
		}

		job, ok := fetchJob(w, r, st, ownerID)
		if !ok {
			return
		}
		response.JSON(w, job)
	}
}

// fetchJob resolves {jobID} scoped to the owner, writing the error
// response itself on failure.
func fetchJob(w http.ResponseWriter, r *http.Request, st store.Store, ownerID uuid.UUID) (*models.Job, bool) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a UUID", nil)
		return nil, false
	}

	job, err := st.GetJob(r.Context(), jobID, ownerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
		} else {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load job", nil)
		}
		return nil, false
	}
	return job, true
}
