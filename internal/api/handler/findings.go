package handler

import (
	"net/http"

	mw "github.com/reviewlens/reviewlens/internal/api/middleware"
	"github.com/reviewlens/reviewlens/internal/api/response"
	"github.com/reviewlens/reviewlens/internal/store"
	"github.com/reviewlens/reviewlens/pkg/models"
)

// NewListFindingsHandler returns the handler for
// GET /api/v1/jobs/{jobID}/findings. Findings exist only for complete
// jobs; any other status is a 409 so clients can keep polling.
func NewListFindingsHandler(st store.Store) http.HandlerFunc {
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

		if job.Status != models.JobStatusComplete {
			response.Error(w, http.StatusConflict, "JOB_NOT_COMPLETE",
				"Job has not completed", map[string]string{"status": job.Status})
			return
		}

		findings, err := st.ListFindingsByJob(r.Context(), job.ID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load findings", nil)
			return
		}

		response.Collection(w, findings, response.CollectionMeta{Count: len(findings)})
	}
}
