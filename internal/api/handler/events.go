package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	mw "github.com/reviewlens/reviewlens/internal/api/middleware"
	"github.com/reviewlens/reviewlens/internal/api/response"
	"github.com/reviewlens/reviewlens/internal/progress"
	"github.com/reviewlens/reviewlens/internal/store"
	"github.com/reviewlens/reviewlens/pkg/models"
)

// Subscriber opens a progress event stream for one job. Implemented by
// progress.RedisBroker.
type Subscriber interface {
	Subscribe(ctx context.Context, jobID uuid.UUID) (<-chan progress.Event, func())
}

// snapshotInterval is how often the stream checks the observer for a
// changed state.
const snapshotInterval = 500 * time.Millisecond

type progressSnapshot struct {
	Stage    string `json:"stage"`
	Percent  int    `json:"percent"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

// NewJobEventsHandler returns the SSE handler for
// GET /api/v1/jobs/{jobID}/events. It streams monotonic progress
// snapshots until the job is terminal, the client disconnects, or the
// inactivity timeout fires.
func NewJobEventsHandler(st store.Store, sub Subscriber) http.HandlerFunc {
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

		flusher, ok := w.(http.Flusher)
		if !ok {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Streaming not supported", nil)
			return
		}

		if job.Terminal() {
			writeSSEHeaders(w)
			writeSnapshot(w, flusher, terminalSnapshot(job))
			return
		}

		events, release := sub.Subscribe(r.Context(), job.ID)
		obs := progress.NewObserver(events, release, progress.DefaultInactivityTimeout)
		defer obs.Close()

		// The job may have finished between the lookup and the
		// subscription; re-check so the client is not left waiting on a
		// silent channel.
		if fresh, err := st.GetJob(r.Context(), job.ID, ownerID); err == nil && fresh.Terminal() {
			writeSSEHeaders(w)
			writeSnapshot(w, flusher, terminalSnapshot(fresh))
			return
		}

		writeSSEHeaders(w)

		last := progressSnapshot{Stage: progress.StagePending}
		writeSnapshot(w, flusher, last)

		ticker := time.NewTicker(snapshotInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-obs.Done():
				if snap := toSnapshot(obs.State()); snap != last {
					writeSnapshot(w, flusher, snap)
				}
				return
			case <-ticker.C:
				snap := toSnapshot(obs.State())
				if snap == last {
					continue
				}
				last = snap
				writeSnapshot(w, flusher, snap)
				if snap.TimedOut {
					return
				}
			}
		}
	}
}

func writeSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
}

func writeSnapshot(w http.ResponseWriter, flusher http.Flusher, snap progressSnapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}

func toSnapshot(s progress.State) progressSnapshot {
	return progressSnapshot{
		Stage:    s.Stage,
		Percent:  s.Percent,
		TimedOut: s.IsTimedOut,
	}
}

func terminalSnapshot(job *models.Job) progressSnapshot {
	if job.Status == models.JobStatusComplete {
		return progressSnapshot{Stage: progress.StageComplete, Percent: 100}
	}
	return progressSnapshot{Stage: progress.StageError}
}
