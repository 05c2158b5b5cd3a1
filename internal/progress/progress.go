// Package progress carries best-effort, per-job progress events from the
// pipeline to observers. Delivery is fire-and-forget: a lost event never
// aborts a pipeline, and observers enforce monotonic percent themselves.
package progress

import (
	"fmt"

	"github.com/google/uuid"
)

// Stages observed across a job's lifecycle.
const (
	StagePending            = "pending"
	StageCollecting         = "collecting"
	StageCollectionComplete = "collection_complete"
	StageExtracting         = "extracting"
	StageExtractionComplete = "extraction_complete"
	StagePersisting         = "persisting"
	StageComplete           = "complete"
	StageError              = "error"
)

// Event is one progress message on a job's topic.
type Event struct {
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
}

// Terminal reports whether the event ends the job's stream.
func (e Event) Terminal() bool {
	return e.Stage == StageComplete || e.Stage == StageError
}

// Channel returns the deterministic per-job topic name.
func Channel(jobID uuid.UUID) string {
	return fmt.Sprintf("progress:job:%s", jobID)
}
