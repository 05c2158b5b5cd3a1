package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusCollecting = "collecting"
	JobStatusExtracting = "extracting"
	JobStatusComplete   = "complete"
	JobStatusError      = "error"
)

// Job tracks one end-to-end analysis run for one app and one owner.
// The API returns a job id on POST /api/v1/jobs; the client polls
// GET /api/v1/jobs/{id} or streams /events until status is complete or error.
// Only the pipeline orchestrator mutates a job after creation.
type Job struct {
	ID           uuid.UUID   `db:"id"            json:"id"`
	OwnerID      uuid.UUID   `db:"owner_id"      json:"owner_id"`
	AppID        string      `db:"app_id"        json:"app_id"`
	Status       string      `db:"status"        json:"status"`
	Diagnostic   *string     `db:"diagnostic"    json:"diagnostic,omitempty"`
	SampleCounts map[int]int `db:"sample_counts" json:"sample_counts,omitempty"`
	StartedAt    *time.Time  `db:"started_at"    json:"started_at,omitempty"`
	CompletedAt  *time.Time  `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt    time.Time   `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"    json:"updated_at"`
}

// Terminal reports whether the job has reached a final status.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusComplete || j.Status == JobStatusError
}
