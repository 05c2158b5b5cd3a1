package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// Owner is the account that jobs and API keys belong to. JobsUsed is the
// lifetime count of completed jobs; it gates free-tier job creation and is
// incremented only after a job reaches complete, so failed jobs do not
// consume quota headroom.
type Owner struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Email     string    `db:"email"      json:"email"`
	Plan      string    `db:"plan"       json:"plan"`
	JobsUsed  int       `db:"jobs_used"  json:"jobs_used"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
