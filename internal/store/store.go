package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/reviewlens/reviewlens/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetOwner(ctx context.Context, id uuid.UUID) (*models.Owner, error)
	GetDefaultOwner(ctx context.Context) (*models.Owner, error)
	IncrementJobsUsed(ctx context.Context, ownerID uuid.UUID) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, ownerID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error

	CreateFindings(ctx context.Context, findings []*models.Finding) error
	ListFindingsByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Finding, error)
}

type jobUpdateParams struct {
	Diagnostic   *string
	SampleCounts map[int]int
}

type JobUpdateOption func(*jobUpdateParams)

// WithDiagnostic records the last error on the job for operator visibility.
func WithDiagnostic(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Diagnostic = &msg
	}
}

// WithSampleCounts snapshots per-tier sample counts onto the job so they
// survive cache expiry.
func WithSampleCounts(counts map[int]int) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.SampleCounts = counts
	}
}

// ResolveJobUpdateOptions applies opts and returns the resulting values.
// Lets fakes standing in for the Postgres store honor the options.
func ResolveJobUpdateOptions(opts ...JobUpdateOption) (diagnostic *string, sampleCounts map[int]int) {
	p := &jobUpdateParams{}
	for _, opt := range opts {
		opt(p)
	}
	return p.Diagnostic, p.SampleCounts
}
