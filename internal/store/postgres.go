package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/reviewlens/reviewlens/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Owners ---

func (s *PostgresStore) GetOwner(ctx context.Context, id uuid.UUID) (*models.Owner, error) {
	var o models.Owner
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, plan, jobs_used, created_at, updated_at FROM owners WHERE id = $1`, id,
	).Scan(&o.ID, &o.Email, &o.Plan, &o.JobsUsed, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get owner: %w", err)
	}
	return &o, nil
}

func (s *PostgresStore) GetDefaultOwner(ctx context.Context) (*models.Owner, error) {
	var o models.Owner
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, plan, jobs_used, created_at, updated_at FROM owners WHERE email = 'default@reviewlens.local' LIMIT 1`,
	).Scan(&o.ID, &o.Email, &o.Plan, &o.JobsUsed, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default owner: %w", err)
	}
	return &o, nil
}

// IncrementJobsUsed bumps the owner's lifetime completed-job counter.
// The increment is atomic so concurrent completions never lose updates.
func (s *PostgresStore) IncrementJobsUsed(ctx context.Context, ownerID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE owners SET jobs_used = jobs_used + 1, updated_at = NOW() WHERE id = $1`, ownerID)
	if err != nil {
		return fmt.Errorf("increment jobs used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.OwnerID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, owner_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.OwnerID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, ownerID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE owner_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.OwnerID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL`, id, ownerID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	counts, err := marshalSampleCounts(job.SampleCounts)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, owner_id, app_id, status, sample_counts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.OwnerID, job.AppID, job.Status, counts, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Job, error) {
	var j models.Job
	var counts []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, app_id, status, diagnostic, sample_counts, started_at, completed_at, created_at, updated_at
		 FROM jobs WHERE id = $1 AND owner_id = $2`, id, ownerID,
	).Scan(&j.ID, &j.OwnerID, &j.AppID, &j.Status, &j.Diagnostic, &counts,
		&j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if len(counts) > 0 {
		if err := json.Unmarshal(counts, &j.SampleCounts); err != nil {
			return nil, fmt.Errorf("decode sample counts: %w", err)
		}
	}
	return &j, nil
}

var validTransitions = map[string][]string{
	models.JobStatusPending:    {models.JobStatusCollecting, models.JobStatusError},
	models.JobStatusCollecting: {models.JobStatusExtracting, models.JobStatusError},
	models.JobStatusExtracting: {models.JobStatusComplete, models.JobStatusError},
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	// Fetch current status
	var currentStatus string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}

	// Validate transition
	allowed := validTransitions[currentStatus]
	valid := false
	for _, a := range allowed {
		if a == status {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid job status transition: %s -> %s", currentStatus, status)
	}

	now := time.Now().UTC()
	query := `UPDATE jobs SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if currentStatus == models.JobStatusPending {
		query += fmt.Sprintf(", started_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if status == models.JobStatusComplete || status == models.JobStatusError {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if params.Diagnostic != nil {
		query += fmt.Sprintf(", diagnostic = $%d", argIdx)
		args = append(args, *params.Diagnostic)
		argIdx++
	}
	if params.SampleCounts != nil {
		counts, err := marshalSampleCounts(params.SampleCounts)
		if err != nil {
			return err
		}
		query += fmt.Sprintf(", sample_counts = $%d", argIdx)
		args = append(args, counts)
		argIdx++
	}

	// The status predicate makes the write conditional on the state the
	// transition was validated against. A racing writer that moved the
	// job first leaves this UPDATE matching zero rows, so a terminal
	// status is never overwritten.
	query += fmt.Sprintf(" WHERE id = $1 AND status = $%d", argIdx)
	args = append(args, currentStatus)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var latest string
		err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&latest)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get job status: %w", err)
		}
		return fmt.Errorf("invalid job status transition: %s -> %s", latest, status)
	}
	return nil
}

// --- Findings ---

// CreateFindings inserts the batch atomically. Findings are immutable once
// written, so there is no update path.
func (s *PostgresStore) CreateFindings(ctx context.Context, findings []*models.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin findings tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, f := range findings {
		quotes, err := json.Marshal(f.Quotes)
		if err != nil {
			return fmt.Errorf("encode quotes: %w", err)
		}
		batch.Queue(
			`INSERT INTO findings (id, job_id, category, severity, frequency, description, quotes,
			   rec_action, rec_phase, rec_effort, rec_impact, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			f.ID, f.JobID, f.Category, f.Severity, f.Frequency, f.Description, quotes,
			f.Improvement.Action, f.Improvement.Phase, f.Improvement.Effort, f.Improvement.Impact,
			f.CreatedAt)
	}

	br := tx.SendBatch(ctx, batch)
	for range findings {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert finding: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close findings batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit findings: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFindingsByJob(ctx context.Context, jobID uuid.UUID) ([]*models.Finding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, category, severity, frequency, description, quotes,
		   rec_action, rec_phase, rec_effort, rec_impact, created_at
		 FROM findings WHERE job_id = $1
		 ORDER BY CASE severity WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, frequency DESC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var findings []*models.Finding
	for rows.Next() {
		var f models.Finding
		var quotes []byte
		if err := rows.Scan(&f.ID, &f.JobID, &f.Category, &f.Severity, &f.Frequency, &f.Description, &quotes,
			&f.Improvement.Action, &f.Improvement.Phase, &f.Improvement.Effort, &f.Improvement.Impact,
			&f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		if len(quotes) > 0 {
			if err := json.Unmarshal(quotes, &f.Quotes); err != nil {
				return nil, fmt.Errorf("decode quotes: %w", err)
			}
		}
		findings = append(findings, &f)
	}
	return findings, rows.Err()
}

func marshalSampleCounts(counts map[int]int) ([]byte, error) {
	if counts == nil {
		return nil, nil
	}
	b, err := json.Marshal(counts)
	if err != nil {
		return nil, fmt.Errorf("encode sample counts: %w", err)
	}
	return b, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
