// Package pipeline runs the asynchronous analysis flow: create a job,
// collect review samples per star tier, extract findings through the
// configured provider, and persist the results. Jobs always land on a
// terminal status with exactly one terminal progress event.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/reviewlens/reviewlens/internal/extract"
	"github.com/reviewlens/reviewlens/internal/progress"
	"github.com/reviewlens/reviewlens/internal/reviews"
	"github.com/reviewlens/reviewlens/internal/store"
	"github.com/reviewlens/reviewlens/pkg/models"
)

var (
	ErrInvalidSubject = errors.New("app id is not a valid package name")
	ErrQuotaExceeded  = errors.New("free tier job quota exceeded")
)

// appIDPattern matches reverse-domain Android package names:
// dot-separated identifiers, at least two segments.
var appIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z][A-Za-z0-9_]*)+$`)

// maxDiagnosticLen bounds what gets written to the job's diagnostic
// column; provider error bodies can be arbitrarily large.
const maxDiagnosticLen = 500

// Percent checkpoints published per stage. Per-tier collection progress
// interpolates between collecting and collection_complete.
const (
	percentCollecting         = 10
	percentCollectionComplete = 40
	percentExtracting         = 45
	percentExtractionComplete = 75
	percentPersisting         = 85
	percentComplete           = 100
)

// Diagnostics recorded on jobs that fail for a known reason.
const (
	DiagnosticSubjectNotFound = "subject_not_found"
	DiagnosticNoSamples       = "no_samples"
)

// Orchestrator owns the job lifecycle from creation to terminal status.
type Orchestrator struct {
	store       store.Store
	collector   reviews.Collector
	extractor   extract.Extractor
	broadcaster progress.Broadcaster
	runner      *Runner

	freeTierJobLimit int
	jobTimeout       time.Duration
}

// NewOrchestrator wires the pipeline. jobTimeout bounds one background
// run end to end; zero disables the bound.
func NewOrchestrator(
	st store.Store,
	collector reviews.Collector,
	extractor extract.Extractor,
	broadcaster progress.Broadcaster,
	runner *Runner,
	freeTierJobLimit int,
	jobTimeout time.Duration,
) *Orchestrator {
	return &Orchestrator{
		store:            st,
		collector:        collector,
		extractor:        extractor,
		broadcaster:      broadcaster,
		runner:           runner,
		freeTierJobLimit: freeTierJobLimit,
		jobTimeout:       jobTimeout,
	}
}

// CreateJob validates the subject, enforces the owner's quota, persists a
// pending job, and hands the run to a background task. The returned job is
// the caller's response body; the run proceeds independently.
func (o *Orchestrator) CreateJob(ctx context.Context, owner *models.Owner, appID string) (*models.Job, error) {
	if !appIDPattern.MatchString(appID) {
		return nil, ErrInvalidSubject
	}
	if owner.Plan == models.PlanFree && owner.JobsUsed >= o.freeTierJobLimit {
		return nil, ErrQuotaExceeded
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		OwnerID:   owner.ID,
		AppID:     appID,
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	o.broadcaster.Publish(ctx, job.ID, progress.StagePending, 0)
	o.runner.Go(func() { o.run(job) })

	slog.Info("job created", "job_id", job.ID, "app_id", appID, "owner_id", owner.ID)
	return job, nil
}

// run executes one job to a terminal status. It never returns early
// without either failJob or completing: panics are recovered into an
// error status, and the terminal progress event is published exactly once.
func (o *Orchestrator) run(job *models.Job) {
	ctx := context.Background()
	if o.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.jobTimeout)
		defer cancel()
	}

	percent := 0
	terminal := false

	fail := func(diagnostic string) {
		if terminal {
			return
		}
		terminal = true
		diagnostic = truncateDiagnostic(diagnostic)
		// Status writes on failure use a fresh context: the job timeout
		// may be the reason we are here.
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := o.store.UpdateJobStatus(sctx, job.ID, models.JobStatusError, store.WithDiagnostic(diagnostic)); err != nil {
			slog.Error("mark job failed", "job_id", job.ID, "error", err)
		}
		o.broadcaster.Publish(sctx, job.ID, progress.StageError, percent)
		slog.Warn("job failed", "job_id", job.ID, "diagnostic", diagnostic)
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("job panicked", "job_id", job.ID, "panic", r)
			fail(fmt.Sprintf("internal error: %v", r))
		}
	}()

	// Collection.
	if err := o.store.UpdateJobStatus(ctx, job.ID, models.JobStatusCollecting); err != nil {
		fail(fmt.Sprintf("starting collection: %v", err))
		return
	}
	percent = percentCollecting
	o.broadcaster.Publish(ctx, job.ID, progress.StageCollecting, percent)

	samples := make([]models.Review, 0)
	counts := make(map[int]int, len(models.Tiers))
	span := percentCollectionComplete - percentCollecting
	for i, tier := range models.Tiers {
		collected, err := o.collector.Collect(ctx, job.AppID, tier)
		if err != nil {
			if errors.Is(err, reviews.ErrAppNotFound) {
				fail(DiagnosticSubjectNotFound)
				return
			}
			// A single tier failing transiently does not kill the job;
			// the no-samples check below catches total failure.
			slog.Warn("tier collection failed", "job_id", job.ID, "tier", tier, "error", err)
			collected = nil
		}
		counts[tier] = len(collected)
		samples = append(samples, collected...)

		percent = percentCollecting + span*(i+1)/len(models.Tiers)
		o.broadcaster.Publish(ctx, job.ID, progress.StageCollecting, percent)
	}

	if len(samples) == 0 {
		fail(DiagnosticNoSamples)
		return
	}

	percent = percentCollectionComplete
	o.broadcaster.Publish(ctx, job.ID, progress.StageCollectionComplete, percent)

	// Extraction. Sample counts are snapshotted on the transition so they
	// survive cache expiry.
	if err := o.store.UpdateJobStatus(ctx, job.ID, models.JobStatusExtracting, store.WithSampleCounts(counts)); err != nil {
		fail(fmt.Sprintf("starting extraction: %v", err))
		return
	}
	percent = percentExtracting
	o.broadcaster.Publish(ctx, job.ID, progress.StageExtracting, percent)

	findings, err := o.extractor.Extract(ctx, job.AppID, samples)
	if err != nil {
		fail(fmt.Sprintf("extraction: %v", err))
		return
	}

	valid := make([]*models.Finding, 0, len(findings))
	for _, f := range findings {
		if verr := f.Validate(); verr != nil {
			slog.Warn("dropping invalid finding", "job_id", job.ID, "error", verr)
			continue
		}
		f.JobID = job.ID
		valid = append(valid, f)
	}
	if len(valid) == 0 {
		fail("extraction: no valid findings in response")
		return
	}

	percent = percentExtractionComplete
	o.broadcaster.Publish(ctx, job.ID, progress.StageExtractionComplete, percent)

	// Persistence.
	percent = percentPersisting
	o.broadcaster.Publish(ctx, job.ID, progress.StagePersisting, percent)

	if err := o.store.CreateFindings(ctx, valid); err != nil {
		fail(fmt.Sprintf("persisting findings: %v", err))
		return
	}
	if err := o.store.UpdateJobStatus(ctx, job.ID, models.JobStatusComplete); err != nil {
		fail(fmt.Sprintf("completing job: %v", err))
		return
	}
	terminal = true

	// Quota counts completed analyses only. A failed increment is logged,
	// not propagated: the job's results are already durable.
	if err := o.store.IncrementJobsUsed(ctx, job.OwnerID); err != nil {
		slog.Error("increment jobs used", "job_id", job.ID, "owner_id", job.OwnerID, "error", err)
	}

	percent = percentComplete
	o.broadcaster.Publish(ctx, job.ID, progress.StageComplete, percent)
	slog.Info("job complete", "job_id", job.ID, "findings", len(valid), "samples", len(samples))
}

// truncateDiagnostic bounds diagnostic text without splitting UTF-8 runes.
func truncateDiagnostic(s string) string {
	if len(s) <= maxDiagnosticLen {
		return s
	}
	cut := maxDiagnosticLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
