package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/mixtape/internal/catalog"
	"github.com/kalambet/mixtape/internal/storage"
)

// JobTypeFeatureEnrich is the queue type for cache-warming jobs.
const JobTypeFeatureEnrich = "feature_enrich"

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Worker processes feature_enrich jobs from the SQLite job queue, warming
// the shared feature cache so playlist generation rarely has to fetch
// features inline.
type Worker struct {
	store    JobStore
	resolver *Resolver
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, resolver *Resolver, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		resolver: resolver,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single feature_enrich job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeFeatureEnrich})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type enrichPayload struct {
	CatalogID string   `json:"catalog_id"`
	Title     string   `json:"title"`
	Artists   []string `json:"artists"`
	Year      int      `json:"year"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload enrichPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.CatalogID == "" {
		return fmt.Errorf("payload missing catalog_id")
	}

	c := catalog.Candidate{
		CatalogID: payload.CatalogID,
		Title:     payload.Title,
		Artists:   payload.Artists,
		Year:      payload.Year,
	}
	t, err := w.resolver.fetch(ctx, c)
	if err != nil {
		return fmt.Errorf("fetching features for %s: %w", c.CatalogID, err)
	}
	if err := w.resolver.cache.SetTrackFeatures(ctx, t); err != nil {
		return fmt.Errorf("caching features for %s: %w", c.CatalogID, err)
	}
	return nil
}

// JobEnqueuer is the enqueue-side surface of the job queue.
type JobEnqueuer interface {
	EnqueueJob(job storage.Job) error
}

// EnqueueCandidates queues cache-warming jobs for the given candidates.
// Failures are logged and skipped: a candidate that never gets a job simply
// resolves inline later.
func EnqueueCandidates(store JobEnqueuer, cands []catalog.Candidate) {
	for _, c := range cands {
		payload, err := json.Marshal(enrichPayload{
			CatalogID: c.CatalogID,
			Title:     c.Title,
			Artists:   c.Artists,
			Year:      c.Year,
		})
		if err != nil {
			slog.Warn("marshaling enrich payload", "catalog_id", c.CatalogID, "error", err)
			continue
		}
		job := storage.Job{
			ID:          uuid.NewString(),
			Type:        JobTypeFeatureEnrich,
			PayloadJSON: string(payload),
		}
		if err := store.EnqueueJob(job); err != nil {
			slog.Warn("enqueueing enrich job", "catalog_id", c.CatalogID, "error", err)
		}
	}
}
