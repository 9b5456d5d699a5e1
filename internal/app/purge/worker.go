// Package purge drains the proof purge outbox.
//
// Approving a submission queues a purge job in the same transaction. The
// worker:
//  1. Leases due jobs from storage
//  2. Deletes each proof blob (a missing blob counts as deleted)
//  3. Completes the job, which clears the proof reference and moves the
//     submission from APPROVED to VERIFIED
//  4. Reschedules failures with exponential backoff, burying a job once it
//     runs out of attempts
//
// Purging is best-effort: a failure here never undoes the approval or the
// payout that queued it.
package purge

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lynks-network/lynks/internal/domain"
	"github.com/lynks-network/lynks/internal/infra/observability"
)

// Config controls worker behavior.
type Config struct {
	PollInterval  time.Duration // How often to look for due jobs (default: 30s)
	LeaseTTL      time.Duration // How long a claimed job stays invisible (default: 2m)
	MaxAttempts   int           // Attempts before a job is buried (default: 8)
	RetryBackoff  time.Duration // First retry delay, doubled per attempt (default: 30s)
	RetryMaxDelay time.Duration // Backoff ceiling (default: 1h)
	BatchSize     int           // Jobs claimed per poll (default: 20)
	MaxConcurrent int           // Parallel blob deletions (default: 4)
}

// DefaultConfig returns safe worker defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:  30 * time.Second,
		LeaseTTL:      2 * time.Minute,
		MaxAttempts:   8,
		RetryBackoff:  30 * time.Second,
		RetryMaxDelay: time.Hour,
		BatchSize:     20,
		MaxConcurrent: 4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = d.LeaseTTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = d.RetryMaxDelay
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	return c
}

// Worker deletes purged proofs.
type Worker struct {
	mu        sync.Mutex
	config    Config
	queue     domain.PurgeQueue
	blobs     domain.BlobStore
	now       func() time.Time
	completed int64
	retried   int64
	buried    int64
}

// New creates a purge worker.
func New(cfg Config, queue domain.PurgeQueue, blobs domain.BlobStore) *Worker {
	return &Worker{
		config: cfg.withDefaults(),
		queue:  queue,
		blobs:  blobs,
		now:    time.Now,
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	log.Printf("[purge] worker started (poll %s, batch %d)", w.config.PollInterval, w.config.BatchSize)
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[purge] poll failed: %v", err)
		}
		select {
		case <-ctx.Done():
			log.Printf("[purge] worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce claims one batch of due jobs and processes it. It returns how
// many jobs were claimed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	jobs, err := w.queue.ClaimPurgeJobs(ctx, w.now().UTC(), w.config.LeaseTTL, w.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim purge jobs: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.config.MaxConcurrent)
	for _, job := range jobs {
		g.Go(func() error {
			w.process(gctx, job)
			return nil
		})
	}
	_ = g.Wait()

	if n, err := w.queue.CountPurgeJobs(ctx, domain.PurgeQueued); err == nil {
		observability.PurgeQueueDepth.Set(float64(n))
	}
	return len(jobs), nil
}

func (w *Worker) process(ctx context.Context, job domain.PurgeJob) {
	if err := w.blobs.Delete(ctx, job.ProofRef); err != nil {
		w.fail(ctx, job, err)
		return
	}
	verified, err := w.queue.CompletePurge(ctx, job, w.now().UTC())
	if err != nil {
		w.fail(ctx, job, err)
		return
	}
	observability.PurgeJobs.WithLabelValues("done").Inc()
	if verified {
		observability.SubmissionTransitions.WithLabelValues(string(domain.StatusApproved), string(domain.StatusVerified)).Inc()
	}
	w.mu.Lock()
	w.completed++
	w.mu.Unlock()
}

// fail reschedules job, or buries it once its attempts are used up.
func (w *Worker) fail(ctx context.Context, job domain.PurgeJob, cause error) {
	msg := cause.Error()
	if job.Attempts >= w.config.MaxAttempts {
		log.Printf("[purge] job %s for submission %s buried after %d attempts: %s",
			job.ID, job.SubmissionID, job.Attempts, msg)
		if err := w.queue.BuryPurge(ctx, job.ID, msg); err != nil {
			log.Printf("[purge] bury %s: %v", job.ID, err)
		}
		observability.PurgeJobs.WithLabelValues("dead").Inc()
		w.mu.Lock()
		w.buried++
		w.mu.Unlock()
		return
	}

	next := w.now().UTC().Add(w.backoff(job.Attempts))
	log.Printf("[purge] job %s attempt %d failed, retry at %s: %s",
		job.ID, job.Attempts, next.Format(time.RFC3339), msg)
	if err := w.queue.RetryPurge(ctx, job.ID, msg, next); err != nil {
		log.Printf("[purge] reschedule %s: %v", job.ID, err)
	}
	observability.PurgeJobs.WithLabelValues("retry").Inc()
	w.mu.Lock()
	w.retried++
	w.mu.Unlock()
}

// backoff is RetryBackoff doubled per previous attempt, capped at RetryMaxDelay.
func (w *Worker) backoff(attempts int) time.Duration {
	d := w.config.RetryBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= w.config.RetryMaxDelay {
			return w.config.RetryMaxDelay
		}
	}
	return d
}

// Stats are worker counters since start.
type Stats struct {
	Completed int64 `json:"completed"`
	Retried   int64 `json:"retried"`
	Buried    int64 `json:"buried"`
}

// Stats returns current worker statistics.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{Completed: w.completed, Retried: w.retried, Buried: w.buried}
}
