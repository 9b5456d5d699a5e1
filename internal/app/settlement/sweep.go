package settlement

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/lynks-network/lynks/internal/domain"
	"github.com/lynks-network/lynks/internal/infra/observability"
)

// ─── Auto-Resolution Sweeper ────────────────────────────────────────────────

// SweepBatch is how many stale submissions one page of a sweep handles.
const SweepBatch = 200

// SweepResult counts what one sweep did.
type SweepResult struct {
	Scanned  int `json:"scanned"`
	Approved int `json:"approved"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Sweep approves every submission still PENDING that was created before
// now-timeout. Each one goes through the approve primitive in its own
// transaction, attributed to the system timeout; a submission the owner
// reviewed first is skipped. One failing item is logged and counted
// without stopping the batch, and paging continues past it so newer stale
// submissions are still reached. Running Sweep twice approves nothing
// twice.
func (e *Engine) Sweep(ctx context.Context, now time.Time, timeout time.Duration) (res SweepResult, err error) {
	span := e.tracer.StartSpan(ctx, "sweep", nil)
	defer func() { e.tracer.EndSpan(span, err) }()
	observability.SweepRuns.Inc()

	cutoff := now.Add(-timeout)
	var cursor domain.StaleCursor
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		page, err := e.store.ListStalePending(ctx, cutoff, cursor, e.sweepBatch)
		if err != nil {
			return res, err
		}

		for _, item := range page {
			cursor = item
			res.Scanned++

			ok, err := e.sweepOne(ctx, item.ID, now)
			switch {
			case err != nil:
				res.Failed++
				observability.SweepItems.WithLabelValues("failed").Inc()
				log.Printf("[sweeper] auto-approve %s failed: %v", item.ID, err)
			case ok:
				res.Approved++
				observability.SweepItems.WithLabelValues("approved").Inc()
			default:
				res.Skipped++
				observability.SweepItems.WithLabelValues("skipped").Inc()
			}
		}
		if len(page) < e.sweepBatch {
			break
		}
	}

	if res.Scanned > 0 {
		log.Printf("[sweeper] scanned=%d approved=%d skipped=%d failed=%d",
			res.Scanned, res.Approved, res.Skipped, res.Failed)
	}
	return res, nil
}

func (e *Engine) sweepOne(ctx context.Context, id string, now time.Time) (bool, error) {
	var applied bool
	err := e.run(ctx, "sweep_item", map[string]string{"submission": id}, func(tx domain.Tx, fx *effects) error {
		applied = false
		sub, err := tx.GetSubmission(ctx, id)
		if err != nil {
			return err
		}
		if sub.Status != domain.StatusPending {
			return nil
		}
		post, err := tx.GetPost(ctx, sub.PostID)
		if err != nil {
			return err
		}
		applied, err = e.approveTx(ctx, tx, fx, sub, post, domain.DecidedByTimeout, now.UTC())
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return applied, err
}

// SweepDue runs Sweep with the engine clock and configured timeout.
func (e *Engine) SweepDue(ctx context.Context) (SweepResult, error) {
	return e.Sweep(ctx, e.clock(), e.policy.AutoApproveTimeout)
}

// ─── Periodic Sweeper ───────────────────────────────────────────────────────

// DefaultSweepInterval is how often the in-process sweeper runs.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper runs SweepDue once at start and then on a fixed interval. It
// keeps no state of its own, so a restart simply picks up from storage.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
}

// NewSweeper creates a periodic sweeper.
func NewSweeper(engine *Engine, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{engine: engine, interval: interval}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	log.Printf("[sweeper] started (interval %s, timeout %s)", s.interval, s.engine.policy.AutoApproveTimeout)
	s.tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[sweeper] stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	if _, err := s.engine.SweepDue(ctx); err != nil && ctx.Err() == nil {
		log.Printf("[sweeper] sweep failed: %v", err)
	}
}
