// Package settlement is the submission settlement engine.
//
// It owns the submission state machine, the credit transfers each
// transition triggers, the auto-approval sweep, post deletion and the
// dispute path. Every operation that changes a submission's status and
// moves credit runs as one storage transaction whose status check is a
// compare-and-swap, so a reviewer racing the sweeper (or two admins racing
// each other) can never pay out twice.
package settlement

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/lynks-network/lynks/internal/domain"
	"github.com/lynks-network/lynks/internal/infra/observability"
)

// Engine is the settlement façade used by the API, CLI and sweeper.
type Engine struct {
	store    domain.Store
	policy   domain.Policy
	blobs    domain.BlobStore
	notifier domain.Notifier
	tracer   *observability.Tracer
	now      func() time.Time
	newID    func() string
	shuffle  func(n int, swap func(i, j int))

	sweepBatch int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine clock (tests, replays).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithNotifier sets the event sink. Defaults to a no-op.
func WithNotifier(n domain.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithBlobStore sets the proof store used for uploads and downloads.
func WithBlobStore(b domain.BlobStore) Option {
	return func(e *Engine) { e.blobs = b }
}

// WithTracer records one span per operation.
func WithTracer(t *observability.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithShuffle replaces the feed shuffle. Pass a no-op for a stable order.
func WithShuffle(fn func(n int, swap func(i, j int))) Option {
	return func(e *Engine) { e.shuffle = fn }
}

// New creates a settlement engine over store.
func New(store domain.Store, policy domain.Policy, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		policy:   policy,
		notifier: nopNotifier{},
		now:      time.Now,
		newID:    uuid.NewString,
		shuffle:  fisherYates,

		sweepBatch: SweepBatch,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.policy.Location == nil {
		e.policy.Location = time.Local
	}
	return e
}

// Policy returns the settlement constants in force.
func (e *Engine) Policy() domain.Policy { return e.policy }

func (e *Engine) clock() time.Time { return e.now().UTC() }

// ─── Side Effects ───────────────────────────────────────────────────────────

// effects collects what an operation did inside its transaction. They are
// flushed only after commit, so a rolled-back transaction leaves no trace
// in metrics or notifications.
type effects struct {
	events      []domain.Event
	transitions [][2]domain.Status
	transfers   []domain.Transfer
}

func (fx *effects) event(e domain.Event) { fx.events = append(fx.events, e) }

func (fx *effects) transition(from, to domain.Status) {
	fx.transitions = append(fx.transitions, [2]domain.Status{from, to})
}

func (e *Engine) flush(fx *effects) {
	for _, t := range fx.transitions {
		observability.SubmissionTransitions.WithLabelValues(string(t[0]), string(t[1])).Inc()
	}
	for _, t := range fx.transfers {
		observability.CreditsMoved.WithLabelValues(string(t.Reason)).Add(float64(t.Amount))
		if t.Reason == domain.TxReward || t.Reason == domain.TxDisputePayout {
			observability.Payouts.WithLabelValues(string(t.Reason)).Inc()
		}
	}
	for _, ev := range fx.events {
		e.notifier.Publish(ev)
	}
}

// run executes fn in one transaction and flushes its effects on commit.
func (e *Engine) run(ctx context.Context, op string, attrs map[string]string, fn func(tx domain.Tx, fx *effects) error) error {
	span := e.tracer.StartSpan(ctx, op, attrs)
	fx := &effects{}
	err := e.store.WithTx(ctx, func(tx domain.Tx) error {
		*fx = effects{}
		return fn(tx, fx)
	})
	e.tracer.EndSpan(span, err)
	if err != nil {
		return err
	}
	e.flush(fx)
	return nil
}

type nopNotifier struct{}

func (nopNotifier) Publish(domain.Event) {}

// ─── Shared Primitives ──────────────────────────────────────────────────────

// approveTx is the single approve primitive used by Review, the sweeper
// and the post deletion cascade. It moves a PENDING submission to
// APPROVED, pays the post's reward from the treasury, records the payout
// and queues the proof purge. It reports false, with no writes, when the
// submission is no longer PENDING.
func (e *Engine) approveTx(ctx context.Context, tx domain.Tx, fx *effects, sub domain.Submission, post domain.Post, decidedBy string, at time.Time) (bool, error) {
	cleared := ""
	ok, err := tx.TransitionSubmission(ctx, sub.ID, domain.Transition{
		From:            domain.StatusPending,
		To:              domain.StatusApproved,
		RejectionReason: &cleared,
		DecidedBy:       decidedBy,
		Paid:            true,
		At:              at,
	})
	if err != nil || !ok {
		return false, err
	}
	fx.transition(domain.StatusPending, domain.StatusApproved)

	if err := e.payoutTx(ctx, tx, fx, sub, post, domain.TxReward, at); err != nil {
		return false, err
	}
	if err := e.enqueuePurgeTx(ctx, tx, sub, at); err != nil {
		return false, err
	}
	fx.event(domain.Event{
		Type: domain.EventSubmissionStatus, ActorID: sub.SubmitterID,
		SubmissionID: sub.ID, PostID: post.ID, Status: domain.StatusApproved, At: at,
	})
	return true, nil
}

// payoutTx transfers the post's reward to the submitter and records the
// payout. A second payout for the same submission fails with
// ErrAlreadyPaid and aborts the transaction.
func (e *Engine) payoutTx(ctx context.Context, tx domain.Tx, fx *effects, sub domain.Submission, post domain.Post, reason domain.TransactionType, at time.Time) error {
	l := NewLedger(tx, at, e.newID)
	t := domain.Transfer{
		From:         domain.TreasuryAccount,
		To:           sub.SubmitterID,
		Amount:       post.Reward,
		Reason:       reason,
		SubmissionID: sub.ID,
		PostID:       post.ID,
		Description:  "reward for " + post.URL,
	}
	receipt, err := l.Transfer(ctx, t)
	if err != nil {
		return err
	}
	if err := tx.InsertPayout(ctx, domain.Payout{
		SubmissionID: sub.ID,
		ActorID:      sub.SubmitterID,
		Amount:       post.Reward,
		Reason:       reason,
		PaidAt:       at,
	}); err != nil {
		return err
	}
	fx.transfers = append(fx.transfers, t)
	fx.event(domain.Event{
		Type: domain.EventBalanceChanged, ActorID: sub.SubmitterID,
		SubmissionID: sub.ID, Amount: receipt.ToBalance, At: at,
	})
	return nil
}

// enqueuePurgeTx queues the proof blob for deletion in the same
// transaction that approved the submission.
func (e *Engine) enqueuePurgeTx(ctx context.Context, tx domain.Tx, sub domain.Submission, at time.Time) error {
	if !sub.ProofAvailable() {
		return nil
	}
	return tx.EnqueuePurge(ctx, domain.PurgeJob{
		ID:           e.newID(),
		SubmissionID: sub.ID,
		ProofRef:     sub.ProofRef,
		State:        domain.PurgeQueued,
		NextAttempt:  at,
		CreatedAt:    at,
	})
}

func logf(format string, args ...any) {
	log.Printf("[settlement] "+format, args...)
}
