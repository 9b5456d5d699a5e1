package domain

import (
	"context"
	"io"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// Store is the injected storage-access boundary of the settlement engine.
// Every race-sensitive decision runs inside WithTx.
type Store interface {
	Reader

	// WithTx runs fn in one atomic unit. If fn returns an error nothing
	// fn wrote is observable afterwards.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Reader serves read paths that need no atomicity with a write.
type Reader interface {
	GetActor(ctx context.Context, id string) (Actor, error)
	GetPost(ctx context.Context, id string) (Post, error)
	GetSubmission(ctx context.Context, id string) (Submission, error)
	GetSubmissionView(ctx context.Context, id string) (SubmissionView, error)
	ListFeed(ctx context.Context, actorID string, skip, take int) ([]FeedPost, error)
	ListDisputed(ctx context.Context, limit int) ([]SubmissionView, error)
	ListSentSubmissions(ctx context.Context, submitterID string, limit int) ([]SubmissionView, error)
	ListReceivedSubmissions(ctx context.Context, ownerID string, limit int) ([]SubmissionView, error)
	CountPendingForOwner(ctx context.Context, ownerID string) (int, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, after StaleCursor, limit int) ([]StaleCursor, error)
	ListLedgerEntries(ctx context.Context, account string, limit int) ([]LedgerEntry, error)
	GetPayout(ctx context.Context, submissionID string) (Payout, error)
	AccountBalance(ctx context.Context, account string) (int64, error)
	TotalBalance(ctx context.Context) (int64, error)
}

// Tx is the set of writes (and re-reads) available inside one atomic unit.
type Tx interface {
	// Accounts
	InsertActor(ctx context.Context, a Actor) error
	GetActor(ctx context.Context, id string) (Actor, error)
	SetHandle(ctx context.Context, actorID, handle string) error
	Credit(ctx context.Context, account string, amount int64) (balance int64, err error)
	Debit(ctx context.Context, account string, amount int64) (balance int64, err error)
	InsertLedgerEntry(ctx context.Context, e LedgerEntry) error
	InsertPayout(ctx context.Context, p Payout) error

	// Posts
	InsertPost(ctx context.Context, p Post) error
	GetPost(ctx context.Context, id string) (Post, error)
	CountPostsSince(ctx context.Context, ownerID string, since time.Time) (int, error)
	MarkPostDeleted(ctx context.Context, id string, at time.Time) error

	// Submissions
	InsertSubmission(ctx context.Context, s Submission) error
	GetSubmission(ctx context.Context, id string) (Submission, error)
	HasSubmission(ctx context.Context, postID, submitterID string) (bool, error)
	CountSubmissions(ctx context.Context, postID string) (int, error)
	ListPendingByPost(ctx context.Context, postID string) ([]Submission, error)
	// TransitionSubmission applies t only if the row is still in t.From
	// (and unpaid when t.Paid is set). It reports whether the row changed.
	TransitionSubmission(ctx context.Context, id string, t Transition) (bool, error)

	// Proof uploads
	RecordProofUpload(ctx context.Context, ref, uploaderID string, at time.Time) error
	// ClaimProof binds an upload by uploaderID to submissionID. An unknown
	// ref, or one uploaded by someone else, is ErrNotFound; a ref already
	// claimed is ErrProofInUse.
	ClaimProof(ctx context.Context, ref, uploaderID, submissionID string, at time.Time) error

	// Purge outbox
	EnqueuePurge(ctx context.Context, job PurgeJob) error
}

// StaleCursor is a position in the (created_at, id) order the sweeper
// pages through. The zero value starts from the oldest submission.
type StaleCursor struct {
	CreatedAt time.Time
	ID        string
}

// ─── Proof Purge Outbox ─────────────────────────────────────────────────────

// PurgeState is the lifecycle of a queued proof deletion.
type PurgeState string

const (
	PurgeQueued PurgeState = "QUEUED"
	PurgeDone   PurgeState = "DONE"
	PurgeDead   PurgeState = "DEAD"
)

// PurgeJob is a durable request to delete a proof blob after approval.
type PurgeJob struct {
	ID           string     `json:"id"`
	SubmissionID string     `json:"submission_id"`
	ProofRef     string     `json:"proof_ref"`
	State        PurgeState `json:"state"`
	Attempts     int        `json:"attempts"`
	LastError    string     `json:"last_error,omitempty"`
	NextAttempt  time.Time  `json:"next_attempt"`
	LeasedUntil  time.Time  `json:"leased_until"`
	CreatedAt    time.Time  `json:"created_at"`
}

// PurgeQueue is the worker-facing side of the purge outbox.
type PurgeQueue interface {
	ClaimPurgeJobs(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]PurgeJob, error)
	// CompletePurge marks the job done, replaces the proof reference with
	// ProofCleared and moves an APPROVED submission to VERIFIED. verified
	// reports whether that transition happened; an overturned dispute is
	// already VERIFIED.
	CompletePurge(ctx context.Context, job PurgeJob, at time.Time) (verified bool, err error)
	RetryPurge(ctx context.Context, jobID string, lastErr string, next time.Time) error
	BuryPurge(ctx context.Context, jobID string, lastErr string) error
	CountPurgeJobs(ctx context.Context, state PurgeState) (int, error)
}

// ─── External Collaborators ─────────────────────────────────────────────────

// BlobStore holds proof uploads. Delete is best-effort from the engine's
// point of view and must treat a missing blob as success.
type BlobStore interface {
	Put(ctx context.Context, data []byte) (ref string, err error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// Stat returns ErrNotFound when ref holds no blob.
	Stat(ctx context.Context, ref string) error
	Delete(ctx context.Context, ref string) error
}

// Notifier receives state-change events. Publish must never block.
type Notifier interface {
	Publish(e Event)
}
