package settlement

import (
	"context"
	"math/rand/v2"

	"github.com/lynks-network/lynks/internal/domain"
)

// ─── Read Models ────────────────────────────────────────────────────────────

var fisherYates = rand.Shuffle

// Submission returns one submission to its submitter, the post owner or
// an admin.
func (e *Engine) Submission(ctx context.Context, caller domain.ActorContext, submissionID string) (domain.SubmissionView, error) {
	if err := caller.Validate(); err != nil {
		return domain.SubmissionView{}, err
	}
	v, err := e.store.GetSubmissionView(ctx, submissionID)
	if err != nil {
		return domain.SubmissionView{}, err
	}
	if caller.IsAdmin() || v.SubmitterID == caller.ID || v.PostOwnerID == caller.ID {
		return v, nil
	}
	return domain.SubmissionView{}, domain.ErrUnauthorized
}

// Feed lists posts caller can still submit to. The page is selected in
// newest-first order and then shuffled, so paging stays stable while the
// order within a page is not.
func (e *Engine) Feed(ctx context.Context, caller domain.ActorContext, skip, take int) ([]domain.FeedPost, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	posts, err := e.store.ListFeed(ctx, caller.ID, skip, take)
	if err != nil {
		return nil, err
	}
	e.shuffle(len(posts), func(i, j int) { posts[i], posts[j] = posts[j], posts[i] })
	return posts, nil
}

// Sent lists the caller's own submissions, newest first.
func (e *Engine) Sent(ctx context.Context, caller domain.ActorContext, limit int) ([]domain.SubmissionView, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	return e.store.ListSentSubmissions(ctx, caller.ID, limit)
}

// Received lists submissions made against the caller's posts.
func (e *Engine) Received(ctx context.Context, caller domain.ActorContext, limit int) ([]domain.SubmissionView, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	return e.store.ListReceivedSubmissions(ctx, caller.ID, limit)
}

// PendingCount is the badge count of submissions awaiting the caller's review.
func (e *Engine) PendingCount(ctx context.Context, caller domain.ActorContext) (int, error) {
	if err := caller.Validate(); err != nil {
		return 0, err
	}
	return e.store.CountPendingForOwner(ctx, caller.ID)
}

// LedgerEntries returns the caller's credit history, newest first. Admins
// may pass another account, including the treasury.
func (e *Engine) LedgerEntries(ctx context.Context, caller domain.ActorContext, account string, limit int) ([]domain.LedgerEntry, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	if account == "" {
		account = caller.ID
	}
	if account != caller.ID && !caller.IsAdmin() {
		return nil, domain.ErrUnauthorized
	}
	return e.store.ListLedgerEntries(ctx, account, limit)
}

// DisputeQueue lists open disputes for admins, oldest first.
func (e *Engine) DisputeQueue(ctx context.Context, caller domain.ActorContext, limit int) ([]domain.SubmissionView, error) {
	if err := caller.Validate(); err != nil {
		return nil, err
	}
	if !caller.IsAdmin() {
		return nil, domain.ErrUnauthorized
	}
	return e.store.ListDisputed(ctx, limit)
}

// TreasuryReport is the ledger health check exposed to admins.
type TreasuryReport struct {
	Treasury int64 `json:"treasury"`
	Total    int64 `json:"total"`
}

// Treasury reports the treasury balance and the sum over every account,
// which is zero while the ledger is balanced.
func (e *Engine) Treasury(ctx context.Context, caller domain.ActorContext) (TreasuryReport, error) {
	if err := caller.Validate(); err != nil {
		return TreasuryReport{}, err
	}
	if !caller.IsAdmin() {
		return TreasuryReport{}, domain.ErrUnauthorized
	}
	var r TreasuryReport
	var err error
	if r.Treasury, err = e.store.AccountBalance(ctx, domain.TreasuryAccount); err != nil {
		return TreasuryReport{}, err
	}
	if r.Total, err = e.store.TotalBalance(ctx); err != nil {
		return TreasuryReport{}, err
	}
	return r, nil
}
