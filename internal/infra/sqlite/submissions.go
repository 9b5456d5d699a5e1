package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lynks-network/lynks/internal/domain"
)

// ─── Submissions ────────────────────────────────────────────────────────────

const submissionColumns = `s.id, s.post_id, s.submitter_id, s.proof_ref, s.status,
	COALESCE(s.rejection_reason, ''), COALESCE(s.dispute_message, ''),
	s.disputed, s.dispute_resolved, COALESCE(s.decided_by, ''), s.paid,
	s.created_at, s.updated_at`

const viewJoin = `FROM submissions s
	JOIN posts p ON p.id = s.post_id
	JOIN actors a ON a.id = s.submitter_id`

func scanSubmission(row interface{ Scan(...any) error }, extra ...any) (domain.Submission, error) {
	var (
		s                 domain.Submission
		status            string
		disputed, settled int
		paid              int
		created, updated  int64
	)
	dest := append([]any{&s.ID, &s.PostID, &s.SubmitterID, &s.ProofRef, &status,
		&s.RejectionReason, &s.DisputeMessage, &disputed, &settled, &s.DecidedBy, &paid,
		&created, &updated}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.Submission{}, err
	}
	st, err := domain.ParseStatus(status)
	if err != nil {
		return domain.Submission{}, err
	}
	s.Status = st
	s.Disputed = disputed == 1
	s.DisputeResolved = settled == 1
	s.Paid = paid == 1
	s.CreatedAt = fromMillis(created)
	s.UpdatedAt = fromMillis(updated)
	return s, nil
}

func scanView(row interface{ Scan(...any) error }) (domain.SubmissionView, error) {
	var v domain.SubmissionView
	s, err := scanSubmission(row, &v.PostURL, &v.PostOwnerID, &v.Reward, &v.SubmitterHandle)
	if err != nil {
		return domain.SubmissionView{}, err
	}
	v.Submission = s
	return v, nil
}

func getSubmission(ctx context.Context, q querier, id string) (domain.Submission, error) {
	s, err := scanSubmission(q.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions s WHERE s.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Submission{}, fmt.Errorf("submission %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Submission{}, fmt.Errorf("get submission: %w", err)
	}
	return s, nil
}

// GetSubmission returns a submission by id.
func (db *DB) GetSubmission(ctx context.Context, id string) (domain.Submission, error) {
	return getSubmission(ctx, db.db, id)
}

func (t *txn) GetSubmission(ctx context.Context, id string) (domain.Submission, error) {
	return getSubmission(ctx, t.q, id)
}

// GetSubmissionView returns a submission joined with its post.
func (db *DB) GetSubmissionView(ctx context.Context, id string) (domain.SubmissionView, error) {
	v, err := scanView(db.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+`, p.url, p.owner_id, p.reward, COALESCE(a.handle, '')
		`+viewJoin+` WHERE s.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SubmissionView{}, fmt.Errorf("submission %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.SubmissionView{}, fmt.Errorf("get submission view: %w", err)
	}
	return v, nil
}

// InsertSubmission stores a new submission. A second submission by the
// same actor on the same post fails with ErrDuplicateSubmission, and a
// proof reference already used by a live submission with ErrProofInUse.
func (t *txn) InsertSubmission(ctx context.Context, s domain.Submission) error {
	created := toMillis(s.CreatedAt)
	if _, err := t.q.ExecContext(ctx,
		`INSERT INTO submissions
			(id, post_id, submitter_id, proof_ref, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.PostID, s.SubmitterID, s.ProofRef, string(s.Status), created, created,
	); err != nil {
		switch {
		case isUniqueViolation(err, "submissions.post_id"):
			return domain.ErrDuplicateSubmission
		case isUniqueViolation(err, "submissions.proof_ref"):
			return domain.ErrProofInUse
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// HasSubmission reports whether submitterID already submitted to postID.
func (t *txn) HasSubmission(ctx context.Context, postID, submitterID string) (bool, error) {
	var n int
	if err := t.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE post_id = ? AND submitter_id = ?`,
		postID, submitterID,
	).Scan(&n); err != nil {
		return false, fmt.Errorf("has submission: %w", err)
	}
	return n > 0, nil
}

// CountSubmissions counts every submission on a post regardless of status.
func (t *txn) CountSubmissions(ctx context.Context, postID string) (int, error) {
	var n int
	if err := t.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE post_id = ?`, postID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return n, nil
}

func (t *txn) ListPendingByPost(ctx context.Context, postID string) ([]domain.Submission, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions s
		WHERE s.post_id = ? AND s.status = ?
		ORDER BY s.created_at, s.id`, postID, string(domain.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var subs []domain.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// TransitionSubmission is the compare-and-swap at the heart of the
// settlement engine. The WHERE clause pins the expected status (and the
// unpaid flag for payouts), so of two racing writers exactly one sees a
// changed row.
func (t *txn) TransitionSubmission(ctx context.Context, id string, tr domain.Transition) (bool, error) {
	if !domain.CanTransition(tr.From, tr.To) {
		return false, fmt.Errorf("%s -> %s: %w", tr.From, tr.To, domain.ErrInvalidState)
	}

	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{string(tr.To), toMillis(tr.At)}
	if tr.DecidedBy != "" {
		sets = append(sets, "decided_by = ?")
		args = append(args, tr.DecidedBy)
	}
	if tr.RejectionReason != nil {
		sets = append(sets, "rejection_reason = ?")
		args = append(args, nullString(*tr.RejectionReason))
	}
	if tr.DisputeMessage != nil {
		sets = append(sets, "dispute_message = ?")
		args = append(args, nullString(*tr.DisputeMessage))
	}
	if tr.Disputed != nil {
		sets = append(sets, "disputed = ?")
		args = append(args, boolInt(*tr.Disputed))
	}
	if tr.DisputeResolved != nil {
		sets = append(sets, "dispute_resolved = ?")
		args = append(args, boolInt(*tr.DisputeResolved))
	}
	where := "id = ? AND status = ?"
	args = append(args, id, string(tr.From))
	if tr.Paid {
		sets = append(sets, "paid = 1")
		where += " AND paid = 0"
	}

	res, err := t.q.ExecContext(ctx,
		`UPDATE submissions SET `+strings.Join(sets, ", ")+` WHERE `+where, args...)
	if err != nil {
		return false, fmt.Errorf("transition submission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition rows affected: %w", err)
	}
	return n == 1, nil
}

// ─── Read Models ────────────────────────────────────────────────────────────

func (db *DB) listViews(ctx context.Context, query string, args ...any) ([]domain.SubmissionView, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT `+submissionColumns+`, p.url, p.owner_id, p.reward, COALESCE(a.handle, '')
		`+viewJoin+` `+query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var views []domain.SubmissionView
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}

// ListDisputed returns the admin review queue, oldest dispute first.
func (db *DB) ListDisputed(ctx context.Context, limit int) ([]domain.SubmissionView, error) {
	return db.listViews(ctx,
		`WHERE s.status = ? ORDER BY s.updated_at, s.id LIMIT ?`,
		string(domain.StatusDisputed), clampLimit(limit))
}

// ListSentSubmissions returns an actor's own submissions, newest first.
func (db *DB) ListSentSubmissions(ctx context.Context, submitterID string, limit int) ([]domain.SubmissionView, error) {
	return db.listViews(ctx,
		`WHERE s.submitter_id = ? ORDER BY s.created_at DESC, s.id DESC LIMIT ?`,
		submitterID, clampLimit(limit))
}

// ListReceivedSubmissions returns submissions against an owner's posts,
// newest first.
func (db *DB) ListReceivedSubmissions(ctx context.Context, ownerID string, limit int) ([]domain.SubmissionView, error) {
	return db.listViews(ctx,
		`WHERE p.owner_id = ? ORDER BY s.created_at DESC, s.id DESC LIMIT ?`,
		ownerID, clampLimit(limit))
}

// CountPendingForOwner is the owner's unread badge: submissions still
// awaiting their review.
func (db *DB) CountPendingForOwner(ctx context.Context, ownerID string) (int, error) {
	var n int
	if err := db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions s JOIN posts p ON p.id = s.post_id
		WHERE p.owner_id = ? AND s.status = ?`,
		ownerID, string(domain.StatusPending),
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

// ListStalePending returns PENDING submissions created strictly before
// createdBefore and strictly after the after cursor, oldest first.
func (db *DB) ListStalePending(ctx context.Context, createdBefore time.Time, after domain.StaleCursor, limit int) ([]domain.StaleCursor, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT id, created_at FROM submissions
		WHERE status = ? AND created_at < ?`
	args := []any{string(domain.StatusPending), toMillis(createdBefore)}
	if after.ID != "" {
		at := toMillis(after.CreatedAt)
		query += ` AND (created_at > ? OR (created_at = ? AND id > ?))`
		args = append(args, at, at, after.ID)
	}
	query += ` ORDER BY created_at, id LIMIT ?`
	args = append(args, limit)

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stale pending: %w", err)
	}
	defer rows.Close()

	var out []domain.StaleCursor
	for rows.Next() {
		var (
			c       domain.StaleCursor
			created int64
		)
		if err := rows.Scan(&c.ID, &created); err != nil {
			return nil, fmt.Errorf("scan stale submission: %w", err)
		}
		c.CreatedAt = fromMillis(created)
		out = append(out, c)
	}
	return out, rows.Err()
}
