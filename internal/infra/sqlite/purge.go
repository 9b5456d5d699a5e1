package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/lynks-network/lynks/internal/domain"
)

// ─── Proof Purge Outbox ─────────────────────────────────────────────────────

func (t *txn) EnqueuePurge(ctx context.Context, job domain.PurgeJob) error {
	state := job.State
	if state == "" {
		state = domain.PurgeQueued
	}
	next := job.NextAttempt
	if next.IsZero() {
		next = job.CreatedAt
	}
	if _, err := t.q.ExecContext(ctx,
		`INSERT INTO purge_jobs (id, submission_id, proof_ref, state, next_attempt_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, job.SubmissionID, job.ProofRef, string(state),
		toMillis(next), toMillis(job.CreatedAt),
	); err != nil {
		return fmt.Errorf("enqueue purge: %w", err)
	}
	return nil
}

// ClaimPurgeJobs leases up to limit due jobs. A leased job is invisible to
// other claimers until the lease expires, so a crashed worker's jobs come
// back on their own.
func (db *DB) ClaimPurgeJobs(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.PurgeJob, error) {
	if limit <= 0 {
		limit = 10
	}
	var jobs []domain.PurgeJob
	err := db.WithTx(ctx, func(tx domain.Tx) error {
		q := tx.(*txn).q
		nowMs := toMillis(now)
		rows, err := q.QueryContext(ctx,
			`SELECT id, submission_id, proof_ref, state, attempts, last_error,
				next_attempt_at, leased_until, created_at
			FROM purge_jobs
			WHERE state = ? AND next_attempt_at <= ? AND leased_until <= ?
			ORDER BY next_attempt_at, id LIMIT ?`,
			string(domain.PurgeQueued), nowMs, nowMs, limit)
		if err != nil {
			return fmt.Errorf("select due purges: %w", err)
		}
		for rows.Next() {
			var (
				j                     domain.PurgeJob
				state                 string
				next, leased, created int64
			)
			if err := rows.Scan(&j.ID, &j.SubmissionID, &j.ProofRef, &state, &j.Attempts,
				&j.LastError, &next, &leased, &created); err != nil {
				rows.Close()
				return fmt.Errorf("scan purge job: %w", err)
			}
			j.State = domain.PurgeState(state)
			j.NextAttempt = fromMillis(next)
			j.CreatedAt = fromMillis(created)
			jobs = append(jobs, j)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		leaseUntil := now.Add(lease)
		for i := range jobs {
			if _, err := q.ExecContext(ctx,
				`UPDATE purge_jobs SET leased_until = ?, attempts = attempts + 1 WHERE id = ?`,
				toMillis(leaseUntil), jobs[i].ID,
			); err != nil {
				return fmt.Errorf("lease purge job: %w", err)
			}
			jobs[i].Attempts++
			jobs[i].LeasedUntil = leaseUntil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// CompletePurge finishes a job: the proof reference is replaced with the
// cleared marker and an APPROVED submission becomes VERIFIED. No credit
// moves here.
func (db *DB) CompletePurge(ctx context.Context, job domain.PurgeJob, at time.Time) (bool, error) {
	var verified bool
	err := db.WithTx(ctx, func(tx domain.Tx) error {
		verified = false
		q := tx.(*txn).q
		atMs := toMillis(at)
		if _, err := q.ExecContext(ctx,
			`UPDATE purge_jobs SET state = ?, leased_until = 0, last_error = '', completed_at = ?
			WHERE id = ?`,
			string(domain.PurgeDone), atMs, job.ID,
		); err != nil {
			return fmt.Errorf("complete purge job: %w", err)
		}
		if _, err := q.ExecContext(ctx,
			`UPDATE submissions SET proof_ref = ?, updated_at = ?
			WHERE id = ? AND proof_ref = ?`,
			domain.ProofCleared, atMs, job.SubmissionID, job.ProofRef,
		); err != nil {
			return fmt.Errorf("clear proof ref: %w", err)
		}
		ok, err := tx.TransitionSubmission(ctx, job.SubmissionID, domain.Transition{
			From: domain.StatusApproved,
			To:   domain.StatusVerified,
			At:   at,
		})
		if err != nil {
			return err
		}
		verified = ok
		return nil
	})
	return verified, err
}

// RetryPurge releases the lease and schedules the next attempt.
func (db *DB) RetryPurge(ctx context.Context, jobID string, lastErr string, next time.Time) error {
	if _, err := db.db.ExecContext(ctx,
		`UPDATE purge_jobs SET leased_until = 0, last_error = ?, next_attempt_at = ?
		WHERE id = ? AND state = ?`,
		lastErr, toMillis(next), jobID, string(domain.PurgeQueued),
	); err != nil {
		return fmt.Errorf("retry purge job: %w", err)
	}
	return nil
}

// BuryPurge parks a job that exhausted its attempts.
func (db *DB) BuryPurge(ctx context.Context, jobID string, lastErr string) error {
	if _, err := db.db.ExecContext(ctx,
		`UPDATE purge_jobs SET state = ?, leased_until = 0, last_error = ?
		WHERE id = ?`,
		string(domain.PurgeDead), lastErr, jobID,
	); err != nil {
		return fmt.Errorf("bury purge job: %w", err)
	}
	return nil
}

// CountPurgeJobs counts jobs in one state.
func (db *DB) CountPurgeJobs(ctx context.Context, state domain.PurgeState) (int, error) {
	var n int
	if err := db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM purge_jobs WHERE state = ?`, string(state),
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count purge jobs: %w", err)
	}
	return n, nil
}
