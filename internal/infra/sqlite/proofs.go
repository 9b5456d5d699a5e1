package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lynks-network/lynks/internal/domain"
)

// ─── Proof Uploads ──────────────────────────────────────────────────────────

func (t *txn) RecordProofUpload(ctx context.Context, ref, uploaderID string, at time.Time) error {
	if _, err := t.q.ExecContext(ctx,
		`INSERT INTO proof_uploads (ref, uploader_id, created_at) VALUES (?, ?, ?)`,
		ref, uploaderID, toMillis(at),
	); err != nil {
		return fmt.Errorf("record proof upload: %w", err)
	}
	return nil
}

// ClaimProof spends an upload on one submission. The claim is a
// compare-and-swap on the unclaimed row, so a ref can back at most one
// submission even after its blob has been purged.
func (t *txn) ClaimProof(ctx context.Context, ref, uploaderID, submissionID string, at time.Time) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE proof_uploads SET submission_id = ?, claimed_at = ?
		WHERE ref = ? AND uploader_id = ? AND submission_id IS NULL`,
		submissionID, toMillis(at), ref, uploaderID)
	if err != nil {
		return fmt.Errorf("claim proof: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var owner string
	var claimed sql.NullString
	err = t.q.QueryRowContext(ctx,
		`SELECT uploader_id, submission_id FROM proof_uploads WHERE ref = ?`, ref,
	).Scan(&owner, &claimed)
	switch {
	case errors.Is(err, sql.ErrNoRows), err == nil && owner != uploaderID:
		return fmt.Errorf("proof %s: %w", ref, domain.ErrNotFound)
	case err != nil:
		return fmt.Errorf("lookup proof: %w", err)
	default:
		return fmt.Errorf("proof %s: %w", ref, domain.ErrProofInUse)
	}
}
