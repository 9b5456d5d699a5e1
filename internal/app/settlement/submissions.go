package settlement

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/lynks-network/lynks/internal/domain"
	"github.com/lynks-network/lynks/internal/infra/observability"
)

// ─── Submission State Machine ───────────────────────────────────────────────

// Submit records caller's proof against a post as PENDING. The duplicate
// and capacity checks run in the same transaction as the insert, and the
// (post, submitter) pair is also unique in storage. proofRef must be an
// upload of caller's that no other submission has used and whose blob
// still exists.
func (e *Engine) Submit(ctx context.Context, caller domain.ActorContext, postID, proofRef string) (domain.Submission, error) {
	if err := caller.Validate(); err != nil {
		return domain.Submission{}, err
	}
	proofRef = strings.TrimSpace(proofRef)
	if proofRef == "" {
		return domain.Submission{}, domain.ErrProofMissing
	}

	var sub domain.Submission
	err := e.run(ctx, "submit", map[string]string{"post": postID, "actor": caller.ID}, func(tx domain.Tx, fx *effects) error {
		at := e.clock()
		if _, err := requireHandle(ctx, tx, caller); err != nil {
			return err
		}
		post, err := tx.GetPost(ctx, postID)
		if err != nil {
			return err
		}
		if post.Deleted() {
			return fmt.Errorf("post %s: %w", postID, domain.ErrNotFound)
		}
		if post.OwnerID == caller.ID {
			return domain.ErrSelfSubmission
		}

		dup, err := tx.HasSubmission(ctx, post.ID, caller.ID)
		if err != nil {
			return err
		}
		if dup {
			return domain.ErrDuplicateSubmission
		}
		n, err := tx.CountSubmissions(ctx, post.ID)
		if err != nil {
			return err
		}
		if n >= post.Cap {
			return fmt.Errorf("%d/%d: %w", n, post.Cap, domain.ErrCapacityExceeded)
		}

		id := e.newID()
		if err := tx.ClaimProof(ctx, proofRef, caller.ID, id, at); err != nil {
			return err
		}
		if e.blobs != nil {
			if err := e.blobs.Stat(ctx, proofRef); err != nil {
				return err
			}
		}

		sub = domain.Submission{
			ID:          id,
			PostID:      post.ID,
			SubmitterID: caller.ID,
			ProofRef:    proofRef,
			Status:      domain.StatusPending,
			CreatedAt:   at,
			UpdatedAt:   at,
		}
		if err := tx.InsertSubmission(ctx, sub); err != nil {
			return err
		}
		fx.event(domain.Event{
			Type: domain.EventSubmissionCreated, ActorID: post.OwnerID,
			SubmissionID: sub.ID, PostID: post.ID, Status: domain.StatusPending, At: at,
		})
		return nil
	})
	if err != nil {
		return domain.Submission{}, err
	}
	observability.SubmissionsCreated.Inc()
	return sub, nil
}

// Review applies the post owner's verdict. A submission that is no longer
// PENDING is left alone and reported with Applied=false, so double clicks
// and races with the sweeper are harmless.
func (e *Engine) Review(ctx context.Context, caller domain.ActorContext, submissionID string, decision domain.Decision, reason string) (domain.Result, error) {
	if err := caller.Validate(); err != nil {
		return domain.Result{}, err
	}
	reason = strings.TrimSpace(reason)
	switch decision {
	case domain.DecisionApprove:
	case domain.DecisionReject:
		if reason == "" {
			return domain.Result{}, domain.ErrReasonRequired
		}
	default:
		return domain.Result{}, fmt.Errorf("unknown review decision %q", decision)
	}

	var res domain.Result
	err := e.run(ctx, "review", map[string]string{"submission": submissionID, "decision": string(decision)}, func(tx domain.Tx, fx *effects) error {
		res = domain.Result{}
		at := e.clock()
		sub, err := tx.GetSubmission(ctx, submissionID)
		if err != nil {
			return err
		}
		post, err := tx.GetPost(ctx, sub.PostID)
		if err != nil {
			return err
		}
		if post.OwnerID != caller.ID {
			return domain.ErrUnauthorized
		}
		if sub.Status != domain.StatusPending {
			res.Submission = sub
			return nil
		}

		if decision == domain.DecisionApprove {
			res.Applied, err = e.approveTx(ctx, tx, fx, sub, post, caller.ID, at)
		} else {
			res.Applied, err = tx.TransitionSubmission(ctx, sub.ID, domain.Transition{
				From:            domain.StatusPending,
				To:              domain.StatusRejected,
				RejectionReason: &reason,
				DecidedBy:       caller.ID,
				At:              at,
			})
			if err == nil && res.Applied {
				fx.transition(domain.StatusPending, domain.StatusRejected)
				fx.event(domain.Event{
					Type: domain.EventSubmissionStatus, ActorID: sub.SubmitterID,
					SubmissionID: sub.ID, PostID: post.ID, Status: domain.StatusRejected, At: at,
				})
			}
		}
		if err != nil {
			return err
		}
		res.Submission, err = tx.GetSubmission(ctx, sub.ID)
		return err
	})
	if err != nil {
		return domain.Result{}, err
	}
	if !res.Applied {
		logf("review of %s by %s ignored: status %s", submissionID, caller.ID, res.Submission.Status)
	}
	return res, nil
}

// Dispute escalates a rejected submission to the admin queue. The right to
// dispute is one-shot: anything but an unresolved REJECTED submission is
// an ErrInvalidState.
func (e *Engine) Dispute(ctx context.Context, caller domain.ActorContext, submissionID, message string) (domain.Submission, error) {
	if err := caller.Validate(); err != nil {
		return domain.Submission{}, err
	}
	message = strings.TrimSpace(message)

	var sub domain.Submission
	err := e.run(ctx, "dispute", map[string]string{"submission": submissionID}, func(tx domain.Tx, fx *effects) error {
		at := e.clock()
		cur, err := tx.GetSubmission(ctx, submissionID)
		if err != nil {
			return err
		}
		if cur.SubmitterID != caller.ID {
			return domain.ErrUnauthorized
		}
		if !cur.CanDispute() {
			return fmt.Errorf("submission %s is %s: %w", cur.ID, cur.Status, domain.ErrInvalidState)
		}

		disputed := true
		ok, err := tx.TransitionSubmission(ctx, cur.ID, domain.Transition{
			From:           domain.StatusRejected,
			To:             domain.StatusDisputed,
			DisputeMessage: &message,
			Disputed:       &disputed,
			At:             at,
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("submission %s changed concurrently: %w", cur.ID, domain.ErrInvalidState)
		}
		fx.transition(domain.StatusRejected, domain.StatusDisputed)

		post, err := tx.GetPost(ctx, cur.PostID)
		if err != nil {
			return err
		}
		fx.event(domain.Event{
			Type: domain.EventDisputeOpened, Audience: domain.AudienceAdmins,
			SubmissionID: cur.ID, PostID: cur.PostID, Status: domain.StatusDisputed, At: at,
		})
		fx.event(domain.Event{
			Type: domain.EventSubmissionStatus, ActorID: post.OwnerID,
			SubmissionID: cur.ID, PostID: cur.PostID, Status: domain.StatusDisputed, At: at,
		})
		sub, err = tx.GetSubmission(ctx, cur.ID)
		return err
	})
	if err != nil {
		return domain.Submission{}, err
	}
	logf("submission %s disputed by %s", sub.ID, caller.ID)
	return sub, nil
}

// ─── Proofs ─────────────────────────────────────────────────────────────────

// UploadProof stores proof bytes and returns the reference to pass to
// Submit. The reference is recorded against caller and can back exactly
// one submission.
func (e *Engine) UploadProof(ctx context.Context, caller domain.ActorContext, data []byte) (string, error) {
	if err := caller.Validate(); err != nil {
		return "", err
	}
	if e.blobs == nil {
		return "", fmt.Errorf("proof storage is not configured")
	}
	if limit := e.policy.MaxProofBytes; limit > 0 && int64(len(data)) > limit {
		return "", fmt.Errorf("%d bytes: %w", len(data), domain.ErrProofTooLarge)
	}
	ref, err := e.blobs.Put(ctx, data)
	if err != nil {
		return "", err
	}
	at := e.clock()
	err = e.run(ctx, "upload_proof", map[string]string{"actor": caller.ID}, func(tx domain.Tx, fx *effects) error {
		return tx.RecordProofUpload(ctx, ref, caller.ID, at)
	})
	if err != nil {
		if derr := e.blobs.Delete(context.WithoutCancel(ctx), ref); derr != nil {
			logf("drop unrecorded proof %s: %v", ref, derr)
		}
		return "", err
	}
	return ref, nil
}

// OpenProof returns the proof for the post owner, the submitter or an
// admin while it has not been purged.
func (e *Engine) OpenProof(ctx context.Context, caller domain.ActorContext, submissionID string) (io.ReadCloser, error) {
	v, err := e.Submission(ctx, caller, submissionID)
	if err != nil {
		return nil, err
	}
	if !v.ProofAvailable() {
		return nil, fmt.Errorf("proof for %s: %w", submissionID, domain.ErrNotFound)
	}
	if e.blobs == nil {
		return nil, fmt.Errorf("proof storage is not configured")
	}
	return e.blobs.Open(ctx, v.ProofRef)
}
