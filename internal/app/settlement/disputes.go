package settlement

import (
	"context"
	"fmt"

	"github.com/lynks-network/lynks/internal/domain"
)

// ─── Dispute Resolver ───────────────────────────────────────────────────────

// ResolveDispute is the admin ruling on a DISPUTED submission. OVERTURN
// pays the reward and ends in VERIFIED; UPHOLD ends in a final REJECTED.
// Resolving an already-resolved dispute is a silent no-op.
func (e *Engine) ResolveDispute(ctx context.Context, caller domain.ActorContext, submissionID string, decision domain.DisputeDecision) (domain.Result, error) {
	if err := caller.Validate(); err != nil {
		return domain.Result{}, err
	}
	if !caller.IsAdmin() {
		return domain.Result{}, domain.ErrUnauthorized
	}
	if decision != domain.DisputeOverturn && decision != domain.DisputeUphold {
		return domain.Result{}, fmt.Errorf("unknown dispute decision %q", decision)
	}

	var res domain.Result
	err := e.run(ctx, "resolve_dispute", map[string]string{"submission": submissionID, "decision": string(decision)}, func(tx domain.Tx, fx *effects) error {
		res = domain.Result{}
		at := e.clock()
		sub, err := tx.GetSubmission(ctx, submissionID)
		if err != nil {
			return err
		}
		if sub.Status != domain.StatusDisputed {
			if sub.DisputeResolved {
				res.Submission = sub
				return nil
			}
			return fmt.Errorf("submission %s is %s: %w", sub.ID, sub.Status, domain.ErrInvalidState)
		}
		post, err := tx.GetPost(ctx, sub.PostID)
		if err != nil {
			return err
		}

		cleared, resolved := false, true
		tr := domain.Transition{
			From:            domain.StatusDisputed,
			Disputed:        &cleared,
			DisputeResolved: &resolved,
			DecidedBy:       caller.ID,
			At:              at,
		}
		if decision == domain.DisputeOverturn {
			tr.To = domain.StatusVerified
			tr.Paid = true
		} else {
			tr.To = domain.StatusRejected
		}

		res.Applied, err = tx.TransitionSubmission(ctx, sub.ID, tr)
		if err != nil {
			return err
		}
		if !res.Applied {
			res.Submission, err = tx.GetSubmission(ctx, sub.ID)
			return err
		}
		fx.transition(tr.From, tr.To)

		if decision == domain.DisputeOverturn {
			if err := e.payoutTx(ctx, tx, fx, sub, post, domain.TxDisputePayout, at); err != nil {
				return err
			}
			if err := e.enqueuePurgeTx(ctx, tx, sub, at); err != nil {
				return err
			}
		}
		fx.event(domain.Event{
			Type: domain.EventDisputeResolved, ActorID: sub.SubmitterID,
			SubmissionID: sub.ID, PostID: post.ID, Status: tr.To, At: at,
		})
		fx.event(domain.Event{
			Type: domain.EventDisputeResolved, Audience: domain.AudienceAdmins,
			SubmissionID: sub.ID, PostID: post.ID, Status: tr.To, At: at,
		})
		res.Submission, err = tx.GetSubmission(ctx, sub.ID)
		return err
	})
	if err != nil {
		return domain.Result{}, err
	}
	if res.Applied {
		logf("dispute on %s resolved by %s: %s", submissionID, caller.ID, decision)
	}
	return res, nil
}
