package settlement

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/lynks-network/lynks/internal/domain"
)

// ─── Post Registry ──────────────────────────────────────────────────────────

// PostRequest is the input to CreatePost. Reward and Cap are honoured
// for admins only; everyone else gets the standard reward and cap.
type PostRequest struct {
	URL    string `json:"url"`
	Reward int64  `json:"reward,omitempty"`
	Cap    int    `json:"cap,omitempty"`
}

// DeleteResult reports what a post deletion settled.
type DeleteResult struct {
	Post     domain.Post `json:"post"`
	Approved []string    `json:"approved"`
}

func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%q: %w", raw, domain.ErrInvalidURL)
	}
	return u.String(), nil
}

// CreatePost charges the posting fee and stores the post in one
// transaction. Non-admins are limited to DailyPostCap posts per local day;
// deleted posts still count.
func (e *Engine) CreatePost(ctx context.Context, caller domain.ActorContext, req PostRequest) (domain.Post, error) {
	if err := caller.Validate(); err != nil {
		return domain.Post{}, err
	}
	link, err := validateURL(req.URL)
	if err != nil {
		return domain.Post{}, err
	}

	reward, capacity := e.policy.StandardReward, e.policy.DefaultCap
	if caller.IsAdmin() {
		if req.Reward > 0 {
			reward = req.Reward
		}
		if req.Cap > 0 {
			capacity = req.Cap
		}
	}

	var post domain.Post
	err = e.run(ctx, "create_post", map[string]string{"actor": caller.ID}, func(tx domain.Tx, fx *effects) error {
		at := e.clock()
		if _, err := requireHandle(ctx, tx, caller); err != nil {
			return err
		}
		if !caller.IsAdmin() {
			n, err := tx.CountPostsSince(ctx, caller.ID, e.policy.StartOfDay(at))
			if err != nil {
				return err
			}
			if n >= e.policy.DailyPostCap {
				return fmt.Errorf("%d posts today: %w", n, domain.ErrDailyLimitExceeded)
			}
		}

		post = domain.Post{
			ID:        e.newID(),
			OwnerID:   caller.ID,
			URL:       link,
			Reward:    reward,
			Cap:       capacity,
			FeePaid:   e.policy.PostingFee,
			CreatedAt: at,
		}
		if fee := e.policy.PostingFee; fee > 0 {
			t := domain.Transfer{
				From:        caller.ID,
				To:          domain.TreasuryAccount,
				Amount:      fee,
				Reason:      domain.TxPostingFee,
				PostID:      post.ID,
				Description: "posting fee",
			}
			receipt, err := NewLedger(tx, at, e.newID).Transfer(ctx, t)
			if err != nil {
				return err
			}
			fx.transfers = append(fx.transfers, t)
			fx.event(domain.Event{
				Type: domain.EventBalanceChanged, ActorID: caller.ID,
				PostID: post.ID, Amount: receipt.FromBalance, At: at,
			})
		}
		return tx.InsertPost(ctx, post)
	})
	if err != nil {
		return domain.Post{}, err
	}
	logf("post %s created by %s reward=%d cap=%d", post.ID, post.OwnerID, post.Reward, post.Cap)
	return post, nil
}

// DeletePost settles every PENDING submission through the approve
// primitive and then soft-deletes the post, all in one transaction. If any
// payout fails nothing is deleted and nobody is paid.
func (e *Engine) DeletePost(ctx context.Context, caller domain.ActorContext, postID string) (DeleteResult, error) {
	if err := caller.Validate(); err != nil {
		return DeleteResult{}, err
	}

	var res DeleteResult
	err := e.run(ctx, "delete_post", map[string]string{"post": postID}, func(tx domain.Tx, fx *effects) error {
		res = DeleteResult{}
		at := e.clock()
		post, err := tx.GetPost(ctx, postID)
		if err != nil {
			return err
		}
		if post.Deleted() {
			return fmt.Errorf("post %s: %w", postID, domain.ErrNotFound)
		}
		if post.OwnerID != caller.ID {
			return domain.ErrUnauthorized
		}

		pending, err := tx.ListPendingByPost(ctx, post.ID)
		if err != nil {
			return err
		}
		for _, sub := range pending {
			ok, err := e.approveTx(ctx, tx, fx, sub, post, domain.DecidedByPostDeleted, at)
			if err != nil {
				return fmt.Errorf("settle submission %s: %w", sub.ID, err)
			}
			if ok {
				res.Approved = append(res.Approved, sub.ID)
			}
		}

		if err := tx.MarkPostDeleted(ctx, post.ID, at); err != nil {
			return err
		}
		post.DeletedAt = &at
		res.Post = post
		fx.event(domain.Event{Type: domain.EventPostDeleted, ActorID: caller.ID, PostID: post.ID, At: at})
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}
	logf("post %s deleted by %s, %d pending submission(s) approved", postID, caller.ID, len(res.Approved))
	return res, nil
}
