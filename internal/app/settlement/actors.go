package settlement

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/lynks-network/lynks/internal/domain"
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)

func normalizeHandle(h string) (string, error) {
	h = strings.TrimPrefix(strings.TrimSpace(h), "@")
	if h == "" {
		return "", domain.ErrHandleRequired
	}
	if !handlePattern.MatchString(h) {
		return "", fmt.Errorf("%q: %w", h, domain.ErrInvalidHandle)
	}
	return h, nil
}

// RegisterActor creates an actor and pays the signup grant from the
// treasury. The handle is optional at registration.
func (e *Engine) RegisterActor(ctx context.Context, id string, role domain.Role, handle string) (domain.Actor, error) {
	caller := domain.ActorContext{ID: strings.TrimSpace(id), Role: role}
	if err := caller.Validate(); err != nil {
		return domain.Actor{}, err
	}
	if handle != "" {
		h, err := normalizeHandle(handle)
		if err != nil {
			return domain.Actor{}, err
		}
		handle = h
	}

	var actor domain.Actor
	err := e.run(ctx, "register", map[string]string{"actor": caller.ID}, func(tx domain.Tx, fx *effects) error {
		at := e.clock()
		if err := tx.InsertActor(ctx, domain.Actor{
			ID: caller.ID, Role: caller.Role, Handle: handle, CreatedAt: at,
		}); err != nil {
			return err
		}
		if grant := e.policy.SignupGrant; grant > 0 {
			t := domain.Transfer{
				From:        domain.TreasuryAccount,
				To:          caller.ID,
				Amount:      grant,
				Reason:      domain.TxSignupGrant,
				Description: "signup grant",
			}
			if _, err := NewLedger(tx, at, e.newID).Transfer(ctx, t); err != nil {
				return err
			}
			fx.transfers = append(fx.transfers, t)
		}
		var err error
		actor, err = tx.GetActor(ctx, caller.ID)
		return err
	})
	if err != nil {
		return domain.Actor{}, err
	}
	logf("registered actor %s role=%s balance=%d", actor.ID, actor.Role, actor.Balance)
	return actor, nil
}

// SetHandle sets or changes the caller's display handle.
func (e *Engine) SetHandle(ctx context.Context, caller domain.ActorContext, handle string) (domain.Actor, error) {
	if err := caller.Validate(); err != nil {
		return domain.Actor{}, err
	}
	h, err := normalizeHandle(handle)
	if err != nil {
		return domain.Actor{}, err
	}

	var actor domain.Actor
	err = e.run(ctx, "set_handle", map[string]string{"actor": caller.ID}, func(tx domain.Tx, fx *effects) error {
		if err := tx.SetHandle(ctx, caller.ID, h); err != nil {
			return err
		}
		var err error
		actor, err = tx.GetActor(ctx, caller.ID)
		return err
	})
	return actor, err
}

// Actor returns the caller's profile and balance.
func (e *Engine) Actor(ctx context.Context, caller domain.ActorContext) (domain.Actor, error) {
	if err := caller.Validate(); err != nil {
		return domain.Actor{}, err
	}
	return e.store.GetActor(ctx, caller.ID)
}

// requireHandle loads the caller inside tx and checks the handle gate
// that guards posting and submitting.
func requireHandle(ctx context.Context, tx domain.Tx, caller domain.ActorContext) (domain.Actor, error) {
	actor, err := tx.GetActor(ctx, caller.ID)
	if err != nil {
		return domain.Actor{}, err
	}
	if !actor.HasHandle() {
		return domain.Actor{}, domain.ErrHandleRequired
	}
	return actor, nil
}
