// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture and depends on nothing.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// ─── Actor Types ────────────────────────────────────────────────────────────

// Role is the closed set of privileges an actor can carry.
type Role string

const (
	RoleStandard Role = "STANDARD"
	RoleAdmin    Role = "ADMIN"
)

// ParseRole validates a role string coming from the identity provider.
// An empty string is treated as STANDARD.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case "", RoleStandard:
		return RoleStandard, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleStandard || r == RoleAdmin
}

// Actor is a registered identity holding a credit balance.
type Actor struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Handle    string    `json:"handle"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

// HasHandle reports whether the actor has set a display handle.
func (a Actor) HasHandle() bool {
	return strings.TrimSpace(a.Handle) != ""
}

// ActorContext is the typed caller identity passed into every engine entry point.
// The engine trusts it as given; issuing it is the identity provider's job.
type ActorContext struct {
	ID   string
	Role Role
}

// IsAdmin reports whether the caller holds the ADMIN role.
func (c ActorContext) IsAdmin() bool { return c.Role == RoleAdmin }

// Validate rejects empty identities and unknown roles.
func (c ActorContext) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("actor id is required: %w", ErrUnauthorized)
	}
	if !c.Role.Valid() {
		return fmt.Errorf("invalid role %q: %w", c.Role, ErrUnauthorized)
	}
	return nil
}

// System decision attributions recorded in Submission.DecidedBy.
const (
	DecidedByTimeout     = "system:timeout"
	DecidedByPostDeleted = "system:post-deleted"
)

// TreasuryAccount is the system ledger account that funds rewards and
// receives posting fees. It is the only account allowed to go negative.
const TreasuryAccount = "system:treasury"
