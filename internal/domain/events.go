package domain

import "time"

// ─── Notification Events ────────────────────────────────────────────────────
// Consumed by the UI layer to refresh badges and feeds. Delivery is
// fire-and-forget: the engine never waits on a subscriber.

// EventType names a state change visible to actors.
type EventType string

const (
	EventSubmissionCreated EventType = "submission.created"
	EventSubmissionStatus  EventType = "submission.status_changed"
	EventDisputeOpened     EventType = "dispute.opened"
	EventDisputeResolved   EventType = "dispute.resolved"
	EventPostDeleted       EventType = "post.deleted"
	EventBalanceChanged    EventType = "balance.changed"
)

// Event is one notification addressed to a single actor, or to every
// admin when Audience is AudienceAdmins.
type Event struct {
	Type         EventType `json:"type"`
	ActorID      string    `json:"actor_id,omitempty"`
	Audience     Audience  `json:"audience,omitempty"`
	SubmissionID string    `json:"submission_id,omitempty"`
	PostID       string    `json:"post_id,omitempty"`
	Status       Status    `json:"status,omitempty"`
	Amount       int64     `json:"amount,omitempty"`
	At           time.Time `json:"at"`
}

// Audience widens an event beyond its ActorID.
type Audience string

const AudienceAdmins Audience = "admins"
