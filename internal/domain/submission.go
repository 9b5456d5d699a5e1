package domain

import (
	"fmt"
	"strings"
	"time"
)

// ─── Post Types ─────────────────────────────────────────────────────────────

// Post is a task posting with a fixed reward.
type Post struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner_id"`
	URL       string     `json:"url"`
	Reward    int64      `json:"reward"`
	Cap       int        `json:"cap"`
	FeePaid   int64      `json:"fee_paid"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the owner has removed the post.
func (p Post) Deleted() bool { return p.DeletedAt != nil }

// FeedPost is a post as listed in another actor's feed.
type FeedPost struct {
	Post
	OwnerHandle     string `json:"owner_handle"`
	SubmissionCount int    `json:"submission_count"`
}

// ─── Submission Status ──────────────────────────────────────────────────────

// Status is the lifecycle state of a submission.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusVerified Status = "VERIFIED"
	StatusRejected Status = "REJECTED"
	StatusDisputed Status = "DISPUTED"
)

// ParseStatus validates a persisted status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusApproved, StatusVerified, StatusRejected, StatusDisputed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown submission status %q", s)
	}
}

// transitions lists every legal status edge.
var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusVerified},
	StatusRejected: {StatusDisputed},
	StatusDisputed: {StatusVerified, StatusRejected},
}

// CanTransition reports whether from → to is an edge of the lifecycle.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// PaysOut reports whether from → to is one of the two credit-bearing edges.
func PaysOut(from, to Status) bool {
	return (from == StatusPending && to == StatusApproved) ||
		(from == StatusDisputed && to == StatusVerified)
}

// ─── Decisions ──────────────────────────────────────────────────────────────

// Decision is a post owner's review verdict.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// ParseDecision validates a review decision.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToUpper(strings.TrimSpace(s))); d {
	case DecisionApprove, DecisionReject:
		return d, nil
	default:
		return "", fmt.Errorf("unknown review decision %q", s)
	}
}

// DisputeDecision is an admin's ruling on a disputed submission.
type DisputeDecision string

const (
	DisputeOverturn DisputeDecision = "OVERTURN"
	DisputeUphold   DisputeDecision = "UPHOLD"
)

// ParseDisputeDecision validates a dispute ruling.
func ParseDisputeDecision(s string) (DisputeDecision, error) {
	switch d := DisputeDecision(strings.ToUpper(strings.TrimSpace(s))); d {
	case DisputeOverturn, DisputeUphold:
		return d, nil
	default:
		return "", fmt.Errorf("unknown dispute decision %q", s)
	}
}

// ─── Submission ─────────────────────────────────────────────────────────────

// ProofCleared replaces the proof reference once the blob has been purged.
const ProofCleared = "CLEARED_ON_APPROVAL"

// Submission is one actor's proof of completion against one post.
type Submission struct {
	ID              string    `json:"id"`
	PostID          string    `json:"post_id"`
	SubmitterID     string    `json:"submitter_id"`
	ProofRef        string    `json:"proof_ref"`
	Status          Status    `json:"status"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	DisputeMessage  string    `json:"dispute_message,omitempty"`
	Disputed        bool      `json:"disputed"`
	DisputeResolved bool      `json:"dispute_resolved"`
	DecidedBy       string    `json:"decided_by,omitempty"`
	Paid            bool      `json:"paid"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Terminal reports whether no further transition can ever apply.
func (s Submission) Terminal() bool {
	switch s.Status {
	case StatusApproved, StatusVerified:
		return true
	case StatusRejected:
		return s.DisputeResolved
	default:
		return false
	}
}

// CanDispute reports whether the submitter may still appeal.
// The right to dispute is one-shot.
func (s Submission) CanDispute() bool {
	return s.Status == StatusRejected && !s.DisputeResolved
}

// ProofAvailable reports whether the proof blob has not been purged.
func (s Submission) ProofAvailable() bool {
	return s.ProofRef != "" && s.ProofRef != ProofCleared
}

// Transition is a compare-and-swap update applied by the store: it only
// takes effect if the submission is still in From and unpaid when Paid is set.
type Transition struct {
	From            Status
	To              Status
	RejectionReason *string
	DisputeMessage  *string
	Disputed        *bool
	DisputeResolved *bool
	DecidedBy       string
	Paid            bool
	At              time.Time
}

// Result reports the outcome of an idempotent engine action.
// Applied is false when the action was a silent no-op.
type Result struct {
	Submission Submission `json:"submission"`
	Applied    bool       `json:"applied"`
}

// SubmissionView joins a submission with the post fields callers need.
type SubmissionView struct {
	Submission
	PostURL         string `json:"post_url"`
	PostOwnerID     string `json:"post_owner_id"`
	Reward          int64  `json:"reward"`
	SubmitterHandle string `json:"submitter_handle"`
}
