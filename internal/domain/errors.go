package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure: no infrastructure dependency.

var (
	// Authorization errors
	ErrUnauthorized   = errors.New("caller is not allowed to perform this action")
	ErrSelfSubmission = errors.New("cannot submit proof for your own post")

	// Lookup errors
	ErrNotFound = errors.New("not found")

	// State machine errors
	ErrInvalidState        = errors.New("transition not allowed from current status")
	ErrDuplicateSubmission = errors.New("proof already submitted for this post")
	ErrCapacityExceeded    = errors.New("post has reached its maximum number of submissions")
	ErrReasonRequired      = errors.New("a rejection reason is required")

	// Ledger errors
	ErrInsufficientFunds = errors.New("insufficient credits")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrAlreadyPaid       = errors.New("submission has already been paid out")

	// Posting errors
	ErrDailyLimitExceeded = errors.New("daily post limit reached")
	ErrInvalidURL         = errors.New("post url must be an absolute http(s) url")

	// Actor errors
	ErrHandleRequired = errors.New("set up a display handle before posting or submitting")
	ErrHandleTaken    = errors.New("display handle is already taken")
	ErrInvalidHandle  = errors.New("handle must be 3-32 letters, digits, '_', '-' or '.'")
	ErrActorExists    = errors.New("actor already registered")

	// Proof errors
	ErrProofTooLarge = errors.New("proof exceeds the maximum upload size")
	ErrProofMissing  = errors.New("proof reference is required")
	ErrProofInUse    = errors.New("proof is already attached to a submission")
)
