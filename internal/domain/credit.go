package domain

import "time"

// ─── Credit Types ───────────────────────────────────────────────────────────
// These live in domain because they represent core business rules.
// The ledger is double-entry: every transfer writes one DEBIT and one CREDIT.

// EntryType represents the accounting side of a ledger entry.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// TransactionType represents the business reason for a credit operation.
type TransactionType string

const (
	TxSignupGrant   TransactionType = "SIGNUP_GRANT"
	TxPostingFee    TransactionType = "POSTING_FEE"
	TxReward        TransactionType = "REWARD"
	TxDisputePayout TransactionType = "DISPUTE_PAYOUT"
)

// LedgerEntry is a single row in the double-entry credit ledger.
type LedgerEntry struct {
	ID           int64           `json:"id"`
	TransferID   string          `json:"transfer_id"`
	Timestamp    time.Time       `json:"timestamp"`
	Type         TransactionType `json:"type"`
	EntryType    EntryType       `json:"entry_type"`
	Account      string          `json:"account"`
	Amount       int64           `json:"amount"`
	SubmissionID string          `json:"submission_id,omitempty"`
	PostID       string          `json:"post_id,omitempty"`
	Description  string          `json:"description,omitempty"`
	Balance      int64           `json:"balance"`
}

// Transfer is a conceptual credit movement applied atomically with the
// state change that authorizes it.
type Transfer struct {
	From         string
	To           string
	Amount       int64
	Reason       TransactionType
	SubmissionID string
	PostID       string
	Description  string
}

// Payout records the single reward payment a submission may receive.
type Payout struct {
	SubmissionID string          `json:"submission_id"`
	ActorID      string          `json:"actor_id"`
	Amount       int64           `json:"amount"`
	Reason       TransactionType `json:"reason"`
	PaidAt       time.Time       `json:"paid_at"`
}
