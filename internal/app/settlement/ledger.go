package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/lynks-network/lynks/internal/domain"
)

// ─── Ledger ─────────────────────────────────────────────────────────────────
// The ledger only ever runs inside a caller's transaction: a transfer is
// applied together with the state change that authorizes it, or not at all.

// Ledger moves credit within one storage transaction.
type Ledger struct {
	tx    domain.Tx
	at    time.Time
	newID func() string
}

// Receipt is the outcome of a transfer.
type Receipt struct {
	TransferID  string
	FromBalance int64
	ToBalance   int64
}

// NewLedger binds a ledger to tx. Entries are stamped with at.
func NewLedger(tx domain.Tx, at time.Time, newID func() string) Ledger {
	return Ledger{tx: tx, at: at, newID: newID}
}

// Credit adds amount to account.
func (l Ledger) Credit(ctx context.Context, account string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit %d: %w", amount, domain.ErrInvalidAmount)
	}
	return l.tx.Credit(ctx, account, amount)
}

// Debit removes amount from account, failing with ErrInsufficientFunds
// rather than going negative.
func (l Ledger) Debit(ctx context.Context, account string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit %d: %w", amount, domain.ErrInvalidAmount)
	}
	return l.tx.Debit(ctx, account, amount)
}

// Transfer debits t.From, credits t.To and writes both ledger entries.
func (l Ledger) Transfer(ctx context.Context, t domain.Transfer) (Receipt, error) {
	if t.Amount <= 0 {
		return Receipt{}, fmt.Errorf("transfer %d: %w", t.Amount, domain.ErrInvalidAmount)
	}
	if t.From == t.To {
		return Receipt{}, fmt.Errorf("transfer to self: %w", domain.ErrInvalidAmount)
	}

	r := Receipt{TransferID: l.newID()}
	var err error
	if r.FromBalance, err = l.Debit(ctx, t.From, t.Amount); err != nil {
		return Receipt{}, err
	}
	if r.ToBalance, err = l.Credit(ctx, t.To, t.Amount); err != nil {
		return Receipt{}, err
	}

	for _, e := range []domain.LedgerEntry{
		{EntryType: domain.EntryDebit, Account: t.From, Balance: r.FromBalance},
		{EntryType: domain.EntryCredit, Account: t.To, Balance: r.ToBalance},
	} {
		e.TransferID = r.TransferID
		e.Timestamp = l.at
		e.Type = t.Reason
		e.Amount = t.Amount
		e.SubmissionID = t.SubmissionID
		e.PostID = t.PostID
		e.Description = t.Description
		if err := l.tx.InsertLedgerEntry(ctx, e); err != nil {
			return Receipt{}, err
		}
	}
	return r, nil
}
