package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lynks-network/lynks/internal/domain"
)

// ─── Actors ─────────────────────────────────────────────────────────────────

const actorColumns = `a.id, a.role, COALESCE(a.handle, ''), acc.balance, a.created_at`

func scanActor(row interface{ Scan(...any) error }) (domain.Actor, error) {
	var (
		a       domain.Actor
		role    string
		created int64
	)
	if err := row.Scan(&a.ID, &role, &a.Handle, &a.Balance, &created); err != nil {
		return domain.Actor{}, err
	}
	a.Role = domain.Role(role)
	a.CreatedAt = fromMillis(created)
	return a, nil
}

func getActor(ctx context.Context, q querier, id string) (domain.Actor, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+actorColumns+`
		FROM actors a JOIN accounts acc ON acc.id = a.id
		WHERE a.id = ?`, id)
	a, err := scanActor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Actor{}, fmt.Errorf("actor %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Actor{}, fmt.Errorf("get actor: %w", err)
	}
	return a, nil
}

// GetActor returns an actor with its current balance.
func (db *DB) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	return getActor(ctx, db.db, id)
}

func (t *txn) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	return getActor(ctx, t.q, id)
}

// InsertActor creates the actor and its zero-balance account.
func (t *txn) InsertActor(ctx context.Context, a domain.Actor) error {
	created := toMillis(a.CreatedAt)
	if _, err := t.q.ExecContext(ctx,
		`INSERT INTO accounts (id, balance, system, created_at) VALUES (?, 0, 0, ?)`,
		a.ID, created,
	); err != nil {
		if isUniqueViolation(err, "accounts.id") {
			return fmt.Errorf("actor %s: %w", a.ID, domain.ErrActorExists)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	if _, err := t.q.ExecContext(ctx,
		`INSERT INTO actors (id, role, handle, created_at) VALUES (?, ?, ?, ?)`,
		a.ID, string(a.Role), nullString(strings.TrimSpace(a.Handle)), created,
	); err != nil {
		switch {
		case isUniqueViolation(err, "actors.handle"):
			return fmt.Errorf("handle %q: %w", a.Handle, domain.ErrHandleTaken)
		case isUniqueViolation(err, "actors.id"):
			return fmt.Errorf("actor %s: %w", a.ID, domain.ErrActorExists)
		}
		return fmt.Errorf("insert actor: %w", err)
	}
	return nil
}

// SetHandle assigns a unique display handle.
func (t *txn) SetHandle(ctx context.Context, actorID, handle string) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE actors SET handle = ? WHERE id = ?`, handle, actorID)
	if err != nil {
		if isUniqueViolation(err, "actors.handle") {
			return fmt.Errorf("handle %q: %w", handle, domain.ErrHandleTaken)
		}
		return fmt.Errorf("set handle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("actor %s: %w", actorID, domain.ErrNotFound)
	}
	return nil
}

// ─── Balances ───────────────────────────────────────────────────────────────

// Credit adds amount to the account and returns the new balance.
func (t *txn) Credit(ctx context.Context, account string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	var balance int64
	err := t.q.QueryRowContext(ctx,
		`UPDATE accounts SET balance = balance + ? WHERE id = ? RETURNING balance`,
		amount, account,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("account %s: %w", account, domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("credit %s: %w", account, err)
	}
	return balance, nil
}

// Debit removes amount from the account. Non-system accounts never go
// below zero; the guard lives in the WHERE clause so the check and the
// write are one statement.
func (t *txn) Debit(ctx context.Context, account string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	var balance int64
	err := t.q.QueryRowContext(ctx,
		`UPDATE accounts SET balance = balance - ?
		WHERE id = ? AND (system = 1 OR balance >= ?)
		RETURNING balance`,
		amount, account, amount,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		var exists int
		if err := t.q.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM accounts WHERE id = ?`, account,
		).Scan(&exists); err != nil {
			return 0, fmt.Errorf("debit %s: %w", account, err)
		}
		if exists == 0 {
			return 0, fmt.Errorf("account %s: %w", account, domain.ErrNotFound)
		}
		return 0, fmt.Errorf("account %s: %w", account, domain.ErrInsufficientFunds)
	}
	if err != nil {
		return 0, fmt.Errorf("debit %s: %w", account, err)
	}
	return balance, nil
}

// AccountBalance returns the balance of any account, including system ones.
func (db *DB) AccountBalance(ctx context.Context, account string) (int64, error) {
	var balance int64
	err := db.db.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE id = ?`, account).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("account %s: %w", account, domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("account balance: %w", err)
	}
	return balance, nil
}

// TotalBalance sums every account. With the treasury included this is
// always zero.
func (db *DB) TotalBalance(ctx context.Context) (int64, error) {
	var total int64
	if err := db.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(balance), 0) FROM accounts`).Scan(&total); err != nil {
		return 0, fmt.Errorf("total balance: %w", err)
	}
	return total, nil
}

// ─── Ledger ─────────────────────────────────────────────────────────────────

func (t *txn) InsertLedgerEntry(ctx context.Context, e domain.LedgerEntry) error {
	if _, err := t.q.ExecContext(ctx,
		`INSERT INTO ledger_entries
			(transfer_id, account, entry_type, tx_type, amount, balance,
			 submission_id, post_id, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TransferID, e.Account, string(e.EntryType), string(e.Type), e.Amount, e.Balance,
		nullString(e.SubmissionID), nullString(e.PostID), e.Description, toMillis(e.Timestamp),
	); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// ListLedgerEntries returns an account's entries, newest first.
func (db *DB) ListLedgerEntries(ctx context.Context, account string, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.db.QueryContext(ctx,
		`SELECT id, transfer_id, account, entry_type, tx_type, amount, balance,
			COALESCE(submission_id, ''), COALESCE(post_id, ''), description, created_at
		FROM ledger_entries WHERE account = ?
		ORDER BY id DESC LIMIT ?`, account, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var (
			e                domain.LedgerEntry
			entryType, txTyp string
			created          int64
		)
		if err := rows.Scan(&e.ID, &e.TransferID, &e.Account, &entryType, &txTyp,
			&e.Amount, &e.Balance, &e.SubmissionID, &e.PostID, &e.Description, &created); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.EntryType = domain.EntryType(entryType)
		e.Type = domain.TransactionType(txTyp)
		e.Timestamp = fromMillis(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ─── Payouts ────────────────────────────────────────────────────────────────

// InsertPayout records the one payout a submission may receive. A second
// insert for the same submission fails with ErrAlreadyPaid.
func (t *txn) InsertPayout(ctx context.Context, p domain.Payout) error {
	if _, err := t.q.ExecContext(ctx,
		`INSERT INTO payouts (submission_id, actor_id, amount, reason, paid_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.SubmissionID, p.ActorID, p.Amount, string(p.Reason), toMillis(p.PaidAt),
	); err != nil {
		if isUniqueViolation(err, "payouts.submission_id") {
			return fmt.Errorf("submission %s: %w", p.SubmissionID, domain.ErrAlreadyPaid)
		}
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

// GetPayout returns the payout recorded for a submission.
func (db *DB) GetPayout(ctx context.Context, submissionID string) (domain.Payout, error) {
	var (
		p      domain.Payout
		reason string
		paidAt int64
	)
	err := db.db.QueryRowContext(ctx,
		`SELECT submission_id, actor_id, amount, reason, paid_at
		FROM payouts WHERE submission_id = ?`, submissionID,
	).Scan(&p.SubmissionID, &p.ActorID, &p.Amount, &reason, &paidAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Payout{}, fmt.Errorf("payout for %s: %w", submissionID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Payout{}, fmt.Errorf("get payout: %w", err)
	}
	p.Reason = domain.TransactionType(reason)
	p.PaidAt = fromMillis(paidAt)
	return p, nil
}
