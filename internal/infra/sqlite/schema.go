package sqlite

import "github.com/lynks-network/lynks/internal/domain"

// ─── Settlement Schema ──────────────────────────────────────────────────────

// Migrations returns the schema statements. Each string is a single SQL
// statement (SQLite executes one at a time) and every statement is
// idempotent, so the list is re-applied on each Open.
func Migrations() []string {
	return []string{
		// Ledger accounts. Only system accounts may go negative.
		`CREATE TABLE IF NOT EXISTS accounts (
			id         TEXT PRIMARY KEY,
			balance    INTEGER NOT NULL DEFAULT 0,
			system     INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			CHECK (system = 1 OR balance >= 0)
		)`,
		`INSERT OR IGNORE INTO accounts (id, balance, system, created_at)
		VALUES ('` + domain.TreasuryAccount + `', 0, 1, 0)`,

		// Actors own exactly one account with the same id.
		`CREATE TABLE IF NOT EXISTS actors (
			id         TEXT PRIMARY KEY REFERENCES accounts(id),
			role       TEXT NOT NULL CHECK (role IN ('STANDARD', 'ADMIN')),
			handle     TEXT UNIQUE,
			created_at INTEGER NOT NULL
		)`,

		// Double-entry ledger: one DEBIT and one CREDIT row per transfer.
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			transfer_id   TEXT NOT NULL,
			account       TEXT NOT NULL REFERENCES accounts(id),
			entry_type    TEXT NOT NULL CHECK (entry_type IN ('DEBIT', 'CREDIT')),
			tx_type       TEXT NOT NULL,
			amount        INTEGER NOT NULL CHECK (amount > 0),
			balance       INTEGER NOT NULL,
			submission_id TEXT,
			post_id       TEXT,
			description   TEXT NOT NULL DEFAULT '',
			created_at    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger_entries(account, id)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_transfer ON ledger_entries(transfer_id)`,

		// One payout per submission, ever.
		`CREATE TABLE IF NOT EXISTS payouts (
			submission_id TEXT PRIMARY KEY,
			actor_id      TEXT NOT NULL REFERENCES accounts(id),
			amount        INTEGER NOT NULL CHECK (amount > 0),
			reason        TEXT NOT NULL,
			paid_at       INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS posts (
			id         TEXT PRIMARY KEY,
			owner_id   TEXT NOT NULL REFERENCES actors(id),
			url        TEXT NOT NULL,
			reward     INTEGER NOT NULL CHECK (reward > 0),
			cap        INTEGER NOT NULL CHECK (cap > 0),
			fee_paid   INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			deleted_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_owner_created ON posts(owner_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_at DESC)`,
		`CREATE TRIGGER IF NOT EXISTS trg_posts_reward_immutable
			BEFORE UPDATE OF reward ON posts
			WHEN NEW.reward <> OLD.reward
			BEGIN
				SELECT RAISE(ABORT, 'post reward is immutable');
			END`,

		`CREATE TABLE IF NOT EXISTS submissions (
			id               TEXT PRIMARY KEY,
			post_id          TEXT NOT NULL REFERENCES posts(id),
			submitter_id     TEXT NOT NULL REFERENCES actors(id),
			proof_ref        TEXT NOT NULL,
			status           TEXT NOT NULL,
			rejection_reason TEXT,
			dispute_message  TEXT,
			disputed         INTEGER NOT NULL DEFAULT 0,
			dispute_resolved INTEGER NOT NULL DEFAULT 0,
			decided_by       TEXT,
			paid             INTEGER NOT NULL DEFAULT 0,
			created_at       INTEGER NOT NULL,
			updated_at       INTEGER NOT NULL,
			UNIQUE (post_id, submitter_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_status_created ON submissions(status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_submitter ON submissions(submitter_id, created_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_submissions_proof_ref ON submissions(proof_ref)
			WHERE proof_ref <> 'CLEARED_ON_APPROVAL'`,

		// Uploaded proofs and the submission each one was spent on.
		`CREATE TABLE IF NOT EXISTS proof_uploads (
			ref           TEXT PRIMARY KEY,
			uploader_id   TEXT NOT NULL,
			submission_id TEXT UNIQUE,
			created_at    INTEGER NOT NULL,
			claimed_at    INTEGER
		)`,

		// Proof purge outbox, written in the approving transaction.
		`CREATE TABLE IF NOT EXISTS purge_jobs (
			id              TEXT PRIMARY KEY,
			submission_id   TEXT NOT NULL,
			proof_ref       TEXT NOT NULL,
			state           TEXT NOT NULL DEFAULT 'QUEUED',
			attempts        INTEGER NOT NULL DEFAULT 0,
			last_error      TEXT NOT NULL DEFAULT '',
			next_attempt_at INTEGER NOT NULL,
			leased_until    INTEGER NOT NULL DEFAULT 0,
			created_at      INTEGER NOT NULL,
			completed_at    INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_purge_due ON purge_jobs(state, next_attempt_at)`,
	}
}
