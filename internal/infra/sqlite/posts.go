package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lynks-network/lynks/internal/domain"
)

// ─── Posts ──────────────────────────────────────────────────────────────────

const postColumns = `p.id, p.owner_id, p.url, p.reward, p.cap, p.fee_paid, p.created_at, p.deleted_at`

func scanPost(row interface{ Scan(...any) error }, extra ...any) (domain.Post, error) {
	var (
		p       domain.Post
		created int64
		deleted sql.NullInt64
	)
	dest := append([]any{&p.ID, &p.OwnerID, &p.URL, &p.Reward, &p.Cap, &p.FeePaid, &created, &deleted}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.Post{}, err
	}
	p.CreatedAt = fromMillis(created)
	if deleted.Valid {
		at := fromMillis(deleted.Int64)
		p.DeletedAt = &at
	}
	return p, nil
}

func getPost(ctx context.Context, q querier, id string) (domain.Post, error) {
	p, err := scanPost(q.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts p WHERE p.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Post{}, fmt.Errorf("post %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Post{}, fmt.Errorf("get post: %w", err)
	}
	return p, nil
}

// GetPost returns a post, deleted or not.
func (db *DB) GetPost(ctx context.Context, id string) (domain.Post, error) {
	return getPost(ctx, db.db, id)
}

func (t *txn) GetPost(ctx context.Context, id string) (domain.Post, error) {
	return getPost(ctx, t.q, id)
}

func (t *txn) InsertPost(ctx context.Context, p domain.Post) error {
	if _, err := t.q.ExecContext(ctx,
		`INSERT INTO posts (id, owner_id, url, reward, cap, fee_paid, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.URL, p.Reward, p.Cap, p.FeePaid, toMillis(p.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// CountPostsSince counts posts created at or after since, including
// deleted ones: deleting a post does not give back a daily slot.
func (t *txn) CountPostsSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	var n int
	if err := t.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE owner_id = ? AND created_at >= ?`,
		ownerID, toMillis(since),
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

// MarkPostDeleted soft-deletes a live post.
func (t *txn) MarkPostDeleted(ctx context.Context, id string, at time.Time) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE posts SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		toMillis(at), id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("post %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListFeed returns live posts the actor can still submit to: not their
// own, not already submitted to, and below capacity. Newest first.
func (db *DB) ListFeed(ctx context.Context, actorID string, skip, take int) ([]domain.FeedPost, error) {
	if take <= 0 {
		take = 20
	}
	if skip < 0 {
		skip = 0
	}
	rows, err := db.db.QueryContext(ctx,
		`SELECT `+postColumns+`, COALESCE(a.handle, ''),
			(SELECT COUNT(*) FROM submissions s WHERE s.post_id = p.id) AS n
		FROM posts p
		JOIN actors a ON a.id = p.owner_id
		WHERE p.deleted_at IS NULL
			AND p.owner_id <> ?
			AND (SELECT COUNT(*) FROM submissions s WHERE s.post_id = p.id) < p.cap
			AND NOT EXISTS (
				SELECT 1 FROM submissions s
				WHERE s.post_id = p.id AND s.submitter_id = ?)
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT ? OFFSET ?`,
		actorID, actorID, take, skip)
	if err != nil {
		return nil, fmt.Errorf("list feed: %w", err)
	}
	defer rows.Close()

	var feed []domain.FeedPost
	for rows.Next() {
		var fp domain.FeedPost
		p, err := scanPost(rows, &fp.OwnerHandle, &fp.SubmissionCount)
		if err != nil {
			return nil, fmt.Errorf("scan feed post: %w", err)
		}
		fp.Post = p
		feed = append(feed, fp)
	}
	return feed, rows.Err()
}
