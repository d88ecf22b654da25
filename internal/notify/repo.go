package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"classsync/internal/metrics"
)

// InboxLimit caps how many notifications an inbox listing returns.
const InboxLimit = 50

// Inbox is the read side of notification storage.
type Inbox interface {
	ListForRecipient(ctx context.Context, recipientID string, role Role, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, recipientID string, ids []string) (int64, error)
}

// Repository stores notifications in Postgres. It doubles as a Sink for
// processes that write directly instead of through the queue.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insert(ctx context.Context, db execer, n Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, role, category, title, message, payload, is_read, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO NOTHING
	`, n.ID, n.RecipientID, string(n.Role), string(n.Category), n.Title, n.Message, payload, n.Read, n.CreatedAt)
	return err
}

// Insert persists a single notification.
func (r *Repository) Insert(ctx context.Context, n Notification) error {
	stamp(&n, time.Now())
	if err := insert(ctx, r.db, n); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// InsertMany persists a batch atomically.
func (r *Repository) InsertMany(ctx context.Context, ns []Notification) error {
	if len(ns) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	now := time.Now()
	for _, n := range ns {
		stamp(&n, now)
		if err := insert(ctx, tx, n); err != nil {
			return fmt.Errorf("insert notification for %s: %w", n.RecipientID, err)
		}
	}
	return tx.Commit()
}

func (r *Repository) Emit(ctx context.Context, n Notification) error {
	if err := r.Insert(ctx, n); err != nil {
		return err
	}
	metrics.NotificationsEmitted.WithLabelValues(string(n.Category)).Inc()
	return nil
}

func (r *Repository) EmitBulk(ctx context.Context, ns []Notification) error {
	if err := r.InsertMany(ctx, ns); err != nil {
		return err
	}
	for _, n := range ns {
		metrics.NotificationsEmitted.WithLabelValues(string(n.Category)).Inc()
	}
	return nil
}

// ListForRecipient returns the newest notifications first.
func (r *Repository) ListForRecipient(ctx context.Context, recipientID string, role Role, limit int) ([]Notification, error) {
	if limit <= 0 || limit > InboxLimit {
		limit = InboxLimit
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, recipient_id, role, category, title, message, payload, is_read, created_at
		FROM notifications
		WHERE recipient_id = $1 AND role = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, recipientID, string(role), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var (
			n                 Notification
			roleStr, category string
			payload           []byte
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &roleStr, &category, &n.Title, &n.Message, &payload, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Role, n.Category = Role(roleStr), Category(category)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &n.Payload); err != nil {
				return nil, fmt.Errorf("decode payload of %s: %w", n.ID, err)
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flags ids as read, scoped to the recipient. It returns how many
// rows changed.
func (r *Repository) MarkRead(ctx context.Context, recipientID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE recipient_id = $1 AND id = ANY($2) AND NOT is_read
	`, recipientID, ids)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
