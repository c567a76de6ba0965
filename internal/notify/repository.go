package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harvest-hub/harvesthub/internal/shared"
)

// ErrNotificationNotFound indicates the referenced notification does not
// exist. It wraps shared.ErrNotFound so callers can match either sentinel.
var ErrNotificationNotFound = fmt.Errorf("notify: notification not found: %w", shared.ErrNotFound)

// Repository persists notifications.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a notification and returns it with ID and timestamp set.
func (r *Repository) Create(ctx context.Context, n Notification) (*Notification, error) {
	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return nil, fmt.Errorf("notify: marshal metadata: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO notifications (farmer_id, type, title, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		n.FarmerID, string(n.Type), n.Title, n.Message, metadata,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("notify: create notification: %w", err)
	}
	return &n, nil
}

// ListByFarmer returns a farmer's notifications, newest first.
func (r *Repository) ListByFarmer(ctx context.Context, farmerID int64, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, farmer_id, type, title, message, metadata, read, read_at, created_at
		FROM notifications
		WHERE farmer_id = $1`
	if unreadOnly {
		query += ` AND read = FALSE`
	}
	query += ` ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, farmerID, limit)
	if err != nil {
		return nil, fmt.Errorf("notify: list notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var typ string
		var metadata []byte
		if err := rows.Scan(&n.ID, &n.FarmerID, &typ, &n.Title, &n.Message, &metadata, &n.Read, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Type = NotificationType(typ)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
				return nil, fmt.Errorf("notify: unmarshal notification %d metadata: %w", n.ID, err)
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flags a notification as read.
func (r *Repository) MarkRead(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET read = TRUE, read_at = $2
		WHERE id = $1 AND read = FALSE`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("notify: mark read %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already read; distinguish for the caller.
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("notify: mark read %d: %w", id, err)
		}
		if !exists {
			return ErrNotificationNotFound
		}
	}
	return nil
}
