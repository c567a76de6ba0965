package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harvest-hub/harvesthub/internal/shared"
)

// ErrFarmerNotFound indicates the referenced farmer does not exist. It wraps
// shared.ErrNotFound so callers can match either sentinel.
var ErrFarmerNotFound = fmt.Errorf("directory: farmer not found: %w", shared.ErrNotFound)

// Repository provides read-only access to the member directory.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get resolves a farmer by ID.
func (r *Repository) Get(ctx context.Context, id int64) (*Farmer, error) {
	const query = `
		SELECT id, member_no, first_name, surname, phone, status, registered_at
		FROM farmers
		WHERE id = $1`

	var f Farmer
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&f.ID, &f.MemberNo, &f.FirstName, &f.Surname, &f.Phone, &f.Status, &f.RegisteredAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFarmerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("directory: get farmer %d: %w", id, err)
	}
	return &f, nil
}
