package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/telehealth-core/internal/subscription"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, role, subscription_state, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)

	var u User
	var email *string
	err := row.Scan(
		&u.ID,
		&u.Name,
		&email,
		&u.Role,
		&u.SubscriptionState,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	u.Email = email
	return &u, nil
}

func (r *PgRepository) SetSubscriptionState(ctx context.Context, userID uuid.UUID, status subscription.Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET subscription_state = $2,
		    updated_at = now()
		WHERE id = $1
	`, userID, status)
	if err != nil {
		return fmt.Errorf("update user subscription state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
