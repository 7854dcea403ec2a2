package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const subscriptionColumns = `id, user_id, plan, status, start_date, end_date, amount, currency, payment_ref, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var s Subscription
	var paymentRef *string

	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.Plan,
		&s.Status,
		&s.StartDate,
		&s.EndDate,
		&s.Amount,
		&s.Currency,
		&paymentRef,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}

	if paymentRef != nil {
		s.PaymentRef = *paymentRef
	}
	return &s, nil
}

func (r *PgRepository) Create(ctx context.Context, s *Subscription) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO subscriptions (id, user_id, plan, status, start_date, end_date, amount, currency, payment_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
	`, s.ID, s.UserID, s.Plan, s.Status, s.StartDate, s.EndDate, s.Amount, s.Currency, nullableString(s.PaymentRef))
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE id = $1
	`, id)
	return scanSubscription(row)
}

func (r *PgRepository) GetLatestByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, userID)
	return scanSubscription(row)
}

func (r *PgRepository) GetActiveByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = $1 AND status = 'active'
	`, userID)
	return scanSubscription(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Subscription, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE subscriptions
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+subscriptionColumns+`
	`, id, to, from)
	return scanSubscription(row)
}

func (r *PgRepository) UpdateStatusAndEndDate(ctx context.Context, id uuid.UUID, from, to Status, endDate time.Time) (*Subscription, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE subscriptions
		SET status = $2,
		    end_date = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+subscriptionColumns+`
	`, id, to, from, endDate)
	return scanSubscription(row)
}

func (r *PgRepository) FindActiveEnded(ctx context.Context, now time.Time) ([]Subscription, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE status = 'active'
		  AND end_date <= $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	return result, rows.Err()
}

func (r *PgRepository) List(ctx context.Context, f Filter) (*PagedSubscriptions, error) {
	where := []string{"1=1"}
	args := []any{}

	if f.UserID != nil {
		args = append(args, *f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Plan != nil {
		args = append(args, *f.Plan)
		where = append(where, fmt.Sprintf("plan = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM subscriptions WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, err
	}

	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM subscriptions
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, subscriptionColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	page := &PagedSubscriptions{
		TotalCount: total,
		Page:       f.Page,
		PageSize:   f.PageSize,
	}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		page.Subscriptions = append(page.Subscriptions, *s)
	}

	return page, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
