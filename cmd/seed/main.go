package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/telehealth-core/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.Migrate(dsn); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctors, err := seedUsers(context.Background(), pool, "doctor", 50)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	patients, err := seedUsers(context.Background(), pool, "patient", 2000)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if _, err := seedUsers(context.Background(), pool, "pharmacy", 10); err != nil {
		log.Fatalf("seed pharmacies: %v", err)
	}

	if err := seedSubscriptions(context.Background(), pool, doctors, 1.0); err != nil {
		log.Fatalf("seed doctor subscriptions: %v", err)
	}
	if err := seedSubscriptions(context.Background(), pool, patients, 0.6); err != nil {
		log.Fatalf("seed patient subscriptions: %v", err)
	}

	log.Println("seed complete")
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, role string, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d users role=%s", count, role)

	const batchSize = 500
	ids := make([]uuid.UUID, 0, count)

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			if role == "pharmacy" {
				name = gofakeit.Company() + " Pharmacy"
			}
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO users (id, name, email, role, subscription_state, created_at, updated_at)
				VALUES ($1, $2, $3, $4, 'unsubscribed', now(), now())
			`, id, name, email, role)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		log.Printf("users seeded role=%s: %d/%d", role, end, count)
	}

	return ids, nil
}

// seedSubscriptions gives a fraction of the users an active monthly
// subscription and marks their denormalized state to match.
func seedSubscriptions(ctx context.Context, pool *pgxpool.Pool, userIDs []uuid.UUID, fraction float64) error {
	count := int(float64(len(userIDs)) * fraction)
	log.Printf("seeding %d subscriptions", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for i := 0; i < count; i++ {
		userID := userIDs[i]
		start := now.AddDate(0, 0, -gofakeit.Number(1, 20))
		end := start.AddDate(0, 1, 0)

		_, err := tx.Exec(ctx, `
			INSERT INTO subscriptions (id, user_id, plan, status, start_date, end_date, amount, currency, payment_ref, created_at, updated_at)
			VALUES ($1, $2, 'monthly', 'active', $3, $4, $5, 'USD', $6, now(), now())
		`, uuid.New(), userID, start, end, int64(2999), gofakeit.UUID())
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `UPDATE users SET subscription_state = 'active', updated_at = now() WHERE id = $1`, userID)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
