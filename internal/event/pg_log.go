package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgLog appends every published event to the event_logs table. The
// durable log is what makes delivery at-least-once: a downstream relay
// can re-read it after a crash.
type PgLog struct {
	pool *pgxpool.Pool
}

func NewPgLog(pool *pgxpool.Pool) *PgLog {
	return &PgLog{pool: pool}
}

func (l *PgLog) Publish(ctx context.Context, ev Event) error {
	var payload []byte
	if ev.Payload != nil {
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		payload = data
	}

	_, err := l.pool.Exec(ctx, `
		INSERT INTO event_logs (event_id, event_type, entity_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.ID, string(ev.Type), ev.EntityID, payload, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}
