package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/buildhub/pkg/database"
	"github.com/diagnosis/buildhub/pkg/events"
)

type Message struct {
	ID      int64
	Subject string
	UserID  int64
	Payload []byte
}

// Enqueue writes ev to the outbox inside the caller's transaction, so the
// notification exists exactly when the change it describes does.
func Enqueue(ctx context.Context, tx pgx.Tx, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal outbox event: %w", err)
	}
	_, err = tx.Exec(ctx, `INSERT INTO outbox (subject, user_id, payload) VALUES ($1, $2, $3)`,
		ev.Subject, ev.UserID, payload)
	if err != nil {
		return fmt.Errorf("insert outbox row: %w", err)
	}
	return nil
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Claim takes up to limit unpublished rows and marks them published in the
// same transaction. Concurrent relays skip each other's rows.
func (s *PostgresStore) Claim(ctx context.Context, limit int) ([]Message, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	var msgs []Message
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, subject, user_id, payload
			FROM outbox
			WHERE published_at IS NULL
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED`, limit)
		if err != nil {
			return err
		}
		msgs, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
			var m Message
			err := row.Scan(&m.ID, &m.Subject, &m.UserID, &m.Payload)
			return m, err
		})
		if err != nil || len(msgs) == 0 {
			return err
		}

		ids := make([]int64, len(msgs))
		for i, m := range msgs {
			ids[i] = m.ID
		}
		_, err = tx.Exec(ctx, `UPDATE outbox SET published_at = now() WHERE id = ANY($1)`, ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	return msgs, nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id int64, reason string) error {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `UPDATE outbox SET failed_at = $2, last_error = $3 WHERE id = $1`,
		id, time.Now().UTC(), reason)
	if err != nil {
		return fmt.Errorf("mark outbox row %d failed: %w", id, err)
	}
	return nil
}
