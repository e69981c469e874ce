package repository

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/buildhub/pkg/apperr"
)

const idempotencyTTL = 24 * time.Hour

// hashKey scopes the key to the user so two users can't collide on a key.
func hashKey(key string, userID int64) string {
	sum := sha256.Sum256([]byte(strconv.FormatInt(userID, 10) + ":" + key))
	return fmt.Sprintf("%x", sum)
}

// lookupIdempotency returns the booking created earlier with key, or 0.
// The row is locked so a concurrent retry waits for the first request.
func lookupIdempotency(ctx context.Context, tx pgx.Tx, key string, userID int64) (int64, error) {
	var bookingID int64
	err := tx.QueryRow(ctx, `
		SELECT booking_id FROM booking_idempotency
		WHERE key_hash = $1 AND expires_at > now()
		FOR UPDATE`, hashKey(key, userID)).Scan(&bookingID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lookup idempotency key: %w", err)
	}
	return bookingID, nil
}

func recordIdempotency(ctx context.Context, tx pgx.Tx, key string, userID, bookingID int64) error {
	tag, err := tx.Exec(ctx, `
		INSERT INTO booking_idempotency (key_hash, user_id, booking_id, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key_hash) DO UPDATE SET
			booking_id = EXCLUDED.booking_id,
			expires_at = EXCLUDED.expires_at
		WHERE booking_idempotency.expires_at <= now()`,
		hashKey(key, userID), userID, bookingID, time.Now().Add(idempotencyTTL))
	if err != nil {
		return fmt.Errorf("record idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Another request with the same key committed first.
		return apperr.Validation("a request with this Idempotency-Key is already in progress").WithCode("IDEMPOTENCY_CONFLICT")
	}
	return nil
}

type IdempotencyRepository interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

type idempotencyRepository struct {
	pool *pgxpool.Pool
}

func NewIdempotencyRepository(pool *pgxpool.Pool) IdempotencyRepository {
	return &idempotencyRepository{pool: pool}
}

func (r *idempotencyRepository) CleanupExpired(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, `DELETE FROM booking_idempotency WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency keys: %w", err)
	}
	return result.RowsAffected(), nil
}
