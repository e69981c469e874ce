package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/buildhub/pkg/apperr"
	"github.com/diagnosis/buildhub/pkg/database"
	"github.com/diagnosis/buildhub/services/auth/internal/domain"
)

// ErrNoCode is returned by Redeem when no code of the purpose is outstanding.
var ErrNoCode = apperr.NotFound("no active verification code")

type CodeRepository interface {
	// Upsert stores the code, replacing any earlier code of the same purpose.
	Upsert(ctx context.Context, c *domain.VerificationCode) error
	// Redeem locks the code, runs check against it and, when check passes,
	// deletes the code and optionally marks the account verified, all in one
	// transaction. A check failing with an invalid-code error still counts
	// the attempt.
	Redeem(ctx context.Context, userID int64, purpose domain.Purpose, check func(*domain.VerificationCode) error, markVerified bool) error
	Delete(ctx context.Context, userID int64, purpose domain.Purpose) error
}

type codeRepository struct {
	pool *pgxpool.Pool
}

func NewCodeRepository(pool *pgxpool.Pool) CodeRepository {
	return &codeRepository{pool: pool}
}

func (r *codeRepository) Upsert(ctx context.Context, c *domain.VerificationCode) error {
	const q = `
		INSERT INTO verification_codes (user_id, purpose, code_hash, expires_at, attempts)
		VALUES ($1, $2, $3, $4, 0)
		ON CONFLICT (user_id, purpose) DO UPDATE SET
			code_hash = EXCLUDED.code_hash,
			expires_at = EXCLUDED.expires_at,
			attempts = 0,
			created_at = now()`

	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	if _, err := r.pool.Exec(ctx, q, c.UserID, c.Purpose, c.CodeHash, c.ExpiresAt); err != nil {
		return fmt.Errorf("upsert verification code: %w", err)
	}
	return nil
}

func (r *codeRepository) Redeem(ctx context.Context, userID int64, purpose domain.Purpose, check func(*domain.VerificationCode) error, markVerified bool) error {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin redeem: %w", err)
	}
	defer tx.Rollback(ctx)

	var c domain.VerificationCode
	err = tx.QueryRow(ctx, `
		SELECT user_id, purpose, code_hash, expires_at, attempts, created_at
		FROM verification_codes
		WHERE user_id = $1 AND purpose = $2
		FOR UPDATE`, userID, purpose).
		Scan(&c.UserID, &c.Purpose, &c.CodeHash, &c.ExpiresAt, &c.Attempts, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoCode
	}
	if err != nil {
		return fmt.Errorf("lock verification code: %w", err)
	}

	if checkErr := check(&c); checkErr != nil {
		if !apperr.IsKind(checkErr, apperr.KindInvalidCode) {
			return checkErr
		}
		if _, err := tx.Exec(ctx, `
			UPDATE verification_codes SET attempts = attempts + 1
			WHERE user_id = $1 AND purpose = $2`, userID, purpose); err != nil {
			return fmt.Errorf("count attempt: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit attempt: %w", err)
		}
		return checkErr
	}

	if _, err := tx.Exec(ctx, `DELETE FROM verification_codes WHERE user_id = $1 AND purpose = $2`, userID, purpose); err != nil {
		return fmt.Errorf("consume verification code: %w", err)
	}
	if markVerified {
		if _, err := tx.Exec(ctx, `
			UPDATE users SET verification_status = 'verified', updated_at = now()
			WHERE id = $1`, userID); err != nil {
			return fmt.Errorf("mark user verified: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit redeem: %w", err)
	}
	return nil
}

func (r *codeRepository) Delete(ctx context.Context, userID int64, purpose domain.Purpose) error {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	if _, err := r.pool.Exec(ctx, `DELETE FROM verification_codes WHERE user_id = $1 AND purpose = $2`, userID, purpose); err != nil {
		return fmt.Errorf("delete verification code: %w", err)
	}
	return nil
}
