package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/buildhub/pkg/apperr"
	"github.com/diagnosis/buildhub/pkg/database"
	"github.com/diagnosis/buildhub/services/auth/internal/domain"
)

// ErrEmailTaken is returned when an email already belongs to a verified account.
var ErrEmailTaken = apperr.Validation("an account with this email already exists").WithCode("EMAIL_EXISTS")

// ErrRegistrationPending is returned when a pending account still has an
// unexpired verification code and so cannot be overwritten yet.
var ErrRegistrationPending = apperr.Validation("a registration for this email is awaiting verification; use the emailed code or try again once it expires").WithCode("REGISTRATION_PENDING")

type UserRepository interface {
	// UpsertPending creates a pending account or overwrites an existing
	// pending one whose verification code has expired as of now.
	UpsertPending(ctx context.Context, u *domain.User, now time.Time) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	List(ctx context.Context, limit, offset int) ([]domain.User, error)
	UpdateRole(ctx context.Context, userID int64, role string) (*domain.User, error)
	UpdatePassword(ctx context.Context, userID int64, passwordHash string, expectedVersion int) (bool, error)
	Delete(ctx context.Context, id int64) error
}

type userRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userCols = `id, role, email, password_hash, name, COALESCE(phone, ''), verification_status, reset_version, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Role, &u.Email, &u.PasswordHash, &u.Name, &u.Phone,
		&u.VerificationStatus, &u.ResetVersion, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertPending never touches a verified account (ErrEmailTaken) and never
// overwrites a pending one while its code is live (ErrRegistrationPending).
func (r *userRepository) UpsertPending(ctx context.Context, u *domain.User, now time.Time) (*domain.User, error) {
	const q = `
		INSERT INTO users (role, email, password_hash, name, phone, verification_status)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), 'pending')
		ON CONFLICT (email) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			updated_at = now()
		WHERE users.verification_status = 'pending'
		  AND NOT EXISTS (
			SELECT 1 FROM verification_codes vc
			WHERE vc.user_id = users.id
			  AND vc.purpose = 'email_verification'
			  AND vc.expires_at > $6)
		RETURNING ` + userCols

	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	out, err := scanUser(r.pool.QueryRow(ctx, q, u.Role, u.Email, u.PasswordHash, u.Name, u.Phone, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.conflictReason(ctx, u.Email)
	}
	if err != nil {
		return nil, fmt.Errorf("upsert pending user: %w", err)
	}
	return out, nil
}

func (r *userRepository) conflictReason(ctx context.Context, email string) error {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT verification_status FROM users WHERE email = $1`, email).Scan(&status)
	if err != nil {
		return fmt.Errorf("read conflicting user: %w", err)
	}
	if status == domain.StatusVerified {
		return ErrEmailTaken
	}
	return ErrRegistrationPending
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE email = $1`
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return u, nil
}

func (r *userRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id = $1`
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

func (r *userRepository) List(ctx context.Context, limit, offset int) ([]domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (r *userRepository) UpdateRole(ctx context.Context, userID int64, role string) (*domain.User, error) {
	const q = `UPDATE users SET role = $2, updated_at = now() WHERE id = $1 RETURNING ` + userCols
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, userID, role))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("update user role: %w", err)
	}
	return u, nil
}

// UpdatePassword swaps the password hash only while reset_version still
// equals expectedVersion, bumps the version and drops any outstanding reset
// code. It reports false when the version moved on.
func (r *userRepository) UpdatePassword(ctx context.Context, userID int64, passwordHash string, expectedVersion int) (bool, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	var updated bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE users
			SET password_hash = $2, reset_version = reset_version + 1, updated_at = now()
			WHERE id = $1 AND reset_version = $3 AND verification_status = 'verified'`,
			userID, passwordHash, expectedVersion)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		updated = true
		_, err = tx.Exec(ctx, `DELETE FROM verification_codes WHERE user_id = $1 AND purpose = $2`,
			userID, domain.PurposePasswordReset)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("update password: %w", err)
	}
	return updated, nil
}

func (r *userRepository) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM users WHERE id = $1`
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}
