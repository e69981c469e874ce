package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RoleStore reads account roles straight from the users table for services
// that authorize on the current role rather than the one in the token.
type RoleStore struct {
	pool *pgxpool.Pool
}

func NewRoleStore(pool *pgxpool.Pool) *RoleStore {
	return &RoleStore{pool: pool}
}

func (s *RoleStore) CurrentRole(ctx context.Context, userID int64) (string, bool, error) {
	ctx, cancel := WithTimeout(ctx)
	defer cancel()

	var role string
	err := s.pool.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load role: %w", err)
	}
	return role, true, nil
}
