package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/buildhub/pkg/apperr"
	"github.com/diagnosis/buildhub/pkg/database"
	"github.com/diagnosis/buildhub/services/bookings/internal/domain"
)

type CatalogRepository interface {
	List(ctx context.Context, activeOnly bool) ([]domain.Service, error)
	GetByID(ctx context.Context, id int64) (*domain.Service, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Service, error)
	Create(ctx context.Context, s *domain.Service) (*domain.Service, error)
	Update(ctx context.Context, id int64, req *domain.UpdateServiceRequest) (*domain.Service, error)
	Delete(ctx context.Context, id int64) (*domain.Service, error)
}

type catalogRepository struct {
	pool *pgxpool.Pool
}

func NewCatalogRepository(pool *pgxpool.Pool) CatalogRepository {
	return &catalogRepository{pool: pool}
}

const serviceCols = `id, slug, name, description, category, base_price_cents, active, created_at, updated_at`

func scanService(row pgx.Row) (*domain.Service, error) {
	var s domain.Service
	err := row.Scan(&s.ID, &s.Slug, &s.Name, &s.Description, &s.Category, &s.BasePriceCents, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *catalogRepository) List(ctx context.Context, activeOnly bool) ([]domain.Service, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT `+serviceCols+` FROM services
		WHERE NOT $1 OR active
		ORDER BY category, name`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	out := []domain.Service{}
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *catalogRepository) get(ctx context.Context, where string, arg any) (*domain.Service, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	s, err := scanService(r.pool.QueryRow(ctx, `SELECT `+serviceCols+` FROM services WHERE `+where+` = $1`, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	return s, nil
}

func (r *catalogRepository) GetByID(ctx context.Context, id int64) (*domain.Service, error) {
	return r.get(ctx, "id", id)
}

func (r *catalogRepository) GetBySlug(ctx context.Context, slug string) (*domain.Service, error) {
	return r.get(ctx, "slug", slug)
}

func (r *catalogRepository) Create(ctx context.Context, s *domain.Service) (*domain.Service, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	created, err := scanService(r.pool.QueryRow(ctx, `
		INSERT INTO services (slug, name, description, category, base_price_cents, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+serviceCols,
		s.Slug, s.Name, s.Description, s.Category, s.BasePriceCents, s.Active))
	if isUniqueViolation(err) {
		return nil, apperr.Validation("a service with slug %q already exists", s.Slug).WithCode("SLUG_EXISTS")
	}
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	return created, nil
}

func (r *catalogRepository) Update(ctx context.Context, id int64, req *domain.UpdateServiceRequest) (*domain.Service, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	s, err := scanService(r.pool.QueryRow(ctx, `
		UPDATE services SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			category = COALESCE($4, category),
			base_price_cents = COALESCE($5, base_price_cents),
			active = COALESCE($6, active),
			updated_at = now()
		WHERE id = $1
		RETURNING `+serviceCols,
		id, req.Name, req.Description, req.Category, req.BasePriceCents, req.Active))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("service not found")
	}
	if err != nil {
		return nil, fmt.Errorf("update service: %w", err)
	}
	return s, nil
}

func (r *catalogRepository) Delete(ctx context.Context, id int64) (*domain.Service, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	s, err := scanService(r.pool.QueryRow(ctx, `DELETE FROM services WHERE id = $1 RETURNING `+serviceCols, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("service not found")
	}
	if err != nil {
		return nil, fmt.Errorf("delete service: %w", err)
	}
	return s, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
