package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/diagnosis/buildhub/pkg/apperr"
	"github.com/diagnosis/buildhub/pkg/cache"
	"github.com/diagnosis/buildhub/pkg/logger"
	"github.com/diagnosis/buildhub/pkg/validation"
	"github.com/diagnosis/buildhub/services/bookings/internal/domain"
	"github.com/diagnosis/buildhub/services/bookings/internal/repository"
)

// Cache is the subset of cache.JSON the catalog needs.
type Cache interface {
	Get(ctx context.Context, key string, dst any) error
	Set(ctx context.Context, key string, v any)
	Delete(ctx context.Context, keys ...string)
}

const activeServicesKey = "active"

func slugKey(slug string) string { return "slug:" + slug }

type CatalogService interface {
	ListServices(ctx context.Context) ([]domain.Service, error)
	GetService(ctx context.Context, slug string) (*domain.Service, error)
	CreateService(ctx context.Context, req *domain.CreateServiceRequest) (*domain.Service, error)
	UpdateService(ctx context.Context, id int64, req *domain.UpdateServiceRequest) (*domain.Service, error)
	DeleteService(ctx context.Context, id int64) error
}

type catalogService struct {
	repo  repository.CatalogRepository
	cache Cache
}

// NewCatalogService builds the catalog service. c may be nil, in which case
// every read goes to Postgres.
func NewCatalogService(repo repository.CatalogRepository, c Cache) CatalogService {
	return &catalogService{repo: repo, cache: c}
}

func (s *catalogService) cached(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	err := s.cache.Get(ctx, key, dst)
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		logger.WarnContext(ctx, "Catalog cache read failed", "key", key, "error", err)
	}
	return err == nil
}

func (s *catalogService) store(ctx context.Context, key string, v any) {
	if s.cache != nil {
		s.cache.Set(ctx, key, v)
	}
}

func (s *catalogService) invalidate(ctx context.Context, slug string) {
	if s.cache != nil {
		s.cache.Delete(ctx, activeServicesKey, slugKey(slug))
	}
}

func (s *catalogService) ListServices(ctx context.Context) ([]domain.Service, error) {
	var services []domain.Service
	if s.cached(ctx, activeServicesKey, &services) {
		return services, nil
	}

	services, err := s.repo.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	s.store(ctx, activeServicesKey, services)
	return services, nil
}

func (s *catalogService) GetService(ctx context.Context, slug string) (*domain.Service, error) {
	var svc domain.Service
	if s.cached(ctx, slugKey(slug), &svc) {
		return &svc, nil
	}

	found, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	if found == nil || !found.Active {
		return nil, apperr.NotFound("service not found")
	}
	s.store(ctx, slugKey(slug), found)
	return found, nil
}

func (s *catalogService) CreateService(ctx context.Context, req *domain.CreateServiceRequest) (*domain.Service, error) {
	req.Normalize()
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if err := req.CheckSlug(); err != nil {
		return nil, err
	}

	created, err := s.repo.Create(ctx, req.ToService())
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, created.Slug)
	logger.InfoContext(ctx, "Service created", "service_id", created.ID, "slug", created.Slug)
	return created, nil
}

func (s *catalogService) UpdateService(ctx context.Context, id int64, req *domain.UpdateServiceRequest) (*domain.Service, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	updated, err := s.repo.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, updated.Slug)
	return updated, nil
}

func (s *catalogService) DeleteService(ctx context.Context, id int64) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.invalidate(ctx, deleted.Slug)
	logger.InfoContext(ctx, "Service deleted", "service_id", id)
	return nil
}
