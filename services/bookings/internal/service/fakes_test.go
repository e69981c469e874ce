package service_test

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/diagnosis/buildhub/pkg/apperr"
	"github.com/diagnosis/buildhub/pkg/events"
	"github.com/diagnosis/buildhub/services/bookings/internal/domain"
	"github.com/diagnosis/buildhub/services/bookings/internal/repository"
)

// fakeBookings mirrors the Postgres repository: idempotency replay, the
// status compare-and-set and one outbox entry per change.
type fakeBookings struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*domain.Booking
	idem   map[string]int64
	outbox []string
	// beforeUpdate runs inside UpdateStatus before the compare, to simulate
	// a concurrent writer.
	beforeUpdate func(b *domain.Booking)
}

func newFakeBookings() *fakeBookings {
	return &fakeBookings{byID: map[int64]*domain.Booking{}, idem: map[string]int64{}}
}

func (f *fakeBookings) Create(ctx context.Context, b *domain.Booking, key string) (*domain.Booking, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idemKey := fmt.Sprintf("%d:%s", b.UserID, key)
	if key != "" {
		if id, ok := f.idem[idemKey]; ok {
			cp := *f.byID[id]
			return &cp, true, nil
		}
	}
	f.nextID++
	cp := *b
	cp.ID = f.nextID
	cp.Status = domain.BookingPending
	f.byID[cp.ID] = &cp
	f.outbox = append(f.outbox, events.BookingCreated)
	if key != "" {
		f.idem[idemKey] = cp.ID
	}
	out := cp
	return &out, false, nil
}

func (f *fakeBookings) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.byID[id]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeBookings) sorted(keep func(*domain.Booking) bool) []domain.Booking {
	out := []domain.Booking{}
	for _, b := range f.byID {
		if keep(b) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeBookings) ListByUserID(ctx context.Context, userID int64, limit, offset int) ([]domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(func(b *domain.Booking) bool { return b.UserID == userID }), nil
}

func (f *fakeBookings) List(ctx context.Context, status *domain.BookingStatus, limit, offset int) ([]domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(func(b *domain.Booking) bool { return status == nil || b.Status == *status }), nil
}

func (f *fakeBookings) UpdateStatus(ctx context.Context, id int64, from, to domain.BookingStatus, change events.BookingStatusChangedEvent) (*domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrStaleStatus
	}
	if f.beforeUpdate != nil {
		f.beforeUpdate(b)
	}
	if b.Status != from {
		return nil, repository.ErrStaleStatus
	}
	b.Status = to
	f.outbox = append(f.outbox, events.BookingUpdated)
	cp := *b
	return &cp, nil
}

func (f *fakeBookings) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return apperr.NotFound("booking not found")
	}
	delete(f.byID, id)
	return nil
}

type fakeCatalog struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*domain.Service
	reads  int
}

func newFakeCatalog(services ...domain.Service) *fakeCatalog {
	f := &fakeCatalog{byID: map[int64]*domain.Service{}}
	for _, s := range services {
		f.nextID++
		s.ID = f.nextID
		cp := s
		f.byID[s.ID] = &cp
	}
	return f
}

func (f *fakeCatalog) List(ctx context.Context, activeOnly bool) ([]domain.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	out := []domain.Service{}
	for id := int64(1); id <= f.nextID; id++ {
		if s, ok := f.byID[id]; ok && (!activeOnly || s.Active) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeCatalog) GetByID(ctx context.Context, id int64) (*domain.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if s, ok := f.byID[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeCatalog) GetBySlug(ctx context.Context, slug string) (*domain.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	for _, s := range f.byID {
		if s.Slug == slug {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalog) Create(ctx context.Context, s *domain.Service) (*domain.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Slug == s.Slug {
			return nil, apperr.Validation("a service with slug %q already exists", s.Slug).WithCode("SLUG_EXISTS")
		}
	}
	f.nextID++
	cp := *s
	cp.ID = f.nextID
	f.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeCatalog) Update(ctx context.Context, id int64, req *domain.UpdateServiceRequest) (*domain.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, apperr.NotFound("service not found")
	}
	if req.Name != nil {
		s.Name = *req.Name
	}
	if req.Active != nil {
		s.Active = *req.Active
	}
	if req.BasePriceCents != nil {
		s.BasePriceCents = *req.BasePriceCents
	}
	cp := *s
	return &cp, nil
}

func (f *fakeCatalog) Delete(ctx context.Context, id int64) (*domain.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, apperr.NotFound("service not found")
	}
	delete(f.byID, id)
	return s, nil
}
