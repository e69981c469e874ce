package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/diagnosis/buildhub/pkg/apperr"
	"github.com/diagnosis/buildhub/pkg/auth"
	"github.com/diagnosis/buildhub/pkg/events"
	"github.com/diagnosis/buildhub/pkg/logger"
	"github.com/diagnosis/buildhub/pkg/validation"
	"github.com/diagnosis/buildhub/services/bookings/internal/domain"
	"github.com/diagnosis/buildhub/services/bookings/internal/repository"
)

type BookingService interface {
	// Create books a service for the session's user. replayed is true when
	// idempotencyKey matched an earlier request and no new booking was made.
	Create(ctx context.Context, session auth.Session, req *domain.CreateBookingRequest, idempotencyKey string) (booking *domain.Booking, replayed bool, err error)
	Get(ctx context.Context, session auth.Session, id int64) (*domain.Booking, error)
	ListMine(ctx context.Context, session auth.Session, limit, offset int) ([]domain.Booking, error)
	ListAll(ctx context.Context, status string, limit, offset int) ([]domain.Booking, error)
	UpdateStatus(ctx context.Context, session auth.Session, id int64, req *domain.UpdateStatusRequest) (*domain.Booking, error)
	Delete(ctx context.Context, session auth.Session, id int64) error
}

type bookingService struct {
	bookings repository.BookingRepository
	catalog  repository.CatalogRepository
	now        func() time.Time
	rejectPast bool
}

type Option func(*bookingService)

func WithClock(now func() time.Time) Option {
	return func(s *bookingService) { s.now = now }
}

// RejectPastDates makes Create refuse booking dates before the clock's
// current UTC day.
func RejectPastDates() Option {
	return func(s *bookingService) { s.rejectPast = true }
}

func NewBookingService(bookings repository.BookingRepository, catalog repository.CatalogRepository, opts ...Option) BookingService {
	s := &bookingService{
		bookings: bookings,
		catalog:  catalog,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *bookingService) Create(ctx context.Context, session auth.Session, req *domain.CreateBookingRequest, idempotencyKey string) (*domain.Booking, bool, error) {
	req.Normalize()
	if err := validation.Struct(req); err != nil {
		return nil, false, err
	}

	var notBefore time.Time
	if s.rejectPast {
		notBefore = s.now()
	}
	date, slot, err := req.Schedule(notBefore)
	if err != nil {
		return nil, false, err
	}

	booking := &domain.Booking{
		UserID:      session.UserID,
		BookingType: req.BookingType,
		BookingDate: date,
		TimeSlot:    slot,
		Status:      domain.BookingPending,
		Contact:     req.ContactDetails,
		Address:     req.Address,
		Notes:       req.Notes,
	}

	if req.Service != "" {
		svc, err := s.resolveService(ctx, req.Service)
		if err != nil {
			return nil, false, err
		}
		booking.ServiceID = &svc.ID
		if booking.BookingType == "" {
			booking.BookingType = svc.Name
		}
	}

	created, replayed, err := s.bookings.Create(ctx, booking, idempotencyKey)
	if err != nil {
		return nil, false, err
	}
	if replayed {
		logger.InfoContext(ctx, "Replayed idempotent booking", "booking_id", created.ID)
	} else {
		logger.InfoContext(ctx, "Booking created", "booking_id", created.ID, "user_id", created.UserID)
	}
	return created, replayed, nil
}

// resolveService accepts a catalog slug or numeric id.
func (s *bookingService) resolveService(ctx context.Context, ref string) (*domain.Service, error) {
	var (
		svc *domain.Service
		err error
	)
	if id, convErr := strconv.ParseInt(ref, 10, 64); convErr == nil {
		svc, err = s.catalog.GetByID(ctx, id)
	} else {
		svc, err = s.catalog.GetBySlug(ctx, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve service: %w", err)
	}
	if svc == nil || !svc.Active {
		return nil, apperr.Validation("service %q is not available", ref)
	}
	return svc, nil
}

func (s *bookingService) load(ctx context.Context, id int64) (*domain.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if b == nil {
		return nil, apperr.NotFound("booking not found")
	}
	return b, nil
}

func (s *bookingService) Get(ctx context.Context, session auth.Session, id int64) (*domain.Booking, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.IsAdmin() && !b.IsOwner(session.UserID) {
		return nil, apperr.Forbidden("you do not have access to this booking")
	}
	return b, nil
}

func (s *bookingService) ListMine(ctx context.Context, session auth.Session, limit, offset int) ([]domain.Booking, error) {
	return s.bookings.ListByUserID(ctx, session.UserID, limit, offset)
}

func (s *bookingService) ListAll(ctx context.Context, status string, limit, offset int) ([]domain.Booking, error) {
	if status == "" {
		return s.bookings.List(ctx, nil, limit, offset)
	}
	st, ok := domain.ParseBookingStatus(status)
	if !ok {
		return nil, apperr.Validation("unknown booking status %q", status)
	}
	return s.bookings.List(ctx, &st, limit, offset)
}

// UpdateStatus checks, in order: the booking exists, the status is known,
// the actor may request it, and the transition is legal.
func (s *bookingService) UpdateStatus(ctx context.Context, session auth.Session, id int64, req *domain.UpdateStatusRequest) (*domain.Booking, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	to, ok := domain.ParseBookingStatus(req.Status)
	if !ok {
		return nil, apperr.Validation("unknown booking status %q", req.Status)
	}

	if !session.IsAdmin() {
		if !b.IsOwner(session.UserID) {
			return nil, apperr.Forbidden("you do not have access to this booking")
		}
		if to != domain.BookingCancelled {
			return nil, apperr.Forbidden("only an admin can set a booking to %s", to)
		}
	}

	if !domain.CanTransition(b.Status, to) {
		return nil, apperr.InvalidTransition("cannot change booking from %s to %s", b.Status, to)
	}

	updated, err := s.bookings.UpdateStatus(ctx, b.ID, b.Status, to, events.BookingStatusChangedEvent{
		BookingID: b.ID,
		From:      string(b.Status),
		To:        string(to),
		ActorID:   session.UserID,
		ChangedAt: s.now().UTC(),
	})
	if errors.Is(err, repository.ErrStaleStatus) {
		return nil, apperr.InvalidTransition("booking status changed, cannot move to %s", to)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}

	logger.InfoContext(ctx, "Booking status changed", "booking_id", b.ID, "from", b.Status, "to", to, "actor_id", session.UserID)
	return updated, nil
}

func (s *bookingService) Delete(ctx context.Context, session auth.Session, id int64) error {
	if !session.IsAdmin() {
		return apperr.Forbidden("only admins can delete bookings")
	}
	return s.bookings.Delete(ctx, id)
}
