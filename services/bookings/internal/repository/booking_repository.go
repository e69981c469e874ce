package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/buildhub/pkg/apperr"
	"github.com/diagnosis/buildhub/pkg/database"
	"github.com/diagnosis/buildhub/pkg/events"
	"github.com/diagnosis/buildhub/services/bookings/internal/domain"
	"github.com/diagnosis/buildhub/services/bookings/internal/outbox"
)

// ErrStaleStatus is returned by UpdateStatus when the booking's status is no
// longer the one the caller checked against.
var ErrStaleStatus = errors.New("booking status changed concurrently")

type BookingRepository interface {
	// Create inserts the booking and its booking.created outbox row. When
	// idempotencyKey was already used by the same user the earlier booking is
	// returned with replayed set.
	Create(ctx context.Context, b *domain.Booking, idempotencyKey string) (booking *domain.Booking, replayed bool, err error)
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	ListByUserID(ctx context.Context, userID int64, limit, offset int) ([]domain.Booking, error)
	List(ctx context.Context, status *domain.BookingStatus, limit, offset int) ([]domain.Booking, error)
	// UpdateStatus moves the booking from one status to another and writes
	// the booking.updated outbox row in the same transaction.
	UpdateStatus(ctx context.Context, id int64, from, to domain.BookingStatus, change events.BookingStatusChangedEvent) (*domain.Booking, error)
	Delete(ctx context.Context, id int64) error
}

type bookingRepository struct {
	pool *pgxpool.Pool
}

func NewBookingRepository(pool *pgxpool.Pool) BookingRepository {
	return &bookingRepository{pool: pool}
}

const bookingCols = `id, user_id, service_id, booking_type, booking_date, time_slot, status,
contact_name, contact_email, contact_phone,
address_street, address_city, address_state, address_postal_code,
notes, created_at, updated_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(
		&b.ID, &b.UserID, &b.ServiceID, &b.BookingType, &b.BookingDate, &b.TimeSlot, &b.Status,
		&b.Contact.Name, &b.Contact.Email, &b.Contact.Phone,
		&b.Address.Street, &b.Address.City, &b.Address.State, &b.Address.PostalCode,
		&b.Notes, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]domain.Booking, error) {
	defer rows.Close()
	out := []domain.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (r *bookingRepository) Create(ctx context.Context, b *domain.Booking, idempotencyKey string) (*domain.Booking, bool, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin create booking: %w", err)
	}
	defer tx.Rollback(ctx)

	if idempotencyKey != "" {
		existingID, err := lookupIdempotency(ctx, tx, idempotencyKey, b.UserID)
		if err != nil {
			return nil, false, err
		}
		if existingID > 0 {
			existing, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id = $1`, existingID))
			if err != nil {
				return nil, false, fmt.Errorf("load replayed booking: %w", err)
			}
			return existing, true, nil
		}
	}

	const q = `INSERT INTO bookings (
		user_id, service_id, booking_type, booking_date, time_slot, status,
		contact_name, contact_email, contact_phone,
		address_street, address_city, address_state, address_postal_code, notes
	) VALUES ($1,$2,$3,$4,$5,'pending',$6,$7,$8,$9,$10,$11,$12,$13)
	RETURNING ` + bookingCols

	created, err := scanBooking(tx.QueryRow(ctx, q,
		b.UserID, b.ServiceID, b.BookingType, b.BookingDate, b.TimeSlot,
		b.Contact.Name, b.Contact.Email, b.Contact.Phone,
		b.Address.Street, b.Address.City, b.Address.State, b.Address.PostalCode, b.Notes,
	))
	if err != nil {
		return nil, false, fmt.Errorf("insert booking: %w", err)
	}

	ev, err := events.NewEvent(events.BookingCreated, created.UserID, domain.EventData{Booking: created.ToDTO()})
	if err != nil {
		return nil, false, err
	}
	if err := outbox.Enqueue(ctx, tx, ev); err != nil {
		return nil, false, err
	}

	if idempotencyKey != "" {
		if err := recordIdempotency(ctx, tx, idempotencyKey, b.UserID, created.ID); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit booking: %w", err)
	}
	return created, false, nil
}

func (r *bookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	b, err := scanBooking(r.pool.QueryRow(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func (r *bookingRepository) ListByUserID(ctx context.Context, userID int64, limit, offset int) ([]domain.Booking, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingCols+` FROM bookings
		WHERE user_id = $1
		ORDER BY booking_date DESC, id DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list user bookings: %w", err)
	}
	return collectBookings(rows)
}

func (r *bookingRepository) List(ctx context.Context, status *domain.BookingStatus, limit, offset int) ([]domain.Booking, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingCols+` FROM bookings
		WHERE $1::text IS NULL OR status = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return collectBookings(rows)
}

func (r *bookingRepository) UpdateStatus(ctx context.Context, id int64, from, to domain.BookingStatus, change events.BookingStatusChangedEvent) (*domain.Booking, error) {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	var updated *domain.Booking
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		b, err := scanBooking(tx.QueryRow(ctx, `
			UPDATE bookings SET status = $3, updated_at = now()
			WHERE id = $1 AND status = $2
			RETURNING `+bookingCols, id, from, to))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrStaleStatus
		}
		if err != nil {
			return fmt.Errorf("update booking status: %w", err)
		}

		ev, err := events.NewEvent(events.BookingUpdated, b.UserID, domain.EventData{Booking: b.ToDTO(), Change: &change})
		if err != nil {
			return err
		}
		if err := outbox.Enqueue(ctx, tx, ev); err != nil {
			return err
		}
		updated = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *bookingRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := database.WithTimeout(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("booking not found")
	}
	return nil
}
