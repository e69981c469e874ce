package handlers

import (
	"net/http"
	"strings"

	mw "github.com/diagnosis/buildhub/internal/http/middleware"
	"github.com/diagnosis/buildhub/internal/http/response"
	"github.com/diagnosis/buildhub/services/bookings/internal/domain"
)

const maxIdempotencyKeyLen = 255

// CreateBooking handles POST /bookings. A repeated Idempotency-Key returns
// the original booking with 200 instead of 201.
func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if len(key) > maxIdempotencyKeyLen {
		response.BadRequest(w, "Idempotency-Key is too long")
		return
	}

	var req domain.CreateBookingRequest
	if !decode(w, r, &req) {
		return
	}
	session, _ := mw.SessionFrom(r)

	booking, replayed, err := h.bookingService.Create(r.Context(), session, &req, key)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	status := http.StatusCreated
	if replayed {
		w.Header().Set("Idempotent-Replayed", "true")
		status = http.StatusOK
	}
	response.JSON(w, status, map[string]any{"booking": booking.ToDTO()})
}

func (h *Handlers) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	session, _ := mw.SessionFrom(r)

	bookings, err := h.bookingService.ListMine(r.Context(), session, limit, offset)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"bookings": toDTOs(bookings),
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "booking")
	if !ok {
		return
	}
	session, _ := mw.SessionFrom(r)

	booking, err := h.bookingService.Get(r.Context(), session, id)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"booking": booking.ToDTO()})
}

// UpdateBookingStatus handles PUT /bookings/{id}/status for owners
// (cancel only) and admins.
func (h *Handlers) UpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "booking")
	if !ok {
		return
	}
	var req domain.UpdateStatusRequest
	if !decode(w, r, &req) {
		return
	}
	session, _ := mw.SessionFrom(r)

	booking, err := h.bookingService.UpdateStatus(r.Context(), session, id, &req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"booking": booking.ToDTO()})
}
