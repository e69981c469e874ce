package handlers

import (
	"net/http"

	mw "github.com/diagnosis/buildhub/internal/http/middleware"
	"github.com/diagnosis/buildhub/internal/http/response"
	"github.com/diagnosis/buildhub/services/bookings/internal/domain"
)

// ListAllBookings handles GET /admin/bookings?status=
func (h *Handlers) ListAllBookings(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	status := r.URL.Query().Get("status")

	bookings, err := h.bookingService.ListAll(r.Context(), status, limit, offset)
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

func (h *Handlers) DeleteBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "booking")
	if !ok {
		return
	}
	session, _ := mw.SessionFrom(r)

	if err := h.bookingService.Delete(r.Context(), session, id); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "Booking deleted")
}

func (h *Handlers) CreateService(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateServiceRequest
	if !decode(w, r, &req) {
		return
	}

	svc, err := h.catalogService.CreateService(r.Context(), &req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, map[string]any{"service": svc})
}

func (h *Handlers) UpdateService(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "service")
	if !ok {
		return
	}
	var req domain.UpdateServiceRequest
	if !decode(w, r, &req) {
		return
	}

	svc, err := h.catalogService.UpdateService(r.Context(), id, &req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"service": svc})
}

func (h *Handlers) DeleteService(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "service")
	if !ok {
		return
	}

	if err := h.catalogService.DeleteService(r.Context(), id); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "Service deleted")
}
