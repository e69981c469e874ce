package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	mw "github.com/diagnosis/buildhub/internal/http/middleware"
	"github.com/diagnosis/buildhub/internal/http/response"
	"github.com/diagnosis/buildhub/pkg/auth"
	"github.com/diagnosis/buildhub/services/bookings/internal/domain"
	"github.com/diagnosis/buildhub/services/bookings/internal/service"
)

type Handlers struct {
	bookingService service.BookingService
	catalogService service.CatalogService
	jwtSecret      string
	roles          mw.RoleSource
}

func New(bookingService service.BookingService, catalogService service.CatalogService, jwtSecret string) *Handlers {
	return &Handlers{
		bookingService: bookingService,
		catalogService: catalogService,
		jwtSecret:      jwtSecret,
	}
}

// WithRoleSource makes the authenticated routes authorize on the account's
// current role instead of the role baked into the access token.
func (h *Handlers) WithRoleSource(roles mw.RoleSource) *Handlers {
	h.roles = roles
	return h
}

func (h *Handlers) Routes(r chi.Router) {
	r.Route("/services", func(r chi.Router) {
		r.Get("/", h.ListServices)
		r.Get("/{slug}", h.GetService)
	})

	r.Route("/bookings", func(r chi.Router) {
		r.Use(mw.RequireAccount(h.jwtSecret, h.roles))
		r.Post("/", h.CreateBooking)
		r.Get("/", h.ListMyBookings)
		r.Get("/{id}", h.GetBooking)
		r.Put("/{id}/status", h.UpdateBookingStatus)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(mw.RequireAccount(h.jwtSecret, h.roles, auth.RoleAdmin))
		r.Get("/bookings", h.ListAllBookings)
		r.Delete("/bookings/{id}", h.DeleteBooking)
		r.Post("/services", h.CreateService)
		r.Put("/services/{id}", h.UpdateService)
		r.Delete("/services/{id}", h.DeleteService)
	})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return false
	}
	return true
}

func parseID(w http.ResponseWriter, r *http.Request, what string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "Invalid "+what+" ID")
		return 0, false
	}
	return id, true
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 20
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return limit, offset
}

func toDTOs(bookings []domain.Booking) []domain.BookingDTO {
	out := make([]domain.BookingDTO, len(bookings))
	for i := range bookings {
		out[i] = bookings[i].ToDTO()
	}
	return out
}
