package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	mw "github.com/diagnosis/buildhub/internal/http/middleware"
	"github.com/diagnosis/buildhub/internal/http/response"
	"github.com/diagnosis/buildhub/pkg/auth"
	"github.com/diagnosis/buildhub/pkg/config"
	"github.com/diagnosis/buildhub/services/auth/internal/service"
)

type Handlers struct {
	authService     service.AuthService
	passwordService service.PasswordService
	config          *config.Config
	roles           mw.RoleSource
}

func New(authService service.AuthService, passwordService service.PasswordService, config *config.Config) *Handlers {
	return &Handlers{
		authService:     authService,
		passwordService: passwordService,
		config:          config,
	}
}

// WithRoleSource makes /me and the admin routes authorize on the account's
// current role instead of the role baked into the access token.
func (h *Handlers) WithRoleSource(roles mw.RoleSource) *Handlers {
	h.roles = roles
	return h
}

// Routes mounts the auth API. The rate limiter is skipped when rdb is nil.
func (h *Handlers) Routes(r chi.Router, rdb *redis.Client) {
	limit := func(next http.Handler) http.Handler { return next }
	if rdb != nil {
		limit = mw.NewRateLimiter(rdb, mw.RateLimitConfig{
			Requests: h.config.RateLimit.AuthRequests,
			Window:   h.config.RateLimit.AuthWindow,
			Scope:    "auth",
		}).Middleware()
	}

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limit)
			r.Post("/register", h.Register)
			r.Post("/verify-email", h.VerifyEmail)
			r.Post("/resend-verification", h.ResendVerification)
			r.Post("/login", h.Login)
			r.Post("/forgot-password", h.ForgotPassword)
			r.Post("/verify-reset-code", h.VerifyResetCode)
			r.Post("/reset-password", h.ResetPassword)
		})
		r.Post("/refresh", h.RefreshToken)

		r.With(mw.RequireAccount(h.config.Auth.JWTSecret, h.roles)).Get("/me", h.Me)
	})

	r.Route("/admin/users", func(r chi.Router) {
		r.Use(mw.RequireAccount(h.config.Auth.JWTSecret, h.roles, auth.RoleAdmin))
		r.Get("/", h.ListUsers)
		r.Get("/{id}", h.GetUser)
		r.Patch("/{id}/role", h.UpdateUserRole)
		r.Delete("/{id}", h.DeleteUser)
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

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "Invalid user ID")
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
