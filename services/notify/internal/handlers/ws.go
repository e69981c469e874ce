package handlers

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	mw "github.com/diagnosis/buildhub/internal/http/middleware"
	"github.com/diagnosis/buildhub/pkg/logger"
	"github.com/diagnosis/buildhub/services/notify/internal/hub"
)

type Handlers struct {
	hub       *hub.Hub
	jwtSecret string
	roles     mw.RoleSource
	upgrader  websocket.Upgrader
}

// New builds the WebSocket handlers. Origins lists the browser origins
// allowed to connect; an empty list accepts any origin.
func New(h *hub.Hub, jwtSecret string, origins []string) *Handlers {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &Handlers{
		hub:       h,
		jwtSecret: jwtSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowed) == 0 {
					return true
				}
				if allowed[origin] {
					return true
				}
				u, err := url.Parse(origin)
				return err == nil && u.Host == r.Host
			},
		},
	}
}

// WithRoleSource makes the handshake place the connection in rooms by the
// account's current role, not the one in the token.
func (h *Handlers) WithRoleSource(roles mw.RoleSource) *Handlers {
	h.roles = roles
	return h
}

func (h *Handlers) Routes(r chi.Router) {
	r.With(tokenFromQuery, mw.RequireAccount(h.jwtSecret, h.roles)).Get("/ws", h.ServeWS)
}

// tokenFromQuery lets browsers, which cannot set headers on a WebSocket
// handshake, pass the access token as ?token=.
func tokenFromQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if mw.BearerToken(r) == "" {
			if tok := r.URL.Query().Get("token"); tok != "" {
				r.Header.Set("Authorization", "Bearer "+tok)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) ServeWS(w http.ResponseWriter, r *http.Request) {
	session, _ := mw.SessionFrom(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logger.WarnContext(r.Context(), "WebSocket upgrade failed", "error", err)
		return
	}
	h.hub.Serve(conn, session)
}
