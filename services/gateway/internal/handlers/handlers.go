package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	mw "github.com/diagnosis/buildhub/internal/http/middleware"
	"github.com/diagnosis/buildhub/internal/http/response"
	"github.com/diagnosis/buildhub/pkg/auth"
	"github.com/diagnosis/buildhub/pkg/logger"
	"github.com/diagnosis/buildhub/services/gateway/internal/proxy"
)

const apiPrefix = "/v1"

type Handlers struct {
	authProxy     *proxy.ServiceProxy
	bookingsProxy *proxy.ServiceProxy
	wsProxy       http.Handler
	jwtSecret     string
}

func New(authProxy, bookingsProxy *proxy.ServiceProxy, wsProxy http.Handler, jwtSecret string) *Handlers {
	return &Handlers{
		authProxy:     authProxy,
		bookingsProxy: bookingsProxy,
		wsProxy:       wsProxy,
		jwtSecret:     jwtSecret,
	}
}

// Routes mounts the public /v1 surface. Services enforce authorization
// themselves; admin prefixes are also checked here so bad tokens never
// reach them.
func (h *Handlers) Routes(r chi.Router) {
	r.Route(apiPrefix, func(r chi.Router) {
		r.Handle("/auth/*", h.to(h.authProxy))
		r.Handle("/services", h.to(h.bookingsProxy))
		r.Handle("/services/*", h.to(h.bookingsProxy))
		r.Handle("/bookings", h.to(h.bookingsProxy))
		r.Handle("/bookings/*", h.to(h.bookingsProxy))

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAuth(h.jwtSecret, auth.RoleAdmin))
			r.Handle("/admin/users", h.to(h.authProxy))
			r.Handle("/admin/users/*", h.to(h.authProxy))
			r.Handle("/admin/bookings", h.to(h.bookingsProxy))
			r.Handle("/admin/bookings/*", h.to(h.bookingsProxy))
			r.Handle("/admin/services", h.to(h.bookingsProxy))
			r.Handle("/admin/services/*", h.to(h.bookingsProxy))
		})

		r.Get("/ws", h.wsProxy.ServeHTTP)
	})
}

// to forwards the request to p with the /v1 prefix stripped.
func (h *Handlers) to(p *proxy.ServiceProxy) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, apiPrefix)
		if r.URL.RawQuery != "" {
			path += "?" + r.URL.RawQuery
		}
		h.proxyRequest(w, r, p, path)
	})
}

func (h *Handlers) proxyRequest(w http.ResponseWriter, r *http.Request, serviceProxy *proxy.ServiceProxy, path string) {
	var body io.Reader
	if r.ContentLength != 0 {
		body = http.MaxBytesReader(w, r.Body, 1<<20)
	}

	headers := make(http.Header)
	for key, values := range r.Header {
		if shouldCopyHeader(key) {
			headers[key] = values
		}
	}
	// The gateway is the edge: client-sent forwarding headers are replaced
	// with the connection's peer address.
	clientIP := mw.RemoteIP(r)
	headers.Set("X-Forwarded-For", clientIP)
	headers.Set(mw.RealIPHeader, clientIP)

	resp, err := serviceProxy.ProxyRequest(r.Context(), r.Method, path, body, headers)
	if err != nil {
		logger.ErrorContext(r.Context(), "Service proxy error", "error", err, "service", serviceProxy.Name(), "path", path)
		response.WriteError(w, http.StatusServiceUnavailable, "Service unavailable", "SERVICE_UNAVAILABLE")
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		if !shouldCopyHeader(key) {
			continue
		}
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.ErrorContext(r.Context(), "Failed to copy response body", "error", err)
	}
}

var hopHeaders = map[string]bool{
	"host":                true,
	"connection":          true,
	"upgrade":             true,
	"keep-alive":          true,
	"proxy-connection":    true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"content-length":      true,
	// Set by the gateway's own CORS middleware.
	"access-control-allow-origin":      true,
	"access-control-allow-credentials": true,
}

func shouldCopyHeader(key string) bool {
	return !hopHeaders[strings.ToLower(key)]
}
