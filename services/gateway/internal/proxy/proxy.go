package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	mw "github.com/diagnosis/buildhub/internal/http/middleware"
	"github.com/diagnosis/buildhub/pkg/logger"
)

type ServiceProxy struct {
	name    string
	baseURL string
	client  *http.Client
}

func NewServiceProxy(name, baseURL string) *ServiceProxy {
	return &ServiceProxy{
		name:    name,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (p *ServiceProxy) Name() string { return p.name }

// ProxyRequest sends one request upstream. pathAndQuery is appended to the
// service base URL as is.
func (p *ServiceProxy) ProxyRequest(ctx context.Context, method, pathAndQuery string, body io.Reader, headers http.Header) (*http.Response, error) {
	target := p.baseURL + pathAndQuery

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	// Add request ID for tracing
	if requestID, ok := ctx.Value(logger.RequestIDKey).(string); ok && requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
	req.Header.Set(mw.GatewayForwardedHeader, "true")

	logger.DebugContext(ctx, "Proxying request",
		"service", p.name,
		"method", method,
		"url", target,
	)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", p.name, err)
	}
	return resp, nil
}

// NewWebSocketProxy builds a reverse proxy that forwards upgrade requests
// to target, rewriting the path to upstreamPath.
func NewWebSocketProxy(target, upstreamPath string) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("parse websocket target: %w", err)
	}
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.Out.URL.Path = upstreamPath
			pr.Out.URL.RawPath = ""
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.ErrorContext(r.Context(), "WebSocket proxy error", "error", err)
			w.WriteHeader(http.StatusBadGateway)
		},
	}, nil
}
