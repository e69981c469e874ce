package middleware

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/diagnosis/buildhub/internal/http/response"
	"github.com/diagnosis/buildhub/pkg/logger"
)

// RateLimitConfig defines rate limiting parameters
type RateLimitConfig struct {
	Requests int           // Max requests per window
	Window   time.Duration // Time window duration
	Scope    string
	KeyFunc  func(r *http.Request) string
}

// RateLimiter is a fixed-window limiter backed by Redis. When Redis is
// unavailable requests are allowed through.
type RateLimiter struct {
	client *redis.Client
	config RateLimitConfig
}

func NewRateLimiter(client *redis.Client, config RateLimitConfig) *RateLimiter {
	if config.KeyFunc == nil {
		config.KeyFunc = ClientIP
	}
	if config.Scope == "" {
		config.Scope = "api"
	}
	return &RateLimiter{client: client, config: config}
}

var windowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

// Allow counts one hit for key and reports whether it fits in the window.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	sum := sha256.Sum256([]byte(key))
	redisKey := fmt.Sprintf("ratelimit:%s:%x", rl.config.Scope, sum)

	res, err := windowScript.Run(ctx, rl.client, []string{redisKey}, rl.config.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, err
	}
	count, ttl := res[0], time.Duration(res[1])*time.Millisecond
	return count <= int64(rl.config.Requests), ttl, nil
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, retryAfter, err := rl.Allow(r.Context(), rl.config.KeyFunc(r))
			if err != nil {
				logger.WarnContext(r.Context(), "Rate limiter backend unavailable, allowing request",
					"scope", rl.config.Scope,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				secs := int(retryAfter.Round(time.Second).Seconds())
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				response.RateLimit(w, "Too many requests. Try again later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

const (
	// GatewayForwardedHeader marks requests relayed by the gateway.
	GatewayForwardedHeader = "X-Gateway-Forwarded"
	// RealIPHeader carries the client address the gateway saw.
	RealIPHeader = "X-Real-IP"
)

// ClientIP returns the address to rate limit on. X-Real-IP is honoured only
// on requests the gateway marked, since the gateway overwrites it with the
// peer address. Client-supplied X-Forwarded-For is never trusted.
func ClientIP(r *http.Request) string {
	if r.Header.Get(GatewayForwardedHeader) != "" {
		if ip := strings.TrimSpace(r.Header.Get(RealIPHeader)); ip != "" {
			return ip
		}
	}
	return RemoteIP(r)
}

// RemoteIP is the host part of the connection's peer address.
func RemoteIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
