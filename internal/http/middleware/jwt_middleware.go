package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/diagnosis/buildhub/internal/http/response"
	"github.com/diagnosis/buildhub/pkg/auth"
	"github.com/diagnosis/buildhub/pkg/logger"
)

type ctxKey string

const ctxSession ctxKey = "session"

// RoleSource reports an account's current role. ok is false once the account
// no longer exists.
type RoleSource interface {
	CurrentRole(ctx context.Context, userID int64) (role string, ok bool, err error)
}

// RequireAuth accepts only access tokens whose role is in roles (any account
// role when roles is empty) and stores the caller's Session in the context.
func RequireAuth(secret string, roles ...string) func(http.Handler) http.Handler {
	return RequireAccount(secret, nil, roles...)
}

// RequireAccount is RequireAuth with the token's role replaced by the one
// source holds now, so a demoted or deleted account loses access before its
// token expires. A nil source trusts the token.
func RequireAccount(secret string, source RoleSource, roles ...string) func(http.Handler) http.Handler {
	if len(roles) == 0 {
		roles = []string{auth.RoleUser, auth.RoleAdmin}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := BearerToken(r)
			if raw == "" {
				response.Unauthorized(w, "Missing or invalid authorization header")
				return
			}
			claims, err := auth.Parse(raw, secret)
			if err != nil || !auth.IsValidRole(claims.Role) {
				response.WriteError(w, http.StatusUnauthorized, "Invalid or expired token", response.CodeInvalidToken)
				return
			}

			session := auth.SessionFromClaims(claims)
			if source != nil {
				role, ok, err := source.CurrentRole(r.Context(), session.UserID)
				if err != nil {
					logger.ErrorContext(r.Context(), "Role lookup failed", "error", err, "user_id", session.UserID)
					response.InternalError(w, "Internal server error")
					return
				}
				if !ok {
					response.WriteError(w, http.StatusUnauthorized, "Account no longer exists", response.CodeInvalidToken)
					return
				}
				session.Role = role
			}
			if !hasRole(session.Role, roles) {
				response.Forbidden(w, "Insufficient permissions")
				return
			}

			ctx := WithSession(r.Context(), session)
			ctx = context.WithValue(ctx, logger.UserIDKey, session.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func hasRole(role string, roles []string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// BearerToken reads the token from the Authorization header.
func BearerToken(r *http.Request) string {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authz) < len("bearer ")+1 || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("bearer "):])
}

func WithSession(ctx context.Context, s auth.Session) context.Context {
	return context.WithValue(ctx, ctxSession, s)
}

func SessionFrom(r *http.Request) (auth.Session, bool) {
	s, ok := r.Context().Value(ctxSession).(auth.Session)
	return s, ok
}
