package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const audience = "buildhub-api"

// Account roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Token roles that never grant API access on their own.
const (
	TokenRefresh       = "refresh"
	TokenPasswordReset = "password_reset"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	Sub   int64  `json:"sub"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Scope string `json:"scope"`
	// Version binds password reset tokens to users.reset_version.
	Version int `json:"ver,omitempty"`
	jwt.RegisteredClaims
}

func newToken(claims Claims, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Audience:  []string{audience},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func NewAccessToken(sub int64, email, role, secret string, ttl time.Duration) (string, error) {
	return newToken(Claims{Sub: sub, Email: email, Role: role, Scope: ScopeFor(role)}, secret, ttl)
}

func NewRefreshToken(sub int64, email, secret string, ttl time.Duration) (string, error) {
	return newToken(Claims{Sub: sub, Email: email, Role: TokenRefresh, Scope: TokenRefresh}, secret, ttl)
}

// NewResetToken issues a token authorising exactly one password change for
// the account, valid while the account's reset version equals version.
func NewResetToken(sub int64, email string, version int, secret string, ttl time.Duration) (string, error) {
	return newToken(Claims{Sub: sub, Email: email, Role: TokenPasswordReset, Scope: "password:reset", Version: version}, secret, ttl)
}

func Parse(tokenString, secret string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
	)
	if err != nil {
		return nil, err
	}
	if claims, ok := tok.Claims.(*Claims); ok && tok.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// ParseRole parses the token and rejects it unless its role is one of roles.
func ParseRole(tokenString, secret string, roles ...string) (*Claims, error) {
	claims, err := Parse(tokenString, secret)
	if err != nil {
		return nil, err
	}
	for _, r := range roles {
		if claims.Role == r {
			return claims, nil
		}
	}
	return nil, ErrInvalidToken
}

func ScopeFor(role string) string {
	switch role {
	case RoleAdmin:
		return "admin:read admin:write bookings:read bookings:write users:read users:write services:write"
	case RoleUser:
		return "bookings:read:self bookings:write:self"
	default:
		return ""
	}
}

func IsValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}
