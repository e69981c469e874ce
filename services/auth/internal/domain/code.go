package domain

import (
	"time"

	"github.com/diagnosis/buildhub/pkg/apperr"
)

type Purpose string

const (
	PurposeEmailVerification Purpose = "email_verification"
	PurposePasswordReset     Purpose = "password_reset"
)

// VerificationCode is the one outstanding code of a given purpose for an
// account. Only the hash of the code is kept.
type VerificationCode struct {
	UserID    int64
	Purpose   Purpose
	CodeHash  string
	ExpiresAt time.Time
	Attempts  int
	CreatedAt time.Time
}

// Check decides whether code redeems c at now. Expiry wins over everything
// else, so an expired code reports Expired whether or not it matches.
func (c *VerificationCode) Check(code string, now time.Time, maxAttempts int, matches func(hash, code string) bool) error {
	if now.After(c.ExpiresAt) {
		return apperr.Expired("code has expired")
	}
	if maxAttempts > 0 && c.Attempts >= maxAttempts {
		return apperr.TooManyAttempts("too many attempts, request a new code")
	}
	if !matches(c.CodeHash, code) {
		return apperr.InvalidCode("invalid code")
	}
	return nil
}
