package service

import (
	"context"
	"fmt"
	"time"

	"github.com/diagnosis/buildhub/pkg/logger"
	"github.com/diagnosis/buildhub/services/auth/internal/domain"
	"github.com/diagnosis/buildhub/services/auth/internal/mailer"
	"github.com/diagnosis/buildhub/services/auth/internal/otp"
	"github.com/diagnosis/buildhub/services/auth/internal/repository"
)

// codeIssuer is shared by the registration and password reset flows.
type codeIssuer struct {
	codes    repository.CodeRepository
	mailer   mailer.Service
	hasher   otp.Hasher
	generate func(digits int) (string, error)
	digits   int
	now      func() time.Time
}

type Option func(*codeIssuer)

func WithClock(now func() time.Time) Option {
	return func(c *codeIssuer) { c.now = now }
}

func WithHasher(h otp.Hasher) Option {
	return func(c *codeIssuer) { c.hasher = h }
}

func WithCodeGenerator(gen func(digits int) (string, error)) Option {
	return func(c *codeIssuer) { c.generate = gen }
}

func newCodeIssuer(codes repository.CodeRepository, m mailer.Service, digits int, opts []Option) codeIssuer {
	c := codeIssuer{
		codes:    codes,
		mailer:   m,
		hasher:   otp.NewBcryptHasher(),
		generate: otp.Generate,
		digits:   digits,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// issue stores a fresh code for user and mails it. Mail failures are logged
// only; the caller's response must not depend on delivery.
func (c *codeIssuer) issue(ctx context.Context, user *domain.User, purpose domain.Purpose, ttl time.Duration) error {
	code, err := c.generate(c.digits)
	if err != nil {
		return err
	}
	hash, err := c.hasher.Hash(code)
	if err != nil {
		return err
	}
	if err := c.codes.Upsert(ctx, &domain.VerificationCode{
		UserID:    user.ID,
		Purpose:   purpose,
		CodeHash:  hash,
		ExpiresAt: c.now().Add(ttl),
	}); err != nil {
		return fmt.Errorf("failed to store %s code: %w", purpose, err)
	}

	send := c.mailer.SendVerificationCode
	if purpose == domain.PurposePasswordReset {
		send = c.mailer.SendPasswordResetCode
	}
	if err := send(ctx, user.Email, user.Name, code, ttl); err != nil {
		logger.ErrorContext(ctx, "Failed to send code email", "error", err, "user_id", user.ID, "purpose", purpose)
	}
	return nil
}

// checker builds the check Redeem runs under the row lock.
func (c *codeIssuer) checker(code string, maxAttempts int) func(*domain.VerificationCode) error {
	now := c.now()
	return func(vc *domain.VerificationCode) error {
		return vc.Check(code, now, maxAttempts, c.hasher.Matches)
	}
}
