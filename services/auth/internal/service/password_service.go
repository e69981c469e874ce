package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexedwards/argon2id"

	"github.com/diagnosis/buildhub/pkg/apperr"
	"github.com/diagnosis/buildhub/pkg/auth"
	"github.com/diagnosis/buildhub/pkg/config"
	"github.com/diagnosis/buildhub/pkg/logger"
	"github.com/diagnosis/buildhub/pkg/validation"
	"github.com/diagnosis/buildhub/services/auth/internal/domain"
	"github.com/diagnosis/buildhub/services/auth/internal/mailer"
	"github.com/diagnosis/buildhub/services/auth/internal/repository"
)

type PasswordService interface {
	RequestReset(ctx context.Context, req *domain.EmailRequest) error
	VerifyResetCode(ctx context.Context, req *domain.VerifyCodeRequest) (*domain.ResetTokenResponse, error)
	ResetPassword(ctx context.Context, req *domain.ResetPasswordRequest) error
}

type passwordService struct {
	codeIssuer
	users  repository.UserRepository
	config config.AuthConfig
}

func NewPasswordService(
	users repository.UserRepository,
	codes repository.CodeRepository,
	m mailer.Service,
	cfg config.AuthConfig,
	opts ...Option,
) PasswordService {
	return &passwordService{
		codeIssuer: newCodeIssuer(codes, m, cfg.CodeLength, opts),
		users:      users,
		config:     cfg,
	}
}

// RequestReset issues a reset code for verified accounts. Unknown and
// unverified emails get the same outcome so callers can't enumerate accounts.
func (s *passwordService) RequestReset(ctx context.Context, req *domain.EmailRequest) error {
	req.Normalize()
	if err := validation.Struct(req); err != nil {
		return err
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.IsVerified() {
		logger.DebugContext(ctx, "Password reset requested for unknown or unverified email")
		return nil
	}
	if err := s.issue(ctx, user, domain.PurposePasswordReset, s.config.ResetCodeTTL); err != nil {
		return fmt.Errorf("failed to issue reset code: %w", err)
	}
	return nil
}

func (s *passwordService) VerifyResetCode(ctx context.Context, req *domain.VerifyCodeRequest) (*domain.ResetTokenResponse, error) {
	req.Normalize()
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.IsVerified() {
		return nil, apperr.InvalidCode("invalid code")
	}

	err = s.codes.Redeem(ctx, user.ID, domain.PurposePasswordReset, s.checker(req.Code, s.config.MaxCodeAttempts), false)
	if errors.Is(err, repository.ErrNoCode) {
		return nil, apperr.InvalidCode("invalid code")
	}
	if err != nil {
		return nil, err
	}

	token, err := auth.NewResetToken(user.ID, user.Email, user.ResetVersion, s.config.JWTSecret, s.config.ResetTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create reset token: %w", err)
	}
	return &domain.ResetTokenResponse{
		ResetToken: token,
		ExpiresIn:  int64(s.config.ResetTokenTTL.Seconds()),
	}, nil
}

func (s *passwordService) ResetPassword(ctx context.Context, req *domain.ResetPasswordRequest) error {
	claims, err := auth.ParseRole(req.ResetToken, s.config.JWTSecret, auth.TokenPasswordReset)
	if err != nil {
		return apperr.InvalidToken("invalid or expired reset token")
	}
	if err := validation.Struct(req); err != nil {
		return err
	}

	user, err := s.users.FindByID(ctx, claims.Sub)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || user.ResetVersion != claims.Version {
		return apperr.InvalidToken("invalid or expired reset token")
	}

	passwordHash, err := argon2id.CreateHash(req.NewPassword, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	updated, err := s.users.UpdatePassword(ctx, user.ID, passwordHash, claims.Version)
	if err != nil {
		return err
	}
	if !updated {
		return apperr.InvalidToken("invalid or expired reset token")
	}
	logger.InfoContext(ctx, "Password reset completed", "user_id", user.ID)
	return nil
}
