package service

import (
	"context"
	"fmt"

	"github.com/alexedwards/argon2id"

	"github.com/diagnosis/buildhub/pkg/apperr"
	"github.com/diagnosis/buildhub/pkg/auth"
	"github.com/diagnosis/buildhub/pkg/config"
	"github.com/diagnosis/buildhub/pkg/events"
	"github.com/diagnosis/buildhub/pkg/logger"
	"github.com/diagnosis/buildhub/pkg/validation"
	"github.com/diagnosis/buildhub/services/auth/internal/domain"
	"github.com/diagnosis/buildhub/services/auth/internal/mailer"
	"github.com/diagnosis/buildhub/services/auth/internal/repository"
)

type AuthService interface {
	Register(ctx context.Context, req *domain.RegisterRequest) error
	VerifyEmail(ctx context.Context, req *domain.VerifyCodeRequest) (*domain.User, error)
	ResendVerification(ctx context.Context, req *domain.EmailRequest) error
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error)
	Refresh(ctx context.Context, req *domain.RefreshTokenRequest) (*domain.LoginResponse, error)
	Me(ctx context.Context, session auth.Session) (*domain.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	UpdateUserRole(ctx context.Context, session auth.Session, id int64, req *domain.UpdateUserRoleRequest) (*domain.User, error)
	DeleteUser(ctx context.Context, session auth.Session, id int64) error
}

type authService struct {
	codeIssuer
	users     repository.UserRepository
	publisher events.Publisher
	config    config.AuthConfig
}

func NewAuthService(
	users repository.UserRepository,
	codes repository.CodeRepository,
	m mailer.Service,
	publisher events.Publisher,
	cfg config.AuthConfig,
	opts ...Option,
) AuthService {
	return &authService{
		codeIssuer: newCodeIssuer(codes, m, cfg.CodeLength, opts),
		users:      users,
		publisher:  publisher,
		config:     cfg,
	}
}

func (s *authService) Register(ctx context.Context, req *domain.RegisterRequest) error {
	req.Normalize()
	if err := validation.Struct(req); err != nil {
		return err
	}

	existing, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil && existing.IsVerified() {
		return repository.ErrEmailTaken
	}
	if existing != nil {
		// Repeating the registration with the same password is a resend.
		same, err := argon2id.ComparePasswordAndHash(req.Password, existing.PasswordHash)
		if err != nil {
			return fmt.Errorf("failed to compare password: %w", err)
		}
		if same {
			if err := s.issue(ctx, existing, domain.PurposeEmailVerification, s.config.VerificationCodeTTL); err != nil {
				return fmt.Errorf("failed to issue verification code: %w", err)
			}
			return nil
		}
	}

	passwordHash, err := argon2id.CreateHash(req.Password, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.users.UpsertPending(ctx, &domain.User{
		Role:         auth.RoleUser,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Name:         req.Name,
		Phone:        req.Phone,
	}, s.now())
	if err != nil {
		return err
	}

	if err := s.issue(ctx, user, domain.PurposeEmailVerification, s.config.VerificationCodeTTL); err != nil {
		return fmt.Errorf("failed to issue verification code: %w", err)
	}
	logger.InfoContext(ctx, "Pending account registered", "user_id", user.ID)
	return nil
}

func (s *authService) VerifyEmail(ctx context.Context, req *domain.VerifyCodeRequest) (*domain.User, error) {
	req.Normalize()
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || user.IsVerified() {
		return nil, apperr.NotFound("no pending account for this email")
	}

	err = s.codes.Redeem(ctx, user.ID, domain.PurposeEmailVerification, s.checker(req.Code, s.config.MaxCodeAttempts), true)
	if err != nil {
		return nil, err
	}
	user.VerificationStatus = domain.StatusVerified

	s.publishVerified(ctx, user)
	return user, nil
}

func (s *authService) publishVerified(ctx context.Context, user *domain.User) {
	if s.publisher == nil {
		return
	}
	ev, err := events.NewEvent(events.UserVerified, user.ID, events.UserVerifiedEvent{
		UserID:     user.ID,
		Email:      user.Email,
		VerifiedAt: s.now().UTC(),
	})
	if err == nil {
		err = s.publisher.Publish(ctx, events.UserVerified, ev)
	}
	if err != nil {
		logger.WarnContext(ctx, "Failed to publish user verified event", "error", err, "user_id", user.ID)
	}
}

func (s *authService) ResendVerification(ctx context.Context, req *domain.EmailRequest) error {
	req.Normalize()
	if err := validation.Struct(req); err != nil {
		return err
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	// Don't reveal whether the account exists or is already verified
	if user == nil || user.IsVerified() {
		return nil
	}
	if err := s.issue(ctx, user, domain.PurposeEmailVerification, s.config.VerificationCodeTTL); err != nil {
		return fmt.Errorf("failed to issue verification code: %w", err)
	}
	return nil
}

func (s *authService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	req.Normalize()
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, apperr.Unauthorized("invalid credentials")
	}

	valid, err := argon2id.ComparePasswordAndHash(req.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !valid {
		return nil, apperr.Unauthorized("invalid credentials")
	}
	if !user.IsVerified() {
		return nil, apperr.Forbidden("email not verified").WithCode("EMAIL_NOT_VERIFIED")
	}

	refreshToken, err := auth.NewRefreshToken(user.ID, user.Email, s.config.JWTSecret, s.config.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh token: %w", err)
	}
	return s.loginResponse(user, refreshToken)
}

func (s *authService) Refresh(ctx context.Context, req *domain.RefreshTokenRequest) (*domain.LoginResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	claims, err := auth.ParseRole(req.RefreshToken, s.config.JWTSecret, auth.TokenRefresh)
	if err != nil {
		return nil, apperr.InvalidToken("invalid refresh token")
	}

	user, err := s.users.FindByID(ctx, claims.Sub)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.IsVerified() {
		return nil, apperr.InvalidToken("invalid refresh token")
	}
	return s.loginResponse(user, req.RefreshToken)
}

func (s *authService) loginResponse(user *domain.User, refreshToken string) (*domain.LoginResponse, error) {
	accessToken, err := auth.NewAccessToken(user.ID, user.Email, user.Role, s.config.JWTSecret, s.config.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}
	return &domain.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.config.AccessTokenTTL.Seconds()),
		User:         user.ToUserInfo(),
	}, nil
}

func (s *authService) Me(ctx context.Context, session auth.Session) (*domain.User, error) {
	return s.GetUser(ctx, session.UserID)
}

func (s *authService) ListUsers(ctx context.Context, limit, offset int) ([]domain.User, error) {
	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (s *authService) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, apperr.NotFound("user not found")
	}
	return user, nil
}

func (s *authService) UpdateUserRole(ctx context.Context, session auth.Session, id int64, req *domain.UpdateUserRoleRequest) (*domain.User, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if id == session.UserID {
		return nil, apperr.Forbidden("admins cannot change their own role")
	}
	user, err := s.users.UpdateRole(ctx, id, req.Role)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "User role updated", "target_user_id", id, "role", req.Role)
	s.publishAccessChanged(ctx, events.UserRoleChanged, session, id, user.Role)
	return user, nil
}

func (s *authService) DeleteUser(ctx context.Context, session auth.Session, id int64) error {
	if id == session.UserID {
		return apperr.Forbidden("admins cannot delete their own account")
	}
	if err := s.users.Delete(ctx, id); err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	s.publishAccessChanged(ctx, events.UserDeleted, session, id, "")
	return nil
}

func (s *authService) publishAccessChanged(ctx context.Context, subject string, actor auth.Session, id int64, role string) {
	if s.publisher == nil {
		return
	}
	ev, err := events.NewEvent(subject, id, events.UserAccessChangedEvent{
		UserID:    id,
		Role:      role,
		ActorID:   actor.UserID,
		ChangedAt: s.now().UTC(),
	})
	if err == nil {
		err = s.publisher.Publish(ctx, subject, ev)
	}
	if err != nil {
		logger.WarnContext(ctx, "Failed to publish user access event", "error", err, "subject", subject, "user_id", id)
	}
}
