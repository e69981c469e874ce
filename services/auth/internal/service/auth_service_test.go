package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/buildhub/pkg/apperr"
	"github.com/diagnosis/buildhub/pkg/auth"
	"github.com/diagnosis/buildhub/pkg/config"
	"github.com/diagnosis/buildhub/pkg/events"
	"github.com/diagnosis/buildhub/services/auth/internal/domain"
	"github.com/diagnosis/buildhub/services/auth/internal/service"
)

var testAuthConfig = config.AuthConfig{
	JWTSecret:           "test-secret",
	AccessTokenTTL:      15 * time.Minute,
	RefreshTokenTTL:     24 * time.Hour,
	VerificationCodeTTL: 10 * time.Minute,
	ResetCodeTTL:        10 * time.Minute,
	ResetTokenTTL:       15 * time.Minute,
	CodeLength:          6,
	MaxCodeAttempts:     5,
}

type harness struct {
	users     *fakeUsers
	codes     *fakeCodes
	mailer    *fakeMailer
	publisher *fakePublisher
	clock     *clock
	auth      service.AuthService
	passwords service.PasswordService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		users:     newFakeUsers(),
		mailer:    &fakeMailer{},
		publisher: &fakePublisher{},
		clock:     &clock{now: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)},
	}
	h.codes = newFakeCodes(h.users)
	opts := []service.Option{service.WithClock(h.clock.Now), service.WithHasher(plainHasher{})}
	h.auth = service.NewAuthService(h.users, h.codes, h.mailer, h.publisher, testAuthConfig, opts...)
	h.passwords = service.NewPasswordService(h.users, h.codes, h.mailer, testAuthConfig, opts...)
	return h
}

func (h *harness) register(t *testing.T, name, email, password string) *domain.User {
	t.Helper()
	require.NoError(t, h.auth.Register(context.Background(), &domain.RegisterRequest{Name: name, Email: email, Password: password}))
	u, err := h.users.FindByEmail(context.Background(), email)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}

func (h *harness) registerVerified(t *testing.T, email, password string) *domain.User {
	t.Helper()
	u := h.register(t, "Asha", email, password)
	_, err := h.auth.VerifyEmail(context.Background(), &domain.VerifyCodeRequest{Email: email, Code: h.mailer.last().code})
	require.NoError(t, err)
	return u
}

func TestRegisterThenVerify(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	u := h.register(t, "Asha", "Asha@X.com ", "Secret123")
	assert.Equal(t, "asha@x.com", u.Email)
	assert.Equal(t, domain.StatusPending, u.VerificationStatus)
	assert.Equal(t, auth.RoleUser, u.Role)

	code, ok := h.codes.get(u.ID, domain.PurposeEmailVerification)
	require.True(t, ok)
	assert.Equal(t, h.clock.Now().Add(10*time.Minute), code.ExpiresAt)

	sent := h.mailer.last()
	assert.Equal(t, "asha@x.com", sent.to)
	assert.Regexp(t, `^[0-9]{6}$`, sent.code)

	wrong := "000000"
	if sent.code == wrong {
		wrong = "111111"
	}
	_, err := h.auth.VerifyEmail(ctx, &domain.VerifyCodeRequest{Email: "asha@x.com", Code: wrong})
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidCode), "got %v", err)

	verified, err := h.auth.VerifyEmail(ctx, &domain.VerifyCodeRequest{Email: "asha@x.com", Code: sent.code})
	require.NoError(t, err)
	assert.True(t, verified.IsVerified())
	_, ok = h.codes.get(u.ID, domain.PurposeEmailVerification)
	assert.False(t, ok, "code must be consumed")
	assert.Equal(t, []string{events.UserVerified}, h.publisher.subjects)

	_, err = h.auth.VerifyEmail(ctx, &domain.VerifyCodeRequest{Email: "asha@x.com", Code: sent.code})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound), "second verify must fail, got %v", err)
}

func TestVerifyAfterExpiry(t *testing.T) {
	h := newHarness(t)
	h.register(t, "Asha", "asha@x.com", "Secret123")
	code := h.mailer.last().code

	h.clock.Advance(10*time.Minute + time.Second)
	_, err := h.auth.VerifyEmail(context.Background(), &domain.VerifyCodeRequest{Email: "asha@x.com", Code: code})
	assert.True(t, apperr.IsKind(err, apperr.KindExpired), "got %v", err)

	_, err = h.auth.VerifyEmail(context.Background(), &domain.VerifyCodeRequest{Email: "asha@x.com", Code: "999999"})
	assert.True(t, apperr.IsKind(err, apperr.KindExpired), "expiry wins regardless of code, got %v", err)
}

func TestVerifyAttemptCap(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.register(t, "Asha", "asha@x.com", "Secret123")
	code := h.mailer.last().code
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < testAuthConfig.MaxCodeAttempts; i++ {
		_, err := h.auth.VerifyEmail(ctx, &domain.VerifyCodeRequest{Email: "asha@x.com", Code: wrong})
		require.True(t, apperr.IsKind(err, apperr.KindInvalidCode))
	}
	_, err := h.auth.VerifyEmail(ctx, &domain.VerifyCodeRequest{Email: "asha@x.com", Code: code})
	assert.True(t, apperr.IsKind(err, apperr.KindTooManyAttempts), "got %v", err)

	require.NoError(t, h.auth.ResendVerification(ctx, &domain.EmailRequest{Email: "asha@x.com"}))
	_, err = h.auth.VerifyEmail(ctx, &domain.VerifyCodeRequest{Email: "asha@x.com", Code: h.mailer.last().code})
	assert.NoError(t, err)
}

func TestVerifyUnknownEmail(t *testing.T) {
	h := newHarness(t)
	_, err := h.auth.VerifyEmail(context.Background(), &domain.VerifyCodeRequest{Email: "nobody@x.com", Code: "123456"})
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)
	tests := []domain.RegisterRequest{
		{Name: "", Email: "a@x.com", Password: "Secret123"},
		{Name: "Asha", Email: "not-an-email", Password: "Secret123"},
		{Name: "Asha", Email: "a@x.com", Password: "short"},
	}
	for _, req := range tests {
		req := req
		err := h.auth.Register(context.Background(), &req)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation), "req %+v got %v", req, err)
	}
	assert.Empty(t, h.mailer.sent)
}

func TestRegisterExistingEmail(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	first := h.register(t, "Asha", "asha@x.com", "Secret123")
	firstCode := h.mailer.last().code
	h.clock.Advance(testAuthConfig.VerificationCodeTTL + time.Second)
	second := h.register(t, "Asha K", "asha@x.com", "Secret456")
	assert.Equal(t, first.ID, second.ID, "pending account is reused once its code expired")
	assert.Equal(t, "Asha K", second.Name)
	assert.Len(t, h.mailer.sent, 2)

	if firstCode != h.mailer.last().code {
		_, err := h.auth.VerifyEmail(ctx, &domain.VerifyCodeRequest{Email: "asha@x.com", Code: firstCode})
		assert.True(t, apperr.IsKind(err, apperr.KindInvalidCode), "old code is replaced")
	}
	_, err := h.auth.VerifyEmail(ctx, &domain.VerifyCodeRequest{Email: "asha@x.com", Code: h.mailer.last().code})
	require.NoError(t, err)

	err = h.auth.Register(ctx, &domain.RegisterRequest{Name: "Eve", Email: "asha@x.com", Password: "Secret789"})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "EMAIL_EXISTS", ae.Code)
}

func TestRegisterCannotHijackLivePendingAccount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	victim := h.register(t, "Asha", "asha@x.com", "Secret123")

	err := h.auth.Register(ctx, &domain.RegisterRequest{Name: "Eve", Email: "asha@x.com", Password: "Attacker99"})
	require.Error(t, err)
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "REGISTRATION_PENDING", ae.Code)
	assert.Len(t, h.mailer.sent, 1, "no code is issued for the rejected attempt")

	_, err = h.auth.VerifyEmail(ctx, &domain.VerifyCodeRequest{Email: "asha@x.com", Code: h.mailer.last().code})
	require.NoError(t, err)

	_, err = h.auth.Login(ctx, &domain.LoginRequest{Email: "asha@x.com", Password: "Attacker99"})
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	resp, err := h.auth.Login(ctx, &domain.LoginRequest{Email: "asha@x.com", Password: "Secret123"})
	require.NoError(t, err)
	assert.Equal(t, victim.ID, resp.User.ID)
}

func TestRegisterAgainWithSamePasswordResendsCode(t *testing.T) {
	h := newHarness(t)
	first := h.register(t, "Asha", "asha@x.com", "Secret123")
	second := h.register(t, "Asha", "asha@x.com", "Secret123")

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.PasswordHash, second.PasswordHash)
	assert.Len(t, h.mailer.sent, 2)

	_, err := h.auth.VerifyEmail(context.Background(), &domain.VerifyCodeRequest{Email: "asha@x.com", Code: h.mailer.last().code})
	require.NoError(t, err)
}

func TestRegisterMailFailureIsNotSurfaced(t *testing.T) {
	h := newHarness(t)
	h.mailer.err = errors.New("smtp down")
	assert.NoError(t, h.auth.Register(context.Background(), &domain.RegisterRequest{Name: "Asha", Email: "asha@x.com", Password: "Secret123"}))
}

func TestResendVerificationIsNeutral(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.registerVerified(t, "asha@x.com", "Secret123")
	sent := len(h.mailer.sent)

	assert.NoError(t, h.auth.ResendVerification(ctx, &domain.EmailRequest{Email: "nobody@x.com"}))
	assert.NoError(t, h.auth.ResendVerification(ctx, &domain.EmailRequest{Email: "asha@x.com"}))
	assert.Len(t, h.mailer.sent, sent, "no mail for unknown or verified accounts")
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.register(t, "Asha", "asha@x.com", "Secret123")
	_, err := h.auth.Login(ctx, &domain.LoginRequest{Email: "asha@x.com", Password: "Secret123"})
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden), "pending accounts cannot log in, got %v", err)

	_, err = h.auth.VerifyEmail(ctx, &domain.VerifyCodeRequest{Email: "asha@x.com", Code: h.mailer.last().code})
	require.NoError(t, err)

	_, err = h.auth.Login(ctx, &domain.LoginRequest{Email: "asha@x.com", Password: "wrong-password"})
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))
	_, err = h.auth.Login(ctx, &domain.LoginRequest{Email: "nobody@x.com", Password: "Secret123"})
	assert.True(t, apperr.IsKind(err, apperr.KindUnauthorized))

	resp, err := h.auth.Login(ctx, &domain.LoginRequest{Email: " ASHA@x.com", Password: "Secret123"})
	require.NoError(t, err)
	assert.True(t, resp.User.IsVerified)

	claims, err := auth.ParseRole(resp.AccessToken, testAuthConfig.JWTSecret, auth.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.Sub)

	refreshed, err := h.auth.Refresh(ctx, &domain.RefreshTokenRequest{RefreshToken: resp.RefreshToken})
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	_, err = h.auth.Refresh(ctx, &domain.RefreshTokenRequest{RefreshToken: resp.AccessToken})
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidToken), "access token is not a refresh token")
}

func TestAdminUserManagement(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	admin := h.registerVerified(t, "admin@x.com", "Secret123")
	user := h.registerVerified(t, "user@x.com", "Secret123")
	session := auth.Session{UserID: admin.ID, Email: admin.Email, Role: auth.RoleAdmin}

	users, err := h.auth.ListUsers(ctx, 20, 0)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	updated, err := h.auth.UpdateUserRole(ctx, session, user.ID, &domain.UpdateUserRoleRequest{Role: auth.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, updated.Role)

	_, err = h.auth.UpdateUserRole(ctx, session, user.ID, &domain.UpdateUserRoleRequest{Role: "superuser"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	_, err = h.auth.UpdateUserRole(ctx, session, admin.ID, &domain.UpdateUserRoleRequest{Role: auth.RoleUser})
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	assert.True(t, apperr.IsKind(h.auth.DeleteUser(ctx, session, admin.ID), apperr.KindForbidden))
	require.NoError(t, h.auth.DeleteUser(ctx, session, user.ID))
	assert.True(t, apperr.IsKind(h.auth.DeleteUser(ctx, session, user.ID), apperr.KindNotFound))

	_, err = h.auth.GetUser(ctx, user.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	me, err := h.auth.Me(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, me.ID)
}

func TestAccessChangesArePublished(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	admin := h.registerVerified(t, "admin@x.com", "Secret123")
	user := h.registerVerified(t, "user@x.com", "Secret123")
	session := auth.Session{UserID: admin.ID, Email: admin.Email, Role: auth.RoleAdmin}
	h.publisher.subjects = nil

	_, err := h.auth.UpdateUserRole(ctx, session, user.ID, &domain.UpdateUserRoleRequest{Role: auth.RoleAdmin})
	require.NoError(t, err)
	_, err = h.auth.UpdateUserRole(ctx, session, admin.ID, &domain.UpdateUserRoleRequest{Role: auth.RoleUser})
	require.Error(t, err)
	require.NoError(t, h.auth.DeleteUser(ctx, session, user.ID))
	require.Error(t, h.auth.DeleteUser(ctx, session, user.ID))

	assert.Equal(t, []string{events.UserRoleChanged, events.UserDeleted}, h.publisher.subjects)
}
