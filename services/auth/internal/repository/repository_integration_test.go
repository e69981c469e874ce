//go:build integration

package repository

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/buildhub/internal/testutil/pgtest"
	"github.com/diagnosis/buildhub/pkg/apperr"
	"github.com/diagnosis/buildhub/pkg/database"
	"github.com/diagnosis/buildhub/services/auth/internal/domain"
)

var harness *pgtest.Harness

func TestMain(m *testing.M) {
	ctx := context.Background()
	var err error
	harness, err = pgtest.Start(ctx)
	if err != nil {
		log.Fatalf("failed to start postgres: %s", err)
	}
	code := m.Run()
	harness.Close(ctx)
	os.Exit(code)
}

func setup(t *testing.T) (UserRepository, CodeRepository) {
	t.Helper()
	require.NoError(t, harness.Reset(context.Background()))
	return NewUserRepository(harness.Pool()), NewCodeRepository(harness.Pool())
}

func pending(email string) *domain.User {
	return &domain.User{Role: "user", Email: email, PasswordHash: "hash-1", Name: "Asha"}
}

func plainCheck(code string, now time.Time) func(*domain.VerificationCode) error {
	return func(vc *domain.VerificationCode) error {
		return vc.Check(code, now, 5, func(hash, c string) bool { return hash == "h:"+c })
	}
}

func TestUpsertPendingOverwritesOnlyPending(t *testing.T) {
	ctx := context.Background()
	users, codes := setup(t)

	first, err := users.UpsertPending(ctx, pending("asha@x.com"), time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, first.VerificationStatus)

	again := pending("asha@x.com")
	again.Name = "Asha R"
	second, err := users.UpsertPending(ctx, again, time.Now())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Asha R", second.Name)

	require.NoError(t, codes.Upsert(ctx, &domain.VerificationCode{
		UserID: first.ID, Purpose: domain.PurposeEmailVerification, CodeHash: "h:123456", ExpiresAt: time.Now().Add(10 * time.Minute),
	}))

	hijack := pending("asha@x.com")
	hijack.PasswordHash = "hash-2"
	_, err = users.UpsertPending(ctx, hijack, time.Now())
	assert.ErrorIs(t, err, ErrRegistrationPending)
	stored, err := users.FindByEmail(ctx, "asha@x.com")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", stored.PasswordHash, "live code keeps the password")

	later, err := users.UpsertPending(ctx, hijack, time.Now().Add(11*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "hash-2", later.PasswordHash)

	require.NoError(t, codes.Upsert(ctx, &domain.VerificationCode{
		UserID: first.ID, Purpose: domain.PurposeEmailVerification, CodeHash: "h:123456", ExpiresAt: time.Now().Add(10 * time.Minute),
	}))
	require.NoError(t, codes.Redeem(ctx, first.ID, domain.PurposeEmailVerification, plainCheck("123456", time.Now()), true))

	_, err = users.UpsertPending(ctx, pending("asha@x.com"), time.Now())
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRedeemLifecycle(t *testing.T) {
	ctx := context.Background()
	users, codes := setup(t)

	u, err := users.UpsertPending(ctx, pending("asha@x.com"), time.Now())
	require.NoError(t, err)
	require.NoError(t, codes.Upsert(ctx, &domain.VerificationCode{
		UserID: u.ID, Purpose: domain.PurposeEmailVerification, CodeHash: "h:123456", ExpiresAt: time.Now().Add(10 * time.Minute),
	}))

	err = codes.Redeem(ctx, u.ID, domain.PurposeEmailVerification, plainCheck("000000", time.Now()), true)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidCode))

	var attempts int
	require.NoError(t, harness.Pool().QueryRow(ctx, `SELECT attempts FROM verification_codes WHERE user_id = $1`, u.ID).Scan(&attempts))
	assert.Equal(t, 1, attempts, "a wrong guess is committed")

	require.NoError(t, codes.Redeem(ctx, u.ID, domain.PurposeEmailVerification, plainCheck("123456", time.Now()), true))

	verified, err := users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, verified.IsVerified())

	err = codes.Redeem(ctx, u.ID, domain.PurposeEmailVerification, plainCheck("123456", time.Now()), true)
	assert.ErrorIs(t, err, ErrNoCode)
}

func TestRedeemExpiredKeepsCode(t *testing.T) {
	ctx := context.Background()
	users, codes := setup(t)

	u, err := users.UpsertPending(ctx, pending("asha@x.com"), time.Now())
	require.NoError(t, err)
	require.NoError(t, codes.Upsert(ctx, &domain.VerificationCode{
		UserID: u.ID, Purpose: domain.PurposeEmailVerification, CodeHash: "h:123456", ExpiresAt: time.Now().Add(-time.Second),
	}))

	err = codes.Redeem(ctx, u.ID, domain.PurposeEmailVerification, plainCheck("123456", time.Now()), true)
	assert.True(t, apperr.IsKind(err, apperr.KindExpired))

	still, err := users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, still.IsVerified())
}

func TestConcurrentRedeemSucceedsOnce(t *testing.T) {
	ctx := context.Background()
	users, codes := setup(t)

	u, err := users.UpsertPending(ctx, pending("asha@x.com"), time.Now())
	require.NoError(t, err)
	require.NoError(t, codes.Upsert(ctx, &domain.VerificationCode{
		UserID: u.ID, Purpose: domain.PurposePasswordReset, CodeHash: "h:123456", ExpiresAt: time.Now().Add(10 * time.Minute),
	}))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := codes.Redeem(ctx, u.ID, domain.PurposePasswordReset, plainCheck("123456", time.Now()), false); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

func TestUpdatePasswordCompareAndSet(t *testing.T) {
	ctx := context.Background()
	users, codes := setup(t)

	u, err := users.UpsertPending(ctx, pending("asha@x.com"), time.Now())
	require.NoError(t, err)

	ok, err := users.UpdatePassword(ctx, u.ID, "hash-2", 0)
	require.NoError(t, err)
	assert.False(t, ok, "pending accounts cannot reset")

	require.NoError(t, codes.Upsert(ctx, &domain.VerificationCode{
		UserID: u.ID, Purpose: domain.PurposeEmailVerification, CodeHash: "h:1", ExpiresAt: time.Now().Add(time.Minute),
	}))
	require.NoError(t, codes.Redeem(ctx, u.ID, domain.PurposeEmailVerification, plainCheck("1", time.Now()), true))
	require.NoError(t, codes.Upsert(ctx, &domain.VerificationCode{
		UserID: u.ID, Purpose: domain.PurposePasswordReset, CodeHash: "h:2", ExpiresAt: time.Now().Add(time.Minute),
	}))

	ok, err = users.UpdatePassword(ctx, u.ID, "hash-2", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = users.UpdatePassword(ctx, u.ID, "hash-3", 0)
	require.NoError(t, err)
	assert.False(t, ok, "stale version")

	after, err := users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-2", after.PasswordHash)
	assert.Equal(t, 1, after.ResetVersion)

	err = codes.Redeem(ctx, u.ID, domain.PurposePasswordReset, plainCheck("2", time.Now()), false)
	assert.ErrorIs(t, err, ErrNoCode, "reset code cleared with the password change")
}

func TestUpdateRoleAndDelete(t *testing.T) {
	ctx := context.Background()
	users, _ := setup(t)

	u, err := users.UpsertPending(ctx, pending("asha@x.com"), time.Now())
	require.NoError(t, err)

	updated, err := users.UpdateRole(ctx, u.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", updated.Role)

	_, err = users.UpdateRole(ctx, 999, "admin")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	require.NoError(t, users.Delete(ctx, u.ID))
	assert.True(t, apperr.IsKind(users.Delete(ctx, u.ID), apperr.KindNotFound))

	list, err := users.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRoleStoreFollowsUsersTable(t *testing.T) {
	ctx := context.Background()
	users, _ := setup(t)
	roles := database.NewRoleStore(harness.Pool())

	u, err := users.UpsertPending(ctx, pending("asha@x.com"), time.Now())
	require.NoError(t, err)

	role, ok, err := roles.CurrentRole(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "user", role)

	_, err = users.UpdateRole(ctx, u.ID, "admin")
	require.NoError(t, err)
	role, _, err = roles.CurrentRole(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin", role)

	require.NoError(t, users.Delete(ctx, u.ID))
	_, ok, err = roles.CurrentRole(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
