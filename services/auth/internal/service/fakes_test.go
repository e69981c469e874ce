package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/diagnosis/buildhub/pkg/apperr"
	"github.com/diagnosis/buildhub/pkg/events"
	"github.com/diagnosis/buildhub/services/auth/internal/domain"
	"github.com/diagnosis/buildhub/services/auth/internal/repository"
)

type fakeUsers struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*domain.User
	// liveCode reports an unexpired email verification code, wired by
	// newFakeCodes.
	liveCode func(userID int64, now time.Time) bool
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[int64]*domain.User{}}
}

func (f *fakeUsers) byEmail(email string) *domain.User {
	for _, u := range f.byID {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func (f *fakeUsers) UpsertPending(ctx context.Context, u *domain.User, now time.Time) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing := f.byEmail(u.Email); existing != nil {
		if existing.IsVerified() {
			return nil, repository.ErrEmailTaken
		}
		if f.liveCode != nil && f.liveCode(existing.ID, now) {
			return nil, repository.ErrRegistrationPending
		}
		existing.Name, existing.PasswordHash, existing.Phone = u.Name, u.PasswordHash, u.Phone
		cp := *existing
		return &cp, nil
	}
	f.nextID++
	cp := *u
	cp.ID = f.nextID
	cp.VerificationStatus = domain.StatusPending
	f.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeUsers) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u := f.byEmail(email); u != nil {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeUsers) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeUsers) List(ctx context.Context, limit, offset int) ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.User{}
	for id := int64(1); id <= f.nextID; id++ {
		if u, ok := f.byID[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUsers) UpdateRole(ctx context.Context, id int64, role string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	u.Role = role
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) UpdatePassword(ctx context.Context, id int64, hash string, expectedVersion int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok || u.ResetVersion != expectedVersion || !u.IsVerified() {
		return false, nil
	}
	u.PasswordHash = hash
	u.ResetVersion++
	return true, nil
}

func (f *fakeUsers) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return apperr.NotFound("user not found")
	}
	delete(f.byID, id)
	return nil
}

type codeKey struct {
	userID  int64
	purpose domain.Purpose
}

// fakeCodes mirrors the transactional semantics of the Postgres repository.
type fakeCodes struct {
	mu    sync.Mutex
	codes map[codeKey]domain.VerificationCode
	users *fakeUsers
}

func newFakeCodes(users *fakeUsers) *fakeCodes {
	f := &fakeCodes{codes: map[codeKey]domain.VerificationCode{}, users: users}
	users.liveCode = func(userID int64, now time.Time) bool {
		c, ok := f.get(userID, domain.PurposeEmailVerification)
		return ok && c.ExpiresAt.After(now)
	}
	return f
}

func (f *fakeCodes) Upsert(ctx context.Context, c *domain.VerificationCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	cp.Attempts = 0
	f.codes[codeKey{c.UserID, c.Purpose}] = cp
	return nil
}

func (f *fakeCodes) Redeem(ctx context.Context, userID int64, purpose domain.Purpose, check func(*domain.VerificationCode) error, markVerified bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := codeKey{userID, purpose}
	c, ok := f.codes[key]
	if !ok {
		return repository.ErrNoCode
	}
	if err := check(&c); err != nil {
		if apperr.IsKind(err, apperr.KindInvalidCode) {
			c.Attempts++
			f.codes[key] = c
		}
		return err
	}
	delete(f.codes, key)
	if markVerified {
		f.users.mu.Lock()
		f.users.byID[userID].VerificationStatus = domain.StatusVerified
		f.users.mu.Unlock()
	}
	return nil
}

func (f *fakeCodes) Delete(ctx context.Context, userID int64, purpose domain.Purpose) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.codes, codeKey{userID, purpose})
	return nil
}

func (f *fakeCodes) get(userID int64, purpose domain.Purpose) (domain.VerificationCode, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.codes[codeKey{userID, purpose}]
	return c, ok
}

type sentMail struct {
	to, code string
	reset    bool
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendVerificationCode(ctx context.Context, to, name, code string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, code: code})
	return m.err
}

func (m *fakeMailer) SendPasswordResetCode(ctx context.Context, to, name, code string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, code: code, reset: true})
	return m.err
}

func (m *fakeMailer) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMail{}
	}
	return m.sent[len(m.sent)-1]
}

// plainHasher stores codes verbatim so tests can inspect them.
type plainHasher struct{}

func (plainHasher) Hash(code string) (string, error) { return "h:" + code, nil }
func (plainHasher) Matches(hash, code string) bool  { return hash == "h:"+code }

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *fakePublisher) Publish(ctx context.Context, subject string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *fakePublisher) PublishRaw(ctx context.Context, subject string, payload []byte) error {
	return p.Publish(ctx, subject, nil)
}

func (p *fakePublisher) Close() error { return nil }

var _ events.Publisher = (*fakePublisher)(nil)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
