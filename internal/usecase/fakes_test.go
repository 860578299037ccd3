package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/ErlanBelekov/otpauth/internal/domain"
	"github.com/ErlanBelekov/otpauth/internal/email"
	"github.com/ErlanBelekov/otpauth/internal/usecase"
)

// ---- store fake ----

// memStore implements both repositories with the same conditional semantics
// as the postgres implementation, guarded by one mutex.
type memStore struct {
	mu         sync.Mutex
	users      map[string]*domain.User // by id
	byEmail    map[string]string
	roles      map[string]*domain.Role
	challenges map[string]*domain.Challenge // by user id
	nextID     int

	ensureRoleCalls int
	findErr         error
	upsertErr       error

	// afterFind runs once FindByEmail has taken its snapshot, outside the lock.
	// Tests use it to hold readers together or to change state behind them.
	afterFind func()
}

func newMemStore() *memStore {
	return &memStore{
		users:      make(map[string]*domain.User),
		byEmail:    make(map[string]string),
		roles:      make(map[string]*domain.Role),
		challenges: make(map[string]*domain.Challenge),
	}
}

func (s *memStore) snapshot(id string) *domain.User {
	u := *s.users[id]
	u.Roles = append([]string(nil), u.Roles...)
	if c, ok := s.challenges[id]; ok {
		cc := *c
		u.Challenge = &cc
	}
	return &u
}

func (s *memStore) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	u, err := s.findByEmail(email)
	if s.afterFind != nil {
		s.afterFind()
	}
	return u, err
}

func (s *memStore) findByEmail(email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	id, ok := s.byEmail[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return s.snapshot(id), nil
}

func (s *memStore) FindByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return nil, domain.ErrUserNotFound
	}
	return s.snapshot(id), nil
}

func (s *memStore) Create(_ context.Context, in domain.CreateUserInput) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byEmail[in.Email]; ok {
		return s.snapshot(id), nil
	}
	var roles []string
	for _, r := range s.roles {
		if r.ID == in.RoleID {
			roles = append(roles, r.Name)
		}
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("role %q does not exist", in.RoleID)
	}
	s.nextID++
	id := fmt.Sprintf("user-%d", s.nextID)
	s.users[id] = &domain.User{
		ID:        id,
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Roles:     roles,
	}
	s.byEmail[in.Email] = id
	return s.snapshot(id), nil
}

func (s *memStore) EnsureRole(_ context.Context, name string) (*domain.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureRoleCalls++
	if r, ok := s.roles[name]; ok {
		return r, nil
	}
	r := &domain.Role{ID: "role-" + name, Name: name}
	s.roles[name] = r
	return r, nil
}

func (s *memStore) Upsert(_ context.Context, c *domain.Challenge, notSentAfter time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return time.Time{}, s.upsertErr
	}
	if cur, ok := s.challenges[c.UserID]; ok && cur.LastSentAt.After(notSentAfter) {
		return cur.LastSentAt, domain.ErrChallengeThrottled
	}
	cc := *c
	cc.Attempts = 0
	s.challenges[c.UserID] = &cc
	return c.LastSentAt, nil
}

func (s *memStore) IncrementAttempts(_ context.Context, userID, codeHash string, maxAttempts int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[userID]
	if !ok || c.CodeHash != codeHash {
		return 0, domain.ErrChallengeNotFound
	}
	if maxAttempts > 0 && c.Attempts >= maxAttempts {
		return 0, domain.ErrChallengeLocked
	}
	c.Attempts++
	return c.Attempts, nil
}

// putChallenge stores c directly, bypassing the throttle.
func (s *memStore) putChallenge(c domain.Challenge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[c.UserID] = &c
}

func (s *memStore) Consume(_ context.Context, userID, codeHash string, now time.Time) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[userID]
	if !ok || c.CodeHash != codeHash || now.After(c.ExpiresAt) {
		return nil, domain.ErrChallengeNotFound
	}
	delete(s.challenges, userID)
	s.users[userID].EmailVerified = true
	return s.snapshot(userID), nil
}

func (s *memStore) DeleteExpired(_ context.Context, cutoff time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, c := range s.challenges {
		if n == limit {
			break
		}
		if c.ExpiresAt.Before(cutoff) {
			delete(s.challenges, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) challenge(t *testing.T, email string) *domain.Challenge {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[s.byEmail[email]]
	if !ok {
		return nil
	}
	cc := *c
	return &cc
}

// ---- email fake ----

type fakeSender struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg email.Message) (*email.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, msg)
	return &email.Receipt{ID: fmt.Sprintf("msg-%d", len(f.sent))}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

var codeInLink = regexp.MustCompile(`otp=(\d{6})`)

// lastCode extracts the code from the verify link of the most recent email.
func (f *fakeSender) lastCode(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no email sent")
	}
	m := codeInLink.FindStringSubmatch(f.sent[len(f.sent)-1].HTMLBody)
	if m == nil {
		t.Fatal("email body does not contain otp=")
	}
	return m[1]
}

// ---- session fake ----

type fakeSessions struct {
	err error
}

func (f *fakeSessions) IssueTokens(_ context.Context, user *domain.User) (*domain.Tokens, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Tokens{AccessToken: "access-" + user.ID, RefreshToken: "refresh-" + user.ID, TokenType: "Bearer"}, nil
}

// ---- clock ----

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ---- harness ----

const testAppURL = "http://localhost:3000"

type harness struct {
	store    *memStore
	sender   *fakeSender
	sessions *fakeSessions
	clock    *fakeClock
	manager  *usecase.ChallengeManager
	verifier *usecase.Verifier
}

func newHarness(maxAttempts int) *harness {
	h := &harness{
		store:    newMemStore(),
		sender:   &fakeSender{},
		sessions: &fakeSessions{},
		clock:    newFakeClock(),
	}
	h.manager = usecase.NewChallengeManager(h.store, h.store, h.sender, usecase.ChallengeConfig{
		CodeTTL:     10 * time.Minute,
		Cooldown:    60 * time.Second,
		DefaultRole: "user",
		AppURL:      testAppURL + "/",
	}, usecase.WithClock(h.clock.Now))
	h.verifier = usecase.NewVerifier(h.store, h.store, h.sessions, maxAttempts, usecase.WithClock(h.clock.Now))
	return h
}

func (h *harness) request(t *testing.T, email string) string {
	t.Helper()
	if _, err := h.manager.RequestChallenge(context.Background(), email); err != nil {
		t.Fatalf("RequestChallenge(%q): %v", email, err)
	}
	return h.sender.lastCode(t)
}

func (h *harness) verify(email, code string, session bool) (*domain.VerificationResult, error) {
	return h.verifier.Verify(context.Background(), usecase.VerifyInput{Email: email, Code: code, IssueSession: session})
}

func wrongCode(code string) string {
	if code == "000000" {
		return "000001"
	}
	return "000000"
}

func assertKind(t *testing.T, err error, want domain.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("want %v error, got nil", want)
	}
	if got := domain.KindOf(err); got != want {
		t.Fatalf("kind = %v, want %v (err: %v)", got, want, err)
	}
}

var errBoom = errors.New("boom")
