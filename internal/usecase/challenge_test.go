package usecase_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ErlanBelekov/otpauth/internal/domain"
	"github.com/ErlanBelekov/otpauth/internal/otp"
)

// ---- RequestChallenge ----

func TestRequestChallenge_CreatesUserWithDefaultRole(t *testing.T) {
	h := newHarness(0)

	ack, err := h.manager.RequestChallenge(context.Background(), "new@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ack.Success || ack.Message != "OTP sent successfully" {
		t.Errorf("ack = %+v", ack)
	}

	u, err := h.store.FindByEmail(context.Background(), "new@example.com")
	if err != nil {
		t.Fatalf("user not created: %v", err)
	}
	if u.EmailVerified {
		t.Error("new user must not be verified")
	}
	if u.FirstName != "new" || u.LastName != "" {
		t.Errorf("name = %q %q, want %q %q", u.FirstName, u.LastName, "new", "")
	}
	if len(u.Roles) != 1 || u.Roles[0] != "user" {
		t.Errorf("roles = %v, want [user]", u.Roles)
	}
}

func TestRequestChallenge_ExistingUserSkipsRoleBootstrap(t *testing.T) {
	h := newHarness(0)
	h.request(t, "known@example.com")
	calls := h.store.ensureRoleCalls

	h.clock.Advance(2 * time.Minute)
	h.request(t, "known@example.com")

	if h.store.ensureRoleCalls != calls {
		t.Errorf("EnsureRole called again for an existing user")
	}
}

func TestRequestChallenge_StoresHashOfEmailedCode(t *testing.T) {
	h := newHarness(0)
	code := h.request(t, "hash@example.com")

	c := h.store.challenge(t, "hash@example.com")
	if c == nil {
		t.Fatal("no challenge stored")
	}
	if c.CodeHash != otp.Hash(code) {
		t.Errorf("stored hash %q != SHA-256 of emailed code", c.CodeHash)
	}
	if c.CodeHash == code {
		t.Error("plaintext code was stored")
	}
	if c.Attempts != 0 {
		t.Errorf("attempts = %d, want 0", c.Attempts)
	}
	if want := h.clock.Now().Add(10 * time.Minute); !c.ExpiresAt.Equal(want) {
		t.Errorf("expiresAt = %v, want %v", c.ExpiresAt, want)
	}
	if !c.LastSentAt.Equal(h.clock.Now()) {
		t.Errorf("lastSentAt = %v, want %v", c.LastSentAt, h.clock.Now())
	}
}

func TestRequestChallenge_AcknowledgementNeverCarriesCode(t *testing.T) {
	h := newHarness(0)
	ack, err := h.manager.RequestChallenge(context.Background(), "ack@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	code := h.sender.lastCode(t)
	if strings.Contains(ack.Message, code) {
		t.Error("acknowledgement leaked the code")
	}
}

func TestRequestChallenge_EmailContents(t *testing.T) {
	h := newHarness(0)
	code := h.request(t, "Jane.Doe@Example.com")

	msg := h.sender.sent[0]
	if msg.To.Email != "jane.doe@example.com" {
		t.Errorf("to = %q", msg.To.Email)
	}
	if msg.To.Name != "jane.doe" {
		t.Errorf("recipient name = %q, want jane.doe", msg.To.Name)
	}
	if msg.Subject != "Email Verification Code" {
		t.Errorf("subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.HTMLBody, testAppURL+"/auth/verify?email=jane.doe%40example.com") {
		t.Errorf("body does not contain the verification link")
	}
	if !strings.Contains(msg.HTMLBody, "otp="+code) || !strings.Contains(msg.HTMLBody, "sent=true") {
		t.Errorf("link is missing otp or sent parameters")
	}
}

func TestRequestChallenge_InvalidEmail(t *testing.T) {
	for _, in := range []string{"", "   ", "not-an-email", "a@"} {
		h := newHarness(0)
		_, err := h.manager.RequestChallenge(context.Background(), in)
		assertKind(t, err, domain.KindValidation)
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("%q: want errors.Is ErrValidation", in)
		}
		if len(h.store.users) != 0 {
			t.Errorf("%q: user created for invalid email", in)
		}
		if h.sender.count() != 0 {
			t.Errorf("%q: email sent for invalid email", in)
		}
	}
}

func TestRequestChallenge_ThrottledWithinCooldown(t *testing.T) {
	h := newHarness(0)
	h.request(t, "throttle@example.com")
	before := h.store.challenge(t, "throttle@example.com")

	h.clock.Advance(20 * time.Second)
	_, err := h.manager.RequestChallenge(context.Background(), "throttle@example.com")

	assertKind(t, err, domain.KindThrottled)
	if got := domain.RetryAfter(err); got != 40*time.Second {
		t.Errorf("RetryAfter = %s, want 40s", got)
	}
	if h.sender.count() != 1 {
		t.Errorf("emails sent = %d, want 1", h.sender.count())
	}
	after := h.store.challenge(t, "throttle@example.com")
	if *after != *before {
		t.Errorf("challenge mutated by throttled request: %+v -> %+v", before, after)
	}
}

func TestRequestChallenge_ReissueAfterCooldown(t *testing.T) {
	h := newHarness(0)
	first := h.request(t, "again@example.com")
	if _, err := h.verify("again@example.com", wrongCode(first), false); err == nil {
		t.Fatal("wrong code verified")
	}
	if c := h.store.challenge(t, "again@example.com"); c.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", c.Attempts)
	}

	h.clock.Advance(61 * time.Second)
	second := h.request(t, "again@example.com")

	c := h.store.challenge(t, "again@example.com")
	if c.Attempts != 0 {
		t.Errorf("attempts = %d, want reset to 0", c.Attempts)
	}
	if c.CodeHash != otp.Hash(second) {
		t.Error("challenge does not hold the new code")
	}
	if first != second {
		_, err := h.verify("again@example.com", first, false)
		assertKind(t, err, domain.KindInvalidCode)
	}
	if _, err := h.verify("again@example.com", second, false); err != nil {
		t.Errorf("new code rejected: %v", err)
	}
}

func TestRequestChallenge_ConcurrentRequestsSendOnce(t *testing.T) {
	h := newHarness(0)
	const n = 16

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.manager.RequestChallenge(context.Background(), "race@example.com")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, throttled int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrThrottled):
			throttled++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || throttled != n-1 {
		t.Errorf("ok = %d, throttled = %d, want 1 and %d", ok, throttled, n-1)
	}
	if h.sender.count() != 1 {
		t.Errorf("emails sent = %d, want 1", h.sender.count())
	}
	if len(h.store.users) != 1 {
		t.Errorf("users = %d, want 1", len(h.store.users))
	}
}

func TestRequestChallenge_DifferentUsersAreIndependent(t *testing.T) {
	h := newHarness(0)
	h.request(t, "a@example.com")
	h.request(t, "b@example.com")

	if h.sender.count() != 2 {
		t.Errorf("emails sent = %d, want 2", h.sender.count())
	}
}

func TestRequestChallenge_DeliveryErrorSurfacesAndKeepsChallenge(t *testing.T) {
	h := newHarness(0)
	h.sender.err = errors.New("resend: 503")

	_, err := h.manager.RequestChallenge(context.Background(), "mail@example.com")
	assertKind(t, err, domain.KindDelivery)

	if c := h.store.challenge(t, "mail@example.com"); c == nil {
		t.Error("challenge should remain stored after a delivery failure")
	}
}

func TestRequestChallenge_PersistenceErrors(t *testing.T) {
	h := newHarness(0)
	h.store.findErr = errBoom

	_, err := h.manager.RequestChallenge(context.Background(), "db@example.com")
	assertKind(t, err, domain.KindPersistence)
	if !errors.Is(err, errBoom) {
		t.Errorf("cause should be wrapped, got %v", err)
	}

	h = newHarness(0)
	h.store.upsertErr = errBoom
	_, err = h.manager.RequestChallenge(context.Background(), "db@example.com")
	assertKind(t, err, domain.KindPersistence)
	if h.sender.count() != 0 {
		t.Error("email sent although the challenge was not stored")
	}
}

func TestRequestChallenge_RaceLoserWaitsOutWinnersCooldown(t *testing.T) {
	h := newHarness(0)
	ctx := context.Background()
	role, _ := h.store.EnsureRole(ctx, "user")
	u, err := h.store.Create(ctx, domain.CreateUserInput{Email: "late@example.com", RoleID: role.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Another request issues a code after our read but before our write.
	h.store.afterFind = func() {
		h.store.afterFind = nil
		h.store.putChallenge(domain.Challenge{
			UserID:     u.ID,
			CodeHash:   otp.Hash("111111"),
			ExpiresAt:  h.clock.Now().Add(10 * time.Minute),
			LastSentAt: h.clock.Now().Add(-20 * time.Second),
		})
	}

	_, err = h.manager.RequestChallenge(ctx, "late@example.com")
	assertKind(t, err, domain.KindThrottled)
	if got := domain.RetryAfter(err); got != 40*time.Second {
		t.Errorf("RetryAfter = %s, want 40s", got)
	}
	if h.sender.count() != 0 {
		t.Errorf("emails sent = %d, want 0", h.sender.count())
	}
}
