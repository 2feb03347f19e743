package otp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kbukum/coordkit/errors"
	"github.com/kbukum/coordkit/redis"
	redistest "github.com/kbukum/coordkit/redis/testutil"
)

func newVerifier(t *testing.T, opts ...Option) (*Verifier, func(time.Duration)) {
	t.Helper()
	client, mini := redistest.NewClient(t)
	return NewVerifier(client, opts...), mini.FastForward
}

func TestVerifier_ValidExactlyOnce(t *testing.T) {
	v, _ := newVerifier(t)
	ctx := context.Background()

	if err := v.Store(ctx, "a@b.c", PurposeEmailVerification, "123456", 5*time.Minute); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	res, err := v.Verify(ctx, "a@b.c", PurposeEmailVerification, "123456")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if res.Outcome != Valid {
		t.Errorf("expected Valid, got %s", res.Outcome)
	}

	res, _ = v.Verify(ctx, "a@b.c", PurposeEmailVerification, "123456")
	if res.Outcome != NotFound {
		t.Errorf("expected NotFound on reuse, got %s", res.Outcome)
	}
}

func verifyConcurrently(t *testing.T, v *Verifier, n int, candidate string) map[Outcome]int {
	t.Helper()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = make(map[Outcome]int)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := v.Verify(context.Background(), "u1", PurposeMFALogin, candidate)
			if err != nil {
				t.Errorf("Verify failed: %v", err)
				return
			}
			mu.Lock()
			outcomes[res.Outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	return outcomes
}

func TestVerifier_ConcurrentCorrectGuesses(t *testing.T) {
	v, _ := newVerifier(t)
	v.Store(context.Background(), "u1", PurposeMFALogin, "424242", time.Minute)

	outcomes := verifyConcurrently(t, v, 8, "424242")
	if outcomes[Valid] != 1 {
		t.Errorf("expected exactly one Valid, got %v", outcomes)
	}
	if outcomes[NotFound] != 7 {
		t.Errorf("expected the other callers to see NotFound, got %v", outcomes)
	}
}

func TestVerifier_ConcurrentWrongGuesses(t *testing.T) {
	v, _ := newVerifier(t, WithMaxAttempts(3))
	v.Store(context.Background(), "u1", PurposeMFALogin, "424242", time.Minute)

	outcomes := verifyConcurrently(t, v, 10, "000000")
	if outcomes[Invalid] != 2 || outcomes[MaxAttemptsExceeded] != 1 {
		t.Errorf("expected 2 Invalid and 1 MaxAttemptsExceeded, got %v", outcomes)
	}
	if outcomes[NotFound] != 7 {
		t.Errorf("expected guesses past the budget to see NotFound, got %v", outcomes)
	}
}

func TestVerifier_WrongCodeSequence(t *testing.T) {
	v, _ := newVerifier(t, WithMaxAttempts(3))
	ctx := context.Background()

	v.Store(ctx, "u1", PurposeMFALogin, "111111", 5*time.Minute)

	want := []Result{
		{Outcome: Invalid, AttemptsRemaining: 2},
		{Outcome: Invalid, AttemptsRemaining: 1},
		{Outcome: MaxAttemptsExceeded},
	}
	for i, w := range want {
		got, err := v.Verify(ctx, "u1", PurposeMFALogin, "000000")
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		if got != w {
			t.Errorf("attempt %d: expected %+v, got %+v", i+1, w, got)
		}
	}

	if ok, _ := v.Exists(ctx, "u1", PurposeMFALogin); ok {
		t.Error("expected record deleted after exhausting attempts")
	}
	res, _ := v.Verify(ctx, "u1", PurposeMFALogin, "111111")
	if res.Outcome != NotFound {
		t.Errorf("expected correct code to be dead after exhaustion, got %s", res.Outcome)
	}
}

func TestVerifier_MismatchKeepsRemainingTTL(t *testing.T) {
	v, fastForward := newVerifier(t)
	ctx := context.Background()

	v.Store(ctx, "u1", PurposePasswordReset, "ABCD", 10*time.Minute)
	fastForward(4 * time.Minute)
	v.Verify(ctx, "u1", PurposePasswordReset, "WXYZ")

	ttl, ok, err := v.store.TTL(ctx, key("u1", PurposePasswordReset))
	if err != nil || !ok {
		t.Fatalf("expected live record, ok=%v err=%v", ok, err)
	}
	if ttl != 6*time.Minute {
		t.Errorf("expected remaining ttl 6m to be preserved, got %v", ttl)
	}

	rec, _, _ := v.store.Get(ctx, key("u1", PurposePasswordReset))
	if rec.Attempts != 1 {
		t.Errorf("expected 1 attempt recorded, got %d", rec.Attempts)
	}
}

func TestVerifier_MismatchFallsBackToDefaultTTL(t *testing.T) {
	v, _ := newVerifier(t, WithDefaultTTL(2*time.Minute))
	ctx := context.Background()

	v.Store(ctx, "u1", PurposePasswordReset, "ABCD", 10*time.Minute)
	k := key("u1", PurposePasswordReset)
	if _, err := v.client.Unwrap().Persist(ctx, v.store.Key(k)).Result(); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}

	res, err := v.Verify(ctx, "u1", PurposePasswordReset, "WXYZ")
	if err != nil || res.Outcome != Invalid {
		t.Fatalf("expected Invalid, got %+v err=%v", res, err)
	}
	ttl, ok, _ := v.store.TTL(ctx, k)
	if !ok || ttl != 2*time.Minute {
		t.Errorf("expected fallback ttl 2m, got %v ok=%v", ttl, ok)
	}
}

func TestVerifier_Expiry(t *testing.T) {
	v, fastForward := newVerifier(t)
	ctx := context.Background()

	v.Store(ctx, "u1", PurposeChangeEmail, "123", time.Minute)
	fastForward(61 * time.Second)

	res, err := v.Verify(ctx, "u1", PurposeChangeEmail, "123")
	if err != nil || res.Outcome != NotFound {
		t.Errorf("expected NotFound after expiry, got %+v err=%v", res, err)
	}
}

func TestVerifier_PurposesAreIsolated(t *testing.T) {
	v, _ := newVerifier(t)
	ctx := context.Background()

	v.Store(ctx, "u1", PurposeChangePhone, "123", time.Minute)

	res, _ := v.Verify(ctx, "u1", PurposeMFASetup, "123")
	if res.Outcome != NotFound {
		t.Errorf("expected code bound to its purpose, got %s", res.Outcome)
	}
}

func TestVerifier_KeyLayout(t *testing.T) {
	client, mini := redistest.NewClient(t)
	v := NewVerifier(client)

	v.Store(context.Background(), "+15550100", PurposePhoneVerification, "42", time.Minute)
	want := redis.OTPKey(redistest.DefaultPrefix, string(PurposePhoneVerification), "+15550100")
	if !mini.Exists(want) {
		t.Errorf("expected key %q, have %v", want, mini.Keys())
	}
}

func TestVerifier_RemainingAttemptsAndDelete(t *testing.T) {
	v, _ := newVerifier(t, WithMaxAttempts(5))
	ctx := context.Background()

	if n, _ := v.RemainingAttempts(ctx, "u1", PurposeMFALogin); n != 5 {
		t.Errorf("expected full budget with no code, got %d", n)
	}

	v.Store(ctx, "u1", PurposeMFALogin, "9", time.Minute)
	v.Verify(ctx, "u1", PurposeMFALogin, "8")
	v.Verify(ctx, "u1", PurposeMFALogin, "7")
	if n, _ := v.RemainingAttempts(ctx, "u1", PurposeMFALogin); n != 3 {
		t.Errorf("expected 3 remaining, got %d", n)
	}

	if err := v.Delete(ctx, "u1", PurposeMFALogin); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if ok, _ := v.Exists(ctx, "u1", PurposeMFALogin); ok {
		t.Error("expected code revoked")
	}
}

func TestVerifier_RejectsBadInput(t *testing.T) {
	v, _ := newVerifier(t)
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
	}{
		{"unknown purpose", v.Store(ctx, "u1", Purpose("bogus"), "1", time.Minute)},
		{"empty code", v.Store(ctx, "u1", PurposeMFALogin, "", time.Minute)},
	}
	for _, tt := range tests {
		if !errors.HasCode(tt.err, errors.ErrCodeInvalidInput) {
			t.Errorf("%s: expected INVALID_INPUT, got %v", tt.name, tt.err)
		}
	}

	err := v.Store(ctx, "u1", PurposeMFALogin, "1", 0)
	if !errors.HasCode(err, errors.ErrCodeConfiguration) {
		t.Errorf("expected CONFIGURATION_ERROR for zero ttl, got %v", err)
	}
	if _, err := v.Verify(ctx, "u1", Purpose("bogus"), "1"); err == nil {
		t.Error("expected Verify to reject an unknown purpose")
	}
}

func TestOutcome_String(t *testing.T) {
	tests := map[Outcome]string{
		Valid:               "valid",
		Invalid:             "invalid",
		MaxAttemptsExceeded: "max_attempts_exceeded",
		NotFound:            "not_found",
	}
	for o, want := range tests {
		if o.String() != want {
			t.Errorf("expected %q, got %q", want, o.String())
		}
	}
}
