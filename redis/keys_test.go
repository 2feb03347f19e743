package redis

import (
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
		want  string
	}{
		{"basic", []string{"app", "cache", "foo"}, "app:cache:foo"},
		{"drops empty segments", []string{"", "foo", "", "bar"}, "foo:bar"},
		{"no parts", nil, ""},
		{"keeps inner separators", []string{"app", "otp", "EMAIL_VERIFICATION", "a@b.c"}, "app:otp:EMAIL_VERIFICATION:a@b.c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.parts...); got != tt.want {
				t.Errorf("Key(%v) = %q, want %q", tt.parts, got, tt.want)
			}
		})
	}
}

func TestDomainKeys(t *testing.T) {
	checks := map[string]string{
		CacheKey("app", "token"):        "app:cache:token",
		SessionKey("app", "sess123"):    "app:session:sess123",
		UserSessionsKey("app", "user1"): "app:user_sessions:user1",
		RateLimitKey("app", "ip"):       "app:rate_limit:ip",
		LockKey("app", "resource"):      "app:lock:resource",
		CacheKey("", "token"):           "cache:token",
		OTPKey("app", "LOGIN", "a@b.c"): "app:otp:LOGIN:a@b.c",
	}
	for got, want := range checks {
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}

func TestWholeSeconds(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, time.Second},
		{300 * time.Millisecond, time.Second},
		{time.Second, time.Second},
		{1100 * time.Millisecond, 2 * time.Second},
		{90 * time.Second, 90 * time.Second},
	}
	for _, tt := range tests {
		if got := WholeSeconds(tt.in); got != tt.want {
			t.Errorf("WholeSeconds(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
