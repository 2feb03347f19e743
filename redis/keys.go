package redis

import (
	"strings"
	"time"
)

// Key domains under a namespace prefix.
const (
	DomainCache        = "cache"
	DomainSession      = "session"
	DomainUserSessions = "user_sessions"
	DomainRateLimit    = "rate_limit"
	DomainLock         = "lock"
	DomainOTP          = "otp"
)

// KeySeparator joins key segments.
const KeySeparator = ":"

// Key joins the non-empty parts with KeySeparator.
//
//	Key("app", "", "cache", "user:1") // "app:cache:user:1"
func Key(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, KeySeparator)
}

// CacheKey returns {prefix}:cache:{key}.
func CacheKey(prefix, key string) string { return Key(prefix, DomainCache, key) }

// SessionKey returns {prefix}:session:{id}.
func SessionKey(prefix, id string) string { return Key(prefix, DomainSession, id) }

// UserSessionsKey returns {prefix}:user_sessions:{userID}.
func UserSessionsKey(prefix, userID string) string { return Key(prefix, DomainUserSessions, userID) }

// RateLimitKey returns {prefix}:rate_limit:{key}.
func RateLimitKey(prefix, key string) string { return Key(prefix, DomainRateLimit, key) }

// LockKey returns {prefix}:lock:{resource}.
func LockKey(prefix, resource string) string { return Key(prefix, DomainLock, resource) }

// OTPKey returns {prefix}:otp:{purpose}:{id}.
func OTPKey(prefix, purpose, id string) string { return Key(prefix, DomainOTP, purpose, id) }

// WholeSeconds rounds d up to a whole number of seconds, never below one.
// Expiries sent to the store go through this so sub-second TTLs are not
// silently truncated to zero.
func WholeSeconds(d time.Duration) time.Duration {
	if d <= time.Second {
		return time.Second
	}
	return ((d + time.Second - 1) / time.Second) * time.Second
}
