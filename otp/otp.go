package otp

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/coordkit/cache"
	"github.com/kbukum/coordkit/errors"
	"github.com/kbukum/coordkit/logger"
	"github.com/kbukum/coordkit/observability"
	"github.com/kbukum/coordkit/redis"
	"github.com/kbukum/coordkit/validation"
)

const (
	// DefaultMaxAttempts is the number of wrong guesses a code tolerates.
	DefaultMaxAttempts = 3
	// DefaultTTL is used when a record's remaining lifetime cannot be read.
	DefaultTTL = 5 * time.Minute
)

// Purpose scopes a code to the flow that issued it.
type Purpose string

const (
	PurposeEmailVerification Purpose = "email_verification"
	PurposePhoneVerification Purpose = "phone_verification"
	PurposePasswordReset     Purpose = "password_reset"
	PurposeMFALogin          Purpose = "mfa_login"
	PurposeChangePhone       Purpose = "change_phone"
	PurposeChangeEmail       Purpose = "change_email"
	PurposeMFASetup          Purpose = "mfa_setup"
)

var purposes = map[Purpose]struct{}{
	PurposeEmailVerification: {},
	PurposePhoneVerification: {},
	PurposePasswordReset:     {},
	PurposeMFALogin:          {},
	PurposeChangePhone:       {},
	PurposeChangeEmail:       {},
	PurposeMFASetup:          {},
}

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	_, ok := purposes[p]
	return ok
}

// Record is the stored state of an issued code.
type Record struct {
	Code      string    `json:"code"`
	Purpose   Purpose   `json:"purpose"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

// Outcome is the result class of a verification.
type Outcome int

const (
	NotFound Outcome = iota
	Valid
	Invalid
	MaxAttemptsExceeded
)

func (o Outcome) String() string {
	switch o {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	case MaxAttemptsExceeded:
		return "max_attempts_exceeded"
	default:
		return "not_found"
	}
}

// Result is returned by Verify. AttemptsRemaining is meaningful for Invalid.
type Result struct {
	Outcome           Outcome
	AttemptsRemaining int
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithMaxAttempts sets how many wrong guesses a code tolerates.
func WithMaxAttempts(n int) Option {
	return func(v *Verifier) {
		if n > 0 {
			v.maxAttempts = n
		}
	}
}

// WithDefaultTTL sets the lifetime used when rewriting a record whose
// remaining TTL cannot be read.
func WithDefaultTTL(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.defaultTTL = d
		}
	}
}

// WithMetrics records verification outcomes.
func WithMetrics(m *observability.CoordMetrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

// WithClock replaces time.Now for CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// Verifier stores and checks one-time codes.
type Verifier struct {
	client      *redis.Client
	store       *cache.RedisCache[Record]
	maxAttempts int
	defaultTTL  time.Duration
	metrics     *observability.CoordMetrics
	now         func() time.Time
	log         *logger.Logger
}

// NewVerifier creates a verifier whose records live under {prefix}:otp.
func NewVerifier(client *redis.Client, opts ...Option) *Verifier {
	v := &Verifier{
		client:      client,
		store:       cache.New[Record](client, cache.WithNamespace(redis.DomainOTP)),
		maxAttempts: DefaultMaxAttempts,
		defaultTTL:  DefaultTTL,
		now:         time.Now,
		log:         client.Logger().WithComponent("otp"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// MaxAttempts returns the configured attempt budget.
func (v *Verifier) MaxAttempts() int { return v.maxAttempts }

func key(id string, purpose Purpose) string {
	return redis.Key(string(purpose), id)
}

func checkPurpose(p Purpose) error {
	if !p.Valid() {
		return errors.Validation("unknown otp purpose").WithDetail("purpose", string(p))
	}
	return nil
}

// Store issues code for (id, purpose), replacing any outstanding code.
func (v *Verifier) Store(ctx context.Context, id string, purpose Purpose, code string, ttl time.Duration) error {
	if err := checkPurpose(purpose); err != nil {
		return err
	}
	if err := validation.New().
		Required("id", id).
		Required("code", code).
		Err(); err != nil {
		return err
	}
	rec := Record{
		Code:      code,
		Purpose:   purpose,
		CreatedAt: v.now().UTC(),
	}
	return v.store.Set(ctx, key(id, purpose), rec, ttl)
}

// Verify checks candidate against the outstanding code for (id, purpose).
func (v *Verifier) Verify(ctx context.Context, id string, purpose Purpose, candidate string) (Result, error) {
	res, err := v.verify(ctx, id, purpose, candidate)
	if err == nil {
		v.metrics.RecordOTPVerification(ctx, string(purpose), res.Outcome.String())
	}
	return res, err
}

// verifyScript decides a guess in one step so concurrent callers cannot both
// consume a code or lose each other's attempt increments. The comparison
// walks every byte of the stored code regardless of where the first mismatch
// is. ARGV: candidate, max attempts, fallback ttl ms.
// Reply: {outcome, attempts remaining}, outcome numbered as Outcome.
var verifyScript = goredis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return {0, 0}
end
local rec = cjson.decode(raw)
local code = tostring(rec.code)
local candidate = ARGV[1]
local diff = 0
if #code ~= #candidate then
  diff = 1
end
for i = 1, #code do
  if string.byte(code, i) ~= string.byte(candidate, i) then
    diff = 1
  end
end
if diff == 0 then
  redis.call('DEL', KEYS[1])
  return {1, 0}
end
local max = tonumber(ARGV[2])
local attempts = (tonumber(rec.attempts) or 0) + 1
if attempts >= max then
  redis.call('DEL', KEYS[1])
  return {3, 0}
end
rec.attempts = attempts
local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
  ttl = tonumber(ARGV[3])
end
redis.call('SET', KEYS[1], cjson.encode(rec), 'PX', ttl)
return {2, max - attempts}
`)

func (v *Verifier) verify(ctx context.Context, id string, purpose Purpose, candidate string) (Result, error) {
	if err := checkPurpose(purpose); err != nil {
		return Result{}, err
	}
	k := v.store.Key(key(id, purpose))

	res, err := v.client.RunScript(ctx, verifyScript, []string{k},
		candidate, v.maxAttempts, v.defaultTTL.Milliseconds())
	if err != nil {
		return Result{}, err
	}
	reply, ok := res.([]interface{})
	if !ok || len(reply) != 2 {
		return Result{}, errors.Deserialization("script reply", k, nil)
	}
	outcome, ok1 := reply[0].(int64)
	remaining, ok2 := reply[1].(int64)
	if !ok1 || !ok2 || outcome < int64(NotFound) || outcome > int64(MaxAttemptsExceeded) {
		return Result{}, errors.Deserialization("script reply", k, nil)
	}

	result := Result{Outcome: Outcome(outcome)}
	switch result.Outcome {
	case Invalid:
		result.AttemptsRemaining = int(remaining)
	case MaxAttemptsExceeded:
		v.log.Warn("otp attempts exhausted", logger.Fields(
			logger.FieldPurpose, string(purpose),
			logger.FieldAttempt, v.maxAttempts,
		))
	}
	return result, nil
}

// Exists reports whether a code is outstanding for (id, purpose).
func (v *Verifier) Exists(ctx context.Context, id string, purpose Purpose) (bool, error) {
	if err := checkPurpose(purpose); err != nil {
		return false, err
	}
	return v.store.Exists(ctx, key(id, purpose))
}

// Delete revokes the outstanding code for (id, purpose), if any.
func (v *Verifier) Delete(ctx context.Context, id string, purpose Purpose) error {
	if err := checkPurpose(purpose); err != nil {
		return err
	}
	return v.store.Delete(ctx, key(id, purpose))
}

// RemainingAttempts returns how many wrong guesses the outstanding code still
// tolerates, or MaxAttempts when no code is outstanding.
func (v *Verifier) RemainingAttempts(ctx context.Context, id string, purpose Purpose) (int, error) {
	if err := checkPurpose(purpose); err != nil {
		return 0, err
	}
	rec, found, err := v.store.Get(ctx, key(id, purpose))
	if err != nil {
		return 0, err
	}
	if !found {
		return v.maxAttempts, nil
	}
	return max(v.maxAttempts-rec.Attempts, 0), nil
}
