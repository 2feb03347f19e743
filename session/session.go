package session

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/coordkit/errors"
	"github.com/kbukum/coordkit/logger"
	"github.com/kbukum/coordkit/redis"
	"github.com/kbukum/coordkit/validation"
)

// DefaultTTL is the lifetime Refresh extends a session to.
const DefaultTTL = 24 * time.Hour

// Record is the stored session payload.
type Record struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	DeviceID     string    `json:"device_id"`
	UserAgent    string    `json:"user_agent"`
	IPAddress    string    `json:"ip_address"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Registry stores sessions and answers per-user queries.
type Registry interface {
	Save(ctx context.Context, id string, rec Record, ttl time.Duration) error
	// Get returns nil when the session does not exist.
	Get(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
	// Refresh extends the session's lifetime and its ExpiresAt. It reports
	// false when the session does not exist.
	Refresh(ctx context.Context, id string) (bool, error)
	DeleteAllForUser(ctx context.Context, userID string) (int, error)
	ListForUser(ctx context.Context, userID string) ([]Record, error)
}

// Option configures a RedisRegistry.
type Option func(*RedisRegistry)

// WithTTL sets the lifetime Refresh extends sessions to.
func WithTTL(d time.Duration) Option {
	return func(r *RedisRegistry) {
		if d > 0 {
			r.ttl = d
		}
	}
}

// WithClock replaces time.Now for timestamps written by Save and Touch.
func WithClock(now func() time.Time) Option {
	return func(r *RedisRegistry) { r.now = now }
}

// RedisRegistry implements Registry on a coordkit Redis client.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
	log    *logger.Logger
}

var _ Registry = (*RedisRegistry)(nil)

// NewRedisRegistry creates a registry using the client's key prefix.
func NewRedisRegistry(client *redis.Client, opts ...Option) *RedisRegistry {
	r := &RedisRegistry{
		client: client,
		ttl:    DefaultTTL,
		now:    time.Now,
		log:    client.Logger().WithComponent("session"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisRegistry) sessionKey(id string) string {
	return redis.SessionKey(r.client.Prefix(), id)
}

func (r *RedisRegistry) userKey(userID string) string {
	return redis.UserSessionsKey(r.client.Prefix(), userID)
}

// Save writes the record then indexes it under its user. The record's
// SessionID is set to id; CreatedAt and LastActivity default to now.
func (r *RedisRegistry) Save(ctx context.Context, id string, rec Record, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.Configuration("ttl", "sessions require a positive ttl")
	}
	if err := validation.New().
		Required("session_id", id).
		Required("user_id", rec.UserID).
		Err(); err != nil {
		return err
	}

	now := r.now().UTC()
	rec.SessionID = id
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.LastActivity.IsZero() {
		rec.LastActivity = now
	}
	ttl = redis.WholeSeconds(ttl)
	rec.ExpiresAt = now.Add(ttl)

	if err := r.write(ctx, id, rec, ttl); err != nil {
		return err
	}
	if _, err := r.client.SAdd(ctx, r.userKey(rec.UserID), id); err != nil {
		r.log.Warn("session saved without user index entry", logger.Fields(
			logger.FieldSessionID, id,
			logger.FieldUserID, rec.UserID,
			logger.FieldError, err.Error(),
		))
		return err
	}
	return nil
}

func (r *RedisRegistry) write(ctx context.Context, id string, rec Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Serialization("JSON", err)
	}
	return r.client.Set(ctx, r.sessionKey(id), data, ttl)
}

func (r *RedisRegistry) Get(ctx context.Context, id string) (*Record, error) {
	key := r.sessionKey(id)
	raw, found, err := r.client.Get(ctx, key)
	if err != nil || !found {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, errors.Deserialization("JSON", key, err)
	}
	return &rec, nil
}

// Delete reads the session to find its owner, unindexes it, then deletes it.
// Deleting a missing session is not an error.
func (r *RedisRegistry) Delete(ctx context.Context, id string) error {
	rec, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec != nil {
		if _, err := r.client.SRem(ctx, r.userKey(rec.UserID), id); err != nil {
			return err
		}
	}
	_, err = r.client.Del(ctx, r.sessionKey(id))
	return err
}

// refreshScript extends a live session and stamps its new expiry in the
// same step, so a concurrent Delete cannot be undone.
// ARGV: expires_at, ttl secs.
var refreshScript = goredis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return 0
end
local rec = cjson.decode(raw)
rec.expires_at = ARGV[1]
redis.call('SET', KEYS[1], cjson.encode(rec), 'EX', ARGV[2])
return 1
`)

// touchScript stamps last activity on a live session and keeps its remaining
// lifetime. A session without expiry gets the fallback lifetime.
// ARGV: last_activity, fallback ttl ms, fallback expires_at.
var touchScript = goredis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return 0
end
local rec = cjson.decode(raw)
rec.last_activity = ARGV[1]
local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
  ttl = tonumber(ARGV[2])
  rec.expires_at = ARGV[3]
end
redis.call('SET', KEYS[1], cjson.encode(rec), 'PX', ttl)
return 1
`)

func (r *RedisRegistry) Refresh(ctx context.Context, id string) (bool, error) {
	ttl := redis.WholeSeconds(r.ttl)
	expiresAt := r.now().UTC().Add(ttl)
	return r.runUpdate(ctx, refreshScript, id,
		expiresAt.Format(time.RFC3339Nano), int64(ttl/time.Second))
}

// Touch records activity on a session, keeping its remaining TTL.
// It reports false when the session does not exist.
func (r *RedisRegistry) Touch(ctx context.Context, id string) (bool, error) {
	now := r.now().UTC()
	ttl := redis.WholeSeconds(r.ttl)
	return r.runUpdate(ctx, touchScript, id,
		now.Format(time.RFC3339Nano), ttl.Milliseconds(), now.Add(ttl).Format(time.RFC3339Nano))
}

func (r *RedisRegistry) runUpdate(ctx context.Context, script *goredis.Script, id string, args ...interface{}) (bool, error) {
	res, err := r.client.RunScript(ctx, script, []string{r.sessionKey(id)}, args...)
	if err != nil {
		return false, err
	}
	n, ok := res.(int64)
	if !ok {
		return false, errors.Deserialization("script reply", r.sessionKey(id), nil)
	}
	return n == 1, nil
}

// DeleteAllForUser deletes every indexed session and then the index itself.
// It returns how many session records were actually removed.
func (r *RedisRegistry) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	ids, err := r.client.SMembers(ctx, r.userKey(userID))
	if err != nil {
		return 0, err
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.sessionKey(id)
	}
	deleted, err := r.client.Del(ctx, keys...)
	if err != nil {
		return 0, err
	}
	if _, err := r.client.Del(ctx, r.userKey(userID)); err != nil {
		return int(deleted), err
	}

	r.log.Debug("deleted user sessions", logger.Fields(
		logger.FieldUserID, userID,
		"count", deleted,
	))
	return int(deleted), nil
}

// ListForUser returns the user's live sessions, skipping index entries whose
// record has expired or been deleted.
func (r *RedisRegistry) ListForUser(ctx context.Context, userID string) ([]Record, error) {
	ids, err := r.client.SMembers(ctx, r.userKey(userID))
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records, nil
}

// Prune removes index entries for userID whose session record no longer
// exists and returns how many were removed.
func (r *RedisRegistry) Prune(ctx context.Context, userID string) (int, error) {
	ids, err := r.client.SMembers(ctx, r.userKey(userID))
	if err != nil {
		return 0, err
	}

	var dangling []interface{}
	for _, id := range ids {
		n, err := r.client.Exists(ctx, r.sessionKey(id))
		if err != nil {
			return 0, err
		}
		if n == 0 {
			dangling = append(dangling, id)
		}
	}
	if len(dangling) == 0 {
		return 0, nil
	}

	removed, err := r.client.SRem(ctx, r.userKey(userID), dangling...)
	if err != nil {
		return 0, err
	}
	r.log.Info("pruned dangling session index entries", logger.Fields(
		logger.FieldUserID, userID,
		"count", removed,
	))
	return int(removed), nil
}
