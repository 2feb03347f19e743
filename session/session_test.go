package session

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/kbukum/coordkit/errors"
	redistest "github.com/kbukum/coordkit/redis/testutil"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newRegistry(t *testing.T, opts ...Option) (*RedisRegistry, func(time.Duration)) {
	t.Helper()
	client, mini := redistest.NewClient(t)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewRedisRegistry(client, opts...), mini.FastForward
}

func sampleRecord(userID string) Record {
	return Record{
		UserID:    userID,
		Email:     userID + "@example.com",
		Role:      "BUYER",
		DeviceID:  "device-1",
		UserAgent: "Mozilla/5.0",
		IPAddress: "192.168.1.1",
	}
}

func TestRedisRegistry_SaveGet(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	if err := reg.Save(ctx, "s1", sampleRecord("u1"), time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	rec, err := reg.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a record")
	}
	if rec.SessionID != "s1" || rec.UserID != "u1" || rec.Role != "BUYER" {
		t.Errorf("unexpected record %+v", rec)
	}
	if !rec.CreatedAt.Equal(fixedNow) || !rec.ExpiresAt.Equal(fixedNow.Add(time.Hour)) {
		t.Errorf("unexpected timestamps created=%v expires=%v", rec.CreatedAt, rec.ExpiresAt)
	}
}

func TestRedisRegistry_GetMissing(t *testing.T) {
	reg, _ := newRegistry(t)

	rec, err := reg.Get(context.Background(), "nope")
	if err != nil || rec != nil {
		t.Errorf("expected (nil, nil), got (%v, %v)", rec, err)
	}
}

func TestRedisRegistry_SaveValidation(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	if err := reg.Save(ctx, "s1", sampleRecord("u1"), 0); !errors.HasCode(err, errors.ErrCodeConfiguration) {
		t.Errorf("expected CONFIGURATION_ERROR for zero ttl, got %v", err)
	}
	if err := reg.Save(ctx, "s1", Record{}, time.Hour); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT for missing user, got %v", err)
	}
}

func TestRedisRegistry_UserIDWithSeparator(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	if err := reg.Save(ctx, "s1", sampleRecord("tenant:u1"), time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	reg.Save(ctx, "s2", sampleRecord("tenant"), time.Hour)

	list, err := reg.ListForUser(ctx, "tenant:u1")
	if err != nil || len(list) != 1 || list[0].SessionID != "s1" {
		t.Errorf("expected only s1 for tenant:u1, got %+v (%v)", list, err)
	}
	if n, _ := reg.DeleteAllForUser(ctx, "tenant"); n != 1 {
		t.Errorf("expected one session for tenant, got %d", n)
	}
	if rec, _ := reg.Get(ctx, "s1"); rec == nil {
		t.Error("expected tenant:u1 session untouched by deleting tenant")
	}
}

func TestRedisRegistry_ListAndDelete(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	reg.Save(ctx, "s1", sampleRecord("u1"), time.Hour)
	reg.Save(ctx, "s2", sampleRecord("u1"), time.Hour)
	reg.Save(ctx, "s3", sampleRecord("u2"), time.Hour)

	list, err := reg.ListForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListForUser failed: %v", err)
	}
	ids := make([]string, 0, len(list))
	for _, r := range list {
		ids = append(ids, r.SessionID)
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "s1" || ids[1] != "s2" {
		t.Errorf("expected [s1 s2], got %v", ids)
	}

	if err := reg.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	list, _ = reg.ListForUser(ctx, "u1")
	if len(list) != 1 || list[0].SessionID != "s2" {
		t.Errorf("expected only s2 left, got %+v", list)
	}
	if members, _ := reg.client.SMembers(ctx, reg.userKey("u1")); len(members) != 1 {
		t.Errorf("expected Delete to unindex s1, index=%v", members)
	}

	if err := reg.Delete(ctx, "s1"); err != nil {
		t.Errorf("deleting a missing session should not fail, got %v", err)
	}
}

func TestRedisRegistry_Refresh(t *testing.T) {
	reg, fastForward := newRegistry(t, WithTTL(2*time.Hour))
	ctx := context.Background()

	reg.Save(ctx, "s1", sampleRecord("u1"), time.Minute)
	fastForward(30 * time.Second)

	ok, err := reg.Refresh(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("expected refresh to succeed, ok=%v err=%v", ok, err)
	}
	ttl, _ := reg.client.TTL(ctx, reg.sessionKey("s1"))
	if ttl != 2*time.Hour {
		t.Errorf("expected ttl extended to 2h, got %v", ttl)
	}
	rec, _ := reg.Get(ctx, "s1")
	if rec == nil || !rec.ExpiresAt.Equal(fixedNow.Add(2*time.Hour)) {
		t.Errorf("expected expires-at moved to the new expiry, got %+v", rec)
	}
	if rec != nil && (rec.UserID != "u1" || !rec.CreatedAt.Equal(fixedNow)) {
		t.Errorf("expected other fields preserved, got %+v", rec)
	}

	ok, err = reg.Refresh(ctx, "missing")
	if err != nil || ok {
		t.Errorf("expected false for a missing session, ok=%v err=%v", ok, err)
	}
}

func TestRedisRegistry_RefreshDefaultTTL(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	reg.Save(ctx, "s1", sampleRecord("u1"), time.Minute)
	reg.Refresh(ctx, "s1")

	ttl, _ := reg.client.TTL(ctx, reg.sessionKey("s1"))
	if ttl != DefaultTTL {
		t.Errorf("expected %v, got %v", DefaultTTL, ttl)
	}
}

func TestRedisRegistry_Touch(t *testing.T) {
	now := fixedNow
	reg, fastForward := newRegistry(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	reg.Save(ctx, "s1", sampleRecord("u1"), 10*time.Minute)
	fastForward(4 * time.Minute)
	now = now.Add(4 * time.Minute)

	ok, err := reg.Touch(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("expected touch to succeed, ok=%v err=%v", ok, err)
	}

	rec, _ := reg.Get(ctx, "s1")
	if !rec.LastActivity.Equal(now) {
		t.Errorf("expected last activity %v, got %v", now, rec.LastActivity)
	}
	if !rec.CreatedAt.Equal(fixedNow) {
		t.Errorf("expected created-at preserved, got %v", rec.CreatedAt)
	}
	ttl, _ := reg.client.TTL(ctx, reg.sessionKey("s1"))
	if ttl != 6*time.Minute {
		t.Errorf("expected remaining ttl kept at 6m, got %v", ttl)
	}

	if ok, _ := reg.Touch(ctx, "missing"); ok {
		t.Error("expected false for a missing session")
	}
}

func TestRedisRegistry_DeleteAllForUser(t *testing.T) {
	reg, fastForward := newRegistry(t)
	ctx := context.Background()

	reg.Save(ctx, "s1", sampleRecord("u1"), time.Minute)
	reg.Save(ctx, "s2", sampleRecord("u1"), time.Hour)
	reg.Save(ctx, "s3", sampleRecord("u2"), time.Hour)
	fastForward(2 * time.Minute) // s1 expires, its index entry dangles

	n, err := reg.DeleteAllForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("DeleteAllForUser failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 live session deleted, got %d", n)
	}
	if list, _ := reg.ListForUser(ctx, "u1"); len(list) != 0 {
		t.Errorf("expected no sessions left, got %+v", list)
	}
	if rec, _ := reg.Get(ctx, "s3"); rec == nil {
		t.Error("expected other users' sessions untouched")
	}

	n, err = reg.DeleteAllForUser(ctx, "nobody")
	if err != nil || n != 0 {
		t.Errorf("expected 0 for unknown user, n=%d err=%v", n, err)
	}
}

func TestRedisRegistry_ListSkipsDanglingAndPrune(t *testing.T) {
	reg, fastForward := newRegistry(t)
	ctx := context.Background()

	reg.Save(ctx, "short", sampleRecord("u1"), time.Minute)
	reg.Save(ctx, "long", sampleRecord("u1"), time.Hour)
	fastForward(2 * time.Minute)

	list, err := reg.ListForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListForUser failed: %v", err)
	}
	if len(list) != 1 || list[0].SessionID != "long" {
		t.Errorf("expected only the live session, got %+v", list)
	}

	removed, err := reg.Prune(ctx, "u1")
	if err != nil || removed != 1 {
		t.Fatalf("expected one pruned entry, removed=%d err=%v", removed, err)
	}
	members, _ := reg.client.SMembers(ctx, reg.userKey("u1"))
	if len(members) != 1 || members[0] != "long" {
		t.Errorf("expected index [long], got %v", members)
	}

	if removed, _ := reg.Prune(ctx, "u1"); removed != 0 {
		t.Errorf("expected second prune to find nothing, got %d", removed)
	}
}
