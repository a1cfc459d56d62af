package auth

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newRedisTestStore(t *testing.T) (*RedisTokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	store, err := NewRedisTokenStore(mr.Host(), mr.Port(), "", "", time.Hour)
	if err != nil {
		t.Fatalf("NewRedisTokenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStoreLifecycle(t *testing.T) {
	store, _ := newRedisTestStore(t)

	token, err := store.Issue()
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !store.Validate(token) {
		t.Error("issued token did not validate")
	}
	if store.Validate("bogus") {
		t.Error("unknown token validated")
	}
	if got := store.CountActive(); got != 1 {
		t.Errorf("CountActive = %d, want 1", got)
	}

	store.Revoke(token)
	if store.Validate(token) {
		t.Error("revoked token validated")
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := newRedisTestStore(t)

	token, _ := store.Issue()
	mr.FastForward(61 * time.Minute)
	if store.Validate(token) {
		t.Error("token validated after its TTL")
	}
}

func TestRedisStoreRevokeAllKeepsOne(t *testing.T) {
	store, _ := newRedisTestStore(t)

	keep, _ := store.Issue()
	store.Issue()
	store.Issue()

	if removed := store.RevokeAll(keep); removed != 2 {
		t.Errorf("RevokeAll removed %d tokens, want 2", removed)
	}
	if !store.Validate(keep) {
		t.Error("kept token was revoked")
	}
	if got := store.CountActive(); got != 1 {
		t.Errorf("CountActive after RevokeAll = %d, want 1", got)
	}
}
