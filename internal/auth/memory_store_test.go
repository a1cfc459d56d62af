package auth

import (
	"testing"
	"time"
)

func newTestStore(ttl time.Duration) (*MemoryTokenStore, *time.Time) {
	st := NewMemoryTokenStore(ttl)
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return current }
	return st, &current
}

func TestMemoryStoreIssueValidate(t *testing.T) {
	st, _ := newTestStore(time.Hour)

	token, err := st.Issue()
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if token == "" {
		t.Fatal("Issue returned an empty token")
	}
	if !st.Validate(token) {
		t.Error("freshly issued token did not validate")
	}
	if st.Validate("") {
		t.Error("empty token validated")
	}
	if st.Validate("bogus") {
		t.Error("unknown token validated")
	}
}

func TestMemoryStoreUniqueTokens(t *testing.T) {
	st, _ := newTestStore(time.Hour)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := st.Issue()
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token issued: %s", token)
		}
		seen[token] = true
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	st, now := newTestStore(time.Hour)

	token, _ := st.Issue()

	*now = now.Add(59 * time.Minute)
	if !st.Validate(token) {
		t.Error("token expired before its TTL")
	}

	*now = now.Add(2 * time.Minute)
	if st.Validate(token) {
		t.Error("token validated after its TTL")
	}
	if got := st.CountActive(); got != 0 {
		t.Errorf("CountActive after expiry = %d, want 0", got)
	}
}

func TestMemoryStoreRevokeIdempotent(t *testing.T) {
	st, _ := newTestStore(time.Hour)

	token, _ := st.Issue()
	st.Revoke(token)
	if st.Validate(token) {
		t.Error("revoked token validated")
	}
	// Revoking again (or revoking garbage) must not panic or error.
	st.Revoke(token)
	st.Revoke("never-issued")
}

func TestMemoryStoreRevokeAllKeepsOne(t *testing.T) {
	st, _ := newTestStore(time.Hour)

	keep, _ := st.Issue()
	other1, _ := st.Issue()
	other2, _ := st.Issue()

	if removed := st.RevokeAll(keep); removed != 2 {
		t.Errorf("RevokeAll removed %d tokens, want 2", removed)
	}
	if !st.Validate(keep) {
		t.Error("kept token was revoked")
	}
	if st.Validate(other1) || st.Validate(other2) {
		t.Error("other sessions survived RevokeAll")
	}
}

func TestMemoryStoreCountActivePrunes(t *testing.T) {
	st, now := newTestStore(time.Hour)

	st.Issue()
	*now = now.Add(30 * time.Minute)
	st.Issue()
	if got := st.CountActive(); got != 2 {
		t.Fatalf("CountActive = %d, want 2", got)
	}

	*now = now.Add(45 * time.Minute)
	if got := st.CountActive(); got != 1 {
		t.Errorf("CountActive after first expiry = %d, want 1", got)
	}
}
