package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// tokenBytes yields 256 bits of entropy per token.
const tokenBytes = 32

// MemoryTokenStore keeps tokens in a mutex-guarded map keyed by token value
// with the absolute expiry as value. All operations are O(n) worst case,
// which is fine: n is one entry per live panel session.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	ttl    time.Duration
	now    func() time.Time
}

func NewMemoryTokenStore(ttl time.Duration) *MemoryTokenStore {
	return &MemoryTokenStore{
		tokens: make(map[string]time.Time),
		ttl:    ttl,
		now:    time.Now,
	}
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// pruneLocked drops expired entries. Callers must hold mu.
func (st *MemoryTokenStore) pruneLocked() {
	now := st.now()
	for token, expiry := range st.tokens {
		if !expiry.After(now) {
			delete(st.tokens, token)
		}
	}
}

func (st *MemoryTokenStore) Issue() (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.pruneLocked()
	st.tokens[token] = st.now().Add(st.ttl)
	return token, nil
}

func (st *MemoryTokenStore) Validate(token string) bool {
	if token == "" {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.pruneLocked()
	_, ok := st.tokens[token]
	return ok
}

func (st *MemoryTokenStore) Revoke(token string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.tokens, token)
}

func (st *MemoryTokenStore) RevokeAll(keep string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.pruneLocked()

	removed := 0
	for token := range st.tokens {
		if token == keep {
			continue
		}
		delete(st.tokens, token)
		removed++
	}
	return removed
}

func (st *MemoryTokenStore) CountActive() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.pruneLocked()
	return len(st.tokens)
}

func (st *MemoryTokenStore) Close() error {
	return nil
}
