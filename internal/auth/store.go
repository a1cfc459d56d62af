package auth

import (
	"log"
	"time"

	"github.com/CrisRain/Lumina/internal/config"
)

// TokenStore holds issued session tokens. Tokens are opaque random strings
// with an absolute expiry; a token is valid iff it is present and not yet
// expired. Expired entries are pruned lazily on access instead of by a
// background timer.
type TokenStore interface {
	// Issue creates and records a fresh token.
	Issue() (string, error)

	// Validate reports whether token is known and unexpired.
	Validate(token string) bool

	// Revoke removes token. Removing an unknown token is a no-op.
	Revoke(token string)

	// RevokeAll removes every stored token except keep (when keep is itself
	// still valid) and returns the number removed.
	RevokeAll(keep string) int

	// CountActive returns the number of currently valid tokens.
	CountActive() int

	Close() error
}

const (
	EnvRedisHost     = "REDIS_HOST"
	EnvRedisPort     = "REDIS_PORT"
	EnvRedisUser     = "REDIS_USERNAME"
	EnvRedisPassword = "REDIS_PASSWORD"
)

// NewTokenStore picks the Redis-backed store when REDIS_HOST is set and
// reachable, otherwise the in-memory store. In-memory is the default: losing
// sessions on restart is intended behavior for a single-host panel.
func NewTokenStore(ttl time.Duration) TokenStore {
	redisHost := config.GetEnv(EnvRedisHost, "")
	if redisHost != "" {
		redisPort := config.GetEnv(EnvRedisPort, "6379")
		redisUser := config.GetEnv(EnvRedisUser, "")
		redisPassword := config.GetEnv(EnvRedisPassword, "")

		store, err := NewRedisTokenStore(redisHost, redisPort, redisUser, redisPassword, ttl)
		if err != nil {
			log.Printf("⚠️  Redis connection failed: %v", err)
			log.Println("💾 Falling back to in-memory token store")
			return NewMemoryTokenStore(ttl)
		}
		log.Printf("💾 Using Redis token store: %s:%s", redisHost, redisPort)
		return store
	}

	return NewMemoryTokenStore(ttl)
}
