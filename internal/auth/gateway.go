package auth

import (
	"fmt"
	"log"
	"time"
)

// Defaults, overridable through the environment (see cmd/lumina).
const (
	DefaultTokenTTL      = 12 * time.Hour
	DefaultMaxAttempts   = 10
	DefaultAttemptWindow = 5 * time.Minute
	DefaultBcryptCost    = 12
)

// Principal is the identity granted to every authenticated request. The
// panel has a single credential, so there is a single principal.
const Principal = "admin"

// ConfigSource is the slice of the settings store the gateway needs.
type ConfigSource interface {
	Initialized() bool
	SetInitialized(v bool) error
	PanelPassword() string
	SetPassword(value string) error
}

// Gateway composes the token store, the login throttle and the credential
// verifier into the authenticate/authorize contract consumed by the route
// handlers. One gateway is built in main and injected everywhere; there is
// no package-level instance.
type Gateway struct {
	config   ConfigSource
	tokens   TokenStore
	throttle *LoginThrottle
	verifier *CredentialVerifier
}

func NewGateway(config ConfigSource, tokens TokenStore, throttle *LoginThrottle, verifier *CredentialVerifier) *Gateway {
	return &Gateway{
		config:   config,
		tokens:   tokens,
		throttle: throttle,
		verifier: verifier,
	}
}

// AuthRequired reports whether protected routes demand a bearer token.
func (g *Gateway) AuthRequired() bool {
	return g.config.Initialized() && g.config.PanelPassword() != ""
}

// Setup provisions the panel credential on first boot. An empty password
// leaves authentication disabled. When a password is set the first session
// token is issued so the caller lands already authenticated.
func (g *Gateway) Setup(password string) (string, error) {
	if g.config.Initialized() {
		return "", ErrAlreadyInitialized
	}

	stored := ""
	if password != "" {
		hashed, err := g.verifier.Hash(password)
		if err != nil {
			return "", fmt.Errorf("failed to hash panel password: %w", err)
		}
		stored = hashed
	}
	if err := g.config.SetPassword(stored); err != nil {
		return "", fmt.Errorf("failed to persist panel password: %w", err)
	}
	if err := g.config.SetInitialized(true); err != nil {
		return "", fmt.Errorf("failed to mark panel initialized: %w", err)
	}

	if stored == "" {
		log.Println("⚠️  Panel initialized without a password, authentication is disabled")
		return "", nil
	}

	token, err := g.tokens.Issue()
	if err != nil {
		return "", fmt.Errorf("failed to issue session token: %w", err)
	}
	log.Println("✅ Panel initialized")
	return token, nil
}

// Login runs the full authentication flow for a password presented from
// clientIP and returns a fresh session token.
func (g *Gateway) Login(password, clientIP string) (string, error) {
	if !g.config.Initialized() {
		return "", ErrNotInitialized
	}

	stored := g.config.PanelPassword()
	if stored == "" {
		return "", ErrAuthDisabled
	}

	if !g.throttle.Allow(clientIP) {
		return "", ErrRateLimited
	}

	if err := g.verifier.Verify(password, stored); err != nil {
		g.throttle.RecordFailure(clientIP)
		return "", ErrInvalidCredential
	}

	// Best effort: a failed migration never blocks the login.
	g.verifier.MigrateIfPlaintext(password)
	g.throttle.Clear(clientIP)

	token, err := g.tokens.Issue()
	if err != nil {
		return "", fmt.Errorf("failed to issue session token: %w", err)
	}
	return token, nil
}

// Authorize resolves a bearer token into a principal. An empty token is
// accepted only while authentication is disabled.
func (g *Gateway) Authorize(token string) (string, error) {
	if !g.config.Initialized() {
		return "", ErrNotInitialized
	}

	if g.config.PanelPassword() == "" {
		return Principal, nil
	}

	if token == "" {
		return "", ErrUnauthenticated
	}
	if !g.tokens.Validate(token) {
		return "", ErrInvalidToken
	}
	return Principal, nil
}

// Logout revokes the presented token. Revoking an unknown token is fine.
func (g *Gateway) Logout(token string) {
	g.tokens.Revoke(token)
}

// ChangePassword swaps the panel credential and forces every other session
// to re-authenticate. The presented token stays valid.
func (g *Gateway) ChangePassword(token, current, next string) error {
	if _, err := g.Authorize(token); err != nil {
		return err
	}

	stored := g.config.PanelPassword()
	if err := g.verifier.Verify(current, stored); err != nil {
		return ErrInvalidCredential
	}
	if next == current {
		return fmt.Errorf("new password must differ from the current one")
	}

	hashed, err := g.verifier.Hash(next)
	if err != nil {
		return fmt.Errorf("failed to hash new password: %w", err)
	}
	if err := g.config.SetPassword(hashed); err != nil {
		return fmt.Errorf("failed to persist new password: %w", err)
	}

	revoked := g.tokens.RevokeAll(token)
	if revoked > 0 {
		log.Printf("🔒 Password changed, revoked %d other session(s)", revoked)
	}
	return nil
}

// ActiveSessions returns the number of live tokens.
func (g *Gateway) ActiveSessions() int {
	return g.tokens.CountActive()
}
