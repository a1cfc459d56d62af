package auth

import (
	"crypto/subtle"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// PasswordWriter persists the panel password value. Satisfied by the config
// store.
type PasswordWriter interface {
	PanelPassword() string
	SetPassword(value string) error
}

// CredentialVerifier checks a presented password against the stored panel
// credential. The stored value is either a bcrypt hash or, for installs
// predating hashing, raw plaintext that is migrated on first successful use.
type CredentialVerifier struct {
	store PasswordWriter
	cost  int
}

func NewCredentialVerifier(store PasswordWriter, cost int) *CredentialVerifier {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &CredentialVerifier{store: store, cost: cost}
}

// IsHashed reports whether value carries a bcrypt marker prefix.
func IsHashed(value string) bool {
	return strings.HasPrefix(value, "$2a$") ||
		strings.HasPrefix(value, "$2b$") ||
		strings.HasPrefix(value, "$2y$")
}

// Hash produces a salted bcrypt hash of plaintext.
func (v *CredentialVerifier) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), v.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify checks candidate against stored. An empty stored value means
// authentication is disabled and returns ErrAuthDisabled; every other
// failure collapses to ErrInvalidCredential so callers cannot tell a
// corrupt hash from a wrong password.
func (v *CredentialVerifier) Verify(candidate, stored string) error {
	if stored == "" {
		return ErrAuthDisabled
	}

	if IsHashed(stored) {
		err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate))
		if err == nil {
			return nil
		}
		if err != bcrypt.ErrMismatchedHashAndPassword {
			log.Printf("⚠️  Stored credential hash is malformed: %v", err)
		}
		return ErrInvalidCredential
	}

	// Legacy plaintext value: constant-time compare, never a byte-by-byte
	// shortcut.
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(stored)) == 1 {
		return nil
	}
	return ErrInvalidCredential
}

// MigrateIfPlaintext replaces a plaintext stored credential with its hash.
// Returns true when a migration was persisted. Only ever called right after
// a successful Verify, so current is known to be the correct password.
func (v *CredentialVerifier) MigrateIfPlaintext(current string) bool {
	stored := v.store.PanelPassword()
	if stored == "" || IsHashed(stored) {
		return false
	}

	hashed, err := v.Hash(current)
	if err != nil {
		log.Printf("⚠️  Password hash migration failed: %v", err)
		return false
	}
	if err := v.store.SetPassword(hashed); err != nil {
		log.Printf("⚠️  Failed to persist migrated password hash: %v", err)
		return false
	}
	log.Println("🔒 Migrated legacy plaintext panel password to bcrypt hash")
	return true
}
