package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Setting keys persisted by the panel.
const (
	KeyInitialized       = "initialized"
	KeySocks5Port        = "socks5_port"
	KeyPanelPort         = "panel_port"
	KeyPanelPassword     = "panel_password"
	KeySSLEnabled        = "panel_ssl_enabled"
	KeySSLCertFile       = "panel_ssl_cert_file"
	KeySSLKeyFile        = "panel_ssl_key_file"
	KeySSLAutoSelfSigned = "panel_ssl_auto_self_signed"
	KeySSLDomain         = "panel_ssl_domain"
	KeyRemoteNodes       = "remote_nodes"
)

func defaults() map[string]any {
	return map[string]any{
		KeyInitialized:       false,
		KeySocks5Port:        1080,
		KeyPanelPort:         8000,
		KeyPanelPassword:     "",
		KeySSLEnabled:        true,
		KeySSLCertFile:       "",
		KeySSLKeyFile:        "",
		KeySSLAutoSelfSigned: true,
		KeySSLDomain:         "localhost",
	}
}

// Store is a persisted key/value settings store. Values are JSON scalars or
// structures; writes are last-write-wins per key and flushed to disk before
// Set returns.
type Store struct {
	mu     sync.RWMutex
	path   string
	values map[string]json.RawMessage
}

// Open loads (or creates) the settings file under dataDir, seeding any
// missing defaults.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	s := &Store{
		path:   filepath.Join(dataDir, "config.json"),
		values: make(map[string]json.RawMessage),
	}

	raw, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &s.values); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
		}
	case os.IsNotExist(err):
		// first boot, file created below when defaults are seeded
	default:
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	changed := false
	for key, value := range defaults() {
		if _, ok := s.values[key]; ok {
			continue
		}
		enc, _ := json.Marshal(value)
		s.values[key] = enc
		changed = true
	}
	if changed {
		if err := s.flushLocked(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// flushLocked writes the settings file atomically. Callers must hold mu (or
// have exclusive access during Open).
func (s *Store) flushLocked() error {
	enc, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, enc, 0o600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}

// Get unmarshals the value stored under key into out. Returns false when the
// key is absent or cannot be decoded into out.
func (s *Store) Get(key string, out any) bool {
	s.mu.RLock()
	raw, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		log.Printf("config: value for %q does not decode: %v", key, err)
		return false
	}
	return true
}

// Set stores value under key and persists the whole settings map.
func (s *Store) Set(key string, value any) error {
	enc, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = enc
	return s.flushLocked()
}

func (s *Store) getString(key, def string) string {
	var v string
	if s.Get(key, &v) {
		return v
	}
	return def
}

func (s *Store) getInt(key string, def int) int {
	var v int
	if s.Get(key, &v) {
		return v
	}
	return def
}

func (s *Store) getBool(key string, def bool) bool {
	var v bool
	if s.Get(key, &v) {
		return v
	}
	return def
}

// Convenience accessors.

func (s *Store) Initialized() bool       { return s.getBool(KeyInitialized, false) }
func (s *Store) Socks5Port() int         { return s.getInt(KeySocks5Port, 1080) }
func (s *Store) PanelPort() int          { return s.getInt(KeyPanelPort, 8000) }
func (s *Store) PanelPassword() string   { return s.getString(KeyPanelPassword, "") }
func (s *Store) SSLEnabled() bool        { return s.getBool(KeySSLEnabled, true) }
func (s *Store) SSLCertFile() string     { return s.getString(KeySSLCertFile, "") }
func (s *Store) SSLKeyFile() string      { return s.getString(KeySSLKeyFile, "") }
func (s *Store) SSLAutoSelfSigned() bool { return s.getBool(KeySSLAutoSelfSigned, true) }
func (s *Store) SSLDomain() string       { return s.getString(KeySSLDomain, "localhost") }

// SetInitialized flips the first-boot marker.
func (s *Store) SetInitialized(v bool) error {
	return s.Set(KeyInitialized, v)
}

// SetPassword persists a new panel password value (plaintext during setup,
// bcrypt hash after migration or password change).
func (s *Store) SetPassword(value string) error {
	return s.Set(KeyPanelPassword, value)
}
