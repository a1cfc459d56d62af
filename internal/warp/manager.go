package warp

import (
	"context"
	"fmt"
	"log"
	"net"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/CrisRain/Lumina/internal/config"
)

// Valid backend names.
const (
	BackendUsque    = "usque"
	BackendOfficial = "official"
)

// maxConcurrentOps bounds how many subprocess-heavy operations run at once,
// keeping a burst of panel requests from forking the host to death.
const maxConcurrentOps = 4

// Manager owns the active backend and handles switching between them.
// All heavy operations funnel through a semaphore.
type Manager struct {
	mu         sync.Mutex
	runner     Runner
	backend    Backend
	socks5Port int
	sem        chan struct{}
}

func NewManager(runner Runner, socks5Port int) *Manager {
	return &Manager{
		runner:     runner,
		socks5Port: socks5Port,
		sem:        make(chan struct{}, maxConcurrentOps),
	}
}

// officialAvailable checks for the binaries the official backend requires.
func officialAvailable() error {
	var missing []string
	for _, bin := range []string{"warp-cli", "warp-svc"} {
		if _, err := exec.LookPath(bin); err != nil {
			missing = append(missing, bin)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("official backend unavailable: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func (m *Manager) newBackend(name string) (Backend, error) {
	switch name {
	case BackendUsque:
		return NewUsqueBackend(m.runner, m.socks5Port), nil
	case BackendOfficial:
		return NewOfficialBackend(m.runner, m.socks5Port), nil
	}
	return nil, fmt.Errorf("unknown WARP backend %q (use %q or %q)", name, BackendUsque, BackendOfficial)
}

// Backend returns the active backend, creating it on first use from the
// WARP_BACKEND environment (official falls back to usque when its binaries
// are missing).
func (m *Manager) Backend() Backend {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backendLocked()
}

func (m *Manager) backendLocked() Backend {
	if m.backend != nil {
		return m.backend
	}

	name := strings.ToLower(config.GetEnv("WARP_BACKEND", BackendUsque))
	if name == BackendOfficial {
		if err := officialAvailable(); err != nil {
			log.Printf("⚠️  %v; falling back to %s", err, BackendUsque)
			name = BackendUsque
		}
	}

	backend, err := m.newBackend(name)
	if err != nil {
		log.Printf("⚠️  %v; falling back to %s", err, BackendUsque)
		backend, _ = m.newBackend(BackendUsque)
	}
	log.Printf("🔧 Initialized WARP backend: %s (SOCKS5 port %d)", backend.Name(), m.socks5Port)
	m.backend = backend
	return backend
}

// CurrentBackend reports the active backend name without instantiating one.
func (m *Manager) CurrentBackend() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backend != nil {
		return m.backend.Name()
	}
	return strings.ToLower(config.GetEnv("WARP_BACKEND", BackendUsque))
}

// acquire takes a semaphore slot, bounding concurrent subprocess fanout.
func (m *Manager) acquire(ctx context.Context) error {
	select {
	case m.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release() { <-m.sem }

func (m *Manager) Connect(ctx context.Context) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()
	return m.Backend().Connect(ctx)
}

func (m *Manager) Disconnect(ctx context.Context) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()
	return m.Backend().Disconnect(ctx)
}

func (m *Manager) Status(ctx context.Context) *Status {
	return m.Backend().Status(ctx)
}

// Switch disconnects the current backend, waits for the SOCKS5 port to be
// released and swaps in the named backend. The caller decides whether to
// connect afterwards.
func (m *Manager) Switch(ctx context.Context, name string) (Backend, error) {
	name = strings.ToLower(name)
	if name != BackendUsque && name != BackendOfficial {
		return nil, fmt.Errorf("invalid backend %q", name)
	}
	if name == BackendOfficial {
		if err := officialAvailable(); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend != nil && m.backend.Name() == name {
		log.Printf("ℹ️  Already using %s backend", name)
		return m.backend, nil
	}

	if m.backend != nil {
		log.Printf("🔁 Switching backend from %s to %s", m.backend.Name(), name)
		if err := m.backend.Disconnect(ctx); err != nil {
			log.Printf("⚠️  Error disconnecting current backend: %v", err)
		}
	}

	if !m.waitForPortRelease(ctx) {
		return nil, fmt.Errorf("port %d is still occupied after disconnect, switch aborted", m.socks5Port)
	}

	backend, err := m.newBackend(name)
	if err != nil {
		return nil, err
	}
	m.backend = backend
	log.Printf("✅ Backend switched to %s", name)
	return backend, nil
}

// waitForPortRelease polls until nothing listens on the SOCKS5 port anymore,
// up to 15 seconds.
func (m *Manager) waitForPortRelease(ctx context.Context) bool {
	addr := fmt.Sprintf("127.0.0.1:%d", m.socks5Port)
	for i := 0; i < 30; i++ {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err != nil {
			// Connection refused means the port is free.
			return true
		}
		conn.Close()
		select {
		case <-ctx.Done():
			return false
		case <-time.After(500 * time.Millisecond):
		}
	}
	return false
}

// UpdateSocks5Port applies a changed SOCKS5 port. The next backend
// instantiation (or reconnect) picks it up.
func (m *Manager) UpdateSocks5Port(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.socks5Port = port
	// Force re-creation so the new port takes effect everywhere.
	m.backend = nil
	log.Printf("🔧 Updated SOCKS5 port to %d", port)
}
