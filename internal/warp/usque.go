package warp

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/CrisRain/Lumina/internal/config"
)

// UsqueBackend drives the usque MASQUE client as a supervised SOCKS5 proxy
// service. This is the default backend: it needs no Cloudflare daemon.
type UsqueBackend struct {
	base
	configPath string
}

func NewUsqueBackend(runner Runner, socks5Port int) *UsqueBackend {
	return &UsqueBackend{
		base: base{
			runner:     runner,
			services:   newServiceController(runner),
			socks5Port: socks5Port,
		},
		configPath: config.GetEnv("USQUE_CONFIG_PATH", "/var/lib/warp/config.json"),
	}
}

func (u *UsqueBackend) Name() string { return "usque" }
func (u *UsqueBackend) Mode() string { return "proxy" }

// initialize registers a new usque account when no config exists yet.
func (u *UsqueBackend) initialize(ctx context.Context) error {
	configDir := filepath.Dir(u.configPath)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create usque config dir: %w", err)
	}

	if _, err := os.Stat(u.configPath); err == nil {
		return nil
	}

	log.Println("📝 usque config not found, registering new account...")
	binary := config.GetEnv("USQUE_BINARY", "usque")
	if out, err := u.runner.Run(ctx, binary, "register", "--accept-tos"); err != nil {
		return fmt.Errorf("usque registration failed: %w (%s)", err, out)
	}
	log.Println("✅ usque registration successful")
	return nil
}

func (u *UsqueBackend) Connect(ctx context.Context) error {
	if err := u.initialize(ctx); err != nil {
		return err
	}

	if u.IsConnected(ctx) {
		log.Println("ℹ️  usque already running")
		return nil
	}

	log.Printf("🚀 Starting usque service (proxy mode, port %d)...", u.socks5Port)
	u.services.writeRuntimeEnv("SOCKS5_PORT", strconv.Itoa(u.socks5Port))

	// Stop first; idempotent when not running.
	_ = u.services.stop(ctx, "usque")
	time.Sleep(500 * time.Millisecond)
	if err := u.services.start(ctx, "usque"); err != nil {
		return fmt.Errorf("failed to start usque service: %w", err)
	}

	log.Println("⏳ Waiting for usque proxy to become ready...")
	if waitForState(ctx, u, true, 15*time.Second) {
		u.cache.invalidate()
		log.Println("✅ usque proxy started")
		return nil
	}
	return fmt.Errorf("usque proxy failed to start (timeout)")
}

func (u *UsqueBackend) Disconnect(ctx context.Context) error {
	log.Println("🛑 Stopping usque service...")
	u.cache.invalidate()
	if err := u.services.stop(ctx, "usque"); err != nil {
		return fmt.Errorf("error stopping usque: %w", err)
	}
	return nil
}

func (u *UsqueBackend) IsConnected(ctx context.Context) bool {
	return u.services.isActive(ctx, "usque") && isPortOpen(u.socks5Port)
}

func (u *UsqueBackend) Status(ctx context.Context) *Status {
	if cached, ok := u.cache.cached(); ok {
		return cached
	}
	s := u.status(ctx, u.Name(), u.Mode(), u.IsConnected(ctx))
	u.cache.store(s)
	return s
}
