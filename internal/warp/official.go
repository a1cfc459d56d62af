package warp

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	warpRegistrationFile = "/var/lib/cloudflare-warp/reg.json"
	warpProxyPort        = 40001
)

// OfficialBackend drives the official Cloudflare WARP client (warp-svc +
// warp-cli) in SOCKS5 proxy mode, with socat republishing the proxy on the
// configured port.
type OfficialBackend struct {
	base
}

func NewOfficialBackend(runner Runner, socks5Port int) *OfficialBackend {
	return &OfficialBackend{base: base{
		runner:     runner,
		services:   newServiceController(runner),
		socks5Port: socks5Port,
	}}
}

func (o *OfficialBackend) Name() string { return "official" }
func (o *OfficialBackend) Mode() string { return "proxy" }

// warpCLI runs one warp-cli invocation, logging failures and returning the
// trimmed output.
func (o *OfficialBackend) warpCLI(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"--accept-tos"}, args...)
	out, err := o.runner.Run(ctx, "warp-cli", full...)
	if err != nil {
		log.Printf("⚠️  warp-cli %v failed: %v", args, err)
	}
	return out, err
}

// daemonResponsive checks that warp-svc is supervised AND answering the CLI.
func (o *OfficialBackend) daemonResponsive(ctx context.Context) bool {
	if !o.services.isActive(ctx, "warp-svc") {
		return false
	}
	probe, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := o.runner.Run(probe, "warp-cli", "--accept-tos", "status")
	return err == nil
}

func (o *OfficialBackend) Connect(ctx context.Context) error {
	if _, err := os.Stat(warpRegistrationFile); os.IsNotExist(err) {
		log.Println("📝 No WARP registration found, registering...")
		o.warpCLI(ctx, "registration", "new")
	}

	if !o.daemonResponsive(ctx) {
		log.Println("🔁 warp-svc not ready, restarting services...")
		o.stopServices(ctx)
		if err := o.startServices(ctx); err != nil {
			return fmt.Errorf("failed to start official WARP services: %w", err)
		}
	}

	o.ensureSocat(ctx)

	log.Println("🔌 Connecting WARP (official, proxy mode)...")

	// Reset to a clean state, then configure proxy mode.
	o.warpCLI(ctx, "disconnect")
	o.warpCLI(ctx, "mode", "proxy")
	o.warpCLI(ctx, "proxy", "port", strconv.Itoa(warpProxyPort))
	o.warpCLI(ctx, "tunnel", "protocol", "set", "MASQUE")

	if out, _ := o.warpCLI(ctx, "connect"); strings.Contains(out, "Error") {
		log.Printf("⚠️  warp-cli connect returned: %s", out)
	}

	time.Sleep(2 * time.Second)
	if waitForState(ctx, o, true, 30*time.Second) {
		o.cache.invalidate()
		log.Println("✅ Official WARP proxy connection established")
		return nil
	}

	status, _ := o.warpCLI(ctx, "status")
	return fmt.Errorf("official WARP connection failed, status: %s", status)
}

func (o *OfficialBackend) Disconnect(ctx context.Context) error {
	log.Println("🔌 Disconnecting WARP (official)...")
	o.cache.invalidate()

	o.warpCLI(ctx, "disconnect")
	waitForState(ctx, o, false, 5*time.Second)
	o.stopServices(ctx)
	log.Println("✅ WARP disconnected")
	return nil
}

func (o *OfficialBackend) IsConnected(ctx context.Context) bool {
	if !o.daemonResponsive(ctx) {
		return false
	}
	probe, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	out, err := o.runner.Run(probe, "warp-cli", "--accept-tos", "status")
	if err != nil {
		return false
	}
	lower := strings.ToLower(out)
	return strings.Contains(lower, "connected") && !strings.Contains(lower, "disconnected")
}

func (o *OfficialBackend) Status(ctx context.Context) *Status {
	if cached, ok := o.cache.cached(); ok {
		return cached
	}
	s := o.status(ctx, o.Name(), o.Mode(), o.IsConnected(ctx))
	o.cache.store(s)
	return s
}

func (o *OfficialBackend) startServices(ctx context.Context) error {
	log.Println("🚀 Starting official WARP services (proxy mode)...")
	if err := o.services.start(ctx, "warp-svc"); err != nil {
		return err
	}

	time.Sleep(3 * time.Second)
	o.ensureSocat(ctx)

	for i := 0; i < 30; i++ {
		if o.daemonResponsive(ctx) {
			log.Println("✅ warp-svc is ready")
			return o.configureProxy(ctx)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return fmt.Errorf("timed out waiting for warp-svc")
}

func (o *OfficialBackend) configureProxy(ctx context.Context) error {
	if _, err := os.Stat(warpRegistrationFile); os.IsNotExist(err) {
		log.Println("📝 Registering new WARP account...")
		o.warpCLI(ctx, "registration", "delete")
		o.warpCLI(ctx, "registration", "new")
	}
	o.warpCLI(ctx, "tunnel", "protocol", "set", "MASQUE")
	o.warpCLI(ctx, "mode", "proxy")
	o.warpCLI(ctx, "proxy", "port", strconv.Itoa(warpProxyPort))
	return nil
}

func (o *OfficialBackend) stopServices(ctx context.Context) {
	log.Println("🛑 Stopping official services...")
	_ = o.services.stop(ctx, "socat")
	_ = o.services.stop(ctx, "warp-svc")
}

// ensureSocat keeps the socat republisher bound to the configured SOCKS5
// port, restarting it after a port change.
func (o *OfficialBackend) ensureSocat(ctx context.Context) {
	if o.services.isActive(ctx, "socat") && isPortOpen(o.socks5Port) {
		return
	}

	o.services.writeRuntimeEnv("SOCKS5_PORT", strconv.Itoa(o.socks5Port))

	log.Printf("🚀 Starting socat service (port %d)...", o.socks5Port)
	_ = o.services.stop(ctx, "socat")
	time.Sleep(300 * time.Millisecond)
	if err := o.services.start(ctx, "socat"); err != nil {
		log.Printf("⚠️  Failed to start socat: %v", err)
		return
	}
	time.Sleep(time.Second)
	if !isPortOpen(o.socks5Port) {
		log.Printf("⚠️  socat started but port %d not listening yet", o.socks5Port)
		time.Sleep(2 * time.Second)
	}
}
