package warp

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/CrisRain/Lumina/internal/config"
)

// Service manager kinds detected on the host.
const (
	managerS6      = "s6"
	managerSystemd = "systemd"
	managerUnknown = "unknown"
)

var systemdUnits = map[string]string{
	"warp-svc": "lumina-warp-svc.service",
	"usque":    "lumina-usque.service",
	"socat":    "lumina-socat.service",
}

// serviceController starts/stops host services through whichever supervisor
// the host runs (s6 inside the container image, systemd on bare metal).
type serviceController struct {
	runner Runner

	detectOnce sync.Once
	manager    string
}

func newServiceController(runner Runner) *serviceController {
	return &serviceController{runner: runner}
}

func (sc *serviceController) serviceManager() string {
	sc.detectOnce.Do(func() {
		sc.manager = detectServiceManager()
		log.Printf("🔎 Detected service manager: %s", sc.manager)
	})
	return sc.manager
}

func detectServiceManager() string {
	switch strings.ToLower(strings.TrimSpace(config.GetEnv("LUMINA_SERVICE_MANAGER", ""))) {
	case managerS6:
		return managerS6
	case managerSystemd:
		return managerSystemd
	}

	if _, err := exec.LookPath("s6-rc"); err == nil {
		if _, err := os.Stat("/run/service"); err == nil {
			return managerS6
		}
	}
	if _, err := exec.LookPath("systemctl"); err == nil {
		return managerSystemd
	}
	return managerUnknown
}

func systemdUnit(service string) string {
	if unit, ok := systemdUnits[service]; ok {
		return unit
	}
	return service
}

func (sc *serviceController) start(ctx context.Context, service string) error {
	switch sc.serviceManager() {
	case managerS6:
		_, err := sc.runner.Run(ctx, "s6-rc", "-u", "change", service)
		return err
	case managerSystemd:
		_, err := sc.runner.Run(ctx, "systemctl", "start", systemdUnit(service))
		return err
	}
	return fmt.Errorf("no supported service manager found to start %q", service)
}

func (sc *serviceController) stop(ctx context.Context, service string) error {
	switch sc.serviceManager() {
	case managerS6:
		_, err := sc.runner.Run(ctx, "s6-rc", "-d", "change", service)
		return err
	case managerSystemd:
		_, err := sc.runner.Run(ctx, "systemctl", "stop", systemdUnit(service))
		return err
	}
	return fmt.Errorf("no supported service manager found to stop %q", service)
}

func (sc *serviceController) isActive(ctx context.Context, service string) bool {
	switch sc.serviceManager() {
	case managerS6:
		out, err := sc.runner.Run(ctx, "s6-svstat", "-o", "up", "/run/service/"+service)
		return err == nil && strings.TrimSpace(out) == "true"
	case managerSystemd:
		_, err := sc.runner.Run(ctx, "systemctl", "is-active", "--quiet", systemdUnit(service))
		return err == nil
	}
	return false
}

// writeRuntimeEnv persists an env var where the supervisor's run scripts
// pick it up on next service start.
func (sc *serviceController) writeRuntimeEnv(key, value string) {
	switch sc.serviceManager() {
	case managerS6:
		envDir := "/var/run/s6/container_environment"
		if err := os.MkdirAll(envDir, 0o755); err != nil {
			return
		}
		_ = os.WriteFile(filepath.Join(envDir, key), []byte(value), 0o644)
	case managerSystemd:
		envFile := config.GetEnv("LUMINA_ENV_FILE", "/etc/lumina/lumina.env")
		if err := upsertEnvFile(envFile, key, value); err != nil {
			log.Printf("⚠️  Failed to update systemd env file %s: %v", envFile, err)
		}
	}
}

// upsertEnvFile replaces or appends KEY=value in a shell-style env file.
func upsertEnvFile(path, key, value string) error {
	var existing []string
	if raw, err := os.ReadFile(path); err == nil {
		existing = strings.Split(string(raw), "\n")
	}

	target := key + "=" + value
	replaced := false
	updated := make([]string, 0, len(existing)+1)
	for _, line := range existing {
		if strings.HasPrefix(line, key+"=") {
			updated = append(updated, target)
			replaced = true
		} else {
			updated = append(updated, line)
		}
	}
	if !replaced {
		updated = append(updated, target)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	content := strings.TrimRight(strings.Join(updated, "\n"), "\n") + "\n"
	return os.WriteFile(path, []byte(content), 0o644)
}

// isPortOpen dials the loopback port to see whether something listens there.
func isPortOpen(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 500*time.Millisecond)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
