package warp

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes an external command and returns its combined output.
// Everything the backends do on the host (warp-cli, usque, s6-rc,
// systemctl) goes through this seam so tests can substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

const defaultCommandTimeout = 10 * time.Second

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultCommandTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		return output, fmt.Errorf("%s %v failed: %w (%s)", name, args, err, output)
	}
	return output, nil
}

// NewRunner returns the real subprocess runner.
func NewRunner() Runner {
	return execRunner{}
}
