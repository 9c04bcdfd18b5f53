// internal/radio/restarter.go
package radio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultRestartCommand restarts the BlueZ daemon.
var DefaultRestartCommand = []string{"systemctl", "restart", "bluetooth"}

// CommandRestarter restarts the radio stack by running an external command.
type CommandRestarter struct {
	Command []string

	// run is replaced in tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewCommandRestarter returns a restarter for cmd, or DefaultRestartCommand when empty.
func NewCommandRestarter(cmd []string) *CommandRestarter {
	if len(cmd) == 0 {
		cmd = DefaultRestartCommand
	}
	return &CommandRestarter{Command: cmd}
}

// Restart runs the command and waits for it to exit.
func (r *CommandRestarter) Restart(ctx context.Context) error {
	if r == nil || len(r.Command) == 0 {
		return errors.New("radio restarter: no command configured")
	}

	run := r.run
	if run == nil {
		run = combinedOutput
	}

	out, err := run(ctx, r.Command[0], r.Command[1:]...)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("radio restarter: %s: %w (%s)", strings.Join(r.Command, " "), err, msg)
		}
		return fmt.Errorf("radio restarter: %s: %w", strings.Join(r.Command, " "), err)
	}
	return nil
}

func combinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
