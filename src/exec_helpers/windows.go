//go:build windows
// +build windows

package exec_helpers

import (
	"log/slog"
	"os/exec"
)

func PrepareForForking(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return Kill(cmd)
	}
	cmd.WaitDelay = waitDelay
}

func Kill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}

	slog.Debug("Killing command", "cmd", cmd.Args, "pid", cmd.Process.Pid)

	return cmd.Process.Kill()
}
