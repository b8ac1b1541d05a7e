//go:build !windows
// +build !windows

package exec_helpers

import (
	"log/slog"
	"os/exec"
	"syscall"
)

// PrepareForForking puts cmd in its own process group and makes context
// cancellation kill the whole group, so helpers spawned by ssh (e.g. a
// ProxyCommand) go away with it.
func PrepareForForking(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
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

	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		if err := cmd.Process.Kill(); err != nil {
			slog.Error("Failed to kill process group", "error", err, "pid", cmd.Process.Pid)
			return err
		}
	}

	return nil
}
