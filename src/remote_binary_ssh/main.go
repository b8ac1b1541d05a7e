package remote_binary_ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	affab_context "affab/src/context"
	"affab/src/exec_helpers"
	"affab/src/remote"
)

// sshFailureStatus is what ssh exits with when it could not run the
// command at all. A remote command exiting 255 is indistinguishable.
const sshFailureStatus = 255

// BinarySshRunner runs each command through the system ssh binary.
type BinarySshRunner struct {
	Ctx *affab_context.AffabContext
}

func (c *BinarySshRunner) Close() error {
	return nil
}

func (c *BinarySshRunner) Args(cmd *remote.Command) []string {
	args := append([]string{}, c.Ctx.SshArgs...)

	if cmd.Pty {
		args = append(args, "-t")
	} else {
		args = append(args, "-T")
	}

	return append(args, c.Ctx.Endpoint.Given, cmd.String())
}

func (c *BinarySshRunner) Run(ctx context.Context, cmd *remote.Command) (string, error) {
	args := c.Args(cmd)

	slog.Debug("Running command via SSH binary", "ssh", c.Ctx.SshPath, "command", cmd.String())

	sshCommand := exec.CommandContext(ctx, c.Ctx.SshPath, args...)
	exec_helpers.PrepareForForking(sshCommand)

	var stdout, stderr bytes.Buffer
	sshCommand.Stdout = &stdout
	sshCommand.Stderr = &stderr
	if c.Ctx.Debug {
		sshCommand.Stdout = io.MultiWriter(&stdout, os.Stdout)
		sshCommand.Stderr = io.MultiWriter(&stderr, os.Stderr)
	}

	err := sshCommand.Run()
	if err == nil {
		return stdout.String(), nil
	}

	if ctx.Err() != nil {
		return stdout.String(), fmt.Errorf("running %q on %s: %w", cmd.Line, c.Ctx.Endpoint.Given, ctx.Err())
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return "", fmt.Errorf("starting %s: %w", c.Ctx.SshPath, err)
	}

	if exitErr.ExitCode() == sshFailureStatus {
		return stdout.String(), fmt.Errorf("ssh to %s failed: %s", c.Ctx.Endpoint.Given, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), &remote.CommandError{
		Command:    cmd,
		ExitStatus: exitErr.ExitCode(),
		Output:     stdout.String(),
	}
}
