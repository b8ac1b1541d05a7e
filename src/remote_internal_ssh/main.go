package remote_internal_ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/crypto/ssh"

	affab_context "affab/src/context"
	"affab/src/remote"
)

// InternalSshRunner runs each command in its own session on an
// in-process ssh connection.
type InternalSshRunner struct {
	Ctx       *affab_context.AffabContext
	SshClient *ssh.Client
}

func (c *InternalSshRunner) Close() error {
	if c.SshClient == nil {
		return fmt.Errorf("ssh client not initialized")
	}

	return c.SshClient.Close()
}

func (c *InternalSshRunner) Run(ctx context.Context, cmd *remote.Command) (string, error) {
	if c.SshClient == nil {
		return "", fmt.Errorf("ssh client not initialized")
	}

	line := cmd.String()
	slog.Debug("Running command via SSH", "command", line)

	session, err := c.SshClient.NewSession()
	if err != nil {
		return "", fmt.Errorf("opening ssh session: %w", err)
	}

	defer session.Close()

	if cmd.Pty {
		modes := ssh.TerminalModes{
			ssh.ECHO:          0,
			ssh.TTY_OP_ISPEED: 14400,
			ssh.TTY_OP_OSPEED: 14400,
		}
		if err := session.RequestPty("xterm", 40, 200, modes); err != nil {
			return "", fmt.Errorf("requesting pty: %w", err)
		}
	}

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if c.debug() {
		session.Stdout = io.MultiWriter(&stdout, os.Stdout)
		session.Stderr = io.MultiWriter(&stderr, os.Stderr)
	}

	done := make(chan error, 1)
	go func() {
		done <- session.Run(line)
	}()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		session.Close()
		return "", fmt.Errorf("running %q: %w", cmd.Line, ctx.Err())

	case err = <-done:
	}

	if err == nil {
		return stdout.String(), nil
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), &remote.CommandError{
			Command:    cmd,
			ExitStatus: exitErr.ExitStatus(),
			Output:     stdout.String(),
		}
	}

	return stdout.String(), fmt.Errorf("running %q: %w", cmd.Line, err)
}

func (c *InternalSshRunner) debug() bool {
	return c.Ctx != nil && c.Ctx.Debug
}
