package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
)

// Shell issues commands through a Runner the way a deploy script would:
// plain or via sudo, optionally inside a directory, optionally tolerating
// non-zero exits.
//
// WarnOnly and Cd return modified copies, so a Shell can be scoped for a
// block of commands without affecting the caller's value.
type Shell struct {
	Runner Runner

	// Host is the host commands are issued against, as given by the user.
	Host string

	warnOnly bool
	dir      string
}

type SudoOptions struct {
	// User to run as. Empty means root.
	User string

	// DisablePty runs without a pseudo-terminal. Required for commands that
	// detach into the background.
	DisablePty bool
}

func NewShell(runner Runner, host string) *Shell {
	return &Shell{Runner: runner, Host: host}
}

// WarnOnly returns a copy of s in which a non-zero exit is logged and
// swallowed: the captured output is returned with a nil error.
func (s *Shell) WarnOnly() *Shell {
	c := *s
	c.warnOnly = true
	return &c
}

func (s *Shell) IsWarnOnly() bool {
	return s.warnOnly
}

// Cd returns a copy of s whose commands run in dir. Relative dirs are
// joined onto the current one.
func (s *Shell) Cd(dir string) *Shell {
	c := *s
	if s.dir != "" && !path.IsAbs(dir) && !strings.HasPrefix(dir, "~") {
		c.dir = path.Join(s.dir, dir)
	} else {
		c.dir = dir
	}
	return &c
}

func (s *Shell) Dir() string {
	return s.dir
}

func (s *Shell) Run(ctx context.Context, line string) (string, error) {
	return s.execute(ctx, &Command{
		Line: line,
		Dir:  s.dir,
		Pty:  true,
	})
}

func (s *Shell) Sudo(ctx context.Context, line string, opts SudoOptions) (string, error) {
	return s.execute(ctx, &Command{
		Line: line,
		Dir:  s.dir,
		Sudo: true,
		User: opts.User,
		Pty:  !opts.DisablePty,
	})
}

// Exists reports whether path exists on the remote host. The path is
// expanded by the remote shell, so "~" works.
func (s *Shell) Exists(ctx context.Context, p string) (bool, error) {
	cmd := &Command{
		Line: fmt.Sprintf("test -e \"$(echo %s)\"", p),
		Dir:  s.dir,
	}

	return s.succeeds(ctx, cmd)
}

// SudoTest runs line via sudo without a pty and reports whether it exited
// zero. A non-zero exit is false, never an error, whether or not s is
// warn-only; output is ignored.
func (s *Shell) SudoTest(ctx context.Context, line string, opts SudoOptions) (bool, error) {
	return s.succeeds(ctx, &Command{
		Line: line,
		Dir:  s.dir,
		Sudo: true,
		User: opts.User,
	})
}

// Expand returns p as the login user's shell expands it, so "~" and
// variables resolve before the path is handed to sudo, which changes HOME.
func (s *Shell) Expand(ctx context.Context, p string) (string, error) {
	out, err := s.raw(ctx, &Command{
		Line: "echo " + p,
		Dir:  s.dir,
	})
	if err != nil {
		return "", err
	}

	if out == "" || strings.Contains(out, "\n") {
		return "", fmt.Errorf("expanding %s: unexpected output %q", p, out)
	}

	return out, nil
}

func (s *Shell) succeeds(ctx context.Context, cmd *Command) (bool, error) {
	_, err := s.raw(ctx, cmd)
	if err == nil {
		return true, nil
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return false, nil
	}

	return false, err
}

func (s *Shell) execute(ctx context.Context, cmd *Command) (string, error) {
	out, err := s.raw(ctx, cmd)
	if err == nil {
		return out, nil
	}

	var cmdErr *CommandError
	if s.warnOnly && errors.As(err, &cmdErr) {
		slog.Warn("Remote command failed", "command", cmd.Line, "status", cmdErr.ExitStatus)
		return strings.TrimSpace(cmdErr.Output), nil
	}

	return out, err
}

func (s *Shell) raw(ctx context.Context, cmd *Command) (string, error) {
	if s.Runner == nil {
		return "", fmt.Errorf("no runner configured")
	}

	slog.Debug("Running remote command", "host", s.Host, "command", cmd.Line, "dir", cmd.Dir, "sudo", cmd.Sudo, "user", cmd.User)

	out, err := s.Runner.Run(ctx, cmd)
	return strings.TrimSpace(out), err
}
