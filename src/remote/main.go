package remote

import (
	"context"
	"fmt"
	"strings"

	"github.com/alessio/shellescape"
)

const loginShell = "/bin/bash -l -c"

// Command is a single shell line to be executed on the remote host.
type Command struct {
	// Line is the command as the caller wrote it.
	Line string
	// Dir, if set, is changed into before Line runs.
	Dir string

	Sudo bool
	// User is the sudo target. Empty means sudo's default (root).
	User string

	Pty bool
}

// String renders the exact line handed to the remote sshd.
func (c *Command) String() string {
	line := c.Line
	if c.Dir != "" {
		line = fmt.Sprintf("cd %s && %s", shellescape.Quote(c.Dir), line)
	}

	wrapped := fmt.Sprintf("%s %s", loginShell, shellescape.Quote(line))
	if !c.Sudo {
		return wrapped
	}

	prefix := []string{"sudo", "-H"}
	if c.User != "" {
		prefix = append(prefix, "-u", shellescape.Quote(c.User))
	}

	return strings.Join(prefix, " ") + " " + wrapped
}

type Runner interface {
	Run(ctx context.Context, cmd *Command) (string, error)
	Close() error
}

// CommandError reports a remote command that ran and exited non-zero.
// Transport failures are never reported as a CommandError.
type CommandError struct {
	Command    *Command
	ExitStatus int
	Output     string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("remote command %q exited with status %d", e.Command.Line, e.ExitStatus)
}
