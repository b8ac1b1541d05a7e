// Package process starts, detects and kills processes on the remote host.
//
// Detection is a live pgrep against the remote process table every time;
// nothing is cached. Callers that check and then act (WrappedRun with
// SkipIfAlreadyRunning, tunnel creation) race with anything else touching
// the same processes, so treat the check as a convenience, not a lock.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/alessio/shellescape"

	"affab/src/affab_config"
	"affab/src/remote"
)

// Pattern renders pattern as a single quoted pgrep/pkill argument.
//
// pgrep -f matches full command lines, and the sudo and bash processes
// wrapping our own pgrep carry the pattern in theirs. The first character
// is therefore wrapped in a bracket expression: "[s]sh" still matches
// "ssh", but not the literal text "[s]sh". Characters that are already
// regex syntax are left alone, as bracketing would change their meaning.
func Pattern(pattern string) string {
	if r, size := utf8.DecodeRuneInString(pattern); size > 0 && !strings.ContainsRune(regexSyntax, r) {
		pattern = "[" + pattern[:size] + "]" + pattern[size:]
	}

	return shellescape.Quote(pattern)
}

// regexSyntax holds the characters that are not literal at the start of
// an extended regular expression, plus the bracket-expression specials.
const regexSyntax = `\+*?()|[]{}^$`

// Normalize strips the backgrounding decoration ("&" and spaces) from both
// ends of command.
func Normalize(command string) string {
	return strings.Trim(command, "& ")
}

// KillProcesses kills every process whose command line matches pattern.
// Finding nothing to kill is not an error.
func KillProcesses(ctx context.Context, sh *remote.Shell, pattern string) error {
	_, err := sh.WarnOnly().Sudo(ctx, "pkill -f "+Pattern(pattern), remote.SudoOptions{})
	return err
}

type BackgroundOptions struct {
	// KillFirst kills running instances of the command before starting it.
	KillFirst bool

	// SudoAs is the user to run as unless <ROLE>_SUDO_AS overrides it.
	SudoAs string

	// EnvVars are set for the command only.
	EnvVars map[string]string
}

// BackgroundLine is the line RunInBackground hands to sudo.
func BackgroundLine(command string, envVars map[string]string) string {
	keys := make([]string, 0, len(envVars))
	for k := range envVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, shellescape.Quote(envVars[k])))
	}
	parts = append(parts, fmt.Sprintf("nohup %s &> /dev/null &", command))

	return strings.Join(parts, " ")
}

// RunInBackground starts command detached from the session, with output
// discarded. The acting user is env's <ROLE>_SUDO_AS when set, else
// opts.SudoAs.
func RunInBackground(ctx context.Context, sh *remote.Shell, env *affab_config.Env, command, role string, opts BackgroundOptions) error {
	if opts.KillFirst {
		if err := KillProcesses(ctx, sh, command); err != nil {
			return err
		}
	}

	sudoAs := env.SudoAs(role, opts.SudoAs)
	slog.Debug("Starting background command", "command", command, "role", role, "sudoAs", sudoAs)

	_, err := sh.Sudo(ctx, BackgroundLine(command, opts.EnvVars), remote.SudoOptions{
		User:       sudoAs,
		DisablePty: true,
	})
	return err
}

// AlreadyRunning reports whether a process matching command is on the
// remote process table.
func AlreadyRunning(ctx context.Context, sh *remote.Shell, command string) (bool, error) {
	out, err := sh.Run(ctx, "pgrep -f "+Pattern(Normalize(command)))

	var cmdErr *remote.CommandError
	if errors.As(err, &cmdErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if sh.IsWarnOnly() {
		return out != "", nil
	}

	return true, nil
}

type WrappedRunOptions struct {
	// SkipIfAlreadyRunning skips the command when AlreadyRunning says so.
	SkipIfAlreadyRunning bool

	// SilenceFailure swallows a non-zero exit of the command.
	SilenceFailure bool

	UseSudo bool
}

// WrappedRun runs command subject to opts. It reports whether the command
// was issued.
func WrappedRun(ctx context.Context, sh *remote.Shell, command string, opts WrappedRunOptions) (bool, error) {
	if opts.SkipIfAlreadyRunning {
		running, err := AlreadyRunning(ctx, sh, command)
		if err != nil {
			return false, err
		}

		if running {
			slog.Info("Already running, skipping", "command", command)
			return false, nil
		}
	}

	var err error
	if opts.UseSudo {
		_, err = sh.Sudo(ctx, command, remote.SudoOptions{})
	} else {
		_, err = sh.Run(ctx, command)
	}

	var cmdErr *remote.CommandError
	if opts.SilenceFailure && errors.As(err, &cmdErr) {
		slog.Warn("Ignoring failed command", "command", command, "status", cmdErr.ExitStatus)
		return true, nil
	}

	return true, err
}
