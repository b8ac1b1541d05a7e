// Package tunnel opens and closes SSH port forwards that run on the remote
// host. A tunnel has no handle: it is identified by its canonical command
// line in the remote process table.
package tunnel

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"affab/src/process"
	"affab/src/remote"
	"affab/src/tunnel_info"
)

var loopbackRe = regexp.MustCompile(`^(localhost|172\.0\.0\.[1-8]|::1)$`)

// Unneeded reports why a tunnel to ti.RemoteHost from host would be
// pointless, or "" if it is needed.
func Unneeded(host string, ti tunnel_info.TunnelInfo) string {
	switch {
	case ti.RemoteHost == host:
		return "remote host is the current host"
	case loopbackRe.MatchString(ti.RemoteHost):
		return "remote host is a loopback address"
	}

	return ""
}

// CreateSshTunnel starts the tunnel described by ti on sh's host unless it
// is unneeded or already running. It reports whether a tunnel was started.
func CreateSshTunnel(ctx context.Context, sh *remote.Shell, ti tunnel_info.TunnelInfo) (bool, error) {
	if reason := Unneeded(sh.Host, ti); reason != "" {
		slog.Info("Skipping tunnel", "remoteHost", ti.RemoteHost, "reason", reason)
		return false, nil
	}

	if err := ti.Validate(); err != nil {
		return false, err
	}

	created, err := process.WrappedRun(ctx, sh, ti.Command(), process.WrappedRunOptions{
		SkipIfAlreadyRunning: true,
		UseSudo:              true,
	})
	if err != nil {
		return false, fmt.Errorf("creating tunnel to %s: %w", ti.RemoteHost, err)
	}

	return created, nil
}

// DestroySshTunnel kills the tunnel described by ti if it is running. It
// reports whether a kill was issued. Unlike KillProcesses, a failed kill is
// an error: the tunnel was just seen running.
func DestroySshTunnel(ctx context.Context, sh *remote.Shell, ti tunnel_info.TunnelInfo) (bool, error) {
	if err := ti.Validate(); err != nil {
		return false, err
	}

	command := ti.Command()

	running, err := process.AlreadyRunning(ctx, sh, command)
	if err != nil {
		return false, err
	}

	if !running {
		slog.Debug("Tunnel not running", "command", command)
		return false, nil
	}

	if _, err := sh.Sudo(ctx, "pkill -f "+process.Pattern(command), remote.SudoOptions{}); err != nil {
		return false, fmt.Errorf("destroying tunnel to %s: %w", ti.RemoteHost, err)
	}

	return true, nil
}
