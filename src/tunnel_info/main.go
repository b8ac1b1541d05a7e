package tunnel_info

import (
	"fmt"
)

const (
	DefaultLocalHost = "localhost"
	DefaultSshPort   = 22
)

// TunnelInfo describes a local port forward run on the remote host:
// LocalPort on the remote host is forwarded through RemoteUser@RemoteHost
// to LocalHost:RemotePort as seen from RemoteHost.
type TunnelInfo struct {
	LocalPort  int
	RemotePort int
	RemoteHost string
	RemoteUser string
	LocalHost  string
	SshPort    int
}

// WithDefaults fills LocalHost and SshPort when unset.
func (ti TunnelInfo) WithDefaults() TunnelInfo {
	if ti.LocalHost == "" {
		ti.LocalHost = DefaultLocalHost
	}

	if ti.SshPort == 0 {
		ti.SshPort = DefaultSshPort
	}

	return ti
}

// Command is the canonical tunnel invocation. It is both what gets run and
// how a running tunnel is recognised, so it must be deterministic.
//
// -f forks ssh into the background, -N runs no remote command.
func (ti TunnelInfo) Command() string {
	ti = ti.WithDefaults()

	return fmt.Sprintf(
		"ssh -f -N -p %d %s@%s -L %d/%s/%d -oStrictHostKeyChecking=no",
		ti.SshPort,
		ti.RemoteUser,
		ti.RemoteHost,
		ti.LocalPort,
		ti.LocalHost,
		ti.RemotePort,
	)
}

func (ti TunnelInfo) Validate() error {
	if ti.RemoteHost == "" {
		return fmt.Errorf("tunnel: remote host is required")
	}

	if ti.RemoteUser == "" {
		return fmt.Errorf("tunnel: remote user is required")
	}

	for name, port := range map[string]int{"local port": ti.LocalPort, "remote port": ti.RemotePort, "ssh port": ti.WithDefaults().SshPort} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("tunnel: invalid %s %d", name, port)
		}
	}

	return nil
}
