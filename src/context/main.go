package context

import (
	"affab/src/affab_config"
	"affab/src/remote"
	"affab/src/ssh_endpoint"
)

type AffabContext struct {
	Endpoint *ssh_endpoint.SshEndpoint

	// SshPath is the ssh binary, or "internal" for the in-process client.
	SshPath string
	SshArgs []string

	KnownHostsPath string

	Debug bool

	Runner remote.Runner

	Env *affab_config.Env
}

// Shell returns a remote.Shell bound to the context's runner and host.
func (c *AffabContext) Shell() *remote.Shell {
	return remote.NewShell(c.Runner, c.Endpoint.GivenHost)
}
