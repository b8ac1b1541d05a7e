//go:build windows
// +build windows

package go_ssh_ext

import (
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

const agentDialTimeout = 2 * time.Second

// getConnectionForAgent opens the ssh-agent named pipe, e.g.
// \\.\pipe\openssh-ssh-agent.
func getConnectionForAgent(sshAuthSock string) (net.Conn, error) {
	timeout := agentDialTimeout
	return winio.DialPipe(sshAuthSock, &timeout)
}
