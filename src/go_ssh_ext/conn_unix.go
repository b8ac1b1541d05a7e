//go:build !windows
// +build !windows

package go_ssh_ext

import (
	"net"
	"time"
)

const agentDialTimeout = 2 * time.Second

// getConnectionForAgent opens the ssh-agent unix socket.
func getConnectionForAgent(sshAuthSock string) (net.Conn, error) {
	return net.DialTimeout("unix", sshAuthSock, agentDialTimeout)
}
