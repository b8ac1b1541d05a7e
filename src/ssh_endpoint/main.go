package ssh_endpoint

import (
	"fmt"
	"log/slog"
	"net/url"
	"os/user"
	"strings"

	"github.com/kevinburke/ssh_config"
)

// ConfigLookup returns the ssh_config value of key for host, or "".
type ConfigLookup func(host, key string) string

type SshEndpoint struct {
	// Given is the target exactly as the user typed it.
	Given string

	GivenUser     string
	SshConfigUser string
	FallbackUser  string

	GivenHost     string
	SshConfigHost string

	GivenPort     string
	SshConfigPort string
}

func (e *SshEndpoint) String() string {
	return fmt.Sprintf("%s@%s:%s", e.FinalUser(), e.GivenHost, e.FinalPort())
}

func (e *SshEndpoint) FinalUser() string {
	if e.GivenUser != "" {
		return e.GivenUser
	}

	if e.SshConfigUser != "" {
		return e.SshConfigUser
	}

	return e.FallbackUser
}

func (e *SshEndpoint) FinalHost() string {
	if e.SshConfigHost != "" {
		return e.SshConfigHost
	}

	return e.GivenHost
}

func (e *SshEndpoint) FinalPort() string {
	if e.GivenPort != "" {
		return e.GivenPort
	}

	if e.SshConfigPort != "" {
		return e.SshConfigPort
	}

	return "22"
}

// Address is the host:port to dial.
func (e *SshEndpoint) Address() string {
	host := e.FinalHost()
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	return fmt.Sprintf("%s:%s", host, e.FinalPort())
}

// ParseSshEndpoint parses "[user@]host[:port]" and fills in what
// ~/.ssh/config knows about host.
func ParseSshEndpoint(server string) (*SshEndpoint, error) {
	return ParseSshEndpointWith(server, ssh_config.Get)
}

func ParseSshEndpointWith(server string, lookup ConfigLookup) (*SshEndpoint, error) {
	if strings.TrimSpace(server) == "" {
		return nil, fmt.Errorf("empty ssh target")
	}

	fallbackUser := ""
	if currentUser, err := user.Current(); err != nil {
		slog.Warn("Error getting current user", "err", err)
	} else {
		fallbackUser = currentUser.Username
	}

	parsed, err := url.Parse(fmt.Sprintf("ssh://%s", server))
	if err != nil {
		return nil, fmt.Errorf("invalid ssh target %q: %w", server, err)
	}

	host := parsed.Hostname()
	if host == "" {
		return nil, fmt.Errorf("invalid ssh target %q: missing host", server)
	}

	return &SshEndpoint{
		Given: server,

		GivenUser:     parsed.User.Username(),
		SshConfigUser: lookup(host, "User"),
		FallbackUser:  fallbackUser,

		GivenHost:     host,
		SshConfigHost: lookup(host, "HostName"),

		GivenPort:     parsed.Port(),
		SshConfigPort: lookup(host, "Port"),
	}, nil
}
