package go_ssh_ext

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/kevinburke/ssh_config"
	"github.com/skeema/knownhosts"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/term"

	"affab/src/ssh_endpoint"
)

type Options struct {
	// KnownHostsPath defaults to ~/.ssh/known_hosts.
	KnownHostsPath string

	// Timeout bounds the TCP connect. Zero means ConnectTimeout from
	// ssh_config, or no timeout.
	Timeout time.Duration
}

func DefaultKnownHostsPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".ssh", "known_hosts")
}

// Dial connects to endpoint, authenticating with the ssh-agent and the
// host's IdentityFile, then falling back to a password prompt.
func Dial(ctx context.Context, endpoint *ssh_endpoint.SshEndpoint, opts Options) (*ssh.Client, error) {
	knownHostsPath := opts.KnownHostsPath
	if knownHostsPath == "" {
		knownHostsPath = DefaultKnownHostsPath()
	}

	kh, err := knownhosts.NewDB(ssh_endpoint.CleanupSshConfigValue(knownHostsPath))
	if err != nil {
		return nil, fmt.Errorf("reading known hosts: %w", err)
	}

	slog.Debug("Connecting to server", "endpoint", endpoint)

	config := &ssh.ClientConfig{
		User:              endpoint.FinalUser(),
		Auth:              authMethods(endpoint),
		HostKeyCallback:   kh.HostKeyCallback(),
		HostKeyAlgorithms: kh.HostKeyAlgorithms(endpoint.Address()),
		Timeout:           connectTimeout(endpoint, opts),
	}

	dialer := net.Dialer{Timeout: config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint.Address())
	if err != nil {
		slog.Error("Failed to dial", "err", err)
		return nil, err
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, endpoint.Address(), config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", endpoint, err)
	}

	return ssh.NewClient(c, chans, reqs), nil
}

func connectTimeout(endpoint *ssh_endpoint.SshEndpoint, opts Options) time.Duration {
	if opts.Timeout > 0 {
		return opts.Timeout
	}

	raw := ssh_config.Get(endpoint.GivenHost, "ConnectTimeout")
	if raw == "" {
		return 0
	}

	seconds, err := time.ParseDuration(raw + "s")
	if err != nil {
		slog.Warn("Ignoring invalid ConnectTimeout", "value", raw)
		return 0
	}

	return seconds
}

func authMethods(endpoint *ssh_endpoint.SshEndpoint) []ssh.AuthMethod {
	authMethods := []ssh.AuthMethod{}

	authMethods = append(authMethods, ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
		allSigners := []ssh.Signer{}

		if agentSigners, _ := getSignersForIdentityAgent(endpoint.GivenHost); agentSigners != nil {
			allSigners = append(allSigners, agentSigners...)
		}

		if identitySigner, _ := getSignerForIdentityFile(endpoint.GivenHost); identitySigner != nil {
			allSigners = append(allSigners, identitySigner)
		}

		return allSigners, nil
	}))

	authMethods = append(authMethods, ssh.PasswordCallback(func() (string, error) {
		password, err := askForPassword(fmt.Sprintf("%s's password: ", endpoint))
		if err != nil {
			slog.Error("Error reading password", "err", err)
			return "", err
		}

		return string(password), nil
	}))

	return authMethods
}

func getSignerForIdentityFile(hostname string) (ssh.Signer, error) {
	identityFile := ssh_config.Get(hostname, "IdentityFile")

	if identityFile == "" {
		return nil, nil
	}

	identityFile = ssh_endpoint.CleanupSshConfigValue(identityFile)

	key, err := os.ReadFile(identityFile)
	if err != nil {
		slog.Debug("Unable to read identity file", "identityFile", identityFile, "err", err)
		return nil, err
	}

	slog.Info("Using identity file", "identityFile", identityFile)

	signer, err := ssh.ParsePrivateKey(key)
	if err == nil {
		return signer, nil
	}

	if _, ok := err.(*ssh.PassphraseMissingError); !ok {
		slog.Error("Unable to parse private key", "err", err)
		return nil, err
	}

	passPhrase, err := askForPassword(fmt.Sprintf("Enter passphrase for key '%s': ", identityFile))
	if err != nil {
		return nil, err
	}

	signer, err = ssh.ParsePrivateKeyWithPassphrase(key, passPhrase)
	if err != nil {
		slog.Error("Unable to parse private key", "err", err)
		return nil, err
	}

	return signer, nil
}

func getSignersForIdentityAgent(hostname string) ([]ssh.Signer, error) {
	sshAuthSock := ssh_config.Get(hostname, "IdentityAgent")

	if sshAuthSock == "" {
		sshAuthSock = os.Getenv("SSH_AUTH_SOCK")
	}

	if sshAuthSock == "" || sshAuthSock == "none" {
		return nil, nil
	}

	sshAuthSock = ssh_endpoint.CleanupSshConfigValue(sshAuthSock)

	conn, err := getConnectionForAgent(sshAuthSock)
	if err != nil {
		slog.Error("Failed to open SSH auth socket", "err", err)
		return nil, err
	}

	slog.Debug("Using ssh agent", "socket", sshAuthSock)
	agentSigners, err := agent.NewClient(conn).Signers()
	if err != nil {
		slog.Error("Error getting signers from agent", "err", err)
		return nil, err
	}

	return agentSigners, nil
}

func askForPassword(message string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("cannot prompt %q: stdin is not a terminal", message)
	}

	fmt.Fprint(os.Stderr, message)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return nil, err
	}

	return password, nil
}
