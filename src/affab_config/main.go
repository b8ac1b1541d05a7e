package affab_config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

type AffabConfigServer struct {
	SshPath    string   `yaml:"ssh-path,omitempty"`
	SshArg     []string `yaml:"ssh-arg,omitempty"`
	SudoAs     string   `yaml:"sudo-as,omitempty"`
	KnownHosts string   `yaml:"known-hosts,omitempty"`
}

type AffabConfig struct {
	Default AffabConfigServer            `yaml:"default,omitempty"`
	Servers map[string]AffabConfigServer `yaml:"servers"`
}

// Server returns the section for host, or an empty one.
func (c *AffabConfig) Server(host string) AffabConfigServer {
	return c.Servers[host]
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "affab", "config.yml")
}

// LoadConfig reads path. A missing file is an empty config.
func LoadConfig(path string) (*AffabConfig, error) {
	bytes, err := os.ReadFile(path)

	if err != nil {
		if os.IsNotExist(err) {
			return &AffabConfig{Servers: map[string]AffabConfigServer{}}, nil
		}

		return nil, err
	}

	var cconfig AffabConfig
	if err := yaml.Unmarshal(bytes, &cconfig); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if cconfig.Servers == nil {
		cconfig.Servers = map[string]AffabConfigServer{}
	}

	return &cconfig, nil
}

var envIndex = map[string][]string{
	"ssh-path":    {"AFFAB_SSH_PATH"},
	"ssh-arg":     {"AFFAB_SSH_ARG"},
	"sudo-as":     {"AFFAB_SUDO_AS"},
	"known-hosts": {"AFFAB_KNOWN_HOSTS"},
}

type shouldSetFunc func(name string) bool

// ApplyPrecedence fills flags the user did not pass, in order: the
// server's section, the default section, then AFFAB_* variables.
func ApplyPrecedence(
	c *cli.Context,
	defaultServerConfig AffabConfigServer,
	serverConfig AffabConfigServer,
) error {
	flagNames := getFlagNames(c)
	shouldSet := func(name string) bool {
		return slices.Contains(flagNames, name) && !c.IsSet(name)
	}

	// First apply the specific server config, then the default config.
	if err := applyServerConfig(c, serverConfig, shouldSet); err != nil {
		return err
	}

	if err := applyServerConfig(c, defaultServerConfig, shouldSet); err != nil {
		return err
	}

	// Fall back to environment variables if still not set.
	for name, keys := range envIndex {
		if !shouldSet(name) {
			continue
		}

		if raw, ok := lookupFirst(keys); ok {
			if err := c.Set(name, raw); err != nil {
				return err
			}
		}
	}

	return nil
}

func applyServerConfig(c *cli.Context, serverConfig AffabConfigServer, shouldSet shouldSetFunc) error {
	if shouldSet("ssh-path") && serverConfig.SshPath != "" {
		if err := c.Set("ssh-path", serverConfig.SshPath); err != nil {
			return err
		}
	}

	if shouldSet("ssh-arg") && len(serverConfig.SshArg) > 0 {
		for _, v := range serverConfig.SshArg {
			if err := c.Set("ssh-arg", v); err != nil {
				return err
			}
		}
	}

	if shouldSet("sudo-as") && serverConfig.SudoAs != "" {
		if err := c.Set("sudo-as", serverConfig.SudoAs); err != nil {
			return err
		}
	}

	if shouldSet("known-hosts") && serverConfig.KnownHosts != "" {
		if err := c.Set("known-hosts", serverConfig.KnownHosts); err != nil {
			return err
		}
	}

	return nil
}

func getFlagNames(c *cli.Context) []string {
	flagNames := []string{}

	if c.Command == nil {
		return flagNames
	}

	for _, f := range c.Command.Flags {
		flagNames = append(flagNames, f.Names()...)
	}

	return flagNames
}

func lookupFirst(keys []string) (string, bool) {
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
			return v, true
		}
	}

	return "", false
}
