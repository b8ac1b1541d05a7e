package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"

	"github.com/urfave/cli/v2"

	"affab/src/affab_config"
	affab_context "affab/src/context"
	"affab/src/go_ssh_ext"
	"affab/src/logger"
	"affab/src/remote"
	"affab/src/remote_binary_ssh"
	"affab/src/remote_internal_ssh"
	"affab/src/ssh_endpoint"
)

func defaultSshPath() string {
	if runtime.GOOS == "windows" {
		return "C:\\Windows\\System32\\OpenSSH\\ssh.exe"
	}

	return "ssh"
}

// commonFlags are the connection flags every remote command takes.
// ssh-path, ssh-arg, sudo-as and known-hosts have no EnvVars because
// ApplyPrecedence consults the config file before AFFAB_* variables.
func commonFlags(extra ...cli.Flag) []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "host",
			Usage:    "Target host as [user@]host[:port]",
			EnvVars:  []string{"AFFAB_HOST"},
			Required: true,
		},

		&cli.StringFlag{
			Name:  "ssh-path",
			Usage: "Path to SSH binary. 'binary' will use the default system SSH binary. 'internal' will use the internal SSH client. Anything else will be used as the path to the SSH binary",
			Value: "binary",
		},

		&cli.StringSliceFlag{
			Name:  "ssh-arg",
			Usage: "Additional arguments to pass to the SSH command",
		},

		&cli.StringFlag{
			Name:  "sudo-as",
			Usage: "User to run background commands as when <ROLE>_SUDO_AS is not set",
		},

		&cli.StringFlag{
			Name:  "known-hosts",
			Usage: "known_hosts file for the internal SSH client",
			Value: go_ssh_ext.DefaultKnownHostsPath(),
		},

		&cli.StringFlag{
			Name:    "config",
			Usage:   "Configuration file",
			EnvVars: []string{"AFFAB_CONFIG"},
			Value:   affab_config.DefaultConfigPath(),
		},

		&cli.BoolFlag{
			Name:    "debug",
			EnvVars: []string{"AFFAB_DEBUG"},
		},

		&cli.BoolFlag{
			Name:    "no-color",
			EnvVars: []string{"NO_COLOR"},
		},
	}

	return append(flags, extra...)
}

// newRunner connects the runner selected by ssh-path.
var newRunner = func(ctx context.Context, actx *affab_context.AffabContext) (remote.Runner, error) {
	if actx.SshPath == "internal" {
		sshClient, err := go_ssh_ext.Dial(ctx, actx.Endpoint, go_ssh_ext.Options{KnownHostsPath: actx.KnownHostsPath})
		if err != nil {
			return nil, err
		}

		return &remote_internal_ssh.InternalSshRunner{
			Ctx:       actx,
			SshClient: sshClient,
		}, nil
	}

	return &remote_binary_ssh.BinarySshRunner{Ctx: actx}, nil
}

func prepareContext(ctx context.Context, c *cli.Context) (*affab_context.AffabContext, error) {
	isDebug := c.Bool("debug")
	logger.PrepareLogger(logger.Options{Debug: isDebug, NoColor: c.Bool("no-color")})

	endpoint, err := ssh_endpoint.ParseSshEndpoint(c.String("host"))
	if err != nil {
		return nil, err
	}

	config, err := affab_config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}

	if err := affab_config.ApplyPrecedence(c, config.Default, config.Server(endpoint.GivenHost)); err != nil {
		return nil, err
	}

	env, err := affab_config.LoadEnv(ctx)
	if err != nil {
		return nil, err
	}

	sshPath := c.String("ssh-path")
	if sshPath == "binary" {
		sshPath = defaultSshPath()
	}

	actx := &affab_context.AffabContext{
		Endpoint:       endpoint,
		SshPath:        sshPath,
		SshArgs:        c.StringSlice("ssh-arg"),
		KnownHostsPath: c.String("known-hosts"),
		Debug:          isDebug,
		Env:            env,
	}

	runner, err := newRunner(ctx, actx)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", endpoint, err)
	}
	actx.Runner = runner

	return actx, nil
}

type remoteAction func(ctx context.Context, c *cli.Context, actx *affab_context.AffabContext) error

// withRemote wraps a command action with connection setup, SIGINT
// cancellation and teardown.
func withRemote(action remoteAction) cli.ActionFunc {
	return func(c *cli.Context) error {
		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
		defer stop()

		actx, err := prepareContext(ctx, c)
		if err != nil {
			return err
		}

		defer func() {
			if err := actx.Runner.Close(); err != nil {
				slog.Warn("Error closing connection", "err", err)
			}
		}()

		return action(ctx, c, actx)
	}
}

// commandArg joins the positional arguments into a single shell line.
func commandArg(c *cli.Context, what string) (string, error) {
	line := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if line == "" {
		return "", fmt.Errorf("<%s> is required", what)
	}

	return line, nil
}

// parseEnvVars turns KEY=VALUE pairs into a map.
func parseEnvVars(pairs []string) (map[string]string, error) {
	envVars := make(map[string]string, len(pairs))

	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid environment variable %q, want KEY=VALUE", pair)
		}

		envVars[k] = v
	}

	return envVars, nil
}

func NewApp(version string) *cli.App {
	return &cli.App{
		Name:    "affab",
		Usage:   "Remote deployment helpers over SSH",
		Version: version,

		Commands: []*cli.Command{
			&CliKillCommand,
			&CliBackgroundCommand,
			&CliRunningCommand,
			&CliRunCommand,
			&CliTunnelCommand,
			&CliPyenvCommand,
			&CliCodeCommand,
		},
	}
}
