package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	affab_context "affab/src/context"
	"affab/src/process"
)

var CliKillCommand = cli.Command{
	Name:      "kill",
	Usage:     "Kill remote processes whose command line matches a pattern",
	Category:  "process",
	Args:      true,
	ArgsUsage: "<pattern>",
	Flags:     commonFlags(),

	Action: withRemote(func(ctx context.Context, c *cli.Context, actx *affab_context.AffabContext) error {
		pattern, err := commandArg(c, "pattern")
		if err != nil {
			return err
		}

		return process.KillProcesses(ctx, actx.Shell(), pattern)
	}),
}

var CliBackgroundCommand = cli.Command{
	Name:      "background",
	Usage:     "Start a command in the background on the remote host",
	Category:  "process",
	Args:      true,
	ArgsUsage: "<command>",

	Flags: commonFlags(
		&cli.StringFlag{
			Name:     "role",
			Usage:    "Role of the command. <ROLE>_SUDO_AS overrides --sudo-as",
			Required: true,
		},

		&cli.BoolFlag{
			Name:  "kill-first",
			Usage: "Kill running instances of the command first",
		},

		&cli.StringSliceFlag{
			Name:  "env",
			Usage: "KEY=VALUE set for the command",
		},
	),

	Action: withRemote(func(ctx context.Context, c *cli.Context, actx *affab_context.AffabContext) error {
		command, err := commandArg(c, "command")
		if err != nil {
			return err
		}

		envVars, err := parseEnvVars(c.StringSlice("env"))
		if err != nil {
			return err
		}

		return process.RunInBackground(ctx, actx.Shell(), actx.Env, command, c.String("role"), process.BackgroundOptions{
			KillFirst: c.Bool("kill-first"),
			SudoAs:    c.String("sudo-as"),
			EnvVars:   envVars,
		})
	}),
}

var CliRunningCommand = cli.Command{
	Name:      "running",
	Usage:     "Print whether a command is running on the remote host",
	Category:  "process",
	Args:      true,
	ArgsUsage: "<command>",
	Flags:     commonFlags(),

	Action: withRemote(func(ctx context.Context, c *cli.Context, actx *affab_context.AffabContext) error {
		command, err := commandArg(c, "command")
		if err != nil {
			return err
		}

		running, err := process.AlreadyRunning(ctx, actx.Shell(), command)
		if err != nil {
			return err
		}

		fmt.Fprintln(c.App.Writer, running)
		return nil
	}),
}

var CliRunCommand = cli.Command{
	Name:      "run",
	Usage:     "Run a command on the remote host",
	Category:  "process",
	Args:      true,
	ArgsUsage: "<command>",

	Flags: commonFlags(
		&cli.BoolFlag{
			Name:  "skip-if-running",
			Usage: "Do nothing if the command is already running",
		},

		&cli.BoolFlag{
			Name:  "silence-failure",
			Usage: "Ignore a non-zero exit of the command",
		},

		&cli.BoolFlag{
			Name:  "sudo",
			Usage: "Run the command with sudo",
		},
	),

	Action: withRemote(func(ctx context.Context, c *cli.Context, actx *affab_context.AffabContext) error {
		command, err := commandArg(c, "command")
		if err != nil {
			return err
		}

		_, err = process.WrappedRun(ctx, actx.Shell(), command, process.WrappedRunOptions{
			SkipIfAlreadyRunning: c.Bool("skip-if-running"),
			SilenceFailure:       c.Bool("silence-failure"),
			UseSudo:              c.Bool("sudo"),
		})
		return err
	}),
}
