package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"

	affab_context "affab/src/context"
	"affab/src/pyenv"
)

var CliPyenvCommand = cli.Command{
	Name:     "pyenv",
	Usage:    "Install pyenv and manage Python environments on the remote host",
	Category: "pyenv",

	Subcommands: []*cli.Command{
		&CliPyenvInstallCommand,
		&CliPyenvDotFileCommand,
		&CliPyenvEnvInstallCommand,
		&CliPyenvEnvUninstallCommand,
	},
}

var CliPyenvInstallCommand = cli.Command{
	Name:  "install",
	Usage: fmt.Sprintf("Clone pyenv and its plugins into %s", pyenv.Root),
	Flags: commonFlags(),

	Action: withRemote(func(ctx context.Context, c *cli.Context, actx *affab_context.AffabContext) error {
		return pyenv.InstallPyenv(ctx, actx.Shell())
	}),
}

var CliPyenvDotFileCommand = cli.Command{
	Name:  "dotfile",
	Usage: "Add the pyenv setup lines missing from a shell profile",

	Flags: commonFlags(
		&cli.StringFlag{Name: "home-dir", Value: "~"},
		&cli.StringFlag{Name: "dot-file", Value: ".bash_profile"},
		&cli.StringFlag{Name: "user", Usage: "Owner to give the file after changing it"},
	),

	Action: withRemote(func(ctx context.Context, c *cli.Context, actx *affab_context.AffabContext) error {
		added, err := pyenv.AddPyenvToDotFile(ctx, actx.Shell(), pyenv.DotFileOptions{
			HomeDir: c.String("home-dir"),
			DotFile: c.String("dot-file"),
			User:    c.String("user"),
		})
		if err != nil {
			return err
		}

		slog.Info("Profile updated", "linesAdded", len(added))
		return nil
	}),
}

var CliPyenvEnvInstallCommand = cli.Command{
	Name:      "env-install",
	Usage:     "Install a Python version and a virtualenv based on it",
	Args:      true,
	ArgsUsage: "<version> <virtualenv-name>",

	Flags: commonFlags(
		&cli.BoolFlag{Name: "replace-existing", Usage: "Replace the virtualenv if it exists (not supported yet)"},
	),

	Action: withRemote(func(ctx context.Context, c *cli.Context, actx *affab_context.AffabContext) error {
		version := c.Args().Get(0)
		name := c.Args().Get(1)
		if version == "" || name == "" {
			return fmt.Errorf("<version> and <virtualenv-name> are required")
		}

		return pyenv.InstallPyenvEnvironment(ctx, actx.Shell(), version, name, c.Bool("replace-existing"))
	}),
}

var CliPyenvEnvUninstallCommand = cli.Command{
	Name:      "env-uninstall",
	Usage:     "Remove a virtualenv",
	Args:      true,
	ArgsUsage: "<virtualenv-name>",
	Flags:     commonFlags(),

	Action: withRemote(func(ctx context.Context, c *cli.Context, actx *affab_context.AffabContext) error {
		name := c.Args().Get(0)
		if name == "" {
			return fmt.Errorf("<virtualenv-name> is required")
		}

		return pyenv.UninstallPyenvEnvironment(ctx, actx.Shell(), name)
	}),
}
