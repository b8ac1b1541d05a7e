package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"

	"affab/src/code_checkout"
	affab_context "affab/src/context"
	"affab/src/prompt"
)

var CliCodeCommand = cli.Command{
	Name:     "code",
	Usage:    "Work with temporary checkouts on the remote host",
	Category: "code",

	Subcommands: []*cli.Command{
		&CliCodeCheckoutCommand,
	},
}

var CliCodeCheckoutCommand = cli.Command{
	Name:  "checkout",
	Usage: "Clone a repository into /tmp, run commands in it, then remove it",

	Flags: commonFlags(
		&cli.StringFlag{Name: "repo", Usage: "Repository URL", Required: true},
		&cli.BoolFlag{Name: "skip-cleanup", Usage: "Leave the checkout in place"},
		&cli.BoolFlag{Name: "prompt-once", Usage: "Ask for the ref once and reuse the answer"},
		&cli.StringSliceFlag{Name: "exec", Usage: "Command to run inside the checkout. Repeatable"},
	),

	Action: withRemote(func(ctx context.Context, c *cli.Context, actx *affab_context.AffabContext) error {
		sh := actx.Shell()
		source := code_checkout.NewCodeVersionSource(actx.Env, prompt.NewSurveyAsker())

		opts := code_checkout.Options{
			GitRepoUrl:  c.String("repo"),
			SkipCleanup: c.Bool("skip-cleanup"),
			PromptOnce:  c.Bool("prompt-once"),
		}

		return code_checkout.WithCode(ctx, sh, source, opts, func(path string) error {
			fmt.Fprintln(c.App.Writer, path)

			inRepo := sh.Cd(path)
			for _, line := range c.StringSlice("exec") {
				slog.Info("Running in checkout", "command", line)

				out, err := inRepo.Run(ctx, line)
				if out != "" {
					fmt.Fprintln(c.App.Writer, out)
				}
				if err != nil {
					return err
				}
			}

			return nil
		})
	}),
}
