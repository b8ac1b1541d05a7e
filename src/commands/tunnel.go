package commands

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v2"

	affab_context "affab/src/context"
	"affab/src/tunnel"
	"affab/src/tunnel_info"
)

func tunnelFlags() []cli.Flag {
	return commonFlags(
		&cli.IntFlag{Name: "local-port", Usage: "Port to listen on, on the remote host", Required: true},
		&cli.IntFlag{Name: "remote-port", Usage: "Port to forward to, as seen from --remote-host", Required: true},
		&cli.StringFlag{Name: "remote-host", Usage: "Host to tunnel through", Required: true},
		&cli.StringFlag{Name: "remote-user", Usage: "User on --remote-host", Required: true},
		&cli.StringFlag{Name: "local-host", Usage: "Forward destination, as seen from --remote-host", Value: tunnel_info.DefaultLocalHost},
		&cli.IntFlag{Name: "ssh-port", Usage: "SSH port of --remote-host", Value: tunnel_info.DefaultSshPort},
	)
}

func tunnelInfoFromFlags(c *cli.Context) tunnel_info.TunnelInfo {
	return tunnel_info.TunnelInfo{
		LocalPort:  c.Int("local-port"),
		RemotePort: c.Int("remote-port"),
		RemoteHost: c.String("remote-host"),
		RemoteUser: c.String("remote-user"),
		LocalHost:  c.String("local-host"),
		SshPort:    c.Int("ssh-port"),
	}
}

var CliTunnelCommand = cli.Command{
	Name:     "tunnel",
	Usage:    "Manage SSH tunnels running on the remote host",
	Category: "tunnel",

	Subcommands: []*cli.Command{
		&CliTunnelCreateCommand,
		&CliTunnelDestroyCommand,
	},
}

var CliTunnelCreateCommand = cli.Command{
	Name:  "create",
	Usage: "Start a tunnel unless it is unneeded or already running",
	Flags: tunnelFlags(),

	Action: withRemote(func(ctx context.Context, c *cli.Context, actx *affab_context.AffabContext) error {
		created, err := tunnel.CreateSshTunnel(ctx, actx.Shell(), tunnelInfoFromFlags(c))
		if err != nil {
			return err
		}

		slog.Info("Tunnel create finished", "created", created)
		return nil
	}),
}

var CliTunnelDestroyCommand = cli.Command{
	Name:  "destroy",
	Usage: "Kill a tunnel if it is running",
	Flags: tunnelFlags(),

	Action: withRemote(func(ctx context.Context, c *cli.Context, actx *affab_context.AffabContext) error {
		destroyed, err := tunnel.DestroySshTunnel(ctx, actx.Shell(), tunnelInfoFromFlags(c))
		if err != nil {
			return err
		}

		slog.Info("Tunnel destroy finished", "destroyed", destroyed)
		return nil
	}),
}
