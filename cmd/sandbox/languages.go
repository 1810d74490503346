package main

import (
	"context"

	"github.com/programme-lv/sandbox/client"
	"github.com/urfave/cli/v3"
)

func languagesCommand() *cli.Command {
	return &cli.Command{
		Name:  "languages",
		Usage: "list supported languages",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "remote",
				Usage: "ask the service over NATS instead",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if !cmd.Bool("remote") {
				return printJSON(a.handler(nil, nil).Languages())
			}
			nc, err := a.connectNats()
			if err != nil {
				return err
			}
			defer nc.Close()
			return printJSON(client.New(nc, client.WithLogger(a.logger)).Languages(ctx))
		},
	}
}
