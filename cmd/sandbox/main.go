package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "sandbox",
		Usage: "compile and judge untrusted code against test cases",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "TOML configuration file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			runCommand(),
			healthCommand(),
			behaveCommand(),
			enqueueCommand(),
			languagesCommand(),
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usageError(cmd *cli.Command, format string, args ...any) error {
	return fmt.Errorf("%s: %s", cmd.FullName(), fmt.Sprintf(format, args...))
}
