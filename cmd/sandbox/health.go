package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/programme-lv/sandbox/client"
	"github.com/urfave/cli/v3"
)

const (
	healthOK = iota
	healthWarn
	healthError
)

type feedbackRow struct {
	unit    string
	health  int
	message string
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "check the scratch directory and language toolchains",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "remote",
				Usage: "ask the service over NATS instead",
			},
		},
		Action: health,
	}
}

func health(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	var feedback []feedbackRow
	if cmd.Bool("remote") {
		feedback = append(feedback, remoteHealth(ctx, a))
	} else {
		feedback = localHealth(a)
	}
	outputFeedback(feedback)

	for _, row := range feedback {
		if row.health == healthError {
			return errors.New("unhealthy")
		}
	}
	return nil
}

func localHealth(a *app) []feedbackRow {
	if err := a.scratch.Writable(); err != nil {
		return []feedbackRow{{unit: "Scratch", health: healthError, message: err.Error()}}
	}
	rows := []feedbackRow{{unit: "Scratch", health: healthOK, message: a.scratch.Root()}}

	missing, err := a.tester.Health()
	if err != nil {
		return append(rows, feedbackRow{unit: "Tester", health: healthError, message: err.Error()})
	}
	for _, l := range a.langs.List() {
		row := feedbackRow{unit: l.Name, health: healthOK, message: l.ExecCmd}
		if l.NeedsCompile() {
			row.message = l.CompileCmd
		}
		if slices.Contains(missing, l.ID) {
			row.health = healthWarn
			row.message = "toolchain not found: " + row.message
		}
		rows = append(rows, row)
	}
	return rows
}

func remoteHealth(ctx context.Context, a *app) feedbackRow {
	nc, err := a.connectNats()
	if err != nil {
		return feedbackRow{unit: "NATS", health: healthError, message: err.Error()}
	}
	defer nc.Close()
	if !client.New(nc, client.WithLogger(a.logger)).Health(ctx) {
		return feedbackRow{unit: "Service", health: healthError, message: "not healthy or not responding"}
	}
	return feedbackRow{unit: "Service", health: healthOK, message: a.cfg.NATS.URL}
}

func outputFeedback(feedback []feedbackRow) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "UNIT\tHEALTH\tMESSAGE")
	for _, row := range feedback {
		fmt.Fprintf(w, "%s\t%s\t%s\n", row.unit, healthCode(row.health), row.message)
	}
	w.Flush()
}

func healthCode(h int) string {
	switch h {
	case healthOK:
		return color.GreenString("OKAY")
	case healthWarn:
		return color.YellowString("WARN")
	}
	return color.RedString("ERROR")
}
