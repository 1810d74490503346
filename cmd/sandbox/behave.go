package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/programme-lv/sandbox/internal/behave"
	"github.com/urfave/cli/v3"
)

func behaveCommand() *cli.Command {
	return &cli.Command{
		Name:      "behave",
		Usage:     "run behaviour scenarios and compare verdicts",
		ArgsUsage: "<scenarios.toml...>",
		Action:    runBehave,
	}
}

func runBehave(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() == 0 {
		return usageError(cmd, "expected at least one scenario file")
	}
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	h := a.handler(nil, nil)

	failed := 0
	for _, path := range cmd.Args().Slice() {
		cases, err := behave.Parse(path)
		if err != nil {
			return err
		}
		reports, err := behave.RunAll(ctx, cases, a.langs, h)
		if err != nil {
			return err
		}
		for _, r := range reports {
			if r.Passed() {
				fmt.Printf("%s %s\n", color.GreenString("PASS"), r.Case.Name)
				continue
			}
			failed++
			fmt.Printf("%s %s\n", color.RedString("FAIL"), r.Case.Name)
			for _, d := range r.Diffs {
				fmt.Fprintf(os.Stdout, "     %s\n", d)
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d scenario(s) failed", failed)
	}
	return nil
}
