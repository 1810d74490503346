package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/programme-lv/sandbox/api"
	"github.com/programme-lv/sandbox/client"
	"github.com/programme-lv/sandbox/internal/gatherer/termgath"
	"github.com/programme-lv/sandbox/internal/lang"
	"github.com/programme-lv/sandbox/internal/validate"
	"github.com/urfave/cli/v3"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "evaluate a source file against test cases",
		ArgsUsage: "<source file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "lang",
				Aliases: []string{"l"},
				Usage:   "language id, guessed from the file name when omitted",
			},
			&cli.StringFlag{
				Name:    "tests",
				Aliases: []string{"t"},
				Usage:   "TOML file with [[tests]] tables",
			},
			&cli.StringFlag{
				Name:  "in",
				Usage: "input of a single test case",
			},
			&cli.StringFlag{
				Name:  "ans",
				Usage: "expected output of a single test case",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "print the execution response as JSON",
			},
			&cli.BoolFlag{
				Name:  "remote",
				Usage: "send the request to the service over NATS",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "print compiler and program stderr",
			},
		},
		Action: run,
	}
}

// testsFile is the layout of the file given with --tests.
type testsFile struct {
	TimeMs   int `toml:"time_ms"`
	MemoryMb int `toml:"memory_mb"`
	Tests    []struct {
		In     string   `toml:"in"`
		Ans    string   `toml:"ans"`
		Weight *float64 `toml:"weight"`
		Hidden bool     `toml:"hidden"`
	} `toml:"tests"`
}

func run(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return usageError(cmd, "expected exactly one source file")
	}
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	path := cmd.Args().First()
	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read source: %w", err)
	}

	langID := cmd.String("lang")
	if langID == "" {
		if langID, err = guessLanguage(a.langs.List(), path); err != nil {
			return err
		}
	}
	req := api.ExecReq{Language: langID, Code: string(code)}
	if err := addTests(cmd, &req); err != nil {
		return err
	}

	if cmd.Bool("remote") {
		return runRemote(ctx, a, req)
	}
	if cmd.Bool("json") {
		return printJSON(a.handler(nil, nil).Run(ctx, req))
	}

	validated, err := a.validator.Validate(req)
	if err != nil {
		var v validate.Violations
		if errors.As(err, &v) {
			for _, msg := range v {
				fmt.Fprintln(os.Stderr, msg)
			}
		}
		return err
	}
	_, err = a.tester.Evaluate(ctx, validated, termgath.New(os.Stdout, cmd.Bool("verbose")))
	return err
}

func runRemote(ctx context.Context, a *app, req api.ExecReq) error {
	nc, err := a.connectNats()
	if err != nil {
		return err
	}
	defer nc.Close()
	c := client.New(nc,
		client.WithLocalFallback(a.handler(nil, nil)),
		client.WithLogger(a.logger),
	)
	resp, err := c.Execute(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func addTests(cmd *cli.Command, req *api.ExecReq) error {
	if path := cmd.String("tests"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read tests: %w", err)
		}
		var f testsFile
		if err := toml.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("failed to parse tests: %w", err)
		}
		for _, t := range f.Tests {
			req.TestCases = append(req.TestCases, api.TestCase{
				Input:          t.In,
				ExpectedOutput: t.Ans,
				Weight:         t.Weight,
				Hidden:         t.Hidden,
			})
		}
		req.Limits = api.Limits{TimeLimitMs: f.TimeMs, MemoryMb: f.MemoryMb}
	}
	if cmd.String("in") != "" || cmd.String("ans") != "" {
		req.TestCases = append(req.TestCases, api.TestCase{
			Input:          cmd.String("in"),
			ExpectedOutput: cmd.String("ans"),
		})
	}
	if len(req.TestCases) == 0 {
		return usageError(cmd, "no test cases, use --tests or --in/--ans")
	}
	return nil
}

// guessLanguage picks the language whose source file has the same
// extension as path.
func guessLanguage(langs []lang.Language, path string) (string, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", fmt.Errorf("cannot guess the language of %s, use --lang", path)
	}
	var found []string
	for _, l := range langs {
		if strings.EqualFold(filepath.Ext(l.CodeFname), ext) {
			found = append(found, l.ID)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("no language uses %s files, use --lang", ext)
	case 1:
		return found[0], nil
	}
	return "", fmt.Errorf("%s files match %s, use --lang", ext, strings.Join(found, ", "))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
