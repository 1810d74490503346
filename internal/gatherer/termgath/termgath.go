package termgath

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/programme-lv/sandbox/internal"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow, color.Bold)
	dimColor  = color.New(color.Faint)
)

// TerminalGatherer prints evaluation progress for humans.
type TerminalGatherer struct {
	w         io.Writer
	startedAt time.Time
	verbose   bool
}

func New(w io.Writer, verbose bool) *TerminalGatherer {
	return &TerminalGatherer{w: w, startedAt: time.Now(), verbose: verbose}
}

var _ internal.ResultGatherer = (*TerminalGatherer)(nil)

func (t *TerminalGatherer) StartJob(systemInfo string) {
	t.startedAt = time.Now()
	fmt.Fprintln(t.w, "== Evaluation started ==")
	if systemInfo != "" && t.verbose {
		dimColor.Fprintln(t.w, systemInfo)
	}
}

func (t *TerminalGatherer) StartCompile() {
	fmt.Fprintln(t.w, "-- Compilation started --")
}

func (t *TerminalGatherer) FinishCompile(data *internal.RunData) {
	fmt.Fprintln(t.w, "-- Compilation finished --")
	if data != nil {
		fmt.Fprintf(t.w, "exit=%d cpu=%dms wall=%dms mem=%dKiB\n", data.ExitCode, data.CpuMs, data.WallMs, data.MemKiB)
		if len(data.Stderr) > 0 && t.verbose {
			dimColor.Fprintf(t.w, "%s\n", strings.TrimRight(string(data.Stderr), "\n"))
		}
	}
}

func (t *TerminalGatherer) ReachTest(testIdx int, input []byte, answer []byte) {
	if t.verbose {
		fmt.Fprintf(t.w, "-> Test %d reached\n", testIdx+1)
	}
}

func (t *TerminalGatherer) IgnoreTest(testIdx int) {
	dimColor.Fprintf(t.w, "   Test %d skipped\n", testIdx+1)
}

func (t *TerminalGatherer) FinishTest(testIdx int, outcome *internal.Outcome) {
	fmt.Fprintf(t.w, "   Test %d: %s %dms %dKiB", testIdx+1, Verdict(outcome.Verdict), outcome.TimeMs, outcome.MemKiB)
	if outcome.Message != "" {
		fmt.Fprintf(t.w, " (%s)", outcome.Message)
	}
	fmt.Fprintln(t.w)
	if t.verbose && outcome.Stderr != "" {
		dimColor.Fprintf(t.w, "%s\n", strings.TrimRight(outcome.Stderr, "\n"))
	}
}

func (t *TerminalGatherer) CompileError(msg string) {
	fmt.Fprintf(t.w, "== %s ==\n", Verdict(internal.CompileError))
	fmt.Fprintln(t.w, msg)
}

func (t *TerminalGatherer) InternalError(msg string) {
	failColor.Fprintf(t.w, "== Internal error: %s ==\n", msg)
}

func (t *TerminalGatherer) FinishNoError(res *internal.Result) {
	dur := time.Since(t.startedAt).Round(time.Millisecond)
	fmt.Fprintf(t.w, "== %s %d/%d score=%.2f in %s ==\n", Verdict(res.Verdict), res.Passed, res.Total, res.Score, dur)
}

// Verdict renders v in green when accepted, yellow for WA and red otherwise.
func Verdict(v internal.Verdict) string {
	switch v {
	case internal.Accepted:
		return okColor.Sprint(string(v))
	case internal.WrongAnswer:
		return warnColor.Sprint(string(v))
	}
	return failColor.Sprint(string(v))
}
