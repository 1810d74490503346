package tester

import (
	"context"
	"fmt"
	"strings"

	"github.com/programme-lv/sandbox/internal"
	"github.com/programme-lv/sandbox/internal/compare"
	"github.com/programme-lv/sandbox/internal/sandbox"
)

// Evaluate compiles the request's code when its language needs it and
// runs the test cases in order, reporting progress to gath. Judging
// verdicts, including CE, are part of the result. Only failures of the
// machinery are returned as errors, always wrapped in *InfraError.
//
// The scratch box holding the source and compiled artifact is removed
// before Evaluate returns, on every path.
func (t *Tester) Evaluate(ctx context.Context, req internal.Request, gath internal.ResultGatherer) (res *internal.Result, err error) {
	if gath == nil {
		gath = internal.NopGatherer{}
	}
	gath.StartJob(t.systemInfo)

	defer func() {
		if err != nil {
			gath.InternalError(err.Error())
		}
	}()

	l, err := t.langs.Get(req.Language)
	if err != nil {
		return nil, infraErr("resolve language", err)
	}

	box, err := t.scratch.NewBox()
	if err != nil {
		return nil, infraErr("create box", err)
	}
	defer func() {
		if cerr := box.Close(); cerr != nil {
			t.logger.Error("failed to close box", "box", box.Id(), "error", cerr)
		}
	}()

	if err := box.AddFile(l.CodeFname, []byte(req.Code)); err != nil {
		return nil, infraErr("write source", err)
	}

	res = &internal.Result{Total: len(req.TestCases)}

	if l.NeedsCompile() {
		gath.StartCompile()
		data, err := t.compileSourceCode(ctx, box, l)
		if err != nil {
			return nil, err
		}
		gath.FinishCompile(data)
		res.Compile = data

		if msg := t.compileFailure(data, box, l); msg != "" {
			res.Verdict = internal.CompileError
			res.Message = msg
			gath.CompileError(msg)
			t.logger.Info("compilation failed", "language", l.ID)
			return res, nil
		}
	}

	args, err := l.ExecArgs()
	if err != nil {
		return nil, infraErr("exec command", err)
	}
	c := sandbox.Constraints{
		WallTime:    req.Limits.Time,
		OutputLimit: t.cfg.OutputLimit,
		MemoryKiB:   int64(req.Limits.MemoryMB) * 1024,
	}

	for i, test := range req.TestCases {
		gath.ReachTest(i, []byte(test.Input), []byte(test.Expected))

		data, err := t.exec.Run(ctx, box.Path(), args, []byte(test.Input), c)
		if err != nil {
			return nil, infraErr(fmt.Sprintf("run test %d", i+1), err)
		}

		outcome := judge(i, test, data, c)
		res.Outcomes = append(res.Outcomes, outcome)
		gath.FinishTest(i, &outcome)

		if t.stops(outcome.Verdict) {
			for j := i + 1; j < len(req.TestCases); j++ {
				gath.IgnoreTest(j)
			}
			break
		}
	}

	aggregate(res, req.TestCases)
	gath.FinishNoError(res)

	t.logger.Info("evaluation finished",
		"language", l.ID,
		"verdict", res.Verdict,
		"passed", res.Passed,
		"total", res.Total)
	return res, nil
}

func (t *Tester) stops(v internal.Verdict) bool {
	if t.cfg.StopPolicy == StopOnFirstFailure {
		return v != internal.Accepted
	}
	return v.Fatal()
}

func judge(idx int, test internal.TestCase, data *internal.RunData, c sandbox.Constraints) internal.Outcome {
	var msgs []string
	var verdict internal.Verdict

	switch {
	case data.TimedOut:
		verdict = internal.TimeLimitExceeded
		msgs = append(msgs, fmt.Sprintf("killed after %d ms", c.WallTime.Milliseconds()))
	case data.ExitSignal != nil:
		verdict = internal.RuntimeError
		msgs = append(msgs, fmt.Sprintf("terminated by signal %d", *data.ExitSignal))
	case data.ExitCode != 0:
		verdict = internal.RuntimeError
		msgs = append(msgs, fmt.Sprintf("exited with code %d", data.ExitCode))
	default:
		verdict = compare.Verdict(string(data.Stdout), test.Expected)
	}

	if data.OutputTruncated {
		msgs = append(msgs, "output truncated")
	}
	if c.MemoryKiB > 0 && data.MemKiB > c.MemoryKiB {
		msgs = append(msgs, fmt.Sprintf("memory usage %d KiB above advisory limit", data.MemKiB))
	}

	return internal.Outcome{
		Index:   idx,
		Verdict: verdict,
		Passed:  verdict == internal.Accepted,
		TimeMs:  data.WallMs,
		MemKiB:  data.MemKiB,
		Stdout:  string(data.Stdout),
		Stderr:  string(data.Stderr),
		Message: strings.Join(msgs, "; "),
	}
}

// aggregate fills the overall verdict, counters and score. Test cases
// that were never reached count as failed.
func aggregate(res *internal.Result, tests []internal.TestCase) {
	res.Verdict = internal.Accepted
	res.Passed = 0
	passedWeight := 0.0
	for _, o := range res.Outcomes {
		res.Verdict = internal.Worse(res.Verdict, o.Verdict)
		res.TotalTimeMs += o.TimeMs
		res.MaxTimeMs = max(res.MaxTimeMs, o.TimeMs)
		res.MaxMemKiB = max(res.MaxMemKiB, o.MemKiB)
		if o.Passed {
			res.Passed++
			passedWeight += weight(tests[o.Index])
		}
	}

	weighted := false
	totalWeight := 0.0
	for _, tc := range tests {
		weighted = weighted || tc.Weight != nil
		totalWeight += weight(tc)
	}

	switch {
	case len(tests) == 0:
		res.Score = 0
	case weighted && totalWeight > 0:
		res.Score = passedWeight / totalWeight
	case weighted:
		res.Score = 0
	default:
		res.Score = float64(res.Passed) / float64(len(tests))
	}
}

// weight of a test case without an explicit weight is 1.
func weight(tc internal.TestCase) float64 {
	if tc.Weight == nil {
		return 1
	}
	return *tc.Weight
}
