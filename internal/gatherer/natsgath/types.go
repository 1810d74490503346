package natsgath

import (
	"log/slog"

	"github.com/programme-lv/sandbox/api"
	"github.com/programme-lv/sandbox/internal"
)

type natsGatherer struct {
	nc       Publisher
	inbox    string
	evalUuid string
	logger   *slog.Logger
}

var _ internal.ResultGatherer = (*natsGatherer)(nil)

func (s *natsGatherer) StartJob(systemInfo string) {
	s.send(api.NewStartJob(s.evalUuid, systemInfo))
}

func (s *natsGatherer) StartCompile() {
	s.send(api.NewStartCompile(s.evalUuid))
}

func (s *natsGatherer) FinishCompile(data *internal.RunData) {
	s.send(api.NewFinishCompile(s.evalUuid, trimRunData(data)))
}

func (s *natsGatherer) ReachTest(testIdx int, input []byte, answer []byte) {
	s.send(api.NewReachTest(s.evalUuid, testIdx+1, trimmedPtr(input), trimmedPtr(answer)))
}

func (s *natsGatherer) IgnoreTest(testIdx int) {
	s.send(api.NewIgnoreTest(s.evalUuid, testIdx+1))
}

func (s *natsGatherer) FinishTest(testIdx int, outcome *internal.Outcome) {
	var msg *string
	if outcome.Message != "" {
		m := outcome.Message
		msg = &m
	}
	run := &api.RuntimeData{
		Stdout:     trimStrToRect(outcome.Stdout, api.MaxRuntimeDataHeight, api.MaxRuntimeDataWidth),
		Stderr:     trimStrToRect(outcome.Stderr, api.MaxRuntimeDataHeight, api.MaxRuntimeDataWidth),
		WallMillis: outcome.TimeMs,
		RamKiBytes: outcome.MemKiB,
		TimedOut:   outcome.Verdict == internal.TimeLimitExceeded,
	}
	s.send(api.NewFinishTest(s.evalUuid, testIdx+1, api.Status(outcome.Verdict), msg, run))
}

func (s *natsGatherer) CompileError(msg string) {
	s.send(api.NewFinishJob(s.evalUuid, api.StatusCompileError, 0, 0, &msg))
}

func (s *natsGatherer) InternalError(msg string) {
	s.send(api.NewFinishJob(s.evalUuid, api.StatusError, 0, 0, &msg))
}

func (s *natsGatherer) FinishNoError(res *internal.Result) {
	s.send(api.NewFinishJob(s.evalUuid, api.Status(res.Verdict), res.Passed, res.Total, nil))
}

func trimRunData(data *internal.RunData) *api.RuntimeData {
	if data == nil {
		return nil
	}
	h, w := api.MaxRuntimeDataHeight, api.MaxRuntimeDataWidth
	return &api.RuntimeData{
		Stdout:     trimStrToRect(string(data.Stdout), h, w),
		Stderr:     trimStrToRect(string(data.Stderr), h, w),
		ExitCode:   data.ExitCode,
		CpuMillis:  data.CpuMs,
		WallMillis: data.WallMs,
		RamKiBytes: data.MemKiB,
		ExitSignal: data.ExitSignal,
		TimedOut:   data.TimedOut,
		Truncated:  data.OutputTruncated,
	}
}

func trimmedPtr(b []byte) *string {
	s := trimStrToRect(string(b), api.MaxRuntimeDataHeight, api.MaxRuntimeDataWidth)
	if s == "" {
		return nil
	}
	return &s
}
