package internal

import "time"

// Verdict classifies one judged outcome.
type Verdict string

const (
	Accepted          Verdict = "AC"
	WrongAnswer       Verdict = "WA"
	TimeLimitExceeded Verdict = "TLE"
	RuntimeError      Verdict = "RE"
	CompileError      Verdict = "CE"
)

var verdictRank = map[Verdict]int{
	Accepted:          0,
	WrongAnswer:       1,
	RuntimeError:      2,
	TimeLimitExceeded: 3,
	CompileError:      4,
}

// Worse returns the verdict with higher precedence: CE > TLE > RE > WA > AC.
func Worse(a, b Verdict) Verdict {
	if verdictRank[b] > verdictRank[a] {
		return b
	}
	return a
}

// Fatal reports whether the verdict stops the remaining test cases
// under the default early-stop policy.
func (v Verdict) Fatal() bool {
	return v == CompileError || v == TimeLimitExceeded || v == RuntimeError
}

// Long returns the lowercase verdict name persisted alongside submissions.
func (v Verdict) Long() string {
	switch v {
	case Accepted:
		return "accepted"
	case WrongAnswer:
		return "wrong_answer"
	case TimeLimitExceeded:
		return "time_limit_exceeded"
	case RuntimeError:
		return "runtime_error"
	case CompileError:
		return "compile_error"
	}
	return "unknown"
}

// Request is a validated execution request. Values are copied on
// construction and must not be modified afterwards.
type Request struct {
	Language  string
	Code      string
	TestCases []TestCase
	Limits    Limits
}

type TestCase struct {
	Input    string
	Expected string
	Weight   *float64
	Hidden   bool
}

type Limits struct {
	Time     time.Duration
	MemoryMB int
}

// RunData describes one finished process.
type RunData struct {
	Stdout []byte
	Stderr []byte

	ExitCode   int
	ExitSignal *int

	WallMs int64
	CpuMs  int64
	MemKiB int64

	TimedOut        bool
	OutputTruncated bool
}

// Outcome is the result of a single test case.
type Outcome struct {
	Index   int
	Verdict Verdict
	Passed  bool
	TimeMs  int64
	MemKiB  int64
	Stdout  string
	Stderr  string
	Message string
}

// Result aggregates all outcomes of one evaluation. Outcomes may be
// shorter than the request's test cases when execution stopped early.
type Result struct {
	Verdict     Verdict
	Passed      int
	Total       int
	Score       float64
	TotalTimeMs int64
	MaxTimeMs   int64
	MaxMemKiB   int64
	Compile     *RunData
	Message     string
	Outcomes    []Outcome
}
