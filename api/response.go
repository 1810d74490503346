package api

type Status string

const (
	StatusAccepted        Status = "AC"
	StatusWrongAnswer     Status = "WA"
	StatusTimeLimit       Status = "TLE"
	StatusRuntimeError    Status = "RE"
	StatusCompileError    Status = "CE"
	StatusError           Status = "ERROR"
	StatusValidationError Status = "VALIDATION_ERROR"
)

// Judged reports whether s is one of the five judging verdicts.
func (s Status) Judged() bool {
	switch s {
	case StatusAccepted, StatusWrongAnswer, StatusTimeLimit, StatusRuntimeError, StatusCompileError:
		return true
	}
	return false
}

type ExecResponse struct {
	Status    Status  `json:"status"`
	Passed    int     `json:"passed"`
	Total     int     `json:"total"`
	Score     float64 `json:"score"`
	RuntimeMs int64   `json:"runtime_ms"`
	MemoryKiB int64   `json:"memory_kb"`

	Message *string        `json:"message,omitempty"`
	Compile *CompileResult `json:"compile,omitempty"`
	Details []TestDetail   `json:"details"`

	// Errors lists validation violations when Status is VALIDATION_ERROR.
	Errors []string `json:"errors,omitempty"`
}

type CompileResult struct {
	Success   bool    `json:"success"`
	ExitCode  int     `json:"exit_code"`
	WallMs    int64   `json:"wall_ms"`
	MemoryKiB int64   `json:"memory_kb"`
	Stdout    *string `json:"stdout,omitempty"`
	Stderr    *string `json:"stderr,omitempty"`
}

type TestDetail struct {
	TestCase  int     `json:"testcase"`
	Status    Status  `json:"status"`
	Passed    bool    `json:"passed"`
	TimeMs    int64   `json:"time"`
	MemoryKiB int64   `json:"memory"`
	Stdout    *string `json:"stdout,omitempty"`
	Stderr    *string `json:"stderr,omitempty"`
	Expected  *string `json:"expected,omitempty"`
	Message   *string `json:"message,omitempty"`
	Hidden    bool    `json:"hidden,omitempty"`
}

// LanguageInfo is one entry of the supported languages listing.
type LanguageInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Compiled bool   `json:"compiled"`
}

type HealthResponse struct {
	Status    string   `json:"status"`
	Languages []string `json:"languages"`
	Missing   []string `json:"missing_toolchains,omitempty"`
}
