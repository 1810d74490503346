package api

// Job is the submission queue message.
type Job struct {
	SubmissionID string        `json:"submissionId"`
	Code         string        `json:"code"`
	Language     string        `json:"language"`
	ProblemID    string        `json:"problemId"`
	ContestID    string        `json:"contestId,omitempty"`
	UserID       string        `json:"userId"`
	TestCases    []JobTestCase `json:"testCases"`
	Limits       JobLimits     `json:"limits"`
	Points       float64       `json:"points"`
}

type JobTestCase struct {
	Input  string   `json:"input"`
	Output string   `json:"output"`
	Weight *float64 `json:"weight,omitempty"`
	Hidden bool     `json:"hidden,omitempty"`
}

type JobLimits struct {
	TimeLimitMs int `json:"timeLimitMs"`
	MemoryMb    int `json:"memoryMb"`
}

// ExecReq converts the job payload to an execution request.
func (j Job) ExecReq() ExecReq {
	tests := make([]TestCase, 0, len(j.TestCases))
	for _, tc := range j.TestCases {
		tests = append(tests, TestCase{
			Input:          tc.Input,
			ExpectedOutput: tc.Output,
			Weight:         tc.Weight,
			Hidden:         tc.Hidden,
		})
	}
	return ExecReq{
		Language:  j.Language,
		Code:      j.Code,
		TestCases: tests,
		Limits: Limits{
			TimeLimitMs: j.Limits.TimeLimitMs,
			MemoryMb:    j.Limits.MemoryMb,
		},
	}
}
