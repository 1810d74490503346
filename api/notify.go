package api

// Notification event names.
const (
	SubmissionResultEvent = "submission-result"
	SubmissionUpdateEvent = "submission-update"
)

// SubmissionResult is published to the submitting user.
type SubmissionResult struct {
	SubmissionID    string       `json:"submissionId"`
	ProblemID       string       `json:"problemId"`
	Status          Status       `json:"status"`
	Verdict         string       `json:"verdict"`
	Score           float64      `json:"score"`
	TestCasesPassed int          `json:"testCasesPassed"`
	TotalTestCases  int          `json:"totalTestCases"`
	ExecutionTimeMs int64        `json:"executionTime"`
	MemoryKiB       int64        `json:"memoryUsed"`
	Details         []TestDetail `json:"testCaseResults,omitempty"`
	Error           string       `json:"error,omitempty"`
}

// SubmissionUpdate is published to the owning contest.
type SubmissionUpdate struct {
	SubmissionID string  `json:"submissionId"`
	UserID       string  `json:"userId"`
	ProblemID    string  `json:"problemId"`
	Status       Status  `json:"status"`
	Score        float64 `json:"score"`
}
