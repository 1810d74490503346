// Package store persists submissions and the aggregates derived from them.
//
// Every mutating method that derives an aggregate is idempotent per
// submission: applying it again for the same submission id changes
// nothing and reports false.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Submission statuses besides the verdicts.
const (
	StatusPending = "pending"
	StatusRunning = "running"
)

type Submission struct {
	ID        string `json:"id"`
	ContestID string `json:"contestId,omitempty"`
	ProblemID string `json:"problemId"`
	UserID    string `json:"userId"`
	Language  string `json:"language"`
	Code      string `json:"code"`

	Status          string           `json:"status"`
	Verdict         string           `json:"verdict,omitempty"`
	Score           float64          `json:"score"`
	TestCasesPassed int              `json:"testCasesPassed"`
	TotalTestCases  int              `json:"totalTestCases"`
	ExecutionTimeMs int64            `json:"executionTime"`
	MemoryKiB       int64            `json:"memoryUsed"`
	Message         string           `json:"message,omitempty"`
	TestCaseResults []TestCaseResult `json:"testCaseResults,omitempty"`
	Attempts        int              `json:"attempts"`

	SubmittedAt time.Time  `json:"submittedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type TestCaseResult struct {
	TestCase  int    `json:"testcase"`
	Status    string `json:"status"`
	Passed    bool   `json:"passed"`
	TimeMs    int64  `json:"time"`
	MemoryKiB int64  `json:"memory"`
	Message   string `json:"message,omitempty"`
}

type ProblemStats struct {
	ProblemID           string `json:"problemId"`
	TotalSubmissions    int64  `json:"totalSubmissions"`
	AcceptedSubmissions int64  `json:"acceptedSubmissions"`
}

// SuccessRate is the accepted share in percent.
func (p ProblemStats) SuccessRate() float64 {
	if p.TotalSubmissions == 0 {
		return 0
	}
	return float64(p.AcceptedSubmissions) / float64(p.TotalSubmissions) * 100
}

type UserStats struct {
	UserID              string `json:"userId"`
	TotalSubmissions    int64  `json:"totalSubmissions"`
	AcceptedSubmissions int64  `json:"acceptedSubmissions"`
}

type Participant struct {
	ContestID   string   `json:"contestId"`
	UserID      string   `json:"userId"`
	Score       float64  `json:"score"`
	Solved      []string `json:"solvedProblems"`
	Submissions []string `json:"submissions"`
}

// ContestResult is one judged submission as seen by a contest.
type ContestResult struct {
	ContestID    string
	UserID       string
	ProblemID    string
	SubmissionID string
	// Award requests adding Points when the problem is not yet solved
	// by this participant.
	Award  bool
	Points float64
}

type Store interface {
	GetSubmission(ctx context.Context, id string) (*Submission, error)
	// SaveSubmission writes the whole document, creating it if needed.
	SaveSubmission(ctx context.Context, s *Submission) error

	// RecordContestResult appends the submission to the participant and
	// adds points on the first solve. The participant's solved set is the
	// only gate, so whichever accepted submission is recorded first wins
	// regardless of the order the submissions were judged in. It reports
	// whether points were added.
	RecordContestResult(ctx context.Context, r ContestResult) (bool, error)
	ApplyProblemStats(ctx context.Context, problemID, submissionID string, accepted bool) (bool, error)
	ApplyUserStats(ctx context.Context, userID, submissionID string, accepted bool) (bool, error)

	GetParticipant(ctx context.Context, contestID, userID string) (*Participant, error)
	GetProblemStats(ctx context.Context, problemID string) (*ProblemStats, error)
	GetUserStats(ctx context.Context, userID string) (*UserStats, error)

	Close() error
}
