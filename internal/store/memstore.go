package store

import (
	"context"
	"fmt"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// MemStore keeps every document in memory. Single-document updates are
// atomic through xsync's per-key Compute.
type MemStore struct {
	submissions  *xsync.MapOf[string, Submission]
	problems     *xsync.MapOf[string, ProblemStats]
	users        *xsync.MapOf[string, UserStats]
	participants *xsync.MapOf[string, Participant]
	applied      *xsync.MapOf[string, struct{}]
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		submissions:  xsync.NewMapOf[string, Submission](),
		problems:     xsync.NewMapOf[string, ProblemStats](),
		users:        xsync.NewMapOf[string, UserStats](),
		participants: xsync.NewMapOf[string, Participant](),
		applied:      xsync.NewMapOf[string, struct{}](),
	}
}

func key(parts ...string) string {
	k := ""
	for i, p := range parts {
		if i > 0 {
			k += "\x00"
		}
		k += p
	}
	return k
}

func cloneSubmission(s Submission) Submission {
	s.TestCaseResults = slices.Clone(s.TestCaseResults)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		s.CompletedAt = &t
	}
	return s
}

func (m *MemStore) GetSubmission(_ context.Context, id string) (*Submission, error) {
	s, ok := m.submissions.Load(id)
	if !ok {
		return nil, fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	c := cloneSubmission(s)
	return &c, nil
}

func (m *MemStore) SaveSubmission(_ context.Context, s *Submission) error {
	m.submissions.Store(s.ID, cloneSubmission(*s))
	return nil
}

func (m *MemStore) RecordContestResult(_ context.Context, r ContestResult) (bool, error) {
	awarded := false
	m.participants.Compute(key(r.ContestID, r.UserID), func(old Participant, loaded bool) (Participant, bool) {
		p := Participant{
			ContestID:   r.ContestID,
			UserID:      r.UserID,
			Score:       old.Score,
			Solved:      slices.Clone(old.Solved),
			Submissions: slices.Clone(old.Submissions),
		}
		if !slices.Contains(p.Submissions, r.SubmissionID) {
			p.Submissions = append(p.Submissions, r.SubmissionID)
		}
		solved := mapset.NewThreadUnsafeSet(p.Solved...)
		if r.Award && !solved.Contains(r.ProblemID) {
			p.Solved = append(p.Solved, r.ProblemID)
			p.Score += r.Points
			awarded = true
		}
		return p, false
	})
	return awarded, nil
}

func (m *MemStore) ApplyProblemStats(_ context.Context, problemID, submissionID string, accepted bool) (bool, error) {
	if _, loaded := m.applied.LoadOrStore(key("problem", problemID, submissionID), struct{}{}); loaded {
		return false, nil
	}
	m.problems.Compute(problemID, func(old ProblemStats, _ bool) (ProblemStats, bool) {
		old.ProblemID = problemID
		old.TotalSubmissions++
		if accepted {
			old.AcceptedSubmissions++
		}
		return old, false
	})
	return true, nil
}

func (m *MemStore) ApplyUserStats(_ context.Context, userID, submissionID string, accepted bool) (bool, error) {
	if _, loaded := m.applied.LoadOrStore(key("user", userID, submissionID), struct{}{}); loaded {
		return false, nil
	}
	m.users.Compute(userID, func(old UserStats, _ bool) (UserStats, bool) {
		old.UserID = userID
		old.TotalSubmissions++
		if accepted {
			old.AcceptedSubmissions++
		}
		return old, false
	})
	return true, nil
}

func (m *MemStore) GetParticipant(_ context.Context, contestID, userID string) (*Participant, error) {
	p, ok := m.participants.Load(key(contestID, userID))
	if !ok {
		return nil, fmt.Errorf("participant %s/%s: %w", contestID, userID, ErrNotFound)
	}
	p.Solved = slices.Clone(p.Solved)
	p.Submissions = slices.Clone(p.Submissions)
	return &p, nil
}

func (m *MemStore) GetProblemStats(_ context.Context, problemID string) (*ProblemStats, error) {
	p, ok := m.problems.Load(problemID)
	if !ok {
		return nil, fmt.Errorf("problem stats %s: %w", problemID, ErrNotFound)
	}
	return &p, nil
}

func (m *MemStore) GetUserStats(_ context.Context, userID string) (*UserStats, error) {
	u, ok := m.users.Load(userID)
	if !ok {
		return nil, fmt.Errorf("user stats %s: %w", userID, ErrNotFound)
	}
	return &u, nil
}

func (m *MemStore) Close() error {
	return nil
}
