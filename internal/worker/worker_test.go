package worker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/programme-lv/sandbox/api"
	"github.com/programme-lv/sandbox/internal"
	"github.com/programme-lv/sandbox/internal/lang"
	"github.com/programme-lv/sandbox/internal/notify"
	"github.com/programme-lv/sandbox/internal/notify/mocks"
	"github.com/programme-lv/sandbox/internal/queue"
	"github.com/programme-lv/sandbox/internal/store"
	"github.com/programme-lv/sandbox/internal/tester"
	"github.com/programme-lv/sandbox/internal/validate"
	"github.com/programme-lv/sandbox/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type evalFunc func(ctx context.Context, req internal.Request) (*internal.Result, error)

func (f evalFunc) Evaluate(ctx context.Context, req internal.Request, _ internal.ResultGatherer) (*internal.Result, error) {
	return f(ctx, req)
}

func returns(res internal.Result) evalFunc {
	return func(context.Context, internal.Request) (*internal.Result, error) {
		r := res
		return &r, nil
	}
}

func accepted(n int) internal.Result {
	res := internal.Result{Verdict: internal.Accepted, Passed: n, Total: n, Score: 1}
	for i := range n {
		res.Outcomes = append(res.Outcomes, internal.Outcome{
			Index: i, Verdict: internal.Accepted, Passed: true, TimeMs: 10, MemKiB: 2048,
		})
		res.TotalTimeMs += 10
		res.MaxTimeMs = 10
		res.MaxMemKiB = 2048
	}
	return res
}

// recorder is a concurrency-safe notifier for tests that run the pool.
type recorder struct {
	mu     sync.Mutex
	topics []string
	last   map[string]any
}

func (r *recorder) Publish(_ context.Context, topic string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		r.last = map[string]any{}
	}
	r.topics = append(r.topics, topic)
	r.last[topic] = payload
	return nil
}

func (r *recorder) payload(topic string) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last[topic]
}

func job(id string) api.Job {
	return api.Job{
		SubmissionID: id,
		Code:         "a, b = map(int, input().split())\nprint(a + b)",
		Language:     "python",
		ProblemID:    "p1",
		ContestID:    "c1",
		UserID:       "u1",
		TestCases: []api.JobTestCase{
			{Input: "2 3", Output: "5"},
			{Input: "10 20", Output: "30"},
		},
		Limits: api.JobLimits{TimeLimitMs: 2000, MemoryMb: 256},
		Points: 100,
	}
}

type env struct {
	q     *queue.MemQueue
	store *store.MemStore
	w     *worker.Worker
}

func newEnv(t *testing.T, eval worker.Evaluator, n notify.Notifier) *env {
	t.Helper()
	e := &env{q: queue.NewMemQueue(16), store: store.NewMemStore()}
	e.w = worker.New(worker.Deps{
		Queue:     e.q,
		Evaluator: eval,
		Validator: validate.New(lang.NewRegistry()),
		Store:     e.store,
		Notifier:  n,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, worker.Config{Slots: 2, MaxAttempts: 3, BaseDelay: time.Millisecond})
	return e
}

func (e *env) handle(t *testing.T, j api.Job) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.q.Publish(ctx, j))
	d, err := e.q.Receive(ctx)
	require.NoError(t, err)
	e.w.Handle(ctx, d)
}

func TestAcceptedSubmission(t *testing.T) {
	ctrl := gomock.NewController(t)
	n := mocks.NewMockNotifier(ctrl)

	var result api.SubmissionResult
	var update api.SubmissionUpdate
	n.EXPECT().Publish(gomock.Any(), "user.u1.submission-result", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, p any) error {
			result = p.(api.SubmissionResult)
			return nil
		})
	n.EXPECT().Publish(gomock.Any(), "contest.c1.submission-update", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, p any) error {
			update = p.(api.SubmissionUpdate)
			return nil
		})

	e := newEnv(t, returns(accepted(2)), n)
	e.handle(t, job("s1"))

	ctx := context.Background()
	sub, err := e.store.GetSubmission(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "AC", sub.Status)
	assert.Equal(t, "accepted", sub.Verdict)
	assert.Equal(t, 100.0, sub.Score)
	assert.Equal(t, 2, sub.TestCasesPassed)
	assert.Equal(t, 2, sub.TotalTestCases)
	assert.Equal(t, int64(20), sub.ExecutionTimeMs)
	assert.Equal(t, int64(2048), sub.MemoryKiB)
	assert.Equal(t, 1, sub.Attempts)
	assert.NotNil(t, sub.CompletedAt)
	require.Len(t, sub.TestCaseResults, 2)
	assert.Equal(t, 2, sub.TestCaseResults[1].TestCase)

	p, err := e.store.GetParticipant(ctx, "c1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.Score)
	assert.Equal(t, []string{"p1"}, p.Solved)
	assert.Equal(t, []string{"s1"}, p.Submissions)

	ps, err := e.store.GetProblemStats(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), ps.TotalSubmissions)
	assert.Equal(t, int64(1), ps.AcceptedSubmissions)
	us, err := e.store.GetUserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), us.AcceptedSubmissions)

	assert.Equal(t, api.StatusAccepted, result.Status)
	assert.Equal(t, 2, result.TestCasesPassed)
	assert.Len(t, result.Details, 2)
	assert.Empty(t, result.Error)
	assert.Equal(t, api.SubmissionUpdate{
		SubmissionID: "s1", UserID: "u1", ProblemID: "p1", Status: api.StatusAccepted, Score: 100,
	}, update)
	assert.Equal(t, 0, e.q.Len())
}

func TestReplayDoesNotDoubleAward(t *testing.T) {
	e := newEnv(t, returns(accepted(2)), &recorder{})
	e.handle(t, job("s1"))
	e.handle(t, job("s1"))

	ctx := context.Background()
	p, err := e.store.GetParticipant(ctx, "c1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.Score)
	assert.Equal(t, []string{"s1"}, p.Submissions)

	ps, err := e.store.GetProblemStats(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), ps.TotalSubmissions)

	sub, err := e.store.GetSubmission(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, sub.Attempts)
	assert.Equal(t, "AC", sub.Status)
}

func TestSecondAcceptedSubmissionAwardsNothing(t *testing.T) {
	e := newEnv(t, returns(accepted(2)), &recorder{})
	e.handle(t, job("s1"))
	e.handle(t, job("s2"))

	ctx := context.Background()
	p, err := e.store.GetParticipant(ctx, "c1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.Score)
	assert.Equal(t, []string{"p1"}, p.Solved)
	assert.Equal(t, []string{"s1", "s2"}, p.Submissions)

	second, err := e.store.GetSubmission(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, "AC", second.Status, "the record itself is stored")

	ps, err := e.store.GetProblemStats(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), ps.TotalSubmissions)
	assert.Equal(t, int64(2), ps.AcceptedSubmissions)
}

func TestFirstAwardSurvivesInterleavedAcceptedSubmissions(t *testing.T) {
	e := newEnv(t, returns(accepted(2)), &recorder{})
	ctx := context.Background()

	// s2 was judged AC by another slot which has not applied its side
	// effects yet
	done := time.Now()
	require.NoError(t, e.store.SaveSubmission(ctx, &store.Submission{
		ID: "s2", ContestID: "c1", ProblemID: "p1", UserID: "u1",
		Status: "AC", Verdict: "accepted", Score: 100, Attempts: 1, CompletedAt: &done,
	}))

	e.handle(t, job("s1"))
	e.handle(t, job("s2"))

	p, err := e.store.GetParticipant(ctx, "c1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.Score)
	assert.Equal(t, []string{"p1"}, p.Solved)
	assert.Equal(t, []string{"s1", "s2"}, p.Submissions)
}

func TestPostponedDeliveriesDoNotUseUpRetries(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	eval := evalFunc(func(context.Context, internal.Request) (*internal.Result, error) {
		switch calls.Add(1) {
		case 1:
			close(started)
			<-release
		case 2:
			return nil, &tester.InfraError{Op: "create box", Err: errors.New("no space left on device")}
		}
		res := accepted(2)
		return &res, nil
	})
	e := newEnv(t, eval, &recorder{})
	ctx := context.Background()

	require.NoError(t, e.q.Publish(ctx, job("s1")))
	require.NoError(t, e.q.Publish(ctx, job("s1")))
	first, err := e.q.Receive(ctx)
	require.NoError(t, err)

	finished := make(chan struct{})
	go func() {
		e.w.Handle(ctx, first)
		close(finished)
	}()
	<-started

	// the duplicate is postponed twice while the first one runs
	dup, err := e.q.Receive(ctx)
	require.NoError(t, err)
	e.w.Handle(ctx, dup)
	dup, err = e.q.Receive(ctx)
	require.NoError(t, err)
	e.w.Handle(ctx, dup)
	dup, err = e.q.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, dup.Attempt)

	close(release)
	<-finished

	// fails transiently and must be retried rather than given up
	e.w.Handle(ctx, dup)
	again, err := e.q.Receive(ctx)
	require.NoError(t, err)
	e.w.Handle(ctx, again)

	assert.Equal(t, int32(3), calls.Load())
	sub, err := e.store.GetSubmission(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "AC", sub.Status)
	assert.Equal(t, 3, sub.Attempts)
}

func TestPartialScoreIsFloored(t *testing.T) {
	res := internal.Result{Verdict: internal.WrongAnswer, Passed: 1, Total: 3, Score: 1.0 / 3}
	e := newEnv(t, returns(res), &recorder{})
	j := job("s1")
	j.Points = 50
	e.handle(t, j)

	ctx := context.Background()
	sub, err := e.store.GetSubmission(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "WA", sub.Status)
	assert.Equal(t, "wrong_answer", sub.Verdict)
	assert.Equal(t, 16.0, sub.Score)

	p, err := e.store.GetParticipant(ctx, "c1", "u1")
	require.NoError(t, err)
	assert.Zero(t, p.Score)
	assert.Empty(t, p.Solved)
}

func TestJobWithoutContestSkipsParticipant(t *testing.T) {
	rec := &recorder{}
	e := newEnv(t, returns(accepted(2)), rec)
	j := job("s1")
	j.ContestID = ""
	e.handle(t, j)

	_, err := e.store.GetParticipant(context.Background(), "", "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, []string{"user.u1.submission-result"}, rec.topics)
}

func TestInvalidJobIsResolvedWithoutRetry(t *testing.T) {
	called := false
	eval := evalFunc(func(context.Context, internal.Request) (*internal.Result, error) {
		called = true
		return nil, errors.New("unreachable")
	})
	rec := &recorder{}
	e := newEnv(t, eval, rec)
	j := job("s1")
	j.Language = "cobol"
	e.handle(t, j)

	assert.False(t, called)
	sub, err := e.store.GetSubmission(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "RE", sub.Status)
	assert.Contains(t, sub.Message, "unsupported language")
	assert.Zero(t, sub.Score)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, e.q.Len(), "job must not be requeued")
}

func TestNotifyFailureDoesNotFailJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	n := mocks.NewMockNotifier(ctrl)
	n.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("nats: connection closed")).Times(2)

	e := newEnv(t, returns(accepted(2)), n)
	e.handle(t, job("s1"))

	sub, err := e.store.GetSubmission(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "AC", sub.Status)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, e.q.Len())
}

func TestRetriesThenMarksRuntimeError(t *testing.T) {
	var calls atomic.Int32
	eval := evalFunc(func(context.Context, internal.Request) (*internal.Result, error) {
		calls.Add(1)
		return nil, &tester.InfraError{Op: "create box", Err: errors.New("no space left on device")}
	})
	rec := &recorder{}
	e := newEnv(t, eval, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.w.Run(ctx) }()

	require.NoError(t, e.q.Publish(ctx, job("s1")))
	require.Eventually(t, func() bool {
		sub, err := e.store.GetSubmission(context.Background(), "s1")
		return err == nil && sub.Status == "RE"
	}, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, int32(3), calls.Load())
	sub, err := e.store.GetSubmission(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "runtime_error", sub.Verdict)
	assert.Equal(t, 3, sub.Attempts)
	assert.NotNil(t, sub.CompletedAt)

	msg, ok := rec.payload("user.u1.submission-result").(api.SubmissionResult)
	require.True(t, ok)
	assert.Equal(t, api.StatusRuntimeError, msg.Status)
	assert.Equal(t, "Execution failed", msg.Error)

	_, err = e.store.GetProblemStats(context.Background(), "p1")
	assert.ErrorIs(t, err, store.ErrNotFound, "failed jobs do not count as judged")
}

func TestTransientFailureRecovers(t *testing.T) {
	var calls atomic.Int32
	eval := evalFunc(func(context.Context, internal.Request) (*internal.Result, error) {
		if calls.Add(1) == 1 {
			return nil, &tester.InfraError{Op: "run test 1", Err: errors.New("fork: resource temporarily unavailable")}
		}
		res := accepted(2)
		return &res, nil
	})
	e := newEnv(t, eval, &recorder{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.w.Run(ctx) }()

	require.NoError(t, e.q.Publish(ctx, job("s1")))
	require.Eventually(t, func() bool {
		sub, err := e.store.GetSubmission(context.Background(), "s1")
		return err == nil && sub.Status == "AC"
	}, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int32(2), calls.Load())
}

func TestConcurrentDeliveryOfSameSubmissionIsPostponed(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	eval := evalFunc(func(context.Context, internal.Request) (*internal.Result, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		res := accepted(2)
		return &res, nil
	})
	e := newEnv(t, eval, &recorder{})
	ctx := context.Background()

	require.NoError(t, e.q.Publish(ctx, job("s1")))
	require.NoError(t, e.q.Publish(ctx, job("s1")))
	first, err := e.q.Receive(ctx)
	require.NoError(t, err)
	second, err := e.q.Receive(ctx)
	require.NoError(t, err)

	finished := make(chan struct{})
	go func() {
		e.w.Handle(ctx, first)
		close(finished)
	}()
	<-started

	e.w.Handle(ctx, second)
	assert.Equal(t, int32(1), calls.Load(), "duplicate must not be evaluated while the first is in flight")

	again, err := e.q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Attempt)

	close(release)
	<-finished
	e.w.Handle(ctx, again)
	assert.Equal(t, int32(2), calls.Load())

	p, err := e.store.GetParticipant(ctx, "c1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.Score)
}

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		res    internal.Result
		points float64
		want   float64
	}{
		{"accepted", internal.Result{Verdict: internal.Accepted, Score: 1}, 100, 100},
		{"half", internal.Result{Verdict: internal.WrongAnswer, Score: 0.5}, 100, 50},
		{"floored", internal.Result{Verdict: internal.TimeLimitExceeded, Score: 0.66}, 10, 6},
		{"compile error", internal.Result{Verdict: internal.CompileError}, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, worker.Score(&tt.res, tt.points))
		})
	}
}
