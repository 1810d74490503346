package client_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/programme-lv/sandbox/api"
	"github.com/programme-lv/sandbox/client"
	"github.com/programme-lv/sandbox/internal/lang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNats answers each subject with a canned reply or error.
type fakeNats struct {
	replies map[string]any
	errs    map[string]error
	block   bool
	got     map[string][]byte
}

func (f *fakeNats) RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error) {
	if f.got == nil {
		f.got = map[string][]byte{}
	}
	f.got[subj] = data
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err, ok := f.errs[subj]; ok {
		return nil, err
	}
	b, err := json.Marshal(f.replies[subj])
	if err != nil {
		return nil, err
	}
	return &nats.Msg{Subject: subj, Data: b}, nil
}

type localRunner struct {
	calls int
}

func (l *localRunner) Run(_ context.Context, req api.ExecReq) api.ExecResponse {
	l.calls++
	return api.ExecResponse{Status: api.StatusAccepted, Passed: len(req.TestCases), Total: len(req.TestCases)}
}

func request() api.ExecReq {
	return api.ExecReq{
		Language:  "python",
		Code:      "print(int(input()) * 2)",
		TestCases: []api.TestCase{{Input: "2", ExpectedOutput: "4"}},
		Limits:    api.Limits{TimeLimitMs: 2000, MemoryMb: 256},
	}
}

func TestExecute(t *testing.T) {
	f := &fakeNats{replies: map[string]any{
		api.SubjectRun: api.ExecResponse{Status: api.StatusWrongAnswer, Passed: 0, Total: 1},
	}}
	resp, err := client.New(f).Execute(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, api.StatusWrongAnswer, resp.Status)
	assert.Equal(t, 1, resp.Total)
	assert.NotNil(t, resp.Details)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(f.got[api.SubjectRun], &sent))
	assert.Contains(t, sent, "testcases")
	assert.Contains(t, sent, "constraints")
}

func TestExecuteNormalizesEmptyStatus(t *testing.T) {
	f := &fakeNats{replies: map[string]any{api.SubjectRun: map[string]any{}}}
	resp, err := client.New(f).Execute(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, api.StatusRuntimeError, resp.Status)
	assert.Equal(t, []api.TestDetail{}, resp.Details)
}

func TestExecuteErrorTaxonomy(t *testing.T) {
	msg := "internal error while executing code"
	tests := []struct {
		name  string
		f     *fakeNats
		check func(t *testing.T, err error)
	}{
		{
			name: "no responders",
			f:    &fakeNats{errs: map[string]error{api.SubjectRun: nats.ErrNoResponders}},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, client.ErrUnavailable)
				assert.Contains(t, err.Error(), "sandbox service unavailable")
			},
		},
		{
			name: "timeout",
			f:    &fakeNats{errs: map[string]error{api.SubjectRun: nats.ErrTimeout}},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, client.ErrTimeout)
			},
		},
		{
			name: "validation",
			f: &fakeNats{replies: map[string]any{api.SubjectRun: api.ExecResponse{
				Status: api.StatusValidationError, Errors: []string{"code must not be empty"},
			}}},
			check: func(t *testing.T, err error) {
				var verr *client.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, []string{"code must not be empty"}, verr.Errors)
			},
		},
		{
			name: "infrastructure",
			f: &fakeNats{replies: map[string]any{api.SubjectRun: api.ExecResponse{
				Status: api.StatusError, Message: &msg,
			}}},
			check: func(t *testing.T, err error) {
				var serr *client.SandboxError
				require.ErrorAs(t, err, &serr)
				assert.Equal(t, msg, serr.Message)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.New(tt.f).Execute(context.Background(), request())
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestExecuteDeadline(t *testing.T) {
	f := &fakeNats{block: true}
	_, err := client.New(f, client.WithTimeout(10*time.Millisecond)).Execute(context.Background(), request())
	assert.ErrorIs(t, err, client.ErrTimeout)
}

func TestExecuteFallsBackToLocal(t *testing.T) {
	f := &fakeNats{errs: map[string]error{api.SubjectRun: nats.ErrNoResponders}}
	local := &localRunner{}
	resp, err := client.New(f, client.WithLocalFallback(local)).Execute(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, 1, local.calls)
	assert.Equal(t, api.StatusAccepted, resp.Status)

	f = &fakeNats{errs: map[string]error{api.SubjectRun: nats.ErrTimeout}}
	_, err = client.New(f, client.WithLocalFallback(local)).Execute(context.Background(), request())
	assert.ErrorIs(t, err, client.ErrTimeout, "a slow service is not bypassed")
	assert.Equal(t, 1, local.calls)
}

func TestHealth(t *testing.T) {
	ok := &fakeNats{replies: map[string]any{api.SubjectHealth: api.HealthResponse{Status: "OK"}}}
	assert.True(t, client.New(ok).Health(context.Background()))

	bad := &fakeNats{replies: map[string]any{api.SubjectHealth: api.HealthResponse{Status: "ERROR"}}}
	assert.False(t, client.New(bad).Health(context.Background()))

	down := &fakeNats{errs: map[string]error{api.SubjectHealth: nats.ErrNoResponders}}
	assert.False(t, client.New(down).Health(context.Background()))
}

func TestLanguages(t *testing.T) {
	f := &fakeNats{replies: map[string]any{api.SubjectLanguages: []api.LanguageInfo{
		{ID: "python", Name: "Python 3"}, {ID: "go", Name: "Go", Compiled: true},
	}}}
	assert.Equal(t, []string{"python", "go"}, client.New(f).Languages(context.Background()))

	down := &fakeNats{errs: map[string]error{api.SubjectLanguages: nats.ErrNoResponders}}
	assert.Equal(t, lang.DefaultIDs(), client.New(down).Languages(context.Background()))
}
