package respbuilder_test

import (
	"testing"

	"github.com/programme-lv/sandbox/api"
	"github.com/programme-lv/sandbox/internal"
	"github.com/programme-lv/sandbox/internal/gatherer/respbuilder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	tests := []internal.TestCase{
		{Input: "1", Expected: "1"},
		{Input: "2", Expected: "2", Hidden: true},
		{Input: "3", Expected: "3"},
	}
	res := &internal.Result{
		Verdict:     internal.RuntimeError,
		Passed:      1,
		Total:       3,
		Score:       1.0 / 3,
		TotalTimeMs: 30,
		MaxMemKiB:   2048,
		Outcomes: []internal.Outcome{
			{Index: 0, Verdict: internal.Accepted, Passed: true, TimeMs: 10, MemKiB: 1024, Stdout: "1\n"},
			{Index: 1, Verdict: internal.RuntimeError, TimeMs: 20, MemKiB: 2048, Stdout: "secret", Stderr: "Traceback", Message: "exited with code 1"},
		},
	}

	resp := respbuilder.Build(res, tests)
	assert.Equal(t, api.StatusRuntimeError, resp.Status)
	assert.Equal(t, 1, resp.Passed)
	assert.Equal(t, 3, resp.Total)
	assert.EqualValues(t, 30, resp.RuntimeMs)
	assert.EqualValues(t, 2048, resp.MemoryKiB)
	require.Len(t, resp.Details, 2)

	first := resp.Details[0]
	assert.Equal(t, 1, first.TestCase)
	require.NotNil(t, first.Stdout)
	assert.Equal(t, "1\n", *first.Stdout)
	assert.Nil(t, first.Message)

	hidden := resp.Details[1]
	assert.Equal(t, 2, hidden.TestCase)
	assert.True(t, hidden.Hidden)
	assert.Nil(t, hidden.Stdout)
	assert.Nil(t, hidden.Stderr)
	assert.Nil(t, hidden.Expected)
	require.NotNil(t, hidden.Message)
	assert.Equal(t, "exited with code 1", *hidden.Message)
}

func TestBuildCompileError(t *testing.T) {
	res := &internal.Result{
		Verdict: internal.CompileError,
		Total:   2,
		Message: "error: expected ';'",
		Compile: &internal.RunData{ExitCode: 1, Stderr: []byte("error: expected ';'")},
	}
	resp := respbuilder.Build(res, nil)
	assert.Equal(t, api.StatusCompileError, resp.Status)
	assert.Empty(t, resp.Details)
	require.NotNil(t, resp.Compile)
	assert.False(t, resp.Compile.Success)
	require.NotNil(t, resp.Message)
	assert.Equal(t, "error: expected ';'", *resp.Message)
}

func TestValidationAndError(t *testing.T) {
	v := respbuilder.Validation(0, []string{"unsupported language: \"cobol\""})
	assert.Equal(t, api.StatusValidationError, v.Status)
	assert.Len(t, v.Errors, 1)

	e := respbuilder.Error(3, "sandbox execution failed")
	assert.Equal(t, api.StatusError, e.Status)
	assert.False(t, e.Status.Judged())
	assert.NotNil(t, e.Details)
}
