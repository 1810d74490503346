package sandbox_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/programme-lv/sandbox/internal/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecutor() *sandbox.Executor {
	return sandbox.NewExecutor(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func constraints(wall time.Duration) sandbox.Constraints {
	c := sandbox.DefaultConstraints()
	c.WallTime = wall
	return c
}

func TestBoxLifecycle(t *testing.T) {
	s, err := sandbox.NewScratch(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Writable())

	a, err := s.NewBox()
	require.NoError(t, err)
	b, err := s.NewBox()
	require.NoError(t, err)
	assert.NotEqual(t, a.Path(), b.Path())
	assert.EqualValues(t, 2, s.Active())

	require.NoError(t, a.AddFile("main.py", []byte("print(1)")))
	assert.True(t, a.HasFile("main.py"))
	assert.False(t, b.HasFile("main.py"))
	require.Error(t, a.AddFile("../escape.txt", []byte("x")))

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	_, err = os.Stat(a.Path())
	assert.True(t, os.IsNotExist(err))
	assert.EqualValues(t, 1, s.Active())
	require.NoError(t, b.Close())
}

func TestRunStdinToStdout(t *testing.T) {
	e := newExecutor()
	res, err := e.Run(context.Background(), t.TempDir(), []string{"sh", "-c", "cat; echo err >&2"}, []byte("hello\n"), constraints(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(res.Stdout))
	assert.Equal(t, "err\n", string(res.Stderr))
	assert.Equal(t, 0, res.ExitCode)
	assert.False(t, res.TimedOut)
}

func TestRunNonZeroExit(t *testing.T) {
	e := newExecutor()
	res, err := e.Run(context.Background(), t.TempDir(), []string{"sh", "-c", "exit 3"}, nil, constraints(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Nil(t, res.ExitSignal)
}

func TestRunKillsOnTimeout(t *testing.T) {
	e := newExecutor()
	limit := 300 * time.Millisecond
	start := time.Now()
	res, err := e.Run(context.Background(), t.TempDir(),
		[]string{"sh", "-c", "trap '' TERM INT; while :; do :; done"}, nil, constraints(limit))
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Less(t, time.Since(start), limit+2*time.Second)
	require.NotNil(t, res.ExitSignal)
	assert.Equal(t, 9, *res.ExitSignal)
}

func TestRunCapsOutput(t *testing.T) {
	e := newExecutor()
	c := constraints(5 * time.Second)
	c.OutputLimit = 1000
	res, err := e.Run(context.Background(), t.TempDir(), []string{"sh", "-c", "yes | head -c 100000"}, nil, c)
	require.NoError(t, err)
	assert.Len(t, res.Stdout, 1000)
	assert.True(t, res.OutputTruncated)
	assert.True(t, strings.HasPrefix(string(res.Stdout), "y\ny\n"))
}

func TestRunIgnoresCallerCancellation(t *testing.T) {
	e := newExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.Run(ctx, t.TempDir(), []string{"sh", "-c", "sleep 0.2; echo done"}, nil, constraints(3*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "done\n", string(res.Stdout))
	assert.False(t, res.TimedOut)
}

func TestRunDoesNotWaitForBackgroundChildren(t *testing.T) {
	e := newExecutor()
	start := time.Now()
	res, err := e.Run(context.Background(), t.TempDir(), []string{"sh", "-c", "sleep 30 & echo started"}, nil, constraints(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "started\n", string(res.Stdout))
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestRunFinishedProgramIsNotTimedOut(t *testing.T) {
	e := newExecutor()
	// the limit passes while the pipes are still held by the child
	res, err := e.Run(context.Background(), t.TempDir(), []string{"sh", "-c", "sleep 2 & echo ok"}, nil, constraints(300*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(res.Stdout))
	assert.Equal(t, 0, res.ExitCode)
	assert.Nil(t, res.ExitSignal)
	assert.False(t, res.TimedOut)
}

func TestRunMissingBinary(t *testing.T) {
	e := newExecutor()
	_, err := e.Run(context.Background(), t.TempDir(), []string{"definitely-not-a-compiler-xyz"}, nil, constraints(time.Second))
	require.Error(t, err)
}
