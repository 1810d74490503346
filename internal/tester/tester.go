package tester

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/programme-lv/sandbox/internal"
	"github.com/programme-lv/sandbox/internal/lang"
	"github.com/programme-lv/sandbox/internal/sandbox"
)

// StopPolicy decides which per-test verdicts end an evaluation early.
type StopPolicy string

const (
	// StopOnFatal stops after TLE or RE and runs through WA.
	StopOnFatal StopPolicy = "fatal"
	// StopOnFirstFailure stops after any verdict other than AC.
	StopOnFirstFailure StopPolicy = "first-failure"
)

func ParseStopPolicy(s string) (StopPolicy, error) {
	switch StopPolicy(s) {
	case "", StopOnFatal:
		return StopOnFatal, nil
	case StopOnFirstFailure:
		return StopOnFirstFailure, nil
	}
	return "", fmt.Errorf("unknown stop policy %q", s)
}

type Executor interface {
	Run(ctx context.Context, dir string, args []string, stdin []byte, c sandbox.Constraints) (*internal.RunData, error)
}

type Languages interface {
	Get(id string) (lang.Language, error)
	List() []lang.Language
}

type Config struct {
	// CompileTimeout bounds the build step once per submission. It is
	// independent of the per-test time limit; the 10s default is longer
	// than the default test limit.
	CompileTimeout time.Duration
	OutputLimit    int
	StopPolicy     StopPolicy
}

func DefaultConfig() Config {
	return Config{
		CompileTimeout: 10 * time.Second,
		OutputLimit:    sandbox.DefaultOutputLimit,
		StopPolicy:     StopOnFatal,
	}
}

type Tester struct {
	langs      Languages
	scratch    *sandbox.Scratch
	exec       Executor
	cfg        Config
	logger     *slog.Logger
	systemInfo string
}

func NewTester(langs Languages, scratch *sandbox.Scratch, exec Executor, cfg Config, logger *slog.Logger) *Tester {
	return &Tester{
		langs:      langs,
		scratch:    scratch,
		exec:       exec,
		cfg:        cfg,
		logger:     logger,
		systemInfo: getSystemInfo(),
	}
}

func getSystemInfo() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s %s/%s, %d cpus", host, runtime.GOOS, runtime.GOARCH, runtime.NumCPU())
}

// Health checks that boxes can be created and reports languages whose
// toolchain is not on PATH. It never runs submitted code.
func (t *Tester) Health() (missing []string, err error) {
	if err := t.scratch.Writable(); err != nil {
		return nil, err
	}
	for _, l := range t.langs.List() {
		args, err := l.ExecArgs()
		if l.NeedsCompile() {
			args, err = l.CompileArgs()
		}
		if err != nil {
			missing = append(missing, l.ID)
			continue
		}
		if filepath.Base(args[0]) != args[0] {
			continue
		}
		if _, err := exec.LookPath(args[0]); err != nil {
			missing = append(missing, l.ID)
		}
	}
	return missing, nil
}
