// Package config loads sandbox settings from a TOML file, a .env file
// and SANDBOX_* environment variables, in increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/programme-lv/sandbox/internal/xdg"
)

// Duration is a time.Duration written as "2s" or "1m30s" in TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

const (
	QueueMemory = "memory"
	QueueSQS    = "sqs"

	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

type Config struct {
	LogLevel      string   `toml:"log_level"`
	ScratchDir    string   `toml:"scratch_dir"`
	LanguagesFile string   `toml:"languages_file"`
	Denylist      []string `toml:"denylist"`

	Tester  Tester  `toml:"tester"`
	Worker  Worker  `toml:"worker"`
	Queue   Queue   `toml:"queue"`
	Store   Store   `toml:"store"`
	NATS    NATS    `toml:"nats"`
	Metrics Metrics `toml:"metrics"`
}

type Tester struct {
	// CompileTimeout is applied once per submission and is not tied to
	// default_time_limit_ms; see tester.Config.
	CompileTimeout     Duration `toml:"compile_timeout"`
	OutputLimit        int      `toml:"output_limit"`
	StopPolicy         string   `toml:"stop_policy"`
	DefaultTimeLimitMs int      `toml:"default_time_limit_ms"`
	DefaultMemoryMb    int      `toml:"default_memory_mb"`
}

type Worker struct {
	Slots          int      `toml:"slots"`
	MaxAttempts    int      `toml:"max_attempts"`
	RetryBaseDelay Duration `toml:"retry_base_delay"`
}

type Queue struct {
	Backend   string   `toml:"backend"`
	SQSURL    string   `toml:"sqs_url"`
	AWSRegion string   `toml:"aws_region"`
	Capacity  int      `toml:"capacity"`
	WaitTime  Duration `toml:"wait_time"`
	// Visibility must exceed the longest evaluation.
	Visibility Duration `toml:"visibility"`
}

type Store struct {
	Backend    string `toml:"backend"`
	SQLitePath string `toml:"sqlite_path"`
}

type NATS struct {
	URL string `toml:"url"`
}

type Metrics struct {
	// Addr is the listen address of /metrics; empty disables it.
	Addr string `toml:"addr"`
}

// Default returns the configuration used when nothing overrides it.
func Default(dirs *xdg.Dirs) Config {
	return Config{
		LogLevel:   "info",
		ScratchDir: dirs.ScratchDir(),
		Tester: Tester{
			CompileTimeout:     Duration(10 * time.Second),
			OutputLimit:        1 << 20,
			StopPolicy:         "fatal",
			DefaultTimeLimitMs: 5000,
			DefaultMemoryMb:    256,
		},
		Worker: Worker{
			Slots:          4,
			MaxAttempts:    3,
			RetryBaseDelay: Duration(2 * time.Second),
		},
		Queue: Queue{
			Backend:    QueueMemory,
			AWSRegion:  "eu-central-1",
			Capacity:   1024,
			WaitTime:   Duration(20 * time.Second),
			Visibility: Duration(30 * time.Minute),
		},
		Store: Store{
			Backend:    StoreMemory,
			SQLitePath: filepath.Join(dirs.StateDir(), "sandbox.db"),
		},
		NATS: NATS{URL: "nats://127.0.0.1:4222"},
	}
}

type Options struct {
	// File is the TOML file. When empty the XDG default is tried and may
	// be absent.
	File string
	// DotEnv files are loaded into the process environment without
	// overriding variables that are already set. Missing files are skipped.
	DotEnv []string
	Getenv func(string) string
}

func Load(opts Options) (Config, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	dirs := xdg.Lookup(getenv)
	cfg := Default(dirs)

	path, required := opts.File, true
	if path == "" {
		path, required = dirs.ConfigFile(), false
	}
	if err := loadFile(path, required, &cfg); err != nil {
		return cfg, err
	}

	for _, f := range opts.DotEnv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func loadFile(path string, required bool, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !required {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	dec := toml.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	e := envReader{getenv: getenv}
	e.str("SANDBOX_LOG_LEVEL", &cfg.LogLevel)
	e.str("SANDBOX_SCRATCH_DIR", &cfg.ScratchDir)
	e.str("SANDBOX_LANGUAGES_FILE", &cfg.LanguagesFile)
	if v := getenv("SANDBOX_DENYLIST"); v != "" {
		cfg.Denylist = splitList(v)
	}

	e.duration("SANDBOX_COMPILE_TIMEOUT", &cfg.Tester.CompileTimeout)
	e.int("SANDBOX_OUTPUT_LIMIT", &cfg.Tester.OutputLimit)
	e.str("SANDBOX_STOP_POLICY", &cfg.Tester.StopPolicy)
	e.int("SANDBOX_DEFAULT_TIME_LIMIT_MS", &cfg.Tester.DefaultTimeLimitMs)
	e.int("SANDBOX_DEFAULT_MEMORY_MB", &cfg.Tester.DefaultMemoryMb)

	e.int("SANDBOX_WORKERS", &cfg.Worker.Slots)
	e.int("SANDBOX_MAX_ATTEMPTS", &cfg.Worker.MaxAttempts)
	e.duration("SANDBOX_RETRY_BASE_DELAY", &cfg.Worker.RetryBaseDelay)

	e.str("SANDBOX_QUEUE", &cfg.Queue.Backend)
	e.str("SANDBOX_SQS_QUEUE_URL", &cfg.Queue.SQSURL)
	e.str("AWS_REGION", &cfg.Queue.AWSRegion)
	e.str("SANDBOX_AWS_REGION", &cfg.Queue.AWSRegion)
	e.duration("SANDBOX_SQS_VISIBILITY", &cfg.Queue.Visibility)

	e.str("SANDBOX_STORE", &cfg.Store.Backend)
	e.str("SANDBOX_SQLITE_PATH", &cfg.Store.SQLitePath)
	e.str("SANDBOX_NATS_URL", &cfg.NATS.URL)
	e.str("SANDBOX_METRICS_ADDR", &cfg.Metrics.Addr)
	return errors.Join(e.errs...)
}

type envReader struct {
	getenv func(string) string
	errs   []error
}

func (e *envReader) str(key string, dst *string) {
	if v := e.getenv(key); v != "" {
		*dst = v
	}
}

func (e *envReader) int(key string, dst *int) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (e *envReader) duration(key string, dst *Duration) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	if err := dst.UnmarshalText([]byte(v)); err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Worker.Slots < 1 {
		errs = append(errs, fmt.Errorf("worker.slots must be positive, got %d", c.Worker.Slots))
	}
	if c.Worker.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("worker.max_attempts must be positive, got %d", c.Worker.MaxAttempts))
	}
	if c.Tester.CompileTimeout <= 0 {
		errs = append(errs, errors.New("tester.compile_timeout must be positive"))
	}
	if c.Tester.OutputLimit <= 0 {
		errs = append(errs, errors.New("tester.output_limit must be positive"))
	}
	switch c.Tester.StopPolicy {
	case "fatal", "first-failure":
	default:
		errs = append(errs, fmt.Errorf("tester.stop_policy %q is not fatal or first-failure", c.Tester.StopPolicy))
	}
	switch c.Queue.Backend {
	case QueueMemory:
	case QueueSQS:
		if c.Queue.SQSURL == "" {
			errs = append(errs, errors.New("queue.sqs_url is required for the sqs backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown queue backend %q", c.Queue.Backend))
	}
	switch c.Store.Backend {
	case StoreMemory, StoreSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	return errors.Join(errs...)
}
