package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/nats-io/nats.go"
	"github.com/programme-lv/sandbox/internal/config"
	"github.com/programme-lv/sandbox/internal/lang"
	"github.com/programme-lv/sandbox/internal/metrics"
	"github.com/programme-lv/sandbox/internal/queue"
	"github.com/programme-lv/sandbox/internal/sandbox"
	"github.com/programme-lv/sandbox/internal/server"
	"github.com/programme-lv/sandbox/internal/store"
	"github.com/programme-lv/sandbox/internal/tester"
	"github.com/programme-lv/sandbox/internal/validate"
	"github.com/programme-lv/sandbox/internal/xdg"
	"github.com/urfave/cli/v3"
)

// app holds the components every subcommand shares.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	langs     *lang.Registry
	scratch   *sandbox.Scratch
	tester    *tester.Tester
	validator *validate.Validator
}

func newApp(cmd *cli.Command) (*app, error) {
	cfg, err := config.Load(config.Options{
		File:   cmd.String("config"),
		DotEnv: []string{".env"},
	})
	if err != nil {
		return nil, err
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	langs := lang.NewRegistry()
	if cfg.LanguagesFile != "" {
		if err := langs.LoadFile(cfg.LanguagesFile); err != nil {
			return nil, err
		}
	}

	scratch, err := sandbox.NewScratch(cfg.ScratchDir)
	if err != nil {
		return nil, err
	}
	policy, err := tester.ParseStopPolicy(cfg.Tester.StopPolicy)
	if err != nil {
		return nil, err
	}
	tst := tester.NewTester(langs, scratch, sandbox.NewExecutor(logger), tester.Config{
		CompileTimeout: cfg.Tester.CompileTimeout.Std(),
		OutputLimit:    cfg.Tester.OutputLimit,
		StopPolicy:     policy,
	}, logger)

	caps := validate.DefaultCaps()
	caps.DefaultTimeLimitMs = cfg.Tester.DefaultTimeLimitMs
	caps.DefaultMemoryMb = cfg.Tester.DefaultMemoryMb
	opts := []validate.Option{validate.WithCaps(caps)}
	if len(cfg.Denylist) > 0 {
		opts = append(opts, validate.WithDenylist(cfg.Denylist))
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		langs:     langs,
		scratch:   scratch,
		tester:    tst,
		validator: validate.New(langs, opts...),
	}, nil
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
	})), nil
}

// handler answers requests in-process. stream may be nil.
func (a *app) handler(stream *nats.Conn, m *metrics.Metrics) *server.Handler {
	if stream == nil {
		return server.NewHandler(a.tester, a.validator, a.langs, nil, m, a.logger)
	}
	return server.NewHandler(a.tester, a.validator, a.langs, stream, m, a.logger)
}

func (a *app) connectNats() (*nats.Conn, error) {
	nc, err := nats.Connect(a.cfg.NATS.URL,
		nats.Name("sandbox"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				a.logger.Warn("disconnected from nats", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			a.logger.Info("reconnected to nats", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", a.cfg.NATS.URL, err)
	}
	return nc, nil
}

func (a *app) openQueue(ctx context.Context) (queue.Queue, error) {
	q := a.cfg.Queue
	switch q.Backend {
	case config.QueueSQS:
		return queue.DialSQS(ctx, q.AWSRegion, q.SQSURL, queue.SQSOptions{
			WaitTime:    q.WaitTime.Std(),
			Visibility:  q.Visibility.Std(),
			PollBackoff: time.Second,
		}, a.logger)
	default:
		return queue.NewMemQueue(q.Capacity), nil
	}
}

func (a *app) openStore(ctx context.Context) (store.Store, error) {
	switch a.cfg.Store.Backend {
	case config.StoreSQLite:
		path := a.cfg.Store.SQLitePath
		if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
			return nil, err
		}
		return store.OpenSQLite(ctx, path, a.logger)
	default:
		return store.NewMemStore(), nil
	}
}
