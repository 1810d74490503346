package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/programme-lv/sandbox/internal/metrics"
	"github.com/programme-lv/sandbox/internal/notify"
	"github.com/programme-lv/sandbox/internal/server"
	"github.com/programme-lv/sandbox/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:      "serve",
		Usage:     "answer execution requests over NATS and process queued submissions",
		ArgsUsage: "[job.json...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-nats",
				Usage: "only process the submission queue",
			},
			&cli.BoolFlag{
				Name:  "no-worker",
				Usage: "only answer requests over NATS",
			},
		},
		Action: serve,
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	noNats, noWorker := cmd.Bool("no-nats"), cmd.Bool("no-worker")
	if noNats && noWorker {
		return usageError(cmd, "nothing to serve with both --no-nats and --no-worker")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	metrics.RegisterActiveBoxes(reg, a.scratch.Active)

	var nc *nats.Conn
	if !noNats {
		nc, err = a.connectNats()
		if err != nil {
			return err
		}
		defer nc.Close()
		a.logger.Info("connected to nats", "url", nc.ConnectedUrl())
	}

	g, ctx := errgroup.WithContext(ctx)

	if !noWorker {
		q, err := a.openQueue(ctx)
		if err != nil {
			return err
		}
		if c, ok := q.(io.Closer); ok {
			defer c.Close()
		}
		st, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		for _, path := range cmd.Args().Slice() {
			job, err := readJob(path)
			if err != nil {
				return err
			}
			if err := q.Publish(ctx, job); err != nil {
				return err
			}
			a.logger.Info("queued job", "file", path, "submission", job.SubmissionID)
		}

		var n notify.Notifier = notify.Nop{}
		if nc != nil {
			n = notify.NewNats(nc, "", a.logger)
		}
		w := worker.New(worker.Deps{
			Queue:     q,
			Evaluator: a.tester,
			Validator: a.validator,
			Store:     st,
			Notifier:  n,
			Metrics:   m,
			Logger:    a.logger,
		}, worker.Config{
			Slots:       a.cfg.Worker.Slots,
			MaxAttempts: a.cfg.Worker.MaxAttempts,
			BaseDelay:   a.cfg.Worker.RetryBaseDelay.Std(),
		})
		g.Go(func() error { return w.Run(ctx) })
	}

	if nc != nil {
		srv := server.New(nc, a.handler(nc, m), a.cfg.Worker.Slots, a.logger)
		g.Go(func() error { return srv.Serve(ctx) })
	}

	if addr := a.cfg.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		hs := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			a.logger.Info("serving metrics", "addr", addr)
			if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	a.logger.Info("stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
