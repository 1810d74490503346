// Package worker consumes submission jobs from the queue, evaluates them
// and records the outcome together with its derived aggregates.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"time"

	"github.com/programme-lv/sandbox/api"
	"github.com/programme-lv/sandbox/internal"
	"github.com/programme-lv/sandbox/internal/metrics"
	"github.com/programme-lv/sandbox/internal/notify"
	"github.com/programme-lv/sandbox/internal/queue"
	"github.com/programme-lv/sandbox/internal/store"
	"github.com/programme-lv/sandbox/internal/validate"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
)

type Evaluator interface {
	Evaluate(ctx context.Context, req internal.Request, gath internal.ResultGatherer) (*internal.Result, error)
}

type Validator interface {
	Validate(req api.ExecReq) (internal.Request, error)
}

type Config struct {
	// Slots is the number of jobs processed concurrently.
	Slots       int
	MaxAttempts int
	// BaseDelay is the first retry delay; each further attempt doubles it.
	BaseDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		Slots:       runtime.NumCPU(),
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
	}
}

type Deps struct {
	Queue     queue.Queue
	Evaluator Evaluator
	Validator Validator
	Store     store.Store
	Notifier  notify.Notifier
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

type Worker struct {
	queue    queue.Queue
	eval     Evaluator
	validate Validator
	store    store.Store
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cfg      Config

	// leases holds the submission ids currently in flight.
	leases *xsync.MapOf[string, struct{}]
	now    func() time.Time
}

func New(d Deps, cfg Config) *Worker {
	if cfg.Slots < 1 {
		cfg.Slots = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	n := d.Notifier
	if n == nil {
		n = notify.Nop{}
	}
	return &Worker{
		queue:    d.Queue,
		eval:     d.Evaluator,
		validate: d.Validator,
		store:    d.Store,
		notifier: n,
		metrics:  d.Metrics,
		logger:   d.Logger,
		cfg:      cfg,
		leases:   xsync.NewMapOf[string, struct{}](),
		now:      time.Now,
	}
}

// Run starts the worker slots and blocks until ctx is cancelled. Jobs in
// flight when ctx is cancelled run to completion first.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("starting workers", "slots", w.cfg.Slots)
	g, ctx := errgroup.WithContext(ctx)
	for slot := range w.cfg.Slots {
		g.Go(func() error {
			return w.loop(ctx, slot)
		})
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context, slot int) error {
	for {
		d, err := w.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Warn("failed to receive job", "slot", slot, "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		w.Handle(context.WithoutCancel(ctx), d)
	}
}

// Handle processes one delivery and settles it with either Ack or Retry.
func (w *Worker) Handle(ctx context.Context, d *queue.Delivery) {
	job := d.Job
	log := w.logger.With("submission_id", job.SubmissionID, "attempt", d.Attempt)

	if _, held := w.leases.LoadOrStore(job.SubmissionID, struct{}{}); held {
		log.Info("submission already in flight, postponing")
		w.metrics.ObserveJob(metrics.JobDuplicate)
		if err := d.Retry(ctx, w.cfg.BaseDelay); err != nil {
			log.Error("failed to postpone job", "error", err)
		}
		return
	}
	defer w.leases.Delete(job.SubmissionID)

	idle := w.metrics.WorkerBusy()
	defer idle()

	attempts, err := w.process(ctx, d, log)
	if attempts == 0 {
		// the submission record could not be read or written
		attempts = d.Attempt
	}
	switch {
	case err == nil:
		w.metrics.ObserveJob(metrics.JobCompleted)
		if err := d.Ack(ctx); err != nil {
			log.Error("failed to ack job", "error", err)
		}
	case attempts < w.cfg.MaxAttempts:
		delay := w.backoff(attempts)
		log.Warn("job failed, retrying", "delay", delay, "error", err)
		w.metrics.ObserveJob(metrics.JobRetried)
		if err := d.Retry(ctx, delay); err != nil {
			log.Error("failed to schedule retry", "error", err)
		}
	default:
		log.Error("job failed, giving up", "error", err)
		w.metrics.ObserveJob(metrics.JobFailed)
		w.fail(ctx, job, log)
		if err := d.Ack(ctx); err != nil {
			log.Error("failed to ack job", "error", err)
		}
	}
}

func (w *Worker) backoff(attempt int) time.Duration {
	return w.cfg.BaseDelay << (attempt - 1)
}

// process reports how many times the submission has been processed,
// which excludes deliveries postponed while it was in flight elsewhere.
func (w *Worker) process(ctx context.Context, d *queue.Delivery, log *slog.Logger) (int, error) {
	job := d.Job
	sub, err := w.begin(ctx, job)
	if err != nil {
		return 0, err
	}
	return sub.Attempts, w.judge(ctx, sub, job, log)
}

func (w *Worker) judge(ctx context.Context, sub *store.Submission, job api.Job, log *slog.Logger) error {
	var res *internal.Result
	req, err := w.validate.Validate(job.ExecReq())
	if err != nil {
		if !isViolation(err) {
			return err
		}
		// resubmitting the same job cannot fix it
		log.Info("job rejected by validator", "error", err)
		w.metrics.ValidationError()
		res = &internal.Result{
			Verdict: internal.RuntimeError,
			Total:   len(job.TestCases),
			Message: err.Error(),
		}
	} else {
		start := w.now()
		res, err = w.eval.Evaluate(ctx, req, internal.NopGatherer{})
		if err != nil {
			return err
		}
		w.metrics.ObserveExecution(job.Language, api.Status(res.Verdict), w.now().Sub(start), res.MaxMemKiB)
	}

	if err := w.complete(ctx, sub, job, res); err != nil {
		return err
	}
	if err := w.applySideEffects(ctx, sub); err != nil {
		return err
	}
	log.Info("submission judged", "verdict", res.Verdict, "score", sub.Score)
	w.notifyResult(ctx, sub, req.TestCases, res)
	return nil
}

func isViolation(err error) bool {
	var v validate.Violations
	return errors.As(err, &v)
}

// begin loads or creates the submission record and marks it running.
func (w *Worker) begin(ctx context.Context, job api.Job) (*store.Submission, error) {
	sub, err := w.store.GetSubmission(ctx, job.SubmissionID)
	if errors.Is(err, store.ErrNotFound) {
		sub = w.newSubmission(job)
	} else if err != nil {
		return nil, err
	}
	sub.Status = store.StatusRunning
	sub.Attempts++
	if err := w.store.SaveSubmission(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (w *Worker) newSubmission(job api.Job) *store.Submission {
	return &store.Submission{
		ID:          job.SubmissionID,
		ContestID:   job.ContestID,
		ProblemID:   job.ProblemID,
		UserID:      job.UserID,
		Language:    job.Language,
		Code:        job.Code,
		Status:      store.StatusPending,
		SubmittedAt: w.now(),
	}
}

func (w *Worker) complete(ctx context.Context, sub *store.Submission, job api.Job, res *internal.Result) error {
	now := w.now()
	sub.Status = string(res.Verdict)
	sub.Verdict = res.Verdict.Long()
	sub.Score = Score(res, job.Points)
	sub.TestCasesPassed = res.Passed
	sub.TotalTestCases = res.Total
	sub.ExecutionTimeMs = res.TotalTimeMs
	sub.MemoryKiB = res.MaxMemKiB
	sub.Message = res.Message
	sub.CompletedAt = &now
	sub.TestCaseResults = make([]store.TestCaseResult, 0, len(res.Outcomes))
	for _, o := range res.Outcomes {
		sub.TestCaseResults = append(sub.TestCaseResults, store.TestCaseResult{
			TestCase:  o.Index + 1,
			Status:    string(o.Verdict),
			Passed:    o.Passed,
			TimeMs:    o.TimeMs,
			MemoryKiB: o.MemKiB,
			Message:   o.Message,
		})
	}
	return w.store.SaveSubmission(ctx, sub)
}

// Score converts an evaluation to submission points: full points on AC,
// otherwise the passed share rounded down.
func Score(res *internal.Result, points float64) float64 {
	if res.Verdict == internal.Accepted {
		return points
	}
	return float64(int64(res.Score * points))
}

func (w *Worker) applySideEffects(ctx context.Context, sub *store.Submission) error {
	accepted := sub.Status == string(internal.Accepted)

	if sub.ContestID != "" {
		_, err := w.store.RecordContestResult(ctx, store.ContestResult{
			ContestID:    sub.ContestID,
			UserID:       sub.UserID,
			ProblemID:    sub.ProblemID,
			SubmissionID: sub.ID,
			Award:        accepted,
			Points:       sub.Score,
		})
		if err != nil {
			return err
		}
	}
	if _, err := w.store.ApplyProblemStats(ctx, sub.ProblemID, sub.ID, accepted); err != nil {
		return err
	}
	if _, err := w.store.ApplyUserStats(ctx, sub.UserID, sub.ID, accepted); err != nil {
		return err
	}
	return nil
}
