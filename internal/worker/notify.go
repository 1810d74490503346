package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/programme-lv/sandbox/api"
	"github.com/programme-lv/sandbox/internal"
	"github.com/programme-lv/sandbox/internal/gatherer/respbuilder"
	"github.com/programme-lv/sandbox/internal/notify"
	"github.com/programme-lv/sandbox/internal/store"
)

const failedMessage = "Execution failed"

func (w *Worker) notifyResult(ctx context.Context, sub *store.Submission, tests []internal.TestCase, res *internal.Result) {
	resp := respbuilder.Build(res, tests)
	w.publish(ctx, notify.UserTopic(sub.UserID, api.SubmissionResultEvent), api.SubmissionResult{
		SubmissionID:    sub.ID,
		ProblemID:       sub.ProblemID,
		Status:          api.Status(sub.Status),
		Verdict:         sub.Verdict,
		Score:           sub.Score,
		TestCasesPassed: sub.TestCasesPassed,
		TotalTestCases:  sub.TotalTestCases,
		ExecutionTimeMs: sub.ExecutionTimeMs,
		MemoryKiB:       sub.MemoryKiB,
		Details:         resp.Details,
	})
	if sub.ContestID != "" {
		w.publish(ctx, notify.ContestTopic(sub.ContestID, api.SubmissionUpdateEvent), api.SubmissionUpdate{
			SubmissionID: sub.ID,
			UserID:       sub.UserID,
			ProblemID:    sub.ProblemID,
			Status:       api.Status(sub.Status),
			Score:        sub.Score,
		})
	}
}

// fail resolves a submission whose job ran out of attempts so it never
// stays running.
func (w *Worker) fail(ctx context.Context, job api.Job, log *slog.Logger) {
	sub, err := w.store.GetSubmission(ctx, job.SubmissionID)
	if errors.Is(err, store.ErrNotFound) {
		sub = w.newSubmission(job)
	} else if err != nil {
		log.Error("failed to load submission for failure", "error", err)
		return
	}

	now := w.now()
	sub.Status = string(internal.RuntimeError)
	sub.Verdict = internal.RuntimeError.Long()
	sub.TotalTestCases = len(job.TestCases)
	sub.Message = failedMessage
	sub.CompletedAt = &now
	if err := w.store.SaveSubmission(ctx, sub); err != nil {
		log.Error("failed to mark submission failed", "error", err)
	}

	w.publish(ctx, notify.UserTopic(job.UserID, api.SubmissionResultEvent), api.SubmissionResult{
		SubmissionID:   job.SubmissionID,
		ProblemID:      job.ProblemID,
		Status:         api.StatusRuntimeError,
		Verdict:        sub.Verdict,
		TotalTestCases: sub.TotalTestCases,
		Error:          failedMessage,
	})
}

// publish never fails the job; notification is best-effort.
func (w *Worker) publish(ctx context.Context, topic string, payload any) {
	if err := w.notifier.Publish(ctx, topic, payload); err != nil {
		w.logger.Warn("failed to publish notification", "topic", topic, "error", err)
	}
}
