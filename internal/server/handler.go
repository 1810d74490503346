// Package server exposes the tester as a NATS request/reply service.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/sandbox/api"
	"github.com/programme-lv/sandbox/internal"
	"github.com/programme-lv/sandbox/internal/gatherer/natsgath"
	"github.com/programme-lv/sandbox/internal/gatherer/respbuilder"
	"github.com/programme-lv/sandbox/internal/lang"
	"github.com/programme-lv/sandbox/internal/metrics"
	"github.com/programme-lv/sandbox/internal/validate"
)

// HealthOK is the status of a healthy service.
const HealthOK = "OK"

const internalErrorMessage = "internal error while executing code"

type Evaluator interface {
	Evaluate(ctx context.Context, req internal.Request, gath internal.ResultGatherer) (*internal.Result, error)
	Health() (missing []string, err error)
}

type Validator interface {
	Validate(req api.ExecReq) (internal.Request, error)
}

type Languages interface {
	List() []lang.Language
}

// Handler answers requests independently of the transport.
type Handler struct {
	eval      Evaluator
	validator Validator
	langs     Languages
	stream    natsgath.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewHandler builds a handler. stream may be nil, in which case progress
// events are not published even when a request asks for them.
func NewHandler(eval Evaluator, v Validator, langs Languages, stream natsgath.Publisher, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		eval:      eval,
		validator: v,
		langs:     langs,
		stream:    stream,
		metrics:   m,
		logger:    logger,
	}
}

// Run validates and evaluates one request. Every outcome, including
// rejection and infrastructure failure, is expressed in the response.
func (h *Handler) Run(ctx context.Context, req api.ExecReq) api.ExecResponse {
	validated, err := h.validator.Validate(req)
	if err != nil {
		h.metrics.ValidationError()
		var v validate.Violations
		if errors.As(err, &v) {
			return respbuilder.Validation(len(req.TestCases), v)
		}
		return respbuilder.Validation(len(req.TestCases), []string{err.Error()})
	}

	var gath internal.ResultGatherer = internal.NopGatherer{}
	if req.StreamInbox != "" && h.stream != nil {
		gath = natsgath.New(h.stream, uuid.NewString(), req.StreamInbox, h.logger)
	}

	start := time.Now()
	res, err := h.eval.Evaluate(ctx, validated, gath)
	if err != nil {
		h.logger.Error("evaluation failed", "language", req.Language, "error", err)
		h.metrics.ObserveExecution(req.Language, api.StatusError, time.Since(start), 0)
		return respbuilder.Error(len(req.TestCases), internalErrorMessage)
	}
	h.metrics.ObserveExecution(req.Language, api.Status(res.Verdict), time.Since(start), res.MaxMemKiB)
	return respbuilder.Build(res, validated.TestCases)
}

// Health never runs submitted code.
func (h *Handler) Health() api.HealthResponse {
	resp := api.HealthResponse{Status: HealthOK, Languages: []string{}}
	for _, l := range h.langs.List() {
		resp.Languages = append(resp.Languages, l.ID)
	}
	missing, err := h.eval.Health()
	if err != nil {
		h.logger.Error("health check failed", "error", err)
		resp.Status = "ERROR"
		return resp
	}
	resp.Missing = missing
	return resp
}

func (h *Handler) Languages() []api.LanguageInfo {
	list := h.langs.List()
	infos := make([]api.LanguageInfo, 0, len(list))
	for _, l := range list {
		infos = append(infos, api.LanguageInfo{ID: l.ID, Name: l.Name, Compiled: l.NeedsCompile()})
	}
	return infos
}
