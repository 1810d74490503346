// Package client is the synchronous entry point other services use to run
// code in the sandbox. It talks to the sandbox service over NATS and can
// fall back to in-process execution when the service is unreachable.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/programme-lv/sandbox/api"
	"github.com/programme-lv/sandbox/internal/lang"
)

var (
	ErrUnavailable = errors.New("sandbox service unavailable")
	ErrTimeout     = errors.New("sandbox execution timeout")
)

// ValidationError is returned when the service rejected the request.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "sandbox validation failed: " + strings.Join(e.Errors, "; ")
}

// SandboxError is an infrastructure failure reported by the service.
type SandboxError struct {
	Message string
}

func (e *SandboxError) Error() string {
	return "sandbox error: " + e.Message
}

// Requester is satisfied by *nats.Conn.
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

var _ Requester = (*nats.Conn)(nil)

// LocalRunner executes a request in-process.
type LocalRunner interface {
	Run(ctx context.Context, req api.ExecReq) api.ExecResponse
}

const (
	DefaultExecTimeout   = 60 * time.Second
	DefaultHealthTimeout = 5 * time.Second
)

type Client struct {
	r             Requester
	local         LocalRunner
	execTimeout   time.Duration
	healthTimeout time.Duration
	logger        *slog.Logger
}

type Option func(*Client)

// WithLocalFallback runs requests through l when the service does not
// answer.
func WithLocalFallback(l LocalRunner) Option {
	return func(c *Client) { c.local = l }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.execTimeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(r Requester, opts ...Option) *Client {
	c := &Client{
		r:             r,
		execTimeout:   DefaultExecTimeout,
		healthTimeout: DefaultHealthTimeout,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute runs req and returns a judged response. Rejections and
// infrastructure failures are returned as *ValidationError and
// *SandboxError.
func (c *Client) Execute(ctx context.Context, req api.ExecReq) (api.ExecResponse, error) {
	var resp api.ExecResponse
	err := c.request(ctx, api.SubjectRun, req, &resp, c.execTimeout)
	if errors.Is(err, ErrUnavailable) && c.local != nil {
		c.logger.Warn("sandbox service unavailable, running locally", "language", req.Language)
		resp, err = c.local.Run(ctx, req), nil
	}
	if err != nil {
		return api.ExecResponse{}, err
	}

	switch resp.Status {
	case api.StatusValidationError:
		return resp, &ValidationError{Errors: resp.Errors}
	case api.StatusError:
		msg := "unknown error"
		if resp.Message != nil {
			msg = *resp.Message
		}
		return resp, &SandboxError{Message: msg}
	}
	return normalizeResponse(resp), nil
}

// Health reports whether the service answered OK within the health
// timeout. It never returns an error; an unreachable service is unhealthy.
func (c *Client) Health(ctx context.Context) bool {
	var resp api.HealthResponse
	if err := c.request(ctx, api.SubjectHealth, struct{}{}, &resp, c.healthTimeout); err != nil {
		c.logger.Debug("health check failed", "error", err)
		return false
	}
	return resp.Status == "OK"
}

// Languages lists the language ids the service accepts, or the built-in
// defaults when the service cannot be asked.
func (c *Client) Languages(ctx context.Context) []string {
	var infos []api.LanguageInfo
	if err := c.request(ctx, api.SubjectLanguages, struct{}{}, &infos, c.healthTimeout); err != nil || len(infos) == 0 {
		return lang.DefaultIDs()
	}
	ids := make([]string, 0, len(infos))
	for _, l := range infos {
		ids = append(ids, l.ID)
	}
	return ids
}

func (c *Client) request(ctx context.Context, subj string, in any, out any, timeout time.Duration) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := c.r.RequestWithContext(ctx, subj, data)
	if err != nil {
		return classify(err)
	}
	if err := json.Unmarshal(msg.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s reply: %w", subj, err)
	}
	return nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, nats.ErrTimeout):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, nats.ErrNoResponders),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionDraining),
		errors.Is(err, nats.ErrDisconnected):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

func normalizeResponse(resp api.ExecResponse) api.ExecResponse {
	if resp.Status == "" {
		resp.Status = api.StatusRuntimeError
	}
	if resp.Details == nil {
		resp.Details = []api.TestDetail{}
	}
	return resp
}
