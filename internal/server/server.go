package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/programme-lv/sandbox/api"
	"github.com/programme-lv/sandbox/internal/gatherer/respbuilder"
)

// QueueGroup spreads requests over every running instance.
const QueueGroup = "sandbox"

type Server struct {
	nc     *nats.Conn
	h      *Handler
	slots  int
	logger *slog.Logger
}

func New(nc *nats.Conn, h *Handler, slots int, logger *slog.Logger) *Server {
	if slots < 1 {
		slots = 1
	}
	return &Server{nc: nc, h: h, slots: slots, logger: logger}
}

// Serve subscribes to the service subjects and blocks until ctx is done.
// Requests already being evaluated are answered before Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	var (
		mu      sync.Mutex
		closing bool
		running sync.WaitGroup
	)
	slots := make(chan struct{}, s.slots)
	work := context.WithoutCancel(ctx)

	handlers := map[string]nats.MsgHandler{
		api.SubjectRun: func(msg *nats.Msg) {
			mu.Lock()
			if closing {
				mu.Unlock()
				return
			}
			running.Add(1)
			mu.Unlock()

			// blocks the subscription while every slot is busy
			slots <- struct{}{}
			go func() {
				defer running.Done()
				defer func() { <-slots }()
				s.handleRun(work, msg)
			}()
		},
		api.SubjectHealth: func(msg *nats.Msg) {
			s.respond(msg, s.h.Health())
		},
		api.SubjectLanguages: func(msg *nats.Msg) {
			s.respond(msg, s.h.Languages())
		},
	}

	var subs []*nats.Subscription
	for subject, handler := range handlers {
		sub, err := s.nc.QueueSubscribe(subject, QueueGroup, handler)
		if err != nil {
			for _, sub := range subs {
				_ = sub.Unsubscribe()
			}
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		subs = append(subs, sub)
	}
	s.logger.Info("listening for requests", "subjects", []string{api.SubjectRun, api.SubjectHealth, api.SubjectLanguages}, "queue", QueueGroup)

	<-ctx.Done()
	for _, sub := range subs {
		if err := sub.Drain(); err != nil {
			s.logger.Warn("failed to drain subscription", "subject", sub.Subject, "error", err)
		}
	}
	mu.Lock()
	closing = true
	mu.Unlock()
	running.Wait()
	return nil
}

func (s *Server) handleRun(ctx context.Context, msg *nats.Msg) {
	var req api.ExecReq
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.respond(msg, respbuilder.Validation(0, []string{"malformed request: " + err.Error()}))
		return
	}
	s.respond(msg, s.h.Run(ctx, req))
}

func (s *Server) respond(msg *nats.Msg, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal response", "subject", msg.Subject, "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to respond", "subject", msg.Subject, "error", err)
	}
}
