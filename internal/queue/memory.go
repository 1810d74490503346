package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/sandbox/api"
)

var ErrClosed = errors.New("queue closed")

type envelope struct {
	id      string
	job     api.Job
	attempt int
}

// MemQueue is an in-process queue for local runs and tests. Jobs do not
// survive a restart.
type MemQueue struct {
	ch      chan envelope
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

var _ Queue = (*MemQueue)(nil)

func NewMemQueue(capacity int) *MemQueue {
	return &MemQueue{
		ch:   make(chan envelope, capacity),
		done: make(chan struct{}),
	}
}

func (q *MemQueue) Publish(ctx context.Context, job api.Job) error {
	return q.push(ctx, envelope{id: uuid.NewString(), job: job, attempt: 1})
}

func (q *MemQueue) push(ctx context.Context, e envelope) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- e:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemQueue) Receive(ctx context.Context) (*Delivery, error) {
	select {
	case <-q.done:
		return nil, ErrClosed
	default:
	}
	select {
	case e := <-q.ch:
		return &Delivery{
			Job:     e.job,
			ID:      e.id,
			Attempt: e.attempt,
			ack:     func(context.Context) error { return nil },
			retry: func(_ context.Context, delay time.Duration) error {
				return q.requeue(envelope{id: e.id, job: e.job, attempt: e.attempt + 1}, delay)
			},
		}, nil
	case <-q.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// requeue pushes e back after delay. A job still waiting for room when
// the queue is closed is dropped.
func (q *MemQueue) requeue(e envelope, delay time.Duration) error {
	select {
	case <-q.done:
		q.dropped.Add(1)
		return ErrClosed
	default:
	}
	time.AfterFunc(delay, func() {
		if err := q.push(context.Background(), e); err != nil {
			q.dropped.Add(1)
		}
	})
	return nil
}

// Close stops the queue. Pending retries are dropped and blocked calls
// return ErrClosed.
func (q *MemQueue) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}

// Len returns the number of jobs waiting to be received.
func (q *MemQueue) Len() int {
	return len(q.ch)
}

// Dropped returns how many retried jobs were lost to Close.
func (q *MemQueue) Dropped() int64 {
	return q.dropped.Load()
}
