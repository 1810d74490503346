// Package queue carries submission jobs from producers to workers with
// at-least-once delivery.
package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/programme-lv/sandbox/api"
)

var ErrSettled = errors.New("delivery already acked or retried")

type Queue interface {
	Publish(ctx context.Context, job api.Job) error
	// Receive blocks until a job is available or ctx is done.
	Receive(ctx context.Context) (*Delivery, error)
}

// Delivery is one received job. Exactly one of Ack or Retry must be
// called; until then the job is owned by the receiver.
type Delivery struct {
	Job     api.Job
	ID      string
	Attempt int

	settled atomic.Bool
	ack     func(ctx context.Context) error
	retry   func(ctx context.Context, delay time.Duration) error
}

// Ack removes the job from the queue.
func (d *Delivery) Ack(ctx context.Context) error {
	if !d.settled.CompareAndSwap(false, true) {
		return ErrSettled
	}
	return d.ack(ctx)
}

// Retry makes the job available again after delay with the attempt
// counter increased.
func (d *Delivery) Retry(ctx context.Context, delay time.Duration) error {
	if !d.settled.CompareAndSwap(false, true) {
		return ErrSettled
	}
	return d.retry(ctx, delay)
}
