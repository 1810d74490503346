package queue

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/programme-lv/sandbox/api"
)

// SQSAPI is the subset of *sqs.Client the queue uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, opts ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, opts ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, in *sqs.ChangeMessageVisibilityInput, opts ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

type SQSOptions struct {
	// WaitTime is the long-poll duration of one ReceiveMessage call.
	WaitTime time.Duration
	// Visibility must exceed the longest possible evaluation, otherwise
	// a job in progress becomes visible to other workers.
	Visibility time.Duration
	// PollBackoff is the pause after a failed receive.
	PollBackoff time.Duration
}

func DefaultSQSOptions() SQSOptions {
	return SQSOptions{
		WaitTime:    20 * time.Second,
		Visibility:  30 * time.Minute,
		PollBackoff: time.Second,
	}
}

type SQSQueue struct {
	client SQSAPI
	url    string
	opts   SQSOptions
	logger *slog.Logger
}

var _ Queue = (*SQSQueue)(nil)

func NewSQS(client SQSAPI, queueUrl string, opts SQSOptions, logger *slog.Logger) *SQSQueue {
	return &SQSQueue{client: client, url: queueUrl, opts: opts, logger: logger}
}

// DialSQS builds a client from the default AWS credential chain.
func DialSQS(ctx context.Context, region, queueUrl string, opts SQSOptions, logger *slog.Logger) (*SQSQueue, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return NewSQS(sqs.NewFromConfig(cfg), queueUrl, opts, logger), nil
}

func (q *SQSQueue) Publish(ctx context.Context, job api.Job) error {
	body, encoding, err := EncodeJob(job)
	if err != nil {
		return err
	}
	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.url),
		MessageBody: aws.String(body),
	}
	if encoding != "" {
		in.MessageAttributes = map[string]types.MessageAttributeValue{
			EncodingAttribute: {DataType: aws.String("String"), StringValue: aws.String(encoding)},
		}
	}
	if _, err := q.client.SendMessage(ctx, in); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (q *SQSQueue) Receive(ctx context.Context) (*Delivery, error) {
	for {
		out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              aws.String(q.url),
			MaxNumberOfMessages:   1,
			WaitTimeSeconds:       seconds(q.opts.WaitTime),
			VisibilityTimeout:     seconds(q.opts.Visibility),
			MessageAttributeNames: []string{EncodingAttribute},
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{
				types.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			q.logger.Warn("failed to receive messages", "error", err)
			select {
			case <-time.After(q.opts.PollBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}
		for _, msg := range out.Messages {
			d, err := q.delivery(msg)
			if err == nil {
				return d, nil
			}
			// a body that cannot be decoded will never succeed
			q.logger.Error("dropping undecodable message",
				"message_id", aws.ToString(msg.MessageId), "error", err)
			if err := q.delete(ctx, msg.ReceiptHandle); err != nil {
				q.logger.Warn("failed to delete message", "error", err)
			}
		}
	}
}

func (q *SQSQueue) delivery(msg types.Message) (*Delivery, error) {
	var encoding string
	if attr, ok := msg.MessageAttributes[EncodingAttribute]; ok {
		encoding = aws.ToString(attr.StringValue)
	}
	job, err := DecodeJob(aws.ToString(msg.Body), encoding)
	if err != nil {
		return nil, err
	}
	attempt := 1
	if raw, ok := msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			attempt = n
		}
	}
	handle := msg.ReceiptHandle
	return &Delivery{
		Job:     job,
		ID:      aws.ToString(msg.MessageId),
		Attempt: attempt,
		ack: func(ctx context.Context) error {
			return q.delete(ctx, handle)
		},
		retry: func(ctx context.Context, delay time.Duration) error {
			_, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
				QueueUrl:          aws.String(q.url),
				ReceiptHandle:     handle,
				VisibilityTimeout: seconds(delay),
			})
			if err != nil {
				return fmt.Errorf("failed to change message visibility: %w", err)
			}
			return nil
		},
	}, nil
}

func (q *SQSQueue) delete(ctx context.Context, handle *string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: handle,
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

func seconds(d time.Duration) int32 {
	return int32(math.Ceil(d.Seconds()))
}
