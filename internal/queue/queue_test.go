package queue_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/programme-lv/sandbox/api"
	"github.com/programme-lv/sandbox/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleJob(id string) api.Job {
	return api.Job{
		SubmissionID: id,
		Code:         "print(input())",
		Language:     "python",
		ProblemID:    "p1",
		UserID:       "u1",
		TestCases:    []api.JobTestCase{{Input: "1", Output: "1"}},
		Points:       100,
	}
}

func TestMemQueueRetryIncrementsAttempt(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	q := queue.NewMemQueue(4)
	require.NoError(t, q.Publish(ctx, sampleJob("s1")))

	d, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Attempt)
	assert.Equal(t, "s1", d.Job.SubmissionID)

	require.NoError(t, d.Retry(ctx, 10*time.Millisecond))
	assert.ErrorIs(t, d.Ack(ctx), queue.ErrSettled)

	again, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Attempt)
	assert.Equal(t, d.ID, again.ID)
	require.NoError(t, again.Ack(ctx))
	assert.Equal(t, 0, q.Len())
}

func TestMemQueueCloseDropsBlockedRetries(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	q := queue.NewMemQueue(2)
	require.NoError(t, q.Publish(ctx, sampleJob("a")))
	require.NoError(t, q.Publish(ctx, sampleJob("b")))
	a, err := q.Receive(ctx)
	require.NoError(t, err)
	b, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, sampleJob("c")))
	require.NoError(t, q.Publish(ctx, sampleJob("d")))

	// no room until someone receives
	require.NoError(t, a.Retry(ctx, 0))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, q.Len())
	assert.Zero(t, q.Dropped())

	require.NoError(t, q.Close())
	require.Eventually(t, func() bool { return q.Dropped() == 1 }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, b.Retry(ctx, 0), queue.ErrClosed)
	assert.EqualValues(t, 2, q.Dropped())
	assert.ErrorIs(t, q.Publish(ctx, sampleJob("e")), queue.ErrClosed)
	_, err = q.Receive(ctx)
	assert.ErrorIs(t, err, queue.ErrClosed)
	assert.NoError(t, q.Close())
}

func TestMemQueueReceiveHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := queue.NewMemQueue(1).Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCodecCompressesLargeJobs(t *testing.T) {
	small := sampleJob("s1")
	body, enc, err := queue.EncodeJob(small)
	require.NoError(t, err)
	assert.Empty(t, enc)
	got, err := queue.DecodeJob(body, enc)
	require.NoError(t, err)
	assert.Equal(t, small, got)

	large := sampleJob("s2")
	large.TestCases[0].Input = strings.Repeat("1 2 3 4 5\n", 20000)
	body, enc, err = queue.EncodeJob(large)
	require.NoError(t, err)
	assert.Equal(t, queue.EncodingZstd, enc)
	assert.Less(t, len(body), 64<<10)
	got, err = queue.DecodeJob(body, enc)
	require.NoError(t, err)
	assert.Equal(t, large, got)
}

func TestCodecRejectsBadBodies(t *testing.T) {
	_, err := queue.DecodeJob("{", "")
	assert.Error(t, err)
	_, err = queue.DecodeJob(`{"code":"x"}`, "")
	assert.Error(t, err)
	_, err = queue.DecodeJob("!!", queue.EncodingZstd)
	assert.Error(t, err)
	_, err = queue.DecodeJob("{}", "gzip")
	assert.Error(t, err)
}

type fakeSQS struct {
	mu         sync.Mutex
	inbox      []types.Message
	sent       []*sqs.SendMessageInput
	deleted    []string
	visibility map[string]int32
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inbox) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	msg := f.inbox[0]
	f.inbox = f.inbox[1:]
	return &sqs.ReceiveMessageOutput{Messages: []types.Message{msg}}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) ChangeMessageVisibility(_ context.Context, in *sqs.ChangeMessageVisibilityInput, _ ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.visibility == nil {
		f.visibility = map[string]int32{}
	}
	f.visibility[aws.ToString(in.ReceiptHandle)] = in.VisibilityTimeout
	return &sqs.ChangeMessageVisibilityOutput{}, nil
}

func newSQS(f *fakeSQS) *queue.SQSQueue {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return queue.NewSQS(f, "https://sqs.local/q", queue.DefaultSQSOptions(), logger)
}

func TestSQSReceiveAckRetry(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	body, _, err := queue.EncodeJob(sampleJob("s1"))
	require.NoError(t, err)
	f := &fakeSQS{inbox: []types.Message{
		{MessageId: aws.String("m0"), ReceiptHandle: aws.String("h0"), Body: aws.String("not json")},
		{
			MessageId:     aws.String("m1"),
			ReceiptHandle: aws.String("h1"),
			Body:          aws.String(body),
			Attributes:    map[string]string{"ApproximateReceiveCount": "2"},
		},
		{MessageId: aws.String("m2"), ReceiptHandle: aws.String("h2"), Body: aws.String(body)},
	}}
	q := newSQS(f)

	d, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m1", d.ID)
	assert.Equal(t, 2, d.Attempt)
	assert.Equal(t, "s1", d.Job.SubmissionID)
	assert.Equal(t, []string{"h0"}, f.deleted, "undecodable message is dropped")

	require.NoError(t, d.Retry(ctx, 1500*time.Millisecond))
	assert.Equal(t, int32(2), f.visibility["h1"])

	d2, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, d2.Attempt)
	require.NoError(t, d2.Ack(ctx))
	assert.Equal(t, []string{"h0", "h2"}, f.deleted)
}

func TestSQSPublishMarksCompressedBodies(t *testing.T) {
	f := &fakeSQS{}
	q := newSQS(f)

	large := sampleJob("big")
	large.Code = strings.Repeat("x = 1\n", 20000)
	require.NoError(t, q.Publish(context.Background(), sampleJob("small")))
	require.NoError(t, q.Publish(context.Background(), large))
	require.Len(t, f.sent, 2)

	assert.Empty(t, f.sent[0].MessageAttributes)
	attr, ok := f.sent[1].MessageAttributes[queue.EncodingAttribute]
	require.True(t, ok)
	assert.Equal(t, queue.EncodingZstd, aws.ToString(attr.StringValue))

	f.inbox = []types.Message{{
		MessageId:         aws.String("m"),
		ReceiptHandle:     aws.String("h"),
		Body:              f.sent[1].MessageBody,
		MessageAttributes: f.sent[1].MessageAttributes,
	}}
	d, err := q.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, large.Code, d.Job.Code)
}
