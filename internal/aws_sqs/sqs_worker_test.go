package aws_sqs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IliaW/link-repair-kit/config"
	"github.com/IliaW/link-repair-kit/internal/telemetry"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	mu       sync.Mutex
	pending  []types.Message
	deleted  []string
	sent     []string
	sendErr  error
	received chan struct{}
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	msgs := f.pending
	f.pending = nil
	f.mu.Unlock()
	if len(msgs) == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
}

func (f *fakeSQS) DeleteMessageBatch(_ context.Context, in *sqs.DeleteMessageBatchInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range in.Entries {
		f.deleted = append(f.deleted, aws.ToString(e.Id))
	}
	if f.received != nil {
		close(f.received)
		f.received = nil
	}
	return &sqs.DeleteMessageBatchOutput{}, nil
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{}, nil
}

type sqsCounts struct {
	mu                  sync.Mutex
	success, fail, back int64
}

func (c *sqsCounts) metrics() *telemetry.SQSMetrics {
	return &telemetry.SQSMetrics{
		SuccessMsgCnt:       func(n int64) { c.mu.Lock(); c.success += n; c.mu.Unlock() },
		FailMsgCnt:          func(n int64) { c.mu.Lock(); c.fail += n; c.mu.Unlock() },
		SentBackToSqsMsgCnt: func(n int64) { c.mu.Lock(); c.back += n; c.mu.Unlock() },
	}
}

func newTestWorker(client sqsAPI, get chan<- *string, send <-chan *string, counts *sqsCounts, wg *sync.WaitGroup) *SQSWorker {
	return &SQSWorker{
		client:      client,
		url:         aws.String("http://localhost:4566/000000000000/link-scan-jobs"),
		getSqsChan:  get,
		sendSqsChan: send,
		metrics:     counts.metrics(),
		cfg:         &config.SQSConfig{MaxNumberOfMessages: 10},
		wg:          wg,
	}
}

func TestConsumerForwardsAndDeletesMessages(t *testing.T) {
	received := make(chan struct{})
	client := &fakeSQS{
		received: received,
		pending: []types.Message{
			{MessageId: aws.String("1"), ReceiptHandle: aws.String("r1"), Body: aws.String(`{"request":{"content_category":"post"}}`)},
			{MessageId: aws.String("2"), ReceiptHandle: aws.String("r2"), Body: aws.String(`{"request":{"content_category":"page"}}`)},
		},
	}
	get := make(chan *string, 2)
	counts := &sqsCounts{}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	w := newTestWorker(client, get, nil, counts, wg)
	ctx, cancel := context.WithCancel(context.Background())

	go w.SQSConsumer(ctx)
	<-received
	cancel()
	wg.Wait()

	var bodies []string
	for b := range get {
		bodies = append(bodies, *b)
	}
	assert.Equal(t, []string{`{"request":{"content_category":"post"}}`, `{"request":{"content_category":"page"}}`}, bodies)
	assert.Equal(t, []string{"1", "2"}, client.deleted)
	assert.Equal(t, int64(2), counts.success)
}

func TestProducerSendsMessagesBack(t *testing.T) {
	client := &fakeSQS{}
	send := make(chan *string, 2)
	counts := &sqsCounts{}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	w := newTestWorker(client, nil, send, counts, wg)

	send <- aws.String("job-1")
	send <- aws.String("job-2")
	close(send)
	w.SQSProducer()

	require.Equal(t, []string{"job-1", "job-2"}, client.sent)
	assert.Equal(t, int64(2), counts.back)
}

func TestProducerSendFailureIsNotCounted(t *testing.T) {
	client := &fakeSQS{sendErr: errors.New("throttled")}
	send := make(chan *string, 1)
	counts := &sqsCounts{}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	w := newTestWorker(client, nil, send, counts, wg)

	send <- aws.String("job-1")
	close(send)
	w.SQSProducer()

	assert.Empty(t, client.sent)
	assert.Equal(t, int64(0), counts.back)
}
