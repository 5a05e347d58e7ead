package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IliaW/link-repair-kit/config"
	"github.com/IliaW/link-repair-kit/internal/model"
	"github.com/IliaW/link-repair-kit/internal/telemetry"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu      sync.Mutex
	batches [][]kafka.Message
	err     error
	closed  bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]kafka.Message(nil), msgs...))
	return f.err
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type countingMetrics struct {
	mu      sync.Mutex
	success int64
	fail    int64
}

func (c *countingMetrics) kafka() *telemetry.KafkaMetrics {
	return &telemetry.KafkaMetrics{
		SuccessMsgCnt: func(n int64) { c.mu.Lock(); c.success += n; c.mu.Unlock() },
		FailMsgCnt:    func(n int64) { c.mu.Lock(); c.fail += n; c.mu.Unlock() },
	}
}

func TestProducerBatchesBySizeAndFlushesOnClose(t *testing.T) {
	ch := make(chan *model.BrokenLink)
	writer := &fakeWriter{}
	counts := &countingMetrics{}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	p := newKafkaProducer(ch, writer, counts.kafka(),
		&config.ProducerConfig{BatchSize: 2, BatchTimeout: time.Hour}, wg)
	go p.Run()

	for _, u := range []string{"https://a.test", "https://b.test", "https://c.test"} {
		ch <- &model.BrokenLink{ScanID: "scan-1", URL: u, StatusCode: 404}
	}
	close(ch)
	wg.Wait()

	require.Len(t, writer.batches, 2)
	assert.Len(t, writer.batches[0], 2)
	assert.Len(t, writer.batches[1], 1)
	assert.Equal(t, "https://c.test", string(writer.batches[1][0].Key))
	var link model.BrokenLink
	require.NoError(t, json.Unmarshal(writer.batches[0][0].Value, &link))
	assert.Equal(t, "scan-1", link.ScanID)
	assert.Equal(t, 404, link.StatusCode)
	assert.True(t, writer.closed)
	assert.Equal(t, int64(3), counts.success)
}

func TestProducerFlushesOnTimeout(t *testing.T) {
	ch := make(chan *model.BrokenLink)
	writer := &fakeWriter{}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	p := newKafkaProducer(ch, writer, (&countingMetrics{}).kafka(),
		&config.ProducerConfig{BatchSize: 100, BatchTimeout: 10 * time.Millisecond}, wg)
	go p.Run()

	ch <- &model.BrokenLink{URL: "https://a.test"}
	assert.Eventually(t, func() bool {
		writer.mu.Lock()
		defer writer.mu.Unlock()
		return len(writer.batches) == 1
	}, time.Second, 5*time.Millisecond)
	close(ch)
	wg.Wait()
}

func TestProducerCountsFailures(t *testing.T) {
	ch := make(chan *model.BrokenLink, 1)
	writer := &fakeWriter{err: errors.New("leader not available")}
	counts := &countingMetrics{}
	wg := &sync.WaitGroup{}
	wg.Add(1)
	p := newKafkaProducer(ch, writer, counts.kafka(), &config.ProducerConfig{BatchSize: 1}, wg)

	ch <- &model.BrokenLink{URL: "https://a.test"}
	close(ch)
	p.Run()

	assert.Equal(t, int64(1), counts.fail)
	assert.Equal(t, int64(0), counts.success)
}

func TestDLQMessage(t *testing.T) {
	writer := &fakeWriter{}
	dlq := &KafkaDLQClient{kafkaWriter: writer, serviceName: "link-repair-kit"}

	dlq.SendJobToDLQ(`{"scan_id":"x"}`, errors.New("content_category: content category is required"))

	require.Len(t, writer.batches, 1)
	var msg model.DLQMessage
	require.NoError(t, json.Unmarshal(writer.batches[0][0].Value, &msg))
	assert.Equal(t, "link-repair-kit", msg.ServiceName)
	assert.Equal(t, `{"scan_id":"x"}`, msg.Payload)
	assert.Contains(t, msg.ErrorMessage, "content_category")
}
