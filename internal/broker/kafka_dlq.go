package broker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/IliaW/link-repair-kit/config"
	"github.com/IliaW/link-repair-kit/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress/lz4"
)

// DeadLetterQueue receives scan jobs that can never succeed.
type DeadLetterQueue interface {
	SendJobToDLQ(payload string, err error)
}

type KafkaDLQClient struct {
	kafkaWriter messageWriter
	serviceName string
	cfg         *config.ProducerConfig
}

// NewKafkaDLQ - kafka client for dead-letter queue topic
func NewKafkaDLQ(serviceName string, cfg *config.ProducerConfig) *KafkaDLQClient {
	kafkaWriter := kafka.Writer{
		Addr:     kafka.TCP(cfg.Addr...),
		Topic:    cfg.DeadLetterTopicName,
		Balancer: &kafka.Hash{},
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				slog.Error("failed to send messages to kafka DLQ.", slog.String("err", err.Error()))
			}
		},
		Compression: kafka.Compression(new(lz4.Codec).Code()),
	}
	return &KafkaDLQClient{
		kafkaWriter: &kafkaWriter,
		serviceName: serviceName,
		cfg:         cfg,
	}
}

func (dlq *KafkaDLQClient) SendJobToDLQ(payload string, err error) {
	msg := model.DLQMessage{
		ServiceName:  dlq.serviceName,
		Payload:      payload,
		ErrorMessage: err.Error(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshaling error.", slog.String("err", err.Error()), slog.Any("message", msg))
		return
	}

	err = dlq.kafkaWriter.WriteMessages(context.Background(), kafka.Message{Value: body})
	if err != nil {
		slog.Error("failed to send message to dead-letter queue.", slog.String("err", err.Error()))
		return
	}
	slog.Debug("successfully sent message to dead-letter queue.")
}

func (dlq *KafkaDLQClient) Close() {
	if err := dlq.kafkaWriter.Close(); err != nil {
		slog.Error("failed to close kafka DLQ writer.", slog.String("err", err.Error()))
	}
}
