package aws_sqs

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/IliaW/link-repair-kit/config"
	"github.com/IliaW/link-repair-kit/internal/telemetry"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	crd "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// sqsAPI is the subset of *sqs.Client used by the worker.
type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessageBatch(ctx context.Context, params *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSWorker moves scan jobs between the queue and the scan workers.
type SQSWorker struct {
	client      sqsAPI
	url         *string
	getSqsChan  chan<- *string
	sendSqsChan <-chan *string
	metrics     *telemetry.SQSMetrics
	cfg         *config.SQSConfig
	wg          *sync.WaitGroup
}

func NewSQSWorker(getSqsChan chan<- *string, metrics *telemetry.SQSMetrics, sendSqsChan <-chan *string,
	cfg *config.Config, wg *sync.WaitGroup) *SQSWorker {
	slog.Info("connecting to sqs...")

	c, err := connect(cfg)
	if err != nil {
		slog.Error("failed to connect to sqs.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	queueUrl, err := c.GetQueueUrl(context.Background(), &sqs.GetQueueUrlInput{QueueName: &cfg.SQSSettings.QueueName})
	if err != nil {
		slog.Error("failed to get queue url.", slog.String("err", err.Error()),
			slog.String("queue_name", cfg.SQSSettings.QueueName))
		os.Exit(1)
	}

	return &SQSWorker{
		client:      c,
		url:         queueUrl.QueueUrl,
		getSqsChan:  getSqsChan,
		sendSqsChan: sendSqsChan,
		metrics:     metrics,
		cfg:         cfg.SQSSettings,
		wg:          wg,
	}
}

// SQSConsumer receives scan jobs until ctx is done, then closes getSqsChan. Received messages
// are deleted from the queue once they are handed to the workers.
func (w *SQSWorker) SQSConsumer(ctx context.Context) {
	defer w.wg.Done()
	slog.Info("starting sqs consumer...", slog.String("queue_url", *w.url))
	defer func() {
		close(w.getSqsChan)
		slog.Info("close getSqsChan.")
	}()

	getInput := &sqs.ReceiveMessageInput{
		QueueUrl:            w.url,
		MaxNumberOfMessages: w.cfg.MaxNumberOfMessages,
		WaitTimeSeconds:     w.cfg.WaitTimeSeconds,
		VisibilityTimeout:   w.cfg.VisibilityTimeout,
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping sqs consumer...")
			return
		default:
			output, err := w.client.ReceiveMessage(ctx, getInput)
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("failed to receive message from sqs.", slog.String("err", err.Error()))
				}
				continue
			}
			if len(output.Messages) == 0 {
				slog.Debug("no messages received from sqs.")
				continue
			}

			entries := make([]types.DeleteMessageBatchRequestEntry, 0, len(output.Messages))
			for _, m := range output.Messages {
				w.getSqsChan <- m.Body
				entries = append(entries, types.DeleteMessageBatchRequestEntry{
					Id:            m.MessageId,
					ReceiptHandle: m.ReceiptHandle,
				})
			}
			slog.Debug("deleting messages from sqs.", slog.Int("size", len(entries)))
			_, err = w.client.DeleteMessageBatch(context.Background(), &sqs.DeleteMessageBatchInput{
				QueueUrl: w.url,
				Entries:  entries,
			})
			if err != nil {
				slog.Error("failed to delete messages from sqs.", slog.String("err", err.Error()))
				w.metrics.FailMsgCnt(int64(len(entries))) // messages still can be processed
			} else {
				w.metrics.SuccessMsgCnt(int64(len(entries)))
			}
		}
	}
}

// SQSProducer sends interrupted jobs back to the queue until sendSqsChan is closed.
func (w *SQSWorker) SQSProducer() {
	defer w.wg.Done()
	slog.Info("starting sqs producer...", slog.String("queue_url", *w.url))

	ctx := context.Background()
	for m := range w.sendSqsChan {
		slog.Debug("sending message back to sqs.", slog.String("message", *m))
		_, err := w.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    w.url,
			MessageBody: m,
		})
		if err != nil {
			slog.Error("failed to send message to sqs.", slog.String("message", *m),
				slog.String("err", err.Error()))
			continue
		}
		w.metrics.SentBackToSqsMsgCnt(1)
	}
	slog.Info("stopping sqs producer.")
}

func connect(cfg *config.Config) (*sqs.Client, error) {
	sqsConfig, err := awsCfg.LoadDefaultConfig(context.Background(), awsCfg.WithRegion(cfg.SQSSettings.Region))
	if err != nil {
		slog.Error("failed to load sqs config.", slog.String("err", err.Error()))
		return nil, err
	}

	if cfg.Env == "local" {
		sqsConfig.BaseEndpoint = &cfg.SQSSettings.AwsBaseEndpoint // for LocalStack
		sqsConfig.Credentials = crd.NewStaticCredentialsProvider("test", "test", "")
	}

	return sqs.NewFromConfig(sqsConfig), nil
}
