package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/IliaW/link-repair-kit/internal/broker"
	"github.com/IliaW/link-repair-kit/internal/model"
	"github.com/IliaW/link-repair-kit/internal/persistence"
	"github.com/IliaW/link-repair-kit/internal/report"
	"github.com/IliaW/link-repair-kit/internal/telemetry"
	"github.com/google/uuid"
)

type Scanner interface {
	Scan(ctx context.Context, req model.ScanRequest) (*report.Aggregator, error)
}

// ScanWorker runs scan jobs received from SQS and publishes every broken link to Kafka.
type ScanWorker struct {
	InputSqsChan    <-chan *string
	OutputSqsChan   chan<- *string
	OutputKafkaChan chan<- *model.BrokenLink
	Scanner         Scanner
	Wg              *sync.WaitGroup
	KafkaDLQ        broker.DeadLetterQueue
	Metrics         *telemetry.ScanMetrics
}

// Run processes jobs until InputSqsChan is closed. Jobs interrupted by ctx or by a storage
// failure are sent back to SQS; malformed jobs go to the dead-letter queue.
func (w *ScanWorker) Run(ctx context.Context) {
	defer w.Wg.Done()
	slog.Debug("start scan worker")

	for str := range w.InputSqsChan {
		// Expected string format: {"scan_id": "...", "request": {"content_category": "post"}}
		var job model.ScanJob
		if err := json.Unmarshal([]byte(*str), &job); err != nil {
			slog.Error("failed to unmarshal the scan job.", slog.String("job", *str),
				slog.String("err", err.Error()))
			w.KafkaDLQ.SendJobToDLQ(*str, err)
			w.Metrics.FailCnt(1)
			continue
		}
		if err := job.Request.Validate(); err != nil {
			slog.Error("invalid scan job.", slog.String("job", *str), slog.String("err", err.Error()))
			w.KafkaDLQ.SendJobToDLQ(*str, err)
			w.Metrics.FailCnt(1)
			continue
		}
		if job.ScanID == "" {
			job.ScanID = uuid.NewString()
		}

		agg, err := w.Scanner.Scan(ctx, job.Request)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, persistence.ErrStorage) {
				slog.Warn("scan job interrupted. Sending it back to sqs.", slog.String("scan_id", job.ScanID),
					slog.String("err", err.Error()))
				w.OutputSqsChan <- str
				continue
			}
			slog.Error("scan job failed.", slog.String("scan_id", job.ScanID), slog.String("err", err.Error()))
			w.KafkaDLQ.SendJobToDLQ(*str, err)
			w.Metrics.FailCnt(1)
			continue
		}

		broken := agg.Snapshot()
		for _, row := range broken {
			w.OutputKafkaChan <- model.NewBrokenLink(job.ScanID, row)
		}
		slog.Info("scan job finished.", slog.String("scan_id", job.ScanID), slog.Int("links", agg.Total()),
			slog.Int("broken", len(broken)))
		w.Metrics.SuccessCnt(1)
	}
}
