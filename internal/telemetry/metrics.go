package telemetry

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/detectors/aws/ecs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/IliaW/link-repair-kit/config"
	"github.com/google/uuid"
)

var meter metric.Meter

type MetricsProvider struct {
	CheckerMetrics  *CheckerMetrics
	RedirectMetrics *RedirectMetrics
	ScanMetrics     *ScanMetrics
	KafkaMetrics    *KafkaMetrics
	SQSMetrics      *SQSMetrics
	Close           func()
}

type CheckerMetrics struct {
	HealthyCnt func(count int64)
	BrokenCnt  func(count int64)
	ErrorCnt   func(count int64)
}

type RedirectMetrics struct {
	HitCnt         func(count int64)
	MissCnt        func(count int64)
	RuleSavedCnt   func(count int64)
	RuleDeletedCnt func(count int64)
}

type ScanMetrics struct {
	SuccessCnt func(count int64)
	FailCnt    func(count int64)
}

type KafkaMetrics struct {
	SuccessMsgCnt func(count int64)
	FailMsgCnt    func(count int64)
}

type SQSMetrics struct {
	SuccessMsgCnt       func(count int64)
	FailMsgCnt          func(count int64)
	SentBackToSqsMsgCnt func(count int64)
}

func SetupMetrics(ctx context.Context, cfg *config.Config) *MetricsProvider {
	metricsProvider := new(MetricsProvider)
	var meterProvider *sdkmetric.MeterProvider
	enabled := cfg.TelemetrySettings != nil && cfg.TelemetrySettings.Enabled

	if enabled {
		r, err := newResource(cfg)
		if err != nil {
			slog.Error("failed to get resource.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		exporter, err := newMetricExporter(ctx, cfg.TelemetrySettings)
		if err != nil {
			slog.Error("failed to get metric exporter.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		meterProvider = newMeterProvider(exporter, *r)
		otel.SetMeterProvider(meterProvider)
	}

	meter = otel.Meter(cfg.ServiceName)
	metricsProvider.Close = func() {
		if meterProvider != nil {
			err := meterProvider.Shutdown(ctx)
			if err != nil {
				slog.Error("failed to shutdown metrics provider.", slog.String("err", err.Error()))
			}
		}
	}
	counter := func(name, description, unit string) func(count int64) {
		c, err := meter.Int64Counter(cfg.ServiceName+"."+name,
			metric.WithDescription(description),
			metric.WithUnit(unit))
		if err != nil {
			slog.Error("failed to create telemetry counter.", slog.String("name", name),
				slog.String("err", err.Error()))
			os.Exit(1)
		}
		return func(count int64) {
			if enabled {
				c.Add(ctx, count)
			}
		}
	}

	metricsProvider.CheckerMetrics = &CheckerMetrics{
		HealthyCnt: counter("checks.healthy", "The number of links that answered with a 2xx or 3xx status", "{links}"),
		BrokenCnt:  counter("checks.broken", "The number of links that answered with a status outside 2xx/3xx", "{links}"),
		ErrorCnt:   counter("checks.error", "The number of links that failed on the transport level", "{links}"),
	}
	metricsProvider.RedirectMetrics = &RedirectMetrics{
		HitCnt:         counter("redirects.hit", "The number of requests redirected by a rule", "{requests}"),
		MissCnt:        counter("redirects.miss", "The number of requests passed through without a rule", "{requests}"),
		RuleSavedCnt:   counter("redirects.rules.saved", "The number of saved redirect rules", "{rules}"),
		RuleDeletedCnt: counter("redirects.rules.deleted", "The number of deleted redirect rules", "{rules}"),
	}
	metricsProvider.ScanMetrics = &ScanMetrics{
		SuccessCnt: counter("scans.success", "The number of scan jobs the worker completed", "{scans}"),
		FailCnt:    counter("scans.fail", "The number of scan jobs the worker could not process", "{scans}"),
	}
	metricsProvider.KafkaMetrics = &KafkaMetrics{
		SuccessMsgCnt: counter("kafka.send.success", "The number of messages that the kafka successfully processed", "{messages}"),
		FailMsgCnt:    counter("kafka.send.fail", "The number of messages that the kafka could not process", "{messages}"),
	}
	metricsProvider.SQSMetrics = &SQSMetrics{
		SuccessMsgCnt:       counter("sqs.receive.success", "The number of messages that the sqs worker successfully processed", "{messages}"),
		FailMsgCnt:          counter("sqs.receive.fail", "The number of messages that the sqs worker could not process", "{messages}"),
		SentBackToSqsMsgCnt: counter("sqs.sent.back", "The number of messages that the sqs worker sent back to sqs", "{messages}"),
	}

	return metricsProvider
}

// NewNoopMetrics returns counters that record nothing. Used by the CLI and tests.
func NewNoopMetrics() *MetricsProvider {
	noop := func(int64) {}
	return &MetricsProvider{
		CheckerMetrics:  &CheckerMetrics{HealthyCnt: noop, BrokenCnt: noop, ErrorCnt: noop},
		RedirectMetrics: &RedirectMetrics{HitCnt: noop, MissCnt: noop, RuleSavedCnt: noop, RuleDeletedCnt: noop},
		ScanMetrics:     &ScanMetrics{SuccessCnt: noop, FailCnt: noop},
		KafkaMetrics:    &KafkaMetrics{SuccessMsgCnt: noop, FailMsgCnt: noop},
		SQSMetrics:      &SQSMetrics{SuccessMsgCnt: noop, FailMsgCnt: noop, SentBackToSqsMsgCnt: noop},
		Close:           func() {},
	}
}

func newResource(cfg *config.Config) (*resource.Resource, error) {
	ecsResourceDetector := ecs.NewResourceDetector()
	ecsResource, err := ecsResourceDetector.Detect(context.Background())
	if err != nil {
		slog.Error("ecs detection failed", slog.String("err", err.Error()))
	}
	mergedResource, err := resource.Merge(ecsResource, resource.Default())
	if err != nil {
		slog.Error("failed to merge resources", slog.String("err", err.Error()))
	}
	keyValue, found := ecsResource.Set().Value("container.id")
	var serviceId string
	if found {
		serviceId = keyValue.AsString()
	} else {
		serviceId = uuid.New().String()
	}
	return resource.Merge(mergedResource,
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Env),
			semconv.ServiceInstanceID(serviceId),
		))
}

func newMetricExporter(ctx context.Context, cfg *config.TelemetryConfig) (sdkmetric.Exporter, error) {
	return otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(cfg.CollectorUrl),
		otlpmetrichttp.WithInsecure())
}

func newMeterProvider(meterExporter sdkmetric.Exporter, resource resource.Resource) *sdkmetric.MeterProvider {
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(meterExporter)),
		sdkmetric.WithResource(&resource),
	)
	return meterProvider
}
