package telemetry

import (
	"context"
	"testing"

	"github.com/IliaW/link-repair-kit/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupMetricsDisabled(t *testing.T) {
	cfg := &config.Config{ServiceName: "link-repair-kit", TelemetrySettings: &config.TelemetryConfig{Enabled: false}}

	metrics := SetupMetrics(context.Background(), cfg)
	require.NotNil(t, metrics)
	defer metrics.Close()

	assert.NotPanics(t, func() {
		metrics.CheckerMetrics.BrokenCnt(1)
		metrics.RedirectMetrics.HitCnt(1)
		metrics.ScanMetrics.SuccessCnt(1)
		metrics.KafkaMetrics.FailMsgCnt(1)
		metrics.SQSMetrics.SentBackToSqsMsgCnt(1)
	})
}

func TestNoopMetrics(t *testing.T) {
	metrics := NewNoopMetrics()

	assert.NotPanics(t, func() {
		metrics.CheckerMetrics.HealthyCnt(1)
		metrics.RedirectMetrics.RuleDeletedCnt(1)
		metrics.Close()
	})
}
