package report

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/IliaW/link-repair-kit/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintTable(t *testing.T) {
	agg := NewAggregator(testRows("https://x.test/missing", "https://x.test/pending"))
	agg.Apply(context.Background(), 0, model.ReachabilityResult{StatusCode: 404})
	var buf bytes.Buffer

	PrintTable(&buf, agg.Snapshot())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "HTTP Status")
	assert.Contains(t, lines[1], "https://x.test/missing")
	assert.Contains(t, lines[1], "404")
	assert.Contains(t, lines[2], LoadingStatus)
}
