package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeBuildsLoggerAndTracer(t *testing.T) {
	err := Initialize(Config{
		Log:     LogConfig{Level: "debug", Encoding: "json"},
		Tracing: TracingConfig{ServiceName: "portage-test", ServiceVersion: "0.0.0-test", SamplingRate: 1.0},
	})
	require.NoError(t, err)
	assert.NotNil(t, Logger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, Shutdown(ctx))
}

func TestFromContextAttachesJobID(t *testing.T) {
	ctx := WithJobID(context.Background(), "job-123")
	logger := FromContext(ctx)
	assert.NotNil(t, logger)
}

func TestMetricsRecordersDoNotPanic(t *testing.T) {
	RecordRows("written", 10)
	RecordRows("skipped", 0)
	RecordBatchDuration(15 * time.Millisecond)
	RecordError("data_validation")
	RecordRSS(1024 * 1024)
	assert.NotNil(t, Handler())
}

func TestRSSSamplerReportsNonzeroRSS(t *testing.T) {
	sampler, err := NewRSSSampler()
	require.NoError(t, err)

	rss, err := sampler.SampleRSS()
	require.NoError(t, err)
	assert.Greater(t, rss, uint64(0))
}
