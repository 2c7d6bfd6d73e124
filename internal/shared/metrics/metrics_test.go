package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStatusCodeToString(t *testing.T) {
	assert.Equal(t, "2xx", statusCodeToString(200))
	assert.Equal(t, "3xx", statusCodeToString(304))
	assert.Equal(t, "4xx", statusCodeToString(422))
	assert.Equal(t, "5xx", statusCodeToString(503))
	assert.Equal(t, "unknown", statusCodeToString(101))
}

func TestRecordRunCompleted(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.RecordRunStarted()
	m.RecordRunCompleted("batch", "completed", 5, 4, 1, 3*time.Second)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("batch", "completed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.CombinationsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CombinationsTotal.WithLabelValues("failure")))
}

func TestRecordFFmpegOperation(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.RecordFFmpegOperation("render", true, time.Second)
	m.RecordFFmpegOperation("render", false, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FFmpegOperationsTotal.WithLabelValues("render", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FFmpegOperationsTotal.WithLabelValues("render", "failure")))
}
