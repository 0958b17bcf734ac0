package metrics

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSanitizePathLabel(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/", "/"},
		{"/metrics", "/metrics"},
		{"/health", "/health"},
		{"/archives/job", "/archives/*"},
		{"/archives/job/with/more/segments", "/archives/*"},
		{"/archives", "/archives"}, // single segment: no trailing "/*"
		{"/archives?query=param", "/archives"},
		{"", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			result := sanitizePathLabel(tt.path)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestRecordHTTPRequest_Cardinality(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	// Record requests with high cardinality paths
	m.RecordHTTPRequest(context.Background(), "GET", "/archives/job1", http.StatusOK, time.Millisecond, 100)
	m.RecordHTTPRequest(context.Background(), "GET", "/archives/job2", http.StatusOK, time.Millisecond, 100)
	m.RecordHTTPRequest(context.Background(), "GET", "/entries/job1", http.StatusOK, time.Millisecond, 100)

	// Check that we have collapsed paths
	// We expect /archives/* and /entries/*

	// Verify /archives/* count is 2
	countArchives := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/archives/*", "OK"))
	assert.Equal(t, 2.0, countArchives)

	// Verify /entries/* count is 1
	countEntries := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/entries/*", "OK"))
	assert.Equal(t, 1.0, countEntries)
}

func TestRecordBackendOperation_DisableBackendLabel(t *testing.T) {
	// Create metrics with backend label disabled
	reg := prometheus.NewRegistry()
	cfg := Config{EnableBackendLabel: false}
	m := newMetricsWithRegistry(reg, cfg)

	m.RecordBackendOperation(context.Background(), "create", "localfs", time.Millisecond)
	m.RecordBackendOperation(context.Background(), "create", "s3backend", time.Millisecond)

	// Should align to backend="*"
	count := testutil.ToFloat64(m.backendOperationsTotal.WithLabelValues("create", "*"))
	assert.Equal(t, 2.0, count)

	// Verify that specific backends are NOT tracked
	// Note: testutil.ToFloat64 panics or returns 0 if label values don't match existing metric.
	// However, since we didn't record them, we can't easily check for "absence" with ToFloat64
	// without knowing if it returns 0 for non-existent label set or if it errors.
	// But checking the aggregate "*" is sufficient to prove logic path was taken.
}

func TestRecordBackendError_DisableBackendLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := Config{EnableBackendLabel: false}
	m := newMetricsWithRegistry(reg, cfg)

	m.RecordBackendError(context.Background(), "open", "localfs", "not_found")
	m.RecordBackendError(context.Background(), "open", "s3backend", "not_found")

	count := testutil.ToFloat64(m.backendOperationErrors.WithLabelValues("open", "*", "not_found"))
	assert.Equal(t, 2.0, count)
}

