package metrics

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersExposed(t *testing.T) {
	before := testutil.ToFloat64(RetriesTotal.WithLabelValues("rate_limited"))
	RetriesTotal.WithLabelValues("rate_limited").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(RetriesTotal.WithLabelValues("rate_limited")))

	RequestsTotal.WithLabelValues("GET", "ok").Inc()
	WaitDuration.WithLabelValues("pdf_parse").Observe(3)

	var buf bytes.Buffer
	require.NoError(t, WritePrometheus(&buf))
	out := buf.String()
	assert.Contains(t, out, "doc2x_retries_total")
	assert.Contains(t, out, `doc2x_requests_total{method="GET",outcome="ok"}`)
	assert.Contains(t, out, "doc2x_wait_duration_seconds_bucket")
}

func TestWriteFile(t *testing.T) {
	DownloadBytesTotal.Add(10)
	path := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "doc2x_download_bytes_total")
}
