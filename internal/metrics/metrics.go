package metrics

import (
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// DefaultRegistry holds every doc2x collector.
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		RequestsTotal, RetriesTotal,
		TaskOutcomesTotal, WaitDuration,
		DownloadBytesTotal,
	)
}

// RequestsTotal counts API exchanges by method and outcome code ("ok" on success)
var RequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "doc2x_requests_total",
		Help: "Doc2x API exchanges by outcome",
	},
	[]string{"method", "outcome"},
)

// RetriesTotal counts backoff sleeps by reason
var RetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "doc2x_retries_total",
		Help: "Retries performed after a backoff sleep",
	},
	[]string{"reason"}, // rate_limited | <business code> | poll
)

// TaskOutcomesTotal counts finished waits by task kind
var TaskOutcomesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "doc2x_task_outcomes_total",
		Help: "Finished task waits by kind and outcome",
	},
	[]string{"kind", "outcome"}, // success | failed | timeout | error
)

// WaitDuration measures wall time spent waiting for tasks (seconds)
var WaitDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "doc2x_wait_duration_seconds",
		Help:    "Time spent waiting for a remote task",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	},
	[]string{"kind"},
)

// DownloadBytesTotal counts bytes written by downloads
var DownloadBytesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "doc2x_download_bytes_total",
		Help: "Bytes written to disk by result downloads",
	},
)

// WritePrometheus writes the text exposition of DefaultRegistry to w
func WritePrometheus(w io.Writer) error {
	families, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile dumps the exposition to path, replacing any previous dump.
func WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WritePrometheus(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
