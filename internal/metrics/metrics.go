// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CapturePacketsTotal counts frames dissected by live capture, by interface
	CapturePacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netcarve_capture_packets_total",
			Help: "Total number of packets captured and dissected",
		},
		[]string{"interface"},
	)

	// CaptureErrorsTotal counts non-fatal read and dissection errors
	CaptureErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netcarve_capture_errors_total",
			Help: "Total number of non-fatal capture errors",
		},
		[]string{"interface", "stage"},
	)

	// CaptureRunning is 1 while a capture loop is active
	CaptureRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netcarve_capture_running",
			Help: "Whether a live capture is running (1) or idle (0)",
		},
	)

	// CaptureQueueDepth tracks packets waiting for the consumer
	CaptureQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netcarve_capture_queue_depth",
			Help: "Number of dissected packets waiting in the capture queue",
		},
	)

	// FilePacketsTotal counts packets read from or written to capture files
	FilePacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netcarve_file_packets_total",
			Help: "Total number of packets read from or written to capture files",
		},
		[]string{"format", "direction"},
	)

	// ExtractedFilesTotal counts carved files after deduplication, by source type
	ExtractedFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netcarve_extracted_files_total",
			Help: "Total number of files carved from traffic",
		},
		[]string{"source_type"},
	)

	// ExtractDuration measures a full extraction run
	ExtractDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "netcarve_extract_duration_seconds",
			Help:    "Duration of extraction runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~32s
		},
	)

	// FeedClients tracks connected websocket consumers
	FeedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netcarve_feed_clients",
			Help: "Number of connected live feed clients",
		},
	)

	// FeedDroppedTotal counts packets dropped for slow feed clients
	FeedDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netcarve_feed_dropped_total",
			Help: "Total number of packets dropped because a feed client was too slow",
		},
	)
)
