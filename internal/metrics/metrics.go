package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine and host metrics for production monitoring
var (
	// Analysis metrics
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datalens_analyses_total",
			Help: "Total number of analysis runs",
		},
		[]string{"kind", "status"}, // kind: eda/anomaly/cluster/forecast/..., status: ok/input_error/cancelled/error
	)

	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datalens_analysis_duration_seconds",
			Help:    "Analysis run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"kind"},
	)

	AnalysisRowsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datalens_analysis_rows_total",
			Help: "Total number of rows fed into analysis runs",
		},
		[]string{"kind"},
	)

	// Dataset metrics
	DatasetsUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "datalens_datasets_uploaded_total",
			Help: "Total number of datasets uploaded",
		},
	)

	DatasetRows = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "datalens_dataset_rows",
			Help:    "Row counts of uploaded datasets",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8), // 10 to ~160k rows
		},
	)

	// LLM metrics
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datalens_llm_requests_total",
			Help: "Total number of LLM API requests",
		},
		[]string{"operation", "status"}, // operation: explain/insights/query
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datalens_llm_request_duration_seconds",
			Help:    "LLM request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"operation"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "datalens_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WebSocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datalens_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: inbound/outbound
	)
)
