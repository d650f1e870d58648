// Package metrics defines Prometheus metrics for the backup service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Backup outcome labels.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "anonforum_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anonforum_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ResponseBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anonforum_http_response_bytes_total",
			Help: "Response body bytes sent by route",
		},
		[]string{"path"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anonforum_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "anonforum_websocket_connections",
			Help: "Active WebSocket connections",
		},
	)

	BackupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anonforum_backups_total",
			Help: "Activity backups by outcome",
		},
		[]string{"status"},
	)

	BackupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "anonforum_backup_duration_seconds",
			Help:    "Time spent exporting and storing one activity backup",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	RowsExported = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anonforum_rows_exported_total",
			Help: "Rows written to backup documents by element",
		},
		[]string{"element"},
	)

	BackupsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "anonforum_backups_in_flight",
			Help: "Activity backups currently running",
		},
	)

	DBConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "anonforum_db_connections",
			Help: "Postgres pool connections by state (acquired, idle, max)",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, ResponseBytes, ErrorsTotal,
		WSConnections,
		BackupsTotal, BackupDuration, RowsExported, BackupsInFlight,
		DBConnections,
	)
}
