package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Media Engine Metrics
var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plyr",
			Subsystem: "media",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "plyr",
			Subsystem: "media",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "endpoint"},
	)

	// Ingest counters
	IngestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plyr",
			Subsystem: "media",
			Name:      "ingests_total",
			Help:      "Total ingest attempts by outcome",
		},
		[]string{"category", "outcome"},
	)

	// Ingested bytes counter
	IngestBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plyr",
			Subsystem: "media",
			Name:      "ingest_bytes_total",
			Help:      "Total bytes written through ingest",
		},
		[]string{"category"},
	)

	// Tier transition counter
	TierTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plyr",
			Subsystem: "media",
			Name:      "tier_transitions_total",
			Help:      "Tier transition attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Migration job gauge
	MigrationJobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "plyr",
			Subsystem: "media",
			Name:      "migration_jobs_active",
			Help:      "Migration jobs currently running",
		},
	)

	// Entitlement check counter
	EntitlementChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plyr",
			Subsystem: "media",
			Name:      "entitlement_checks_total",
			Help:      "Entitlement validator calls by outcome",
		},
		[]string{"outcome"},
	)

	// Entitlement check duration
	EntitlementCheckDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "plyr",
			Subsystem: "media",
			Name:      "entitlement_check_duration_seconds",
			Help:      "Entitlement validator call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5},
		},
	)

	// Delivery URL counter
	DeliveryURLsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plyr",
			Subsystem: "media",
			Name:      "delivery_urls_total",
			Help:      "Delivery URLs issued by kind",
		},
		[]string{"kind"},
	)

	// Storage operations counter
	StorageOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plyr",
			Subsystem: "media",
			Name:      "storage_operations_total",
			Help:      "Storage backend operations",
		},
		[]string{"backend", "operation", "status"},
	)

	// Storage operation duration
	StorageOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "plyr",
			Subsystem: "media",
			Name:      "storage_operation_duration_seconds",
			Help:      "Storage backend operation duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"backend", "operation"},
	)

	// Gate relocation counter
	RelocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plyr",
			Subsystem: "media",
			Name:      "gate_relocations_total",
			Help:      "Gate-toggle byte relocations by status",
		},
		[]string{"status"},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// RecordIngest records an ingest attempt
func RecordIngest(category, outcome string, bytes int64) {
	IngestsTotal.WithLabelValues(category, outcome).Inc()
	if outcome == "stored" {
		IngestBytesTotal.WithLabelValues(category).Add(float64(bytes))
	}
}

// RecordTierTransition records a tier transition attempt
func RecordTierTransition(outcome string) {
	TierTransitionsTotal.WithLabelValues(outcome).Inc()
}

// RecordEntitlementCheck records an entitlement validator call
func RecordEntitlementCheck(outcome string, durationSec float64) {
	EntitlementChecksTotal.WithLabelValues(outcome).Inc()
	EntitlementCheckDuration.Observe(durationSec)
}

// RecordDeliveryURL records an issued delivery URL
func RecordDeliveryURL(kind string) {
	DeliveryURLsTotal.WithLabelValues(kind).Inc()
}

// RecordStorageOp records a storage backend operation
func RecordStorageOp(backend, operation, status string, durationSec float64) {
	StorageOpsTotal.WithLabelValues(backend, operation, status).Inc()
	StorageOpDuration.WithLabelValues(backend, operation).Observe(durationSec)
}

// RecordRelocation records a gate-toggle byte relocation
func RecordRelocation(status string) {
	RelocationsTotal.WithLabelValues(status).Inc()
}
