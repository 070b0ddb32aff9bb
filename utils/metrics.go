package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database Metrics
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "session_db_operation_duration_seconds",
			Help:    "Duration of session collection operations",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "collection"},
	)

	MongoCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_mongo_commands_total",
			Help: "MongoDB commands issued by the driver",
		},
		[]string{"command", "status"}, // succeeded/failed
	)

	// Conversion Metrics
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_conversions_total",
			Help: "Session to document conversions",
		},
		[]string{"direction", "status"}, // to_document/from_document, ok/error
	)

	// Cache Metrics
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_cache_operations_total",
			Help: "Session cache lookups",
		},
		[]string{"result"}, // hit/miss
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_errors_total",
			Help: "Total number of errors by component and type",
		},
		[]string{"component", "type"},
	)
)

// TrackDBOperation tracks database operation duration
func TrackDBOperation(operation, collection string) *prometheus.Timer {
	return prometheus.NewTimer(DBOperationDuration.WithLabelValues(operation, collection))
}

func TrackConversion(direction string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ConversionsTotal.WithLabelValues(direction, status).Inc()
}

func TrackCacheOperation(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheOperationsTotal.WithLabelValues(result).Inc()
}

// TrackError increments the error counter
func TrackError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
