package strategy

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "checkout",
			Subsystem: "strategy",
			Name:      "operations_total",
			Help:      "Payment strategy lifecycle calls by strategy, operation and outcome.",
		},
		[]string{"strategy", "operation", "outcome"},
	)
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "checkout",
			Subsystem: "strategy",
			Name:      "operation_duration_seconds",
			Help:      "Duration of payment strategy lifecycle calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"strategy", "operation"},
	)
)

// GetOperationsTotal exposes the operations counter for tests.
func GetOperationsTotal() *prometheus.CounterVec { return operationsTotal }

// GetOperationDuration exposes the duration histogram for tests.
func GetOperationDuration() *prometheus.HistogramVec { return operationDuration }

// Outcome classifies err into a metric label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrProviderRejected):
		return "rejected"
	case errors.Is(err, ErrMissingData):
		return "missing_data"
	case errors.Is(err, ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, ErrStrategyNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// Observe records one lifecycle call that started at start.
func Observe(strategyName, operation string, start time.Time, err error) {
	operationsTotal.WithLabelValues(strategyName, operation, Outcome(err)).Inc()
	operationDuration.WithLabelValues(strategyName, operation).Observe(time.Since(start).Seconds())
}
