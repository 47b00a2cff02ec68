// Package metrics is the server's Prometheus instrumentation surface.
// It mirrors the counters/histograms of an OpenTelemetry-meter-based
// reference design the rest of this package was grounded on, with one
// deliberate fix: active connections is a Gauge, not a monotonic
// Counter with a no-op decrement.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rkvd_connections_total",
		Help: "Total number of client connections accepted.",
	})
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rkvd_connections_active",
		Help: "Number of currently open client connections.",
	})
	RequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rkvd_requests_total",
		Help: "Total number of requests processed.",
	})
	RequestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "rkvd_request_duration_seconds",
		Help: "Request processing duration in seconds.",
	})
	ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rkvd_errors_total",
		Help: "Total number of errors, labeled by error type and command.",
	}, []string{"error_type", "command"})

	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rkvd_commands_total",
		Help: "Total number of commands executed, labeled by command.",
	}, []string{"command"})
	CommandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "rkvd_command_duration_seconds",
		Help: "Command execution duration in seconds, labeled by command.",
	}, []string{"command"})

	StorageOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rkvd_storage_operations_total",
		Help: "Total number of storage operations, labeled by operation and backend.",
	}, []string{"operation", "backend"})
	StorageOperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "rkvd_storage_operation_duration_seconds",
		Help: "Storage operation duration in seconds, labeled by operation and backend.",
	}, []string{"operation", "backend"})
	StorageErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rkvd_storage_errors_total",
		Help: "Total number of storage errors, labeled by operation, backend and error type.",
	}, []string{"operation", "backend", "error_type"})

	KeysTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rkvd_keys_total",
		Help: "Total number of key operations, labeled by operation.",
	}, []string{"operation"})
	ExpiredKeysTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rkvd_expired_keys_total",
		Help: "Total number of keys removed due to expiry.",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal, ConnectionsActive, RequestsTotal, RequestDuration,
		ErrorsTotal, CommandsTotal, CommandDuration,
		StorageOperationsTotal, StorageOperationDuration, StorageErrorsTotal,
		KeysTotal, ExpiredKeysTotal,
	)
}

// RecordRequest records one dispatched request's total duration.
func RecordRequest(d time.Duration) {
	RequestsTotal.Inc()
	RequestDuration.Observe(d.Seconds())
}

// RecordCommand records one command's execution duration.
func RecordCommand(command string, d time.Duration) {
	CommandsTotal.WithLabelValues(command).Inc()
	CommandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// RecordError increments the error counter for the given type/command pair.
func RecordError(errType, command string) {
	ErrorsTotal.WithLabelValues(errType, command).Inc()
}

// Timer measures elapsed wall time for a storage or command operation.
type Timer struct{ start time.Time }

func NewTimer() Timer { return Timer{start: time.Now()} }

func (t Timer) ElapsedSeconds() float64 { return time.Since(t.start).Seconds() }

// TimeStorageOp records a storage operation's duration/count and, on
// error, the storage error counter, in one call. Use as:
//
//	defer metrics.TimeStorageOp("get", "memory", &err)()
func TimeStorageOp(operation, backend string, errOut *error) func() {
	timer := NewTimer()
	return func() {
		StorageOperationsTotal.WithLabelValues(operation, backend).Inc()
		StorageOperationDuration.WithLabelValues(operation, backend).Observe(timer.ElapsedSeconds())
		if errOut != nil && *errOut != nil {
			StorageErrorsTotal.WithLabelValues(operation, backend, "operation_failed").Inc()
		}
	}
}

// RecordKeyOperation records a set/delete-style key-count change.
func RecordKeyOperation(operation string, count int) {
	if count <= 0 {
		return
	}
	KeysTotal.WithLabelValues(operation).Add(float64(count))
}

// RecordExpiredKeys records keys removed by lazy or background expiry.
func RecordExpiredKeys(count int) {
	if count <= 0 {
		return
	}
	ExpiredKeysTotal.Add(float64(count))
}
