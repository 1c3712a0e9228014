package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(bulkSlots, bulkRejected, postingCalls) }

var (
	bulkSlots = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulk_slots_total",
			Help: "Bulk dispatch slots by result (scheduled, draft, failed).",
		},
		[]string{"result"},
	)

	bulkRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulk_requests_rejected_total",
			Help: "Bulk dispatch requests rejected before any external call.",
		},
		[]string{"reason"},
	)

	postingCalls = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "postbridge_call_duration_ms",
			Help:    "Post-bridge API call latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"operation", "status"},
	)
)

func IncSlot(result string) {
	bulkSlots.WithLabelValues(result).Inc()
}

func IncBulkRejected(reason string) {
	bulkRejected.WithLabelValues(reason).Inc()
}

func ObservePostingCall(operation string, status int, latencyMs int64) {
	postingCalls.WithLabelValues(operation, statusClass(status)).Observe(float64(latencyMs))
}

func statusClass(code int) string {
	switch {
	case code == 0:
		return "error"
	case code < 300:
		return "2xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
