package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guildline",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "guildline",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	missionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guildline",
			Subsystem: "missions",
			Name:      "transitions_total",
			Help:      "Mission transitions by operation, payment type and result code.",
		},
		[]string{"op", "payment_type", "result"},
	)
	ledgerMovements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guildline",
			Subsystem: "ledger",
			Name:      "movements_total",
			Help:      "Committed ledger transactions.",
		},
		[]string{"description", "type"},
	)
	ledgerCoins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guildline",
			Subsystem: "ledger",
			Name:      "coins_total",
			Help:      "Absolute coins moved by committed ledger transactions.",
		},
		[]string{"description", "type"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, missionTransitions, ledgerMovements, ledgerCoins)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordTransition counts one mission operation; result is "ok" or the
// domain error code.
func RecordTransition(op, paymentType, result string) {
	RegisterMetrics()
	missionTransitions.WithLabelValues(op, paymentType, result).Inc()
}

func RecordLedger(description, txType string, amount int64) {
	RegisterMetrics()
	if amount < 0 {
		amount = -amount
	}
	ledgerMovements.WithLabelValues(description, txType).Inc()
	ledgerCoins.WithLabelValues(description, txType).Add(float64(amount))
}
