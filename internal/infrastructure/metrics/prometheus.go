package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qcflags_operation_duration_seconds",
			Help:    "QC flag operation duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"operation"},
	)

	OperationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qcflags_operation_total",
			Help: "Total number of QC flag operations by outcome",
		},
		[]string{"operation", "status"},
	)

	LockContentionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qcflags_lock_contention_total",
			Help: "Number of lock acquisitions that timed out",
		},
		[]string{"operation"},
	)

	ReconciledPeriodsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qcflags_reconciled_periods_total",
			Help: "Effective periods touched by boundary reconciliation",
		},
		[]string{"action"},
	)

	SummaryCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qcflags_summary_cache_total",
			Help: "GAQ summary cache lookups",
		},
		[]string{"result"},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(OperationDuration)
		prometheus.MustRegister(OperationTotal)
		prometheus.MustRegister(LockContentionTotal)
		prometheus.MustRegister(ReconciledPeriodsTotal)
		prometheus.MustRegister(SummaryCacheTotal)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// Record observes one finished operation.
func Record(operation string, status string, elapsed time.Duration) {
	OperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	OperationTotal.WithLabelValues(operation, status).Inc()
}
