package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutEvaluationsTotal counts cart evaluations by entry point.
	CheckoutEvaluationsTotal *prometheus.CounterVec
	// PromotionFindingsTotal counts advisory findings by kind (missing, partial).
	PromotionFindingsTotal *prometheus.CounterVec
	// OrderSubmissionsTotal counts finalize outcomes.
	OrderSubmissionsTotal *prometheus.CounterVec
	// CatalogSnapshotTotal counts catalog snapshots by source (cache, upstream, unavailable).
	CatalogSnapshotTotal *prometheus.CounterVec
	// UpstreamLatency records storefront call latency in milliseconds.
	UpstreamLatency *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutEvaluationsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_evaluations_total",
			Help:      "Count of cart evaluations.",
		}, []string{"endpoint"}))
		PromotionFindingsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotion_findings_total",
			Help:      "Count of promotion findings reported to shoppers.",
		}, []string{"kind"}))
		OrderSubmissionsTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_submissions_total",
			Help:      "Count of checkout finalize outcomes.",
		}, []string{"result"}))
		CatalogSnapshotTotal = registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_snapshot_total",
			Help:      "Count of catalog snapshots by source.",
		}, []string{"source"}))
		UpstreamLatency = registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storefront_request_duration_ms",
			Help:      "Latency for storefront calls in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"operation", "result"}))
	})
}

// IncCounter increments vec when domain metrics are registered.
func IncCounter(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}

func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, collector T) T {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
			return collector
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
	return collector
}
