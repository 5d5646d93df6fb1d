package obs

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// defaultLatencyBuckets spans a cached evaluate (a few ms) up to a checkout
// waiting on a slow storefront.
var defaultLatencyBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

// HTTPMetrics are the per-request collectors fed by HTTPObs.
type HTTPMetrics struct {
	ReqTotal *prometheus.CounterVec
	ReqDur   *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

// NewHTTPMetrics registers the request collectors on reg, or on the default
// registerer when reg is nil. Registering twice returns the first collectors.
func NewHTTPMetrics(namespace string, buckets []float64, reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if len(buckets) == 0 {
		buckets = defaultLatencyBuckets
	}
	return &HTTPMetrics{
		ReqTotal: registerOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, status and checkout outcome.",
		}, []string{"method", "route", "status", "outcome"})),
		ReqDur: registerOrReuse(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "Time to serve a request, in milliseconds.",
			Buckets:   buckets,
		}, []string{"method", "route"})),
		InFlight: registerOrReuse(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "Requests being served right now.",
		})),
	}
}

// ParseBucketsCSV reads METRICS_BUCKETS ("5,25,100"). Entries that are not
// positive numbers are dropped; the result is sorted without duplicates, or
// nil when nothing usable remains.
func ParseBucketsCSV(csv string) []float64 {
	var out []float64
	for field := range strings.SplitSeq(csv, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil || v <= 0 {
			continue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// DurationMillis converts d for the millisecond histograms.
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
