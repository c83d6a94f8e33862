package cache

import "github.com/prometheus/client_golang/prometheus"

// Metrics receives cache events as they happen, for export to a telemetry
// collector. Implementations must be safe for concurrent use and must not
// block.
type Metrics interface {
	Hit(tier string)
	Miss()
	Evict(tier string)
	Promote(from, to string)
	StoreError(op string)
}

type nopMetrics struct{}

func (nopMetrics) Hit(string)             {}
func (nopMetrics) Miss()                  {}
func (nopMetrics) Evict(string)           {}
func (nopMetrics) Promote(string, string) {}
func (nopMetrics) StoreError(string)      {}

// StoreTier is the tier label used for hits served by the backing store.
const StoreTier = "store"

// PrometheusMetrics exports cache events as Prometheus counters.
type PrometheusMetrics struct {
	hits        *prometheus.CounterVec
	misses      prometheus.Counter
	evictions   *prometheus.CounterVec
	promotions  *prometheus.CounterVec
	storeErrors *prometheus.CounterVec
}

var _ Metrics = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics creates the counters and registers them with reg.
func NewPrometheusMetrics(namespace string, reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache hits by tier (\"store\" for backing store hits)",
		}, []string{"tier"}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Lookups that missed every tier and the backing store",
		}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries evicted from a full tier",
		}, []string{"tier"}),
		promotions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "promotions_total",
			Help:      "Entries promoted to a hotter tier",
		}, []string{"from", "to"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "store_errors_total",
			Help:      "Failed backing store operations",
		}, []string{"op"}),
	}
	for _, c := range []prometheus.Collector{m.hits, m.misses, m.evictions, m.promotions, m.storeErrors} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) Hit(tier string)         { m.hits.WithLabelValues(tier).Inc() }
func (m *PrometheusMetrics) Miss()                   { m.misses.Inc() }
func (m *PrometheusMetrics) Evict(tier string)       { m.evictions.WithLabelValues(tier).Inc() }
func (m *PrometheusMetrics) Promote(from, to string) { m.promotions.WithLabelValues(from, to).Inc() }
func (m *PrometheusMetrics) StoreError(op string)    { m.storeErrors.WithLabelValues(op).Inc() }
