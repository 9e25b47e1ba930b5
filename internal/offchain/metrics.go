package offchain

import "github.com/prometheus/client_golang/prometheus"

// Search and pool outcomes.
const (
	OutcomeLockHeld   = "lock_held"
	OutcomeNoPair     = "no_pair"
	OutcomeNoSolution = "no_solution"
	OutcomeSubmitted  = "submitted"
	OutcomeDropped    = "dropped"

	OutcomeAdmitted  = "admitted"
	OutcomeRejected  = "rejected"
	OutcomeStale     = "stale"
	OutcomeDuplicate = "duplicate"
	OutcomeFull      = "full"
)

// Metrics counts search runs and pool outcomes.
type Metrics struct {
	searches   *prometheus.CounterVec
	iterations prometheus.Histogram
	pool       *prometheus.CounterVec
	queued     prometheus.Gauge
}

// NewMetrics registers the offchain collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kittycore",
			Subsystem: "search",
			Name:      "runs_total",
			Help:      "Background search runs by outcome.",
		}, []string{"outcome"}),
		iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kittycore",
			Subsystem: "search",
			Name:      "iterations",
			Help:      "Iterations spent per search run.",
			Buckets:   prometheus.LinearBuckets(0, 50, 11),
		}),
		pool: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kittycore",
			Subsystem: "pool",
			Name:      "proofs_total",
			Help:      "Pending pool proofs by outcome.",
		}, []string{"outcome"}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kittycore",
			Subsystem: "pool",
			Name:      "queued",
			Help:      "Proofs waiting for admission.",
		}),
	}
	for _, c := range []prometheus.Collector{m.searches, m.iterations, m.pool, m.queued} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) search(outcome string, iterations int) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(outcome).Inc()
	if outcome != OutcomeLockHeld {
		m.iterations.Observe(float64(iterations))
	}
}

func (m *Metrics) poolOutcome(outcome string) {
	if m == nil {
		return
	}
	m.pool.WithLabelValues(outcome).Inc()
}

func (m *Metrics) queueDepth(n int) {
	if m == nil {
		return
	}
	m.queued.Set(float64(n))
}
