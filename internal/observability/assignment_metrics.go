package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AssignmentCollector exposes assignment-engine Prometheus metrics.
type AssignmentCollector struct {
	gatherer prometheus.Gatherer

	RoundDuration  prometheus.Histogram
	PendingDemands prometheus.Gauge
	Commits        prometheus.Counter
	Rejections     *prometheus.CounterVec
}

// NewAssignmentCollector registers assignment metrics against the provided registerer.
func NewAssignmentCollector(reg prometheus.Registerer) (*AssignmentCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	roundHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "assignment_round_duration_seconds",
		Help:    "Wall-clock duration of greedy assignment rounds.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
	roundHistogram, err := registerHistogram(reg, roundHistogram, "assignment_round_duration_seconds")
	if err != nil {
		return nil, err
	}

	pendingGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "assignment_pending_demands",
		Help: "Number of pending demands considered by the last assignment round.",
	})
	pendingGauge, err = registerGauge(reg, pendingGauge, "assignment_pending_demands")
	if err != nil {
		return nil, err
	}

	commits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assignment_commits_total",
		Help: "Cumulative number of demands assigned to a barge.",
	})
	commits, err = registerCounter(reg, commits, "assignment_commits_total")
	if err != nil {
		return nil, err
	}

	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assignment_rejections_total",
		Help: "Cumulative number of demands left pending by a round, labeled by reason.",
	}, []string{"reason"})
	rejections, err = registerCounterVec(reg, rejections, "assignment_rejections_total")
	if err != nil {
		return nil, err
	}

	return &AssignmentCollector{
		gatherer:       gatherer,
		RoundDuration:  roundHistogram,
		PendingDemands: pendingGauge,
		Commits:        commits,
		Rejections:     rejections,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *AssignmentCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveRound records an assignment round duration measurement.
func (c *AssignmentCollector) ObserveRound(d time.Duration) {
	if c == nil || c.RoundDuration == nil {
		return
	}
	c.RoundDuration.Observe(d.Seconds())
}

// SetPendingDemands updates the pending demand gauge.
func (c *AssignmentCollector) SetPendingDemands(count int) {
	if c == nil || c.PendingDemands == nil {
		return
	}
	c.PendingDemands.Set(float64(count))
}

// AddCommits increments the commit counter.
func (c *AssignmentCollector) AddCommits(n int) {
	if c == nil || c.Commits == nil || n <= 0 {
		return
	}
	c.Commits.Add(float64(n))
}

// IncRejection counts one demand that could not be placed for reason.
func (c *AssignmentCollector) IncRejection(reason string) {
	if c == nil || c.Rejections == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	c.Rejections.WithLabelValues(reason).Inc()
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
