package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimCollector bundles Prometheus metrics for the event loop and the scenario
// registry, and exposes them over HTTP.
type SimCollector struct {
	gatherer prometheus.Gatherer

	EventsProcessed  *prometheus.CounterVec
	BagSize          prometheus.Histogram
	Clock            prometheus.Gauge
	Demands          *prometheus.GaugeVec
	DistanceTraveled prometheus.Counter

	ScenarioTerminals   prometheus.Gauge
	ScenarioConnections prometheus.Gauge
	ScenarioServices    prometheus.Gauge
	ScenarioBarges      prometheus.Gauge
}

// NewSimCollector registers simulator metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_events_processed_total",
		Help: "Total number of simulation events processed, labeled by event type.",
	}, []string{"type"})
	processed, err := registerCounterVec(reg, processed, "sim_events_processed_total")
	if err != nil {
		return nil, err
	}

	bagSize, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_bag_size",
		Help:    "Number of events sharing one timestamp when popped from the queue.",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
	}), "sim_bag_size")
	if err != nil {
		return nil, err
	}

	clock, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_clock",
		Help: "Current simulated time in hours.",
	}), "sim_clock")
	if err != nil {
		return nil, err
	}

	demands := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sim_demands",
		Help: "Number of demands per lifecycle status.",
	}, []string{"status"})
	demands, err = registerGaugeVec(reg, demands, "sim_demands")
	if err != nil {
		return nil, err
	}

	distance, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_distance_traveled_total",
		Help: "Cumulative distance sailed by all barges.",
	}), "sim_distance_traveled_total")
	if err != nil {
		return nil, err
	}

	terminals, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scenario_terminals",
		Help: "Current number of terminals in ScenarioState.",
	}), "scenario_terminals")
	if err != nil {
		return nil, err
	}
	connections, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scenario_connections",
		Help: "Current number of directed connections in ScenarioState.",
	}), "scenario_connections")
	if err != nil {
		return nil, err
	}
	services, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scenario_services",
		Help: "Current number of services in ScenarioState.",
	}), "scenario_services")
	if err != nil {
		return nil, err
	}
	barges, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scenario_barges",
		Help: "Current number of barges in ScenarioState.",
	}), "scenario_barges")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:            gatherer,
		EventsProcessed:     processed,
		BagSize:             bagSize,
		Clock:               clock,
		Demands:             demands,
		DistanceTraveled:    distance,
		ScenarioTerminals:   terminals,
		ScenarioConnections: connections,
		ScenarioServices:    services,
		ScenarioBarges:      barges,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetScenarioCounts satisfies the ScenarioMetricsRecorder interface so the
// ScenarioState can drive gauge values directly from its mutators.
func (c *SimCollector) SetScenarioCounts(terminals, connections, services, barges int) {
	if c == nil {
		return
	}
	if c.ScenarioTerminals != nil {
		c.ScenarioTerminals.Set(float64(terminals))
	}
	if c.ScenarioConnections != nil {
		c.ScenarioConnections.Set(float64(connections))
	}
	if c.ScenarioServices != nil {
		c.ScenarioServices.Set(float64(services))
	}
	if c.ScenarioBarges != nil {
		c.ScenarioBarges.Set(float64(barges))
	}
}

// SetClock publishes the current simulated time.
func (c *SimCollector) SetClock(now float64) {
	if c == nil || c.Clock == nil {
		return
	}
	c.Clock.Set(now)
}

// ObserveBag records the size of a popped bag.
func (c *SimCollector) ObserveBag(size int) {
	if c == nil || c.BagSize == nil {
		return
	}
	c.BagSize.Observe(float64(size))
}

// IncEvent counts one processed event of the given type name.
func (c *SimCollector) IncEvent(eventType string) {
	if c == nil || c.EventsProcessed == nil {
		return
	}
	c.EventsProcessed.WithLabelValues(eventType).Inc()
}

// SetDemandCounts replaces the per-status demand gauges.
func (c *SimCollector) SetDemandCounts(counts map[string]int) {
	if c == nil || c.Demands == nil {
		return
	}
	for status, n := range counts {
		c.Demands.WithLabelValues(status).Set(float64(n))
	}
}

// AddDistance adds sailed distance; negative values are ignored.
func (c *SimCollector) AddDistance(d float64) {
	if c == nil || c.DistanceTraveled == nil || d <= 0 {
		return
	}
	c.DistanceTraveled.Add(d)
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
