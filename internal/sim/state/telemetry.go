package state

import (
	"errors"
	"sync"

	"github.com/signalsfoundry/barge-simulator/model"
)

// StatsSample is a point-in-time summary of the scenario, recorded on every
// StatisticsCollection event.
type StatsSample struct {
	Time float64

	// Demands counts demands per status; every status is present.
	Demands map[model.DemandStatus]int

	// BargeUtilization is on-board load over capacity, keyed by barge ID.
	BargeUtilization map[string]float64

	// ServiceUtilization is committed load over capacity, keyed by service ID.
	ServiceUtilization map[string]float64

	// TerminalOccupancy is the TEU staged at each terminal awaiting loading.
	TerminalOccupancy map[string]float64

	// DistanceTraveled sums the odometers of every barge.
	DistanceTraveled float64
}

// BargeMetrics captures cumulative per-barge activity over a run.
type BargeMetrics struct {
	BargeID string

	// Trips counts completed legs, repositioning included.
	Trips int

	DistanceTraveled float64
	VolumeLoaded     float64
	VolumeUnloaded   float64

	// HandlingTime is the simulated time spent loading and unloading.
	HandlingTime float64
}

// TelemetryState is a concurrency-safe store for run statistics.
type TelemetryState struct {
	mu      sync.RWMutex
	samples []StatsSample
	barges  map[string]*BargeMetrics
	order   []string
}

// NewTelemetryState creates a new TelemetryState instance.
func NewTelemetryState() *TelemetryState {
	return &TelemetryState{
		barges: make(map[string]*BargeMetrics),
	}
}

// RecordSample appends a sample. Samples must arrive in time order.
func (t *TelemetryState) RecordSample(s StatsSample) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.samples); n > 0 && s.Time < t.samples[n-1].Time {
		return errors.New("stats sample out of time order")
	}
	t.samples = append(t.samples, s)
	return nil
}

// Samples returns the recorded samples in time order. The slice is a copy;
// the maps inside each sample are shared and must not be mutated.
func (t *TelemetryState) Samples() []StatsSample {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]StatsSample(nil), t.samples...)
}

// UpdateBarge applies fn to the metrics of bargeID, creating the entry on
// first use.
func (t *TelemetryState) UpdateBarge(bargeID string, fn func(*BargeMetrics)) {
	if bargeID == "" || fn == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.barges[bargeID]
	if !ok {
		m = &BargeMetrics{BargeID: bargeID}
		t.barges[bargeID] = m
		t.order = append(t.order, bargeID)
	}
	fn(m)
}

// GetBarge returns a copy of the metrics for bargeID, or nil if the barge
// has not been active.
func (t *TelemetryState) GetBarge(bargeID string) *BargeMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.barges[bargeID]
	if !ok {
		return nil
	}
	cp := *m
	return &cp
}

// ListBarges returns copies of every barge's metrics in first-activity order.
func (t *TelemetryState) ListBarges() []BargeMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]BargeMetrics, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.barges[id])
	}
	return out
}

// Sample builds a StatsSample from the live scenario at now.
func (s *ScenarioState) Sample(now float64) StatsSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := StatsSample{
		Time:               now,
		Demands:            s.demands.Counts(),
		BargeUtilization:   make(map[string]float64, len(s.barges)),
		ServiceUtilization: make(map[string]float64, len(s.services)),
		TerminalOccupancy:  make(map[string]float64),
	}
	for _, id := range s.bargeOrder {
		b := s.barges[id]
		out.BargeUtilization[id] = b.CurrentLoad / b.Capacity
		out.DistanceTraveled += b.DistanceTraveled
	}
	for _, id := range s.serviceOrder {
		out.ServiceUtilization[id] = s.services[id].Utilization()
	}
	for _, t := range s.network.Terminals() {
		out.TerminalOccupancy[t.ID] = t.Occupancy
	}
	return out
}
