package sim

import (
	"github.com/signalsfoundry/barge-simulator/internal/sim/events"
	"github.com/signalsfoundry/barge-simulator/internal/sim/state"
	"github.com/signalsfoundry/barge-simulator/model"
)

// ProcessedEvent is one dispatched event as seen by result consumers.
type ProcessedEvent struct {
	ID         events.ID
	Time       float64
	Type       events.Type
	ResourceID string
	Quantity   float64
	From       string
	To         string
	// Dropped is set when the handler rejected the event: an unknown id, a
	// superseded departure or an illegal state.
	Dropped bool
}

// Result is the in-memory outcome of a run.
type Result struct {
	RunID   string
	EndTime float64

	Events   []ProcessedEvent
	Demands  []*model.Demand
	Barges   []*model.Barge
	Services []*model.Service

	EventsProcessed int
	TotalDistance   float64
	Counts          map[model.DemandStatus]int
	OnTime          int

	Stats        []state.StatsSample
	BargeMetrics []state.BargeMetrics
}

// Demand returns the final state of demand id, or nil.
func (r *Result) Demand(id string) *model.Demand {
	for _, d := range r.Demands {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// Barge returns the final state of barge id, or nil.
func (r *Result) Barge(id string) *model.Barge {
	for _, b := range r.Barges {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// OnTimeRate is OnTime over completed demands, or 0 when none completed.
func (r *Result) OnTimeRate() float64 {
	done := r.Counts[model.DemandCompleted]
	if done == 0 {
		return 0
	}
	return float64(r.OnTime) / float64(done)
}

// EventsOfType filters the processed log.
func (r *Result) EventsOfType(t events.Type) []ProcessedEvent {
	var out []ProcessedEvent
	for _, ev := range r.Events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
