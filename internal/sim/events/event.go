// Package events defines simulation events and the time-ordered queue that
// groups them into bags of simultaneous work.
package events

import "fmt"

// ID identifies an event. IDs increase monotonically in scheduling order and
// break ties between events that share a time.
type ID uint64

// Type discriminates the kind of an event.
type Type int

const (
	DemandArrival Type = iota + 1
	DemandAssignment
	DemandExpiration
	BargeDeparture
	BargeArrival
	LoadingComplete
	UnloadingComplete
	AssignmentRound
	PeriodicCheck
	ServiceClose
	TerminalCongestion
	TerminalDecongestion
	StatisticsCollection
	SimulationStart
	SimulationEnd
)

var typeNames = map[Type]string{
	DemandArrival:        "demand_arrival",
	DemandAssignment:     "demand_assignment",
	DemandExpiration:     "demand_expiration",
	BargeDeparture:       "barge_departure",
	BargeArrival:         "barge_arrival",
	LoadingComplete:      "loading_complete",
	UnloadingComplete:    "unloading_complete",
	AssignmentRound:      "assignment_round",
	PeriodicCheck:        "periodic_check",
	ServiceClose:         "service_close",
	TerminalCongestion:   "terminal_congestion",
	TerminalDecongestion: "terminal_decongestion",
	StatisticsCollection: "statistics_collection",
	SimulationStart:      "simulation_start",
	SimulationEnd:        "simulation_end",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("event_type_%d", int(t))
}

// Types lists every known event type in declaration order.
func Types() []Type {
	out := make([]Type, 0, len(typeNames))
	for t := DemandArrival; t <= SimulationEnd; t++ {
		out = append(out, t)
	}
	return out
}

// Payload carries the resource references of an event. Fields irrelevant to
// a given Type are left at their zero value.
type Payload struct {
	DemandID   string
	BargeID    string
	ServiceID  string
	TerminalID string
	From       string
	To         string
	Quantity   float64
	DemandIDs  []string
}

// Event is a time-stamped unit of work.
type Event struct {
	ID      ID
	Time    float64
	Type    Type
	Payload Payload
}

// ResourceID returns the id of the entity the event is primarily about.
func (e Event) ResourceID() string {
	switch e.Type {
	case DemandArrival, DemandAssignment, DemandExpiration:
		return e.Payload.DemandID
	case BargeDeparture, BargeArrival, LoadingComplete, UnloadingComplete:
		return e.Payload.BargeID
	case ServiceClose:
		return e.Payload.ServiceID
	case TerminalCongestion, TerminalDecongestion:
		return e.Payload.TerminalID
	}
	return ""
}

func (e Event) String() string {
	if id := e.ResourceID(); id != "" {
		return fmt.Sprintf("#%d %s@%g %s", e.ID, e.Type, e.Time, id)
	}
	return fmt.Sprintf("#%d %s@%g", e.ID, e.Type, e.Time)
}

// Bag is the set of events sharing one time, in ascending id order.
type Bag struct {
	Time   float64
	Events []Event
}

// Has reports whether the bag contains an event of type t.
func (b *Bag) Has(t Type) bool {
	for _, ev := range b.Events {
		if ev.Type == t {
			return true
		}
	}
	return false
}
