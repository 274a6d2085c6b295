package model

import "math"

// Position is a 2D location used only for visualization consumers.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Terminal is a node of the waterway network.
//
// Capacity is the TEU that may be staged at the terminal awaiting loading.
// Zero means unlimited. Occupancy is mutated by the simulator while a run is
// in progress.
type Terminal struct {
	ID       string
	Capacity float64
	Position *Position

	Occupancy float64
}

// HasCapacityLimit reports whether the terminal enforces a staging limit.
func (t *Terminal) HasCapacityLimit() bool {
	return t != nil && t.Capacity > 0
}

// Congested reports whether staged volume exceeds the terminal capacity.
func (t *Terminal) Congested() bool {
	return t.HasCapacityLimit() && t.Occupancy > t.Capacity
}

// Stage adds volume waiting at the terminal and reports whether the terminal
// became congested as a result.
func (t *Terminal) Stage(volume float64) (becameCongested bool) {
	was := t.Congested()
	t.Occupancy += volume
	return !was && t.Congested()
}

// Unstage removes volume from the terminal and reports whether congestion
// cleared as a result.
func (t *Terminal) Unstage(volume float64) (cleared bool) {
	was := t.Congested()
	t.Occupancy = math.Max(0, t.Occupancy-volume)
	return was && !t.Congested()
}

// Connection is a directed, travel-time weighted edge between two terminals.
// Distance and Capacity are optional; a nil Distance means the travel time is
// used as the distance.
type Connection struct {
	From       string
	To         string
	TravelTime float64
	Distance   *float64
	Capacity   *float64
}

// EffectiveDistance returns Distance when set and TravelTime otherwise.
func (c Connection) EffectiveDistance() float64 {
	if c.Distance != nil {
		return *c.Distance
	}
	return c.TravelTime
}
