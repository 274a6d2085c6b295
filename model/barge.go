package model

import (
	"fmt"
	"math"
	"slices"
)

// BargeStatus is the operational state of a barge.
type BargeStatus int

const (
	BargeIdle BargeStatus = iota
	BargeLoading
	BargeMoving
	BargeUnloading
)

var bargeStatusNames = map[BargeStatus]string{
	BargeIdle:      "idle",
	BargeLoading:   "loading",
	BargeMoving:    "moving",
	BargeUnloading: "unloading",
}

func (s BargeStatus) String() string {
	if name, ok := bargeStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("BargeStatus(%d)", int(s))
}

// Barge is a capacitated vessel. It is either bound to a service, whose route
// and schedule it follows, or unbound and idle until the assignment engine
// binds it.
//
// CurrentLoad counts cargo on board. Reserved counts volume of assigned demands
// that are not yet loaded, so CurrentLoad+Reserved is the committed load the
// engine checks against Capacity.
type Barge struct {
	ID            string
	Capacity      float64
	LoadingRate   float64
	UnloadingRate float64
	ServiceID     string

	CurrentLoad float64
	Reserved    float64
	Position    string
	Status      BargeStatus

	// Destination is the terminal being sailed to while Moving.
	Destination string
	// Path holds the remaining repositioning hops of an unbound barge heading
	// to its service's boarding terminal.
	Path []string
	// Adhoc marks a binding made by the assignment engine rather than by the
	// scenario. Only ad-hoc bindings are released when the barge reaches the
	// end of the route with no assigned demands; scenario bindings persist.
	Adhoc bool

	AssignedDemands  []string
	DistanceTraveled float64
}

// Validate checks static fields of the barge.
func (b *Barge) Validate() error {
	switch {
	case b.ID == "":
		return fmt.Errorf("%w: barge with empty id", ErrInvalidScenario)
	case !(b.Capacity > 0) || math.IsInf(b.Capacity, 0):
		return fmt.Errorf("%w: barge %q capacity %g must be positive and finite", ErrInvalidScenario, b.ID, b.Capacity)
	case !(b.CurrentLoad >= 0 && b.CurrentLoad <= b.Capacity):
		return fmt.Errorf("%w: barge %q initial load %g outside [0, %g]", ErrInvalidScenario, b.ID, b.CurrentLoad, b.Capacity)
	case b.Position == "":
		return fmt.Errorf("%w: barge %q has no position", ErrInvalidScenario, b.ID)
	case !(b.LoadingRate >= 0) || !(b.UnloadingRate >= 0) || math.IsInf(b.LoadingRate, 0) || math.IsInf(b.UnloadingRate, 0):
		return fmt.Errorf("%w: barge %q handling rates must be finite and non-negative", ErrInvalidScenario, b.ID)
	}
	return nil
}

// Bound reports whether the barge follows a service.
func (b *Barge) Bound() bool { return b.ServiceID != "" }

// Committed returns cargo on board plus reserved volume.
func (b *Barge) Committed() float64 { return b.CurrentLoad + b.Reserved }

// Available returns capacity not yet committed.
func (b *Barge) Available() float64 { return b.Capacity - b.Committed() }

// CanAccept reports whether volume fits in the uncommitted capacity.
func (b *Barge) CanAccept(volume float64) bool {
	return volume > 0 && b.Committed()+volume <= b.Capacity
}

// Reserve commits capacity for an assigned demand that is not yet loaded.
func (b *Barge) Reserve(demandID string, volume float64) error {
	if !b.CanAccept(volume) {
		return fmt.Errorf("%w: barge %s committed %g + %g > %g", ErrCapacityExceeded, b.ID, b.Committed(), volume, b.Capacity)
	}
	b.Reserved += volume
	if !slices.Contains(b.AssignedDemands, demandID) {
		b.AssignedDemands = append(b.AssignedDemands, demandID)
	}
	return nil
}

// Unreserve drops a reservation that will never be loaded.
func (b *Barge) Unreserve(demandID string, volume float64) {
	b.Reserved = math.Max(0, b.Reserved-volume)
	b.dropDemand(demandID)
}

// Load moves reserved volume on board.
func (b *Barge) Load(volume float64) error {
	if b.CurrentLoad+volume > b.Capacity {
		return fmt.Errorf("%w: barge %s load %g + %g > %g", ErrCapacityExceeded, b.ID, b.CurrentLoad, volume, b.Capacity)
	}
	b.CurrentLoad += volume
	b.Reserved = math.Max(0, b.Reserved-volume)
	return nil
}

// Unload removes cargo delivered for demandID.
func (b *Barge) Unload(demandID string, volume float64) error {
	if volume > b.CurrentLoad {
		return fmt.Errorf("%w: barge %s cannot unload %g, carrying %g", ErrCapacityExceeded, b.ID, volume, b.CurrentLoad)
	}
	b.CurrentLoad -= volume
	b.dropDemand(demandID)
	return nil
}

// BeginLoading moves an idle barge into Loading.
func (b *Barge) BeginLoading() error { return b.transition(BargeIdle, BargeLoading) }

// BeginUnloading moves an idle barge into Unloading.
func (b *Barge) BeginUnloading() error { return b.transition(BargeIdle, BargeUnloading) }

// FinishHandling returns a loading or unloading barge to Idle.
func (b *Barge) FinishHandling() error {
	if b.Status != BargeLoading && b.Status != BargeUnloading {
		return fmt.Errorf("%w: barge %q %s -> %s", ErrIllegalTransition, b.ID, b.Status, BargeIdle)
	}
	b.Status = BargeIdle
	return nil
}

// Depart sets an idle barge Moving towards to.
func (b *Barge) Depart(to string) error {
	if err := b.transition(BargeIdle, BargeMoving); err != nil {
		return err
	}
	b.Destination = to
	return nil
}

// Arrive completes a move at terminal, adding distance to the odometer.
func (b *Barge) Arrive(terminal string, distance float64) error {
	if err := b.transition(BargeMoving, BargeIdle); err != nil {
		return err
	}
	b.Position = terminal
	b.Destination = ""
	b.DistanceTraveled += distance
	return nil
}

// LoadingDuration is volume/LoadingRate, or zero when the rate is unset.
func (b *Barge) LoadingDuration(volume float64) float64 {
	return handlingDuration(volume, b.LoadingRate)
}

// UnloadingDuration is volume/UnloadingRate, or zero when the rate is unset.
func (b *Barge) UnloadingDuration(volume float64) float64 {
	return handlingDuration(volume, b.UnloadingRate)
}

// Bind attaches the barge to a service.
func (b *Barge) Bind(serviceID string, adhoc bool) {
	b.ServiceID = serviceID
	b.Adhoc = adhoc
}

// Unbind releases the service binding.
func (b *Barge) Unbind() {
	b.ServiceID = ""
	b.Adhoc = false
	b.Path = nil
}

// Clone returns a deep copy suitable for snapshots.
func (b *Barge) Clone() *Barge {
	if b == nil {
		return nil
	}
	cp := *b
	cp.Path = append([]string(nil), b.Path...)
	cp.AssignedDemands = append([]string(nil), b.AssignedDemands...)
	return &cp
}

func (b *Barge) String() string {
	return fmt.Sprintf("Barge %s at %s: %s, load=%g/%g", b.ID, b.Position, b.Status, b.CurrentLoad, b.Capacity)
}

func (b *Barge) transition(from, to BargeStatus) error {
	if b.Status != from {
		return fmt.Errorf("%w: barge %q %s -> %s", ErrIllegalTransition, b.ID, b.Status, to)
	}
	b.Status = to
	return nil
}

func (b *Barge) dropDemand(id string) {
	b.AssignedDemands = slices.DeleteFunc(b.AssignedDemands, func(d string) bool { return d == id })
}

func handlingDuration(volume, rate float64) float64 {
	if rate <= 0 || volume <= 0 {
		return 0
	}
	return volume / rate
}
