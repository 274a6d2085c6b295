package model

import (
	"fmt"
	"math"
)

// ServiceStatus tells whether a service still accepts demands.
type ServiceStatus int

const (
	ServiceOpen ServiceStatus = iota
	ServiceClosed
)

func (s ServiceStatus) String() string {
	if s == ServiceClosed {
		return "closed"
	}
	return "open"
}

// Leg is one scheduled hop of a service between two adjacent terminals.
type Leg struct {
	From     string
	To       string
	Duration float64
}

// Stop is the scheduled presence of a service at a terminal.
type Stop struct {
	Arrival   float64
	Departure float64
}

// Service is a scheduled route with an aggregate capacity. A service is a
// template: barges bound to it follow its schedule, while CurrentLoad counts
// the volume committed to it by assignment.
type Service struct {
	ID          string
	Origin      string
	Destination string
	Legs        []Leg
	StartTime   float64
	EndTime     *float64
	Capacity    float64

	Status      ServiceStatus
	CurrentLoad float64

	Route    []string
	Schedule map[string]Stop

	index map[string]int
}

// NewService builds a service and computes its route and schedule.
func NewService(id, origin, destination string, legs []Leg, start, capacity float64) (*Service, error) {
	s := &Service{
		ID:          id,
		Origin:      origin,
		Destination: destination,
		Legs:        append([]Leg(nil), legs...),
		StartTime:   start,
		Capacity:    capacity,
	}
	if err := s.ComputeSchedule(); err != nil {
		return nil, err
	}
	return s, nil
}

// ComputeSchedule walks the legs from StartTime, recording the departure of
// each leg origin and the arrival at each leg destination. It also validates
// that legs chain, start at Origin, end at Destination and never revisit a
// terminal.
func (s *Service) ComputeSchedule() error {
	switch {
	case s.ID == "":
		return fmt.Errorf("%w: service with empty id", ErrInvalidScenario)
	case len(s.Legs) == 0:
		return fmt.Errorf("%w: service %q has no legs", ErrInvalidScenario, s.ID)
	case s.Capacity <= 0:
		return fmt.Errorf("%w: service %q capacity must be positive", ErrInvalidScenario, s.ID)
	case s.StartTime < 0:
		return fmt.Errorf("%w: service %q start time is negative", ErrInvalidScenario, s.ID)
	}
	if s.Origin == "" {
		s.Origin = s.Legs[0].From
	}
	if s.Destination == "" {
		s.Destination = s.Legs[len(s.Legs)-1].To
	}
	if s.Legs[0].From != s.Origin {
		return fmt.Errorf("%w: service %q first leg starts at %q, not origin %q", ErrInvalidScenario, s.ID, s.Legs[0].From, s.Origin)
	}

	clock := s.StartTime
	route := []string{s.Origin}
	schedule := map[string]Stop{s.Origin: {Arrival: clock, Departure: clock}}
	index := map[string]int{s.Origin: 0}

	for i, leg := range s.Legs {
		if leg.Duration <= 0 {
			return fmt.Errorf("%w: service %q leg %d has non-positive duration", ErrInvalidScenario, s.ID, i)
		}
		if leg.From != route[len(route)-1] {
			return fmt.Errorf("%w: service %q leg %d starts at %q, expected %q", ErrInvalidScenario, s.ID, i, leg.From, route[len(route)-1])
		}
		if _, seen := index[leg.To]; seen {
			return fmt.Errorf("%w: service %q revisits terminal %q", ErrInvalidScenario, s.ID, leg.To)
		}
		from := schedule[leg.From]
		from.Departure = clock
		schedule[leg.From] = from

		clock += leg.Duration
		schedule[leg.To] = Stop{Arrival: clock, Departure: clock}
		index[leg.To] = len(route)
		route = append(route, leg.To)
	}
	if route[len(route)-1] != s.Destination {
		return fmt.Errorf("%w: service %q ends at %q, not destination %q", ErrInvalidScenario, s.ID, route[len(route)-1], s.Destination)
	}

	s.Route = route
	s.Schedule = schedule
	s.index = index
	return nil
}

// Index returns the position of terminal in the route, or -1.
func (s *Service) Index(terminal string) int {
	if i, ok := s.index[terminal]; ok {
		return i
	}
	return -1
}

// Next returns the terminal following terminal on the route.
func (s *Service) Next(terminal string) (string, bool) {
	i := s.Index(terminal)
	if i < 0 || i >= len(s.Route)-1 {
		return "", false
	}
	return s.Route[i+1], true
}

// LegDuration returns the scheduled duration between two adjacent terminals.
func (s *Service) LegDuration(from, to string) (float64, bool) {
	for _, leg := range s.Legs {
		if leg.From == from && leg.To == to {
			return leg.Duration, true
		}
	}
	return 0, false
}

// Stops counts the legs travelled between origin and destination, or -1 when
// the pair is not served in that order.
func (s *Service) Stops(origin, destination string) int {
	o, d := s.Index(origin), s.Index(destination)
	if o < 0 || d < 0 || o >= d {
		return -1
	}
	return d - o
}

// Remaining returns the capacity not yet committed.
func (s *Service) Remaining() float64 {
	return s.Capacity - s.CurrentLoad
}

// Utilization returns the committed share of capacity in [0,1].
func (s *Service) Utilization() float64 {
	if s.Capacity <= 0 {
		return 0
	}
	return math.Min(1, s.CurrentLoad/s.Capacity)
}

// CheckServe explains why the service cannot carry demand, or returns nil.
func (s *Service) CheckServe(d *Demand) error {
	if s.Status != ServiceOpen {
		return fmt.Errorf("%w: %s", ErrServiceClosed, s.ID)
	}
	if s.CurrentLoad+d.Volume > s.Capacity {
		return fmt.Errorf("%w: service %s load %g + %g > %g", ErrCapacityExceeded, s.ID, s.CurrentLoad, d.Volume, s.Capacity)
	}
	if s.Stops(d.Origin, d.Destination) < 0 {
		return fmt.Errorf("%w: service %s does not call %s before %s", ErrNoRoute, s.ID, d.Origin, d.Destination)
	}
	board := s.Schedule[d.Origin]
	alight := s.Schedule[d.Destination]
	if board.Departure < d.AvailabilityTime || alight.Arrival > d.DueDate {
		return fmt.Errorf("%w: service %s departs %s at %g and reaches %s at %g, window [%g, %g]",
			ErrTimeWindowViolation, s.ID, d.Origin, board.Departure, d.Destination, alight.Arrival, d.AvailabilityTime, d.DueDate)
	}
	return nil
}

// CanServe reports whether the service is open, has room, calls the demand's
// origin before its destination and does so within the demand's window.
func (s *Service) CanServe(d *Demand) bool {
	return s.CheckServe(d) == nil
}

// Assign commits the demand's volume to the service.
func (s *Service) Assign(d *Demand) error {
	if err := s.CheckServe(d); err != nil {
		return err
	}
	s.CurrentLoad += d.Volume
	return nil
}

// Release returns volume previously committed by Assign.
func (s *Service) Release(volume float64) {
	s.CurrentLoad = math.Max(0, s.CurrentLoad-volume)
}

// Close stops the service from accepting new demands.
func (s *Service) Close() { s.Status = ServiceClosed }

// Clone returns a copy safe to hand to result consumers.
func (s *Service) Clone() *Service {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Legs = append([]Leg(nil), s.Legs...)
	cp.Route = append([]string(nil), s.Route...)
	cp.Schedule = make(map[string]Stop, len(s.Schedule))
	for k, v := range s.Schedule {
		cp.Schedule[k] = v
	}
	cp.EndTime = cloneFloat(s.EndTime)
	return &cp
}
