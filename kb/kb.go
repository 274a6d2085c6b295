// Package kb holds the demand registry: every transport demand known to a
// run, its lifecycle transitions and the filters the simulator needs.
package kb

import (
	"fmt"
	"sync"

	"github.com/signalsfoundry/barge-simulator/model"
)

// EventType indicates what kind of change happened in the registry.
type EventType int

const (
	EventDemandAdded EventType = iota
	EventDemandStatusChanged
)

// Event is emitted to subscribers when a demand is added or changes status.
type Event struct {
	Type   EventType
	Demand model.Demand
	From   model.DemandStatus
	At     float64
}

// DemandManager is an in-memory, thread-safe registry of demands.
type DemandManager struct {
	mu sync.RWMutex

	demands map[string]*model.Demand
	order   []string

	subs   map[int]func(Event)
	nextID int
}

// NewDemandManager constructs an empty registry.
func NewDemandManager() *DemandManager {
	return &DemandManager{
		demands: make(map[string]*model.Demand),
		subs:    make(map[int]func(Event)),
	}
}

// Add registers a new demand in the Pending state.
func (m *DemandManager) Add(d *model.Demand, at float64) error {
	if d == nil {
		return fmt.Errorf("%w: nil demand", model.ErrInvalidScenario)
	}
	if err := d.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if _, exists := m.demands[d.ID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: demand %q", model.ErrDuplicateID, d.ID)
	}
	// store pointer so handlers can update status in place
	m.demands[d.ID] = d
	m.order = append(m.order, d.ID)
	ev := Event{Type: EventDemandAdded, Demand: *d, From: d.Status, At: at}
	subs := m.subscribersLocked()
	m.mu.Unlock()

	notify(subs, ev)
	return nil
}

// Get returns the demand with the given ID, or nil if not found.
func (m *DemandManager) Get(id string) *model.Demand {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.demands[id]
}

// Has reports whether id is registered.
func (m *DemandManager) Has(id string) bool {
	return m.Get(id) != nil
}

// Len returns the number of registered demands.
func (m *DemandManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// List returns every demand in registration order.
func (m *DemandManager) List() []*model.Demand {
	return m.filter(func(*model.Demand) bool { return true })
}

// Pending returns Pending demands already available at now, in registration
// order.
func (m *DemandManager) Pending(now float64) []*model.Demand {
	return m.filter(func(d *model.Demand) bool {
		return d.Status == model.DemandPending && d.AvailabilityTime <= now
	})
}

// AssignedToBarge returns Assigned and InProgress demands held by bargeID.
func (m *DemandManager) AssignedToBarge(bargeID string) []*model.Demand {
	return m.filter(func(d *model.Demand) bool {
		return d.AssignedBarge == bargeID &&
			(d.Status == model.DemandAssigned || d.Status == model.DemandInProgress)
	})
}

// ForLoading returns demands assigned to bargeID that wait at terminal.
func (m *DemandManager) ForLoading(terminal, bargeID string) []*model.Demand {
	return m.filter(func(d *model.Demand) bool {
		return d.Status == model.DemandAssigned && d.Origin == terminal && d.AssignedBarge == bargeID
	})
}

// ForUnloading returns demands on board bargeID that are destined for terminal.
func (m *DemandManager) ForUnloading(terminal, bargeID string) []*model.Demand {
	return m.filter(func(d *model.Demand) bool {
		return d.Status == model.DemandInProgress && d.Destination == terminal && d.AssignedBarge == bargeID
	})
}

// Counts returns the number of demands per status. Every status is present.
func (m *DemandManager) Counts() map[model.DemandStatus]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[model.DemandStatus]int, 5)
	for _, s := range model.AllDemandStatuses() {
		out[s] = 0
	}
	for _, d := range m.demands {
		out[d.Status]++
	}
	return out
}

// Assign moves a demand from Pending to Assigned.
func (m *DemandManager) Assign(id, bargeID, serviceID string, at float64) error {
	return m.transition(id, at, func(d *model.Demand) error { return d.Assign(bargeID, serviceID, at) })
}

// Start moves a demand from Assigned to InProgress.
func (m *DemandManager) Start(id string, at float64) error {
	return m.transition(id, at, func(d *model.Demand) error { return d.Start(at) })
}

// Complete moves a demand from InProgress to Completed.
func (m *DemandManager) Complete(id string, at float64) error {
	return m.transition(id, at, func(d *model.Demand) error { return d.Complete(at) })
}

// Fail moves a non-terminal demand to Failed.
func (m *DemandManager) Fail(id string, at float64, reason string) error {
	return m.transition(id, at, func(d *model.Demand) error { return d.Fail(at, reason) })
}

// Snapshot returns deep copies of every demand in registration order.
func (m *DemandManager) Snapshot() []*model.Demand {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*model.Demand, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.demands[id].Clone())
	}
	return out
}

// Subscribe registers a callback for registry events. It returns an
// unsubscribe function.
func (m *DemandManager) Subscribe(fn func(Event)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

func (m *DemandManager) transition(id string, at float64, apply func(*model.Demand) error) error {
	m.mu.Lock()
	d, ok := m.demands[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: demand %q", model.ErrUnknownResource, id)
	}
	from := d.Status
	if err := apply(d); err != nil {
		m.mu.Unlock()
		return err
	}
	ev := Event{Type: EventDemandStatusChanged, Demand: *d, From: from, At: at}
	subs := m.subscribersLocked()
	m.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	notify(subs, ev)
	return nil
}

func (m *DemandManager) filter(keep func(*model.Demand) bool) []*model.Demand {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.Demand
	for _, id := range m.order {
		if d := m.demands[id]; keep(d) {
			out = append(out, d)
		}
	}
	return out
}

// subscribersLocked returns callbacks in subscription order.
func (m *DemandManager) subscribersLocked() []func(Event) {
	out := make([]func(Event), 0, len(m.subs))
	for id := 0; id < m.nextID; id++ {
		if fn, ok := m.subs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}
