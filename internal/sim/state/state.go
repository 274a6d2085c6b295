// internal/sim/state/state.go
package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/barge-simulator/core"
	"github.com/signalsfoundry/barge-simulator/internal/logging"
	"github.com/signalsfoundry/barge-simulator/kb"
	"github.com/signalsfoundry/barge-simulator/model"
)

// Re-export model sentinel errors so callers can depend on state.*
// instead of model.* directly if they want to.
var (
	// ErrInvalidScenario indicates malformed initial data.
	ErrInvalidScenario = model.ErrInvalidScenario
	// ErrUnknownResource indicates a reference to an unregistered entity.
	ErrUnknownResource = model.ErrUnknownResource
	// ErrDuplicateID indicates an entity was registered twice.
	ErrDuplicateID = model.ErrDuplicateID
	// ErrNilEntity indicates a nil entity was passed to a registration call.
	ErrNilEntity = errors.New("nil entity")
)

// ScenarioState owns the entities of one simulation: the network, services,
// barges and the demand registry. The simulator is the only writer; the
// read-side accessors are safe for concurrent observers.
type ScenarioState struct {
	// mu guards services and barges. Take it before touching the network or
	// demand registry to keep the lock ordering ScenarioState -> KB.
	mu sync.RWMutex

	network *core.Network
	demands *kb.DemandManager

	services     map[string]*model.Service
	serviceOrder []string
	barges       map[string]*model.Barge
	bargeOrder   []string

	// log is an optional structured logger for state-level events.
	log logging.Logger

	// metrics is an optional recorder for Prometheus-friendly gauges.
	metrics ScenarioMetricsRecorder
}

// ScenarioSnapshot captures a consistent, deep-copied view of the scenario.
type ScenarioSnapshot struct {
	Terminals   []model.Terminal
	Connections []model.Connection
	Services    []*model.Service
	Barges      []*model.Barge
	Demands     []*model.Demand
}

// ScenarioMetricsRecorder receives count updates for core scenario entities.
type ScenarioMetricsRecorder interface {
	SetScenarioCounts(terminals, connections, services, barges int)
}

// ScenarioStateOption customises ScenarioState construction.
type ScenarioStateOption func(*ScenarioState)

// WithMetricsRecorder attaches an optional metrics recorder for entity counts.
func WithMetricsRecorder(m ScenarioMetricsRecorder) ScenarioStateOption {
	return func(s *ScenarioState) {
		s.metrics = m
	}
}

// NewScenarioState wires a network and a demand registry into an empty
// scenario. Nil arguments are replaced by empty stores.
func NewScenarioState(net *core.Network, demands *kb.DemandManager, log logging.Logger, opts ...ScenarioStateOption) *ScenarioState {
	if net == nil {
		net = core.NewNetwork()
	}
	if demands == nil {
		demands = kb.NewDemandManager()
	}
	if log == nil {
		log = logging.Noop()
	}
	s := &ScenarioState{
		network:  net,
		demands:  demands,
		services: make(map[string]*model.Service),
		barges:   make(map[string]*model.Barge),
		log:      log,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.updateMetricsLocked()
	return s
}

// Network exposes the terminal/connection graph.
func (s *ScenarioState) Network() *core.Network { return s.network }

// Demands exposes the demand registry.
func (s *ScenarioState) Demands() *kb.DemandManager { return s.demands }

// AddTerminal registers a terminal in the network.
func (s *ScenarioState) AddTerminal(t *model.Terminal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.network.AddTerminal(t); err != nil {
		return err
	}
	s.updateMetricsLocked()
	return nil
}

// AddConnection registers a directed connection in the network.
func (s *ScenarioState) AddConnection(c model.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.network.AddConnection(c); err != nil {
		return err
	}
	s.updateMetricsLocked()
	return nil
}

// AddService registers a service whose schedule has been computed. Every
// terminal on its route must already exist.
func (s *ScenarioState) AddService(svc *model.Service) error {
	if svc == nil {
		return fmt.Errorf("%w: %w: service", ErrInvalidScenario, ErrNilEntity)
	}
	if len(svc.Route) == 0 {
		if err := svc.ComputeSchedule(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.services[svc.ID]; exists {
		return fmt.Errorf("%w: %w: service %q", ErrInvalidScenario, ErrDuplicateID, svc.ID)
	}
	for _, id := range svc.Route {
		if !s.network.HasTerminal(id) {
			return fmt.Errorf("%w: %w: service %q references terminal %q", ErrInvalidScenario, ErrUnknownResource, svc.ID, id)
		}
	}
	if svc.EndTime != nil && *svc.EndTime < svc.StartTime {
		return fmt.Errorf("%w: service %q ends before it starts", ErrInvalidScenario, svc.ID)
	}
	s.services[svc.ID] = svc
	s.serviceOrder = append(s.serviceOrder, svc.ID)
	s.updateMetricsLocked()
	return nil
}

// AddBarge registers a barge. A bound barge must start on its service route.
func (s *ScenarioState) AddBarge(b *model.Barge) error {
	if b == nil {
		return fmt.Errorf("%w: %w: barge", ErrInvalidScenario, ErrNilEntity)
	}
	if err := b.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.barges[b.ID]; exists {
		return fmt.Errorf("%w: %w: barge %q", ErrInvalidScenario, ErrDuplicateID, b.ID)
	}
	if !s.network.HasTerminal(b.Position) {
		return fmt.Errorf("%w: %w: barge %q position %q", ErrInvalidScenario, ErrUnknownResource, b.ID, b.Position)
	}
	if b.ServiceID != "" {
		svc, ok := s.services[b.ServiceID]
		if !ok {
			return fmt.Errorf("%w: %w: barge %q service %q", ErrInvalidScenario, ErrUnknownResource, b.ID, b.ServiceID)
		}
		if svc.Index(b.Position) < 0 {
			return fmt.Errorf("%w: barge %q at %q is not on the route of service %q", ErrInvalidScenario, b.ID, b.Position, svc.ID)
		}
	}
	b.Status = model.BargeIdle
	s.barges[b.ID] = b
	s.bargeOrder = append(s.bargeOrder, b.ID)
	s.updateMetricsLocked()
	return nil
}

// ValidateDemand checks a demand's static fields and that its terminals exist.
func (s *ScenarioState) ValidateDemand(d *model.Demand) error {
	if d == nil {
		return fmt.Errorf("%w: %w: demand", ErrInvalidScenario, ErrNilEntity)
	}
	if err := d.Validate(); err != nil {
		return err
	}
	for _, id := range []string{d.Origin, d.Destination} {
		if !s.network.HasTerminal(id) {
			return fmt.Errorf("%w: %w: demand %q references terminal %q", ErrInvalidScenario, ErrUnknownResource, d.ID, id)
		}
	}
	if s.demands.Has(d.ID) {
		return fmt.Errorf("%w: %w: demand %q", ErrInvalidScenario, ErrDuplicateID, d.ID)
	}
	return nil
}

// Service returns a service by ID, or nil if not found.
func (s *ScenarioState) Service(id string) *model.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.services[id]
}

// Services returns every service in registration order.
func (s *ScenarioState) Services() []*model.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Service, 0, len(s.serviceOrder))
	for _, id := range s.serviceOrder {
		out = append(out, s.services[id])
	}
	return out
}

// Barge returns a barge by ID, or nil if not found.
func (s *ScenarioState) Barge(id string) *model.Barge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.barges[id]
}

// Barges returns every barge in registration order.
func (s *ScenarioState) Barges() []*model.Barge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Barge, 0, len(s.bargeOrder))
	for _, id := range s.bargeOrder {
		out = append(out, s.barges[id])
	}
	return out
}

// Snapshot returns a coherent deep copy of the current scenario state.
//
// It acquires the ScenarioState read lock so services, barges and demands
// are observed atomically from the perspective of ScenarioState callers.
func (s *ScenarioState) Snapshot() *ScenarioSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terminals := s.network.Terminals()
	snap := &ScenarioSnapshot{
		Terminals:   make([]model.Terminal, 0, len(terminals)),
		Connections: s.network.Connections(),
		Services:    make([]*model.Service, 0, len(s.serviceOrder)),
		Barges:      make([]*model.Barge, 0, len(s.bargeOrder)),
		Demands:     s.demands.Snapshot(),
	}
	for _, t := range terminals {
		cp := *t
		snap.Terminals = append(snap.Terminals, cp)
	}
	for _, id := range s.serviceOrder {
		snap.Services = append(snap.Services, s.services[id].Clone())
	}
	for _, id := range s.bargeOrder {
		snap.Barges = append(snap.Barges, s.barges[id].Clone())
	}
	return snap
}

// updateMetricsLocked pushes current entity counts into the metrics recorder.
// Caller must hold s.mu when invoking this helper.
func (s *ScenarioState) updateMetricsLocked() {
	if s == nil || s.metrics == nil {
		return
	}
	s.metrics.SetScenarioCounts(
		len(s.network.Terminals()),
		len(s.network.Connections()),
		len(s.services),
		len(s.barges),
	)
}
