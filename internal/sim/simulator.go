// Package sim drives a barge network through simulated time: it owns the
// event queue, dispatches every bag of simultaneous events to its handler and
// invokes the assignment engine.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/signalsfoundry/barge-simulator/core"
	"github.com/signalsfoundry/barge-simulator/internal/logging"
	"github.com/signalsfoundry/barge-simulator/internal/sim/assign"
	"github.com/signalsfoundry/barge-simulator/internal/sim/events"
	"github.com/signalsfoundry/barge-simulator/internal/sim/state"
	"github.com/signalsfoundry/barge-simulator/kb"
	"github.com/signalsfoundry/barge-simulator/model"
	"github.com/signalsfoundry/barge-simulator/timectrl"
)

// Phase is the lifecycle of a Simulator.
type Phase int

const (
	PhaseInitialized Phase = iota
	PhaseRunning
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseInitialized:
		return "initialized"
	case PhaseRunning:
		return "running"
	case PhaseEnded:
		return "ended"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// ErrNotInitialized is returned when registering entities or running after
// the simulator has started.
var ErrNotInitialized = errors.New("simulator already started")

// errStale marks an event superseded by a later decision, such as a
// departure cancelled by a new assignment in the same bag.
var errStale = errors.New("superseded")

// Metrics receives event-loop measurements. SetClock is driven by the queue
// clock and SetDemandCounts by demand registry changes.
type Metrics interface {
	SetClock(now float64)
	ObserveBag(size int)
	IncEvent(eventType string)
	SetDemandCounts(counts map[string]int)
	AddDistance(d float64)
}

type noopMetrics struct{}

func (noopMetrics) SetClock(float64)               {}
func (noopMetrics) ObserveBag(int)                 {}
func (noopMetrics) IncEvent(string)                {}
func (noopMetrics) SetDemandCounts(map[string]int) {}
func (noopMetrics) AddDistance(float64)            {}

// Simulator is the single authoritative state machine of a run. It is not
// safe for concurrent use; Run dispatches every event on the calling
// goroutine.
type Simulator struct {
	state     *state.ScenarioState
	cfg       Config
	queue     *events.Queue
	clock     timectrl.SimClock
	telemetry *state.TelemetryState
	engine    *assign.Engine

	log           logging.Logger
	metrics       Metrics
	assignMetrics assign.Metrics
	tracer        trace.Tracer
	observers     []func(now float64, st *state.ScenarioState)

	phase Phase
	until float64

	// incoming holds demands registered with AddDemand whose DemandArrival
	// has not fired yet.
	incoming      map[string]*model.Demand
	incomingOrder []string

	expirations map[string]events.ID
	departures  map[string]events.ID
	roundQueued bool
	roundAt     float64

	graph     *core.SpaceTimeGraph
	processed []ProcessedEvent
}

// Option customises Simulator construction.
type Option func(*Simulator)

// WithLogger sets the simulator logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics attaches an event-loop metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Simulator) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithAssignmentMetrics attaches an assignment metrics sink.
func WithAssignmentMetrics(m assign.Metrics) Option {
	return func(s *Simulator) { s.assignMetrics = m }
}

// WithTracer sets the tracer for run and round spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Simulator) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithBagObserver registers fn to run after every dispatched bag. Observers
// run in registration order.
func WithBagObserver(fn func(now float64, st *state.ScenarioState)) Option {
	return func(s *Simulator) {
		if fn != nil {
			s.observers = append(s.observers, fn)
		}
	}
}

// New builds a simulator over st. A nil st starts from an empty scenario.
func New(st *state.ScenarioState, cfg Config, opts ...Option) *Simulator {
	if st == nil {
		st = state.NewScenarioState(nil, nil, nil)
	}
	s := &Simulator{
		state:       st,
		cfg:         cfg.ApplyDefaults(),
		queue:       events.NewQueue(0),
		telemetry:   state.NewTelemetryState(),
		log:         logging.Noop(),
		metrics:     noopMetrics{},
		tracer:      noop.NewTracerProvider().Tracer(""),
		incoming:    make(map[string]*model.Demand),
		expirations: make(map[string]events.ID),
		departures:  make(map[string]events.ID),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	clock := s.queue.Clock()
	clock.AddListener(func(now float64) { s.metrics.SetClock(now) })
	s.clock = clock
	return s
}

// State exposes the scenario being simulated.
func (s *Simulator) State() *state.ScenarioState { return s.state }

// Phase reports the lifecycle phase.
func (s *Simulator) Phase() Phase { return s.phase }

// Now returns the current simulated time.
func (s *Simulator) Now() float64 { return s.clock.Now() }

// AddTerminal registers a terminal.
func (s *Simulator) AddTerminal(t *model.Terminal) error {
	if s.phase != PhaseInitialized {
		return ErrNotInitialized
	}
	return s.state.AddTerminal(t)
}

// AddConnection registers a directed connection.
func (s *Simulator) AddConnection(c model.Connection) error {
	if s.phase != PhaseInitialized {
		return ErrNotInitialized
	}
	return s.state.AddConnection(c)
}

// AddService registers a service.
func (s *Simulator) AddService(svc *model.Service) error {
	if s.phase != PhaseInitialized {
		return ErrNotInitialized
	}
	return s.state.AddService(svc)
}

// AddBarge registers a barge.
func (s *Simulator) AddBarge(b *model.Barge) error {
	if s.phase != PhaseInitialized {
		return ErrNotInitialized
	}
	return s.state.AddBarge(b)
}

// AddDemand validates d and schedules its DemandArrival at its availability
// time. The demand enters the registry when that event fires.
func (s *Simulator) AddDemand(d *model.Demand) error {
	if s.phase != PhaseInitialized {
		return ErrNotInitialized
	}
	if err := s.state.ValidateDemand(d); err != nil {
		return err
	}
	if _, dup := s.incoming[d.ID]; dup {
		return fmt.Errorf("%w: %w: demand %q", model.ErrInvalidScenario, model.ErrDuplicateID, d.ID)
	}
	d.Status = model.DemandPending
	d.AssignedBarge, d.AssignedService = "", ""
	d.AssignmentTime, d.StartTime, d.CompletionTime, d.FailureTime = nil, nil, nil, nil
	d.FailureReason = ""

	at := math.Max(d.AvailabilityTime, s.queue.Now())
	if _, err := s.queue.Schedule(at, events.DemandArrival, events.Payload{
		DemandID: d.ID,
		From:     d.Origin,
		To:       d.Destination,
		Quantity: d.Volume,
	}); err != nil {
		return err
	}
	s.incoming[d.ID] = d
	s.incomingOrder = append(s.incomingOrder, d.ID)
	return nil
}

// Run processes bags in time order until the bag holding SimulationEnd at
// until is reached, the queue empties or ctx is cancelled. It may be called
// once.
func (s *Simulator) Run(ctx context.Context, until float64) (*Result, error) {
	if s.phase != PhaseInitialized {
		return nil, ErrNotInitialized
	}
	if math.IsNaN(until) || math.IsInf(until, 0) {
		return nil, fmt.Errorf("%w: until=%v", events.ErrInvalidTime, until)
	}
	now := s.clock.Now()
	if until < now {
		return nil, &events.PastSchedulingError{At: until, Now: now}
	}

	ctx, runID := logging.EnsureRunID(ctx)
	ctx, s.log = logging.WithRunLogger(ctx, s.log)
	ctx, span := s.tracer.Start(ctx, "sim.Run", trace.WithAttributes(
		attribute.String("sim.run_id", runID),
		attribute.Float64("sim.until", until),
	))
	defer span.End()

	s.engine = assign.NewEngine(s.state, s,
		assign.WithWeights(s.cfg.Assignment),
		assign.WithMetrics(s.assignMetrics),
		assign.WithTracer(s.tracer),
		assign.WithLogger(s.log),
	)
	s.until = until
	if err := s.seed(now, until); err != nil {
		return nil, err
	}
	s.metrics.SetClock(now)
	unsubscribe := s.state.Demands().Subscribe(func(kb.Event) {
		s.metrics.SetDemandCounts(statusNames(s.state.Demands().Counts()))
	})
	defer unsubscribe()
	s.phase = PhaseRunning
	s.log.Info(ctx, "simulation started",
		logging.Float64("sim_time", now),
		logging.Float64("until", until),
		logging.Int("terminals", len(s.state.Network().Terminals())),
		logging.Int("services", len(s.state.Services())),
		logging.Int("barges", len(s.state.Barges())),
		logging.Int("demands", len(s.incoming)),
	)

	var runErr error
	for {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		bag, ok := s.queue.PopNextBag()
		if !ok || bag.Time > until {
			break
		}
		s.metrics.ObserveBag(len(bag.Events))
		if bag.Has(events.SimulationEnd) {
			for _, ev := range bag.Events {
				if ev.Type == events.SimulationEnd {
					s.record(ev, nil)
				}
			}
			break
		}
		for _, ev := range bag.Events {
			s.dispatch(ctx, ev)
		}
		for _, fn := range s.observers {
			fn(bag.Time, s.state)
		}
	}
	s.phase = PhaseEnded

	res := s.result(runID)
	s.metrics.SetDemandCounts(statusNames(res.Counts))
	span.SetAttributes(
		attribute.Int("sim.events_processed", res.EventsProcessed),
		attribute.Float64("sim.end_time", res.EndTime),
	)
	s.log.Info(ctx, "simulation ended",
		logging.Float64("sim_time", res.EndTime),
		logging.Int("events_processed", res.EventsProcessed),
		logging.Int("completed", res.Counts[model.DemandCompleted]),
		logging.Int("failed", res.Counts[model.DemandFailed]),
		logging.Float64("distance", res.TotalDistance),
	)
	return res, runErr
}

// seed schedules the run's bookend and recurring events.
func (s *Simulator) seed(now, until float64) error {
	if _, err := s.queue.Schedule(now, events.SimulationStart, events.Payload{}); err != nil {
		return err
	}
	if _, err := s.queue.Schedule(until, events.SimulationEnd, events.Payload{}); err != nil {
		return err
	}
	for _, svc := range s.state.Services() {
		if svc.EndTime == nil {
			continue
		}
		at := math.Max(*svc.EndTime, now)
		if _, err := s.queue.Schedule(at, events.ServiceClose, events.Payload{ServiceID: svc.ID}); err != nil {
			return err
		}
	}
	if s.cfg.RecheckInterval > 0 {
		if _, err := s.queue.Schedule(now+s.cfg.RecheckInterval, events.PeriodicCheck, events.Payload{}); err != nil {
			return err
		}
	}
	if s.cfg.StatsInterval > 0 {
		if _, err := s.queue.Schedule(now, events.StatisticsCollection, events.Payload{}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulator) dispatch(ctx context.Context, ev events.Event) {
	var err error
	switch ev.Type {
	case events.SimulationStart:
		err = s.onSimulationStart(ctx, ev)
	case events.DemandArrival:
		err = s.onDemandArrival(ctx, ev)
	case events.DemandAssignment:
		err = s.onDemandAssignment(ctx, ev)
	case events.DemandExpiration:
		err = s.onDemandExpiration(ctx, ev)
	case events.BargeDeparture:
		err = s.onBargeDeparture(ctx, ev)
	case events.BargeArrival:
		err = s.onBargeArrival(ctx, ev)
	case events.LoadingComplete:
		err = s.onLoadingComplete(ctx, ev)
	case events.UnloadingComplete:
		err = s.onUnloadingComplete(ctx, ev)
	case events.AssignmentRound:
		err = s.onAssignmentRound(ctx, ev)
	case events.PeriodicCheck:
		err = s.onPeriodicCheck(ctx, ev)
	case events.ServiceClose:
		err = s.onServiceClose(ctx, ev)
	case events.TerminalCongestion, events.TerminalDecongestion:
		err = s.onTerminalCongestion(ctx, ev)
	case events.StatisticsCollection:
		err = s.onStatisticsCollection(ctx, ev)
	default:
		err = fmt.Errorf("no handler for event type %s", ev.Type)
	}

	switch {
	case err == nil:
	case errors.Is(err, errStale):
		s.log.Debug(ctx, "event superseded",
			logging.String("event", ev.String()),
			logging.Float64("sim_time", ev.Time),
		)
	default:
		s.log.Warn(ctx, "event dropped",
			logging.String("event_type", ev.Type.String()),
			logging.Any("event_id", uint64(ev.ID)),
			logging.String("resource_id", ev.ResourceID()),
			logging.Float64("sim_time", ev.Time),
			logging.Err(err),
		)
	}
	s.record(ev, err)
}

func (s *Simulator) record(ev events.Event, err error) {
	s.processed = append(s.processed, ProcessedEvent{
		ID:         ev.ID,
		Time:       ev.Time,
		Type:       ev.Type,
		ResourceID: ev.ResourceID(),
		Quantity:   ev.Payload.Quantity,
		From:       ev.Payload.From,
		To:         ev.Payload.To,
		Dropped:    err != nil,
	})
	s.metrics.IncEvent(ev.Type.String())
}

func (s *Simulator) result(runID string) *Result {
	snap := s.state.Snapshot()
	res := &Result{
		RunID:           runID,
		EndTime:         s.clock.Now(),
		Events:          append([]ProcessedEvent(nil), s.processed...),
		Demands:         snap.Demands,
		Barges:          snap.Barges,
		Services:        snap.Services,
		EventsProcessed: len(s.processed),
		Counts:          s.state.Demands().Counts(),
		Stats:           s.telemetry.Samples(),
		BargeMetrics:    s.telemetry.ListBarges(),
	}
	// Demands whose arrival lies beyond the end of the run are reported as
	// they were registered.
	for _, id := range s.incomingOrder {
		if d, ok := s.incoming[id]; ok {
			res.Demands = append(res.Demands, d.Clone())
			res.Counts[model.DemandPending]++
		}
	}
	for _, b := range snap.Barges {
		res.TotalDistance += b.DistanceTraveled
	}
	for _, d := range snap.Demands {
		if d.OnTime() {
			res.OnTime++
		}
	}
	return res
}

func statusNames(counts map[model.DemandStatus]int) map[string]int {
	out := make(map[string]int, len(counts))
	for st, n := range counts {
		out[st.String()] = n
	}
	return out
}
