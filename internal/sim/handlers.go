package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/signalsfoundry/barge-simulator/core"
	"github.com/signalsfoundry/barge-simulator/internal/logging"
	"github.com/signalsfoundry/barge-simulator/internal/sim/assign"
	"github.com/signalsfoundry/barge-simulator/internal/sim/events"
	"github.com/signalsfoundry/barge-simulator/internal/sim/state"
	"github.com/signalsfoundry/barge-simulator/model"
)

// Failure reasons recorded on demands.
const (
	ReasonNoFeasibleRoute = "no feasible route"
	ReasonNoCapacity      = "expired awaiting capacity"
	ReasonMissedPickup    = "barge missed pickup"
)

func (s *Simulator) onSimulationStart(ctx context.Context, ev events.Event) error {
	for _, b := range s.state.Barges() {
		s.advanceBarge(ctx, b, ev.Time)
	}
	return nil
}

func (s *Simulator) onDemandArrival(ctx context.Context, ev events.Event) error {
	d, ok := s.incoming[ev.Payload.DemandID]
	if !ok {
		return fmt.Errorf("%w: demand %q", model.ErrUnknownResource, ev.Payload.DemandID)
	}
	delete(s.incoming, d.ID)
	if err := s.state.Demands().Add(d, ev.Time); err != nil {
		return err
	}
	s.stage(ctx, ev.Time, d.Origin, d.Volume)

	id, err := s.queue.Schedule(math.Max(d.DueDate, ev.Time), events.DemandExpiration, events.Payload{
		DemandID: d.ID,
		Quantity: d.Volume,
	})
	if err != nil {
		return err
	}
	s.expirations[d.ID] = id
	return s.requestRound(ev.Time)
}

// onDemandAssignment starts work on a fresh assignment. An idle barge is
// re-planned so it loads at its current terminal or heads for the origin.
func (s *Simulator) onDemandAssignment(ctx context.Context, ev events.Event) error {
	b := s.state.Barge(ev.Payload.BargeID)
	if b == nil {
		return fmt.Errorf("%w: barge %q", model.ErrUnknownResource, ev.Payload.BargeID)
	}
	s.advanceBarge(ctx, b, ev.Time)

	d := s.state.Demands().Get(ev.Payload.DemandID)
	if d == nil {
		return fmt.Errorf("%w: demand %q", model.ErrUnknownResource, ev.Payload.DemandID)
	}
	if d.Status != model.DemandAssigned || d.AssignedBarge != b.ID {
		return fmt.Errorf("%w: demand %s is %s", errStale, d.ID, d.Status)
	}
	return nil
}

func (s *Simulator) onDemandExpiration(ctx context.Context, ev events.Event) error {
	d := s.state.Demands().Get(ev.Payload.DemandID)
	if d == nil {
		return fmt.Errorf("%w: demand %q", model.ErrUnknownResource, ev.Payload.DemandID)
	}
	delete(s.expirations, d.ID)
	switch d.Status {
	case model.DemandPending:
		return s.failDemand(ctx, d, ev.Time, s.diagnose(d))
	case model.DemandAssigned:
		return s.failDemand(ctx, d, ev.Time, ReasonMissedPickup)
	}
	// Cargo on board may still arrive late; terminal states are final.
	return nil
}

func (s *Simulator) onBargeDeparture(ctx context.Context, ev events.Event) error {
	b := s.state.Barge(ev.Payload.BargeID)
	if b == nil {
		return fmt.Errorf("%w: barge %q", model.ErrUnknownResource, ev.Payload.BargeID)
	}
	if id, ok := s.departures[b.ID]; !ok || id != ev.ID {
		return fmt.Errorf("%w: departure of %s", errStale, b.ID)
	}
	delete(s.departures, b.ID)

	from, to := ev.Payload.From, ev.Payload.To
	if b.Position != from {
		return fmt.Errorf("%w: barge %s is at %s, not %s", model.ErrIllegalTransition, b.ID, b.Position, from)
	}
	if !s.state.Network().HasTerminal(to) {
		return fmt.Errorf("%w: terminal %q", model.ErrUnknownResource, to)
	}
	travel, distance, err := s.leg(b, from, to)
	if err != nil {
		return err
	}
	if err := b.Depart(to); err != nil {
		return err
	}
	if _, err := s.queue.Schedule(ev.Time+travel, events.BargeArrival, events.Payload{
		BargeID:   b.ID,
		ServiceID: b.ServiceID,
		From:      from,
		To:        to,
		Quantity:  distance,
	}); err != nil {
		return err
	}
	s.log.Debug(ctx, "barge departed",
		logging.String("barge_id", b.ID),
		logging.String("from", from),
		logging.String("to", to),
		logging.Float64("load", b.CurrentLoad),
		logging.Float64("sim_time", ev.Time),
	)
	return nil
}

// leg resolves travel time and distance, preferring the network and falling
// back to the bound service's scheduled leg.
func (s *Simulator) leg(b *model.Barge, from, to string) (travel, distance float64, err error) {
	if c, ok := s.state.Network().Connection(from, to); ok {
		return c.TravelTime, c.EffectiveDistance(), nil
	}
	if svc := s.state.Service(b.ServiceID); svc != nil {
		if d, ok := svc.LegDuration(from, to); ok {
			return d, d, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: %s -> %s for barge %s", model.ErrNoRoute, from, to, b.ID)
}

func (s *Simulator) onBargeArrival(ctx context.Context, ev events.Event) error {
	b := s.state.Barge(ev.Payload.BargeID)
	if b == nil {
		return fmt.Errorf("%w: barge %q", model.ErrUnknownResource, ev.Payload.BargeID)
	}
	to := ev.Payload.To
	if b.Status != model.BargeMoving || b.Destination != to {
		return fmt.Errorf("%w: barge %s arriving at %s while %s", model.ErrIllegalTransition, b.ID, to, b.Status)
	}
	distance := ev.Payload.Quantity
	if err := b.Arrive(to, distance); err != nil {
		return err
	}
	if len(b.Path) > 0 && b.Path[0] == to {
		b.Path = b.Path[1:]
	}
	s.metrics.AddDistance(distance)
	s.telemetry.UpdateBarge(b.ID, func(m *state.BargeMetrics) {
		m.Trips++
		m.DistanceTraveled += distance
	})
	s.advanceBarge(ctx, b, ev.Time)
	return nil
}

func (s *Simulator) onLoadingComplete(ctx context.Context, ev events.Event) error {
	b := s.state.Barge(ev.Payload.BargeID)
	if b == nil {
		return fmt.Errorf("%w: barge %q", model.ErrUnknownResource, ev.Payload.BargeID)
	}
	if b.Status != model.BargeLoading {
		return fmt.Errorf("%w: barge %s finished loading while %s", model.ErrIllegalTransition, b.ID, b.Status)
	}
	loaded := 0.0
	for _, id := range ev.Payload.DemandIDs {
		d := s.state.Demands().Get(id)
		// The demand may have expired while the barge was loading.
		if d == nil || d.Status != model.DemandAssigned || d.AssignedBarge != b.ID {
			continue
		}
		if err := b.Load(d.Volume); err != nil {
			s.log.Warn(ctx, "load rejected", logging.String("barge_id", b.ID), logging.String("demand_id", id), logging.Err(err))
			continue
		}
		if err := s.state.Demands().Start(id, ev.Time); err != nil {
			return err
		}
		s.unstage(ctx, ev.Time, d.Origin, d.Volume)
		loaded += d.Volume
	}
	if err := b.FinishHandling(); err != nil {
		return err
	}
	s.telemetry.UpdateBarge(b.ID, func(m *state.BargeMetrics) {
		m.VolumeLoaded += loaded
		m.HandlingTime += b.LoadingDuration(ev.Payload.Quantity)
	})
	s.advanceBarge(ctx, b, ev.Time)
	return nil
}

func (s *Simulator) onUnloadingComplete(ctx context.Context, ev events.Event) error {
	b := s.state.Barge(ev.Payload.BargeID)
	if b == nil {
		return fmt.Errorf("%w: barge %q", model.ErrUnknownResource, ev.Payload.BargeID)
	}
	if b.Status != model.BargeUnloading {
		return fmt.Errorf("%w: barge %s finished unloading while %s", model.ErrIllegalTransition, b.ID, b.Status)
	}
	unloaded := 0.0
	for _, id := range ev.Payload.DemandIDs {
		d := s.state.Demands().Get(id)
		if d == nil || d.Status != model.DemandInProgress || d.AssignedBarge != b.ID {
			continue
		}
		if err := b.Unload(id, d.Volume); err != nil {
			s.log.Warn(ctx, "unload rejected", logging.String("barge_id", b.ID), logging.String("demand_id", id), logging.Err(err))
			continue
		}
		if err := s.state.Demands().Complete(id, ev.Time); err != nil {
			return err
		}
		s.cancelExpiration(id)
		if svc := s.state.Service(d.AssignedService); svc != nil {
			svc.Release(d.Volume)
		}
		unloaded += d.Volume
		s.log.Info(ctx, "demand completed",
			logging.String("demand_id", id),
			logging.String("barge_id", b.ID),
			logging.Bool("on_time", d.OnTime()),
			logging.Float64("sim_time", ev.Time),
		)
	}
	if err := b.FinishHandling(); err != nil {
		return err
	}
	s.telemetry.UpdateBarge(b.ID, func(m *state.BargeMetrics) {
		m.VolumeUnloaded += unloaded
		m.HandlingTime += b.UnloadingDuration(ev.Payload.Quantity)
	})
	s.advanceBarge(ctx, b, ev.Time)
	// Freed barge and service capacity may admit waiting demands.
	return s.requestRound(ev.Time)
}

func (s *Simulator) onAssignmentRound(ctx context.Context, ev events.Event) error {
	if s.roundQueued && s.roundAt == ev.Time {
		s.roundQueued = false
	}
	s.runRound(ctx, ev.Time)
	return nil
}

func (s *Simulator) onPeriodicCheck(ctx context.Context, ev events.Event) error {
	for _, d := range s.state.Demands().Pending(ev.Time) {
		if ev.Time > d.DueDate {
			if err := s.failDemand(ctx, d, ev.Time, s.diagnose(d)); err != nil {
				s.log.Warn(ctx, "fail overdue demand", logging.String("demand_id", d.ID), logging.Err(err))
			}
		}
	}
	s.runRound(ctx, ev.Time)

	if next := ev.Time + s.cfg.RecheckInterval; next <= s.until {
		if _, err := s.queue.Schedule(next, events.PeriodicCheck, events.Payload{}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulator) onServiceClose(ctx context.Context, ev events.Event) error {
	svc := s.state.Service(ev.Payload.ServiceID)
	if svc == nil {
		return fmt.Errorf("%w: service %q", model.ErrUnknownResource, ev.Payload.ServiceID)
	}
	svc.Close()
	s.graph = nil
	s.log.Info(ctx, "service closed",
		logging.String("service_id", svc.ID),
		logging.Float64("load", svc.CurrentLoad),
		logging.Float64("sim_time", ev.Time),
	)
	return nil
}

func (s *Simulator) onTerminalCongestion(ctx context.Context, ev events.Event) error {
	t := s.state.Network().Terminal(ev.Payload.TerminalID)
	if t == nil {
		return fmt.Errorf("%w: terminal %q", model.ErrUnknownResource, ev.Payload.TerminalID)
	}
	msg := "terminal congestion cleared"
	if ev.Type == events.TerminalCongestion {
		msg = "terminal congested"
	}
	s.log.Info(ctx, msg,
		logging.String("terminal_id", t.ID),
		logging.Float64("occupancy", ev.Payload.Quantity),
		logging.Float64("capacity", t.Capacity),
		logging.Float64("sim_time", ev.Time),
	)
	return nil
}

func (s *Simulator) onStatisticsCollection(ctx context.Context, ev events.Event) error {
	sample := s.state.Sample(ev.Time)
	if err := s.telemetry.RecordSample(sample); err != nil {
		return err
	}
	if next := ev.Time + s.cfg.StatsInterval; next <= s.until {
		if _, err := s.queue.Schedule(next, events.StatisticsCollection, events.Payload{}); err != nil {
			return err
		}
	}
	return nil
}

// Commit applies an assignment chosen by the engine: it reserves barge and
// service capacity, moves the demand to Assigned, binds an unbound barge and
// queues a DemandAssignment so the barge is re-planned in event order.
func (s *Simulator) Commit(ctx context.Context, d *model.Demand, c assign.Candidate) error {
	b := s.state.Barge(c.BargeID)
	svc := s.state.Service(c.ServiceID)
	if b == nil || svc == nil {
		return fmt.Errorf("%w: barge %q service %q", model.ErrUnknownResource, c.BargeID, c.ServiceID)
	}
	if err := b.Reserve(d.ID, d.Volume); err != nil {
		return err
	}
	if err := svc.Assign(d); err != nil {
		b.Unreserve(d.ID, d.Volume)
		return err
	}
	now := s.queue.Now()
	if err := s.state.Demands().Assign(d.ID, b.ID, svc.ID, now); err != nil {
		svc.Release(d.Volume)
		b.Unreserve(d.ID, d.Volume)
		return err
	}
	if c.Bind {
		b.Bind(svc.ID, true)
		b.Path = append([]string(nil), c.Reposition...)
	}
	// A departure already due in this bag must not leave without the cargo.
	if b.Status == model.BargeIdle {
		s.cancelDeparture(b.ID)
	}
	if _, err := s.queue.Schedule(now, events.DemandAssignment, events.Payload{
		DemandID:  d.ID,
		BargeID:   b.ID,
		ServiceID: svc.ID,
		From:      d.Origin,
		To:        d.Destination,
		Quantity:  d.Volume,
	}); err != nil {
		s.log.Warn(ctx, "schedule assignment", logging.String("demand_id", d.ID), logging.Err(err))
	}
	return nil
}

// advanceBarge decides the next step of an idle barge at its terminal:
// unload cargo destined here, load assigned cargo waiting here, continue a
// repositioning move, or sail the next leg of its service.
func (s *Simulator) advanceBarge(ctx context.Context, b *model.Barge, now float64) {
	if b.Status != model.BargeIdle {
		return
	}
	s.cancelDeparture(b.ID)
	pos := b.Position

	if ds := s.state.Demands().ForUnloading(pos, b.ID); len(ds) > 0 {
		s.beginHandling(ctx, b, now, ds, events.UnloadingComplete)
		return
	}
	if len(b.Path) > 0 {
		s.scheduleDeparture(ctx, b, pos, b.Path[0], now)
		return
	}
	if ds := s.state.Demands().ForLoading(pos, b.ID); len(ds) > 0 {
		s.beginHandling(ctx, b, now, ds, events.LoadingComplete)
		return
	}
	if !b.Bound() {
		return
	}
	svc := s.state.Service(b.ServiceID)
	if svc == nil {
		s.log.Warn(ctx, "barge bound to unknown service", logging.String("barge_id", b.ID), logging.String("service_id", b.ServiceID))
		return
	}
	next, ok := svc.Next(pos)
	if !ok {
		// Scenario bindings are permanent; only engine-made ones are released.
		if b.Adhoc && len(s.state.Demands().AssignedToBarge(b.ID)) == 0 {
			s.log.Debug(ctx, "barge released at end of route",
				logging.String("barge_id", b.ID),
				logging.String("service_id", svc.ID),
				logging.String("terminal_id", pos),
			)
			b.Unbind()
			if err := s.requestRound(now); err != nil {
				s.log.Warn(ctx, "request assignment round", logging.Err(err))
			}
		}
		return
	}
	s.scheduleDeparture(ctx, b, pos, next, math.Max(now, svc.Schedule[pos].Departure))
}

func (s *Simulator) beginHandling(ctx context.Context, b *model.Barge, now float64, ds []*model.Demand, typ events.Type) {
	ids := make([]string, 0, len(ds))
	total := 0.0
	for _, d := range ds {
		ids = append(ids, d.ID)
		total += d.Volume
	}

	var (
		err      error
		duration float64
	)
	if typ == events.LoadingComplete {
		err = b.BeginLoading()
		duration = b.LoadingDuration(total)
	} else {
		err = b.BeginUnloading()
		duration = b.UnloadingDuration(total)
	}
	if err != nil {
		s.log.Warn(ctx, "begin handling", logging.String("barge_id", b.ID), logging.Err(err))
		return
	}
	if _, err := s.queue.Schedule(now+duration, typ, events.Payload{
		BargeID:    b.ID,
		TerminalID: b.Position,
		Quantity:   total,
		DemandIDs:  ids,
	}); err != nil {
		s.log.Warn(ctx, "schedule handling", logging.String("barge_id", b.ID), logging.Err(err))
	}
}

func (s *Simulator) scheduleDeparture(ctx context.Context, b *model.Barge, from, to string, at float64) {
	s.cancelDeparture(b.ID)
	id, err := s.queue.Schedule(at, events.BargeDeparture, events.Payload{
		BargeID:   b.ID,
		ServiceID: b.ServiceID,
		From:      from,
		To:        to,
		Quantity:  b.CurrentLoad,
	})
	if err != nil {
		s.log.Warn(ctx, "schedule departure", logging.String("barge_id", b.ID), logging.Err(err))
		return
	}
	s.departures[b.ID] = id
}

func (s *Simulator) cancelDeparture(bargeID string) {
	if id, ok := s.departures[bargeID]; ok {
		s.queue.Cancel(id)
		delete(s.departures, bargeID)
	}
}

func (s *Simulator) cancelExpiration(demandID string) {
	if id, ok := s.expirations[demandID]; ok {
		s.queue.Cancel(id)
		delete(s.expirations, demandID)
	}
}

// requestRound queues one AssignmentRound at now unless one is already queued.
func (s *Simulator) requestRound(now float64) error {
	if s.roundQueued && s.roundAt == now {
		return nil
	}
	if _, err := s.queue.Schedule(now, events.AssignmentRound, events.Payload{}); err != nil {
		return err
	}
	s.roundQueued, s.roundAt = true, now
	return nil
}

func (s *Simulator) runRound(ctx context.Context, now float64) {
	res := s.engine.Round(ctx, now)
	if res.Pending == 0 {
		return
	}
	s.log.Debug(ctx, "assignment round",
		logging.Float64("sim_time", now),
		logging.Int("pending", res.Pending),
		logging.Int("assigned", len(res.Assigned)),
		logging.Int("rejected", len(res.Rejections)),
	)
}

// failDemand moves d to Failed and releases whatever it held.
func (s *Simulator) failDemand(ctx context.Context, d *model.Demand, now float64, reason string) error {
	prev := d.Status
	if err := s.state.Demands().Fail(d.ID, now, reason); err != nil {
		return err
	}
	s.cancelExpiration(d.ID)
	if prev == model.DemandAssigned {
		if b := s.state.Barge(d.AssignedBarge); b != nil {
			b.Unreserve(d.ID, d.Volume)
		}
		if svc := s.state.Service(d.AssignedService); svc != nil {
			svc.Release(d.Volume)
		}
	}
	s.unstage(ctx, now, d.Origin, d.Volume)
	s.log.Info(ctx, "demand failed",
		logging.String("demand_id", d.ID),
		logging.String("reason", reason),
		logging.Float64("due_date", d.DueDate),
		logging.Float64("sim_time", now),
	)
	return nil
}

// diagnose tells apart demands no open schedule could ever carry from those
// that lost out on capacity.
func (s *Simulator) diagnose(d *model.Demand) string {
	if s.graph == nil {
		s.graph = core.BuildSpaceTimeGraph(s.state.Services(), func(svc *model.Service) bool {
			return svc.Status == model.ServiceOpen
		})
	}
	if _, err := s.graph.FindRoute(d.Origin, d.Destination, d.AvailabilityTime, d.DueDate); err != nil {
		return ReasonNoFeasibleRoute
	}
	return ReasonNoCapacity
}

func (s *Simulator) stage(ctx context.Context, now float64, terminal string, volume float64) {
	t := s.state.Network().Terminal(terminal)
	if t == nil || !t.Stage(volume) {
		return
	}
	s.scheduleCongestion(ctx, now, events.TerminalCongestion, t)
}

func (s *Simulator) unstage(ctx context.Context, now float64, terminal string, volume float64) {
	t := s.state.Network().Terminal(terminal)
	if t == nil || !t.Unstage(volume) {
		return
	}
	s.scheduleCongestion(ctx, now, events.TerminalDecongestion, t)
}

func (s *Simulator) scheduleCongestion(ctx context.Context, now float64, typ events.Type, t *model.Terminal) {
	if _, err := s.queue.Schedule(now, typ, events.Payload{TerminalID: t.ID, Quantity: t.Occupancy}); err != nil {
		s.log.Warn(ctx, "schedule congestion event", logging.String("terminal_id", t.ID), logging.Err(err))
	}
}
