// Package assign implements the greedy, priority-ordered assignment of
// pending demands to barges and services.
package assign

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/signalsfoundry/barge-simulator/internal/logging"
	"github.com/signalsfoundry/barge-simulator/internal/sim/state"
	"github.com/signalsfoundry/barge-simulator/model"
)

// Rejection reasons reported when a demand stays pending after a round.
const (
	ReasonNoBarge      = "no_barge"
	ReasonClosed       = "service_closed"
	ReasonNoRoute      = "no_route"
	ReasonTimeWindow   = "time_window"
	ReasonCapacity     = "capacity"
	ReasonCommitFailed = "commit_failed"
	ReasonNotReachable = "not_reachable"
)

// Candidate is one feasible way to carry a demand.
type Candidate struct {
	BargeID   string
	ServiceID string
	// Arrival is the planned arrival at the demand's destination.
	Arrival float64
	// Stops counts the legs sailed from origin to destination.
	Stops int
	// Reposition lists the terminals an unbound barge sails through to reach
	// the demand's origin, origin included. Empty when no move is needed.
	Reposition []string
	// Bind is set when the barge is unbound and must be bound to ServiceID.
	Bind  bool
	Score float64
}

// Assignment records a committed candidate.
type Assignment struct {
	DemandID  string
	Candidate Candidate
}

// Rejection records a demand that stayed pending.
type Rejection struct {
	DemandID string
	Reason   string
}

// RoundResult summarises one assignment round.
type RoundResult struct {
	Time       float64
	Pending    int
	Assigned   []Assignment
	Rejections []Rejection
}

// Committer applies a chosen candidate to the live state. Returning an error
// wrapping model.ErrCapacityExceeded or model.ErrTimeWindowViolation makes the
// engine try the next candidate.
type Committer interface {
	Commit(ctx context.Context, d *model.Demand, c Candidate) error
}

// CommitFunc adapts a function to the Committer interface.
type CommitFunc func(ctx context.Context, d *model.Demand, c Candidate) error

// Commit calls f.
func (f CommitFunc) Commit(ctx context.Context, d *model.Demand, c Candidate) error {
	return f(ctx, d, c)
}

// Metrics receives per-round measurements.
type Metrics interface {
	ObserveRound(d time.Duration)
	SetPendingDemands(count int)
	AddCommits(n int)
	IncRejection(reason string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRound(time.Duration) {}
func (noopMetrics) SetPendingDemands(int)      {}
func (noopMetrics) AddCommits(int)             {}
func (noopMetrics) IncRejection(string)        {}

// Engine runs assignment rounds over a ScenarioState.
type Engine struct {
	state     *state.ScenarioState
	committer Committer
	weights   Weights
	metrics   Metrics
	tracer    trace.Tracer
	log       logging.Logger
}

// Option customises Engine construction.
type Option func(*Engine)

// WithWeights overrides the scoring weights.
func WithWeights(w Weights) Option {
	return func(e *Engine) { e.weights = w }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithTracer sets the tracer used for round spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine builds an engine that reads st and commits through c.
func NewEngine(st *state.ScenarioState, c Committer, opts ...Option) *Engine {
	e := &Engine{
		state:     st,
		committer: c,
		weights:   DefaultWeights(),
		metrics:   noopMetrics{},
		tracer:    noop.NewTracerProvider().Tracer(""),
		log:       logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Weights returns the scoring weights in use.
func (e *Engine) Weights() Weights { return e.weights }

// Round assigns every pending demand that has a feasible candidate, in
// priority order. Each commit is visible to the next demand's enumeration.
func (e *Engine) Round(ctx context.Context, now float64) RoundResult {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "assign.Round")
	defer span.End()

	pending := e.state.Demands().Pending(now)
	SortByPriority(pending)

	res := RoundResult{Time: now, Pending: len(pending)}
	e.metrics.SetPendingDemands(len(pending))

	for _, d := range pending {
		c, reason := e.place(ctx, d, now)
		if reason != "" {
			res.Rejections = append(res.Rejections, Rejection{DemandID: d.ID, Reason: reason})
			e.metrics.IncRejection(reason)
			continue
		}
		res.Assigned = append(res.Assigned, Assignment{DemandID: d.ID, Candidate: c})
	}

	e.metrics.AddCommits(len(res.Assigned))
	e.metrics.ObserveRound(time.Since(start))
	span.SetAttributes(
		attribute.Float64("sim.time", now),
		attribute.Int("assign.pending", res.Pending),
		attribute.Int("assign.committed", len(res.Assigned)),
		attribute.Int("assign.rejected", len(res.Rejections)),
	)
	return res
}

// place commits the best candidate for d, falling through to the next one on
// capacity or time-window conflicts.
func (e *Engine) place(ctx context.Context, d *model.Demand, now float64) (Candidate, string) {
	cands, reason := e.Candidates(d, now)
	if len(cands) == 0 {
		return Candidate{}, reason
	}
	slices.SortStableFunc(cands, func(a, b Candidate) int {
		switch {
		case a.Score < b.Score:
			return -1
		case a.Score > b.Score:
			return 1
		}
		return 0
	})

	for _, c := range cands {
		err := e.committer.Commit(ctx, d, c)
		if err == nil {
			e.log.Debug(ctx, "demand assigned",
				logging.String("demand_id", d.ID),
				logging.String("barge_id", c.BargeID),
				logging.String("service_id", c.ServiceID),
				logging.Float64("score", c.Score),
				logging.Float64("sim_time", now),
			)
			return c, ""
		}
		if errors.Is(err, model.ErrCapacityExceeded) || errors.Is(err, model.ErrTimeWindowViolation) {
			continue
		}
		e.log.Warn(ctx, "commit failed",
			logging.String("demand_id", d.ID),
			logging.String("barge_id", c.BargeID),
			logging.Err(err),
		)
		return Candidate{}, ReasonCommitFailed
	}
	return Candidate{}, ReasonCapacity
}

// Candidates enumerates feasible candidates for d in discovery order: barges
// in registration order, and for an unbound barge the services in
// registration order. When none is feasible the second return value names
// the most specific reason.
func (e *Engine) Candidates(d *model.Demand, now float64) ([]Candidate, string) {
	var (
		out  []Candidate
		diag diagnosis
	)
	for _, b := range e.state.Barges() {
		if b.Bound() {
			svc := e.state.Service(b.ServiceID)
			if svc == nil {
				continue
			}
			if c, err := e.boundCandidate(d, b, svc); err != nil {
				diag.note(err)
			} else {
				out = append(out, c)
			}
			continue
		}
		if b.Status != model.BargeIdle {
			continue
		}
		for _, svc := range e.state.Services() {
			if c, err := e.unboundCandidate(d, b, svc, now); err != nil {
				diag.note(err)
			} else {
				out = append(out, c)
			}
		}
	}
	if len(out) > 0 {
		return out, ""
	}
	return nil, diag.reason()
}

func (e *Engine) boundCandidate(d *model.Demand, b *model.Barge, svc *model.Service) (Candidate, error) {
	if err := svc.CheckServe(d); err != nil {
		return Candidate{}, err
	}
	if !b.CanAccept(d.Volume) {
		return Candidate{}, fmt.Errorf("%w: barge %s", model.ErrCapacityExceeded, b.ID)
	}
	at := svc.Index(reachableTerminal(b))
	if at < 0 || at > svc.Index(d.Origin) {
		return Candidate{}, fmt.Errorf("%w: barge %s already past %s", errNotReachable, b.ID, d.Origin)
	}
	stops := svc.Stops(d.Origin, d.Destination)
	arrival := svc.Schedule[d.Destination].Arrival
	return Candidate{
		BargeID:   b.ID,
		ServiceID: svc.ID,
		Arrival:   arrival,
		Stops:     stops,
		Score:     e.weights.Score(d, b, arrival, stops),
	}, nil
}

func (e *Engine) unboundCandidate(d *model.Demand, b *model.Barge, svc *model.Service, now float64) (Candidate, error) {
	if err := svc.CheckServe(d); err != nil {
		return Candidate{}, err
	}
	if !b.CanAccept(d.Volume) {
		return Candidate{}, fmt.Errorf("%w: barge %s", model.ErrCapacityExceeded, b.ID)
	}
	var reposition []string
	if b.Position != d.Origin {
		path, err := e.state.Network().ShortestPath(b.Position, d.Origin)
		if err != nil {
			return Candidate{}, err
		}
		if now+path.TravelTime > svc.Schedule[d.Origin].Departure {
			return Candidate{}, fmt.Errorf("%w: barge %s cannot reach %s before %g", errNotReachable, b.ID, d.Origin, svc.Schedule[d.Origin].Departure)
		}
		reposition = path.Terminals[1:]
	}
	stops := svc.Stops(d.Origin, d.Destination)
	arrival := svc.Schedule[d.Destination].Arrival
	return Candidate{
		BargeID:    b.ID,
		ServiceID:  svc.ID,
		Arrival:    arrival,
		Stops:      stops,
		Reposition: reposition,
		Bind:       true,
		Score:      e.weights.Score(d, b, arrival, stops),
	}, nil
}

// reachableTerminal is the next terminal at which b can take on cargo.
func reachableTerminal(b *model.Barge) string {
	switch {
	case len(b.Path) > 0:
		return b.Path[len(b.Path)-1]
	case b.Status == model.BargeMoving:
		return b.Destination
	default:
		return b.Position
	}
}

var errNotReachable = errors.New("barge cannot reach origin in time")

// diagnosis keeps the most specific reason seen while enumerating.
type diagnosis struct {
	rank int
	why  string
}

func (g *diagnosis) note(err error) {
	rank, why := 0, ReasonNoBarge
	switch {
	case errors.Is(err, model.ErrCapacityExceeded):
		rank, why = 5, ReasonCapacity
	case errors.Is(err, errNotReachable):
		rank, why = 4, ReasonNotReachable
	case errors.Is(err, model.ErrTimeWindowViolation):
		rank, why = 3, ReasonTimeWindow
	case errors.Is(err, model.ErrNoRoute):
		rank, why = 2, ReasonNoRoute
	case errors.Is(err, model.ErrServiceClosed):
		rank, why = 1, ReasonClosed
	}
	if rank > g.rank || g.why == "" {
		g.rank, g.why = rank, why
	}
}

func (g *diagnosis) reason() string {
	if g.why == "" {
		return ReasonNoBarge
	}
	return g.why
}
