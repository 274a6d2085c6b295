package core

import (
	"fmt"
	"sort"

	"github.com/signalsfoundry/barge-simulator/model"
)

// SpaceTimeNode is a terminal at a specific point in simulation time.
type SpaceTimeNode struct {
	Terminal string
	Time     float64
}

// SpaceTimeEdge is a transition between space-time nodes: a scheduled service
// leg, or a wait at one terminal when ServiceID is empty.
type SpaceTimeEdge struct {
	From      SpaceTimeNode
	To        SpaceTimeNode
	ServiceID string
}

// RouteHop is one ride on a service from boarding to alighting.
type RouteHop struct {
	Service    string
	Board      string
	BoardTime  float64
	Alight     string
	AlightTime float64
}

// SpaceTimeGraph is the time-expanded network induced by service schedules.
// Reachability depends on both which terminals a service connects and when.
type SpaceTimeGraph struct {
	Nodes []SpaceTimeNode
	Edges []SpaceTimeEdge

	out map[SpaceTimeNode][]int
	// times[terminal] is the sorted list of node times at that terminal.
	times map[string][]float64
}

// ServiceFilter selects which services contribute arcs to a graph.
type ServiceFilter func(*model.Service) bool

// BuildSpaceTimeGraph builds the time-expanded graph for the given services.
// Every scheduled leg becomes a service edge and consecutive time points at
// the same terminal are chained with wait edges. A nil filter keeps every
// service.
func BuildSpaceTimeGraph(services []*model.Service, keep ServiceFilter) *SpaceTimeGraph {
	g := &SpaceTimeGraph{
		out:   make(map[SpaceTimeNode][]int),
		times: make(map[string][]float64),
	}

	points := make(map[string]map[float64]struct{})
	addPoint := func(terminal string, t float64) {
		if points[terminal] == nil {
			points[terminal] = make(map[float64]struct{})
		}
		points[terminal][t] = struct{}{}
	}

	var legs []SpaceTimeEdge
	for _, s := range services {
		if s == nil || (keep != nil && !keep(s)) {
			continue
		}
		for i := 0; i+1 < len(s.Route); i++ {
			from := SpaceTimeNode{Terminal: s.Route[i], Time: s.Schedule[s.Route[i]].Departure}
			to := SpaceTimeNode{Terminal: s.Route[i+1], Time: s.Schedule[s.Route[i+1]].Arrival}
			addPoint(from.Terminal, from.Time)
			addPoint(to.Terminal, to.Time)
			legs = append(legs, SpaceTimeEdge{From: from, To: to, ServiceID: s.ID})
		}
	}

	terminals := make([]string, 0, len(points))
	for id := range points {
		terminals = append(terminals, id)
	}
	sort.Strings(terminals)

	for _, id := range terminals {
		ts := make([]float64, 0, len(points[id]))
		for t := range points[id] {
			ts = append(ts, t)
		}
		sort.Float64s(ts)
		g.times[id] = ts
		for i, t := range ts {
			g.Nodes = append(g.Nodes, SpaceTimeNode{Terminal: id, Time: t})
			if i > 0 {
				g.addEdge(SpaceTimeEdge{
					From: SpaceTimeNode{Terminal: id, Time: ts[i-1]},
					To:   SpaceTimeNode{Terminal: id, Time: t},
				})
			}
		}
	}
	for _, e := range legs {
		g.addEdge(e)
	}
	return g
}

func (g *SpaceTimeGraph) addEdge(e SpaceTimeEdge) {
	g.Edges = append(g.Edges, e)
	g.out[e.From] = append(g.out[e.From], len(g.Edges)-1)
}

// FindRoute returns the earliest-arriving sequence of service rides from
// origin to destination that departs no earlier than earliest and arrives no
// later than latest. Waiting at intermediate terminals is allowed.
func (g *SpaceTimeGraph) FindRoute(origin, destination string, earliest, latest float64) ([]RouteHop, error) {
	if origin == destination {
		return nil, nil
	}

	var start *SpaceTimeNode
	for _, t := range g.times[origin] {
		if t >= earliest {
			start = &SpaceTimeNode{Terminal: origin, Time: t}
			break
		}
	}
	if start == nil {
		return nil, fmt.Errorf("%w: no departure from %s after %g", model.ErrNoRoute, origin, earliest)
	}

	// Every edge moves forward in time, so visiting nodes in time order
	// reaches each node only after all of its predecessors.
	order := append([]SpaceTimeNode(nil), g.Nodes...)
	sort.SliceStable(order, func(i, j int) bool { return order[i].Time < order[j].Time })

	parent := map[SpaceTimeNode]int{*start: -1}
	for _, n := range order {
		if n.Time > latest {
			break
		}
		if _, reached := parent[n]; !reached {
			continue
		}
		if n.Terminal == destination {
			return g.reconstruct(n, parent), nil
		}
		for _, idx := range g.out[n] {
			next := g.Edges[idx].To
			if _, seen := parent[next]; !seen {
				parent[next] = idx
			}
		}
	}
	return nil, fmt.Errorf("%w: %s -> %s within [%g, %g]", model.ErrNoRoute, origin, destination, earliest, latest)
}

func (g *SpaceTimeGraph) reconstruct(end SpaceTimeNode, parent map[SpaceTimeNode]int) []RouteHop {
	var rides []SpaceTimeEdge
	for at := end; parent[at] >= 0; {
		e := g.Edges[parent[at]]
		if e.ServiceID != "" {
			rides = append(rides, e)
		}
		at = e.From
	}

	var hops []RouteHop
	for i := len(rides) - 1; i >= 0; i-- {
		e := rides[i]
		if n := len(hops); n > 0 && hops[n-1].Service == e.ServiceID && hops[n-1].Alight == e.From.Terminal && hops[n-1].AlightTime == e.From.Time {
			hops[n-1].Alight = e.To.Terminal
			hops[n-1].AlightTime = e.To.Time
			continue
		}
		hops = append(hops, RouteHop{
			Service:    e.ServiceID,
			Board:      e.From.Terminal,
			BoardTime:  e.From.Time,
			Alight:     e.To.Terminal,
			AlightTime: e.To.Time,
		})
	}
	return hops
}
