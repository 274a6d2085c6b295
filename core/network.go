package core

import (
	"container/heap"
	"fmt"
	"sync"

	"github.com/signalsfoundry/barge-simulator/model"
)

// Path is the result of a shortest-path query.
type Path struct {
	Terminals  []string
	TravelTime float64
	Distance   float64
}

// Hops returns the number of connections traversed.
func (p Path) Hops() int {
	if len(p.Terminals) == 0 {
		return 0
	}
	return len(p.Terminals) - 1
}

// Network stores terminals and directed, travel-time weighted connections.
// There is no implicit bidirectionality: each direction is added explicitly.
//
// The network is concurrency-safe via an internal RWMutex. It is read-mostly
// once a scenario is loaded; shortest paths are cached until the topology
// changes.
type Network struct {
	mu sync.RWMutex

	terminals     map[string]*model.Terminal
	terminalOrder []string
	// outgoing[from] lists connections in insertion order.
	outgoing    map[string][]*model.Connection
	connections map[string]map[string]*model.Connection
	connOrder   []*model.Connection

	pathCache map[[2]string]Path
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{
		terminals:   make(map[string]*model.Terminal),
		outgoing:    make(map[string][]*model.Connection),
		connections: make(map[string]map[string]*model.Connection),
		pathCache:   make(map[[2]string]Path),
	}
}

// AddTerminal registers a terminal.
func (n *Network) AddTerminal(t *model.Terminal) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("%w: nil or empty terminal", model.ErrInvalidScenario)
	}
	if t.Capacity < 0 {
		return fmt.Errorf("%w: terminal %q capacity is negative", model.ErrInvalidScenario, t.ID)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.terminals[t.ID]; exists {
		return fmt.Errorf("%w: %w: terminal %q", model.ErrInvalidScenario, model.ErrDuplicateID, t.ID)
	}
	n.terminals[t.ID] = t
	n.terminalOrder = append(n.terminalOrder, t.ID)
	clear(n.pathCache)
	return nil
}

// AddConnection registers a directed connection between two known terminals.
func (n *Network) AddConnection(c model.Connection) error {
	if c.TravelTime <= 0 {
		return fmt.Errorf("%w: connection %s->%s travel time must be positive", model.ErrInvalidScenario, c.From, c.To)
	}
	if c.From == c.To {
		return fmt.Errorf("%w: connection %s->%s is a self loop", model.ErrInvalidScenario, c.From, c.To)
	}
	if c.Distance != nil && *c.Distance < 0 {
		return fmt.Errorf("%w: connection %s->%s distance is negative", model.ErrInvalidScenario, c.From, c.To)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.terminals[c.From]; !ok {
		return fmt.Errorf("%w: %w: connection origin %q", model.ErrInvalidScenario, model.ErrUnknownResource, c.From)
	}
	if _, ok := n.terminals[c.To]; !ok {
		return fmt.Errorf("%w: %w: connection destination %q", model.ErrInvalidScenario, model.ErrUnknownResource, c.To)
	}
	if _, exists := n.connections[c.From][c.To]; exists {
		return fmt.Errorf("%w: %w: connection %s->%s", model.ErrInvalidScenario, model.ErrDuplicateID, c.From, c.To)
	}

	conn := c
	if n.connections[c.From] == nil {
		n.connections[c.From] = make(map[string]*model.Connection)
	}
	n.connections[c.From][c.To] = &conn
	n.outgoing[c.From] = append(n.outgoing[c.From], &conn)
	n.connOrder = append(n.connOrder, &conn)
	clear(n.pathCache)
	return nil
}

// Terminal returns a terminal by id, or nil if not found.
func (n *Network) Terminal(id string) *model.Terminal {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.terminals[id]
}

// HasTerminal reports whether id is registered.
func (n *Network) HasTerminal(id string) bool {
	return n.Terminal(id) != nil
}

// Terminals returns all terminals in insertion order.
func (n *Network) Terminals() []*model.Terminal {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]*model.Terminal, 0, len(n.terminalOrder))
	for _, id := range n.terminalOrder {
		out = append(out, n.terminals[id])
	}
	return out
}

// Connections returns copies of all connections in insertion order.
func (n *Network) Connections() []model.Connection {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]model.Connection, 0, len(n.connOrder))
	for _, c := range n.connOrder {
		out = append(out, *c)
	}
	return out
}

// Connection returns the direct connection from -> to.
func (n *Network) Connection(from, to string) (model.Connection, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	c, ok := n.connections[from][to]
	if !ok {
		return model.Connection{}, false
	}
	return *c, true
}

// TravelTime returns the travel time of the direct connection from -> to.
func (n *Network) TravelTime(from, to string) (float64, bool) {
	c, ok := n.Connection(from, to)
	if !ok {
		return 0, false
	}
	return c.TravelTime, true
}

// Distance returns the distance of the direct connection, defaulting to its
// travel time when no distance was given. Unconnected pairs return 0.
func (n *Network) Distance(from, to string) float64 {
	c, ok := n.Connection(from, to)
	if !ok {
		return 0
	}
	return c.EffectiveDistance()
}

// ShortestPath returns the minimum travel-time path from -> to. Ties are
// broken by terminal and connection insertion order, so results are stable
// across runs.
func (n *Network) ShortestPath(from, to string) (Path, error) {
	n.mu.RLock()
	if p, ok := n.pathCache[[2]string{from, to}]; ok {
		n.mu.RUnlock()
		return clonePath(p), nil
	}
	p, err := n.dijkstraLocked(from, to)
	n.mu.RUnlock()
	if err != nil {
		return Path{}, err
	}

	n.mu.Lock()
	n.pathCache[[2]string{from, to}] = p
	n.mu.Unlock()
	return clonePath(p), nil
}

func (n *Network) dijkstraLocked(from, to string) (Path, error) {
	if _, ok := n.terminals[from]; !ok {
		return Path{}, fmt.Errorf("%w: terminal %q", model.ErrUnknownResource, from)
	}
	if _, ok := n.terminals[to]; !ok {
		return Path{}, fmt.Errorf("%w: terminal %q", model.ErrUnknownResource, to)
	}
	if from == to {
		return Path{Terminals: []string{from}}, nil
	}

	order := make(map[string]int, len(n.terminalOrder))
	for i, id := range n.terminalOrder {
		order[id] = i
	}

	dist := map[string]float64{from: 0}
	prev := make(map[string]*model.Connection)
	done := make(map[string]bool)

	pq := &dijkstraQueue{}
	heap.Push(pq, dijkstraItem{terminal: from, dist: 0, order: order[from]})
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(dijkstraItem)
		if done[cur.terminal] {
			continue
		}
		done[cur.terminal] = true
		if cur.terminal == to {
			break
		}
		for _, c := range n.outgoing[cur.terminal] {
			if done[c.To] {
				continue
			}
			alt := cur.dist + c.TravelTime
			if d, seen := dist[c.To]; !seen || alt < d {
				dist[c.To] = alt
				prev[c.To] = c
				heap.Push(pq, dijkstraItem{terminal: c.To, dist: alt, order: order[c.To]})
			}
		}
	}

	if !done[to] {
		return Path{}, fmt.Errorf("%w: %s -> %s", model.ErrNoRoute, from, to)
	}

	var (
		rev      []string
		distance float64
	)
	for at := to; at != from; {
		c := prev[at]
		rev = append(rev, at)
		distance += c.EffectiveDistance()
		at = c.From
	}
	rev = append(rev, from)
	terminals := make([]string, len(rev))
	for i, id := range rev {
		terminals[len(rev)-1-i] = id
	}
	return Path{Terminals: terminals, TravelTime: dist[to], Distance: distance}, nil
}

func clonePath(p Path) Path {
	p.Terminals = append([]string(nil), p.Terminals...)
	return p
}

type dijkstraItem struct {
	terminal string
	dist     float64
	order    int
}

type dijkstraQueue []dijkstraItem

func (q dijkstraQueue) Len() int { return len(q) }
func (q dijkstraQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].order < q[j].order
}
func (q dijkstraQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *dijkstraQueue) Push(x any)   { *q = append(*q, x.(dijkstraItem)) }
func (q *dijkstraQueue) Pop() any {
	old := *q
	item := old[len(old)-1]
	*q = old[:len(old)-1]
	return item
}
