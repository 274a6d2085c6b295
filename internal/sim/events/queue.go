package events

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/signalsfoundry/barge-simulator/timectrl"
)

// ErrPastScheduling matches every PastSchedulingError via errors.Is.
var ErrPastScheduling = errors.New("scheduling into the past")

// ErrInvalidTime is returned for NaN or infinite event times.
var ErrInvalidTime = errors.New("invalid event time")

// PastSchedulingError reports an attempt to schedule an event before the
// current time of the queue.
type PastSchedulingError struct {
	At  float64
	Now float64
}

func (e *PastSchedulingError) Error() string {
	return fmt.Sprintf("scheduling into the past: t=%g < now=%g", e.At, e.Now)
}

// Is lets errors.Is(err, ErrPastScheduling) match.
func (e *PastSchedulingError) Is(target error) bool {
	return target == ErrPastScheduling
}

// bagNode is one heap entry; every event with the same time shares it.
type bagNode struct {
	time   float64
	events []Event
	index  int
}

// bagHeap is a min-heap of bags ordered by time.
type bagHeap []*bagNode

func (h bagHeap) Len() int           { return len(h) }
func (h bagHeap) Less(i, j int) bool { return h[i].time < h[j].time }
func (h bagHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *bagHeap) Push(x any) {
	n := x.(*bagNode)
	n.index = len(*h)
	*h = append(*h, n)
}

func (h *bagHeap) Pop() any {
	old := *h
	last := len(old) - 1
	n := old[last]
	old[last] = nil
	n.index = -1
	*h = old[:last]
	return n
}

// Queue is a time-indexed priority collection of bags. Once a bag at time t
// has been popped, scheduling before t fails with a PastSchedulingError.
//
// The queue owns the simulation clock: popping a bag advances it.
type Queue struct {
	mu sync.Mutex

	clock   *timectrl.Clock
	counter ID
	bags    bagHeap
	byTime  map[float64]*bagNode
	pending map[ID]float64
}

// NewQueue creates an empty queue whose clock starts at start.
func NewQueue(start float64) *Queue {
	return &Queue{
		clock:   timectrl.NewClock(start),
		byTime:  make(map[float64]*bagNode),
		pending: make(map[ID]float64),
	}
}

// Clock exposes the queue's clock so listeners can observe time advancing.
func (q *Queue) Clock() *timectrl.Clock { return q.clock }

// Now returns the time of the most recently popped bag.
func (q *Queue) Now() float64 { return q.clock.Now() }

// Schedule registers an event at time at and returns its id.
func (q *Queue) Schedule(at float64, typ Type, payload Payload) (ID, error) {
	if math.IsNaN(at) || math.IsInf(at, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTime, at)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if now := q.clock.Now(); at < now {
		return 0, &PastSchedulingError{At: at, Now: now}
	}

	q.counter++
	ev := Event{ID: q.counter, Time: at, Type: typ, Payload: payload}

	node, ok := q.byTime[at]
	if !ok {
		node = &bagNode{time: at}
		q.byTime[at] = node
		heap.Push(&q.bags, node)
	}
	// ids are handed out in increasing order, so appending keeps the bag sorted.
	node.events = append(node.events, ev)
	q.pending[ev.ID] = at
	return ev.ID, nil
}

// Cancel removes a scheduled event. It is a no-op if the id is unknown or the
// event was already popped.
func (q *Queue) Cancel(id ID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	at, ok := q.pending[id]
	if !ok {
		return false
	}
	delete(q.pending, id)

	node := q.byTime[at]
	for i, ev := range node.events {
		if ev.ID == id {
			node.events = append(node.events[:i], node.events[i+1:]...)
			break
		}
	}
	if len(node.events) == 0 {
		heap.Remove(&q.bags, node.index)
		delete(q.byTime, at)
	}
	return true
}

// PopNextBag removes every event sharing the minimum remaining time, advances
// the clock to that time and returns them. It returns false when empty.
func (q *Queue) PopNextBag() (*Bag, bool) {
	q.mu.Lock()
	if q.bags.Len() == 0 {
		q.mu.Unlock()
		return nil, false
	}
	node := heap.Pop(&q.bags).(*bagNode)
	delete(q.byTime, node.time)
	for _, ev := range node.events {
		delete(q.pending, ev.ID)
	}
	q.mu.Unlock()

	// Listeners run outside the lock so they may schedule follow-up events.
	if err := q.clock.AdvanceTo(node.time); err != nil {
		// Schedule never accepts a time before now, so this cannot happen.
		panic(err)
	}
	return &Bag{Time: node.time, Events: node.events}, true
}

// PeekTime returns the time of the next bag without removing it.
func (q *Queue) PeekTime() (float64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.bags.Len() == 0 {
		return 0, false
	}
	return q.bags[0].time, true
}

// IsEmpty reports whether no events remain.
func (q *Queue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bags.Len() == 0
}

// Len returns the number of scheduled events across all bags.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
