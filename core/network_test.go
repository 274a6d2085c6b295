package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/signalsfoundry/barge-simulator/model"
)

// cycleNetwork builds A->B->C->D->A with travel time 4 in both directions.
func cycleNetwork(t *testing.T) *Network {
	t.Helper()
	n := NewNetwork()
	ids := []string{"A", "B", "C", "D"}
	for _, id := range ids {
		if err := n.AddTerminal(&model.Terminal{ID: id}); err != nil {
			t.Fatalf("AddTerminal(%s) error: %v", id, err)
		}
	}
	for i, from := range ids {
		to := ids[(i+1)%len(ids)]
		for _, c := range []model.Connection{{From: from, To: to, TravelTime: 4}, {From: to, To: from, TravelTime: 4}} {
			if err := n.AddConnection(c); err != nil {
				t.Fatalf("AddConnection(%s->%s) error: %v", c.From, c.To, err)
			}
		}
	}
	return n
}

func TestNetworkTravelTimeRoundTrip(t *testing.T) {
	n := NewNetwork()
	const terminals = 6
	for i := range terminals {
		if err := n.AddTerminal(&model.Terminal{ID: fmt.Sprintf("T%d", i)}); err != nil {
			t.Fatalf("AddTerminal error: %v", err)
		}
	}
	var added []model.Connection
	for i := range terminals {
		for j := range terminals {
			if i == j || (i+j)%3 == 0 {
				continue
			}
			c := model.Connection{From: fmt.Sprintf("T%d", i), To: fmt.Sprintf("T%d", j), TravelTime: float64(i*10+j) + 0.5}
			if err := n.AddConnection(c); err != nil {
				t.Fatalf("AddConnection error: %v", err)
			}
			added = append(added, c)
		}
	}
	for _, c := range added {
		got, ok := n.TravelTime(c.From, c.To)
		if !ok || got != c.TravelTime {
			t.Fatalf("TravelTime(%s,%s) = %g,%v want %g", c.From, c.To, got, ok, c.TravelTime)
		}
		if d := n.Distance(c.From, c.To); d != c.TravelTime {
			t.Fatalf("Distance defaults to travel time: got %g want %g", d, c.TravelTime)
		}
	}
	if len(n.Connections()) != len(added) {
		t.Fatalf("Connections len = %d, want %d", len(n.Connections()), len(added))
	}
	if _, ok := n.TravelTime("T0", "T0"); ok {
		t.Fatalf("TravelTime for missing edge reported ok")
	}
}

func TestNetworkHasNoImplicitReverse(t *testing.T) {
	n := NewNetwork()
	_ = n.AddTerminal(&model.Terminal{ID: "A"})
	_ = n.AddTerminal(&model.Terminal{ID: "B"})
	if err := n.AddConnection(model.Connection{From: "A", To: "B", TravelTime: 2}); err != nil {
		t.Fatalf("AddConnection error: %v", err)
	}
	if _, ok := n.TravelTime("B", "A"); ok {
		t.Fatalf("reverse edge should not exist")
	}
	if _, err := n.ShortestPath("B", "A"); !errors.Is(err, model.ErrNoRoute) {
		t.Fatalf("ShortestPath(B,A) = %v, want ErrNoRoute", err)
	}
}

func TestNetworkValidation(t *testing.T) {
	n := NewNetwork()
	_ = n.AddTerminal(&model.Terminal{ID: "A"})
	_ = n.AddTerminal(&model.Terminal{ID: "B"})

	if err := n.AddTerminal(&model.Terminal{ID: "A"}); !errors.Is(err, model.ErrDuplicateID) {
		t.Fatalf("duplicate terminal = %v, want ErrDuplicateID", err)
	}
	cases := []model.Connection{
		{From: "A", To: "Z", TravelTime: 1},
		{From: "A", To: "B", TravelTime: 0},
		{From: "A", To: "A", TravelTime: 1},
	}
	for _, c := range cases {
		if err := n.AddConnection(c); !errors.Is(err, model.ErrInvalidScenario) {
			t.Fatalf("AddConnection(%+v) = %v, want ErrInvalidScenario", c, err)
		}
	}
	_ = n.AddConnection(model.Connection{From: "A", To: "B", TravelTime: 1})
	if err := n.AddConnection(model.Connection{From: "A", To: "B", TravelTime: 3}); !errors.Is(err, model.ErrDuplicateID) {
		t.Fatalf("duplicate connection = %v, want ErrDuplicateID", err)
	}
}

func TestShortestPath(t *testing.T) {
	n := cycleNetwork(t)

	p, err := n.ShortestPath("A", "C")
	if err != nil {
		t.Fatalf("ShortestPath error: %v", err)
	}
	// A->B->C and A->D->C tie at 8; B was inserted before D.
	want := []string{"A", "B", "C"}
	if fmt.Sprint(p.Terminals) != fmt.Sprint(want) || p.TravelTime != 8 || p.Hops() != 2 {
		t.Fatalf("ShortestPath(A,C) = %+v, want %v in 8", p, want)
	}

	p, err = n.ShortestPath("A", "D")
	if err != nil {
		t.Fatalf("ShortestPath error: %v", err)
	}
	if fmt.Sprint(p.Terminals) != "[A D]" || p.TravelTime != 4 {
		t.Fatalf("ShortestPath(A,D) = %+v", p)
	}

	// repeat to exercise the cache and make sure callers cannot corrupt it
	p.Terminals[0] = "mutated"
	again, _ := n.ShortestPath("A", "D")
	if again.Terminals[0] != "A" {
		t.Fatalf("cached path was mutated: %v", again.Terminals)
	}

	self, err := n.ShortestPath("B", "B")
	if err != nil || len(self.Terminals) != 1 || self.TravelTime != 0 {
		t.Fatalf("ShortestPath(B,B) = %+v, %v", self, err)
	}
	if _, err := n.ShortestPath("A", "Z"); !errors.Is(err, model.ErrUnknownResource) {
		t.Fatalf("ShortestPath to unknown = %v, want ErrUnknownResource", err)
	}
}

func TestShortestPathPrefersFasterDetour(t *testing.T) {
	n := NewNetwork()
	for _, id := range []string{"A", "B", "C"} {
		_ = n.AddTerminal(&model.Terminal{ID: id})
	}
	dist := 100.0
	_ = n.AddConnection(model.Connection{From: "A", To: "C", TravelTime: 10, Distance: &dist})
	_ = n.AddConnection(model.Connection{From: "A", To: "B", TravelTime: 3})
	_ = n.AddConnection(model.Connection{From: "B", To: "C", TravelTime: 3})

	p, err := n.ShortestPath("A", "C")
	if err != nil {
		t.Fatalf("ShortestPath error: %v", err)
	}
	if fmt.Sprint(p.Terminals) != "[A B C]" || p.TravelTime != 6 || p.Distance != 6 {
		t.Fatalf("ShortestPath = %+v", p)
	}

	// adding a faster edge invalidates the cache
	_ = n.AddTerminal(&model.Terminal{ID: "E"})
	_ = n.AddConnection(model.Connection{From: "A", To: "E", TravelTime: 1})
	_ = n.AddConnection(model.Connection{From: "E", To: "C", TravelTime: 1})
	p, _ = n.ShortestPath("A", "C")
	if p.TravelTime != 2 {
		t.Fatalf("ShortestPath after topology change = %+v", p)
	}
}
