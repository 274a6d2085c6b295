package core

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/barge-simulator/model"
)

func mustService(t *testing.T, id string, start, capacity float64, legs ...model.Leg) *model.Service {
	t.Helper()
	s, err := model.NewService(id, "", "", legs, start, capacity)
	if err != nil {
		t.Fatalf("NewService(%s) error: %v", id, err)
	}
	return s
}

func TestFindRouteSingleService(t *testing.T) {
	s1 := mustService(t, "S1", 0, 100,
		model.Leg{From: "A", To: "B", Duration: 4},
		model.Leg{From: "B", To: "C", Duration: 4},
		model.Leg{From: "C", To: "D", Duration: 4},
	)
	g := BuildSpaceTimeGraph([]*model.Service{s1}, nil)

	hops, err := g.FindRoute("A", "D", 0, 20)
	if err != nil {
		t.Fatalf("FindRoute error: %v", err)
	}
	want := RouteHop{Service: "S1", Board: "A", BoardTime: 0, Alight: "D", AlightTime: 12}
	if len(hops) != 1 || hops[0] != want {
		t.Fatalf("FindRoute = %+v, want [%+v]", hops, want)
	}

	if _, err := g.FindRoute("A", "D", 0, 5); !errors.Is(err, model.ErrNoRoute) {
		t.Fatalf("FindRoute with due 5 = %v, want ErrNoRoute", err)
	}
	if _, err := g.FindRoute("A", "D", 1, 20); !errors.Is(err, model.ErrNoRoute) {
		t.Fatalf("FindRoute after departure = %v, want ErrNoRoute", err)
	}
}

func TestFindRouteTransferWithWait(t *testing.T) {
	s1 := mustService(t, "S1", 0, 10, model.Leg{From: "A", To: "B", Duration: 2})
	// S2 leaves B at 5; the cargo waits at B from 2 to 5.
	s2 := mustService(t, "S2", 5, 10, model.Leg{From: "B", To: "C", Duration: 3})
	// S3 leaves B before S1 arrives and must not be used.
	s3 := mustService(t, "S3", 1, 10, model.Leg{From: "B", To: "C", Duration: 1})

	g := BuildSpaceTimeGraph([]*model.Service{s1, s2, s3}, nil)
	hops, err := g.FindRoute("A", "C", 0, 100)
	if err != nil {
		t.Fatalf("FindRoute error: %v", err)
	}
	if len(hops) != 2 {
		t.Fatalf("FindRoute = %+v, want two hops", hops)
	}
	if hops[0].Service != "S1" || hops[1].Service != "S2" || hops[1].BoardTime != 5 || hops[1].AlightTime != 8 {
		t.Fatalf("FindRoute = %+v", hops)
	}
	if hops[0].AlightTime > hops[1].BoardTime {
		t.Fatalf("transfer boards before arriving: %+v", hops)
	}

	var waits int
	for _, e := range g.Edges {
		if e.ServiceID == "" {
			waits++
			if e.From.Terminal != e.To.Terminal || e.From.Time >= e.To.Time {
				t.Fatalf("bad wait edge %+v", e)
			}
		}
	}
	if waits == 0 {
		t.Fatalf("expected wait edges at B")
	}
}

func TestFindRouteFilter(t *testing.T) {
	s1 := mustService(t, "S1", 0, 10, model.Leg{From: "A", To: "B", Duration: 2})
	s1.Close()
	g := BuildSpaceTimeGraph([]*model.Service{s1}, func(s *model.Service) bool { return s.Status == model.ServiceOpen })
	if _, err := g.FindRoute("A", "B", 0, 10); !errors.Is(err, model.ErrNoRoute) {
		t.Fatalf("FindRoute over closed service = %v, want ErrNoRoute", err)
	}
}

func TestFindRouteEarliestArrivalWins(t *testing.T) {
	slow := mustService(t, "slow", 0, 10, model.Leg{From: "A", To: "B", Duration: 9})
	fast := mustService(t, "fast", 1, 10, model.Leg{From: "A", To: "B", Duration: 2})
	g := BuildSpaceTimeGraph([]*model.Service{slow, fast}, nil)
	hops, err := g.FindRoute("A", "B", 0, 20)
	if err != nil {
		t.Fatalf("FindRoute error: %v", err)
	}
	if len(hops) != 1 || hops[0].Service != "fast" || hops[0].AlightTime != 3 {
		t.Fatalf("FindRoute = %+v, want fast arriving at 3", hops)
	}
}
