package state

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/barge-simulator/internal/logging"
	"github.com/signalsfoundry/barge-simulator/model"
)

type countsSnapshot struct {
	terminals   int
	connections int
	services    int
	barges      int
}

type stubMetricsRecorder struct {
	records []countsSnapshot
}

func (r *stubMetricsRecorder) SetScenarioCounts(terminals, connections, services, barges int) {
	r.records = append(r.records, countsSnapshot{terminals, connections, services, barges})
}

func (r *stubMetricsRecorder) last() countsSnapshot {
	if len(r.records) == 0 {
		return countsSnapshot{}
	}
	return r.records[len(r.records)-1]
}

// newLinearState builds A->B->C->D with 4h legs and service S1 over it.
func newLinearState(t *testing.T, opts ...ScenarioStateOption) *ScenarioState {
	t.Helper()
	s := NewScenarioState(nil, nil, logging.Noop(), opts...)
	for _, id := range []string{"A", "B", "C", "D"} {
		if err := s.AddTerminal(&model.Terminal{ID: id}); err != nil {
			t.Fatalf("AddTerminal(%s): %v", id, err)
		}
	}
	legs := []model.Leg{{From: "A", To: "B", Duration: 4}, {From: "B", To: "C", Duration: 4}, {From: "C", To: "D", Duration: 4}}
	for _, leg := range legs {
		if err := s.AddConnection(model.Connection{From: leg.From, To: leg.To, TravelTime: leg.Duration}); err != nil {
			t.Fatalf("AddConnection: %v", err)
		}
	}
	svc, err := model.NewService("S1", "A", "D", legs, 0, 100)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := s.AddService(svc); err != nil {
		t.Fatalf("AddService: %v", err)
	}
	return s
}

func TestScenarioStateMetricsRecorder(t *testing.T) {
	recorder := &stubMetricsRecorder{}
	s := newLinearState(t, WithMetricsRecorder(recorder))

	if got := recorder.last(); got != (countsSnapshot{terminals: 4, connections: 3, services: 1}) {
		t.Fatalf("counts = %+v", got)
	}
	if err := s.AddBarge(&model.Barge{ID: "b1", Capacity: 50, Position: "A", ServiceID: "S1"}); err != nil {
		t.Fatalf("AddBarge: %v", err)
	}
	if got := recorder.last(); got.barges != 1 {
		t.Fatalf("barges = %d, want 1", got.barges)
	}
}

func TestAddServiceValidation(t *testing.T) {
	s := newLinearState(t)

	dup, _ := model.NewService("S1", "A", "B", []model.Leg{{From: "A", To: "B", Duration: 4}}, 0, 10)
	if err := s.AddService(dup); !errors.Is(err, ErrDuplicateID) || !errors.Is(err, ErrInvalidScenario) {
		t.Fatalf("duplicate service = %v", err)
	}

	ghost, _ := model.NewService("S2", "A", "Z", []model.Leg{{From: "A", To: "Z", Duration: 4}}, 0, 10)
	if err := s.AddService(ghost); !errors.Is(err, ErrUnknownResource) || !errors.Is(err, ErrInvalidScenario) {
		t.Fatalf("service with unknown terminal = %v", err)
	}

	end := -1.0
	early, _ := model.NewService("S3", "A", "B", []model.Leg{{From: "A", To: "B", Duration: 4}}, 2, 10)
	early.EndTime = &end
	if err := s.AddService(early); !errors.Is(err, ErrInvalidScenario) {
		t.Fatalf("service ending before start = %v", err)
	}

	if err := s.AddService(nil); !errors.Is(err, ErrNilEntity) {
		t.Fatalf("nil service = %v", err)
	}

	// Schedule is computed when the caller did not.
	raw := &model.Service{ID: "S4", Legs: []model.Leg{{From: "B", To: "C", Duration: 2}}, Capacity: 10}
	if err := s.AddService(raw); err != nil {
		t.Fatalf("AddService(raw): %v", err)
	}
	if raw.Schedule["C"].Arrival != 2 {
		t.Fatalf("schedule not computed: %+v", raw.Schedule)
	}
}

func TestAddBargeValidation(t *testing.T) {
	s := newLinearState(t)
	shuttle, _ := model.NewService("S2", "B", "C", []model.Leg{{From: "B", To: "C", Duration: 4}}, 0, 10)
	if err := s.AddService(shuttle); err != nil {
		t.Fatalf("AddService(S2): %v", err)
	}

	cases := []struct {
		name  string
		barge *model.Barge
		want  error
	}{
		{"unknown position", &model.Barge{ID: "b1", Capacity: 10, Position: "Z"}, ErrUnknownResource},
		{"unknown service", &model.Barge{ID: "b1", Capacity: 10, Position: "A", ServiceID: "S9"}, ErrUnknownResource},
		{"off route", &model.Barge{ID: "b1", Capacity: 10, Position: "A", ServiceID: "S2"}, nil},
		{"zero capacity", &model.Barge{ID: "b1", Position: "A"}, ErrInvalidScenario},
		{"nil", nil, ErrNilEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.AddBarge(tc.barge)
			if err == nil {
				t.Fatalf("AddBarge succeeded")
			}
			if !errors.Is(err, ErrInvalidScenario) {
				t.Fatalf("err = %v, want ErrInvalidScenario", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}

	if err := s.AddBarge(&model.Barge{ID: "b1", Capacity: 10, Position: "B", ServiceID: "S1", Status: model.BargeMoving}); err != nil {
		t.Fatalf("AddBarge: %v", err)
	}
	if s.Barge("b1").Status != model.BargeIdle {
		t.Fatalf("barge must start idle")
	}
	if err := s.AddBarge(&model.Barge{ID: "b1", Capacity: 10, Position: "A"}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("duplicate barge = %v", err)
	}
}

func TestValidateDemand(t *testing.T) {
	s := newLinearState(t)
	ok := &model.Demand{ID: "d1", Origin: "A", Destination: "D", Volume: 10, DueDate: 20}
	if err := s.ValidateDemand(ok); err != nil {
		t.Fatalf("ValidateDemand: %v", err)
	}
	bad := &model.Demand{ID: "d2", Origin: "A", Destination: "Z", Volume: 10, DueDate: 20}
	if err := s.ValidateDemand(bad); !errors.Is(err, ErrUnknownResource) {
		t.Fatalf("unknown destination = %v", err)
	}
	if err := s.Demands().Add(ok, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	again := &model.Demand{ID: "d1", Origin: "A", Destination: "B", Volume: 1, DueDate: 5}
	if err := s.ValidateDemand(again); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("duplicate demand = %v", err)
	}
}

func TestOrderedAccessors(t *testing.T) {
	s := newLinearState(t)
	for _, id := range []string{"z", "a", "m"} {
		if err := s.AddBarge(&model.Barge{ID: id, Capacity: 10, Position: "A"}); err != nil {
			t.Fatalf("AddBarge(%s): %v", id, err)
		}
	}
	var got []string
	for _, b := range s.Barges() {
		got = append(got, b.ID)
	}
	if len(got) != 3 || got[0] != "z" || got[1] != "a" || got[2] != "m" {
		t.Fatalf("Barges order = %v", got)
	}
	if s.Service("S1") == nil || s.Service("nope") != nil || len(s.Services()) != 1 {
		t.Fatalf("service lookup mismatch")
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	s := newLinearState(t)
	if err := s.AddBarge(&model.Barge{ID: "b1", Capacity: 10, Position: "A", ServiceID: "S1"}); err != nil {
		t.Fatalf("AddBarge: %v", err)
	}
	if err := s.Demands().Add(&model.Demand{ID: "d1", Origin: "A", Destination: "D", Volume: 10, DueDate: 20}, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Terminals) != 4 || len(snap.Connections) != 3 || len(snap.Services) != 1 || len(snap.Barges) != 1 || len(snap.Demands) != 1 {
		t.Fatalf("snapshot sizes: %+v", snap)
	}
	snap.Barges[0].CurrentLoad = 9
	snap.Services[0].CurrentLoad = 9
	snap.Terminals[0].Occupancy = 9
	if s.Barge("b1").CurrentLoad != 0 || s.Service("S1").CurrentLoad != 0 || s.Network().Terminal("A").Occupancy != 0 {
		t.Fatalf("snapshot aliases live state")
	}
}
