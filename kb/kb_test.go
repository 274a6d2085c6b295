package kb

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/signalsfoundry/barge-simulator/model"
)

func newDemand(id, origin, dest string, avail float64) *model.Demand {
	return &model.Demand{ID: id, Origin: origin, Destination: dest, Volume: 10, AvailabilityTime: avail, DueDate: avail + 20}
}

func TestAddAndGetDemand(t *testing.T) {
	m := NewDemandManager()
	if err := m.Add(newDemand("d1", "A", "D", 0), 0); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	got := m.Get("d1")
	if got == nil || got.Origin != "A" || got.Status != model.DemandPending {
		t.Fatalf("Get returned %#v", got)
	}
	if !m.Has("d1") || m.Has("nope") {
		t.Fatalf("Has reported wrong membership")
	}
}

func TestAddDemandDuplicateAndInvalid(t *testing.T) {
	m := NewDemandManager()
	if err := m.Add(newDemand("d1", "A", "D", 0), 0); err != nil {
		t.Fatalf("first Add error: %v", err)
	}
	if err := m.Add(newDemand("d1", "A", "D", 0), 0); !errors.Is(err, model.ErrDuplicateID) {
		t.Fatalf("duplicate Add = %v, want ErrDuplicateID", err)
	}
	if err := m.Add(&model.Demand{ID: "bad", Origin: "A", Destination: "A", Volume: 1}, 0); !errors.Is(err, model.ErrInvalidScenario) {
		t.Fatalf("invalid Add = %v, want ErrInvalidScenario", err)
	}
}

func TestListPreservesRegistrationOrder(t *testing.T) {
	m := NewDemandManager()
	for i := range 5 {
		if err := m.Add(newDemand(fmt.Sprintf("d-%d", 4-i), "A", "B", 0), 0); err != nil {
			t.Fatalf("Add error: %v", err)
		}
	}
	list := m.List()
	if len(list) != 5 || m.Len() != 5 {
		t.Fatalf("List len=%d, want 5", len(list))
	}
	for i, d := range list {
		if want := fmt.Sprintf("d-%d", 4-i); d.ID != want {
			t.Fatalf("List[%d] = %s, want %s", i, d.ID, want)
		}
	}
}

func TestFilters(t *testing.T) {
	m := NewDemandManager()
	for _, d := range []*model.Demand{
		newDemand("early", "A", "C", 0),
		newDemand("late", "A", "C", 10),
		newDemand("loaded", "A", "C", 0),
		newDemand("other", "B", "C", 0),
	} {
		if err := m.Add(d, 0); err != nil {
			t.Fatalf("Add error: %v", err)
		}
	}

	if got := ids(m.Pending(0)); got != "[early loaded other]" {
		t.Fatalf("Pending(0) = %s", got)
	}
	if got := ids(m.Pending(10)); got != "[early late loaded other]" {
		t.Fatalf("Pending(10) = %s", got)
	}

	mustOK(t, m.Assign("early", "b1", "S1", 1))
	mustOK(t, m.Assign("loaded", "b1", "S1", 1))
	mustOK(t, m.Start("loaded", 2))
	mustOK(t, m.Assign("other", "b2", "S1", 1))

	if got := ids(m.AssignedToBarge("b1")); got != "[early loaded]" {
		t.Fatalf("AssignedToBarge(b1) = %s", got)
	}
	if got := ids(m.ForLoading("A", "b1")); got != "[early]" {
		t.Fatalf("ForLoading(A,b1) = %s", got)
	}
	if got := ids(m.ForLoading("B", "b1")); got != "[]" {
		t.Fatalf("ForLoading(B,b1) = %s", got)
	}
	if got := ids(m.ForUnloading("C", "b1")); got != "[loaded]" {
		t.Fatalf("ForUnloading(C,b1) = %s", got)
	}

	counts := m.Counts()
	if counts[model.DemandPending] != 1 || counts[model.DemandAssigned] != 2 || counts[model.DemandInProgress] != 1 || counts[model.DemandCompleted] != 0 {
		t.Fatalf("Counts = %v", counts)
	}
}

func TestTransitionsAndSubscribe(t *testing.T) {
	m := NewDemandManager()
	var got []Event
	unsubscribe := m.Subscribe(func(ev Event) { got = append(got, ev) })

	mustOK(t, m.Add(newDemand("d1", "A", "D", 0), 0))
	mustOK(t, m.Assign("d1", "b1", "S1", 0))
	mustOK(t, m.Start("d1", 1))
	mustOK(t, m.Complete("d1", 12))

	if err := m.Complete("d1", 13); !errors.Is(err, model.ErrIllegalTransition) {
		t.Fatalf("second Complete = %v, want ErrIllegalTransition", err)
	}
	if err := m.Start("missing", 1); !errors.Is(err, model.ErrUnknownResource) {
		t.Fatalf("Start(missing) = %v, want ErrUnknownResource", err)
	}

	if len(got) != 4 {
		t.Fatalf("events = %d, want 4", len(got))
	}
	if got[0].Type != EventDemandAdded || got[3].From != model.DemandInProgress || got[3].Demand.Status != model.DemandCompleted || got[3].At != 12 {
		t.Fatalf("unexpected events %+v", got)
	}

	unsubscribe()
	mustOK(t, m.Add(newDemand("d2", "A", "D", 0), 0))
	if len(got) != 4 {
		t.Fatalf("received event after unsubscribe")
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	m := NewDemandManager()
	mustOK(t, m.Add(newDemand("d1", "A", "D", 0), 0))
	mustOK(t, m.Assign("d1", "b1", "S1", 0))
	snap := m.Snapshot()
	*snap[0].AssignmentTime = 99
	snap[0].Status = model.DemandFailed
	if d := m.Get("d1"); *d.AssignmentTime != 0 || d.Status != model.DemandAssigned {
		t.Fatalf("snapshot aliases registry state")
	}
}

func TestConcurrentReads(t *testing.T) {
	m := NewDemandManager()
	for i := range 50 {
		mustOK(t, m.Add(newDemand(fmt.Sprintf("d-%d", i), "A", "B", 0), 0))
	}
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_ = m.Pending(0)
				_ = m.Counts()
			}
		}()
	}
	wg.Wait()
}

func mustOK(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func ids(ds []*model.Demand) string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.ID)
	}
	return fmt.Sprint(out)
}
