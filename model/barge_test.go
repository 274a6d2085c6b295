package model

import (
	"errors"
	"math"
	"testing"
)

func TestBargeReserveAndLoad(t *testing.T) {
	b := &Barge{ID: "b1", Capacity: 100, Position: "A"}
	if err := b.Reserve("d1", 60); err != nil {
		t.Fatalf("Reserve d1 error: %v", err)
	}
	if b.CanAccept(60) {
		t.Fatalf("CanAccept(60) = true with 60 of 100 reserved")
	}
	if err := b.Reserve("d2", 60); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("Reserve d2 = %v, want ErrCapacityExceeded", err)
	}
	if err := b.Load(60); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if b.CurrentLoad != 60 || b.Reserved != 0 || b.Committed() != 60 {
		t.Fatalf("load=%g reserved=%g", b.CurrentLoad, b.Reserved)
	}
	if err := b.Unload("d1", 60); err != nil {
		t.Fatalf("Unload error: %v", err)
	}
	if b.CurrentLoad != 0 || len(b.AssignedDemands) != 0 {
		t.Fatalf("after unload: load=%g assigned=%v", b.CurrentLoad, b.AssignedDemands)
	}
	if err := b.Unload("d1", 1); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("Unload from empty barge = %v, want ErrCapacityExceeded", err)
	}
}

func TestBargeUnreserve(t *testing.T) {
	b := &Barge{ID: "b1", Capacity: 100, Position: "A"}
	_ = b.Reserve("d1", 40)
	b.Unreserve("d1", 40)
	if b.Reserved != 0 || len(b.AssignedDemands) != 0 {
		t.Fatalf("reserved=%g assigned=%v", b.Reserved, b.AssignedDemands)
	}
}

func TestBargeStateMachine(t *testing.T) {
	b := &Barge{ID: "b1", Capacity: 100, Position: "A"}
	if err := b.Arrive("B", 4); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("Arrive while idle = %v, want ErrIllegalTransition", err)
	}
	if err := b.Depart("B"); err != nil {
		t.Fatalf("Depart error: %v", err)
	}
	if err := b.BeginLoading(); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("BeginLoading while moving = %v, want ErrIllegalTransition", err)
	}
	if err := b.Arrive("B", 4); err != nil {
		t.Fatalf("Arrive error: %v", err)
	}
	if b.Position != "B" || b.Status != BargeIdle || b.DistanceTraveled != 4 {
		t.Fatalf("after arrive: %s distance=%g", b, b.DistanceTraveled)
	}
	if err := b.BeginUnloading(); err != nil {
		t.Fatalf("BeginUnloading error: %v", err)
	}
	if err := b.Depart("C"); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("Depart while unloading = %v, want ErrIllegalTransition", err)
	}
	if err := b.FinishHandling(); err != nil {
		t.Fatalf("FinishHandling error: %v", err)
	}
	if err := b.FinishHandling(); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("FinishHandling while idle = %v, want ErrIllegalTransition", err)
	}
}

func TestBargeHandlingDurations(t *testing.T) {
	b := &Barge{ID: "b1", Capacity: 100, LoadingRate: 10, UnloadingRate: 15}
	if got := b.LoadingDuration(30); got != 3 {
		t.Fatalf("LoadingDuration(30) = %g, want 3", got)
	}
	if got := b.UnloadingDuration(30); got != 2 {
		t.Fatalf("UnloadingDuration(30) = %g, want 2", got)
	}
	instant := &Barge{ID: "b2", Capacity: 100}
	if got := instant.LoadingDuration(30); got != 0 {
		t.Fatalf("LoadingDuration with unset rate = %g, want 0", got)
	}
}

func TestBargeValidate(t *testing.T) {
	bad := []Barge{
		{Capacity: 1, Position: "A"},
		{ID: "b", Capacity: 0, Position: "A"},
		{ID: "b", Capacity: 10, CurrentLoad: 11, Position: "A"},
		{ID: "b", Capacity: 10},
		{ID: "b", Capacity: 10, Position: "A", LoadingRate: -1},
		{ID: "b", Capacity: math.NaN(), Position: "A"},
		{ID: "b", Capacity: math.Inf(1), Position: "A"},
		{ID: "b", Capacity: 10, CurrentLoad: math.NaN(), Position: "A"},
		{ID: "b", Capacity: 10, Position: "A", UnloadingRate: math.NaN()},
	}
	for i, b := range bad {
		if err := b.Validate(); !errors.Is(err, ErrInvalidScenario) {
			t.Fatalf("case %d: Validate = %v, want ErrInvalidScenario", i, err)
		}
	}
}
