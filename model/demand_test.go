package model

import (
	"errors"
	"math"
	"testing"
)

func TestDemandLifecycle(t *testing.T) {
	d := &Demand{ID: "d1", Origin: "A", Destination: "D", Volume: 10, DueDate: 20}
	if err := d.Assign("b1", "S1", 0); err != nil {
		t.Fatalf("Assign error: %v", err)
	}
	if err := d.Start(1); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if err := d.Complete(12); err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if !d.OnTime() {
		t.Fatalf("OnTime = false, want true")
	}
	if d.AssignedBarge != "b1" || *d.AssignmentTime != 0 || *d.StartTime != 1 || *d.CompletionTime != 12 {
		t.Fatalf("unexpected timestamps: %+v", d)
	}
	if err := d.Fail(13, "late"); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("Fail after Completed = %v, want ErrIllegalTransition", err)
	}
}

func TestDemandIllegalTransitions(t *testing.T) {
	d := &Demand{ID: "d1"}
	if err := d.Complete(1); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("Pending -> Completed = %v, want ErrIllegalTransition", err)
	}
	if err := d.Start(1); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("Pending -> InProgress = %v, want ErrIllegalTransition", err)
	}
	if err := d.Fail(2, "expired"); err != nil {
		t.Fatalf("Pending -> Failed error: %v", err)
	}
	if err := d.Assign("b", "s", 3); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("Failed -> Assigned = %v, want ErrIllegalTransition", err)
	}
	if d.Status != DemandFailed || d.FailureReason != "expired" {
		t.Fatalf("status = %s reason = %q", d.Status, d.FailureReason)
	}
}

func TestDemandLateCompletionIsNotOnTime(t *testing.T) {
	d := &Demand{ID: "d1", DueDate: 5}
	_ = d.Assign("b", "s", 0)
	_ = d.Start(0)
	_ = d.Complete(6)
	if d.OnTime() {
		t.Fatalf("OnTime = true for completion after due date")
	}
}

func TestDemandValidate(t *testing.T) {
	good := Demand{ID: "d", Origin: "A", Destination: "B", Volume: 1, DueDate: 1}
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	bad := []Demand{
		{Origin: "A", Destination: "B", Volume: 1},
		{ID: "d", Origin: "A", Destination: "A", Volume: 1},
		{ID: "d", Origin: "A", Destination: "B", Volume: 0},
		{ID: "d", Origin: "A", Destination: "B", Volume: 1, AvailabilityTime: 5, DueDate: 4},
		{ID: "d", Origin: "A", Destination: "B", Volume: math.NaN(), DueDate: 1},
		{ID: "d", Origin: "A", Destination: "B", Volume: math.Inf(1), DueDate: 1},
		{ID: "d", Origin: "A", Destination: "B", Volume: 1, AvailabilityTime: math.NaN(), DueDate: 1},
		{ID: "d", Origin: "A", Destination: "B", Volume: 1, DueDate: math.NaN()},
		{ID: "d", Origin: "A", Destination: "B", Volume: 1, DueDate: math.Inf(1)},
	}
	for i, d := range bad {
		if err := d.Validate(); !errors.Is(err, ErrInvalidScenario) {
			t.Fatalf("case %d: Validate = %v, want ErrInvalidScenario", i, err)
		}
	}
}

func TestPriorityRanks(t *testing.T) {
	if !(CustomerRegular.Rank() < CustomerFull.Rank() && CustomerFull.Rank() < CustomerPartial.Rank()) {
		t.Fatalf("customer ranks out of order")
	}
	if CustomerType("").Rank() <= CustomerPartial.Rank() {
		t.Fatalf("unset customer type should rank last")
	}
	if FareExpress.Rank() >= FareStandard.Rank() {
		t.Fatalf("express should rank before standard")
	}
	for in, want := range map[string]CustomerType{"R": CustomerRegular, "full": CustomerFull, " p ": CustomerPartial} {
		got, err := ParseCustomerType(in)
		if err != nil || got != want {
			t.Fatalf("ParseCustomerType(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFareClass("X"); !errors.Is(err, ErrInvalidScenario) {
		t.Fatalf("ParseFareClass(X) = %v, want ErrInvalidScenario", err)
	}
}
