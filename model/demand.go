package model

import (
	"fmt"
	"math"
	"strings"
)

// DemandStatus is the lifecycle state of a transport demand.
type DemandStatus int

const (
	DemandPending DemandStatus = iota
	DemandAssigned
	DemandInProgress
	DemandCompleted
	DemandFailed
)

var demandStatusNames = map[DemandStatus]string{
	DemandPending:    "pending",
	DemandAssigned:   "assigned",
	DemandInProgress: "in_progress",
	DemandCompleted:  "completed",
	DemandFailed:     "failed",
}

func (s DemandStatus) String() string {
	if name, ok := demandStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("DemandStatus(%d)", int(s))
}

// Terminal reports whether the status is absorbing.
func (s DemandStatus) Terminal() bool {
	return s == DemandCompleted || s == DemandFailed
}

// AllDemandStatuses lists statuses in lifecycle order.
func AllDemandStatuses() []DemandStatus {
	return []DemandStatus{DemandPending, DemandAssigned, DemandInProgress, DemandCompleted, DemandFailed}
}

// CustomerType classifies the shipper. Regular customers are served first,
// then fully-spot, then partial-spot.
type CustomerType string

const (
	CustomerRegular CustomerType = "R"
	CustomerFull    CustomerType = "F"
	CustomerPartial CustomerType = "P"
)

// Rank returns the priority rank of the customer type; lower is served first.
// Unknown or empty types rank after every known type.
func (c CustomerType) Rank() int {
	switch c {
	case CustomerRegular:
		return 0
	case CustomerFull:
		return 1
	case CustomerPartial:
		return 2
	default:
		return 3
	}
}

// ParseCustomerType accepts the one-letter codes and the long names.
func ParseCustomerType(s string) (CustomerType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "r", "regular":
		return CustomerRegular, nil
	case "f", "full", "fully-spot":
		return CustomerFull, nil
	case "p", "partial", "partial-spot":
		return CustomerPartial, nil
	}
	return "", fmt.Errorf("%w: unknown customer type %q", ErrInvalidScenario, s)
}

// FareClass distinguishes express from standard cargo.
type FareClass string

const (
	FareExpress  FareClass = "E"
	FareStandard FareClass = "S"
)

// Rank returns the priority rank of the fare class; lower is served first.
func (f FareClass) Rank() int {
	switch f {
	case FareExpress:
		return 0
	case FareStandard:
		return 1
	default:
		return 2
	}
}

// ParseFareClass accepts the one-letter codes and the long names.
func ParseFareClass(s string) (FareClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "e", "express":
		return FareExpress, nil
	case "s", "standard":
		return FareStandard, nil
	}
	return "", fmt.Errorf("%w: unknown fare class %q", ErrInvalidScenario, s)
}

// Demand is a request to move Volume TEU from Origin to Destination, usable
// from AvailabilityTime and due at DueDate.
//
// AssignedBarge is a back-reference only; the barge owns the assignment list.
type Demand struct {
	ID               string
	Origin           string
	Destination      string
	Volume           float64
	AvailabilityTime float64
	DueDate          float64
	CustomerType     CustomerType
	FareClass        FareClass

	Status          DemandStatus
	AssignedBarge   string
	AssignedService string

	AssignmentTime *float64
	StartTime      *float64
	CompletionTime *float64
	FailureTime    *float64
	FailureReason  string
}

// Validate checks static fields of the demand.
func (d *Demand) Validate() error {
	switch {
	case d.ID == "":
		return fmt.Errorf("%w: demand with empty id", ErrInvalidScenario)
	case d.Origin == "" || d.Destination == "":
		return fmt.Errorf("%w: demand %q missing origin or destination", ErrInvalidScenario, d.ID)
	case d.Origin == d.Destination:
		return fmt.Errorf("%w: demand %q has identical origin and destination", ErrInvalidScenario, d.ID)
	case !(d.Volume > 0) || math.IsInf(d.Volume, 0):
		return fmt.Errorf("%w: demand %q volume %g must be positive and finite", ErrInvalidScenario, d.ID, d.Volume)
	case !(d.AvailabilityTime >= 0) || math.IsInf(d.AvailabilityTime, 0):
		return fmt.Errorf("%w: demand %q availability time %g must be finite and non-negative", ErrInvalidScenario, d.ID, d.AvailabilityTime)
	case math.IsNaN(d.DueDate) || math.IsInf(d.DueDate, 0):
		return fmt.Errorf("%w: demand %q due date %g is not finite", ErrInvalidScenario, d.ID, d.DueDate)
	case d.DueDate < d.AvailabilityTime:
		return fmt.Errorf("%w: demand %q due date precedes availability", ErrInvalidScenario, d.ID)
	}
	return nil
}

// IsExpress reports whether the demand travels on the express fare class.
func (d *Demand) IsExpress() bool { return d.FareClass == FareExpress }

// Assign moves the demand from Pending to Assigned.
func (d *Demand) Assign(bargeID, serviceID string, at float64) error {
	if d.Status != DemandPending {
		return d.illegal(DemandAssigned)
	}
	d.Status = DemandAssigned
	d.AssignedBarge = bargeID
	d.AssignedService = serviceID
	d.AssignmentTime = &at
	return nil
}

// Start moves the demand from Assigned to InProgress once it is loaded.
func (d *Demand) Start(at float64) error {
	if d.Status != DemandAssigned {
		return d.illegal(DemandInProgress)
	}
	d.Status = DemandInProgress
	d.StartTime = &at
	return nil
}

// Complete moves the demand from InProgress to Completed once it is unloaded.
func (d *Demand) Complete(at float64) error {
	if d.Status != DemandInProgress {
		return d.illegal(DemandCompleted)
	}
	d.Status = DemandCompleted
	d.CompletionTime = &at
	return nil
}

// Fail moves any non-terminal demand to Failed.
func (d *Demand) Fail(at float64, reason string) error {
	if d.Status.Terminal() {
		return d.illegal(DemandFailed)
	}
	d.Status = DemandFailed
	d.FailureTime = &at
	d.FailureReason = reason
	return nil
}

// OnTime reports whether the demand completed no later than its due date.
func (d *Demand) OnTime() bool {
	return d.Status == DemandCompleted && d.CompletionTime != nil && *d.CompletionTime <= d.DueDate
}

// Clone returns a deep copy suitable for snapshots.
func (d *Demand) Clone() *Demand {
	if d == nil {
		return nil
	}
	cp := *d
	cp.AssignmentTime = cloneFloat(d.AssignmentTime)
	cp.StartTime = cloneFloat(d.StartTime)
	cp.CompletionTime = cloneFloat(d.CompletionTime)
	cp.FailureTime = cloneFloat(d.FailureTime)
	return &cp
}

func (d *Demand) illegal(to DemandStatus) error {
	return fmt.Errorf("%w: demand %q %s -> %s", ErrIllegalTransition, d.ID, d.Status, to)
}

func (d *Demand) String() string {
	return fmt.Sprintf("Demand %s: %s -> %s, volume=%g, status=%s", d.ID, d.Origin, d.Destination, d.Volume, d.Status)
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
