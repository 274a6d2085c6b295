package assign

import (
	"cmp"
	"slices"

	"github.com/signalsfoundry/barge-simulator/model"
)

// Weights tunes the candidate score. Lower scores win.
type Weights struct {
	// Arrival multiplies the planned arrival time at the destination.
	Arrival float64 `json:"arrival" yaml:"arrival"`
	// UnusedCapacity multiplies the share of barge capacity left free after
	// loading the demand.
	UnusedCapacity float64 `json:"unused_capacity" yaml:"unused_capacity"`
	// RouteLength multiplies the number of legs between origin and destination.
	RouteLength float64 `json:"route_length" yaml:"route_length"`
	// ExpressPenalty is added unless the demand is express and travels at
	// most ExpressShortRouteStops legs.
	ExpressPenalty         float64 `json:"express_penalty" yaml:"express_penalty"`
	ExpressShortRouteStops int     `json:"express_short_route_stops" yaml:"express_short_route_stops"`
}

// DefaultWeights returns the stock scoring policy.
func DefaultWeights() Weights {
	return Weights{
		Arrival:                10,
		UnusedCapacity:         5,
		RouteLength:            3,
		ExpressPenalty:         5,
		ExpressShortRouteStops: 3,
	}
}

// ApplyDefaults fills zero-valued weights from DefaultWeights. A caller that
// really wants a zero weight can set it to a tiny value instead.
func (w *Weights) ApplyDefaults() {
	def := DefaultWeights()
	if w.Arrival == 0 {
		w.Arrival = def.Arrival
	}
	if w.UnusedCapacity == 0 {
		w.UnusedCapacity = def.UnusedCapacity
	}
	if w.RouteLength == 0 {
		w.RouteLength = def.RouteLength
	}
	if w.ExpressPenalty == 0 {
		w.ExpressPenalty = def.ExpressPenalty
	}
	if w.ExpressShortRouteStops == 0 {
		w.ExpressShortRouteStops = def.ExpressShortRouteStops
	}
}

// Score rates placing d on barge b with the given planned arrival and leg
// count.
func (w Weights) Score(d *model.Demand, b *model.Barge, arrival float64, stops int) float64 {
	unused := 0.0
	if b.Capacity > 0 {
		unused = (b.Available() - d.Volume) / b.Capacity
	}
	penalty := w.ExpressPenalty
	if d.IsExpress() && stops <= w.ExpressShortRouteStops {
		penalty = 0
	}
	return arrival*w.Arrival + unused*w.UnusedCapacity + float64(stops)*w.RouteLength + penalty
}

// SortByPriority orders demands regular before fully-spot before
// partial-spot, then express before standard, then larger volume first.
// Equal keys keep their input order.
func SortByPriority(ds []*model.Demand) {
	slices.SortStableFunc(ds, comparePriority)
}

func comparePriority(a, b *model.Demand) int {
	if c := cmp.Compare(a.CustomerType.Rank(), b.CustomerType.Rank()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.FareClass.Rank(), b.FareClass.Rank()); c != 0 {
		return c
	}
	return cmp.Compare(b.Volume, a.Volume)
}
