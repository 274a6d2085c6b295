// core/scenario_loader.go
package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/barge-simulator/model"
)

// Registrar receives the entities of a scenario. The simulator implements it.
type Registrar interface {
	AddTerminal(t *model.Terminal) error
	AddConnection(c model.Connection) error
	AddService(s *model.Service) error
	AddBarge(b *model.Barge) error
	AddDemand(d *model.Demand) error
}

// Format selects the scenario encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFromPath picks the format from the file extension; anything that is
// not .yaml/.yml is read as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Scenario is a small summary of what was loaded.
// It's mainly useful for logging from main().
type Scenario struct {
	Name        string
	TerminalIDs []string
	Connections int
	ServiceIDs  []string
	BargeIDs    []string
	DemandIDs   []string
}

// internal file shapes; keep them unexported so we're free to evolve them.
type scenarioFile struct {
	Name        string           `json:"name" yaml:"name"`
	Terminals   []terminalFile   `json:"terminals" yaml:"terminals"`
	Connections []connectionFile `json:"connections" yaml:"connections"`
	Services    []serviceFile    `json:"services" yaml:"services"`
	Barges      []bargeFile      `json:"barges" yaml:"barges"`
	Demands     []demandFile     `json:"demands" yaml:"demands"`
}

type terminalFile struct {
	ID       string          `json:"id" yaml:"id"`
	Capacity float64         `json:"capacity" yaml:"capacity"`
	Position *model.Position `json:"position,omitempty" yaml:"position,omitempty"`
}

type connectionFile struct {
	From       string   `json:"from" yaml:"from"`
	To         string   `json:"to" yaml:"to"`
	TravelTime float64  `json:"travel_time" yaml:"travel_time"`
	Distance   *float64 `json:"distance,omitempty" yaml:"distance,omitempty"`
	Capacity   *float64 `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	// Bidirectional adds the reverse connection with the same attributes.
	Bidirectional bool `json:"bidirectional,omitempty" yaml:"bidirectional,omitempty"`
}

type legFile struct {
	From     string  `json:"from" yaml:"from"`
	To       string  `json:"to" yaml:"to"`
	Duration float64 `json:"duration" yaml:"duration"`
}

type serviceFile struct {
	ID          string    `json:"id" yaml:"id"`
	Origin      string    `json:"origin" yaml:"origin"`
	Destination string    `json:"destination" yaml:"destination"`
	Legs        []legFile `json:"legs" yaml:"legs"`
	StartTime   float64   `json:"start_time" yaml:"start_time"`
	EndTime     *float64  `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	Capacity    float64   `json:"capacity" yaml:"capacity"`
}

type bargeFile struct {
	ID            string  `json:"id" yaml:"id"`
	Capacity      float64 `json:"capacity" yaml:"capacity"`
	Position      string  `json:"position" yaml:"position"`
	ServiceID     string  `json:"service_id,omitempty" yaml:"service_id,omitempty"`
	CurrentLoad   float64 `json:"current_load,omitempty" yaml:"current_load,omitempty"`
	LoadingRate   float64 `json:"loading_rate,omitempty" yaml:"loading_rate,omitempty"`
	UnloadingRate float64 `json:"unloading_rate,omitempty" yaml:"unloading_rate,omitempty"`
}

type demandFile struct {
	ID               string   `json:"id" yaml:"id"`
	Origin           string   `json:"origin" yaml:"origin"`
	Destination      string   `json:"destination" yaml:"destination"`
	Volume           float64  `json:"volume" yaml:"volume"`
	AvailabilityTime *float64 `json:"availability_time,omitempty" yaml:"availability_time,omitempty"`
	// ArrivalTime is accepted as an alias of AvailabilityTime.
	ArrivalTime  *float64 `json:"arrival_time,omitempty" yaml:"arrival_time,omitempty"`
	DueDate      float64  `json:"due_date" yaml:"due_date"`
	CustomerType string   `json:"customer_type,omitempty" yaml:"customer_type,omitempty"`
	FareClass    string   `json:"fare_class,omitempty" yaml:"fare_class,omitempty"`
}

// LoadScenarioFile opens path and loads it with the format implied by its
// extension.
func LoadScenarioFile(reg Registrar, path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("LoadScenarioFile: %w", err)
	}
	defer f.Close()
	return LoadScenario(reg, f, FormatFromPath(path))
}

// LoadScenario decodes a scenario from r and registers, in order, terminals,
// connections, services, barges and demands. The first registration error
// aborts the load.
func LoadScenario(reg Registrar, r io.Reader, format Format) (*Scenario, error) {
	if reg == nil {
		return nil, fmt.Errorf("LoadScenario: registrar is nil")
	}
	payload, err := decodeScenario(r, format)
	if err != nil {
		return nil, err
	}

	result := &Scenario{
		Name:        payload.Name,
		TerminalIDs: make([]string, 0, len(payload.Terminals)),
		ServiceIDs:  make([]string, 0, len(payload.Services)),
		BargeIDs:    make([]string, 0, len(payload.Barges)),
		DemandIDs:   make([]string, 0, len(payload.Demands)),
	}

	// 1) Terminals
	for _, t := range payload.Terminals {
		if err := reg.AddTerminal(&model.Terminal{ID: t.ID, Capacity: t.Capacity, Position: t.Position}); err != nil {
			return nil, fmt.Errorf("LoadScenario: terminal %q: %w", t.ID, err)
		}
		result.TerminalIDs = append(result.TerminalIDs, t.ID)
	}

	// 2) Connections
	for _, c := range payload.Connections {
		conn := model.Connection{From: c.From, To: c.To, TravelTime: c.TravelTime, Distance: c.Distance, Capacity: c.Capacity}
		if err := reg.AddConnection(conn); err != nil {
			return nil, fmt.Errorf("LoadScenario: connection %s->%s: %w", c.From, c.To, err)
		}
		result.Connections++
		if c.Bidirectional {
			conn.From, conn.To = c.To, c.From
			if err := reg.AddConnection(conn); err != nil {
				return nil, fmt.Errorf("LoadScenario: connection %s->%s: %w", c.To, c.From, err)
			}
			result.Connections++
		}
	}

	// 3) Services
	for _, s := range payload.Services {
		legs := make([]model.Leg, 0, len(s.Legs))
		for _, l := range s.Legs {
			legs = append(legs, model.Leg{From: l.From, To: l.To, Duration: l.Duration})
		}
		svc, err := model.NewService(s.ID, s.Origin, s.Destination, legs, s.StartTime, s.Capacity)
		if err != nil {
			return nil, fmt.Errorf("LoadScenario: %w", err)
		}
		svc.EndTime = s.EndTime
		if err := reg.AddService(svc); err != nil {
			return nil, fmt.Errorf("LoadScenario: service %q: %w", s.ID, err)
		}
		result.ServiceIDs = append(result.ServiceIDs, s.ID)
	}

	// 4) Barges
	for _, b := range payload.Barges {
		barge := &model.Barge{
			ID:            b.ID,
			Capacity:      b.Capacity,
			Position:      b.Position,
			ServiceID:     b.ServiceID,
			CurrentLoad:   b.CurrentLoad,
			LoadingRate:   b.LoadingRate,
			UnloadingRate: b.UnloadingRate,
		}
		if err := reg.AddBarge(barge); err != nil {
			return nil, fmt.Errorf("LoadScenario: barge %q: %w", b.ID, err)
		}
		result.BargeIDs = append(result.BargeIDs, b.ID)
	}

	// 5) Demands
	for _, d := range payload.Demands {
		demand, err := d.toModel()
		if err != nil {
			return nil, fmt.Errorf("LoadScenario: demand %q: %w", d.ID, err)
		}
		if err := reg.AddDemand(demand); err != nil {
			return nil, fmt.Errorf("LoadScenario: demand %q: %w", d.ID, err)
		}
		result.DemandIDs = append(result.DemandIDs, d.ID)
	}

	return result, nil
}

func decodeScenario(r io.Reader, format Format) (*scenarioFile, error) {
	var payload scenarioFile
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&payload); err != nil && err != io.EOF {
			return nil, fmt.Errorf("LoadScenario: %w: yaml decode failed: %v", model.ErrInvalidScenario, err)
		}
	default:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&payload); err != nil {
			return nil, fmt.Errorf("LoadScenario: %w: json decode failed: %v", model.ErrInvalidScenario, err)
		}
	}
	return &payload, nil
}

func (d demandFile) toModel() (*model.Demand, error) {
	avail := 0.0
	switch {
	case d.AvailabilityTime != nil && d.ArrivalTime != nil && *d.AvailabilityTime != *d.ArrivalTime:
		return nil, fmt.Errorf("%w: availability_time %g and arrival_time %g disagree", model.ErrInvalidScenario, *d.AvailabilityTime, *d.ArrivalTime)
	case d.AvailabilityTime != nil:
		avail = *d.AvailabilityTime
	case d.ArrivalTime != nil:
		avail = *d.ArrivalTime
	}
	ct, err := model.ParseCustomerType(d.CustomerType)
	if err != nil {
		return nil, err
	}
	fc, err := model.ParseFareClass(d.FareClass)
	if err != nil {
		return nil, err
	}
	return &model.Demand{
		ID:               d.ID,
		Origin:           d.Origin,
		Destination:      d.Destination,
		Volume:           d.Volume,
		AvailabilityTime: avail,
		DueDate:          d.DueDate,
		CustomerType:     ct,
		FareClass:        fc,
	}, nil
}
