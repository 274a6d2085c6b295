package sim

import (
	"math"

	"github.com/signalsfoundry/barge-simulator/internal/sim/assign"
)

// Config holds the tunable policy of a simulation run. Times are in hours.
type Config struct {
	// RecheckInterval is the period of PeriodicCheck events that re-run
	// assignment for stuck pending demands and fail overdue ones.
	// Default: 5. Zero disables the recurring check.
	RecheckInterval float64 `json:"recheck_interval" yaml:"recheck_interval"`

	// StatsInterval is the period of StatisticsCollection samples.
	// Default: 0 (disabled).
	StatsInterval float64 `json:"stats_interval" yaml:"stats_interval"`

	// Assignment tunes candidate scoring.
	Assignment assign.Weights `json:"assignment" yaml:"assignment"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RecheckInterval: 5,
		Assignment:      assign.DefaultWeights(),
	}
}

// ApplyDefaults normalises invalid values: negative or non-finite intervals
// become 0 (disabled) and zero scoring weights take their defaults.
func (c Config) ApplyDefaults() Config {
	c.RecheckInterval = sanitizeInterval(c.RecheckInterval)
	c.StatsInterval = sanitizeInterval(c.StatsInterval)
	c.Assignment.ApplyDefaults()
	return c
}

func sanitizeInterval(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
