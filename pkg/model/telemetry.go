package model

import (
	"encoding/json"
	"fmt"
)

type (
	Compound  string
	PaceTrend string
	// WeatherImpact classifies the effect of the weather on the current lap
	WeatherImpact string
)

const (
	CompoundSoft         Compound = "soft"
	CompoundMedium       Compound = "medium"
	CompoundHard         Compound = "hard"
	CompoundIntermediate Compound = "intermediate"
	CompoundWet          Compound = "wet"
)

const (
	PaceImproving PaceTrend = "improving"
	PaceStable    PaceTrend = "stable"
	PaceDeclining PaceTrend = "declining"
)

const (
	WeatherLow    WeatherImpact = "low"
	WeatherMedium WeatherImpact = "medium"
	WeatherHigh   WeatherImpact = "high"
)

var Compounds = []Compound{
	CompoundSoft, CompoundMedium, CompoundHard, CompoundIntermediate, CompoundWet,
}

func (c Compound) Valid() bool {
	switch c {
	case CompoundSoft, CompoundMedium, CompoundHard, CompoundIntermediate, CompoundWet:
		return true
	}
	return false
}

func (p PaceTrend) Valid() bool {
	switch p {
	case PaceImproving, PaceStable, PaceDeclining:
		return true
	}
	return false
}

// RawLapSample contains the measurements of one vehicle for a single lap.
// Optional values are pointers, nil means "not transmitted".
//
//nolint:tagliatelle // wire format of the telemetry source
type RawLapSample struct {
	Lap          int      `json:"lap"`
	TotalLaps    int      `json:"total_laps"`
	LapTime      *float64 `json:"lap_time,omitempty"` // seconds
	Speed        float64  `json:"speed"`              // average speed km/h
	MaxSpeed     float64  `json:"max_speed"`
	Throttle     float64  `json:"throttle"` // 0..1
	Brake        float64  `json:"brake"`    // 0..1
	TireCompound Compound `json:"tire_compound"`
	TireAge      int      `json:"tire_age"`
	TrackTemp    float64  `json:"track_temp"` // celsius
	Rain         float64  `json:"rain_probability"`
	FuelLevel    float64  `json:"fuel_level"` // 0..1
	ERS          *float64 `json:"ers,omitempty"`

	// race context fields, optional
	Position    int     `json:"position,omitempty"`
	DriverName  string  `json:"driver_name,omitempty"`
	TrackName   string  `json:"track_name,omitempty"`
	GapToLeader float64 `json:"gap_to_leader,omitempty"`
	GapToAhead  float64 `json:"gap_to_ahead,omitempty"`
}

// PitWindow is transported as [start,end]
type PitWindow struct {
	Start int
	End   int
}

func (w PitWindow) Contains(lap int) bool {
	return lap >= w.Start && lap <= w.End
}

func (w PitWindow) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{w.Start, w.End})
}

func (w *PitWindow) UnmarshalJSON(data []byte) error {
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("pit window needs 2 entries, got %d", len(raw))
	}
	if raw[0] > raw[1] {
		return fmt.Errorf("pit window start %d after end %d", raw[0], raw[1])
	}
	w.Start, w.End = raw[0], raw[1]
	return nil
}

// EnrichedRecord holds the derived indicators for one lap.
// Records are never modified after creation.
//
//nolint:tagliatelle // wire format shared with strategy clients
type EnrichedRecord struct {
	Lap                 int       `json:"lap"`
	TireDegradationRate float64   `json:"tire_degradation_rate"`
	PaceTrend           PaceTrend `json:"pace_trend"`
	TireCliffRisk       float64   `json:"tire_cliff_risk"`
	OptimalPitWindow    PitWindow `json:"optimal_pit_window"`
	PerformanceDelta    float64   `json:"performance_delta"`
}

// Indicators are instantaneous per-lap scores
//
//nolint:tagliatelle // wire format shared with strategy clients
type Indicators struct {
	Lap                   int           `json:"lap"`
	AeroEfficiency        float64       `json:"aero_efficiency"`
	TireDegradationIndex  float64       `json:"tire_degradation_index"`
	ERSCharge             float64       `json:"ers_charge"`
	FuelOptimizationScore float64       `json:"fuel_optimization_score"`
	DriverConsistency     float64       `json:"driver_consistency"`
	WeatherImpact         WeatherImpact `json:"weather_impact"`
}

// LapResult is the outcome of enriching one lap. It is returned by the ingest
// endpoint and forwarded to downstream consumers.
//
//nolint:tagliatelle // wire format shared with strategy clients
type LapResult struct {
	EnrichedTelemetry EnrichedRecord `json:"enriched_telemetry"`
	Indicators        *Indicators    `json:"indicators,omitempty"`
	RaceContext       RaceContext    `json:"race_context"`
}
