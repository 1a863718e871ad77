package model

import (
	"errors"
	"fmt"
)

//nolint:tagliatelle // wire format shared with strategy clients
type (
	RaceInfo struct {
		TrackName        string  `json:"track_name"`
		TotalLaps        int     `json:"total_laps"`
		CurrentLap       int     `json:"current_lap"`
		WeatherCondition string  `json:"weather_condition"`
		TrackTempCelsius float64 `json:"track_temp_celsius"`
	}
	DriverState struct {
		DriverName           string   `json:"driver_name"`
		CurrentPosition      int      `json:"current_position"`
		CurrentTireCompound  Compound `json:"current_tire_compound"`
		TireAgeLaps          int      `json:"tire_age_laps"`
		FuelRemainingPercent float64  `json:"fuel_remaining_percent"`
		GapToLeader          float64  `json:"gap_to_leader"`
		GapToAhead           float64  `json:"gap_to_ahead"`
	}
	Competitor struct {
		Position     int      `json:"position"`
		Driver       string   `json:"driver"`
		TireCompound Compound `json:"tire_compound"`
		TireAgeLaps  int      `json:"tire_age_laps"`
		GapSeconds   float64  `json:"gap_seconds"`
	}
	RaceContext struct {
		RaceInfo    RaceInfo     `json:"race_info"`
		DriverState DriverState  `json:"driver_state"`
		Competitors []Competitor `json:"competitors"`
	}
)

var ErrInvalidRaceContext = errors.New("invalid race context")

// Validate checks the structural constraints of a race context received from a
// client. It does not guess missing values.
func (rc *RaceContext) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidRaceContext, fmt.Sprintf(format, args...))
	}
	if rc.RaceInfo.TotalLaps <= 0 {
		return fail("total_laps must be > 0, got %d", rc.RaceInfo.TotalLaps)
	}
	if rc.RaceInfo.CurrentLap < 0 {
		return fail("current_lap must be >= 0, got %d", rc.RaceInfo.CurrentLap)
	}
	if rc.DriverState.CurrentPosition <= 0 {
		return fail("current_position must be > 0, got %d", rc.DriverState.CurrentPosition)
	}
	if !rc.DriverState.CurrentTireCompound.Valid() {
		return fail("unknown tire compound %q", rc.DriverState.CurrentTireCompound)
	}
	if rc.DriverState.TireAgeLaps < 0 {
		return fail("tire_age_laps must be >= 0, got %d", rc.DriverState.TireAgeLaps)
	}
	if p := rc.DriverState.FuelRemainingPercent; p < 0 || p > 100 {
		return fail("fuel_remaining_percent out of range: %v", p)
	}
	for i := range rc.Competitors {
		if rc.Competitors[i].Position <= 0 {
			return fail("competitor %d has invalid position", i)
		}
	}
	return nil
}
