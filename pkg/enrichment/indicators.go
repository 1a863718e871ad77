package enrichment

import (
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
)

// per lap tire wear used for the cumulative degradation index
var wearPerLap = map[model.Compound]float64{
	model.CompoundSoft:         0.012,
	model.CompoundMedium:       0.008,
	model.CompoundHard:         0.006,
	model.CompoundIntermediate: 0.015,
	model.CompoundWet:          0.02,
}

const (
	speedReference  = 330.0 // km/h
	consistencyNorm = 30.0 * 30.0
)

// indicators expects the lap speed already recorded in the state.
func (e *Enricher) indicators(s *model.RawLapSample) model.Indicators {
	return model.Indicators{
		Lap:                   s.Lap,
		AeroEfficiency:        round3(aeroEfficiency(s)),
		TireDegradationIndex:  round3(e.accumulateWear(s)),
		ERSCharge:             round3(ersCharge(s)),
		FuelOptimizationScore: round3(fuelOptimization(s)),
		DriverConsistency:     round3(consistency(e.state.Speeds)),
		WeatherImpact:         weatherImpact(s),
	}
}

func aeroEfficiency(s *model.RawLapSample) float64 {
	speedN := clamp01(s.Speed / speedReference)
	return clamp01(0.5*speedN + 0.2*s.Throttle - 0.4*s.Brake)
}

func (e *Enricher) accumulateWear(s *model.RawLapSample) float64 {
	base, ok := wearPerLap[s.TireCompound]
	if !ok {
		base = wearPerLap[model.CompoundMedium]
	}
	tempFactor := 1.0
	switch {
	case s.TrackTemp > 42:
		tempFactor = 1.25
	case s.TrackTemp < 15:
		tempFactor = 0.9
	}
	stress := 0.5 + 0.5*s.Throttle + 0.2*max(0, (s.Speed-250)/100)
	e.state.CumulativeWear = min(1, e.state.CumulativeWear+base*stress*tempFactor)
	return e.state.CumulativeWear
}

func ersCharge(s *model.RawLapSample) float64 {
	if s.ERS != nil {
		return clamp01(*s.ERS + 0.1*s.Brake - 0.05*s.Throttle)
	}
	return clamp01(0.6 + 0.05*s.Brake - 0.03*s.Throttle)
}

// fuelOptimization rewards moderate throttle on low fuel and pushing on high fuel.
func fuelOptimization(s *model.RawLapSample) float64 {
	ideal := 0.5 + 0.4*clamp01(s.FuelLevel)
	d := s.Throttle - ideal
	if d < 0 {
		d = -d
	}
	return clamp01(1 - d)
}

func consistency(speeds []float64) float64 {
	recent := speeds[max(len(speeds)-5, 0):]
	if len(recent) == 0 {
		return 0.5
	}
	m := mean(recent)
	variance := 0.0
	for _, v := range recent {
		variance += (v - m) * (v - m)
	}
	variance /= float64(len(recent))
	return clamp01(1 - min(1, variance/consistencyNorm))
}

func weatherImpact(s *model.RawLapSample) model.WeatherImpact {
	score := 0.7 * s.Rain
	if s.TrackTemp < 12 {
		score += 0.2
	}
	if s.TrackTemp > 45 {
		score += 0.2
	}
	switch {
	case score < 0.3:
		return model.WeatherLow
	case score < 0.6:
		return model.WeatherMedium
	default:
		return model.WeatherHigh
	}
}
