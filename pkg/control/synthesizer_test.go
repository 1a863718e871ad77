//nolint:lll // readability
package control

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
)

func TestSynthesizer_rules(t *testing.T) {
	tests := []struct {
		name      string
		rec       model.EnrichedRecord
		wantBrake int
		wantDiff  int
	}{
		{name: "neutral", rec: model.EnrichedRecord{TireDegradationRate: 0.3, PaceTrend: model.PaceStable}, wantBrake: 5, wantDiff: 5},
		{name: "high degradation", rec: model.EnrichedRecord{TireDegradationRate: 0.8, PaceTrend: model.PaceStable}, wantBrake: 7, wantDiff: 5},
		{name: "moderate degradation", rec: model.EnrichedRecord{TireDegradationRate: 0.5, PaceTrend: model.PaceStable}, wantBrake: 6, wantDiff: 5},
		{name: "fresh tires", rec: model.EnrichedRecord{TireDegradationRate: 0.1, PaceTrend: model.PaceStable}, wantBrake: 4, wantDiff: 5},
		{name: "cliff beats pace", rec: model.EnrichedRecord{TireDegradationRate: 0.3, TireCliffRisk: 0.9, PaceTrend: model.PaceImproving}, wantBrake: 5, wantDiff: 7},
		{name: "declining", rec: model.EnrichedRecord{TireDegradationRate: 0.3, PaceTrend: model.PaceDeclining}, wantBrake: 5, wantDiff: 6},
		{name: "improving", rec: model.EnrichedRecord{TireDegradationRate: 0.3, PaceTrend: model.PaceImproving}, wantBrake: 5, wantDiff: 4},
	}
	s := NewSynthesizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Synthesize(10, nil, &tt.rec, model.ControlCommand{BrakeBias: 0, DifferentialSlip: 0})
			assert.Equal(t, tt.wantBrake, got.BrakeBias)
			assert.Equal(t, tt.wantDiff, got.DifferentialSlip)
			assert.NotEmpty(t, got.Rationale)
		})
	}
}

func TestSynthesizer_pitWindowNudge(t *testing.T) {
	s := NewSynthesizer()
	top := &model.Strategy{Name: "one stop", PitLaps: []int{20}}
	rec := &model.EnrichedRecord{TireDegradationRate: 0.8, TireCliffRisk: 0.8}

	got := s.Synthesize(18, top, rec, Neutral())
	assert.Equal(t, 8, got.BrakeBias)
	assert.Equal(t, 8, got.DifferentialSlip)
	assert.Contains(t, got.Rationale, "pit window")

	got = s.Synthesize(17, top, rec, Neutral())
	assert.Equal(t, 7, got.BrakeBias)
	got = s.Synthesize(21, top, rec, Neutral())
	assert.Equal(t, 7, got.BrakeBias)
}

func TestSynthesizer_clamped(t *testing.T) {
	s := NewSynthesizer()
	rec := &model.EnrichedRecord{TireDegradationRate: 1, TireCliffRisk: 1}
	for lap := 1; lap <= 30; lap++ {
		got := s.Synthesize(lap, &model.Strategy{PitLaps: []int{lap}}, rec, Neutral())
		assert.LessOrEqual(t, got.BrakeBias, model.MaxControlValue)
		assert.LessOrEqual(t, got.DifferentialSlip, model.MaxControlValue)
		assert.GreaterOrEqual(t, got.BrakeBias, model.MinControlValue)
	}
}

func TestSynthesizer_continuity(t *testing.T) {
	s := NewSynthesizer()
	top := &model.Strategy{Name: "two stop", PitLaps: []int{30, 45}}
	first := s.Synthesize(10, top,
		&model.EnrichedRecord{Lap: 10, TireDegradationRate: 0.5, TireCliffRisk: 0.1, PaceTrend: model.PaceDeclining},
		Neutral())
	// same classification, different raw values
	second := s.Synthesize(11, top,
		&model.EnrichedRecord{Lap: 11, TireDegradationRate: 0.55, TireCliffRisk: 0.15, PaceTrend: model.PaceDeclining},
		first)
	assert.Equal(t, first, second)
	assert.Equal(t, 6, second.BrakeBias)
	assert.Equal(t, 6, second.DifferentialSlip)
}

func TestInPitWindow(t *testing.T) {
	st := &model.Strategy{PitLaps: []int{20, 40}}
	assert.True(t, InPitWindow(st, 18))
	assert.True(t, InPitWindow(st, 20))
	assert.True(t, InPitWindow(st, 39))
	assert.False(t, InPitWindow(st, 17))
	assert.False(t, InPitWindow(st, 21))
	assert.False(t, InPitWindow(&model.Strategy{}, 1))
}

func TestNeutral(t *testing.T) {
	n := Neutral()
	assert.Equal(t, model.NeutralControlValue, n.BrakeBias)
	assert.Equal(t, model.NeutralControlValue, n.DifferentialSlip)
}
