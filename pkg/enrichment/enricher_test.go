//nolint:lll,funlen // readability
package enrichment

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
)

func ptr(v float64) *float64 { return &v }

func TestNormalize(t *testing.T) {
	got := Normalize(map[string]any{
		"LapNumber": "3",
		"TotalLaps": 51.0,
		"Speed":     250.5,
		"Brakes":    1.4,
		"Compound":  "INTER",
		"rainfall":  true,
		"lap_time":  "0 days 00:01:24.123000",
		"ERS":       nil,
	})
	assert.Equal(t, 3, got.Lap)
	assert.Equal(t, 51, got.TotalLaps)
	assert.Equal(t, 250.5, got.Speed)
	assert.Equal(t, 1.0, got.Brake)
	assert.Equal(t, model.CompoundIntermediate, got.TireCompound)
	assert.Equal(t, 1.0, got.Rain)
	assert.Equal(t, DefaultTrackTemp, got.TrackTemp)
	assert.Equal(t, DefaultFuelLevel, got.FuelLevel)
	assert.Nil(t, got.ERS)
	require.NotNil(t, got.LapTime)
	assert.InDelta(t, 84.123, *got.LapTime, 1e-9)
}

func TestNormalize_defaults(t *testing.T) {
	got := Normalize(map[string]any{
		"lap":           "abc",
		"throttle":      -0.3,
		"tire_compound": "slick",
		"fuel_level":    "bad",
	})
	assert.Equal(t, 0, got.Lap)
	assert.Equal(t, 0.0, got.Throttle)
	assert.Equal(t, model.CompoundMedium, got.TireCompound)
	assert.Equal(t, DefaultFuelLevel, got.FuelLevel)
	assert.Nil(t, got.LapTime)
}

func TestNormalize_nonFinite(t *testing.T) {
	for _, v := range []string{"NaN", "Inf", "-Inf", "+Inf"} {
		t.Run(v, func(t *testing.T) {
			sample := Normalize(map[string]any{
				"lap":              3,
				"lap_time":         v,
				"speed":            v,
				"max_speed":        v,
				"throttle":         v,
				"brake":            v,
				"fuel_level":       v,
				"ers":              v,
				"track_temp":       v,
				"rain_probability": v,
				"gap_to_leader":    v,
			})
			assert.Nil(t, sample.LapTime)
			assert.Equal(t, 0.0, sample.Speed)
			assert.Equal(t, 0.0, sample.Throttle)
			assert.Equal(t, DefaultFuelLevel, sample.FuelLevel)
			assert.Equal(t, DefaultTrackTemp, sample.TrackTemp)

			e := NewEnricher()
			var res model.LapResult
			for i := 0; i < 3; i++ {
				res = e.Enrich(sample)
			}
			_, err := json.Marshal(res)
			require.NoError(t, err)
			ind := res.Indicators
			for name, f := range map[string]float64{
				"aero":        ind.AeroEfficiency,
				"degradation": ind.TireDegradationIndex,
				"ers":         ind.ERSCharge,
				"fuel":        ind.FuelOptimizationScore,
				"consistency": ind.DriverConsistency,
				"cliff":       res.EnrichedTelemetry.TireCliffRisk,
				"rate":        res.EnrichedTelemetry.TireDegradationRate,
			} {
				assert.GreaterOrEqual(t, f, 0.0, name)
				assert.LessOrEqual(t, f, 1.0, name)
			}
		})
	}
}

func TestParseLapTime(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   float64
		wantOk bool
	}{
		{name: "seconds", in: 83.5, want: 83.5, wantOk: true},
		{name: "seconds string", in: "83.5", want: 83.5, wantOk: true},
		{name: "minutes", in: "1:23.456", want: 83.456, wantOk: true},
		{name: "hours", in: "1:00:01.5", want: 3601.5, wantOk: true},
		{name: "timedelta", in: "0 days 00:01:30.000000", want: 90, wantOk: true},
		{name: "garbage", in: "fast", wantOk: false},
		{name: "zero", in: 0.0, wantOk: false},
		{name: "wrong type", in: []int{1}, wantOk: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLapTime(tt.in)
			assert.Equal(t, tt.wantOk, ok)
			if tt.wantOk {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func Test_degradationRate(t *testing.T) {
	tests := []struct {
		name     string
		compound model.Compound
		age      int
		temp     float64
		want     float64
	}{
		{name: "medium normal", compound: model.CompoundMedium, age: 10, temp: 30, want: 0.2},
		{name: "soft hot", compound: model.CompoundSoft, age: 10, temp: 50, want: 0.36},
		{name: "hard cold", compound: model.CompoundHard, age: 10, temp: 10, want: 0.135},
		{name: "medium aged", compound: model.CompoundMedium, age: 30, temp: 30, want: 0.9},
		{name: "clamped", compound: model.CompoundSoft, age: 40, temp: 30, want: 1},
		{name: "fresh", compound: model.CompoundWet, age: 0, temp: 30, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, degradationRate(tt.compound, tt.age, tt.temp), 1e-9)
		})
	}
}

func Test_paceTrend(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want model.PaceTrend
	}{
		{name: "empty", in: nil, want: model.PaceStable},
		{name: "too few", in: []float64{90, 95}, want: model.PaceStable},
		{name: "improving", in: []float64{90, 90, 89}, want: model.PaceImproving},
		{name: "stable", in: []float64{90, 90.2, 90.4}, want: model.PaceStable},
		{name: "declining", in: []float64{90, 91, 92}, want: model.PaceDeclining},
		{name: "uses last five", in: []float64{80, 80, 100, 90, 90, 90, 91}, want: model.PaceImproving},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, paceTrend(tt.in))
		})
	}
}

func Test_cliffRisk(t *testing.T) {
	assert.Equal(t, 0.0, cliffRisk(model.CompoundMedium, 10))
	assert.Equal(t, 0.0, cliffRisk(model.CompoundMedium, 20))
	assert.InDelta(t, 0.5, cliffRisk(model.CompoundMedium, 25), 1e-9)
	assert.Equal(t, 1.0, cliffRisk(model.CompoundMedium, 30))
	assert.Equal(t, 1.0, cliffRisk(model.CompoundSoft, 40))
	assert.InDelta(t, 0.3, cliffRisk(model.CompoundHard, 33), 1e-9)
}

func Test_pitWindow(t *testing.T) {
	tests := []struct {
		name  string
		lap   int
		total int
		age   int
		risk  float64
		want  model.PitWindow
	}{
		{name: "estimate", lap: 10, total: 50, age: 10, risk: 0, want: model.PitWindow{Start: 22, End: 27}},
		{name: "urgent", lap: 10, total: 50, age: 28, risk: 0.8, want: model.PitWindow{Start: 11, End: 13}},
		{name: "soon", lap: 10, total: 50, age: 25, risk: 0.5, want: model.PitWindow{Start: 13, End: 16}},
		{name: "capped end", lap: 24, total: 30, age: 28, risk: 0.8, want: model.PitWindow{Start: 25, End: 25}},
		{name: "start follows end", lap: 12, total: 20, age: 28, risk: 0.5, want: model.PitWindow{Start: 15, End: 15}},
		{name: "race end", lap: 47, total: 50, age: 28, risk: 0.8, want: model.PitWindow{Start: 48, End: 48}},
		{name: "last lap", lap: 50, total: 50, age: 10, risk: 0, want: model.PitWindow{Start: 51, End: 51}},
		{name: "unknown total", lap: 10, total: 0, age: 30, risk: 0, want: model.PitWindow{Start: 11, End: 12}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pitWindow(tt.lap, tt.total, model.CompoundMedium, tt.age, tt.risk)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("pitWindow() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEnricher_Process_bounds(t *testing.T) {
	for _, c := range model.Compounds {
		t.Run(string(c), func(t *testing.T) {
			e := NewEnricher()
			prev := -1.0
			for lap := 1; lap <= 60; lap++ {
				rec := e.Process(model.RawLapSample{
					Lap: lap, TotalLaps: 60, TireCompound: c, TireAge: lap,
					TrackTemp: 48, LapTime: ptr(90 + float64(lap%3)),
				})
				assert.GreaterOrEqual(t, rec.TireDegradationRate, 0.0)
				assert.LessOrEqual(t, rec.TireDegradationRate, 1.0)
				assert.GreaterOrEqual(t, rec.TireCliffRisk, 0.0)
				assert.LessOrEqual(t, rec.TireCliffRisk, 1.0)
				assert.LessOrEqual(t, rec.OptimalPitWindow.Start, rec.OptimalPitWindow.End)
				assert.LessOrEqual(t, rec.PerformanceDelta, 0.0)
				assert.GreaterOrEqual(t, rec.TireDegradationRate, prev, "lap %d", lap)
				prev = rec.TireDegradationRate
			}
			assert.Len(t, e.State().LapTimes, historySize)
			assert.Len(t, e.State().Speeds, historySize)
		})
	}
}

func TestEnricher_Enrich_unknownTotalLaps(t *testing.T) {
	tests := []struct {
		name string
		lap  int
		want model.PitWindow
	}{
		{name: "fresh tires", lap: 10, want: model.PitWindow{Start: 41, End: 45}},
		{name: "late in race", lap: 48, want: model.PitWindow{Start: 49, End: 49}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewEnricher().Enrich(model.RawLapSample{
				Lap: tt.lap, TireCompound: model.CompoundHard, TireAge: 1,
			})
			assert.Equal(t, 50, res.RaceContext.RaceInfo.TotalLaps)
			assert.Equal(t, tt.want, res.EnrichedTelemetry.OptimalPitWindow)
		})
	}
}

func TestEnricher_Process_delta(t *testing.T) {
	e := NewEnricher()
	deltas := []float64{}
	for i, lt := range []*float64{ptr(90), ptr(89), ptr(91), nil, ptr(88.5)} {
		rec := e.Process(model.RawLapSample{Lap: i + 1, LapTime: lt, TireCompound: model.CompoundSoft})
		deltas = append(deltas, rec.PerformanceDelta)
	}
	assert.Equal(t, []float64{0, 0, -2, 0, 0}, deltas)
	st := e.State()
	require.NotNil(t, st.BestLap)
	assert.Equal(t, 88.5, *st.BestLap)
	assert.Len(t, st.LapTimes, 4)
}

func TestEnricher_tireAge(t *testing.T) {
	e := NewEnricher()
	e.Process(model.RawLapSample{Lap: 1, TireCompound: model.CompoundSoft})
	e.Process(model.RawLapSample{Lap: 2, TireCompound: model.CompoundSoft})
	assert.Equal(t, 2, e.State().TireAge)
	e.Process(model.RawLapSample{Lap: 3, TireCompound: model.CompoundHard})
	assert.Equal(t, 1, e.State().TireAge)
	e.Process(model.RawLapSample{Lap: 4, TireCompound: model.CompoundHard, TireAge: 7})
	assert.Equal(t, 7, e.State().TireAge)
}

func TestEnricher_Enrich_rawSample(t *testing.T) {
	e := NewEnricher()
	res := e.Enrich(Normalize(map[string]any{
		"lap":           1,
		"speed":         250,
		"throttle":      0.8,
		"brake":         0.1,
		"tire_compound": "medium",
		"fuel_level":    0.6,
	}))
	require.NotNil(t, res.Indicators)
	ind := res.Indicators
	for name, v := range map[string]float64{
		"aero":        ind.AeroEfficiency,
		"degradation": ind.TireDegradationIndex,
		"ers":         ind.ERSCharge,
		"fuel":        ind.FuelOptimizationScore,
		"consistency": ind.DriverConsistency,
	} {
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 1.0, name)
	}
	assert.Contains(t, []model.WeatherImpact{model.WeatherLow, model.WeatherMedium, model.WeatherHigh}, ind.WeatherImpact)
	assert.Equal(t, 1, res.EnrichedTelemetry.Lap)
	assert.Equal(t, model.PaceStable, res.EnrichedTelemetry.PaceTrend)
	assert.NoError(t, res.RaceContext.Validate())
	assert.Equal(t, 60.0, res.RaceContext.DriverState.FuelRemainingPercent)
}

func TestEnricher_Indicators_cumulative(t *testing.T) {
	e := NewEnricher()
	prev := 0.0
	for lap := 1; lap <= 200; lap++ {
		ind := e.Indicators(model.RawLapSample{Lap: lap, Speed: 300, Throttle: 1, TireCompound: model.CompoundWet, TrackTemp: 50})
		assert.GreaterOrEqual(t, ind.TireDegradationIndex, prev)
		assert.LessOrEqual(t, ind.TireDegradationIndex, 1.0)
		prev = ind.TireDegradationIndex
	}
	assert.Equal(t, 1.0, prev)
}

func Test_weatherImpact(t *testing.T) {
	assert.Equal(t, model.WeatherLow, weatherImpact(&model.RawLapSample{TrackTemp: 25}))
	assert.Equal(t, model.WeatherMedium, weatherImpact(&model.RawLapSample{TrackTemp: 25, Rain: 0.5}))
	assert.Equal(t, model.WeatherHigh, weatherImpact(&model.RawLapSample{TrackTemp: 50, Rain: 0.8}))
}

func Test_consistency(t *testing.T) {
	assert.Equal(t, 0.5, consistency(nil))
	assert.Equal(t, 1.0, consistency([]float64{200, 200, 200}))
	assert.Equal(t, 0.0, consistency([]float64{100, 200}))
}

func TestEnricher_Reset(t *testing.T) {
	e := NewEnricher()
	e.Enrich(model.RawLapSample{Lap: 1, LapTime: ptr(90), TireCompound: model.CompoundSoft})
	e.Reset()
	e.Reset()
	assert.Equal(t, State{}, e.State())
}
