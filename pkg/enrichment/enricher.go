package enrichment

import (
	"math"
	"sync"

	"github.com/mpapenbr/iracelog-strategy-service-go/log"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
)

const (
	historySize      = 10
	paceWindow       = 5
	paceThreshold    = 0.5
	agingStartLap    = 20
	agingPerLap      = 0.05
	defaultTotalLaps = 50
)

var (
	degradationBase = map[model.Compound]float64{
		model.CompoundSoft:         0.030,
		model.CompoundMedium:       0.020,
		model.CompoundHard:         0.015,
		model.CompoundIntermediate: 0.025,
		model.CompoundWet:          0.022,
	}
	cliffLap = map[model.Compound]int{
		model.CompoundSoft:         15,
		model.CompoundMedium:       25,
		model.CompoundHard:         35,
		model.CompoundIntermediate: 20,
		model.CompoundWet:          18,
	}
)

// State is a snapshot of the enricher's per-session state.
//
//nolint:tagliatelle // diagnostics output
type State struct {
	LapTimes       []float64      `json:"lap_times"`
	Speeds         []float64      `json:"speeds"`
	Compound       model.Compound `json:"compound"`
	TireAge        int            `json:"tire_age"`
	BestLap        *float64       `json:"best_lap,omitempty"`
	TotalLaps      int            `json:"total_laps"`
	LastLap        int            `json:"last_lap"`
	CumulativeWear float64        `json:"cumulative_wear"`
}

// Enricher derives per-lap indicators from raw samples. It keeps state across
// laps of one session and is safe for concurrent use.
type Enricher struct {
	mu     sync.Mutex
	logger *log.Logger
	state  State
}

type Option func(e *Enricher)

func WithLogger(l *log.Logger) Option {
	return func(e *Enricher) {
		e.logger = l
	}
}

func NewEnricher(opts ...Option) *Enricher {
	ret := &Enricher{logger: log.Default().Named("enrichment")}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Process computes the enriched record for a lap and updates the state.
func (e *Enricher) Process(sample model.RawLapSample) model.EnrichedRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.process(&sample)
}

// Indicators computes the instantaneous lap indicators. It accumulates tire
// wear and records the lap speed for the consistency score.
func (e *Enricher) Indicators(sample model.RawLapSample) model.Indicators {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pushSpeed(sample.Speed)
	return e.indicators(&sample)
}

// Enrich computes record, indicators and the race context of a lap in one step.
func (e *Enricher) Enrich(sample model.RawLapSample) model.LapResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.process(&sample)
	ind := e.indicators(&sample)
	return model.LapResult{
		EnrichedTelemetry: rec,
		Indicators:        &ind,
		RaceContext:       e.raceContext(&sample),
	}
}

func (e *Enricher) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = State{}
	e.logger.Debug("enricher state reset")
}

func (e *Enricher) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	ret := e.state
	ret.LapTimes = append([]float64(nil), e.state.LapTimes...)
	ret.Speeds = append([]float64(nil), e.state.Speeds...)
	if e.state.BestLap != nil {
		b := *e.state.BestLap
		ret.BestLap = &b
	}
	return ret
}

func (e *Enricher) process(s *model.RawLapSample) model.EnrichedRecord {
	st := &e.state
	if s.TotalLaps > 0 {
		st.TotalLaps = s.TotalLaps
	}
	e.updateTires(s)
	e.pushSpeed(s.Speed)

	delta := 0.0
	if s.LapTime != nil && *s.LapTime > 0 {
		lt := *s.LapTime
		st.LapTimes = pushCapped(st.LapTimes, lt)
		if st.BestLap == nil || lt < *st.BestLap {
			best := lt
			st.BestLap = &best
		}
		delta = *st.BestLap - lt
	}
	st.LastLap = s.Lap

	risk := cliffRisk(st.Compound, st.TireAge)
	return model.EnrichedRecord{
		Lap:                 s.Lap,
		TireDegradationRate: round3(degradationRate(st.Compound, st.TireAge, s.TrackTemp)),
		PaceTrend:           paceTrend(st.LapTimes),
		TireCliffRisk:       round3(risk),
		OptimalPitWindow:    pitWindow(s.Lap, e.totalLaps(s.Lap), st.Compound, st.TireAge, risk),
		PerformanceDelta:    round3(delta),
	}
}

// updateTires takes the tire age from the sample. Without one the age is
// derived from the previous lap: a compound change means fresh tires.
func (e *Enricher) updateTires(s *model.RawLapSample) {
	st := &e.state
	compound := s.TireCompound
	if !compound.Valid() {
		compound = model.CompoundMedium
	}
	switch {
	case s.TireAge > 0:
		st.TireAge = s.TireAge
	case st.Compound != "" && st.Compound != compound:
		e.logger.Debug("compound change detected",
			log.String("from", string(st.Compound)),
			log.String("to", string(compound)))
		st.TireAge = 1
	case st.LastLap > 0 && s.Lap > st.LastLap:
		st.TireAge += s.Lap - st.LastLap
	case st.TireAge == 0:
		st.TireAge = max(s.Lap, 1)
	}
	st.Compound = compound
}

func (e *Enricher) pushSpeed(speed float64) {
	e.state.Speeds = pushCapped(e.state.Speeds, speed)
}

// totalLaps is the race length used for the pit window and the race context.
func (e *Enricher) totalLaps(lap int) int {
	if e.state.TotalLaps > 0 {
		return e.state.TotalLaps
	}
	return max(defaultTotalLaps, lap)
}

func (e *Enricher) raceContext(s *model.RawLapSample) model.RaceContext {
	total := e.totalLaps(s.Lap)
	weather := "Dry"
	if s.Rain >= 0.5 {
		weather = "Wet"
	}
	track := s.TrackName
	if track == "" {
		track = "unknown"
	}
	driver := s.DriverName
	if driver == "" {
		driver = "driver"
	}
	return model.RaceContext{
		RaceInfo: model.RaceInfo{
			TrackName:        track,
			TotalLaps:        total,
			CurrentLap:       s.Lap,
			WeatherCondition: weather,
			TrackTempCelsius: s.TrackTemp,
		},
		DriverState: model.DriverState{
			DriverName:           driver,
			CurrentPosition:      max(s.Position, 1),
			CurrentTireCompound:  e.state.Compound,
			TireAgeLaps:          e.state.TireAge,
			FuelRemainingPercent: round3(s.FuelLevel * 100),
			GapToLeader:          s.GapToLeader,
			GapToAhead:           s.GapToAhead,
		},
		Competitors: []model.Competitor{},
	}
}

func degradationRate(c model.Compound, age int, temp float64) float64 {
	base, ok := degradationBase[c]
	if !ok {
		base = degradationBase[model.CompoundMedium]
	}
	tempFactor := 1.0
	switch {
	case temp > 45:
		tempFactor = 1.2
	case temp < 20:
		tempFactor = 0.9
	}
	rate := base * float64(age) * tempFactor
	if age > agingStartLap {
		rate *= 1 + agingPerLap*float64(age-agingStartLap)
	}
	return clamp01(rate)
}

// paceTrend compares the halves of the last lap times. Higher lap times are slower.
func paceTrend(lapTimes []float64) model.PaceTrend {
	recent := lapTimes[max(len(lapTimes)-paceWindow, 0):]
	if len(recent) < 3 {
		return model.PaceStable
	}
	half := len(recent) / 2
	first, second := mean(recent[:half]), mean(recent[half:])
	switch {
	case second <= first-paceThreshold:
		return model.PaceImproving
	case second >= first+paceThreshold:
		return model.PaceDeclining
	default:
		return model.PaceStable
	}
}

func cliffRisk(c model.Compound, age int) float64 {
	cliff, ok := cliffLap[c]
	if !ok {
		cliff = cliffLap[model.CompoundMedium]
	}
	return clamp01(float64(age-(cliff-5)) / 10.0)
}

func pitWindow(lap, total int, c model.Compound, age int, risk float64) model.PitWindow {
	var w model.PitWindow
	switch {
	case risk > 0.7:
		w = model.PitWindow{Start: lap + 1, End: lap + 3}
	case risk > 0.4:
		w = model.PitWindow{Start: lap + 3, End: lap + 6}
	default:
		cliff, ok := cliffLap[c]
		if !ok {
			cliff = cliffLap[model.CompoundMedium]
		}
		remaining := max(cliff-age, 0)
		w = model.PitWindow{Start: lap + max(remaining-3, 1), End: lap + remaining + 2}
	}
	// the window never ends before the next lap
	if total > 0 && w.End > total-5 {
		w.End = max(total-5, lap+1)
	}
	if w.Start > w.End {
		w.Start = w.End
	}
	return w
}

func pushCapped(s []float64, v float64) []float64 {
	s = append(s, v)
	if len(s) > historySize {
		s = append(s[:0:0], s[len(s)-historySize:]...)
	}
	return s
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
