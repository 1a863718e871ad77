package control

import (
	"fmt"
	"strings"

	"github.com/mpapenbr/iracelog-strategy-service-go/log"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
)

// lead laps before a planned pit stop that count as pit window
const pitWindowLead = 2

type Synthesizer struct {
	logger *log.Logger
}

type Option func(*Synthesizer)

func WithLogger(l *log.Logger) Option {
	return func(s *Synthesizer) {
		s.logger = l
	}
}

func NewSynthesizer(opts ...Option) *Synthesizer {
	ret := &Synthesizer{logger: log.Default().Named("control")}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func Neutral() model.ControlCommand {
	return model.NeutralCommand()
}

// Synthesize maps the latest record and the chosen strategy to control values.
// top may be nil. If the values equal those of previous, previous is returned
// unchanged.
//
//nolint:whitespace // can't make both editor and linter happy
func (s *Synthesizer) Synthesize(
	lap int,
	top *model.Strategy,
	rec *model.EnrichedRecord,
	previous model.ControlCommand,
) model.ControlCommand {
	reasons := []string{}
	brake, reason := brakeBias(rec.TireDegradationRate)
	if reason != "" {
		reasons = append(reasons, reason)
	}
	diff, reason := differentialSlip(rec.TireCliffRisk, rec.PaceTrend)
	if reason != "" {
		reasons = append(reasons, reason)
	}
	if top != nil && InPitWindow(top, lap) {
		brake = min(brake+1, model.MaxControlValue)
		diff = min(diff+1, model.MaxControlValue)
		reasons = append(reasons,
			fmt.Sprintf("lap %d in pit window of %q, conservative", lap, top.Name))
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "balanced conditions, neutral settings")
	}

	ret := model.ControlCommand{
		BrakeBias:        brake,
		DifferentialSlip: diff,
		Rationale:        strings.Join(reasons, "; "),
	}
	if ret.SameValues(previous) {
		s.logger.Debug("no material change, keeping previous command",
			log.Int("lap", lap),
			log.Int("brakeBias", previous.BrakeBias),
			log.Int("differentialSlip", previous.DifferentialSlip))
		return previous
	}
	s.logger.Info("control command changed",
		log.Int("lap", lap),
		log.Int("brakeBias", ret.BrakeBias),
		log.Int("differentialSlip", ret.DifferentialSlip),
		log.String("rationale", ret.Rationale))
	return ret
}

// InPitWindow reports whether lap lies within the lead laps before any
// planned pit stop of the strategy.
func InPitWindow(st *model.Strategy, lap int) bool {
	for _, p := range st.PitLaps {
		if lap >= p-pitWindowLead && lap <= p {
			return true
		}
	}
	return false
}

func brakeBias(degradation float64) (value int, reason string) {
	switch {
	case degradation > 0.7:
		return 7, fmt.Sprintf("high tire degradation (%.2f), brake bias rearward", degradation)
	case degradation > 0.4:
		return 6, fmt.Sprintf("moderate tire degradation (%.2f), brake bias slightly rearward",
			degradation)
	case degradation < 0.2:
		return 4, fmt.Sprintf("low tire degradation (%.2f), brake bias forward", degradation)
	default:
		return model.NeutralControlValue, ""
	}
}

//nolint:whitespace // can't make both editor and linter happy
func differentialSlip(
	cliffRisk float64,
	pace model.PaceTrend,
) (value int, reason string) {
	switch {
	case cliffRisk > 0.7:
		return 7, fmt.Sprintf("tire cliff risk %.2f, gentle differential", cliffRisk)
	case pace == model.PaceDeclining:
		return 6, "pace declining, more differential slip"
	case pace == model.PaceImproving:
		return 4, "pace improving, tighter differential"
	default:
		return model.NeutralControlValue, ""
	}
}
