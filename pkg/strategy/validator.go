package strategy

import (
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/mpapenbr/iracelog-strategy-service-go/log"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
)

// Validate checks a strategy against the race rules.
// It returns false and the reason of the first violated rule.
//
//nolint:whitespace // can't make both editor and linter happy
func Validate(
	s *model.Strategy,
	currentLap, totalLaps int,
) (ok bool, reason string) {
	for _, lap := range s.PitLaps {
		if lap <= currentLap {
			return false, fmt.Sprintf(
				"pit lap %d is in the past (current lap: %d)", lap, currentLap)
		}
		if lap >= totalLaps {
			return false, fmt.Sprintf(
				"pit lap %d is beyond race end (total laps: %d)", lap, totalLaps)
		}
	}
	for i := 1; i < len(s.PitLaps); i++ {
		if s.PitLaps[i] <= s.PitLaps[i-1] {
			return false, "pit laps must be strictly ascending"
		}
	}
	if len(s.PitLaps) != s.StopCount {
		return false, fmt.Sprintf("stop count (%d) doesn't match pit laps (%d)",
			s.StopCount, len(s.PitLaps))
	}
	if len(s.TireSequence) != s.StopCount+1 {
		return false, fmt.Sprintf("tire sequence length (%d) doesn't match stops + 1",
			len(s.TireSequence))
	}
	if len(lo.Uniq(s.TireSequence)) < 2 {
		return false, "must use at least 2 different tire compounds"
	}
	return true, ""
}

// Filter returns the valid strategies in their original order.
// Rejected strategies are logged.
//
//nolint:whitespace // can't make both editor and linter happy
func Filter(
	logger *log.Logger,
	strategies []model.Strategy,
	currentLap, totalLaps int,
) []model.Strategy {
	ret := slices.DeleteFunc(slices.Clone(strategies), func(s model.Strategy) bool {
		ok, reason := Validate(&s, currentLap, totalLaps)
		if !ok {
			logger.Warn("strategy rejected",
				log.Int("id", s.ID),
				log.String("name", s.Name),
				log.String("reason", reason))
		}
		return !ok
	})
	logger.Info("strategies validated",
		log.Int("valid", len(ret)), log.Int("total", len(strategies)))
	return ret
}

// Select returns the top strategy, which is the first one of a validated list.
func Select(strategies []model.Strategy) (model.Strategy, bool) {
	if len(strategies) == 0 {
		return model.Strategy{}, false
	}
	return strategies[0], true
}
