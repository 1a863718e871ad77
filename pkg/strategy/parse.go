package strategy

import (
	"encoding/json"
	"fmt"

	"github.com/mpapenbr/iracelog-strategy-service-go/log"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/generation"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
)

const maxStops = 3

// ParseStrategies extracts the strategies of a backend result.
// A missing or non-list "strategies" field is an error, defective items are
// dropped and logged.
//
//nolint:whitespace // can't make both editor and linter happy
func ParseStrategies(
	logger *log.Logger,
	res generation.Result,
) ([]model.Strategy, error) {
	raw, ok := res["strategies"]
	if !ok {
		return nil, fmt.Errorf("%w: response missing 'strategies' field",
			generation.ErrMalformedOutput)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: 'strategies' is not a list", generation.ErrMalformedOutput)
	}
	ret := make([]model.Strategy, 0, len(items))
	for i, item := range items {
		s, err := parseItem(item)
		if err != nil {
			logger.Warn("dropping unparsable strategy",
				log.Int("index", i), log.ErrorField(err))
			continue
		}
		ret = append(ret, s)
	}
	logger.Debug("strategies parsed",
		log.Int("parsed", len(ret)), log.Int("received", len(items)))
	return ret, nil
}

func parseItem(item any) (model.Strategy, error) {
	var s model.Strategy
	data, err := json.Marshal(item)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, err
	}
	if s.StopCount < 1 || s.StopCount > maxStops {
		return s, fmt.Errorf("stop count %d out of range", s.StopCount)
	}
	for _, c := range s.TireSequence {
		if !c.Valid() {
			return s, fmt.Errorf("unknown compound %q", c)
		}
	}
	if !s.RiskLevel.Valid() {
		return s, fmt.Errorf("unknown risk level %q", s.RiskLevel)
	}
	return s, nil
}
