package strategy

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
)

const promptRecords = 10

const outputExample = `{"strategies": [{"strategy_id": 1, ` +
	`"strategy_name": "Conservative Stay Out", "stop_count": 1, "pit_laps": [35], ` +
	`"tire_sequence": ["medium", "hard"], ` +
	`"brief_description": "extend current stint then hard tires to end", ` +
	`"risk_level": "low", "key_assumption": "tire cliff risk stays below 0.7"}]}`

// BuildPrompt creates the brainstorm prompt for count strategies.
// records must not be empty.
//
//nolint:whitespace // can't make both editor and linter happy
func BuildPrompt(
	records []model.EnrichedRecord,
	rc *model.RaceContext,
	count int,
) string {
	count = max(count, 1)
	recent := slices.Clone(records)
	slices.SortStableFunc(recent, func(a, b model.EnrichedRecord) int { return b.Lap - a.Lap })
	recent = recent[:min(len(recent), promptRecords)]
	latest := recent[0]

	ri, ds := rc.RaceInfo, rc.DriverState
	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate %d diverse race strategies for %s at %s.\n\n",
		count, ds.DriverName, ri.TrackName)
	fmt.Fprintf(&sb, "CURRENT: Lap %d/%d, %s, %s tires (%d laps old), fuel %.0f%%, weather %s, track %.1f°C\n\n",
		ri.CurrentLap, ri.TotalLaps, competitiveInfo(&ds), ds.CurrentTireCompound,
		ds.TireAgeLaps, ds.FuelRemainingPercent, ri.WeatherCondition, ri.TrackTempCelsius)
	fmt.Fprintf(&sb, "TELEMETRY: Tire deg %.2f, Cliff risk %.2f, Pace %s, Delta %+.2fs, Pit window laps %d-%d\n\n",
		latest.TireDegradationRate, latest.TireCliffRisk, latest.PaceTrend,
		latest.PerformanceDelta, latest.OptimalPitWindow.Start, latest.OptimalPitWindow.End)
	if history, err := json.Marshal(recent); err == nil {
		fmt.Fprintf(&sb, "HISTORY (last %d laps, newest first): %s\n\n", len(recent), history)
	}
	if len(rc.Competitors) > 0 {
		sb.WriteString("COMPETITORS: ")
		sb.WriteString(strings.Join(lo.Map(rc.Competitors, func(c model.Competitor, _ int) string {
			return fmt.Sprintf("P%d %s %s(%d laps) %+.1fs",
				c.Position, c.Driver, c.TireCompound, c.TireAgeLaps, c.GapSeconds)
		}), "; "))
		sb.WriteString("\n\n")
	}
	fmt.Fprintf(&sb, "COMPETITIVE SITUATION: Gap to ahead %.1fs (%s)\n\n",
		ds.GapToAhead, gapAssessment(ds.GapToAhead))
	fmt.Fprintf(&sb, "RULES: pit laps between %d and %d, strictly ascending, "+
		"number of pit laps equals stop_count, tire_sequence has stop_count+1 entries "+
		"using at least 2 different compounds (%s), risk_level one of low|medium|high|critical.\n\n",
		ri.CurrentLap+1, ri.TotalLaps-1,
		strings.Join(lo.Map(model.Compounds, func(c model.Compound, _ int) string {
			return string(c)
		}), ", "))
	fmt.Fprintf(&sb, "Generate %d strategies balancing tire management with competitive pressure.\n\n",
		count)
	sb.WriteString("JSON: ")
	sb.WriteString(outputExample)
	return sb.String()
}

func competitiveInfo(ds *model.DriverState) string {
	ret := fmt.Sprintf("P%d", ds.CurrentPosition)
	if ds.GapToAhead > 0 {
		ret += fmt.Sprintf(", %.1fs behind P%d", ds.GapToAhead, ds.CurrentPosition-1)
	}
	if ds.GapToLeader > 0 && ds.CurrentPosition > 1 {
		ret += fmt.Sprintf(", %.1fs from leader", ds.GapToLeader)
	}
	return ret
}

func gapAssessment(gap float64) string {
	switch {
	case gap < 1.0:
		return "DRS range, attack opportunity"
	case gap < 3.0:
		return "close battle"
	default:
		return "need to push"
	}
}
