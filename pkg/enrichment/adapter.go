package enrichment

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
)

const (
	DefaultTrackTemp = 25.0
	DefaultFuelLevel = 0.5
)

// aliases maps the canonical field name to the spellings used by the various
// telemetry sources. The first present, non-null value wins.
var aliases = map[string][]string{
	"lap":           {"lap", "Lap", "LapNumber", "lap_number"},
	"total_laps":    {"total_laps", "TotalLaps"},
	"lap_time":      {"lap_time", "LapTime"},
	"speed":         {"speed", "Speed", "average_speed"},
	"max_speed":     {"max_speed", "MaxSpeed"},
	"throttle":      {"throttle", "Throttle"},
	"brake":         {"brake", "Brake", "Brakes"},
	"tire_compound": {"tire_compound", "Compound", "TyreCompound", "Tire"},
	"tire_age":      {"tire_age", "tire_life_laps", "TyreLife"},
	"fuel_level":    {"fuel_level", "Fuel", "FuelRel", "FuelLevel"},
	"ers":           {"ers", "ERS", "ERSCharge"},
	"track_temp":    {"track_temp", "TrackTemp", "track_temperature"},
	"rain": {
		"rain_probability", "RainProb", "PrecipProb", "rainfall", "Rainfall",
	},
	"position":      {"position", "Position"},
	"driver_name":   {"driver_name", "Driver"},
	"track_name":    {"track_name", "Track"},
	"gap_to_leader": {"gap_to_leader"},
	"gap_to_ahead":  {"gap_to_ahead"},
}

// Normalize maps a loosely typed payload onto a RawLapSample.
// Missing or invalid values are replaced by defaults, it never fails.
func Normalize(payload map[string]any) model.RawLapSample {
	pick := func(key string) (any, bool) {
		for _, k := range aliases[key] {
			if v, ok := payload[k]; ok && v != nil {
				return v, true
			}
		}
		return nil, false
	}
	num := func(key string, def float64) float64 {
		if v, ok := pick(key); ok {
			if f, ok := toFloat(v); ok {
				return f
			}
		}
		return def
	}
	str := func(key string) string {
		if v, ok := pick(key); ok {
			if s, ok := v.(string); ok {
				return strings.TrimSpace(s)
			}
		}
		return ""
	}

	ret := model.RawLapSample{
		Lap:          max(int(num("lap", 0)), 0),
		TotalLaps:    max(int(num("total_laps", 0)), 0),
		Speed:        max(num("speed", 0), 0),
		MaxSpeed:     max(num("max_speed", 0), 0),
		Throttle:     clamp01(num("throttle", 0)),
		Brake:        clamp01(num("brake", 0)),
		TireCompound: NormalizeCompound(str("tire_compound")),
		TireAge:      max(int(num("tire_age", 0)), 0),
		TrackTemp:    num("track_temp", DefaultTrackTemp),
		Rain:         clamp01(num("rain", 0)),
		FuelLevel:    clamp01(num("fuel_level", DefaultFuelLevel)),
		Position:     max(int(num("position", 0)), 0),
		DriverName:   str("driver_name"),
		TrackName:    str("track_name"),
		GapToLeader:  num("gap_to_leader", 0),
		GapToAhead:   num("gap_to_ahead", 0),
	}
	if v, ok := pick("ers"); ok {
		if f, ok := toFloat(v); ok {
			ers := clamp01(f)
			ret.ERS = &ers
		}
	}
	if v, ok := pick("lap_time"); ok {
		if secs, ok := ParseLapTime(v); ok {
			ret.LapTime = &secs
		}
	}
	return ret
}

// NormalizeCompound maps compound names to the known compounds.
// Unknown or empty names are treated as medium.
func NormalizeCompound(name string) model.Compound {
	c := model.Compound(strings.ToLower(strings.TrimSpace(name)))
	switch c {
	case "inter", "intermediates":
		return model.CompoundIntermediate
	case "s":
		return model.CompoundSoft
	case "m":
		return model.CompoundMedium
	case "h":
		return model.CompoundHard
	}
	if c.Valid() {
		return c
	}
	return model.CompoundMedium
}

var (
	// pandas timedelta representation, e.g. "0 days 00:01:24.123000"
	reTimedelta = regexp.MustCompile(`^(\d+) days? (\d+):(\d+):(\d+(?:\.\d+)?)$`)
	reClock     = regexp.MustCompile(`^(?:(\d+):)?(\d+):(\d+(?:\.\d+)?)$`)
)

// ParseLapTime converts a lap time into seconds. Supported are numbers
// (seconds), "m:ss.sss", "h:mm:ss.sss" and "N days hh:mm:ss.sss".
func ParseLapTime(v any) (float64, bool) {
	if f, ok := toFloat(v); ok {
		return f, f > 0
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	s = strings.TrimSpace(s)
	atof := func(x string) float64 {
		f, _ := strconv.ParseFloat(x, 64)
		return f
	}
	var secs float64
	if m := reTimedelta.FindStringSubmatch(s); m != nil {
		secs = atof(m[1])*86400 + atof(m[2])*3600 + atof(m[3])*60 + atof(m[4])
	} else if m := reClock.FindStringSubmatch(s); m != nil {
		secs = atof(m[1])*3600 + atof(m[2])*60 + atof(m[3])
	} else {
		return 0, false
	}
	return secs, secs > 0
}

// toFloat accepts finite numbers only. NaN and infinities count as missing.
func toFloat(v any) (float64, bool) {
	f, ok := anyToFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func anyToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
