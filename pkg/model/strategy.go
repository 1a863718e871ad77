package model

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// Strategy is a candidate race plan produced by the generative backend.
//
//nolint:tagliatelle // wire format of the generative backend
type Strategy struct {
	ID               int        `json:"strategy_id"`
	Name             string     `json:"strategy_name"`
	StopCount        int        `json:"stop_count"`
	PitLaps          []int      `json:"pit_laps"`
	TireSequence     []Compound `json:"tire_sequence"`
	BriefDescription string     `json:"brief_description"`
	RiskLevel        RiskLevel  `json:"risk_level"`
	KeyAssumption    string     `json:"key_assumption"`
}

const (
	MinControlValue     = 0
	MaxControlValue     = 10
	NeutralControlValue = 5
)

// ControlCommand contains the values sent to the vehicle.
//
//nolint:tagliatelle // wire format of the vehicle client
type ControlCommand struct {
	BrakeBias        int    `json:"brake_bias"`
	DifferentialSlip int    `json:"differential_slip"`
	Rationale        string `json:"rationale,omitempty"`
}

func NeutralCommand() ControlCommand {
	return ControlCommand{
		BrakeBias:        NeutralControlValue,
		DifferentialSlip: NeutralControlValue,
		Rationale:        "neutral baseline",
	}
}

// SameValues reports whether both commands set identical control values.
func (c ControlCommand) SameValues(other ControlCommand) bool {
	return c.BrakeBias == other.BrakeBias && c.DifferentialSlip == other.DifferentialSlip
}
