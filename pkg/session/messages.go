package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
)

type MessageType string

const (
	TypeTelemetry             MessageType = "telemetry"
	TypePing                  MessageType = "ping"
	TypeDisconnect            MessageType = "disconnect"
	TypeConnectionEstablished MessageType = "connection_established"
	TypeControlCommand        MessageType = "control_command"
	TypeControlCommandUpdate  MessageType = "control_command_update"
	TypeError                 MessageType = "error"
	TypePong                  MessageType = "pong"
)

var ErrInvalidMessage = errors.New("invalid message")

type (
	// Inbound is one of TelemetryMessage, PingMessage, DisconnectMessage
	Inbound interface {
		inbound()
	}
	//nolint:tagliatelle // wire format of the vehicle client
	TelemetryMessage struct {
		LapNumber         int                   `json:"lap_number"`
		EnrichedTelemetry *model.EnrichedRecord `json:"enriched_telemetry"`
		RaceContext       *model.RaceContext    `json:"race_context,omitempty"`
	}
	PingMessage       struct{}
	DisconnectMessage struct{}
)

func (TelemetryMessage) inbound()  {}
func (PingMessage) inbound()       {}
func (DisconnectMessage) inbound() {}

// DecodeInbound validates a client message once at the boundary.
// Structurally invalid input is rejected with ErrInvalidMessage.
func DecodeInbound(data []byte) (Inbound, error) {
	var envelope struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	switch envelope.Type {
	case TypePing:
		return PingMessage{}, nil
	case TypeDisconnect:
		return DisconnectMessage{}, nil
	case TypeTelemetry:
		var msg TelemetryMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
		}
		if err := msg.validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
		}
		return msg, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, envelope.Type)
	}
}

func (m *TelemetryMessage) validate() error {
	rec := m.EnrichedTelemetry
	if rec == nil {
		return errors.New("enriched_telemetry missing")
	}
	if m.LapNumber == 0 {
		m.LapNumber = rec.Lap
	}
	if m.LapNumber < 0 {
		return fmt.Errorf("invalid lap_number %d", m.LapNumber)
	}
	if rec.TireDegradationRate < 0 || rec.TireDegradationRate > 1 {
		return fmt.Errorf("tire_degradation_rate out of range: %v", rec.TireDegradationRate)
	}
	if rec.TireCliffRisk < 0 || rec.TireCliffRisk > 1 {
		return fmt.Errorf("tire_cliff_risk out of range: %v", rec.TireCliffRisk)
	}
	if !rec.PaceTrend.Valid() {
		return fmt.Errorf("unknown pace_trend %q", rec.PaceTrend)
	}
	if m.RaceContext != nil {
		return m.RaceContext.Validate()
	}
	return nil
}

//nolint:tagliatelle // wire format of the vehicle client
type (
	ConnectionEstablished struct {
		Type      MessageType `json:"type"`
		SessionID string      `json:"session_id"`
		Message   string      `json:"message"`
	}
	ControlCommand struct {
		Type             MessageType `json:"type"`
		Lap              int         `json:"lap"`
		BrakeBias        int         `json:"brake_bias"`
		DifferentialSlip int         `json:"differential_slip"`
		Message          string      `json:"message"`
		StrategyName     string      `json:"strategy_name,omitempty"`
		Rationale        string      `json:"rationale,omitempty"`
	}
	ControlCommandUpdate struct {
		Type             MessageType     `json:"type"`
		Lap              int             `json:"lap"`
		BrakeBias        int             `json:"brake_bias"`
		DifferentialSlip int             `json:"differential_slip"`
		Message          string          `json:"message"`
		StrategyName     string          `json:"strategy_name"`
		TotalStrategies  int             `json:"total_strategies"`
		RiskLevel        model.RiskLevel `json:"risk_level,omitempty"`
		Rationale        string          `json:"rationale,omitempty"`
	}
	ErrorMessage struct {
		Type    MessageType `json:"type"`
		Message string      `json:"message"`
	}
	Pong struct {
		Type MessageType `json:"type"`
	}
)

func newErrorMessage(format string, args ...any) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: fmt.Sprintf(format, args...)}
}
