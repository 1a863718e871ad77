package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mpapenbr/iracelog-strategy-service-go/log"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/buffer"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/control"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/racecontext"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/strategy"
)

const (
	DefaultWindow      = 10
	DefaultThreshold   = 3
	DefaultLapDeadline = 45 * time.Second
	DefaultQueueSize   = 16
	bufferCapacity     = 100
	processingMessage  = "Processing strategies..."
)

type State int32

const (
	StateConnected State = iota
	StateAwaitingTelemetry
	StateTelemetryReceived
	StateInsufficientData
	StateGeneratingStrategy
	StateResponding
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StateAwaitingTelemetry:
		return "AwaitingTelemetry"
	case StateTelemetryReceived:
		return "TelemetryReceived"
	case StateInsufficientData:
		return "InsufficientData"
	case StateGeneratingStrategy:
		return "GeneratingStrategy"
	case StateResponding:
		return "Responding"
	case StateDisconnected:
		return "Disconnected"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type (
	// Conn is the duplex transport of a session. *websocket.Conn satisfies it.
	Conn interface {
		ReadMessage() (messageType int, p []byte, err error)
		WriteMessage(messageType int, data []byte) error
		Close() error
	}
	// Strategist provides validated strategies for the buffered records.
	Strategist interface {
		Generate(
			ctx context.Context,
			records []model.EnrichedRecord,
			rc *model.RaceContext,
		) ([]model.Strategy, error)
	}
	// CommandRecorder persists issued commands.
	CommandRecorder interface {
		RecordCommand(
			ctx context.Context,
			sessionID string,
			lap int,
			cmd model.ControlCommand,
			top *model.Strategy,
		) error
	}
)

// Session handles one connected vehicle. It owns its buffer and the last
// issued command, nothing is shared with other sessions.
type Session struct {
	id          string
	conn        Conn
	strategist  Strategist
	synthesizer *control.Synthesizer
	store       *racecontext.Store
	recorder    CommandRecorder
	logger      *log.Logger

	window      int
	threshold   int
	lapDeadline time.Duration
	queueSize   int

	buffer      *buffer.Buffer[model.EnrichedRecord]
	lastCommand model.ControlCommand
	lastRisk    model.RiskLevel
	state       atomic.Int32

	out  chan any
	done chan struct{}
}

type Option func(*Session)

func WithWindow(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.window = n
		}
	}
}

func WithThreshold(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.threshold = n
		}
	}
}

func WithLapDeadline(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.lapDeadline = d
		}
	}
}

func WithQueueSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

func WithRaceContextStore(store *racecontext.Store) Option {
	return func(s *Session) {
		s.store = store
	}
}

func WithCommandRecorder(r CommandRecorder) Option {
	return func(s *Session) {
		s.recorder = r
	}
}

func WithSynthesizer(arg *control.Synthesizer) Option {
	return func(s *Session) {
		s.synthesizer = arg
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

func New(conn Conn, strategist Strategist, opts ...Option) *Session {
	s := &Session{
		id:          uuid.NewString(),
		conn:        conn,
		strategist:  strategist,
		window:      DefaultWindow,
		threshold:   DefaultThreshold,
		lapDeadline: DefaultLapDeadline,
		queueSize:   DefaultQueueSize,
		buffer:      buffer.New[model.EnrichedRecord](bufferCapacity),
		lastCommand: model.NeutralCommand(),
		logger:      log.Default().Named("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(log.String("session", s.id))
	if s.synthesizer == nil {
		s.synthesizer = control.NewSynthesizer(control.WithLogger(s.logger.Named("control")))
	}
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	old := State(s.state.Swap(int32(st)))
	if old != st {
		s.logger.Debug("state change",
			log.String("from", old.String()), log.String("to", st.String()))
	}
}

// reset drops buffered records and restores the neutral command
func (s *Session) reset() {
	s.buffer.Clear()
	s.lastCommand = model.NeutralCommand()
	s.lastRisk = ""
}

// Run serves the session until the client disconnects, the transport fails
// or ctx is done. Telemetry is processed strictly in arrival order, pings and
// disconnects are answered while a lap is being processed.
//
//nolint:funlen // readability
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctx = log.AddToContext(ctx, s.logger)

	s.setState(StateConnected)
	s.reset()
	s.out = make(chan any, s.queueSize)
	s.done = make(chan struct{})
	laps := make(chan TelemetryMessage, s.queueSize)

	var writerWg, workerWg sync.WaitGroup
	writerWg.Add(1)
	go func() {
		defer writerWg.Done()
		s.writeLoop(cancel)
	}()
	workerWg.Add(1)
	go func() {
		defer workerWg.Done()
		for msg := range laps {
			if ctx.Err() != nil {
				continue
			}
			s.processLap(ctx, &msg)
		}
	}()
	// unblock ReadMessage on shutdown
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	s.send(ConnectionEstablished{
		Type:      TypeConnectionEstablished,
		SessionID: s.id,
		Message:   "Connected to strategy service",
	})
	s.setState(StateAwaitingTelemetry)
	s.logger.Info("session started")

	err := s.readLoop(ctx, laps)

	// pending laps are dropped, the client is gone
	cancel()
	close(laps)
	workerWg.Wait()
	close(s.done)
	close(s.out)
	writerWg.Wait()

	s.reset()
	s.setState(StateDisconnected)
	s.logger.Info("session ended")
	return err
}

func (s *Session) readLoop(ctx context.Context, laps chan<- TelemetryMessage) error {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			s.logger.Warn("transport failure", log.ErrorField(err))
			return err
		}
		msg, err := DecodeInbound(data)
		if err != nil {
			s.logger.Warn("rejecting message", log.ErrorField(err))
			s.send(newErrorMessage("%v", err))
			continue
		}
		switch m := msg.(type) {
		case PingMessage:
			s.send(Pong{Type: TypePong})
		case DisconnectMessage:
			s.logger.Info("client requested disconnect")
			return nil
		case TelemetryMessage:
			select {
			case laps <- m:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (s *Session) writeLoop(cancel context.CancelFunc) {
	failed := false
	for msg := range s.out {
		if failed {
			continue
		}
		data, err := json.Marshal(msg)
		if err != nil {
			s.logger.Error("cannot encode message", log.ErrorField(err))
			continue
		}
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Warn("write failed", log.ErrorField(err))
			failed = true
			cancel()
		}
	}
}

func (s *Session) send(msg any) {
	select {
	case s.out <- msg:
	case <-s.done:
	}
}

//nolint:funlen // readability
func (s *Session) processLap(ctx context.Context, msg *TelemetryMessage) {
	lap := msg.LapNumber
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("unexpected failure", log.Int("lap", lap), log.Any("panic", r))
			s.send(newErrorMessage("internal error processing lap %d", lap))
		}
		s.setState(StateAwaitingTelemetry)
	}()

	s.setState(StateTelemetryReceived)
	if msg.RaceContext != nil && s.store != nil {
		s.store.Update(msg.RaceContext)
	}
	s.buffer.Add(*msg.EnrichedTelemetry)

	if n := s.buffer.Len(); n < s.threshold {
		s.setState(StateInsufficientData)
		neutral := model.NeutralCommand()
		s.send(ControlCommand{
			Type:             TypeControlCommand,
			Lap:              lap,
			BrakeBias:        neutral.BrakeBias,
			DifferentialSlip: neutral.DifferentialSlip,
			Message:          fmt.Sprintf("Collecting data (%d/%d laps)", n, s.threshold),
		})
		return
	}

	// acknowledge with the command currently in effect
	s.send(ControlCommand{
		Type:             TypeControlCommand,
		Lap:              lap,
		BrakeBias:        s.lastCommand.BrakeBias,
		DifferentialSlip: s.lastCommand.DifferentialSlip,
		Message:          processingMessage,
		Rationale:        s.lastCommand.Rationale,
	})

	rc, ok := s.raceContext(msg)
	if !ok {
		s.logger.Warn("no race context available", log.Int("lap", lap))
		s.send(newErrorMessage("no race context available for lap %d", lap))
		return
	}

	s.setState(StateGeneratingStrategy)
	lapCtx, cancel := context.WithTimeout(ctx, s.lapDeadline)
	defer cancel()
	strategies, err := s.strategist.Generate(lapCtx, s.buffer.Latest(s.window), &rc)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(lapCtx.Err(), context.DeadlineExceeded) {
			s.logger.Warn("lap deadline exceeded, keeping previous command",
				log.Int("lap", lap), log.Duration("deadline", s.lapDeadline))
		} else {
			s.logger.Warn("strategy generation failed, keeping previous command",
				log.Int("lap", lap), log.ErrorField(err))
		}
		s.send(newErrorMessage("strategy generation failed for lap %d: %v", lap, err))
		return
	}

	s.setState(StateResponding)
	top, found := strategy.Select(strategies)
	var topPtr *model.Strategy
	name := "none"
	if found {
		topPtr = &top
		name = top.Name
		s.lastRisk = top.RiskLevel
	}
	cmd := s.synthesizer.Synthesize(lap, topPtr, msg.EnrichedTelemetry, s.lastCommand)
	s.lastCommand = cmd
	s.send(ControlCommandUpdate{
		Type:             TypeControlCommandUpdate,
		Lap:              lap,
		BrakeBias:        cmd.BrakeBias,
		DifferentialSlip: cmd.DifferentialSlip,
		Message:          fmt.Sprintf("Updated based on strategy %q", name),
		StrategyName:     name,
		TotalStrategies:  len(strategies),
		RiskLevel:        s.lastRisk,
		Rationale:        cmd.Rationale,
	})
	if s.recorder != nil {
		if err := s.recorder.RecordCommand(ctx, s.id, lap, cmd, topPtr); err != nil {
			s.logger.Warn("cannot record command", log.ErrorField(err))
		}
	}
}

func (s *Session) raceContext(msg *TelemetryMessage) (model.RaceContext, bool) {
	if msg.RaceContext != nil {
		return *msg.RaceContext, true
	}
	if s.store != nil {
		return s.store.Latest()
	}
	return model.RaceContext{}, false
}
