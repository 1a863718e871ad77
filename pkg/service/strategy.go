package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/mpapenbr/iracelog-strategy-service-go/log"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/buffer"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/racecontext"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/strategy"
)

const (
	DefaultWindow    = 10
	DefaultThreshold = 3
)

const (
	StatusWaiting         = "received_waiting_for_more_data"
	StatusProcessed       = "received_and_processed"
	StatusBrainstormError = "received_but_brainstorm_failed"
)

var ErrMissingRaceContext = errors.New("race_context is required")

type (
	// Strategist generates validated strategies
	Strategist interface {
		Generate(
			ctx context.Context,
			records []model.EnrichedRecord,
			rc *model.RaceContext,
		) ([]model.Strategy, error)
	}
	// TelemetrySource is the pull fallback for enriched records
	TelemetrySource interface {
		FetchLatest(ctx context.Context, limit int) ([]model.EnrichedRecord, error)
	}
)

//nolint:tagliatelle // wire format shared with strategy clients
type (
	BrainstormRequest struct {
		EnrichedTelemetry []model.EnrichedRecord `json:"enriched_telemetry,omitempty"`
		RaceContext       *model.RaceContext     `json:"race_context"`
	}
	BrainstormResponse struct {
		Strategies []model.Strategy `json:"strategies"`
	}
	EnrichedWithContext struct {
		EnrichedTelemetry *model.EnrichedRecord `json:"enriched_telemetry"`
		RaceContext       *model.RaceContext    `json:"race_context"`
	}
	IngestStatus struct {
		Status              string           `json:"status"`
		Lap                 int              `json:"lap"`
		BufferSize          int              `json:"buffer_size"`
		StrategiesGenerated *int             `json:"strategies_generated,omitempty"`
		Strategies          []model.Strategy `json:"strategies,omitempty"`
		Error               string           `json:"error,omitempty"`
	}
)

// StrategyService answers strategy requests. Enriched records pushed by the
// enrichment service are kept in its own buffer.
type StrategyService struct {
	strategist Strategist
	source     TelemetrySource
	buffer     *buffer.Buffer[model.EnrichedRecord]
	store      *racecontext.Store
	window     int
	threshold  int
	logger     *log.Logger
}

type StrategyOption func(*StrategyService)

func WithTelemetrySource(src TelemetrySource) StrategyOption {
	return func(s *StrategyService) {
		s.source = src
	}
}

func WithStrategyStore(store *racecontext.Store) StrategyOption {
	return func(s *StrategyService) {
		s.store = store
	}
}

func WithWindow(n int) StrategyOption {
	return func(s *StrategyService) {
		if n > 0 {
			s.window = n
		}
	}
}

func WithStrategyLogger(l *log.Logger) StrategyOption {
	return func(s *StrategyService) {
		s.logger = l
	}
}

func NewStrategyService(strategist Strategist, opts ...StrategyOption) *StrategyService {
	s := &StrategyService{
		strategist: strategist,
		buffer: buffer.New[model.EnrichedRecord](buffer.DefaultCapacity,
			buffer.WithMetrics[model.EnrichedRecord]("webhook")),
		store:     racecontext.NewStore(),
		window:    DefaultWindow,
		threshold: DefaultThreshold,
		logger:    log.Default().Named("strategy"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StrategyService) Store() *racecontext.Store {
	return s.store
}

func (s *StrategyService) BufferSize() int {
	return s.buffer.Len()
}

// Brainstorm generates strategies. Records are taken from the request, then
// from the webhook buffer, then from the telemetry source.
// strategy.ErrNoTelemetry is returned if none of them has data.
//
//nolint:whitespace // can't make both editor and linter happy
func (s *StrategyService) Brainstorm(
	ctx context.Context,
	req *BrainstormRequest,
) (*BrainstormResponse, error) {
	if req.RaceContext == nil {
		return nil, ErrMissingRaceContext
	}
	if err := req.RaceContext.Validate(); err != nil {
		return nil, err
	}
	logger := s.logger.With(
		log.String("driver", req.RaceContext.DriverState.DriverName),
		log.Int("lap", req.RaceContext.RaceInfo.CurrentLap))

	records, err := s.resolveTelemetry(ctx, logger, req.EnrichedTelemetry)
	if err != nil {
		return nil, err
	}
	strategies, err := s.strategist.Generate(ctx, records, req.RaceContext)
	if err != nil {
		return nil, err
	}
	logger.Info("strategies generated", log.Int("count", len(strategies)))
	if strategies == nil {
		strategies = []model.Strategy{}
	}
	return &BrainstormResponse{Strategies: strategies}, nil
}

//nolint:whitespace // can't make both editor and linter happy
func (s *StrategyService) resolveTelemetry(
	ctx context.Context,
	logger *log.Logger,
	explicit []model.EnrichedRecord,
) ([]model.EnrichedRecord, error) {
	if len(explicit) > 0 {
		return explicit, nil
	}
	if records := s.buffer.Latest(s.window); len(records) > 0 {
		logger.Debug("using buffered telemetry", log.Int("records", len(records)))
		return records, nil
	}
	if s.source != nil {
		records, err := s.source.FetchLatest(ctx, s.window)
		if err != nil {
			logger.Warn("cannot fetch telemetry", log.ErrorField(err))
		} else if len(records) > 0 {
			logger.Debug("using fetched telemetry", log.Int("records", len(records)))
			return records, nil
		}
	}
	return nil, fmt.Errorf("%w: provide enriched_telemetry, "+
		"ensure the enrichment service is running or configure webhook push",
		strategy.ErrNoTelemetry)
}

// IngestEnriched receives a pushed record. Once enough records are buffered
// strategies are generated. A generation failure is reported in the status,
// the record stays ingested.
//
//nolint:whitespace // can't make both editor and linter happy
func (s *StrategyService) IngestEnriched(
	ctx context.Context,
	data *EnrichedWithContext,
) (*IngestStatus, error) {
	if data.EnrichedTelemetry == nil {
		return nil, fmt.Errorf("%w: enriched_telemetry missing", strategy.ErrNoTelemetry)
	}
	if data.RaceContext == nil {
		return nil, ErrMissingRaceContext
	}
	if err := data.RaceContext.Validate(); err != nil {
		return nil, err
	}
	lap := data.EnrichedTelemetry.Lap
	s.buffer.Add(*data.EnrichedTelemetry)
	s.store.Update(data.RaceContext)

	ret := &IngestStatus{Lap: lap, BufferSize: s.buffer.Len()}
	records := s.buffer.Latest(s.window)
	if len(records) < s.threshold {
		s.logger.Info("waiting for more data",
			log.Int("lap", lap), log.Int("buffered", len(records)))
		ret.Status = StatusWaiting
		return ret, nil
	}

	strategies, err := s.strategist.Generate(ctx, records, data.RaceContext)
	if err != nil {
		s.logger.Error("brainstorm failed", log.Int("lap", lap), log.ErrorField(err))
		ret.Status = StatusBrainstormError
		ret.Error = err.Error()
		return ret, nil
	}
	n := len(strategies)
	ret.Status = StatusProcessed
	ret.StrategiesGenerated = &n
	ret.Strategies = strategies
	s.logger.Info("strategies generated", log.Int("lap", lap), log.Int("count", n))
	return ret, nil
}
