package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/iracelog-strategy-service-go/log"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/archive"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/buffer"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/enrichment"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/racecontext"
)

const (
	MaxRecent     = 200
	DefaultRecent = 50
)

var ErrEmptyPayload = errors.New("empty telemetry payload")

// Publisher forwards lap results, best-effort
type Publisher interface {
	Publish(res *model.LapResult)
}

// EnrichmentService turns raw lap samples into enriched records and keeps the
// most recent ones for pull clients.
type EnrichmentService struct {
	enricher  *enrichment.Enricher
	recent    *buffer.Buffer[model.EnrichedRecord]
	archive   archive.Archive
	publisher Publisher
	store     *racecontext.Store
	logger    *log.Logger
	ingested  metric.Int64Counter
}

type EnrichmentOption func(*EnrichmentService)

func WithArchive(a archive.Archive) EnrichmentOption {
	return func(s *EnrichmentService) {
		s.archive = a
	}
}

func WithPublisher(p Publisher) EnrichmentOption {
	return func(s *EnrichmentService) {
		s.publisher = p
	}
}

func WithEnrichmentStore(store *racecontext.Store) EnrichmentOption {
	return func(s *EnrichmentService) {
		s.store = store
	}
}

func WithEnrichmentLogger(l *log.Logger) EnrichmentOption {
	return func(s *EnrichmentService) {
		s.logger = l
	}
}

func NewEnrichmentService(opts ...EnrichmentOption) *EnrichmentService {
	s := &EnrichmentService{
		recent:  buffer.New[model.EnrichedRecord](MaxRecent, buffer.WithMetrics[model.EnrichedRecord]("enriched")),
		archive: archive.Noop{},
		logger:  log.Default().Named("enrichment"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.enricher = enrichment.NewEnricher(enrichment.WithLogger(s.logger))
	s.ingested, _ = otel.GetMeterProvider().Meter("iss.enrichment").Int64Counter(
		"iss.enrichment.laps",
		metric.WithDescription("Number of ingested laps"),
		metric.WithUnit("{count}"))
	return s
}

// Ingest normalizes and enriches one raw sample. Archiving and forwarding
// failures are logged only.
//
//nolint:whitespace // can't make both editor and linter happy
func (s *EnrichmentService) Ingest(
	ctx context.Context,
	payload map[string]any,
) (*model.LapResult, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	sample := enrichment.Normalize(payload)
	res := s.enricher.Enrich(sample)
	s.recent.Add(res.EnrichedTelemetry)
	s.ingested.Add(ctx, 1)
	if s.store != nil {
		s.store.Update(&res.RaceContext)
	}

	if err := s.archive.StoreLap(ctx, &res); err != nil {
		s.logger.Warn("cannot archive lap",
			log.Int("lap", res.EnrichedTelemetry.Lap), log.ErrorField(err))
	}
	if s.publisher != nil {
		s.publisher.Publish(&res)
	}
	s.logger.Debug("lap enriched",
		log.Int("lap", res.EnrichedTelemetry.Lap),
		log.Float64("degradation", res.EnrichedTelemetry.TireDegradationRate),
		log.String("pace", string(res.EnrichedTelemetry.PaceTrend)))
	return &res, nil
}

// Post stores an externally enriched record
func (s *EnrichmentService) Post(rec *model.EnrichedRecord) model.EnrichedRecord {
	s.recent.Add(*rec)
	return *rec
}

// Latest returns up to n records, newest first. n is clamped to 1..MaxRecent.
func (s *EnrichmentService) Latest(n int) []model.EnrichedRecord {
	return s.recent.Latest(min(max(n, 1), MaxRecent))
}

// FetchLatest lets the strategy stage pull from an in-process enrichment
// service the same way it pulls from a remote one.
func (s *EnrichmentService) FetchLatest(_ context.Context, limit int) ([]model.EnrichedRecord, error) {
	return s.Latest(limit), nil
}

// Reset clears the enricher state and the stored records.
func (s *EnrichmentService) Reset() {
	s.enricher.Reset()
	s.recent.Clear()
	s.logger.Info("enrichment state reset")
}

//nolint:tagliatelle // wire format
type EnrichmentHealth struct {
	Status string `json:"status"`
	Stored int    `json:"stored"`
}

func (s *EnrichmentService) Health() EnrichmentHealth {
	return EnrichmentHealth{Status: "ok", Stored: s.recent.Len()}
}
