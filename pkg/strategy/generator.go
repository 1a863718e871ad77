package strategy

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpapenbr/iracelog-strategy-service-go/log"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/generation"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
)

const (
	DefaultCount       = 3
	DefaultTemperature = 0.9
)

var ErrNoTelemetry = errors.New("no telemetry available")

// JSONGenerator produces structured output for a prompt.
// Implemented by *generation.Client.
type JSONGenerator interface {
	GenerateJSON(
		ctx context.Context,
		prompt string,
		temperature float32,
		timeout time.Duration,
	) (generation.Result, error)
}

type Generator struct {
	client      JSONGenerator
	count       int
	temperature float32
	timeout     time.Duration
	logger      *log.Logger
	tracer      trace.Tracer
}

type Option func(*Generator)

func WithCount(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.count = n
		}
	}
}

func WithTemperature(t float32) Option {
	return func(g *Generator) {
		g.temperature = t
	}
}

func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		g.timeout = d
	}
}

func WithLogger(l *log.Logger) Option {
	return func(g *Generator) {
		g.logger = l
	}
}

func NewGenerator(client JSONGenerator, opts ...Option) *Generator {
	g := &Generator{
		client:      client,
		count:       DefaultCount,
		temperature: DefaultTemperature,
		logger:      log.Default().Named("strategy"),
		tracer:      otel.Tracer("iss.strategy"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate asks the backend for strategies and returns the valid ones.
// The result may contain fewer strategies than requested, even none.
//
//nolint:whitespace // can't make both editor and linter happy
func (g *Generator) Generate(
	ctx context.Context,
	records []model.EnrichedRecord,
	rc *model.RaceContext,
) ([]model.Strategy, error) {
	if len(records) == 0 {
		return nil, ErrNoTelemetry
	}
	ctx, span := g.tracer.Start(ctx, "strategy.Generate",
		trace.WithAttributes(
			attribute.Int("records", len(records)),
			attribute.Int("lap", rc.RaceInfo.CurrentLap)))
	defer span.End()

	logger := g.logger
	prompt := BuildPrompt(records, rc, g.count)
	logger.Debug("requesting strategies",
		log.Int("records", len(records)),
		log.Int("promptLength", len(prompt)))

	res, err := g.client.GenerateJSON(ctx, prompt, g.temperature, g.timeout)
	if err != nil {
		return nil, err
	}
	parsed, err := ParseStrategies(logger, res)
	if err != nil {
		return nil, err
	}
	valid := Filter(logger, parsed, rc.RaceInfo.CurrentLap, rc.RaceInfo.TotalLaps)
	span.SetAttributes(attribute.Int("valid", len(valid)))
	if len(valid) < g.count {
		logger.Warn("fewer valid strategies than requested",
			log.Int("valid", len(valid)), log.Int("requested", g.count))
	}
	return valid, nil
}
