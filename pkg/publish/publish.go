// Package publish forwards lap results to downstream consumers.
// Forwarding is best-effort, failures are logged and never reach the caller.
package publish

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/iracelog-strategy-service-go/log"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/utils/broadcast"
)

const DefaultTimeout = 5 * time.Second

// Sink receives lap results.
type Sink interface {
	Name() string
	Publish(ctx context.Context, res *model.LapResult) error
}

// Publisher fans lap results out to all sinks. Each sink is served by its own
// goroutine, so a slow sink only delays itself.
type Publisher struct {
	source  chan model.LapResult
	bs      broadcast.BroadcastServer[model.LapResult]
	wg      sync.WaitGroup
	timeout time.Duration
	logger  *log.Logger
	dropped atomic.Int64
	closed  atomic.Bool
	failed  metric.Int64Counter
}

type Option func(*Publisher)

// WithTimeout limits a single sink delivery.
func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(p *Publisher) {
		p.logger = l
	}
}

func NewPublisher(sinks []Sink, opts ...Option) *Publisher {
	p := &Publisher{
		source:  make(chan model.LapResult, 16),
		timeout: DefaultTimeout,
		logger:  log.Default().Named("publish"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.failed, _ = otel.GetMeterProvider().Meter("iss.publish").Int64Counter(
		"iss.publish.failed",
		metric.WithDescription("Number of failed deliveries"),
		metric.WithUnit("{count}"))

	p.bs = broadcast.NewBroadcastServer("publish", p.source,
		broadcast.WithLogger[model.LapResult](p.logger.Named("bcst")))
	for _, sink := range sinks {
		ch := p.bs.Subscribe()
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.serve(sink, ch)
		}()
	}
	p.logger.Info("publisher started", log.Int("sinks", len(sinks)))
	return p
}

// Publish hands res to the sinks without waiting for delivery.
// If the internal queue is full the result is dropped.
func (p *Publisher) Publish(res *model.LapResult) {
	if p.closed.Load() {
		return
	}
	select {
	case p.source <- *res:
	default:
		p.dropped.Add(1)
		p.logger.Warn("publish queue full, dropping result",
			log.Int("lap", res.EnrichedTelemetry.Lap))
	}
}

// Dropped returns the number of results that could not be queued.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

func (p *Publisher) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.bs.Close()
	p.wg.Wait()
}

func (p *Publisher) serve(sink Sink, ch <-chan model.LapResult) {
	for res := range ch {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := sink.Publish(ctx, &res); err != nil {
			p.logger.Warn("forwarding failed",
				log.String("sink", sink.Name()),
				log.Int("lap", res.EnrichedTelemetry.Lap),
				log.ErrorField(err))
			if p.failed != nil {
				p.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("sink", sink.Name())))
			}
		} else {
			p.logger.Debug("forwarded",
				log.String("sink", sink.Name()),
				log.Int("lap", res.EnrichedTelemetry.Lap))
		}
		cancel()
	}
}
