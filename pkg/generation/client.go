package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpapenbr/iracelog-strategy-service-go/log"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/utils/cache"
)

const (
	DefaultMaxAttempts = 3
	DefaultTimeout     = 30 * time.Second
	timeoutMultiplier  = 2.5
	parseRetryDelay    = time.Second
	cacheKeyPrefixLen  = 100
)

type (
	// Request is a single call to the generative backend.
	Request struct {
		Prompt      string
		Temperature float32
		Timeout     time.Duration
	}
	// Backend returns the raw text produced for a request.
	Backend interface {
		Generate(ctx context.Context, req Request) (string, error)
	}
	// Result is the decoded structured output of the backend
	Result = map[string]any

	SleepFunc func(ctx context.Context, d time.Duration) error
)

type Client struct {
	backend     Backend
	maxAttempts int
	timeout     time.Duration
	ladder      Ladder
	newBackOff  func() backoff.BackOff
	sleep       SleepFunc
	cache       cache.Cache[string, Result]
	logger      *log.Logger
	tracer      trace.Tracer
	attempts    metric.Int64Counter
}

type Option func(c *Client)

func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithTimeout sets the default per attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLadder(l Ladder) Option {
	return func(c *Client) {
		c.ladder = l
	}
}

func WithSleep(f SleepFunc) Option {
	return func(c *Client) {
		c.sleep = f
	}
}

func WithBackOff(f func() backoff.BackOff) Option {
	return func(c *Client) {
		c.newBackOff = f
	}
}

// WithCache enables the response cache. Intended for demo mode only.
func WithCache(arg cache.Cache[string, Result]) Option {
	return func(c *Client) {
		c.cache = arg
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

func NewClient(backend Backend, opts ...Option) *Client {
	c := &Client{
		backend:     backend,
		maxAttempts: DefaultMaxAttempts,
		timeout:     DefaultTimeout,
		ladder:      DefaultLadder(),
		newBackOff:  DefaultBackOff,
		sleep:       Sleep,
		logger:      log.Default().Named("generation"),
		tracer:      otel.Tracer("iss.generation"),
	}
	for _, opt := range opts {
		opt(c)
	}
	var err error
	c.attempts, err = otel.GetMeterProvider().Meter("iss.generation").Int64Counter(
		"iss.generation.attempts",
		metric.WithDescription("Number of calls to the generative backend"),
		metric.WithUnit("{count}"))
	if err != nil {
		c.logger.Error("failed to register metric", log.ErrorField(err))
	}
	return c
}

// DefaultBackOff doubles the wait time starting with 2s, without jitter.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Minute
	b.Reset()
	return b
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// GenerateJSON sends prompt to the backend and decodes the answer as JSON object.
// timeout <= 0 uses the client default. After all attempts failed a
// *GenerationError is returned.
//
//nolint:whitespace,funlen // can't make both editor and linter happy
func (c *Client) GenerateJSON(
	ctx context.Context,
	prompt string,
	temperature float32,
	timeout time.Duration,
) (Result, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, span := c.tracer.Start(ctx, "generation.GenerateJSON",
		trace.WithAttributes(attribute.Float64("temperature", float64(temperature))))
	defer span.End()

	key := cacheKey(prompt, temperature)
	if c.cache != nil {
		if v, err := c.cache.Get(ctx, key); err == nil {
			c.logger.Info("returning cached response")
			span.SetAttributes(attribute.Bool("cached", true))
			return *v, nil
		}
	}

	bo := c.newBackOff()
	step := 0
	var lastErr error
	made := 0
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		c.logger.Debug("calling backend",
			log.Int("attempt", attempt),
			log.Int("maxAttempts", c.maxAttempts),
			log.Int("step", step))
		made = attempt
		res, err := c.attempt(ctx, c.ladder.Prompt(prompt, step), temperature, timeout)
		if err == nil {
			c.count(ctx, "success")
			span.SetAttributes(attribute.Int("attempts", attempt))
			if c.cache != nil {
				c.cache.Set(ctx, key, &res)
			}
			return res, nil
		}
		lastErr = err
		parseFailure := isParseFailure(err)
		if parseFailure {
			c.count(ctx, "malformed")
		} else {
			c.count(ctx, "transport")
		}
		c.logger.Warn("attempt failed",
			log.Int("attempt", attempt),
			log.Bool("parseFailure", parseFailure),
			log.ErrorField(err))
		if ctx.Err() != nil || attempt == c.maxAttempts {
			break
		}

		wait := parseRetryDelay
		if !parseFailure {
			wait = bo.NextBackOff()
			if isTimeout(err) {
				wait = time.Duration(float64(wait) * timeoutMultiplier)
			}
		}
		step = c.ladder.Next(step, parseFailure)
		if err := c.sleep(ctx, wait); err != nil {
			lastErr = err
			break
		}
	}
	ret := &GenerationError{Attempts: made, Last: lastErr}
	span.RecordError(ret)
	span.SetStatus(codes.Error, ret.Error())
	c.logger.Error("generation failed", log.ErrorField(ret))
	return nil, ret
}

//nolint:whitespace // can't make both editor and linter happy
func (c *Client) attempt(
	ctx context.Context,
	prompt string,
	temperature float32,
	timeout time.Duration,
) (Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	text, err := c.backend.Generate(attemptCtx, Request{
		Prompt:      prompt,
		Temperature: temperature,
		Timeout:     timeout,
	})
	if err != nil {
		return nil, err
	}
	return ParseJSON(text)
}

func (c *Client) count(ctx context.Context, outcome string) {
	if c.attempts == nil {
		return
	}
	c.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// ParseJSON decodes backend output after removing an enclosing code fence.
func ParseJSON(text string) (Result, error) {
	text = StripFence(text)
	if text == "" {
		return nil, ErrEmptyResponse
	}
	var ret Result
	if err := json.Unmarshal([]byte(text), &ret); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}
	if ret == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedOutput)
	}
	return ret, nil
}

// StripFence removes a leading ``` (with optional language tag) and a trailing ```.
func StripFence(text string) string {
	text = strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(text, "```"); ok {
		i := strings.IndexFunc(rest, func(r rune) bool {
			return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
				r == '-' || r == '_' || r == '+')
		})
		if i < 0 {
			i = len(rest)
		}
		text = rest[i:]
	}
	text = strings.TrimSpace(text)
	text, _ = strings.CutSuffix(text, "```")
	return strings.TrimSpace(text)
}

func cacheKey(prompt string, temperature float32) string {
	r := []rune(prompt)
	if len(r) > cacheKeyPrefixLen {
		r = r[:cacheKeyPrefixLen]
	}
	return fmt.Sprintf("%s_%v", string(r), temperature)
}
