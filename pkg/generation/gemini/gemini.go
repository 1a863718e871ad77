// Package gemini provides a generation backend on top of the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/mpapenbr/iracelog-strategy-service-go/log"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/generation"
)

const DefaultModel = "gemini-2.5-flash"

var ErrMissingAPIKey = errors.New("gemini api key missing")

type (
	Option  func(*Backend)
	Backend struct {
		models contentGenerator
		model  string
		logger *log.Logger
	}
	// contentGenerator is the part of *genai.Models used here.
	contentGenerator interface {
		GenerateContent(
			ctx context.Context,
			model string,
			contents []*genai.Content,
			config *genai.GenerateContentConfig,
		) (*genai.GenerateContentResponse, error)
	}
)

func WithModel(model string) Option {
	return func(b *Backend) {
		if model != "" {
			b.model = model
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(b *Backend) {
		b.logger = l
	}
}

func New(ctx context.Context, apiKey string, opts ...Option) (*Backend, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newBackend(client.Models, opts...), nil
}

func newBackend(models contentGenerator, opts ...Option) *Backend {
	ret := &Backend{
		models: models,
		model:  DefaultModel,
		logger: log.Default().Named("gemini"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (b *Backend) Model() string {
	return b.model
}

// Generate requests a JSON response for the prompt.
//
//nolint:whitespace // can't make both editor and linter happy
func (b *Backend) Generate(
	ctx context.Context,
	req generation.Request,
) (string, error) {
	resp, err := b.models.GenerateContent(ctx, b.model, genai.Text(req.Prompt),
		&genai.GenerateContentConfig{
			Temperature:      genai.Ptr(req.Temperature),
			ResponseMIMEType: "application/json",
		})
	if err != nil {
		return "", err
	}
	text := resp.Text()
	b.logger.Debug("received response",
		log.String("model", b.model),
		log.Int("length", len(text)))
	if text == "" {
		return "", generation.ErrEmptyResponse
	}
	return text, nil
}
