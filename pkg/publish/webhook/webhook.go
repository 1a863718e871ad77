package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
)

// Sink posts lap results as JSON to a callback URL.
type Sink struct {
	url    string
	client *http.Client
}

type Option func(*Sink)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Sink) {
		s.client = c
	}
}

func New(url string, opts ...Option) *Sink {
	ret := &Sink{
		url:    url,
		client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (s *Sink) Name() string {
	return "webhook"
}

func (s *Sink) Publish(ctx context.Context, res *model.LapResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	//nolint:errcheck // drain for connection reuse
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("callback %s returned %s", s.url, resp.Status)
	}
	return nil
}
