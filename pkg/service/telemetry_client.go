package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mpapenbr/iracelog-strategy-service-go/log"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
)

const DefaultFetchLimit = 10

// TelemetryClient pulls enriched records from a remote enrichment service.
type TelemetryClient struct {
	baseURL string
	limit   int
	client  *http.Client
	logger  *log.Logger
}

type TelemetryClientOption func(*TelemetryClient)

func WithFetchLimit(n int) TelemetryClientOption {
	return func(c *TelemetryClient) {
		if n > 0 {
			c.limit = n
		}
	}
}

func WithHTTPClient(hc *http.Client) TelemetryClientOption {
	return func(c *TelemetryClient) {
		c.client = hc
	}
}

//nolint:whitespace // can't make both editor and linter happy
func NewTelemetryClient(
	baseURL string,
	opts ...TelemetryClientOption,
) *TelemetryClient {
	ret := &TelemetryClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		limit:   DefaultFetchLimit,
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: log.Default().Named("telemetry-client"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (c *TelemetryClient) BaseURL() string {
	return c.baseURL
}

// FetchLatest requests up to limit records, newest first.
// limit <= 0 uses the configured fetch limit.
//
//nolint:whitespace // can't make both editor and linter happy
func (c *TelemetryClient) FetchLatest(
	ctx context.Context,
	limit int,
) ([]model.EnrichedRecord, error) {
	if limit <= 0 {
		limit = c.limit
	}
	u := fmt.Sprintf("%s/enriched?%s", c.baseURL,
		url.Values{"limit": []string{strconv.Itoa(limit)}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("fetching telemetry", log.String("url", u))
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to enrichment service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("enrichment service returned %s", resp.Status)
	}
	var ret []model.EnrichedRecord
	if err := json.NewDecoder(resp.Body).Decode(&ret); err != nil {
		return nil, fmt.Errorf("cannot decode enriched records: %w", err)
	}
	c.logger.Debug("fetched telemetry", log.Int("records", len(ret)))
	return ret, nil
}

// Healthy reports whether the enrichment service answers its health check.
func (c *TelemetryClient) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("health check failed", log.ErrorField(err))
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
