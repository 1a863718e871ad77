package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/service"
)

type fakeStrategist struct {
	result []model.Strategy
	err    error
}

//nolint:whitespace // can't make both editor and linter happy
func (f *fakeStrategist) Generate(
	context.Context, []model.EnrichedRecord, *model.RaceContext,
) ([]model.Strategy, error) {
	return f.result, f.err
}

type sessionCount int

func (s sessionCount) Count() int { return int(s) }

const raceContext = `"race_context":{
	"race_info":{"track_name":"Monza","total_laps":51,"current_lap":12},
	"driver_state":{"driver_name":"Alonso","current_position":4,
		"current_tire_compound":"medium","tire_age_laps":12,"fuel_remaining_percent":60}}`

const record = `{"lap":%d,"tire_degradation_rate":0.4,"pace_trend":"stable",` +
	`"tire_cliff_risk":0.2,"optimal_pit_window":[20,24],"performance_delta":-0.3}`

func setup(gen *fakeStrategist) http.Handler {
	mux := http.NewServeMux()
	NewEndpoints(service.NewStrategyService(gen),
		WithSessions(sessionCount(2)),
		WithVersion("1.2.3"),
		WithDemoMode(true),
		WithEnrichmentURL("http://localhost:8000"),
	).Register(mux)
	return mux
}

func post(h http.Handler, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := setup(&fakeStrategist{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)
	var got HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, HealthResponse{
		Status:               "healthy",
		Service:              ServiceName,
		Version:              "1.2.3",
		DemoMode:             true,
		EnrichmentServiceURL: "http://localhost:8000",
		ActiveSessions:       2,
	}, got)
}

func TestBrainstorm(t *testing.T) {
	gen := &fakeStrategist{result: []model.Strategy{{ID: 1, Name: "one stop"}}}
	h := setup(gen)

	rec := post(h, "/api/strategy/brainstorm",
		`{"enriched_telemetry":[`+strings.Replace(record, "%d", "12", 1)+`],`+raceContext+`}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got service.BrainstormResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Strategies, 1)
	assert.Equal(t, "one stop", got.Strategies[0].Name)

	gen.err = errors.New("quota exceeded")
	rec = post(h, "/api/strategy/brainstorm",
		`{"enriched_telemetry":[`+strings.Replace(record, "%d", "12", 1)+`],`+raceContext+`}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "quota exceeded")
}

func TestBrainstorm_badRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"race_context":`},
		{"missing race context", `{"enriched_telemetry":[]}`},
		{"no telemetry anywhere", `{` + raceContext + `}`},
		{"invalid race context", `{"race_context":{"race_info":{"total_laps":0}}}`},
	}
	h := setup(&fakeStrategist{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(h, "/api/strategy/brainstorm", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"detail"`)
		})
	}
}

func TestIngestEnriched(t *testing.T) {
	gen := &fakeStrategist{err: errors.New("backend down")}
	h := setup(gen)

	var statuses []string
	for _, lap := range []string{"1", "2", "3"} {
		rec := post(h, "/api/ingest/enriched",
			`{"enriched_telemetry":`+strings.Replace(record, "%d", lap, 1)+`,`+raceContext+`}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got service.IngestStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		statuses = append(statuses, got.Status)
	}
	assert.Equal(t, []string{
		service.StatusWaiting,
		service.StatusWaiting,
		service.StatusBrainstormError,
	}, statuses)

	rec := post(h, "/api/ingest/enriched", `{`+raceContext+`}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
