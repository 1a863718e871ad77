// Package strategy provides the HTTP endpoints of the strategy stage.
package strategy

import (
	"errors"
	"net/http"

	"github.com/mpapenbr/iracelog-strategy-service-go/log"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/endpoints/utils"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/service"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/strategy"
)

const ServiceName = "AI Intelligence Layer"

type (
	// SessionCounter reports the number of connected vehicles
	SessionCounter interface {
		Count() int
	}
	Endpoints struct {
		svc           *service.StrategyService
		sessions      SessionCounter
		version       string
		demoMode      bool
		enrichmentURL string
		logger        *log.Logger
	}
	Option func(*Endpoints)
)

//nolint:tagliatelle // wire format
type HealthResponse struct {
	Status               string `json:"status"`
	Service              string `json:"service"`
	Version              string `json:"version"`
	DemoMode             bool   `json:"demo_mode"`
	EnrichmentServiceURL string `json:"enrichment_service_url"`
	BufferSize           int    `json:"buffer_size"`
	ActiveSessions       int    `json:"active_sessions"`
}

func WithSessions(arg SessionCounter) Option {
	return func(e *Endpoints) {
		e.sessions = arg
	}
}

func WithVersion(v string) Option {
	return func(e *Endpoints) {
		e.version = v
	}
}

func WithDemoMode(b bool) Option {
	return func(e *Endpoints) {
		e.demoMode = b
	}
}

func WithEnrichmentURL(u string) Option {
	return func(e *Endpoints) {
		e.enrichmentURL = u
	}
}

func NewEndpoints(svc *service.StrategyService, opts ...Option) *Endpoints {
	ret := &Endpoints{
		svc:     svc,
		version: "dev",
		logger:  log.Default().Named("http.strategy"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (e *Endpoints) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", e.health)
	mux.HandleFunc("POST /api/ingest/enriched", e.ingestEnriched)
	mux.HandleFunc("POST /api/strategy/brainstorm", e.brainstorm)
}

func (e *Endpoints) health(w http.ResponseWriter, _ *http.Request) {
	ret := HealthResponse{
		Status:               "healthy",
		Service:              ServiceName,
		Version:              e.version,
		DemoMode:             e.demoMode,
		EnrichmentServiceURL: e.enrichmentURL,
		BufferSize:           e.svc.BufferSize(),
	}
	if e.sessions != nil {
		ret.ActiveSessions = e.sessions.Count()
	}
	utils.WriteJSON(w, http.StatusOK, ret)
}

func (e *Endpoints) ingestEnriched(w http.ResponseWriter, r *http.Request) {
	var req service.EnrichedWithContext
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "%v", err)
		return
	}
	status, err := e.svc.IngestEnriched(r.Context(), &req)
	if err != nil {
		if isClientError(err) {
			utils.WriteError(w, http.StatusBadRequest, "%v", err)
			return
		}
		e.logger.Error("ingest failed", log.ErrorField(err))
		utils.WriteError(w, http.StatusInternalServerError, "Failed to ingest telemetry: %v", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, status)
}

func (e *Endpoints) brainstorm(w http.ResponseWriter, r *http.Request) {
	var req service.BrainstormRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "%v", err)
		return
	}
	resp, err := e.svc.Brainstorm(r.Context(), &req)
	if err != nil {
		if isClientError(err) {
			utils.WriteError(w, http.StatusBadRequest, "%v", err)
			return
		}
		e.logger.Error("brainstorm failed", log.ErrorField(err))
		utils.WriteError(w, http.StatusInternalServerError, "Strategy generation failed: %v", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

func isClientError(err error) bool {
	return errors.Is(err, strategy.ErrNoTelemetry) ||
		errors.Is(err, service.ErrMissingRaceContext) ||
		errors.Is(err, model.ErrInvalidRaceContext)
}
