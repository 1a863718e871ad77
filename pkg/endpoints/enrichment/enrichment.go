// Package enrichment provides the HTTP endpoints of the enrichment stage.
package enrichment

import (
	"errors"
	"net/http"

	"github.com/mpapenbr/iracelog-strategy-service-go/log"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/endpoints/utils"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/model"
	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/service"
)

type Endpoints struct {
	svc    *service.EnrichmentService
	logger *log.Logger
}

func NewEndpoints(svc *service.EnrichmentService) *Endpoints {
	return &Endpoints{svc: svc, logger: log.Default().Named("http.enrichment")}
}

// Register adds the enrichment routes to mux
func (e *Endpoints) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /ingest/telemetry", e.ingest)
	mux.HandleFunc("GET /enriched", e.list)
	mux.HandleFunc("POST /enriched", e.post)
	mux.HandleFunc("POST /reset", e.reset)
	mux.HandleFunc("GET /healthz", e.health)
}

func (e *Endpoints) ingest(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Failed to enrich: %v", err)
		return
	}
	res, err := e.svc.Ingest(r.Context(), payload)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrEmptyPayload) {
			status = http.StatusBadRequest
		}
		utils.WriteError(w, status, "Failed to enrich: %v", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, res)
}

func (e *Endpoints) list(w http.ResponseWriter, r *http.Request) {
	limit, err := utils.IntQuery(r, "limit", service.DefaultRecent)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "%v", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, e.svc.Latest(limit))
}

func (e *Endpoints) post(w http.ResponseWriter, r *http.Request) {
	var rec model.EnrichedRecord
	if err := utils.DecodeJSON(r, &rec); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if !rec.PaceTrend.Valid() {
		utils.WriteError(w, http.StatusBadRequest, "invalid pace_trend %q", rec.PaceTrend)
		return
	}
	utils.WriteJSON(w, http.StatusOK, e.svc.Post(&rec))
}

func (e *Endpoints) reset(w http.ResponseWriter, _ *http.Request) {
	e.svc.Reset()
	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "reset",
		"message": "Enricher state and buffer cleared",
	})
}

func (e *Endpoints) health(w http.ResponseWriter, _ *http.Request) {
	utils.WriteJSON(w, http.StatusOK, e.svc.Health())
}
