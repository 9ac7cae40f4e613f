package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/pharmasignal/evigraph/internal/config"
	"github.com/pharmasignal/evigraph/internal/normalize"
	"github.com/pharmasignal/evigraph/internal/pipeline"
	"github.com/pharmasignal/evigraph/pkg/types"
)

// APIHandlers contains HTTP handlers for the REST API.
type APIHandlers struct {
	service *pipeline.Service
	config  *config.Config
	hub     *WebSocketHub
}

// NewAPIHandlers creates a new APIHandlers instance. hub may be nil when no
// WebSocket consumers are wired up.
func NewAPIHandlers(service *pipeline.Service, cfg *config.Config, hub *WebSocketHub) *APIHandlers {
	return &APIHandlers{
		service: service,
		config:  cfg,
		hub:     hub,
	}
}

// IngestRequest is the body of POST /api/ingest.
type IngestRequest struct {
	AgentID   types.SourceType       `json:"agent_id"`
	RawOutput map[string]interface{} `json:"raw_output"`
}

// IngestResponse reports what one ingest call committed.
type IngestResponse struct {
	Ingested int                     `json:"ingested"`
	Results  []pipeline.IngestResult `json:"results"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("ERROR: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}

// HandleIngest handles POST /api/ingest: normalize one agent's raw output
// and commit the resulting evidence to the graph.
func (h *APIHandlers) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "POST required")
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON")
		return
	}
	if req.RawOutput == nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "raw_output is required")
		return
	}

	results, err := h.service.IngestBatch(r.Context(), req.AgentID, req.RawOutput)
	if err != nil {
		var rejection *normalize.ParsingRejection
		switch {
		case errors.As(err, &rejection):
			writeError(w, http.StatusUnprocessableEntity, "PARSING_REJECTED", rejection.Error())
		case errors.Is(err, normalize.ErrUnknownAgent):
			writeError(w, http.StatusBadRequest, "UNKNOWN_AGENT", err.Error())
		default:
			log.Printf("ERROR: ingest failed: %v", err)
			writeError(w, http.StatusInternalServerError, "INGEST_FAILED", "ingest failed")
		}
		return
	}

	if h.hub != nil {
		for _, result := range results {
			h.hub.Broadcast(map[string]interface{}{
				"type":   "evidence_ingested",
				"result": result,
			})
		}
	}

	writeJSON(w, http.StatusOK, IngestResponse{Ingested: len(results), Results: results})
}

// HandleConflicts handles GET /api/conflicts?drug_id=...&disease_id=...
func (h *APIHandlers) HandleConflicts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "GET required")
		return
	}

	drugID := r.URL.Query().Get("drug_id")
	diseaseID := r.URL.Query().Get("disease_id")
	if drugID == "" || diseaseID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAMS", "drug_id and disease_id are required")
		return
	}

	report, err := h.service.ExplainConflict(r.Context(), drugID, diseaseID)
	if err != nil {
		log.Printf("ERROR: conflict explanation failed: %v", err)
		writeError(w, http.StatusInternalServerError, "CONFLICT_FAILED", "conflict explanation failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleROS handles GET /api/ros?drug_id=...&disease_id=...
func (h *APIHandlers) HandleROS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "GET required")
		return
	}

	drugID := r.URL.Query().Get("drug_id")
	diseaseID := r.URL.Query().Get("disease_id")
	if drugID == "" || diseaseID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAMS", "drug_id and disease_id are required")
		return
	}

	result, err := h.service.ComputeROS(r.Context(), drugID, diseaseID)
	if err != nil {
		log.Printf("ERROR: scoring failed: %v", err)
		writeError(w, http.StatusInternalServerError, "SCORING_FAILED", "scoring failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleGraph handles GET /api/graph?drug_id=...&disease_id=... for
// visualization and audit consumers. Both filters are optional.
func (h *APIHandlers) HandleGraph(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "GET required")
		return
	}

	pairs, err := h.service.QueryGraph(r.Context(), r.URL.Query().Get("drug_id"), r.URL.Query().Get("disease_id"))
	if err != nil {
		log.Printf("ERROR: graph query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "QUERY_FAILED", "graph query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(pairs),
		"results": pairs,
	})
}

// HandleHealth handles GET /api/health.
func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"engine":  h.config.Storage.StorageEngine,
		"service": "evigraph",
	})
}
