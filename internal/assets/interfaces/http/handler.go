package http

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	assets "medasset-cloud/internal/assets/domain"
	assetpg "medasset-cloud/internal/assets/infrastructure/postgres"
)

// StateHandler serves the derived-state view of an asset.
type StateHandler struct {
	db     *sql.DB
	states *assetpg.AssetStateRepository
	health *assetpg.HealthRepository
	logger *log.Logger
}

// NewStateHandler constructs a handler.
func NewStateHandler(db *sql.DB, states *assetpg.AssetStateRepository, health *assetpg.HealthRepository, logger *log.Logger) (*StateHandler, error) {
	if db == nil || states == nil || health == nil {
		return nil, errors.New("asset state handler: nil dependency")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &StateHandler{db: db, states: states, health: health, logger: logger}, nil
}

type stateResponse struct {
	assets.State
	LatestHealth *assets.HealthSample `json:"latestHealth,omitempty"`
}

// ServeHTTP handles GET /api/v1/assets/state?assetId=.
func (h *StateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	assetID := r.URL.Query().Get("assetId")
	if assetID == "" {
		http.Error(w, "assetId required", http.StatusBadRequest)
		return
	}

	state, err := h.states.GetState(r.Context(), h.db, assetID)
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			http.Error(w, "asset state not found", http.StatusNotFound)
			return
		}
		h.logger.Printf("load asset state %q: %v", assetID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := stateResponse{State: *state}
	latest, err := h.health.LatestHealth(r.Context(), h.db, assetID)
	switch {
	case err == nil:
		resp.LatestHealth = latest
	case errors.Is(err, assets.ErrNotFound):
		// no sample yet, state alone is still useful
	default:
		h.logger.Printf("load latest health %q: %v", assetID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
