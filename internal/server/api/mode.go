package api

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/handmark/internal/log"
	"github.com/ayusman/handmark/internal/store"
)

type modeRequest struct {
	Bypass *bool `json:"bypass"`
}

type modeResponse struct {
	Bypass bool `json:"bypass"`
}

// ModeHandler handles GET and POST /api/mode. When a store is given the
// chosen mode is persisted.
type ModeHandler struct {
	detector Detector
	store    *store.Store
}

// NewModeHandler creates a new ModeHandler. s may be nil.
func NewModeHandler(d Detector, s *store.Store) *ModeHandler {
	return &ModeHandler{detector: d, store: s}
}

func (h *ModeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, modeResponse{Bypass: h.detector.Mode()})
	case http.MethodPost:
		h.set(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ModeHandler) set(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Bypass == nil {
		writeError(w, http.StatusBadRequest, "bypass is required")
		return
	}

	bypass := h.detector.SetMode(*req.Bypass)

	if h.store != nil {
		if err := h.store.Settings().SetBool(store.SettingBypass, bypass); err != nil {
			log.Warn("failed to persist mode", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, modeResponse{Bypass: bypass})
}
