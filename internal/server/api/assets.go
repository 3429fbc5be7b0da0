package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/handmark/internal/app"
	"github.com/ayusman/handmark/internal/log"
)

type assetRequest struct {
	AssetPath string `json:"assetPath"`
	FileName  string `json:"fileName"`
}

type assetResponse struct {
	Path string `json:"path"`
}

// AssetsHandler handles POST /api/assets, copying a bundled asset into the
// files directory.
type AssetsHandler struct {
	detector Detector
}

// NewAssetsHandler creates a new AssetsHandler.
func NewAssetsHandler(d Detector) *AssetsHandler {
	return &AssetsHandler{detector: d}
}

func (h *AssetsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req assetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	path, err := h.detector.PrepareAsset(req.AssetPath, req.FileName)
	if err != nil {
		if errors.Is(err, app.ErrInvalidArguments) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Warn("failed to prepare asset", "asset", req.AssetPath, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to prepare asset")
		return
	}

	writeJSON(w, http.StatusOK, assetResponse{Path: path})
}
