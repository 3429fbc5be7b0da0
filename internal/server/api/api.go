// Package api provides the HTTP handlers of the hand landmark host.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/handmark/internal/app"
)

// Detector is the part of the application the handlers drive.
type Detector interface {
	Detect(data []byte) app.Ack
	SetMode(bypass bool) bool
	Mode() bool
	PrepareAsset(assetPath, fileName string) (string, error)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
