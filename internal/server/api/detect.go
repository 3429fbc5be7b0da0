package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/ayusman/handmark/internal/app"
)

// MaxFrameBytes bounds the body of a detect request.
const MaxFrameBytes = 16 << 20

type ackResponse struct {
	Status app.Ack `json:"status"`
}

// DetectHandler handles POST /api/detect. The body is an encoded image; the
// response is the synchronous acknowledgement only.
type DetectHandler struct {
	detector Detector
}

// NewDetectHandler creates a new DetectHandler.
func NewDetectHandler(d Detector) *DetectHandler {
	return &DetectHandler{detector: d}
}

func (h *DetectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxFrameBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Frame too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Failed to read frame")
		return
	}

	// A rejected frame is still a well formed request.
	writeJSON(w, http.StatusOK, ackResponse{Status: h.detector.Detect(data)})
}
