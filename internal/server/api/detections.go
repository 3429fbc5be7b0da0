package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/handmark/internal/store"
)

// MaxListLimit caps the limit query parameter.
const MaxListLimit = 500

type detectionResponse struct {
	ID        string          `json:"id"`
	CreatedAt string          `json:"created_at"`
	Result    json.RawMessage `json:"result"`
}

type listDetectionsResponse struct {
	Detections []detectionResponse `json:"detections"`
}

type pruneResponse struct {
	Deleted int64 `json:"deleted"`
}

// DetectionsHandler serves the stored result history.
type DetectionsHandler struct {
	store *store.Store
}

// NewDetectionsHandler creates a new DetectionsHandler with the given store.
func NewDetectionsHandler(s *store.Store) *DetectionsHandler {
	return &DetectionsHandler{store: s}
}

// ServeHTTP routes /api/detections and /api/detections/{id}.
func (h *DetectionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/detections")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodDelete:
			h.prune(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.get(w, r, path)
}

func toResponse(d *store.Detection) detectionResponse {
	return detectionResponse{
		ID:        d.ID,
		CreatedAt: d.CreatedAt.Format(time.RFC3339),
		Result:    json.RawMessage(d.Result),
	}
}

// list handles GET /api/detections?limit=N, newest first.
func (h *DetectionsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxListLimit)
	}

	detections, err := h.store.Detections().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list detections")
		return
	}

	response := listDetectionsResponse{
		Detections: make([]detectionResponse, 0, len(detections)),
	}
	for _, d := range detections {
		response.Detections = append(response.Detections, toResponse(d))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/detections/{id}.
func (h *DetectionsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	d, err := h.store.Detections().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Detection not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get detection")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(d))
}

// prune handles DELETE /api/detections?before=<RFC3339>. Without before
// everything is removed.
func (h *DetectionsHandler) prune(w http.ResponseWriter, r *http.Request) {
	before := time.Now().Add(time.Second)
	if v := r.URL.Query().Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "before must be an RFC3339 timestamp")
			return
		}
		before = t
	}

	n, err := h.store.Detections().Prune(before)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete detections")
		return
	}

	writeJSON(w, http.StatusOK, pruneResponse{Deleted: n})
}
