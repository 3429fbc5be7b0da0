package store

import (
	"github.com/ayusman/handmark/internal/detector"
	"github.com/ayusman/handmark/internal/log"
)

// Recorder is a dispatch listener that stores every event it receives.
// Engine errors are stored as results carrying only the error message.
type Recorder struct {
	repo *DetectionRepository
}

// NewRecorder creates a Recorder writing to s.
func NewRecorder(s *Store) *Recorder {
	return &Recorder{repo: s.Detections()}
}

func (r *Recorder) OnResults(result *detector.DetectionResult) {
	if _, err := r.repo.Record(result); err != nil {
		log.Warn("failed to record detection", "error", err)
	}
}

func (r *Recorder) OnError(message string) {
	if _, err := r.repo.Record(&detector.DetectionResult{Error: message}); err != nil {
		log.Warn("failed to record engine error", "error", err)
	}
}
