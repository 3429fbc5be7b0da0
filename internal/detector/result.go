package detector

import (
	"encoding/json"

	"github.com/ayusman/handmark/internal/engine"
)

// DetectionResult is the structured result delivered for every completed
// inference.
type DetectionResult struct {
	Delegate      engine.Delegate `json:"delegate"`
	InferenceTime int64           `json:"inferenceTime"` // milliseconds
	Height        int             `json:"height"`
	Width         int             `json:"width"`
	Landmarks     []Landmark      `json:"landmarks"`
	IsLeftHand    *bool           `json:"isLeftHand,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// MarshalJSON encodes the result with a fixed field order. Landmarks is
// always an array, never null.
func (r DetectionResult) MarshalJSON() ([]byte, error) {
	type plain DetectionResult
	p := plain(r)
	if p.Landmarks == nil {
		p.Landmarks = []Landmark{}
	}
	return json.Marshal(p)
}

// Encode returns the JSON form of the result.
func (r *DetectionResult) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// Decode parses a JSON encoded result.
func Decode(data []byte) (*DetectionResult, error) {
	var r DetectionResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
