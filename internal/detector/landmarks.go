// Package detector holds the hand landmark result model and translates raw
// engine output into it.
package detector

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Handedness labels reported by the engine.
const (
	HandednessLeft  = "Left"
	HandednessRight = "Right"
)

// Landmark is one normalized hand point. X and Y are within [0,1]; Z follows
// the engine's depth convention and may leave that range.
type Landmark struct {
	Index int     `json:"index"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

// HandResult is the first ranked hand of a completion.
type HandResult struct {
	Landmarks  []Landmark
	Handedness string // "Left" or "Right"
}

// IsLeft reports whether the hand was classified as a left hand.
func (h HandResult) IsLeft() bool {
	return h.Handedness == HandednessLeft
}
