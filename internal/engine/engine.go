// Package engine defines the boundary to the external hand landmark
// inference engine.
//
// An Engine accepts an image buffer plus a timestamp and later reports the
// outcome through the OnResult or OnError callbacks given at construction.
// Callbacks fire on a goroutine owned by the engine.
package engine

import (
	"errors"
)

// ErrEngineClosed is returned when submitting to an engine that has been closed.
var ErrEngineClosed = errors.New("engine is closed")

// Delegate is the execution mode the engine runs inference with.
type Delegate string

const (
	// DelegateGPU runs inference with GPU acceleration.
	DelegateGPU Delegate = "GPU"
	// DelegateCPU runs inference on the CPU.
	DelegateCPU Delegate = "CPU"
)

// Image is a decoded RGBA 8888 pixel buffer handed to the engine.
type Image struct {
	Pixels []byte
	Width  int
	Height int
}

// ImageInfo describes the input image a completion belongs to.
type ImageInfo struct {
	Width  int
	Height int
}

// RawLandmark is a normalized landmark as reported by the engine.
// Coordinates are pointers so that an incomplete payload is detectable.
type RawLandmark struct {
	X *float64 `cbor:"x" json:"x"`
	Y *float64 `cbor:"y" json:"y"`
	Z *float64 `cbor:"z" json:"z"`
}

// Category is one entry of a handedness classification.
type Category struct {
	CategoryName string  `cbor:"category_name" json:"categoryName"`
	Score        float64 `cbor:"score" json:"score"`
}

// Result is the raw per-frame payload produced by the engine.
// Landmarks and Handedness are ranked lists with one entry per detected hand.
type Result struct {
	Timestamp  int64           `cbor:"timestamp"`
	Landmarks  [][]RawLandmark `cbor:"landmarks"`
	Handedness [][]Category    `cbor:"handedness"`
}

// ResultFunc receives a completed inference.
type ResultFunc func(res *Result, input ImageInfo)

// ErrorFunc receives an engine level error that is not tied to a frame result.
type ErrorFunc func(err error)

// Options configures engine construction.
type Options struct {
	ModelPath                  string
	Delegate                   Delegate
	NumHands                   int
	MinHandDetectionConfidence float64
	MinHandPresenceConfidence  float64
	MinTrackingConfidence      float64
	OnResult                   ResultFunc
	OnError                    ErrorFunc
}

// DefaultOptions returns the options for a single hand live stream landmarker.
func DefaultOptions() Options {
	return Options{
		Delegate:                   DelegateGPU,
		NumHands:                   1,
		MinHandDetectionConfidence: 0.5,
		MinHandPresenceConfidence:  0.5,
		MinTrackingConfidence:      0.5,
	}
}

// Engine is a running landmark inference engine.
type Engine interface {
	// DetectAsync submits an image for inference and returns as soon as the
	// engine has accepted it. The outcome arrives via the OnResult or OnError
	// callback.
	DetectAsync(img Image, timestampMs int64) error

	// Close releases any resources held by the engine.
	Close() error
}

// Factory constructs an Engine. It returns an error when the engine cannot be
// set up with the requested options.
type Factory func(opts Options) (Engine, error)
