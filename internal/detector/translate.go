package detector

import (
	"errors"
	"fmt"

	"github.com/ayusman/handmark/internal/engine"
	"github.com/ayusman/handmark/internal/log"
)

// Translate converts a raw engine completion into a DetectionResult.
//
// Only the first ranked hand is used. Landmarks are copied in index order
// with their coordinates unchanged. A malformed payload never fails the
// call: the result then carries no landmarks and a diagnostic in Error.
func Translate(raw *engine.Result, completedAt int64, img engine.ImageInfo, delegate engine.Delegate) DetectionResult {
	res := DetectionResult{
		Delegate:  delegate,
		Height:    img.Height,
		Width:     img.Width,
		Landmarks: []Landmark{},
	}

	if raw == nil {
		return res
	}

	res.InferenceTime = Latency(raw.Timestamp, completedAt)

	if len(raw.Landmarks) == 0 {
		return res
	}

	hand, err := firstHand(raw)
	if err != nil {
		log.Warn("failed to parse landmarks", "error", err)
		res.Error = err.Error()
		return res
	}

	left := hand.IsLeft()
	res.Landmarks = hand.Landmarks
	res.IsLeftHand = &left

	return res
}

// Latency returns completedAt - submittedAt in milliseconds, clamped to zero.
func Latency(submittedAt, completedAt int64) int64 {
	if d := completedAt - submittedAt; d > 0 {
		return d
	}
	return 0
}

// firstHand extracts hand 0 from the payload.
func firstHand(raw *engine.Result) (hand HandResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			hand = HandResult{}
			err = fmt.Errorf("malformed payload: %v", r)
		}
	}()

	if len(raw.Handedness) == 0 || len(raw.Handedness[0]) == 0 {
		return HandResult{}, errors.New("missing handedness for hand 0")
	}

	points := raw.Landmarks[0]
	landmarks := make([]Landmark, len(points))
	for i, p := range points {
		if p.X == nil || p.Y == nil || p.Z == nil {
			return HandResult{}, fmt.Errorf("landmark %d: missing coordinate", i)
		}
		landmarks[i] = Landmark{
			Index: i,
			X:     *p.X,
			Y:     *p.Y,
			Z:     *p.Z,
		}
	}

	return HandResult{
		Landmarks:  landmarks,
		Handedness: raw.Handedness[0][0].CategoryName,
	}, nil
}
