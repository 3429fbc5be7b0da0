package capture

import (
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

var (
	// ErrEmptyFrame is returned when decoding zero bytes.
	ErrEmptyFrame = errors.New("frame data is empty")
	// ErrDecodeFailed is returned when the bytes are not a decodable image.
	ErrDecodeFailed = errors.New("failed to decode frame")
)

// Clock returns a monotonic timestamp in milliseconds.
type Clock func() int64

var clockBase = time.Now()

// Monotonic is a Clock counting milliseconds since process start. It uses the
// monotonic reading carried by time.Time, so wall clock changes do not affect
// it.
func Monotonic() int64 {
	return time.Since(clockBase).Milliseconds()
}

// Frame is a decoded image ready for submission. Pixels hold Width*Height
// RGBA 8888 values.
type Frame struct {
	Pixels    []byte
	Width     int
	Height    int
	Timestamp int64
}

// Decoder turns encoded image bytes (JPEG, PNG, ...) into Frames.
type Decoder struct {
	clock Clock
}

// NewDecoder creates a Decoder that stamps frames with clock. A nil clock
// uses Monotonic.
func NewDecoder(clock Clock) *Decoder {
	if clock == nil {
		clock = Monotonic
	}
	return &Decoder{clock: clock}
}

// Decode decodes data into an RGBA frame. It either returns a complete frame
// or an error, never a partial buffer.
func (d *Decoder) Decode(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}

	bgr, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	defer bgr.Close()

	if bgr.Empty() {
		return nil, ErrDecodeFailed
	}

	rgba := gocv.NewMat()
	defer rgba.Close()

	gocv.CvtColor(bgr, &rgba, gocv.ColorBGRToRGBA)

	width, height := rgba.Cols(), rgba.Rows()
	pixels := rgba.ToBytes()
	if len(pixels) != width*height*4 {
		return nil, fmt.Errorf("%w: unexpected buffer size %d for %dx%d", ErrDecodeFailed, len(pixels), width, height)
	}

	return &Frame{
		Pixels:    pixels,
		Width:     width,
		Height:    height,
		Timestamp: d.clock(),
	}, nil
}
