package capture

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// MockCamera plays back frames for testing. Without explicit frames it
// produces solid frames of the configured size.
type MockCamera struct {
	width   int
	height  int
	frames  []*gocv.Mat
	index   int
	loop    bool
	mu      sync.Mutex
	running bool
	fps     int
	reads   int
}

// NewMockCamera creates a MockCamera producing width x height BGR frames.
func NewMockCamera(width, height int) *MockCamera {
	return &MockCamera{
		width:  width,
		height: height,
		loop:   true,
		fps:    DefaultFPS,
	}
}

func (c *MockCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	c.index = 0
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

func (c *MockCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil, ErrCameraNotOpen
	}
	c.reads++

	if c.frames == nil {
		shade := float64(c.reads % 256)
		frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(shade, 128, 255-shade, 0), c.height, c.width, gocv.MatTypeCV8UC3)
		return &frame, nil
	}

	if len(c.frames) == 0 {
		return nil, fmt.Errorf("no frames available")
	}

	if c.index >= len(c.frames) {
		if !c.loop {
			return nil, fmt.Errorf("no more frames")
		}
		c.index = 0
	}

	// Clone so the caller may close what it gets.
	frame := c.frames[c.index].Clone()
	c.index++

	return &frame, nil
}

func (c *MockCamera) SetFPS(fps int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fps = fps
}

func (c *MockCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Reads returns how many frames were requested while open.
func (c *MockCamera) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// SetFrames replaces generated frames with a fixed sequence. With loop unset
// ReadFrame fails once the sequence is exhausted.
func (c *MockCamera) SetFrames(frames []*gocv.Mat, loop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = frames
	c.loop = loop
	c.index = 0
}
