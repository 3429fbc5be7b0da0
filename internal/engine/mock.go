package engine

import (
	"errors"
	"sync"
)

// Submission is a frame recorded by MockEngine.
type Submission struct {
	Image     Image
	Timestamp int64
}

// MockEngine is a test implementation of the Engine interface.
// Completions are triggered manually with Complete and Fail, from whatever
// goroutine the test chooses.
type MockEngine struct {
	opts Options

	mu          sync.Mutex
	submissions []Submission
	submitErr   error
	closed      bool
	closeCalls  int
}

// NewMockEngine creates a MockEngine that reports to the callbacks in opts.
func NewMockEngine(opts Options) *MockEngine {
	return &MockEngine{opts: opts}
}

// Options returns the options the engine was built with.
func (m *MockEngine) Options() Options {
	return m.opts
}

// SetSubmitError makes DetectAsync fail with err.
func (m *MockEngine) SetSubmitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitErr = err
}

// DetectAsync records the submission.
func (m *MockEngine) DetectAsync(img Image, timestampMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrEngineClosed
	}
	if m.submitErr != nil {
		return m.submitErr
	}
	m.submissions = append(m.submissions, Submission{Image: img, Timestamp: timestampMs})
	return nil
}

// Submissions returns a copy of the recorded submissions.
func (m *MockEngine) Submissions() []Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Submission, len(m.submissions))
	copy(out, m.submissions)
	return out
}

// Complete delivers res for the submission at index i. The result timestamp
// is taken from the submission.
func (m *MockEngine) Complete(i int, res *Result) {
	m.mu.Lock()
	sub := m.submissions[i]
	m.mu.Unlock()

	if res == nil {
		res = &Result{}
	}
	res.Timestamp = sub.Timestamp
	if m.opts.OnResult != nil {
		m.opts.OnResult(res, ImageInfo{Width: sub.Image.Width, Height: sub.Image.Height})
	}
}

// Fail reports an engine level error.
func (m *MockEngine) Fail(err error) {
	if m.opts.OnError != nil {
		m.opts.OnError(err)
	}
}

// Close marks the engine closed and counts the call.
func (m *MockEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.closeCalls++
	return nil
}

// CloseCalls returns how many times Close was called.
func (m *MockEngine) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

// MockFactory builds MockEngines and can be told to fail for given delegates.
type MockFactory struct {
	mu       sync.Mutex
	failures map[Delegate]error
	attempts []Delegate
	engines  []*MockEngine
}

// NewMockFactory creates a MockFactory that succeeds for every delegate.
func NewMockFactory() *MockFactory {
	return &MockFactory{failures: make(map[Delegate]error)}
}

// FailDelegate makes construction with d fail. A nil err uses a generic error.
func (f *MockFactory) FailDelegate(d Delegate, err error) {
	if err == nil {
		err = errors.New("delegate " + string(d) + " unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[d] = err
}

// New implements Factory.
func (f *MockFactory) New(opts Options) (Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts = append(f.attempts, opts.Delegate)
	if err := f.failures[opts.Delegate]; err != nil {
		return nil, err
	}
	e := NewMockEngine(opts)
	f.engines = append(f.engines, e)
	return e, nil
}

// Attempts returns the delegates construction was attempted with, in order.
func (f *MockFactory) Attempts() []Delegate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Delegate(nil), f.attempts...)
}

// Last returns the most recently built engine, or nil.
func (f *MockFactory) Last() *MockEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.engines) == 0 {
		return nil
	}
	return f.engines[len(f.engines)-1]
}

// Engines returns every engine built so far.
func (f *MockFactory) Engines() []*MockEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MockEngine(nil), f.engines...)
}

// Float returns a pointer to v, for building RawLandmarks.
func Float(v float64) *float64 {
	return &v
}

// HandPayload builds a single hand Result from points and a handedness label.
func HandPayload(label string, points [][3]float64) *Result {
	lms := make([]RawLandmark, len(points))
	for i, p := range points {
		lms[i] = RawLandmark{X: Float(p[0]), Y: Float(p[1]), Z: Float(p[2])}
	}
	return &Result{
		Landmarks:  [][]RawLandmark{lms},
		Handedness: [][]Category{{{CategoryName: label, Score: 0.95}}},
	}
}
