package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/handmark/internal/capture"
	"github.com/ayusman/handmark/internal/detector"
	"github.com/ayusman/handmark/internal/dispatch"
	"github.com/ayusman/handmark/internal/engine"
	"github.com/ayusman/handmark/internal/fixture"
	"github.com/ayusman/handmark/internal/session"
)

type fakeClock struct {
	now atomic.Int64
}

func (c *fakeClock) Now() int64   { return c.now.Load() }
func (c *fakeClock) Set(ms int64) { c.now.Store(ms) }

type events struct {
	mu       sync.Mutex
	results  []*detector.DetectionResult
	messages []string
	notify   chan struct{}
}

func newEvents() *events {
	return &events{notify: make(chan struct{}, 64)}
}

func (e *events) OnResults(r *detector.DetectionResult) {
	e.mu.Lock()
	e.results = append(e.results, r)
	e.mu.Unlock()
	e.notify <- struct{}{}
}

func (e *events) OnError(msg string) {
	e.mu.Lock()
	e.messages = append(e.messages, msg)
	e.mu.Unlock()
	e.notify <- struct{}{}
}

func (e *events) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-e.notify:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
}

func (e *events) snapshot() ([]*detector.DetectionResult, []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*detector.DetectionResult(nil), e.results...), append([]string(nil), e.messages...)
}

type harness struct {
	app     *App
	factory *engine.MockFactory
	clock   *fakeClock
	events  *events
	model   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()
	model := filepath.Join(dir, "hand_landmarker.task")
	require.NoError(t, os.WriteFile(model, []byte("model"), 0644))

	h := &harness{
		factory: engine.NewMockFactory(),
		clock:   &fakeClock{},
		events:  newEvents(),
		model:   model,
	}
	h.app = New(Config{
		Factory:        h.factory.New,
		DispatchBuffer: 8,
		AssetRoot:      dir,
		FilesDir:       filepath.Join(dir, "files"),
		Clock:          h.clock.Now,
	})
	h.app.SetListener(h.events)
	t.Cleanup(func() { h.app.Close() })

	return h
}

func TestApp_DetectBeforeInitialize(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, AckFail, h.app.Detect(fixture.JPEGFrame(32, 24)))
	assert.Equal(t, session.Uninitialized, h.app.State())
	assert.Empty(t, h.factory.Attempts())
}

func TestApp_DetectDeliversResult(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.app.Initialize(h.model))
	assert.Equal(t, engine.DelegateGPU, h.app.Delegate())

	h.clock.Set(1000)
	assert.Equal(t, AckSuccess, h.app.Detect(fixture.PNGFrame(64, 48)))

	eng := h.factory.Last()
	subs := eng.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, int64(1000), subs[0].Timestamp)
	assert.Equal(t, 64, subs[0].Image.Width)
	assert.Equal(t, 48, subs[0].Image.Height)
	assert.Len(t, subs[0].Image.Pixels, 64*48*4)

	h.clock.Set(1050)
	eng.Complete(0, engine.HandPayload(detector.HandednessLeft, fixture.OpenPalm()))
	h.events.wait(t, 1)

	results, messages := h.events.snapshot()
	require.Len(t, results, 1)
	assert.Empty(t, messages)

	got := results[0]
	assert.Equal(t, int64(50), got.InferenceTime)
	assert.Equal(t, engine.DelegateGPU, got.Delegate)
	assert.Equal(t, 64, got.Width)
	assert.Equal(t, 48, got.Height)
	assert.Len(t, got.Landmarks, detector.NumLandmarks)
	require.NotNil(t, got.IsLeftHand)
	assert.True(t, *got.IsLeftHand)
}

func TestApp_DetectRejectsUndecodableBytes(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.app.Initialize(h.model))

	assert.Equal(t, AckFail, h.app.Detect(nil))
	assert.Equal(t, AckFail, h.app.Detect([]byte("not an image")))
	assert.Empty(t, h.factory.Last().Submissions())
	assert.Equal(t, session.Ready, h.app.State())
}

func TestApp_InitializeFailure(t *testing.T) {
	h := newHarness(t)
	h.factory.FailDelegate(engine.DelegateGPU, nil)
	h.factory.FailDelegate(engine.DelegateCPU, nil)

	err := h.app.Initialize(h.model)
	require.ErrorIs(t, err, session.ErrSetupFailed)
	assert.Equal(t, session.Failed, h.app.State())
	assert.Equal(t, AckFail, h.app.Detect(fixture.JPEGFrame(16, 16)))

	_, err = h.app.Submit(fixture.JPEGFrame(16, 16))
	assert.ErrorIs(t, err, session.ErrUninitialized)
}

func TestApp_InitializeFallsBackToCPU(t *testing.T) {
	h := newHarness(t)
	h.factory.FailDelegate(engine.DelegateGPU, nil)

	require.NoError(t, h.app.Initialize(h.model))
	assert.Equal(t, engine.DelegateCPU, h.app.Delegate())

	require.Equal(t, AckSuccess, h.app.Detect(fixture.JPEGFrame(16, 16)))
	h.factory.Last().Complete(0, nil)
	h.events.wait(t, 1)

	results, _ := h.events.snapshot()
	require.Len(t, results, 1)
	assert.Equal(t, engine.DelegateCPU, results[0].Delegate)
	assert.Empty(t, results[0].Landmarks)
	assert.Nil(t, results[0].IsLeftHand)
}

func TestApp_OverlappingSubmissions(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.app.Initialize(h.model))

	h.clock.Set(100)
	require.Equal(t, AckSuccess, h.app.Detect(fixture.JPEGFrame(16, 16)))
	h.clock.Set(120)
	require.Equal(t, AckSuccess, h.app.Detect(fixture.JPEGFrame(16, 16)))

	eng := h.factory.Last()
	require.Len(t, eng.Submissions(), 2)

	// Completions may arrive out of submission order.
	h.clock.Set(200)
	eng.Complete(1, nil)
	eng.Complete(0, nil)
	h.events.wait(t, 2)

	results, _ := h.events.snapshot()
	require.Len(t, results, 2)
	assert.Equal(t, int64(80), results[0].InferenceTime)
	assert.Equal(t, int64(100), results[1].InferenceTime)
}

func TestApp_EngineErrorKeepsSessionReady(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.app.Initialize(h.model))

	h.factory.Last().Fail(errors.New("inference failed"))
	h.events.wait(t, 1)

	_, messages := h.events.snapshot()
	assert.Equal(t, []string{"inference failed"}, messages)
	assert.Equal(t, session.Ready, h.app.State())
	assert.Equal(t, AckSuccess, h.app.Detect(fixture.JPEGFrame(16, 16)))
}

func TestApp_SubmitErrorFromEngine(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.app.Initialize(h.model))
	h.factory.Last().SetSubmitError(errors.New("queue full"))

	assert.Equal(t, AckFail, h.app.Detect(fixture.JPEGFrame(16, 16)))
	assert.Equal(t, session.Ready, h.app.State())
}

func TestApp_CloseDiscardsLateCompletions(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.app.Initialize(h.model))
	require.Equal(t, AckSuccess, h.app.Detect(fixture.JPEGFrame(16, 16)))

	eng := h.factory.Last()
	require.NoError(t, h.app.Close())
	assert.Equal(t, 1, eng.CloseCalls())

	eng.Complete(0, nil)
	eng.Fail(errors.New("late"))

	results, messages := h.events.snapshot()
	assert.Empty(t, results)
	assert.Empty(t, messages)

	assert.Equal(t, AckFail, h.app.Detect(fixture.JPEGFrame(16, 16)))
	assert.ErrorIs(t, h.app.Initialize(h.model), ErrClosed)

	require.NoError(t, h.app.Close())
	assert.Equal(t, 1, eng.CloseCalls())
}

func TestApp_Bypass(t *testing.T) {
	h := newHarness(t)

	assert.False(t, h.app.Mode())
	assert.True(t, h.app.SetMode(true))
	assert.True(t, h.app.Mode())

	// Bypass answers success without a session or a decodable frame.
	assert.Equal(t, AckSuccess, h.app.Detect([]byte("garbage")))
	assert.Empty(t, h.factory.Attempts())

	results, messages := h.events.snapshot()
	assert.Empty(t, results)
	assert.Empty(t, messages)
}

func TestApp_LeavingBypassRebuildsSession(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.app.Initialize(h.model))
	first := h.factory.Last()

	h.app.SetMode(true)
	assert.Equal(t, session.Ready, h.app.State())
	assert.Zero(t, first.CloseCalls())

	assert.False(t, h.app.SetMode(false))
	assert.Equal(t, 1, first.CloseCalls())
	assert.Equal(t, session.Closed, h.app.State())

	require.Equal(t, AckSuccess, h.app.Detect(fixture.JPEGFrame(16, 16)))
	second := h.factory.Last()
	require.NotSame(t, first, second)
	assert.Equal(t, session.Ready, h.app.State())
	assert.Len(t, second.Submissions(), 1)
	assert.Empty(t, first.Submissions())
}

func TestApp_PrepareAsset(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(filepath.Join(h.app.config.AssetRoot, "hand.task"), []byte("weights"), 0644))

	t.Run("copies into files dir", func(t *testing.T) {
		path, err := h.app.PrepareAsset("hand.task", "copy.task")
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(path))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "weights", string(data))
	})

	t.Run("invalid arguments", func(t *testing.T) {
		_, err := h.app.PrepareAsset("", "copy.task")
		assert.ErrorIs(t, err, ErrInvalidArguments)
		_, err = h.app.PrepareAsset("hand.task", "")
		assert.ErrorIs(t, err, ErrInvalidArguments)
		_, err = h.app.PrepareAsset("hand.task", "../escape.task")
		assert.ErrorIs(t, err, ErrInvalidArguments)
	})

	t.Run("missing asset", func(t *testing.T) {
		_, err := h.app.PrepareAsset("nope.task", "nope.task")
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("bypass copies nothing", func(t *testing.T) {
		h.app.SetMode(true)
		defer h.app.SetMode(false)

		path, err := h.app.PrepareAsset("nope.task", "canned.task")
		require.NoError(t, err)
		assert.Equal(t, "canned.task", filepath.Base(path))
		_, err = os.Stat(path)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestApp_RunCamera(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.app.Initialize(h.model))

	cam := capture.NewMockCamera(32, 24)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.app.RunCamera(ctx, cam, 50) }()

	require.Eventually(t, func() bool {
		return len(h.factory.Last().Submissions()) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("RunCamera did not stop")
	}
	assert.False(t, cam.IsOpen())

	sub := h.factory.Last().Submissions()[0]
	assert.Equal(t, 32, sub.Image.Width)
	assert.Equal(t, 24, sub.Image.Height)
}

var _ dispatch.Listener = (*events)(nil)

func TestApp_PreviewReceivesAcceptedFrames(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "model.task")
	require.NoError(t, os.WriteFile(model, []byte("model"), 0644))

	preview := capture.NewPreview()
	a := New(Config{Factory: engine.NewMockFactory().New, Preview: preview})
	defer a.Close()

	assert.Equal(t, AckFail, a.Detect(fixture.JPEGFrame(8, 8)))
	_, seq := preview.Latest()
	assert.Zero(t, seq, "rejected frames must not reach the preview")

	require.NoError(t, a.Initialize(model))
	frame := fixture.JPEGFrame(8, 8)
	require.Equal(t, AckSuccess, a.Detect(frame))

	data, seq := preview.Latest()
	assert.Equal(t, uint64(1), seq)
	assert.Equal(t, frame, data)
}
