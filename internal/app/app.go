// Package app ties the hand landmark pipeline together behind the calls a
// host application makes: initialize, detect, close and the bypass mode gate.
package app

import (
	"errors"
	"sync"

	"github.com/ayusman/handmark/internal/capture"
	"github.com/ayusman/handmark/internal/detector"
	"github.com/ayusman/handmark/internal/dispatch"
	"github.com/ayusman/handmark/internal/engine"
	"github.com/ayusman/handmark/internal/log"
	"github.com/ayusman/handmark/internal/session"
)

// Ack is the synchronous answer to a detect call.
type Ack string

const (
	AckSuccess Ack = "success"
	AckFail    Ack = "fail"
)

// ErrClosed is returned by every call after Close.
var ErrClosed = errors.New("detector closed")

// Config holds configuration options for the application.
type Config struct {
	// Factory builds engines. Required.
	Factory engine.Factory
	// Engine carries tuning options; zero value means engine.DefaultOptions.
	Engine *engine.Options
	// DispatchBuffer is the result queue size.
	DispatchBuffer int
	// AssetRoot and FilesDir are the source and destination of PrepareAsset.
	AssetRoot string
	FilesDir  string
	// Clock stamps frames and completions; nil means capture.Monotonic.
	Clock capture.Clock
	// Preview, when set, receives every frame accepted for detection.
	Preview *capture.Preview
}

// App is the hand landmark detector as seen by a host application.
type App struct {
	config     Config
	clock      capture.Clock
	decoder    *capture.Decoder
	dispatcher *dispatch.Dispatcher

	mu        sync.RWMutex
	session   *session.Manager
	modelPath string
	bypass    bool
	rebuild   bool
	closed    bool
}

// New creates an App with its dispatcher running. No engine is started
// until Initialize.
func New(config Config) *App {
	clock := config.Clock
	if clock == nil {
		clock = capture.Monotonic
	}

	a := &App{
		config:     config,
		clock:      clock,
		decoder:    capture.NewDecoder(clock),
		dispatcher: dispatch.New(config.DispatchBuffer),
	}
	a.dispatcher.Start()

	return a
}

// SetListener registers the listener for results and engine errors.
// It replaces any previous listener; nil removes it.
func (a *App) SetListener(l dispatch.Listener) {
	a.dispatcher.SetListener(l)
}

// Initialize starts a session for the model at modelPath. An existing
// session is closed first. On failure the new session stays Failed and every
// Detect answers AckFail until Initialize succeeds.
func (a *App) Initialize(modelPath string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}

	if a.session != nil {
		if err := a.session.Close(); err != nil {
			log.Warn("failed to close previous session", "error", err)
		}
	}

	a.modelPath = modelPath
	a.rebuild = false
	return a.startSession()
}

// startSession must be called with a.mu held.
func (a *App) startSession() error {
	base := engine.DefaultOptions()
	if a.config.Engine != nil {
		base = *a.config.Engine
	}

	s := session.New(a.config.Factory, base)
	a.session = s

	return s.Initialize(a.modelPath, session.Callbacks{
		OnResult: func(res *engine.Result, img engine.ImageInfo) {
			completed := a.clock()
			result := detector.Translate(res, completed, img, s.Delegate())
			a.dispatcher.PostResult(s, &result)
		},
		OnError: func(err error) {
			log.Warn("engine error", "session", s.ID().String(), "error", err)
			a.dispatcher.PostError(s, err.Error())
		},
	})
}

// Detect decodes data and submits it for inference. It answers as soon as
// the frame is accepted; the result arrives later through the listener.
func (a *App) Detect(data []byte) Ack {
	if _, err := a.Submit(data); err != nil {
		log.Warn("detect failed", "error", err)
		return AckFail
	}
	return AckSuccess
}

// Submit is Detect with a typed outcome. In bypass mode it succeeds with a
// zero token without touching the decoder or the engine.
func (a *App) Submit(data []byte) (session.Token, error) {
	s, bypass, err := a.activeSession()
	if err != nil {
		return session.Token{}, err
	}
	if bypass {
		return session.Token{}, nil
	}

	// Reject before paying for the decode.
	switch s.State() {
	case session.Ready:
	case session.Closed:
		return session.Token{}, session.ErrClosed
	default:
		return session.Token{}, session.ErrUninitialized
	}

	frame, err := a.decoder.Decode(data)
	if err != nil {
		return session.Token{}, err
	}

	token, err := s.Submit(frame)
	if err != nil {
		return session.Token{}, err
	}

	if a.config.Preview != nil {
		a.config.Preview.Set(data)
	}
	return token, nil
}

// activeSession returns the session to submit to, rebuilding it when the
// mode gate tore the previous one down.
func (a *App) activeSession() (*session.Manager, bool, error) {
	a.mu.RLock()
	s, bypass, rebuild, closed := a.session, a.bypass, a.rebuild, a.closed
	a.mu.RUnlock()

	switch {
	case closed:
		return nil, false, ErrClosed
	case bypass:
		return nil, true, nil
	case s == nil:
		return nil, false, session.ErrUninitialized
	case !rebuild:
		return s, false, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, false, ErrClosed
	}
	if a.rebuild && !a.bypass {
		a.rebuild = false
		log.Info("rebuilding session after bypass")
		if err := a.startSession(); err != nil {
			return nil, false, err
		}
	}
	return a.session, a.bypass, nil
}

// SetMode turns the bypass gate on or off and returns the resulting mode.
// Leaving bypass while a session is live tears the session down; a fresh
// one is built on the next Detect.
func (a *App) SetMode(bypass bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	was := a.bypass
	a.bypass = bypass

	if was && !bypass && a.session != nil && a.session.State() == session.Ready {
		if err := a.session.Close(); err != nil {
			log.Warn("failed to close session", "error", err)
		}
		a.rebuild = true
	}

	log.Info("mode changed", "bypass", bypass)
	return a.bypass
}

// Mode reports whether the bypass gate is on.
func (a *App) Mode() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.bypass
}

// State returns the state of the current session. Without a session it is
// Uninitialized.
func (a *App) State() session.State {
	a.mu.RLock()
	s := a.session
	a.mu.RUnlock()

	if s == nil {
		return session.Uninitialized
	}
	return s.State()
}

// Delegate returns the execution mode of the current session, if any.
func (a *App) Delegate() engine.Delegate {
	a.mu.RLock()
	s := a.session
	a.mu.RUnlock()

	if s == nil {
		return ""
	}
	return s.Delegate()
}

// DispatchStats returns the dispatcher counters.
func (a *App) DispatchStats() dispatch.Stats {
	return a.dispatcher.Stats()
}

// Close releases the engine and stops delivering events. Completions still
// in flight are discarded. Closing twice is a no-op.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	s := a.session
	a.mu.Unlock()

	var err error
	if s != nil {
		err = s.Close()
	}
	a.dispatcher.Stop()

	log.Info("detector closed")
	return err
}
