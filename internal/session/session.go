// Package session owns the lifecycle of one inference engine handle.
//
// A Manager moves through Uninitialized → Ready → Closed, or from
// Uninitialized to Failed when the engine cannot be set up. Submissions are
// only accepted while Ready.
package session

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/ayusman/handmark/internal/capture"
	"github.com/ayusman/handmark/internal/engine"
	"github.com/ayusman/handmark/internal/log"
)

var (
	// ErrUninitialized is returned when submitting to a session that never
	// became ready, including one whose setup failed.
	ErrUninitialized = errors.New("session not initialized")
	// ErrClosed is returned when submitting to a closed session.
	ErrClosed = errors.New("session closed")
	// ErrSetupFailed wraps every engine setup failure.
	ErrSetupFailed = errors.New("engine setup failed")
	// ErrAlreadyInitialized is returned by Initialize outside Uninitialized.
	ErrAlreadyInitialized = errors.New("session already initialized")
)

// State is the lifecycle state of a session.
type State int

const (
	Uninitialized State = iota
	Ready
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Token identifies an accepted submission.
type Token struct {
	ID        uuid.UUID
	Timestamp int64
}

// Callbacks receive the engine's completions for this session.
type Callbacks struct {
	OnResult engine.ResultFunc
	OnError  engine.ErrorFunc
}

// Manager owns exactly one engine handle.
type Manager struct {
	id      uuid.UUID
	factory engine.Factory
	base    engine.Options

	mu       sync.RWMutex
	state    State
	eng      engine.Engine
	delegate engine.Delegate
}

// New creates an Uninitialized session that builds its engine with factory.
// base carries the engine tuning options; its model path, delegate and
// callbacks are set by Initialize.
func New(factory engine.Factory, base engine.Options) *Manager {
	return &Manager{
		id:      uuid.New(),
		factory: factory,
		base:    base,
	}
}

// ID returns the session identifier.
func (m *Manager) ID() uuid.UUID {
	return m.id
}

// Initialize loads the model at modelPath. GPU execution is tried first and
// CPU is used when GPU setup fails. If neither can be set up the session
// enters Failed and stays there.
func (m *Manager) Initialize(modelPath string, cb Callbacks) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Uninitialized {
		return fmt.Errorf("%w (state %s)", ErrAlreadyInitialized, m.state)
	}

	logger := log.With("session", m.id.String())

	if _, err := os.Stat(modelPath); err != nil {
		m.state = Failed
		logger.Error("model not available", "path", modelPath, "error", err)
		return fmt.Errorf("%w: model %s: %v", ErrSetupFailed, modelPath, err)
	}

	opts := m.base
	opts.ModelPath = modelPath
	opts.OnResult = cb.OnResult
	opts.OnError = cb.OnError

	var errs []error
	for _, d := range []engine.Delegate{engine.DelegateGPU, engine.DelegateCPU} {
		opts.Delegate = d
		eng, err := m.factory(opts)
		if err != nil {
			logger.Warn("engine setup failed", "delegate", d, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", d, err))
			continue
		}

		m.eng = eng
		m.delegate = d
		m.state = Ready
		logger.Info("hand landmarker initialized", "delegate", d, "model", modelPath)
		return nil
	}

	m.state = Failed
	logger.Error("hand landmarker unavailable", "error", errors.Join(errs...))
	return fmt.Errorf("%w: %w", ErrSetupFailed, errors.Join(errs...))
}

// Submit forwards a frame to the engine. It returns once the engine has
// accepted the frame; the result arrives through the session callbacks.
// Overlapping submissions are passed through; their completion order is up
// to the engine.
func (m *Manager) Submit(frame *capture.Frame) (Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch m.state {
	case Ready:
	case Closed:
		return Token{}, ErrClosed
	default:
		return Token{}, ErrUninitialized
	}

	img := engine.Image{
		Pixels: frame.Pixels,
		Width:  frame.Width,
		Height: frame.Height,
	}
	if err := m.eng.DetectAsync(img, frame.Timestamp); err != nil {
		return Token{}, fmt.Errorf("submit frame: %w", err)
	}

	return Token{ID: uuid.New(), Timestamp: frame.Timestamp}, nil
}

// Close releases the engine handle and moves the session to Closed.
// Closing a closed or failed session is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	switch m.state {
	case Closed, Failed:
		m.mu.Unlock()
		return nil
	case Uninitialized:
		m.state = Closed
		m.mu.Unlock()
		return nil
	}

	eng := m.eng
	m.eng = nil
	m.state = Closed
	m.mu.Unlock()

	// The engine may still be delivering callbacks that read session state.
	if err := eng.Close(); err != nil {
		return fmt.Errorf("close engine: %w", err)
	}
	log.Debug("session closed", "session", m.id.String())
	return nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Closed reports whether the session has been closed. Late completions from
// a closed session are discarded by the dispatcher.
func (m *Manager) Closed() bool {
	return m.State() == Closed
}

// Delegate returns the execution mode chosen at initialization. It is empty
// unless the session became Ready.
func (m *Manager) Delegate() engine.Delegate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.delegate
}
