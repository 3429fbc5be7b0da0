package engine

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/ayusman/handmark/internal/log"
)

// DefaultHandshakeTimeout bounds how long engine setup may take.
const DefaultHandshakeTimeout = 30 * time.Second

// ProcessConfig locates the landmarker service the ProcessEngine talks to.
type ProcessConfig struct {
	// Python is the interpreter; empty means a virtualenv python if one is
	// found, otherwise python3.
	Python string
	// Script is the service script; empty means search default locations.
	Script string
	// HandshakeTimeout defaults to DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration
}

// wireRequest is one frame sent to the service.
type wireRequest struct {
	Timestamp int64  `cbor:"timestamp"`
	Width     int    `cbor:"width"`
	Height    int    `cbor:"height"`
	Pixels    []byte `cbor:"pixels"`
}

// wireMessage is anything the service writes back: the setup handshake,
// a frame result, or an error.
type wireMessage struct {
	Ready      bool            `cbor:"ready,omitempty"`
	Error      string          `cbor:"error,omitempty"`
	Timestamp  int64           `cbor:"timestamp,omitempty"`
	Width      int             `cbor:"width,omitempty"`
	Height     int             `cbor:"height,omitempty"`
	Landmarks  [][]RawLandmark `cbor:"landmarks,omitempty"`
	Handedness [][]Category    `cbor:"handedness,omitempty"`
}

// ProcessEngine implements Engine using a MediaPipe hand landmarker service
// running as a child process. Frames and results travel as CBOR streams over
// the child's stdin and stdout.
type ProcessEngine struct {
	opts Options
	cmd  *exec.Cmd

	mu     sync.Mutex
	stdin  io.WriteCloser
	enc    *cbor.Encoder
	closed bool

	done chan struct{}
}

// NewProcessFactory returns a Factory that starts one service process per
// engine.
func NewProcessFactory(cfg ProcessConfig) Factory {
	return func(opts Options) (Engine, error) {
		return NewProcessEngine(cfg, opts)
	}
}

// NewProcessEngine starts the service and waits for it to load the model
// with the requested delegate. Any failure before the service reports ready
// is returned as an error and the process is reaped.
func NewProcessEngine(cfg ProcessConfig, opts Options) (*ProcessEngine, error) {
	script := cfg.Script
	if script == "" {
		script = findLandmarkerScript()
	}
	if script == "" {
		return nil, fmt.Errorf("hand_landmarker_service.py not found")
	}

	python := cfg.Python
	if python == "" {
		python = findVenvPython()
	}
	if python == "" {
		python = "python3"
	}

	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}

	cmd := exec.Command(python, script,
		"--model", opts.ModelPath,
		"--delegate", string(opts.Delegate),
		"--num-hands", strconv.Itoa(opts.NumHands),
		"--min-hand-detection-confidence", strconv.FormatFloat(opts.MinHandDetectionConfidence, 'f', -1, 64),
		"--min-hand-presence-confidence", strconv.FormatFloat(opts.MinHandPresenceConfidence, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(opts.MinTrackingConfidence, 'f', -1, 64),
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start landmarker service: %w", err)
	}

	dec := cbor.NewDecoder(bufio.NewReader(stdout))

	if err := awaitReady(dec, timeout); err != nil {
		stdin.Close()
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		cmd.Wait()
		return nil, fmt.Errorf("landmarker setup (%s): %w", opts.Delegate, err)
	}

	e := &ProcessEngine{
		opts:  opts,
		cmd:   cmd,
		stdin: stdin,
		enc:   cbor.NewEncoder(stdin),
		done:  make(chan struct{}),
	}
	go e.readLoop(dec)

	return e, nil
}

func awaitReady(dec *cbor.Decoder, timeout time.Duration) error {
	result := make(chan error, 1)
	go func() {
		var msg wireMessage
		if err := dec.Decode(&msg); err != nil {
			result <- fmt.Errorf("read handshake: %w", err)
			return
		}
		if msg.Error != "" {
			result <- errors.New(msg.Error)
			return
		}
		if !msg.Ready {
			result <- errors.New("unexpected handshake message")
			return
		}
		result <- nil
	}()

	select {
	case err := <-result:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("handshake timeout after %s", timeout)
	}
}

// DetectAsync writes the frame to the service and returns without waiting
// for the result.
func (e *ProcessEngine) DetectAsync(img Image, timestampMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}

	req := wireRequest{
		Timestamp: timestampMs,
		Width:     img.Width,
		Height:    img.Height,
		Pixels:    img.Pixels,
	}
	if err := e.enc.Encode(req); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

// Close shuts down the service process. It waits for the reader goroutine so
// that no callback fires after Close returns.
func (e *ProcessEngine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.stdin.Close()
	e.mu.Unlock()

	<-e.done
	return e.cmd.Wait()
}

func (e *ProcessEngine) readLoop(dec *cbor.Decoder) {
	defer close(e.done)

	for {
		var msg wireMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || e.isClosed() {
				return
			}
			// The stream cannot be resynchronised after a bad message.
			e.reportError(fmt.Errorf("read result: %w", err))
			return
		}

		if msg.Error != "" {
			e.reportError(errors.New(msg.Error))
			continue
		}

		if e.opts.OnResult != nil {
			e.opts.OnResult(&Result{
				Timestamp:  msg.Timestamp,
				Landmarks:  msg.Landmarks,
				Handedness: msg.Handedness,
			}, ImageInfo{Width: msg.Width, Height: msg.Height})
		}
	}
}

func (e *ProcessEngine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *ProcessEngine) reportError(err error) {
	if e.opts.OnError != nil {
		e.opts.OnError(err)
		return
	}
	log.Warn("landmarker error with no handler", "error", err)
}

func findLandmarkerScript() string {
	// Get executable directory
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/hand_landmarker_service.py",
		"../scripts/hand_landmarker_service.py",
		filepath.Join(execDir, "scripts/hand_landmarker_service.py"),
		filepath.Join(os.Getenv("HOME"), ".handmark/scripts/hand_landmarker_service.py"),
	}

	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".handmark/venv/bin/python"),
	}

	return firstExisting(candidates)
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
