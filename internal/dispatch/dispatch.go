// Package dispatch delivers detection results and engine errors to a single
// registered listener.
//
// Engine completions arrive on engine owned goroutines. The Dispatcher moves
// them through a FIFO channel onto one dispatch goroutine, so a listener is
// never invoked concurrently and sees events in the order they were posted.
package dispatch

import (
	"sync"
	"sync/atomic"

	"github.com/ayusman/handmark/internal/detector"
	"github.com/ayusman/handmark/internal/log"
)

// DefaultBufferSize is the event queue capacity used when none is given.
const DefaultBufferSize = 64

// Listener receives the outcome of inferences.
type Listener interface {
	OnResults(result *detector.DetectionResult)
	OnError(message string)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Results func(result *detector.DetectionResult)
	Error   func(message string)
}

func (f ListenerFuncs) OnResults(result *detector.DetectionResult) {
	if f.Results != nil {
		f.Results(result)
	}
}

func (f ListenerFuncs) OnError(message string) {
	if f.Error != nil {
		f.Error(message)
	}
}

// Source is whatever produced an event. Events from a closed source are
// discarded when they reach the front of the queue.
type Source interface {
	Closed() bool
}

type event struct {
	source  Source
	result  *detector.DetectionResult
	message string
}

// listenerRef boxes a Listener so it can live in an atomic.Pointer.
type listenerRef struct {
	l Listener
}

// Stats counts dispatcher outcomes.
type Stats struct {
	Delivered  uint64
	NoListener uint64
	SourceGone uint64
	AfterStop  uint64
}

// Dispatcher serializes event delivery onto one goroutine.
type Dispatcher struct {
	events   chan event
	listener atomic.Pointer[listenerRef]

	mu      sync.RWMutex
	started bool
	stopped bool
	done    chan struct{}

	delivered  atomic.Uint64
	noListener atomic.Uint64
	sourceGone atomic.Uint64
	afterStop  atomic.Uint64
}

// New creates a Dispatcher with a queue of bufferSize events.
func New(bufferSize int) *Dispatcher {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	return &Dispatcher{
		events: make(chan event, bufferSize),
		done:   make(chan struct{}),
	}
}

// Start launches the dispatch goroutine. Calling it again is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started || d.stopped {
		return
	}
	d.started = true
	go d.run()
}

// Stop stops accepting events, delivers what is already queued and waits for
// the dispatch goroutine to exit. It must not be called from a listener.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	started := d.started
	close(d.events)
	d.mu.Unlock()

	if started {
		<-d.done
	}
}

// SetListener registers l, replacing any previous listener. A nil l removes
// the registration.
func (d *Dispatcher) SetListener(l Listener) {
	if l == nil {
		d.listener.Store(nil)
		return
	}
	d.listener.Store(&listenerRef{l: l})
}

// PostResult queues a result from src.
func (d *Dispatcher) PostResult(src Source, result *detector.DetectionResult) {
	d.post(event{source: src, result: result})
}

// PostError queues an engine error from src.
func (d *Dispatcher) PostError(src Source, message string) {
	d.post(event{source: src, message: message})
}

// post blocks while the queue is full so that no event is lost.
func (d *Dispatcher) post(ev event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		d.afterStop.Add(1)
		return
	}
	d.events <- ev
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for ev := range d.events {
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev event) {
	if ev.source != nil && ev.source.Closed() {
		d.sourceGone.Add(1)
		log.Debug("discarding event from closed session")
		return
	}

	ref := d.listener.Load()
	if ref == nil {
		d.noListener.Add(1)
		return
	}

	if ev.result != nil {
		ref.l.OnResults(ev.result)
	} else {
		ref.l.OnError(ev.message)
	}
	d.delivered.Add(1)
}

// Stats returns a snapshot of the delivery counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Delivered:  d.delivered.Load(),
		NoListener: d.noListener.Load(),
		SourceGone: d.sourceGone.Load(),
		AfterStop:  d.afterStop.Load(),
	}
}

// Multi fans every event out to each listener in order. Nil entries are
// skipped.
func Multi(listeners ...Listener) Listener {
	var ls multi
	for _, l := range listeners {
		if l != nil {
			ls = append(ls, l)
		}
	}
	return ls
}

type multi []Listener

func (m multi) OnResults(result *detector.DetectionResult) {
	for _, l := range m {
		l.OnResults(result)
	}
}

func (m multi) OnError(message string) {
	for _, l := range m {
		l.OnError(message)
	}
}
