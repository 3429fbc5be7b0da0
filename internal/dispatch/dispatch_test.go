package dispatch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/handmark/internal/detector"
)

type fakeSource struct {
	closed atomic.Bool
}

func (s *fakeSource) Closed() bool { return s.closed.Load() }

// recorder is a Listener that records everything it receives and checks it
// is never entered concurrently.
type recorder struct {
	mu       sync.Mutex
	inside   atomic.Int32
	overlap  atomic.Bool
	results  []int64
	messages []string
}

func (r *recorder) enter() {
	if r.inside.Add(1) > 1 {
		r.overlap.Store(true)
	}
}

func (r *recorder) leave() { r.inside.Add(-1) }

func (r *recorder) OnResults(res *detector.DetectionResult) {
	r.enter()
	defer r.leave()
	r.mu.Lock()
	r.results = append(r.results, res.InferenceTime)
	r.mu.Unlock()
}

func (r *recorder) OnError(msg string) {
	r.enter()
	defer r.leave()
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
}

func (r *recorder) snapshot() ([]int64, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.results...), append([]string(nil), r.messages...)
}

func result(n int64) *detector.DetectionResult {
	return &detector.DetectionResult{InferenceTime: n}
}

func TestDispatcher_OrderAndExactlyOnce(t *testing.T) {
	d := New(4)
	d.Start()
	rec := &recorder{}
	d.SetListener(rec)
	src := &fakeSource{}

	const n = 100
	for i := int64(0); i < n; i++ {
		d.PostResult(src, result(i))
	}
	d.PostError(src, "engine failure")
	d.Stop()

	results, messages := rec.snapshot()
	require.Len(t, results, n)
	for i, v := range results {
		assert.Equal(t, int64(i), v, "results must keep posting order")
	}
	assert.Equal(t, []string{"engine failure"}, messages)
	assert.Equal(t, uint64(n+1), d.Stats().Delivered)
}

func TestDispatcher_ConcurrentProducers(t *testing.T) {
	d := New(2)
	d.Start()
	rec := &recorder{}
	d.SetListener(rec)
	src := &fakeSource{}

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				d.PostResult(src, result(int64(p*1000+i)))
			}
		}(p)
	}
	wg.Wait()
	d.Stop()

	results, _ := rec.snapshot()
	assert.Len(t, results, 200)
	assert.False(t, rec.overlap.Load(), "listener must never run concurrently")

	seen := make(map[int64]bool)
	for _, v := range results {
		assert.False(t, seen[v], "duplicate delivery of %d", v)
		seen[v] = true
	}
}

func TestDispatcher_NoListener(t *testing.T) {
	d := New(1)
	d.Start()

	d.PostResult(&fakeSource{}, result(1))
	d.PostError(nil, "dropped")
	d.Stop()

	assert.Equal(t, uint64(2), d.Stats().NoListener)
	assert.Zero(t, d.Stats().Delivered)
}

func TestDispatcher_DiscardsClosedSource(t *testing.T) {
	d := New(8)
	rec := &recorder{}
	d.SetListener(rec)
	src := &fakeSource{}

	// Queue before the dispatch goroutine runs, then close the source: the
	// decision is taken at dispatch time.
	d.PostResult(src, result(1))
	d.PostError(src, "late")
	src.closed.Store(true)

	d.Start()
	d.Stop()

	results, messages := rec.snapshot()
	assert.Empty(t, results)
	assert.Empty(t, messages)
	assert.Equal(t, uint64(2), d.Stats().SourceGone)
}

func TestDispatcher_SwapListener(t *testing.T) {
	d := New(1)
	d.Start()
	defer d.Stop()

	first := make(chan int64, 1)
	second := make(chan int64, 1)
	d.SetListener(ListenerFuncs{Results: func(r *detector.DetectionResult) { first <- r.InferenceTime }})
	d.PostResult(nil, result(1))

	select {
	case v := <-first:
		assert.Equal(t, int64(1), v)
	case <-time.After(2 * time.Second):
		t.Fatal("first listener not called")
	}

	d.SetListener(ListenerFuncs{Results: func(r *detector.DetectionResult) { second <- r.InferenceTime }})
	d.PostResult(nil, result(2))

	select {
	case v := <-second:
		assert.Equal(t, int64(2), v)
	case <-time.After(2 * time.Second):
		t.Fatal("second listener not called")
	}
	assert.Empty(t, first)
}

func TestDispatcher_StopIsIdempotent(t *testing.T) {
	d := New(1)
	d.Start()
	d.Stop()
	d.Stop()

	d.PostResult(nil, result(1))
	assert.Equal(t, uint64(1), d.Stats().AfterStop)
}

func TestListenerFuncs_NilFields(t *testing.T) {
	var l Listener = ListenerFuncs{}
	l.OnResults(result(1))
	l.OnError("ignored")
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	l := Multi(a, nil, b)

	l.OnResults(result(7))
	l.OnError("boom")

	for _, r := range []*recorder{a, b} {
		results, messages := r.snapshot()
		assert.Equal(t, []int64{7}, results)
		assert.Equal(t, []string{"boom"}, messages)
	}
}
