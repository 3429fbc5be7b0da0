package capture

import (
	"context"
	"sync"
)

// Preview holds the most recent encoded frame accepted for detection and
// wakes readers waiting for the next one.
type Preview struct {
	mu      sync.RWMutex
	data    []byte
	seq     uint64
	changed chan struct{}
}

// NewPreview creates an empty Preview.
func NewPreview() *Preview {
	return &Preview{changed: make(chan struct{})}
}

// Set stores a copy of data as the latest frame.
func (p *Preview) Set(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)

	p.mu.Lock()
	p.data = buf
	p.seq++
	close(p.changed)
	p.changed = make(chan struct{})
	p.mu.Unlock()
}

// Latest returns the latest frame and its sequence number. The sequence is
// zero until the first Set.
func (p *Preview) Latest() ([]byte, uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.data, p.seq
}

// Next blocks until a frame newer than seq is available or ctx is done.
func (p *Preview) Next(ctx context.Context, seq uint64) ([]byte, uint64, error) {
	for {
		p.mu.RLock()
		data, cur, changed := p.data, p.seq, p.changed
		p.mu.RUnlock()

		if cur > seq {
			return data, cur, nil
		}

		select {
		case <-ctx.Done():
			return nil, seq, ctx.Err()
		case <-changed:
		}
	}
}
