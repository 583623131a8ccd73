package surface

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrNoFreeBuffer   = errors.New("no free buffer in pool")
	ErrNothingFlushed = errors.New("no flushed buffer to lock")
	ErrNotLocked      = errors.New("buffer is not locked")
)

type slotState int

const (
	slotFree slotState = iota
	slotDrawing
	slotFlushed
	slotLocked
)

func (s slotState) String() string {
	switch s {
	case slotFree:
		return "free"
	case slotDrawing:
		return "drawing"
	case slotFlushed:
		return "flushed"
	case slotLocked:
		return "locked"
	}
	return fmt.Sprintf("slotState(%d)", int(s))
}

// Pool tracks which buffers of a surface are free, being drawn, flushed and
// waiting to be locked, or locked by the presenter. It mirrors what a GBM
// surface does internally and is shared by the software surfaces.
type Pool struct {
	mu      sync.Mutex
	buffers []Buffer
	state   map[uint64]slotState
	drawing Buffer
	flushed []Buffer
}

func NewPool(buffers []Buffer) *Pool {
	p := &Pool{
		buffers: buffers,
		state:   make(map[uint64]slotState, len(buffers)),
	}
	for _, b := range buffers {
		p.state[b.ID()] = slotFree
	}
	return p
}

// Acquire returns the buffer the next frame draws into. Calling it again
// before Flush returns the same buffer.
func (p *Pool) Acquire() (Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquireLocked()
}

func (p *Pool) acquireLocked() (Buffer, error) {
	if p.drawing != nil {
		return p.drawing, nil
	}
	for _, b := range p.buffers {
		if p.state[b.ID()] == slotFree {
			p.state[b.ID()] = slotDrawing
			p.drawing = b
			return b, nil
		}
	}
	return nil, ErrNoFreeBuffer
}

// Flush marks the buffer being drawn as complete. A frame that was never
// acquired is flushed as whatever the next free buffer holds.
func (p *Pool) Flush() (Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, err := p.acquireLocked()
	if err != nil {
		return nil, err
	}
	p.state[b.ID()] = slotFlushed
	p.flushed = append(p.flushed, b)
	p.drawing = nil
	return b, nil
}

// Lock takes the oldest flushed buffer out of the render pool.
func (p *Pool) Lock() (Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.flushed) == 0 {
		return nil, ErrNothingFlushed
	}
	b := p.flushed[0]
	p.flushed = p.flushed[1:]
	p.state[b.ID()] = slotLocked
	return b, nil
}

// Release hands a locked buffer back to the render pool.
func (p *Pool) Release(b Buffer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.state[b.ID()]
	if !ok || st != slotLocked {
		return fmt.Errorf("%w: buffer %d is %s", ErrNotLocked, b.ID(), st)
	}
	p.state[b.ID()] = slotFree
	return nil
}

// Locked returns the number of buffers currently held by the presenter.
func (p *Pool) Locked() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, st := range p.state {
		if st == slotLocked {
			n++
		}
	}
	return n
}

// Buffers returns every buffer in the pool regardless of state.
func (p *Pool) Buffers() []Buffer {
	out := make([]Buffer, len(p.buffers))
	copy(out, p.buffers)
	return out
}
