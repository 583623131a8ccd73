package simhw

import (
	"sync"
	"sync/atomic"

	"github.com/helixml/kmspresent/pkg/surface"
)

var nextBufferID atomic.Uint64

type buffer struct {
	id   uint64
	info surface.Info
}

func (b *buffer) ID() uint64 { return b.id }

func (b *buffer) Info() surface.Info { return b.info }

// Surface is a surface.Provider over a fixed pool of buffers. Flushing it
// flushes the GPU command stream.
type Surface struct {
	mu       sync.Mutex
	gpu      *GPU
	pool     *surface.Pool
	released []uint64
	bad      []error
	swapErr  error
	lockErr  error
	swaps    int
}

func NewSurface(gpu *GPU, count int, width, height uint32) *Surface {
	bufs := make([]surface.Buffer, count)
	for i := range bufs {
		bufs[i] = &buffer{
			id: nextBufferID.Add(1),
			info: surface.Info{
				Width:    width,
				Height:   height,
				Stride:   width * 4,
				Handle:   uint32(i + 1),
				Format:   surface.FormatXRGB8888,
				Modifier: surface.ModifierInvalid,
			},
		}
	}
	return &Surface{gpu: gpu, pool: surface.NewPool(bufs)}
}

// FailSwap makes SwapBuffers fail with err, or succeed again when err is nil.
func (s *Surface) FailSwap(err error) {
	s.mu.Lock()
	s.swapErr = err
	s.mu.Unlock()
}

// FailLock makes LockFrontBuffer fail with err, or succeed again when err is
// nil. A failed lock leaves the flushed buffer in the pool.
func (s *Surface) FailLock(err error) {
	s.mu.Lock()
	s.lockErr = err
	s.mu.Unlock()
}

func (s *Surface) SwapBuffers() error {
	s.mu.Lock()
	err := s.swapErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if _, err := s.pool.Flush(); err != nil {
		return err
	}
	if s.gpu != nil {
		s.gpu.Flush()
	}
	s.mu.Lock()
	s.swaps++
	s.mu.Unlock()
	return nil
}

func (s *Surface) LockFrontBuffer() (surface.Buffer, error) {
	s.mu.Lock()
	err := s.lockErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.pool.Lock()
}

func (s *Surface) ReleaseBuffer(buf surface.Buffer) {
	err := s.pool.Release(buf)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, buf.ID())
	if err != nil {
		s.bad = append(s.bad, err)
	}
}

// Released lists the ids of released buffers in order.
func (s *Surface) Released() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.released...)
}

// BadReleases lists releases of buffers that were not locked.
func (s *Surface) BadReleases() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.bad...)
}

func (s *Surface) Locked() int {
	return s.pool.Locked()
}

func (s *Surface) Swaps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swaps
}

func (s *Surface) Buffers() []surface.Buffer {
	return s.pool.Buffers()
}
