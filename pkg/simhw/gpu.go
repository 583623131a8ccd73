package simhw

import (
	"fmt"
	"sync"

	"github.com/helixml/kmspresent/pkg/fence"
)

type gpuPoint struct {
	seq     uint64
	flushed bool
}

// GPU is a fence.Device. Points created with fence.NoFD become exportable
// when the surface flushes.
type GPU struct {
	mu          sync.Mutex
	fds         *FDTable
	initialized bool
	seq         uint64
	pending     []*gpuPoint

	created   int
	destroyed int
	exports   []int
	imports   []int
	waits     []int
}

func NewGPU(fds *FDTable) *GPU {
	return &GPU{fds: fds, initialized: true}
}

// Uninitialize makes every later Create fail, like a torn down EGL display.
func (g *GPU) Uninitialize() {
	g.mu.Lock()
	g.initialized = false
	g.mu.Unlock()
}

// Flush marks every created point as submitted.
func (g *GPU) Flush() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.pending {
		p.flushed = true
	}
	g.pending = nil
}

func (g *GPU) Create(fd int) (*fence.Fence, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.initialized {
		return nil, fmt.Errorf("%w: sync context not initialized", fence.ErrCreation)
	}
	g.seq++
	if fd == fence.NoFD {
		p := &gpuPoint{seq: g.seq}
		g.pending = append(g.pending, p)
		g.created++
		return fence.New(fence.NoFD, p), nil
	}
	if !g.fds.IsOpen(fd) {
		return nil, fmt.Errorf("%w: fd %d is not open", fence.ErrCreation, fd)
	}
	g.created++
	g.imports = append(g.imports, fd)
	return fence.New(fd, &gpuPoint{seq: g.seq, flushed: true}), nil
}

func (g *GPU) ExportFD(f *fence.Fence) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := f.Object().(*gpuPoint)
	if !ok {
		return fence.NoFD, fmt.Errorf("%w: foreign fence", fence.ErrInvalidHandle)
	}
	if !p.flushed {
		return fence.NoFD, fmt.Errorf("%w: point %d not flushed", fence.ErrInvalidHandle, p.seq)
	}
	fd := g.fds.Open("gpu-fence")
	g.exports = append(g.exports, fd)
	return fd, nil
}

func (g *GPU) WaitOnDevice(f *fence.Fence) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := f.Object().(*gpuPoint); !ok {
		return fmt.Errorf("%w: foreign fence", fence.ErrInvalidHandle)
	}
	g.waits = append(g.waits, f.FD())
	return nil
}

func (g *GPU) Destroy(f *fence.Fence) error {
	g.mu.Lock()
	g.destroyed++
	g.mu.Unlock()
	if f.FD() == fence.NoFD {
		return nil
	}
	return g.fds.Close(f.FD())
}

func (g *GPU) CloseFD(fd int) error {
	if fd == fence.NoFD {
		return nil
	}
	return g.fds.Close(fd)
}

// Live is the number of fences created and not yet destroyed.
func (g *GPU) Live() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.created - g.destroyed
}

func (g *GPU) Exports() []int { return g.snapshot(&g.exports) }

func (g *GPU) Imports() []int { return g.snapshot(&g.imports) }

// Waits lists the native handles of the fences the device was told to wait on.
func (g *GPU) Waits() []int { return g.snapshot(&g.waits) }

func (g *GPU) snapshot(s *[]int) []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), (*s)...)
}
