// Package simhw simulates the GPU and display controller the presenter talks
// to. It hands out fake native fence descriptors from a shared table so tests
// can check ownership: every descriptor the presenter receives must be closed
// or handed over exactly once.
package simhw

import (
	"fmt"
	"sort"
	"sync"
)

const firstFD = 1000

type FDTable struct {
	mu     sync.Mutex
	next   int
	open   map[int]string
	closed map[int]bool
}

func NewFDTable() *FDTable {
	return &FDTable{
		next:   firstFD,
		open:   make(map[int]string),
		closed: make(map[int]bool),
	}
}

// Open allocates a descriptor. kind is kept for leak reports.
func (t *FDTable) Open(kind string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	fd := t.next
	t.next++
	t.open[fd] = kind
	return fd
}

func (t *FDTable) Close(fd int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.open[fd]; !ok {
		if t.closed[fd] {
			return fmt.Errorf("fd %d closed twice", fd)
		}
		return fmt.Errorf("fd %d is not open", fd)
	}
	delete(t.open, fd)
	t.closed[fd] = true
	return nil
}

func (t *FDTable) IsOpen(fd int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.open[fd]
	return ok
}

// Leaked lists the descriptors still open, as "fd:kind".
func (t *FDTable) Leaked() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	fds := make([]int, 0, len(t.open))
	for fd := range t.open {
		fds = append(fds, fd)
	}
	sort.Ints(fds)
	out := make([]string, len(fds))
	for i, fd := range fds {
		out[i] = fmt.Sprintf("%d:%s", fd, t.open[fd])
	}
	return out
}

// Hardware bundles a display and a GPU sharing one descriptor table.
type Hardware struct {
	FDs     *FDTable
	Display *Display
	GPU     *GPU
}

func New(width, height uint16) *Hardware {
	fds := NewFDTable()
	return &Hardware{
		FDs:     fds,
		Display: NewDisplay(fds, width, height),
		GPU:     NewGPU(fds),
	}
}

// NewSurface creates a render surface whose flushes advance the GPU.
func (h *Hardware) NewSurface(buffers int) *Surface {
	out := h.Display.Output()
	return NewSurface(h.GPU, buffers, uint32(out.Width), uint32(out.Height))
}
