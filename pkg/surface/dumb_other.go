//go:build !linux

package surface

import (
	"errors"
	"os"
)

var errDumbUnsupported = errors.New("dumb buffers require linux")

// Dumb is unavailable outside linux.
type Dumb struct{}

func NewDumb(*os.File, uint16, uint16, int, Queue) (*Dumb, error) {
	return nil, errDumbUnsupported
}

func (d *Dumb) BeginFrame() (*Canvas, error) { return nil, errDumbUnsupported }

func (d *Dumb) SwapBuffers() error { return errDumbUnsupported }

func (d *Dumb) LockFrontBuffer() (Buffer, error) { return nil, errDumbUnsupported }

func (d *Dumb) ReleaseBuffer(Buffer) {}

func (d *Dumb) Locked() int { return 0 }

func (d *Dumb) Buffers() []Buffer { return nil }

func (d *Dumb) BufferBytes() uint64 { return 0 }

func (d *Dumb) Destroy() error { return nil }
