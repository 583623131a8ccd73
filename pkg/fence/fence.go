// Package fence wraps the synchronization objects exchanged between the GPU
// and the display controller. A fence has two identities: a native sync_file
// descriptor that can cross into the kernel's display subsystem, and a
// device-side object the GPU can signal or wait on.
package fence

import (
	"errors"
)

//go:generate mockgen -source $GOFILE -destination fence_mocks.go -package $GOPACKAGE

// NoFD is the sentinel native handle. Passed to Create it means the device
// populates the fence when the current command stream is flushed.
const NoFD = -1

var (
	ErrCreation      = errors.New("fence creation failed")
	ErrInvalidHandle = errors.New("invalid native fence handle")
)

// Fence is one synchronization point. Backends keep their own sync object in
// it; the engine only moves it between Device calls.
type Fence struct {
	fd     int
	object any
}

// New is used by Device implementations to wrap their sync object.
func New(fd int, object any) *Fence {
	return &Fence{fd: fd, object: object}
}

// FD is the native handle the fence was created from, or NoFD.
func (f *Fence) FD() int {
	return f.fd
}

func (f *Fence) Object() any {
	return f.object
}

// Device is the GPU synchronization capability.
type Device interface {
	// Create wraps a native handle, or NoFD, into a device-visible fence.
	// Importing a handle transfers its ownership to the fence.
	Create(fd int) (*Fence, error)
	// ExportFD returns a new native handle for the fence. It is only valid once
	// the command stream containing the fence point has been flushed.
	ExportFD(f *Fence) (int, error)
	// WaitOnDevice makes subsequent device work wait for the fence. It does not
	// block the calling thread.
	WaitOnDevice(f *Fence) error
	// Destroy releases the device-side object.
	Destroy(f *Fence) error
	// CloseFD closes a native handle owned by the caller.
	CloseFD(fd int) error
}
