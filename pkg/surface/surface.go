package surface

//go:generate mockgen -source $GOFILE -destination surface_mocks.go -package $GOPACKAGE

// Fourcc pixel formats understood by the display controller.
const (
	FormatXRGB8888 uint32 = 0x34325258 // 'XR24'
	FormatARGB8888 uint32 = 0x34325241 // 'AR24'
)

// Format modifiers.
const (
	ModifierLinear  uint64 = 0
	ModifierInvalid uint64 = 0x00ffffffffffffff
)

// Info describes the memory layout of a buffer as the display controller sees it.
type Info struct {
	Width    uint32
	Height   uint32
	Stride   uint32
	Handle   uint32 // GEM handle on the card fd
	Format   uint32
	Modifier uint64
}

// HasModifier reports whether the buffer carries an explicit format modifier.
func (i Info) HasModifier() bool {
	return i.Modifier != ModifierInvalid
}

// Buffer is a renderable memory object owned by a Provider's allocator.
type Buffer interface {
	// ID is stable for the lifetime of the underlying allocation.
	ID() uint64
	Info() Info
}

// Provider is the render surface a window draws into.
//
// The order is always SwapBuffers, then LockFrontBuffer. A locked buffer stays
// out of the render pool until it is handed back with ReleaseBuffer.
type Provider interface {
	// SwapBuffers flushes the pending frame to the device.
	SwapBuffers() error
	// LockFrontBuffer locks the buffer produced by the last SwapBuffers as the
	// next front buffer.
	LockFrontBuffer() (Buffer, error)
	// ReleaseBuffer returns a locked buffer to the allocator.
	ReleaseBuffer(buf Buffer)
}

// Queue is the command stream a software surface renders through. It lets a
// CPU renderer take part in the fence protocol: Submit signals the fence points
// created for the frame just flushed, Drain executes pending device-side waits
// before the next frame is drawn.
type Queue interface {
	Submit() error
	Drain() error
}
