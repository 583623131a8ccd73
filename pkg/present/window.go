package present

import (
	"github.com/google/uuid"

	"github.com/helixml/kmspresent/pkg/fence"
	"github.com/helixml/kmspresent/pkg/kms"
	"github.com/helixml/kmspresent/pkg/surface"
)

// Geometry is the source crop in buffer space and the destination rectangle
// in output space.
type Geometry struct {
	Src kms.Rect
	Dst kms.Rect
}

// FullScreen shows a whole output-sized buffer over the whole output.
func FullScreen(out kms.Output) Geometry {
	r := out.FullScreen()
	return Geometry{Src: r, Dst: r}
}

// Centered shows a whole output-sized buffer scaled into a centered
// rectangle of w x h.
func Centered(out kms.Output, w, h uint32) Geometry {
	return Geometry{
		Src: out.FullScreen(),
		Dst: kms.Rect{
			X: int32(uint32(out.Width)-w) / 2,
			Y: int32(uint32(out.Height)-h) / 2,
			W: w,
			H: h,
		},
	}
}

// State tracks the buffers a window has handed to the display controller.
type State struct {
	// Front is scanned out, or about to be once the last flip lands.
	Front surface.Buffer
	// Next is locked but not yet accepted by a commit.
	Next surface.Buffer
	// Dirty asks for the surface to be rebuilt before the next frame.
	Dirty bool
	// OutFence receives the kernel's out-fence during a commit.
	OutFence int32

	Frames   uint64
	Failures uint64
}

// Window is one render surface presented on one output.
//
// A window must only be presented from one goroutine at a time.
type Window struct {
	ID     uuid.UUID
	Output kms.Output

	surface surface.Provider
	// frontSurface owns state.Front. It differs from surface between a
	// rebuild and the first accepted flip after it.
	frontSurface surface.Provider
	geometry     Geometry
	state        State
}

func NewWindow(out kms.Output, s surface.Provider, g Geometry) *Window {
	return &Window{
		ID:       uuid.New(),
		Output:   out,
		surface:  s,
		geometry: g,
		state:    State{OutFence: fence.NoFD},
	}
}

// Reconfigure sets new geometry. The surface is rebuilt before the next
// frame.
func (w *Window) Reconfigure(g Geometry) {
	w.geometry = g
	w.state.Dirty = true
}

func (w *Window) Geometry() Geometry {
	return w.geometry
}

func (w *Window) Surface() surface.Provider {
	return w.surface
}

func (w *Window) State() State {
	return w.state
}
