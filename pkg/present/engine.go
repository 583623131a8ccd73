// Package present hands rendered buffers to the display controller with
// atomic commits.
//
// In async mode every frame carries an in-fence, so the display waits for
// the GPU to finish the buffer, and requests an out-fence, which the GPU
// waits on before the next frame's commands run. Neither wait blocks the
// calling thread. In sync mode the commit blocks until the flip is applied
// and no fences are exchanged.
package present

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/helixml/kmspresent/pkg/fence"
	"github.com/helixml/kmspresent/pkg/framebuffer"
	"github.com/helixml/kmspresent/pkg/kms"
	"github.com/helixml/kmspresent/pkg/surface"
)

//go:generate mockgen -source $GOFILE -destination present_mocks.go -package $GOPACKAGE

var (
	ErrSwapBuffers    = errors.New("swap buffers failed")
	ErrBufferLock     = errors.New("could not lock front buffer")
	ErrSurfaceRebuild = errors.New("surface rebuild failed")

	// ErrUnthrottled means the flip was accepted and counted as presented,
	// but the display's out-fence could not be handed to the GPU, so the
	// next frame is not held back until this one is on screen.
	ErrUnthrottled = errors.New("frame presented without display throttling")
)

type Mode int

const (
	// ModeAsync is triple buffering with fences.
	ModeAsync Mode = iota
	// ModeSync is double buffering with blocking commits.
	ModeSync
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "async", "":
		return ModeAsync, nil
	case "sync":
		return ModeSync, nil
	}
	return 0, fmt.Errorf("unknown presentation mode %q (want async or sync)", s)
}

func (m Mode) String() string {
	switch m {
	case ModeAsync:
		return "async"
	case ModeSync:
		return "sync"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ReassertPolicy decides what happens when the connector to CRTC link or
// the CRTC's ACTIVE property cannot be staged.
type ReassertPolicy int

const (
	// ReassertBestEffort logs the failure and presents anyway.
	ReassertBestEffort ReassertPolicy = iota
	// ReassertStrict fails the frame.
	ReassertStrict
)

type Options struct {
	Mode     Mode
	Reassert ReassertPolicy
}

// Rebuilder recreates a window's render surface after its geometry changed.
type Rebuilder interface {
	RebuildSurface(w *Window) (surface.Provider, error)
}

type RebuilderFunc func(w *Window) (surface.Provider, error)

func (f RebuilderFunc) RebuildSurface(w *Window) (surface.Provider, error) {
	return f(w)
}

// Engine presents frames. It holds no per-window state and may be shared by
// windows on the same device; each window still needs a single writer.
type Engine struct {
	dev       kms.Device
	fences    fence.Device
	registry  *framebuffer.Registry
	rebuilder Rebuilder
	opts      Options
}

// NewEngine creates an engine. fences may be nil when only PresentSync is
// used.
func NewEngine(dev kms.Device, fences fence.Device, registry *framebuffer.Registry, rebuilder Rebuilder, opts Options) *Engine {
	return &Engine{
		dev:       dev,
		fences:    fences,
		registry:  registry,
		rebuilder: rebuilder,
		opts:      opts,
	}
}

// Present presents one frame in the configured mode.
func (e *Engine) Present(w *Window) error {
	if e.opts.Mode == ModeSync {
		return e.PresentSync(w)
	}
	return e.PresentAsync(w)
}

// PresentAsync queues a non-blocking flip to the frame just rendered.
//
// An error wrapping ErrUnthrottled still means the frame was presented.
func (e *Engine) PresentAsync(w *Window) error {
	return e.present(w, false, true)
}

// PresentSync flips to the frame just rendered and returns once the display
// shows it.
func (e *Engine) PresentSync(w *Window) error {
	return e.present(w, true, false)
}

func (e *Engine) present(w *Window, blocking, fenced bool) error {
	l := log.With().
		Str("window", w.ID.String()).
		Uint64("frame", w.state.Frames+1).
		Logger()

	err := e.presentFrame(&l, w, blocking, fenced)
	if errors.Is(err, ErrUnthrottled) {
		w.state.Frames++
		l.Warn().Err(err).Msg("frame presented without waiting on the display")
		return err
	}
	if err != nil {
		w.state.Failures++
		l.Debug().Err(err).Msg("frame not presented")
		return err
	}
	w.state.Frames++
	l.Trace().Uint64("front", w.state.Front.ID()).Msg("frame presented")
	return nil
}

func (e *Engine) presentFrame(l *zerolog.Logger, w *Window, blocking, fenced bool) error {
	if fenced && e.fences == nil {
		return fmt.Errorf("%w: no fence device", fence.ErrCreation)
	}

	// A buffer locked by a frame whose commit never went through goes back
	// before anything else is drawn.
	if w.state.Next != nil {
		w.surface.ReleaseBuffer(w.state.Next)
		w.state.Next = nil
	}

	if w.state.Dirty {
		if err := e.rebuild(l, w); err != nil {
			return err
		}
	}

	var gpuFence *fence.Fence
	if fenced {
		f, err := e.fences.Create(fence.NoFD)
		if err != nil {
			return fmt.Errorf("create render fence: %w", err)
		}
		gpuFence = f
	}

	if err := w.surface.SwapBuffers(); err != nil {
		if gpuFence != nil {
			e.destroyFence(l, gpuFence)
		}
		return fmt.Errorf("%w: %w", ErrSwapBuffers, err)
	}

	inFence := fence.NoFD
	if fenced {
		fd, err := e.fences.ExportFD(gpuFence)
		e.destroyFence(l, gpuFence)
		if err != nil {
			return fmt.Errorf("export render fence: %w", err)
		}
		inFence = fd
	}
	closeInFence := func() {
		if inFence == fence.NoFD {
			return
		}
		if err := e.fences.CloseFD(inFence); err != nil {
			l.Warn().Err(err).Int("fd", inFence).Msg("failed to close in-fence")
		}
		inFence = fence.NoFD
	}
	defer closeInFence()

	next, err := w.surface.LockFrontBuffer()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBufferLock, err)
	}
	w.state.Next = next

	fb, err := e.registry.FramebufferFor(next)
	if err != nil {
		return err
	}

	req := kms.NewRequest(e.dev)
	if err := req.SetPlaneState(kms.PlaneState{
		Plane: w.Output.Plane,
		CRTC:  w.Output.CRTC,
		FB:    fb,
		Src:   w.geometry.Src,
		Dst:   w.geometry.Dst,
	}); err != nil {
		return err
	}
	if err := e.reassert(l, req, w.Output); err != nil {
		return err
	}
	if fenced {
		if err := req.SetInFence(w.Output.Plane, inFence); err != nil {
			return err
		}
		if err := req.SetOutFence(w.Output.CRTC, &w.state.OutFence); err != nil {
			return err
		}
	}

	err = req.Submit(blocking)
	closeInFence()
	if err != nil {
		return err
	}

	// The flip to next is accepted, so the display is done with whatever was
	// front before it. After a rebuild that buffer belongs to the old surface.
	if prev := w.state.Front; prev != nil {
		w.frontSurface.ReleaseBuffer(prev)
	}
	w.state.Front = next
	w.state.Next = nil
	w.frontSurface = w.surface

	if !fenced {
		return nil
	}

	outFD := int(w.state.OutFence)
	if outFD == fence.NoFD {
		return fmt.Errorf("%w: commit produced no out-fence: %w", ErrUnthrottled, fence.ErrInvalidHandle)
	}
	displayFence, err := e.fences.Create(outFD)
	w.state.OutFence = fence.NoFD
	if err != nil {
		if cerr := e.fences.CloseFD(outFD); cerr != nil {
			l.Warn().Err(cerr).Int("fd", outFD).Msg("failed to close out-fence")
		}
		return fmt.Errorf("%w: import display fence: %w", ErrUnthrottled, err)
	}

	err = e.fences.WaitOnDevice(displayFence)
	e.destroyFence(l, displayFence)
	if err != nil {
		return fmt.Errorf("%w: wait on display fence: %w", ErrUnthrottled, err)
	}
	return nil
}

// reassert stages the connector to CRTC link and CRTC ACTIVE. Both are
// no-ops on an already lit pipeline and restore it after a rebuild.
func (e *Engine) reassert(l *zerolog.Logger, req *kms.Request, out kms.Output) error {
	props := []struct {
		obj   kms.Object
		name  string
		value uint64
	}{
		{out.Connector, kms.PropCRTCID, uint64(out.CRTC.ID)},
		{out.CRTC, kms.PropActive, 1},
	}
	for _, p := range props {
		err := req.SetProperty(p.obj, p.name, p.value)
		if err == nil {
			continue
		}
		if e.opts.Reassert == ReassertStrict {
			return fmt.Errorf("re-assert %s %s: %w", p.obj, p.name, err)
		}
		l.Warn().Err(err).Stringer("object", p.obj).Str("property", p.name).Msg("could not re-assert display pipeline, presenting anyway")
	}
	return nil
}

func (e *Engine) rebuild(l *zerolog.Logger, w *Window) error {
	if e.rebuilder == nil {
		return fmt.Errorf("%w: no rebuilder configured", ErrSurfaceRebuild)
	}

	// Front stays locked on the old surface, and its framebuffer stays in
	// the registry, until the first flip from the new surface is accepted.
	s, err := e.rebuilder.RebuildSurface(w)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSurfaceRebuild, err)
	}
	w.surface = s
	w.state.Dirty = false

	l.Debug().
		Int32("x", w.geometry.Dst.X).
		Int32("y", w.geometry.Dst.Y).
		Uint32("width", w.geometry.Dst.W).
		Uint32("height", w.geometry.Dst.H).
		Msg("rebuilt surface")
	return nil
}

// Release hands the window's buffers back to the surfaces that own them and
// removes every framebuffer the engine created. Call it only once the
// display no longer scans the window out.
func (e *Engine) Release(w *Window) {
	if w.state.Next != nil {
		w.surface.ReleaseBuffer(w.state.Next)
		w.state.Next = nil
	}
	if w.state.Front != nil {
		w.frontSurface.ReleaseBuffer(w.state.Front)
		w.state.Front = nil
		w.frontSurface = nil
	}
	e.registry.Reset()
}

func (e *Engine) destroyFence(l *zerolog.Logger, f *fence.Fence) {
	if err := e.fences.Destroy(f); err != nil {
		l.Warn().Err(err).Msg("failed to destroy fence")
	}
}
