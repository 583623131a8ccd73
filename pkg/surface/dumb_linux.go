package surface

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/NeowayLabs/drm/mode"
	"github.com/rs/zerolog/log"
	"launchpad.net/gommap"
)

// Buffer IDs are process-wide so a rebuilt surface never reuses an identity
// the framebuffer registry may still hold.
var nextBufferID atomic.Uint64

type dumbBuffer struct {
	id     uint64
	info   Info
	size   uint64
	pix    gommap.MMap
	canvas *Canvas
}

func (b *dumbBuffer) ID() uint64 { return b.id }

func (b *dumbBuffer) Info() Info { return b.info }

// Dumb is a render surface backed by CPU-mapped dumb buffers. Frames are drawn
// on the Canvas returned by BeginFrame. When a Queue is attached, BeginFrame
// first executes the device-side waits queued by the presenter, and
// SwapBuffers signals the fence points created for the frame.
type Dumb struct {
	file    *os.File
	queue   Queue
	pool    *Pool
	buffers []*dumbBuffer
}

func NewDumb(file *os.File, width, height uint16, count int, queue Queue) (*Dumb, error) {
	if count < 2 {
		return nil, fmt.Errorf("dumb surface needs at least 2 buffers, got %d", count)
	}
	d := &Dumb{file: file, queue: queue}

	pooled := make([]Buffer, 0, count)
	for i := 0; i < count; i++ {
		b, err := d.createBuffer(width, height)
		if err != nil {
			d.Destroy()
			return nil, fmt.Errorf("create dumb buffer %d: %w", i, err)
		}
		d.buffers = append(d.buffers, b)
		pooled = append(pooled, b)
	}
	d.pool = NewPool(pooled)

	log.Debug().
		Uint16("width", width).
		Uint16("height", height).
		Int("buffers", count).
		Bool("queue", queue != nil).
		Msg("created dumb surface")

	return d, nil
}

func (d *Dumb) createBuffer(width, height uint16) (*dumbBuffer, error) {
	fb, err := mode.CreateFB(d.file, width, height, 32)
	if err != nil {
		return nil, fmt.Errorf("create dumb: %w", err)
	}

	offset, err := mode.MapDumb(d.file, fb.Handle)
	if err != nil {
		mode.DestroyDumb(d.file, fb.Handle)
		return nil, fmt.Errorf("map dumb: %w", err)
	}

	pix, err := gommap.MapAt(0, d.file.Fd(), int64(offset), int64(fb.Size), gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED)
	if err != nil {
		mode.DestroyDumb(d.file, fb.Handle)
		return nil, fmt.Errorf("mmap dumb: %w", err)
	}

	return &dumbBuffer{
		id: nextBufferID.Add(1),
		info: Info{
			Width:    uint32(width),
			Height:   uint32(height),
			Stride:   fb.Pitch,
			Handle:   fb.Handle,
			Format:   FormatXRGB8888,
			Modifier: ModifierInvalid,
		},
		size:   fb.Size,
		pix:    pix,
		canvas: NewCanvas(pix, int(fb.Pitch), int(width), int(height)),
	}, nil
}

// BeginFrame waits for the device to be done with the previous flip and
// returns the canvas of the buffer the next frame is drawn into.
func (d *Dumb) BeginFrame() (*Canvas, error) {
	if d.queue != nil {
		if err := d.queue.Drain(); err != nil {
			return nil, fmt.Errorf("drain queue: %w", err)
		}
	}
	b, err := d.pool.Acquire()
	if err != nil {
		return nil, err
	}
	return b.(*dumbBuffer).canvas, nil
}

func (d *Dumb) SwapBuffers() error {
	if _, err := d.pool.Flush(); err != nil {
		return err
	}
	if d.queue != nil {
		if err := d.queue.Submit(); err != nil {
			return fmt.Errorf("submit queue: %w", err)
		}
	}
	return nil
}

func (d *Dumb) LockFrontBuffer() (Buffer, error) {
	return d.pool.Lock()
}

func (d *Dumb) ReleaseBuffer(buf Buffer) {
	if err := d.pool.Release(buf); err != nil {
		log.Warn().Err(err).Uint64("buffer", buf.ID()).Msg("release of unlocked dumb buffer")
	}
}

// Locked is the number of buffers the presenter still holds.
func (d *Dumb) Locked() int {
	return d.pool.Locked()
}

// Buffers returns every buffer of the surface.
func (d *Dumb) Buffers() []Buffer {
	return d.pool.Buffers()
}

// BufferBytes is the total mapped size of the surface.
func (d *Dumb) BufferBytes() uint64 {
	var total uint64
	for _, b := range d.buffers {
		total += b.size
	}
	return total
}

// Destroy unmaps and frees every buffer. Buffers the display may still scan
// out must have been released first.
func (d *Dumb) Destroy() error {
	var errs []error
	for _, b := range d.buffers {
		if err := b.pix.UnsafeUnmap(); err != nil {
			errs = append(errs, fmt.Errorf("unmap buffer %d: %w", b.id, err))
		}
		if err := mode.DestroyDumb(d.file, b.info.Handle); err != nil {
			errs = append(errs, fmt.Errorf("destroy buffer %d: %w", b.id, err))
		}
	}
	d.buffers = nil
	return errors.Join(errs...)
}
