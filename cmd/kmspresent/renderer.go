package kmspresent

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/helixml/kmspresent/pkg/config"
	"github.com/helixml/kmspresent/pkg/egl"
	"github.com/helixml/kmspresent/pkg/fence"
	"github.com/helixml/kmspresent/pkg/kms"
	"github.com/helixml/kmspresent/pkg/present"
	"github.com/helixml/kmspresent/pkg/surface"
)

// renderer draws frames into a window's surface and owns the fence device
// the engine synchronizes that surface with.
type renderer interface {
	Surface() surface.Provider
	Fences() fence.Device
	Draw(frame uint64) error
	present.Rebuilder
	BufferBytes() uint64
	Close() error
}

func newRenderer(card *kms.Card, out kms.Output, cfg config.Config, img *imageSource) (renderer, error) {
	switch strings.ToLower(cfg.Renderer.Backend) {
	case "software":
		return newSoftwareRenderer(card, out, cfg, img)
	case "egl":
		if img != nil {
			log.Warn().Str("image", cfg.Renderer.Image).Msg("the egl backend does not draw images, ignoring")
		}
		return newEGLRenderer(card, out)
	}
	return nil, fmt.Errorf("unknown render backend %q", cfg.Renderer.Backend)
}

type softwareRenderer struct {
	card    *kms.Card
	out     kms.Output
	sync    *fence.SWSync
	dumb    *surface.Dumb
	retired []*surface.Dumb
	buffers int
	workers int
	image   *imageSource
	frame   uint64
}

func newSoftwareRenderer(card *kms.Card, out kms.Output, cfg config.Config, img *imageSource) (*softwareRenderer, error) {
	if !card.HasDumbBuffer() {
		return nil, errors.New("device has no dumb buffer support")
	}
	sw, err := fence.OpenSWSync(cfg.Renderer.SWSyncPath)
	if err != nil {
		return nil, err
	}
	sw.SetDrainTimeout(cfg.Renderer.FenceWait)

	r := &softwareRenderer{
		card:    card,
		out:     out,
		sync:    sw,
		buffers: cfg.Presentation.Buffers,
		workers: cfg.Renderer.Workers,
		image:   img,
	}
	r.dumb, err = surface.NewDumb(card.File(), out.Width, out.Height, r.buffers, sw)
	if err != nil {
		sw.Close()
		return nil, err
	}
	return r, nil
}

func (r *softwareRenderer) Surface() surface.Provider { return r.dumb }

func (r *softwareRenderer) Fences() fence.Device { return r.sync }

func (r *softwareRenderer) Draw(frame uint64) error {
	r.frame = frame
	r.reap()
	canvas, err := r.dumb.BeginFrame()
	if err != nil {
		return err
	}

	width := canvas.Rect.Dx()
	bar := int(frame*8) % max(width, 1)
	if img := r.image.Image(); img != nil {
		canvas.DrawImage(img)
		for y := canvas.Rect.Min.Y; y < canvas.Rect.Max.Y; y++ {
			for x := bar; x < min(bar+16, width); x++ {
				canvas.SetXRGB(x, y, 0xffffff)
			}
		}
		return nil
	}

	phase := float64(frame) / 60
	canvas.Fill(r.workers, func(x, y int) uint32 {
		if x >= bar && x < bar+16 {
			return 0xffffff
		}
		red := uint32(127 + 127*math.Sin(phase+float64(x)/97))
		green := uint32(127 + 127*math.Sin(phase+float64(y)/67))
		blue := uint32(127 + 127*math.Sin(phase*2))
		return red<<16 | green<<8 | blue
	})
	return nil
}

// RebuildSurface replaces the dumb buffers and redraws the frame that was in
// progress into them. The old surface is destroyed once the engine has handed
// back its last buffer.
func (r *softwareRenderer) RebuildSurface(w *present.Window) (surface.Provider, error) {
	dumb, err := surface.NewDumb(r.card.File(), r.out.Width, r.out.Height, r.buffers, r.sync)
	if err != nil {
		return nil, err
	}
	r.retired = append(r.retired, r.dumb)
	r.dumb = dumb
	log.Debug().Stringer("window", w.ID).Int("retired", len(r.retired)).Msg("rebuilt dumb surface")
	if err := r.Draw(r.frame); err != nil {
		return nil, err
	}
	return dumb, nil
}

// reap destroys retired surfaces the display no longer holds a buffer of.
func (r *softwareRenderer) reap() {
	live := r.retired[:0]
	for _, d := range r.retired {
		if d.Locked() > 0 {
			live = append(live, d)
			continue
		}
		if err := d.Destroy(); err != nil {
			log.Warn().Err(err).Msg("failed to destroy dumb surface")
		}
	}
	r.retired = live
}

func (r *softwareRenderer) BufferBytes() uint64 { return r.dumb.BufferBytes() }

func (r *softwareRenderer) Close() error {
	errs := []error{r.dumb.Destroy()}
	for _, d := range r.retired {
		errs = append(errs, d.Destroy())
	}
	r.retired = nil
	return errors.Join(append(errs, r.sync.Close())...)
}

type eglRenderer struct {
	ctx   *egl.Context
	out   kms.Output
	frame uint64
}

func newEGLRenderer(card *kms.Card, out kms.Output) (*eglRenderer, error) {
	ctx, err := egl.Open(card.File(), uint32(out.Width), uint32(out.Height))
	if err != nil {
		return nil, err
	}
	return &eglRenderer{ctx: ctx, out: out}, nil
}

func (r *eglRenderer) Surface() surface.Provider { return r.ctx.Surface() }

func (r *eglRenderer) Fences() fence.Device { return r.ctx }

func (r *eglRenderer) Draw(frame uint64) error {
	r.frame = frame
	phase := float64(frame) / 60
	r.ctx.Clear(
		float32(0.5+0.5*math.Sin(phase)),
		float32(0.5+0.5*math.Sin(phase+2)),
		float32(0.5+0.5*math.Sin(phase+4)),
	)
	return nil
}

func (r *eglRenderer) RebuildSurface(*present.Window) (surface.Provider, error) {
	s, err := r.ctx.Rebuild(uint32(r.out.Width), uint32(r.out.Height))
	if err != nil {
		return nil, err
	}
	return s, r.Draw(r.frame)
}

// BufferBytes is an estimate; GBM does not report allocation sizes.
func (r *eglRenderer) BufferBytes() uint64 {
	return uint64(r.out.Width) * uint64(r.out.Height) * 4 * 3
}

func (r *eglRenderer) Close() error { return r.ctx.Close() }
