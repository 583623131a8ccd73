// Package framebuffer maps render buffers to display controller framebuffer
// ids.
package framebuffer

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/helixml/kmspresent/pkg/surface"
)

//go:generate mockgen -source $GOFILE -destination registry_mocks.go -package $GOPACKAGE

// DefaultCapacity keeps the handle being displayed and the one being flipped
// to.
const DefaultCapacity = 2

var ErrCreation = errors.New("framebuffer creation failed")

// Backend creates and removes framebuffers on the display controller.
type Backend interface {
	AddFramebuffer(info surface.Info) (uint32, error)
	RemoveFramebuffer(id uint32) error
}

// Registry lazily creates one framebuffer per buffer and keeps at most
// capacity of them alive. The least recently presented handle is removed from
// the display controller when a new one would exceed the capacity.
type Registry struct {
	backend Backend
	cache   *lru.Cache[uint64, uint32]
}

func New(backend Backend, capacity int) (*Registry, error) {
	if capacity < DefaultCapacity {
		capacity = DefaultCapacity
	}
	r := &Registry{backend: backend}
	cache, err := lru.NewWithEvict[uint64, uint32](capacity, r.remove)
	if err != nil {
		return nil, err
	}
	r.cache = cache
	return r, nil
}

func (r *Registry) remove(buffer uint64, fb uint32) {
	if err := r.backend.RemoveFramebuffer(fb); err != nil {
		log.Warn().Err(err).Uint64("buffer", buffer).Uint32("fb", fb).Msg("failed to remove framebuffer")
		return
	}
	log.Trace().Uint64("buffer", buffer).Uint32("fb", fb).Msg("removed framebuffer")
}

// FramebufferFor returns the framebuffer of buf, creating it on first use.
func (r *Registry) FramebufferFor(buf surface.Buffer) (uint32, error) {
	if fb, ok := r.cache.Get(buf.ID()); ok {
		return fb, nil
	}

	info := buf.Info()
	fb, err := r.backend.AddFramebuffer(info)
	if err != nil {
		return 0, fmt.Errorf("%w: buffer %d (%dx%d format 0x%08x modifier 0x%x): %w",
			ErrCreation, buf.ID(), info.Width, info.Height, info.Format, info.Modifier, err)
	}
	r.cache.Add(buf.ID(), fb)

	log.Debug().
		Uint64("buffer", buf.ID()).
		Uint32("fb", fb).
		Uint32("width", info.Width).
		Uint32("height", info.Height).
		Msg("created framebuffer")
	return fb, nil
}

// Forget removes the framebuffer of a buffer that is being destroyed.
func (r *Registry) Forget(buf surface.Buffer) {
	r.cache.Remove(buf.ID())
}

// Reset removes every framebuffer. The display must no longer be scanning
// any of them out.
func (r *Registry) Reset() {
	r.cache.Purge()
}

// Live is the number of framebuffers currently held.
func (r *Registry) Live() int {
	return r.cache.Len()
}

func (r *Registry) Close() {
	r.Reset()
}
