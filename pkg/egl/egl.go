//go:build linux && cgo

// Package egl renders with OpenGL ES into a GBM surface on the KMS card and
// exposes EGL native fence syncs as a fence.Device.
package egl

/*
#cgo pkg-config: egl gbm glesv2
#include <stdlib.h>
#include <stdint.h>
#include <EGL/egl.h>
#include <EGL/eglext.h>
#include <GLES2/gl2.h>
#include <gbm.h>

static PFNEGLGETPLATFORMDISPLAYEXTPROC get_platform_display;
static PFNEGLCREATESYNCKHRPROC create_sync;
static PFNEGLDESTROYSYNCKHRPROC destroy_sync;
static PFNEGLWAITSYNCKHRPROC wait_sync;
static PFNEGLDUPNATIVEFENCEFDANDROIDPROC dup_native_fence_fd;

static int load_procs(void) {
	get_platform_display = (PFNEGLGETPLATFORMDISPLAYEXTPROC)eglGetProcAddress("eglGetPlatformDisplayEXT");
	create_sync = (PFNEGLCREATESYNCKHRPROC)eglGetProcAddress("eglCreateSyncKHR");
	destroy_sync = (PFNEGLDESTROYSYNCKHRPROC)eglGetProcAddress("eglDestroySyncKHR");
	wait_sync = (PFNEGLWAITSYNCKHRPROC)eglGetProcAddress("eglWaitSyncKHR");
	dup_native_fence_fd = (PFNEGLDUPNATIVEFENCEFDANDROIDPROC)eglGetProcAddress("eglDupNativeFenceFDANDROID");
	return get_platform_display && create_sync && destroy_sync && wait_sync && dup_native_fence_fd;
}

static EGLDisplay gbm_display(struct gbm_device *gbm) {
	return get_platform_display(EGL_PLATFORM_GBM_MESA, gbm, NULL);
}

static EGLConfig choose_config(EGLDisplay dpy, EGLint format) {
	static const EGLint attribs[] = {
		EGL_SURFACE_TYPE, EGL_WINDOW_BIT,
		EGL_RED_SIZE, 8,
		EGL_GREEN_SIZE, 8,
		EGL_BLUE_SIZE, 8,
		EGL_RENDERABLE_TYPE, EGL_OPENGL_ES2_BIT,
		EGL_NONE,
	};
	EGLConfig configs[64];
	EGLint n = 0;
	if (!eglChooseConfig(dpy, attribs, configs, 64, &n)) {
		return NULL;
	}
	for (EGLint i = 0; i < n; i++) {
		EGLint id;
		if (eglGetConfigAttrib(dpy, configs[i], EGL_NATIVE_VISUAL_ID, &id) && id == format) {
			return configs[i];
		}
	}
	return NULL;
}

static EGLContext create_context(EGLDisplay dpy, EGLConfig cfg) {
	static const EGLint attribs[] = { EGL_CONTEXT_CLIENT_VERSION, 2, EGL_NONE };
	return eglCreateContext(dpy, cfg, EGL_NO_CONTEXT, attribs);
}

static EGLSurface create_window_surface(EGLDisplay dpy, EGLConfig cfg, struct gbm_surface *gs) {
	return eglCreateWindowSurface(dpy, cfg, (EGLNativeWindowType)gs, NULL);
}

static EGLBoolean release_current(EGLDisplay dpy) {
	return eglMakeCurrent(dpy, EGL_NO_SURFACE, EGL_NO_SURFACE, EGL_NO_CONTEXT);
}

static EGLSyncKHR create_native_fence(EGLDisplay dpy, int fd) {
	EGLint attribs[] = { EGL_SYNC_NATIVE_FENCE_FD_ANDROID, fd, EGL_NONE };
	return create_sync(dpy, EGL_SYNC_NATIVE_FENCE_ANDROID, attribs);
}

static int dup_native_fence(EGLDisplay dpy, EGLSyncKHR sync) {
	return dup_native_fence_fd(dpy, sync);
}

static EGLint wait_native_fence(EGLDisplay dpy, EGLSyncKHR sync) {
	return wait_sync(dpy, sync, 0);
}

static EGLBoolean destroy_native_fence(EGLDisplay dpy, EGLSyncKHR sync) {
	return destroy_sync(dpy, sync);
}

static uint32_t bo_handle(struct gbm_bo *bo) {
	return gbm_bo_get_handle(bo).u32;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"github.com/helixml/kmspresent/pkg/fence"
	"github.com/helixml/kmspresent/pkg/surface"
)

var nextBufferID atomic.Uint64

func eglError(call string) error {
	return fmt.Errorf("%s failed: EGL error 0x%04x", call, uint32(C.eglGetError()))
}

// Context owns the GBM device, the EGL display and the GL context. It must
// be used from the thread it was opened on.
type Context struct {
	mu      sync.Mutex
	gbm     *C.struct_gbm_device
	display C.EGLDisplay
	config  C.EGLConfig
	context C.EGLContext
	surface *Surface
	// retired surfaces still have a buffer on screen.
	retired []*Surface
}

// Open creates a GBM device on the card and an EGL context with a width x
// height window surface.
func Open(card *os.File, width, height uint32) (*Context, error) {
	if C.load_procs() == 0 {
		return nil, errors.New("EGL lacks EGL_EXT_platform_base, EGL_KHR_fence_sync, EGL_KHR_wait_sync or EGL_ANDROID_native_fence_sync")
	}

	c := &Context{}
	c.gbm = C.gbm_create_device(C.int(card.Fd()))
	if c.gbm == nil {
		return nil, errors.New("gbm_create_device failed")
	}

	c.display = C.gbm_display(c.gbm)
	if c.display == nil {
		c.Close()
		return nil, eglError("eglGetPlatformDisplayEXT")
	}
	var major, minor C.EGLint
	if C.eglInitialize(c.display, &major, &minor) == C.EGL_FALSE {
		c.display = nil
		c.Close()
		return nil, eglError("eglInitialize")
	}
	if C.eglBindAPI(C.EGL_OPENGL_ES_API) == C.EGL_FALSE {
		c.Close()
		return nil, eglError("eglBindAPI")
	}

	c.config = C.choose_config(c.display, C.EGLint(surface.FormatXRGB8888))
	if c.config == nil {
		c.Close()
		return nil, errors.New("no EGL config matches XRGB8888")
	}
	c.context = C.create_context(c.display, c.config)
	if c.context == nil {
		c.Close()
		return nil, eglError("eglCreateContext")
	}

	if _, err := c.Rebuild(width, height); err != nil {
		c.Close()
		return nil, err
	}

	log.Info().
		Int32("egl_major", int32(major)).
		Int32("egl_minor", int32(minor)).
		Str("gl_renderer", C.GoString((*C.char)(unsafe.Pointer(C.glGetString(C.GL_RENDERER))))).
		Msg("initialized EGL")
	return c, nil
}

// Surface is the current render surface.
func (c *Context) Surface() *Surface {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surface
}

// Rebuild replaces the window surface with a new one of the given size and
// makes it current. The old surface is destroyed once every buffer locked
// from it has been released.
func (c *Context) Rebuild(width, height uint32) (*Surface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gs := C.gbm_surface_create(c.gbm, C.uint32_t(width), C.uint32_t(height),
		C.GBM_FORMAT_XRGB8888, C.GBM_BO_USE_SCANOUT|C.GBM_BO_USE_RENDERING)
	if gs == nil {
		return nil, fmt.Errorf("gbm_surface_create %dx%d failed", width, height)
	}
	es := C.create_window_surface(c.display, c.config, gs)
	if es == nil {
		C.gbm_surface_destroy(gs)
		return nil, eglError("eglCreateWindowSurface")
	}
	if C.eglMakeCurrent(c.display, es, es, c.context) == C.EGL_FALSE {
		C.eglDestroySurface(c.display, es)
		C.gbm_surface_destroy(gs)
		return nil, eglError("eglMakeCurrent")
	}
	C.glViewport(0, 0, C.GLsizei(width), C.GLsizei(height))

	if old := c.surface; old != nil {
		old.retire()
		if !old.destroyed {
			c.retired = append(c.retired, old)
		}
	}
	live := c.retired[:0]
	for _, r := range c.retired {
		if !r.destroyed {
			live = append(live, r)
		}
	}
	c.retired = live

	c.surface = &Surface{
		display: c.display,
		gbm:     gs,
		egl:     es,
		buffers: make(map[*C.struct_gbm_bo]*buffer),
	}
	return c.surface, nil
}

// Clear fills the back buffer with a color.
func (c *Context) Clear(r, g, b float32) {
	C.glClearColor(C.GLfloat(r), C.GLfloat(g), C.GLfloat(b), 1)
	C.glClear(C.GL_COLOR_BUFFER_BIT)
}

func (c *Context) Create(fd int) (*fence.Fence, error) {
	if c.display == nil {
		return nil, fmt.Errorf("%w: EGL display not initialized", fence.ErrCreation)
	}
	es := C.create_native_fence(c.display, C.int(fd))
	if es == nil {
		return nil, fmt.Errorf("%w: %w", fence.ErrCreation, eglError("eglCreateSyncKHR"))
	}
	return fence.New(fd, es), nil
}

func (c *Context) ExportFD(f *fence.Fence) (int, error) {
	es, ok := f.Object().(C.EGLSyncKHR)
	if !ok {
		return fence.NoFD, fmt.Errorf("%w: not an EGL sync", fence.ErrInvalidHandle)
	}
	fd := int(C.dup_native_fence(c.display, es))
	if fd < 0 {
		return fence.NoFD, fmt.Errorf("%w: %w", fence.ErrInvalidHandle, eglError("eglDupNativeFenceFDANDROID"))
	}
	return fd, nil
}

func (c *Context) WaitOnDevice(f *fence.Fence) error {
	es, ok := f.Object().(C.EGLSyncKHR)
	if !ok {
		return fmt.Errorf("%w: not an EGL sync", fence.ErrInvalidHandle)
	}
	if C.wait_native_fence(c.display, es) == C.EGL_FALSE {
		return eglError("eglWaitSyncKHR")
	}
	return nil
}

// Destroy frees the sync. EGL owns an imported fd and closes it here.
func (c *Context) Destroy(f *fence.Fence) error {
	es, ok := f.Object().(C.EGLSyncKHR)
	if !ok {
		return fmt.Errorf("%w: not an EGL sync", fence.ErrInvalidHandle)
	}
	if C.destroy_native_fence(c.display, es) == C.EGL_FALSE {
		return eglError("eglDestroySyncKHR")
	}
	return nil
}

func (c *Context) CloseFD(fd int) error {
	if fd == fence.NoFD {
		return nil
	}
	return unix.Close(fd)
}

func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.display != nil {
		C.release_current(c.display)
		if c.surface != nil {
			c.surface.destroy()
			c.surface = nil
		}
		for _, r := range c.retired {
			r.destroy()
		}
		c.retired = nil
		if c.context != nil {
			C.eglDestroyContext(c.display, c.context)
			c.context = nil
		}
		C.eglTerminate(c.display)
		c.display = nil
	}
	if c.gbm != nil {
		C.gbm_device_destroy(c.gbm)
		c.gbm = nil
	}
	return nil
}

type buffer struct {
	bo   *C.struct_gbm_bo
	id   uint64
	info surface.Info
}

func (b *buffer) ID() uint64 { return b.id }

func (b *buffer) Info() surface.Info { return b.info }

// Surface is a surface.Provider over a GBM surface.
type Surface struct {
	display C.EGLDisplay
	gbm     *C.struct_gbm_surface
	egl     C.EGLSurface
	buffers map[*C.struct_gbm_bo]*buffer

	locked    int
	retired   bool
	destroyed bool
}

func (s *Surface) SwapBuffers() error {
	if C.eglSwapBuffers(s.display, s.egl) == C.EGL_FALSE {
		return eglError("eglSwapBuffers")
	}
	return nil
}

func (s *Surface) LockFrontBuffer() (surface.Buffer, error) {
	bo := C.gbm_surface_lock_front_buffer(s.gbm)
	if bo == nil {
		return nil, errors.New("gbm_surface_lock_front_buffer returned no buffer")
	}
	s.locked++
	if b, ok := s.buffers[bo]; ok {
		return b, nil
	}

	b := &buffer{
		bo: bo,
		id: nextBufferID.Add(1),
		info: surface.Info{
			Width:    uint32(C.gbm_bo_get_width(bo)),
			Height:   uint32(C.gbm_bo_get_height(bo)),
			Stride:   uint32(C.gbm_bo_get_stride(bo)),
			Handle:   uint32(C.bo_handle(bo)),
			Format:   uint32(C.gbm_bo_get_format(bo)),
			Modifier: uint64(C.gbm_bo_get_modifier(bo)),
		},
	}
	s.buffers[bo] = b
	log.Debug().
		Uint64("buffer", b.id).
		Uint32("stride", b.info.Stride).
		Uint64("modifier", b.info.Modifier).
		Msg("new GBM buffer")
	return b, nil
}

func (s *Surface) ReleaseBuffer(buf surface.Buffer) {
	b, ok := buf.(*buffer)
	if !ok {
		log.Warn().Uint64("buffer", buf.ID()).Msg("release of foreign buffer")
		return
	}
	if s.destroyed {
		return
	}
	C.gbm_surface_release_buffer(s.gbm, b.bo)
	s.locked--
	if s.retired && s.locked == 0 {
		s.destroy()
	}
}

// retire marks a surface that is no longer rendered to, destroying it now if
// the display holds none of its buffers.
func (s *Surface) retire() {
	s.retired = true
	if s.locked == 0 {
		s.destroy()
	}
}

func (s *Surface) destroy() {
	if s.destroyed {
		return
	}
	C.eglDestroySurface(s.display, s.egl)
	C.gbm_surface_destroy(s.gbm)
	s.buffers = nil
	s.destroyed = true
}
