//go:build !linux || !cgo

package egl

import (
	"errors"
	"os"

	"github.com/helixml/kmspresent/pkg/fence"
	"github.com/helixml/kmspresent/pkg/surface"
)

var errUnavailable = errors.New("EGL rendering requires linux and CGO")

// Context is unavailable without CGO; Open always fails.
type Context struct{}

func Open(*os.File, uint32, uint32) (*Context, error) { return nil, errUnavailable }

func (c *Context) Surface() *Surface { return nil }

func (c *Context) Rebuild(uint32, uint32) (*Surface, error) { return nil, errUnavailable }

func (c *Context) Clear(float32, float32, float32) {}

func (c *Context) Create(int) (*fence.Fence, error) { return nil, fence.ErrCreation }

func (c *Context) ExportFD(*fence.Fence) (int, error) { return fence.NoFD, fence.ErrInvalidHandle }

func (c *Context) WaitOnDevice(*fence.Fence) error { return fence.ErrInvalidHandle }

func (c *Context) Destroy(*fence.Fence) error { return nil }

func (c *Context) CloseFD(int) error { return nil }

func (c *Context) Close() error { return nil }

type Surface struct{}

func (s *Surface) SwapBuffers() error { return errUnavailable }

func (s *Surface) LockFrontBuffer() (surface.Buffer, error) { return nil, errUnavailable }

func (s *Surface) ReleaseBuffer(surface.Buffer) {}
