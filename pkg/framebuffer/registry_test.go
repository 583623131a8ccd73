package framebuffer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomock "go.uber.org/mock/gomock"

	"github.com/helixml/kmspresent/pkg/surface"
)

func newBuffer(ctrl *gomock.Controller, id uint64) *surface.MockBuffer {
	b := surface.NewMockBuffer(ctrl)
	b.EXPECT().ID().Return(id).AnyTimes()
	b.EXPECT().Info().Return(surface.Info{
		Width:    1920,
		Height:   1080,
		Stride:   7680,
		Handle:   uint32(id),
		Format:   surface.FormatXRGB8888,
		Modifier: surface.ModifierInvalid,
	}).AnyTimes()
	return b
}

func TestFramebufferFor_Idempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := NewMockBackend(ctrl)
	a := newBuffer(ctrl, 1)

	backend.EXPECT().AddFramebuffer(a.Info()).Return(uint32(100), nil).Times(1)

	r, err := New(backend, DefaultCapacity)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		fb, err := r.FramebufferFor(a)
		require.NoError(t, err)
		assert.Equal(t, uint32(100), fb)
	}
	assert.Equal(t, 1, r.Live())
}

func TestFramebufferFor_EvictsLeastRecentlyPresented(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := NewMockBackend(ctrl)
	a, b, c := newBuffer(ctrl, 1), newBuffer(ctrl, 2), newBuffer(ctrl, 3)

	gomock.InOrder(
		backend.EXPECT().AddFramebuffer(gomock.Any()).Return(uint32(100), nil),
		backend.EXPECT().AddFramebuffer(gomock.Any()).Return(uint32(200), nil),
		backend.EXPECT().AddFramebuffer(gomock.Any()).Return(uint32(300), nil),
		backend.EXPECT().RemoveFramebuffer(uint32(100)).Return(nil),
	)

	r, err := New(backend, 1) // clamped to DefaultCapacity
	require.NoError(t, err)

	for _, buf := range []surface.Buffer{a, b, c} {
		_, err := r.FramebufferFor(buf)
		require.NoError(t, err)
		assert.LessOrEqual(t, r.Live(), DefaultCapacity)
	}
	assert.Equal(t, 2, r.Live())
}

func TestFramebufferFor_BackendRejects(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := NewMockBackend(ctrl)
	a := newBuffer(ctrl, 1)

	backend.EXPECT().AddFramebuffer(gomock.Any()).Return(uint32(0), errors.New("MODE_ADDFB2: EINVAL"))

	r, err := New(backend, DefaultCapacity)
	require.NoError(t, err)

	_, err = r.FramebufferFor(a)
	assert.True(t, errors.Is(err, ErrCreation))
	assert.Equal(t, 0, r.Live())
}

func TestForgetAndReset(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := NewMockBackend(ctrl)
	a, b := newBuffer(ctrl, 1), newBuffer(ctrl, 2)

	backend.EXPECT().AddFramebuffer(gomock.Any()).Return(uint32(100), nil)
	backend.EXPECT().AddFramebuffer(gomock.Any()).Return(uint32(200), nil)
	backend.EXPECT().RemoveFramebuffer(uint32(100)).Return(nil)
	backend.EXPECT().RemoveFramebuffer(uint32(200)).Return(errors.New("EBUSY"))

	r, err := New(backend, DefaultCapacity)
	require.NoError(t, err)

	_, err = r.FramebufferFor(a)
	require.NoError(t, err)
	_, err = r.FramebufferFor(b)
	require.NoError(t, err)

	r.Forget(a)
	assert.Equal(t, 1, r.Live())

	// A failed removal is logged and the handle is still dropped.
	r.Reset()
	assert.Equal(t, 0, r.Live())

	r.Close()
}
