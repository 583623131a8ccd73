package surface

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testBuffer uint64

func (b testBuffer) ID() uint64 { return uint64(b) }

func (b testBuffer) Info() Info {
	return Info{Width: 4, Height: 4, Stride: 16, Format: FormatXRGB8888, Modifier: ModifierInvalid}
}

func newTestPool(n int) *Pool {
	bufs := make([]Buffer, n)
	for i := range bufs {
		bufs[i] = testBuffer(i + 1)
	}
	return NewPool(bufs)
}

func TestPool_AcquireIsStableUntilFlush(t *testing.T) {
	p := newTestPool(3)

	a, err := p.Acquire()
	require.NoError(t, err)
	again, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, a.ID(), again.ID())

	flushed, err := p.Flush()
	require.NoError(t, err)
	assert.Equal(t, a.ID(), flushed.ID())

	next, err := p.Acquire()
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), next.ID())
}

func TestPool_LockIsFIFO(t *testing.T) {
	p := newTestPool(3)

	first, err := p.Flush()
	require.NoError(t, err)
	second, err := p.Flush()
	require.NoError(t, err)

	locked, err := p.Lock()
	require.NoError(t, err)
	assert.Equal(t, first.ID(), locked.ID())

	locked, err = p.Lock()
	require.NoError(t, err)
	assert.Equal(t, second.ID(), locked.ID())

	assert.Equal(t, 2, p.Locked())
}

func TestPool_LockWithoutFlush(t *testing.T) {
	p := newTestPool(2)

	_, err := p.Lock()
	assert.True(t, errors.Is(err, ErrNothingFlushed))
}

func TestPool_ExhaustionAndRelease(t *testing.T) {
	p := newTestPool(2)

	for i := 0; i < 2; i++ {
		_, err := p.Flush()
		require.NoError(t, err)
		_, err = p.Lock()
		require.NoError(t, err)
	}

	_, err := p.Flush()
	assert.True(t, errors.Is(err, ErrNoFreeBuffer))

	require.NoError(t, p.Release(testBuffer(1)))
	assert.Equal(t, 1, p.Locked())

	b, err := p.Flush()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), b.ID())
}

func TestPool_ReleaseRejectsUnlocked(t *testing.T) {
	p := newTestPool(2)

	err := p.Release(testBuffer(1))
	assert.True(t, errors.Is(err, ErrNotLocked))

	err = p.Release(testBuffer(42))
	assert.True(t, errors.Is(err, ErrNotLocked))
}

func TestInfo_HasModifier(t *testing.T) {
	assert.False(t, Info{Modifier: ModifierInvalid}.HasModifier())
	assert.True(t, Info{Modifier: ModifierLinear}.HasModifier())
}
