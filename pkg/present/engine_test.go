package present

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
	gtassert "gotest.tools/v3/assert"

	"github.com/helixml/kmspresent/pkg/fence"
	"github.com/helixml/kmspresent/pkg/framebuffer"
	"github.com/helixml/kmspresent/pkg/kms"
	"github.com/helixml/kmspresent/pkg/simhw"
	"github.com/helixml/kmspresent/pkg/surface"
)

type EngineSuite struct {
	suite.Suite

	hw       *simhw.Hardware
	surface  *simhw.Surface
	registry *framebuffer.Registry
	rebuilds []*simhw.Surface
	window   *Window
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (suite *EngineSuite) SetupTest() {
	suite.hw = simhw.New(1920, 1080)
	suite.surface = suite.hw.NewSurface(3)
	suite.rebuilds = nil

	registry, err := framebuffer.New(suite.hw.Display, framebuffer.DefaultCapacity)
	suite.Require().NoError(err)
	suite.registry = registry

	out := suite.hw.Display.Output()
	suite.window = NewWindow(out, suite.surface, FullScreen(out))
}

func (suite *EngineSuite) engine(mode Mode, policy ReassertPolicy) *Engine {
	rebuild := RebuilderFunc(func(w *Window) (surface.Provider, error) {
		s := suite.hw.NewSurface(3)
		suite.rebuilds = append(suite.rebuilds, s)
		return s, nil
	})
	return NewEngine(suite.hw.Display, suite.hw.GPU, suite.registry, rebuild, Options{Mode: mode, Reassert: policy})
}

func (suite *EngineSuite) lastCommit() simhw.Commit {
	c, ok := suite.hw.Display.LastCommit()
	suite.Require().True(ok, "no commit")
	return c
}

func (suite *EngineSuite) noLeakedFDs() {
	suite.Empty(suite.hw.FDs.Leaked(), "leaked fence descriptors")
	suite.Zero(suite.hw.GPU.Live(), "fences not destroyed")
}

func (suite *EngineSuite) TestAsync_FullHDFlipToNextBuffer() {
	e := suite.engine(ModeAsync, ReassertBestEffort)
	out := suite.window.Output

	// Plane already bound to buffer A.
	suite.Require().NoError(e.PresentAsync(suite.window))
	a := suite.window.State().Front
	suite.Require().NotNil(a)
	exportsBefore := len(suite.hw.GPU.Exports())

	suite.Require().NoError(e.PresentAsync(suite.window))

	st := suite.window.State()
	b := st.Front
	suite.NotEqual(a.ID(), b.ID())

	c := suite.lastCommit()
	suite.True(c.Accepted)
	suite.True(c.Flags.Has(kms.FlagNonBlock))

	fb, ok := c.Value(out.Plane, kms.PropFBID)
	suite.Require().True(ok)
	info, ok := suite.hw.Display.Framebuffer(uint32(fb))
	suite.Require().True(ok, "commit references a removed framebuffer")
	suite.Equal(b.Info(), info)

	crtc, _ := c.Value(out.Plane, kms.PropCRTCID)
	suite.Equal(uint64(simhw.CRTCID), crtc)

	exports := suite.hw.GPU.Exports()
	suite.Require().Len(exports, exportsBefore+1)
	in, ok := c.Value(out.Plane, kms.PropInFenceFD)
	suite.Require().True(ok)
	suite.Equal(uint64(exports[len(exports)-1]), in)

	srcW, _ := c.Value(out.Plane, kms.PropSrcW)
	srcH, _ := c.Value(out.Plane, kms.PropSrcH)
	suite.Equal(uint64(1920)<<16, srcW)
	suite.Equal(uint64(1080)<<16, srcH)

	suite.Equal([]uint64{a.ID()}, suite.surface.Released())
	suite.Nil(st.Next)
	suite.Equal(uint64(2), st.Frames)
	suite.noLeakedFDs()
}

func (suite *EngineSuite) TestAsync_NeverReleasesTheBufferJustLocked() {
	e := suite.engine(ModeAsync, ReassertBestEffort)

	for i := 0; i < 10; i++ {
		prev := suite.window.State().Front
		released := len(suite.surface.Released())

		suite.Require().NoError(e.PresentAsync(suite.window))

		now := suite.surface.Released()[released:]
		front := suite.window.State().Front
		if prev == nil {
			suite.Empty(now)
			continue
		}
		suite.Require().Len(now, 1)
		suite.Equal(prev.ID(), now[0])
		suite.NotEqual(front.ID(), now[0])
	}
	suite.Empty(suite.surface.BadReleases())
}

func (suite *EngineSuite) TestAtMostTwoLiveFramebuffers() {
	for _, mode := range []Mode{ModeAsync, ModeSync} {
		suite.Run(mode.String(), func() {
			suite.SetupTest()
			e := suite.engine(mode, ReassertBestEffort)
			for i := 0; i < 12; i++ {
				suite.Require().NoError(e.Present(suite.window))
				suite.LessOrEqual(suite.hw.Display.LiveFramebuffers(), 2)
				suite.LessOrEqual(suite.registry.Live(), 2)
			}
		})
	}
}

func (suite *EngineSuite) TestReassertIsIdempotent() {
	e := suite.engine(ModeSync, ReassertBestEffort)
	out := suite.window.Output

	planeProps := []string{
		kms.PropCRTCID, kms.PropSrcX, kms.PropSrcY, kms.PropSrcW, kms.PropSrcH,
		kms.PropCRTCX, kms.PropCRTCY, kms.PropCRTCW, kms.PropCRTCH,
	}
	snapshot := func() map[string]uint64 {
		m := map[string]uint64{
			"connector.CRTC_ID": suite.hw.Display.Value(out.Connector, kms.PropCRTCID),
			"crtc.ACTIVE":       suite.hw.Display.Value(out.CRTC, kms.PropActive),
		}
		for _, p := range planeProps {
			m["plane."+p] = suite.hw.Display.Value(out.Plane, p)
		}
		return m
	}

	suite.Require().NoError(e.PresentSync(suite.window))
	first := snapshot()
	suite.Require().NoError(e.PresentSync(suite.window))
	suite.Equal(first, snapshot())

	suite.Equal(uint64(simhw.CRTCID), first["connector.CRTC_ID"])
	suite.Equal(uint64(1), first["crtc.ACTIVE"])

	// Each property is staged once per commit however often it is asserted.
	c := suite.lastCommit()
	seen := map[string]int{}
	for _, p := range c.Properties {
		seen[p.Object.String()+"/"+p.Name]++
	}
	for k, n := range seen {
		suite.Equal(1, n, k)
	}
}

func (suite *EngineSuite) TestAsync_WaitUsesSameCommitsOutFence() {
	e := suite.engine(ModeAsync, ReassertBestEffort)

	for i := 0; i < 5; i++ {
		suite.Require().NoError(e.PresentAsync(suite.window))
		suite.Equal(int32(fence.NoFD), suite.window.State().OutFence)

		c := suite.lastCommit()
		suite.Require().GreaterOrEqual(c.OutFence, 0)
		waits := suite.hw.GPU.Waits()
		suite.Require().Len(waits, i+1)
		suite.Equal(c.OutFence, waits[i])
	}
	suite.noLeakedFDs()
}

func (suite *EngineSuite) TestLockFailureAbortsCleanly() {
	for _, mode := range []Mode{ModeAsync, ModeSync} {
		suite.Run(mode.String(), func() {
			suite.SetupTest()
			e := suite.engine(mode, ReassertBestEffort)
			suite.Require().NoError(e.Present(suite.window))

			before := suite.window.State()
			commits := len(suite.hw.Display.Commits())
			released := len(suite.surface.Released())

			suite.surface.FailLock(errors.New("no buffer"))
			err := e.Present(suite.window)
			suite.ErrorIs(err, ErrBufferLock)

			after := suite.window.State()
			suite.Len(suite.hw.Display.Commits(), commits)
			suite.Len(suite.surface.Released(), released)
			suite.Equal(before.Front, after.Front)
			suite.Nil(after.Next)
			suite.Equal(before.Frames, after.Frames)
			suite.Equal(before.Failures+1, after.Failures)
			suite.noLeakedFDs()
		})
	}
}

func (suite *EngineSuite) TestSync_CommitRejected() {
	e := suite.engine(ModeSync, ReassertBestEffort)
	suite.Require().NoError(e.PresentSync(suite.window))
	front := suite.window.State().Front
	released := len(suite.surface.Released())

	suite.hw.Display.RejectCommits(errors.New("EINVAL"))
	err := e.PresentSync(suite.window)
	suite.ErrorIs(err, kms.ErrCommit)

	st := suite.window.State()
	suite.Equal(front.ID(), st.Front.ID())
	suite.Len(suite.surface.Released(), released)
	suite.False(suite.lastCommit().Accepted)

	// The next frame returns the buffer the rejected commit locked, then flips.
	suite.hw.Display.RejectCommits(nil)
	stale := st.Next
	suite.Require().NotNil(stale)
	suite.Require().NoError(e.PresentSync(suite.window))
	suite.Equal([]uint64{stale.ID(), front.ID()}, suite.surface.Released()[released:])
	suite.Empty(suite.surface.BadReleases())
}

func (suite *EngineSuite) TestSync_ExchangesNoFences() {
	e := suite.engine(ModeSync, ReassertBestEffort)
	out := suite.window.Output

	for i := 0; i < 3; i++ {
		suite.Require().NoError(e.PresentSync(suite.window))
		c := suite.lastCommit()
		suite.False(c.Flags.Has(kms.FlagNonBlock))
		suite.True(c.Flags.Has(kms.FlagAllowModeset))
		_, hasIn := c.Value(out.Plane, kms.PropInFenceFD)
		suite.False(hasIn)
		suite.Equal(-1, c.OutFence)
	}
	suite.Empty(suite.hw.GPU.Exports())
	suite.Empty(suite.hw.GPU.Imports())
	suite.Empty(suite.hw.GPU.Waits())
}

func (suite *EngineSuite) TestAsync_SwapFailure() {
	e := suite.engine(ModeAsync, ReassertBestEffort)
	suite.surface.FailSwap(errors.New("context lost"))

	err := e.PresentAsync(suite.window)
	suite.ErrorIs(err, ErrSwapBuffers)
	suite.Empty(suite.hw.Display.Commits())
	suite.Nil(suite.window.State().Front)
	suite.noLeakedFDs()
}

func (suite *EngineSuite) TestAsync_FenceCreationFailure() {
	e := suite.engine(ModeAsync, ReassertBestEffort)
	suite.hw.GPU.Uninitialize()

	err := e.PresentAsync(suite.window)
	suite.ErrorIs(err, fence.ErrCreation)
	suite.Zero(suite.surface.Swaps())
	suite.Empty(suite.hw.Display.Commits())
}

func (suite *EngineSuite) TestFramebufferCreationFailure() {
	e := suite.engine(ModeAsync, ReassertBestEffort)
	suite.hw.Display.FailFramebuffers(errors.New("unsupported modifier"))

	err := e.PresentAsync(suite.window)
	suite.ErrorIs(err, framebuffer.ErrCreation)
	suite.Empty(suite.hw.Display.Commits())
	suite.noLeakedFDs()
}

func (suite *EngineSuite) TestAsync_MissingInFenceProperty() {
	e := suite.engine(ModeAsync, ReassertBestEffort)
	suite.hw.Display.RemoveProperty(suite.window.Output.Plane, kms.PropInFenceFD)

	err := e.PresentAsync(suite.window)
	suite.ErrorIs(err, kms.ErrPropertyNotFound)
	suite.Empty(suite.hw.Display.Commits())
	suite.noLeakedFDs()
}

func (suite *EngineSuite) TestReassertPolicy() {
	suite.Run("best effort presents without ACTIVE", func() {
		suite.SetupTest()
		suite.hw.Display.RemoveProperty(suite.window.Output.CRTC, kms.PropActive)
		e := suite.engine(ModeAsync, ReassertBestEffort)

		suite.Require().NoError(e.PresentAsync(suite.window))
		_, ok := suite.lastCommit().Value(suite.window.Output.CRTC, kms.PropActive)
		suite.False(ok)
	})
	suite.Run("strict fails the frame", func() {
		suite.SetupTest()
		suite.hw.Display.RemoveProperty(suite.window.Output.Connector, kms.PropCRTCID)
		e := suite.engine(ModeAsync, ReassertStrict)

		err := e.PresentAsync(suite.window)
		suite.ErrorIs(err, kms.ErrPropertyNotFound)
		suite.Empty(suite.hw.Display.Commits())
		suite.noLeakedFDs()
	})
}

// scannedOut returns the framebuffer the plane is showing and whether the
// display still knows it.
func (suite *EngineSuite) scannedOut() (uint32, bool) {
	fb := uint32(suite.hw.Display.Value(suite.window.Output.Plane, kms.PropFBID))
	_, ok := suite.hw.Display.Framebuffer(fb)
	return fb, ok
}

func (suite *EngineSuite) TestReconfigureRebuildsSurface() {
	out := suite.window.Output
	var rebuilt *simhw.Surface
	e := NewEngine(suite.hw.Display, suite.hw.GPU, suite.registry,
		RebuilderFunc(func(*Window) (surface.Provider, error) {
			// The old front is still on screen while the new surface is made.
			suite.Equal(1, suite.surface.Locked())
			_, ok := suite.scannedOut()
			suite.True(ok, "scanned-out framebuffer removed before the rebuild")
			rebuilt = suite.hw.NewSurface(3)
			return rebuilt, nil
		}), Options{Mode: ModeAsync})

	suite.Require().NoError(e.PresentAsync(suite.window))
	suite.Require().NoError(e.PresentAsync(suite.window))
	front := suite.window.State().Front
	released := len(suite.surface.Released())

	half := Centered(out, 960, 540)
	suite.window.Reconfigure(half)
	suite.True(suite.window.State().Dirty)

	suite.Require().NoError(e.PresentAsync(suite.window))

	suite.Require().NotNil(rebuilt)
	suite.Same(rebuilt, suite.window.Surface())
	suite.False(suite.window.State().Dirty)

	// The old front went back to the old surface only after the flip from
	// the new surface was accepted.
	suite.Equal([]uint64{front.ID()}, suite.surface.Released()[released:])
	suite.Zero(suite.surface.Locked())
	suite.Equal(1, rebuilt.Locked())
	suite.Empty(suite.surface.BadReleases())
	suite.Empty(rebuilt.BadReleases())
	suite.LessOrEqual(suite.hw.Display.LiveFramebuffers(), 2)
	_, ok := suite.scannedOut()
	suite.True(ok)

	c := suite.lastCommit()
	x, _ := c.Value(out.Plane, kms.PropCRTCX)
	w, _ := c.Value(out.Plane, kms.PropCRTCW)
	suite.Equal(uint64(480), x)
	suite.Equal(uint64(960), w)
	conn, ok := c.Value(out.Connector, kms.PropCRTCID)
	suite.True(ok)
	suite.Equal(uint64(simhw.CRTCID), conn)

	// Later frames release to the new surface.
	suite.Require().NoError(e.PresentAsync(suite.window))
	suite.Len(suite.surface.Released(), released+1)
	suite.Len(rebuilt.Released(), 1)
	suite.Empty(rebuilt.BadReleases())
	suite.LessOrEqual(suite.hw.Display.LiveFramebuffers(), 2)
	suite.noLeakedFDs()
}

func (suite *EngineSuite) TestLockFailureAfterRebuildKeepsFrontOnScreen() {
	out := suite.window.Output
	rebuilt := suite.hw.NewSurface(3)
	rebuilt.FailLock(errors.New("no free buffer"))
	e := NewEngine(suite.hw.Display, suite.hw.GPU, suite.registry,
		RebuilderFunc(func(*Window) (surface.Provider, error) {
			return rebuilt, nil
		}), Options{Mode: ModeAsync})

	suite.Require().NoError(e.PresentAsync(suite.window))
	suite.Require().NoError(e.PresentAsync(suite.window))
	front := suite.window.State().Front
	fb, _ := suite.scannedOut()
	released := len(suite.surface.Released())
	commits := len(suite.hw.Display.Commits())

	suite.window.Reconfigure(Centered(out, 960, 540))
	err := e.PresentAsync(suite.window)
	suite.ErrorIs(err, ErrBufferLock)

	st := suite.window.State()
	suite.Same(rebuilt, suite.window.Surface())
	suite.False(st.Dirty)
	suite.Equal(front.ID(), st.Front.ID())
	suite.Nil(st.Next)
	suite.Len(suite.hw.Display.Commits(), commits)
	suite.Len(suite.surface.Released(), released)
	suite.Equal(1, suite.surface.Locked())
	got, ok := suite.scannedOut()
	suite.Equal(fb, got)
	suite.True(ok, "scanned-out framebuffer was removed")
	suite.noLeakedFDs()

	// Once the new surface hands out a buffer the old front goes home.
	rebuilt.FailLock(nil)
	suite.Require().NoError(e.PresentAsync(suite.window))
	suite.Equal([]uint64{front.ID()}, suite.surface.Released()[released:])
	suite.Zero(suite.surface.Locked())
	suite.Empty(suite.surface.BadReleases())
	suite.Empty(rebuilt.BadReleases())
}

func (suite *EngineSuite) TestReleaseReturnsBuffersToTheirOwners() {
	e := suite.engine(ModeAsync, ReassertBestEffort)
	suite.Require().NoError(e.PresentAsync(suite.window))

	// A rebuild followed by a rejected commit leaves the front on the old
	// surface and a locked buffer on the new one.
	suite.window.Reconfigure(Centered(suite.window.Output, 960, 540))
	suite.hw.Display.RejectCommits(errors.New("EINVAL"))
	suite.Error(e.PresentAsync(suite.window))
	suite.hw.Display.RejectCommits(nil)
	suite.Require().Len(suite.rebuilds, 1)
	rebuilt := suite.rebuilds[0]
	suite.Equal(1, suite.surface.Locked())
	suite.Equal(1, rebuilt.Locked())

	e.Release(suite.window)

	st := suite.window.State()
	suite.Nil(st.Front)
	suite.Nil(st.Next)
	suite.Zero(suite.surface.Locked())
	suite.Zero(rebuilt.Locked())
	suite.Empty(suite.surface.BadReleases())
	suite.Empty(rebuilt.BadReleases())
	suite.Zero(suite.registry.Live())
	suite.Zero(suite.hw.Display.LiveFramebuffers())
}

func (suite *EngineSuite) TestAsync_MissingOutFenceStillPresents() {
	e := suite.engine(ModeAsync, ReassertBestEffort)
	suite.hw.Display.WithholdOutFences(true)

	err := e.PresentAsync(suite.window)
	suite.ErrorIs(err, ErrUnthrottled)
	suite.ErrorIs(err, fence.ErrInvalidHandle)

	st := suite.window.State()
	suite.Equal(uint64(1), st.Frames)
	suite.Zero(st.Failures)
	suite.NotNil(st.Front)
	suite.Nil(st.Next)
	suite.True(suite.lastCommit().Accepted)
	suite.Empty(suite.hw.GPU.Waits())
	suite.noLeakedFDs()

	// The frame after it flips normally and releases the unthrottled front.
	suite.hw.Display.WithholdOutFences(false)
	front := st.Front
	suite.Require().NoError(e.PresentAsync(suite.window))
	suite.Contains(suite.surface.Released(), front.ID())
	suite.Equal(uint64(2), suite.window.State().Frames)
}

func (suite *EngineSuite) TestRebuildFailureKeepsDirty() {
	suite.window.Reconfigure(FullScreen(suite.window.Output))
	e := NewEngine(suite.hw.Display, suite.hw.GPU, suite.registry,
		RebuilderFunc(func(*Window) (surface.Provider, error) {
			return nil, errors.New("gbm_surface_create failed")
		}), Options{})

	err := e.PresentAsync(suite.window)
	suite.ErrorIs(err, ErrSurfaceRebuild)
	suite.True(suite.window.State().Dirty)
	suite.Same(suite.surface, suite.window.Surface())
}

func (suite *EngineSuite) TestAsyncWithoutFenceDevice() {
	e := NewEngine(suite.hw.Display, nil, suite.registry, nil, Options{})

	suite.ErrorIs(e.PresentAsync(suite.window), fence.ErrCreation)
	suite.NoError(e.PresentSync(suite.window))
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: ModeAsync},
		{in: "async", want: ModeAsync},
		{in: "SYNC", want: ModeSync},
		{in: "triple", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			gtassert.ErrorContains(t, err, "unknown presentation mode")
			continue
		}
		gtassert.NilError(t, err)
		gtassert.Equal(t, got, tt.want)
	}
}
