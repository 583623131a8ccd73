package kmspresent

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/helixml/kmspresent/pkg/fence"
	"github.com/helixml/kmspresent/pkg/framebuffer"
	"github.com/helixml/kmspresent/pkg/present"
	"github.com/helixml/kmspresent/pkg/simhw"
	"github.com/helixml/kmspresent/pkg/surface"
)

type simRenderer struct {
	hw       *simhw.Hardware
	surface  *simhw.Surface
	surfaces []*simhw.Surface
	draws    int
	drawErr  error
}

func (r *simRenderer) Surface() surface.Provider { return r.surface }

func (r *simRenderer) Fences() fence.Device { return r.hw.GPU }

func (r *simRenderer) Draw(uint64) error {
	r.draws++
	return r.drawErr
}

func (r *simRenderer) RebuildSurface(*present.Window) (surface.Provider, error) {
	r.surface = r.hw.NewSurface(3)
	r.surfaces = append(r.surfaces, r.surface)
	return r.surface, nil
}

func (r *simRenderer) BufferBytes() uint64 { return 0 }

func (r *simRenderer) Close() error { return nil }

type RenderLoopSuite struct {
	suite.Suite

	hw       *simhw.Hardware
	renderer *simRenderer
	registry *framebuffer.Registry
	engine   *present.Engine
	window   *present.Window
}

func TestRenderLoopSuite(t *testing.T) {
	suite.Run(t, new(RenderLoopSuite))
}

func (suite *RenderLoopSuite) SetupTest() {
	suite.hw = simhw.New(1280, 720)
	first := suite.hw.NewSurface(3)
	suite.renderer = &simRenderer{hw: suite.hw, surface: first, surfaces: []*simhw.Surface{first}}

	registry, err := newRegistry(suite.hw.Display)
	suite.Require().NoError(err)
	suite.registry = registry

	suite.engine = present.NewEngine(suite.hw.Display, suite.hw.GPU, registry, suite.renderer, present.Options{Mode: present.ModeAsync})
	out := suite.hw.Display.Output()
	suite.window = present.NewWindow(out, suite.renderer.Surface(), present.FullScreen(out))
}

func (suite *RenderLoopSuite) TestRunsRequestedFrames() {
	err := renderLoop(context.Background(), suite.engine, suite.window, suite.renderer, nil, 10, 3)
	suite.Require().NoError(err)

	state := suite.window.State()
	suite.Equal(uint64(10), state.Frames)
	suite.Zero(state.Failures)
	suite.Equal(10, suite.renderer.draws)
	suite.Len(suite.hw.Display.Commits(), 10)
}

func (suite *RenderLoopSuite) TestStopsWhenCancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := renderLoop(ctx, suite.engine, suite.window, suite.renderer, nil, 0, 3)
	suite.Require().NoError(err)
	suite.Zero(suite.renderer.draws)
}

func (suite *RenderLoopSuite) TestGivesUpAfterConsecutiveFailures() {
	suite.hw.Display.RejectCommits(errors.New("EINVAL"))

	err := renderLoop(context.Background(), suite.engine, suite.window, suite.renderer, nil, 100, 3)
	suite.Require().Error(err)
	suite.ErrorContains(err, "3 consecutive failed frames")
	suite.Equal(uint64(3), suite.window.State().Failures)
}

func (suite *RenderLoopSuite) TestDrawFailuresCount() {
	suite.renderer.drawErr = errors.New("drain queue: timeout")

	err := renderLoop(context.Background(), suite.engine, suite.window, suite.renderer, nil, 100, 2)
	suite.Require().Error(err)
	suite.Empty(suite.hw.Display.Commits())
}

func (suite *RenderLoopSuite) TestToggleReconfiguresWindow() {
	toggle := make(chan os.Signal, 1)
	toggle <- syscall.SIGUSR1

	err := renderLoop(context.Background(), suite.engine, suite.window, suite.renderer, toggle, 2, 3)
	suite.Require().NoError(err)

	g := suite.window.Geometry()
	suite.Equal(uint32(640), g.Dst.W)
	suite.Equal(int32(320), g.Dst.X)
	suite.Equal(int32(180), g.Dst.Y)
	suite.False(suite.window.State().Dirty)
	suite.Same(suite.renderer.surface, suite.window.Surface())
}

func (suite *RenderLoopSuite) TestUnthrottledFramesAreNotFailures() {
	suite.hw.Display.WithholdOutFences(true)

	err := renderLoop(context.Background(), suite.engine, suite.window, suite.renderer, nil, 5, 2)
	suite.Require().NoError(err)

	state := suite.window.State()
	suite.Equal(uint64(5), state.Frames)
	suite.Zero(state.Failures)
	suite.Empty(suite.hw.FDs.Leaked())
}

func (suite *RenderLoopSuite) TestFramebuffersStayBoundedAcrossToggles() {
	toggle := make(chan os.Signal, 1)
	for i := 0; i < 4; i++ {
		toggle <- syscall.SIGUSR1
		err := renderLoop(context.Background(), suite.engine, suite.window, suite.renderer, toggle, 3, 3)
		suite.Require().NoError(err)
		suite.LessOrEqual(suite.hw.Display.LiveFramebuffers(), 2)
		suite.LessOrEqual(suite.registry.Live(), 2)
	}
	suite.Len(suite.renderer.surfaces, 5)
	suite.Equal(uint64(12), suite.window.State().Frames)
	for _, s := range suite.renderer.surfaces {
		suite.Empty(s.BadReleases())
	}
}

func (suite *RenderLoopSuite) TestReleaseAfterRebuild() {
	toggle := make(chan os.Signal, 1)
	toggle <- syscall.SIGUSR1
	err := renderLoop(context.Background(), suite.engine, suite.window, suite.renderer, toggle, 4, 3)
	suite.Require().NoError(err)

	suite.engine.Release(suite.window)

	for _, s := range suite.renderer.surfaces {
		suite.Zero(s.Locked())
		suite.Empty(s.BadReleases())
	}
	suite.Zero(suite.hw.Display.LiveFramebuffers())
}
