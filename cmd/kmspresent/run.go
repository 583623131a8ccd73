package kmspresent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/helixml/kmspresent/pkg/config"
	"github.com/helixml/kmspresent/pkg/framebuffer"
	"github.com/helixml/kmspresent/pkg/kms"
	"github.com/helixml/kmspresent/pkg/present"
	"github.com/helixml/kmspresent/pkg/surface"
)

type runOptions struct {
	frames  uint64
	mode    string
	backend string
	image   string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Render and present frames on the first connected output.",
		Long: `Render and present frames on the first connected output.

SIGUSR1 toggles between full screen and a centered half-size window.
SIGINT or SIGTERM stops the loop and restores the previous display configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if opts.mode != "" {
				cfg.Presentation.Mode = opts.mode
			}
			if opts.backend != "" {
				cfg.Renderer.Backend = opts.backend
			}
			if opts.image != "" {
				cfg.Renderer.Image = opts.image
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg, opts.frames)
		},
	}

	runCmd.Flags().Uint64Var(&opts.frames, "frames", 0, "Stop after this many frames, 0 runs until interrupted")
	runCmd.Flags().StringVar(&opts.mode, "mode", "", "Presentation mode, async or sync (overrides PRESENT_MODE)")
	runCmd.Flags().StringVar(&opts.backend, "backend", "", "Render backend, software or egl (overrides RENDER_BACKEND)")
	runCmd.Flags().StringVar(&opts.image, "image", "", "Image drawn under the test pattern (overrides RENDER_IMAGE)")

	runCmd.Long += "\n\nEnvironment Variables:\n" + generateEnvHelpText(&config.Config{}, "")

	return runCmd
}

func run(ctx context.Context, cfg config.Config, frames uint64) error {
	// EGL contexts and DRM master are per thread and per fd respectively; keep
	// the whole loop on one thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	mode, err := present.ParseMode(cfg.Presentation.Mode)
	if err != nil {
		return err
	}
	policy := present.ReassertBestEffort
	if cfg.Presentation.StrictReassert {
		policy = present.ReassertStrict
	}

	var img *imageSource
	if cfg.Renderer.Image != "" {
		img, err = watchImage(cfg.Renderer.Image)
		if err != nil {
			return err
		}
		defer img.Close()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	card, err := openCard(ctx, cfg.Display)
	if err != nil {
		return err
	}
	defer card.Close()

	out, err := card.DiscoverOutput(cfg.Display.Connector)
	if err != nil {
		return err
	}

	saved, err := card.SaveCRTC(out)
	if err != nil {
		log.Warn().Err(err).Msg("could not save CRTC, it will not be restored on exit")
	}
	splash, err := lightOutput(card, out)
	if err != nil {
		return err
	}
	restored := false
	restore := func() {
		if restored {
			return
		}
		restored = true
		if err := card.Restore(saved); err != nil {
			log.Warn().Err(err).Msg("failed to restore CRTC")
		}
	}
	defer func() {
		restore()
		splash.close()
	}()

	registry, err := newRegistry(card)
	if err != nil {
		return err
	}
	defer registry.Close()

	r, err := newRenderer(card, out, cfg, img)
	if err != nil {
		return err
	}
	defer r.Close()

	engine := present.NewEngine(card, r.Fences(), registry, r, present.Options{
		Mode:     mode,
		Reassert: policy,
	})
	window := present.NewWindow(out, r.Surface(), present.FullScreen(out))

	log.Info().
		Stringer("window", window.ID).
		Stringer("mode", mode).
		Str("backend", cfg.Renderer.Backend).
		Str("output", fmt.Sprintf("%dx%d@%d", out.Width, out.Height, out.RefreshHz)).
		Str("buffers", humanize.IBytes(r.BufferBytes())).
		Msg("presenting")

	toggle := make(chan os.Signal, 1)
	signal.Notify(toggle, syscall.SIGUSR1)
	defer signal.Stop(toggle)

	started := time.Now()
	err = renderLoop(ctx, engine, window, r, toggle, frames, cfg.Presentation.MaxConsecutiveFailures)

	state := window.State()
	elapsed := time.Since(started)
	log.Info().
		Str("frames", humanize.Comma(int64(state.Frames))).
		Str("failures", humanize.Comma(int64(state.Failures))).
		Str("elapsed", elapsed.Round(time.Millisecond).String()).
		Float64("fps", float64(state.Frames)/max(elapsed.Seconds(), 1e-9)).
		Msg("stopped")

	// The window's buffers and framebuffers go only once the plane no longer
	// shows them.
	restore()
	engine.Release(window)
	return err
}

func renderLoop(ctx context.Context, engine *present.Engine, w *present.Window, r renderer, toggle <-chan os.Signal, frames uint64, maxFailures int) error {
	centered := false
	failures := 0

	for frame := uint64(0); frames == 0 || frame < frames; frame++ {
		select {
		case <-ctx.Done():
			return nil
		case <-toggle:
			centered = !centered
			g := present.FullScreen(w.Output)
			if centered {
				g = present.Centered(w.Output, uint32(w.Output.Width)/2, uint32(w.Output.Height)/2)
			}
			log.Info().Bool("centered", centered).Msg("reconfiguring window")
			w.Reconfigure(g)
		default:
		}

		err := r.Draw(frame)
		if err == nil {
			err = engine.Present(w)
		}
		if err != nil && !errors.Is(err, present.ErrUnthrottled) {
			failures++
			log.Warn().Err(err).Uint64("frame", frame).Int("consecutive", failures).Msg("frame failed")
			if maxFailures > 0 && failures >= maxFailures {
				return fmt.Errorf("giving up after %d consecutive failed frames: %w", failures, err)
			}
			continue
		}
		failures = 0
	}
	return nil
}

// newRegistry holds framebuffers for the buffer on screen and the one being
// flipped to, and no more.
func newRegistry(b framebuffer.Backend) (*framebuffer.Registry, error) {
	return framebuffer.New(b, framebuffer.DefaultCapacity)
}

func openCard(ctx context.Context, cfg config.Display) (*kms.Card, error) {
	return kms.Open(ctx, kms.OpenConfig{
		Device:      cfg.Device,
		LeaseSocket: cfg.LeaseSocket,
		LeaseWidth:  cfg.LeaseWidth,
		LeaseHeight: cfg.LeaseHeight,
		Logind:      cfg.Logind,
		Attempts:    cfg.OpenAttempts,
		Delay:       cfg.OpenDelay,
	})
}

// splashScreen is the black framebuffer the output is lit with before the
// first atomic flip.
type splashScreen struct {
	card *kms.Card
	dumb *surface.Dumb
	fb   uint32
}

func lightOutput(card *kms.Card, out kms.Output) (*splashScreen, error) {
	s := &splashScreen{card: card}
	if !card.HasDumbBuffer() {
		log.Warn().Msg("no dumb buffers, skipping the initial modeset")
		return s, nil
	}

	dumb, err := surface.NewDumb(card.File(), out.Width, out.Height, 2, nil)
	if err != nil {
		return nil, err
	}
	s.dumb = dumb

	canvas, err := dumb.BeginFrame()
	if err == nil {
		canvas.Fill(1, func(int, int) uint32 { return 0 })
		err = dumb.SwapBuffers()
	}
	var buf surface.Buffer
	if err == nil {
		buf, err = dumb.LockFrontBuffer()
	}
	if err == nil {
		s.fb, err = card.AddFramebuffer(buf.Info())
	}
	if err == nil {
		err = card.Modeset(out, s.fb)
	}
	if err != nil {
		s.close()
		return nil, fmt.Errorf("initial modeset: %w", err)
	}
	return s, nil
}

func (s *splashScreen) close() {
	var errs []error
	if s.fb != 0 {
		errs = append(errs, s.card.RemoveFramebuffer(s.fb))
	}
	if s.dumb != nil {
		errs = append(errs, s.dumb.Destroy())
	}
	if err := errors.Join(errs...); err != nil {
		log.Warn().Err(err).Msg("failed to free splash screen")
	}
}
