package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Display      Display
	Presentation Presentation
	Renderer     Renderer

	LogLevel string `envconfig:"LOG_LEVEL" default:"info" description:"One of trace, debug, info, warn, error."`
}

// LoadConfig reads the environment, after loading a .env file from the
// working directory when there is one.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type Display struct {
	Device      string `envconfig:"KMS_DEVICE" default:"/dev/dri/card0" description:"DRM card node."`
	LeaseSocket string `envconfig:"KMS_LEASE_SOCKET" description:"If set, request a DRM lease from the manager on this unix socket instead of opening KMS_DEVICE."`
	LeaseWidth  uint32 `envconfig:"KMS_LEASE_WIDTH" default:"1920" description:"Width requested with the lease."`
	LeaseHeight uint32 `envconfig:"KMS_LEASE_HEIGHT" default:"1080" description:"Height requested with the lease."`
	Logind      bool   `envconfig:"KMS_LOGIND" default:"false" description:"Take KMS_DEVICE from the logind session instead of opening it, so no root is needed."`
	Connector   uint32 `envconfig:"KMS_CONNECTOR" default:"0" description:"Connector id to drive, 0 picks the first connected one."`

	OpenAttempts uint          `envconfig:"KMS_OPEN_ATTEMPTS" default:"5" description:"How many times to try to become DRM master."`
	OpenDelay    time.Duration `envconfig:"KMS_OPEN_DELAY" default:"500ms" description:"Delay between attempts to open the device."`
}

type Presentation struct {
	Mode                   string `envconfig:"PRESENT_MODE" default:"async" description:"async (triple buffered, fenced) or sync (double buffered, blocking)."`
	Buffers                int    `envconfig:"PRESENT_BUFFERS" default:"3" description:"Buffers in the render surface."`
	StrictReassert         bool   `envconfig:"PRESENT_STRICT_REASSERT" default:"false" description:"Fail a frame when the connector/CRTC link cannot be re-asserted instead of logging it."`
	MaxConsecutiveFailures int    `envconfig:"PRESENT_MAX_CONSECUTIVE_FAILURES" default:"30" description:"Give up after this many failed frames in a row."`
}

type Renderer struct {
	Backend    string        `envconfig:"RENDER_BACKEND" default:"software" description:"software (dumb buffers + sw_sync) or egl (GBM + EGL native fences)."`
	SWSyncPath string        `envconfig:"RENDER_SW_SYNC_PATH" default:"/sys/kernel/debug/sync/sw_sync" description:"Software sync timeline used by the software backend."`
	Workers    int           `envconfig:"RENDER_WORKERS" default:"4" description:"Goroutines used to draw a software frame."`
	Image      string        `envconfig:"RENDER_IMAGE" description:"Optional PNG, JPEG, BMP or WebP image drawn under the test pattern."`
	FenceWait  time.Duration `envconfig:"RENDER_FENCE_WAIT" default:"1s" description:"Longest a software frame waits for the previous flip."`
}

func (c Config) Validate() error {
	switch strings.ToLower(c.Presentation.Mode) {
	case "async", "sync":
	default:
		return fmt.Errorf("PRESENT_MODE must be async or sync, got %q", c.Presentation.Mode)
	}
	switch strings.ToLower(c.Renderer.Backend) {
	case "software", "egl":
	default:
		return fmt.Errorf("RENDER_BACKEND must be software or egl, got %q", c.Renderer.Backend)
	}
	minBuffers := 2
	if strings.ToLower(c.Presentation.Mode) == "async" {
		minBuffers = 3
	}
	if c.Presentation.Buffers < minBuffers {
		return fmt.Errorf("PRESENT_BUFFERS must be at least %d in %s mode, got %d",
			minBuffers, c.Presentation.Mode, c.Presentation.Buffers)
	}
	if c.Display.Device == "" && c.Display.LeaseSocket == "" {
		return fmt.Errorf("one of KMS_DEVICE or KMS_LEASE_SOCKET is required")
	}
	if c.Display.Logind && c.Display.LeaseSocket != "" {
		return fmt.Errorf("KMS_LOGIND and KMS_LEASE_SOCKET are mutually exclusive")
	}
	if c.Display.Logind && c.Display.Device == "" {
		return fmt.Errorf("KMS_LOGIND needs KMS_DEVICE")
	}
	return nil
}
