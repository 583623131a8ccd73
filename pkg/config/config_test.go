package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/dev/dri/card0", cfg.Display.Device)
	assert.Equal(t, 500*time.Millisecond, cfg.Display.OpenDelay)
	assert.Equal(t, "async", cfg.Presentation.Mode)
	assert.Equal(t, 3, cfg.Presentation.Buffers)
	assert.Equal(t, "software", cfg.Renderer.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PRESENT_MODE", "sync")
	t.Setenv("PRESENT_BUFFERS", "2")
	t.Setenv("KMS_LEASE_SOCKET", "/run/helix-drm.sock")
	t.Setenv("PRESENT_STRICT_REASSERT", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sync", cfg.Presentation.Mode)
	assert.Equal(t, "/run/helix-drm.sock", cfg.Display.LeaseSocket)
	assert.True(t, cfg.Presentation.StrictReassert)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Display:      Display{Device: "/dev/dri/card0"},
			Presentation: Presentation{Mode: "async", Buffers: 3},
			Renderer:     Renderer{Backend: "software"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown mode", mutate: func(c *Config) { c.Presentation.Mode = "mailbox" }, wantErr: "PRESENT_MODE"},
		{name: "unknown backend", mutate: func(c *Config) { c.Renderer.Backend = "vulkan" }, wantErr: "RENDER_BACKEND"},
		{name: "async needs three buffers", mutate: func(c *Config) { c.Presentation.Buffers = 2 }, wantErr: "at least 3"},
		{name: "sync with two buffers", mutate: func(c *Config) {
			c.Presentation.Mode = "sync"
			c.Presentation.Buffers = 2
		}},
		{name: "no device", mutate: func(c *Config) { c.Display.Device = "" }, wantErr: "KMS_DEVICE"},
		{name: "logind", mutate: func(c *Config) { c.Display.Logind = true }},
		{name: "logind with lease", mutate: func(c *Config) {
			c.Display.Logind = true
			c.Display.LeaseSocket = "/run/helix-drm.sock"
		}, wantErr: "mutually exclusive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
