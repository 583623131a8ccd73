package kms

import (
	"testing"
	"unsafe"

	"gotest.tools/v3/assert"

	"github.com/helixml/kmspresent/pkg/surface"
)

// The ioctl numbers encode the struct sizes; a layout change would make the
// kernel reject every call.
func TestIoctlStructSizes(t *testing.T) {
	tests := []struct {
		name string
		size uintptr
		cmd  uint32
	}{
		{"drm_set_client_cap", unsafe.Sizeof(drmSetClientCap{}), ioctlSetClientCap},
		{"drm_mode_card_res", unsafe.Sizeof(drmModeCardRes{}), ioctlModeGetResources},
		{"drm_mode_get_property", unsafe.Sizeof(drmModeGetProperty{}), ioctlModeGetProperty},
		{"drm_mode_get_plane_res", unsafe.Sizeof(drmModeGetPlaneRes{}), ioctlModeGetPlaneResources},
		{"drm_mode_get_plane", unsafe.Sizeof(drmModeGetPlane{}), ioctlModeGetPlane},
		{"drm_mode_fb_cmd2", unsafe.Sizeof(drmModeFBCmd2{}), ioctlModeAddFB2},
		{"drm_mode_obj_get_properties", unsafe.Sizeof(drmModeObjGetProperties{}), ioctlModeObjGetProperties},
		{"drm_mode_atomic", unsafe.Sizeof(drmModeAtomic{}), ioctlModeAtomic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, uint32(tt.size), (tt.cmd>>16)&0x3fff)
		})
	}
}

func TestDepthOf(t *testing.T) {
	d, err := depthOf(surface.FormatXRGB8888)
	assert.NilError(t, err)
	assert.Equal(t, d, uint8(24))

	_, err = depthOf(0x3231564e) // NV12
	assert.ErrorContains(t, err, "unsupported pixel format")
}
