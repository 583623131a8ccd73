package kms

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/NeowayLabs/drm/ioctl"
)

// DRM ioctl numbers. The structs involved have the same layout on every
// 64-bit architecture:
//
//	_IO(type, nr)          = (type << 8) | nr
//	_IOW(type, nr, size)   = 0x40000000 | (size << 16) | (type << 8) | nr
//	_IOWR(type, nr, size)  = 0xC0000000 | (size << 16) | (type << 8) | nr
const (
	// DRM_IOCTL_SET_CLIENT_CAP = _IOW('d', 0x0d, struct drm_set_client_cap)
	ioctlSetClientCap = 0x4010640d

	// DRM_IOCTL_SET_MASTER = _IO('d', 0x1e)
	ioctlSetMaster = 0x641e

	// DRM_IOCTL_DROP_MASTER = _IO('d', 0x1f)
	ioctlDropMaster = 0x641f

	// DRM_IOCTL_MODE_GETRESOURCES = _IOWR('d', 0xa0, struct drm_mode_card_res)
	ioctlModeGetResources = 0xc04064a0

	// DRM_IOCTL_MODE_GETPROPERTY = _IOWR('d', 0xaa, struct drm_mode_get_property)
	ioctlModeGetProperty = 0xc04064aa

	// DRM_IOCTL_MODE_GETPLANERESOURCES = _IOWR('d', 0xb5, struct drm_mode_get_plane_res)
	ioctlModeGetPlaneResources = 0xc01064b5

	// DRM_IOCTL_MODE_GETPLANE = _IOWR('d', 0xb6, struct drm_mode_get_plane)
	ioctlModeGetPlane = 0xc02064b6

	// DRM_IOCTL_MODE_ADDFB2 = _IOWR('d', 0xb8, struct drm_mode_fb_cmd2)
	ioctlModeAddFB2 = 0xc06864b8

	// DRM_IOCTL_MODE_OBJ_GETPROPERTIES = _IOWR('d', 0xb9, struct drm_mode_obj_get_properties)
	ioctlModeObjGetProperties = 0xc02064b9

	// DRM_IOCTL_MODE_ATOMIC = _IOWR('d', 0xbc, struct drm_mode_atomic)
	ioctlModeAtomic = 0xc03864bc
)

// Client capabilities.
const (
	clientCapUniversalPlanes = 2
	clientCapAtomic          = 3
)

// DRM_MODE_FB_MODIFIERS
const fbModifiers = 1 << 1

// drmSetClientCap corresponds to struct drm_set_client_cap.
type drmSetClientCap struct {
	Capability uint64
	Value      uint64
}

// drmModeCardRes corresponds to struct drm_mode_card_res.
type drmModeCardRes struct {
	FbIDPtr         uint64
	CrtcIDPtr       uint64
	ConnectorIDPtr  uint64
	EncoderIDPtr    uint64
	CountFbs        uint32
	CountCrtcs      uint32
	CountConnectors uint32
	CountEncoders   uint32
	MinWidth        uint32
	MaxWidth        uint32
	MinHeight       uint32
	MaxHeight       uint32
}

// drmModeGetProperty corresponds to struct drm_mode_get_property.
type drmModeGetProperty struct {
	ValuesPtr      uint64
	EnumBlobPtr    uint64
	PropID         uint32
	Flags          uint32
	Name           [32]byte
	CountValues    uint32
	CountEnumBlobs uint32
}

// drmModeGetPlaneRes corresponds to struct drm_mode_get_plane_res.
type drmModeGetPlaneRes struct {
	PlaneIDPtr  uint64
	CountPlanes uint32
	Pad         uint32
}

// drmModeGetPlane corresponds to struct drm_mode_get_plane.
type drmModeGetPlane struct {
	PlaneID          uint32
	CrtcID           uint32
	FbID             uint32
	PossibleCrtcs    uint32
	GammaSize        uint32
	CountFormatTypes uint32
	FormatTypePtr    uint64
}

// drmModeFBCmd2 corresponds to struct drm_mode_fb_cmd2.
type drmModeFBCmd2 struct {
	FbID        uint32
	Width       uint32
	Height      uint32
	PixelFormat uint32
	Flags       uint32
	Handles     [4]uint32
	Pitches     [4]uint32
	Offsets     [4]uint32
	Pad         uint32
	Modifier    [4]uint64
}

// drmModeObjGetProperties corresponds to struct drm_mode_obj_get_properties.
type drmModeObjGetProperties struct {
	PropsPtr      uint64
	PropValuesPtr uint64
	CountProps    uint32
	ObjID         uint32
	ObjType       uint32
	Pad           uint32
}

// drmModeAtomic corresponds to struct drm_mode_atomic.
type drmModeAtomic struct {
	Flags         uint32
	CountObjs     uint32
	ObjsPtr       uint64
	CountPropsPtr uint64
	PropsPtr      uint64
	PropValuesPtr uint64
	Reserved      uint64
	UserData      uint64
}

func do(f *os.File, cmd uintptr, arg unsafe.Pointer) error {
	return ioctl.Do(f.Fd(), cmd, uintptr(arg))
}

func setMaster(f *os.File) error {
	if err := ioctl.Do(f.Fd(), ioctlSetMaster, 0); err != nil {
		return fmt.Errorf("DRM_IOCTL_SET_MASTER: %w", err)
	}
	return nil
}

func dropMaster(f *os.File) error {
	if err := ioctl.Do(f.Fd(), ioctlDropMaster, 0); err != nil {
		return fmt.Errorf("DRM_IOCTL_DROP_MASTER: %w", err)
	}
	return nil
}

func setClientCap(f *os.File, capability, value uint64) error {
	req := drmSetClientCap{Capability: capability, Value: value}
	if err := do(f, ioctlSetClientCap, unsafe.Pointer(&req)); err != nil {
		return fmt.Errorf("SET_CLIENT_CAP(%d): %w", capability, err)
	}
	return nil
}

// getCRTCs returns the CRTC ids in the order the kernel indexes them, which is
// the bit order of a plane's possible_crtcs mask.
func getCRTCs(f *os.File) ([]uint32, error) {
	// First call: get counts
	var res drmModeCardRes
	if err := do(f, ioctlModeGetResources, unsafe.Pointer(&res)); err != nil {
		return nil, fmt.Errorf("MODE_GETRESOURCES (count): %w", err)
	}
	if res.CountCrtcs == 0 {
		return nil, fmt.Errorf("no CRTCs found")
	}

	crtcIDs := make([]uint32, res.CountCrtcs)

	// Second call: fill the CRTC array only
	fill := drmModeCardRes{
		CrtcIDPtr:  uint64(uintptr(unsafe.Pointer(&crtcIDs[0]))),
		CountCrtcs: res.CountCrtcs,
	}
	if err := do(f, ioctlModeGetResources, unsafe.Pointer(&fill)); err != nil {
		return nil, fmt.Errorf("MODE_GETRESOURCES (fill): %w", err)
	}
	return crtcIDs[:fill.CountCrtcs], nil
}

func getPlanes(f *os.File) ([]uint32, error) {
	var res drmModeGetPlaneRes
	if err := do(f, ioctlModeGetPlaneResources, unsafe.Pointer(&res)); err != nil {
		return nil, fmt.Errorf("MODE_GETPLANERESOURCES (count): %w", err)
	}
	if res.CountPlanes == 0 {
		return nil, nil
	}

	ids := make([]uint32, res.CountPlanes)
	fill := drmModeGetPlaneRes{
		PlaneIDPtr:  uint64(uintptr(unsafe.Pointer(&ids[0]))),
		CountPlanes: res.CountPlanes,
	}
	if err := do(f, ioctlModeGetPlaneResources, unsafe.Pointer(&fill)); err != nil {
		return nil, fmt.Errorf("MODE_GETPLANERESOURCES (fill): %w", err)
	}
	return ids[:fill.CountPlanes], nil
}

func getPlane(f *os.File, id uint32) (drmModeGetPlane, error) {
	p := drmModeGetPlane{PlaneID: id}
	if err := do(f, ioctlModeGetPlane, unsafe.Pointer(&p)); err != nil {
		return p, fmt.Errorf("MODE_GETPLANE(%d): %w", id, err)
	}
	return p, nil
}

// objectProperties lists the property ids of an object with their current
// values.
func objectProperties(f *os.File, obj Object) (ids []uint32, values []uint64, err error) {
	req := drmModeObjGetProperties{ObjID: obj.ID, ObjType: uint32(obj.Type)}
	if err := do(f, ioctlModeObjGetProperties, unsafe.Pointer(&req)); err != nil {
		return nil, nil, fmt.Errorf("MODE_OBJ_GETPROPERTIES(%s) (count): %w", obj, err)
	}
	if req.CountProps == 0 {
		return nil, nil, nil
	}

	ids = make([]uint32, req.CountProps)
	values = make([]uint64, req.CountProps)
	req.PropsPtr = uint64(uintptr(unsafe.Pointer(&ids[0])))
	req.PropValuesPtr = uint64(uintptr(unsafe.Pointer(&values[0])))
	if err := do(f, ioctlModeObjGetProperties, unsafe.Pointer(&req)); err != nil {
		return nil, nil, fmt.Errorf("MODE_OBJ_GETPROPERTIES(%s) (fill): %w", obj, err)
	}
	n := min(int(req.CountProps), len(ids))
	return ids[:n], values[:n], nil
}

func getPropertyName(f *os.File, id uint32) (string, uint32, error) {
	req := drmModeGetProperty{PropID: id}
	if err := do(f, ioctlModeGetProperty, unsafe.Pointer(&req)); err != nil {
		return "", 0, fmt.Errorf("MODE_GETPROPERTY(%d): %w", id, err)
	}
	return cString(req.Name[:]), req.Flags, nil
}

func addFB2(f *os.File, req *drmModeFBCmd2) error {
	if err := do(f, ioctlModeAddFB2, unsafe.Pointer(req)); err != nil {
		return fmt.Errorf("MODE_ADDFB2: %w", err)
	}
	return nil
}

func atomicCommit(f *os.File, req *drmModeAtomic) error {
	if err := do(f, ioctlModeAtomic, unsafe.Pointer(req)); err != nil {
		return fmt.Errorf("MODE_ATOMIC: %w", err)
	}
	return nil
}
