package kms

import "fmt"

// ObjectType values match DRM_MODE_OBJECT_*.
type ObjectType uint32

const (
	ObjectCRTC      ObjectType = 0xcccccccc
	ObjectConnector ObjectType = 0xc0c0c0c0
	ObjectPlane     ObjectType = 0xeeeeeeee
)

func (t ObjectType) String() string {
	switch t {
	case ObjectCRTC:
		return "crtc"
	case ObjectConnector:
		return "connector"
	case ObjectPlane:
		return "plane"
	}
	return fmt.Sprintf("object(0x%x)", uint32(t))
}

// Atomic property names used by the presenter.
const (
	PropFBID        = "FB_ID"
	PropCRTCID      = "CRTC_ID"
	PropSrcX        = "SRC_X"
	PropSrcY        = "SRC_Y"
	PropSrcW        = "SRC_W"
	PropSrcH        = "SRC_H"
	PropCRTCX       = "CRTC_X"
	PropCRTCY       = "CRTC_Y"
	PropCRTCW       = "CRTC_W"
	PropCRTCH       = "CRTC_H"
	PropInFenceFD   = "IN_FENCE_FD"
	PropOutFencePtr = "OUT_FENCE_PTR"
	PropActive      = "ACTIVE"
	PropModeID      = "MODE_ID"
	PropType        = "type"
)

// Plane "type" property values.
const (
	PlaneTypeOverlay = 0
	PlaneTypePrimary = 1
	PlaneTypeCursor  = 2
)

// Object is a KMS mode object addressed by the atomic API.
type Object struct {
	ID   uint32
	Type ObjectType
}

func Plane(id uint32) Object     { return Object{ID: id, Type: ObjectPlane} }
func CRTC(id uint32) Object      { return Object{ID: id, Type: ObjectCRTC} }
func Connector(id uint32) Object { return Object{ID: id, Type: ObjectConnector} }

func (o Object) String() string {
	return fmt.Sprintf("%s %d", o.Type, o.ID)
}

// Rect is a rectangle in whole pixels.
type Rect struct {
	X, Y int32
	W, H uint32
}

// Output is one display pipeline: a connector driven by a CRTC scanning out
// a primary plane.
type Output struct {
	Connector Object
	CRTC      Object
	Plane     Object

	Width     uint16
	Height    uint16
	RefreshHz uint32
	ModeName  string
}

// FullScreen is the geometry that shows a whole width x height buffer over
// the whole output.
func (o Output) FullScreen() Rect {
	return Rect{W: uint32(o.Width), H: uint32(o.Height)}
}

// PlaneState binds a plane to a CRTC and framebuffer with source (buffer
// space) and destination (output space) geometry.
type PlaneState struct {
	Plane Object
	CRTC  Object
	FB    uint32
	Src   Rect
	Dst   Rect
}
