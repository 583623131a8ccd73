package kms

import (
	"errors"
	"fmt"
)

var (
	ErrPropertyNotFound = errors.New("property not found")
	ErrCommit           = errors.New("atomic commit failed")
	ErrRequestSubmitted = errors.New("request already submitted")
)

// CommitFlags values match DRM_MODE_ATOMIC_* and DRM_MODE_PAGE_FLIP_*.
type CommitFlags uint32

const (
	FlagPageFlipEvent CommitFlags = 0x0001
	FlagTestOnly      CommitFlags = 0x0100
	FlagNonBlock      CommitFlags = 0x0200
	FlagAllowModeset  CommitFlags = 0x0400
)

func (f CommitFlags) Has(flag CommitFlags) bool {
	return f&flag == flag
}

type RequestState int

const (
	RequestBuilding RequestState = iota
	RequestSubmitted
	RequestAccepted
	RequestRejected
)

func (s RequestState) String() string {
	switch s {
	case RequestBuilding:
		return "building"
	case RequestSubmitted:
		return "submitted"
	case RequestAccepted:
		return "accepted"
	case RequestRejected:
		return "rejected"
	}
	return fmt.Sprintf("RequestState(%d)", int(s))
}

// Property is one (object, property, value) entry of a request.
type Property struct {
	Object Object
	Name   string
	ID     uint32
	Value  uint64

	slot *int32
}

// Slot is the location the kernel writes to for pointer-valued properties
// such as OUT_FENCE_PTR. Nil for plain values.
func (p Property) Slot() *int32 {
	return p.slot
}

type propertyKey struct {
	object uint32
	prop   uint32
}

// Request accumulates property changes to be applied in one atomic commit. A
// request is single use.
type Request struct {
	dev   Device
	props []Property
	index map[propertyKey]int
	state RequestState
}

func NewRequest(dev Device) *Request {
	return &Request{
		dev:   dev,
		index: make(map[propertyKey]int),
	}
}

// SetProperty records a value for a named property. Setting the same property
// twice keeps the last value.
func (r *Request) SetProperty(obj Object, name string, value uint64) error {
	return r.set(obj, name, value, nil)
}

func (r *Request) set(obj Object, name string, value uint64, slot *int32) error {
	if r.state != RequestBuilding {
		return ErrRequestSubmitted
	}
	id, err := r.dev.PropertyID(obj, name)
	if err != nil {
		if errors.Is(err, ErrPropertyNotFound) {
			return err
		}
		return fmt.Errorf("%w: %s %s: %w", ErrPropertyNotFound, obj, name, err)
	}

	p := Property{Object: obj, Name: name, ID: id, Value: value, slot: slot}
	key := propertyKey{object: obj.ID, prop: id}
	if i, ok := r.index[key]; ok {
		r.props[i] = p
		return nil
	}
	r.index[key] = len(r.props)
	r.props = append(r.props, p)
	return nil
}

// SetPlaneState attaches a framebuffer to a plane on a CRTC. Source
// coordinates are converted to 16.16 fixed point.
func (r *Request) SetPlaneState(s PlaneState) error {
	props := []struct {
		name  string
		value uint64
	}{
		{PropFBID, uint64(s.FB)},
		{PropCRTCID, uint64(s.CRTC.ID)},
		{PropSrcX, fixed16(int64(s.Src.X))},
		{PropSrcY, fixed16(int64(s.Src.Y))},
		{PropSrcW, fixed16(int64(s.Src.W))},
		{PropSrcH, fixed16(int64(s.Src.H))},
		{PropCRTCX, uint64(int64(s.Dst.X))},
		{PropCRTCY, uint64(int64(s.Dst.Y))},
		{PropCRTCW, uint64(s.Dst.W)},
		{PropCRTCH, uint64(s.Dst.H)},
	}
	for _, p := range props {
		if err := r.SetProperty(s.Plane, p.name, p.value); err != nil {
			return err
		}
	}
	return nil
}

// SetInFence makes the plane update wait on a sync_file.
func (r *Request) SetInFence(plane Object, fd int) error {
	return r.SetProperty(plane, PropInFenceFD, uint64(int64(fd)))
}

// SetOutFence asks the kernel to store a sync_file signaled when the commit
// completes on crtc into slot. The slot is reset to -1 first and must stay
// valid until Submit returns.
func (r *Request) SetOutFence(crtc Object, slot *int32) error {
	if slot == nil {
		return errors.New("out fence slot is nil")
	}
	*slot = -1
	return r.set(crtc, PropOutFencePtr, 0, slot)
}

// Submit commits the request. Mode changes are always allowed; a non-blocking
// commit returns as soon as the kernel has queued it.
func (r *Request) Submit(blocking bool) error {
	if r.state != RequestBuilding {
		return ErrRequestSubmitted
	}
	flags := FlagAllowModeset
	if !blocking {
		flags |= FlagNonBlock
	}

	r.state = RequestSubmitted
	if err := r.dev.Commit(r, flags); err != nil {
		r.state = RequestRejected
		return fmt.Errorf("%w: %w", ErrCommit, err)
	}
	r.state = RequestAccepted
	return nil
}

func (r *Request) State() RequestState {
	return r.state
}

// Properties returns the entries in the order they were first set.
func (r *Request) Properties() []Property {
	out := make([]Property, len(r.props))
	copy(out, r.props)
	return out
}

// Objects returns the distinct objects of the request in first-seen order
// along with their properties, which is how the atomic ioctl wants them laid
// out.
func (r *Request) Objects() ([]Object, [][]Property) {
	var objs []Object
	var grouped [][]Property
	at := make(map[Object]int)
	for _, p := range r.props {
		i, ok := at[p.Object]
		if !ok {
			i = len(objs)
			at[p.Object] = i
			objs = append(objs, p.Object)
			grouped = append(grouped, nil)
		}
		grouped[i] = append(grouped[i], p)
	}
	return objs, grouped
}

func fixed16(v int64) uint64 {
	return uint64(v << 16)
}
