package simhw

import (
	"errors"
	"fmt"
	"sync"

	"github.com/helixml/kmspresent/pkg/kms"
	"github.com/helixml/kmspresent/pkg/surface"
)

// Object ids of the simulated pipeline.
const (
	ConnectorID = 5
	CRTCID      = 41
	PlaneID     = 31
)

var planeProps = []string{
	kms.PropType, kms.PropFBID, kms.PropCRTCID,
	kms.PropSrcX, kms.PropSrcY, kms.PropSrcW, kms.PropSrcH,
	kms.PropCRTCX, kms.PropCRTCY, kms.PropCRTCW, kms.PropCRTCH,
	kms.PropInFenceFD,
}

// Commit is one commit the display received.
type Commit struct {
	Flags      kms.CommitFlags
	Properties []kms.Property
	Accepted   bool
	OutFence   int
}

// Value returns the staged value of a property in the commit.
func (c Commit) Value(obj kms.Object, name string) (uint64, bool) {
	for _, p := range c.Properties {
		if p.Object == obj && p.Name == name {
			return p.Value, true
		}
	}
	return 0, false
}

// Display is a kms.Device and framebuffer.Backend driving a single
// connector, CRTC and primary plane.
type Display struct {
	mu  sync.Mutex
	fds *FDTable
	out kms.Output

	props  map[kms.Object]map[string]uint32
	state  map[kms.Object]map[string]uint64
	fbs    map[uint32]surface.Info
	nextFB uint32

	commits    []Commit
	rejectErr  error
	fbErr      error
	noOutFence bool
}

func NewDisplay(fds *FDTable, width, height uint16) *Display {
	d := &Display{
		fds: fds,
		out: kms.Output{
			Connector: kms.Connector(ConnectorID),
			CRTC:      kms.CRTC(CRTCID),
			Plane:     kms.Plane(PlaneID),
			Width:     width,
			Height:    height,
			RefreshHz: 60,
			ModeName:  fmt.Sprintf("%dx%d", width, height),
		},
		props:  make(map[kms.Object]map[string]uint32),
		state:  make(map[kms.Object]map[string]uint64),
		fbs:    make(map[uint32]surface.Info),
		nextFB: 100,
	}

	id := uint32(1000)
	define := func(obj kms.Object, names ...string) {
		d.props[obj] = make(map[string]uint32)
		d.state[obj] = make(map[string]uint64)
		for _, n := range names {
			d.props[obj][n] = id
			id++
		}
	}
	define(d.out.Connector, kms.PropCRTCID)
	define(d.out.CRTC, kms.PropActive, kms.PropModeID, kms.PropOutFencePtr)
	define(d.out.Plane, planeProps...)

	d.state[d.out.Plane][kms.PropType] = kms.PlaneTypePrimary
	d.state[d.out.CRTC][kms.PropActive] = 1
	d.state[d.out.Connector][kms.PropCRTCID] = CRTCID
	d.state[d.out.Plane][kms.PropCRTCID] = CRTCID
	return d
}

func (d *Display) Output() kms.Output {
	return d.out
}

func (d *Display) PropertyID(obj kms.Object, name string) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.props[obj][name]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("%w: %s has no property %q", kms.ErrPropertyNotFound, obj, name)
}

// RemoveProperty hides a property, as on hardware that lacks it.
func (d *Display) RemoveProperty(obj kms.Object, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.props[obj], name)
}

// RejectCommits makes every later commit fail with err, or succeed again
// when err is nil.
func (d *Display) RejectCommits(err error) {
	d.mu.Lock()
	d.rejectErr = err
	d.mu.Unlock()
}

// FailFramebuffers makes AddFramebuffer fail with err, or succeed again when
// err is nil.
func (d *Display) FailFramebuffers(err error) {
	d.mu.Lock()
	d.fbErr = err
	d.mu.Unlock()
}

// WithholdOutFences makes accepted commits leave the out-fence slot
// untouched, like a driver without explicit fencing.
func (d *Display) WithholdOutFences(withhold bool) {
	d.mu.Lock()
	d.noOutFence = withhold
	d.mu.Unlock()
}

func (d *Display) Commit(req *kms.Request, flags kms.CommitFlags) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := Commit{Flags: flags, Properties: req.Properties(), OutFence: -1}
	if err := d.validate(c); err != nil {
		d.commits = append(d.commits, c)
		return err
	}

	for _, p := range c.Properties {
		if slot := p.Slot(); slot != nil {
			if d.noOutFence {
				continue
			}
			fd := d.fds.Open("out-fence")
			*slot = int32(fd)
			c.OutFence = fd
			continue
		}
		d.state[p.Object][p.Name] = p.Value
	}
	c.Accepted = true
	d.commits = append(d.commits, c)
	return nil
}

func (d *Display) validate(c Commit) error {
	if d.rejectErr != nil {
		return d.rejectErr
	}
	if len(c.Properties) == 0 {
		return errors.New("EINVAL: empty commit")
	}
	for _, p := range c.Properties {
		if _, ok := d.props[p.Object]; !ok {
			return fmt.Errorf("ENOENT: unknown %s", p.Object)
		}
		switch p.Name {
		case kms.PropFBID:
			if p.Value != 0 {
				if _, ok := d.fbs[uint32(p.Value)]; !ok {
					return fmt.Errorf("ENOENT: framebuffer %d", p.Value)
				}
			}
		case kms.PropInFenceFD:
			if fd := int(int64(p.Value)); fd >= 0 && !d.fds.IsOpen(fd) {
				return fmt.Errorf("EINVAL: in-fence fd %d is not open", fd)
			}
		case kms.PropType:
			return errors.New("EINVAL: plane type is immutable")
		}
	}
	return nil
}

// Value reports the applied value of a property.
func (d *Display) Value(obj kms.Object, name string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state[obj][name]
}

func (d *Display) Commits() []Commit {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Commit(nil), d.commits...)
}

// LastCommit returns the most recent commit, accepted or not.
func (d *Display) LastCommit() (Commit, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.commits) == 0 {
		return Commit{}, false
	}
	return d.commits[len(d.commits)-1], true
}

func (d *Display) AddFramebuffer(info surface.Info) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fbErr != nil {
		return 0, d.fbErr
	}
	if info.Width == 0 || info.Height == 0 {
		return 0, errors.New("EINVAL: empty buffer")
	}
	d.nextFB++
	d.fbs[d.nextFB] = info
	return d.nextFB, nil
}

func (d *Display) RemoveFramebuffer(id uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.fbs[id]; !ok {
		return fmt.Errorf("ENOENT: framebuffer %d", id)
	}
	delete(d.fbs, id)
	return nil
}

// Framebuffer returns the buffer layout a framebuffer was created from.
func (d *Display) Framebuffer(id uint32) (surface.Info, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.fbs[id]
	return info, ok
}

func (d *Display) LiveFramebuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fbs)
}
