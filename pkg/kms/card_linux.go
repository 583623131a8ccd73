package kms

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"
	"unsafe"

	"github.com/NeowayLabs/drm"
	"github.com/NeowayLabs/drm/mode"
	"github.com/avast/retry-go/v4"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"

	"github.com/helixml/kmspresent/pkg/surface"
)

type OpenConfig struct {
	Device string

	// LeaseSocket, when set, takes the card from a DRM lease manager instead
	// of opening Device.
	LeaseSocket string
	LeaseWidth  uint32
	LeaseHeight uint32

	// Logind takes Device from the logind session instead of opening it.
	Logind bool

	Attempts uint
	Delay    time.Duration
}

type propertyName struct {
	object Object
	name   string
}

// Card is an atomic-capable DRM device. It implements Device for the
// presenter and framebuffer.Backend for the registry. Property ids are cached
// and the cache is safe for concurrent use.
type Card struct {
	file   *os.File
	master bool
	lease  *LeaseResult
	logind *logindSession

	props *xsync.MapOf[propertyName, uint32]
	modes *xsync.MapOf[uint32, mode.Info]
}

// Open opens the card and acquires DRM master, retrying while another master
// holds it.
func Open(ctx context.Context, cfg OpenConfig) (*Card, error) {
	if cfg.LeaseSocket != "" {
		return OpenLease(cfg.LeaseSocket, cfg.LeaseWidth, cfg.LeaseHeight)
	}
	if cfg.Logind {
		return OpenLogind(cfg.Device)
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 1
	}

	f, err := retry.DoWithData(
		func() (*os.File, error) {
			return openDRM(cfg.Device)
		},
		retry.Attempts(cfg.Attempts),
		retry.Delay(cfg.Delay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n+1).Str("device", cfg.Device).Msg("DRM device not available, retrying")
		}),
	)
	if err != nil {
		return nil, err
	}

	c, err := newCard(f)
	if err != nil {
		dropMaster(f)
		f.Close()
		return nil, err
	}
	c.master = true
	return c, nil
}

// OpenLease requests a lease from the DRM manager listening on socketPath and
// uses the leased fd as the card. The lessee is implicitly master of the
// leased objects.
func OpenLease(socketPath string, width, height uint32) (*Card, error) {
	lease, err := NewLeaseClient(socketPath).RequestLease(width, height)
	if err != nil {
		return nil, fmt.Errorf("request DRM lease: %w", err)
	}
	log.Info().
		Uint32("scanout", lease.ScanoutID).
		Str("connector", lease.ConnectorName).
		Msg("acquired DRM lease")

	f := os.NewFile(uintptr(lease.LeaseFD), "drm-lease")
	c, err := newCard(f)
	if err != nil {
		f.Close()
		lease.Close()
		return nil, err
	}
	c.lease = lease
	return c, nil
}

// openDRM opens the DRM device and acquires master.
func openDRM(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := setMaster(f); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func newCard(f *os.File) (*Card, error) {
	if err := setClientCap(f, clientCapUniversalPlanes, 1); err != nil {
		return nil, fmt.Errorf("enable universal planes: %w", err)
	}
	if err := setClientCap(f, clientCapAtomic, 1); err != nil {
		return nil, fmt.Errorf("device does not support atomic modesetting: %w", err)
	}
	return &Card{
		file:  f,
		props: xsync.NewMapOf[propertyName, uint32](),
		modes: xsync.NewMapOf[uint32, mode.Info](),
	}, nil
}

func (c *Card) File() *os.File {
	return c.file
}

// HasDumbBuffer reports whether the software render path can allocate on
// this card.
func (c *Card) HasDumbBuffer() bool {
	return drm.HasDumbBuffer(c.file)
}

func (c *Card) PropertyID(obj Object, name string) (uint32, error) {
	key := propertyName{object: obj, name: name}
	if id, ok := c.props.Load(key); ok {
		return id, nil
	}
	if err := c.loadProperties(obj); err != nil {
		return 0, err
	}
	if id, ok := c.props.Load(key); ok {
		return id, nil
	}
	return 0, fmt.Errorf("%w: %s has no property %q", ErrPropertyNotFound, obj, name)
}

func (c *Card) loadProperties(obj Object) error {
	ids, _, err := objectProperties(c.file, obj)
	if err != nil {
		return err
	}
	for _, id := range ids {
		name, _, err := getPropertyName(c.file, id)
		if err != nil {
			return err
		}
		c.props.Store(propertyName{object: obj, name: name}, id)
	}
	return nil
}

// PropertyValue is a property with its current value as reported by the
// kernel.
type PropertyValue struct {
	ID        uint32
	Name      string
	Value     uint64
	Immutable bool
}

// DRM_MODE_PROP_IMMUTABLE
const propImmutable = 1 << 2

// Properties lists an object's properties with their current values.
func (c *Card) Properties(obj Object) ([]PropertyValue, error) {
	ids, values, err := objectProperties(c.file, obj)
	if err != nil {
		return nil, err
	}
	out := make([]PropertyValue, 0, len(ids))
	for i, id := range ids {
		name, flags, err := getPropertyName(c.file, id)
		if err != nil {
			return nil, err
		}
		c.props.Store(propertyName{object: obj, name: name}, id)
		out = append(out, PropertyValue{
			ID:        id,
			Name:      name,
			Value:     values[i],
			Immutable: flags&propImmutable != 0,
		})
	}
	return out, nil
}

// Commit encodes the request the way the atomic ioctl expects it: one entry
// per object with its property count, followed by the flattened property ids
// and values. Out-fence properties carry the address of their slot.
func (c *Card) Commit(req *Request, flags CommitFlags) error {
	objs, grouped := req.Objects()
	if len(objs) == 0 {
		return errors.New("empty atomic request")
	}

	objIDs := make([]uint32, len(objs))
	counts := make([]uint32, len(objs))
	var propIDs []uint32
	var values []uint64
	for i, obj := range objs {
		objIDs[i] = obj.ID
		counts[i] = uint32(len(grouped[i]))
		for _, p := range grouped[i] {
			propIDs = append(propIDs, p.ID)
			v := p.Value
			if slot := p.Slot(); slot != nil {
				v = uint64(uintptr(unsafe.Pointer(slot)))
			}
			values = append(values, v)
		}
	}

	atomic := drmModeAtomic{
		Flags:         uint32(flags),
		CountObjs:     uint32(len(objs)),
		ObjsPtr:       uint64(uintptr(unsafe.Pointer(&objIDs[0]))),
		CountPropsPtr: uint64(uintptr(unsafe.Pointer(&counts[0]))),
		PropsPtr:      uint64(uintptr(unsafe.Pointer(&propIDs[0]))),
		PropValuesPtr: uint64(uintptr(unsafe.Pointer(&values[0]))),
	}
	err := atomicCommit(c.file, &atomic)
	runtime.KeepAlive(objIDs)
	runtime.KeepAlive(counts)
	runtime.KeepAlive(propIDs)
	runtime.KeepAlive(values)
	for _, g := range grouped {
		for _, p := range g {
			runtime.KeepAlive(p.Slot())
		}
	}
	if err != nil {
		return err
	}

	log.Trace().
		Int("objects", len(objs)).
		Int("properties", len(propIDs)).
		Bool("nonblock", flags.Has(FlagNonBlock)).
		Msg("atomic commit")
	return nil
}

// AddFramebuffer creates a framebuffer for a buffer. Buffers without an
// explicit modifier go through the legacy AddFB path.
func (c *Card) AddFramebuffer(info surface.Info) (uint32, error) {
	if !info.HasModifier() {
		depth, err := depthOf(info.Format)
		if err != nil {
			return 0, err
		}
		id, err := mode.AddFB(c.file, uint16(info.Width), uint16(info.Height), depth, 32, info.Stride, info.Handle)
		if err != nil {
			return 0, fmt.Errorf("MODE_ADDFB: %w", err)
		}
		return id, nil
	}

	req := drmModeFBCmd2{
		Width:       info.Width,
		Height:      info.Height,
		PixelFormat: info.Format,
		Flags:       fbModifiers,
	}
	req.Handles[0] = info.Handle
	req.Pitches[0] = info.Stride
	req.Modifier[0] = info.Modifier
	if err := addFB2(c.file, &req); err != nil {
		return 0, err
	}
	return req.FbID, nil
}

func (c *Card) RemoveFramebuffer(id uint32) error {
	return mode.RmFB(c.file, id)
}

func depthOf(format uint32) (uint8, error) {
	switch format {
	case surface.FormatXRGB8888:
		return 24, nil
	case surface.FormatARGB8888:
		return 32, nil
	}
	return 0, fmt.Errorf("unsupported pixel format 0x%08x for legacy framebuffer", format)
}

// DiscoverOutput picks the first connected connector with a CRTC, or the
// given connector when connectorID is not zero, and the primary plane that
// can drive that CRTC.
func (c *Card) DiscoverOutput(connectorID uint32) (Output, error) {
	modeset, err := mode.NewSimpleModeset(c.file)
	if err != nil {
		return Output{}, fmt.Errorf("enumerate outputs: %w", err)
	}

	var ms *mode.Modeset
	for i := range modeset.Modesets {
		if connectorID == 0 || modeset.Modesets[i].Conn == connectorID {
			ms = &modeset.Modesets[i]
			break
		}
	}
	if ms == nil {
		if connectorID != 0 {
			return Output{}, fmt.Errorf("connector %d is not connected or has no CRTC", connectorID)
		}
		return Output{}, errors.New("no connected output found")
	}

	plane, err := c.primaryPlane(ms.Crtc)
	if err != nil {
		return Output{}, err
	}
	c.modes.Store(ms.Crtc, ms.Mode)

	out := Output{
		Connector: Connector(ms.Conn),
		CRTC:      CRTC(ms.Crtc),
		Plane:     plane,
		Width:     ms.Width,
		Height:    ms.Height,
		RefreshHz: ms.Mode.Vrefresh,
		ModeName:  cString(ms.Mode.Name[:]),
	}
	log.Info().
		Stringer("connector", out.Connector).
		Stringer("crtc", out.CRTC).
		Stringer("plane", out.Plane).
		Str("mode", out.ModeName).
		Uint32("refresh", out.RefreshHz).
		Msg("discovered output")
	return out, nil
}

func (c *Card) primaryPlane(crtcID uint32) (Object, error) {
	crtcs, err := getCRTCs(c.file)
	if err != nil {
		return Object{}, err
	}
	index := -1
	for i, id := range crtcs {
		if id == crtcID {
			index = i
			break
		}
	}
	if index < 0 {
		return Object{}, fmt.Errorf("crtc %d not in card resources", crtcID)
	}

	planes, err := getPlanes(c.file)
	if err != nil {
		return Object{}, err
	}
	for _, id := range planes {
		p, err := getPlane(c.file, id)
		if err != nil {
			return Object{}, err
		}
		if p.PossibleCrtcs&(1<<index) == 0 {
			continue
		}
		typ, err := c.propertyValue(Plane(id), PropType)
		if err != nil {
			return Object{}, err
		}
		if typ == PlaneTypePrimary {
			return Plane(id), nil
		}
	}
	return Object{}, fmt.Errorf("no primary plane for crtc %d", crtcID)
}

func (c *Card) propertyValue(obj Object, name string) (uint64, error) {
	props, err := c.Properties(obj)
	if err != nil {
		return 0, err
	}
	for _, p := range props {
		if p.Name == name {
			return p.Value, nil
		}
	}
	return 0, fmt.Errorf("%w: %s has no property %q", ErrPropertyNotFound, obj, name)
}

// SavedCRTC is the legacy CRTC configuration found before the first modeset.
type SavedCRTC struct {
	crtc *mode.Crtc
	conn uint32
}

func (c *Card) SaveCRTC(out Output) (*SavedCRTC, error) {
	crtc, err := mode.GetCrtc(c.file, out.CRTC.ID)
	if err != nil {
		return nil, fmt.Errorf("get crtc %d: %w", out.CRTC.ID, err)
	}
	return &SavedCRTC{crtc: crtc, conn: out.Connector.ID}, nil
}

// Modeset lights the output with fb using the legacy SetCrtc call, so the
// first atomic flip only has to change the plane.
func (c *Card) Modeset(out Output, fb uint32) error {
	info, ok := c.modes.Load(out.CRTC.ID)
	if !ok {
		return fmt.Errorf("no mode known for %s", out.CRTC)
	}
	conn := out.Connector.ID
	if err := mode.SetCrtc(c.file, out.CRTC.ID, fb, 0, 0, &conn, 1, &info); err != nil {
		return fmt.Errorf("set crtc %d: %w", out.CRTC.ID, err)
	}
	return nil
}

// Restore puts back the CRTC configuration saved before the first modeset.
func (c *Card) Restore(saved *SavedCRTC) error {
	if saved == nil {
		return nil
	}
	conn := saved.conn
	crtc := saved.crtc
	if err := mode.SetCrtc(c.file, crtc.ID, crtc.BufferID, crtc.X, crtc.Y, &conn, 1, &crtc.Mode); err != nil {
		return fmt.Errorf("restore crtc %d: %w", crtc.ID, err)
	}
	return nil
}

func (c *Card) Close() error {
	var errs []error
	if c.master {
		if err := dropMaster(c.file); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.file.Close(); err != nil {
		errs = append(errs, err)
	}
	if c.lease != nil {
		c.lease.Close()
	}
	if c.logind != nil {
		if err := c.logind.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
