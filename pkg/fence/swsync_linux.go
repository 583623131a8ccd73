package fence

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
	"unsafe"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// Software sync ioctls. Encoded the same way as the DRM ones:
//
//	_IOW(type, nr, size)   = 0x40000000 | (size << 16) | (type << 8) | nr
//	_IOWR(type, nr, size)  = 0xC0000000 | (size << 16) | (type << 8) | nr
const (
	// SW_SYNC_IOC_CREATE_FENCE = _IOWR('W', 0, struct sw_sync_create_fence_data)
	ioctlSWSyncCreateFence = 0xc0285700

	// SW_SYNC_IOC_INC = _IOW('W', 1, __u32)
	ioctlSWSyncInc = 0x40045701

	// SYNC_IOC_FILE_INFO = _IOWR('>', 4, struct sync_file_info)
	ioctlSyncFileInfo = 0xc0383e04
)

const DefaultSWSyncPath = "/sys/kernel/debug/sync/sw_sync"

// swSyncCreateFenceData corresponds to struct sw_sync_create_fence_data.
type swSyncCreateFenceData struct {
	Value uint32
	Name  [32]byte
	Fence int32
}

// syncFileInfo corresponds to struct sync_file_info.
type syncFileInfo struct {
	Name          [32]byte
	Status        int32
	Flags         uint32
	NumFences     uint32
	Pad           uint32
	SyncFenceInfo uint64
}

type swPoint struct {
	value    uint32
	imported bool
}

// SWSync is a fence device backed by the kernel's software sync timeline. It
// stands in for the GPU when frames are rendered on the CPU: the surface calls
// Submit once a frame is written, which signals every point created for it,
// and Drain before drawing the next frame, which executes the queued waits.
type SWSync struct {
	mu       sync.Mutex
	timeline *os.File
	created  uint32
	signaled uint32
	waits    []int

	drainTimeout time.Duration
}

func OpenSWSync(path string) (*SWSync, error) {
	if path == "" {
		path = DefaultSWSyncPath
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open sw_sync timeline %s: %w", ErrCreation, path, err)
	}
	return &SWSync{timeline: f, drainTimeout: time.Second}, nil
}

// SetDrainTimeout bounds how long Drain waits for a single fence.
func (s *SWSync) SetDrainTimeout(d time.Duration) {
	s.mu.Lock()
	s.drainTimeout = d
	s.mu.Unlock()
}

func (s *SWSync) Create(fd int) (*Fence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timeline == nil {
		return nil, fmt.Errorf("%w: timeline is closed", ErrCreation)
	}

	if fd != NoFD {
		if _, err := fileStatus(fd); err != nil {
			return nil, fmt.Errorf("%w: import fd %d: %w", ErrCreation, fd, err)
		}
		return New(fd, &swPoint{imported: true}), nil
	}

	data := swSyncCreateFenceData{Value: s.created + 1}
	copy(data.Name[:], "kmspresent")
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, s.timeline.Fd(), ioctlSWSyncCreateFence,
		uintptr(unsafe.Pointer(&data)))
	if errno != 0 {
		return nil, fmt.Errorf("%w: SW_SYNC_IOC_CREATE_FENCE: %w", ErrCreation, errno)
	}
	s.created = data.Value
	return New(int(data.Fence), &swPoint{value: data.Value}), nil
}

func (s *SWSync) ExportFD(f *Fence) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := f.Object().(*swPoint)
	if !ok {
		return NoFD, fmt.Errorf("%w: not a sw_sync fence", ErrInvalidHandle)
	}
	if !p.imported && p.value > s.signaled {
		return NoFD, fmt.Errorf("%w: point %d has not been flushed (timeline at %d)",
			ErrInvalidHandle, p.value, s.signaled)
	}
	fd, err := unix.Dup(f.FD())
	if err != nil {
		return NoFD, fmt.Errorf("%w: dup: %w", ErrInvalidHandle, err)
	}
	return fd, nil
}

func (s *SWSync) WaitOnDevice(f *Fence) error {
	fd, err := unix.Dup(f.FD())
	if err != nil {
		return fmt.Errorf("%w: dup: %w", ErrInvalidHandle, err)
	}
	s.mu.Lock()
	s.waits = append(s.waits, fd)
	s.mu.Unlock()
	return nil
}

func (s *SWSync) Destroy(f *Fence) error {
	if f.FD() == NoFD {
		return nil
	}
	return unix.Close(f.FD())
}

func (s *SWSync) CloseFD(fd int) error {
	if fd == NoFD {
		return nil
	}
	return unix.Close(fd)
}

// Submit signals every point created so far.
func (s *SWSync) Submit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inc := s.created - s.signaled
	if inc == 0 {
		return nil
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, s.timeline.Fd(), ioctlSWSyncInc,
		uintptr(unsafe.Pointer(&inc)))
	if errno != 0 {
		return fmt.Errorf("SW_SYNC_IOC_INC: %w", errno)
	}
	s.signaled = s.created
	return nil
}

// Drain blocks until every queued wait has signaled.
func (s *SWSync) Drain() error {
	s.mu.Lock()
	waits := s.waits
	s.waits = nil
	timeout := s.drainTimeout
	s.mu.Unlock()

	var errs []error
	for _, fd := range waits {
		start := time.Now()
		if err := pollSignaled(fd, timeout); err != nil {
			errs = append(errs, err)
		}
		log.Trace().Int("fd", fd).Dur("waited", time.Since(start)).Msg("drained fence")
		unix.Close(fd)
	}
	return errors.Join(errs...)
}

// Pending returns how many device-side waits are queued.
func (s *SWSync) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waits)
}

func (s *SWSync) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, fd := range s.waits {
		unix.Close(fd)
	}
	s.waits = nil
	if s.timeline == nil {
		return nil
	}
	err := s.timeline.Close()
	s.timeline = nil
	return err
}

// Signaled reports whether a sync_file has signaled.
func Signaled(fd int) (bool, error) {
	status, err := fileStatus(fd)
	if err != nil {
		return false, err
	}
	if status < 0 {
		return false, fmt.Errorf("fence fd %d signaled with error %d", fd, status)
	}
	return status == 1, nil
}

func fileStatus(fd int) (int32, error) {
	var info syncFileInfo
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), ioctlSyncFileInfo,
		uintptr(unsafe.Pointer(&info)))
	if errno != 0 {
		return 0, fmt.Errorf("SYNC_IOC_FILE_INFO: %w", errno)
	}
	return info.Status, nil
}

func pollSignaled(fd int, timeout time.Duration) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("fence fd %d did not signal within %s", fd, timeout)
		}
		n, err := unix.Poll(fds, int(remaining.Milliseconds())+1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("poll fence fd %d: %w", fd, err)
		}
		if n > 0 {
			return nil
		}
	}
}
