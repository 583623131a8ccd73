//go:build !linux

package fence

import (
	"fmt"
	"time"
)

const DefaultSWSyncPath = ""

// SWSync is unavailable outside linux.
type SWSync struct{}

func OpenSWSync(string) (*SWSync, error) {
	return nil, fmt.Errorf("%w: sw_sync requires linux", ErrCreation)
}

func (s *SWSync) SetDrainTimeout(time.Duration) {}

func (s *SWSync) Create(int) (*Fence, error) { return nil, ErrCreation }

func (s *SWSync) ExportFD(*Fence) (int, error) { return NoFD, ErrInvalidHandle }

func (s *SWSync) WaitOnDevice(*Fence) error { return ErrInvalidHandle }

func (s *SWSync) Destroy(*Fence) error { return nil }

func (s *SWSync) CloseFD(int) error { return nil }

func (s *SWSync) Submit() error { return nil }

func (s *SWSync) Drain() error { return nil }

func (s *SWSync) Pending() int { return 0 }

func (s *SWSync) Close() error { return nil }
