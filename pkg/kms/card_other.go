//go:build !linux

package kms

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/helixml/kmspresent/pkg/surface"
)

var errUnsupported = errors.New("KMS is only available on linux")

type OpenConfig struct {
	Device      string
	LeaseSocket string
	LeaseWidth  uint32
	LeaseHeight uint32
	Logind      bool
	Attempts    uint
	Delay       time.Duration
}

type Card struct{}

type PropertyValue struct {
	ID        uint32
	Name      string
	Value     uint64
	Immutable bool
}

type SavedCRTC struct{}

func Open(context.Context, OpenConfig) (*Card, error) { return nil, errUnsupported }

func OpenLease(string, uint32, uint32) (*Card, error) { return nil, errUnsupported }

func OpenLogind(string) (*Card, error) { return nil, errUnsupported }

func (c *Card) File() *os.File { return nil }

func (c *Card) HasDumbBuffer() bool { return false }

func (c *Card) PropertyID(Object, string) (uint32, error) { return 0, errUnsupported }

func (c *Card) Properties(Object) ([]PropertyValue, error) { return nil, errUnsupported }

func (c *Card) Commit(*Request, CommitFlags) error { return errUnsupported }

func (c *Card) AddFramebuffer(surface.Info) (uint32, error) { return 0, errUnsupported }

func (c *Card) RemoveFramebuffer(uint32) error { return errUnsupported }

func (c *Card) DiscoverOutput(uint32) (Output, error) { return Output{}, errUnsupported }

func (c *Card) SaveCRTC(Output) (*SavedCRTC, error) { return nil, errUnsupported }

func (c *Card) Modeset(Output, uint32) error { return errUnsupported }

func (c *Card) Restore(*SavedCRTC) error { return nil }

func (c *Card) Close() error { return nil }
