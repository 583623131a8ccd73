package kms

import (
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Lease manager wire protocol. Requests are packed little-endian
// {cmd u8, width u32, height u32}; responses are {status u8, scanout u32,
// connector [64]byte} with the lease fd attached as SCM_RIGHTS.
const (
	cmdRequestLease uint8 = 1
	cmdReleaseLease uint8 = 2

	leaseResponseSize = 69
)

type leaseRequest struct {
	Cmd    uint8
	Width  uint32
	Height uint32
}

// LeaseClient requests DRM leases from a lease manager over a unix socket.
type LeaseClient struct {
	socketPath string
}

func NewLeaseClient(socketPath string) *LeaseClient {
	return &LeaseClient{socketPath: socketPath}
}

// LeaseResult contains the result of a successful lease request.
type LeaseResult struct {
	ScanoutID     uint32
	ConnectorName string
	LeaseFD       int // owned by the caller

	// conn stays open for the lifetime of the lease. The manager releases the
	// scanout when it sees the connection close, including on process death.
	conn net.Conn
}

// Close releases the lease by closing the connection to the manager.
func (r *LeaseResult) Close() {
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
}

// RequestLease asks the manager for a scanout of the given size. The caller
// owns the returned fd and must Close the result when done.
func (c *LeaseClient) RequestLease(width, height uint32) (*LeaseResult, error) {
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", c.socketPath, err)
	}

	unixConn := conn.(*net.UnixConn)

	req := leaseRequest{
		Cmd:    cmdRequestLease,
		Width:  width,
		Height: height,
	}
	if err := binary.Write(unixConn, binary.LittleEndian, req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write request: %w", err)
	}

	respBuf := make([]byte, leaseResponseSize)
	oob := make([]byte, unix.CmsgSpace(4))
	n, oobn, _, _, err := unixConn.ReadMsgUnix(respBuf, oob)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read response: %w", err)
	}
	if n < leaseResponseSize {
		conn.Close()
		return nil, fmt.Errorf("short response: %d bytes", n)
	}

	status := respBuf[0]
	scanoutID := binary.LittleEndian.Uint32(respBuf[1:5])
	connName := cString(respBuf[5:leaseResponseSize])

	fd, fdErr := receivedFD(oob[:oobn])

	if status != 0 {
		if fd >= 0 {
			unix.Close(fd)
		}
		conn.Close()
		return nil, fmt.Errorf("lease request failed: %s", connName)
	}
	if fdErr != nil {
		conn.Close()
		return nil, fdErr
	}

	return &LeaseResult{
		ScanoutID:     scanoutID,
		ConnectorName: connName,
		LeaseFD:       fd,
		conn:          conn,
	}, nil
}

// ReleaseLease tells the manager to release a scanout without holding its
// lease connection.
func (c *LeaseClient) ReleaseLease(scanoutID uint32) error {
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	req := leaseRequest{
		Cmd:   cmdReleaseLease,
		Width: scanoutID, // the scanout id travels in the width field
	}
	if err := binary.Write(conn, binary.LittleEndian, req); err != nil {
		return fmt.Errorf("write release request: %w", err)
	}
	return nil
}

// receivedFD extracts the first fd passed with SCM_RIGHTS and closes any
// extras.
func receivedFD(oob []byte) (int, error) {
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return -1, fmt.Errorf("parse control message: %w", err)
	}
	for _, scm := range scms {
		fds, err := unix.ParseUnixRights(&scm)
		if err != nil || len(fds) == 0 {
			continue
		}
		for _, extra := range fds[1:] {
			unix.Close(extra)
		}
		return fds[0], nil
	}
	return -1, fmt.Errorf("no lease FD received via SCM_RIGHTS")
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
