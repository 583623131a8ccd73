package kms

import (
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// fakeManager serves a single lease request and passes fd over SCM_RIGHTS.
func fakeManager(t *testing.T, status uint8, fd int) (string, <-chan leaseRequest) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drm.sock")
	l, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	got := make(chan leaseRequest, 1)
	go func() {
		conn, err := l.AcceptUnix()
		if err != nil {
			return
		}
		defer conn.Close()

		var req leaseRequest
		if err := binary.Read(conn, binary.LittleEndian, &req); err != nil {
			return
		}
		got <- req

		resp := make([]byte, leaseResponseSize)
		resp[0] = status
		binary.LittleEndian.PutUint32(resp[1:5], 2)
		if status == 0 {
			copy(resp[5:], "Virtual-3")
		} else {
			copy(resp[5:], "no free scanout")
		}
		var oob []byte
		if fd >= 0 {
			oob = unix.UnixRights(fd)
		}
		conn.WriteMsgUnix(resp, oob, nil)

		// Hold the connection until the client closes it.
		buf := make([]byte, 1)
		conn.Read(buf)
	}()
	return path, got
}

func TestLeaseClient_RequestLease(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	path, got := fakeManager(t, 0, int(w.Fd()))

	lease, err := NewLeaseClient(path).RequestLease(1920, 1080)
	require.NoError(t, err)
	defer lease.Close()
	defer unix.Close(lease.LeaseFD)

	req := <-got
	assert.Equal(t, cmdRequestLease, req.Cmd)
	assert.Equal(t, uint32(1920), req.Width)
	assert.Equal(t, uint32(1080), req.Height)

	assert.Equal(t, uint32(2), lease.ScanoutID)
	assert.Equal(t, "Virtual-3", lease.ConnectorName)

	// The received fd is a duplicate of the pipe's write end.
	_, err = unix.Write(lease.LeaseFD, []byte("x"))
	require.NoError(t, err)
	buf := make([]byte, 1)
	_, err = r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, byte('x'), buf[0])
}

func TestLeaseClient_RequestRefused(t *testing.T) {
	path, _ := fakeManager(t, 1, -1)

	_, err := NewLeaseClient(path).RequestLease(1920, 1080)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no free scanout")
}

func TestLeaseClient_NoFD(t *testing.T) {
	path, _ := fakeManager(t, 0, -1)

	_, err := NewLeaseClient(path).RequestLease(640, 480)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCM_RIGHTS")
}

func TestLeaseClient_NoManager(t *testing.T) {
	_, err := NewLeaseClient(filepath.Join(t.TempDir(), "missing.sock")).RequestLease(1, 1)
	assert.Error(t, err)
}

func TestCString(t *testing.T) {
	assert.Equal(t, "DSI-1", cString([]byte{'D', 'S', 'I', '-', '1', 0, 'x'}))
	assert.Equal(t, "abc", cString([]byte("abc")))
}
