package kms

import (
	"errors"
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

const (
	logindBus         = "org.freedesktop.login1"
	logindPath        = "/org/freedesktop/login1"
	logindManagerIntf = "org.freedesktop.login1.Manager"
	logindSessionIntf = "org.freedesktop.login1.Session"
)

// logindSession holds a device taken from systemd-logind. logind grants and
// revokes DRM master on our behalf as the session switches VTs.
type logindSession struct {
	conn    *dbus.Conn
	session dbus.BusObject
	major   uint32
	minor   uint32
}

// OpenLogind takes the card from the caller's logind session, which works
// without root when the session is active on a seat.
func OpenLogind(path string) (*Card, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}

	var sessionPath dbus.ObjectPath
	manager := conn.Object(logindBus, logindPath)
	if err := manager.Call(logindManagerIntf+".GetSessionByPID", 0, uint32(os.Getpid())).Store(&sessionPath); err != nil {
		conn.Close()
		return nil, fmt.Errorf("find logind session: %w", err)
	}

	s := &logindSession{
		conn:    conn,
		session: conn.Object(logindBus, sessionPath),
		major:   unix.Major(uint64(st.Rdev)),
		minor:   unix.Minor(uint64(st.Rdev)),
	}
	if err := s.session.Call(logindSessionIntf+".TakeControl", 0, false).Err; err != nil {
		conn.Close()
		return nil, fmt.Errorf("take control of %s: %w", sessionPath, err)
	}

	var fd dbus.UnixFD
	var inactive bool
	if err := s.session.Call(logindSessionIntf+".TakeDevice", 0, s.major, s.minor).Store(&fd, &inactive); err != nil {
		s.close()
		return nil, fmt.Errorf("take device %s: %w", path, err)
	}
	if inactive {
		log.Warn().Str("session", string(sessionPath)).Msg("logind session is inactive, commits will fail until it is resumed")
	}
	log.Info().
		Str("session", string(sessionPath)).
		Str("device", path).
		Msg("took DRM device from logind")

	f := os.NewFile(uintptr(fd), path)
	c, err := newCard(f)
	if err != nil {
		f.Close()
		s.close()
		return nil, err
	}
	c.logind = s
	return c, nil
}

func (s *logindSession) close() error {
	var errs []error
	if err := s.session.Call(logindSessionIntf+".ReleaseDevice", 0, s.major, s.minor).Err; err != nil {
		errs = append(errs, fmt.Errorf("release device: %w", err))
	}
	if err := s.session.Call(logindSessionIntf+".ReleaseControl", 0).Err; err != nil {
		errs = append(errs, fmt.Errorf("release control: %w", err))
	}
	if err := s.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
