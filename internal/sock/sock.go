// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

// Package sock provides the UDP socket operations used by utpdrv channels.
// Sockets are plain non-blocking descriptors so that readiness can be
// multiplexed outside the Go network poller.
package sock

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// Open opens a non-blocking UDP socket bound to addr. If reuse is true, the
// socket allows other sockets to bind the same port.
func Open(addr netip.AddrPort, reuse bool) (int, error) {
	family := unix.AF_INET
	if !addr.Addr().Is4() {
		family = unix.AF_INET6
	}
	fd, err := unix.Socket(family, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return -1, &Error{Op: "socket", Err: err}
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, &Error{Op: "setnonblock", Err: err}
	}
	if reuse {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			unix.Close(fd)
			return -1, &Error{Op: "setsockopt", Err: err}
		}
	}
	if err := unix.Bind(fd, ToSockaddr(addr)); err != nil {
		unix.Close(fd)
		return -1, &Error{Op: "bind", Err: err}
	}
	return fd, nil
}

// Adopt prepares an existing descriptor for use, and verifies that it is a
// bound socket.
func Adopt(fd int) error {
	if _, err := unix.Getsockname(fd); err != nil {
		return &Error{Op: "getsockname", Err: err}
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return &Error{Op: "setnonblock", Err: err}
	}
	return nil
}

// SetBuffers applies send and receive buffer size hints to fd. A zero size
// leaves the corresponding buffer unchanged.
func SetBuffers(fd int, sndbuf, rcvbuf uint32) error {
	if sndbuf > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, int(sndbuf)); err != nil {
			return &Error{Op: "setsockopt", Err: err}
		}
	}
	if rcvbuf > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, int(rcvbuf)); err != nil {
			return &Error{Op: "setsockopt", Err: err}
		}
	}
	return nil
}

// Name reports the local address of fd.
func Name(fd int) (netip.AddrPort, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return netip.AddrPort{}, &Error{Op: "getsockname", Err: err}
	}
	return FromSockaddr(sa)
}

// RecvFrom reads one datagram from fd into buf. It reports ErrWouldBlock if
// no datagram is waiting.
func RecvFrom(fd int, buf []byte) (int, netip.AddrPort, error) {
	n, sa, err := unix.Recvfrom(fd, buf, 0)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, netip.AddrPort{}, ErrWouldBlock
		}
		return 0, netip.AddrPort{}, &Error{Op: "recvfrom", Err: err}
	}
	from, err := FromSockaddr(sa)
	return n, from, err
}

// SendTo transmits pkt as one datagram to the given address.
func SendTo(fd int, pkt []byte, to netip.AddrPort) error {
	if err := unix.Sendto(fd, pkt, 0, ToSockaddr(to)); err != nil {
		return &Error{Op: "sendto", Err: err}
	}
	return nil
}

// Mapped returns ap as an IPv4-mapped IPv6 address if it is an IPv4
// address, for use with an IPv6 socket. Other addresses are unchanged.
func Mapped(ap netip.AddrPort) netip.AddrPort {
	if ap.Addr().Is4() {
		return netip.AddrPortFrom(netip.AddrFrom16(ap.Addr().As16()), ap.Port())
	}
	return ap
}

// Close closes fd.
func Close(fd int) error { return unix.Close(fd) }

// ErrWouldBlock is reported by RecvFrom when no data are available.
var ErrWouldBlock = errors.New("operation would block")

// ToSockaddr converts an address to its socket representation.
// See also Mapped.
func ToSockaddr(ap netip.AddrPort) unix.Sockaddr {
	addr := ap.Addr()
	if addr.Is4() {
		return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: addr.As4()}
	}
	return &unix.SockaddrInet6{Port: int(ap.Port()), Addr: addr.As16()}
}

// FromSockaddr converts a socket address to an address. IPv4-mapped IPv6
// addresses are reported as IPv4.
func FromSockaddr(sa unix.Sockaddr) (netip.AddrPort, error) {
	switch t := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(t.Addr), uint16(t.Port)), nil
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(t.Addr).Unmap(), uint16(t.Port)), nil
	}
	return netip.AddrPort{}, fmt.Errorf("unsupported address type %T", sa)
}

// Error records a failed socket system call.
type Error struct {
	Op  string // the name of the system call
	Err error  // the underlying error, usually a syscall.Errno
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// ErrnoID returns the lower-case symbolic name of the system error in err,
// for example "eaddrinuse". If err does not carry an errno, it returns "unknown".
func ErrnoID(err error) string {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		if name := unix.ErrnoName(errno); name != "" {
			return strings.ToLower(name)
		}
	}
	return "unknown"
}
