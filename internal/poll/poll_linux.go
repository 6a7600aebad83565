// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

//go:build linux

// Package poll reports read readiness of file descriptors using epoll.
package poll

import (
	"encoding/binary"
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// A Poller watches a set of descriptors for read readiness. Add, Remove,
// and Wake may be called concurrently with Wait.
type Poller struct {
	epfd int
	wake int // eventfd used to interrupt Wait
	evs  []unix.EpollEvent
}

// Open creates a new empty Poller.
func Open() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wake, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	p := &Poller{epfd: epfd, wake: wake, evs: make([]unix.EpollEvent, 64)}
	if err := p.Add(wake); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Add starts watching fd for read readiness. Adding a descriptor that is
// already watched is not an error.
func (p *Poller) Add(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
	if errors.Is(err, unix.EEXIST) {
		return nil
	}
	return err
}

// Remove stops watching fd. Removing a descriptor that is not watched is not
// an error.
func (p *Poller) Remove(fd int) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.EBADF) {
		return nil
	}
	return err
}

// Wake causes a concurrent or subsequent call to Wait to return promptly.
func (p *Poller) Wake() error {
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	_, err := unix.Write(p.wake, one[:])
	if errors.Is(err, unix.EAGAIN) {
		return nil // the counter is saturated, a wakeup is already pending
	}
	return err
}

// Wait blocks until at least one watched descriptor is readable, Wake is
// called, or the timeout elapses, and returns the readable descriptors. A
// negative timeout waits indefinitely. Errors and hangups are reported as
// readiness, so that the owner observes them when it reads.
//
// Wait must not be called concurrently with itself.
func (p *Poller) Wait(timeout time.Duration) ([]int, error) {
	msec := -1
	if timeout >= 0 {
		msec = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}
	n, err := unix.EpollWait(p.epfd, p.evs, msec)
	if errors.Is(err, unix.EINTR) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var ready []int
	for _, ev := range p.evs[:n] {
		fd := int(ev.Fd)
		if fd == p.wake {
			var buf [8]byte
			unix.Read(p.wake, buf[:])
			continue
		}
		if ev.Events&(unix.EPOLLIN|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			ready = append(ready, fd)
		}
	}
	return ready, nil
}

// Close releases the resources of p. Watched descriptors are not closed.
func (p *Poller) Close() error {
	werr := unix.Close(p.wake)
	eerr := unix.Close(p.epfd)
	return errors.Join(eerr, werr)
}
