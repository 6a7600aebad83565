// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package utpdrv

import (
	"net/netip"
	"sync"

	"github.com/creachadair/utpdrv/internal/sock"
	"github.com/creachadair/utpdrv/rqueue"
	"github.com/creachadair/utpdrv/sockopt"
)

// A Handle is a channel owned by a host: a *Client, a *Listener, or a
// *Server accepted by a listener.
type Handle interface {
	// ID reports the identifier of the channel within its mux.
	ID() ID

	// Configure merges an encoded option list into the channel's options.
	// Options that can only be set at creation time are rejected with a
	// *sockopt.OptionError, and the options are not changed.
	Configure(opts []byte) error

	// Query reports the values of the options named by tags.
	Query(tags []byte) ([]sockopt.Value, error)

	// Recv requests a pull read of length bytes (0 means all available).
	// The data are delivered to the owner's Reply method with the given
	// token. It reports ErrActive if the channel is in active mode.
	Recv(length int, token string) error

	// Send transmits data to the peer.
	Send(data []byte) error

	// Close begins an orderly close. The owner receives a KindClosed
	// message once all queued data have been delivered.
	Close() error

	// ForceClose tears the channel down immediately, discarding queued
	// data. No closed message is delivered.
	ForceClose()

	// SockName reports the local address of the channel's socket.
	SockName() (netip.AddrPort, error)

	// PeerName reports the address of the channel's peer.
	PeerName() (netip.AddrPort, error)
}

var (
	_ Handle = (*Client)(nil)
	_ Handle = (*Listener)(nil)
	_ Handle = (*Server)(nil)
)

// A reader is a channel that owns a socket, and is notified by the mux when
// its socket is readable.
type reader interface {
	handleReadable()
}

// A Socket holds the state common to all channel types: the options, the
// read queue, and the pending pull reads. The delivery engine runs on this
// state (see deliver.go).
type Socket struct {
	id    ID
	mux   *Mux
	owner Host

	mu           sync.Mutex // guards the fields below and all deliveries
	fd           int        // -1 after teardown
	ownFD        bool       // whether this channel owns fd
	cfg          sockopt.Config
	rq           *rqueue.Queue
	closePending bool
	closed       bool
	pending      []pull
}

type pull struct {
	length int
	rcvr   Receiver
}

func newSocket(m *Mux, owner Host, fd int, own bool, cfg sockopt.Config) *Socket {
	return &Socket{
		id:    m.newID(),
		mux:   m,
		owner: owner,
		fd:    fd,
		ownFD: own,
		cfg:   cfg,
		rq:    rqueue.New(),
	}
}

// ID reports the identifier of the channel.
func (s *Socket) ID() ID { return s.id }

// Options returns a copy of the current options of the channel.
func (s *Socket) Options() sockopt.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Queued reports the number of bytes waiting in the read queue.
func (s *Socket) Queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rq.Len()
}

// Configure implements part of the Handle interface.
func (s *Socket) Configure(opts []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	old := s.cfg
	if err := s.cfg.Merge(opts); err != nil {
		return err
	}
	if s.ownFD && (s.cfg.Sndbuf != old.Sndbuf || s.cfg.Recbuf != old.Recbuf) {
		if err := sock.SetBuffers(s.fd, s.cfg.Sndbuf, s.cfg.Recbuf); err != nil {
			s.mux.log.Printf("Channel %v: setting buffer sizes: %v", s.id, err)
		}
	}
	if activates(old.Active, s.cfg.Active, s.rq.Records()) {
		s.drain()
	}
	return nil
}

// activates reports whether changing the active setting from old to now
// should trigger a push delivery, given the number of queued records.
func activates(old, now sockopt.Active, records int) bool {
	switch now {
	case sockopt.ActiveTrue:
		return true
	case sockopt.ActiveOnce:
		return old == sockopt.ActiveFalse && records > 0
	}
	return false
}

// Query implements part of the Handle interface.
func (s *Socket) Query(tags []byte) ([]sockopt.Value, error) {
	return sockopt.EncodeQuery(s.Options(), tags)
}

// SockName implements part of the Handle interface.
func (s *Socket) SockName() (netip.AddrPort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return netip.AddrPort{}, ErrClosed
	}
	addr, err := sock.Name(s.fd)
	return addr, sysError(err)
}

func (s *Socket) recv(length int, token string) error {
	if length < 0 {
		return ErrInvalidLength
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	} else if s.cfg.Active != sockopt.ActiveFalse {
		return ErrActive
	}
	s.pending = append(s.pending, pull{length: length, rcvr: ReplyTo(token)})
	s.drain()
	return nil
}

// input adds payloads released by the engine to the read queue and runs
// delivery.
func (s *Socket) input(payloads [][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, p := range payloads {
		s.rq.Enqueue(p)
		bytesQueued.Add(int64(len(p)))
	}
	s.drain()
}

// drain runs delivery: a push in active mode, then the pending pull reads in
// order if the channel is (or has just become) passive. The caller must hold
// s.mu.
func (s *Socket) drain() {
	if s.cfg.Active != sockopt.ActiveFalse {
		s.emit(0, Push())
	}
	// A push in once mode returns the channel to passive mode.
	if s.cfg.Active == sockopt.ActiveFalse {
		for len(s.pending) != 0 && s.emit(s.pending[0].length, s.pending[0].rcvr) {
			s.pending = s.pending[1:]
		}
	}
	s.settle()
}

// settle runs delivery once more if a close is pending and the queue has
// drained, so that the closed message is not held back. The caller must hold
// s.mu.
func (s *Socket) settle() {
	if s.closePending && s.rq.Len() == 0 {
		s.emit(0, Push())
	}
}

// beginClose marks the channel as closing and runs delivery.
func (s *Socket) beginClose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closePending = true
	s.drain()
	return nil
}

// pushError reports a socket error to the owner.
func (s *Socket) pushError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.owner.Push(Message{Kind: KindError, Channel: s.id, Err: sock.ErrnoID(err)})
	}
}

// teardown releases the resources of s. It reports false if s was already
// torn down.
func (s *Socket) teardown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.closePending = false
	for _, p := range s.pending {
		s.owner.Reply(p.rcvr.Token(), Message{Kind: KindClosed, Channel: s.id})
	}
	s.pending = nil
	s.rq.Reset()
	if s.ownFD && s.fd >= 0 {
		s.mux.unregister(s.fd)
		if err := sock.Close(s.fd); err != nil {
			s.mux.log.Printf("Channel %v: close: %v", s.id, err)
		}
	}
	s.fd = -1
	s.mux.removeChannel(s.id)
	return true
}
