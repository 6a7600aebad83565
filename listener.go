// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package utpdrv

import (
	"net/netip"
	"sync"

	"github.com/creachadair/utpdrv/engine"
	"github.com/creachadair/utpdrv/sockopt"
)

// A Listener is a channel that accepts connections on its UDP socket. Each
// accepted connection becomes a *Server channel that shares the listener's
// socket, and is announced to the owner by a KindAccept message.
//
// A Listener has no peer and delivers no data: Recv, Send, and PeerName
// report ErrNotConnected.
type Listener struct {
	*Socket
	sfd int
	tx  sender

	smu     sync.Mutex
	servers map[netip.AddrPort]*Server
}

func newListener(m *Mux, owner Host, fd int, cfg sockopt.Config) *Listener {
	tx, err := newSender(fd)
	if err != nil {
		m.log.Printf("Listener on fd %d: %v", fd, err)
		tx = sender{fd: fd, v6: cfg.Inet6}
	}
	return &Listener{
		Socket:  newSocket(m, owner, fd, true, cfg),
		sfd:     fd,
		tx:      tx,
		servers: make(map[netip.AddrPort]*Server),
	}
}

// Recv implements part of the Handle interface. It reports ErrNotConnected.
func (*Listener) Recv(int, string) error { return ErrNotConnected }

// Send implements part of the Handle interface. It reports ErrNotConnected.
func (*Listener) Send([]byte) error { return ErrNotConnected }

// PeerName implements part of the Handle interface. It reports
// ErrNotConnected.
func (*Listener) PeerName() (netip.AddrPort, error) { return netip.AddrPort{}, ErrNotConnected }

// Servers returns the channels currently accepted by l.
func (l *Listener) Servers() []*Server {
	l.smu.Lock()
	defer l.smu.Unlock()
	out := make([]*Server, 0, len(l.servers))
	for _, s := range l.servers {
		out = append(out, s)
	}
	return out
}

// Close implements part of the Handle interface. Closing a listener force
// closes the connections it accepted, since they share its socket.
func (l *Listener) Close() error {
	l.closeServers()
	if err := l.beginClose(); err != nil {
		return err
	}
	l.teardown()
	return nil
}

// ForceClose implements part of the Handle interface.
func (l *Listener) ForceClose() {
	l.closeServers()
	if l.teardown() {
		l.mux.log.Printf("Channel %v: listener closed", l.id)
	}
}

func (l *Listener) closeServers() {
	for _, s := range l.Servers() {
		s.ForceClose()
	}
}

func (l *Listener) server(peer netip.AddrPort) *Server {
	l.smu.Lock()
	defer l.smu.Unlock()
	return l.servers[peer]
}

func (l *Listener) dropServer(s *Server) {
	l.smu.Lock()
	defer l.smu.Unlock()
	if l.servers[s.peer] == s {
		delete(l.servers, s.peer)
	}
}

// handleReadable routes each datagram to the server for its sender. A
// datagram from an unknown sender is offered to the engine as a new
// connection.
func (l *Listener) handleReadable() {
	l.mux.recvLoop(l.sfd, func(err error) {
		l.mux.log.Printf("Channel %v: receive: %v", l.id, err)
		l.pushError(err)
	}, func(pkt []byte, from netip.AddrPort) {
		s := l.server(from)
		if s == nil {
			var conn engine.Conn
			var ok bool
			l.mux.withEngine(func() { conn, ok = l.mux.eng.Accept(l.tx, pkt, from) })
			if !ok {
				return
			}
			if s = l.accept(conn, from); s == nil {
				l.mux.withEngine(func() { conn.Close() })
				return
			}
		}
		inputConn(l.mux, s.Socket, s.conn, pkt)
	})
}

// accept creates a server channel for conn and announces it to the owner.
// It returns nil if the listener is closed.
func (l *Listener) accept(conn engine.Conn, peer netip.AddrPort) *Server {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.closePending {
		return nil
	}
	s := &Server{
		Socket: newSocket(l.mux, l.owner, l.sfd, false, l.cfg),
		lst:    l,
		conn:   conn,
		peer:   peer,
	}
	if err := l.mux.register(-1, s); err != nil {
		return nil
	}
	l.smu.Lock()
	l.servers[peer] = s
	l.smu.Unlock()

	acceptsCount.Add(1)
	l.mux.log.Printf("Channel %v: accepted %v from %v", l.id, s.id, peer)
	l.owner.Push(Message{Kind: KindAccept, Channel: l.id, Accepted: s, Peer: peer})
	return s
}
