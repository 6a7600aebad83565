// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package utpdrv

import (
	"net/netip"

	"github.com/creachadair/utpdrv/engine"
)

// A Server is a channel for a connection accepted by a Listener. It shares
// the listener's socket, and starts with a copy of the listener's options.
type Server struct {
	*Socket
	lst  *Listener
	conn engine.Conn
	peer netip.AddrPort
}

// Listener returns the listener that accepted s.
func (s *Server) Listener() *Listener { return s.lst }

// Recv implements part of the Handle interface.
func (s *Server) Recv(length int, token string) error { return s.recv(length, token) }

// Send implements part of the Handle interface.
func (s *Server) Send(data []byte) error { return writeConn(s.mux, s.conn, data) }

// PeerName implements part of the Handle interface.
func (s *Server) PeerName() (netip.AddrPort, error) { return s.peer, nil }

// Close implements part of the Handle interface.
func (s *Server) Close() error {
	s.mux.withEngine(func() { s.conn.Close() })
	return s.beginClose()
}

// ForceClose implements part of the Handle interface.
func (s *Server) ForceClose() {
	s.mux.withEngine(func() { s.conn.Close() })
	s.lst.dropServer(s)
	if s.teardown() {
		s.mux.log.Printf("Channel %v: closed", s.id)
	}
}
