// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package utpdrv

import (
	"errors"
	"net/netip"

	"github.com/creachadair/utpdrv/engine"
	"github.com/creachadair/utpdrv/sockopt"
)

// A Client is a channel that initiated a connection to a peer. It owns its
// UDP socket.
type Client struct {
	*Socket
	sfd  int // the socket, fixed for the life of the client
	conn engine.Conn
	peer netip.AddrPort
}

func newClient(m *Mux, owner Host, fd int, cfg sockopt.Config, conn engine.Conn, peer netip.AddrPort) *Client {
	return &Client{
		Socket: newSocket(m, owner, fd, true, cfg),
		sfd:    fd,
		conn:   conn,
		peer:   peer,
	}
}

// Recv implements part of the Handle interface.
func (c *Client) Recv(length int, token string) error { return c.recv(length, token) }

// Send implements part of the Handle interface.
func (c *Client) Send(data []byte) error { return writeConn(c.mux, c.conn, data) }

// PeerName implements part of the Handle interface.
func (c *Client) PeerName() (netip.AddrPort, error) { return c.peer, nil }

// Close implements part of the Handle interface.
func (c *Client) Close() error {
	c.mux.withEngine(func() { c.conn.Close() })
	return c.beginClose()
}

// ForceClose implements part of the Handle interface.
func (c *Client) ForceClose() {
	c.mux.withEngine(func() { c.conn.Close() })
	if c.teardown() {
		c.mux.log.Printf("Channel %v: closed", c.id)
	}
}

func (c *Client) handleReadable() {
	c.mux.recvLoop(c.sfd, func(err error) {
		c.mux.log.Printf("Channel %v: receive: %v", c.id, err)
		c.pushError(err)
	}, func(pkt []byte, from netip.AddrPort) {
		if from != c.peer {
			return // not from our peer
		}
		inputConn(c.mux, c.Socket, c.conn, pkt)
	})
}

// inputConn passes pkt through the engine for conn, and queues the payloads
// it releases on s.
func inputConn(m *Mux, s *Socket, conn engine.Conn, pkt []byte) {
	var out [][]byte
	var err error
	m.withEngine(func() { out, err = conn.Input(pkt) })
	if err != nil {
		m.log.Printf("Channel %v: engine input: %v", s.id, err)
		return
	}
	s.input(out)
}

// writeConn sends data to the peer of conn.
func writeConn(m *Mux, conn engine.Conn, data []byte) error {
	var err error
	m.withEngine(func() { _, err = conn.Write(data) })
	if errors.Is(err, engine.ErrClosed) {
		return ErrClosed
	}
	return sysError(err)
}
