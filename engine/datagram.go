// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package engine

import (
	"net/netip"
	"sync/atomic"
)

// NewDatagram returns an Engine that passes datagrams through unchanged:
// each received datagram is one payload and each write is one datagram.
// It provides no reliability, and is meant for testing and for peers that
// speak plain UDP.
func NewDatagram() *Datagram { return new(Datagram) }

// Datagram is a pass-through Engine. See NewDatagram.
type Datagram struct {
	ticks atomic.Int64
}

// Ticks reports the number of times CheckTimeouts has been called.
func (d *Datagram) Ticks() int64 { return d.ticks.Load() }

// CheckTimeouts implements part of Engine. It only counts the call.
func (d *Datagram) CheckTimeouts() { d.ticks.Add(1) }

// Connect implements part of Engine.
func (*Datagram) Connect(tx Sender, peer netip.AddrPort) (Conn, error) {
	return &dconn{tx: tx, peer: peer}, nil
}

// Accept implements part of Engine. Every datagram from an unknown peer
// begins a new connection.
func (*Datagram) Accept(tx Sender, _ []byte, peer netip.AddrPort) (Conn, bool) {
	return &dconn{tx: tx, peer: peer}, true
}

type dconn struct {
	tx     Sender
	peer   netip.AddrPort
	closed bool
}

func (c *dconn) Input(pkt []byte) ([][]byte, error) {
	if c.closed {
		return nil, ErrClosed
	}
	cp := make([]byte, len(pkt))
	copy(cp, pkt)
	return [][]byte{cp}, nil
}

func (c *dconn) Write(p []byte) (int, error) {
	if c.closed {
		return 0, ErrClosed
	}
	if err := c.tx.SendTo(p, c.peer); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *dconn) Close() error { c.closed = true; return nil }

func (c *dconn) Peer() netip.AddrPort { return c.peer }
