// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package engine defines the boundary between utpdrv channels and the
// transport protocol engine that runs over their UDP sockets.
//
// The engine owns segmenting, ordering, retransmission, and congestion
// control. Its concurrency contract is not assumed: callers must serialize
// every call into an Engine, and into the Conn values it returns, under one
// lock.
package engine

import (
	"errors"
	"net/netip"
)

// A Sender transmits a datagram on the UDP socket that carries a connection.
type Sender interface {
	SendTo(pkt []byte, to netip.AddrPort) error
}

// An Engine is the transport protocol state machine shared by all sockets.
type Engine interface {
	// CheckTimeouts runs the engine's timer processing. It is called
	// periodically for the lifetime of the engine.
	CheckTimeouts()

	// Connect begins a connection to peer, transmitting on tx.
	Connect(tx Sender, peer netip.AddrPort) (Conn, error)

	// Accept reports whether pkt, received from peer on a listening socket,
	// begins a new connection. If so, it returns the connection, which has
	// not yet seen pkt.
	Accept(tx Sender, pkt []byte, peer netip.AddrPort) (Conn, bool)
}

// A Conn is one transport connection inside an Engine.
type Conn interface {
	// Input processes a datagram received from the peer, and returns the
	// application payloads it released, in order.
	Input(pkt []byte) ([][]byte, error)

	// Write queues p for transmission to the peer.
	Write(p []byte) (int, error)

	// Close begins an orderly shutdown of the connection.
	Close() error

	// Peer reports the address of the remote end.
	Peer() netip.AddrPort
}

// ErrClosed is reported by Conn methods after Close.
var ErrClosed = errors.New("connection is closed")
