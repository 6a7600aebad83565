// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package utpdrv

import (
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/utpdrv/engine"
)

// MuxOptions control the behaviour of a mux created by NewMux.
// A nil *MuxOptions provides sensible defaults.
type MuxOptions struct {
	// If not nil, send debug text logs here.
	Logger Logger

	// The transport engine shared by all channels. If nil, the mux uses a
	// pass-through engine (see engine.NewDatagram).
	Engine engine.Engine

	// The interval between engine timeout checks. A value less than or
	// equal to zero uses DefaultTickInterval.
	TickInterval time.Duration

	// The size of the buffer used to receive datagrams. A value less than
	// or equal to zero uses a buffer large enough for any UDP datagram.
	RecvBufferSize int
}

// DefaultTickInterval is the default interval between engine timeout checks.
const DefaultTickInterval = 100 * time.Millisecond

const maxDatagram = 65535

func (o *MuxOptions) logFunc() Logger {
	if o == nil {
		return nil
	}
	return o.Logger
}

func (o *MuxOptions) engine() engine.Engine {
	if o == nil || o.Engine == nil {
		return engine.NewDatagram()
	}
	return o.Engine
}

func (o *MuxOptions) tickInterval() time.Duration {
	if o == nil || o.TickInterval <= 0 {
		return DefaultTickInterval
	}
	return o.TickInterval
}

func (o *MuxOptions) recvBufferSize() int {
	if o == nil || o.RecvBufferSize <= 0 {
		return maxDatagram
	}
	return o.RecvBufferSize
}

// A Logger records text logs from a mux or its channels. A nil logger
// discards all logs. It is the type used by jrpc2 servers and clients.
type Logger = jrpc2.Logger
