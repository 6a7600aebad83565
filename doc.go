// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

/*
Package utpdrv implements message-oriented channels over UDP sockets, driven
by a pluggable transport engine and delivered to a host that owns them.

# Channels

A channel is created by a Mux on behalf of a Host. There are three kinds:

  - A *Client connects to a peer (Mux.Connect) and owns its socket.
  - A *Listener accepts connections on its socket (Mux.Listen).
  - A *Server is a connection accepted by a listener, sharing its socket.

Each channel is configured by an encoded option list (see package sockopt),
given when the channel is created and updated by Configure. Options such as
the bind address and the descriptor to adopt can only be given at creation.

# Delivery

Data released by the engine for a channel are held in its read queue, which
remembers the length of each datagram. How queued data reach the host depends
on the channel's active setting:

  - In active mode (sockopt.ActiveTrue) each datagram is pushed to the host
    as a separate KindData message as soon as it arrives.
  - In once mode (sockopt.ActiveOnce) one datagram is pushed, after which the
    channel reverts to passive mode.
  - In passive mode (sockopt.ActiveFalse) data are delivered only in reply to
    pull reads (Recv), as a byte stream of the requested length.

If the packet option is set to 1, 2, or 4, the stream is instead split into
frames by a big-endian length prefix of that width, and each complete frame
is delivered as one message. The header option splits the given number of
leading bytes off each message.

Closing a channel is orderly: Close marks the channel, and the host receives
a KindClosed message once the queued data have been delivered.

# Concurrency

A Mux runs one dispatch goroutine that waits for socket readiness and drives
the engine's timers. All calls into the engine are serialized by the mux.
The methods of a channel may be called from any goroutine; a Host must not
call back into a channel from its Push or Reply methods.
*/
package utpdrv
