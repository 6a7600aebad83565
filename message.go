// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package utpdrv

import (
	"net/netip"
	"strconv"
)

// ID identifies a channel within a Mux. IDs are never reused.
type ID uint64

func (id ID) String() string { return "#" + strconv.FormatUint(uint64(id), 10) }

// MonitorID identifies a monitor registered by AddMonitor.
type MonitorID uint64

// Kind identifies the type of a Message.
type Kind int

// The kinds of message delivered to a host.
const (
	KindData   Kind = iota // a payload from the peer
	KindClosed             // the channel finished closing
	KindAccept             // a listener accepted a new connection
	KindError              // a socket error occurred
)

var kindName = [...]string{"data", "closed", "accept", "error"}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindName) {
		return kindName[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// A Message is a notification or reply delivered to a host.
type Message struct {
	Kind    Kind
	Channel ID

	// For KindData: Header holds the first bytes of the payload, one value
	// per byte, and Data holds the remainder. If Text is true, Data should
	// be presented to the host as a list of byte values rather than as a
	// binary string.
	Header []byte
	Data   []byte
	Text   bool

	// For KindAccept: the accepted channel and its peer address.
	Accepted Handle
	Peer     netip.AddrPort

	// For KindError: the symbolic name of the error, e.g., "econnrefused".
	Err string
}

// A Receiver describes where a delivery goes: to the owner's mailbox, or as
// the reply to a specific pull read. The zero value is Push().
type Receiver struct {
	token string
	reply bool
}

// Push returns a Receiver for the owning host's mailbox.
func Push() Receiver { return Receiver{} }

// ReplyTo returns a Receiver for the reply to the read identified by token.
func ReplyTo(token string) Receiver { return Receiver{token: token, reply: true} }

// IsPush reports whether r delivers to the owner's mailbox.
func (r Receiver) IsPush() bool { return !r.reply }

// Token reports the read token of a reply receiver, or "" for Push.
func (r Receiver) Token() string { return r.token }

// A Host receives messages from the channels it owns.
//
// Host methods are called while the originating channel is locked, and must
// not call back into that channel. They may be called concurrently for
// different channels.
type Host interface {
	// Push delivers m to the host's mailbox.
	Push(m Message)

	// Reply delivers m as the result of the pull read identified by token.
	Reply(token string, m Message)
}

func (s *Socket) send(r Receiver, m Message) {
	if r.IsPush() {
		s.owner.Push(m)
	} else {
		s.owner.Reply(r.Token(), m)
	}
}
