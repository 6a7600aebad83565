// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package hostrpc

import (
	"net/netip"

	"github.com/creachadair/utpdrv"
)

// ListenParams are the parameters of the utp.listen method.
type ListenParams struct {
	Options []byte `json:"options,omitempty"` // encoded option list
}

// ConnectParams are the parameters of the utp.connect method.
type ConnectParams struct {
	Address string `json:"address"` // numeric peer address
	Port    uint16 `json:"port"`
	Options []byte `json:"options,omitempty"` // encoded option list
}

// ChannelParams name a channel, for utp.close, utp.sockname, and
// utp.peername.
type ChannelParams struct {
	Channel utpdrv.ID `json:"channel"`
}

// SetOptsParams are the parameters of the utp.setopts method.
type SetOptsParams struct {
	Channel utpdrv.ID `json:"channel"`
	Options []byte    `json:"options"` // encoded option list
}

// GetOptsParams are the parameters of the utp.getopts method.
type GetOptsParams struct {
	Channel utpdrv.ID `json:"channel"`
	Names   []string  `json:"names"` // e.g., "active", "packet"
}

// RecvParams are the parameters of the utp.recv method.
type RecvParams struct {
	Channel utpdrv.ID `json:"channel"`
	Length  int       `json:"length,omitempty"`  // 0 means all available
	Timeout int       `json:"timeout,omitempty"` // milliseconds, 0 means none
}

// SendParams are the parameters of the utp.send method.
type SendParams struct {
	Channel utpdrv.ID `json:"channel"`
	Data    []byte    `json:"data"`
}

// ChannelResult is the result of utp.listen and utp.connect.
type ChannelResult struct {
	Channel utpdrv.ID `json:"channel"`
	Address string    `json:"address"` // local address
	Port    uint16    `json:"port"`
}

// AddrResult is the result of utp.sockname and utp.peername.
type AddrResult struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
}

func newAddrResult(ap netip.AddrPort) *AddrResult {
	return &AddrResult{Address: ap.Addr().String(), Port: ap.Port()}
}

// Data is a payload delivered by a channel, either as the result of
// utp.recv or as the parameters of a utp.data notification.
//
// Channels in binary mode report the payload in Bytes; channels in list mode
// report it in List, one value per byte.
type Data struct {
	Channel utpdrv.ID `json:"channel"`
	Header  []int     `json:"header,omitempty"`
	Bytes   []byte    `json:"bytes,omitempty"`
	List    []int     `json:"list,omitempty"`
}

// Payload returns the data body of d, regardless of its mode.
func (d *Data) Payload() []byte {
	if d.List == nil {
		return d.Bytes
	}
	out := make([]byte, len(d.List))
	for i, v := range d.List {
		out[i] = byte(v)
	}
	return out
}

func newData(m utpdrv.Message) *Data {
	d := &Data{Channel: m.Channel, Header: ints(m.Header)}
	if m.Text {
		d.List = ints(m.Data)
	} else {
		d.Bytes = m.Data
	}
	return d
}

func ints(bs []byte) []int {
	if len(bs) == 0 {
		return nil
	}
	out := make([]int, len(bs))
	for i, b := range bs {
		out[i] = int(b)
	}
	return out
}

// ClosedNote is the parameters of a utp.closed notification.
type ClosedNote struct {
	Channel utpdrv.ID `json:"channel"`
}

// AcceptNote is the parameters of a utp.accept notification.
type AcceptNote struct {
	Channel  utpdrv.ID `json:"channel"`  // the listener
	Accepted utpdrv.ID `json:"accepted"` // the new channel
	Address  string    `json:"address"`  // the peer address
	Port     uint16    `json:"port"`
}

// ErrorNote is the parameters of a utp.error notification.
type ErrorNote struct {
	Channel utpdrv.ID `json:"channel"`
	Error   string    `json:"error"` // symbolic error name, e.g., "econnrefused"
}
