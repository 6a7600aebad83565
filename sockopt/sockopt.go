// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package sockopt implements the option model for utpdrv channels.
//
// Options travel as a flat sequence of tagged entries. Each entry is a single
// tag byte followed by a value whose width is fixed by the tag:
//
//	0 bytes       mode flags (list, binary, inet, inet6, send_timeout_infinity)
//	1 byte        active, packet
//	2 bytes       port, header (big-endian)
//	4 bytes       send_timeout, sndbuf, recbuf, fd (big-endian)
//	NUL-terminated address
//
// A Config is built by Decode when a channel is created, and updated by
// Config.Merge afterward. Fields that describe the bound socket (address,
// port, family, adopted descriptor) cannot change once the channel exists.
package sockopt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/netip"
	"time"
)

// A Tag identifies one option in the wire format.
type Tag byte

// Option tags.
const (
	TagAddress        Tag = 1  // bind address, NUL-terminated text
	TagPort           Tag = 2  // bind port, 2 bytes
	TagList           Tag = 3  // deliver data as text
	TagBinary         Tag = 4  // deliver data as raw bytes
	TagInet           Tag = 5  // IPv4 socket
	TagInet6          Tag = 6  // IPv6 socket
	TagSendTimeout    Tag = 7  // send timeout in milliseconds, 4 bytes
	TagSendTimeoutInf Tag = 8  // no send timeout
	TagActive         Tag = 9  // delivery discipline, 1 byte
	TagPacket         Tag = 10 // length-prefix framing width, 1 byte
	TagHeader         Tag = 11 // header-tag length, 2 bytes
	TagSndbuf         Tag = 12 // send buffer size hint, 4 bytes
	TagRecbuf         Tag = 13 // receive buffer size hint, 4 bytes
	TagMode           Tag = 14 // query only: delivery encoding
	TagFD             Tag = 15 // descriptor to adopt, 4 bytes
)

var tagName = map[Tag]string{
	TagAddress:        "address",
	TagPort:           "port",
	TagList:           "list",
	TagBinary:         "binary",
	TagInet:           "inet",
	TagInet6:          "inet6",
	TagSendTimeout:    "send_timeout",
	TagSendTimeoutInf: "send_timeout_infinity",
	TagActive:         "active",
	TagPacket:         "packet",
	TagHeader:         "header",
	TagSndbuf:         "sndbuf",
	TagRecbuf:         "recbuf",
	TagMode:           "mode",
	TagFD:             "fd",
}

func (t Tag) String() string {
	if s, ok := tagName[t]; ok {
		return s
	}
	return fmt.Sprintf("tag %d", byte(t))
}

// ParseTag returns the tag with the given name, as reported by String.
func ParseTag(name string) (Tag, bool) {
	for t, s := range tagName {
		if s == name {
			return t, true
		}
	}
	return 0, false
}

// Active is the delivery discipline of a channel.
type Active byte

const (
	ActiveFalse Active = 0 // deliver only in response to reads
	ActiveOnce  Active = 1 // push one message, then revert to ActiveFalse
	ActiveTrue  Active = 2 // push every available message
)

func (a Active) String() string {
	switch a {
	case ActiveFalse:
		return "false"
	case ActiveOnce:
		return "once"
	case ActiveTrue:
		return "true"
	}
	return fmt.Sprintf("active(%d)", byte(a))
}

// Delivery is the encoding of emitted payloads.
type Delivery byte

const (
	DeliverList   Delivery = iota // payloads are delivered as text
	DeliverBinary                 // payloads are delivered as raw bytes
)

func (d Delivery) String() string {
	if d == DeliverBinary {
		return "binary"
	}
	return "list"
}

// Default buffer size hints.
const (
	DefaultSndbuf = 8192
	DefaultRecbuf = 8192
)

// Infinite is the SendTimeout value meaning "no timeout".
const Infinite = -1

// Config is the option set of one channel.
type Config struct {
	SendTimeout int32    // milliseconds, or Infinite
	Active      Active   // delivery discipline
	Delivery    Delivery // payload encoding
	Header      uint16   // leading payload bytes delivered as separate values
	Sndbuf      uint32   // send buffer size hint
	Recbuf      uint32   // receive buffer size hint
	Packet      uint8    // framing width: 0, 1, 2, or 4

	// These fields are only meaningful when a channel is created.
	Inet6   bool   // use an IPv6 socket
	Addr    string // bind address, "" if unset
	Port    uint16 // bind port
	FD      int    // descriptor to adopt, or -1
	AddrSet bool   // whether Addr was given
}

// Default returns a Config with the default settings.
func Default() Config {
	return Config{
		SendTimeout: Infinite,
		Active:      ActiveTrue,
		Delivery:    DeliverList,
		Sndbuf:      DefaultSndbuf,
		Recbuf:      DefaultRecbuf,
		FD:          -1,
	}
}

// BindAddr reports the address the socket should bind, combining Addr, Port,
// and Inet6. If no address was given it returns the wildcard address of the
// configured family.
func (c Config) BindAddr() (netip.AddrPort, error) {
	if c.AddrSet {
		return ParseAddrPort(c.Addr, c.Port)
	}
	if c.Inet6 {
		return netip.AddrPortFrom(netip.IPv6Unspecified(), c.Port), nil
	}
	return netip.AddrPortFrom(netip.IPv4Unspecified(), c.Port), nil
}

// SendTimeoutDuration reports the send timeout as a duration, or 0 if the
// timeout is infinite.
func (c Config) SendTimeoutDuration() time.Duration {
	if c.SendTimeout < 0 {
		return 0
	}
	return time.Duration(c.SendTimeout) * time.Millisecond
}

// ParseAddrPort converts a numeric host address and a port to an address.
func ParseAddrPort(host string, port uint16) (netip.AddrPort, error) {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return netip.AddrPortFrom(addr, port), nil
}

// Decode parses an option list onto the default configuration, and reports
// the tags it touched in order of appearance.
func Decode(data []byte) (Config, []Tag, error) {
	cfg := Default()
	tags, err := cfg.decode(data)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, tags, nil
}

func (c *Config) decode(data []byte) ([]Tag, error) {
	var tags []Tag
	for i := 0; i < len(data); {
		tag := Tag(data[i])
		i++
		need := 0
		switch tag {
		case TagActive, TagPacket:
			need = 1
		case TagPort, TagHeader:
			need = 2
		case TagSendTimeout, TagSndbuf, TagRecbuf, TagFD:
			need = 4
		}
		if i+need > len(data) {
			return nil, malformed("truncated value for %v at offset %d", tag, i-1)
		}
		val := data[i : i+need]
		i += need

		switch tag {
		case TagAddress:
			end := bytes.IndexByte(data[i:], 0)
			if end < 0 {
				return nil, malformed("unterminated address at offset %d", i-1)
			}
			c.Addr = string(data[i : i+end])
			c.AddrSet = true
			i += end + 1
		case TagPort:
			c.Port = binary.BigEndian.Uint16(val)
		case TagList:
			c.Delivery = DeliverList
		case TagBinary:
			c.Delivery = DeliverBinary
		case TagInet:
			c.Inet6 = false
		case TagInet6:
			c.Inet6 = true
		case TagSendTimeout:
			c.SendTimeout = int32(binary.BigEndian.Uint32(val))
		case TagSendTimeoutInf:
			c.SendTimeout = Infinite
		case TagActive:
			a := Active(val[0])
			if a > ActiveTrue {
				return nil, malformed("invalid active value %d", val[0])
			}
			c.Active = a
		case TagPacket:
			switch val[0] {
			case 0, 1, 2, 4:
				c.Packet = val[0]
			default:
				return nil, malformed("invalid packet width %d", val[0])
			}
		case TagHeader:
			c.Header = binary.BigEndian.Uint16(val)
		case TagSndbuf:
			c.Sndbuf = binary.BigEndian.Uint32(val)
		case TagRecbuf:
			c.Recbuf = binary.BigEndian.Uint32(val)
		case TagFD:
			c.FD = int(int32(binary.BigEndian.Uint32(val)))
		default:
			// Unknown tags carry no width information, so the remainder of the
			// list cannot be interpreted reliably.
			return nil, malformed("unknown option tag %d at offset %d", byte(tag), i-1)
		}
		tags = append(tags, tag)
	}
	if c.AddrSet {
		if _, err := ParseAddrPort(c.Addr, c.Port); err != nil {
			return nil, malformed("invalid address %q: %v", c.Addr, err)
		}
	}
	return tags, nil
}

// fixedOptions are the options that cannot change after creation, in the
// order Merge reports them.
var fixedOptions = []struct {
	tag  Tag
	name string
}{
	{TagAddress, "address"},
	{TagPort, "port"},
	{TagInet, "family"},
	{TagInet6, "family"},
	{TagFD, "fd"},
}

// Merge decodes data and copies the options it sets into c. If data sets
// any option that cannot change after creation, Merge reports an
// *OptionError naming it and c is not modified. When several such options
// are set, the error names the first of them in fixedOptions order, so an
// address always wins. If data is malformed, Merge reports an error
// wrapping ErrMalformed and c is not modified.
func (c *Config) Merge(data []byte) error {
	so := Default()
	tags, err := so.decode(data)
	if err != nil {
		return err
	}
	for _, fixed := range fixedOptions {
		for _, tag := range tags {
			if tag == fixed.tag {
				return &OptionError{Name: fixed.name}
			}
		}
	}
	for _, tag := range tags {
		switch tag {
		case TagList, TagBinary:
			c.Delivery = so.Delivery
		case TagSendTimeout, TagSendTimeoutInf:
			c.SendTimeout = so.SendTimeout
		case TagActive:
			c.Active = so.Active
		case TagPacket:
			c.Packet = so.Packet
		case TagHeader:
			c.Header = so.Header
		case TagSndbuf:
			c.Sndbuf = so.Sndbuf
		case TagRecbuf:
			c.Recbuf = so.Recbuf
		}
	}
	return nil
}
