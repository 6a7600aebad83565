// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package sockopt

import "encoding/binary"

// A Value is one option reported by a query.
type Value struct {
	Tag   Tag    `json:"-"`
	Name  string `json:"name"`
	Value any    `json:"value"` // string or integer
}

// EncodeQuery reports the values in cfg of the options named by tags, in the
// order requested. If any tag cannot be queried, it reports an
// *UnknownFieldError and no values.
func EncodeQuery(cfg Config, tags []byte) ([]Value, error) {
	out := make([]Value, 0, len(tags))
	for _, b := range tags {
		tag := Tag(b)
		var v any
		switch tag {
		case TagActive:
			v = cfg.Active.String()
		case TagMode:
			v = cfg.Delivery.String()
		case TagSendTimeout:
			if cfg.SendTimeout < 0 {
				v = "infinity"
			} else {
				v = int64(cfg.SendTimeout)
			}
		case TagPacket:
			v = uint64(cfg.Packet)
		case TagHeader:
			v = uint64(cfg.Header)
		case TagSndbuf:
			v = uint64(cfg.Sndbuf)
		case TagRecbuf:
			v = uint64(cfg.Recbuf)
		default:
			return nil, &UnknownFieldError{Tag: tag}
		}
		out = append(out, Value{Tag: tag, Name: tag.String(), Value: v})
	}
	return out, nil
}

// A Builder constructs an option list. The zero value is ready for use.
// Each method appends one entry and returns the builder to allow chaining.
type Builder struct {
	buf []byte
}

// Bytes returns the encoded option list.
func (b *Builder) Bytes() []byte { return b.buf }

// Address sets the bind address.
func (b *Builder) Address(addr string) *Builder {
	b.buf = append(append(append(b.buf, byte(TagAddress)), addr...), 0)
	return b
}

// Port sets the bind port.
func (b *Builder) Port(port uint16) *Builder {
	b.buf = binary.BigEndian.AppendUint16(append(b.buf, byte(TagPort)), port)
	return b
}

// Delivery sets the payload encoding.
func (b *Builder) Delivery(d Delivery) *Builder {
	if d == DeliverBinary {
		return b.flag(TagBinary)
	}
	return b.flag(TagList)
}

// Inet6 selects the address family.
func (b *Builder) Inet6(on bool) *Builder {
	if on {
		return b.flag(TagInet6)
	}
	return b.flag(TagInet)
}

// SendTimeout sets the send timeout in milliseconds. A negative value means
// no timeout.
func (b *Builder) SendTimeout(ms int32) *Builder {
	if ms < 0 {
		return b.flag(TagSendTimeoutInf)
	}
	return b.put32(TagSendTimeout, uint32(ms))
}

// Active sets the delivery discipline.
func (b *Builder) Active(a Active) *Builder { return b.put8(TagActive, byte(a)) }

// Packet sets the framing width.
func (b *Builder) Packet(n uint8) *Builder { return b.put8(TagPacket, n) }

// Header sets the header-tag length.
func (b *Builder) Header(n uint16) *Builder {
	b.buf = binary.BigEndian.AppendUint16(append(b.buf, byte(TagHeader)), n)
	return b
}

// Sndbuf sets the send buffer size hint.
func (b *Builder) Sndbuf(n uint32) *Builder { return b.put32(TagSndbuf, n) }

// Recbuf sets the receive buffer size hint.
func (b *Builder) Recbuf(n uint32) *Builder { return b.put32(TagRecbuf, n) }

// FD sets a descriptor to adopt.
func (b *Builder) FD(fd int) *Builder { return b.put32(TagFD, uint32(int32(fd))) }

func (b *Builder) flag(tag Tag) *Builder { b.buf = append(b.buf, byte(tag)); return b }

func (b *Builder) put8(tag Tag, v byte) *Builder { b.buf = append(b.buf, byte(tag), v); return b }

func (b *Builder) put32(tag Tag, v uint32) *Builder {
	b.buf = binary.BigEndian.AppendUint32(append(b.buf, byte(tag)), v)
	return b
}
