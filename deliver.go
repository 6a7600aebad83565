// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package utpdrv

import (
	"encoding/binary"

	"github.com/creachadair/utpdrv/sockopt"
)

// emit runs one invocation of the delivery engine, sending queued data to r
// according to the channel's options. A length of 0 means "everything
// available". It reports whether any data message was delivered.
//
// The caller must hold s.mu.
func (s *Socket) emit(length int, r Receiver) bool {
	if s.closePending && s.rq.Len() == 0 {
		s.closePending = false
		s.owner.Push(Message{Kind: KindClosed, Channel: s.id})
		closedEmitted.Add(1)
		for _, p := range s.pending {
			s.owner.Reply(p.rcvr.Token(), Message{Kind: KindClosed, Channel: s.id})
		}
		s.pending = nil
		return false
	}

	qsize := s.rq.Len()
	width := int(s.cfg.Packet)
	if qsize == 0 || qsize < length || qsize < width {
		return false
	}

	var sent int
	switch {
	case width > 0:
		// Framed: each message is preceded by a big-endian length prefix.
		// In fully active mode, deliver every complete frame in this call.
		for s.emitFrame(width, r) {
			sent++
			if s.cfg.Active != sockopt.ActiveTrue {
				break
			}
		}

	case s.cfg.Active == sockopt.ActiveFalse:
		n := length
		if n == 0 {
			n = qsize
		}
		data, _ := s.rq.Consume(n)
		if n == qsize {
			s.rq.ClearRecords()
		} else {
			s.rq.Reduce(n)
		}
		s.deliver(r, data)
		sent = 1

	default:
		// Active: deliver one datagram per message, all of those queued at
		// the start of the call if fully active, otherwise just one.
		n := 1
		if s.cfg.Active == sockopt.ActiveTrue {
			n = s.rq.Records()
		}
		for ; n > 0; n-- {
			size := s.rq.PopRecord()
			if size == 0 {
				break
			}
			data, _ := s.rq.Consume(size)
			s.deliver(r, data)
			sent++
		}
	}
	if sent == 0 {
		return false
	}
	if s.cfg.Active == sockopt.ActiveOnce {
		s.cfg.Active = sockopt.ActiveFalse
	}
	return true
}

// emitFrame delivers one length-prefixed frame to r, if a complete frame is
// queued. A frame of length zero is delivered as an empty message.
func (s *Socket) emitFrame(width int, r Receiver) bool {
	qsize := s.rq.Len()
	if qsize < width {
		return false
	}
	var size int
	prefix := s.rq.Peek(width)
	switch width {
	case 1:
		size = int(prefix[0])
	case 2:
		size = int(binary.BigEndian.Uint16(prefix))
	case 4:
		size = int(binary.BigEndian.Uint32(prefix))
	}
	if qsize < width+size {
		return false
	}
	s.rq.Discard(width)
	data, _ := s.rq.Consume(size)
	// The prefix is charged to the boundary records along with the payload,
	// so the records still sum to the queued bytes.
	s.rq.Reduce(width + size)
	s.deliver(r, data)
	return true
}

// deliver sends one data message holding payload to r, splitting off the
// configured number of header bytes.
func (s *Socket) deliver(r Receiver, payload []byte) {
	h := min(int(s.cfg.Header), len(payload))
	s.send(r, Message{
		Kind:    KindData,
		Channel: s.id,
		Header:  payload[:h:h],
		Data:    payload[h:],
		Text:    s.cfg.Delivery == sockopt.DeliverList,
	})
	messagesEmitted.Add(1)
}
