// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package rqueue implements the read queue of a channel.
//
// A Queue holds received bytes in arrival order, together with a FIFO of
// boundary records giving the length of each datagram that contributed
// those bytes. A consumer may treat the contents as a byte stream (taking
// any number of bytes and charging them against the records with Reduce) or
// as a sequence of discrete messages (taking one record's worth at a time).
//
// The methods of a Queue are not safe for concurrent use.
package rqueue

import (
	"bytes"

	"github.com/creachadair/mds/queue"
)

// A Queue is a byte queue with datagram boundary records. The zero value is
// not ready for use; call New.
type Queue struct {
	buf bytes.Buffer

	// The front boundary record is held separately from the rest so that a
	// partially-consumed datagram can be shortened in place. A front of 0
	// means there are no records.
	front int
	rest  *queue.Queue[int]
	total int // sum of all boundary records
}

// New constructs a new empty queue.
func New() *Queue { return &Queue{rest: queue.New[int]()} }

// Enqueue appends a datagram to the queue, and records its length as a new
// boundary record. Empty datagrams are ignored.
func (q *Queue) Enqueue(datagram []byte) {
	if len(datagram) == 0 {
		return
	}
	q.buf.Write(datagram)
	q.addRecord(len(datagram))
}

func (q *Queue) addRecord(n int) {
	if q.front == 0 {
		q.front = n
	} else {
		q.rest.Add(n)
	}
	q.total += n
}

// Len reports the number of bytes currently queued.
func (q *Queue) Len() int { return q.buf.Len() }

// Peek returns the first n queued bytes without consuming them. The result
// is only valid until the next modification of q. Peek panics if n > q.Len().
func (q *Queue) Peek(n int) []byte { return q.buf.Bytes()[:n] }

// Consume removes n bytes from the head of the queue and returns a copy of
// them, together with the number of bytes that remain queued. If fewer than
// n bytes are queued, all of them are returned. Consume does not modify the
// boundary records; see Reduce.
func (q *Queue) Consume(n int) ([]byte, int) {
	out := make([]byte, min(n, q.buf.Len()))
	copy(out, q.buf.Next(n))
	return out, q.buf.Len()
}

// Discard removes n bytes from the head of the queue without copying them,
// and reports the number of bytes that remain queued.
func (q *Queue) Discard(n int) int {
	q.buf.Next(n)
	return q.buf.Len()
}

// Reduce charges n consumed bytes against the boundary records. Whole
// records are removed from the front while they fit within n; if n ends
// partway through a record, the unconsumed remainder of that record stays at
// the front. If n exceeds the sum of the records, all records are removed.
func (q *Queue) Reduce(n int) {
	for n > 0 && q.front > 0 {
		if q.front > n {
			q.front -= n
			q.total -= n
			return
		}
		n -= q.front
		q.total -= q.front
		q.front, _ = q.rest.Pop()
	}
}

// PopRecord removes and returns the front boundary record, or 0 if there are
// no records.
func (q *Queue) PopRecord() int {
	n := q.front
	q.total -= n
	q.front, _ = q.rest.Pop()
	return n
}

// Records reports the number of boundary records.
func (q *Queue) Records() int {
	if q.front == 0 {
		return 0
	}
	return 1 + q.rest.Len()
}

// Recorded reports the sum of the boundary records.
func (q *Queue) Recorded() int { return q.total }

// ClearRecords discards all the boundary records, leaving the queued bytes
// in place.
func (q *Queue) ClearRecords() {
	q.front = 0
	q.total = 0
	q.rest.Clear()
}

// Boundaries returns a copy of the boundary records in order.
func (q *Queue) Boundaries() []int {
	if q.front == 0 {
		return nil
	}
	out := make([]int, 0, q.Records())
	out = append(out, q.front)

	// Rotate the tail through the queue to read it without disturbing order.
	for i, n := 0, q.rest.Len(); i < n; i++ {
		v, _ := q.rest.Pop()
		out = append(out, v)
		q.rest.Add(v)
	}
	return out
}

// Reset discards all queued bytes and boundary records.
func (q *Queue) Reset() {
	q.buf.Reset()
	q.ClearRecords()
}
