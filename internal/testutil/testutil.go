// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package testutil defines internal support code for writing tests.
package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/creachadair/utpdrv"
)

// A Delivery is one message received by a Host, with the token of the read
// it answers ("" for a push).
type Delivery struct {
	Token string
	utpdrv.Message
}

// IsPush reports whether d was pushed to the host's mailbox.
func (d Delivery) IsPush() bool { return d.Token == "" }

// Host is a utpdrv.Host that records the messages it receives, and allows a
// test to wait for them in order.
type Host struct {
	mu   sync.Mutex
	all  []Delivery
	next chan Delivery
}

// NewHost constructs a new empty recording host.
func NewHost() *Host { return &Host{next: make(chan Delivery, 1024)} }

// Push implements part of the utpdrv.Host interface.
func (h *Host) Push(m utpdrv.Message) { h.add(Delivery{Message: m}) }

// Reply implements part of the utpdrv.Host interface.
func (h *Host) Reply(token string, m utpdrv.Message) { h.add(Delivery{Token: token, Message: m}) }

func (h *Host) add(d Delivery) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all = append(h.all, d)
	select {
	case h.next <- d:
	default:
		panic("testutil: too many undelivered messages")
	}
}

// All returns a copy of every delivery recorded so far.
func (h *Host) All() []Delivery {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Delivery(nil), h.all...)
}

// Next returns the next delivery not yet returned by Next. It fails t if
// none arrives within a few seconds.
func (h *Host) Next(t *testing.T) Delivery {
	t.Helper()
	select {
	case d := <-h.next:
		return d
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for a delivery")
		panic("unreachable")
	}
}

// ExpectNone fails t if a delivery arrives within the given duration.
func (h *Host) ExpectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case d := <-h.next:
		t.Errorf("Unexpected delivery: %+v", d)
	case <-time.After(wait):
	}
}
