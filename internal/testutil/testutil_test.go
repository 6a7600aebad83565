// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package testutil_test

import (
	"testing"
	"time"

	"github.com/creachadair/utpdrv"
	"github.com/creachadair/utpdrv/internal/testutil"
)

func TestHost(t *testing.T) {
	h := testutil.NewHost()
	var _ utpdrv.Host = h

	h.Push(utpdrv.Message{Kind: utpdrv.KindData, Channel: 1, Data: []byte("a")})
	h.Reply("tok", utpdrv.Message{Kind: utpdrv.KindClosed, Channel: 2})

	if d := h.Next(t); !d.IsPush() || string(d.Data) != "a" {
		t.Errorf("First delivery: got %+v, want push of a", d)
	}
	if d := h.Next(t); d.IsPush() || d.Token != "tok" || d.Kind != utpdrv.KindClosed {
		t.Errorf("Second delivery: got %+v, want closed reply to tok", d)
	}
	h.ExpectNone(t, 10*time.Millisecond)

	if n := len(h.All()); n != 2 {
		t.Errorf("All: got %d deliveries, want 2", n)
	}
}
