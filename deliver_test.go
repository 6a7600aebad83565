// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package utpdrv

import (
	"bytes"
	"testing"

	"github.com/creachadair/utpdrv/rqueue"
	"github.com/creachadair/utpdrv/sockopt"
	"github.com/google/go-cmp/cmp"
)

// A delivery is a simplified record of one message sent to a recorder.
type delivery struct {
	Token  string // "" for push
	Kind   Kind
	Header []byte
	Data   string
	Text   bool
}

type recorder struct{ got []delivery }

func (r *recorder) Push(m Message) { r.Reply("", m) }

func (r *recorder) Reply(token string, m Message) {
	r.got = append(r.got, delivery{
		Token:  token,
		Kind:   m.Kind,
		Header: m.Header,
		Data:   string(m.Data),
		Text:   m.Text,
	})
}

// take returns the recorded deliveries and resets the recorder.
func (r *recorder) take() []delivery {
	out := r.got
	r.got = nil
	return out
}

func opts() *sockopt.Builder { return new(sockopt.Builder) }

// newTestSocket returns a socket with the given options that is not attached
// to a mux, and the recorder that owns it.
func newTestSocket(t *testing.T, b *sockopt.Builder) (*Socket, *recorder) {
	t.Helper()
	cfg, _, err := sockopt.Decode(b.Bytes())
	if err != nil {
		t.Fatalf("Decode options: %v", err)
	}
	rec := new(recorder)
	return &Socket{id: 1, owner: rec, fd: -1, cfg: cfg, rq: rqueue.New()}, rec
}

func data(s string) delivery { return delivery{Kind: KindData, Data: s} }

func checkDeliveries(t *testing.T, rec *recorder, want []delivery) {
	t.Helper()
	got := rec.take()
	for i := range got {
		got[i].Text = false // checked separately
		if len(got[i].Header) == 0 {
			got[i].Header = nil
		}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Deliveries (-want, +got):\n%s", diff)
	}
}

func TestFramedActive(t *testing.T) {
	s, rec := newTestSocket(t, opts().Packet(2).Active(sockopt.ActiveTrue))
	s.input([][]byte{
		{0x00, 0x03, 'a', 'b', 'c'},
		{0x00, 0x02, 'x', 'y'},
	})
	checkDeliveries(t, rec, []delivery{data("abc"), data("xy")})
	if n := s.rq.Len(); n != 0 {
		t.Errorf("Queue length: got %d, want 0", n)
	}
	if n := s.rq.Recorded(); n != 0 {
		t.Errorf("Recorded bytes: got %d, want 0", n)
	}
}

func TestFramedActivate(t *testing.T) {
	s, rec := newTestSocket(t, opts().Packet(1).Active(sockopt.ActiveFalse))
	s.input([][]byte{{3, 'a', 'b', 'c', 2, 'x'}, {'y'}})
	checkDeliveries(t, rec, nil)

	if err := s.Configure(opts().Active(sockopt.ActiveTrue).Bytes()); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	checkDeliveries(t, rec, []delivery{data("abc"), data("xy")})
	if n, r := s.rq.Len(), s.rq.Recorded(); n != 0 || r != 0 {
		t.Errorf("After activation: queued=%d recorded=%d, want 0, 0", n, r)
	}
}

func TestFramedPartial(t *testing.T) {
	s, rec := newTestSocket(t, opts().Packet(4))

	// A frame split across datagrams is delivered only when complete.
	s.input([][]byte{{0, 0, 0, 5, 'h', 'e'}})
	checkDeliveries(t, rec, nil)

	s.input([][]byte{{'l', 'l'}})
	checkDeliveries(t, rec, nil)

	s.input([][]byte{{'o', 0, 0}})
	checkDeliveries(t, rec, []delivery{data("hello")})

	// The partial prefix of the next frame remains.
	if n := s.rq.Len(); n != 2 {
		t.Errorf("Queue length: got %d, want 2", n)
	}
	if got, want := s.rq.Recorded(), s.rq.Len(); got != want {
		t.Errorf("Recorded bytes: got %d, want %d", got, want)
	}

	// A zero-length frame is delivered as an empty message.
	s.input([][]byte{{0, 0}})
	checkDeliveries(t, rec, []delivery{data("")})
}

func TestFramedOnce(t *testing.T) {
	s, rec := newTestSocket(t, opts().Packet(1).Active(sockopt.ActiveOnce))
	s.input([][]byte{{2, 'p', 'q', 1, 'r'}})
	checkDeliveries(t, rec, []delivery{data("pq")})
	if s.cfg.Active != sockopt.ActiveFalse {
		t.Errorf("Active: got %v, want false", s.cfg.Active)
	}
	if n := s.rq.Len(); n != 2 {
		t.Errorf("Queue length: got %d, want 2", n)
	}
}

func TestPassiveMerge(t *testing.T) {
	s, rec := newTestSocket(t, opts().Active(sockopt.ActiveFalse))
	s.input([][]byte{[]byte("aaaaa"), []byte("bbbbb"), []byte("ccccc")})
	checkDeliveries(t, rec, nil) // nobody asked

	if err := s.recv(0, "r1"); err != nil {
		t.Fatalf("recv: %v", err)
	}
	checkDeliveries(t, rec, []delivery{{Token: "r1", Kind: KindData, Data: "aaaaabbbbbccccc"}})
	if n := s.rq.Records(); n != 0 {
		t.Errorf("Records: got %d, want 0", n)
	}
}

func TestPassiveLength(t *testing.T) {
	s, rec := newTestSocket(t, opts().Active(sockopt.ActiveFalse))
	s.input([][]byte{[]byte("abcd"), []byte("efgh")})

	if err := s.recv(6, "r1"); err != nil {
		t.Fatalf("recv: %v", err)
	}
	checkDeliveries(t, rec, []delivery{{Token: "r1", Kind: KindData, Data: "abcdef"}})
	if diff := cmp.Diff([]int{2}, s.rq.Boundaries()); diff != "" {
		t.Errorf("Boundaries (-want, +got):\n%s", diff)
	}

	// A read longer than what is queued waits for more data.
	if err := s.recv(4, "r2"); err != nil {
		t.Fatalf("recv: %v", err)
	}
	checkDeliveries(t, rec, nil)

	s.input([][]byte{[]byte("ij")})
	checkDeliveries(t, rec, []delivery{{Token: "r2", Kind: KindData, Data: "ghij"}})
}

func TestPendingOrder(t *testing.T) {
	s, rec := newTestSocket(t, opts().Active(sockopt.ActiveFalse))
	for _, tok := range []string{"a", "b", "c"} {
		if err := s.recv(2, tok); err != nil {
			t.Fatalf("recv %q: %v", tok, err)
		}
	}
	s.input([][]byte{[]byte("0123")})
	checkDeliveries(t, rec, []delivery{
		{Token: "a", Kind: KindData, Data: "01"},
		{Token: "b", Kind: KindData, Data: "23"},
	})
	if len(s.pending) != 1 {
		t.Errorf("Pending reads: got %d, want 1", len(s.pending))
	}
}

func TestPendingAfterOnce(t *testing.T) {
	s, rec := newTestSocket(t, opts().Active(sockopt.ActiveFalse))
	if err := s.recv(0, "tok"); err != nil {
		t.Fatalf("recv: %v", err)
	}
	if err := s.Configure(opts().Active(sockopt.ActiveOnce).Bytes()); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	checkDeliveries(t, rec, nil)

	// The push in once mode reverts to passive, and the waiting read takes
	// what remains.
	s.input([][]byte{[]byte("a"), []byte("b")})
	checkDeliveries(t, rec, []delivery{
		data("a"),
		{Token: "tok", Kind: KindData, Data: "b"},
	})
	if s.cfg.Active != sockopt.ActiveFalse {
		t.Errorf("Active: got %v, want false", s.cfg.Active)
	}
	if n, p := s.rq.Len(), len(s.pending); n != 0 || p != 0 {
		t.Errorf("After input: queued=%d pending=%d, want 0, 0", n, p)
	}
}

func TestConfigureOnceWithPending(t *testing.T) {
	s, rec := newTestSocket(t, opts().Active(sockopt.ActiveFalse))
	if err := s.recv(3, "tok"); err != nil {
		t.Fatalf("recv: %v", err)
	}
	s.input([][]byte{[]byte("ab"), []byte("c")})
	checkDeliveries(t, rec, []delivery{{Token: "tok", Kind: KindData, Data: "abc"}})

	if err := s.recv(2, "next"); err != nil {
		t.Fatalf("recv: %v", err)
	}
	s.input([][]byte{[]byte("d")})
	checkDeliveries(t, rec, nil)

	// Switching to once pushes the queued datagram; the read keeps waiting
	// in passive mode and is served by later input.
	if err := s.Configure(opts().Active(sockopt.ActiveOnce).Bytes()); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	checkDeliveries(t, rec, []delivery{data("d")})
	s.input([][]byte{[]byte("ef")})
	checkDeliveries(t, rec, []delivery{{Token: "next", Kind: KindData, Data: "ef"}})
	if len(s.pending) != 0 {
		t.Errorf("Pending reads: got %d, want 0", len(s.pending))
	}
}

func TestActiveTrue(t *testing.T) {
	s, rec := newTestSocket(t, opts())
	s.input([][]byte{[]byte("one"), []byte("two"), []byte("three")})
	checkDeliveries(t, rec, []delivery{data("one"), data("two"), data("three")})
}

func TestActiveOnce(t *testing.T) {
	s, rec := newTestSocket(t, opts().Active(sockopt.ActiveOnce))
	s.input([][]byte{[]byte("one"), []byte("two")})
	checkDeliveries(t, rec, []delivery{data("one")})
	if s.cfg.Active != sockopt.ActiveFalse {
		t.Errorf("Active: got %v, want false", s.cfg.Active)
	}
	if n := s.rq.Records(); n != 1 {
		t.Errorf("Records: got %d, want 1", n)
	}
}

func TestHeader(t *testing.T) {
	s, rec := newTestSocket(t, opts().Header(4))
	var pkt []byte
	for i := 0; i < 20; i++ {
		pkt = append(pkt, byte(i))
	}
	s.input([][]byte{pkt})
	checkDeliveries(t, rec, []delivery{{
		Kind:   KindData,
		Header: []byte{0, 1, 2, 3},
		Data:   string(pkt[4:]),
	}})

	// A payload shorter than the header is all header.
	s.input([][]byte{{9, 8}})
	checkDeliveries(t, rec, []delivery{{Kind: KindData, Header: []byte{9, 8}, Data: ""}})
}

func TestDeliveryMode(t *testing.T) {
	s, rec := newTestSocket(t, opts().Delivery(sockopt.DeliverBinary))
	s.input([][]byte{[]byte("x")})
	if got := rec.take(); len(got) != 1 || got[0].Text {
		t.Errorf("Binary delivery: got %+v, want one binary message", got)
	}
	s.cfg.Delivery = sockopt.DeliverList
	s.input([][]byte{[]byte("y")})
	if got := rec.take(); len(got) != 1 || !got[0].Text {
		t.Errorf("List delivery: got %+v, want one text message", got)
	}
}

func TestCloseDeferred(t *testing.T) {
	s, rec := newTestSocket(t, opts().Active(sockopt.ActiveFalse))
	s.input([][]byte{[]byte("left"), []byte("over")})
	if err := s.beginClose(); err != nil {
		t.Fatalf("beginClose: %v", err)
	}
	// Data remain queued, so no closed message yet.
	checkDeliveries(t, rec, nil)
	if !s.closePending {
		t.Error("Close is not pending")
	}

	if err := s.recv(3, "r1"); err != nil {
		t.Fatalf("recv: %v", err)
	}
	checkDeliveries(t, rec, []delivery{{Token: "r1", Kind: KindData, Data: "lef"}})

	if err := s.recv(0, "r2"); err != nil {
		t.Fatalf("recv: %v", err)
	}
	checkDeliveries(t, rec, []delivery{
		{Token: "r2", Kind: KindData, Data: "tover"},
		{Kind: KindClosed},
	})
	if s.closePending {
		t.Error("Close is still pending after the closed message")
	}
}

func TestCloseEmpty(t *testing.T) {
	s, rec := newTestSocket(t, opts())
	if err := s.beginClose(); err != nil {
		t.Fatalf("beginClose: %v", err)
	}
	checkDeliveries(t, rec, []delivery{{Kind: KindClosed}})

	// Later invocations do not repeat the closed message.
	if s.emit(0, Push()) {
		t.Error("emit after close: got true, want false")
	}
	checkDeliveries(t, rec, nil)
}

func TestCloseFailsPendingReads(t *testing.T) {
	s, rec := newTestSocket(t, opts().Active(sockopt.ActiveFalse))
	if err := s.recv(10, "r1"); err != nil {
		t.Fatalf("recv: %v", err)
	}
	if err := s.beginClose(); err != nil {
		t.Fatalf("beginClose: %v", err)
	}
	checkDeliveries(t, rec, []delivery{
		{Kind: KindClosed},
		{Token: "r1", Kind: KindClosed},
	})
}

func TestRecvErrors(t *testing.T) {
	s, _ := newTestSocket(t, opts())
	if err := s.recv(0, "x"); err != ErrActive {
		t.Errorf("recv while active: got %v, want %v", err, ErrActive)
	}
	s.cfg.Active = sockopt.ActiveFalse
	if err := s.recv(-1, "x"); err != ErrInvalidLength {
		t.Errorf("recv(-1): got %v, want %v", err, ErrInvalidLength)
	}
}

func TestConfigureTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    sockopt.Active
		to      sockopt.Active
		queue   []string
		want    []delivery
		wantNow sockopt.Active
	}{
		{"FalseToOnceEmpty", sockopt.ActiveFalse, sockopt.ActiveOnce, nil, nil, sockopt.ActiveOnce},
		{"FalseToOnce", sockopt.ActiveFalse, sockopt.ActiveOnce, []string{"a", "b"},
			[]delivery{data("a")}, sockopt.ActiveFalse},
		{"FalseToTrue", sockopt.ActiveFalse, sockopt.ActiveTrue, []string{"a", "b"},
			[]delivery{data("a"), data("b")}, sockopt.ActiveTrue},
		{"OnceToTrue", sockopt.ActiveOnce, sockopt.ActiveTrue, []string{"a", "b"},
			[]delivery{data("a"), data("b")}, sockopt.ActiveTrue},
		{"TrueToFalse", sockopt.ActiveTrue, sockopt.ActiveFalse, []string{"a"}, nil, sockopt.ActiveFalse},
		{"FalseToFalse", sockopt.ActiveFalse, sockopt.ActiveFalse, []string{"a"}, nil, sockopt.ActiveFalse},
		{"TrueToOnce", sockopt.ActiveTrue, sockopt.ActiveOnce, []string{"a"}, nil, sockopt.ActiveOnce},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, rec := newTestSocket(t, opts().Active(tc.from))

			// Queue data directly so that nothing is delivered before the
			// transition.
			for _, q := range tc.queue {
				s.rq.Enqueue([]byte(q))
			}
			if err := s.Configure(opts().Active(tc.to).Bytes()); err != nil {
				t.Fatalf("Configure: %v", err)
			}
			checkDeliveries(t, rec, tc.want)
			if s.cfg.Active != tc.wantNow {
				t.Errorf("Active: got %v, want %v", s.cfg.Active, tc.wantNow)
			}
		})
	}
}

func TestConfigureImmutable(t *testing.T) {
	s, rec := newTestSocket(t, opts().Active(sockopt.ActiveFalse))
	s.rq.Enqueue([]byte("z"))
	before := s.cfg

	err := s.Configure(opts().Active(sockopt.ActiveTrue).Address("127.0.0.1").Bytes())
	if name, ok := sockopt.IsInvalidOption(err); !ok || name != "address" {
		t.Errorf("Configure: got %v, want invalid option address", err)
	}
	if s.cfg != before {
		t.Errorf("Configure changed options: got %+v, want %+v", s.cfg, before)
	}
	checkDeliveries(t, rec, nil)
}

func TestQueueInvariant(t *testing.T) {
	// Whatever mix of deliveries runs, the boundary records always account
	// for exactly the queued bytes.
	s, rec := newTestSocket(t, opts().Active(sockopt.ActiveFalse))
	pkts := [][]byte{
		bytes.Repeat([]byte("a"), 7),
		bytes.Repeat([]byte("b"), 3),
		bytes.Repeat([]byte("c"), 11),
		bytes.Repeat([]byte("d"), 1),
	}
	check := func(when string) {
		t.Helper()
		if got, want := s.rq.Recorded(), s.rq.Len(); got != want {
			t.Errorf("%s: recorded %d bytes, queued %d", when, got, want)
		}
		for _, b := range s.rq.Boundaries() {
			if b <= 0 {
				t.Errorf("%s: non-positive boundary %d", when, b)
			}
		}
	}
	s.input(pkts)
	check("after input")
	for _, n := range []int{5, 4, 2, 8} {
		if err := s.recv(n, "r"); err != nil {
			t.Fatalf("recv(%d): %v", n, err)
		}
		check("after recv")
	}
	if err := s.Configure(opts().Active(sockopt.ActiveTrue).Bytes()); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	check("after activation")

	var total int
	for _, d := range rec.take() {
		total += len(d.Data)
	}
	if total != 22 {
		t.Errorf("Delivered %d bytes, want 22", total)
	}
}
