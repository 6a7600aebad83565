// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package hostrpc exposes utpdrv channels to a host process over JSON-RPC 2.0.
//
// Each connection to the service is one Session. A session owns the
// channels it creates, and relays their messages to the peer as server
// notifications:
//
//	utp.data    a payload pushed by a channel in active mode (Data)
//	utp.accept  a listener accepted a new connection (AcceptNote)
//	utp.closed  a channel finished closing (ClosedNote)
//	utp.error   a socket error occurred on a channel (ErrorNote)
//
// When the connection ends, every channel the session owns is force closed.
package hostrpc

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/handler"
	"github.com/creachadair/jrpc2/server"
	"github.com/creachadair/utpdrv"
	"github.com/creachadair/utpdrv/sockopt"
	"golang.org/x/sync/semaphore"
)

// Options control the behaviour of a session. A nil *Options provides
// sensible defaults.
type Options struct {
	// If not nil, send debug text logs here.
	Logger utpdrv.Logger

	// The maximum number of utp.recv calls that may wait at once. A value
	// less than or equal to zero uses DefaultMaxPendingReads.
	MaxPendingReads int
}

// DefaultMaxPendingReads is the default limit on waiting utp.recv calls.
const DefaultMaxPendingReads = 16

func (o *Options) logFunc() utpdrv.Logger {
	if o == nil {
		return nil
	}
	return o.Logger
}

func (o *Options) maxPendingReads() int64 {
	if o == nil || o.MaxPendingReads <= 0 {
		return DefaultMaxPendingReads
	}
	return int64(o.MaxPendingReads)
}

// TooManyReads is the error code reported when a session has too many
// waiting utp.recv calls.
const TooManyReads jrpc2.Code = -29020

var errTooManyReads = jrpc2.Errorf(TooManyReads, "too many pending reads")

// A Session is the host of the channels created through one connection. It
// implements the utpdrv.Host interface, and the server.Service interface so
// that it can be used with server.Loop.
type Session struct {
	mux  *utpdrv.Mux
	log  utpdrv.Logger
	sem  *semaphore.Weighted
	tok  atomic.Uint64
	wg   sync.WaitGroup // pending teardowns
	stop atomic.Bool

	mu      sync.Mutex
	srv     *jrpc2.Server
	chans   map[utpdrv.ID]utpdrv.Handle
	mons    map[utpdrv.ID]utpdrv.MonitorID
	waiters map[string]chan utpdrv.Message
}

// NewSession constructs a new session whose channels are created on m.
func NewSession(m *utpdrv.Mux, opts *Options) *Session {
	return &Session{
		mux:     m,
		log:     opts.logFunc(),
		sem:     semaphore.NewWeighted(opts.maxPendingReads()),
		chans:   make(map[utpdrv.ID]utpdrv.Handle),
		mons:    make(map[utpdrv.ID]utpdrv.MonitorID),
		waiters: make(map[string]chan utpdrv.Message),
	}
}

// NewService returns a constructor for sessions on m, for use with
// server.Loop.
func NewService(m *utpdrv.Mux, opts *Options) func() server.Service {
	return func() server.Service { return NewSession(m, opts) }
}

// Assigner implements part of the server.Service interface.
func (s *Session) Assigner() (jrpc2.Assigner, error) { return s.Methods(), nil }

// Finish implements part of the server.Service interface. It closes the
// session.
func (s *Session) Finish(_ jrpc2.Assigner, stat jrpc2.ServerStatus) {
	if stat.Err != nil {
		s.log.Printf("Session ended: %v", stat.Err)
	}
	s.Close()
}

// Methods returns the methods exported by s.
func (s *Session) Methods() handler.Map {
	return handler.Map{
		"utp.listen":   handler.New(s.Listen),
		"utp.connect":  handler.New(s.Connect),
		"utp.setopts":  handler.New(s.SetOpts),
		"utp.getopts":  handler.New(s.GetOpts),
		"utp.recv":     handler.New(s.Recv),
		"utp.send":     handler.New(s.Send),
		"utp.close":    handler.New(s.CloseChannel),
		"utp.sockname": handler.New(s.SockName),
		"utp.peername": handler.New(s.PeerName),
	}
}

// Close force closes every channel owned by s, as if the host process had
// exited. Messages from those channels are no longer relayed.
func (s *Session) Close() {
	s.stop.Store(true)
	s.mu.Lock()
	mons := make([]utpdrv.MonitorID, 0, len(s.mons))
	for _, mon := range s.mons {
		mons = append(mons, mon)
	}
	s.mu.Unlock()

	for _, mon := range mons {
		s.mux.ProcessExit(mon)
	}
	s.wg.Wait()
}

// Listen handles the utp.listen method.
func (s *Session) Listen(ctx context.Context, req *ListenParams) (*ChannelResult, error) {
	s.bind(ctx)
	lst, err := s.mux.Listen(s, req.Options)
	if err != nil {
		return nil, rpcError(err)
	}
	return s.added(lst)
}

// Connect handles the utp.connect method.
func (s *Session) Connect(ctx context.Context, req *ConnectParams) (*ChannelResult, error) {
	s.bind(ctx)
	cli, err := s.mux.Connect(s, req.Address, req.Port, req.Options)
	if err != nil {
		return nil, rpcError(err)
	}
	return s.added(cli)
}

// added records a new channel created by s, and reports its address.
func (s *Session) added(h utpdrv.Handle) (*ChannelResult, error) {
	if err := s.adopt(h); err != nil {
		h.ForceClose()
		return nil, rpcError(err)
	}
	addr, err := h.SockName()
	if err != nil {
		return nil, rpcError(err)
	}
	return &ChannelResult{Channel: h.ID(), Address: addr.Addr().String(), Port: addr.Port()}, nil
}

// adopt adds h to the channels owned by s, with a monitor so that it is
// closed when s ends.
func (s *Session) adopt(h utpdrv.Handle) error {
	mon, err := s.mux.AddMonitor(h.ID())
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chans[h.ID()] = h
	s.mons[h.ID()] = mon
	return nil
}

// SetOpts handles the utp.setopts method.
func (s *Session) SetOpts(ctx context.Context, req *SetOptsParams) (bool, error) {
	h, err := s.channel(req.Channel)
	if err != nil {
		return false, err
	}
	if err := h.Configure(req.Options); err != nil {
		return false, rpcError(err)
	}
	return true, nil
}

// GetOpts handles the utp.getopts method.
func (s *Session) GetOpts(ctx context.Context, req *GetOptsParams) ([]sockopt.Value, error) {
	h, err := s.channel(req.Channel)
	if err != nil {
		return nil, err
	}
	tags := make([]byte, len(req.Names))
	for i, name := range req.Names {
		tag, ok := sockopt.ParseTag(name)
		if !ok {
			return nil, jrpc2.Errorf(sockopt.UnknownField, "unknown option %q", name)
		}
		tags[i] = byte(tag)
	}
	vals, err := h.Query(tags)
	if err != nil {
		return nil, rpcError(err)
	}
	return vals, nil
}

// Recv handles the utp.recv method. It blocks until the read is satisfied,
// the channel closes, the timeout given in req elapses, or ctx ends.
func (s *Session) Recv(ctx context.Context, req *RecvParams) (*Data, error) {
	h, err := s.channel(req.Channel)
	if err != nil {
		return nil, err
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.Timeout)*time.Millisecond)
		defer cancel()
	}
	if !s.sem.TryAcquire(1) {
		return nil, errTooManyReads
	}
	defer s.sem.Release(1)

	tok := strconv.FormatUint(s.tok.Add(1), 10)
	ready := make(chan utpdrv.Message, 1)
	s.mu.Lock()
	s.waiters[tok] = ready
	s.mu.Unlock()

	if err := h.Recv(req.Length, tok); err != nil {
		s.dropWaiter(tok)
		return nil, rpcError(err)
	}
	select {
	case m := <-ready:
		return replyData(m)
	case <-ctx.Done():
		s.dropWaiter(tok)

		// A reply may have arrived before the waiter was removed.
		select {
		case m := <-ready:
			s.Push(m)
		default:
		}
		return nil, ctx.Err()
	}
}

func replyData(m utpdrv.Message) (*Data, error) {
	if m.Kind == utpdrv.KindClosed {
		return nil, rpcError(utpdrv.ErrClosed)
	}
	return newData(m), nil
}

func (s *Session) dropWaiter(tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.waiters, tok)
}

// Send handles the utp.send method.
func (s *Session) Send(ctx context.Context, req *SendParams) (bool, error) {
	h, err := s.channel(req.Channel)
	if err != nil {
		return false, err
	}
	if err := h.Send(req.Data); err != nil {
		return false, rpcError(err)
	}
	return true, nil
}

// CloseChannel handles the utp.close method. The caller receives a
// utp.closed notification when the close is complete.
func (s *Session) CloseChannel(ctx context.Context, req *ChannelParams) (bool, error) {
	h, err := s.channel(req.Channel)
	if err != nil {
		return false, err
	}
	if err := h.Close(); err != nil {
		return false, rpcError(err)
	}
	return true, nil
}

// SockName handles the utp.sockname method.
func (s *Session) SockName(ctx context.Context, req *ChannelParams) (*AddrResult, error) {
	h, err := s.channel(req.Channel)
	if err != nil {
		return nil, err
	}
	addr, err := h.SockName()
	if err != nil {
		return nil, rpcError(err)
	}
	return newAddrResult(addr), nil
}

// PeerName handles the utp.peername method.
func (s *Session) PeerName(ctx context.Context, req *ChannelParams) (*AddrResult, error) {
	h, err := s.channel(req.Channel)
	if err != nil {
		return nil, err
	}
	addr, err := h.PeerName()
	if err != nil {
		return nil, rpcError(err)
	}
	return newAddrResult(addr), nil
}

// bind records the server for ctx as the destination of notifications.
func (s *Session) bind(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		s.srv = jrpc2.ServerFromContext(ctx)
	}
}

func (s *Session) channel(id utpdrv.ID) (utpdrv.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.chans[id]; ok {
		return h, nil
	}
	return nil, jrpc2.Errorf(jrpc2.InvalidParams, "unknown channel %v", id)
}

// Push implements part of the utpdrv.Host interface.
func (s *Session) Push(m utpdrv.Message) {
	switch m.Kind {
	case utpdrv.KindData:
		s.notify("utp.data", newData(m))

	case utpdrv.KindAccept:
		if err := s.adopt(m.Accepted); err != nil {
			s.log.Printf("Channel %v: accepted channel %v: %v", m.Channel, m.Accepted.ID(), err)
			return
		}
		s.notify("utp.accept", &AcceptNote{
			Channel:  m.Channel,
			Accepted: m.Accepted.ID(),
			Address:  m.Peer.Addr().String(),
			Port:     m.Peer.Port(),
		})

	case utpdrv.KindClosed:
		s.mu.Lock()
		h := s.chans[m.Channel]
		delete(s.chans, m.Channel)
		delete(s.mons, m.Channel)
		s.mu.Unlock()

		// The channel is locked while it delivers, so release it separately.
		if h != nil {
			s.wg.Add(1)
			go func() { defer s.wg.Done(); h.ForceClose() }()
		}
		s.notify("utp.closed", &ClosedNote{Channel: m.Channel})

	case utpdrv.KindError:
		s.notify("utp.error", &ErrorNote{Channel: m.Channel, Error: m.Err})
	}
}

// Reply implements part of the utpdrv.Host interface. A reply to a read
// whose caller has given up is relayed as a notification instead.
func (s *Session) Reply(token string, m utpdrv.Message) {
	s.mu.Lock()
	ready, ok := s.waiters[token]
	delete(s.waiters, token)
	s.mu.Unlock()

	if ok {
		ready <- m
	} else if m.Kind == utpdrv.KindData {
		s.Push(m)
	}
}

func (s *Session) notify(method string, params any) {
	if s.stop.Load() {
		return
	}
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		s.log.Printf("Dropped %s notification: no server", method)
		return
	}
	if err := srv.Notify(context.Background(), method, params); err != nil {
		s.log.Printf("Notify %s failed: %v", method, err)
	}
}

// rpcError converts channel errors to JSON-RPC errors, attaching the
// symbolic error name of a system error and the name of an invalid option as
// error data.
func rpcError(err error) error {
	var se *utpdrv.SystemError
	if errors.As(err, &se) {
		return withData(jrpc2.SystemError, err, map[string]string{"errno": se.ID()})
	}
	if name, ok := sockopt.IsInvalidOption(err); ok {
		return withData(sockopt.InvalidOption, err, map[string]string{"option": name})
	}
	return err
}

func withData(c jrpc2.Code, err error, data any) error {
	bits, jerr := json.Marshal(data)
	if jerr != nil {
		return err
	}
	return &jrpc2.Error{Code: c, Message: err.Error(), Data: bits}
}
