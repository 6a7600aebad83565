// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package utpdrv

import (
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creachadair/utpdrv/engine"
	"github.com/creachadair/utpdrv/internal/poll"
	"github.com/creachadair/utpdrv/internal/sock"
	"github.com/creachadair/utpdrv/sockopt"
)

// A Mux multiplexes the sockets of many channels onto one dispatch goroutine,
// and drives the timers of the transport engine they share.
//
// Every call into the engine is serialized by the mux. Socket readiness and
// engine timeouts are handled on the dispatch goroutine; the methods of the
// channels may be called concurrently from other goroutines.
type Mux struct {
	eng     engine.Engine
	log     Logger
	period  time.Duration
	poll    *poll.Poller
	rbuf    []byte // receive buffer, used only by the dispatch goroutine
	lastID  atomic.Uint64
	stopped atomic.Bool
	done    chan struct{}

	emu sync.Mutex // serializes calls into eng

	mu      sync.Mutex // protects the fields below
	fds     map[int]ID
	mons    map[MonitorID]ID
	chans   map[ID]Handle
	lastMon MonitorID
	closed  bool
}

// NewMux constructs a new Mux and starts its dispatch goroutine. The caller
// must call Close when the mux is no longer needed.
func NewMux(opts *MuxOptions) (*Mux, error) {
	p, err := poll.Open()
	if err != nil {
		return nil, &SystemError{Op: "poll", Err: err}
	}
	m := &Mux{
		eng:    opts.engine(),
		log:    opts.logFunc(),
		period: opts.tickInterval(),
		poll:   p,
		rbuf:   make([]byte, opts.recvBufferSize()),
		done:   make(chan struct{}),
		fds:    make(map[int]ID),
		mons:   make(map[MonitorID]ID),
		chans:  make(map[ID]Handle),
	}
	go m.run()
	return m, nil
}

// Close stops the dispatch goroutine and force-closes all channels that
// remain open.
func (m *Mux) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.stopped.Store(true)
	m.poll.Wake()
	<-m.done

	for _, h := range m.Channels() {
		h.ForceClose()
	}
	return m.poll.Close()
}

// Channels returns the channels currently registered with m.
func (m *Mux) Channels() []Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Handle, 0, len(m.chans))
	for _, h := range m.chans {
		out = append(out, h)
	}
	return out
}

// Channel returns the channel with the given ID, or nil if there is none.
func (m *Mux) Channel(id ID) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chans[id]
}

// run is the dispatch loop. It waits for socket readiness up to the next
// tick deadline, routes readable sockets to their channels, and runs the
// engine's timeout checks when the deadline passes.
func (m *Mux) run() {
	defer close(m.done)
	m.log.Printf("Mux started, tick interval %v", m.period)
	defer m.log.Printf("Mux stopped")

	next := time.Now().Add(m.period)
	for !m.stopped.Load() {
		ready, err := m.poll.Wait(max(time.Until(next), 0))
		if err != nil {
			m.log.Printf("Poll failed: %v", err)
			return
		}
		for _, fd := range ready {
			m.onReadable(fd)
		}
		if now := time.Now(); !now.Before(next) {
			m.tick()
			next = now.Add(m.period)
		}
	}
}

func (m *Mux) tick() {
	m.withEngine(m.eng.CheckTimeouts)
	engineTicks.Add(1)
}

// withEngine calls f while holding the engine lock.
func (m *Mux) withEngine(f func()) {
	m.emu.Lock()
	defer m.emu.Unlock()
	f()
}

func (m *Mux) newID() ID { return ID(m.lastID.Add(1)) }

// onReadable routes a readiness event for fd to the channel that owns it.
func (m *Mux) onReadable(fd int) {
	m.mu.Lock()
	id, ok := m.fds[fd]
	h := m.chans[id]
	m.mu.Unlock()
	if !ok {
		return // stale event for a descriptor since removed
	}
	if r, ok := h.(reader); ok {
		r.handleReadable()
	}
}

// register adds h to the routing table. If fd >= 0, readiness of fd is
// routed to h. Registering a channel more than once is harmless.
func (m *Mux) register(fd int, h Handle) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if _, ok := m.chans[h.ID()]; !ok {
		m.chans[h.ID()] = h
		channelsActiveGauge.Add(1)
	}
	if fd >= 0 {
		m.fds[fd] = h.ID()
	}
	m.mu.Unlock()

	if fd >= 0 {
		if err := m.poll.Add(fd); err != nil {
			m.unregister(fd)
			m.removeChannel(h.ID())
			return &SystemError{Op: "epoll_ctl", Err: err}
		}
	}
	return nil
}

// unregister stops routing readiness of fd. It is a no-op if fd < 0.
func (m *Mux) unregister(fd int) {
	if fd < 0 {
		return
	}
	if err := m.poll.Remove(fd); err != nil {
		m.log.Printf("Removing descriptor %d from poll: %v", fd, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fds, fd)
}

// removeChannel removes the channel with the given ID from the routing table,
// together with any monitors on it.
func (m *Mux) removeChannel(id ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chans[id]; ok {
		delete(m.chans, id)
		channelsActiveGauge.Add(-1)
	}
	for mon, cid := range m.mons {
		if cid == id {
			delete(m.mons, mon)
			monitorsActiveGauge.Add(-1)
		}
	}
}

// AddMonitor registers a monitor on the channel with the given ID. When
// ProcessExit is called with the returned monitor, the channel is force
// closed.
func (m *Mux) AddMonitor(id ID) (MonitorID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chans[id]; !ok {
		return 0, ErrClosed
	}
	m.lastMon++
	m.mons[m.lastMon] = id
	monitorsActiveGauge.Add(1)
	return m.lastMon, nil
}

// RemoveMonitor removes a monitor without affecting its channel. It reports
// whether the monitor was registered.
func (m *Mux) RemoveMonitor(mon MonitorID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mons[mon]; ok {
		delete(m.mons, mon)
		monitorsActiveGauge.Add(-1)
		return true
	}
	return false
}

// ProcessExit reports that the process watched by mon has exited, and force
// closes the monitored channel. It is a no-op if mon is not registered.
func (m *Mux) ProcessExit(mon MonitorID) {
	m.mu.Lock()
	id, ok := m.mons[mon]
	if ok {
		delete(m.mons, mon)
		monitorsActiveGauge.Add(-1)
	}
	h := m.chans[id]
	m.mu.Unlock()

	if h != nil {
		m.log.Printf("Monitor %d exited; closing channel %v", mon, id)
		h.ForceClose()
	}
}

// Listen opens a listening channel owned by host, configured by the encoded
// option list opts.
func (m *Mux) Listen(owner Host, opts []byte) (*Listener, error) {
	cfg, _, err := sockopt.Decode(opts)
	if err != nil {
		return nil, err
	}
	fd, err := m.openSocket(cfg, netip.AddrPort{}, true)
	if err != nil {
		return nil, err
	}
	l := newListener(m, owner, fd, cfg)
	if err := m.register(fd, l); err != nil {
		sock.Close(fd)
		return nil, err
	}
	m.log.Printf("Channel %v: listening (fd %d)", l.id, fd)
	return l, nil
}

// Connect opens a channel owned by host, connected to the peer at the given
// numeric address and port, configured by the encoded option list opts.
func (m *Mux) Connect(owner Host, addr string, port uint16, opts []byte) (*Client, error) {
	peer, err := sockopt.ParseAddrPort(addr, port)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	peer = netip.AddrPortFrom(peer.Addr().Unmap(), peer.Port())
	cfg, _, err := sockopt.Decode(opts)
	if err != nil {
		return nil, err
	}
	fd, err := m.openSocket(cfg, peer, false)
	if err != nil {
		return nil, err
	}
	tx, err := newSender(fd)
	if err != nil {
		sock.Close(fd)
		return nil, err
	}
	var conn engine.Conn
	m.withEngine(func() { conn, err = m.eng.Connect(tx, peer) })
	if err != nil {
		sock.Close(fd)
		return nil, sysError(err)
	}
	c := newClient(m, owner, fd, cfg, conn, peer)
	if err := m.register(fd, c); err != nil {
		m.withEngine(func() { conn.Close() })
		sock.Close(fd)
		return nil, err
	}
	m.log.Printf("Channel %v: connected to %v (fd %d)", c.id, peer, fd)
	return c, nil
}

// openSocket opens or adopts the UDP socket for a new channel. If no bind
// address is configured and peer is an IPv6 address, the socket is bound to
// the IPv6 wildcard.
func (m *Mux) openSocket(cfg sockopt.Config, peer netip.AddrPort, reuse bool) (int, error) {
	if cfg.FD >= 0 {
		if err := sock.Adopt(cfg.FD); err != nil {
			return -1, sysError(err)
		}
		return cfg.FD, nil
	}
	bind, err := cfg.BindAddr()
	if err != nil {
		return -1, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if !cfg.AddrSet && peer.Addr().Is6() {
		bind = netip.AddrPortFrom(netip.IPv6Unspecified(), bind.Port())
	}
	fd, err := sock.Open(bind, reuse)
	if err != nil {
		return -1, sysError(err)
	}
	if err := sock.SetBuffers(fd, cfg.Sndbuf, cfg.Recbuf); err != nil {
		m.log.Printf("Setting buffer sizes on fd %d: %v", fd, err)
	}
	return fd, nil
}

// recvLoop reads datagrams from fd until it would block, passing each to f.
// The packet passed to f is only valid until f returns.
func (m *Mux) recvLoop(fd int, onErr func(error), f func(pkt []byte, from netip.AddrPort)) {
	for {
		n, from, err := sock.RecvFrom(fd, m.rbuf)
		if err == sock.ErrWouldBlock {
			return
		} else if err != nil {
			onErr(err)
			return
		}
		datagramsReadCount.Add(1)
		f(m.rbuf[:n], from)
	}
}

// A sender transmits engine datagrams on a channel's socket.
type sender struct {
	fd int
	v6 bool // the socket is IPv6, so IPv4 peers must be mapped
}

func newSender(fd int) (sender, error) {
	local, err := sock.Name(fd)
	if err != nil {
		return sender{}, sysError(err)
	}
	return sender{fd: fd, v6: !local.Addr().Is4()}, nil
}

func (s sender) SendTo(pkt []byte, to netip.AddrPort) error {
	if s.v6 {
		to = sock.Mapped(to)
	}
	return sock.SendTo(s.fd, pkt, to)
}
