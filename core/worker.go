// Copyright (c) 2022 The rcproxy Authors
// Copyright (c) 2019 Andy Pan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"math/rand"
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	"rcproxy/core/codec"
	"rcproxy/core/pkg/logging"
	"rcproxy/core/server"
)

// pollTimeoutMillis bounds how long a worker can block in epoll_wait
// before it re-checks whether a slot-map refresh is due — the updater
// state machine isn't otherwise woken by any fd event of its own until
// its dial completes.
const pollTimeoutMillis = 200

// worker is one reactor goroutine: its own epoll instance, its own
// listener fd (SO_REUSEPORT-shared with every other worker), and the
// full set of live Client/Server/Updater connections it owns. Nothing
// here is shared across workers — spec.md's per-thread event loop.
type worker struct {
	idx int

	ln     *listener
	poller *poller
	opts   *Options

	allocCounter *codec.AllocCounter

	clients map[int]*Client
	servers map[int]*Server

	slotMap    *SlotMap
	candidates *candidateBackoff
	updaters   map[int]*Updater

	allowIP func(string) bool
	stats   *ProxyStats

	// publishNodes hands the just-installed node list to the Engine's
	// atomic snapshot, consumed by the web package's /cluster/nodes
	// endpoint. nil in tests that don't need it.
	publishNodes func([]*RedisNode)

	policy *server.Policy
	bans   *server.BanTracker
	rnd    *rand.Rand

	// unrouted holds commands whose slot had no owner at dispatch time;
	// retried once the slot map is replaced.
	unrouted []*Command

	shutdown chan struct{}
}

func newWorker(idx int, ln *listener, opts *Options, stats *ProxyStats, allowIP func(string) bool, policy *server.Policy, publishNodes func([]*RedisNode)) (*worker, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	if err := p.addRead(ln.fd); err != nil {
		p.close()
		return nil, err
	}
	w := &worker{
		idx:          idx,
		ln:           ln,
		poller:       p,
		opts:         opts,
		allocCounter: &codec.AllocCounter{},
		clients:      make(map[int]*Client),
		servers:      make(map[int]*Server),
		slotMap:      NewSlotMap(),
		candidates:   newCandidateBackoff(),
		updaters:     make(map[int]*Updater),
		allowIP:      allowIP,
		stats:        stats,
		publishNodes: publishNodes,
		policy:       policy,
		bans:         server.NewBanTracker(policy),
		rnd:          rand.New(rand.NewSource(int64(idx) + 1)),
		shutdown:     make(chan struct{}),
	}
	for _, addr := range opts.SeedAddrs {
		w.candidates.seed(addr)
	}
	w.slotMap.MarkExpired()
	return w, nil
}

// run is the worker's event loop: runtime.LockOSThread matches the
// teacher's per-loop thread pinning so epoll fd affinity never migrates
// across OS threads mid-flight.
func (w *worker) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer w.closeAll()

	for {
		select {
		case <-w.shutdown:
			return
		default:
		}

		events, err := w.poller.wait(pollTimeoutMillis)
		if err != nil {
			logging.Errorf("worker(%d) poll error: %v", w.idx, err)
			return
		}

		for _, ev := range events {
			w.dispatch(ev)
		}

		w.afterEvents()
		w.maybeLaunchUpdater()
	}
}

func (w *worker) stop() { close(w.shutdown) }

func (w *worker) dispatch(ev polledEvent) {
	switch {
	case ev.fd == w.ln.fd:
		if err := w.accept(); err != nil {
			logging.Errorf("worker(%d) accept: %v", w.idx, err)
		}
	case w.clients[ev.fd] != nil:
		w.handleClientEvent(w.clients[ev.fd], ev)
	case w.servers[ev.fd] != nil:
		w.handleServerEvent(w.servers[ev.fd], ev)
	case w.updaters[ev.fd] != nil:
		w.handleUpdaterEvent(w.updaters[ev.fd], ev)
	}
}

func (w *worker) allowIPOrDefault(ip string) bool {
	if w.allowIP == nil {
		return true
	}
	return w.allowIP(ip)
}

func (w *worker) closeAll() {
	w.poller.close()
	for _, c := range w.clients {
		c.Close()
		_ = unix.Close(c.fd)
	}
	for _, s := range w.servers {
		s.DrainAndClose()
		_ = unix.Close(s.fd)
	}
	for _, u := range w.updaters {
		u.close()
	}
	w.ln.close()
}

// afterEvents runs the per-iteration bookkeeping spec.md §4.1 calls
// for once every fd's readiness has been handled: promote finished
// groups to write-ready, flush pending server writes, and drop clients
// that finished a SUBSCRIBE-style hand-off or hit EOF.
func (w *worker) afterEvents() {
	for fd, s := range w.servers {
		if s.closed {
			delete(w.servers, fd)
			continue
		}
		if s.Initializing() {
			// Handshake interest (read-write until fully flushed, then
			// read-only) is managed entirely by handleInitializingEvent;
			// application traffic routed here waits in s.pending until
			// the connection flips to Initialized.
			continue
		}
		if s.pending.Len() > 0 || !s.outbuf.Empty() {
			if _, err := s.FlushPending(); err != nil {
				logging.Warnf("worker(%d) flush to %s failed: %v", w.idx, s.addr, err)
				w.retireServer(s)
				continue
			}
		}
		w.syncServerInterest(s)
	}

	for fd, c := range w.clients {
		if c.closed {
			delete(w.clients, fd)
			continue
		}
		c.promoteReady()
		if !c.readyGroups.Empty() || !c.outbuf.Empty() {
			w.flushClient(c)
		}
	}
}

func (w *worker) syncServerInterest(s *Server) {
	want := s.interest
	switch want {
	case InterestReadWrite:
		_ = w.poller.modReadWrite(s.fd)
	default:
		_ = w.poller.modRead(s.fd)
	}
}

func (w *worker) syncClientInterest(c *Client) {
	switch c.interest {
	case InterestReadWrite:
		_ = w.poller.modReadWrite(c.fd)
	default:
		_ = w.poller.modRead(c.fd)
	}
}

// flushClient serializes any newly ready groups into the client's
// outbound buffer, then writes as much of that buffer as the socket
// currently accepts. A partial write (EAGAIN mid-write, spec.md §7)
// leaves the unwritten tail in outbuf and keeps the client read-write
// interested so the next write-ready edge resumes it — replies are
// never dropped mid-flush, only CommandGroup objects are released
// early since the bytes they produced are now safely buffered.
func (w *worker) flushClient(c *Client) {
	if !c.readyGroups.Empty() {
		c.queueReadyGroups()
	}
	if _, err := c.outbuf.WriteToFD(c.fd); err != nil {
		logging.Warnf("worker(%d) write to client %s failed: %v", w.idx, c.addr, err)
		w.retireClient(c)
		return
	}
	c.outbuf.TruncateFront()
	if c.outbuf.Empty() {
		c.interest = InterestRead
	} else {
		c.interest = InterestReadWrite
	}
	w.syncClientInterest(c)
	if c.detached && c.outbuf.Empty() {
		// SUBSCRIBE/PSUBSCRIBE: the client socket is now a dumb bridge to
		// whichever server answered; the worker stops parsing its frames
		// once every buffered reply byte has actually gone out.
		delete(w.clients, c.fd)
	}
}

func (w *worker) retireClient(c *Client) {
	c.Close()
	_ = unix.Close(c.fd)
	delete(w.clients, c.fd)
	w.stats.ClientConnections.Dec()
}

// retireServer drains outstanding commands back onto the retry path
// (same handling as a MOVED/ASK reply: re-resolve and re-enqueue) and
// marks the slot map expired so a fresh CLUSTER NODES gets a chance to
// route around the dead node.
func (w *worker) retireServer(s *Server) {
	cmds := s.DrainAndClose()
	_ = unix.Close(s.fd)
	delete(w.servers, s.fd)
	w.stats.ServerConnections.Dec()
	if s.IsSlave() {
		// A slave that drops its connection is excluded from read
		// routing for a backoff window rather than forcing a full
		// slot-map refresh — only a master loss needs that.
		w.bans.MarkFailed(s.addr, time.Now())
	} else {
		w.slotMap.MarkExpired()
	}
	for _, cmd := range cmds {
		w.retryCommand(cmd)
	}
}
