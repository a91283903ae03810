// Copyright (c) 2022 The rcproxy Authors
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
	"time"

	"golang.org/x/sys/unix"

	"rcproxy/core/pkg/logging"
)

// maxConcurrentUpdaters bounds how many candidate addresses race for
// one refresh; the first to reach Parsed with full slot coverage wins
// and every other in-flight updater is discarded (spec.md §4.6).
const maxConcurrentUpdaters = 3

// maybeLaunchUpdater starts fresh updaters against eligible candidate
// addresses whenever the slot map is expired and no updater is
// currently racing.
func (w *worker) maybeLaunchUpdater() {
	if !w.slotMap.Expired() || len(w.updaters) > 0 {
		return
	}

	candidates := w.candidates.eligible(time.Now())
	if len(candidates) == 0 {
		candidates = w.slotMap.Addrs()
	}
	if len(candidates) == 0 {
		return
	}
	if len(candidates) > maxConcurrentUpdaters {
		candidates = candidates[:maxConcurrentUpdaters]
	}

	for _, addr := range candidates {
		u := newUpdater(addr, w.allocCounter)
		if err := u.connect(); err != nil {
			logging.Warnf("worker(%d) updater dial %s failed: %v", w.idx, addr, err)
			w.candidates.markFailed(addr)
			continue
		}
		if err := w.poller.addReadWrite(u.fd); err != nil {
			logging.Warnf("worker(%d) updater register %s failed: %v", w.idx, addr, err)
			u.close()
			w.candidates.markFailed(addr)
			continue
		}
		w.updaters[u.fd] = u
	}
}

func (w *worker) handleUpdaterEvent(u *Updater, ev polledEvent) {
	if ev.hup {
		w.failUpdater(u)
		return
	}
	if ev.writable {
		u.onWritable()
	}
	if ev.readable && u.state == UpdaterReading {
		// A node line with no address of its own is describing the peer
		// we're talking to; inherit the host we dialed to reach it
		// (resolved Open Question, see DESIGN.md).
		u.onReadable(hostOnly(u.addr))
	}

	switch u.state {
	case UpdaterParsed:
		w.installSlotMap(u)
	case UpdaterFailed:
		w.failUpdater(u)
	case UpdaterWritingQuery:
		_ = w.poller.modReadWrite(u.fd)
	case UpdaterReading:
		_ = w.poller.modRead(u.fd)
	}
}

func (w *worker) failUpdater(u *Updater) {
	logging.Debugf("worker(%d) updater %s failed: %v", w.idx, u.addr, u.err)
	w.candidates.markFailed(u.addr)
	_ = w.poller.delete(u.fd)
	u.close()
	delete(w.updaters, u.fd)
	w.stats.SlotMapRefreshTotal.WithLabelValues("failed").Inc()
}

// installSlotMap applies the winning updater's proposed node list: it
// is "first full-coverage updater wins", so every other in-flight
// updater is discarded once one reaches Parsed.
func (w *worker) installSlotMap(winner *Updater) {
	dropped := w.slotMap.replaceMap(winner.nodes, w.dialServer)
	for _, srv := range dropped {
		cmds := srv.DrainAndClose()
		_ = unix.Close(srv.fd)
		delete(w.servers, srv.fd)
		for _, cmd := range cmds {
			w.retryCommand(cmd)
		}
	}
	w.retryUnrouted()
	w.stats.SlotMapRefreshTotal.WithLabelValues("parsed").Inc()
	w.stats.SlotMapCurrentEpoch.Inc()
	if w.publishNodes != nil {
		w.publishNodes(winner.nodes)
	}

	for fd, u := range w.updaters {
		_ = w.poller.delete(fd)
		u.close()
		delete(w.updaters, fd)
	}
}

// dialServer opens and registers a new Server connection for the slot
// map, arming its AUTH/READONLY handshake before any application
// traffic is allowed to reach it (spec.md's ambient back-end auth).
// Used by replaceMap for newly seen addresses.
func (w *worker) dialServer(addr string, isSlave bool) *Server {
	fd, err := dialNonBlocking(addr)
	if err != nil {
		logging.Warnf("worker(%d) dial server %s failed: %v", w.idx, addr, err)
		w.bans.MarkFailed(addr, time.Now())
		return nil
	}
	if w.opts.TCPKeepAlive > 0 {
		_ = setKeepAlivePeriod(fd, int(w.opts.TCPKeepAlive.Seconds()))
	}
	interest := w.poller.addRead
	srv := NewServer(fd, addr, isSlave, w.allocCounter)
	cmd, steps := w.policy.InitCommand(isSlave)
	srv.QueueInit(cmd, steps)
	if srv.Initializing() {
		interest = w.poller.addReadWrite
	}
	if err := interest(fd); err != nil {
		logging.Warnf("worker(%d) register server %s failed: %v", w.idx, addr, err)
		_ = unix.Close(fd)
		return nil
	}
	w.servers[fd] = srv
	w.stats.ServerConnections.Inc()
	return srv
}
