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

	"rcproxy/core/codec"
	"rcproxy/core/pkg/logging"
	"rcproxy/core/server"
)

// maxRetries bounds how many times one command chases a MOVED/ASK/
// CLUSTERDOWN reply before the client is told the cluster is down
// (spec.md §4.7 — there is no per-command timeout, but an unbounded
// retry loop would wedge a client forever against a genuinely
// partitioned cluster).
const maxRetries = 5

// resolveServer picks the Server a command should be sent to: read-only
// commands are eligible for a live, unbanned slave replica (see
// core/server's Policy/BanTracker) when the proxy is configured to
// allow slave reads; everything else always goes to the slot's master.
// Sub-commands built without a Type (MGET/MSET/RENAME/PUBLISH legs) are
// not treated as read-only.
func (w *worker) resolveServer(cmd *Command) *Server {
	master := w.slotMap.Get(cmd.KeySlot)
	if master == nil {
		return nil
	}
	if cmd.Type == codec.UNKNOWN || !server.IsReadCommand(cmd.Type) {
		return master
	}
	addr, isSlave := w.policy.PickReadAddr(master.Addr(), w.slotMap.Slaves(master.Addr()), w.bans, time.Now(), w.rnd)
	if !isSlave {
		return master
	}
	srv, ok := w.slotMap.ByAddr(addr)
	if !ok || srv.Closed() {
		return master
	}
	return srv
}

// handleClientEvent drains a Client's socket, splits out every complete
// frame, and dispatches each to its resolved Server.
func (w *worker) handleClientEvent(c *Client, ev polledEvent) {
	if ev.hup {
		w.retireClient(c)
		return
	}
	if !ev.readable {
		return
	}

	n, err := c.buf.ReadFromFD(c.fd)
	if n < 0 {
		w.retireClient(c)
		return
	}
	if err != nil {
		logging.Warnf("worker(%d) read from client %s: %v", w.idx, c.addr, err)
		w.retireClient(c)
		return
	}

	for {
		group, perr := c.splitter.Next()
		if perr != nil {
			logging.Warnf("worker(%d) bad frame from client %s: %v", w.idx, c.addr, perr)
			w.retireClient(c)
			return
		}
		if group == nil {
			break
		}
		w.stats.CommandsTotal.WithLabelValues(group.firstVerb()).Inc()
		unrouted := c.dispatchGroup(group, w.resolveServer)
		if len(unrouted) > 0 {
			w.slotMap.MarkExpired()
			w.unrouted = append(w.unrouted, unrouted...)
		}
		for peer := range c.peers {
			w.syncServerInterest(peer)
		}
	}
	c.buf.TruncateFront()
}

// firstVerb is a best-effort label for the commands-by-verb counter; it
// never fails the request path, so a malformed/absent Req just reports
// "unknown" instead of propagating an error.
func (g *CommandGroup) firstVerb() string {
	if len(g.Commands) == 0 {
		return "unknown"
	}
	return codec.CommandType2Str[g.Commands[0].Type]
}

// handleServerEvent drains a Server's socket and matches each complete
// reply against the head of its sent queue (FIFO: reply order always
// equals send order for one connection).
func (w *worker) handleServerEvent(s *Server, ev polledEvent) {
	if ev.hup {
		w.retireServer(s)
		return
	}

	if s.Initializing() {
		w.handleInitializingEvent(s, ev)
		return
	}

	if ev.writable && (s.pending.Len() > 0 || !s.outbuf.Empty()) {
		if _, err := s.FlushPending(); err != nil {
			w.retireServer(s)
			return
		}
	}
	if !ev.readable {
		return
	}

	n, err := s.buf.ReadFromFD(s.fd)
	if n < 0 {
		w.retireServer(s)
		return
	}
	if err != nil {
		logging.Warnf("worker(%d) read from server %s: %v", w.idx, s.addr, err)
		w.retireServer(s)
		return
	}
	w.bans.MarkOK(s.addr)

	splitter := NewRespSplitter(s.buf)
	for {
		resp, perr := splitter.Next()
		if perr != nil {
			logging.Warnf("worker(%d) bad reply from server %s: %v", w.idx, s.addr, perr)
			w.retireServer(s)
			return
		}
		if resp == nil {
			break
		}
		if s.sent.Len() == 0 {
			logging.Warnf("worker(%d) unexpected reply from %s with no outstanding command", w.idx, s.addr)
			continue
		}
		cmd := s.sent.PopHead()
		w.completeCommand(cmd, resp)
	}
	s.buf.TruncateFront()
}

// handleInitializingEvent drives a Server's AUTH/READONLY handshake:
// flush whatever handshake bytes remain, then consume exactly as many
// replies as the handshake expects before letting any application
// command reach this connection's normal reply path.
func (w *worker) handleInitializingEvent(s *Server, ev polledEvent) {
	if ev.writable && len(s.initOut) > 0 {
		if _, err := s.FlushInit(); err != nil {
			logging.Warnf("worker(%d) handshake write to %s failed: %v", w.idx, s.addr, err)
			w.retireServer(s)
			return
		}
	}
	if !ev.readable {
		if s.Initializing() {
			_ = w.poller.modReadWrite(s.fd)
		}
		return
	}

	n, err := s.buf.ReadFromFD(s.fd)
	if n < 0 {
		w.retireServer(s)
		return
	}
	if err != nil {
		logging.Warnf("worker(%d) handshake read from %s: %v", w.idx, s.addr, err)
		w.retireServer(s)
		return
	}

	splitter := NewRespSplitter(s.buf)
	for s.Initializing() {
		resp, perr := splitter.Next()
		if perr != nil {
			logging.Warnf("worker(%d) bad handshake reply from %s: %v", w.idx, s.addr, perr)
			w.retireServer(s)
			return
		}
		if resp == nil {
			break
		}
		if resp.IsError {
			logging.Errorf("worker(%d) handshake to %s rejected: %s", w.idx, s.addr, resp.Body)
			w.retireServer(s)
			return
		}
		s.ConsumeInitReply()
	}
	s.buf.TruncateFront()
	if !s.Initializing() {
		_ = w.poller.modRead(s.fd)
	}
}

// completeCommand applies one server reply to the command that
// requested it: a MOVED/ASK/CLUSTERDOWN reply re-routes instead of
// answering the client; a MultiStep command advances to its next leg;
// anything else marks the command (and possibly its group) done.
func (w *worker) completeCommand(cmd *Command, resp *Response) {
	if resp.Kind == RespRetry {
		w.stats.RetriesTotal.WithLabelValues(retryReason(resp.Body)).Inc()
		cmd.RetryCount++
		if cmd.RetryCount > maxRetries {
			w.stats.ClusterDownTotal.Inc()
			cmd.RspErr = codec.ErrClusterDown
			w.finishCommand(cmd)
			return
		}
		w.slotMap.MarkExpired()
		w.retryCommand(cmd)
		return
	}

	if cmd.Kind == MultiStep {
		nextReq, nextSlot, done, directErr := AdvanceRename(cmd, resp.Body)
		if !done {
			cmd.Req = nextReq
			cmd.KeySlot = nextSlot
			cmd.Server = nil
			cmd.NeedSend = true
			w.retryCommand(cmd)
			return
		}
		if directErr != nil {
			cmd.RspBody = directErr
		} else {
			cmd.RspBody = codec.OK.Bytes()
		}
		w.finishCommand(cmd)
		return
	}

	cmd.RspBody = resp.Body
	w.finishCommand(cmd)
}

func (w *worker) finishCommand(cmd *Command) {
	cmd.Done = true
	cmd.NeedSend = false
	if cmd.Group != nil && cmd.Group.Awaiting > 0 {
		cmd.Group.Awaiting--
	}
}

func retryReason(frame []byte) string {
	body := frame
	if len(body) > 1 && body[0] == '-' {
		body = body[1:]
	}
	for i, b := range body {
		if b == ' ' {
			body = body[:i]
			break
		}
	}
	switch string(body) {
	case "MOVED", "moved":
		return "moved"
	case "ASK", "ask":
		return "ask"
	default:
		return "clusterdown"
	}
}

// retryCommand re-resolves a command's server from the current slot
// map. If the map has no owner for its slot (still refreshing), the
// command is parked in w.unrouted until the next successful refresh.
func (w *worker) retryCommand(cmd *Command) {
	if cmd.Group == nil {
		return // client already disconnected; nothing to deliver to
	}
	srv := w.resolveServer(cmd)
	if srv == nil {
		w.unrouted = append(w.unrouted, cmd)
		return
	}
	cmd.Server = srv
	cmd.NeedSend = true
	srv.Enqueue(cmd)
	if cmd.Group.Owner != nil {
		cmd.Group.Owner.addPeer(srv)
	}
	w.syncServerInterest(srv)
}

// retryUnrouted is called after a successful slot-map install: every
// command parked while the map was expired gets one more resolution
// attempt.
func (w *worker) retryUnrouted() {
	if len(w.unrouted) == 0 {
		return
	}
	pending := w.unrouted
	w.unrouted = nil
	for _, cmd := range pending {
		if cmd.Group == nil {
			continue
		}
		w.retryCommand(cmd)
	}
}
