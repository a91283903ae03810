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
	"rcproxy/core/codec"
)

// Client owns one inbound connection: its read buffer, the split-but-
// undispatched groups, the dispatched-and-awaiting groups (FIFO, reply
// order == request order), the ready-to-write groups, an outbound buffer
// holding reply bytes not yet fully flushed to the socket, and the set
// of servers it currently has outstanding commands with.
type Client struct {
	fd   int
	addr string

	buf    *codec.Buffer
	outbuf *codec.Buffer

	parsedGroups   CommandGroupQueue
	awaitingGroups CommandGroupQueue
	readyGroups    CommandGroupQueue

	peers map[*Server]struct{}

	interest PollInterest
	closed   bool
	detached bool // true once handed off to a long-connection bridge

	splitter *Splitter
	authed   bool
}

func NewClient(fd int, addr string, counter *codec.AllocCounter) *Client {
	c := &Client{
		fd:     fd,
		addr:   addr,
		buf:    codec.NewBuffer(counter),
		outbuf: codec.NewBuffer(counter),
		peers:  make(map[*Server]struct{}),
	}
	c.splitter = NewSplitter(c.buf)
	return c
}

func (c *Client) Fd() int      { return c.fd }
func (c *Client) Addr() string { return c.addr }
func (c *Client) Closed() bool { return c.closed }

func (c *Client) addPeer(s *Server) { c.peers[s] = struct{}{} }

func (c *Client) clearPeers() {
	for s := range c.peers {
		delete(c.peers, s)
	}
}

// Close cancels every enqueued CommandGroup: sub-Commands already sent to
// a Server are left in that Server's sent queue but marked ownerless so
// their eventual reply is read and discarded (spec.md §4.1 cancellation).
func (c *Client) Close() {
	if c.closed {
		return
	}
	c.closed = true
	drain := func(q *CommandGroupQueue) {
		for q.Len() > 0 {
			g := q.PopHead()
			for _, cmd := range g.Commands {
				cmd.Group = nil
			}
		}
	}
	drain(&c.parsedGroups)
	drain(&c.awaitingGroups)
	drain(&c.readyGroups)
	c.clearPeers()
	if c.buf != nil {
		c.buf.Release()
	}
	if c.outbuf != nil {
		c.outbuf.Release()
	}
}

// dispatchGroup routes a freshly split CommandGroup: long-connection
// hand-offs detach the client; otherwise every sub-Command with
// NeedSend is queued on its Server and the client's awaiting state
// grows. A sub-Command whose slot has no owner yet (map expired, still
// refreshing) is returned to the caller instead of being silently
// dropped, so the worker can re-resolve it once a slot map lands.
func (c *Client) dispatchGroup(g *CommandGroup, lookup func(cmd *Command) *Server) []*Command {
	if g.LongConnHandoff {
		c.detached = true
		c.awaitingGroups.PushTail(g)
		return nil
	}

	var unrouted []*Command
	g.Owner = c
	for _, cmd := range g.Commands {
		if !cmd.NeedSend {
			continue
		}
		g.Awaiting++
		srv := cmd.Server
		if srv == nil {
			srv = lookup(cmd)
			cmd.Server = srv
		}
		if srv == nil {
			unrouted = append(unrouted, cmd)
			continue
		}
		srv.Enqueue(cmd)
		c.addPeer(srv)
	}
	c.awaitingGroups.PushTail(g)
	return unrouted
}

// promoteReady moves every awaiting group whose Awaiting has reached zero
// into readyGroups, preserving FIFO order (§4.3: never start the next
// ready batch while one is still unwritten).
func (c *Client) promoteReady() {
	if !c.readyGroups.Empty() {
		return
	}
	for c.awaitingGroups.Len() > 0 && c.awaitingGroups.head.AllDone() {
		g := c.awaitingGroups.PopHead()
		c.readyGroups.PushTail(g)
	}
}

// buildWriteVector assembles the scatter-gather buffers for every ready
// group: array prefix (if any) followed by each sub-command's reply.
func (c *Client) buildWriteVector() [][]byte {
	var bufs [][]byte
	for g := c.readyGroups.head; g != nil; g = g.prev {
		if len(g.Prefix) > 0 {
			bufs = append(bufs, g.Prefix)
		}
		if len(g.ForcedReply) > 0 {
			bufs = append(bufs, g.ForcedReply)
			continue
		}
		for _, cmd := range g.Commands {
			if cmd.RspErr.NotNil() {
				bufs = append(bufs, cmd.RspErr.Bytes())
				continue
			}
			bufs = append(bufs, cmd.RspBody)
		}
	}
	return bufs
}

// queueReadyGroups serializes every ready group's reply bytes into the
// client's outbound buffer and releases the groups back to their pool.
// Once bytes reach outbuf they're guaranteed to reach the peer in order
// however many partial writes it takes, so the CommandGroup objects
// themselves can be freed immediately; only the outbound bytes need to
// survive until flushed.
func (c *Client) queueReadyGroups() {
	for _, b := range c.buildWriteVector() {
		c.outbuf.Append(b)
	}
	for c.readyGroups.Len() > 0 {
		g := c.readyGroups.PopHead()
		CommandGroupPool.Put(g)
	}
	c.clearPeers()
}
