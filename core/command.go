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
	"bytes"
	"sync"
	"time"

	"rcproxy/core/codec"
)

// CommandKind distinguishes the three sub-Command shapes a CommandGroup
// can hold.
type CommandKind int

const (
	// OneSlot is a standard single-key command, routed by its KeySlot.
	OneSlot CommandKind = iota
	// MultiStep is the GET -> SET -> DEL pipeline used for a cross-slot
	// RENAME; Stage tracks which leg is in flight.
	MultiStep
	// DirectResponse never touches a server; its RspBody/RspErr is
	// already the final answer (quick replies, forbidden, bad frame).
	DirectResponse
)

// RenameStage enumerates MultiStep's three legs.
type RenameStage int

const (
	RenameGet RenameStage = iota
	RenameSet
	RenameDel
)

// Command is one request destined for (at most) one server connection.
type Command struct {
	prev, next *Command

	Group *CommandGroup

	Kind     CommandKind
	Type     codec.Command
	Req      []byte // wire bytes to send, already rewritten if needed
	NeedSend bool
	KeySlot  int32
	Server   *Server

	RspBody []byte
	RspErr  codec.Error
	Done    bool

	// RetryCount counts MOVED/ASK/CLUSTERDOWN retries; capped by the
	// worker's retry loop (spec.md §4.7) so a persistently down cluster
	// fails the client instead of looping forever.
	RetryCount int

	Time time.Time

	// MultiStep-only state.
	Stage        RenameStage
	RenameKey    string
	RenameVal    string
	RenameKeySlot int32
	RenameValSlot int32
	renameGetVal []byte
}

func (c *Command) ReqString() string {
	if len(c.Req) == 0 {
		return ""
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for _, b := range c.Req {
		switch b {
		case '\r':
		case '\n':
			buf.WriteByte(' ')
		default:
			buf.WriteByte(b)
		}
	}
	buf.WriteByte(']')
	return buf.String()
}

// CommandGroup is one client-visible request, possibly fanned out across
// several sub-Commands (MGET/MSET/DEL) or staged across several round
// trips (RENAME's MultiStep).
type CommandGroup struct {
	prev, next *CommandGroup

	Owner *Client

	// Prefix is the array-wrapper header written before the first
	// sub-Command's reply, e.g. "*2\r\n" for a 2-key MGET. Empty for
	// single-command groups.
	Prefix []byte

	// ForcedReply overrides whatever the sub-Commands answered (MSET
	// always answers +OK\r\n once every leg lands).
	ForcedReply []byte

	Commands []*Command
	Awaiting int
	Done     bool

	// LongConnHandoff marks a SUBSCRIBE/PSUBSCRIBE group: once seen, the
	// client detaches from the reactor entirely.
	LongConnHandoff bool
}

// AllDone reports whether every sub-Command answered exactly once.
func (g *CommandGroup) AllDone() bool {
	return g.Awaiting == 0
}

type commandPool struct{ sync.Pool }

var CommandPool = commandPool{sync.Pool{New: func() interface{} { return new(Command) }}}

func (p *commandPool) Get() *Command {
	return p.Pool.Get().(*Command)
}

func (p *commandPool) Put(c *Command) {
	if c == nil {
		return
	}
	*c = Command{Req: c.Req[:0]}
	p.Pool.Put(c)
}

type commandGroupPool struct{ sync.Pool }

var CommandGroupPool = commandGroupPool{sync.Pool{New: func() interface{} { return new(CommandGroup) }}}

func (p *commandGroupPool) Get() *CommandGroup {
	return p.Pool.Get().(*CommandGroup)
}

func (p *commandGroupPool) Put(g *CommandGroup) {
	if g == nil {
		return
	}
	*g = CommandGroup{Commands: g.Commands[:0]}
	p.Pool.Put(g)
}

// CommandGroupQueue is an intrusive doubly-linked FIFO: tail -> ... -> head,
// matching the teacher's MsgQueue so reply order always equals request
// order without a separate slice allocation per client.
type CommandGroupQueue struct {
	tail, head *CommandGroup
	count      int
}

func (l *CommandGroupQueue) Reset()       { l.tail, l.head, l.count = nil, nil, 0 }
func (l *CommandGroupQueue) Empty() bool  { return l.count < 1 }
func (l *CommandGroupQueue) Len() int     { return l.count }

func (l *CommandGroupQueue) PushTail(g *CommandGroup) {
	g.next = l.tail
	g.prev = nil
	if l.count == 0 {
		l.head = g
	} else {
		l.tail.prev = g
	}
	l.tail = g
	l.count++
}

func (l *CommandGroupQueue) PopHead() *CommandGroup {
	if l.count == 0 {
		return nil
	}
	g := l.head
	l.count--
	if l.count == 0 {
		l.tail, l.head = nil, nil
	} else {
		g.prev.next = nil
		l.head = g.prev
	}
	g.next, g.prev = nil, nil
	return g
}

func (l *CommandGroupQueue) AllDone() bool {
	cur := l.head
	for cur != nil {
		if !cur.AllDone() {
			return false
		}
		cur = cur.prev
	}
	return true
}

// CommandQueue is the server-side analog (the teacher's FragQueue): the
// pending (to-send) and sent (awaiting-reply) queues on a Server.
type CommandQueue struct {
	tail, head *Command
	count      int
}

func (l *CommandQueue) Reset()      { l.tail, l.head, l.count = nil, nil, 0 }
func (l *CommandQueue) Empty() bool { return l.count < 1 }
func (l *CommandQueue) Len() int    { return l.count }

func (l *CommandQueue) PushTail(c *Command) {
	c.next = l.tail
	c.prev = nil
	if l.count == 0 {
		l.head = c
	} else {
		l.tail.prev = c
	}
	l.tail = c
	l.count++
}

func (l *CommandQueue) PopHead() *Command {
	if l.count == 0 {
		return nil
	}
	c := l.head
	l.count--
	if l.count == 0 {
		l.tail, l.head = nil, nil
	} else {
		c.prev.next = nil
		l.head = c.prev
	}
	c.next, c.prev = nil, nil
	return c
}
