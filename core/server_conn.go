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

// InitializeStatus tracks a Server connection's AUTH/READONLY handshake.
type InitializeStatus int8

const (
	InitializeNone InitializeStatus = iota
	Initializing
	Initialized
)

// PollInterest is a connection's single registered epoll interest.
type PollInterest int8

const (
	InterestNone PollInterest = iota
	InterestRead
	InterestReadWrite
)

// Server owns one back-end connection: its read buffer, an outbound
// buffer holding request bytes not yet fully flushed to the socket, and
// the FIFO of commands awaiting send (pending) and already sent awaiting
// reply (sent) — invariant: sent-queue order equals response-arrival
// order.
type Server struct {
	fd   int
	addr string

	buf    *codec.Buffer
	outbuf *codec.Buffer

	pending CommandQueue
	sent    CommandQueue

	isSlave    bool
	initStatus InitializeStatus
	initStep   int8
	initOut    []byte

	interest PollInterest
	closed   bool

	// bannedOrder is not read or written anywhere; read-slave bans are
	// tracked by the worker's server.BanTracker.
	bannedOrder int
}

func NewServer(fd int, addr string, isSlave bool, counter *codec.AllocCounter) *Server {
	return &Server{
		fd:      fd,
		addr:    addr,
		buf:     codec.NewBuffer(counter),
		outbuf:  codec.NewBuffer(counter),
		isSlave: isSlave,
	}
}

func (s *Server) Fd() int             { return s.fd }
func (s *Server) Addr() string        { return s.addr }
func (s *Server) IsSlave() bool       { return s.isSlave }
func (s *Server) Closed() bool        { return s.closed }
func (s *Server) Interest() PollInterest { return s.interest }

// QueueInit arms the AUTH/READONLY handshake cmd must complete before
// the connection is Initialized and eligible for application traffic.
// steps is how many simple-string replies that handshake expects back.
// A nil/empty cmd marks the connection Initialized immediately (no
// password configured and this isn't a replica).
func (s *Server) QueueInit(cmd []byte, steps int) {
	if len(cmd) == 0 {
		s.initStatus = Initialized
		return
	}
	s.initStatus = Initializing
	s.initStep = int8(steps)
	s.initOut = cmd
	s.interest = InterestReadWrite
}

func (s *Server) Initializing() bool { return s.initStatus == Initializing }

// ConsumeInitReply accounts for one handshake reply; once every
// expected reply has arrived the connection flips to Initialized and
// is eligible for application traffic.
func (s *Server) ConsumeInitReply() {
	if s.initStep > 0 {
		s.initStep--
	}
	if s.initStep == 0 {
		s.initStatus = Initialized
		s.interest = InterestRead
	}
}

// FlushInit gather-writes whatever handshake bytes remain. Once fully
// written the connection drops back to read-only interest to await the
// handshake's replies.
func (s *Server) FlushInit() (int, error) {
	if len(s.initOut) == 0 {
		return 0, nil
	}
	n, err := codec.GatheredWrite(s.fd, [][]byte{s.initOut})
	if err != nil {
		return n, err
	}
	if n >= len(s.initOut) {
		s.initOut = nil
		s.interest = InterestRead
	} else {
		s.initOut = s.initOut[n:]
	}
	return n, nil
}

// Enqueue pushes c onto the pending queue and, if the connection is only
// read-interested, flips it to read-write interest so the next poll
// cycle flushes it.
func (s *Server) Enqueue(c *Command) {
	s.pending.PushTail(c)
	if s.interest == InterestRead {
		s.interest = InterestReadWrite
	}
}

// FlushPending serializes every pending command's wire bytes into the
// outbound buffer — moving each straight into sent, since once its bytes
// are queued here the peer is guaranteed to see them in order whatever
// number of partial writes it takes — then drains as much of that
// buffer as the socket currently accepts. EAGAIN mid-write (spec.md §7)
// leaves the unwritten tail in outbuf and keeps the connection
// read-write interested for the next write-ready edge; nothing is lost.
func (s *Server) FlushPending() (int, error) {
	for s.pending.Len() > 0 {
		c := s.pending.PopHead()
		s.outbuf.Append(c.Req)
		c.NeedSend = false
		c.Done = false
		s.sent.PushTail(c)
	}

	n, err := s.outbuf.WriteToFD(s.fd)
	if err != nil {
		return n, err
	}
	s.outbuf.TruncateFront()
	if s.outbuf.Empty() {
		s.interest = InterestRead
	} else {
		s.interest = InterestReadWrite
	}
	return n, nil
}

// DrainAndClose empties pending+sent, returning every still-outstanding
// Command so the caller (replace_map's cleanup, or a hang-up handler) can
// resubmit them against a fresh slot lookup.
func (s *Server) DrainAndClose() []*Command {
	var out []*Command
	for s.sent.Len() > 0 {
		out = append(out, s.sent.PopHead())
	}
	for s.pending.Len() > 0 {
		out = append(out, s.pending.PopHead())
	}
	s.closed = true
	if s.buf != nil {
		s.buf.Release()
	}
	if s.outbuf != nil {
		s.outbuf.Release()
	}
	return out
}
