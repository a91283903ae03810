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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rcproxy/core/codec"
)

func newTestClient(t *testing.T) *Client {
	c := NewClient(-1, "127.0.0.1:1234", &codec.AllocCounter{})
	t.Cleanup(c.Close)
	return c
}

func oneSlotGroup(req string, slot int32) *CommandGroup {
	cmd := &Command{Kind: OneSlot, NeedSend: true, Req: []byte(req), KeySlot: slot}
	g := &CommandGroup{Commands: []*Command{cmd}}
	cmd.Group = g
	return g
}

func TestDispatchGroupRoutesToResolvedServer(t *testing.T) {
	c := newTestClient(t)
	srv := NewServer(1, "10.0.0.1:7000", false, &codec.AllocCounter{})
	g := oneSlotGroup("*1\r\n$4\r\nPING\r\n", 5)

	unrouted := c.dispatchGroup(g, func(cmd *Command) *Server { return srv })
	assert.Empty(t, unrouted)
	assert.Equal(t, 1, srv.pending.Len())
	assert.Contains(t, c.peers, srv)
	assert.Equal(t, 1, g.Awaiting)
	assert.Equal(t, 1, c.awaitingGroups.Len())
}

func TestDispatchGroupParksUnroutedWhenLookupFails(t *testing.T) {
	c := newTestClient(t)
	g := oneSlotGroup("*1\r\n$4\r\nPING\r\n", 5)

	unrouted := c.dispatchGroup(g, func(cmd *Command) *Server { return nil })
	require.Len(t, unrouted, 1)
	assert.Same(t, g.Commands[0], unrouted[0])
	assert.Equal(t, 1, c.awaitingGroups.Len())
}

func TestDispatchGroupLongConnHandoffDetachesWithoutRouting(t *testing.T) {
	c := newTestClient(t)
	g := &CommandGroup{LongConnHandoff: true}

	unrouted := c.dispatchGroup(g, func(cmd *Command) *Server { return nil })
	assert.Nil(t, unrouted)
	assert.True(t, c.detached)
	assert.Equal(t, 1, c.awaitingGroups.Len())
}

func TestPromoteReadyMovesOnlyFullyAnsweredGroups(t *testing.T) {
	c := newTestClient(t)
	done := &CommandGroup{Awaiting: 0}
	pending := &CommandGroup{Awaiting: 1}

	c.awaitingGroups.PushTail(done)
	c.awaitingGroups.PushTail(pending)
	c.promoteReady()

	assert.Equal(t, 1, c.readyGroups.Len())
	assert.Same(t, done, c.readyGroups.head)
	assert.Equal(t, 1, c.awaitingGroups.Len())
}

func TestPromoteReadyDoesNothingWhileReadyGroupsStillPending(t *testing.T) {
	c := newTestClient(t)
	alreadyReady := &CommandGroup{}
	c.readyGroups.PushTail(alreadyReady)

	done := &CommandGroup{Awaiting: 0}
	c.awaitingGroups.PushTail(done)
	c.promoteReady()

	assert.Equal(t, 1, c.readyGroups.Len())
	assert.Equal(t, 1, c.awaitingGroups.Len())
}

func TestBuildWriteVectorHonorsPrefixAndForcedReply(t *testing.T) {
	c := newTestClient(t)
	mget := &CommandGroup{
		Prefix: []byte("*2\r\n"),
		Commands: []*Command{
			{RspBody: []byte("$1\r\na\r\n")},
			{RspBody: []byte("$1\r\nb\r\n")},
		},
	}
	mset := &CommandGroup{ForcedReply: []byte("+OK\r\n"), Commands: []*Command{{RspBody: []byte("ignored")}}}

	c.readyGroups.PushTail(mget)
	c.readyGroups.PushTail(mset)

	bufs := c.buildWriteVector()
	var got []string
	for _, b := range bufs {
		got = append(got, string(b))
	}
	assert.Equal(t, []string{"*2\r\n", "$1\r\na\r\n", "$1\r\nb\r\n", "+OK\r\n"}, got)
}

func TestBuildWriteVectorUsesErrorOverBody(t *testing.T) {
	c := newTestClient(t)
	g := &CommandGroup{Commands: []*Command{{RspErr: codec.ErrCommandForbidden, RspBody: []byte("should not appear")}}}
	c.readyGroups.PushTail(g)

	bufs := c.buildWriteVector()
	require.Len(t, bufs, 1)
	assert.Equal(t, string(codec.ErrCommandForbidden), string(bufs[0]))
}

func TestQueueReadyGroupsDrainsGroupsIntoOutbufAndClearsPeers(t *testing.T) {
	c := newTestClient(t)
	srv := NewServer(1, "10.0.0.1:7000", false, &codec.AllocCounter{})
	c.addPeer(srv)
	c.readyGroups.PushTail(&CommandGroup{ForcedReply: []byte("+OK\r\n")})

	c.queueReadyGroups()
	assert.Equal(t, 0, c.readyGroups.Len())
	assert.Empty(t, c.peers)
	assert.Equal(t, "+OK\r\n", string(c.outbuf.PeekAll()))
}

func TestQueueReadyGroupsPreservesOrderAcrossMultipleGroups(t *testing.T) {
	c := newTestClient(t)
	c.readyGroups.PushTail(&CommandGroup{ForcedReply: []byte("+FIRST\r\n")})
	c.readyGroups.PushTail(&CommandGroup{ForcedReply: []byte("+SECOND\r\n")})

	c.queueReadyGroups()
	assert.Equal(t, "+FIRST\r\n+SECOND\r\n", string(c.outbuf.PeekAll()))
}

func TestClientCloseCancelsQueuedGroupsOnce(t *testing.T) {
	c := NewClient(-1, "127.0.0.1:1234", &codec.AllocCounter{})
	g := oneSlotGroup("*1\r\n$4\r\nPING\r\n", 1)
	c.parsedGroups.PushTail(g)

	c.Close()
	assert.Nil(t, g.Commands[0].Group)
	assert.True(t, c.Closed())

	// Idempotent: a second Close must not panic on an already-released buffer.
	c.Close()
}
