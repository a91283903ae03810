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
	"time"

	"github.com/stretchr/testify/assert"

	"rcproxy/core/codec"
)

// retireServer/retireClient/flushClient never touch w.poller, so they're
// safe to exercise against a bare newTestWorker() as long as every
// outstanding command resolves to nil (empty slot map) and so never
// reaches syncServerInterest.

func TestRetireServerSlaveMarksBanInsteadOfExpiringSlotMap(t *testing.T) {
	w := newTestWorker()
	w.servers = map[int]*Server{}
	s := NewServer(-1, "10.0.0.1:7000", true, &codec.AllocCounter{})
	w.servers[s.fd] = s

	w.retireServer(s)
	assert.False(t, w.slotMap.Expired())
	assert.False(t, w.bans.Allowed("10.0.0.1:7000", time.Now()))
}

func TestRetireServerMasterExpiresSlotMap(t *testing.T) {
	w := newTestWorker()
	w.servers = map[int]*Server{}
	s := NewServer(-1, "10.0.0.1:7000", false, &codec.AllocCounter{})
	w.servers[s.fd] = s

	w.retireServer(s)
	assert.True(t, w.slotMap.Expired())
}

func TestRetireServerDrainsOutstandingCommandsToUnrouted(t *testing.T) {
	w := newTestWorker()
	w.servers = map[int]*Server{}
	s := NewServer(-1, "10.0.0.1:7000", false, &codec.AllocCounter{})
	w.servers[s.fd] = s

	g := &CommandGroup{Awaiting: 1}
	cmd := &Command{Group: g, Req: []byte("*1\r\n$4\r\nPING\r\n"), KeySlot: 5}
	s.pending.PushTail(cmd)

	w.retireServer(s)
	assert.True(t, s.Closed())
	assert.Empty(t, w.servers)
	assert.Len(t, w.unrouted, 1)
	assert.Same(t, cmd, w.unrouted[0])
}

func TestRetireClientClosesAndRemovesFromMap(t *testing.T) {
	w := newTestWorker()
	c := NewClient(-1, "127.0.0.1:9999", &codec.AllocCounter{})
	w.clients = map[int]*Client{c.fd: c}

	w.retireClient(c)
	assert.True(t, c.Closed())
	assert.Empty(t, w.clients)
}

// flushClient on an invalid fd fails the write syscall before ever
// touching w.poller, so this is safe to exercise against a bare worker:
// it only proves the write-error path retires the client without
// panicking on a nil poller, not the happy-path interest sync (which
// needs a real fd/epoll instance).
func TestFlushClientRetiresOnWriteError(t *testing.T) {
	w := newTestWorker()
	c := NewClient(-1, "127.0.0.1:9999", &codec.AllocCounter{})
	w.clients = map[int]*Client{c.fd: c}
	c.readyGroups.PushTail(&CommandGroup{ForcedReply: []byte("+OK\r\n")})

	w.flushClient(c)
	assert.True(t, c.Closed())
	assert.Empty(t, w.clients)
}
