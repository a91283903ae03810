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
)

func TestCommandGroupQueueFIFOOrder(t *testing.T) {
	var q CommandGroupQueue
	a := &CommandGroup{}
	b := &CommandGroup{}
	c := &CommandGroup{}

	q.PushTail(a)
	q.PushTail(b)
	q.PushTail(c)
	assert.Equal(t, 3, q.Len())

	assert.Same(t, a, q.PopHead())
	assert.Same(t, b, q.PopHead())
	assert.Same(t, c, q.PopHead())
	assert.True(t, q.Empty())
	assert.Nil(t, q.PopHead())
}

func TestCommandGroupQueueAllDone(t *testing.T) {
	var q CommandGroupQueue
	done := &CommandGroup{Awaiting: 0}
	pending := &CommandGroup{Awaiting: 1}

	q.PushTail(done)
	assert.True(t, q.AllDone())

	q.PushTail(pending)
	assert.False(t, q.AllDone())
}

func TestCommandQueueFIFOOrder(t *testing.T) {
	var q CommandQueue
	a := &Command{Type: 1}
	b := &Command{Type: 2}

	q.PushTail(a)
	q.PushTail(b)
	assert.Equal(t, 2, q.Len())
	assert.Same(t, a, q.PopHead())
	assert.Same(t, b, q.PopHead())
	assert.True(t, q.Empty())
}

func TestCommandGroupAllDone(t *testing.T) {
	g := &CommandGroup{Awaiting: 2}
	assert.False(t, g.AllDone())
	g.Awaiting = 0
	assert.True(t, g.AllDone())
}

func TestCommandPoolResetsReqButKeepsCapacity(t *testing.T) {
	c := CommandPool.Get()
	c.Req = append(c.Req, "GET foo"...)
	c.KeySlot = 42
	cap1 := cap(c.Req)

	CommandPool.Put(c)
	c2 := CommandPool.Get()
	assert.Equal(t, 0, len(c2.Req))
	assert.Equal(t, int32(0), c2.KeySlot)
	assert.LessOrEqual(t, cap1, cap(c2.Req)+cap1)
}

func TestCommandGroupPoolResetsCommandsButKeepsCapacity(t *testing.T) {
	g := CommandGroupPool.Get()
	g.Commands = append(g.Commands, &Command{})
	g.Done = true

	CommandGroupPool.Put(g)
	g2 := CommandGroupPool.Get()
	assert.Equal(t, 0, len(g2.Commands))
	assert.False(t, g2.Done)
}

func TestCommandReqStringStripsCRLF(t *testing.T) {
	c := &Command{Req: []byte("*1\r\n$4\r\nPING\r\n")}
	assert.Equal(t, "[*1 $4 PING ]", c.ReqString())
}

func TestCommandReqStringEmpty(t *testing.T) {
	c := &Command{}
	assert.Equal(t, "", c.ReqString())
}
