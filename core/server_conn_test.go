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

	"rcproxy/core/codec"
)

func newTestServer() *Server {
	return NewServer(-1, "10.0.0.1:7000", false, &codec.AllocCounter{})
}

func TestQueueInitWithNoCommandIsImmediatelyInitialized(t *testing.T) {
	s := newTestServer()
	s.QueueInit(nil, 0)
	assert.False(t, s.Initializing())
	assert.Equal(t, Initialized, s.initStatus)
}

func TestQueueInitArmsHandshakeAndReadWriteInterest(t *testing.T) {
	s := newTestServer()
	s.QueueInit([]byte("*2\r\n$4\r\nAUTH\r\n$4\r\npass\r\n"), 1)
	assert.True(t, s.Initializing())
	assert.Equal(t, InterestReadWrite, s.Interest())
}

func TestConsumeInitReplyFlipsToInitializedAfterExpectedSteps(t *testing.T) {
	s := newTestServer()
	s.QueueInit([]byte("AUTH\r\nREADONLY\r\n"), 2)

	s.ConsumeInitReply()
	assert.True(t, s.Initializing())
	assert.Equal(t, InterestReadWrite, s.Interest())

	s.ConsumeInitReply()
	assert.False(t, s.Initializing())
	assert.Equal(t, Initialized, s.initStatus)
	assert.Equal(t, InterestRead, s.Interest())
}

func TestConsumeInitReplyNeverGoesNegative(t *testing.T) {
	s := newTestServer()
	s.QueueInit([]byte("AUTH\r\n"), 1)
	s.ConsumeInitReply()
	s.ConsumeInitReply() // extra reply past the expected count must not panic or underflow
	assert.Equal(t, Initialized, s.initStatus)
}

func TestEnqueueFlipsReadOnlyInterestToReadWrite(t *testing.T) {
	s := newTestServer()
	s.interest = InterestRead
	cmd := &Command{Req: []byte("*1\r\n$4\r\nPING\r\n")}

	s.Enqueue(cmd)
	assert.Equal(t, InterestReadWrite, s.Interest())
	assert.Equal(t, 1, s.pending.Len())
}

func TestEnqueueLeavesReadWriteInterestAlone(t *testing.T) {
	s := newTestServer()
	s.interest = InterestReadWrite
	s.Enqueue(&Command{Req: []byte("*1\r\n$4\r\nPING\r\n")})
	assert.Equal(t, InterestReadWrite, s.Interest())
}

func TestDrainAndCloseReturnsSentBeforePendingAndMarksClosed(t *testing.T) {
	s := newTestServer()
	sentCmd := &Command{Req: []byte("sent")}
	pendingCmd := &Command{Req: []byte("pending")}
	s.sent.PushTail(sentCmd)
	s.pending.PushTail(pendingCmd)

	out := s.DrainAndClose()
	assert.Equal(t, []*Command{sentCmd, pendingCmd}, out)
	assert.True(t, s.Closed())
	assert.Equal(t, 0, s.sent.Len())
	assert.Equal(t, 0, s.pending.Len())
}

func TestDrainAndCloseOnIdleServerReturnsNil(t *testing.T) {
	s := newTestServer()
	out := s.DrainAndClose()
	assert.Nil(t, out)
	assert.True(t, s.Closed())
}
