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

package server

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPickReadAddrNoSlaves(t *testing.T) {
	p := New()
	addr, isSlave := p.PickReadAddr("master:1", nil, NewBanTracker(p), time.Now(), rand.New(rand.NewSource(1)))
	assert.Equal(t, "master:1", addr)
	assert.False(t, isSlave)
}

func TestPickReadAddrDisabled(t *testing.T) {
	p := New(WithDisableRedisSlave(true))
	addr, isSlave := p.PickReadAddr("master:1", []string{"slave:1"}, NewBanTracker(p), time.Now(), rand.New(rand.NewSource(1)))
	assert.Equal(t, "master:1", addr)
	assert.False(t, isSlave)
}

func TestPickReadAddrPicksLiveSlave(t *testing.T) {
	p := New()
	addr, isSlave := p.PickReadAddr("master:1", []string{"slave:1"}, NewBanTracker(p), time.Now(), rand.New(rand.NewSource(1)))
	assert.Equal(t, "slave:1", addr)
	assert.True(t, isSlave)
}

func TestPickReadAddrSkipsBannedSlave(t *testing.T) {
	p := New(WithBanBaseBackoff(time.Minute))
	bans := NewBanTracker(p)
	now := time.Now()
	bans.MarkFailed("slave:1", now)

	addr, isSlave := p.PickReadAddr("master:1", []string{"slave:1", "slave:2"}, bans, now, rand.New(rand.NewSource(1)))
	assert.Equal(t, "slave:2", addr)
	assert.True(t, isSlave)
}

func TestPickReadAddrFallsBackToMasterWhenAllSlavesBanned(t *testing.T) {
	p := New(WithBanBaseBackoff(time.Minute))
	bans := NewBanTracker(p)
	now := time.Now()
	bans.MarkFailed("slave:1", now)

	addr, isSlave := p.PickReadAddr("master:1", []string{"slave:1"}, bans, now, rand.New(rand.NewSource(1)))
	assert.Equal(t, "master:1", addr)
	assert.False(t, isSlave)
}

func TestBanTrackerLiftsAfterWindow(t *testing.T) {
	p := New(WithBanBaseBackoff(10 * time.Millisecond))
	bans := NewBanTracker(p)
	now := time.Now()
	bans.MarkFailed("slave:1", now)

	assert.False(t, bans.Allowed("slave:1", now))
	assert.True(t, bans.Allowed("slave:1", now.Add(time.Second)))
}

func TestBanTrackerMarkOKLiftsBanImmediately(t *testing.T) {
	p := New(WithBanBaseBackoff(time.Minute))
	bans := NewBanTracker(p)
	now := time.Now()
	bans.MarkFailed("slave:1", now)
	assert.False(t, bans.Allowed("slave:1", now))

	bans.MarkOK("slave:1")
	assert.True(t, bans.Allowed("slave:1", now))
}

func TestBanTrackerMarkOKResetsEscalationOrder(t *testing.T) {
	p := New(WithBanBaseBackoff(time.Second))
	bans := NewBanTracker(p)
	now := time.Now()
	bans.MarkFailed("slave:1", now) // order 0 -> 1, ban window = 1s
	bans.MarkOK("slave:1")          // order reset to 0

	bans.MarkFailed("slave:1", now) // order starts at 0 again, not 1
	assert.True(t, bans.Allowed("slave:1", now.Add(2*time.Second)))
}
