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
	"time"
)

// banState mirrors one entry of the teacher's ProxyPool ban bookkeeping
// (LiftBanOrder/AutoBanFlag/LiftBanTime): an address that dropped its
// connection is excluded from slave-read candidates for an
// exponentially growing window.
type banState struct {
	order  int
	liftAt time.Time
}

// BanTracker is one worker's view of which slave addresses are
// currently serving their ban window. Not safe for concurrent use —
// like every other per-worker structure in this proxy, it's only ever
// touched from its own reactor goroutine.
type BanTracker struct {
	policy *Policy
	states map[string]*banState
}

func NewBanTracker(p *Policy) *BanTracker {
	return &BanTracker{policy: p, states: make(map[string]*banState)}
}

// MarkFailed records a dial/hangup against addr and starts (or extends)
// its ban window, doubling with every consecutive failure up to
// MaxBanOrder — the teacher's `1<<pool.LiftBanOrder` backoff.
func (b *BanTracker) MarkFailed(addr string, now time.Time) {
	st, ok := b.states[addr]
	if !ok {
		st = &banState{}
		b.states[addr] = st
	}
	st.liftAt = now.Add(b.policy.BanBaseBackoff * time.Duration(int64(1)<<uint(st.order)))
	if st.order < b.policy.MaxBanOrder {
		st.order++
	}
}

// MarkOK clears addr's ban window entirely, the same reset the teacher
// applies once `pool.Get()` succeeds again.
func (b *BanTracker) MarkOK(addr string) {
	if st, ok := b.states[addr]; ok {
		st.order = 0
		st.liftAt = time.Time{}
	}
}

// Allowed reports whether addr is out of its ban window (or was never
// banned) as of now.
func (b *BanTracker) Allowed(addr string, now time.Time) bool {
	st, ok := b.states[addr]
	if !ok {
		return true
	}
	return !st.liftAt.After(now)
}

// PickReadAddr chooses where to route a read-only command: a live,
// unbanned slave at random if slave reads are enabled and any exist,
// falling back to the master otherwise. Grounded on the teacher's
// listenServer.route, including its live-slaves-first, master-as-
// fallback shape; rnd lets callers (and tests) control the random pick
// deterministically.
func (p *Policy) PickReadAddr(masterAddr string, slaveAddrs []string, bans *BanTracker, now time.Time, rnd *rand.Rand) (addr string, isSlave bool) {
	if p.DisableSlave || len(slaveAddrs) == 0 {
		return masterAddr, false
	}

	live := make([]string, 0, len(slaveAddrs))
	for _, s := range slaveAddrs {
		if bans.Allowed(s, now) {
			live = append(live, s)
		}
	}
	if len(live) == 0 {
		return masterAddr, false
	}
	return live[rnd.Intn(len(live))], true
}
