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

// SlotMap is the fixed array of numSlots Server pointers plus an auxiliary
// address index, mutated only by replace_map.
type SlotMap struct {
	slots   [numSlots]*Server
	byAddr  map[string]*Server
	slaves  map[string][]string // master addr -> replica addrs
	expired bool
}

func NewSlotMap() *SlotMap {
	return &SlotMap{byAddr: make(map[string]*Server), slaves: make(map[string][]string)}
}

// Slaves returns the replica addresses currently known for the master at
// masterAddr, or nil if it has none (or masterAddr is not a known master).
func (m *SlotMap) Slaves(masterAddr string) []string {
	return m.slaves[masterAddr]
}

func (m *SlotMap) Get(slot int32) *Server {
	if slot < 0 || slot >= numSlots {
		return nil
	}
	return m.slots[slot]
}

func (m *SlotMap) ByAddr(addr string) (*Server, bool) {
	s, ok := m.byAddr[addr]
	return s, ok
}

func (m *SlotMap) Expired() bool   { return m.expired }
func (m *SlotMap) MarkExpired()    { m.expired = true }
func (m *SlotMap) clearExpired()   { m.expired = false }

// Addrs returns every address currently present in the map, used to seed
// the updater's candidate set when a refresh needs to enumerate known
// nodes rather than the original configured seed.
func (m *SlotMap) Addrs() []string {
	out := make([]string, 0, len(m.byAddr))
	for addr := range m.byAddr {
		out = append(out, addr)
	}
	return out
}

// replaceMap installs a new slot array built from every node in nodes
// (masters own slots, slaves are indexed for read-routing), reusing any
// Server already present at a surviving address (so its pending/sent
// queues and live fd are preserved) and dialing a fresh Server for any
// newly seen address via dial(addr, isSlave). It returns the Servers
// that were present in the old map but are absent from the new one —
// the caller must drain and close exactly these.
func (m *SlotMap) replaceMap(nodes []*RedisNode, dial func(addr string, isSlave bool) *Server) []*Server {
	newByAddr := make(map[string]*Server)
	var newSlots [numSlots]*Server
	nameToAddr := make(map[string]string)

	for _, n := range nodes {
		if n.Role != RoleMaster {
			continue
		}
		nameToAddr[n.Name] = n.Addr
		srv := m.dialed(newByAddr, n.Addr, false, dial)
		for _, r := range n.Slots {
			for s := r.Start; s <= r.End; s++ {
				newSlots[s] = srv
			}
		}
	}

	newSlaves := make(map[string][]string)
	for _, n := range nodes {
		if n.Role != RoleSlave {
			continue
		}
		masterAddr, ok := nameToAddr[n.MasterId]
		if !ok {
			continue
		}
		m.dialed(newByAddr, n.Addr, true, dial)
		newSlaves[masterAddr] = append(newSlaves[masterAddr], n.Addr)
	}

	var dropped []*Server
	for addr, srv := range m.byAddr {
		if _, stillPresent := newByAddr[addr]; !stillPresent {
			dropped = append(dropped, srv)
		}
	}

	m.slots = newSlots
	m.byAddr = newByAddr
	m.slaves = newSlaves
	m.clearExpired()
	return dropped
}

func (m *SlotMap) dialed(newByAddr map[string]*Server, addr string, isSlave bool, dial func(string, bool) *Server) *Server {
	if srv, ok := newByAddr[addr]; ok {
		return srv
	}
	srv, ok := m.byAddr[addr]
	if !ok {
		srv = dial(addr, isSlave)
	}
	newByAddr[addr] = srv
	return srv
}
