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

func dialStub(dialed *[]string) func(addr string, isSlave bool) *Server {
	return func(addr string, isSlave bool) *Server {
		*dialed = append(*dialed, addr)
		return &Server{fd: len(*dialed), addr: addr, isSlave: isSlave}
	}
}

func TestSlotMapReplaceMapTracksSlavesAndSlots(t *testing.T) {
	m := NewSlotMap()
	var dialed []string

	nodes := []*RedisNode{
		{Name: "m1", Addr: "10.0.0.1:7000", Role: RoleMaster, Slots: []SlotRange{{Start: 0, End: 8191}}},
		{Name: "m2", Addr: "10.0.0.2:7000", Role: RoleMaster, Slots: []SlotRange{{Start: 8192, End: 16383}}},
		{Name: "s1", Addr: "10.0.0.3:7000", Role: RoleSlave, MasterId: "m1"},
		{Name: "s2", Addr: "10.0.0.4:7000", Role: RoleSlave, MasterId: "m2"},
	}

	dropped := m.replaceMap(nodes, dialStub(&dialed))
	assert.Empty(t, dropped)
	assert.Equal(t, 4, len(dialed))

	assert.NotNil(t, m.Get(0))
	assert.Equal(t, "10.0.0.1:7000", m.Get(0).Addr())
	assert.Equal(t, "10.0.0.2:7000", m.Get(8192).Addr())

	assert.Equal(t, []string{"10.0.0.3:7000"}, m.Slaves("10.0.0.1:7000"))
	assert.Equal(t, []string{"10.0.0.4:7000"}, m.Slaves("10.0.0.2:7000"))
	assert.False(t, m.Expired())
}

func TestSlotMapReplaceMapReusesSurvivingServerAndReportsDropped(t *testing.T) {
	m := NewSlotMap()
	var dialed []string

	first := []*RedisNode{
		{Name: "m1", Addr: "10.0.0.1:7000", Role: RoleMaster, Slots: []SlotRange{{Start: 0, End: 16383}}},
	}
	m.replaceMap(first, dialStub(&dialed))
	survivingSrv := m.Get(0)

	second := []*RedisNode{
		{Name: "m1", Addr: "10.0.0.1:7000", Role: RoleMaster, Slots: []SlotRange{{Start: 0, End: 8191}}},
		{Name: "m2", Addr: "10.0.0.2:7000", Role: RoleMaster, Slots: []SlotRange{{Start: 8192, End: 16383}}},
	}
	dialed = nil
	dropped := m.replaceMap(second, dialStub(&dialed))

	assert.Empty(t, dropped)
	assert.Same(t, survivingSrv, m.Get(0))
	assert.Equal(t, []string{"10.0.0.2:7000"}, dialed)

	third := []*RedisNode{
		{Name: "m2", Addr: "10.0.0.2:7000", Role: RoleMaster, Slots: []SlotRange{{Start: 0, End: 16383}}},
	}
	dropped = m.replaceMap(third, dialStub(&dialed))
	assert.Equal(t, 1, len(dropped))
	assert.Same(t, survivingSrv, dropped[0])
}
