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

const fixtureClusterNodes = "00024e4759fc874a55362b9fe7472859cc4235c0 127.0.0.1:8300@18300 myself,master - 0 0 1 connected 0-5460 5643-10922\n" +
	"01ae6b52c5bcee240275d7b96ee0c33cb4615f01 127.0.0.1:8308@18308 slave 00024e4759fc874a55362b9fe7472859cc4235c0 0 1646637827924 5 connected\n" +
	"d5c94de92eff84aeab97eaf66079869b0e130f1e 127.0.0.1:8304@18304 master - 0 1646637824420 3 connected 10923-16383\n" +
	"731aaa0d9dae20695fe7e7702f14d5ad0e10219a 127.0.0.1:8302@18302 master - 0 1646637824921 2 connected 5461-10922\n" +
	"80651576a8fe05d3eca0678d3b39dc2b0a5315a0 127.0.0.1:8314@18314 slave d5c94de92eff84aeab97eaf66079869b0e130f1e 0 1646637829927 8 connected"

func TestParseClusterNodes(t *testing.T) {
	nodes, err := parseClusterNodes(fixtureClusterNodes, "127.0.0.1")
	assert.NoError(t, err)
	assert.Equal(t, 5, len(nodes))

	assert.Equal(t, "00024e4759fc874a55362b9fe7472859cc4235c0", nodes[0].Name)
	assert.Equal(t, "127.0.0.1:8300", nodes[0].Addr)
	assert.Equal(t, RoleMaster, nodes[0].Role)
	assert.Equal(t, 2, len(nodes[0].Slots))
	assert.Equal(t, int32(0), nodes[0].Slots[0].Start)
	assert.Equal(t, int32(5460), nodes[0].Slots[0].End)

	assert.Equal(t, RoleSlave, nodes[1].Role)
	assert.Equal(t, "00024e4759fc874a55362b9fe7472859cc4235c0", nodes[1].MasterId)

	assert.True(t, fullyCovers(nodes))
	assert.False(t, hasEmptyHost(nodes))
}

func TestParseClusterNodesSkipsFailedAndDisconnected(t *testing.T) {
	body := fixtureClusterNodes + "\n" +
		"8cb42cde94bf5c906d1696d337b04bb9da3cb205 127.0.0.1:8310@18310 slave,fail 731aaa0d9dae20695fe7e7702f14d5ad0e10219a 0 1646637828926 6 connected\n" +
		"85f4ad4e797ef653cadb943aaab804a7b986ac39 127.0.0.1:8312@18312 slave 731aaa0d9dae20695fe7e7702f14d5ad0e10219a 0 1646637823919 7 disconnected"

	nodes, err := parseClusterNodes(body, "127.0.0.1")
	assert.NoError(t, err)
	assert.Equal(t, 5, len(nodes))
}

func TestParseClusterNodesEmptyHostInheritsDialedAddr(t *testing.T) {
	body := "00024e4759fc874a55362b9fe7472859cc4235c0 :8300@18300 myself,master - 0 0 1 connected 0-16383"
	nodes, err := parseClusterNodes(body, "10.0.0.5")
	assert.NoError(t, err)
	assert.Equal(t, 1, len(nodes))
	assert.Equal(t, "10.0.0.5:8300", nodes[0].Addr)
	assert.False(t, hasEmptyHost(nodes))
}

func TestFullyCoversIncomplete(t *testing.T) {
	body := "00024e4759fc874a55362b9fe7472859cc4235c0 127.0.0.1:8300@18300 myself,master - 0 0 1 connected 0-100"
	nodes, err := parseClusterNodes(body, "127.0.0.1")
	assert.NoError(t, err)
	assert.False(t, fullyCovers(nodes))
}
