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

package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rcproxy/core"
)

// clusterNodeView is one master plus its known replicas, grouped the
// same way the teacher's HandleClusters response shapes ClusterNodeRes.
type clusterNodeView struct {
	Name    string     `json:"name"`
	Addr    string     `json:"addr"`
	Slots   [][2]int32 `json:"slots,omitempty"`
	Slavers []string   `json:"slavers,omitempty"`
}

// handleClusterNodes reports the proxy's most recently installed slot
// map: every master node, its owned slot ranges, and its replicas.
func handleClusterNodes(eng *core.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		nodes := eng.ClusterNodes()

		byName := make(map[string]*clusterNodeView)
		var out []*clusterNodeView
		for _, n := range nodes {
			if n.Role != core.RoleMaster {
				continue
			}
			v := &clusterNodeView{Name: n.Name, Addr: n.Addr}
			for _, r := range n.Slots {
				v.Slots = append(v.Slots, [2]int32{r.Start, r.End})
			}
			byName[n.Name] = v
			out = append(out, v)
		}
		for _, n := range nodes {
			if n.Role != core.RoleSlave {
				continue
			}
			if m, ok := byName[n.MasterId]; ok {
				m.Slavers = append(m.Slavers, n.Addr)
			}
		}

		c.JSON(http.StatusOK, out)
	}
}
