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
	"time"

	"github.com/gin-gonic/gin"

	"rcproxy/core/pkg/redis"
)

// handleDebugNode lets an operator issue CLUSTER NODES/INFO/PING
// against one specific node address, bypassing the proxy's own slot
// routing entirely — useful when the proxy's installed slot map
// disagrees with what a node itself reports. Query params: addr
// (required, host:port), cmd (one of "nodes", "info", "ping"; default
// "nodes").
func handleDebugNode() gin.HandlerFunc {
	return func(c *gin.Context) {
		addr := c.Query("addr")
		if addr == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "addr is required"})
			return
		}

		conn, err := redis.Dial(addr, 2*time.Second)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		defer conn.Close()

		var reply interface{}
		switch c.DefaultQuery("cmd", "nodes") {
		case "info":
			reply, err = conn.Info(c.Query("section"))
		case "ping":
			reply, err = conn.Do("PING")
		default:
			reply, err = conn.Do("CLUSTER", "NODES")
		}
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"addr": addr, "reply": reply})
	}
}
