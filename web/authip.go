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

	"rcproxy/core/authip"
)

type authIPResponse struct {
	Enabled bool     `json:"enabled"`
	Entries []string `json:"entries"`
}

// handleAuthIP reports the currently loaded IP allow-list, letting an
// operator confirm a hot reload actually took without tailing logs. A
// nil watcher (IP filtering disabled entirely) reports enabled=false.
func handleAuthIP(w *authip.Watcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		if w == nil {
			c.JSON(http.StatusOK, authIPResponse{})
			return
		}
		enabled, entries := w.Snapshot()
		c.JSON(http.StatusOK, authIPResponse{Enabled: enabled, Entries: entries})
	}
}
