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

// Package web is the operator-facing HTTP surface: cluster topology,
// the live IP allow-list, build version, prometheus metrics, and
// pprof — none of it on the client data path.
package web

import (
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rcproxy/core"
	"rcproxy/core/authip"
)

// BuildInfo carries the linker-stamped version fields main.go sets.
type BuildInfo struct {
	Tag       string
	CommitSHA string
	BuildTime string
}

// Init registers every route on ginSrv, closing over eng/ipWatcher/info
// so handlers stay plain functions instead of methods on a god struct —
// matches the teacher's package-level handler shape.
func Init(ginSrv *gin.Engine, eng *core.Engine, ipWatcher *authip.Watcher, info BuildInfo) {
	pprof.Register(ginSrv)
	ginSrv.GET("/cluster/nodes", handleClusterNodes(eng))
	ginSrv.GET("/authip", handleAuthIP(ipWatcher))
	ginSrv.GET("/version", handleVersion(info))
	ginSrv.GET("/debug/node", handleDebugNode())
	ginSrv.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
