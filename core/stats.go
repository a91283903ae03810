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

import "github.com/prometheus/client_golang/prometheus"

// ProxyStats is the proxy's prometheus surface, adapted from the
// teacher's core/stats.go (GlobalStats) to the commands/slot-map
// concepts this proxy actually has.
type ProxyStats struct {
	ClientConnections   prometheus.Gauge
	ServerConnections    prometheus.Gauge
	CommandsTotal        *prometheus.CounterVec
	RetriesTotal         *prometheus.CounterVec
	ClusterDownTotal     prometheus.Counter
	SlotMapRefreshTotal  *prometheus.CounterVec
	SlotMapCurrentEpoch  prometheus.Gauge
}

func NewProxyStats(reg prometheus.Registerer) *ProxyStats {
	s := &ProxyStats{
		ClientConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rcproxy_client_connections",
			Help: "Number of currently open client connections.",
		}),
		ServerConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rcproxy_server_connections",
			Help: "Number of currently open back-end server connections.",
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rcproxy_commands_total",
			Help: "Commands processed, by verb.",
		}, []string{"command"}),
		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rcproxy_retries_total",
			Help: "Command retries, by reason (moved/ask/clusterdown).",
		}, []string{"reason"}),
		ClusterDownTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rcproxy_cluster_down_total",
			Help: "Times a client request was answered with CLUSTERDOWN.",
		}),
		SlotMapRefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rcproxy_slotmap_refresh_total",
			Help: "Slot-map updater outcomes, by result (parsed/failed).",
		}, []string{"result"}),
		SlotMapCurrentEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rcproxy_slotmap_epoch",
			Help: "Monotonic counter bumped each time the slot map is replaced.",
		}),
	}
	reg.MustRegister(
		s.ClientConnections, s.ServerConnections, s.CommandsTotal,
		s.RetriesTotal, s.ClusterDownTotal, s.SlotMapRefreshTotal, s.SlotMapCurrentEpoch,
	)
	return s
}
