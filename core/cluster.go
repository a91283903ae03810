// Copyright (c) 2022 The rcproxy Authors
// Copyright (c) 2011 Twitter, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License"): you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations
// under the License.

package core

import (
	"net"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"rcproxy/core/pkg/logging"
)

const (
	linkStatusDisconnected = "disconnected"
	numSlots               = 16384
)

// Role distinguishes a master node (owns slots) from a slave (replica).
type Role uint8

const (
	RoleMaster Role = iota
	RoleSlave
)

// RedisNode is one line of a parsed "cluster nodes" reply.
type RedisNode struct {
	Name     string
	Addr     string
	Ip       string
	Port     int
	Role     Role
	MasterId string
	Flags    string
	Connected bool
	Slots    []SlotRange
}

// SlotRange is an inclusive [Start,End] range of slots owned by a node.
type SlotRange struct {
	Start int32
	End   int32
}

// clusterNodesQuery is the fixed encoding of "CLUSTER NODES".
var clusterNodesQuery = []byte("*2\r\n$7\r\ncluster\r\n$5\r\nnodes\r\n")

// parseClusterNodes turns a raw "cluster nodes" bulk-string body into a
// node list, applying the same line-filtering rules the teacher's parser
// does: skip short lines, skip noaddr/handshake/fail flags, skip
// disconnected links, require both a role flag and a parseable address.
// emptyHost is substituted for any node whose own address field is blank
// (it is describing itself to the node we dialed) per the updater's
// "inherit" policy (see DESIGN.md Open Questions).
func parseClusterNodes(body string, emptyHost string) ([]*RedisNode, error) {
	var nodes []*RedisNode
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, " ")
		// A slave line with no slot ranges has exactly 8 fields (nodeId,
		// host:port, flags, masterId, ping-sent, pong-recv, config-epoch,
		// link-state); slot-range fields only exist past index 7 for a
		// master. Requiring 9 here (see DESIGN.md) would drop every
		// valid slave line, breaking read-slave routing, so the floor is
		// 8. newRedisNode reads no fixed index past 7, so a line of 8 or
		// more fields is never rejected for its length there.
		if len(fields) < 8 {
			logging.Debugf("[updater] skipping node line, too few fields: %q", line)
			continue
		}
		flags := fields[2]
		if strings.Contains(flags, "noaddr") || strings.Contains(flags, "handshake") || strings.Contains(flags, "fail") {
			continue
		}
		if !strings.Contains(flags, "master") && !strings.Contains(flags, "slave") {
			continue
		}
		if strings.Contains(fields[7], linkStatusDisconnected) {
			continue
		}

		node, err := newRedisNode(fields, emptyHost)
		if err != nil {
			logging.Debugf("[updater] skipping node line %q: %s", line, err)
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func newRedisNode(fields []string, emptyHost string) (*RedisNode, error) {
	n := new(RedisNode)
	n.Name = fields[0]

	ip, port, host, err := parseNodeAddr(fields[1])
	if err != nil {
		return nil, err
	}
	if host == "" {
		host = emptyHost
		ip = hostOnly(emptyHost)
	}
	n.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	n.Ip = ip
	n.Port = port

	if strings.Contains(fields[2], "master") {
		n.Role = RoleMaster
	} else {
		n.Role = RoleSlave
	}
	n.Flags = fields[2]
	n.MasterId = fields[3]
	n.Connected = fields[7] == "connected"

	if n.Role == RoleSlave {
		return n, nil
	}
	for i := 8; i < len(fields); i++ {
		if strings.HasPrefix(fields[i], "[") {
			continue // migration marker, ignored per spec
		}
		start, end, err := parseSlotRange(fields[i])
		if err != nil {
			return nil, err
		}
		n.Slots = append(n.Slots, SlotRange{start, end})
	}
	return n, nil
}

// parseNodeAddr splits "ip:port@cport" (cport ignored) into ip, port, and
// host. CLUSTER NODES always reports a raw IP in this field (never a
// hostname), so ip and host are the same parsed string here; they only
// diverge in the caller's blank-address case, where host gets overwritten
// with the dialed emptyHost while ip is re-derived from it via hostOnly.
func parseNodeAddr(addr string) (ip string, port int, host string, err error) {
	withoutCPort := addr
	if at := strings.IndexByte(addr, '@'); at >= 0 {
		withoutCPort = addr[:at]
	}
	idx := strings.LastIndexByte(withoutCPort, ':')
	if idx < 0 {
		return "", 0, "", pkgerrors.Errorf("node addr %q missing port", addr)
	}
	host = withoutCPort[:idx]
	portStr := withoutCPort[idx+1:]
	port, err = strconv.Atoi(portStr)
	if err != nil {
		return "", 0, "", pkgerrors.Wrapf(err, "node addr %q bad port", addr)
	}
	return host, port, host, nil
}

func hostOnly(hostport string) string {
	h, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport
	}
	return h
}

func parseSlotRange(s string) (int32, int32, error) {
	parts := strings.SplitN(s, "-", 2)
	start, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return 0, 0, pkgerrors.Wrapf(err, "bad slot range %q", s)
	}
	if len(parts) == 1 {
		return int32(start), int32(start), nil
	}
	end, err := strconv.ParseInt(parts[1], 10, 32)
	if err != nil {
		return 0, 0, pkgerrors.Wrapf(err, "bad slot range %q", s)
	}
	return int32(start), int32(end), nil
}

// fullyCovers reports whether nodes' master slot ranges, unioned, cover
// every slot in [0, numSlots).
func fullyCovers(nodes []*RedisNode) bool {
	var covered [numSlots]bool
	count := 0
	for _, n := range nodes {
		if n.Role != RoleMaster {
			continue
		}
		for _, r := range n.Slots {
			for s := r.Start; s <= r.End; s++ {
				if !covered[s] {
					covered[s] = true
					count++
				}
			}
		}
	}
	return count == numSlots
}

// hasEmptyHost reports whether any node still carries an unresolved empty
// address after the inherit-host substitution (only possible if the
// updater itself had no usable host, e.g. a bare IP dial failure).
func hasEmptyHost(nodes []*RedisNode) bool {
	for _, n := range nodes {
		if n.Addr == "" || strings.HasPrefix(n.Addr, ":") {
			return true
		}
	}
	return false
}
