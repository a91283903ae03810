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
	"fmt"
	"strconv"

	"rcproxy/core/codec"
)

// authCmdFormat matches the teacher's AuthCmd constant: a RESP array of
// two bulk strings, "auth" and the configured password.
const authCmdFormat = "*2\r\n$4\r\nauth\r\n$%s\r\n%s\r\n"

// readOnlyCmd must be sent once on every connection opened to a replica
// before any application traffic, or the node rejects reads with
// "READONLY You can't write against a read only replica."  Redis
// actually only needs this to relax its own write guard for the
// *opposite* case, but cluster slaves still require it to permit any
// command at all when the node is configured strict.
var readOnlyCmd = []byte("*1\r\n$8\r\nREADONLY\r\n")

// InitCommand builds the handshake bytes a freshly dialed Server
// connection must send before the first application command, and
// reports how many simple-string replies (+OK) that handshake expects
// in return. Mirrors the teacher's OnSOpened: AUTH first if a password
// is configured, then READONLY if the connection is to a replica.
func (p *Policy) InitCommand(isSlave bool) (cmd []byte, steps int) {
	var out []byte
	if len(p.Password) > 0 {
		out = append(out, []byte(fmt.Sprintf(authCmdFormat, strconv.Itoa(len(p.Password)), p.Password))...)
		steps++
	}
	if isSlave {
		out = append(out, readOnlyCmd...)
		steps++
	}
	return out, steps
}

// IsReadCommand reports whether cmdType sits below the write-command
// partition in codec's Command enum — the same threshold test the
// teacher's route() uses (`r.Type > codec.ReqWriteCmdStart`).
func IsReadCommand(cmdType codec.Command) bool {
	return cmdType < codec.ReqWriteCmdStart
}
