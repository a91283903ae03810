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
	"math/rand"
	"strconv"

	"rcproxy/core/codec"
	"rcproxy/core/pkg/hashkit"
)

// buildSpecial dispatches the commands whose client-visible shape differs
// from "one verb, one key, one server round trip": MGET/DEL fan out,
// MSET pairs up, RENAME may need three sequential legs, SUBSCRIBE hands
// the socket off, PUBLISH doesn't care which shard answers.
func (s *Splitter) buildSpecial(cmd codec.Command, args [][]byte) (*CommandGroup, error) {
	switch cmd {
	case codec.ReqMget:
		return buildFanOut(args[1:], "GET", func(sub []byte) [][]byte { return [][]byte{[]byte("GET"), sub} })
	case codec.ReqDel:
		return buildFanOut(args[1:], "DEL", func(sub []byte) [][]byte { return [][]byte{[]byte("DEL"), sub} })
	case codec.ReqMset:
		return buildMset(args[1:])
	case codec.ReqRename:
		return buildRename(args[1:])
	case codec.ReqSubscribe, codec.ReqPsubscribe:
		g := CommandGroupPool.Get()
		g.LongConnHandoff = true
		return g, nil
	case codec.ReqPublish:
		if len(args) != 3 {
			return directResponseGroup(codec.ErrMsgReqWrongArgumentsNumber), nil
		}
		return buildPublish(args[1], args[2]), nil
	}
	return directResponseGroup(unknownCommandError(args[0])), nil
}

// buildFanOut implements MGET/DEL: one OneSlot Command per key, rewritten
// to a two-element GET/DEL frame, wrapped in an array-prefixed group so
// the client sees a single aggregate reply.
func buildFanOut(keys [][]byte, verb string, rewrite func([]byte) [][]byte) (*CommandGroup, error) {
	if len(keys) == 0 {
		return directResponseGroup(codec.ErrMsgReqWrongArgumentsNumber), nil
	}
	g := CommandGroupPool.Get()
	g.Prefix = []byte("*" + strconv.Itoa(len(keys)) + "\r\n")
	for _, k := range keys {
		c := CommandPool.Get()
		c.Kind = OneSlot
		c.NeedSend = true
		c.KeySlot = int32(hashkit.SlotOf(k))
		c.Req = encodeArray(rewrite(k))
		c.Group = g
		g.Commands = append(g.Commands, c)
	}
	return g, nil
}

// buildMset implements MSET: one OneSlot Command per (k,v) pair as
// "SET k v"; the client always sees +OK\r\n once every leg answers,
// regardless of individual sub-results.
func buildMset(kv [][]byte) (*CommandGroup, error) {
	if len(kv) == 0 || len(kv)%2 != 0 {
		return directResponseGroup(codec.ErrMsgReqWrongArgumentsNumber), nil
	}
	g := CommandGroupPool.Get()
	g.ForcedReply = codec.OK.Bytes()
	for i := 0; i < len(kv); i += 2 {
		k, v := kv[i], kv[i+1]
		c := CommandPool.Get()
		c.Kind = OneSlot
		c.NeedSend = true
		c.KeySlot = int32(hashkit.SlotOf(k))
		c.Req = encodeArray([][]byte{[]byte("SET"), k, v})
		c.Group = g
		g.Commands = append(g.Commands, c)
	}
	return g, nil
}

// buildRename implements RENAME a b. Same-slot keys collapse to a single
// OneSlot pass-through; cross-slot keys become a MultiStep that the
// engine's response dispatch advances leg by leg (GET -> SET -> DEL).
func buildRename(args [][]byte) (*CommandGroup, error) {
	if len(args) != 2 {
		return directResponseGroup(codec.ErrMsgReqWrongArgumentsNumber), nil
	}
	a, b := args[0], args[1]
	slotA := int32(hashkit.SlotOf(a))
	slotB := int32(hashkit.SlotOf(b))

	g := CommandGroupPool.Get()
	c := CommandPool.Get()
	c.Group = g
	g.Commands = append(g.Commands, c)

	if slotA == slotB {
		c.Kind = OneSlot
		c.NeedSend = true
		c.KeySlot = slotA
		c.Req = encodeArray([][]byte{[]byte("RENAME"), a, b})
		return g, nil
	}

	c.Kind = MultiStep
	c.NeedSend = true
	c.Stage = RenameGet
	c.RenameKey = string(a)
	c.RenameVal = string(b)
	c.RenameKeySlot = slotA
	c.RenameValSlot = slotB
	c.KeySlot = slotA
	c.Req = encodeArray([][]byte{[]byte("GET"), a})
	return g, nil
}

// AdvanceRename moves a MultiStep RENAME command to its next leg after
// its previous leg's reply lands. Returns (nextReq, nextSlot, done,
// directErr). done=true with a non-nil directErr means the group's
// final client reply is directErr (GET returned nil); done=true with a
// nil directErr after the DEL leg means the final reply is "+OK\r\n".
func AdvanceRename(c *Command, reply []byte) (nextReq []byte, nextSlot int32, done bool, directErr []byte) {
	switch c.Stage {
	case RenameGet:
		if len(reply) >= 5 && reply[0] == '$' && reply[1] == '-' && reply[2] == '1' {
			return nil, 0, true, []byte("-ERR no such key\r\n")
		}
		c.renameGetVal = extractBulkValue(reply)
		c.Stage = RenameSet
		return encodeArray([][]byte{[]byte("SET"), []byte(c.RenameVal), c.renameGetVal}), c.RenameValSlot, false, nil
	case RenameSet:
		c.Stage = RenameDel
		return encodeArray([][]byte{[]byte("DEL"), []byte(c.RenameKey)}), c.RenameKeySlot, false, nil
	default: // RenameDel
		return nil, 0, true, nil
	}
}

// extractBulkValue pulls the payload out of a "$len\r\nvalue\r\n" frame.
func extractBulkValue(reply []byte) []byte {
	nl := -1
	for i, b := range reply {
		if b == '\n' {
			nl = i
			break
		}
	}
	if nl < 0 || nl+1 >= len(reply) {
		return nil
	}
	body := reply[nl+1:]
	if len(body) >= 2 {
		body = body[:len(body)-2]
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out
}

// buildPublish routes PUBLISH to a pseudo-random slot: the spec treats
// the back-end cluster's pub/sub fan-out as opaque, so any live shard
// will do.
func buildPublish(channel, msg []byte) *CommandGroup {
	c := CommandPool.Get()
	c.Kind = OneSlot
	c.NeedSend = true
	c.KeySlot = int32(rand.Intn(numSlots))
	c.Req = encodeArray([][]byte{[]byte("PUBLISH"), channel, msg})

	g := CommandGroupPool.Get()
	g.Commands = append(g.Commands, c)
	c.Group = g
	return g
}
