// Copyright (c) 2022 The rcproxy Authors
// Copyright (c) 2011 Twitter, Inc.
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

package codec

// Command identifies a verb once it has been recognized from the wire.
type Command uint32

// NArgs encodes how many arguments after the verb (the key included) a
// standard command takes, or a negative sentinel for variable-length
// commands.
type NArgs int

const (
	UNKNOWN   Command = iota
	ReqExists         /* redis commands - keys */
	ReqTtl
	ReqPttl
	ReqType
	ReqDump
	ReqBitcount /* redis requests - string */
	ReqGet
	ReqGetbit
	ReqGetrange
	ReqStrlen
	ReqHexists /* redis requests - hash */
	ReqHget
	ReqHgetall
	ReqHkeys
	ReqHlen
	ReqHmget
	ReqHscan
	ReqHvals
	ReqLindex /* redis requests - lists */
	ReqLlen
	ReqLrange
	ReqSrandmember /* redis requests - set */
	ReqSscan
	ReqSdiff
	ReqSinter
	ReqScard
	ReqSismember
	ReqSmembers
	ReqZcard /* redis requests - sorted set */
	ReqZcount
	ReqZlexcount
	ReqZrange
	ReqZrangebylex
	ReqZrangebyscore
	ReqZrank
	ReqZrevrange
	ReqZrevrangebyscore
	ReqZrevrank
	ReqZscore
	ReqZscan

	ReqWriteCmdStart /* redis write commands below */
	ReqDel           /* redis commands - keys */
	ReqExpire
	ReqExpireat
	ReqPexpire
	ReqPexpireat
	ReqPersist
	ReqSort
	ReqAppend /* redis requests - string */
	ReqDecr
	ReqDecrby
	ReqGetset
	ReqIncr
	ReqIncrby
	ReqIncrbyfloat
	ReqPsetex
	ReqRestore
	ReqSet
	ReqSetbit
	ReqSetex
	ReqSetnx
	ReqSetrange
	ReqSunion
	ReqHdel /* redis requests - hashes */
	ReqHincrby
	ReqHincrbyfloat
	ReqHmset
	ReqHset
	ReqHsetnx
	ReqLinsert /* redis requests - list */
	ReqLpop
	ReqLpush
	ReqLpushx
	ReqLrem
	ReqLset
	ReqLtrim
	ReqRpop
	ReqRpoplpush
	ReqRpush
	ReqRpushx
	ReqPfadd /* redis requests - hyperloglog */
	ReqPfcount
	ReqPfmerge
	ReqSadd /* redis requests - sets */
	ReqSdiffstore
	ReqSinterstore
	ReqSmove
	ReqSpop
	ReqSrem
	ReqSunionstore
	ReqZadd /* redis requests - sorted sets */
	ReqZincrby
	ReqZinterstore
	ReqZrem
	ReqZremrangebyrank
	ReqZremrangebylex
	ReqZremrangebyscore
	ReqZunionstore
	ReqEval /* redis requests - eval */
	ReqEvalsha
	ReqAuth

	/* special: multi-key / fan-out / renaming / pub-sub, handled by their
	   own sub-parsers rather than the standard single-key path */
	ReqPing
	ReqQuit
	ReqMget
	ReqMset
	ReqRename
	ReqSubscribe
	ReqPsubscribe
	ReqPublish

	/* forbidden: recognized only so the splitter can answer them with a
	   fixed error instead of forwarding them to a shard */
	ReqCluster
	ReqFlushall
	ReqFlushdb
	ReqSelect
	ReqKeys
	ReqShutdown
	ReqSlaveof
	ReqConfig
	ReqSwapdb
	ReqScript
	ReqDbsize
	ReqMulti
	ReqExec
	ReqDiscard
	ReqWatch

	ReqTooLarge
	ReqWrongArgumentsNumber

	RspTooLarge
	RspStatus /* redis response */
	RspOk
	RspPong
	RspError
	RspNeedAuth
	RspNeedNtAuth // needn't auth
	RspAuthFailed
	RspInteger
	RspBulk
	RspMultibulk
	RspAsk
	RspMoved
	Sentinel
)

const (
	Nargsz       NArgs = 0  // 0 key, 0 parameter
	Nargs0       NArgs = 1  // 1 key, 0 parameter
	Nargs1       NArgs = 2  // 1 key, 1 parameter
	Nargs2       NArgs = 3  // 1 key, 2 parameter
	Nargs3       NArgs = 4  // 1 key, 3 parameter
	NargsInf     NArgs = -1 // 1 key, unlimited parameter
	NargsEvenInf NArgs = -2 // 1 key, unlimited even parameter
)

// Category groups a Command by how the splitter must handle it.
type Category int

const (
	CategoryStandard Category = iota
	CategorySpecial
	CategoryForbidden
	CategoryQuickReply
)

var CommandCategory = map[Command]Category{
	ReqPing:       CategoryQuickReply,
	ReqQuit:       CategoryQuickReply,
	ReqMget:       CategorySpecial,
	ReqDel:        CategorySpecial,
	ReqMset:       CategorySpecial,
	ReqRename:     CategorySpecial,
	ReqSubscribe:  CategorySpecial,
	ReqPsubscribe: CategorySpecial,
	ReqPublish:    CategorySpecial,

	ReqCluster:  CategoryForbidden,
	ReqFlushall: CategoryForbidden,
	ReqFlushdb:  CategoryForbidden,
	ReqSelect:   CategoryForbidden,
	ReqKeys:     CategoryForbidden,
	ReqShutdown: CategoryForbidden,
	ReqSlaveof:  CategoryForbidden,
	ReqConfig:   CategoryForbidden,
	ReqSwapdb:   CategoryForbidden,
	ReqScript:   CategoryForbidden,
	ReqDbsize:   CategoryForbidden,
	ReqMulti:    CategoryForbidden,
	ReqExec:     CategoryForbidden,
	ReqDiscard:  CategoryForbidden,
	ReqWatch:    CategoryForbidden,
}

// CategoryOf returns a Command's category, defaulting to Standard for
// every single-key verb not listed explicitly above.
func CategoryOf(c Command) Category {
	if cat, ok := CommandCategory[c]; ok {
		return cat
	}
	return CategoryStandard
}

var CommandType2Str = map[Command]string{
	ReqExists:           "exists",
	ReqTtl:              "ttl",
	ReqPttl:             "pttl",
	ReqType:             "type",
	ReqDump:             "dump",
	ReqBitcount:         "bitcount",
	ReqGet:              "get",
	ReqGetbit:           "getbit",
	ReqGetrange:         "getrange",
	ReqStrlen:           "strlen",
	ReqHexists:          "hexists",
	ReqHget:             "hget",
	ReqHgetall:          "hgetall",
	ReqHkeys:            "hkeys",
	ReqHlen:             "hlen",
	ReqHmget:            "hmget",
	ReqHscan:            "hscan",
	ReqHvals:            "hvals",
	ReqLindex:           "lindex",
	ReqLlen:             "llen",
	ReqLrange:           "lrange",
	ReqSrandmember:      "srandmember",
	ReqSscan:            "sscan",
	ReqSdiff:            "sdiff",
	ReqSinter:           "sinter",
	ReqScard:            "scard",
	ReqSismember:        "sismember",
	ReqSmembers:         "smembers",
	ReqZcard:            "zcard",
	ReqZcount:           "zcount",
	ReqZlexcount:        "zlexcount",
	ReqZrange:           "zrange",
	ReqZrangebylex:      "zrangebylex",
	ReqZrangebyscore:    "zrangebyscore",
	ReqZrank:            "zrank",
	ReqZrevrange:        "zrevrange",
	ReqZrevrangebyscore: "zrevrangebyscore",
	ReqZrevrank:         "zrevrank",
	ReqZscore:           "zscore",
	ReqZscan:            "zscan",

	ReqDel:              "del",
	ReqExpire:           "expire",
	ReqExpireat:         "expireat",
	ReqPexpire:          "pexpire",
	ReqPexpireat:        "pexpireat",
	ReqPersist:          "persist",
	ReqSort:             "sort",
	ReqAppend:           "append",
	ReqDecr:             "decr",
	ReqDecrby:           "decrby",
	ReqGetset:           "getset",
	ReqIncr:             "incr",
	ReqIncrby:           "incrby",
	ReqIncrbyfloat:      "incrbyfloat",
	ReqPsetex:           "psetex",
	ReqRestore:          "restore",
	ReqSet:              "set",
	ReqSetbit:           "setbit",
	ReqSetex:            "setex",
	ReqSetnx:            "setnx",
	ReqSetrange:         "setrange",
	ReqSunion:           "sunion",
	ReqHdel:             "hdel",
	ReqHincrby:          "hincrby",
	ReqHincrbyfloat:     "hincrbyfloat",
	ReqHmset:            "hmset",
	ReqHset:             "hset",
	ReqHsetnx:           "hsetnx",
	ReqLinsert:          "linsert",
	ReqLpop:             "lpop",
	ReqLpush:            "lpush",
	ReqLpushx:           "lpushx",
	ReqLrem:             "lrem",
	ReqLset:             "lset",
	ReqLtrim:            "ltrim",
	ReqRpop:             "rpop",
	ReqRpoplpush:        "rpoplpush",
	ReqRpush:            "rpush",
	ReqRpushx:           "rpushx",
	ReqPfadd:            "pfadd",
	ReqPfcount:          "pfcount",
	ReqPfmerge:          "pfmerge",
	ReqSadd:             "sadd",
	ReqSdiffstore:       "sdiffstore",
	ReqSinterstore:      "sinterstore",
	ReqSmove:            "smove",
	ReqSpop:             "spop",
	ReqSrem:             "srem",
	ReqSunionstore:      "sunionstore",
	ReqZadd:             "zadd",
	ReqZincrby:          "zincrby",
	ReqZinterstore:      "zinterstore",
	ReqZrem:             "zrem",
	ReqZremrangebyrank:  "zremrangebyrank",
	ReqZremrangebylex:   "zremrangebylex",
	ReqZremrangebyscore: "zremrangebyscore",
	ReqZunionstore:      "zunionstore",
	ReqEval:             "eval",
	ReqEvalsha:          "evalsha",
	ReqAuth:             "auth",

	ReqPing:       "ping",
	ReqQuit:       "quit",
	ReqMget:       "mget",
	ReqMset:       "mset",
	ReqRename:     "rename",
	ReqSubscribe:  "subscribe",
	ReqPsubscribe: "psubscribe",
	ReqPublish:    "publish",

	ReqCluster:  "cluster",
	ReqFlushall: "flushall",
	ReqFlushdb:  "flushdb",
	ReqSelect:   "select",
	ReqKeys:     "keys",
	ReqShutdown: "shutdown",
	ReqSlaveof:  "slaveof",
	ReqConfig:   "config",
	ReqSwapdb:   "swapdb",
	ReqScript:   "script",
	ReqDbsize:   "dbsize",
	ReqMulti:    "multi",
	ReqExec:     "exec",
	ReqDiscard:  "discard",
	ReqWatch:    "watch",
}

var CommandStr2Type = reverseCommandTable()

func reverseCommandTable() map[string]Command {
	m := make(map[string]Command, len(CommandType2Str))
	for cmd, s := range CommandType2Str {
		m[s] = cmd
	}
	return m
}

var CommandType2ArgsNumber = map[Command]NArgs{
	ReqPing: Nargsz,
	ReqQuit: Nargsz,

	ReqExists:   Nargs0,
	ReqTtl:      Nargs0,
	ReqPttl:     Nargs0,
	ReqType:     Nargs0,
	ReqDump:     Nargs0,
	ReqGet:      Nargs0,
	ReqStrlen:   Nargs0,
	ReqHgetall:  Nargs0,
	ReqHkeys:    Nargs0,
	ReqHlen:     Nargs0,
	ReqSmembers: Nargs0,
	ReqZcard:    Nargs0,
	ReqLlen:     Nargs0,
	ReqScard:    Nargs0,
	ReqHvals:    Nargs0,
	ReqPfcount:  Nargs0,
	ReqSpop:     Nargs0,
	ReqAuth:     Nargs0,
	ReqRpop:     Nargs0,
	ReqPersist:  Nargs0,
	ReqDecr:     Nargs0,
	ReqIncr:     Nargs0,
	ReqLpop:     Nargs0,

	ReqRpoplpush:   Nargs1,
	ReqRpushx:      Nargs1,
	ReqGetbit:      Nargs1,
	ReqHexists:     Nargs1,
	ReqHget:        Nargs1,
	ReqLindex:      Nargs1,
	ReqSismember:   Nargs1,
	ReqExpire:      Nargs1,
	ReqZrank:       Nargs1,
	ReqZrevrank:    Nargs1,
	ReqZscore:      Nargs1,
	ReqExpireat:    Nargs1,
	ReqPexpire:     Nargs1,
	ReqPexpireat:   Nargs1,
	ReqAppend:      Nargs1,
	ReqDecrby:      Nargs1,
	ReqGetset:      Nargs1,
	ReqIncrby:      Nargs1,
	ReqIncrbyfloat: Nargs1,
	ReqLpushx:      Nargs1,
	ReqSetnx:       Nargs1,
	ReqRename:      Nargs1,

	ReqGetrange:  Nargs2,
	ReqLrange:    Nargs2,
	ReqSetex:     Nargs2,
	ReqSetrange:  Nargs2,
	ReqSmove:     Nargs2,
	ReqZincrby:   Nargs2,
	ReqZremrangebyrank: Nargs2,
	ReqZremrangebyscore: Nargs2,
	ReqPsetex:    Nargs2,
	ReqLset:      Nargs2,
	ReqLtrim:     Nargs2,

	ReqLinsert: Nargs3,
	ReqSetbit:  Nargs2,

	ReqDel:          NargsInf,
	ReqSunion:       NargsInf,
	ReqSdiff:        NargsInf,
	ReqSinter:       NargsInf,
	ReqSadd:         NargsInf,
	ReqSrem:         NargsInf,
	ReqLpush:        NargsInf,
	ReqRpush:        NargsInf,
	ReqLrem:         NargsInf,
	ReqSunionstore:  NargsInf,
	ReqSdiffstore:   NargsInf,
	ReqSinterstore:  NargsInf,
	ReqZrange:       NargsInf,
	ReqZrangebylex:  NargsInf,
	ReqZrangebyscore: NargsInf,
	ReqZrevrange:    NargsInf,
	ReqZrevrangebyscore: NargsInf,
	ReqZcount:       NargsInf,
	ReqZlexcount:    NargsInf,
	ReqHmget:        NargsInf,
	ReqHscan:        NargsInf,
	ReqSscan:        NargsInf,
	ReqZscan:        NargsInf,
	ReqSrandmember:  NargsInf,
	ReqBitcount:     NargsInf,
	ReqSort:         NargsInf,
	ReqRestore:      NargsInf,
	ReqPfadd:        NargsInf,
	ReqPfmerge:      NargsInf,
	ReqEval:         NargsInf,
	ReqEvalsha:      NargsInf,
	ReqZadd:         NargsEvenInf,
	ReqHset:         NargsEvenInf,
	ReqHmset:        NargsEvenInf,
	ReqHsetnx:       Nargs2,
	ReqHdel:         NargsInf,
	ReqHincrby:      Nargs2,
	ReqHincrbyfloat: Nargs2,
	ReqSet:          NargsInf,
	ReqZinterstore:  NargsInf,
	ReqZunionstore:  NargsInf,
	ReqZrem:         NargsInf,
	ReqZremrangebylex: Nargs2,
}

// Transform2Type lower-cases the wire bytes in place and resolves them to a
// Command, checking the argument count if known. n is the total number of
// array elements including the verb itself.
func Transform2Type(command []byte, n int) Command {
	toLower(command)
	cmd, ok := CommandStr2Type[string(command)]
	if !ok {
		return UNKNOWN
	}
	if !checkArgs(cmd, n) {
		return ReqWrongArgumentsNumber
	}
	return cmd
}

func checkArgs(cmd Command, n int) bool {
	nargs, ok := CommandType2ArgsNumber[cmd]
	if !ok {
		return true
	}
	switch nargs {
	case NargsInf:
		return n >= 2
	case NargsEvenInf:
		return n >= 3 && n%2 == 1
	default:
		return n == int(nargs)+1
	}
}

// toLower ASCII-lowercases b in place using the classic XOR-0x20 trick.
func toLower(b []byte) {
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c ^ 0x20
		}
	}
}
