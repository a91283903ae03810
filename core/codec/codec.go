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

// Package codec implements the RESP wire protocol: line/bulk parsing, the
// command table, and the append-only Buffer shared by every connection.
package codec

import (
	"errors"

	"rcproxy/core/pkg/utils"
)

var (
	ErrCRNotFound          = errors.New("there is no \\r")
	ErrLFNotFound          = errors.New("there is no \\n")
	BadLine                = errors.New("bad response line")
	ShortLine              = errors.New("short line")
	EmptyLine              = errors.New("empty line")
	Continue               = errors.New("continue")
	MovedOrAsk             = errors.New("moved or ask")
	ClusterDownReply       = errors.New("clusterdown")
	AddrNotFound           = errors.New("unknown addr")
	ErrInvalidResp         = errors.New("invalid resp")
	ErrInvalidInitializing = errors.New("invalid initializing")
)

const (
	OK   Status = "+OK\r\n"
	PONG Status = "+PONG\r\n"
)

const (
	ErrUnKnown                    Error = "-ERR unknown error\r\n"
	ErrUnKnownCommand             Error = "-ERR unknown command\r\n"
	ErrUnKnownSlot                Error = "-ERR unknown slot\r\n"
	ErrCommandForbidden           Error = "-ERR command not supported by proxy\r\n"
	ErrMsgReqTooLarge             Error = "-ERR req msg length too large\r\n"
	ErrMsgRspTooLarge             Error = "-ERR rsp msg length too large\r\n"
	ErrMsgReqWrongArgumentsNumber Error = "-ERR wrong number of arguments\r\n"
	ErrAuthInvalidPassword        Error = "-ERR invalid password\r\n"
	ErrAuthNeedNtPassword         Error = "-ERR Client sent AUTH, but no password is set\r\n"
	ErrClusterDown                Error = "-CLUSTERDOWN The cluster is down\r\n"
)

// Error is a pre-rendered RESP error line, ready to write to the wire.
type Error string

func (err Error) Nil() bool           { return len(err) < 1 }
func (err Error) NotNil() bool        { return len(err) > 0 }
func (err Error) Error() string       { return string(err) }
func (err Error) Bytes() []byte       { return utils.S2B(string(err)) }
func (err Error) String() string      { return string(err) }
func (err Error) ShortString() string { return string(err)[:len(err)-2] }

// Status is a pre-rendered RESP simple-string line.
type Status string

func (s Status) String() string      { return string(s) }
func (s Status) Bytes() []byte       { return utils.S2B(string(s)) }
func (s Status) Len() int            { return len(s) }
func (s Status) ShortString() string { return string(s)[:len(s)-2] }

var (
	LFByte   = byte('\n')
	CRByte   = byte('\r')
	LFCRByte = []byte{'\r', '\n'}
	LFCRStr  = string(LFCRByte)
)
