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
	"bytes"

	"rcproxy/core/codec"
)

// ResponseKind tags a parsed server reply as a normal answer or one that
// must trigger a slot-map refresh instead of being delivered to the
// client.
type ResponseKind int

const (
	RespNormal ResponseKind = iota
	RespRetry
)

// Response is one frame lifted off a Server's read buffer.
type Response struct {
	Kind ResponseKind
	Body []byte // full wire frame, including its own CRLF terminators
	IsError bool
}

// RespSplitter is a streaming parser over a Server's read buffer. It adds
// exactly one thing over a generic RESP framer: classifying error frames
// whose first token is MOVED/ASK/CLUSTERDOWN as Retry instead of Normal.
type RespSplitter struct {
	buf *codec.Buffer
}

func NewRespSplitter(buf *codec.Buffer) *RespSplitter {
	return &RespSplitter{buf: buf}
}

// Next lifts the next complete frame, or returns (nil, nil) if the
// buffer doesn't yet hold one.
func (r *RespSplitter) Next() (*Response, error) {
	data := r.buf.PeekAll()[r.buf.ReadSize():]
	if len(data) == 0 {
		return nil, nil
	}

	switch data[0] {
	case '+', '-', ':':
		return r.parseLine(data)
	case '$':
		return r.parseBulk(data)
	case '*':
		return r.parseMultibulk(data)
	default:
		return nil, codec.BadLine
	}
}

func (r *RespSplitter) consume(n int) { _, _ = r.buf.ReadN(n) }

func (r *RespSplitter) parseLine(data []byte) (*Response, error) {
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		return nil, nil
	}
	if idx < 1 || data[idx-1] != '\r' {
		return nil, codec.BadLine
	}
	frame := data[:idx+1]
	r.consume(len(frame))
	return classify(frame), nil
}

func (r *RespSplitter) parseBulk(data []byte) (*Response, error) {
	headerEnd := bytes.IndexByte(data, '\n')
	if headerEnd < 0 {
		return nil, nil
	}
	if headerEnd < 1 || data[headerEnd-1] != '\r' {
		return nil, codec.BadLine
	}
	n, err := parseLen(data[1 : headerEnd-1])
	if err != nil {
		if n == -1 {
			frame := data[:headerEnd+1]
			r.consume(len(frame))
			return &Response{Kind: RespNormal, Body: frame}, nil
		}
		return nil, err
	}
	bodyStart := headerEnd + 1
	bodyEnd := bodyStart + n
	if bodyEnd+2 > len(data) {
		return nil, nil
	}
	if data[bodyEnd] != '\r' || data[bodyEnd+1] != '\n' {
		return nil, codec.BadLine
	}
	frame := data[:bodyEnd+2]
	r.consume(len(frame))
	return &Response{Kind: RespNormal, Body: frame}, nil
}

// parseMultibulk handles a "cluster nodes" reply or any other top-level
// array response (the updater's query reply is a bulk string, not an
// array, but a defensive parser still needs to frame arrays correctly
// for forward-compatibility with EVAL-style multibulk replies).
func (r *RespSplitter) parseMultibulk(data []byte) (*Response, error) {
	headerEnd := bytes.IndexByte(data, '\n')
	if headerEnd < 0 {
		return nil, nil
	}
	if headerEnd < 1 || data[headerEnd-1] != '\r' {
		return nil, codec.BadLine
	}
	n, err := parseLen(data[1 : headerEnd-1])
	if err != nil {
		if n == -1 {
			frame := data[:headerEnd+1]
			r.consume(len(frame))
			return &Response{Kind: RespNormal, Body: frame}, nil
		}
		return nil, err
	}
	offset := headerEnd + 1
	for i := 0; i < n; i++ {
		elemEnd, ok := scanOneFrame(data[offset:])
		if !ok {
			return nil, nil
		}
		offset += elemEnd
	}
	frame := data[:offset]
	r.consume(len(frame))
	return &Response{Kind: RespNormal, Body: frame}, nil
}

// scanOneFrame returns the length of one complete RESP frame at the
// start of data, without allocating a Response for it.
func scanOneFrame(data []byte) (int, bool) {
	if len(data) == 0 {
		return 0, false
	}
	switch data[0] {
	case '+', '-', ':':
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			return 0, false
		}
		return idx + 1, true
	case '$':
		headerEnd := bytes.IndexByte(data, '\n')
		if headerEnd < 0 {
			return 0, false
		}
		n, err := parseLen(data[1 : headerEnd-1])
		if err != nil {
			if n == -1 {
				return headerEnd + 1, true
			}
			return 0, false
		}
		total := headerEnd + 1 + n + 2
		if total > len(data) {
			return 0, false
		}
		return total, true
	default:
		return 0, false
	}
}

// classify inspects a -error\r\n frame's first token; MOVED/ASK/
// CLUSTERDOWN (case-insensitive) mark the reply as Retry.
func classify(frame []byte) *Response {
	if frame[0] != '-' {
		return &Response{Kind: RespNormal, Body: frame}
	}
	body := frame[1:]
	sp := bytes.IndexByte(body, ' ')
	token := body
	if sp >= 0 {
		token = body[:sp]
	}
	switch string(bytes.ToUpper(token)) {
	case "MOVED", "ASK", "CLUSTERDOWN":
		return &Response{Kind: RespRetry, Body: frame, IsError: true}
	default:
		return &Response{Kind: RespNormal, Body: frame, IsError: true}
	}
}
