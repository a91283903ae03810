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
	"strconv"

	"rcproxy/core/codec"
	"rcproxy/core/pkg/hashkit"
)

// Splitter is a streaming, restartable tokeniser over a Client's read
// buffer. Rather than the mutable on_byte/on_element function pointers
// of the source design, it is an explicit scan-then-consume parser: each
// call to Next attempts to lift one complete top-level frame out of the
// unread tail of buf without mutating it, and only advances the buffer's
// read cursor once the whole frame (and all its elements) is present.
// An incomplete frame leaves the buffer untouched and returns (nil, nil)
// so the caller simply waits for the next read-ready edge.
type Splitter struct {
	buf *codec.Buffer
}

func NewSplitter(buf *codec.Buffer) *Splitter {
	return &Splitter{buf: buf}
}

// Next produces the next CommandGroup, or (nil, nil) if the buffer does
// not yet hold a complete frame, or an error for a malformed frame (the
// caller closes the connection on error, per spec.md §7).
func (s *Splitter) Next() (*CommandGroup, error) {
	data := s.buf.PeekAll()[s.buf.ReadSize():]
	if len(data) == 0 {
		return nil, nil
	}

	switch data[0] {
	case '*':
		return s.parseArray(data)
	case '+', '-', ':', '$':
		// Inline quick-reply path: a bare line, not an array. Only PING
		// is meaningful; anything else is an unknown inline command.
		return s.parseInline(data)
	default:
		return s.parseInline(data)
	}
}

func (s *Splitter) consume(n int) {
	_, _ = s.buf.ReadN(n)
}

// parseInline handles a bare CRLF-terminated line rather than a RESP
// array — the scanning-raw state of the source's splitter.
func (s *Splitter) parseInline(data []byte) (*CommandGroup, error) {
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		return nil, nil
	}
	line := data[:idx+1]
	if idx < 1 || line[idx-1] != '\r' {
		return nil, codec.BadLine
	}
	verb := bytes.ToUpper(bytes.TrimSpace(line[:idx-1]))
	s.consume(len(line))

	if len(verb) == 0 {
		return directResponseGroup([]byte("-ERR unknown command ''\r\n")), nil
	}
	if string(verb) == "PING" {
		return directResponseGroup(codec.PONG.Bytes()), nil
	}
	return directResponseGroup(unknownCommandError(verb)), nil
}

// parseArray parses a top-level "*n\r\n" array of bulk strings. Returns
// (nil, nil) if the frame is not yet fully buffered.
func (s *Splitter) parseArray(data []byte) (*CommandGroup, error) {
	headerEnd := bytes.IndexByte(data, '\n')
	if headerEnd < 0 {
		return nil, nil
	}
	if headerEnd < 1 || data[headerEnd-1] != '\r' {
		return nil, codec.BadLine
	}
	n, err := parseLen(data[1 : headerEnd-1])
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, codec.BadLine
	}

	args := make([][]byte, 0, n)
	offset := headerEnd + 1
	for i := 0; i < n; i++ {
		if offset >= len(data) {
			return nil, nil
		}
		if data[offset] == '*' {
			return nil, codec.BadLine // nested arrays rejected per spec
		}
		if data[offset] != '$' {
			return nil, codec.BadLine
		}
		lineEnd := bytes.IndexByte(data[offset:], '\n')
		if lineEnd < 0 {
			return nil, nil
		}
		lineEnd += offset
		if lineEnd < offset+1 || data[lineEnd-1] != '\r' {
			return nil, codec.BadLine
		}
		blen, err := parseLen(data[offset+1 : lineEnd-1])
		if err != nil {
			return nil, err
		}
		bodyStart := lineEnd + 1
		bodyEnd := bodyStart + blen
		if bodyEnd+2 > len(data) {
			return nil, nil
		}
		if data[bodyEnd] != '\r' || data[bodyEnd+1] != '\n' {
			return nil, codec.BadLine
		}
		args = append(args, data[bodyStart:bodyEnd])
		offset = bodyEnd + 2
	}

	total := offset
	group, err := s.buildGroup(args, n)
	if err != nil {
		return nil, err
	}
	s.consume(total)
	return group, nil
}

func parseLen(p []byte) (int, error) {
	if len(p) == 2 && p[0] == '-' && p[1] == '1' {
		return -1, codec.BadLine
	}
	n, err := strconv.Atoi(string(p))
	if err != nil {
		return 0, codec.BadLine
	}
	return n, nil
}

// buildGroup resolves the verb and dispatches by category.
func (s *Splitter) buildGroup(args [][]byte, n int) (*CommandGroup, error) {
	verb := args[0]
	// Transform2Type lower-cases its argument in place; give it a copy so
	// the client's own bytes are forwarded unchanged.
	cmd := codec.Transform2Type(append([]byte(nil), verb...), n)

	switch cmd {
	case codec.ReqWrongArgumentsNumber:
		return directResponseGroup(codec.ErrMsgReqWrongArgumentsNumber), nil
	case codec.UNKNOWN:
		return directResponseGroup(unknownCommandError(verb)), nil
	}

	switch codec.CategoryOf(cmd) {
	case codec.CategoryForbidden:
		return directResponseGroup(codec.ErrCommandForbidden), nil
	case codec.CategoryQuickReply:
		return s.buildQuickReply(cmd, args)
	case codec.CategorySpecial:
		return s.buildSpecial(cmd, args)
	default:
		return s.buildStandard(cmd, args)
	}
}

func (s *Splitter) buildQuickReply(cmd codec.Command, args [][]byte) (*CommandGroup, error) {
	switch cmd {
	case codec.ReqPing:
		switch len(args) {
		case 1:
			return directResponseGroup(codec.PONG.Bytes()), nil
		case 2:
			return directResponseGroup(encodeBulk(args[1])), nil
		default:
			return directResponseGroup(codec.ErrMsgReqWrongArgumentsNumber), nil
		}
	case codec.ReqQuit:
		return directResponseGroup(codec.OK.Bytes()), nil
	}
	return directResponseGroup(unknownCommandError(args[0])), nil
}

// buildStandard produces one OneSlot Command keyed by the CRC16 slot of
// the first argument (the key), carrying the original wire bytes as-is.
func (s *Splitter) buildStandard(cmd codec.Command, args [][]byte) (*CommandGroup, error) {
	if len(args) < 2 {
		return directResponseGroup(codec.ErrMsgReqWrongArgumentsNumber), nil
	}
	slot := hashkit.SlotOf(args[1])

	c := CommandPool.Get()
	c.Kind = OneSlot
	c.Type = cmd
	c.Req = encodeArray(args)
	c.NeedSend = true
	c.KeySlot = int32(slot)

	g := CommandGroupPool.Get()
	g.Commands = append(g.Commands, c)
	c.Group = g
	return g, nil
}

func directResponseGroup(reply []byte) *CommandGroup {
	c := CommandPool.Get()
	c.Kind = DirectResponse
	c.NeedSend = false
	c.RspBody = reply
	c.Done = true

	g := CommandGroupPool.Get()
	g.Commands = append(g.Commands, c)
	c.Group = g
	return g
}

func unknownCommandError(verb []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("-ERR unknown command '")
	buf.Write(verb)
	buf.WriteString("'\r\n")
	return buf.Bytes()
}

func encodeBulk(b []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte('$')
	buf.WriteString(strconv.Itoa(len(b)))
	buf.WriteString("\r\n")
	buf.Write(b)
	buf.WriteString("\r\n")
	return buf.Bytes()
}

// encodeArray re-renders args as a standard "*n\r\n$len\r\nbytes\r\n..."
// frame, used both to pass a client's own command through unchanged and
// to build rewritten sub-commands (MGET -> GET, MSET -> SET, DEL).
func encodeArray(args [][]byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte('*')
	buf.WriteString(strconv.Itoa(len(args)))
	buf.WriteString("\r\n")
	for _, a := range args {
		buf.WriteByte('$')
		buf.WriteString(strconv.Itoa(len(a)))
		buf.WriteString("\r\n")
		buf.Write(a)
		buf.WriteString("\r\n")
	}
	return buf.Bytes()
}
