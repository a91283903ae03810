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

package codec

import (
	"bytes"
	"io"
	"syscall"

	"github.com/valyala/bytebufferpool"
)

// AllocCounter is bumped on every Buffer growth, one instance per worker,
// for memory-usage reporting. Workers never share a counter.
type AllocCounter struct {
	n int64
}

func (c *AllocCounter) Add(delta int64) { c.n += delta }
func (c *AllocCounter) Load() int64     { return c.n }

// Buffer is an append-only byte sequence backed by a pooled growable
// buffer. Unlike the single package-global buffer of earlier designs, each
// Client/Server connection owns one, since many connections are live
// concurrently within a worker.
type Buffer struct {
	bb      *bytebufferpool.ByteBuffer
	r       int // next unread byte
	counter *AllocCounter
}

// NewBuffer returns an empty Buffer that charges its growth to counter.
func NewBuffer(counter *AllocCounter) *Buffer {
	return &Buffer{bb: bytebufferpool.Get(), counter: counter}
}

// Release returns the underlying pooled buffer, invalidating b.
func (b *Buffer) Release() {
	if b.bb != nil {
		bytebufferpool.Put(b.bb)
		b.bb = nil
	}
}

func (b *Buffer) Empty() bool     { return b.leftSize() < 1 }
func (b *Buffer) TotalSize() int  { return b.bb.Len() }
func (b *Buffer) ReadSize() int   { return b.r }
func (b *Buffer) ReadBuf() []byte { return b.bb.B[:b.r] }

func (b *Buffer) leftSize() int   { return b.bb.Len() - b.r }
func (b *Buffer) leftBuf() []byte { return b.bb.B[b.r:] }

// Append adds p to the tail of the buffer, growing it as needed.
func (b *Buffer) Append(p []byte) {
	before := cap(b.bb.B)
	_, _ = b.bb.Write(p)
	if grown := cap(b.bb.B) - before; grown > 0 && b.counter != nil {
		b.counter.Add(int64(grown))
	}
}

// ReadFromFD drains fd into the buffer until EAGAIN or a read that
// fills less than its 64 KiB temporary buffer. Returns bytes read, or -1
// on EOF (peer closed cleanly).
func (b *Buffer) ReadFromFD(fd int) (int, error) {
	total := 0
	tmp := make([]byte, 64*1024)
	for {
		n, err := syscall.Read(fd, tmp)
		if n > 0 {
			b.Append(tmp[:n])
			total += n
		}
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			if total == 0 {
				return -1, io.EOF
			}
			return total, io.EOF
		}
		if n < len(tmp) {
			return total, nil
		}
	}
}

// WriteToFD pushes the unread tail of the buffer to fd until EAGAIN or the
// buffer drains; advances r by however much was written.
func (b *Buffer) WriteToFD(fd int) (int, error) {
	total := 0
	for b.leftSize() > 0 {
		n, err := syscall.Write(fd, b.leftBuf())
		if n > 0 {
			b.r += n
			total += n
		}
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
	return total, nil
}

// GatheredWrite performs a scatter-gather write of bufs to fd via writev,
// honoring EAGAIN. Returns the total bytes written across all buffers.
func GatheredWrite(fd int, bufs [][]byte) (int, error) {
	iovs := make([][]byte, 0, len(bufs))
	for _, buf := range bufs {
		if len(buf) > 0 {
			iovs = append(iovs, buf)
		}
	}
	if len(iovs) == 0 {
		return 0, nil
	}
	n, err := writev(fd, iovs)
	if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
		return n, nil
	}
	return n, err
}

// TruncateFront discards the already-read prefix, shifting remaining
// bytes to the start of the backing array. Cheap: a single in-place copy.
func (b *Buffer) TruncateFront() {
	if b.r == 0 {
		return
	}
	remaining := b.leftBuf()
	copy(b.bb.B, remaining)
	b.bb.B = b.bb.B[:len(remaining)]
	b.r = 0
}

// ReadN consumes and returns n unread bytes, advancing r.
func (b *Buffer) ReadN(n int) ([]byte, error) {
	if b.leftSize() < 1 {
		return nil, EmptyLine
	}
	if n > b.leftSize() {
		return nil, ShortLine
	}
	r := b.r
	b.r += n
	return b.bb.B[r:b.r], nil
}

// PeekN returns n unread bytes without advancing r.
func (b *Buffer) PeekN(n int) ([]byte, error) {
	if b.leftSize() < 1 {
		return nil, EmptyLine
	}
	if n > b.leftSize() {
		return nil, ShortLine
	}
	return b.bb.B[b.r : b.r+n], nil
}

// ReadLine consumes a CRLF-terminated line (without the CRLF), advancing r.
func (b *Buffer) ReadLine() ([]byte, error) {
	if b.leftSize() < 1 {
		return nil, EmptyLine
	}
	idx := bytes.IndexByte(b.leftBuf(), LFByte)
	if idx == -1 {
		return nil, ErrLFNotFound
	}
	buf, err := b.ReadN(idx + 1)
	if err != nil {
		return nil, err
	}
	if idx < 1 {
		return nil, EmptyLine
	}
	if buf[idx-1] != CRByte {
		return nil, ErrCRNotFound
	}
	return buf[:len(buf)-2], nil
}

// PeekAll returns the whole backing slice, read and unread.
func (b *Buffer) PeekAll() []byte { return b.bb.B }

// CopyRange returns a fresh copy of bytes [start,end) of the whole buffer,
// independent of subsequent truncation/growth.
func (b *Buffer) CopyRange(start, end int) []byte {
	out := make([]byte, end-start)
	copy(out, b.bb.B[start:end])
	return out
}
