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
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/petar/GoLLRB/llrb"

	"rcproxy/core/codec"
	rcerrors "rcproxy/core/pkg/errors"
)

// UpdaterState is one step of the per-updater state machine:
// Created -> Connecting -> WritingQuery -> Reading -> Parsed | Failed.
type UpdaterState int

const (
	UpdaterCreated UpdaterState = iota
	UpdaterConnecting
	UpdaterWritingQuery
	UpdaterReading
	UpdaterParsed
	UpdaterFailed
)

// Updater is an ephemeral, non-blocking connection to a candidate
// back-end that issues "cluster nodes" and proposes a new slot map.
// Multiple updaters race; the worker installs the first full-coverage
// result and discards the rest.
type Updater struct {
	addr     string
	fd       int
	state    UpdaterState
	buf      *codec.Buffer
	written  int
	nodes    []*RedisNode
	err      error
}

func newUpdater(addr string, counter *codec.AllocCounter) *Updater {
	return &Updater{addr: addr, state: UpdaterCreated, buf: codec.NewBuffer(counter)}
}

// connect opens a non-blocking TCP connection to the candidate. Actual
// readiness (connect completing) is observed by the reactor on the next
// write-ready edge for this fd, same as any other non-blocking connect.
func (u *Updater) connect() error {
	fd, err := dialNonBlocking(u.addr)
	if err != nil {
		u.state = UpdaterFailed
		u.err = err
		return err
	}
	u.fd = fd
	u.state = UpdaterConnecting
	return nil
}

// onWritable is called once the connect (or a prior partial write)
// becomes writable. It emits the fixed "cluster nodes" query and moves
// to Reading once the whole query is flushed.
func (u *Updater) onWritable() {
	if u.state == UpdaterConnecting {
		u.state = UpdaterWritingQuery
	}
	if u.state != UpdaterWritingQuery {
		return
	}
	n, err := syscall.Write(u.fd, clusterNodesQuery[u.written:])
	if n > 0 {
		u.written += n
	}
	if err != nil && err != syscall.EAGAIN && err != syscall.EWOULDBLOCK {
		u.state = UpdaterFailed
		u.err = err
		return
	}
	if u.written >= len(clusterNodesQuery) {
		u.state = UpdaterReading
	}
}

// onReadable drains the socket and attempts to parse one response (the
// query expects a single bulk-string reply). Only the first complete
// response is parsed; any bytes after it are ignored.
func (u *Updater) onReadable(selfHost string) {
	if u.state != UpdaterReading {
		return
	}
	n, err := u.buf.ReadFromFD(u.fd)
	if n < 0 {
		u.state = UpdaterFailed
		u.err = rcerrors.ErrIncompletePacket
		return
	}
	if err != nil && !errors.Is(err, io.EOF) {
		u.state = UpdaterFailed
		u.err = err
		return
	}

	splitter := NewRespSplitter(u.buf)
	resp, perr := splitter.Next()
	if perr != nil {
		u.state = UpdaterFailed
		u.err = perr
		return
	}
	if resp == nil {
		return // need more bytes
	}

	nodes, perr := parseClusterNodes(string(extractBulkValue(resp.Body)), selfHost)
	if perr != nil {
		u.state = UpdaterFailed
		u.err = perr
		return
	}
	if hasEmptyHost(nodes) {
		u.state = UpdaterFailed
		u.err = rcerrors.ErrEmptyHost
		return
	}
	if !fullyCovers(nodes) {
		u.state = UpdaterFailed
		u.err = rcerrors.ErrNoCoverage
		return
	}
	u.nodes = nodes
	u.state = UpdaterParsed
}

func (u *Updater) close() {
	if u.fd > 0 {
		_ = syscall.Close(u.fd)
	}
	if u.buf != nil {
		u.buf.Release()
	}
}

func dialNonBlocking(addr string) (int, error) {
	raddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return 0, err
	}
	var sa syscall.Sockaddr
	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_STREAM, 0)
	if err != nil {
		return 0, err
	}
	if err := syscall.SetNonblock(fd, true); err != nil {
		_ = syscall.Close(fd)
		return 0, err
	}
	ip4 := raddr.IP.To4()
	if ip4 != nil {
		var sa4 syscall.SockaddrInet4
		copy(sa4.Addr[:], ip4)
		sa4.Port = raddr.Port
		sa = &sa4
	} else {
		var sa6 syscall.SockaddrInet6
		copy(sa6.Addr[:], raddr.IP.To16())
		sa6.Port = raddr.Port
		sa = &sa6
	}
	if err := syscall.Connect(fd, sa); err != nil && err != syscall.EINPROGRESS {
		_ = syscall.Close(fd)
		return 0, err
	}
	return fd, nil
}

// candidateBackoff orders candidate addresses by next-eligible-retry
// time, so a flapping seed address isn't redialed on every refresh. This
// repurposes the llrb tree the teacher used for per-command timeouts
// (spec.md has none) into the updater's own backoff structure — see
// DESIGN.md. The tree alone can only be searched by its Less ordering
// (retryAt, then addr), which can't locate "the entry for this addr"
// directly, so byAddr indexes the live entries the same way the
// teacher's caller already holds the *Frag it wants to Delete straight
// off the tree.
type candidateBackoff struct {
	tree   *llrb.LLRB
	byAddr map[string]*candidateEntry
}

type candidateEntry struct {
	addr    string
	retryAt time.Time
	order   int
}

func (e *candidateEntry) Less(than llrb.Item) bool {
	o := than.(*candidateEntry)
	if e.retryAt.Equal(o.retryAt) {
		return e.addr < o.addr
	}
	return e.retryAt.Before(o.retryAt)
}

func newCandidateBackoff() *candidateBackoff {
	return &candidateBackoff{tree: llrb.New(), byAddr: make(map[string]*candidateEntry)}
}

// seed registers a configured seed address at order 0 (immediately
// eligible, no backoff) so initial startup never waits on a fake prior
// failure. A no-op if addr is already tracked, so re-seeding never
// resets an address's accumulated backoff.
func (b *candidateBackoff) seed(addr string) {
	if _, ok := b.byAddr[addr]; ok {
		return
	}
	entry := &candidateEntry{addr: addr}
	b.tree.ReplaceOrInsert(entry)
	b.byAddr[addr] = entry
}

func (b *candidateBackoff) markFailed(addr string) {
	order := 1
	if e, ok := b.byAddr[addr]; ok {
		order = e.order + 1
		b.tree.Delete(e)
	}
	backoff := time.Duration(1<<uint(min(order, 6))) * time.Second
	entry := &candidateEntry{addr: addr, retryAt: time.Now().Add(backoff), order: order}
	b.tree.ReplaceOrInsert(entry)
	b.byAddr[addr] = entry
}

func (b *candidateBackoff) eligible(now time.Time) []string {
	var out []string
	b.tree.AscendLessThan(&candidateEntry{retryAt: now}, func(i llrb.Item) bool {
		out = append(out, i.(*candidateEntry).addr)
		return true
	})
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
