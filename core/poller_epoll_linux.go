// Copyright (c) 2022 The rcproxy Authors
// Copyright (c) 2019 Andy Pan
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
	"os"

	"golang.org/x/sys/unix"
)

// poller wraps one epoll instance. Grounded on the teacher's
// core/internal/netpoll Poller (absent from the retrieved slice): this
// is a from-scratch reimplementation against its visible call sites in
// reactor_default_linux.go, acceptor.go, listener.go.
type poller struct {
	fd        int
	eventFd   int // used to wake Polling from another goroutine
	events    []unix.EpollEvent
}

func newPoller() (*poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	eventFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(fd)
		return nil, os.NewSyscallError("eventfd", err)
	}
	p := &poller{fd: fd, eventFd: eventFd, events: make([]unix.EpollEvent, 128)}
	if err := p.addRead(eventFd); err != nil {
		p.close()
		return nil, err
	}
	return p, nil
}

func (p *poller) close() {
	_ = unix.Close(p.eventFd)
	_ = unix.Close(p.fd)
}

func (p *poller) addRead(fd int) error {
	return os.NewSyscallError("epoll_ctl add", unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd,
		&unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}))
}

func (p *poller) addReadWrite(fd int) error {
	return os.NewSyscallError("epoll_ctl add", unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd,
		&unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLOUT, Fd: int32(fd)}))
}

func (p *poller) modRead(fd int) error {
	return os.NewSyscallError("epoll_ctl mod", unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd,
		&unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}))
}

func (p *poller) modReadWrite(fd int) error {
	return os.NewSyscallError("epoll_ctl mod", unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd,
		&unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLOUT, Fd: int32(fd)}))
}

func (p *poller) delete(fd int) error {
	return os.NewSyscallError("epoll_ctl del", unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil))
}

// wake unblocks a concurrent Wait call, used to deliver the shutdown
// signal to a worker blocked in epoll_wait.
func (p *poller) wake() error {
	var b [8]byte
	b[0] = 1
	_, err := unix.Write(p.eventFd, b[:])
	return err
}

// polledEvent is one ready fd plus its readable/writable/error flags.
type polledEvent struct {
	fd               int
	readable, writable, hup bool
}

// wait blocks until at least one fd is ready (or the poller is woken)
// and returns the ready set. timeoutMillis < 0 blocks indefinitely.
func (p *poller) wait(timeoutMillis int) ([]polledEvent, error) {
	n, err := unix.EpollWait(p.fd, p.events, timeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, os.NewSyscallError("epoll_wait", err)
	}
	out := make([]polledEvent, 0, n)
	for i := 0; i < n; i++ {
		ev := p.events[i]
		fd := int(ev.Fd)
		if fd == p.eventFd {
			var b [8]byte
			_, _ = unix.Read(p.eventFd, b[:])
			continue
		}
		out = append(out, polledEvent{
			fd:       fd,
			readable: ev.Events&(unix.EPOLLIN|unix.EPOLLERR|unix.EPOLLHUP) != 0,
			writable: ev.Events&unix.EPOLLOUT != 0,
			hup:      ev.Events&(unix.EPOLLHUP|unix.EPOLLERR|unix.EPOLLRDHUP) != 0,
		})
	}
	return out, nil
}
