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
	"net"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// Socket option helpers reimplemented from the call sites of the
// teacher's core/internal/socket package (listener.go, acceptor.go,
// engine.go), which is absent from the retrieved teacher slice.

func setReuseAddr(fd int) error {
	return os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1))
}

func setReusePort(fd int) error {
	return os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1))
}

func setNoDelay(fd int) error {
	return os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1))
}

func setKeepAlivePeriod(fd int, secs int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
		return os.NewSyscallError("setsockopt", err)
	}
	return os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, secs))
}

func setRecvBuffer(fd int, size int) error {
	return os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, size))
}

func setSendBuffer(fd int, size int) error {
	return os.NewSyscallError("setsockopt", unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, size))
}

// tcpListenerSocket creates, binds, and listens on a non-blocking TCP
// socket for addr ("host:port" or ":port"), with SO_REUSEADDR and
// SO_REUSEPORT set so Workers independent listener fds can all bind the
// same port.
func tcpListenerSocket(addr string) (fd int, err error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, err
	}

	fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return 0, os.NewSyscallError("socket", err)
	}

	if err = setReuseAddr(fd); err != nil {
		_ = unix.Close(fd)
		return 0, err
	}
	if err = setReusePort(fd); err != nil {
		_ = unix.Close(fd)
		return 0, err
	}
	if err = unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return 0, os.NewSyscallError("fcntl nonblock", err)
	}

	var ip [4]byte
	if host != "" && host != "0.0.0.0" {
		parsed := net.ParseIP(host).To4()
		if parsed == nil {
			_ = unix.Close(fd)
			return 0, errBadListenHost(host)
		}
		copy(ip[:], parsed)
	}

	sa := &unix.SockaddrInet4{Port: port, Addr: ip}
	if err = unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return 0, os.NewSyscallError("bind", err)
	}
	if err = unix.Listen(fd, 1024); err != nil {
		_ = unix.Close(fd)
		return 0, os.NewSyscallError("listen", err)
	}
	return fd, nil
}

type badListenHostError string

func (e badListenHostError) Error() string { return "invalid listen host: " + string(e) }

func errBadListenHost(host string) error { return badListenHostError(host) }

func sockaddrToTCPAddr(sa unix.Sockaddr) string {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(v.Addr[:]).String(), strconv.Itoa(v.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(v.Addr[:]).String(), strconv.Itoa(v.Port))
	default:
		return ""
	}
}
