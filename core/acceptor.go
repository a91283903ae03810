// Copyright (c) 2022 The rcproxy Authors
// Copyright (c) 2021 Andy Pan
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

	"rcproxy/core/pkg/logging"
)

// accept drains the listener until EAGAIN, registering a Client for
// each new connection. EMFILE/ENFILE (out of descriptors) is logged and
// absorbed rather than killing the worker — the listener stays
// registered and the next read-ready edge retries.
func (w *worker) accept() error {
	for {
		nfd, sa, err := unix.Accept(w.ln.fd)
		if err != nil {
			if err == unix.EAGAIN {
				return nil
			}
			if err == unix.EMFILE || err == unix.ENFILE {
				logging.Warnf("accept: out of file descriptors: %v", err)
				return nil
			}
			logging.Errorf("accept() failed: %v", err)
			return os.NewSyscallError("accept", err)
		}
		if err := unix.SetNonblock(nfd, true); err != nil {
			logging.Errorf("fcntl nonblock on accepted socket: %v", err)
			_ = unix.Close(nfd)
			continue
		}
		_ = setNoDelay(nfd)
		if w.opts.TCPKeepAlive > 0 {
			_ = setKeepAlivePeriod(nfd, int(w.opts.TCPKeepAlive.Seconds()))
		}

		addr := sockaddrToTCPAddr(sa)
		if !w.allowIPOrDefault(addr) {
			_ = unix.Close(nfd)
			continue
		}

		c := NewClient(nfd, addr, w.allocCounter)
		if err := w.poller.addRead(nfd); err != nil {
			logging.Errorf("failed to register accepted socket: %v", err)
			c.Close()
			_ = unix.Close(nfd)
			continue
		}
		w.clients[nfd] = c
		w.stats.ClientConnections.Inc()
	}
}
