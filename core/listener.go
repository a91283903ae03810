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
	"sync"

	"golang.org/x/sys/unix"

	"rcproxy/core/pkg/logging"
)

// listener is one worker's own bound-and-listening socket. Workers > 1
// each normalize their own listener against the same address, relying
// on SO_REUSEPORT for the kernel to load-balance accepts across them —
// this replaces the teacher's single shared listener + internal
// socket.Option list (core/internal/socket is absent from the
// retrieved teacher slice).
type listener struct {
	once sync.Once
	fd   int
	addr string
}

func initListener(addr string) (*listener, error) {
	fd, err := tcpListenerSocket(addr)
	if err != nil {
		return nil, err
	}
	return &listener{fd: fd, addr: addr}, nil
}

func (ln *listener) close() {
	ln.once.Do(func() {
		if ln.fd > 0 {
			logging.Error(unix.Close(ln.fd))
		}
	})
}
