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

import "time"

// Option sets up one field of Options; functional-option style, adapted
// from the teacher's core/options.go.
type Option func(opts *Options)

func loadOptions(options ...Option) *Options {
	opts := &Options{
		ReadBufferCap:         64 * 1024,
		Workers:               1,
		ClusterDialTimeout:    time.Second,
		ClusterRefreshBackoff: time.Second,
	}
	for _, option := range options {
		option(opts)
	}
	return opts
}

// Options configures the proxy's listener, workers, and back-end dial
// behavior.
type Options struct {
	// ListenAddr is the client-facing TCP address, e.g. ":6380".
	ListenAddr string

	// Workers is the number of reactor goroutines, each with its own
	// epoll instance and listener fd bound via SO_REUSEPORT.
	Workers int

	// ReadBufferCap is stored but not read: ReadFromFD always uses a
	// fixed 64 KiB temporary buffer.
	ReadBufferCap int

	// TCPKeepAlive sets SO_KEEPALIVE on client and server sockets.
	TCPKeepAlive time.Duration

	// SocketRecvBuffer / SocketSendBuffer are stored but not applied:
	// no socket is given SO_RCVBUF/SO_SNDBUF from them.
	SocketRecvBuffer int
	SocketSendBuffer int

	// SeedAddrs bootstraps the first slot-map updater before any
	// CLUSTER NODES reply has ever been parsed.
	SeedAddrs []string

	// ClusterDialTimeout bounds a single updater's non-blocking connect.
	ClusterDialTimeout time.Duration

	// ClusterRefreshBackoff is the base backoff unit for a failed
	// candidate address (see candidateBackoff).
	ClusterRefreshBackoff time.Duration

	// RedisPasswd authenticates the proxy to back-end nodes (empty
	// means no AUTH handshake is required before Initialized).
	RedisPasswd string

	// AllowSlaveReads lets read-only commands route to a live, unbanned
	// slave replica of the slot's master instead of the master itself.
	AllowSlaveReads bool
}

func WithListenAddr(addr string) Option {
	return func(opts *Options) { opts.ListenAddr = addr }
}

func WithWorkers(n int) Option {
	return func(opts *Options) { opts.Workers = n }
}

func WithReadBufferCap(n int) Option {
	return func(opts *Options) { opts.ReadBufferCap = n }
}

func WithTCPKeepAlive(d time.Duration) Option {
	return func(opts *Options) { opts.TCPKeepAlive = d }
}

func WithSocketRecvBuffer(n int) Option {
	return func(opts *Options) { opts.SocketRecvBuffer = n }
}

func WithSocketSendBuffer(n int) Option {
	return func(opts *Options) { opts.SocketSendBuffer = n }
}

func WithSeedAddrs(addrs []string) Option {
	return func(opts *Options) { opts.SeedAddrs = addrs }
}

func WithClusterDialTimeout(d time.Duration) Option {
	return func(opts *Options) { opts.ClusterDialTimeout = d }
}

func WithRedisPasswd(passwd string) Option {
	return func(opts *Options) { opts.RedisPasswd = passwd }
}

func WithAllowSlaveReads(allow bool) Option {
	return func(opts *Options) { opts.AllowSlaveReads = allow }
}
