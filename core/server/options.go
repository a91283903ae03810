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

// Package server holds the back-end connection policy the teacher kept
// on its listenServer: the AUTH/READONLY handshake a fresh node
// connection must complete before it carries traffic, and the
// read-slave routing (with ban/backoff for slaves that misbehave) used
// when a read-only command can be served off a replica. It has no
// dependency on package core — the worker feeds it plain addresses and
// consumes plain decisions, keeping the policy testable in isolation.
package server

import "time"

type Option func(opts *Options)

func loadOptions(options ...Option) *Options {
	opts := &Options{BanBaseBackoff: 100 * time.Millisecond, MaxBanOrder: 5}
	for _, option := range options {
		option(opts)
	}
	return opts
}

type Options struct {
	Password       string
	DisableSlave   bool
	BanBaseBackoff time.Duration
	MaxBanOrder    int
}

func WithRedisPassword(passwd string) Option {
	return func(opts *Options) { opts.Password = passwd }
}

func WithDisableRedisSlave(disable bool) Option {
	return func(opts *Options) { opts.DisableSlave = disable }
}

func WithBanBaseBackoff(d time.Duration) Option {
	return func(opts *Options) { opts.BanBaseBackoff = d }
}

// Policy is the proxy-wide back-end connection policy: one instance is
// shared (read-only after construction) across every worker.
type Policy struct {
	*Options
}

func New(opts ...Option) *Policy {
	return &Policy{Options: loadOptions(opts...)}
}
