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
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	pkgerrors "github.com/pkg/errors"

	"rcproxy/core/authip"
	"rcproxy/core/server"
)

// Engine owns every worker goroutine; each worker binds its own
// listener socket to the same address via SO_REUSEPORT and runs an
// entirely independent epoll loop with its own Clients/Servers/
// Updaters — no cross-worker locking anywhere on the hot path, matching
// the teacher's one-thread-per-eventloop model.
type Engine struct {
	opts    *Options
	stats   *ProxyStats
	authIP  *authip.Watcher
	workers []*worker
	wg      sync.WaitGroup

	// nodes is the most recently installed CLUSTER NODES view, published
	// by whichever worker's updater won the most recent refresh race;
	// read by the web package's /cluster/nodes handler from an
	// arbitrary goroutine, hence the atomic.Value rather than a plain
	// field.
	nodes atomic.Value
}

// ClusterNodes returns the most recently installed node list, or nil if
// no slot-map refresh has completed yet.
func (eng *Engine) ClusterNodes() []*RedisNode {
	v := eng.nodes.Load()
	if v == nil {
		return nil
	}
	return v.([]*RedisNode)
}

// New builds an Engine from the given options, registering its
// prometheus collectors against reg and consulting ipWatcher (nil
// disables IP filtering) on every accepted connection.
func New(reg prometheus.Registerer, ipWatcher *authip.Watcher, options ...Option) (*Engine, error) {
	opts := loadOptions(options...)
	if opts.ListenAddr == "" {
		return nil, pkgerrors.New("engine: ListenAddr is required")
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	eng := &Engine{
		opts:   opts,
		stats:  NewProxyStats(reg),
		authIP: ipWatcher,
	}

	var allowIP func(string) bool
	if ipWatcher != nil {
		allowIP = ipWatcher.Allowed
	}

	policy := server.New(
		server.WithRedisPassword(opts.RedisPasswd),
		server.WithDisableRedisSlave(!opts.AllowSlaveReads),
	)

	for i := 0; i < opts.Workers; i++ {
		ln, err := initListener(opts.ListenAddr)
		if err != nil {
			eng.closeListeners()
			return nil, pkgerrors.Wrapf(err, "engine: worker %d listener", i)
		}
		w, err := newWorker(i, ln, opts, eng.stats, allowIP, policy, func(nodes []*RedisNode) { eng.nodes.Store(nodes) })
		if err != nil {
			ln.close()
			eng.closeListeners()
			return nil, pkgerrors.Wrapf(err, "engine: worker %d", i)
		}
		eng.workers = append(eng.workers, w)
	}
	return eng, nil
}

func (eng *Engine) closeListeners() {
	for _, w := range eng.workers {
		w.ln.close()
	}
}

// Start launches every worker's event loop in its own goroutine and
// returns immediately.
func (eng *Engine) Start() {
	for _, w := range eng.workers {
		w := w
		eng.wg.Add(1)
		go func() {
			defer eng.wg.Done()
			w.run()
		}()
	}
}

// Stop signals every worker to exit its poll loop and waits for all of
// them to finish draining and closing their connections.
func (eng *Engine) Stop() {
	for _, w := range eng.workers {
		w.stop()
	}
	eng.wg.Wait()
}

// Wait blocks until every worker goroutine has returned (normally only
// after Stop).
func (eng *Engine) Wait() {
	eng.wg.Wait()
}
