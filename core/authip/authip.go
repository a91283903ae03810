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

// Package authip hot-reloads the client-IP allow-list gating inbound
// proxy connections.
package authip

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"rcproxy/core/pkg/logging"
)

type config struct {
	Enable    bool     `yaml:"enable"`
	Whitelist []string `yaml:"ip_white_list"`
}

// Watcher holds the current allow-list and keeps it in sync with the
// backing YAML file until the process exits.
type Watcher struct {
	dir, file string

	enabled int32 // atomic bool
	set     *hashmap.HashMap

	mu      sync.RWMutex
	entries []string // snapshot of the current whitelist, for the web package's debug endpoint
}

// New loads confDir/confFile once and starts watching it for changes.
// A missing or empty-whitelist file means the allow-list is disabled —
// every client IP is accepted.
func New(confDir, confFile string) (*Watcher, error) {
	w := &Watcher{
		dir:  confDir,
		file: filepath.Join(confDir, confFile),
		set:  &hashmap.HashMap{},
	}
	if err := w.reload(); err != nil {
		return nil, err
	}
	if err := w.watch(); err != nil {
		return nil, err
	}
	return w, nil
}

// Snapshot reports whether the allow-list is currently enforced and a
// copy of its entries, for the web package's /authip debug endpoint.
func (w *Watcher) Snapshot() (enabled bool, ips []string) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ips = make([]string, len(w.entries))
	copy(ips, w.entries)
	return atomic.LoadInt32(&w.enabled) != 0, ips
}

// Allowed reports whether ip may open a client connection. Always true
// while the allow-list is disabled.
func (w *Watcher) Allowed(ip string) bool {
	if atomic.LoadInt32(&w.enabled) == 0 {
		return true
	}
	_, ok := w.set.Get(ip)
	return ok
}

func (w *Watcher) watch() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "authip: creating fsnotify watcher")
	}
	if err := fw.Add(w.dir); err != nil {
		return errors.Wrapf(err, "authip: watching %s", w.dir)
	}
	go func() {
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if ev.Name != w.file {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := w.reload(); err != nil {
					logging.Errorf("authip: reload %s: %s", w.file, err)
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				logging.Errorf("authip: watcher error: %s", err)
			}
		}
	}()
	return nil
}

func (w *Watcher) reload() error {
	raw, err := os.ReadFile(w.file)
	if os.IsNotExist(err) {
		atomic.StoreInt32(&w.enabled, 0)
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "authip: reading %s", w.file)
	}

	var cfg config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return errors.Wrapf(err, "authip: unmarshaling %s", w.file)
	}

	fresh := &hashmap.HashMap{}
	for _, ip := range cfg.Whitelist {
		fresh.GetOrInsert(ip, struct{}{})
	}
	w.set = fresh
	w.mu.Lock()
	w.entries = cfg.Whitelist
	w.mu.Unlock()
	if cfg.Enable && len(cfg.Whitelist) > 0 {
		atomic.StoreInt32(&w.enabled, 1)
	} else {
		atomic.StoreInt32(&w.enabled, 0)
	}
	logging.Infof("authip: loaded %d entries from %s (enabled=%v)", len(cfg.Whitelist), w.file, cfg.Enable)
	return nil
}
