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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigValid(t *testing.T) {
	path := writeTempConfig(t, `
port: 8300
web_port: 9300
workers: 4
redis:
  servers: "10.0.0.1:7000,10.0.0.2:7000"
  dial_timeout_ms: 500
  refresh_backoff_ms: 250
  tcp_keepalive_sec: 30
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8300, cfg.Port)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"10.0.0.1:7000", "10.0.0.2:7000"}, cfg.SeedAddrs())
	assert.Equal(t, 500*time.Millisecond, cfg.DialTimeout())
	assert.Equal(t, 250*time.Millisecond, cfg.RefreshBackoff())
	assert.Equal(t, 30*time.Second, cfg.TCPKeepAlive())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigUnknownLogLevel(t *testing.T) {
	path := writeTempConfig(t, `
redis:
  servers: "10.0.0.1:7000"
log_level: chatty
`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigEmptyRedisServers(t *testing.T) {
	path := writeTempConfig(t, `
redis:
  servers: "  "
`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigWorkersBelowOne(t *testing.T) {
	path := writeTempConfig(t, `
workers: 0
redis:
  servers: "10.0.0.1:7000"
`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSeedAddrsTrimsAndSkipsEmpty(t *testing.T) {
	c := &Config{Redis: redisConfig{Servers: " 10.0.0.1:7000 ,, 10.0.0.2:7000"}}
	assert.Equal(t, []string{"10.0.0.1:7000", "10.0.0.2:7000"}, c.SeedAddrs())
}
