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
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"rcproxy/core/pkg/logging"
)

// Config is the on-disk yaml shape, adapted from the teacher's
// config.Config with the fields the reactor rewrite actually consumes:
// Workers (the teacher ran one eventloop; this proxy runs N, each its
// own SO_REUSEPORT listener) and the cluster-refresh timing knobs
// spec.md §6 needs replace the teacher's single ConnTimeout/Timeout
// pair.
type Config struct {
	Port    int `yaml:"port"`
	WebPort int `yaml:"web_port"`
	Workers int `yaml:"workers"`

	LogPath      string `yaml:"log_path"`
	LogLevel     string `yaml:"log_level"`
	LogExpireDay int    `yaml:"log_expire_day"`

	Redis redisConfig `yaml:"redis"`
}

type redisConfig struct {
	Servers            string `yaml:"servers"`
	Password           string `yaml:"password"`
	DisableSlave       bool   `yaml:"disable_slave"`
	ReadBufferCapBytes int    `yaml:"read_buffer_cap_bytes"`
	DialTimeoutMs      int    `yaml:"dial_timeout_ms"`
	RefreshBackoffMs   int    `yaml:"refresh_backoff_ms"`
	TCPKeepAliveSec    int    `yaml:"tcp_keepalive_sec"`
	SocketRecvBuffer   int    `yaml:"socket_recv_buffer"`
	SocketSendBuffer   int    `yaml:"socket_send_buffer"`
}

func LoadConfig(fileName string) (*Config, error) {
	file, err := os.ReadFile(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read file from %s", fileName)
	}
	cfg := defaultConfig()
	if err = yaml.Unmarshal(file, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", fileName)
	}
	if err = cfg.validate(); err != nil {
		return nil, errors.Wrapf(err, "config validate failed")
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Workers:      1,
		LogPath:      "log",
		LogLevel:     "info",
		LogExpireDay: 7,
		Redis: redisConfig{
			ReadBufferCapBytes: 64 * 1024,
			DialTimeoutMs:      1000,
			RefreshBackoffMs:   1000,
		},
	}
}

func (c *Config) validate() error {
	if _, ok := logging.LevelMapperRev[c.LogLevel]; !ok {
		return errors.Errorf("unknown log level %s", c.LogLevel)
	}
	if len(strings.TrimSpace(c.Redis.Servers)) < 1 {
		return errors.Errorf("unknown redis addrs")
	}
	if c.Workers < 1 {
		return errors.Errorf("workers must be >= 1")
	}
	return nil
}

// SeedAddrs splits the comma-separated Redis.Servers field the same way
// the teacher's cluster bootstrap does.
func (c *Config) SeedAddrs() []string {
	var out []string
	for _, addr := range strings.Split(c.Redis.Servers, ",") {
		addr = strings.TrimSpace(addr)
		if addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.Redis.DialTimeoutMs) * time.Millisecond
}

func (c *Config) RefreshBackoff() time.Duration {
	return time.Duration(c.Redis.RefreshBackoffMs) * time.Millisecond
}

func (c *Config) TCPKeepAlive() time.Duration {
	return time.Duration(c.Redis.TCPKeepAliveSec) * time.Second
}
