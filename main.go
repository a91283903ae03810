// Copyright (c) 2022 The rcproxy Authors
// Copyright (c) 2011 Twitter, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License"): you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations
// under the License.

package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"rcproxy/config"
	"rcproxy/core"
	"rcproxy/core/authip"
	"rcproxy/core/pkg/logging"
	"rcproxy/web"
)

var (
	configPath       = flag.String("p", "conf", "Config file path")
	basicConfigFile  = flag.String("c", "rc.yaml", "Basic config filename")
	authIPConfigFile = flag.String("a", "authip.yaml", "Authip config filename")
	version          = flag.Bool("v", false, "Show version")
	help             = flag.Bool("h", false, "Show usage info")
)

var (
	CommitSHA string
	Tag       string
	BuildTime string
)

func init() {
	if len(Tag) < 1 {
		Tag = "unknown"
	}
	if len(CommitSHA) < 1 {
		CommitSHA = "unknown"
	}
	if len(BuildTime) < 1 {
		BuildTime = "unknown"
	}
}

const banner string = `
___________________________________________  ___  __
___  __ \_  ____/__  __ \__  __ \_  __ \_  |/ / \/ /
__  /_/ /  /    __  /_/ /_  /_/ /  / / /_    /__  /
_  _, _// /___  _  ____/_  _, _// /_/ /_    | _  /
/_/ |_| \____/  /_/     /_/ |_| \____/ /_/|_| /_/

`

func parseCli() {
	flag.Parse()
	if *version {
		fmt.Printf("version: %s\ncommit: %s\ntime: %s\n", Tag, CommitSHA, BuildTime)
		os.Exit(0)
	}
	if *help {
		flag.Usage()
		os.Exit(0)
	}
}

func main() {
	parseCli()

	cfg, err := config.LoadConfig(path.Join(*configPath, *basicConfigFile))
	if err != nil {
		logging.Errorf("parse config file err: %v", err)
		os.Exit(1)
	}

	if err = logging.InitializeLogger(cfg.LogPath, cfg.LogLevel, cfg.LogExpireDay); err != nil {
		logging.Errorf("failed to initialize logger, err: %s", err)
		os.Exit(1)
	}

	fmt.Print(banner)
	fmt.Printf("rcproxy version: %s\n", Tag)
	fmt.Printf("rcproxy started with port: %d, pid: %d\n", cfg.Port, syscall.Getpid())
	logging.Infof("rcproxy started with port: %d, pid: %d, rcproxy version: %s", cfg.Port, syscall.Getpid(), Tag)

	// Only whitelisted addresses can open a client connection.
	ipWatcher, err := authip.New(*configPath, *authIPConfigFile)
	if err != nil {
		logging.Errorf("failed to load IP white list, err: %s", err)
		os.Exit(1)
	}

	eng, err := core.New(prometheus.DefaultRegisterer, ipWatcher,
		core.WithListenAddr(fmt.Sprintf(":%d", cfg.Port)),
		core.WithWorkers(cfg.Workers),
		core.WithReadBufferCap(cfg.Redis.ReadBufferCapBytes),
		core.WithTCPKeepAlive(cfg.TCPKeepAlive()),
		core.WithSocketRecvBuffer(cfg.Redis.SocketRecvBuffer),
		core.WithSocketSendBuffer(cfg.Redis.SocketSendBuffer),
		core.WithSeedAddrs(cfg.SeedAddrs()),
		core.WithClusterDialTimeout(cfg.DialTimeout()),
		core.WithRedisPasswd(cfg.Redis.Password),
		core.WithAllowSlaveReads(!cfg.Redis.DisableSlave),
	)
	if err != nil {
		logging.Errorf("rcproxy engine init failed: %s", err)
		os.Exit(1)
	}

	if cfg.WebPort > 0 {
		addr := fmt.Sprintf(":%d", cfg.WebPort)
		gin.SetMode(gin.ReleaseMode)
		ginSrv := gin.New()
		web.Init(ginSrv, eng, ipWatcher, web.BuildInfo{Tag: Tag, CommitSHA: CommitSHA, BuildTime: BuildTime})
		httpSrv := &http.Server{Handler: ginSrv, Addr: addr}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Errorf("failed to start http server, err: %s", err)
			}
		}()
	}

	eng.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	eng.Stop()
	logging.Infof("rcproxy shutdown, pid: %d, listen: %d", syscall.Getpid(), cfg.Port)
}
