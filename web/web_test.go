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

package web

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rcproxy/core"
	"rcproxy/core/authip"
)

func newTestRouter(t *testing.T, ipWatcher *authip.Watcher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	eng, err := core.New(prometheus.NewRegistry(), ipWatcher,
		core.WithListenAddr("127.0.0.1:0"),
		core.WithWorkers(1),
	)
	require.NoError(t, err)
	t.Cleanup(eng.Stop)

	r := gin.New()
	Init(r, eng, ipWatcher, BuildInfo{Tag: "v1.2.3", CommitSHA: "abcdef", BuildTime: "2026-07-30"})
	return r
}

func TestHandleClusterNodesEmpty(t *testing.T) {
	r := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/cluster/nodes", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "null", w.Body.String())
}

func TestHandleAuthIPNilWatcher(t *testing.T) {
	r := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/authip", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"enabled":false,"entries":null}`, w.Body.String())
}

func TestHandleAuthIPWithWatcher(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "authip.yaml"), []byte(`
enable: true
ip_white_list:
  - 10.0.0.1
  - 10.0.0.2
`), 0o644))
	watcher, err := authip.New(dir, "authip.yaml")
	require.NoError(t, err)

	r := newTestRouter(t, watcher)
	req := httptest.NewRequest(http.MethodGet, "/authip", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"enabled":true,"entries":["10.0.0.1","10.0.0.2"]}`, w.Body.String())
}

func TestHandleVersion(t *testing.T) {
	r := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tag":"v1.2.3","commit":"abcdef","time":"2026-07-30"}`, w.Body.String())
}

func TestHandleDebugNodeMissingAddr(t *testing.T) {
	r := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/debug/node", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleDebugNodeDialFailure(t *testing.T) {
	r := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/debug/node?addr=127.0.0.1:1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}
