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

package server

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rcproxy/core/codec"
)

func TestInitCommandNoPasswordNoSlave(t *testing.T) {
	p := New()
	cmd, steps := p.InitCommand(false)
	assert.Nil(t, cmd)
	assert.Equal(t, 0, steps)
}

func TestInitCommandPasswordOnly(t *testing.T) {
	p := New(WithRedisPassword("s3cret"))
	cmd, steps := p.InitCommand(false)
	assert.Equal(t, 1, steps)
	assert.Equal(t, "*2\r\n$4\r\nauth\r\n$6\r\ns3cret\r\n", string(cmd))
}

func TestInitCommandPasswordAndSlave(t *testing.T) {
	p := New(WithRedisPassword("s3cret"))
	cmd, steps := p.InitCommand(true)
	assert.Equal(t, 2, steps)
	assert.Equal(t, "*2\r\n$4\r\nauth\r\n$6\r\ns3cret\r\n*1\r\n$8\r\nREADONLY\r\n", string(cmd))
}

func TestInitCommandSlaveOnlyNoPassword(t *testing.T) {
	p := New()
	cmd, steps := p.InitCommand(true)
	assert.Equal(t, 1, steps)
	assert.Equal(t, "*1\r\n$8\r\nREADONLY\r\n", string(cmd))
}

func TestIsReadCommand(t *testing.T) {
	assert.True(t, IsReadCommand(codec.ReqGet))
	assert.False(t, IsReadCommand(codec.ReqSet))
}
