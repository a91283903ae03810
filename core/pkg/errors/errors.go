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

package errors

import "errors"

var (
	// ErrEngineShutdown occurs when the worker is closing.
	ErrEngineShutdown = errors.New("proxy is going to be shutdown")
	// ErrEngineInShutdown occurs when attempting to shut the worker down more than once.
	ErrEngineInShutdown = errors.New("proxy is already in shutdown")
	// ErrAcceptSocket occurs when the acceptor does not accept the new connection properly.
	ErrAcceptSocket = errors.New("accept a new connection error")
	// ErrUnsupportedProtocol occurs when trying to use a protocol that is not supported.
	ErrUnsupportedProtocol = errors.New("only tcp/tcp4/tcp6 are supported")
	// ErrUnsupportedOp occurs when calling a method that has not been implemented.
	ErrUnsupportedOp = errors.New("unsupported operation")

	// ================================================= codec errors =================================================.

	// ErrIncompletePacket occurs when there is an incomplete packet under TCP.
	ErrIncompletePacket = errors.New("incomplete packet")

	// ================================================= cluster errors =================================================.

	// ErrNoCoverage occurs when an updater's proposed slot map does not cover all slots.
	ErrNoCoverage = errors.New("slot map does not cover all slots")
	// ErrEmptyHost occurs when a cluster-nodes line carries an empty host.
	ErrEmptyHost = errors.New("node entry has an empty host")
	// ErrClusterDown surfaces to the client when no updater can produce a usable map.
	ErrClusterDown = errors.New("the cluster is down")
)
