// Copyright 2026 The pkgtrust Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License
//
// SPDX-License-Identifier: Apache-2.0
//

package config

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Config carries the client's bounds and knobs. Byte caps apply when a
// document's size is not declared by already-trusted metadata; the
// rotation and delegation limits bound work against a hostile or broken
// repository.
type Config struct {
	// MaxRootRotations caps how many root versions one Refresh will
	// walk forward.
	MaxRootRotations int64
	// MaxDelegations caps how many delegated roles one target
	// resolution may visit.
	MaxDelegations int
	// MaxDelegationDepth caps how deep the delegation graph may nest.
	MaxDelegationDepth int

	RootMaxLength      int64
	TimestampMaxLength int64
	SnapshotMaxLength  int64
	TargetsMaxLength   int64
	// TargetFileMaxLength bounds a target download whose length is not
	// known in advance.
	TargetFileMaxLength int64

	// PrefixTargetsWithHash selects hash-prefixed target file names on
	// repositories with consistent snapshots.
	PrefixTargetsWithHash bool

	// Clock supplies the verification reference time.
	Clock clockwork.Clock

	UserAgent   string
	HTTPTimeout time.Duration
}

// New returns a Config with the defaults.
func New() *Config {
	return &Config{
		MaxRootRotations:      32,
		MaxDelegations:        32,
		MaxDelegationDepth:    8,
		RootMaxLength:         512000,   // bytes
		TimestampMaxLength:    16384,    // bytes
		SnapshotMaxLength:     2000000,  // bytes
		TargetsMaxLength:      5000000,  // bytes
		TargetFileMaxLength:   30000000, // bytes
		PrefixTargetsWithHash: true,
		Clock:                 clockwork.NewRealClock(),
		HTTPTimeout:           15 * time.Second,
	}
}
