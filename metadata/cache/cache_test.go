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

package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "metadata"))
	require.NoError(t, err)
	return s
}

func TestStoreRoundtrip(t *testing.T) {
	s := newStore(t)
	data := []byte(`{"signed":{"_type":"timestamp","version":7},"signatures":[]}`)
	require.NoError(t, s.Set("timestamp", data))

	got, err := s.Get("timestamp")
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, int64(7), s.Version("timestamp"))
}

func TestStoreGetMissing(t *testing.T) {
	s := newStore(t)
	_, err := s.Get("timestamp")
	assert.Error(t, err)
	assert.Equal(t, int64(0), s.Version("timestamp"))
}

func TestStoreOverwrite(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Set("snapshot", []byte(`{"signed":{"_type":"snapshot","version":1},"signatures":[]}`)))
	require.NoError(t, s.Set("snapshot", []byte(`{"signed":{"_type":"snapshot","version":2},"signatures":[]}`)))
	assert.Equal(t, int64(2), s.Version("snapshot"))
}

func TestStoreDelete(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Set("targets", []byte(`{"signed":{"_type":"targets","version":1},"signatures":[]}`)))
	require.NoError(t, s.Delete("targets"))
	_, err := s.Get("targets")
	assert.Error(t, err)
}

func TestStoreEscapesRoleNames(t *testing.T) {
	// role names come out of untrusted metadata, they must never be
	// usable as relative paths
	s := newStore(t)
	require.NoError(t, s.Set("../escape", []byte(`{"signed":{"version":1}}`)))

	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), "/")

	got, err := s.Get("../escape")
	require.NoError(t, err)
	assert.NotEmpty(t, got)
}

func TestVersionProbesDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "metadata")
	first, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.Set("root", []byte(`{"signed":{"_type":"root","version":3},"signatures":[]}`)))

	// a fresh store over the same directory sees the persisted version
	second, err := NewStore(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(3), second.Version("root"))
}
