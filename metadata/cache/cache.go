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

// Package cache persists the last trusted copy of every metadata role
// document, one file per role. A document is written only after it has
// verified, via a temp file renamed into place, so readers never see a
// partially written role and a crash mid-update leaves the previous
// document intact.
package cache

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

// Store is a directory of <role>.json files plus an in-memory record of
// each stored document's version for cheap comparisons.
type Store struct {
	dir string

	mu       sync.RWMutex
	versions map[string]int64
}

// NewStore opens (creating if needed) the metadata directory.
func NewStore(dir string) (*Store, error) {
	fi, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		// user rwx, group rx
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case !fi.IsDir():
		return nil, fmt.Errorf("cannot open %s, not a directory", dir)
	}
	return &Store{
		dir:      dir,
		versions: map[string]int64{},
	}, nil
}

// fileName maps a role name to its file, escaping names of delegated
// roles that are not filesystem safe.
func (s *Store) fileName(role string) string {
	return filepath.Join(s.dir, url.QueryEscape(role)+".json")
}

// Get returns the stored bytes for a role, or os.ErrNotExist if the
// role was never stored.
func (s *Store) Get(role string) ([]byte, error) {
	return os.ReadFile(s.fileName(role))
}

// Set atomically replaces the stored document for a role.
func (s *Store) Set(role string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, "meta_tmp")
	if err != nil {
		return err
	}
	// user rw, group r
	if err := os.Chmod(tmp.Name(), 0640); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.fileName(role)); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	s.mu.Lock()
	s.versions[role] = probeVersion(data)
	s.mu.Unlock()
	return nil
}

// Delete removes a role's stored document.
func (s *Store) Delete(role string) error {
	s.mu.Lock()
	delete(s.versions, role)
	s.mu.Unlock()
	return os.Remove(s.fileName(role))
}

// Version returns the version of the stored document for role, reading
// it from disk the first time if this store did not write it. Zero
// means unknown or not stored.
func (s *Store) Version(role string) int64 {
	s.mu.RLock()
	v, ok := s.versions[role]
	s.mu.RUnlock()
	if ok {
		return v
	}
	data, err := s.Get(role)
	if err != nil {
		return 0
	}
	v = probeVersion(data)
	s.mu.Lock()
	s.versions[role] = v
	s.mu.Unlock()
	return v
}

// probeVersion extracts signed.version without a full parse.
func probeVersion(data []byte) int64 {
	probe := struct {
		Signed struct {
			Version int64 `json:"version"`
		} `json:"signed"`
	}{}
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0
	}
	return probe.Signed.Version
}
