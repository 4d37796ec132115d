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

// Package trust holds the collection of metadata a client currently
// trusts and enforces the ordered update workflow over it: root may
// only advance before timestamp is loaded, timestamp before snapshot,
// snapshot before targets. Every Update* method verifies its input
// against the state accepted so far and mutates the set only on full
// success, so the set never holds a half-accepted document.
package trust

import (
	"fmt"
	"time"

	"github.com/NickDickinsonWilde/pkgtrust/metadata"
)

// Set is the trusted metadata aggregate: the last accepted document for
// every role plus the reference time expiry is judged against. It is
// not safe for concurrent mutation; callers serialize writers.
type Set struct {
	Root      *metadata.Document[metadata.Root]
	Timestamp *metadata.Document[metadata.Timestamp]
	Snapshot  *metadata.Document[metadata.Snapshot]
	Targets   map[string]*metadata.Document[metadata.Targets]
	RefTime   time.Time

	db *DB
}

// NewSet pins initial trust from out-of-band root bytes. The root must
// parse and satisfy its own signing requirement for the root role. An
// expired initial root is accepted here; expiry is enforced once the
// final root is in place, when timestamp loads.
func NewSet(rootData []byte, refTime time.Time) (*Set, error) {
	s := &Set{
		Targets: map[string]*metadata.Document[metadata.Targets]{},
		RefTime: refTime.UTC(),
	}
	root, err := metadata.FromBytes[metadata.Root](rootData)
	if err != nil {
		return nil, err
	}
	db, err := NewDB(&root.Signed)
	if err != nil {
		return nil, err
	}
	payload, err := root.Canonical()
	if err != nil {
		return nil, err
	}
	if err := db.VerifyRole(metadata.RoleRoot, payload, root.Signatures); err != nil {
		return nil, err
	}
	s.Root = root
	s.db = db
	log := metadata.GetLogger()
	log.Info("loaded trusted root", "version", root.Signed.Version)
	return s, nil
}

// UpdateRoot verifies rootData as the next root. The candidate must be
// signed by a threshold of keys from the current trusted root and by
// its own key set (both requirements matter when root keys rotate), and
// must carry exactly the next version number.
func (s *Set) UpdateRoot(rootData []byte) (*metadata.Document[metadata.Root], error) {
	if s.Timestamp != nil {
		return nil, fmt.Errorf("cannot update root after timestamp")
	}
	newRoot, err := metadata.FromBytes[metadata.Root](rootData)
	if err != nil {
		return nil, err
	}
	payload, err := newRoot.Canonical()
	if err != nil {
		return nil, err
	}
	// previous root's signing requirement first
	if err := s.db.VerifyRole(metadata.RoleRoot, payload, newRoot.Signatures); err != nil {
		return nil, err
	}
	if newRoot.Signed.Version != s.Root.Signed.Version+1 {
		return nil, &metadata.ErrRollback{Msg: fmt.Sprintf("bad root version number, expected %d, got %d", s.Root.Signed.Version+1, newRoot.Signed.Version)}
	}
	// then the new root's own requirement
	newDB, err := NewDB(&newRoot.Signed)
	if err != nil {
		return nil, err
	}
	if err := newDB.VerifyRole(metadata.RoleRoot, payload, newRoot.Signatures); err != nil {
		return nil, err
	}
	s.Root = newRoot
	s.db = newDB
	log := metadata.GetLogger()
	log.Info("updated root", "version", newRoot.Signed.Version)
	return newRoot, nil
}

// UpdateTimestamp verifies timestampData as the new timestamp. An
// intermediate expired timestamp is loaded (it still anchors rollback
// protection for a newer one) but reported with an error; an expired
// timestamp blocks loading snapshot. An equal version yields
// ErrEqualVersion, which callers treat as a clean no-op.
func (s *Set) UpdateTimestamp(timestampData []byte) (*metadata.Document[metadata.Timestamp], error) {
	if s.Snapshot != nil {
		return nil, fmt.Errorf("cannot update timestamp after snapshot")
	}
	if s.Root.Signed.IsExpired(s.RefTime) {
		return nil, &metadata.ErrExpiredMetadata{Msg: "final root is expired"}
	}
	newTimestamp, err := metadata.FromBytes[metadata.Timestamp](timestampData)
	if err != nil {
		return nil, err
	}
	payload, err := newTimestamp.Canonical()
	if err != nil {
		return nil, err
	}
	if err := s.db.VerifyRole(metadata.RoleTimestamp, payload, newTimestamp.Signatures); err != nil {
		return nil, err
	}
	if s.Timestamp != nil {
		if newTimestamp.Signed.Version < s.Timestamp.Signed.Version {
			return nil, &metadata.ErrRollback{Msg: fmt.Sprintf("new timestamp version %d must be >= %d", newTimestamp.Signed.Version, s.Timestamp.Signed.Version)}
		}
		if newTimestamp.Signed.Version == s.Timestamp.Signed.Version {
			return nil, &metadata.ErrEqualVersion{Msg: fmt.Sprintf("new timestamp version %d equals the old one", newTimestamp.Signed.Version)}
		}
		// the snapshot a timestamp points at must not move backwards
		oldMeta := s.Timestamp.Signed.Meta[metadata.RoleSnapshot+".json"]
		newMeta := newTimestamp.Signed.Meta[metadata.RoleSnapshot+".json"]
		if newMeta.Version < oldMeta.Version {
			return nil, &metadata.ErrRollback{Msg: fmt.Sprintf("new snapshot version %d must be >= %d", newMeta.Version, oldMeta.Version)}
		}
	}
	s.Timestamp = newTimestamp
	log := metadata.GetLogger()
	log.Info("updated timestamp", "version", newTimestamp.Signed.Version)
	if err := s.checkFinalTimestamp(); err != nil {
		return newTimestamp, err
	}
	return newTimestamp, nil
}

func (s *Set) checkFinalTimestamp() error {
	if s.Timestamp.Signed.IsExpired(s.RefTime) {
		return &metadata.ErrExpiredMetadata{Msg: "timestamp is expired"}
	}
	return nil
}

// UpdateSnapshot verifies snapshotData as the new snapshot. Data not
// already trusted is first checked against the length and hashes the
// timestamp declares, binding snapshot to timestamp. An intermediate
// snapshot may be expired or carry a version other than the declared
// one; both block loading targets but the document is still kept for
// rollback protection.
func (s *Set) UpdateSnapshot(snapshotData []byte, isTrusted bool) (*metadata.Document[metadata.Snapshot], error) {
	if s.Timestamp == nil {
		return nil, fmt.Errorf("cannot update snapshot before timestamp")
	}
	if s.Targets[metadata.RoleTargets] != nil {
		return nil, fmt.Errorf("cannot update snapshot after targets")
	}
	if err := s.checkFinalTimestamp(); err != nil {
		return nil, err
	}
	declared := s.Timestamp.Signed.Meta[metadata.RoleSnapshot+".json"]
	if !isTrusted {
		if err := declared.VerifyLengthHashes(snapshotData); err != nil {
			return nil, err
		}
	}
	newSnapshot, err := metadata.FromBytes[metadata.Snapshot](snapshotData)
	if err != nil {
		return nil, err
	}
	payload, err := newSnapshot.Canonical()
	if err != nil {
		return nil, err
	}
	if err := s.db.VerifyRole(metadata.RoleSnapshot, payload, newSnapshot.Signatures); err != nil {
		return nil, err
	}
	if s.Snapshot != nil {
		for name, info := range s.Snapshot.Signed.Meta {
			newInfo, ok := newSnapshot.Signed.Meta[name]
			if !ok {
				return nil, &metadata.ErrRollback{Msg: fmt.Sprintf("new snapshot is missing info for %s", name)}
			}
			if newInfo.Version < info.Version {
				return nil, &metadata.ErrRollback{Msg: fmt.Sprintf("new snapshot version %d for %s must be >= %d", newInfo.Version, name, info.Version)}
			}
		}
	}
	s.Snapshot = newSnapshot
	log := metadata.GetLogger()
	log.Info("updated snapshot", "version", newSnapshot.Signed.Version)
	if err := s.checkFinalSnapshot(); err != nil {
		return newSnapshot, err
	}
	return newSnapshot, nil
}

func (s *Set) checkFinalSnapshot() error {
	if s.Snapshot.Signed.IsExpired(s.RefTime) {
		return &metadata.ErrExpiredMetadata{Msg: "snapshot is expired"}
	}
	declared := s.Timestamp.Signed.Meta[metadata.RoleSnapshot+".json"]
	if s.Snapshot.Signed.Version != declared.Version {
		return &metadata.ErrRollback{Msg: fmt.Sprintf("expected snapshot version %d, got %d", declared.Version, s.Snapshot.Signed.Version)}
	}
	return nil
}

// UpdateTargets verifies targetsData as the new top level targets
// metadata, delegated to by root.
func (s *Set) UpdateTargets(targetsData []byte) (*metadata.Document[metadata.Targets], error) {
	return s.UpdateDelegatedTargets(targetsData, metadata.RoleTargets, metadata.RoleRoot)
}

// UpdateDelegatedTargets verifies targetsData as new metadata for the
// named targets role. The document must match the version and hashes
// the snapshot records for it, be signed to the threshold the
// delegating role declares, and be unexpired.
func (s *Set) UpdateDelegatedTargets(targetsData []byte, roleName, delegator string) (*metadata.Document[metadata.Targets], error) {
	if s.Snapshot == nil {
		return nil, fmt.Errorf("cannot load targets before snapshot")
	}
	if err := s.checkFinalSnapshot(); err != nil {
		return nil, err
	}
	var delegatorTargets *metadata.Document[metadata.Targets]
	if delegator != metadata.RoleRoot {
		var ok bool
		delegatorTargets, ok = s.Targets[delegator]
		if !ok {
			return nil, fmt.Errorf("cannot load %s before delegator %s", roleName, delegator)
		}
	}
	declared, ok := s.Snapshot.Signed.Meta[roleName+".json"]
	if !ok {
		return nil, &metadata.ErrRepository{Msg: fmt.Sprintf("snapshot does not contain information for %s", roleName)}
	}
	if err := declared.VerifyLengthHashes(targetsData); err != nil {
		return nil, err
	}
	newTargets, err := metadata.FromBytes[metadata.Targets](targetsData)
	if err != nil {
		return nil, err
	}
	payload, err := newTargets.Canonical()
	if err != nil {
		return nil, err
	}
	if delegator == metadata.RoleRoot {
		if err := s.db.VerifyRole(roleName, payload, newTargets.Signatures); err != nil {
			return nil, err
		}
	} else {
		if delegatorTargets.Signed.Delegations == nil {
			return nil, &metadata.ErrMalformedMetadata{Msg: fmt.Sprintf("role %s delegates nothing", delegator)}
		}
		scoped, err := NewDelegationsDB(delegatorTargets.Signed.Delegations)
		if err != nil {
			return nil, err
		}
		if err := scoped.VerifyRole(roleName, payload, newTargets.Signatures); err != nil {
			return nil, err
		}
	}
	if newTargets.Signed.Version != declared.Version {
		return nil, &metadata.ErrRollback{Msg: fmt.Sprintf("expected %s version %d, got %d", roleName, declared.Version, newTargets.Signed.Version)}
	}
	if newTargets.Signed.IsExpired(s.RefTime) {
		return nil, &metadata.ErrExpiredMetadata{Msg: fmt.Sprintf("new %s is expired", roleName)}
	}
	s.Targets[roleName] = newTargets
	log := metadata.GetLogger()
	log.Info("updated targets", "role", roleName, "version", newTargets.Signed.Version, "delegator", delegator)
	return newTargets, nil
}
