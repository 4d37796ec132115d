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

package trust

import (
	"bytes"
	"fmt"

	"github.com/sigstore/sigstore/pkg/signature"

	"github.com/NickDickinsonWilde/pkgtrust/metadata"
)

// roleKeys is one role's signing requirement inside a DB.
type roleKeys struct {
	keyIDs    map[string]struct{}
	threshold int
}

// DB holds the key set and per-role signing requirements currently in
// force: either the four top level roles as declared by a root payload,
// or the delegated roles declared by one targets payload. A DB is
// rebuilt from scratch whenever its source document is replaced.
type DB struct {
	roles     map[string]*roleKeys
	verifiers map[string]signature.Verifier
}

// NewDB builds the trust database for the top level roles from a root
// payload. Keys of unsupported types are skipped; a role whose keys are
// all unusable simply can never meet its threshold.
func NewDB(root *metadata.Root) (*DB, error) {
	db := &DB{
		roles:     make(map[string]*roleKeys, len(root.Roles)),
		verifiers: make(map[string]signature.Verifier, len(root.Keys)),
	}
	for name, def := range root.Roles {
		if err := db.addRole(name, def); err != nil {
			return nil, err
		}
	}
	for id, key := range root.Keys {
		if err := db.addKey(id, key); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// NewDelegationsDB builds a scoped database from a targets role's
// delegations block: only the declaring role's keys and thresholds
// apply, which is how delegation narrows trust.
func NewDelegationsDB(d *metadata.Delegations) (*DB, error) {
	db := &DB{
		roles:     make(map[string]*roleKeys, len(d.Roles)),
		verifiers: make(map[string]signature.Verifier, len(d.Keys)),
	}
	for _, r := range d.Roles {
		switch r.Name {
		case metadata.RoleRoot, metadata.RoleTimestamp, metadata.RoleSnapshot, metadata.RoleTargets:
			return nil, &metadata.ErrMalformedMetadata{Msg: fmt.Sprintf("delegated role cannot use top level name %s", r.Name)}
		}
		if err := db.addRole(r.Name, &metadata.RoleDef{KeyIDs: r.KeyIDs, Threshold: r.Threshold}); err != nil {
			return nil, err
		}
	}
	for id, key := range d.Keys {
		if err := db.addKey(id, key); err != nil {
			return nil, err
		}
	}
	return db, nil
}

func (db *DB) addRole(name string, def *metadata.RoleDef) error {
	if def.Threshold < 1 {
		return &metadata.ErrMalformedMetadata{Msg: fmt.Sprintf("role %s has invalid threshold %d", name, def.Threshold)}
	}
	rk := &roleKeys{
		keyIDs:    make(map[string]struct{}, len(def.KeyIDs)),
		threshold: def.Threshold,
	}
	for _, id := range def.KeyIDs {
		rk.keyIDs[id] = struct{}{}
	}
	db.roles[name] = rk
	return nil
}

func (db *DB) addKey(id string, key *metadata.Key) error {
	verifier, err := key.Verifier()
	if err != nil {
		// an unusable key is not fatal for the whole key set
		log := metadata.GetLogger()
		log.Info("skipping unusable key", "keyid", id, "keytype", key.Type)
		return nil
	}
	db.verifiers[id] = verifier
	return nil
}

// HasRole reports whether the database defines a signing requirement
// for the named role.
func (db *DB) HasRole(name string) bool {
	_, ok := db.roles[name]
	return ok
}

// VerifyRole checks that the signatures over the canonical payload meet
// the named role's threshold. Only keys authorized for the role count,
// and each key counts at most once no matter how many signatures it
// produced.
func (db *DB) VerifyRole(name string, payload []byte, sigs []metadata.Signature) error {
	role, ok := db.roles[name]
	if !ok {
		return &metadata.ErrMalformedMetadata{Msg: fmt.Sprintf("no signing requirement defined for role %s", name)}
	}
	log := metadata.GetLogger()
	verified := map[string]struct{}{}
	for _, sig := range sigs {
		if _, authorized := role.keyIDs[sig.KeyID]; !authorized {
			continue
		}
		verifier, ok := db.verifiers[sig.KeyID]
		if !ok {
			continue
		}
		if err := verifier.VerifySignature(bytes.NewReader(sig.Signature), bytes.NewReader(payload)); err != nil {
			log.Info("signature verification failed", "role", name, "keyid", sig.KeyID)
			continue
		}
		verified[sig.KeyID] = struct{}{}
	}
	if len(verified) < role.threshold {
		return &metadata.ErrUnsignedMetadata{Msg: fmt.Sprintf("verifying %s failed, not enough signatures, got %d, want %d", name, len(verified), role.threshold)}
	}
	log.Info("verified role", "role", name, "signatures", len(verified), "threshold", role.threshold)
	return nil
}
