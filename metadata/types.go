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

package metadata

import (
	"encoding/json"
	"sync"
	"time"
)

// SpecificationVersion is the metadata format version written into every
// payload this package produces.
const SpecificationVersion = "1.0.31"

// Top level role names. Delegated targets roles may use any other name.
const (
	RoleRoot      = "root"
	RoleTimestamp = "timestamp"
	RoleSnapshot  = "snapshot"
	RoleTargets   = "targets"
)

// Payloads is the constraint over the four signed payload kinds.
type Payloads interface {
	Root | Timestamp | Snapshot | Targets
}

// Document is the signed envelope shared by all roles: a payload of one
// of the four kinds plus the signatures over its canonical encoding.
// When a Document was parsed from bytes it remembers the raw "signed"
// member so that signature verification covers exactly the bytes the
// repository signed, including fields this implementation does not know.
type Document[T Payloads] struct {
	Signed     T           `json:"signed"`
	Signatures []Signature `json:"signatures"`

	// raw "signed" member captured at parse time, nil for documents
	// built programmatically or mutated after parsing
	rawSigned json.RawMessage
}

// Signature associates a key id with the signature bytes it produced.
type Signature struct {
	KeyID     string   `json:"keyid"`
	Signature HexBytes `json:"sig"`
}

// Root names every trusted key and the signing requirements for all
// top level roles. It is the only payload that can change who signs what.
type Root struct {
	Type               string              `json:"_type"`
	SpecVersion        string              `json:"spec_version"`
	ConsistentSnapshot bool                `json:"consistent_snapshot"`
	Version            int64               `json:"version"`
	Expires            time.Time           `json:"expires"`
	Keys               map[string]*Key     `json:"keys"`
	Roles              map[string]*RoleDef `json:"roles"`
	Custom             json.RawMessage     `json:"custom,omitempty"`
}

// Timestamp is the freshness anchor: it references the current snapshot
// by version and, usually, length and hashes.
type Timestamp struct {
	Type        string              `json:"_type"`
	SpecVersion string              `json:"spec_version"`
	Version     int64               `json:"version"`
	Expires     time.Time           `json:"expires"`
	Meta        map[string]MetaFile `json:"meta"`
	Custom      json.RawMessage     `json:"custom,omitempty"`
}

// Snapshot pins the exact version of every targets-family role at one
// instant, preventing mix and match across role versions.
type Snapshot struct {
	Type        string              `json:"_type"`
	SpecVersion string              `json:"spec_version"`
	Version     int64               `json:"version"`
	Expires     time.Time           `json:"expires"`
	Meta        map[string]MetaFile `json:"meta"`
	Custom      json.RawMessage     `json:"custom,omitempty"`
}

// Targets maps target paths to their length and hashes and optionally
// delegates path subsets to further roles.
type Targets struct {
	Type        string                `json:"_type"`
	SpecVersion string                `json:"spec_version"`
	Version     int64                 `json:"version"`
	Expires     time.Time             `json:"expires"`
	Targets     map[string]TargetFile `json:"targets"`
	Delegations *Delegations          `json:"delegations,omitempty"`
	Custom      json.RawMessage       `json:"custom,omitempty"`
}

// Key is a public key as it appears in root or delegations metadata.
// Keys are always referenced by id, never embedded in signature checks.
type Key struct {
	Type   string          `json:"keytype"`
	Scheme string          `json:"scheme"`
	Value  KeyVal          `json:"keyval"`
	Custom json.RawMessage `json:"custom,omitempty"`

	id     string
	idOnce sync.Once
}

type KeyVal struct {
	PublicKey string `json:"public"`
}

// RoleDef is a role's signing requirement: which key ids may sign it and
// how many distinct valid signatures are needed.
type RoleDef struct {
	KeyIDs    []string `json:"keyids"`
	Threshold int      `json:"threshold"`
}

// HexBytes is a byte slice that serializes as a lowercase hex string.
type HexBytes []byte

// Hashes maps a hash algorithm name to the expected digest.
type Hashes map[string]HexBytes

// MetaFile describes another metadata document from snapshot or
// timestamp: its version and optionally its length and hashes.
type MetaFile struct {
	Length  int64           `json:"length,omitempty"`
	Hashes  Hashes          `json:"hashes,omitempty"`
	Version int64           `json:"version"`
	Custom  json.RawMessage `json:"custom,omitempty"`
}

// TargetFile is the verified description of one target: its byte length
// and one or more digests. Path carries the requested target path for
// convenience and is never serialized.
type TargetFile struct {
	Length int64           `json:"length"`
	Hashes Hashes          `json:"hashes"`
	Custom json.RawMessage `json:"custom,omitempty"`
	Path   string          `json:"-"`
}

// Delegations is a targets role's assignment of signing authority over
// path subsets to other named roles, in priority order.
type Delegations struct {
	Keys  map[string]*Key `json:"keys"`
	Roles []DelegatedRole `json:"roles"`
}

// DelegatedRole names one delegated targets role, its signing
// requirement and the path patterns it is responsible for. A
// terminating delegation forecloses further search once matched,
// even when the role does not provide the target.
type DelegatedRole struct {
	Name        string   `json:"name"`
	KeyIDs      []string `json:"keyids"`
	Threshold   int      `json:"threshold"`
	Terminating bool     `json:"terminating"`
	Paths       []string `json:"paths"`
}
