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
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"os"
	"time"

	"github.com/danwakefield/fnmatch"
	"github.com/secure-systems-lab/go-securesystemslib/cjson"
	"github.com/sigstore/sigstore/pkg/signature"
	"golang.org/x/exp/slices"
)

// NewRoot returns a root payload envelope with empty key and role sets
// and the given expiry.
func NewRoot(expires time.Time) *Document[Root] {
	roles := map[string]*RoleDef{}
	for _, r := range []string{RoleRoot, RoleTimestamp, RoleSnapshot, RoleTargets} {
		roles[r] = &RoleDef{
			KeyIDs:    []string{},
			Threshold: 1,
		}
	}
	return &Document[Root]{
		Signed: Root{
			Type:        RoleRoot,
			SpecVersion: SpecificationVersion,
			Version:     1,
			Expires:     expires.UTC(),
			Keys:        map[string]*Key{},
			Roles:       roles,
		},
		Signatures: []Signature{},
	}
}

// NewTimestamp returns a timestamp payload envelope referencing
// snapshot version 1.
func NewTimestamp(expires time.Time) *Document[Timestamp] {
	return &Document[Timestamp]{
		Signed: Timestamp{
			Type:        RoleTimestamp,
			SpecVersion: SpecificationVersion,
			Version:     1,
			Expires:     expires.UTC(),
			Meta: map[string]MetaFile{
				RoleSnapshot + ".json": {Version: 1},
			},
		},
		Signatures: []Signature{},
	}
}

// NewSnapshot returns a snapshot payload envelope referencing targets
// version 1.
func NewSnapshot(expires time.Time) *Document[Snapshot] {
	return &Document[Snapshot]{
		Signed: Snapshot{
			Type:        RoleSnapshot,
			SpecVersion: SpecificationVersion,
			Version:     1,
			Expires:     expires.UTC(),
			Meta: map[string]MetaFile{
				RoleTargets + ".json": {Version: 1},
			},
		},
		Signatures: []Signature{},
	}
}

// NewTargets returns an empty targets payload envelope.
func NewTargets(expires time.Time) *Document[Targets] {
	return &Document[Targets]{
		Signed: Targets{
			Type:        RoleTargets,
			SpecVersion: SpecificationVersion,
			Version:     1,
			Expires:     expires.UTC(),
			Targets:     map[string]TargetFile{},
		},
		Signatures: []Signature{},
	}
}

// FromBytes parses data into a Document of the requested payload kind.
// The embedded role tag must match the requested kind and signature key
// ids must be unique within the envelope.
func FromBytes[T Payloads](data []byte) (*Document[T], error) {
	doc := &Document[T]{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, err
	}
	seen := []string{}
	for _, sig := range doc.Signatures {
		if slices.Contains(seen, sig.KeyID) {
			return nil, &ErrMalformedMetadata{Msg: fmt.Sprintf("multiple signatures found for key ID %s", sig.KeyID)}
		}
		seen = append(seen, sig.KeyID)
	}
	return doc, nil
}

// FromFile parses the file's content like FromBytes.
func FromFile[T Payloads](name string) (*Document[T], error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	doc, err := FromBytes[T](data)
	if err != nil {
		return nil, fmt.Errorf("parsing metadata file %s: %w", name, err)
	}
	return doc, nil
}

// roleNameFor maps a payload kind to its expected role tag.
func roleNameFor[T Payloads]() string {
	switch any(new(T)).(type) {
	case *Root:
		return RoleRoot
	case *Timestamp:
		return RoleTimestamp
	case *Snapshot:
		return RoleSnapshot
	default:
		return RoleTargets
	}
}

func (d *Document[T]) UnmarshalJSON(data []byte) error {
	env := struct {
		Signed     json.RawMessage `json:"signed"`
		Signatures []Signature     `json:"signatures"`
	}{}
	if err := json.Unmarshal(data, &env); err != nil {
		return &ErrMalformedMetadata{Msg: err.Error()}
	}
	if len(env.Signed) == 0 {
		return &ErrMalformedMetadata{Msg: "missing signed member"}
	}
	tag := struct {
		Type string `json:"_type"`
	}{}
	if err := json.Unmarshal(env.Signed, &tag); err != nil {
		return &ErrMalformedMetadata{Msg: err.Error()}
	}
	if want := roleNameFor[T](); tag.Type != want {
		return &ErrMalformedMetadata{Msg: fmt.Sprintf("expected metadata type %s, got %s", want, tag.Type)}
	}
	var signed T
	if err := json.Unmarshal(env.Signed, &signed); err != nil {
		return &ErrMalformedMetadata{Msg: err.Error()}
	}
	d.Signed = signed
	d.Signatures = env.Signatures
	d.rawSigned = env.Signed
	return nil
}

// ToBytes serializes the envelope. Note that unrecognized payload
// fields from a parsed document are not carried over; callers that must
// preserve foreign bytes keep the original data instead.
func (d *Document[T]) ToBytes(pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(d, "", "\t")
	}
	return json.Marshal(d)
}

// ToFile writes the serialized envelope to name.
func (d *Document[T]) ToFile(name string, pretty bool) error {
	data, err := d.ToBytes(pretty)
	if err != nil {
		return err
	}
	return os.WriteFile(name, data, 0644)
}

// Canonical returns the canonical encoding of the signed payload: the
// bytes signatures are created over and verified against. For a parsed
// document this is derived from the original signed member so unknown
// fields still count.
func (d *Document[T]) Canonical() ([]byte, error) {
	if d.rawSigned != nil {
		return cjson.EncodeCanonical(d.rawSigned)
	}
	return cjson.EncodeCanonical(d.Signed)
}

// Sign signs the canonical payload with signer and appends the
// resulting signature to the envelope.
func (d *Document[T]) Sign(signer signature.Signer) (*Signature, error) {
	payload, err := d.Canonical()
	if err != nil {
		return nil, err
	}
	sb, err := signer.SignMessage(bytes.NewReader(payload))
	if err != nil {
		return nil, &ErrUnsignedMetadata{Msg: fmt.Sprintf("problem signing metadata: %s", err)}
	}
	pub, err := signer.PublicKey()
	if err != nil {
		return nil, err
	}
	key, err := KeyFromPublicKey(pub)
	if err != nil {
		return nil, err
	}
	sig := Signature{
		KeyID:     key.ID(),
		Signature: sb,
	}
	d.Signatures = append(d.Signatures, sig)
	log.Info("signed metadata", "keyid", key.ID())
	return &sig, nil
}

// ClearSignatures drops all signatures. It also forgets the raw parsed
// payload: a cleared document is about to be modified and re-signed, so
// future canonical encodings must come from the struct fields.
func (d *Document[T]) ClearSignatures() {
	d.Signatures = []Signature{}
	d.rawSigned = nil
}

// Version reports the payload version without caring about the kind.
func (d *Document[T]) Version() int64 {
	switch s := any(d.Signed).(type) {
	case Root:
		return s.Version
	case Timestamp:
		return s.Version
	case Snapshot:
		return s.Version
	case Targets:
		return s.Version
	}
	return 0
}

// IsExpired reports whether the payload's expiry is before ref.
func (signed *Root) IsExpired(ref time.Time) bool {
	return ref.After(signed.Expires)
}

// IsExpired reports whether the payload's expiry is before ref.
func (signed *Timestamp) IsExpired(ref time.Time) bool {
	return ref.After(signed.Expires)
}

// IsExpired reports whether the payload's expiry is before ref.
func (signed *Snapshot) IsExpired(ref time.Time) bool {
	return ref.After(signed.Expires)
}

// IsExpired reports whether the payload's expiry is before ref.
func (signed *Targets) IsExpired(ref time.Time) bool {
	return ref.After(signed.Expires)
}

// VerifyLengthHashes checks data against the MetaFile's length and
// hashes. Both are optional for metadata references.
func (f *MetaFile) VerifyLengthHashes(data []byte) error {
	if f.Length != 0 {
		if err := verifyLength(data, f.Length); err != nil {
			return err
		}
	}
	if len(f.Hashes) > 0 {
		if err := verifyHashes(data, f.Hashes); err != nil {
			return err
		}
	}
	return nil
}

// VerifyLengthHashes checks data against the TargetFile's length and
// hashes. Length is checked first so an oversized body never reaches
// the hashers.
func (f *TargetFile) VerifyLengthHashes(data []byte) error {
	if err := verifyLength(data, f.Length); err != nil {
		return err
	}
	return verifyHashes(data, f.Hashes)
}

// TargetFileFromBytes describes data as a TargetFile for the given
// target path, computing the requested hash algorithms (sha256 when
// none are named).
func TargetFileFromBytes(path string, data []byte, algorithms ...string) (*TargetFile, error) {
	if len(algorithms) == 0 {
		algorithms = []string{"sha256"}
	}
	t := &TargetFile{
		Length: int64(len(data)),
		Hashes: Hashes{},
		Path:   path,
	}
	for _, alg := range algorithms {
		hasher, err := hasherFor(alg)
		if err != nil {
			return nil, err
		}
		hasher.Write(data)
		t.Hashes[alg] = hasher.Sum(nil)
	}
	return t, nil
}

// MatchesPath reports whether the delegated role is responsible for the
// given target path according to its path patterns.
func (role *DelegatedRole) MatchesPath(targetPath string) bool {
	for _, pattern := range role.Paths {
		if fnmatch.Match(pattern, targetPath, 0) {
			return true
		}
	}
	return false
}

// RolesForTarget returns the delegated roles responsible for
// targetPath, preserving the order they are listed in. Order encodes
// priority and must survive to the delegation walk.
func (d *Delegations) RolesForTarget(targetPath string) []DelegatedRole {
	var res []DelegatedRole
	for _, r := range d.Roles {
		if r.MatchesPath(targetPath) {
			res = append(res, r)
		}
	}
	return res
}

func hasherFor(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	}
	return nil, &ErrLengthOrHashMismatch{Msg: fmt.Sprintf("unknown hash algorithm %s", algorithm)}
}

func verifyLength(data []byte, length int64) error {
	if int64(len(data)) != length {
		return &ErrLengthOrHashMismatch{Msg: fmt.Sprintf("length verification failed - expected %d, got %d", length, len(data))}
	}
	return nil
}

func verifyHashes(data []byte, hashes Hashes) error {
	for alg, want := range hashes {
		hasher, err := hasherFor(alg)
		if err != nil {
			return err
		}
		hasher.Write(data)
		if !bytes.Equal(want, hasher.Sum(nil)) {
			return &ErrLengthOrHashMismatch{Msg: fmt.Sprintf("hash verification failed - mismatch for algorithm %s", alg)}
		}
	}
	return nil
}

func (b *HexBytes) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || len(data)%2 != 0 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("invalid JSON hex bytes")
	}
	res := make([]byte, hex.DecodedLen(len(data)-2))
	if _, err := hex.Decode(res, data[1:len(data)-1]); err != nil {
		return err
	}
	*b = res
	return nil
}

func (b HexBytes) MarshalJSON() ([]byte, error) {
	res := make([]byte, hex.EncodedLen(len(b))+2)
	res[0] = '"'
	res[len(res)-1] = '"'
	hex.Encode(res[1:], b)
	return res, nil
}

func (b HexBytes) String() string {
	return hex.EncodeToString(b)
}
