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

// Package repotest provides an in-memory signed repository for client
// tests. It implements fetcher.Fetcher, so a Client pointed at it
// "downloads" metadata and targets without touching the network: every
// fetch signs the current in-memory documents on demand, which lets a
// test mutate repository state between refreshes and immediately serve
// the modified (or deliberately broken) result.
//
// Metadata is served under MetadataURL and target files under
// TargetsURL. Roots must be published explicitly with PublishRoot; all
// other roles are signed at fetch time.
package repotest

import (
	"crypto"
	"crypto/ed25519"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sigstore/sigstore/pkg/signature"

	"github.com/NickDickinsonWilde/pkgtrust/metadata"
)

const (
	MetadataURL = "https://repo.test/metadata/"
	TargetsURL  = "https://repo.test/targets/"
)

// Repository holds mutable repository state. Fields are exported so
// tests can reach in and break things.
type Repository struct {
	Root      *metadata.Document[metadata.Root]
	Timestamp *metadata.Document[metadata.Timestamp]
	Snapshot  *metadata.Document[metadata.Snapshot]
	Targets   *metadata.Document[metadata.Targets]
	Delegates map[string]*metadata.Document[metadata.Targets]

	// SignedRoots holds every published root version, index i is
	// version i+1
	SignedRoots [][]byte

	// Signers maps role name to keyid to signer
	Signers map[string]map[string]signature.Signer

	TargetData map[string][]byte

	// ComputeHashesAndLength fills length and sha256 hashes into
	// snapshot and timestamp meta entries
	ComputeHashesAndLength bool

	PrefixTargetsWithHash bool

	Expiry time.Time
}

// New returns a minimal valid repository: one ed25519 key per top
// level role, threshold one, consistent snapshot enabled, root v1
// published.
func New() *Repository {
	r := &Repository{
		Delegates:             map[string]*metadata.Document[metadata.Targets]{},
		SignedRoots:           [][]byte{},
		Signers:               map[string]map[string]signature.Signer{},
		TargetData:            map[string][]byte{},
		PrefixTargetsWithHash: true,
		Expiry:                time.Now().UTC().Truncate(time.Second).AddDate(0, 0, 30),
	}
	r.Targets = metadata.NewTargets(r.Expiry)
	r.Snapshot = metadata.NewSnapshot(r.Expiry)
	r.Timestamp = metadata.NewTimestamp(r.Expiry)
	r.Root = metadata.NewRoot(r.Expiry)
	r.Root.Signed.ConsistentSnapshot = true

	for _, role := range []string{metadata.RoleRoot, metadata.RoleTimestamp, metadata.RoleSnapshot, metadata.RoleTargets} {
		key, signer := NewKey()
		if err := r.Root.Signed.AddKey(key, role); err != nil {
			panic(err)
		}
		r.AddSigner(role, key.ID(), signer)
	}
	r.PublishRoot()
	return r
}

// NewKey generates an ed25519 keypair and returns the public half with
// a ready signer.
func NewKey() (*metadata.Key, signature.Signer) {
	public, private, err := ed25519.GenerateKey(nil)
	if err != nil {
		panic(err)
	}
	key, err := metadata.KeyFromPublicKey(public)
	if err != nil {
		panic(err)
	}
	signer, err := signature.LoadSigner(private, crypto.Hash(0))
	if err != nil {
		panic(err)
	}
	return key, signer
}

func (r *Repository) AddSigner(role, keyID string, signer signature.Signer) {
	if _, ok := r.Signers[role]; !ok {
		r.Signers[role] = map[string]signature.Signer{}
	}
	r.Signers[role][keyID] = signer
}

// RotateKeys replaces all of role's keys in root with threshold fresh
// ones. The caller still has to bump root and PublishRoot.
func (r *Repository) RotateKeys(role string) {
	r.Root.Signed.Roles[role].KeyIDs = []string{}
	r.Signers[role] = map[string]signature.Signer{}
	for i := 0; i < r.Root.Signed.Roles[role].Threshold; i++ {
		key, signer := NewKey()
		if err := r.Root.Signed.AddKey(key, role); err != nil {
			panic(err)
		}
		r.AddSigner(role, key.ID(), signer)
	}
}

// PublishRoot signs the current root and appends it to the served
// version history.
func (r *Repository) PublishRoot() {
	data, err := sign(r.Root, r.Signers[metadata.RoleRoot])
	if err != nil {
		panic(err)
	}
	r.SignedRoots = append(r.SignedRoots, data)
}

// BumpRoot increments the root version and publishes it.
func (r *Repository) BumpRoot() {
	r.Root.Signed.Version++
	r.PublishRoot()
}

// AddTarget registers data under path in the named targets role.
func (r *Repository) AddTarget(role, path string, data []byte) *metadata.TargetFile {
	targetFile, err := metadata.TargetFileFromBytes(path, data, "sha256")
	if err != nil {
		panic(err)
	}
	r.delegator(role).Targets[path] = *targetFile
	r.TargetData[path] = data
	return targetFile
}

// AddDelegation adds a delegated role under delegatorName with one
// fresh key and an empty targets document for it.
func (r *Repository) AddDelegation(delegatorName string, role metadata.DelegatedRole) {
	delegator := r.delegator(delegatorName)
	if delegator.Delegations == nil {
		delegator.Delegations = &metadata.Delegations{
			Keys:  map[string]*metadata.Key{},
			Roles: []metadata.DelegatedRole{},
		}
	}
	key, signer := NewKey()
	role.KeyIDs = []string{key.ID()}
	if role.Threshold == 0 {
		role.Threshold = 1
	}
	delegator.Delegations.Roles = append(delegator.Delegations.Roles, role)
	delegator.Delegations.Keys[key.ID()] = key
	r.AddSigner(role.Name, key.ID(), signer)
	if _, ok := r.Delegates[role.Name]; !ok {
		r.Delegates[role.Name] = metadata.NewTargets(r.Expiry)
	}
}

func (r *Repository) delegator(role string) *metadata.Targets {
	if role == metadata.RoleTargets {
		return &r.Targets.Signed
	}
	return &r.Delegates[role].Signed
}

// UpdateTimestamp bumps timestamp and points it at the current
// snapshot version.
func (r *Repository) UpdateTimestamp() {
	meta := metadata.MetaFile{Version: r.Snapshot.Signed.Version}
	if r.ComputeHashesAndLength {
		meta.Hashes, meta.Length = r.hashServed(metadata.RoleSnapshot)
	}
	r.Timestamp.Signed.Meta[metadata.RoleSnapshot+".json"] = meta
	r.Timestamp.Signed.Version++
}

// UpdateSnapshot records the current version of every targets role in
// snapshot, bumps it, and updates timestamp to match.
func (r *Repository) UpdateSnapshot() {
	record := func(role string, version int64) {
		meta := metadata.MetaFile{Version: version}
		if r.ComputeHashesAndLength {
			meta.Hashes, meta.Length = r.hashServed(role)
		}
		r.Snapshot.Signed.Meta[role+".json"] = meta
	}
	record(metadata.RoleTargets, r.Targets.Signed.Version)
	for role, delegate := range r.Delegates {
		record(role, delegate.Signed.Version)
	}
	r.Snapshot.Signed.Version++
	r.UpdateTimestamp()
}

func (r *Repository) hashServed(role string) (metadata.Hashes, int64) {
	data, err := r.fetchMetadata(role, -1)
	if err != nil {
		panic(err)
	}
	targetFile, err := metadata.TargetFileFromBytes(role, data, "sha256")
	if err != nil {
		panic(err)
	}
	return targetFile.Hashes, targetFile.Length
}

// DownloadFile serves metadata and target bytes from memory, honoring
// maxLength the way the HTTP fetcher does.
func (r *Repository) DownloadFile(urlPath string, maxLength int64) ([]byte, error) {
	parsed, err := url.Parse(urlPath)
	if err != nil {
		return nil, err
	}
	var data []byte
	switch {
	case strings.HasPrefix(urlPath, MetadataURL):
		data, err = r.serveMetadata(strings.TrimPrefix(parsed.Path, "/metadata/"))
	case strings.HasPrefix(urlPath, TargetsURL):
		data, err = r.serveTarget(strings.TrimPrefix(parsed.Path, "/targets/"))
	default:
		return nil, &metadata.ErrDownloadHTTP{StatusCode: 404, URL: urlPath}
	}
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxLength {
		return nil, &metadata.ErrDownloadLengthMismatch{
			Msg: fmt.Sprintf("downloaded %d bytes exceeding the limit of %d", len(data), maxLength),
		}
	}
	return data, nil
}

func (r *Repository) serveMetadata(fileName string) ([]byte, error) {
	if !strings.HasSuffix(fileName, ".json") {
		return nil, &metadata.ErrDownloadHTTP{StatusCode: 404, URL: fileName}
	}
	version, role := splitVersion(strings.TrimSuffix(fileName, ".json"))
	unescaped, err := url.QueryUnescape(role)
	if err == nil {
		role = unescaped
	}
	return r.fetchMetadata(role, version)
}

func (r *Repository) fetchMetadata(role string, version int64) ([]byte, error) {
	if role == metadata.RoleRoot {
		if version < 1 || version > int64(len(r.SignedRoots)) {
			return nil, &metadata.ErrDownloadHTTP{StatusCode: 404, URL: fmt.Sprintf("%d.root.json", version)}
		}
		return r.SignedRoots[version-1], nil
	}
	// non-root roles are signed fresh on every fetch; the requested
	// version is not checked, tests break that binding on purpose
	switch role {
	case metadata.RoleTimestamp:
		return sign(r.Timestamp, r.Signers[role])
	case metadata.RoleSnapshot:
		return sign(r.Snapshot, r.Signers[role])
	case metadata.RoleTargets:
		return sign(r.Targets, r.Signers[role])
	default:
		delegate, ok := r.Delegates[role]
		if !ok {
			return nil, &metadata.ErrDownloadHTTP{StatusCode: 404, URL: role}
		}
		return sign(delegate, r.Signers[role])
	}
}

func (r *Repository) serveTarget(targetPath string) ([]byte, error) {
	if r.Root.Signed.ConsistentSnapshot && r.PrefixTargetsWithHash {
		dir, base := "", targetPath
		if i := strings.LastIndex(targetPath, "/"); i >= 0 {
			dir, base = targetPath[:i+1], targetPath[i+1:]
		}
		if _, name, found := strings.Cut(base, "."); found {
			targetPath = dir + name
		}
	}
	data, ok := r.TargetData[targetPath]
	if !ok {
		return nil, &metadata.ErrDownloadHTTP{StatusCode: 404, URL: targetPath}
	}
	return data, nil
}

// splitVersion splits "2.root" into (2, "root"); names without a
// numeric prefix return version -1.
func splitVersion(name string) (int64, string) {
	before, after, found := strings.Cut(name, ".")
	if !found {
		return -1, name
	}
	version, err := strconv.ParseInt(before, 10, 64)
	if err != nil {
		return -1, name
	}
	return version, after
}

func sign[T metadata.Payloads](doc *metadata.Document[T], signers map[string]signature.Signer) ([]byte, error) {
	doc.ClearSignatures()
	for _, signer := range signers {
		if _, err := doc.Sign(signer); err != nil {
			return nil, err
		}
	}
	return doc.ToBytes(false)
}
