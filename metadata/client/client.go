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

// Package client implements the trust verification workflow a package
// manager runs before using any downloaded artifact:
//
//   - New / NewWithRoot pin initial trust from a local or explicit root.
//   - Refresh advances root one version at a time, then verifies
//     timestamp, snapshot and top level targets in that order. Each
//     accepted document is persisted to the local store only after it
//     verified.
//   - VerifyTarget resolves a target path through the delegation graph
//     and returns its trusted length and hashes.
//   - FetchTarget downloads target bytes under the trusted byte bound
//     and verifies them against the resolved description.
//
// Verification requests that only read already-trusted state run
// concurrently; any request that advances trust serializes on a single
// writer lock, so readers never observe a half-updated root, timestamp
// or snapshot.
package client

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/NickDickinsonWilde/pkgtrust/metadata"
	"github.com/NickDickinsonWilde/pkgtrust/metadata/cache"
	"github.com/NickDickinsonWilde/pkgtrust/metadata/config"
	"github.com/NickDickinsonWilde/pkgtrust/metadata/fetcher"
	"github.com/NickDickinsonWilde/pkgtrust/metadata/trust"
)

// Client verifies repository metadata and targets against a trusted
// root. All exported methods are safe for concurrent use.
type Client struct {
	cfg         *config.Config
	local       *cache.Store
	metadataURL string
	targetsURL  string
	fetcher     fetcher.Fetcher

	// mu guards trusted: one writer may advance trust at a time
	mu      sync.RWMutex
	trusted *trust.Set
}

// New opens a client whose initial trust comes from the root document
// previously stored in localDir. Use NewWithRoot for first time setup.
func New(cfg *config.Config, localDir, metadataURL, targetsURL string, f fetcher.Fetcher) (*Client, error) {
	if cfg == nil {
		cfg = config.New()
	}
	local, err := cache.NewStore(localDir)
	if err != nil {
		return nil, err
	}
	rootBytes, err := local.Get(metadata.RoleRoot)
	if err != nil {
		return nil, fmt.Errorf("no trusted root in %s (initialize first): %w", localDir, err)
	}
	return newClient(cfg, local, rootBytes, metadataURL, targetsURL, f)
}

// NewWithRoot pins initial trust from explicit root bytes obtained out
// of band and stores them for subsequent runs. The bytes must parse as
// root metadata satisfying its own signing requirement.
func NewWithRoot(cfg *config.Config, rootBytes []byte, localDir, metadataURL, targetsURL string, f fetcher.Fetcher) (*Client, error) {
	if cfg == nil {
		cfg = config.New()
	}
	local, err := cache.NewStore(localDir)
	if err != nil {
		return nil, err
	}
	c, err := newClient(cfg, local, rootBytes, metadataURL, targetsURL, f)
	if err != nil {
		return nil, err
	}
	if err := local.Set(metadata.RoleRoot, rootBytes); err != nil {
		return nil, err
	}
	return c, nil
}

func newClient(cfg *config.Config, local *cache.Store, rootBytes []byte, metadataURL, targetsURL string, f fetcher.Fetcher) (*Client, error) {
	if f == nil {
		f = &fetcher.HTTPFetcher{Timeout: cfg.HTTPTimeout, UserAgent: cfg.UserAgent}
	}
	trusted, err := trust.NewSet(rootBytes, cfg.Clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:         cfg,
		local:       local,
		metadataURL: ensureTrailingSlash(metadataURL),
		targetsURL:  ensureTrailingSlash(targetsURL),
		fetcher:     f,
		trusted:     trusted,
	}, nil
}

// Refresh advances root, timestamp, snapshot and top level targets.
// It is idempotent: when nothing changed upstream the trusted state is
// simply re-validated. On failure the previously trusted state stays in
// effect; only fully verified documents ever reach the local store.
func (c *Client) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refresh()
}

func (c *Client) refresh() error {
	rootBytes, err := c.local.Get(metadata.RoleRoot)
	if err != nil {
		return err
	}
	trusted, err := trust.NewSet(rootBytes, c.cfg.Clock.Now().UTC())
	if err != nil {
		return err
	}
	if err := c.loadRoot(trusted); err != nil {
		return err
	}
	if err := c.loadTimestamp(trusted); err != nil {
		return err
	}
	if err := c.loadSnapshot(trusted); err != nil {
		return err
	}
	if _, err := c.loadTargetsRole(trusted, metadata.RoleTargets, metadata.RoleRoot); err != nil {
		return err
	}
	c.trusted = trusted
	return nil
}

// loadRoot walks remote root versions forward one at a time from the
// trusted version. A missing next version means root is already
// current; the walk is bounded so a hostile mirror cannot keep the
// client fetching forever.
func (c *Client) loadRoot(t *trust.Set) error {
	log := metadata.GetLogger()
	lowerBound := t.Root.Version() + 1
	upperBound := lowerBound + c.cfg.MaxRootRotations
	for nextVersion := lowerBound; nextVersion < upperBound; nextVersion++ {
		data, err := c.downloadMetadata(metadata.RoleRoot, c.cfg.RootMaxLength, strconv.FormatInt(nextVersion, 10))
		if err != nil {
			if fetcher.IsNotFound(err) {
				log.Info("root is up to date", "version", t.Root.Version())
				return nil
			}
			return err
		}
		if _, err := t.UpdateRoot(data); err != nil {
			return err
		}
		if err := c.local.Set(metadata.RoleRoot, data); err != nil {
			return err
		}
	}
	log.Info("stopped root walk at rotation bound", "bound", c.cfg.MaxRootRotations)
	return nil
}

// loadTimestamp feeds the cached timestamp into the trusted set as a
// rollback anchor, then fetches and verifies the remote one. A remote
// timestamp at the already trusted version is a clean no-op.
func (c *Client) loadTimestamp(t *trust.Set) error {
	log := metadata.GetLogger()
	if data, err := c.local.Get(metadata.RoleTimestamp); err == nil {
		if _, err := t.UpdateTimestamp(data); err != nil {
			log.Info("cached timestamp not valid as final", "err", err.Error())
		} else {
			log.Info("loaded timestamp from cache", "version", t.Timestamp.Version())
		}
	}
	// timestamp size is never declared anywhere, always use the cap
	data, err := c.downloadMetadata(metadata.RoleTimestamp, c.cfg.TimestampMaxLength, "")
	if err != nil {
		return err
	}
	if _, err := t.UpdateTimestamp(data); err != nil {
		if errors.Is(err, &metadata.ErrEqualVersion{}) {
			log.Info("timestamp unchanged", "version", t.Timestamp.Version())
			return nil
		}
		return err
	}
	return c.local.Set(metadata.RoleTimestamp, data)
}

// loadSnapshot prefers the cached snapshot when it still matches what
// the trusted timestamp declares, and otherwise downloads the declared
// version under the declared (or default) byte bound.
func (c *Client) loadSnapshot(t *trust.Set) error {
	log := metadata.GetLogger()
	if data, err := c.local.Get(metadata.RoleSnapshot); err == nil {
		if _, err := t.UpdateSnapshot(data, true); err == nil {
			log.Info("cached snapshot is valid, not downloading a new one", "version", t.Snapshot.Version())
			return nil
		}
	}
	declared := t.Timestamp.Signed.Meta[metadata.RoleSnapshot+".json"]
	length := declared.Length
	if length == 0 {
		length = c.cfg.SnapshotMaxLength
	}
	version := ""
	if t.Root.Signed.ConsistentSnapshot {
		version = strconv.FormatInt(declared.Version, 10)
	}
	data, err := c.downloadMetadata(metadata.RoleSnapshot, length, version)
	if err != nil {
		return err
	}
	if _, err := t.UpdateSnapshot(data, false); err != nil {
		return err
	}
	log.Info("downloaded snapshot", "version", t.Snapshot.Version())
	return c.local.Set(metadata.RoleSnapshot, data)
}

// loadTargetsRole returns the named targets role, from the trusted set
// if already verified this refresh, else from cache when the cached
// copy still matches the snapshot, else from remote.
func (c *Client) loadTargetsRole(t *trust.Set, roleName, delegator string) (*metadata.Document[metadata.Targets], error) {
	log := metadata.GetLogger()
	if doc, ok := t.Targets[roleName]; ok {
		return doc, nil
	}
	if data, err := c.local.Get(roleName); err == nil {
		if doc, err := t.UpdateDelegatedTargets(data, roleName, delegator); err == nil {
			log.Info("loaded targets role from cache", "role", roleName, "version", doc.Version())
			return doc, nil
		}
	}
	declared, ok := t.Snapshot.Signed.Meta[roleName+".json"]
	if !ok {
		return nil, &metadata.ErrRepository{Msg: fmt.Sprintf("snapshot does not contain information for %s", roleName)}
	}
	length := declared.Length
	if length == 0 {
		length = c.cfg.TargetsMaxLength
	}
	version := ""
	if t.Root.Signed.ConsistentSnapshot {
		version = strconv.FormatInt(declared.Version, 10)
	}
	data, err := c.downloadMetadata(roleName, length, version)
	if err != nil {
		return nil, err
	}
	doc, err := t.UpdateDelegatedTargets(data, roleName, delegator)
	if err != nil {
		return nil, err
	}
	log.Info("downloaded targets role", "role", roleName, "version", doc.Version())
	if err := c.local.Set(roleName, data); err != nil {
		return nil, err
	}
	return doc, nil
}

// VerifyTarget resolves targetPath through the trusted delegation graph
// and returns its verified description. A target no role provides is
// reported as ErrNotFound, distinct from any verification failure.
// Refresh happens implicitly if it has not been run yet.
func (c *Client) VerifyTarget(targetPath string) (*metadata.TargetFile, error) {
	if err := c.ensureRefreshed(); err != nil {
		return nil, err
	}
	// fast path: resolution over roles verified earlier needs no lock
	// beyond a read lock
	c.mu.RLock()
	targetFile, err := c.resolve(c.trusted, targetPath, c.loadedTargetsRole)
	c.mu.RUnlock()
	if err == nil || !errors.Is(err, errNeedsLoad) {
		return targetFile, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolve(c.trusted, targetPath, c.loadTargetsRole)
}

func (c *Client) ensureRefreshed() error {
	c.mu.RLock()
	refreshed := c.trusted.Targets[metadata.RoleTargets] != nil
	c.mu.RUnlock()
	if refreshed {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trusted.Targets[metadata.RoleTargets] != nil {
		return nil
	}
	return c.refresh()
}

// FetchTarget downloads the described target and returns its bytes
// after length and hash verification. targetsBaseURL overrides the
// client's configured targets URL when non-empty.
func (c *Client) FetchTarget(targetFile *metadata.TargetFile, targetsBaseURL string) ([]byte, error) {
	log := metadata.GetLogger()
	if targetsBaseURL == "" {
		targetsBaseURL = c.targetsURL
	} else {
		targetsBaseURL = ensureTrailingSlash(targetsBaseURL)
	}
	if targetsBaseURL == "" {
		return nil, fmt.Errorf("no targets URL configured")
	}
	targetRemotePath := targetFile.Path
	c.mu.RLock()
	consistent := c.trusted.Root.Signed.ConsistentSnapshot
	c.mu.RUnlock()
	if consistent && c.cfg.PrefixTargetsWithHash {
		targetRemotePath = hashPrefixedPath(targetFile)
	}
	length := targetFile.Length
	if length == 0 {
		length = c.cfg.TargetFileMaxLength
	}
	data, err := c.fetcher.DownloadFile(targetsBaseURL+targetRemotePath, length)
	if err != nil {
		return nil, err
	}
	if err := targetFile.VerifyLengthHashes(data); err != nil {
		return nil, err
	}
	log.Info("downloaded target", "path", targetFile.Path, "length", len(data))
	return data, nil
}

// FetchTargetTo fetches like FetchTarget and writes the verified bytes
// to filePath.
func (c *Client) FetchTargetTo(targetFile *metadata.TargetFile, filePath, targetsBaseURL string) error {
	data, err := c.FetchTarget(targetFile, targetsBaseURL)
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}

// hashPrefixedPath rewrites dir/name to dir/<hash>.name for
// repositories serving consistent snapshot target files.
func hashPrefixedPath(targetFile *metadata.TargetFile) string {
	digest := ""
	for _, v := range targetFile.Hashes {
		digest = v.String()
		break
	}
	dir, base := path.Split(targetFile.Path)
	return dir + digest + "." + base
}

func (c *Client) downloadMetadata(roleName string, length int64, version string) ([]byte, error) {
	urlPath := c.metadataURL
	if version == "" {
		urlPath += url.QueryEscape(roleName) + ".json"
	} else {
		urlPath += version + "." + url.QueryEscape(roleName) + ".json"
	}
	return c.fetcher.DownloadFile(urlPath, length)
}

func ensureTrailingSlash(u string) string {
	if u == "" || strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}
