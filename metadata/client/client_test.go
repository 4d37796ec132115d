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

package client

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NickDickinsonWilde/pkgtrust/metadata"
	"github.com/NickDickinsonWilde/pkgtrust/metadata/cache"
	"github.com/NickDickinsonWilde/pkgtrust/metadata/config"
	"github.com/NickDickinsonWilde/pkgtrust/testutils/repotest"
)

func newTestClient(t *testing.T, repo *repotest.Repository, cfg *config.Config) (*Client, string) {
	t.Helper()
	if cfg == nil {
		cfg = config.New()
	}
	dir := t.TempDir()
	c, err := NewWithRoot(cfg, repo.SignedRoots[0], dir, repotest.MetadataURL, repotest.TargetsURL, repo)
	require.NoError(t, err)
	return c, dir
}

func TestRefreshAndVerifyTarget(t *testing.T) {
	repo := repotest.New()
	data := []byte("application payload")
	repo.AddTarget(metadata.RoleTargets, "pkg/app.tgz", data)
	repo.Targets.Signed.Version++
	repo.UpdateSnapshot()

	c, _ := newTestClient(t, repo, nil)
	require.NoError(t, c.Refresh())

	targetFile, err := c.VerifyTarget("pkg/app.tgz")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), targetFile.Length)
	assert.Equal(t, "pkg/app.tgz", targetFile.Path)
	assert.NoError(t, targetFile.VerifyLengthHashes(data))

	got, err := c.FetchTarget(targetFile, "")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestVerifyTargetImplicitRefresh(t *testing.T) {
	repo := repotest.New()
	repo.AddTarget(metadata.RoleTargets, "a.txt", []byte("a"))
	repo.Targets.Signed.Version++
	repo.UpdateSnapshot()

	// no explicit Refresh
	c, _ := newTestClient(t, repo, nil)
	_, err := c.VerifyTarget("a.txt")
	assert.NoError(t, err)
}

func TestVerifyTargetNotFound(t *testing.T) {
	repo := repotest.New()
	c, _ := newTestClient(t, repo, nil)
	_, err := c.VerifyTarget("no/such/file")
	assert.ErrorIs(t, err, &metadata.ErrNotFound{})
}

func TestRefreshAdvancesRoot(t *testing.T) {
	repo := repotest.New()
	repo.BumpRoot() // v2
	repo.BumpRoot() // v3

	c, dir := newTestClient(t, repo, nil)
	require.NoError(t, c.Refresh())

	local, err := cache.NewStore(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(3), local.Version(metadata.RoleRoot))

	// a second refresh against an unchanged repository is a no-op
	require.NoError(t, c.Refresh())
	assert.Equal(t, int64(3), local.Version(metadata.RoleRoot))
}

func TestRefreshRootRotationBound(t *testing.T) {
	repo := repotest.New()
	for i := 0; i < 5; i++ {
		repo.BumpRoot()
	}
	cfg := config.New()
	cfg.MaxRootRotations = 2

	c, dir := newTestClient(t, repo, cfg)
	require.NoError(t, c.Refresh())

	// only MaxRootRotations steps are taken; final root is v3, not v6
	local, err := cache.NewStore(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(3), local.Version(metadata.RoleRoot))
}

func TestRefreshTimestampRollback(t *testing.T) {
	repo := repotest.New()
	repo.AddTarget(metadata.RoleTargets, "a.txt", []byte("a"))
	repo.Targets.Signed.Version++
	repo.UpdateSnapshot() // timestamp v2

	c, _ := newTestClient(t, repo, nil)
	require.NoError(t, c.Refresh())

	// the repository replays an older timestamp
	repo.Timestamp.Signed.Version = 1
	err := c.Refresh()
	assert.ErrorIs(t, err, &metadata.ErrRollback{})

	// the previously trusted state stays in effect
	_, err = c.VerifyTarget("a.txt")
	assert.NoError(t, err)
}

func TestRefreshDetectsTamperedSnapshot(t *testing.T) {
	repo := repotest.New()
	repo.ComputeHashesAndLength = true
	repo.UpdateSnapshot() // timestamp commits to snapshot bytes

	// snapshot changes after timestamp committed to it
	repo.Snapshot.Signed.Version++

	c, _ := newTestClient(t, repo, nil)
	err := c.Refresh()
	assert.ErrorIs(t, err, &metadata.ErrLengthOrHashMismatch{})
}

func TestRefreshExpiredMetadata(t *testing.T) {
	repo := repotest.New()
	cfg := config.New()
	clock := clockwork.NewFakeClockAt(time.Now())
	cfg.Clock = clock

	c, _ := newTestClient(t, repo, cfg)
	require.NoError(t, c.Refresh())

	// well past the repository's 30 day expiry window
	clock.Advance(90 * 24 * time.Hour)
	err := c.Refresh()
	assert.ErrorIs(t, err, &metadata.ErrExpiredMetadata{})
}

func TestVerifyTargetThroughDelegation(t *testing.T) {
	repo := repotest.New()
	repo.AddDelegation(metadata.RoleTargets, metadata.DelegatedRole{
		Name:  "packages",
		Paths: []string{"pkg/*"},
	})
	data := []byte("delegated payload")
	repo.AddTarget("packages", "pkg/lib.tgz", data)
	repo.Targets.Signed.Version++
	repo.UpdateSnapshot()

	c, _ := newTestClient(t, repo, nil)
	targetFile, err := c.VerifyTarget("pkg/lib.tgz")
	require.NoError(t, err)
	assert.NoError(t, targetFile.VerifyLengthHashes(data))

	// resolution is cached in trusted state, a second lookup works too
	_, err = c.VerifyTarget("pkg/lib.tgz")
	assert.NoError(t, err)
}

func TestTerminatingDelegationHaltsSearch(t *testing.T) {
	repo := repotest.New()
	repo.AddDelegation(metadata.RoleTargets, metadata.DelegatedRole{
		Name:        "gatekeeper",
		Paths:       []string{"pkg/*"},
		Terminating: true,
	})
	repo.AddDelegation(metadata.RoleTargets, metadata.DelegatedRole{
		Name:  "fallback",
		Paths: []string{"pkg/*"},
	})
	// only the lower priority role actually has the target
	repo.AddTarget("fallback", "pkg/app.tgz", []byte("data"))
	repo.Targets.Signed.Version++
	repo.UpdateSnapshot()

	c, _ := newTestClient(t, repo, nil)
	_, err := c.VerifyTarget("pkg/app.tgz")
	assert.ErrorIs(t, err, &metadata.ErrNotFound{})
}

func TestDelegationCycleTerminates(t *testing.T) {
	repo := repotest.New()
	repo.AddDelegation(metadata.RoleTargets, metadata.DelegatedRole{
		Name:  "role-a",
		Paths: []string{"pkg/*"},
	})
	repo.AddDelegation("role-a", metadata.DelegatedRole{
		Name:  "role-b",
		Paths: []string{"pkg/*"},
	})
	// close the cycle: role-b delegates back to role-a
	repo.AddDelegation("role-b", metadata.DelegatedRole{
		Name:  "role-a",
		Paths: []string{"pkg/*"},
	})
	repo.UpdateSnapshot()

	c, _ := newTestClient(t, repo, nil)
	_, err := c.VerifyTarget("pkg/app.tgz")
	assert.ErrorIs(t, err, &metadata.ErrNotFound{})
}

func TestDelegationCycleAtVisitLimit(t *testing.T) {
	repo := repotest.New()
	repo.AddDelegation(metadata.RoleTargets, metadata.DelegatedRole{
		Name:  "role-a",
		Paths: []string{"pkg/*"},
	})
	repo.AddDelegation("role-a", metadata.DelegatedRole{
		Name:  "role-b",
		Paths: []string{"pkg/*"},
	})
	repo.AddDelegation("role-b", metadata.DelegatedRole{
		Name:  "role-a",
		Paths: []string{"pkg/*"},
	})
	repo.UpdateSnapshot()

	// the cycle holds exactly as many distinct roles as the limit
	// allows; the only work left past that point is skipping an
	// already visited role, which is a miss, not a tripped bound
	cfg := config.New()
	cfg.MaxDelegations = 3
	c, _ := newTestClient(t, repo, cfg)
	_, err := c.VerifyTarget("pkg/app.tgz")
	assert.ErrorIs(t, err, &metadata.ErrNotFound{})
}

func TestDelegationVisitLimit(t *testing.T) {
	repo := repotest.New()
	repo.AddDelegation(metadata.RoleTargets, metadata.DelegatedRole{
		Name:  "role-a",
		Paths: []string{"pkg/*"},
	})
	repo.UpdateSnapshot()

	cfg := config.New()
	cfg.MaxDelegations = 1
	c, _ := newTestClient(t, repo, cfg)
	_, err := c.VerifyTarget("pkg/app.tgz")
	assert.ErrorIs(t, err, &metadata.ErrDelegationLimit{})
}

func TestDelegationDepthLimit(t *testing.T) {
	repo := repotest.New()
	repo.AddDelegation(metadata.RoleTargets, metadata.DelegatedRole{
		Name:  "role-a",
		Paths: []string{"pkg/*"},
	})
	repo.AddDelegation("role-a", metadata.DelegatedRole{
		Name:  "role-b",
		Paths: []string{"pkg/*"},
	})
	repo.UpdateSnapshot()

	cfg := config.New()
	cfg.MaxDelegationDepth = 1
	c, _ := newTestClient(t, repo, cfg)
	_, err := c.VerifyTarget("pkg/app.tgz")
	assert.ErrorIs(t, err, &metadata.ErrDelegationLimit{})
}

func TestConcurrentVerifyAndRefresh(t *testing.T) {
	repo := repotest.New()
	repo.AddTarget(metadata.RoleTargets, "pkg/app.tgz", []byte("data"))
	repo.Targets.Signed.Version++
	repo.UpdateSnapshot()

	c, _ := newTestClient(t, repo, nil)
	require.NoError(t, c.Refresh())

	// readers verify concurrently while the writer keeps refreshing;
	// run with -race to check the trusted state handoff
	errs := make(chan error, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := c.VerifyTarget("pkg/app.tgz"); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, c.Refresh())
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent VerifyTarget failed: %v", err)
	}
}

func TestFetchTargetRejectsTamperedBytes(t *testing.T) {
	repo := repotest.New()
	repo.AddTarget(metadata.RoleTargets, "pkg/app.tgz", []byte("original"))
	repo.Targets.Signed.Version++
	repo.UpdateSnapshot()

	c, _ := newTestClient(t, repo, nil)
	targetFile, err := c.VerifyTarget("pkg/app.tgz")
	require.NoError(t, err)

	// mirror swaps the content after metadata was verified, keeping
	// the length so only the hash check can catch it
	repo.TargetData["pkg/app.tgz"] = []byte("0riginal")
	_, err = c.FetchTarget(targetFile, "")
	assert.ErrorIs(t, err, &metadata.ErrLengthOrHashMismatch{})
}

func TestNewWithoutLocalRoot(t *testing.T) {
	repo := repotest.New()
	_, err := New(nil, t.TempDir(), repotest.MetadataURL, repotest.TargetsURL, repo)
	assert.Error(t, err)
}

func TestNewFromPersistedRoot(t *testing.T) {
	repo := repotest.New()
	_, dir := newTestClient(t, repo, nil)

	// a second client picks trust up from the stored root
	c, err := New(nil, dir, repotest.MetadataURL, repotest.TargetsURL, repo)
	require.NoError(t, err)
	assert.NoError(t, c.Refresh())
}
