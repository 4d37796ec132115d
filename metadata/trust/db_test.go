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
	"testing"
	"time"

	"github.com/sigstore/sigstore/pkg/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NickDickinsonWilde/pkgtrust/metadata"
	"github.com/NickDickinsonWilde/pkgtrust/testutils/repotest"
)

// thresholdFixture is a root requiring 2 of 3 timestamp keys.
type thresholdFixture struct {
	db        *DB
	signers   []signature.Signer
	timestamp *metadata.Document[metadata.Timestamp]
}

func newThresholdFixture(t *testing.T) *thresholdFixture {
	t.Helper()
	root := metadata.NewRoot(time.Now().AddDate(0, 0, 30))
	root.Signed.Roles[metadata.RoleTimestamp].Threshold = 2
	f := &thresholdFixture{
		timestamp: metadata.NewTimestamp(time.Now().AddDate(0, 0, 1)),
	}
	for i := 0; i < 3; i++ {
		key, signer := repotest.NewKey()
		require.NoError(t, root.Signed.AddKey(key, metadata.RoleTimestamp))
		f.signers = append(f.signers, signer)
	}
	db, err := NewDB(&root.Signed)
	require.NoError(t, err)
	f.db = db
	return f
}

func TestVerifyRoleThreshold(t *testing.T) {
	f := newThresholdFixture(t)
	payload, err := f.timestamp.Canonical()
	require.NoError(t, err)

	_, err = f.timestamp.Sign(f.signers[0])
	require.NoError(t, err)
	err = f.db.VerifyRole(metadata.RoleTimestamp, payload, f.timestamp.Signatures)
	assert.ErrorIs(t, err, &metadata.ErrUnsignedMetadata{})

	_, err = f.timestamp.Sign(f.signers[1])
	require.NoError(t, err)
	assert.NoError(t, f.db.VerifyRole(metadata.RoleTimestamp, payload, f.timestamp.Signatures))
}

func TestVerifyRoleCountsEachKeyOnce(t *testing.T) {
	f := newThresholdFixture(t)
	payload, err := f.timestamp.Canonical()
	require.NoError(t, err)

	_, err = f.timestamp.Sign(f.signers[0])
	require.NoError(t, err)
	sigs := append(f.timestamp.Signatures, f.timestamp.Signatures[0])
	err = f.db.VerifyRole(metadata.RoleTimestamp, payload, sigs)
	assert.ErrorIs(t, err, &metadata.ErrUnsignedMetadata{})
}

func TestVerifyRoleIgnoresUnauthorizedKeys(t *testing.T) {
	f := newThresholdFixture(t)
	payload, err := f.timestamp.Canonical()
	require.NoError(t, err)

	_, err = f.timestamp.Sign(f.signers[0])
	require.NoError(t, err)
	// a valid signature from a key the role does not list
	_, stranger := repotest.NewKey()
	_, err = f.timestamp.Sign(stranger)
	require.NoError(t, err)

	err = f.db.VerifyRole(metadata.RoleTimestamp, payload, f.timestamp.Signatures)
	assert.ErrorIs(t, err, &metadata.ErrUnsignedMetadata{})
}

func TestVerifyRoleUnknownRole(t *testing.T) {
	f := newThresholdFixture(t)
	err := f.db.VerifyRole("nosuchrole", []byte("payload"), nil)
	assert.ErrorIs(t, err, &metadata.ErrMalformedMetadata{})
	assert.False(t, f.db.HasRole("nosuchrole"))
	assert.True(t, f.db.HasRole(metadata.RoleTimestamp))
}

func TestNewDBRejectsInvalidThreshold(t *testing.T) {
	root := metadata.NewRoot(time.Now().AddDate(0, 0, 30))
	root.Signed.Roles[metadata.RoleSnapshot].Threshold = 0
	_, err := NewDB(&root.Signed)
	assert.ErrorIs(t, err, &metadata.ErrMalformedMetadata{})
}

func TestNewDelegationsDBRejectsTopLevelNames(t *testing.T) {
	key, _ := repotest.NewKey()
	d := &metadata.Delegations{
		Keys: map[string]*metadata.Key{key.ID(): key},
		Roles: []metadata.DelegatedRole{
			{Name: metadata.RoleSnapshot, KeyIDs: []string{key.ID()}, Threshold: 1},
		},
	}
	_, err := NewDelegationsDB(d)
	assert.ErrorIs(t, err, &metadata.ErrMalformedMetadata{})
}

func TestNewDelegationsDBScopesTrust(t *testing.T) {
	key, signer := repotest.NewKey()
	d := &metadata.Delegations{
		Keys: map[string]*metadata.Key{key.ID(): key},
		Roles: []metadata.DelegatedRole{
			{Name: "packages", KeyIDs: []string{key.ID()}, Threshold: 1, Paths: []string{"pkg/*"}},
		},
	}
	db, err := NewDelegationsDB(d)
	require.NoError(t, err)

	targets := metadata.NewTargets(time.Now().AddDate(0, 0, 1))
	_, err = targets.Sign(signer)
	require.NoError(t, err)
	payload, err := targets.Canonical()
	require.NoError(t, err)
	assert.NoError(t, db.VerifyRole("packages", payload, targets.Signatures))
	assert.False(t, db.HasRole(metadata.RoleTargets))
}
