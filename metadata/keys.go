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
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"

	"github.com/secure-systems-lab/go-securesystemslib/cjson"
	"github.com/sigstore/sigstore/pkg/cryptoutils"
	"github.com/sigstore/sigstore/pkg/signature"
)

const (
	KeyTypeEd25519             = "ed25519"
	KeyTypeECDSA_SHA2_P256     = "ecdsa-sha2-nistp256"
	KeyTypeRSASSA_PSS_SHA256   = "rsa"
	KeySchemeEd25519           = "ed25519"
	KeySchemeECDSA_SHA2_P256   = "ecdsa-sha2-nistp256"
	KeySchemeRSASSA_PSS_SHA256 = "rsassa-pss-sha256"
)

// ID returns the key's identifier: the hex encoded sha256 of the
// canonical encoding of the key itself. Computed once per Key value.
func (k *Key) ID() string {
	k.idOnce.Do(func() {
		data, err := cjson.EncodeCanonical(k)
		if err != nil {
			panic(fmt.Errorf("failed to canonicalize key: %w", err))
		}
		sum := sha256.Sum256(data)
		k.id = hex.EncodeToString(sum[:])
	})
	return k.id
}

// ToPublicKey converts the serialized key material to a crypto.PublicKey.
func (k *Key) ToPublicKey() (crypto.PublicKey, error) {
	switch k.Type {
	case KeyTypeRSASSA_PSS_SHA256:
		publicKey, err := cryptoutils.UnmarshalPEMToPublicKey([]byte(k.Value.PublicKey))
		if err != nil {
			return nil, err
		}
		rsaKey, ok := publicKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("invalid rsa public key")
		}
		return rsaKey, nil
	case KeyTypeECDSA_SHA2_P256:
		publicKey, err := cryptoutils.UnmarshalPEMToPublicKey([]byte(k.Value.PublicKey))
		if err != nil {
			return nil, err
		}
		ecdsaKey, ok := publicKey.(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("invalid ecdsa public key")
		}
		return ecdsaKey, nil
	case KeyTypeEd25519:
		raw, err := hex.DecodeString(k.Value.PublicKey)
		if err != nil {
			return nil, err
		}
		ed25519Key := ed25519.PublicKey(raw)
		if _, err := x509.MarshalPKIXPublicKey(ed25519Key); err != nil {
			return nil, err
		}
		return ed25519Key, nil
	}
	return nil, fmt.Errorf("unsupported public key type %s", k.Type)
}

// Verifier loads a signature verifier appropriate for the key's type.
func (k *Key) Verifier() (signature.Verifier, error) {
	public, err := k.ToPublicKey()
	if err != nil {
		return nil, err
	}
	// ed25519 verification hashes internally
	hashFunc := crypto.SHA256
	if k.Type == KeyTypeEd25519 {
		hashFunc = crypto.Hash(0)
	}
	return signature.LoadVerifier(public, hashFunc)
}

// KeyFromPublicKey converts a crypto.PublicKey to the serialized Key form.
func KeyFromPublicKey(k crypto.PublicKey) (*Key, error) {
	key := &Key{}
	switch k := k.(type) {
	case *rsa.PublicKey:
		key.Type = KeyTypeRSASSA_PSS_SHA256
		key.Scheme = KeySchemeRSASSA_PSS_SHA256
		pemKey, err := cryptoutils.MarshalPublicKeyToPEM(k)
		if err != nil {
			return nil, err
		}
		key.Value.PublicKey = string(pemKey)
	case *ecdsa.PublicKey:
		key.Type = KeyTypeECDSA_SHA2_P256
		key.Scheme = KeySchemeECDSA_SHA2_P256
		pemKey, err := cryptoutils.MarshalPublicKeyToPEM(k)
		if err != nil {
			return nil, err
		}
		key.Value.PublicKey = string(pemKey)
	case ed25519.PublicKey:
		key.Type = KeyTypeEd25519
		key.Scheme = KeySchemeEd25519
		key.Value.PublicKey = hex.EncodeToString(k)
	default:
		return nil, fmt.Errorf("unsupported public key type")
	}
	return key, nil
}

// AddKey authorizes key to sign role and records it in the key set.
func (signed *Root) AddKey(key *Key, role string) error {
	def, ok := signed.Roles[role]
	if !ok {
		return &ErrMalformedMetadata{Msg: fmt.Sprintf("role %s doesn't exist", role)}
	}
	for _, id := range def.KeyIDs {
		if id == key.ID() {
			signed.Keys[key.ID()] = key
			return nil
		}
	}
	def.KeyIDs = append(def.KeyIDs, key.ID())
	signed.Keys[key.ID()] = key
	return nil
}

// AddKey authorizes key to sign the delegated role.
func (signed *Targets) AddKey(key *Key, role string) error {
	if signed.Delegations == nil {
		return &ErrMalformedMetadata{Msg: fmt.Sprintf("delegated role %s doesn't exist", role)}
	}
	for i, d := range signed.Delegations.Roles {
		if d.Name != role {
			continue
		}
		for _, id := range d.KeyIDs {
			if id == key.ID() {
				signed.Delegations.Keys[key.ID()] = key
				return nil
			}
		}
		signed.Delegations.Roles[i].KeyIDs = append(signed.Delegations.Roles[i].KeyIDs, key.ID())
		signed.Delegations.Keys[key.ID()] = key
		return nil
	}
	return &ErrMalformedMetadata{Msg: fmt.Sprintf("delegated role %s doesn't exist", role)}
}
