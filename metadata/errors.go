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
	"fmt"
)

// Error kinds surfaced by the verification core. One struct per kind,
// with Is() subset relations rooted at ErrRepository (metadata and
// verification failures) and ErrDownload (transport-side failures).
// A failed verification never partially updates trusted state, so any
// of these reaching the caller means the previous trusted state is
// still in effect.

// ErrRepository - an error with the repository's state as observed
// from the client, such as inconsistent or unverifiable metadata.
type ErrRepository struct {
	Msg string
}

func (e *ErrRepository) Error() string {
	return fmt.Sprintf("repository error: %s", e.Msg)
}

func (e *ErrRepository) Is(target error) bool {
	_, ok := target.(*ErrRepository)
	return ok
}

// ErrMalformedMetadata - metadata bytes that do not parse or do not
// match the expected schema or role tag.
type ErrMalformedMetadata struct {
	Msg string
}

func (e *ErrMalformedMetadata) Error() string {
	return fmt.Sprintf("malformed metadata error: %s", e.Msg)
}

func (e *ErrMalformedMetadata) Is(target error) bool {
	switch target.(type) {
	case *ErrRepository, *ErrMalformedMetadata:
		return true
	}
	return false
}

// ErrUnsignedMetadata - signature threshold not met for a role.
type ErrUnsignedMetadata struct {
	Msg string
}

func (e *ErrUnsignedMetadata) Error() string {
	return fmt.Sprintf("unsigned metadata error: %s", e.Msg)
}

func (e *ErrUnsignedMetadata) Is(target error) bool {
	switch target.(type) {
	case *ErrRepository, *ErrUnsignedMetadata:
		return true
	}
	return false
}

// ErrRollback - a metadata version regression: the offered version is
// older than (or otherwise inconsistent with) the trusted one.
type ErrRollback struct {
	Msg string
}

func (e *ErrRollback) Error() string {
	return fmt.Sprintf("rollback detected: %s", e.Msg)
}

func (e *ErrRollback) Is(target error) bool {
	switch target.(type) {
	case *ErrRepository, *ErrRollback:
		return true
	}
	return false
}

// ErrEqualVersion - the offered metadata carries exactly the trusted
// version. For timestamp this is a valid no-op, not an attack.
type ErrEqualVersion struct {
	Msg string
}

func (e *ErrEqualVersion) Error() string {
	return fmt.Sprintf("equal version number: %s", e.Msg)
}

func (e *ErrEqualVersion) Is(target error) bool {
	switch target.(type) {
	case *ErrRepository, *ErrRollback, *ErrEqualVersion:
		return true
	}
	return false
}

// ErrExpiredMetadata - metadata past its expires timestamp relative to
// the verification reference time.
type ErrExpiredMetadata struct {
	Msg string
}

func (e *ErrExpiredMetadata) Error() string {
	return fmt.Sprintf("expired metadata error: %s", e.Msg)
}

func (e *ErrExpiredMetadata) Is(target error) bool {
	switch target.(type) {
	case *ErrRepository, *ErrExpiredMetadata:
		return true
	}
	return false
}

// ErrLengthOrHashMismatch - completed bytes do not match the expected
// length or hashes declared by trusted metadata.
type ErrLengthOrHashMismatch struct {
	Msg string
}

func (e *ErrLengthOrHashMismatch) Error() string {
	return fmt.Sprintf("length/hash verification error: %s", e.Msg)
}

func (e *ErrLengthOrHashMismatch) Is(target error) bool {
	switch target.(type) {
	case *ErrRepository, *ErrLengthOrHashMismatch:
		return true
	}
	return false
}

// ErrDelegationLimit - the delegation walk tripped its visit count or
// depth guard before resolving the target.
type ErrDelegationLimit struct {
	Msg string
}

func (e *ErrDelegationLimit) Error() string {
	return fmt.Sprintf("delegation limit exceeded: %s", e.Msg)
}

func (e *ErrDelegationLimit) Is(target error) bool {
	switch target.(type) {
	case *ErrRepository, *ErrDelegationLimit:
		return true
	}
	return false
}

// ErrNotFound - legitimate absence: a target path no role provides, or
// a next root version the repository does not have. Not a verification
// failure.
type ErrNotFound struct {
	Msg string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("not found: %s", e.Msg)
}

func (e *ErrNotFound) Is(target error) bool {
	_, ok := target.(*ErrNotFound)
	return ok
}

// ErrDownload - an opaque transport failure from the fetch capability.
type ErrDownload struct {
	Msg string
}

func (e *ErrDownload) Error() string {
	return fmt.Sprintf("download error: %s", e.Msg)
}

func (e *ErrDownload) Is(target error) bool {
	_, ok := target.(*ErrDownload)
	return ok
}

// ErrDownloadLengthMismatch - the byte bound was violated while
// downloading, before any hash comparison took place.
type ErrDownloadLengthMismatch struct {
	Msg string
}

func (e *ErrDownloadLengthMismatch) Error() string {
	return fmt.Sprintf("download length mismatch error: %s", e.Msg)
}

func (e *ErrDownloadLengthMismatch) Is(target error) bool {
	switch target.(type) {
	case *ErrDownload, *ErrDownloadLengthMismatch:
		return true
	}
	return false
}

// ErrDownloadHTTP - an HTTP status failure from the built-in fetcher.
type ErrDownloadHTTP struct {
	StatusCode int
	URL        string
}

func (e *ErrDownloadHTTP) Error() string {
	return fmt.Sprintf("failed to download %s, http status code: %d", e.URL, e.StatusCode)
}

func (e *ErrDownloadHTTP) Is(target error) bool {
	switch target.(type) {
	case *ErrDownload, *ErrDownloadHTTP:
		return true
	}
	return false
}
