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

// Package fetcher defines the bounded fetch capability the verification
// core consumes. Implementations never return more than maxLength
// bytes: everything downloaded here is attacker controlled until
// verified, and an unbounded read is both a denial of service and a
// substitution vector.
package fetcher

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/NickDickinsonWilde/pkgtrust/metadata"
)

// Fetcher fetches a file by URL, failing once the response exceeds
// maxLength bytes. Retry and backoff policy belongs to implementations;
// the verification core treats every call as one atomic attempt.
type Fetcher interface {
	DownloadFile(urlPath string, maxLength int64) ([]byte, error)
}

// HTTPFetcher implements Fetcher over net/http.
type HTTPFetcher struct {
	// Timeout bounds one whole request; zero means no timeout.
	Timeout time.Duration
	// UserAgent is sent when non-empty.
	UserAgent string
}

// DownloadFile fetches urlPath, erroring out if the response does not
// complete or its body is larger than maxLength.
func (f *HTTPFetcher) DownloadFile(urlPath string, maxLength int64) ([]byte, error) {
	client := &http.Client{Timeout: f.Timeout}
	req, err := http.NewRequest("GET", urlPath, nil)
	if err != nil {
		return nil, &metadata.ErrDownload{Msg: err.Error()}
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, &metadata.ErrDownload{Msg: err.Error()}
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, &metadata.ErrDownloadHTTP{StatusCode: res.StatusCode, URL: urlPath}
	}
	// Content-Length is advisory (may be -1 or absent, and can lie);
	// reject early when it already exceeds the bound.
	if header := res.Header.Get("Content-Length"); header != "" {
		length, err := strconv.ParseInt(header, 10, 0)
		if err != nil {
			return nil, &metadata.ErrDownload{Msg: err.Error()}
		}
		if length > maxLength {
			return nil, &metadata.ErrDownloadLengthMismatch{Msg: fmt.Sprintf("download failed for %s, length %d is larger than expected %d", urlPath, length, maxLength)}
		}
	}
	// Read one byte past the bound so an oversized body is detected
	// rather than silently truncated.
	data, err := io.ReadAll(io.LimitReader(res.Body, maxLength+1))
	if err != nil {
		return nil, &metadata.ErrDownload{Msg: err.Error()}
	}
	if int64(len(data)) > maxLength {
		return nil, &metadata.ErrDownloadLengthMismatch{Msg: fmt.Sprintf("download failed for %s, exceeded maximum length %d", urlPath, maxLength)}
	}
	return data, nil
}

// IsNotFound reports whether err indicates the remote simply does not
// have the requested file, which during a root version walk means the
// current root is already the newest. Some mirrors answer 403 for
// absent files.
func IsNotFound(err error) bool {
	var httpErr *metadata.ErrDownloadHTTP
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusNotFound || httpErr.StatusCode == http.StatusForbidden
	}
	var notFound *metadata.ErrNotFound
	return errors.As(err, &notFound)
}
