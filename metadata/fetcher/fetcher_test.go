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

package fetcher

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NickDickinsonWilde/pkgtrust/metadata"
)

func TestDownloadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("file content"))
	}))
	defer srv.Close()

	f := &HTTPFetcher{}
	data, err := f.DownloadFile(srv.URL+"/targets.json", 1024)
	require.NoError(t, err)
	assert.Equal(t, []byte("file content"), data)
}

func TestDownloadFileExactLimit(t *testing.T) {
	body := []byte("exactly twenty bytes")
	require.Len(t, body, 20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f := &HTTPFetcher{}
	data, err := f.DownloadFile(srv.URL, 20)
	require.NoError(t, err)
	assert.Equal(t, body, data)
}

func TestDownloadFileRejectsDeclaredOversize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 100))
	}))
	defer srv.Close()

	f := &HTTPFetcher{}
	_, err := f.DownloadFile(srv.URL, 99)
	assert.ErrorIs(t, err, &metadata.ErrDownloadLengthMismatch{})
}

func TestDownloadFileRejectsOversizeBody(t *testing.T) {
	// flush forces chunked encoding so no Content-Length header is
	// sent and the read-side bound has to catch the oversized body
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		_, _ = w.Write(make([]byte, 100))
	}))
	defer srv.Close()

	f := &HTTPFetcher{}
	_, err := f.DownloadFile(srv.URL, 99)
	assert.ErrorIs(t, err, &metadata.ErrDownloadLengthMismatch{})
}

func TestDownloadFileHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := &HTTPFetcher{}
	_, err := f.DownloadFile(srv.URL+"/5.root.json", 1024)
	require.ErrorIs(t, err, &metadata.ErrDownloadHTTP{})
	assert.True(t, IsNotFound(err))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(&metadata.ErrDownloadHTTP{StatusCode: 404}))
	assert.True(t, IsNotFound(&metadata.ErrDownloadHTTP{StatusCode: 403}))
	assert.True(t, IsNotFound(&metadata.ErrNotFound{Msg: "x"}))
	assert.False(t, IsNotFound(&metadata.ErrDownloadHTTP{StatusCode: 500}))
	assert.False(t, IsNotFound(&metadata.ErrDownload{Msg: "conn reset"}))
	assert.False(t, IsNotFound(nil))
}
