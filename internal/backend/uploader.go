/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"slidecraft/internal/domain"
	"slidecraft/internal/materialize"
)

// FileSource opens blobs from the local filesystem, or over HTTP for
// server-relative and absolute http(s) URLs.
type FileSource struct {
	Client *Client // resolves relative URLs and carries the token; may be nil
	HTTP   *http.Client
}

// Open returns the bytes behind b.
func (s FileSource) Open(ctx context.Context, b domain.Blob) (io.ReadCloser, error) {
	if b.Path != "" {
		return os.Open(b.Path)
	}
	raw := b.URL
	if raw == "" {
		return nil, fmt.Errorf("blob %s has no location", b.Handle)
	}
	if strings.HasPrefix(raw, "file://") {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("blob %s: %w", b.Handle, err)
		}
		return os.Open(filepath.FromSlash(u.Path))
	}
	if strings.HasPrefix(raw, "blob:") {
		return nil, fmt.Errorf("blob %s: %s is only readable where it was created", b.Handle, raw)
	}
	if s.Client != nil {
		raw = s.Client.ResolveURL(raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w", b.Handle, err)
	}
	if s.Client != nil && s.Client.Token != "" && strings.HasPrefix(raw, s.Client.BaseURL) {
		req.Header.Set("Authorization", "Bearer "+s.Client.Token)
	}
	hc := s.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", raw, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: %s", raw, resp.Status)
	}
	return resp.Body, nil
}

// AssetUploader uploads blobs through the backend client.
type AssetUploader struct {
	client *Client
	blobs  materialize.BlobSource
}

// NewAssetUploader returns an uploader; a nil blobs reads through FileSource.
func NewAssetUploader(c *Client, blobs materialize.BlobSource) *AssetUploader {
	if blobs == nil {
		blobs = FileSource{Client: c}
	}
	return &AssetUploader{client: c, blobs: blobs}
}

// Upload stores the request's blob in its media library.
func (u *AssetUploader) Upload(ctx context.Context, req materialize.UploadRequest) (materialize.UploadResult, error) {
	rc, err := u.blobs.Open(ctx, req.Blob)
	if err != nil {
		return materialize.UploadResult{}, err
	}
	defer func() { _ = rc.Close() }()
	fileName := req.Blob.Name
	if fileName == "" && req.Blob.Path != "" {
		fileName = filepath.Base(req.Blob.Path)
	}
	a, err := u.client.UploadAsset(ctx, AssetUpload{
		MediaType:    req.MediaType,
		Name:         req.Name,
		FileName:     fileName,
		ContentType:  req.Blob.ContentType,
		DurationHint: req.DurationHint,
	}, rc)
	if err != nil {
		return materialize.UploadResult{}, err
	}
	return materialize.UploadResult{AssetID: a.ID, URL: a.URL}, nil
}
