/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"slidecraft/internal/domain"
)

// Client talks to the backend API. It satisfies the editor's ProjectStore.
type Client struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
}

// NewClient creates a backend client. A trailing slash on baseURL is dropped;
// timeout <= 0 means 30s.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx response.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
	Details []string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("server %s %s: %d", e.Method, e.Path, e.Status)
	if e.Message != "" {
		msg += " " + e.Message
	}
	if len(e.Details) > 0 {
		msg += " (" + strings.Join(e.Details, "; ") + ")"
	}
	return msg
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusRequestEntityTooLarge:
		return ErrTooLarge
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, dest any) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Method: method, Path: u.Path, Status: resp.StatusCode}
		var eb struct {
			Error   string   `json:"error"`
			Details []string `json:"details"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &eb) == nil {
			apiErr.Message, apiErr.Details = eb.Error, eb.Details
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, dest any) error {
	if in == nil {
		return c.do(ctx, method, path, "", nil, dest)
	}
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(ctx, method, path, "application/json", bytes.NewReader(b), dest)
}

// normalizePayload replaces nil collections with empty ones so the
// document always carries arrays.
func normalizePayload(p domain.Payload) domain.Payload {
	if p.Pages == nil {
		p.Pages = []domain.Page{}
	}
	if p.AudioTracks == nil {
		p.AudioTracks = []domain.AudioTrack{}
	}
	if p.VideoTracks == nil {
		p.VideoTracks = []any{}
	}
	return p
}

// Create stores a new project.
func (c *Client) Create(ctx context.Context, p domain.Payload) (*domain.Project, error) {
	var out domain.Project
	if err := c.doJSON(ctx, http.MethodPost, "/api/projects", normalizePayload(p), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update replaces the content of project id.
func (c *Client) Update(ctx context.Context, id string, p domain.Payload) (*domain.Project, error) {
	var out domain.Project
	if err := c.doJSON(ctx, http.MethodPut, "/api/projects/"+url.PathEscape(id), normalizePayload(p), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches one project.
func (c *Client) Get(ctx context.Context, id string) (*domain.Project, error) {
	var out domain.Project
	if err := c.doJSON(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns projects matching f.
func (c *Client) List(ctx context.Context, f domain.ProjectFilter) ([]domain.Project, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Tag != "" {
		q.Set("tag", f.Tag)
	}
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	path := "/api/projects"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var list []domain.Project
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Delete removes project id.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/projects/"+url.PathEscape(id), nil, nil)
}

// IssueToken asks the server for a bearer token.
func (c *Client) IssueToken(ctx context.Context, subject string, ttl time.Duration) (string, time.Time, error) {
	in := map[string]any{"subject": subject, "ttl_seconds": int64(ttl / time.Second)}
	var out struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/token", in, &out); err != nil {
		return "", time.Time{}, err
	}
	exp, _ := time.Parse(time.RFC3339, out.ExpiresAt)
	return out.Token, exp, nil
}

// Health checks /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", "", nil, nil)
}

// AssetUpload describes the bytes sent by UploadAsset.
type AssetUpload struct {
	MediaType    domain.MediaType
	Name         string
	FileName     string
	ContentType  string
	DurationHint *float64
}

// UploadedAsset is the server's answer to an upload.
type UploadedAsset struct {
	Asset
	URL string `json:"url"`
}

// UploadAsset streams r to the asset library of in.MediaType.
func (c *Client) UploadAsset(ctx context.Context, in AssetUpload, r io.Reader) (*UploadedAsset, error) {
	if _, err := domain.ParseMediaType(string(in.MediaType)); err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(mw, in, r))
	}()
	var out UploadedAsset
	err := c.do(ctx, http.MethodPost, "/api/assets/upload", mw.FormDataContentType(), pr, &out)
	_ = pr.Close()
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func writeUploadForm(mw *multipart.Writer, in AssetUpload, r io.Reader) error {
	_ = mw.WriteField("mediaType", string(in.MediaType))
	if in.Name != "" {
		_ = mw.WriteField("name", in.Name)
	}
	if in.DurationHint != nil {
		_ = mw.WriteField("duration", strconv.FormatFloat(*in.DurationHint, 'f', -1, 64))
	}
	fileName := in.FileName
	if fileName == "" {
		fileName = in.Name
	}
	if fileName == "" {
		fileName = "upload"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	if in.ContentType != "" {
		h.Set("Content-Type", in.ContentType)
	} else {
		h.Set("Content-Type", "application/octet-stream")
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	return mw.Close()
}

// ResolveURL makes a server-relative URL absolute against BaseURL.
func (c *Client) ResolveURL(raw string) string {
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		return c.BaseURL + raw
	}
	return raw
}

// IsNotFound reports whether err means the resource does not exist.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
