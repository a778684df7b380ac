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
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidecraft/internal/domain"
	"slidecraft/internal/materialize"
)

const testSecret = "test-secret"

type testEnv struct {
	srv    *Server
	http   *httptest.Server
	client *Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	s, err := NewServer(ctx, ServerConfig{
		DatabaseURL:    "sqlite://:memory:",
		AssetDir:       t.TempDir(),
		AuthSecret:     testSecret,
		MaxUploadBytes: 1 << 20,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Close()
	})
	tok, err := signToken(testSecret, "tester", time.Now().Add(time.Hour))
	require.NoError(t, err)
	return &testEnv{srv: s, http: ts, client: NewClient(ts.URL+"/", tok, 5*time.Second)}
}

func samplePayload(name string) domain.Payload {
	return domain.Payload{
		Name:     name,
		Settings: domain.Settings{Canvas: domain.Canvas{Width: 1920, Height: 1080}, Duration: 5, FPS: 30},
		Pages: []domain.Page{{
			ID:       "p1",
			Name:     "Intro",
			Duration: 5,
			Elements: []domain.Element{{ID: "e1", Type: domain.ElementText, Text: "hello"}},
		}},
		MediaLibrary: domain.MediaLibrary{
			Images: []domain.MediaLibraryEntry{{ID: "m1", URL: "https://cdn.example/a.png", Name: "a", Type: domain.MediaImage}},
		},
		Tags: []string{"demo"},
	}
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHealthAndVersion(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.client.Health(context.Background()))

	resp, err := http.Get(env.http.URL + "/version")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.HasPrefix(string(b), "slidecraftd "))

	resp2, err := http.Get(env.http.URL + "/readyz")
	require.NoError(t, err)
	_ = resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestProjectCRUD(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.client.Create(ctx, samplePayload("Quarterly"))
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, domain.StatusDraft, created.Status)

	got, err := env.client.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly", got.Name)
	require.Len(t, got.Pages, 1)
	assert.Equal(t, "hello", got.Pages[0].Elements[0].Text)
	require.NotNil(t, got.MediaLibrary)
	assert.Len(t, got.MediaLibrary.Images, 1)

	p := samplePayload("Quarterly v2")
	p.Status = domain.StatusPublished
	updated, err := env.client.Update(ctx, created.ID, p)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, domain.StatusPublished, updated.Status)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

	_, err = env.client.Create(ctx, samplePayload("Other"))
	require.NoError(t, err)

	all, err := env.client.List(ctx, domain.ProjectFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pub, err := env.client.List(ctx, domain.ProjectFilter{Status: domain.StatusPublished})
	require.NoError(t, err)
	require.Len(t, pub, 1)
	assert.Equal(t, "Quarterly v2", pub[0].Name)

	byName, err := env.client.List(ctx, domain.ProjectFilter{Query: "other"})
	require.NoError(t, err)
	require.Len(t, byName, 1)

	byTag, err := env.client.List(ctx, domain.ProjectFilter{Tag: "DEMO", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, byTag, 1)

	require.NoError(t, env.client.Delete(ctx, created.ID))
	_, err = env.client.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(env.client.Delete(ctx, created.ID)))
	_, err = env.client.Update(ctx, created.ID, samplePayload("gone"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNilCollectionsAreSentAsArrays(t *testing.T) {
	env := newTestEnv(t)
	p := domain.Payload{Name: "Empty", Settings: domain.DefaultSettings()}
	proj, err := env.client.Create(context.Background(), p)
	require.NoError(t, err)
	assert.Empty(t, proj.Pages)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	anon := NewClient(env.http.URL, "", time.Second)
	_, err := anon.List(ctx, domain.ProjectFilter{})
	assert.ErrorIs(t, err, ErrUnauthorized)

	forged, err := signToken("other-secret", "mallory", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = NewClient(env.http.URL, forged, time.Second).List(ctx, domain.ProjectFilter{})
	assert.ErrorIs(t, err, ErrUnauthorized)

	tok, exp, err := anon.IssueToken(ctx, "alice", 10*time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), exp, time.Minute)
	_, err = NewClient(env.http.URL, tok, time.Second).List(ctx, domain.ProjectFilter{})
	assert.NoError(t, err)
}

func TestVerifyToken(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tok, err := signToken("s", "bob", now.Add(time.Minute))
	require.NoError(t, err)

	sub, err := verifyToken("s", tok, now)
	require.NoError(t, err)
	assert.Equal(t, "bob", sub)

	_, err = verifyToken("s", tok, now.Add(2*time.Minute))
	assert.ErrorContains(t, err, "expired")
	_, err = verifyToken("x", tok, now)
	assert.ErrorContains(t, err, "signature")
	_, err = verifyToken("s", "garbage", now)
	assert.Error(t, err)
}

func TestPayloadValidationRejects(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]string{
		"missing pages": `{"name":"x","settings":{"canvas":{"width":1,"height":1},"duration":0},"audioTracks":[],"mediaLibrary":{}}`,
		"blob src": `{"name":"x","settings":{"canvas":{"width":1,"height":1},"duration":5},"audioTracks":[],"mediaLibrary":{},
			"pages":[{"id":"p","duration":5,"elements":[{"id":"e","type":"image","src":"blob:http://x/1"}]}]}`,
		"local file handle": `{"name":"x","settings":{"canvas":{"width":1,"height":1},"duration":0},"pages":[],"mediaLibrary":{},
			"audioTracks":[{"id":"a","url":"/x.mp3","file":{"handle":"h"}}]}`,
		"video tracks": `{"name":"x","settings":{"canvas":{"width":1,"height":1},"duration":0},"pages":[],"audioTracks":[],
			"mediaLibrary":{},"videoTracks":[{"id":"v"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			err := env.client.do(context.Background(), http.MethodPost, "/api/projects", "application/json",
				strings.NewReader(body), nil)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, http.StatusBadRequest, apiErr.Status)
			assert.NotEmpty(t, apiErr.Details)
		})
	}
}

func TestValidatePayloadAcceptsSample(t *testing.T) {
	raw, err := json.Marshal(normalizePayload(samplePayload("ok")))
	require.NoError(t, err)
	assert.NoError(t, ValidatePayload(raw))
}

func TestUploadDownloadAndDedupe(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	img := pngBytes(t, 4, 3, color.RGBA{R: 255, A: 255})

	a, err := env.client.UploadAsset(ctx, AssetUpload{MediaType: domain.MediaImage, Name: "red.png"}, bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, "image/png", a.ContentType)
	assert.Equal(t, 4, a.Width)
	assert.Equal(t, 3, a.Height)
	assert.Equal(t, int64(len(img)), a.Size)
	assert.Equal(t, domain.DownloadPrefix+"image-assets/"+a.ID+".png", a.URL)

	again, err := env.client.UploadAsset(ctx, AssetUpload{MediaType: domain.MediaImage, Name: "copy.png"}, bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, a.ID, again.ID)

	asVideo, err := env.client.UploadAsset(ctx, AssetUpload{MediaType: domain.MediaVideo, Name: "odd.png"}, bytes.NewReader(img))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, asVideo.ID)

	resp, err := http.Get(env.client.ResolveURL(a.URL))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, img, body)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	wrongLib, err := http.Get(env.http.URL + domain.DownloadPrefix + "audio-assets/" + a.ID + ".png")
	require.NoError(t, err)
	_ = wrongLib.Body.Close()
	assert.Equal(t, http.StatusNotFound, wrongLib.StatusCode)
}

func TestUploadRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.client.UploadAsset(ctx, AssetUpload{MediaType: "font"}, strings.NewReader("x"))
	assert.Error(t, err)

	big := bytes.Repeat([]byte{1}, 2<<20)
	_, err = env.client.UploadAsset(ctx, AssetUpload{MediaType: domain.MediaAudio, Name: "big.mp3"}, bytes.NewReader(big))
	assert.Error(t, err)

	n, err := os.ReadDir(filepath.Join(env.srv.cfg.AssetDir, "audio-assets"))
	require.NoError(t, err)
	assert.Empty(t, n)
}

func TestAssetUploaderReadsLocalFiles(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	p := filepath.Join(dir, "voice.mp3")
	require.NoError(t, os.WriteFile(p, []byte("ID3 fake audio"), 0o644))

	up := NewAssetUploader(env.client, nil)
	res, err := up.Upload(context.Background(), materialize.UploadRequest{
		Blob:         domain.Blob{Handle: "h1", Path: p},
		MediaType:    domain.MediaAudio,
		Name:         "Voice",
		DurationHint: domain.Float(3.5),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.URL, domain.DownloadPrefix+"audio-assets/"+res.AssetID))
	assert.True(t, strings.HasSuffix(res.URL, ".mp3"))

	a, err := env.srv.Assets().Get(context.Background(), res.AssetID)
	require.NoError(t, err)
	assert.Equal(t, "Voice", a.Name)
	assert.Equal(t, "tester", a.Owner)
	require.NotNil(t, a.Duration)
	assert.InDelta(t, 3.5, *a.Duration, 1e-9)

	// transient server URLs are fetched relative to the backend
	tr, err := up.Upload(context.Background(), materialize.UploadRequest{
		Blob:      domain.Blob{Handle: "h2", URL: res.URL},
		MediaType: domain.MediaAudio,
		Name:      "copy",
	})
	require.NoError(t, err)
	assert.Equal(t, res.AssetID, tr.AssetID)

	_, err = up.Upload(context.Background(), materialize.UploadRequest{
		Blob:      domain.Blob{Handle: "h3", URL: "blob:http://localhost/abc"},
		MediaType: domain.MediaImage,
	})
	assert.Error(t, err)
}

func TestAPIErrorUnwrap(t *testing.T) {
	assert.ErrorIs(t, &APIError{Status: http.StatusNotFound}, ErrNotFound)
	assert.ErrorIs(t, &APIError{Status: http.StatusUnauthorized}, ErrUnauthorized)
	assert.ErrorIs(t, &APIError{Status: http.StatusRequestEntityTooLarge}, ErrTooLarge)
	assert.NotErrorIs(t, &APIError{Status: http.StatusInternalServerError}, ErrNotFound)
	e := &APIError{Method: "GET", Path: "/x", Status: 400, Message: "bad", Details: []string{"a", "b"}}
	assert.Equal(t, "server GET /x: 400 bad (a; b)", e.Error())
}
