/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bufio"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"slidecraft/internal/domain"
)

// ErrTooLarge is returned when an upload exceeds the store's size limit.
var ErrTooLarge = errors.New("asset too large")

var mimeExtensionFallback = map[string]string{
	"audio/mpeg":      ".mp3",
	"audio/mp3":       ".mp3",
	"audio/mp4":       ".m4a",
	"audio/x-m4a":     ".m4a",
	"audio/wav":       ".wav",
	"audio/x-wav":     ".wav",
	"audio/webm":      ".webm",
	"audio/ogg":       ".ogg",
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
	"video/webm":      ".webm",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/bmp":       ".bmp",
	"image/tiff":      ".tiff",
}

// Asset is a stored media file.
type Asset struct {
	ID          string           `json:"assetId"`
	MediaType   domain.MediaType `json:"mediaType"`
	FileName    string           `json:"fileName"`
	Name        string           `json:"name"`
	ContentType string           `json:"contentType"`
	Size        int64            `json:"size"`
	SHA256      string           `json:"sha256"`
	Width       int              `json:"width,omitempty"`
	Height      int              `json:"height,omitempty"`
	Duration    *float64         `json:"duration,omitempty"`
	Owner       string           `json:"-"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// URL is the durable download path of the asset.
func (a Asset) URL() string {
	return domain.DurableURL(a.MediaType, a.ID, filepath.Ext(a.FileName))
}

// AssetInput describes an upload.
type AssetInput struct {
	MediaType   domain.MediaType
	Name        string
	ContentType string
	Duration    *float64
	Owner       string
}

// AssetStore keeps asset bytes under dir/<library>/ and metadata in the database.
type AssetStore struct {
	db       *DB
	dir      string
	maxBytes int64
	now      func() time.Time
}

// NewAssetStore returns a store rooted at dir. maxBytes <= 0 disables the size limit.
func NewAssetStore(db *DB, dir string, maxBytes int64) (*AssetStore, error) {
	for _, mt := range domain.MediaTypes {
		if err := os.MkdirAll(filepath.Join(dir, mt.Library()), 0o755); err != nil {
			return nil, fmt.Errorf("create asset dir: %w", err)
		}
	}
	return &AssetStore{db: db, dir: dir, maxBytes: maxBytes, now: time.Now}, nil
}

// Save stores the bytes of r. Uploading bytes already stored for the same
// media type returns the existing asset.
func (s *AssetStore) Save(ctx context.Context, in AssetInput, r io.Reader) (*Asset, error) {
	if _, err := domain.ParseMediaType(string(in.MediaType)); err != nil {
		return nil, err
	}
	libDir := filepath.Join(s.dir, in.MediaType.Library())
	tmp, err := os.CreateTemp(libDir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp asset: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func(err error) (*Asset, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return nil, err
	}

	br := bufio.NewReaderSize(r, 4096)
	sample, _ := br.Peek(512)
	ct := strings.ToLower(strings.TrimSpace(in.ContentType))
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(sample)
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}

	h := sha256.New()
	var src io.Reader = br
	if s.maxBytes > 0 {
		src = io.LimitReader(br, s.maxBytes+1)
	}
	n, err := io.Copy(io.MultiWriter(tmp, h), src)
	if err != nil {
		return cleanup(fmt.Errorf("write asset: %w", err))
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		return cleanup(fmt.Errorf("%d bytes over limit %d: %w", n, s.maxBytes, ErrTooLarge))
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(fmt.Errorf("sync asset: %w", err))
	}
	sum := hex.EncodeToString(h.Sum(nil))

	existing, err := s.bySHA(ctx, in.MediaType, sum)
	switch {
	case err == nil:
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return existing, nil
	case !errors.Is(err, ErrNotFound):
		return cleanup(err)
	}

	a := &Asset{
		ID:          domain.NewID(),
		MediaType:   in.MediaType,
		Name:        in.Name,
		ContentType: ct,
		Size:        n,
		SHA256:      sum,
		Duration:    in.Duration,
		Owner:       in.Owner,
		CreatedAt:   s.now().UTC(),
	}
	if in.MediaType == domain.MediaImage {
		if _, err := tmp.Seek(0, io.SeekStart); err == nil {
			if cfg, _, err := image.DecodeConfig(tmp); err == nil {
				a.Width, a.Height = cfg.Width, cfg.Height
			}
		}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("close asset: %w", err)
	}

	a.FileName = a.ID + extensionFor(in.Name, ct)
	if a.Name == "" {
		a.Name = a.FileName
	}
	final := filepath.Join(libDir, a.FileName)
	if err := os.Rename(tmpPath, final); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("store asset: %w", err)
	}

	const q = `INSERT INTO assets(id, media_type, file_name, name, content_type, size, sha256, width, height, duration, owner, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var dur any
	if a.Duration != nil {
		dur = *a.Duration
	}
	if _, err := s.db.ExecContext(ctx, s.db.rebind(q), a.ID, string(a.MediaType), a.FileName, a.Name, a.ContentType,
		a.Size, a.SHA256, a.Width, a.Height, dur, a.Owner, formatTS(a.CreatedAt)); err != nil {
		_ = os.Remove(final)
		return nil, fmt.Errorf("insert asset: %w", err)
	}
	return a, nil
}

// Get reads asset metadata by id.
func (s *AssetStore) Get(ctx context.Context, id string) (*Asset, error) {
	return s.one(ctx, `WHERE id = ?`, id)
}

func (s *AssetStore) bySHA(ctx context.Context, mt domain.MediaType, sum string) (*Asset, error) {
	return s.one(ctx, `WHERE media_type = ? AND sha256 = ?`, string(mt), sum)
}

func (s *AssetStore) one(ctx context.Context, where string, args ...any) (*Asset, error) {
	q := `SELECT id, media_type, file_name, name, content_type, size, sha256, width, height, duration, owner, created_at FROM assets ` + where
	var (
		a       Asset
		mt      string
		dur     sql.NullFloat64
		created string
	)
	err := s.db.QueryRowContext(ctx, s.db.rebind(q), args...).Scan(&a.ID, &mt, &a.FileName, &a.Name, &a.ContentType,
		&a.Size, &a.SHA256, &a.Width, &a.Height, &dur, &a.Owner, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read asset: %w", err)
	}
	a.MediaType = domain.MediaType(mt)
	if dur.Valid {
		a.Duration = domain.Float(dur.Float64)
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return &a, nil
}

// Open returns the bytes and metadata of library/file, where file is the
// name produced by Save (<assetId><ext>).
func (s *AssetStore) Open(ctx context.Context, library, file string) (*os.File, *Asset, error) {
	mt, ok := domain.MediaTypeForLibrary(library)
	if !ok || file == "" || file != filepath.Base(file) || strings.HasPrefix(file, ".") {
		return nil, nil, ErrNotFound
	}
	id := strings.TrimSuffix(file, filepath.Ext(file))
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if a.MediaType != mt || a.FileName != file {
		return nil, nil, ErrNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, library, file))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open asset: %w", err)
	}
	return f, a, nil
}

func extensionFor(name, contentType string) string {
	ext := strings.ToLower(strings.TrimSpace(filepath.Ext(name)))
	if ext != "" && len(ext) <= 6 {
		return ext
	}
	if ext, ok := mimeExtensionFallback[contentType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
