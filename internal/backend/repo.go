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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"slidecraft/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// document is the stored JSON body of a project: everything but the
// columns kept for filtering.
type document struct {
	Pages        []domain.Page        `json:"pages"`
	AudioTracks  []domain.AudioTrack  `json:"audioTracks"`
	VideoTracks  []any                `json:"videoTracks"`
	MediaLibrary *domain.MediaLibrary `json:"mediaLibrary,omitempty"`
	Settings     domain.Settings      `json:"settings"`
}

// ProjectRepo persists projects.
type ProjectRepo struct {
	db  *DB
	now func() time.Time
}

// NewProjectRepo returns a repository over db.
func NewProjectRepo(db *DB) *ProjectRepo { return &ProjectRepo{db: db, now: time.Now} }

// Create stores a new project from p.
func (r *ProjectRepo) Create(ctx context.Context, p domain.Payload) (*domain.Project, error) {
	now := r.now().UTC()
	proj := projectFromPayload(domain.NewID(), p, now, now)
	doc, tags, err := encodeProject(proj)
	if err != nil {
		return nil, err
	}
	const q = `INSERT INTO projects(id, name, status, tags, document, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, r.db.rebind(q), proj.ID, proj.Name, proj.Status, tags, doc,
		formatTS(now), formatTS(now)); err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return proj, nil
}

// Update replaces the content of project id.
func (r *ProjectRepo) Update(ctx context.Context, id string, p domain.Payload) (*domain.Project, error) {
	cur, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	proj := projectFromPayload(id, p, cur.CreatedAt, r.now().UTC())
	doc, tags, err := encodeProject(proj)
	if err != nil {
		return nil, err
	}
	const q = `UPDATE projects SET name = ?, status = ?, tags = ?, document = ?, updated_at = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, r.db.rebind(q), proj.Name, proj.Status, tags, doc, formatTS(proj.UpdatedAt), id)
	if err != nil {
		return nil, fmt.Errorf("update project %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return proj, nil
}

// Get reads one project.
func (r *ProjectRepo) Get(ctx context.Context, id string) (*domain.Project, error) {
	const q = `SELECT id, name, status, tags, document, created_at, updated_at FROM projects WHERE id = ?`
	p, err := scanProject(r.db.QueryRowContext(ctx, r.db.rebind(q), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	return p, nil
}

// List returns projects newest first. Status filters exactly; Tag and Query
// are matched in memory against tags and the name.
func (r *ProjectRepo) List(ctx context.Context, f domain.ProjectFilter) ([]domain.Project, error) {
	q := `SELECT id, name, status, tags, document, created_at, updated_at FROM projects`
	var args []any
	if f.Status != "" {
		q += ` WHERE status = ?`
		args = append(args, f.Status)
	}
	q += ` ORDER BY updated_at DESC, id`
	rows, err := r.db.QueryContext(ctx, r.db.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []domain.Project{}
	query := strings.ToLower(strings.TrimSpace(f.Query))
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		if f.Tag != "" && !hasTag(p.Tags, f.Tag) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) {
			continue
		}
		out = append(out, *p)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out, nil
}

// Delete removes a project.
func (r *ProjectRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.rebind(`DELETE FROM projects WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}

func projectFromPayload(id string, p domain.Payload, created, updated time.Time) *domain.Project {
	lib := p.MediaLibrary.Clone()
	status := p.Status
	if status == "" {
		status = domain.StatusDraft
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return &domain.Project{
		ID:           id,
		Name:         p.Name,
		Pages:        p.Pages,
		AudioTracks:  p.AudioTracks,
		MediaLibrary: lib,
		Settings:     p.Settings,
		Status:       status,
		Tags:         tags,
		CreatedAt:    created,
		UpdatedAt:    updated,
	}
}

func encodeProject(p *domain.Project) (doc, tags string, err error) {
	d := document{
		Pages:        p.Pages,
		AudioTracks:  p.AudioTracks,
		VideoTracks:  []any{},
		MediaLibrary: p.MediaLibrary,
		Settings:     p.Settings,
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return "", "", fmt.Errorf("encode project: %w", err)
	}
	tb, err := json.Marshal(p.Tags)
	if err != nil {
		return "", "", fmt.Errorf("encode tags: %w", err)
	}
	return string(raw), string(tb), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*domain.Project, error) {
	var (
		p                domain.Project
		tags, doc        string
		created, updated string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Status, &tags, &doc, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of %s: %w", p.ID, err)
	}
	var d document
	if err := json.Unmarshal([]byte(doc), &d); err != nil {
		return nil, fmt.Errorf("decode project %s: %w", p.ID, err)
	}
	p.Pages, p.AudioTracks, p.MediaLibrary, p.Settings = d.Pages, d.AudioTracks, d.MediaLibrary, d.Settings
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &p, nil
}

// formatTS renders fixed-width UTC timestamps so text ordering matches time ordering.
func formatTS(t time.Time) string { return t.UTC().Format("2006-01-02T15:04:05.000000000Z") }

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, want) {
			return true
		}
	}
	return false
}
