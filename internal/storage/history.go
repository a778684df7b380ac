/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"slidecraft/internal/domain"
)

// language=SQL
// dialect=SQLite
const insertSaveSQL = `INSERT INTO saves(project_id, name, saved_at, pages, duration, failed_uploads, payload)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectLatestSaveSQL = `SELECT id, project_id, name, saved_at, pages, duration, failed_uploads, payload
	FROM saves WHERE project_id = ? ORDER BY saved_at DESC, id DESC LIMIT 1`

// language=SQL
// dialect=SQLite
const listSavesSQL = `SELECT id, project_id, name, saved_at, pages, duration, failed_uploads, payload
	FROM saves WHERE (? = '' OR project_id = ?) ORDER BY saved_at DESC, id DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const pruneSavesSQL = `DELETE FROM saves WHERE project_id = ? AND id NOT IN (
	SELECT id FROM saves WHERE project_id = ? ORDER BY saved_at DESC, id DESC LIMIT ?
)`

// SaveRecord is one entry of the local save history.
type SaveRecord struct {
	ID            int64
	ProjectID     string
	Name          string
	SavedAt       time.Time
	Pages         int
	Duration      float64
	FailedUploads int
	Payload       []byte
}

// Decode unmarshals the stored payload.
func (r SaveRecord) Decode() (domain.Payload, error) {
	var p domain.Payload
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		return p, fmt.Errorf("decode save %d: %w", r.ID, err)
	}
	return p, nil
}

// RecordSave stores the payload of a successful save and prunes the project's
// history to the configured size.
func (s *Local) RecordSave(ctx context.Context, projectID string, p domain.Payload, failedUploads int) error {
	if projectID == "" {
		return errors.New("project id is required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	ts := time.Now().UTC().Format(tsLayout)
	if _, err := s.db.ExecContext(ctx, insertSaveSQL, projectID, p.Name, ts, len(p.Pages), p.Settings.Duration, failedUploads, data); err != nil {
		return fmt.Errorf("insert save: %w", err)
	}
	if n, err := s.PruneSaves(ctx, projectID, s.keep); err != nil {
		s.log.Warn("prune save history", slog.String("project", projectID), slog.Any("err", err))
	} else if n > 0 {
		s.log.Debug("pruned save history", slog.String("project", projectID), slog.Int64("removed", n))
	}
	return nil
}

// LatestSave returns the newest save for the project, or nil if there is none.
func (s *Local) LatestSave(ctx context.Context, projectID string) (*SaveRecord, error) {
	r, err := scanSave(s.db.QueryRowContext(ctx, selectLatestSaveSQL, projectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListSaves returns up to limit newest saves, for one project or for all when projectID is empty.
func (s *Local) ListSaves(ctx context.Context, projectID string, limit int) ([]SaveRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, listSavesSQL, projectID, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list saves: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []SaveRecord
	for rows.Next() {
		r, err := scanSave(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneSaves keeps at most keepLast saves for the project and deletes older ones.
func (s *Local) PruneSaves(ctx context.Context, projectID string, keepLast int) (int64, error) {
	if keepLast <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, pruneSavesSQL, projectID, projectID, keepLast)
	if err != nil {
		return 0, fmt.Errorf("prune saves: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSave(row rowScanner) (SaveRecord, error) {
	var r SaveRecord
	var ts string
	if err := row.Scan(&r.ID, &r.ProjectID, &r.Name, &ts, &r.Pages, &r.Duration, &r.FailedUploads, &r.Payload); err != nil {
		return r, err
	}
	// keep the record even if the timestamp is malformed
	r.SavedAt, _ = time.Parse(tsLayout, ts)
	return r, nil
}
