/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	applog "slidecraft/internal/log"
	"slidecraft/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	DBFileName   = "editor.sqlite"
	LockFileName = "editor.lock"

	// schemaVersion tracks the local SQLite schema.
	// Bump this when you perform breaking schema changes and add migrations.
	schemaVersion = 2

	defaultHistoryKeep = 20

	// tsLayout has fixed width so stored timestamps sort lexicographically.
	tsLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

var (
	// ErrQuotaExceeded is returned by Set when a value exceeds the slot limit.
	ErrQuotaExceeded = errors.New("local slot quota exceeded")
	// ErrLocked is returned by OpenLocal when another process holds the store.
	ErrLocked = errors.New("local store is locked by another process")
)

// Options tune a Local store.
type Options struct {
	// MaxValueBytes caps a single slot value; 0 means unlimited.
	MaxValueBytes int64
	// HistoryKeep is how many saves per project RecordSave retains.
	HistoryKeep int
}

// Local is the on-disk editor store.
type Local struct {
	dir      string
	db       *sql.DB
	lock     *flock.Flock
	maxBytes int64
	keep     int
	log      *slog.Logger
}

// OpenLocal creates dir if needed, takes the process lock, opens the database
// in WAL mode and brings the schema up to date.
func OpenLocal(dir string, opts Options) (*Local, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "open").With(slog.String("dir", dir))
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	lock := flock.New(filepath.Join(dir, LockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	db, err := openDB(filepath.Join(dir, DBFileName))
	if err != nil {
		_ = lock.Unlock()
		l.Error("open database failed", slog.Any("err", err))
		return nil, err
	}

	keep := opts.HistoryKeep
	if keep <= 0 {
		keep = defaultHistoryKeep
	}
	l.Debug("local store ready")
	return &Local{
		dir:      dir,
		db:       db,
		lock:     lock,
		maxBytes: opts.MaxValueBytes,
		keep:     keep,
		log:      applog.WithComponent("storage"),
	}, nil
}

func openDB(path string) (*sql.DB, error) {
	// Use a URI with shared cache and busy timeout. SQLite URIs want forward slashes.
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureVersion(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the database and the process lock.
func (s *Local) Close() error {
	err := s.db.Close()
	if uerr := s.lock.Unlock(); uerr != nil && err == nil {
		err = uerr
	}
	return err
}

// Dir is the store directory.
func (s *Local) Dir() string { return s.dir }

// SchemaVersion reports the schema version recorded in the database.
func (s *Local) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// language=SQL
// dialect=SQLite
const selectKVSQL = `SELECT value FROM kv WHERE key = ?`

// language=SQL
// dialect=SQLite
const upsertKVSQL = `INSERT INTO kv(key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

// language=SQL
// dialect=SQLite
const deleteKVSQL = `DELETE FROM kv WHERE key = ?`

// Get reads a slot value.
func (s *Local) Get(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(selectKVSQL, key).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("read slot %s: %w", key, err)
	}
	return v, true, nil
}

// Set overwrites a slot value. Values over MaxValueBytes fail with ErrQuotaExceeded.
func (s *Local) Set(key, value string) error {
	if s.maxBytes > 0 && int64(len(value)) > s.maxBytes {
		return fmt.Errorf("slot %s: %d bytes over limit %d: %w", key, len(value), s.maxBytes, ErrQuotaExceeded)
	}
	if _, err := s.db.Exec(upsertKVSQL, key, value, time.Now().UTC().Format(tsLayout)); err != nil {
		return fmt.Errorf("write slot %s: %w", key, err)
	}
	return nil
}

// Remove deletes a slot value; removing a missing key is not an error.
func (s *Local) Remove(key string) error {
	if _, err := s.db.Exec(deleteKVSQL, key); err != nil {
		return fmt.Errorf("remove slot %s: %w", key, err)
	}
	return nil
}

func ensureVersion(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// keep the stored schema so migrations can run
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// ensureSchema creates the current tables on a fresh database.
func ensureSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS saves (
			id             INTEGER PRIMARY KEY,
			project_id     TEXT    NOT NULL,
			name           TEXT    NOT NULL,
			saved_at       TEXT    NOT NULL,
			pages          INTEGER NOT NULL,
			duration       REAL    NOT NULL,
			failed_uploads INTEGER NOT NULL DEFAULT 0,
			payload        BLOB    NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_saves_project_ts ON saves(project_id, saved_at);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// runMigrations upgrades databases written by older releases, one step at a time.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			// v1 did not track failed uploads per save
			stmts = []string{`ALTER TABLE saves ADD COLUMN failed_uploads INTEGER NOT NULL DEFAULT 0;`}
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		cur = next
	}
	return nil
}
