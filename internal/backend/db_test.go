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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidecraft/internal/domain"
)

func TestRebind(t *testing.T) {
	pg := &DB{Dialect: DialectPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))
	lite := &DB{Dialect: DialectSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestSplitStatements(t *testing.T) {
	in := "-- header\nCREATE TABLE a (x INT);\n\n  -- note\nCREATE INDEX i ON a(x);\n"
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a(x)"}, splitStatements(in))
	assert.Empty(t, splitStatements("-- only a comment\n"))
}

func TestParseVersion(t *testing.T) {
	v, err := parseVersion("migrations/0002_asset_owner.sql")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
	_, err = parseVersion("init.sql")
	assert.Error(t, err)
	_, err = parseVersion("abc_init.sql")
	assert.Error(t, err)
}

func TestMigrationsAreAppliedOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "slidecraft.db")

	db, err := OpenDB(ctx, "sqlite://"+path)
	require.NoError(t, err)
	repo := NewProjectRepo(db)
	p, err := repo.Create(ctx, domain.Payload{Name: "kept", Settings: domain.DefaultSettings()})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = OpenDB(ctx, path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 2, n)
	got, err := NewProjectRepo(db).Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Name)
}

func TestOpenDBRejectsEmptyURL(t *testing.T) {
	_, err := OpenDB(context.Background(), "  ")
	assert.Error(t, err)
}

func TestRepoOrdersByUpdate(t *testing.T) {
	ctx := context.Background()
	db, err := OpenDB(ctx, "sqlite://:memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	repo := NewProjectRepo(db)
	repo.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	a, err := repo.Create(ctx, domain.Payload{Name: "a", Settings: domain.DefaultSettings()})
	require.NoError(t, err)
	_, err = repo.Create(ctx, domain.Payload{Name: "b", Settings: domain.DefaultSettings()})
	require.NoError(t, err)
	_, err = repo.Update(ctx, a.ID, domain.Payload{Name: "a2", Settings: domain.DefaultSettings()})
	require.NoError(t, err)

	list, err := repo.List(ctx, domain.ProjectFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a2", list[0].Name)
	assert.True(t, clock.Equal(list[0].UpdatedAt))
	assert.True(t, list[0].CreatedAt.Before(list[0].UpdatedAt))
}

// TestPostgresRoundTrip runs against a real server when SLC_TEST_PG_DSN is set.
func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("SLC_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("SLC_TEST_PG_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := OpenDB(ctx, dsn)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	require.Equal(t, DialectPostgres, db.Dialect)

	repo := NewProjectRepo(db)
	p, err := repo.Create(ctx, domain.Payload{Name: "pg", Settings: domain.DefaultSettings(), Tags: []string{"it"}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Delete(context.Background(), p.ID) })

	got, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"it"}, got.Tags)

	store, err := NewAssetStore(db, t.TempDir(), 0)
	require.NoError(t, err)
	a, err := store.Save(ctx, AssetInput{MediaType: domain.MediaAudio, Name: "x.mp3"}, strings.NewReader("ID3 pg"))
	require.NoError(t, err)
	back, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.SHA256, back.SHA256)
}
