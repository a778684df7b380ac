/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package crash

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidecraft/internal/domain"
	"slidecraft/internal/storage"
)

type saver struct {
	dir     string
	project *domain.Project
}

func (s saver) Dir() string               { return s.dir }
func (s saver) Snapshot() *domain.Project { return s.project }

func sampleSaver(dir string) saver {
	return saver{dir: dir, project: &domain.Project{ID: "proj-1", Name: "Deck", Pages: []domain.Page{{ID: "p1", Duration: 5}}}}
}

func TestWriteReportInTemp(t *testing.T) {
	path, err := writeReport(nil, "boom", []byte("stacktrace"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(path) })
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	s := string(b)
	assert.Contains(t, s, "slidecraft crash report")
	assert.Contains(t, s, "Panic: boom")
}

func TestWriteReportInSessionDir(t *testing.T) {
	dir := t.TempDir()
	path, err := writeReport(sampleSaver(dir), "kaboom", []byte("stack"))
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "Project: proj-1 (1 pages, 0 audio tracks)")
}

func TestAutosaveExportsProject(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	path, err := Autosave(sampleSaver(dir), now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "autosave", "proj-1-20260506-070809.json"), path)

	p, err := storage.ImportProject(path)
	require.NoError(t, err)
	assert.Equal(t, "Deck", p.Name)
	require.Len(t, p.Pages, 1)

	empty := saver{dir: dir}
	path, err = Autosave(empty, now)
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestRecoverWritesReportAndAutosave(t *testing.T) {
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	defer func() {
		_ = w.Close()
		os.Stderr = oldStderr
		_, _ = io.Copy(io.Discard, r)
	}()

	code := 0
	oldExit := exitFn
	exitFn = func(c int) { code = c }
	defer func() { exitFn = oldExit }()

	dir := t.TempDir()
	func() {
		defer Recover(sampleSaver(dir))
		panic("boom")
	}()
	assert.Equal(t, 2, code)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var report string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "crash-") && strings.HasSuffix(e.Name(), ".log") {
			report = filepath.Join(dir, e.Name())
		}
	}
	require.NotEmpty(t, report, "crash report missing")
	b, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Contains(t, string(b), "Panic: boom")

	saves, err := os.ReadDir(filepath.Join(dir, "autosave"))
	require.NoError(t, err)
	assert.Len(t, saves, 1)
}

func TestRecoverWithoutPanicDoesNothing(t *testing.T) {
	called := false
	oldExit := exitFn
	exitFn = func(int) { called = true }
	defer func() { exitFn = oldExit }()

	func() {
		defer Recover(nil)
	}()
	assert.False(t, called)
}
