/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidecraft/internal/backend"
	"slidecraft/internal/config"
	"slidecraft/internal/editor"
	"slidecraft/internal/storage"
)

type cliEnv struct {
	mirrorDir string
	cfgPath   string
}

// setupCLI starts an in-process backend and points the CLI at it through
// the environment.
func setupCLI(t *testing.T) *cliEnv {
	t.Helper()
	base := t.TempDir()
	srv, err := backend.NewServer(context.Background(), backend.ServerConfig{
		DatabaseURL: "sqlite://:memory:",
		AssetDir:    filepath.Join(base, "assets"),
		AuthSecret:  "cli-test-secret",
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})
	tok, _, err := backend.NewClient(ts.URL, "", 5*time.Second).IssueToken(context.Background(), "cli", time.Hour)
	require.NoError(t, err)

	env := &cliEnv{mirrorDir: filepath.Join(base, "mirror"), cfgPath: filepath.Join(base, "config.yaml")}
	t.Setenv(config.EnvBackendURL, ts.URL)
	t.Setenv(config.EnvBackendToken, tok)
	t.Setenv(config.EnvMirrorDir, env.mirrorDir)
	t.Setenv(config.EnvLogLevel, "error")
	t.Setenv(config.EnvLogFormat, "json")
	t.Setenv(config.EnvTelemetryOptIn, "false")
	return env
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := &app{}
	defer a.close()
	cmd := newRootCommand(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.cfgPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	require.NoError(t, err, "slidecraft %s\n%s", strings.Join(args, " "), out)
	return out
}

func (e *cliEnv) state(t *testing.T) editor.State {
	t.Helper()
	a := &app{configPath: e.cfgPath}
	defer a.close()
	s, err := a.openSession(context.Background())
	require.NoError(t, err)
	return s.State()
}

func TestVersionSkipsConfig(t *testing.T) {
	a := &app{configPath: filepath.Join(t.TempDir(), "missing", "config.yaml")}
	cmd := newRootCommand(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "slidecraft")
	assert.False(t, a.loaded)
}

func TestEditSaveAndReload(t *testing.T) {
	env := setupCLI(t)
	dir := t.TempDir()
	img := filepath.Join(dir, "logo.png")
	require.NoError(t, os.WriteFile(img, []byte("not really a png"), 0o644))

	env.mustRun(t, "page", "add", "Intro")
	st := env.state(t)
	require.Len(t, st.Pages, 1)
	pid := st.Pages[0].ID

	env.mustRun(t, "element", "add", pid, "--type", "image", "--src", img, "--width", "320", "--height", "200")
	out := env.mustRun(t, "element", "add", pid, "--type", "video", "--src", "https://cdn.example/v.mp4", "--duration", "9")
	assert.Contains(t, out, "page duration 9s")
	env.mustRun(t, "audio", "add", "https://cdn.example/music.mp3", "--name", "bed", "--volume", "0.4")

	st = env.state(t)
	require.Len(t, st.Pages[0].Elements, 2)
	assert.True(t, strings.HasPrefix(st.Pages[0].Elements[0].Src, "blob:"))
	require.Len(t, st.AudioTracks, 1)
	assert.Equal(t, 0.4, st.AudioTracks[0].Volume)

	out = env.mustRun(t, "status")
	assert.Contains(t, out, "not saved yet")
	assert.Contains(t, out, "Intro")

	out = env.mustRun(t, "save", "--name", "Launch", "--tag", "demo")
	assert.Contains(t, out, "Created project Launch")
	assert.Contains(t, out, "1 assets uploaded")

	st = env.state(t)
	require.NotNil(t, st.Project)
	projectID := st.Project.ID
	src := st.Pages[0].Elements[0].Src
	assert.Contains(t, src, "/api/assets/download/")
	assert.Nil(t, st.Pages[0].Elements[0].File)

	out = env.mustRun(t, "projects", "list", "--tag", "demo")
	assert.Contains(t, out, "Launch")
	assert.Contains(t, out, projectID)

	out = env.mustRun(t, "history")
	assert.Contains(t, out, "Launch")

	env.mustRun(t, "reset")
	assert.Empty(t, env.state(t).Pages)

	out = env.mustRun(t, "open", projectID)
	assert.Contains(t, out, "Loaded from remote")
	st = env.state(t)
	require.Len(t, st.Pages, 1)
	assert.Equal(t, 9.0, st.Pages[0].Duration)
	assert.Equal(t, src, st.Pages[0].Elements[0].Src)

	env.mustRun(t, "projects", "delete", projectID)
	assert.Nil(t, env.state(t).Project)
	_, err := env.run(t, "open", projectID)
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestElementEditsAndErrors(t *testing.T) {
	env := setupCLI(t)
	env.mustRun(t, "page", "add", "One")
	pid := env.state(t).Pages[0].ID

	env.mustRun(t, "element", "add", pid, "--type", "video", "--src", "https://cdn.example/v.mp4", "--duration", "12")
	eid := env.state(t).Pages[0].Elements[0].ID

	out := env.mustRun(t, "element", "set", pid, eid, "--trim-end", "7")
	assert.Contains(t, out, "page duration 7s")
	env.mustRun(t, "element", "dup", pid, eid)
	st := env.state(t)
	require.Len(t, st.Pages[0].Elements, 2)
	assert.NotEqual(t, st.Pages[0].Elements[0].ID, st.Pages[0].Elements[1].ID)

	env.mustRun(t, "element", "rm", pid, eid)
	env.mustRun(t, "page", "rename", pid, "Renamed")
	env.mustRun(t, "page", "bg", pid, "#112233")
	st = env.state(t)
	assert.Equal(t, "Renamed", st.Pages[0].Name)
	assert.Equal(t, "#112233", st.Pages[0].Background)

	_, err := env.run(t, "element", "add", pid, "--type", "hologram")
	assert.ErrorIs(t, err, editor.ErrInvalidElement)
	_, err = env.run(t, "element", "rm", pid, "missing")
	assert.ErrorIs(t, err, editor.ErrElementNotFound)
	_, err = env.run(t, "page", "move", pid, "two")
	assert.Error(t, err)
}

func TestLibrarySectionsAndExport(t *testing.T) {
	env := setupCLI(t)
	env.mustRun(t, "page", "add", "Cover")
	env.mustRun(t, "library", "add", "image", "https://cdn.example/a.png", "--name", "a")
	out := env.mustRun(t, "library", "add", "image", "https://cdn.example/a.png")
	assert.Contains(t, out, "Already in the library")

	out = env.mustRun(t, "section", "toggle", "Q & A", "0", "image")
	assert.Contains(t, out, "Added to")
	assert.Len(t, env.state(t).Sections["q_and_a"], 1)
	_, err := env.run(t, "section", "toggle", "Q & A", "4", "image")
	assert.Error(t, err)

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "deck.json")
	env.mustRun(t, "export", "json", jsonPath)
	p, err := storage.ImportProject(jsonPath)
	require.NoError(t, err)
	assert.Len(t, p.Pages, 1)

	pdfPath := filepath.Join(dir, "deck.pdf")
	env.mustRun(t, "export", "pdf", pdfPath)
	raw, err := os.ReadFile(pdfPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("%PDF")))

	out = env.mustRun(t, "import", jsonPath)
	assert.Contains(t, out, "1 pages")
	assert.Len(t, env.state(t).Pages, 2)
}

func TestSecondProcessIsLockedOut(t *testing.T) {
	env := setupCLI(t)
	held, err := storage.OpenLocal(env.mirrorDir, storage.Options{})
	require.NoError(t, err)
	defer held.Close()

	_, err = env.run(t, "status")
	assert.ErrorIs(t, err, storage.ErrLocked)
}

type memTokens map[string]string

func (m memTokens) Get(service, key string) (string, error) { return m[service+"/"+key], nil }
func (m memTokens) Set(service, key, value string) error {
	m[service+"/"+key] = value
	return nil
}
func (m memTokens) Delete(service, key string) error {
	delete(m, service+"/"+key)
	return nil
}

func TestLoginStoresTokenInKeyring(t *testing.T) {
	env := setupCLI(t)
	tokens := memTokens{}
	defer config.SetTokenStore(tokens)()

	out := env.mustRun(t, "login", "--subject", "alice", "--ttl", "2h")
	assert.Contains(t, out, "as alice")
	assert.NotEmpty(t, tokens["slidecraft/backend_token"])
	_, err := os.Stat(env.cfgPath)
	require.NoError(t, err)

	env.mustRun(t, "logout")
	assert.Empty(t, tokens)
}
