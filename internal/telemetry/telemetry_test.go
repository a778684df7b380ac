/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"slidecraft/internal/config"
	"slidecraft/internal/domain"
	"slidecraft/internal/materialize"
)

type collector struct {
	mu      sync.Mutex
	events  []event
	crashes []string
}

func (c *collector) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		var ev event
		_ = json.NewDecoder(r.Body).Decode(&ev)
		c.mu.Lock()
		c.events = append(c.events, ev)
		c.mu.Unlock()
	})
	mux.HandleFunc("/crash", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.crashes = append(c.crashes, string(b))
		c.mu.Unlock()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEditorEventsAreSentOnClose(t *testing.T) {
	var col collector
	srv := col.server(t)

	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", CrashURL: srv.URL + "/crash"})
	require.True(t, c.Enabled())

	c.ProjectLoaded("mirror", 2)
	c.ProjectSaved(Save{Created: true, Pages: 3, Uploaded: 2, Dropped: 1, Took: 1500 * time.Millisecond,
		Failed: []materialize.FailedUpload{{MediaType: domain.MediaVideo, Items: []string{"x"}}}})
	c.UploadsFailed(nil)
	c.Close(context.Background())

	col.mu.Lock()
	defer col.mu.Unlock()
	require.Len(t, col.events, 2, "an empty failure list records nothing")
	require.Equal(t, EventProjectLoaded, col.events[0].Name)
	require.Equal(t, "mirror", col.events[0].Props["source"])
	require.Equal(t, col.events[0].Session, col.events[1].Session)
	require.NotEmpty(t, col.events[1].Session)

	saved := col.events[1]
	require.Equal(t, EventProjectSaved, saved.Name)
	require.Equal(t, float64(3), saved.Props["pages"])
	require.Equal(t, float64(1), saved.Props["failed"])
	require.Equal(t, float64(1500), saved.Props["ms"])
	require.Equal(t, true, saved.Props["created"])
}

func TestFailureSummaryCountsPerMediaType(t *testing.T) {
	props := failureProps([]materialize.FailedUpload{
		{MediaType: domain.MediaImage, Items: []string{"a", "b"}, Err: errors.New("503")},
		{MediaType: domain.MediaImage, Items: []string{"c"}, Err: errors.New("503")},
		{MediaType: domain.MediaAudio, Items: []string{"t"}, Err: errors.New("timeout")},
		{MediaType: "sticker", Items: []string{"s"}, Err: materialize.ErrUnsupportedMedia},
	})
	require.Equal(t, map[string]any{"image": 2, "audio": 1, "refs": 5, "unsupported": 1}, props)
}

func TestDisabledClientRecordsNothing(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := New(Config{OptIn: false, EventsURL: srv.URL, CrashURL: srv.URL})
	require.False(t, c.Enabled())
	c.ProjectLoaded("remote", 1)
	c.UploadCrash([]byte("ignored"))
	c.Close(context.Background())

	noURL := New(Config{OptIn: true})
	noURL.ProjectSaved(Save{})
	noURL.Close(context.Background())
	require.Zero(t, atomic.LoadInt32(&hits))

	var nilClient *Client
	require.False(t, nilClient.Enabled())
	nilClient.UploadCrash([]byte("x"))
	nilClient.ProjectLoaded("empty", 0)
	nilClient.Close(context.Background())
}

func TestRecordAfterCloseAndSendErrors(t *testing.T) {
	c := New(Config{OptIn: true, EventsURL: "http://127.0.0.1:1/events", CrashURL: "http://127.0.0.1:1/crash", Timeout: 50 * time.Millisecond})
	c.ProjectLoaded("remote", 1)
	c.Close(context.Background())
	c.ProjectLoaded("remote", 1)
	c.Close(context.Background())
	c.UploadCrash([]byte("oops"))
}

func TestDefaultClientUploadsCrash(t *testing.T) {
	var col collector
	srv := col.server(t)

	UploadCrash([]byte("no default installed"))

	c := New(Config{OptIn: true, CrashURL: srv.URL + "/crash"})
	SetDefault(c)
	t.Cleanup(func() { SetDefault(nil); c.Close(context.Background()) })
	UploadCrash([]byte("STACKTRACE"))

	col.mu.Lock()
	defer col.mu.Unlock()
	require.Equal(t, []string{"STACKTRACE"}, col.crashes)
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.GeneralConfig{TelemetryOptIn: true, TelemetryURL: " https://t.example/e ", CrashURL: "https://t.example/c"})
	require.True(t, cfg.OptIn)
	require.Equal(t, "https://t.example/e", cfg.EventsURL)
	require.Equal(t, "https://t.example/c", cfg.CrashURL)
	require.Equal(t, defaultTimeout, cfg.Timeout)
}
