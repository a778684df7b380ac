/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package telemetry sends opt-in, anonymous editor events (loads, saves,
// upload failures) and crash reports. Events only carry counts, media types
// and timings; project names and URLs never leave the machine.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"slidecraft/internal/config"
	"slidecraft/internal/domain"
	applog "slidecraft/internal/log"
	"slidecraft/internal/materialize"
	"slidecraft/internal/version"
)

const (
	EventProjectSaved  = "project_saved"
	EventUploadFailed  = "upload_failed"
	EventProjectLoaded = "project_loaded"
)

const (
	defaultTimeout = 1500 * time.Millisecond
	queueSize      = 64
)

// Config is the telemetry part of the application config.
type Config struct {
	OptIn     bool
	EventsURL string
	CrashURL  string
	Timeout   time.Duration
}

// FromConfig reads the general section. Env overrides are already applied
// by the config loader.
func FromConfig(g config.GeneralConfig) Config {
	return Config{
		OptIn:     g.TelemetryOptIn,
		EventsURL: strings.TrimSpace(g.TelemetryURL),
		CrashURL:  strings.TrimSpace(g.CrashURL),
		Timeout:   defaultTimeout,
	}
}

// Save describes one finished save.
type Save struct {
	Created  bool
	Pages    int
	Uploaded int
	Dropped  int
	Failed   []materialize.FailedUpload
	Took     time.Duration
}

type event struct {
	Name    string         `json:"name"`
	Session string         `json:"sid"`
	TS      string         `json:"ts"`
	Version string         `json:"version"`
	OS      string         `json:"os"`
	Arch    string         `json:"arch"`
	Props   map[string]any `json:"props,omitempty"`
}

// Client queues events and posts them from one goroutine. Recording never
// blocks: a full queue drops the event.
type Client struct {
	cfg  Config
	log  *slog.Logger
	http *http.Client
	sid  string

	mu     sync.Mutex
	closed bool
	q      chan event
	done   chan struct{}
}

// New starts a client. A client without opt-in or endpoint records nothing.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{
		cfg:  cfg,
		log:  applog.WithComponent("telemetry"),
		http: &http.Client{Timeout: cfg.Timeout},
		sid:  uuid.NewString(),
		q:    make(chan event, queueSize),
		done: make(chan struct{}),
	}
	go c.loop()
	return c
}

// Enabled reports whether events are sent.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// ProjectLoaded records where an opened session came from.
func (c *Client) ProjectLoaded(source string, pages int) {
	c.record(EventProjectLoaded, map[string]any{"source": source, "pages": pages})
}

// ProjectSaved records a successful save.
func (c *Client) ProjectSaved(s Save) {
	props := map[string]any{
		"created":  s.Created,
		"pages":    s.Pages,
		"uploaded": s.Uploaded,
		"dropped":  s.Dropped,
		"failed":   len(s.Failed),
		"ms":       s.Took.Milliseconds(),
	}
	c.record(EventProjectSaved, props)
}

// UploadsFailed records one event summarizing failed uploads per media type.
func (c *Client) UploadsFailed(failed []materialize.FailedUpload) {
	if len(failed) == 0 {
		return
	}
	c.record(EventUploadFailed, failureProps(failed))
}

func failureProps(failed []materialize.FailedUpload) map[string]any {
	props := map[string]any{}
	refs, unsupported := 0, 0
	for _, f := range failed {
		refs += len(f.Items)
		if errors.Is(f.Err, materialize.ErrUnsupportedMedia) {
			unsupported++
			continue
		}
		key := string(f.MediaType)
		if _, err := domain.ParseMediaType(key); err != nil {
			key = "other"
		}
		n, _ := props[key].(int)
		props[key] = n + 1
	}
	props["refs"] = refs
	props["unsupported"] = unsupported
	return props
}

func (c *Client) record(name string, props map[string]any) {
	if !c.Enabled() {
		return
	}
	ev := event{
		Name:    name,
		Session: c.sid,
		TS:      time.Now().UTC().Format(time.RFC3339Nano),
		Version: version.String(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
		Props:   props,
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.q <- ev:
	default:
		c.log.Debug("telemetry queue full", slog.String("event", name))
	}
}

// Close stops accepting events and waits for queued ones to be sent or for
// ctx to end.
func (c *Client) Close(ctx context.Context) {
	if c == nil {
		return
	}
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.q)
	}
	c.mu.Unlock()
	select {
	case <-c.done:
	case <-ctx.Done():
	}
}

func (c *Client) loop() {
	defer close(c.done)
	for ev := range c.q {
		buf, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := c.post(c.cfg.EventsURL, "application/json", buf); err != nil {
			c.log.Debug("telemetry send failed", slog.String("event", ev.Name), slog.Any("err", err))
		}
	}
}

func (c *Client) post(url, contentType string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// UploadCrash posts a crash report synchronously when opted in.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	if err := c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", report); err != nil {
		c.log.Debug("crash upload failed", slog.Any("err", err))
	}
}

var (
	defaultMu     sync.RWMutex
	defaultClient *Client
)

// SetDefault installs the client used by the package-level UploadCrash.
func SetDefault(c *Client) {
	defaultMu.Lock()
	defaultClient = c
	defaultMu.Unlock()
}

// UploadCrash uploads via the default client, if one is installed.
func UploadCrash(report []byte) {
	defaultMu.RLock()
	c := defaultClient
	defaultMu.RUnlock()
	c.UploadCrash(report)
}
