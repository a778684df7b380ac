/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package mirror keeps a write-through snapshot of the editing session in a
// single local key so work survives restarts. A snapshot older than the
// staleness window is discarded on restore.
package mirror

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"slidecraft/internal/domain"
	applog "slidecraft/internal/log"
	"slidecraft/internal/sections"
)

// DefaultKey is the slot key holding the snapshot.
const DefaultKey = "slidecraft.editor.mirror"

// DefaultStaleAfter is the staleness window.
const DefaultStaleAfter = time.Hour

// Slot is a persistent string key-value slot.
type Slot interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// Snapshot is the full editable state at one point in time.
type Snapshot struct {
	Pages          []domain.Page              `json:"pages"`
	AudioTracks    []domain.AudioTrack        `json:"audioTracks"`
	UploadedAudio  []domain.MediaLibraryEntry `json:"uploadedAudio"`
	UploadedImage  []domain.MediaLibraryEntry `json:"uploadedImage"`
	UploadedVideo  []domain.MediaLibraryEntry `json:"uploadedVideo"`
	CurrentProject *domain.ProjectInfo        `json:"currentProject"`
	SectionMapping sections.Mapping           `json:"sectionMapping"`
	// Timestamp is the capture time in unix milliseconds, set by Persist.
	Timestamp int64 `json:"timestamp"`
}

// Library assembles the snapshot's catalog lists.
func (s Snapshot) Library() domain.MediaLibrary {
	return domain.MediaLibrary{Images: s.UploadedImage, Videos: s.UploadedVideo, Audio: s.UploadedAudio}
}

// SetLibrary spreads lib over the snapshot's catalog lists.
func (s *Snapshot) SetLibrary(lib domain.MediaLibrary) {
	s.UploadedImage, s.UploadedVideo, s.UploadedAudio = lib.Images, lib.Videos, lib.Audio
}

// CapturedAt returns the capture time.
func (s Snapshot) CapturedAt() time.Time { return time.UnixMilli(s.Timestamp) }

// Option configures a SessionCache.
type Option func(*SessionCache)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option { return func(c *SessionCache) { c.now = now } }

// WithKey overrides the slot key.
func WithKey(key string) Option { return func(c *SessionCache) { c.key = key } }

// WithStaleAfter overrides the staleness window.
func WithStaleAfter(d time.Duration) Option {
	return func(c *SessionCache) {
		if d > 0 {
			c.staleAfter = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *SessionCache) { c.log = l } }

// SessionCache persists and restores snapshots through a Slot.
type SessionCache struct {
	slot       Slot
	key        string
	staleAfter time.Duration
	now        func() time.Time
	log        *slog.Logger

	mu       sync.Mutex
	degraded bool
}

// New returns a cache over slot.
func New(slot Slot, opts ...Option) *SessionCache {
	c := &SessionCache{
		slot:       slot,
		key:        DefaultKey,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = applog.WithComponent("mirror")
	}
	return c
}

// Persist overwrites the slot with s stamped at the current time. A slot
// write failure switches the cache to degraded mode: it is logged once, all
// later persists are no-ops and nil is returned so editing continues.
func (c *SessionCache) Persist(s Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.degraded {
		return nil
	}
	s.Timestamp = c.now().UnixMilli()
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode mirror snapshot: %w", err)
	}
	if err := c.slot.Set(c.key, string(data)); err != nil {
		c.degraded = true
		applog.WithOperation(c.log, "persist").Warn("local mirror disabled", slog.String("key", c.key), slog.Int("bytes", len(data)), slog.Any("err", err))
		return nil
	}
	return nil
}

// Restore returns the stored snapshot if it is younger than the staleness
// window. Stale or undecodable snapshots are removed from the slot.
func (c *SessionCache) Restore() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := applog.WithOperation(c.log, "restore")

	raw, ok, err := c.slot.Get(c.key)
	if err != nil {
		l.Warn("read mirror", slog.Any("err", err))
		return Snapshot{}, false
	}
	if !ok {
		return Snapshot{}, false
	}
	var s Snapshot
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		l.Warn("discarding undecodable mirror", slog.Any("err", err))
		c.remove(l)
		return Snapshot{}, false
	}
	age := c.now().Sub(s.CapturedAt())
	if age >= c.staleAfter {
		l.Debug("discarding stale mirror", slog.Duration("age", age), slog.Duration("window", c.staleAfter))
		c.remove(l)
		return Snapshot{}, false
	}
	return s, true
}

// Discard removes the snapshot.
func (c *SessionCache) Discard() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.slot.Remove(c.key); err != nil {
		return fmt.Errorf("discard mirror: %w", err)
	}
	return nil
}

// Degraded reports whether persisting has been disabled after a write failure.
func (c *SessionCache) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

func (c *SessionCache) remove(l *slog.Logger) {
	if err := c.slot.Remove(c.key); err != nil {
		l.Warn("remove mirror", slog.Any("err", err))
	}
}
