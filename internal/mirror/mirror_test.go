/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package mirror

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"slidecraft/internal/domain"
	applog "slidecraft/internal/log"
	"slidecraft/internal/sections"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock { return &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)} }

func newCache(slot Slot, c *fakeClock) *SessionCache {
	return New(slot, WithClock(c.Now), WithLogger(applog.Nop()))
}

func sample() Snapshot {
	return Snapshot{
		Pages:          []domain.Page{{ID: "p1", Name: "Intro", Duration: 5, Elements: []domain.Element{{ID: "e1", Type: domain.ElementImage, Src: "blob:1", File: &domain.Blob{Handle: "h1", Path: "/tmp/a.png"}}}}},
		AudioTracks:    []domain.AudioTrack{{ID: "t1", URL: "/api/tts/temp/x.mp3"}},
		UploadedImage:  []domain.MediaLibraryEntry{{ID: "i", URL: "blob:1", Type: domain.MediaImage}},
		CurrentProject: &domain.ProjectInfo{ID: "proj-1", Name: "Deck"},
		SectionMapping: sections.Mapping{"intro": {{Type: domain.MediaImage, URL: "blob:1"}}},
	}
}

func TestRestoreWithinWindow(t *testing.T) {
	clk := newClock()
	slot := NewMemorySlot()
	c := newCache(slot, clk)
	require.NoError(t, c.Persist(sample()))

	clk.Advance(3599 * time.Second)
	got, ok := c.Restore()
	require.True(t, ok)
	require.Equal(t, "Intro", got.Pages[0].Name)
	require.Equal(t, "h1", got.Pages[0].Elements[0].File.Handle, "local handles survive in the mirror")
	require.Equal(t, "proj-1", got.CurrentProject.ID)
	require.Equal(t, "blob:1", got.SectionMapping["intro"][0].URL)
	require.Equal(t, "blob:1", got.Library().Images[0].URL)
	require.Equal(t, 1, slot.Len())
}

func TestRestoreAfterWindowDiscardsAndRemoves(t *testing.T) {
	clk := newClock()
	slot := NewMemorySlot()
	c := newCache(slot, clk)
	require.NoError(t, c.Persist(sample()))

	clk.Advance(3601 * time.Second)
	_, ok := c.Restore()
	require.False(t, ok)
	require.Equal(t, 0, slot.Len(), "stale snapshot must be removed from the slot")
}

func TestRestoreExactlyAtBoundaryIsStale(t *testing.T) {
	clk := newClock()
	c := newCache(NewMemorySlot(), clk)
	require.NoError(t, c.Persist(sample()))
	clk.Advance(time.Hour)
	_, ok := c.Restore()
	require.False(t, ok)
}

func TestPersistOverwrites(t *testing.T) {
	clk := newClock()
	slot := NewMemorySlot()
	c := newCache(slot, clk)
	require.NoError(t, c.Persist(sample()))
	clk.Advance(50 * time.Minute)

	s := sample()
	s.Pages[0].Name = "Renamed"
	require.NoError(t, c.Persist(s))
	clk.Advance(50 * time.Minute)

	got, ok := c.Restore()
	require.True(t, ok, "timestamp refreshed by the second persist")
	require.Equal(t, "Renamed", got.Pages[0].Name)
	require.Equal(t, 1, slot.Len())
}

func TestUndecodableSnapshotIsRemoved(t *testing.T) {
	slot := NewMemorySlot()
	require.NoError(t, slot.Set(DefaultKey, "{not json"))
	c := newCache(slot, newClock())
	_, ok := c.Restore()
	require.False(t, ok)
	require.Equal(t, 0, slot.Len())
}

func TestPersistDegradesOnQuota(t *testing.T) {
	slot := NewMemorySlot()
	slot.MaxBytes = 16
	c := newCache(slot, newClock())

	require.NoError(t, c.Persist(sample()))
	require.True(t, c.Degraded())
	require.Equal(t, 0, slot.Len())

	slot.MaxBytes = 0
	require.NoError(t, c.Persist(sample()))
	require.Equal(t, 0, slot.Len(), "degraded cache stays off")
}

type brokenSlot struct{ MemorySlot }

func (b *brokenSlot) Get(string) (string, bool, error) { return "", false, errors.New("disk gone") }

func TestRestoreReadErrorIsTreatedAsMissing(t *testing.T) {
	c := newCache(&brokenSlot{}, newClock())
	_, ok := c.Restore()
	require.False(t, ok)
}

func TestDiscardAndCustomKey(t *testing.T) {
	slot := NewMemorySlot()
	c := New(slot, WithKey("other"), WithStaleAfter(time.Minute), WithLogger(applog.Nop()))
	require.NoError(t, c.Persist(sample()))
	_, ok, _ := slot.Get("other")
	require.True(t, ok)
	require.NoError(t, c.Discard())
	require.Equal(t, 0, slot.Len())
}
