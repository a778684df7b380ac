/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany..
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import "github.com/google/uuid"

// NewID returns a fresh random identifier for pages, elements and tracks.
func NewID() string { return uuid.NewString() }

// Clone returns a deep copy of the element.
func (e Element) Clone() Element {
	e.Duration = cloneFloat(e.Duration)
	e.TrimStart = cloneFloat(e.TrimStart)
	e.TrimEnd = cloneFloat(e.TrimEnd)
	e.Volume = cloneFloat(e.Volume)
	if e.Props != nil {
		e.Props = cloneValue(e.Props).(map[string]any)
	}
	if e.File != nil {
		f := *e.File
		e.File = &f
	}
	return e
}

// Clone returns a deep copy of the page.
func (p Page) Clone() Page {
	if p.Elements != nil {
		els := make([]Element, len(p.Elements))
		for i, el := range p.Elements {
			els[i] = el.Clone()
		}
		p.Elements = els
	}
	return p
}

// Clone returns a deep copy of the track.
func (t AudioTrack) Clone() AudioTrack {
	t.Duration = cloneFloat(t.Duration)
	if t.File != nil {
		f := *t.File
		t.File = &f
	}
	return t
}

// Clone returns a deep copy of the library; nil stays nil.
func (l *MediaLibrary) Clone() *MediaLibrary {
	if l == nil {
		return nil
	}
	return &MediaLibrary{
		Images: cloneEntries(l.Images),
		Videos: cloneEntries(l.Videos),
		Audio:  cloneEntries(l.Audio),
	}
}

// Clone returns a deep copy of the project.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	c := *p
	c.Pages = ClonePages(p.Pages)
	c.AudioTracks = CloneTracks(p.AudioTracks)
	c.MediaLibrary = p.MediaLibrary.Clone()
	if p.Tags != nil {
		c.Tags = append([]string(nil), p.Tags...)
	}
	return &c
}

// ClonePages deep-copies a page list.
func ClonePages(pages []Page) []Page {
	if pages == nil {
		return nil
	}
	out := make([]Page, len(pages))
	for i, p := range pages {
		out[i] = p.Clone()
	}
	return out
}

// CloneTracks deep-copies a track list.
func CloneTracks(tracks []AudioTrack) []AudioTrack {
	if tracks == nil {
		return nil
	}
	out := make([]AudioTrack, len(tracks))
	for i, t := range tracks {
		out[i] = t.Clone()
	}
	return out
}

func cloneEntries(in []MediaLibraryEntry) []MediaLibraryEntry {
	if in == nil {
		return nil
	}
	out := make([]MediaLibraryEntry, len(in))
	for i, e := range in {
		e.Duration = cloneFloat(e.Duration)
		out[i] = e
	}
	return out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, x := range t {
			m[k] = cloneValue(x)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, x := range t {
			s[i] = cloneValue(x)
		}
		return s
	default:
		return v
	}
}
