/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package catalog builds and maintains the reusable media catalog.
// Entries are unique by URL within each media type.
package catalog

import (
	"net/url"
	"path"
	"strings"

	"slidecraft/internal/domain"
)

// Extract returns the project's saved library verbatim when present.
// Otherwise it derives one entry per distinct URL per category from image and
// video elements and from audio tracks, first occurrence winning.
func Extract(p *domain.Project) domain.MediaLibrary {
	if p == nil {
		return domain.MediaLibrary{}
	}
	if p.MediaLibrary != nil {
		return *p.MediaLibrary.Clone()
	}

	var lib domain.MediaLibrary
	for _, pg := range p.Pages {
		for _, el := range pg.Elements {
			mt, ok := domain.MediaTypeOf(el.Type)
			if !ok || el.Src == "" {
				continue
			}
			e := domain.MediaLibraryEntry{
				URL:  el.Src,
				Name: displayName(el.Src, el.Props),
				Type: mt,
			}
			setIdentity(&e, el.AssetID, el.LibraryID, el.ID)
			if mt == domain.MediaVideo {
				if d := domain.EffectiveDuration(el); d > 0 {
					e.Duration = domain.Float(d)
				}
			}
			lib, _ = Add(lib, mt, e)
		}
	}
	for _, tr := range p.AudioTracks {
		loc := tr.Location()
		if loc == "" {
			continue
		}
		name := tr.Name
		if name == "" {
			name = displayName(loc, nil)
		}
		e := domain.MediaLibraryEntry{URL: loc, Name: name, Type: domain.MediaAudio}
		setIdentity(&e, tr.AssetID, "", tr.ID)
		if tr.Duration != nil {
			e.Duration = domain.Float(*tr.Duration)
		}
		lib, _ = Add(lib, domain.MediaAudio, e)
	}
	return lib
}

// setIdentity takes the first non-empty of assetID, libraryID, fallback.
func setIdentity(e *domain.MediaLibraryEntry, assetID, libraryID, fallback string) {
	id := assetID
	if id == "" {
		id = libraryID
	}
	if id == "" {
		id = fallback
	}
	e.ID = id
	e.AssetID = id
	e.LibraryID = id
}

func displayName(src string, props map[string]any) string {
	if n, ok := props["name"].(string); ok && n != "" {
		return n
	}
	p := src
	if u, err := url.Parse(src); err == nil && u.Path != "" {
		p = u.Path
	}
	if b := path.Base(p); b != "." && b != "/" {
		return b
	}
	return src
}

// Dedupe drops later entries whose URL was already seen, and entries without a URL.
func Dedupe(entries []domain.MediaLibraryEntry) []domain.MediaLibraryEntry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]domain.MediaLibraryEntry, 0, len(entries))
	for _, e := range entries {
		if e.URL == "" {
			continue
		}
		if _, dup := seen[e.URL]; dup {
			continue
		}
		seen[e.URL] = struct{}{}
		out = append(out, e)
	}
	return out
}

// DedupeLibrary applies Dedupe to every category.
func DedupeLibrary(lib domain.MediaLibrary) domain.MediaLibrary {
	for _, mt := range domain.MediaTypes {
		if entries := lib.Entries(mt); entries != nil {
			lib.SetEntries(mt, Dedupe(entries))
		}
	}
	return lib
}

// Add appends entry under mt unless an entry with the same URL exists.
// Missing Type and ID are filled in.
func Add(lib domain.MediaLibrary, mt domain.MediaType, entry domain.MediaLibraryEntry) (domain.MediaLibrary, bool) {
	if strings.TrimSpace(entry.URL) == "" {
		return lib, false
	}
	entries := lib.Entries(mt)
	for _, e := range entries {
		if e.URL == entry.URL {
			return lib, false
		}
	}
	entry.Type = mt
	if entry.ID == "" {
		entry.ID = domain.NewID()
	}
	lib.SetEntries(mt, append(entries, entry))
	return lib, true
}

// Rewrite points every entry with URL from at to, setting its asset id.
// When to already exists in a category the stale entry is dropped instead,
// keeping URLs unique. It returns the number of entries touched.
func Rewrite(lib *domain.MediaLibrary, from, to, assetID string) int {
	if lib == nil || from == to {
		return 0
	}
	n := 0
	for _, mt := range domain.MediaTypes {
		entries := lib.Entries(mt)
		hasTarget := false
		for _, e := range entries {
			if e.URL == to {
				hasTarget = true
				break
			}
		}
		out := entries[:0]
		for _, e := range entries {
			if e.URL == from {
				n++
				if hasTarget {
					continue
				}
				e.URL = to
				if assetID != "" {
					e.AssetID = assetID
				}
				hasTarget = true
			}
			out = append(out, e)
		}
		if entries != nil {
			lib.SetEntries(mt, out)
		}
	}
	return n
}
