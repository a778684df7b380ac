/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package sections maps logical content sections to sets of media refs.
package sections

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"slidecraft/internal/domain"
)

// ErrMediaIndex is returned when a toggle points past the filtered media list.
var ErrMediaIndex = errors.New("media index out of range")

// MediaRef points at one catalog item by type and url.
type MediaRef struct {
	Type domain.MediaType `json:"type"`
	URL  string           `json:"url"`
}

// Mapping is keyed by normalized section title. Refs within a section form a
// set; slice order is insertion order and carries no meaning.
type Mapping map[string][]MediaRef

// NormalizeTitle lowercases, maps "&" to "and" and spaces to underscores.
func NormalizeTitle(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = strings.ReplaceAll(s, "&", "and")
	return strings.Join(strings.Fields(s), "_")
}

// Toggle flips membership of media[index] (after filtering media by type) in
// the section. It reports true when the ref was added, false when removed.
func (m Mapping) Toggle(title string, index int, mt domain.MediaType, media []domain.MediaLibraryEntry) (bool, error) {
	filtered := make([]domain.MediaLibraryEntry, 0, len(media))
	for _, e := range media {
		if e.Type == mt {
			filtered = append(filtered, e)
		}
	}
	if index < 0 || index >= len(filtered) {
		return false, fmt.Errorf("toggle %s[%d] of %d: %w", mt, index, len(filtered), ErrMediaIndex)
	}
	ref := MediaRef{Type: mt, URL: filtered[index].URL}
	key := NormalizeTitle(title)

	refs := m[key]
	for i, r := range refs {
		if r == ref {
			m[key] = append(refs[:i:i], refs[i+1:]...)
			return false, nil
		}
	}
	m[key] = append(refs, ref)
	return true, nil
}

// Rewrite replaces every ref url equal to from with to and returns the count.
func (m Mapping) Rewrite(from, to string) int {
	if from == to {
		return 0
	}
	n := 0
	for _, refs := range m {
		for i := range refs {
			if refs[i].URL == from {
				refs[i].URL = to
				n++
			}
		}
	}
	return n
}

// Refs returns a copy of the section's refs.
func (m Mapping) Refs(title string) []MediaRef {
	refs := m[NormalizeTitle(title)]
	if len(refs) == 0 {
		return nil
	}
	return append([]MediaRef(nil), refs...)
}

// Titles returns the normalized section titles in sorted order.
func (m Mapping) Titles() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Clone deep-copies the mapping. A nil mapping clones to an empty one.
func (m Mapping) Clone() Mapping {
	out := make(Mapping, len(m))
	for k, refs := range m {
		out[k] = append([]MediaRef(nil), refs...)
	}
	return out
}
