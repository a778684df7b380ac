/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"fmt"

	"slidecraft/internal/domain"
)

// AddPage appends an empty page and returns it.
func (s *Session) AddPage(name string) (domain.Page, error) {
	pages, err := s.AppendPages([]domain.Page{{Name: name}})
	if err != nil {
		return domain.Page{}, err
	}
	return pages[0], nil
}

// AppendPages appends pages, assigning missing ids, and recomputes each new
// page's duration and the start time of every page.
func (s *Session) AppendPages(pages []domain.Page) ([]domain.Page, error) {
	var added []domain.Page
	err := s.mutate(func() error {
		for _, p := range domain.ClonePages(pages) {
			if p.ID == "" {
				p.ID = domain.NewID()
			}
			if p.Elements == nil {
				p.Elements = []domain.Element{}
			}
			for i := range p.Elements {
				if p.Elements[i].ID == "" {
					p.Elements[i].ID = domain.NewID()
				}
			}
			p.RecomputeDuration()
			s.st.Pages = append(s.st.Pages, p)
		}
		domain.RecomputeStartTimes(s.st.Pages)
		added = domain.ClonePages(s.st.Pages[len(s.st.Pages)-len(pages):])
		return nil
	})
	return added, err
}

// RenamePage sets a page's name.
func (s *Session) RenamePage(id, name string) error {
	return s.mutate(func() error {
		pi, err := s.pageIndex(id)
		if err != nil {
			return err
		}
		s.st.Pages[pi].Name = name
		return nil
	})
}

// SetBackground sets a page's background.
func (s *Session) SetBackground(id, background string) error {
	return s.mutate(func() error {
		pi, err := s.pageIndex(id)
		if err != nil {
			return err
		}
		s.st.Pages[pi].Background = background
		return nil
	})
}

// DeletePage removes a page. Start times of later pages are left as they are.
func (s *Session) DeletePage(id string) error {
	return s.mutate(func() error {
		pi, err := s.pageIndex(id)
		if err != nil {
			return err
		}
		s.st.Pages = append(s.st.Pages[:pi:pi], s.st.Pages[pi+1:]...)
		return nil
	})
}

// MovePage moves a page to index to (clamped). Start times are not recomputed.
func (s *Session) MovePage(id string, to int) error {
	return s.mutate(func() error {
		pi, err := s.pageIndex(id)
		if err != nil {
			return err
		}
		if to < 0 {
			to = 0
		}
		if to >= len(s.st.Pages) {
			to = len(s.st.Pages) - 1
		}
		if to == pi {
			return nil
		}
		p := s.st.Pages[pi]
		rest := append(s.st.Pages[:pi:pi], s.st.Pages[pi+1:]...)
		out := make([]domain.Page, 0, len(s.st.Pages))
		out = append(out, rest[:to]...)
		out = append(out, p)
		out = append(out, rest[to:]...)
		s.st.Pages = out
		return nil
	})
}

// AddElement appends el to a page, assigning an id when missing, and
// recomputes the page duration.
func (s *Session) AddElement(pageID string, el domain.Element) (domain.Element, error) {
	if !el.Type.Valid() {
		return domain.Element{}, fmt.Errorf("element type %q: %w", el.Type, ErrInvalidElement)
	}
	el = el.Clone()
	if el.ID == "" {
		el.ID = domain.NewID()
	}
	err := s.mutate(func() error {
		pi, err := s.pageIndex(pageID)
		if err != nil {
			return err
		}
		pg := &s.st.Pages[pi]
		pg.Elements = append(pg.Elements, el)
		pg.RecomputeDuration()
		return nil
	})
	if err != nil {
		return domain.Element{}, err
	}
	return el.Clone(), nil
}

// UpdateElement applies fn to a copy of the element and stores the result.
// The id cannot change. The page duration is recomputed when the element is
// a video before or after the update.
func (s *Session) UpdateElement(pageID, elID string, fn func(*domain.Element)) (domain.Element, error) {
	var out domain.Element
	err := s.mutate(func() error {
		pi, ei, err := s.elementIndex(pageID, elID)
		if err != nil {
			return err
		}
		pg := &s.st.Pages[pi]
		before := pg.Elements[ei]
		next := before.Clone()
		fn(&next)
		next.ID = before.ID
		if !next.Type.Valid() {
			return fmt.Errorf("element type %q: %w", next.Type, ErrInvalidElement)
		}
		pg.Elements[ei] = next
		if before.Type == domain.ElementVideo || next.Type == domain.ElementVideo {
			pg.RecomputeDuration()
		}
		out = next.Clone()
		return nil
	})
	return out, err
}

// DeleteElement removes an element; deleting a video recomputes the page duration.
func (s *Session) DeleteElement(pageID, elID string) error {
	return s.mutate(func() error {
		pi, ei, err := s.elementIndex(pageID, elID)
		if err != nil {
			return err
		}
		pg := &s.st.Pages[pi]
		wasVideo := pg.Elements[ei].Type == domain.ElementVideo
		pg.Elements = append(pg.Elements[:ei:ei], pg.Elements[ei+1:]...)
		if wasVideo {
			pg.RecomputeDuration()
		}
		return nil
	})
}

// DuplicateElement copies an element onto the same page under a new id.
func (s *Session) DuplicateElement(pageID, elID string) (domain.Element, error) {
	var dup domain.Element
	err := s.mutate(func() error {
		pi, ei, err := s.elementIndex(pageID, elID)
		if err != nil {
			return err
		}
		pg := &s.st.Pages[pi]
		dup = pg.Elements[ei].Clone()
		dup.ID = domain.NewID()
		pg.Elements = append(pg.Elements, dup)
		pg.RecomputeDuration()
		return nil
	})
	if err != nil {
		return domain.Element{}, err
	}
	return dup.Clone(), nil
}

// AddAudioTrack appends a track, assigning an id when missing.
func (s *Session) AddAudioTrack(t domain.AudioTrack) (domain.AudioTrack, error) {
	t = t.Clone()
	if t.ID == "" {
		t.ID = domain.NewID()
	}
	if t.Type == "" {
		t.Type = "audio"
	}
	err := s.mutate(func() error {
		s.st.AudioTracks = append(s.st.AudioTracks, t)
		return nil
	})
	return t.Clone(), err
}

// UpdateAudioTrack applies fn to a copy of the track and stores the result.
func (s *Session) UpdateAudioTrack(id string, fn func(*domain.AudioTrack)) (domain.AudioTrack, error) {
	var out domain.AudioTrack
	err := s.mutate(func() error {
		ti, err := s.trackIndex(id)
		if err != nil {
			return err
		}
		next := s.st.AudioTracks[ti].Clone()
		fn(&next)
		next.ID = id
		s.st.AudioTracks[ti] = next
		out = next.Clone()
		return nil
	})
	return out, err
}

// RemoveAudioTrack removes a track.
func (s *Session) RemoveAudioTrack(id string) error {
	return s.mutate(func() error {
		ti, err := s.trackIndex(id)
		if err != nil {
			return err
		}
		s.st.AudioTracks = append(s.st.AudioTracks[:ti:ti], s.st.AudioTracks[ti+1:]...)
		return nil
	})
}
