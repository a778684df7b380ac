/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package reconcile decides where an editing session's initial state comes
// from: the project store, the local mirror, or nothing.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"slidecraft/internal/catalog"
	"slidecraft/internal/domain"
	applog "slidecraft/internal/log"
	"slidecraft/internal/mirror"
	"slidecraft/internal/sections"
)

// Source names where a loaded state came from.
type Source string

const (
	SourceRemote Source = "remote"
	SourceMirror Source = "mirror"
	SourceEmpty  Source = "empty"
)

// State is the full editable state of a session.
type State struct {
	Pages       []domain.Page       `json:"pages"`
	AudioTracks []domain.AudioTrack `json:"audioTracks"`
	Library     domain.MediaLibrary `json:"mediaLibrary"`
	Sections    sections.Mapping    `json:"sectionMapping"`
	Project     *domain.ProjectInfo `json:"currentProject,omitempty"`
}

// Empty returns the default state of a fresh session.
func Empty() State {
	return State{
		Pages:       []domain.Page{},
		AudioTracks: []domain.AudioTrack{},
		Sections:    sections.Mapping{},
	}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	return State{
		Pages:       domain.ClonePages(s.Pages),
		AudioTracks: domain.CloneTracks(s.AudioTracks),
		Library:     *s.Library.Clone(),
		Sections:    s.Sections.Clone(),
		Project:     s.Project.Clone(),
	}
}

// Snapshot converts the state to its mirror form.
func (s State) Snapshot() mirror.Snapshot {
	snap := mirror.Snapshot{
		Pages:          s.Pages,
		AudioTracks:    s.AudioTracks,
		CurrentProject: s.Project,
		SectionMapping: s.Sections,
	}
	snap.SetLibrary(s.Library)
	return snap
}

// FromSnapshot rebuilds a state from a mirror snapshot.
func FromSnapshot(snap mirror.Snapshot) State {
	st := State{
		Pages:       snap.Pages,
		AudioTracks: snap.AudioTracks,
		Library:     snap.Library(),
		Sections:    snap.SectionMapping,
		Project:     snap.CurrentProject,
	}
	if st.Pages == nil {
		st.Pages = []domain.Page{}
	}
	if st.AudioTracks == nil {
		st.AudioTracks = []domain.AudioTrack{}
	}
	if st.Sections == nil {
		st.Sections = sections.Mapping{}
	}
	return st
}

// FromProject rebuilds a state from a stored project. The catalog is
// extracted from the record and replaces whatever the session had; the
// section mapping starts empty.
func FromProject(p *domain.Project) State {
	st := State{
		Pages:       domain.ClonePages(p.Pages),
		AudioTracks: domain.CloneTracks(p.AudioTracks),
		Library:     catalog.Extract(p),
		Sections:    sections.Mapping{},
		Project:     p.Info(),
	}
	if st.Pages == nil {
		st.Pages = []domain.Page{}
	}
	if st.AudioTracks == nil {
		st.AudioTracks = []domain.AudioTrack{}
	}
	return st
}

// AsProject renders the state as a project record, for exports. Settings,
// status and tags come from the bound project; an unbound state gets the
// default settings and the name "untitled". Durations are summed from the pages.
func (s State) AsProject() *domain.Project {
	c := s.Clone()
	lib := c.Library
	p := &domain.Project{
		Name:         "untitled",
		Pages:        c.Pages,
		AudioTracks:  c.AudioTracks,
		MediaLibrary: &lib,
		Settings:     domain.DefaultSettings(),
	}
	if info := c.Project; info != nil {
		p.ID, p.Name, p.Status, p.Tags = info.ID, info.Name, info.Status, info.Tags
		p.CreatedAt, p.UpdatedAt = info.CreatedAt, info.UpdatedAt
		if info.Settings.Canvas.Width > 0 {
			p.Settings = info.Settings
		}
	}
	p.Settings.Duration = domain.TotalDuration(p.Pages)
	return p
}

// Fetcher reads a project from the store.
type Fetcher interface {
	Get(ctx context.Context, id string) (*domain.Project, error)
}

// Result is a loaded state and where it came from.
type Result struct {
	State  State
	Source Source
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(r *Reconciler) { r.log = l } }

// Reconciler picks the initial state of a session.
type Reconciler struct {
	store Fetcher
	cache *mirror.SessionCache
	log   *slog.Logger
}

// New returns a reconciler. cache may be nil when no mirror is kept.
func New(store Fetcher, cache *mirror.SessionCache, opts ...Option) *Reconciler {
	r := &Reconciler{store: store, cache: cache}
	for _, o := range opts {
		o(r)
	}
	if r.log == nil {
		r.log = applog.WithComponent("reconcile")
	}
	return r
}

// Load returns the state for projectID. An explicit id always reads the
// store and discards the mirror once the read succeeded; a failed read
// leaves the mirror alone. Without an id a fresh mirror wins, else the
// state is empty.
func (r *Reconciler) Load(ctx context.Context, projectID string) (*Result, error) {
	l := applog.WithOperation(r.log, "load")
	if projectID != "" {
		if r.store == nil {
			return nil, fmt.Errorf("load project %s: no project store configured", projectID)
		}
		p, err := r.store.Get(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("load project %s: %w", projectID, err)
		}
		if p == nil {
			return nil, fmt.Errorf("load project %s: empty response", projectID)
		}
		if r.cache != nil {
			if err := r.cache.Discard(); err != nil {
				l.Warn("discard mirror", slog.Any("err", err))
			}
		}
		st := FromProject(p)
		l.Info("loaded from store",
			slog.String("project", p.ID),
			slog.Int("pages", len(st.Pages)),
			slog.Int("library", st.Library.Len()))
		return &Result{State: st, Source: SourceRemote}, nil
	}

	if r.cache != nil {
		if snap, ok := r.cache.Restore(); ok {
			st := FromSnapshot(snap)
			l.Info("restored local mirror",
				slog.Int("pages", len(st.Pages)),
				slog.Time("captured", snap.CapturedAt()))
			return &Result{State: st, Source: SourceMirror}, nil
		}
	}
	l.Debug("starting empty")
	return &Result{State: Empty(), Source: SourceEmpty}, nil
}
