/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package editor owns the mutable state of one editing session. All
// mutations go through Session, which keeps derived page durations current,
// writes every change through to the local mirror and orchestrates
// save/load against the project store.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"slidecraft/internal/catalog"
	"slidecraft/internal/domain"
	applog "slidecraft/internal/log"
	"slidecraft/internal/materialize"
	"slidecraft/internal/mirror"
	"slidecraft/internal/reconcile"
	"slidecraft/internal/telemetry"
)

var (
	ErrPageNotFound    = errors.New("page not found")
	ErrElementNotFound = errors.New("element not found")
	ErrTrackNotFound   = errors.New("audio track not found")
	ErrInvalidElement  = errors.New("invalid element type")
	ErrNoStore         = errors.New("no project store configured")
	ErrNoUploader      = errors.New("no asset uploader configured")
)

// State is the session's editable state.
type State = reconcile.State

// ProjectStore is the remote project store.
type ProjectStore interface {
	Create(ctx context.Context, p domain.Payload) (*domain.Project, error)
	Update(ctx context.Context, id string, p domain.Payload) (*domain.Project, error)
	Get(ctx context.Context, id string) (*domain.Project, error)
	List(ctx context.Context, f domain.ProjectFilter) ([]domain.Project, error)
	Delete(ctx context.Context, id string) error
}

// History records successful saves locally.
type History interface {
	RecordSave(ctx context.Context, projectID string, p domain.Payload, failedUploads int) error
}

// Telemetry receives anonymous usage events. *telemetry.Client implements it.
type Telemetry interface {
	ProjectLoaded(source string, pages int)
	ProjectSaved(s telemetry.Save)
	UploadsFailed(failed []materialize.FailedUpload)
}

type noTelemetry struct{}

func (noTelemetry) ProjectLoaded(string, int) {}
func (noTelemetry) ProjectSaved(telemetry.Save) {}
func (noTelemetry) UploadsFailed([]materialize.FailedUpload) {}

// Deps are the session's collaborators. Only Store is needed for
// load/list/delete; Save additionally needs Uploader when local media exists.
// Cache, History and Telemetry are optional.
type Deps struct {
	Store      ProjectStore
	Uploader   materialize.Uploader
	Cache      *mirror.SessionCache
	History    History
	Telemetry  Telemetry
	Logger     *slog.Logger
	Sequential bool
}

// Session is the single writer of an editing session's state.
type Session struct {
	mu    sync.Mutex
	st    State
	store ProjectStore
	up    materialize.Uploader
	pipe  *materialize.Pipeline
	cache *mirror.SessionCache
	rec   *reconcile.Reconciler
	hist  History
	tel   Telemetry
	log   *slog.Logger
}

// New returns a session with an empty state. Call Open to bootstrap it.
func New(d Deps) *Session {
	l := d.Logger
	if l == nil {
		l = applog.WithComponent("editor")
	}
	var popts []materialize.Option
	popts = append(popts, materialize.WithLogger(l))
	if d.Sequential {
		popts = append(popts, materialize.WithSequential())
	}
	var fetch reconcile.Fetcher
	if d.Store != nil {
		fetch = d.Store
	}
	var tel Telemetry = noTelemetry{}
	if d.Telemetry != nil {
		tel = d.Telemetry
	}
	return &Session{
		st:    reconcile.Empty(),
		store: d.Store,
		up:    d.Uploader,
		pipe:  materialize.New(d.Uploader, popts...),
		cache: d.Cache,
		rec:   reconcile.New(fetch, d.Cache, reconcile.WithLogger(l)),
		hist:  d.History,
		tel:   tel,
		log:   l,
	}
}

// Open bootstraps the session. A non-empty projectID loads that project from
// the store; otherwise a fresh local mirror is restored, else the state
// starts empty. On error the current state is kept.
func (s *Session) Open(ctx context.Context, projectID string) (reconcile.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.rec.Load(ctx, projectID)
	if err != nil {
		return "", err
	}
	s.st = res.State
	if res.Source == reconcile.SourceRemote {
		s.persistLocked()
	}
	s.tel.ProjectLoaded(string(res.Source), len(s.st.Pages))
	return res.Source, nil
}

// State returns a deep copy of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Clone()
}

// Snapshot returns the state as a project record. It returns nil when the
// state is locked by a mutation in progress, as happens when called while a
// panic unwinds through the session.
func (s *Session) Snapshot() *domain.Project {
	if !s.mu.TryLock() {
		return nil
	}
	defer s.mu.Unlock()
	return s.st.AsProject()
}

// Current returns the project the session is bound to, or nil before the first save.
func (s *Session) Current() *domain.ProjectInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Project.Clone()
}

// Reset clears the state and discards the mirror.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = reconcile.Empty()
	if s.cache != nil {
		return s.cache.Discard()
	}
	return nil
}

// mutate runs fn under the lock and persists the mirror when fn succeeds.
func (s *Session) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(); err != nil {
		return err
	}
	s.persistLocked()
	return nil
}

func (s *Session) persistLocked() {
	if s.cache == nil {
		return
	}
	if err := s.cache.Persist(s.st.Snapshot()); err != nil {
		s.log.Warn("persist mirror", slog.Any("err", err))
	}
}

func (s *Session) pageIndex(id string) (int, error) {
	for i := range s.st.Pages {
		if s.st.Pages[i].ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("page %q: %w", id, ErrPageNotFound)
}

func (s *Session) elementIndex(pageID, elID string) (int, int, error) {
	pi, err := s.pageIndex(pageID)
	if err != nil {
		return -1, -1, err
	}
	for ei := range s.st.Pages[pi].Elements {
		if s.st.Pages[pi].Elements[ei].ID == elID {
			return pi, ei, nil
		}
	}
	return -1, -1, fmt.Errorf("element %q on page %q: %w", elID, pageID, ErrElementNotFound)
}

func (s *Session) trackIndex(id string) (int, error) {
	for i := range s.st.AudioTracks {
		if s.st.AudioTracks[i].ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("track %q: %w", id, ErrTrackNotFound)
}

// ListProjects passes through to the store.
func (s *Session) ListProjects(ctx context.Context, f domain.ProjectFilter) ([]domain.Project, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	list, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return list, nil
}

// DeleteProject deletes a stored project. Deleting the session's current
// project unbinds the session so the next save creates a new one.
func (s *Session) DeleteProject(ctx context.Context, id string) error {
	if s.store == nil {
		return ErrNoStore
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	if s.st.Project != nil && s.st.Project.ID == id {
		s.st.Project = nil
		s.persistLocked()
	}
	return nil
}

// AddToLibrary adds entry to the catalog unless its URL is already listed.
func (s *Session) AddToLibrary(mt domain.MediaType, entry domain.MediaLibraryEntry) (bool, error) {
	var added bool
	err := s.mutate(func() error {
		s.st.Library, added = catalog.Add(s.st.Library, mt, entry)
		if !added {
			return errNoChange
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return false, nil
	}
	return added, err
}

// UploadToLibrary stores a local file directly as a durable asset and adds
// it to the catalog.
func (s *Session) UploadToLibrary(ctx context.Context, mt domain.MediaType, b domain.Blob) (domain.MediaLibraryEntry, error) {
	if s.up == nil {
		return domain.MediaLibraryEntry{}, ErrNoUploader
	}
	name := b.Name
	if name == "" {
		name = string(mt) + "-" + domain.NewID()
	}
	res, err := s.up.Upload(ctx, materialize.UploadRequest{Blob: b, MediaType: mt, Name: name})
	if err != nil {
		s.tel.UploadsFailed([]materialize.FailedUpload{{MediaType: mt, Key: b.Handle, Err: err}})
		return domain.MediaLibraryEntry{}, fmt.Errorf("upload %s: %w", mt, err)
	}
	entry := domain.MediaLibraryEntry{ID: res.AssetID, URL: res.URL, Name: name, Type: mt, AssetID: res.AssetID}
	_, err = s.AddToLibrary(mt, entry)
	return entry, err
}

// ToggleSectionMedia flips the index-th catalog item of type mt in the
// section's media set. It reports whether the item is now a member.
func (s *Session) ToggleSectionMedia(title string, index int, mt domain.MediaType) (bool, error) {
	var added bool
	err := s.mutate(func() error {
		media := s.st.Library.Entries(mt)
		typed := make([]domain.MediaLibraryEntry, len(media))
		for i, e := range media {
			e.Type = mt
			typed[i] = e
		}
		var err error
		added, err = s.st.Sections.Toggle(title, index, mt, typed)
		return err
	})
	return added, err
}

var errNoChange = errors.New("no change")
