/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"slidecraft/internal/domain"
	applog "slidecraft/internal/log"
	"slidecraft/internal/materialize"
	"slidecraft/internal/telemetry"
)

// Policy decides what Save does when some uploads failed.
type Policy int

const (
	// PolicyAbort returns a *SaveError and does not write to the store.
	PolicyAbort Policy = iota
	// PolicyDropFailed saves without the items whose media is still local.
	PolicyDropFailed
)

func (p Policy) String() string {
	if p == PolicyDropFailed {
		return "drop-failed"
	}
	return "abort"
}

// ParsePolicy maps "abort" and "drop-failed" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort":
		return PolicyAbort, nil
	case "drop", "drop-failed", "drop_failed":
		return PolicyDropFailed, nil
	}
	return PolicyAbort, fmt.Errorf("unknown save policy %q", s)
}

// SaveOptions override project metadata for one save.
type SaveOptions struct {
	Name   string
	Status string
	Tags   []string
	Policy Policy
}

// SaveError reports uploads that failed during an aborted save.
type SaveError struct {
	Failed []materialize.FailedUpload
}

func (e *SaveError) Error() string {
	if len(e.Failed) == 1 {
		return "save aborted: " + e.Failed[0].Error()
	}
	return fmt.Sprintf("save aborted: %d uploads failed (first: %s)", len(e.Failed), e.Failed[0].Error())
}

// Unwrap exposes the individual upload errors.
func (e *SaveError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		if f.Err != nil {
			out = append(out, f.Err)
		}
	}
	return out
}

// SaveReport describes a completed save.
type SaveReport struct {
	Project  *domain.ProjectInfo
	Created  bool
	Uploaded []materialize.Uploaded
	Failed   []materialize.FailedUpload
	// Dropped counts elements and tracks left out under PolicyDropFailed.
	Dropped  int
	Payload  domain.Payload
}

// Save materializes local media, then creates or updates the project.
//
// Successful uploads are written back to the state even when the save is
// aborted, so a retry does not upload them again. A store failure leaves the
// state as it was before the call.
func (s *Session) Save(ctx context.Context, opts SaveOptions) (*SaveReport, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l := applog.WithOperation(s.log, "save")
	start := time.Now()

	in := materialize.Input{
		Pages:       s.st.Pages,
		AudioTracks: s.st.AudioTracks,
		Library:     s.st.Library,
		Sections:    s.st.Sections,
		Project:     s.st.Project,
		Name:        opts.Name,
		Status:      opts.Status,
		Tags:        opts.Tags,
	}
	if needsUpload(s.st) && s.up == nil {
		return nil, ErrNoUploader
	}
	res, err := s.pipe.Materialize(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}
	s.tel.UploadsFailed(res.Failed)

	payload := res.Payload
	dropped := 0
	if len(res.Failed) > 0 {
		if opts.Policy == PolicyAbort {
			if len(res.Uploaded) > 0 {
				s.applyLocked(res)
				s.persistLocked()
			}
			l.Warn("save aborted", slog.Int("failed", len(res.Failed)), slog.Int("uploaded", len(res.Uploaded)))
			return nil, &SaveError{Failed: res.Failed}
		}
		for _, f := range res.Failed {
			dropped += len(f.Items)
		}
		payload = materialize.DropUnresolved(payload)
	}

	var (
		proj    *domain.Project
		created bool
	)
	if s.st.Project == nil || s.st.Project.ID == "" {
		proj, err = s.store.Create(ctx, payload)
		created = true
	} else {
		proj, err = s.store.Update(ctx, s.st.Project.ID, payload)
	}
	if err != nil {
		return nil, fmt.Errorf("save project: %w", err)
	}
	if proj == nil {
		return nil, fmt.Errorf("save project: empty response from store")
	}

	s.applyLocked(res)
	s.st.Project = proj.Info()
	s.persistLocked()

	if s.hist != nil {
		if err := s.hist.RecordSave(ctx, proj.ID, payload, len(res.Failed)); err != nil {
			l.Warn("record save history", slog.Any("err", err))
		}
	}
	s.tel.ProjectSaved(telemetry.Save{
		Created:  created,
		Pages:    len(payload.Pages),
		Uploaded: len(res.Uploaded),
		Dropped:  dropped,
		Failed:   res.Failed,
		Took:     time.Since(start),
	})
	l.Info("project saved",
		slog.String("project", proj.ID),
		slog.Bool("created", created),
		slog.Int("pages", len(payload.Pages)),
		slog.Int("uploaded", len(res.Uploaded)),
		slog.Int("dropped", dropped),
		slog.Duration("took", time.Since(start)))

	return &SaveReport{
		Project:  proj.Info(),
		Created:  created,
		Uploaded: res.Uploaded,
		Failed:   res.Failed,
		Dropped:  dropped,
		Payload:  payload,
	}, nil
}

func (s *Session) applyLocked(res *materialize.Result) {
	s.st.Pages = res.Pages
	s.st.AudioTracks = res.AudioTracks
	s.st.Library = res.Library
	s.st.Sections = res.Sections
}

func needsUpload(st State) bool {
	for _, p := range st.Pages {
		for _, el := range p.Elements {
			if _, media := domain.MediaTypeOf(el.Type); media && domain.RefOfElement(el).State == domain.RefLocal {
				return true
			}
		}
	}
	for _, t := range st.AudioTracks {
		if domain.RefOfTrack(t).State == domain.RefLocal {
			return true
		}
	}
	return false
}
