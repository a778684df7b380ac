/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package materialize turns local media references into durable assets and
// builds the payload sent to the project store.
//
// Every local identity (blob handle, else src) is uploaded at most once per
// media type within a call. When an upload succeeds the new URL is written to
// every element, audio track, section ref and catalog entry that pointed at
// the local identity. A failed upload leaves the affected items untouched and
// is reported in Result.Failed; the remaining uploads still run.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"slidecraft/internal/catalog"
	"slidecraft/internal/domain"
	applog "slidecraft/internal/log"
	"slidecraft/internal/sections"
)

// UploadRequest describes one local asset to store.
type UploadRequest struct {
	Blob         domain.Blob
	MediaType    domain.MediaType
	Name         string
	DurationHint *float64
}

// UploadResult is the durable identity of a stored asset.
type UploadResult struct {
	AssetID string `json:"assetId"`
	URL     string `json:"url"`
}

// Uploader stores asset bytes in the library for the request's media type.
type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (UploadResult, error)
}

// BlobSource opens the bytes behind a local blob.
type BlobSource interface {
	Open(ctx context.Context, b domain.Blob) (io.ReadCloser, error)
}

// Input is the editable state to materialize.
type Input struct {
	Pages       []domain.Page
	AudioTracks []domain.AudioTrack
	Library     domain.MediaLibrary
	Sections    sections.Mapping
	Project     *domain.ProjectInfo
	// Settings overrides the project's settings when non-zero.
	Settings domain.Settings
	Name     string
	Status   string
	Tags     []string
}

// ErrUnsupportedMedia marks local media on an element type that is never
// uploaded.
var ErrUnsupportedMedia = errors.New("local media on this element type cannot be uploaded")

// FailedUpload is one local identity that could not be stored.
type FailedUpload struct {
	MediaType domain.MediaType `json:"mediaType"`
	Key       string           `json:"key"`
	Src       string           `json:"src"`
	// Items are "page/<pageID>/element/<elementID>" or "track/<trackID>".
	Items []string `json:"items"`
	Err   error    `json:"-"`
}

func (f FailedUpload) Error() string {
	return fmt.Sprintf("upload %s %s (%d refs): %v", f.MediaType, f.Src, len(f.Items), f.Err)
}

// Uploaded is one local identity that became durable.
type Uploaded struct {
	MediaType domain.MediaType `json:"mediaType"`
	Key       string           `json:"key"`
	From      []string         `json:"from"`
	AssetID   string           `json:"assetId"`
	URL       string           `json:"url"`
}

// Result is the rewritten state plus the payload built from it.
// Pages and AudioTracks keep the local handles of failed items so a later
// save can retry; Payload never carries local handles.
type Result struct {
	Payload     domain.Payload
	Pages       []domain.Page
	AudioTracks []domain.AudioTrack
	Library     domain.MediaLibrary
	Sections    sections.Mapping
	Uploaded    []Uploaded
	Failed      []FailedUpload
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSequential performs every upload in page/element/track order, one at a time.
func WithSequential() Option { return func(p *Pipeline) { p.sequential = true } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.log = l } }

// Pipeline materializes editor state through an Uploader.
type Pipeline struct {
	up         Uploader
	sequential bool
	log        *slog.Logger
}

// New returns a pipeline. By default image, video and audio uploads run in
// three concurrent buckets, each in document order.
func New(up Uploader, opts ...Option) *Pipeline {
	p := &Pipeline{up: up}
	for _, o := range opts {
		o(p)
	}
	if p.log == nil {
		p.log = applog.WithComponent("materialize")
	}
	return p
}

type target struct {
	page, elem int // elem < 0 marks an audio track at index page
}

type job struct {
	key   string
	ref   domain.AssetRef
	mt    domain.MediaType
	req   UploadRequest
	srcs  []string
	items []target
	res   UploadResult
	err   error
	tried bool
	took  time.Duration
}

// Materialize uploads local media in in and returns the rewritten state.
// A cancelled context stops uploads that have not started and returns ctx.Err().
func (p *Pipeline) Materialize(ctx context.Context, in Input) (*Result, error) {
	l := applog.WithOperation(p.log, "materialize")
	out := &Result{
		Pages:       domain.ClonePages(in.Pages),
		AudioTracks: domain.CloneTracks(in.AudioTracks),
		Library:     *in.Library.Clone(),
		Sections:    in.Sections.Clone(),
	}

	jobs := p.plan(out)
	if err := p.run(ctx, jobs); err != nil {
		return nil, err
	}

	for _, j := range jobs {
		if !j.tried {
			continue
		}
		if j.err != nil {
			out.Failed = append(out.Failed, failure(j, out))
			l.Warn("upload failed",
				slog.String("media", string(j.mt)),
				slog.String("src", j.req.Blob.Handle),
				slog.Int("refs", len(j.items)),
				slog.Any("err", j.err))
			continue
		}
		apply(out, j)
		out.Uploaded = append(out.Uploaded, Uploaded{
			MediaType: j.mt, Key: j.key, From: j.srcs,
			AssetID: j.res.AssetID, URL: j.res.URL,
		})
		l.Debug("asset uploaded",
			slog.String("media", string(j.mt)),
			slog.String("asset", j.res.AssetID),
			slog.Int("refs", len(j.items)),
			slog.Duration("took", j.took))
	}

	out.Payload = buildPayload(in, out)
	l.Info("materialized",
		slog.Int("pages", len(out.Pages)),
		slog.Int("uploaded", len(out.Uploaded)),
		slog.Int("failed", len(out.Failed)))
	return out, nil
}

// plan walks elements then tracks in order and groups local references into
// jobs keyed by media type and local identity. Durable media loses its local
// handle here. Local media on elements that are never uploaded is recorded
// in out.Failed directly.
func (p *Pipeline) plan(out *Result) []*job {
	var jobs []*job
	byKey := map[string]*job{}

	// A ref joins an existing job when its src or its file handle was
	// already seen for the same media type.
	add := func(ref domain.AssetRef, mt domain.MediaType, file *domain.Blob, src string, t target, req func() UploadRequest) {
		keys := []string{string(mt) + "\x00" + ref.Key()}
		if file != nil && file.Handle != "" && file.Handle != ref.Key() {
			keys = append(keys, string(mt)+"\x00"+file.Handle)
		}
		var j *job
		for _, k := range keys {
			if j = byKey[k]; j != nil {
				break
			}
		}
		if j == nil {
			j = &job{key: ref.Key(), ref: ref, mt: mt, req: req()}
			jobs = append(jobs, j)
		}
		for _, k := range keys {
			if _, ok := byKey[k]; !ok {
				byKey[k] = j
			}
		}
		j.items = append(j.items, t)
		if src != "" && !contains(j.srcs, src) {
			j.srcs = append(j.srcs, src)
		}
	}

	for pi := range out.Pages {
		for ei := range out.Pages[pi].Elements {
			el := &out.Pages[pi].Elements[ei]
			ref := domain.RefOfElement(*el)
			mt, ok := domain.MediaTypeOf(el.Type)
			if !ok {
				if ref.State == domain.RefLocal {
					out.Failed = append(out.Failed, FailedUpload{
						MediaType: domain.MediaType(el.Type),
						Key:       ref.Key(),
						Src:       el.Src,
						Items:     []string{"page/" + out.Pages[pi].ID + "/element/" + el.ID},
						Err:       ErrUnsupportedMedia,
					})
				}
				continue
			}
			switch ref.State {
			case domain.RefDurable:
				el.File = nil
			case domain.RefLocal:
				snapshot := *el
				add(ref, mt, el.File, el.Src, target{page: pi, elem: ei}, func() UploadRequest {
					return elementRequest(snapshot, mt, ref)
				})
			}
		}
	}
	for ti := range out.AudioTracks {
		tr := &out.AudioTracks[ti]
		ref := domain.RefOfTrack(*tr)
		switch ref.State {
		case domain.RefDurable:
			tr.File = nil
		case domain.RefLocal:
			snapshot := *tr
			add(ref, domain.MediaAudio, tr.File, tr.Location(), target{page: ti, elem: -1}, func() UploadRequest {
				return trackRequest(snapshot, ref)
			})
		}
	}
	return jobs
}

func (p *Pipeline) run(ctx context.Context, jobs []*job) error {
	if len(jobs) == 0 {
		return nil
	}
	if p.sequential {
		return p.runBucket(ctx, jobs)
	}
	buckets := map[domain.MediaType][]*job{}
	for _, j := range jobs {
		buckets[j.mt] = append(buckets[j.mt], j)
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, mt := range domain.MediaTypes {
		bucket := buckets[mt]
		if len(bucket) == 0 {
			continue
		}
		g.Go(func() error { return p.runBucket(gctx, bucket) })
	}
	return g.Wait()
}

func (p *Pipeline) runBucket(ctx context.Context, jobs []*job) error {
	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		j.ref = j.ref.Uploading()
		start := time.Now()
		res, err := p.up.Upload(ctx, j.req)
		j.took = time.Since(start)
		j.tried = true
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			j.err = err
			continue
		}
		if res.URL == "" {
			j.err = fmt.Errorf("upload %s: empty url in response", j.mt)
			continue
		}
		j.ref = j.ref.Resolved(res.AssetID, res.URL)
		j.res = res
	}
	return nil
}

// apply rewrites every occurrence of the job's local identity.
func apply(out *Result, j *job) {
	for _, t := range j.items {
		if t.elem < 0 {
			tr := &out.AudioTracks[t.page]
			tr.URL = j.res.URL
			if tr.Src != "" {
				tr.Src = j.res.URL
			}
			tr.AssetID = j.res.AssetID
			tr.File = nil
			continue
		}
		el := &out.Pages[t.page].Elements[t.elem]
		el.Src = j.res.URL
		el.AssetID = j.res.AssetID
		el.File = nil
	}
	for _, from := range j.srcs {
		out.Sections.Rewrite(from, j.res.URL)
		catalog.Rewrite(&out.Library, from, j.res.URL, j.res.AssetID)
	}
}

func failure(j *job, out *Result) FailedUpload {
	f := FailedUpload{MediaType: j.mt, Key: j.key, Err: j.err}
	if len(j.srcs) > 0 {
		f.Src = j.srcs[0]
	}
	for _, t := range j.items {
		if t.elem < 0 {
			f.Items = append(f.Items, "track/"+out.AudioTracks[t.page].ID)
			continue
		}
		pg := out.Pages[t.page]
		f.Items = append(f.Items, "page/"+pg.ID+"/element/"+pg.Elements[t.elem].ID)
	}
	return f
}

func elementRequest(el domain.Element, mt domain.MediaType, ref domain.AssetRef) UploadRequest {
	req := UploadRequest{MediaType: mt, Blob: blobFor(el.File, ref)}
	req.Name = req.Blob.Name
	if req.Name == "" {
		if n, ok := el.Props["name"].(string); ok {
			req.Name = n
		}
	}
	if req.Name == "" {
		req.Name = string(mt) + "-" + el.ID
	}
	if mt == domain.MediaVideo {
		if d := domain.EffectiveDuration(el); d > 0 {
			req.DurationHint = domain.Float(d)
		}
	}
	return req
}

func trackRequest(t domain.AudioTrack, ref domain.AssetRef) UploadRequest {
	req := UploadRequest{MediaType: domain.MediaAudio, Blob: blobFor(t.File, ref)}
	req.Name = req.Blob.Name
	if req.Name == "" {
		req.Name = t.Name
	}
	if req.Name == "" {
		if b := path.Base(ref.URL); b != "." && b != "/" {
			req.Name = b
		} else {
			req.Name = "audio-" + t.ID
		}
	}
	if t.Duration != nil {
		req.DurationHint = domain.Float(*t.Duration)
	}
	return req
}

func blobFor(f *domain.Blob, ref domain.AssetRef) domain.Blob {
	if f != nil {
		b := *f
		if b.Handle == "" {
			b.Handle = ref.Key()
		}
		if b.Path == "" && b.URL == "" && ref.URL != "" {
			b.URL = ref.URL
		}
		return b
	}
	return domain.Blob{Handle: ref.Key(), URL: ref.URL}
}

func buildPayload(in Input, out *Result) domain.Payload {
	settings := in.Settings
	if settings == (domain.Settings{}) && in.Project != nil {
		settings = in.Project.Settings
	}
	if settings.Canvas == (domain.Canvas{}) {
		def := domain.DefaultSettings()
		settings.Canvas = def.Canvas
		if settings.FPS == 0 {
			settings.FPS = def.FPS
		}
		if settings.Quality == "" {
			settings.Quality = def.Quality
		}
	}
	settings.Duration = domain.TotalDuration(out.Pages)

	name := strings.TrimSpace(in.Name)
	if name == "" && in.Project != nil {
		name = in.Project.Name
	}
	if name == "" {
		name = "Untitled project"
	}
	status := in.Status
	if status == "" && in.Project != nil {
		status = in.Project.Status
	}
	if status == "" {
		status = domain.StatusDraft
	}
	tags := in.Tags
	if tags == nil && in.Project != nil {
		tags = in.Project.Tags
	}

	pages := domain.ClonePages(out.Pages)
	for pi := range pages {
		for ei := range pages[pi].Elements {
			pages[pi].Elements[ei].File = nil
		}
	}
	tracks := domain.CloneTracks(out.AudioTracks)
	for i := range tracks {
		tracks[i].File = nil
	}
	lib := out.Library.Clone()
	return domain.Payload{
		Name:         name,
		Settings:     settings,
		Pages:        emptyIfNil(pages),
		AudioTracks:  emptyIfNil(tracks),
		VideoTracks:  []any{},
		MediaLibrary: *lib,
		Status:       status,
		Tags:         append([]string(nil), tags...),
	}
}

// DropUnresolved returns a copy of the payload without elements, tracks and
// catalog entries that still reference local-only media.
func DropUnresolved(p domain.Payload) domain.Payload {
	p.Pages = domain.ClonePages(p.Pages)
	for pi := range p.Pages {
		kept := p.Pages[pi].Elements[:0]
		for _, el := range p.Pages[pi].Elements {
			if domain.RefOfElement(el).State == domain.RefLocal {
				continue
			}
			kept = append(kept, el)
		}
		p.Pages[pi].Elements = kept
		p.Pages[pi].RecomputeDuration()
	}
	p.Settings.Duration = domain.TotalDuration(p.Pages)

	tracks := make([]domain.AudioTrack, 0, len(p.AudioTracks))
	for _, t := range p.AudioTracks {
		if domain.RefOfTrack(t).State == domain.RefLocal {
			continue
		}
		tracks = append(tracks, t)
	}
	p.AudioTracks = tracks

	lib := p.MediaLibrary.Clone()
	for _, mt := range domain.MediaTypes {
		entries := lib.Entries(mt)
		if entries == nil {
			continue
		}
		kept := entries[:0]
		for _, e := range entries {
			if st, _ := domain.ClassifyURL(e.URL); st == domain.RefLocal {
				continue
			}
			kept = append(kept, e)
		}
		lib.SetEntries(mt, kept)
	}
	p.MediaLibrary = *lib
	return p
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
