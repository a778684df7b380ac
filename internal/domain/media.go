/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany..
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// MediaType is the catalog category of a piece of media.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
)

// MediaTypes lists the categories in catalog order.
var MediaTypes = []MediaType{MediaImage, MediaVideo, MediaAudio}

// Library is the asset library that stores media of this type.
func (m MediaType) Library() string {
	switch m {
	case MediaImage:
		return "image-assets"
	case MediaVideo:
		return "video-assets"
	case MediaAudio:
		return "audio-assets"
	}
	return ""
}

// ParseMediaType accepts "image", "video" or "audio".
func ParseMediaType(s string) (MediaType, error) {
	switch mt := MediaType(strings.ToLower(strings.TrimSpace(s))); mt {
	case MediaImage, MediaVideo, MediaAudio:
		return mt, nil
	}
	return "", fmt.Errorf("unknown media type %q", s)
}

// MediaTypeForLibrary maps an asset library name back to its media type.
func MediaTypeForLibrary(lib string) (MediaType, bool) {
	for _, mt := range MediaTypes {
		if mt.Library() == lib {
			return mt, true
		}
	}
	return "", false
}

// MediaTypeOf returns the media category of an element, if it has one that
// gets uploaded on save.
func MediaTypeOf(t ElementType) (MediaType, bool) {
	switch t {
	case ElementImage:
		return MediaImage, true
	case ElementVideo:
		return MediaVideo, true
	}
	return "", false
}

// DownloadPrefix is the path under which the asset store serves durable media.
const DownloadPrefix = "/api/assets/download/"

// DurableURL builds the download path for a stored asset.
func DurableURL(mt MediaType, assetID, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return DownloadPrefix + mt.Library() + "/" + assetID + ext
}

// transientPrefixes are paths of the speech/proxy services whose URLs only
// live for the current session.
var transientPrefixes = []string{"/api/tts/temp/", "/api/proxy/", "/temp-audio/"}

// RefState is the lifecycle position of a media reference.
type RefState int

const (
	RefNone RefState = iota
	RefLocal
	RefUploading
	RefDurable
	RefExternal
)

func (s RefState) String() string {
	switch s {
	case RefLocal:
		return "local"
	case RefUploading:
		return "uploading"
	case RefDurable:
		return "durable"
	case RefExternal:
		return "external"
	}
	return "none"
}

// AssetRef is the resolved identity of the media behind an element or track.
//
//	Local{Handle}         bytes only reachable from this session
//	Uploading{Handle}     an upload for Handle is in flight
//	Durable{AssetID, URL} stored by the asset backend
//	External{URL}         third-party URL, never re-hosted
type AssetRef struct {
	State   RefState
	Handle  string
	AssetID string
	URL     string
	// Transient marks a Local ref that came from a generation service URL
	// rather than a blob; its bytes are fetched by URL.
	Transient bool
}

// Key is the dedup identity of the ref within one save.
func (r AssetRef) Key() string {
	switch r.State {
	case RefLocal, RefUploading:
		return r.Handle
	case RefDurable:
		if r.AssetID != "" {
			return r.AssetID
		}
	}
	return r.URL
}

// Uploading moves a Local ref into the in-flight state.
func (r AssetRef) Uploading() AssetRef {
	if r.State == RefLocal {
		r.State = RefUploading
	}
	return r
}

// Resolved moves the ref to Durable.
func (r AssetRef) Resolved(assetID, u string) AssetRef {
	return AssetRef{State: RefDurable, Handle: r.Handle, AssetID: assetID, URL: u}
}

// ClassifyURL is the single place where URL shape decides media state.
// It reports RefLocal for blob references and transient service paths
// (transient=true for the latter), RefDurable for asset store downloads,
// RefExternal for anything else and RefNone for an empty string.
func ClassifyURL(raw string) (state RefState, transient bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return RefNone, false
	}
	if strings.HasPrefix(s, "blob:") {
		return RefLocal, false
	}
	p := s
	if u, err := url.Parse(s); err == nil && u.Path != "" {
		p = u.Path
	}
	for _, pre := range transientPrefixes {
		if strings.HasPrefix(p, pre) {
			return RefLocal, true
		}
	}
	if isDurablePath(p) {
		return RefDurable, false
	}
	return RefExternal, false
}

func isDurablePath(p string) bool {
	if !strings.HasPrefix(p, DownloadPrefix) {
		return false
	}
	rest := strings.TrimPrefix(p, DownloadPrefix)
	lib, file, ok := strings.Cut(rest, "/")
	if !ok || file == "" || strings.Contains(file, "/") {
		return false
	}
	_, known := MediaTypeForLibrary(lib)
	return known
}

// AssetIDFromURL extracts the asset id from a durable download URL.
func AssetIDFromURL(raw string) (string, bool) {
	if st, _ := ClassifyURL(raw); st != RefDurable {
		return "", false
	}
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base)), true
}

// RefOfElement derives the media state of an element. An assetId or
// libraryId marks it durable regardless of Src. Transient service URLs on
// elements are treated as external; only audio tracks materialize them.
func RefOfElement(el Element) AssetRef {
	if el.AssetID != "" || el.LibraryID != "" {
		id := el.AssetID
		if id == "" {
			id = el.LibraryID
		}
		return AssetRef{State: RefDurable, AssetID: id, URL: el.Src}
	}
	st, transient := ClassifyURL(el.Src)
	switch {
	case st == RefLocal && !transient:
		return AssetRef{State: RefLocal, Handle: localHandle(el.File, el.Src), URL: el.Src}
	case st == RefLocal:
		return AssetRef{State: RefExternal, URL: el.Src}
	case st == RefDurable:
		id, _ := AssetIDFromURL(el.Src)
		return AssetRef{State: RefDurable, AssetID: id, URL: el.Src}
	case st == RefNone && el.File != nil:
		return AssetRef{State: RefLocal, Handle: localHandle(el.File, "")}
	}
	return AssetRef{State: st, URL: el.Src}
}

// RefOfTrack derives the media state of an audio track from its assetId and
// its location (url, else src).
func RefOfTrack(t AudioTrack) AssetRef {
	loc := t.Location()
	if t.AssetID != "" {
		return AssetRef{State: RefDurable, AssetID: t.AssetID, URL: loc}
	}
	st, transient := ClassifyURL(loc)
	switch st {
	case RefLocal:
		return AssetRef{State: RefLocal, Handle: localHandle(t.File, loc), URL: loc, Transient: transient}
	case RefDurable:
		id, _ := AssetIDFromURL(loc)
		return AssetRef{State: RefDurable, AssetID: id, URL: loc}
	case RefNone:
		if t.File != nil {
			return AssetRef{State: RefLocal, Handle: localHandle(t.File, "")}
		}
	}
	return AssetRef{State: st, URL: loc}
}

// localHandle keys a local ref by its src and falls back to the attached
// file handle when there is no src.
func localHandle(b *Blob, src string) string {
	if src != "" {
		return src
	}
	if b != nil {
		return b.Handle
	}
	return ""
}
