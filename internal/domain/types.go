/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany..
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import "time"

// This file defines the editable project model: pages of typed elements, an
// independent audio track list and the reusable media catalog. All types
// serialize to the JSON shape stored by the project backend.

// ElementType tags the Element variant.
type ElementType string

const (
	ElementText    ElementType = "text"
	ElementImage   ElementType = "image"
	ElementVideo   ElementType = "video"
	ElementShape   ElementType = "shape"
	ElementIcon    ElementType = "icon"
	ElementSticker ElementType = "sticker"
	ElementBullets ElementType = "bullets"
	ElementAudio   ElementType = "audio"
	ElementSlide   ElementType = "slide"
)

// Valid reports whether t is one of the known element variants.
func (t ElementType) Valid() bool {
	switch t {
	case ElementText, ElementImage, ElementVideo, ElementShape, ElementIcon,
		ElementSticker, ElementBullets, ElementAudio, ElementSlide:
		return true
	}
	return false
}

// Project statuses.
const (
	StatusDraft     = "draft"
	StatusInReview  = "in_review"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Project is the aggregate persisted by the project store.
type Project struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Pages        []Page        `json:"pages"`
	AudioTracks  []AudioTrack  `json:"audioTracks"`
	MediaLibrary *MediaLibrary `json:"mediaLibrary,omitempty"`
	Settings     Settings      `json:"settings"`
	Status       string        `json:"status,omitempty"`
	Tags         []string      `json:"tags,omitempty"`
	CreatedAt    time.Time     `json:"createdAt,omitempty"`
	UpdatedAt    time.Time     `json:"updatedAt,omitempty"`
}

// Settings are the render settings sent with every save.
type Settings struct {
	Canvas   Canvas  `json:"canvas"`
	Duration float64 `json:"duration"`
	FPS      int     `json:"fps"`
	Quality  string  `json:"quality"`
}

type Canvas struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DefaultSettings is a 1080p canvas at 30fps.
func DefaultSettings() Settings {
	return Settings{Canvas: Canvas{Width: 1920, Height: 1080}, FPS: 30, Quality: "high"}
}

// Page is one slide. Duration and StartTime are derived (see duration.go).
type Page struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Elements   []Element `json:"elements"`
	Background string    `json:"background,omitempty"`
	Duration   float64   `json:"duration"`
	StartTime  float64   `json:"startTime"`
}

// Element is a visual element on a page. Media fields are only meaningful
// for image, video and audio elements; Props carries variant-specific extras
// verbatim.
type Element struct {
	ID       string      `json:"id"`
	Type     ElementType `json:"type"`
	X        float64     `json:"x"`
	Y        float64     `json:"y"`
	Width    float64     `json:"width"`
	Height   float64     `json:"height"`
	Rotation float64     `json:"rotation,omitempty"`
	ZIndex   int         `json:"zIndex,omitempty"`

	Src       string   `json:"src,omitempty"`
	AssetID   string   `json:"assetId,omitempty"`
	LibraryID string   `json:"libraryId,omitempty"`
	Duration  *float64 `json:"duration,omitempty"`
	TrimStart *float64 `json:"trimStart,omitempty"`
	TrimEnd   *float64 `json:"trimEnd,omitempty"`
	Volume    *float64 `json:"volume,omitempty"`
	Muted     bool     `json:"muted,omitempty"`

	Text  string         `json:"text,omitempty"`
	Props map[string]any `json:"props,omitempty"`

	// File is the transient local handle behind a local-only Src.
	// It is kept in the local mirror and never sent to the backend.
	File *Blob `json:"file,omitempty"`
}

// Blob identifies local bytes that have not been uploaded yet.
// Exactly one of Path or URL locates the content.
type Blob struct {
	Handle      string `json:"handle"`
	Name        string `json:"name,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Path        string `json:"path,omitempty"`
	URL         string `json:"url,omitempty"`
}

// AudioTrack lives on the project timeline, independent of pages.
type AudioTrack struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Src           string   `json:"src,omitempty"`
	URL           string   `json:"url,omitempty"`
	AssetID       string   `json:"assetId,omitempty"`
	Type          string   `json:"type,omitempty"`
	StartTime     float64  `json:"startTime"`
	Duration      *float64 `json:"duration,omitempty"`
	Volume        float64  `json:"volume"`
	FadeIn        float64  `json:"fadeIn,omitempty"`
	FadeOut       float64  `json:"fadeOut,omitempty"`
	PlaybackSpeed float64  `json:"playbackSpeed,omitempty"`
	File          *Blob    `json:"file,omitempty"`
}

// Location is the URL the track plays from: url, falling back to src.
func (t AudioTrack) Location() string {
	if t.URL != "" {
		return t.URL
	}
	return t.Src
}

// MediaLibraryEntry is a reusable catalog item, unique by URL within its category.
type MediaLibraryEntry struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Name      string    `json:"name"`
	Type      MediaType `json:"type"`
	AssetID   string    `json:"assetId,omitempty"`
	LibraryID string    `json:"libraryId,omitempty"`
	Duration  *float64  `json:"duration,omitempty"`
}

// MediaLibrary groups catalog entries per media type.
type MediaLibrary struct {
	Images []MediaLibraryEntry `json:"uploadedImage"`
	Videos []MediaLibraryEntry `json:"uploadedVideo"`
	Audio  []MediaLibraryEntry `json:"uploadedAudio"`
}

// Entries returns the category slice for mt.
func (l *MediaLibrary) Entries(mt MediaType) []MediaLibraryEntry {
	if l == nil {
		return nil
	}
	switch mt {
	case MediaImage:
		return l.Images
	case MediaVideo:
		return l.Videos
	case MediaAudio:
		return l.Audio
	}
	return nil
}

// SetEntries replaces the category slice for mt.
func (l *MediaLibrary) SetEntries(mt MediaType, entries []MediaLibraryEntry) {
	switch mt {
	case MediaImage:
		l.Images = entries
	case MediaVideo:
		l.Videos = entries
	case MediaAudio:
		l.Audio = entries
	}
}

// Len is the total number of entries over all categories.
func (l *MediaLibrary) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Images) + len(l.Videos) + len(l.Audio)
}

// Payload is the document sent to the project store on save.
type Payload struct {
	Name         string       `json:"name"`
	Settings     Settings     `json:"settings"`
	Pages        []Page       `json:"pages"`
	AudioTracks  []AudioTrack `json:"audioTracks"`
	VideoTracks  []any        `json:"videoTracks"`
	MediaLibrary MediaLibrary `json:"mediaLibrary"`
	Status       string       `json:"status,omitempty"`
	Tags         []string     `json:"tags,omitempty"`
}

// ProjectFilter narrows project listings.
type ProjectFilter struct {
	Status string `json:"status,omitempty"`
	Tag    string `json:"tag,omitempty"`
	Query  string `json:"q,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// ProjectInfo is the metadata of the project an editing session is bound to.
type ProjectInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Settings  Settings  `json:"settings"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Info returns the project's metadata without its content.
func (p *Project) Info() *ProjectInfo {
	if p == nil {
		return nil
	}
	info := &ProjectInfo{
		ID: p.ID, Name: p.Name, Status: p.Status, Settings: p.Settings,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
	if p.Tags != nil {
		info.Tags = append([]string(nil), p.Tags...)
	}
	return info
}

// Clone returns a copy of the info; nil stays nil.
func (i *ProjectInfo) Clone() *ProjectInfo {
	if i == nil {
		return nil
	}
	c := *i
	if i.Tags != nil {
		c.Tags = append([]string(nil), i.Tags...)
	}
	return &c
}
