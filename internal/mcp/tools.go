/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"slidecraft/internal/domain"
	"slidecraft/internal/editor"
	"slidecraft/internal/materialize"
	"slidecraft/internal/sections"
)

type tools struct {
	ed  Editor
	log *slog.Logger
}

func registerTools(s *sdkmcp.Server, t *tools) {
	sdkmcp.AddTool(s, &sdkmcp.Tool{Name: "list_projects", Description: "List projects in the project store"}, t.listProjects)
	sdkmcp.AddTool(s, &sdkmcp.Tool{Name: "open_project", Description: "Open a project by id, or resume local edits when id is omitted"}, t.openProject)
	sdkmcp.AddTool(s, &sdkmcp.Tool{Name: "get_state", Description: "Return the pages, audio tracks, media library and section mapping being edited"}, t.getState)
	sdkmcp.AddTool(s, &sdkmcp.Tool{Name: "add_page", Description: "Append a page"}, t.addPage)
	sdkmcp.AddTool(s, &sdkmcp.Tool{Name: "add_element", Description: "Add an element to a page"}, t.addElement)
	sdkmcp.AddTool(s, &sdkmcp.Tool{Name: "update_element", Description: "Change fields of an element; omitted fields are kept"}, t.updateElement)
	sdkmcp.AddTool(s, &sdkmcp.Tool{Name: "delete_element", Description: "Remove an element from a page"}, t.deleteElement)
	sdkmcp.AddTool(s, &sdkmcp.Tool{Name: "add_audio_track", Description: "Add an audio track to the project timeline"}, t.addAudioTrack)
	sdkmcp.AddTool(s, &sdkmcp.Tool{Name: "toggle_section_media", Description: "Assign or unassign a media library item to a section"}, t.toggleSectionMedia)
	sdkmcp.AddTool(s, &sdkmcp.Tool{Name: "save_project", Description: "Upload local media and save the project to the store"}, t.saveProject)
}

// ProjectSummary is a project without its content.
type ProjectSummary struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Status    string   `json:"status"`
	Tags      []string `json:"tags"`
	Pages     int      `json:"pages"`
	UpdatedAt string   `json:"updatedAt"`
}

// StateView is the session state as returned to agents.
type StateView struct {
	Project       *ProjectSummary     `json:"project,omitempty"`
	Pages         []domain.Page       `json:"pages"`
	AudioTracks   []domain.AudioTrack `json:"audioTracks"`
	Library       domain.MediaLibrary `json:"mediaLibrary"`
	Sections      sections.Mapping    `json:"sectionMapping"`
	TotalDuration float64             `json:"totalDuration"`
}

func stateView(st editor.State) StateView {
	v := StateView{
		Pages:         st.Pages,
		AudioTracks:   st.AudioTracks,
		Library:       st.Library,
		Sections:      st.Sections,
		TotalDuration: domain.TotalDuration(st.Pages),
	}
	if v.Pages == nil {
		v.Pages = []domain.Page{}
	}
	if v.AudioTracks == nil {
		v.AudioTracks = []domain.AudioTrack{}
	}
	if v.Sections == nil {
		v.Sections = sections.Mapping{}
	}
	if p := st.Project; p != nil {
		v.Project = &ProjectSummary{ID: p.ID, Name: p.Name, Status: p.Status, Tags: nonNil(p.Tags),
			Pages: len(st.Pages), UpdatedAt: stamp(p.UpdatedAt)}
	}
	return v
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type listProjectsInput struct {
	Status string `json:"status,omitempty" jsonschema:"only projects with this status (draft, in_review, published, archived)"`
	Tag    string `json:"tag,omitempty" jsonschema:"only projects carrying this tag"`
	Query  string `json:"q,omitempty" jsonschema:"case-insensitive substring of the project name"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of projects"`
}

type listProjectsOutput struct {
	Projects []ProjectSummary `json:"projects"`
}

func (t *tools) listProjects(ctx context.Context, _ *sdkmcp.CallToolRequest, in listProjectsInput) (*sdkmcp.CallToolResult, listProjectsOutput, error) {
	list, err := t.ed.ListProjects(ctx, domain.ProjectFilter{Status: in.Status, Tag: in.Tag, Query: in.Query, Limit: in.Limit})
	if err != nil {
		return nil, listProjectsOutput{}, err
	}
	out := listProjectsOutput{Projects: make([]ProjectSummary, 0, len(list))}
	for _, p := range list {
		out.Projects = append(out.Projects, ProjectSummary{
			ID: p.ID, Name: p.Name, Status: p.Status, Tags: nonNil(p.Tags),
			Pages: len(p.Pages), UpdatedAt: stamp(p.UpdatedAt),
		})
	}
	return nil, out, nil
}

type openProjectInput struct {
	ID string `json:"id,omitempty" jsonschema:"project id; omit to resume the local mirror"`
}

type openProjectOutput struct {
	Source string    `json:"source"`
	State  StateView `json:"state"`
}

func (t *tools) openProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in openProjectInput) (*sdkmcp.CallToolResult, any, error) {
	src, err := t.ed.Open(ctx, in.ID)
	if err != nil {
		return nil, nil, err
	}
	return nil, openProjectOutput{Source: string(src), State: stateView(t.ed.State())}, nil
}

type emptyInput struct{}

func (t *tools) getState(_ context.Context, _ *sdkmcp.CallToolRequest, _ emptyInput) (*sdkmcp.CallToolResult, any, error) {
	return nil, stateView(t.ed.State()), nil
}

type addPageInput struct {
	Name string `json:"name,omitempty" jsonschema:"page name"`
}

type pageOutput struct {
	Page domain.Page `json:"page"`
}

func (t *tools) addPage(_ context.Context, _ *sdkmcp.CallToolRequest, in addPageInput) (*sdkmcp.CallToolResult, any, error) {
	pg, err := t.ed.AddPage(in.Name)
	if err != nil {
		return nil, nil, err
	}
	return nil, pageOutput{Page: pg}, nil
}

type addElementInput struct {
	PageID   string         `json:"pageId" jsonschema:"page to add the element to"`
	Type     string         `json:"type" jsonschema:"text, image, video, shape, icon, sticker, bullets, audio or slide"`
	X        float64        `json:"x,omitempty"`
	Y        float64        `json:"y,omitempty"`
	Width    float64        `json:"width,omitempty"`
	Height   float64        `json:"height,omitempty"`
	Src      string         `json:"src,omitempty" jsonschema:"media URL, or a local file path for image and video"`
	Text     string         `json:"text,omitempty"`
	Duration *float64       `json:"duration,omitempty" jsonschema:"media duration in seconds"`
	TrimEnd  *float64       `json:"trimEnd,omitempty" jsonschema:"play the media up to this second"`
	Props    map[string]any `json:"props,omitempty" jsonschema:"type-specific extras, kept verbatim"`
}

type elementOutput struct {
	Element      domain.Element `json:"element"`
	PageDuration float64        `json:"pageDuration"`
}

func (t *tools) addElement(_ context.Context, _ *sdkmcp.CallToolRequest, in addElementInput) (*sdkmcp.CallToolResult, any, error) {
	el := domain.Element{
		Type: domain.ElementType(in.Type), X: in.X, Y: in.Y, Width: in.Width, Height: in.Height,
		Text: in.Text, Duration: in.Duration, TrimEnd: in.TrimEnd, Props: in.Props,
	}
	el.Src, el.File = materialize.LocalSource(in.Src)
	added, err := t.ed.AddElement(in.PageID, el)
	if err != nil {
		return nil, nil, err
	}
	return nil, elementOutput{Element: added, PageDuration: t.pageDuration(in.PageID)}, nil
}

type updateElementInput struct {
	PageID    string         `json:"pageId"`
	ElementID string         `json:"elementId"`
	X         *float64       `json:"x,omitempty"`
	Y         *float64       `json:"y,omitempty"`
	Width     *float64       `json:"width,omitempty"`
	Height    *float64       `json:"height,omitempty"`
	Rotation  *float64       `json:"rotation,omitempty"`
	ZIndex    *int           `json:"zIndex,omitempty"`
	Src       *string        `json:"src,omitempty" jsonschema:"new media URL or local file path"`
	Text      *string        `json:"text,omitempty"`
	Duration  *float64       `json:"duration,omitempty"`
	TrimStart *float64       `json:"trimStart,omitempty"`
	TrimEnd   *float64       `json:"trimEnd,omitempty"`
	Volume    *float64       `json:"volume,omitempty"`
	Muted     *bool          `json:"muted,omitempty"`
	Props     map[string]any `json:"props,omitempty" jsonschema:"merged into the element's props; a null value removes the key"`
}

func (in updateElementInput) apply(el *domain.Element) {
	setF := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	setF(&el.X, in.X)
	setF(&el.Y, in.Y)
	setF(&el.Width, in.Width)
	setF(&el.Height, in.Height)
	setF(&el.Rotation, in.Rotation)
	if in.ZIndex != nil {
		el.ZIndex = *in.ZIndex
	}
	if in.Src != nil {
		el.Src, el.File = materialize.LocalSource(*in.Src)
		el.AssetID, el.LibraryID = "", ""
	}
	if in.Text != nil {
		el.Text = *in.Text
	}
	if in.Duration != nil {
		el.Duration = domain.Float(*in.Duration)
	}
	if in.TrimStart != nil {
		el.TrimStart = domain.Float(*in.TrimStart)
	}
	if in.TrimEnd != nil {
		el.TrimEnd = domain.Float(*in.TrimEnd)
	}
	if in.Volume != nil {
		el.Volume = domain.Float(*in.Volume)
	}
	if in.Muted != nil {
		el.Muted = *in.Muted
	}
	for k, v := range in.Props {
		if el.Props == nil {
			el.Props = map[string]any{}
		}
		if v == nil {
			delete(el.Props, k)
			continue
		}
		el.Props[k] = v
	}
}

func (t *tools) updateElement(_ context.Context, _ *sdkmcp.CallToolRequest, in updateElementInput) (*sdkmcp.CallToolResult, any, error) {
	el, err := t.ed.UpdateElement(in.PageID, in.ElementID, in.apply)
	if err != nil {
		return nil, nil, err
	}
	return nil, elementOutput{Element: el, PageDuration: t.pageDuration(in.PageID)}, nil
}

type elementRefInput struct {
	PageID    string `json:"pageId"`
	ElementID string `json:"elementId"`
}

type deleteOutput struct {
	Deleted      bool    `json:"deleted"`
	PageDuration float64 `json:"pageDuration"`
}

func (t *tools) deleteElement(_ context.Context, _ *sdkmcp.CallToolRequest, in elementRefInput) (*sdkmcp.CallToolResult, deleteOutput, error) {
	if err := t.ed.DeleteElement(in.PageID, in.ElementID); err != nil {
		return nil, deleteOutput{}, err
	}
	return nil, deleteOutput{Deleted: true, PageDuration: t.pageDuration(in.PageID)}, nil
}

func (t *tools) pageDuration(pageID string) float64 {
	for _, pg := range t.ed.State().Pages {
		if pg.ID == pageID {
			return pg.Duration
		}
	}
	return 0
}

type addAudioTrackInput struct {
	Name      string   `json:"name,omitempty"`
	URL       string   `json:"url" jsonschema:"audio URL or local file path"`
	StartTime float64  `json:"startTime,omitempty" jsonschema:"seconds from the start of the project"`
	Duration  *float64 `json:"duration,omitempty"`
	Volume    *float64 `json:"volume,omitempty" jsonschema:"0 to 1, default 1"`
	Type      string   `json:"type,omitempty" jsonschema:"audio, music or voiceover"`
}

type trackOutput struct {
	Track domain.AudioTrack `json:"track"`
}

func (t *tools) addAudioTrack(_ context.Context, _ *sdkmcp.CallToolRequest, in addAudioTrackInput) (*sdkmcp.CallToolResult, any, error) {
	tr := domain.AudioTrack{Name: in.Name, StartTime: in.StartTime, Duration: in.Duration, Volume: 1, Type: in.Type}
	if in.Volume != nil {
		tr.Volume = *in.Volume
	}
	tr.URL, tr.File = materialize.LocalSource(in.URL)
	added, err := t.ed.AddAudioTrack(tr)
	if err != nil {
		return nil, nil, err
	}
	return nil, trackOutput{Track: added}, nil
}

type toggleSectionInput struct {
	Title     string `json:"title" jsonschema:"section title"`
	Index     int    `json:"index" jsonschema:"position among the library items of mediaType"`
	MediaType string `json:"mediaType" jsonschema:"image, video or audio"`
}

type toggleSectionOutput struct {
	Added bool                `json:"added"`
	Refs  []sections.MediaRef `json:"refs"`
}

func (t *tools) toggleSectionMedia(_ context.Context, _ *sdkmcp.CallToolRequest, in toggleSectionInput) (*sdkmcp.CallToolResult, toggleSectionOutput, error) {
	mt, err := domain.ParseMediaType(in.MediaType)
	if err != nil {
		return nil, toggleSectionOutput{}, err
	}
	added, err := t.ed.ToggleSectionMedia(in.Title, in.Index, mt)
	if err != nil {
		return nil, toggleSectionOutput{}, err
	}
	refs := t.ed.State().Sections.Refs(in.Title)
	if refs == nil {
		refs = []sections.MediaRef{}
	}
	return nil, toggleSectionOutput{Added: added, Refs: refs}, nil
}

type saveInput struct {
	Name   string   `json:"name,omitempty" jsonschema:"project name; defaults to the current name"`
	Status string   `json:"status,omitempty"`
	Tags   []string `json:"tags,omitempty"`
	Policy string   `json:"policy,omitempty" jsonschema:"abort (default) or drop-failed"`
}

type failedView struct {
	MediaType string   `json:"mediaType"`
	Src       string   `json:"src"`
	Items     []string `json:"items"`
	Error     string   `json:"error"`
}

type saveOutput struct {
	ProjectID string       `json:"projectId"`
	Created   bool         `json:"created"`
	Uploaded  int          `json:"uploaded"`
	Dropped   int          `json:"dropped"`
	Failed    []failedView `json:"failed"`
	Duration  float64      `json:"duration"`
}

func (t *tools) saveProject(ctx context.Context, _ *sdkmcp.CallToolRequest, in saveInput) (*sdkmcp.CallToolResult, saveOutput, error) {
	policy, err := editor.ParsePolicy(in.Policy)
	if err != nil {
		return nil, saveOutput{}, err
	}
	rep, err := t.ed.Save(ctx, editor.SaveOptions{Name: in.Name, Status: in.Status, Tags: in.Tags, Policy: policy})
	var se *editor.SaveError
	if errors.As(err, &se) {
		out := saveOutput{Failed: failedViews(se.Failed)}
		return &sdkmcp.CallToolResult{
			IsError: true,
			Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: fmt.Sprintf(
				"%v; retry save_project, or pass policy drop-failed to save without them", err)}},
		}, out, nil
	}
	if err != nil {
		return nil, saveOutput{}, err
	}
	out := saveOutput{
		Created:  rep.Created,
		Uploaded: len(rep.Uploaded),
		Dropped:  rep.Dropped,
		Failed:   failedViews(rep.Failed),
		Duration: rep.Payload.Settings.Duration,
	}
	if rep.Project != nil {
		out.ProjectID = rep.Project.ID
	}
	t.log.Info("project saved via mcp", slog.String("project", out.ProjectID), slog.Int("uploaded", out.Uploaded))
	return nil, out, nil
}

func failedViews(in []materialize.FailedUpload) []failedView {
	out := make([]failedView, 0, len(in))
	for _, f := range in {
		v := failedView{MediaType: string(f.MediaType), Src: f.Src, Items: f.Items}
		if v.Items == nil {
			v.Items = []string{}
		}
		if f.Err != nil {
			v.Error = f.Err.Error()
		}
		out = append(out, v)
	}
	return out
}
