/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidecraft/internal/domain"
)

func storyboardProject() *domain.Project {
	return &domain.Project{
		Name:     "Launch deck",
		Settings: domain.DefaultSettings(),
		Pages: []domain.Page{
			{
				ID: "p1", Name: "Intro", Background: "#f0f0f0", Duration: 8,
				Elements: []domain.Element{
					{ID: "t", Type: domain.ElementText, X: 100, Y: 100, Width: 800, Height: 120, Text: "Welcome – everyone"},
					{ID: "v", Type: domain.ElementVideo, X: 100, Y: 300, Width: 640, Height: 360,
						Src: "/api/assets/download/video-assets/abc.mp4", AssetID: "abc", Duration: domain.Float(8)},
					{ID: "i", Type: domain.ElementImage, X: 900, Y: 300, Width: 400, Height: 300, Src: "blob:http://x/1",
						File: &domain.Blob{Handle: "h"}},
				},
			},
			{ID: "p2", Name: "", StartTime: 8, Duration: 5},
		},
		AudioTracks: []domain.AudioTrack{
			{ID: "a1", Name: "music", URL: "https://cdn.example/m.mp3", Volume: 1},
			{ID: "a2", Name: "late", URL: "https://cdn.example/l.mp3", StartTime: 20, Volume: 1},
		},
	}
}

func TestStoryboardPDFWritesDocument(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, StoryboardPDF(&buf, storyboardProject(), PDFOptions{IncludeGuides: true}))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Greater(t, buf.Len(), 500)
}

func TestStoryboardPDFSelectedAndEmpty(t *testing.T) {
	var all, one, none bytes.Buffer
	p := storyboardProject()
	require.NoError(t, StoryboardPDF(&all, p, PDFOptions{}))
	require.NoError(t, StoryboardPDF(&one, p, PDFOptions{Pages: []string{"p2"}}))
	assert.Less(t, one.Len(), all.Len())

	require.NoError(t, StoryboardPDF(&none, &domain.Project{Name: "blank"}, PDFOptions{}))
	assert.True(t, bytes.HasPrefix(none.Bytes(), []byte("%PDF-")))

	assert.Error(t, StoryboardPDF(&none, nil, PDFOptions{}))
}

func TestExportStoryboardPDFCreatesFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "exports", "deck.pdf")
	require.NoError(t, ExportStoryboardPDF(storyboardProject(), out, PDFOptions{}))
	st, err := os.Stat(out)
	require.NoError(t, err)
	assert.Positive(t, st.Size())
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "0:05", clock(5))
	assert.Equal(t, "1:02.5", clock(62.5))
	assert.Equal(t, "0:00", clock(-1))

	c, ok := parseHexColor("#0af")
	require.True(t, ok)
	assert.Equal(t, Color{R: 0x00, G: 0xaa, B: 0xff}, c)
	_, ok = parseHexColor("url(x.png)")
	assert.False(t, ok)

	assert.Equal(t, "abcd...", truncate("abcd  efghij", 7))
	assert.Equal(t, []int{1}, selectPages(storyboardProject().Pages, []string{"p2", "missing"}))

	pg := domain.Page{StartTime: 10, Duration: 5}
	assert.True(t, audibleDuring(domain.AudioTrack{StartTime: 0}, pg))
	assert.False(t, audibleDuring(domain.AudioTrack{StartTime: 0, Duration: domain.Float(10)}, pg))
	assert.True(t, audibleDuring(domain.AudioTrack{StartTime: 12, Duration: domain.Float(1)}, pg))
	assert.False(t, audibleDuring(domain.AudioTrack{StartTime: 15}, pg))
}

func TestElementLabel(t *testing.T) {
	assert.Equal(t, "text", elementLabel(domain.Element{Type: domain.ElementText}))
	assert.Equal(t, "image [local]", elementLabel(domain.Element{Type: domain.ElementImage, Src: "blob:x"}))
	assert.Equal(t, "video [external] 0:07",
		elementLabel(domain.Element{Type: domain.ElementVideo, Src: "https://x/v.mp4", TrimEnd: domain.Float(7)}))
	els := sortedByZ([]domain.Element{{ID: "a", ZIndex: 2}, {ID: "b"}, {ID: "c", ZIndex: 2}})
	assert.Equal(t, []string{"b", "a", "c"}, []string{els[0].ID, els[1].ID, els[2].ID})
}
