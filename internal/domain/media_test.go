/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany..
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestClassifyURL(t *testing.T) {
	cases := []struct {
		in        string
		state     RefState
		transient bool
	}{
		{"", RefNone, false},
		{"blob:local-1", RefLocal, false},
		{"blob:http://localhost:3000/0b1c", RefLocal, false},
		{"/api/tts/temp/abc.mp3", RefLocal, true},
		{"https://app.example/api/proxy/voice/1", RefLocal, true},
		{"/temp-audio/x.wav", RefLocal, true},
		{"/api/assets/download/image-assets/a1.png", RefDurable, false},
		{"https://cdn.example/api/assets/download/audio-assets/z9.mp3", RefDurable, false},
		{"/api/assets/download/unknown-lib/a1.png", RefExternal, false},
		{"https://images.example.org/cat.jpg", RefExternal, false},
	}
	for _, tc := range cases {
		st, tr := ClassifyURL(tc.in)
		if st != tc.state || tr != tc.transient {
			t.Errorf("ClassifyURL(%q) = %v,%v want %v,%v", tc.in, st, tr, tc.state, tc.transient)
		}
	}
}

func TestRefOfElement(t *testing.T) {
	durable := RefOfElement(Element{Type: ElementImage, Src: "blob:x", AssetID: "a1"})
	if durable.State != RefDurable || durable.AssetID != "a1" {
		t.Fatalf("assetId should make the element durable: %+v", durable)
	}
	lib := RefOfElement(Element{Type: ElementImage, Src: "https://x/y.png", LibraryID: "l7"})
	if lib.State != RefDurable || lib.AssetID != "l7" {
		t.Fatalf("libraryId should make the element durable: %+v", lib)
	}
	local := RefOfElement(Element{Type: ElementVideo, Src: "blob:v", File: &Blob{Handle: "h-1", Path: "/tmp/v.mp4"}})
	if local.State != RefLocal || local.Key() != "blob:v" {
		t.Fatalf("blob with file should be local keyed by src: %+v", local)
	}
	fileOnly := RefOfElement(Element{Type: ElementVideo, File: &Blob{Handle: "h-1"}})
	if fileOnly.State != RefLocal || fileOnly.Key() != "h-1" {
		t.Fatalf("file without src should be keyed by handle: %+v", fileOnly)
	}
	bare := RefOfElement(Element{Type: ElementVideo, Src: "blob:v"})
	if bare.State != RefLocal || bare.Key() != "blob:v" {
		t.Fatalf("blob without file should be keyed by src: %+v", bare)
	}
	byShape := RefOfElement(Element{Type: ElementImage, Src: "/api/assets/download/image-assets/a9.webp"})
	if byShape.State != RefDurable || byShape.AssetID != "a9" {
		t.Fatalf("durable url shape: %+v", byShape)
	}
	tts := RefOfElement(Element{Type: ElementImage, Src: "/api/tts/temp/x.png"})
	if tts.State != RefExternal {
		t.Fatalf("transient urls on elements stay external: %+v", tts)
	}
}

func TestRefOfTrackTreatsTransientAsLocal(t *testing.T) {
	r := RefOfTrack(AudioTrack{ID: "t1", URL: "/api/tts/temp/voice.mp3"})
	if r.State != RefLocal || !r.Transient || r.Key() != "/api/tts/temp/voice.mp3" {
		t.Fatalf("unexpected ref: %+v", r)
	}
	d := RefOfTrack(AudioTrack{ID: "t2", Src: "/temp-audio/x.mp3", AssetID: "a2"})
	if d.State != RefDurable {
		t.Fatalf("assetId wins: %+v", d)
	}
	if got := (AudioTrack{Src: "s", URL: "u"}).Location(); got != "u" {
		t.Fatalf("Location prefers url, got %q", got)
	}
}

func TestAssetRefTransitions(t *testing.T) {
	r := AssetRef{State: RefLocal, Handle: "h"}
	up := r.Uploading()
	if up.State != RefUploading || up.Key() != "h" {
		t.Fatalf("uploading: %+v", up)
	}
	done := up.Resolved("a1", DurableURL(MediaImage, "a1", "png"))
	if done.State != RefDurable || done.URL != "/api/assets/download/image-assets/a1.png" {
		t.Fatalf("resolved: %+v", done)
	}
	ext := AssetRef{State: RefExternal, URL: "https://x"}
	if ext.Uploading().State != RefExternal {
		t.Fatalf("only local refs can start uploading")
	}
}

func TestMediaLibraryWireKeys(t *testing.T) {
	lib := MediaLibrary{Images: []MediaLibraryEntry{{ID: "1", URL: "u", Type: MediaImage}}}
	b, err := json.Marshal(lib)
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{`"uploadedImage"`, `"uploadedVideo"`, `"uploadedAudio"`} {
		if !strings.Contains(string(b), k) {
			t.Fatalf("missing key %s in %s", k, b)
		}
	}
}

func TestProjectCloneIsDeep(t *testing.T) {
	p := &Project{
		Pages: []Page{{ID: "p", Elements: []Element{{ID: "e", TrimEnd: Float(3),
			Props: map[string]any{"style": map[string]any{"color": "red"}}}}}},
		MediaLibrary: &MediaLibrary{Images: []MediaLibraryEntry{{URL: "a"}}},
	}
	c := p.Clone()
	*c.Pages[0].Elements[0].TrimEnd = 99
	c.Pages[0].Elements[0].Props["style"].(map[string]any)["color"] = "blue"
	c.MediaLibrary.Images[0].URL = "b"

	if *p.Pages[0].Elements[0].TrimEnd != 3 {
		t.Fatalf("trimEnd shared")
	}
	if p.Pages[0].Elements[0].Props["style"].(map[string]any)["color"] != "red" {
		t.Fatalf("props shared")
	}
	if p.MediaLibrary.Images[0].URL != "a" {
		t.Fatalf("library shared")
	}
}

func TestParseMediaType(t *testing.T) {
	if mt, err := ParseMediaType(" Video "); err != nil || mt != MediaVideo {
		t.Fatalf("ParseMediaType = %v, %v", mt, err)
	}
	if _, err := ParseMediaType("font"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
	if mt, ok := MediaTypeForLibrary("audio-assets"); !ok || mt != MediaAudio {
		t.Fatalf("MediaTypeForLibrary = %v, %v", mt, ok)
	}
}
