/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders projects to documents outside the editor.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"slidecraft/internal/domain"
)

// Color is an RGB color for PDF strokes and fills.
type Color struct{ R, G, B uint8 }

// PDFOptions controls storyboard export. Units are points (pt).
//
// Each project page becomes one sheet: a header with the page name, start
// time and duration, the canvas scaled to fit, one wireframe box per element
// labelled with its type and media state, and the audio tracks audible during
// the page in the footer.
type PDFOptions struct {
	SheetWidth    float64 // default 842 (A4 landscape)
	SheetHeight   float64 // default 595
	Margin        float64 // default 36
	IncludeGuides bool    // outline the canvas area
	GuideColor    Color
	ElementStroke Color
	Pages         []string // page ids; empty exports all pages
}

func (o PDFOptions) withDefaults() PDFOptions {
	if o.SheetWidth <= 0 {
		o.SheetWidth = 842
	}
	if o.SheetHeight <= 0 {
		o.SheetHeight = 595
	}
	if o.Margin <= 0 {
		o.Margin = 36
	}
	if o.GuideColor == (Color{}) {
		o.GuideColor = Color{R: 200, G: 0, B: 0}
	}
	if o.ElementStroke == (Color{}) {
		o.ElementStroke = Color{R: 40, G: 40, B: 40}
	}
	return o
}

const (
	headerHeight = 40.0
	footerHeight = 28.0
)

// StoryboardPDF writes the storyboard of p to w.
func StoryboardPDF(w io.Writer, p *domain.Project, opt PDFOptions) error {
	if p == nil {
		return fmt.Errorf("project is nil")
	}
	opt = opt.withDefaults()
	canvas := p.Settings.Canvas
	if canvas.Width <= 0 || canvas.Height <= 0 {
		canvas = domain.DefaultSettings().Canvas
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: opt.SheetWidth, Ht: opt.SheetHeight},
	})
	pdf.SetTitle(p.Name+" storyboard", true)
	pdf.SetAuthor("slidecraft", false)
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pages := selectPages(p.Pages, opt.Pages)
	if len(pages) == 0 {
		// gofpdf refuses to emit a document without pages
		pdf.AddPage()
		pdf.SetFont("Helvetica", "", 12)
		pdf.Text(opt.Margin, opt.Margin+12, tr(p.Name+": no pages"))
	}
	for _, idx := range pages {
		pg := p.Pages[idx]
		pdf.AddPage()
		drawHeader(pdf, tr, opt, idx, pg)

		availW := opt.SheetWidth - 2*opt.Margin
		availH := opt.SheetHeight - 2*opt.Margin - headerHeight - footerHeight
		scale := availW / float64(canvas.Width)
		if s := availH / float64(canvas.Height); s < scale {
			scale = s
		}
		cw, ch := float64(canvas.Width)*scale, float64(canvas.Height)*scale
		ox := opt.Margin + (availW-cw)/2
		oy := opt.Margin + headerHeight + (availH-ch)/2

		if c, ok := parseHexColor(pg.Background); ok {
			setFillColor(pdf, c)
			pdf.Rect(ox, oy, cw, ch, "F")
		}
		if opt.IncludeGuides {
			setDrawColor(pdf, opt.GuideColor)
			pdf.SetLineWidth(0.5)
			pdf.Rect(ox, oy, cw, ch, "D")
		}

		setDrawColor(pdf, opt.ElementStroke)
		pdf.SetLineWidth(0.75)
		for _, el := range sortedByZ(pg.Elements) {
			x := ox + el.X*scale
			y := oy + el.Y*scale
			w, h := el.Width*scale, el.Height*scale
			if w <= 0 || h <= 0 {
				continue
			}
			pdf.Rect(x, y, w, h, "D")
			pdf.SetFont("Helvetica", "", 7)
			pdf.ClipRect(x, y, w, h, false)
			pdf.Text(x+2, y+8, tr(elementLabel(el)))
			if el.Text != "" {
				pdf.SetFont("Helvetica", "I", 7)
				pdf.Text(x+2, y+17, tr(truncate(el.Text, 60)))
			}
			pdf.ClipEnd()
		}

		drawFooter(pdf, tr, opt, pg, p.AudioTracks)
	}
	return pdf.Output(w)
}

// ExportStoryboardPDF writes the storyboard to outPath, creating its directory.
func ExportStoryboardPDF(p *domain.Project, outPath string, opt PDFOptions) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create pdf: %w", err)
	}
	if err := StoryboardPDF(f, p, opt); err != nil {
		_ = f.Close()
		_ = os.Remove(outPath)
		return fmt.Errorf("write pdf: %w", err)
	}
	return f.Close()
}

func drawHeader(pdf *gofpdf.Fpdf, tr func(string) string, opt PDFOptions, idx int, pg domain.Page) {
	name := pg.Name
	if name == "" {
		name = "Page " + strconv.Itoa(idx+1)
	}
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Text(opt.Margin, opt.Margin+14, tr(fmt.Sprintf("%d. %s", idx+1, name)))
	pdf.SetFont("Helvetica", "", 10)
	pdf.Text(opt.Margin, opt.Margin+30, fmt.Sprintf("start %s  duration %s  elements %d",
		clock(pg.StartTime), clock(pg.Duration), len(pg.Elements)))
}

func drawFooter(pdf *gofpdf.Fpdf, tr func(string) string, opt PDFOptions, pg domain.Page, tracks []domain.AudioTrack) {
	var names []string
	for _, t := range tracks {
		if audibleDuring(t, pg) {
			n := t.Name
			if n == "" {
				n = t.ID
			}
			names = append(names, fmt.Sprintf("%s [%s]", n, domain.RefOfTrack(t).State))
		}
	}
	if len(names) == 0 {
		return
	}
	pdf.SetFont("Helvetica", "", 9)
	pdf.Text(opt.Margin, opt.SheetHeight-opt.Margin-8, tr("audio: "+truncate(strings.Join(names, ", "), 160)))
}

// audibleDuring reports whether the track overlaps the page's time window.
// A track without a duration plays until the end.
func audibleDuring(t domain.AudioTrack, pg domain.Page) bool {
	end := pg.StartTime + pg.Duration
	if t.StartTime >= end {
		return false
	}
	if t.Duration == nil {
		return true
	}
	return t.StartTime+*t.Duration > pg.StartTime
}

func elementLabel(el domain.Element) string {
	label := string(el.Type)
	if _, ok := domain.MediaTypeOf(el.Type); ok || el.Type == domain.ElementAudio {
		label += " [" + domain.RefOfElement(el).State.String() + "]"
	}
	if el.Type == domain.ElementVideo {
		label += " " + clock(domain.EffectiveDuration(el))
	}
	return label
}

func selectPages(pages []domain.Page, ids []string) []int {
	if len(ids) == 0 {
		out := make([]int, len(pages))
		for i := range out {
			out[i] = i
		}
		return out
	}
	var out []int
	for _, id := range ids {
		for i, pg := range pages {
			if pg.ID == id {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

func sortedByZ(els []domain.Element) []domain.Element {
	out := append([]domain.Element(nil), els...)
	// insertion sort keeps equal zIndex in document order
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ZIndex < out[j-1].ZIndex; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func clock(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	whole := int(sec)
	frac := sec - float64(whole)
	s := fmt.Sprintf("%d:%02d", whole/60, whole%60)
	if frac >= 0.05 {
		s += fmt.Sprintf(".%d", int(frac*10+0.5)%10)
	}
	return s
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func parseHexColor(s string) (Color, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return Color{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return Color{}, false
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, true
}

func setDrawColor(pdf *gofpdf.Fpdf, c Color) {
	pdf.SetDrawColor(int(c.R), int(c.G), int(c.B))
}

func setFillColor(pdf *gofpdf.Fpdf, c Color) {
	pdf.SetFillColor(int(c.R), int(c.G), int(c.B))
}
