/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func withBuffer(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })
	return &buf
}

func TestJSONOutputCarriesStaticAndContextAttrs(t *testing.T) {
	buf := withBuffer(t)
	Init(Options{Level: "debug", Format: "json"})

	l := WithOperation(WithComponent("materialize"), "upload")
	l.Info("asset uploaded", slog.String("library", "image-assets"))

	line := strings.TrimSpace(buf.String())
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("unmarshal json log %q: %v", line, err)
	}
	if m["app"] != "slidecraft" {
		t.Fatalf("app attr mismatch: %v", m["app"])
	}
	if _, ok := m["ver"].(string); !ok {
		t.Fatalf("missing ver attr")
	}
	if m["component"] != "materialize" || m["op"] != "upload" {
		t.Fatalf("context attrs mismatch: %v / %v", m["component"], m["op"])
	}
	if m["library"] != "image-assets" {
		t.Fatalf("library attr mismatch: %v", m["library"])
	}
}

func TestConsoleOutputIsSingleLine(t *testing.T) {
	buf := withBuffer(t)
	Init(Options{Level: "info", Format: "console"})

	WithComponent("mirror").Warn("mirror degraded", slog.String("reason", "quota exceeded"), slog.Int("bytes", 42))

	out := buf.String()
	if strings.Count(out, "\n") != 1 {
		t.Fatalf("expected one line, got %q", out)
	}
	for _, want := range []string{"WRN", "mirror degraded", "component=mirror", `reason="quota exceeded"`, "bytes=42"} {
		if !strings.Contains(out, want) {
			t.Fatalf("console line %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "app=") {
		t.Fatalf("console line should omit static app attr: %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := withBuffer(t)
	Init(Options{Level: "warn", Format: "console"})

	L().Info("hidden")
	L().Debug("hidden too")
	L().Error("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info/debug leaked through warn level: %q", out)
	}
	if !strings.Contains(out, "ERR shown") {
		t.Fatalf("error line missing: %q", out)
	}
}

func TestGroupsAreDotted(t *testing.T) {
	buf := withBuffer(t)
	Init(Options{Level: "info", Format: "console"})

	L().WithGroup("upload").Info("done", slog.Int("count", 2))
	if !strings.Contains(buf.String(), "upload.count=2") {
		t.Fatalf("group prefix missing: %q", buf.String())
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("SLC_LOG_LEVEL", "debug")
	t.Setenv("SLC_LOG_FORMAT", "json")
	t.Setenv("SLC_LOG_SOURCE", "yes")
	t.Setenv("SLC_LOG_FILE", "/tmp/x.log")

	o := FromEnv()
	if o.Level != "debug" || o.Format != "json" || !o.AddSource || o.File != "/tmp/x.log" {
		t.Fatalf("unexpected options: %+v", o)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "warning": slog.LevelWarn,
		"error": slog.LevelError, "": slog.LevelInfo, "bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestAutoFormatFallsBackToJSONForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	if got := resolveFormat("auto", &buf); got != "json" {
		t.Fatalf("auto on buffer = %q, want json", got)
	}
	if got := resolveFormat("console", &buf); got != "console" {
		t.Fatalf("explicit console = %q", got)
	}
}
