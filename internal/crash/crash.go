/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic into a crash report plus an autosave of the
// editing session, then exits.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"slidecraft/internal/domain"
	applog "slidecraft/internal/log"
	"slidecraft/internal/storage"
	"slidecraft/internal/telemetry"
	"slidecraft/internal/version"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Autosaver supplies what Recover needs to save the session.
type Autosaver interface {
	// Dir is where reports and autosaves are written.
	Dir() string
	// Snapshot returns the project to autosave; nil skips the autosave.
	Snapshot() *domain.Project
}

// Recover captures a panic, logs it with the stacktrace, writes a report
// file, autosaves the session snapshot as a JSON export and exits with 2.
// A nil Autosaver writes the report to the temp dir only.
//
// Usage: defer crash.Recover(a)
func Recover(a Autosaver) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	reportPath, err := writeReport(a, r, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err))
	}
	if a != nil {
		if path, err := Autosave(a, time.Now()); err != nil {
			l.Error("autosave failed", slog.Any("err", err))
		} else if path != "" {
			l.Info("autosave written", slog.String("path", path))
		}
	}

	if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
		l.Error("failed to write crash message to stderr", slog.Any("err", err))
	}
	if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
		l.Error("failed to write version info to stderr", slog.Any("err", err))
	}
	exitFn(2)
}

// Autosave exports a's snapshot to <dir>/autosave/<name>-<stamp>.json and
// returns the path. An empty snapshot writes nothing.
func Autosave(a Autosaver, now time.Time) (string, error) {
	p := a.Snapshot()
	if p == nil {
		return "", nil
	}
	name := p.ID
	if name == "" {
		name = "unsaved"
	}
	path := filepath.Join(reportDir(a), "autosave", fmt.Sprintf("%s-%s.json", name, now.Format("20060102-150405")))
	if err := storage.ExportProject(path, p); err != nil {
		return "", err
	}
	return path, nil
}

func reportDir(a Autosaver) string {
	if a != nil {
		if d := a.Dir(); d != "" {
			return d
		}
	}
	return os.TempDir()
}

func writeReport(a Autosaver, panicVal any, stack []byte) (string, error) {
	dir := reportDir(a)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", time.Now().Format("20060102-150405")))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "slidecraft crash report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if a != nil {
		if p := a.Snapshot(); p != nil {
			_, _ = fmt.Fprintf(&buf, "Project: %s (%d pages, %d audio tracks)\n", p.ID, len(p.Pages), len(p.AudioTracks))
		}
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", path))
		}
	}()
	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, err
	}
	_ = f.Sync()

	// only sent when general.telemetry_opt_in and general.crash_url are set
	telemetry.UploadCrash(buf.Bytes())
	return path, nil
}
