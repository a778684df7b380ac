/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"slidecraft/internal/backend"
	"slidecraft/internal/config"
	"slidecraft/internal/domain"
	"slidecraft/internal/editor"
	applog "slidecraft/internal/log"
	"slidecraft/internal/mirror"
	"slidecraft/internal/storage"
	"slidecraft/internal/telemetry"
)

// app carries what the commands of one invocation share: the loaded
// config, the local store and the editing session built on top of it.
type app struct {
	configPath string

	cfg    config.AppConfig
	token  string
	loaded bool

	local   *storage.Local
	tel     *telemetry.Client
	session *editor.Session
}

func (a *app) loadConfig() error {
	if a.loaded {
		return nil
	}
	var err error
	if p := strings.TrimSpace(a.configPath); p != "" {
		a.cfg, a.token, err = config.LoadFrom(p)
	} else {
		a.cfg, a.token, err = config.Load()
	}
	if err != nil {
		return err
	}
	applog.Init(applog.Options{
		Level:     a.cfg.Logging.Level,
		Format:    a.cfg.Logging.Format,
		AddSource: a.cfg.Logging.Source,
		File:      a.cfg.Logging.File,
	})
	a.loaded = true
	return nil
}

func (a *app) client() *backend.Client {
	return backend.NewClient(a.cfg.Backend.BaseURL, a.token, a.cfg.Backend.Timeout())
}

// openSession takes the local store lock, builds the session and restores
// the mirror. Later calls return the same session.
func (a *app) openSession(ctx context.Context) (*editor.Session, error) {
	if a.session != nil {
		return a.session, nil
	}
	if err := a.loadConfig(); err != nil {
		return nil, err
	}
	l := applog.WithComponent("cli")
	local, err := storage.OpenLocal(a.cfg.Editor.MirrorDir, storage.Options{
		MaxValueBytes: a.cfg.Editor.MaxMirrorBytes,
		HistoryKeep:   a.cfg.Editor.HistoryKeep,
	})
	if errors.Is(err, storage.ErrLocked) {
		return nil, fmt.Errorf("%w: another slidecraft process is editing %s", err, a.cfg.Editor.MirrorDir)
	}
	if err != nil {
		return nil, err
	}
	a.local = local

	cache := mirror.New(local,
		mirror.WithStaleAfter(a.cfg.Editor.StaleAfter()),
		mirror.WithLogger(applog.WithComponent("mirror")),
	)
	c := a.client()
	a.tel = telemetry.New(telemetry.FromConfig(a.cfg.General))
	telemetry.SetDefault(a.tel)
	s := editor.New(editor.Deps{
		Store:      c,
		Uploader:   backend.NewAssetUploader(c, nil),
		Cache:      cache,
		History:    local,
		Telemetry:  a.tel,
		Logger:     applog.WithComponent("editor"),
		Sequential: a.cfg.Editor.SequentialUploads,
	})
	src, err := s.Open(ctx, "")
	if err != nil {
		return nil, err
	}
	l.Debug("session ready", slog.String("source", string(src)), slog.String("dir", local.Dir()))
	a.session = s
	return s, nil
}

func (a *app) close() {
	if a.tel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		a.tel.Close(ctx)
		cancel()
		telemetry.SetDefault(nil)
	}
	if a.local != nil {
		if err := a.local.Close(); err != nil {
			applog.WithComponent("cli").Warn("close local store", slog.Any("err", err))
		}
		a.local = nil
	}
}

// Dir and Snapshot let a panic autosave the session being edited.
func (a *app) Dir() string {
	if a.local != nil {
		return a.local.Dir()
	}
	return ""
}

func (a *app) Snapshot() *domain.Project {
	if a.session == nil {
		return nil
	}
	return a.session.Snapshot()
}
