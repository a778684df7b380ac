/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package backend is the project store and asset store: an HTTP server over
// Postgres or SQLite, and the client the editor uses to reach it.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"slidecraft/internal/domain"
	applog "slidecraft/internal/log"
	"slidecraft/internal/version"
)

const devSecret = "dev-secret-change-me"

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr           string // http bind address, e.g. ":8080"
	DatabaseURL    string
	AssetDir       string
	AuthSecret     string
	MaxUploadBytes int64
	MaxTokenTTL    time.Duration
}

// Server serves the project and asset APIs.
type Server struct {
	cfg      ServerConfig
	db       *DB
	projects *ProjectRepo
	assets   *AssetStore
	secret   string
	now      func() time.Time
	log      *slog.Logger
	http     *http.Server
}

func logger() *slog.Logger { return applog.WithComponent("backend") }

// NewServer opens the database, applies migrations and prepares the asset directory.
func NewServer(ctx context.Context, cfg ServerConfig) (*Server, error) {
	l := logger()
	db, err := OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.AssetDir == "" {
		cfg.AssetDir = "assets"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 512 << 20
	}
	if cfg.MaxTokenTTL <= 0 {
		cfg.MaxTokenTTL = 24 * time.Hour
	}
	assets, err := NewAssetStore(db, cfg.AssetDir, cfg.MaxUploadBytes)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	secret := cfg.AuthSecret
	if secret == "" {
		secret = devSecret
		l.Warn("SLC_AUTH_SECRET not set; using insecure dev secret")
	}
	s := &Server{
		cfg:      cfg,
		db:       db,
		projects: NewProjectRepo(db),
		assets:   assets,
		secret:   secret,
		now:      time.Now,
		log:      l,
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Projects exposes the project repository.
func (s *Server) Projects() *ProjectRepo { return s.projects }

// Assets exposes the asset store.
func (s *Server) Assets() *AssetStore { return s.assets }

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("slidecraftd " + version.String()))
	})
	mux.HandleFunc("POST /api/auth/token", s.handleToken)

	mux.HandleFunc("GET /api/projects", s.withAuth(s.handleListProjects))
	mux.HandleFunc("POST /api/projects", s.withAuth(s.handleCreateProject))
	mux.HandleFunc("GET /api/projects/{id}", s.withAuth(s.handleGetProject))
	mux.HandleFunc("PUT /api/projects/{id}", s.withAuth(s.handleUpdateProject))
	mux.HandleFunc("DELETE /api/projects/{id}", s.withAuth(s.handleDeleteProject))

	mux.HandleFunc("POST /api/assets/upload", s.withAuth(s.handleUpload))
	mux.HandleFunc("GET /api/assets/{id}", s.withAuth(s.handleAssetInfo))
	mux.HandleFunc("GET /api/assets/download/{library}/{file}", s.handleDownload)
	return s.logRequests(mux)
}

// Run listens on cfg.Addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Serve(ln) }()
	s.log.Info("listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// Close releases the database.
func (s *Server) Close() error { return s.db.Close() }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		lvl := slog.LevelDebug
		if rec.status >= 500 {
			lvl = slog.LevelError
		}
		s.log.Log(r.Context(), lvl, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("took", time.Since(start)))
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("db not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// POST /api/auth/token {subject, ttl_seconds} → {token, expires_at}
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject    string `json:"subject"`
		TTLSeconds int64  `json:"ttl_seconds"`
	}
	b, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	_ = r.Body.Close()
	_ = json.Unmarshal(b, &req)
	if req.Subject == "" {
		req.Subject = "dev"
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second
	if ttl <= 0 || ttl > s.cfg.MaxTokenTTL {
		ttl = time.Hour
	}
	exp := s.now().Add(ttl)
	tok, err := signToken(s.secret, req.Subject, exp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      tok,
		"expires_at": exp.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.ProjectFilter{Status: q.Get("status"), Tag: q.Get("tag"), Query: q.Get("q")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		f.Limit = n
	}
	list, err := s.projects.List(r.Context(), f)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	p, ok := s.readPayload(w, r)
	if !ok {
		return
	}
	proj, err := s.projects.Create(r.Context(), p)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.log.Info("project created", slog.String("project", proj.ID), slog.String("sub", Subject(r.Context())))
	writeJSON(w, http.StatusCreated, proj)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	proj, err := s.projects.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	p, ok := s.readPayload(w, r)
	if !ok {
		return
	}
	proj, err := s.projects.Update(r.Context(), r.PathValue("id"), p)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.projects.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) readPayload(w http.ResponseWriter, r *http.Request) (domain.Payload, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 32<<20))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("read body: %w", err))
		return domain.Payload{}, false
	}
	if err := ValidatePayload(raw); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return domain.Payload{}, false
	}
	var p domain.Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode payload: %w", err))
		return domain.Payload{}, false
	}
	return p, true
}

// POST /api/assets/upload, multipart: file, mediaType, name, duration
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse upload: %w", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	mt, err := domain.ParseMediaType(r.FormValue("mediaType"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing file: %w", err))
		return
	}
	defer func() { _ = file.Close() }()

	in := AssetInput{
		MediaType:   mt,
		Name:        strings.TrimSpace(r.FormValue("name")),
		ContentType: hdr.Header.Get("Content-Type"),
		Owner:       Subject(r.Context()),
	}
	if in.Name == "" {
		in.Name = hdr.Filename
	}
	if v := strings.TrimSpace(r.FormValue("duration")); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid duration %q", v))
			return
		}
		in.Duration = domain.Float(d)
	}

	a, err := s.assets.Save(r.Context(), in, file)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.log.Info("asset stored",
		slog.String("asset", a.ID),
		slog.String("media", string(a.MediaType)),
		slog.Int64("bytes", a.Size))
	writeJSON(w, http.StatusCreated, assetResponse(a))
}

func (s *Server) handleAssetInfo(w http.ResponseWriter, r *http.Request) {
	a, err := s.assets.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assetResponse(a))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	f, a, err := s.assets.Open(r.Context(), r.PathValue("library"), r.PathValue("file"))
	if err != nil {
		s.fail(w, err)
		return
	}
	defer func() { _ = f.Close() }()
	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(w, r, a.FileName, a.CreatedAt, f)
}

type assetJSON struct {
	*Asset
	URL string `json:"url"`
}

func assetResponse(a *Asset) assetJSON { return assetJSON{Asset: a, URL: a.URL()} }

func (s *Server) fail(w http.ResponseWriter, err error) {
	var ve *ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err)
	default:
		s.log.Error("request failed", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, err)
	}
}
