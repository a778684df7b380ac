/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package mcp exposes an editing session as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"slidecraft/internal/domain"
	"slidecraft/internal/editor"
	applog "slidecraft/internal/log"
	"slidecraft/internal/reconcile"
	"slidecraft/internal/version"
)

const instructions = `slidecraft edits one slide project at a time.
Call open_project (with an id, or without one to resume local edits), inspect
it with get_state, change pages, elements and audio tracks with the mutation
tools, and persist with save_project. Element coordinates are canvas pixels.`

// Editor is the part of an editing session the tools drive.
type Editor interface {
	Open(ctx context.Context, projectID string) (reconcile.Source, error)
	State() editor.State
	ListProjects(ctx context.Context, f domain.ProjectFilter) ([]domain.Project, error)
	AddPage(name string) (domain.Page, error)
	AddElement(pageID string, el domain.Element) (domain.Element, error)
	UpdateElement(pageID, elID string, fn func(*domain.Element)) (domain.Element, error)
	DeleteElement(pageID, elID string) error
	AddAudioTrack(t domain.AudioTrack) (domain.AudioTrack, error)
	ToggleSectionMedia(title string, index int, mt domain.MediaType) (bool, error)
	Save(ctx context.Context, opts editor.SaveOptions) (*editor.SaveReport, error)
}

// Config configures the MCP server.
type Config struct {
	Editor Editor
	Logger *slog.Logger
}

// NewServer builds an MCP server with every tool registered.
func NewServer(cfg Config) *sdkmcp.Server {
	l := cfg.Logger
	if l == nil {
		l = applog.WithComponent("mcp")
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "slidecraft",
		Version: version.Version,
	}, &sdkmcp.ServerOptions{
		Instructions: instructions,
		Logger:       l,
	})
	server.AddReceivingMiddleware(trafficLoggingMiddleware(l, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(l, "outbound"))
	registerTools(server, &tools{ed: cfg.Editor, log: l})
	return server
}

// RunStdio serves the tools over stdin/stdout until ctx is done or stdin closes.
func RunStdio(ctx context.Context, server *sdkmcp.Server) error {
	return server.Run(ctx, &sdkmcp.StdioTransport{})
}

func trafficLoggingMiddleware(logger *slog.Logger, direction string) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if logger == nil || !logger.Enabled(ctx, slog.LevelDebug) {
				return next(ctx, method, req)
			}
			logger.Debug("mcp traffic", "direction", direction, "stage", "request", "method", method,
				"params", formatPayload(safeParams(req)))
			result, err := next(ctx, method, req)
			if !strings.HasPrefix(method, "notifications/") {
				logger.Debug("mcp traffic", "direction", direction, "stage", "response", "method", method,
					"result", formatPayload(result), "error", err)
			}
			return result, err
		}
	}
}

func safeParams(req sdkmcp.Request) (p any) {
	if req == nil {
		return nil
	}
	defer func() {
		if recover() != nil {
			p = nil
		}
	}()
	return req.GetParams()
}

func formatPayload(payload any) string {
	if payload == nil {
		return "<nil>"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%T", payload)
	}
	if len(data) > 2048 {
		return string(data[:2048]) + "..."
	}
	return string(data)
}
