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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"slidecraft/internal/backend"
	"slidecraft/internal/config"
	applog "slidecraft/internal/log"
	"slidecraft/internal/version"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "slidecraftd:", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var cfgPath, addr string
	cmd := &cobra.Command{
		Use:           "slidecraftd",
		Short:         "Serve the slidecraft project store and asset API",
		Version:       version.String(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfgPath, addr)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

func serve(ctx context.Context, cfgPath, addr string) error {
	var (
		cfg config.AppConfig
		err error
	)
	if cfgPath != "" {
		cfg, _, err = config.LoadFrom(cfgPath)
	} else {
		cfg, _, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	if addr != "" {
		cfg.Server.Addr = addr
	}
	l := applog.WithComponent("slidecraftd")

	srv, err := backend.NewServer(ctx, serverConfig(cfg.Server))
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			l.Warn("close database", slog.Any("err", err))
		}
	}()
	l.Info("starting", slog.String("version", version.String()), slog.String("assets", cfg.Server.AssetDir))
	if err := srv.Run(ctx); err != nil {
		return err
	}
	l.Info("stopped")
	return nil
}

func serverConfig(c config.ServerConfig) backend.ServerConfig {
	return backend.ServerConfig{
		Addr:        c.Addr,
		DatabaseURL: c.DatabaseURL,
		AssetDir:    c.AssetDir,
		AuthSecret:  c.AuthSecret,
	}
}
