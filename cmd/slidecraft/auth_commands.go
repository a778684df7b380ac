/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"slidecraft/internal/config"
)

func newLoginCommand(a *app) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
		url     string
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Request a backend token and keep it in the OS keychain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url != "" {
				a.cfg.Backend.BaseURL = url
			}
			c := a.client()
			if err := c.Health(cmd.Context()); err != nil {
				return fmt.Errorf("backend %s: %w", a.cfg.Backend.BaseURL, err)
			}
			tok, exp, err := c.IssueToken(cmd.Context(), subject, ttl)
			if err != nil {
				return err
			}
			if a.configPath != "" {
				err = config.SaveTo(a.configPath, a.cfg, tok)
			} else {
				err = config.Save(a.cfg, tok)
			}
			if err != nil {
				return err
			}
			a.token = tok
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Logged in to %s as %s until %s\n",
				a.cfg.Backend.BaseURL, subject, exp.Local().Format(time.RFC1123))
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "dev", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	cmd.Flags().StringVar(&url, "url", "", "Backend base URL to log in to and remember")
	return cmd
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the backend token from the OS keychain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ClearToken(); err != nil {
				return err
			}
			a.token = ""
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return err
		},
	}
}
