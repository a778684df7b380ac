/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"github.com/spf13/cobra"

	applog "slidecraft/internal/log"
	"slidecraft/internal/mcp"
)

func newMCPCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the editing session as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol
			cmd.SetOut(cmd.ErrOrStderr())
			s, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			l := applog.WithComponent("mcp")
			l.Info("serving mcp over stdio")
			return mcp.RunStdio(cmd.Context(), mcp.NewServer(mcp.Config{Editor: s, Logger: l}))
		},
	}
}
