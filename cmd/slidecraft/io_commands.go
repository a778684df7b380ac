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

	"github.com/spf13/cobra"

	"slidecraft/internal/domain"
	"slidecraft/internal/editor"
	"slidecraft/internal/export"
	"slidecraft/internal/storage"
)

func newExportCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "export", Short: "Export the project being edited"}

	jsonCmd := &cobra.Command{
		Use:   "json <file>",
		Short: "Write the project as JSON, keeping a backup of the previous file",
		Args:  cobra.ExactArgs(1),
		RunE: sessionRunE(a, func(_ context.Context, s *editor.Session, cmd *cobra.Command, args []string) error {
			if err := storage.ExportProject(args[0], s.Snapshot()); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Wrote", args[0])
			return err
		}),
	}

	var opt export.PDFOptions
	pdfCmd := &cobra.Command{
		Use:   "pdf <file>",
		Short: "Write a storyboard PDF with one sheet per page",
		Args:  cobra.ExactArgs(1),
		RunE: sessionRunE(a, func(_ context.Context, s *editor.Session, cmd *cobra.Command, args []string) error {
			if err := export.ExportStoryboardPDF(s.Snapshot(), args[0], opt); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Wrote", args[0])
			return err
		}),
	}
	pdfCmd.Flags().StringSliceVar(&opt.Pages, "page", nil, "Only these page ids (repeatable)")
	pdfCmd.Flags().BoolVar(&opt.IncludeGuides, "guides", false, "Draw canvas guides")

	cmd.AddCommand(jsonCmd, pdfCmd)
	return cmd
}

func newImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Append the pages, audio tracks and library of an exported project",
		Args:  cobra.ExactArgs(1),
		RunE: sessionRunE(a, func(_ context.Context, s *editor.Session, cmd *cobra.Command, args []string) error {
			p, err := storage.ImportProject(args[0])
			if err != nil {
				return err
			}
			// imported items get fresh ids
			for i := range p.Pages {
				p.Pages[i].ID = ""
				for j := range p.Pages[i].Elements {
					p.Pages[i].Elements[j].ID = ""
				}
			}
			pages, err := s.AppendPages(p.Pages)
			if err != nil {
				return err
			}
			for _, t := range p.AudioTracks {
				t.ID = ""
				if _, err := s.AddAudioTrack(t); err != nil {
					return err
				}
			}
			added := 0
			if lib := p.MediaLibrary; lib != nil {
				for _, mt := range []domain.MediaType{domain.MediaImage, domain.MediaVideo, domain.MediaAudio} {
					for _, e := range lib.Entries(mt) {
						ok, err := s.AddToLibrary(mt, e)
						if err != nil {
							return err
						}
						if ok {
							added++
						}
					}
				}
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Imported %s, %s and %s from %s\n",
				count(len(pages), "pages"), count(len(p.AudioTracks), "audio tracks"), count(added, "library items"), p.Name)
			return err
		}),
	}
}
