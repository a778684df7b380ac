/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"slidecraft/internal/domain"
	"slidecraft/internal/editor"
	"slidecraft/internal/materialize"
	"slidecraft/internal/storage"
)

func newOpenCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open [project-id]",
		Short: "Load a project from the backend, or resume local edits",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			src, err := s.Open(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Loaded from %s\n", src)
			return printSummary(out, s.State())
		},
	}
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the project being edited",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), s.State())
		},
	}
}

func printSummary(out io.Writer, st editor.State) error {
	if p := st.Project; p != nil {
		fmt.Fprintf(out, "Project: %s (%s)", p.Name, p.ID)
		if p.Status != "" {
			fmt.Fprintf(out, " [%s]", p.Status)
		}
		fmt.Fprintf(out, ", updated %s\n", ago(p.UpdatedAt))
	} else {
		fmt.Fprintln(out, "Project: not saved yet")
	}
	fmt.Fprintf(out, "Timeline: %s, %s, %s\n",
		count(len(st.Pages), "pages"), count(len(st.AudioTracks), "audio tracks"), seconds(domain.TotalDuration(st.Pages)))
	fmt.Fprintf(out, "Library: %s, %s, %s\n",
		count(len(st.Library.Images), "images"), count(len(st.Library.Videos), "videos"), count(len(st.Library.Audio), "audio"))
	if len(st.Pages) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(st.Pages))
	for i, pg := range st.Pages {
		rows = append(rows, []string{itoa(i), pg.ID, pg.Name, seconds(pg.StartTime), seconds(pg.Duration), itoa(len(pg.Elements)), localCount(pg)})
	}
	_, err := fmt.Fprintln(out, renderTable(
		[]string{"#", "ID", "Name", "Start", "Duration", "Elements", "Local media"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
	))
	return err
}

func localCount(pg domain.Page) string {
	n := 0
	for _, el := range pg.Elements {
		if st, _ := domain.ClassifyURL(el.Src); st == domain.RefLocal {
			n++
		}
	}
	return itoa(n)
}

func newResetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard local edits and start an empty project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			if err := s.Reset(); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Local edits discarded")
			return err
		},
	}
}

func newSaveCommand(a *app) *cobra.Command {
	var (
		opts       editor.SaveOptions
		dropFailed bool
	)
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Upload local media and save the project to the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			if dropFailed || (a.cfg.Editor.DropFailedUploads && !cmd.Flags().Changed("drop-failed")) {
				opts.Policy = editor.PolicyDropFailed
			}
			rep, err := s.Save(cmd.Context(), opts)
			out := cmd.OutOrStdout()
			var se *editor.SaveError
			if errors.As(err, &se) {
				printFailed(out, se.Failed)
				return fmt.Errorf("%w; rerun save to retry, or pass --drop-failed", err)
			}
			if err != nil {
				return err
			}
			verb := "Updated"
			if rep.Created {
				verb = "Created"
			}
			fmt.Fprintf(out, "%s project %s (%s): %s uploaded, %s total\n",
				verb, rep.Project.Name, rep.Project.ID, count(len(rep.Uploaded), "assets"), seconds(rep.Payload.Settings.Duration))
			if rep.Dropped > 0 {
				fmt.Fprintf(out, "Left out %s whose media failed to upload\n", count(rep.Dropped, "items"))
				printFailed(out, rep.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "Project name (defaults to the current name)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Project status: draft, in_review, published or archived")
	cmd.Flags().StringSliceVar(&opts.Tags, "tag", nil, "Project tag (repeatable)")
	cmd.Flags().BoolVar(&dropFailed, "drop-failed", false, "Save without media whose upload failed")
	return cmd
}

func printFailed(out io.Writer, failed []materialize.FailedUpload) {
	if len(failed) == 0 {
		return
	}
	rows := make([][]string, 0, len(failed))
	for _, f := range failed {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		rows = append(rows, []string{string(f.MediaType), f.Src, itoa(len(f.Items)), msg})
	}
	fmt.Fprintln(out, renderTable([]string{"Media", "Source", "Items", "Error"}, rows, nil))
}

func newProjectsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List and delete projects on the backend",
	}
	var f domain.ProjectFilter
	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projects, err := a.client().List(cmd.Context(), f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(projects) == 0 {
				_, err := fmt.Fprintln(out, "No projects")
				return err
			}
			rows := make([][]string, 0, len(projects))
			for _, p := range projects {
				rows = append(rows, []string{p.ID, p.Name, p.Status, strings.Join(p.Tags, ","),
					itoa(len(p.Pages)), seconds(p.Settings.Duration), ago(p.UpdatedAt)})
			}
			_, err = fmt.Fprintln(out, renderTable(
				[]string{"ID", "Name", "Status", "Tags", "Pages", "Duration", "Updated"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return err
		},
	}
	list.Flags().StringVar(&f.Status, "status", "", "Only projects with this status")
	list.Flags().StringVar(&f.Tag, "tag", "", "Only projects with this tag")
	list.Flags().StringVarP(&f.Query, "query", "q", "", "Name substring")
	list.Flags().IntVar(&f.Limit, "limit", 0, "Maximum number of projects")

	del := &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			if err := s.DeleteProject(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Deleted", args[0])
			return err
		},
	}
	cmd.AddCommand(list, del)
	return cmd
}

func newHistoryCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [project-id]",
		Short: "Show the local save history of a project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openSession(cmd.Context())
			if err != nil {
				return err
			}
			id := ""
			if len(args) == 1 {
				id = args[0]
			} else if cur := s.Current(); cur != nil {
				id = cur.ID
			}
			if id == "" {
				return errors.New("no project: pass a project id or save first")
			}
			saves, err := a.local.ListSaves(cmd.Context(), id, limit)
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), id, saves)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of saves to show")
	return cmd
}

func printHistory(out io.Writer, id string, saves []storage.SaveRecord) error {
	if len(saves) == 0 {
		_, err := fmt.Fprintf(out, "No saves recorded for %s\n", id)
		return err
	}
	rows := make([][]string, 0, len(saves))
	for _, r := range saves {
		rows = append(rows, []string{
			r.SavedAt.Local().Format("2006-01-02 15:04:05"), ago(r.SavedAt), r.Name,
			itoa(r.Pages), seconds(r.Duration), itoa(r.FailedUploads), bytesOf(int64(len(r.Payload))),
		})
	}
	_, err := fmt.Fprintln(out, renderTable(
		[]string{"Saved", "", "Name", "Pages", "Duration", "Failed", "Size"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
	))
	return err
}
