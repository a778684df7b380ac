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
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"slidecraft/internal/domain"
	"slidecraft/internal/editor"
	"slidecraft/internal/materialize"
)

// sessionRunE opens the session before calling fn.
func sessionRunE(a *app, fn func(ctx context.Context, s *editor.Session, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := a.openSession(cmd.Context())
		if err != nil {
			return err
		}
		return fn(cmd.Context(), s, cmd, args)
	}
}

func newPageCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "page", Short: "Add, rename, move and delete pages"}
	cmd.AddCommand(
		&cobra.Command{
			Use:  "add [name]",
			Args: cobra.MaximumNArgs(1),
			RunE: sessionRunE(a, func(_ context.Context, s *editor.Session, cmd *cobra.Command, args []string) error {
				name := ""
				if len(args) == 1 {
					name = args[0]
				}
				pg, err := s.AddPage(name)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Added page %s at %s\n", pg.ID, seconds(pg.StartTime))
				return err
			}),
		},
		&cobra.Command{
			Use:  "rename <page-id> <name>",
			Args: cobra.ExactArgs(2),
			RunE: sessionRunE(a, func(_ context.Context, s *editor.Session, _ *cobra.Command, args []string) error {
				return s.RenamePage(args[0], args[1])
			}),
		},
		&cobra.Command{
			Use:  "bg <page-id> <color>",
			Args: cobra.ExactArgs(2),
			RunE: sessionRunE(a, func(_ context.Context, s *editor.Session, _ *cobra.Command, args []string) error {
				return s.SetBackground(args[0], args[1])
			}),
		},
		&cobra.Command{
			Use:   "move <page-id> <index>",
			Short: "Move a page; start times are not recomputed",
			Args:  cobra.ExactArgs(2),
			RunE: sessionRunE(a, func(_ context.Context, s *editor.Session, _ *cobra.Command, args []string) error {
				to, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("index %q: %w", args[1], err)
				}
				return s.MovePage(args[0], to)
			}),
		},
		&cobra.Command{
			Use:  "rm <page-id>",
			Args: cobra.ExactArgs(1),
			RunE: sessionRunE(a, func(_ context.Context, s *editor.Session, _ *cobra.Command, args []string) error {
				return s.DeletePage(args[0])
			}),
		},
	)
	return cmd
}

// elementFlags are the editable element fields; only flags the user set are applied.
type elementFlags struct {
	typ                      string
	x, y, width, height, rot float64
	z                        int
	src, text                string
	duration, trimStart      float64
	trimEnd, volume          float64
	muted                    bool
}

func (f *elementFlags) register(fs *pflag.FlagSet, withType bool) {
	if withType {
		fs.StringVar(&f.typ, "type", "", "Element type: text, image, video, shape, icon, sticker, bullets, audio or slide")
	}
	fs.Float64Var(&f.x, "x", 0, "Left position")
	fs.Float64Var(&f.y, "y", 0, "Top position")
	fs.Float64Var(&f.width, "width", 0, "Width")
	fs.Float64Var(&f.height, "height", 0, "Height")
	fs.Float64Var(&f.rot, "rotation", 0, "Rotation in degrees")
	fs.IntVar(&f.z, "z", 0, "Stacking order")
	fs.StringVar(&f.src, "src", "", "Media URL or local file")
	fs.StringVar(&f.text, "text", "", "Text content")
	fs.Float64Var(&f.duration, "duration", 0, "Media duration in seconds")
	fs.Float64Var(&f.trimStart, "trim-start", 0, "Start playback at this second")
	fs.Float64Var(&f.trimEnd, "trim-end", 0, "Stop playback at this second")
	fs.Float64Var(&f.volume, "volume", 0, "Playback volume, 0 to 1")
	fs.BoolVar(&f.muted, "muted", false, "Mute the element")
}

func (f *elementFlags) apply(fs *pflag.FlagSet, el *domain.Element) {
	set := func(name string, fn func()) {
		if fs.Changed(name) {
			fn()
		}
	}
	set("x", func() { el.X = f.x })
	set("y", func() { el.Y = f.y })
	set("width", func() { el.Width = f.width })
	set("height", func() { el.Height = f.height })
	set("rotation", func() { el.Rotation = f.rot })
	set("z", func() { el.ZIndex = f.z })
	set("text", func() { el.Text = f.text })
	set("duration", func() { el.Duration = domain.Float(f.duration) })
	set("trim-start", func() { el.TrimStart = domain.Float(f.trimStart) })
	set("trim-end", func() { el.TrimEnd = domain.Float(f.trimEnd) })
	set("volume", func() { el.Volume = domain.Float(f.volume) })
	set("muted", func() { el.Muted = f.muted })
	set("src", func() {
		el.Src, el.File = materialize.LocalSource(f.src)
		el.AssetID, el.LibraryID = "", ""
	})
}

func newElementCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "element", Short: "Add, change and delete page elements"}

	var addFlags elementFlags
	add := &cobra.Command{
		Use:  "add <page-id>",
		Args: cobra.ExactArgs(1),
		RunE: sessionRunE(a, func(_ context.Context, s *editor.Session, cmd *cobra.Command, args []string) error {
			el := domain.Element{Type: domain.ElementType(addFlags.typ)}
			addFlags.apply(cmd.Flags(), &el)
			added, err := s.AddElement(args[0], el)
			if err != nil {
				return err
			}
			return printElement(cmd, s, args[0], added)
		}),
	}
	addFlags.register(add.Flags(), true)

	var setFlags elementFlags
	set := &cobra.Command{
		Use:  "set <page-id> <element-id>",
		Args: cobra.ExactArgs(2),
		RunE: sessionRunE(a, func(_ context.Context, s *editor.Session, cmd *cobra.Command, args []string) error {
			el, err := s.UpdateElement(args[0], args[1], func(el *domain.Element) { setFlags.apply(cmd.Flags(), el) })
			if err != nil {
				return err
			}
			return printElement(cmd, s, args[0], el)
		}),
	}
	setFlags.register(set.Flags(), false)

	dup := &cobra.Command{
		Use:  "dup <page-id> <element-id>",
		Args: cobra.ExactArgs(2),
		RunE: sessionRunE(a, func(_ context.Context, s *editor.Session, cmd *cobra.Command, args []string) error {
			el, err := s.DuplicateElement(args[0], args[1])
			if err != nil {
				return err
			}
			return printElement(cmd, s, args[0], el)
		}),
	}
	rm := &cobra.Command{
		Use:  "rm <page-id> <element-id>",
		Args: cobra.ExactArgs(2),
		RunE: sessionRunE(a, func(_ context.Context, s *editor.Session, _ *cobra.Command, args []string) error {
			return s.DeleteElement(args[0], args[1])
		}),
	}
	cmd.AddCommand(add, set, dup, rm)
	return cmd
}

func printElement(cmd *cobra.Command, s *editor.Session, pageID string, el domain.Element) error {
	dur := 0.0
	for _, pg := range s.State().Pages {
		if pg.ID == pageID {
			dur = pg.Duration
		}
	}
	state, _ := domain.ClassifyURL(el.Src)
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s), page duration %s\n", el.Type, el.ID, state, seconds(dur))
	return err
}

func newAudioCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "audio", Short: "Manage project audio tracks"}

	var (
		tr       domain.AudioTrack
		duration float64
	)
	add := &cobra.Command{
		Use:  "add <url-or-file>",
		Args: cobra.ExactArgs(1),
		RunE: sessionRunE(a, func(_ context.Context, s *editor.Session, cmd *cobra.Command, args []string) error {
			t := tr
			t.URL, t.File = materialize.LocalSource(args[0])
			if cmd.Flags().Changed("duration") {
				t.Duration = domain.Float(duration)
			}
			added, err := s.AddAudioTrack(t)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Added track %s at %s\n", added.ID, seconds(added.StartTime))
			return err
		}),
	}
	addTrackFlags(add.Flags(), &tr, &duration)

	var (
		upd         domain.AudioTrack
		updDuration float64
		setURL      string
	)
	set := &cobra.Command{
		Use:  "set <track-id>",
		Args: cobra.ExactArgs(1),
		RunE: sessionRunE(a, func(_ context.Context, s *editor.Session, cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			_, err := s.UpdateAudioTrack(args[0], func(t *domain.AudioTrack) {
				if fs.Changed("name") {
					t.Name = upd.Name
				}
				if fs.Changed("start") {
					t.StartTime = upd.StartTime
				}
				if fs.Changed("volume") {
					t.Volume = upd.Volume
				}
				if fs.Changed("type") {
					t.Type = upd.Type
				}
				if fs.Changed("duration") {
					t.Duration = domain.Float(updDuration)
				}
				if fs.Changed("url") {
					t.URL, t.File = materialize.LocalSource(setURL)
					t.Src, t.AssetID = "", ""
				}
			})
			return err
		}),
	}
	addTrackFlags(set.Flags(), &upd, &updDuration)
	set.Flags().StringVar(&setURL, "url", "", "New audio URL or local file")

	rm := &cobra.Command{
		Use:  "rm <track-id>",
		Args: cobra.ExactArgs(1),
		RunE: sessionRunE(a, func(_ context.Context, s *editor.Session, _ *cobra.Command, args []string) error {
			return s.RemoveAudioTrack(args[0])
		}),
	}
	cmd.AddCommand(add, set, rm)
	return cmd
}

func addTrackFlags(fs *pflag.FlagSet, t *domain.AudioTrack, duration *float64) {
	fs.StringVar(&t.Name, "name", "", "Track name")
	fs.Float64Var(&t.StartTime, "start", 0, "Start on the project timeline, in seconds")
	fs.Float64Var(&t.Volume, "volume", 1, "Volume, 0 to 1")
	fs.StringVar(&t.Type, "type", "", "audio, music or voiceover")
	fs.Float64Var(duration, "duration", 0, "Track duration in seconds")
}

func newLibraryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "library", Short: "Manage the reusable media library"}

	var name string
	add := &cobra.Command{
		Use:   "add <image|video|audio> <url>",
		Short: "Add a media URL to the library",
		Args:  cobra.ExactArgs(2),
		RunE: sessionRunE(a, func(_ context.Context, s *editor.Session, cmd *cobra.Command, args []string) error {
			mt, err := domain.ParseMediaType(args[0])
			if err != nil {
				return err
			}
			added, err := s.AddToLibrary(mt, domain.MediaLibraryEntry{URL: args[1], Name: name})
			if err != nil {
				return err
			}
			if !added {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "Already in the library")
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Added %s to the %s library\n", args[1], mt)
			return err
		}),
	}
	add.Flags().StringVar(&name, "name", "", "Display name")

	upload := &cobra.Command{
		Use:   "upload <image|video|audio> <file>",
		Short: "Upload a local file straight into the library",
		Args:  cobra.ExactArgs(2),
		RunE: sessionRunE(a, func(ctx context.Context, s *editor.Session, cmd *cobra.Command, args []string) error {
			mt, err := domain.ParseMediaType(args[0])
			if err != nil {
				return err
			}
			fi, err := os.Stat(args[1])
			if err != nil {
				return err
			}
			b := domain.Blob{Handle: "file:" + args[1], Name: filepath.Base(args[1]), Size: fi.Size(), Path: args[1]}
			entry, err := s.UploadToLibrary(ctx, mt, b)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s (%s) as %s\n", b.Name, bytesOf(b.Size), entry.URL)
			return err
		}),
	}
	cmd.AddCommand(add, upload)
	return cmd
}

func newSectionCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "section", Short: "Assign library media to sections"}
	cmd.AddCommand(&cobra.Command{
		Use:   "toggle <title> <index> <image|video|audio>",
		Short: "Assign or unassign the index-th library item of a media type",
		Args:  cobra.ExactArgs(3),
		RunE: sessionRunE(a, func(_ context.Context, s *editor.Session, cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("index %q: %w", args[1], err)
			}
			mt, err := domain.ParseMediaType(args[2])
			if err != nil {
				return err
			}
			added, err := s.ToggleSectionMedia(args[0], idx, mt)
			if err != nil {
				return err
			}
			verb := "Removed from"
			if added {
				verb = "Added to"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s section %q\n", verb, args[0])
			return err
		}),
	})
	return cmd
}
