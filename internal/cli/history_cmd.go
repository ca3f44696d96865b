// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history_cmd.go - Saved conversation commands.

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Anthonyvijay10/GrealthAI/internal/config"
	"github.com/Anthonyvijay10/GrealthAI/internal/export"
	"github.com/Anthonyvijay10/GrealthAI/internal/storage"
)

func (a *app) newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"hist"},
		Short:   "Manage saved conversations",
		Long: "List, show, export and delete saved conversations.\n\n" +
			"Conversations are referenced by their list number or id.",
	}
	cmd.AddCommand(a.newHistoryListCmd())
	cmd.AddCommand(a.newHistoryShowCmd())
	cmd.AddCommand(a.newHistoryExportCmd())
	cmd.AddCommand(a.newHistoryDeleteCmd())
	return cmd
}

// withTranscripts opens the configured store for the duration of fn.
func (a *app) withTranscripts(cmd *cobra.Command, fn func(*config.Config, storage.Store) error) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := a.openTranscripts(cfg)
	if err != nil {
		return NewCommandError("history", "open", "cannot open saved conversations", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

func (a *app) newHistoryListCmd() *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved conversations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTranscripts(cmd, func(cfg *config.Config, store storage.Store) error {
				metas, err := store.List()
				if err != nil {
					return err
				}
				if search != "" {
					metas = filterMetas(metas, search)
				}

				out := cmd.OutOrStdout()
				if a.jsonOutput {
					if metas == nil {
						metas = []storage.TranscriptMeta{}
					}
					return NewJSONResponse("history list", metas).Write(out)
				}
				text := storage.FormatList(metas)
				if !strings.HasSuffix(text, "\n") {
					text += "\n"
				}
				fmt.Fprint(out, text)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "only conversations whose title or preview contains text")
	return cmd
}

// filterMetas keeps conversations whose title or preview contains query,
// ignoring case.
func filterMetas(metas []storage.TranscriptMeta, query string) []storage.TranscriptMeta {
	q := strings.ToLower(query)
	var kept []storage.TranscriptMeta
	for _, m := range metas {
		if strings.Contains(strings.ToLower(m.Title), q) || strings.Contains(strings.ToLower(m.Preview), q) {
			kept = append(kept, m)
		}
	}
	return kept
}

func (a *app) newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <number|id>",
		Short: "Print a saved conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTranscripts(cmd, func(cfg *config.Config, store storage.Store) error {
				t, err := resolveTranscript(store, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if a.jsonOutput {
					return NewJSONResponse("history show", t).Write(out)
				}
				fmt.Fprint(out, a.newRenderer(cfg, out).Transcript(t))
				return nil
			})
		},
	}
}

func (a *app) newHistoryExportCmd() *cobra.Command {
	var output, format string
	var noMetadata bool
	cmd := &cobra.Command{
		Use:   "export <number|id>",
		Short: "Export a saved conversation as Markdown, HTML or JSON",
		Long: "Export a saved conversation. Without --output the result goes to stdout.\n" +
			"With --output the format follows the file extension unless --format is given;\n" +
			"an existing directory gets a file named after the conversation.",
		Example: "  grealth history export 1\n" +
			"  grealth history export 1 -o visit-notes.html\n" +
			"  grealth history export 1 -o ~/Documents --format json",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTranscripts(cmd, func(cfg *config.Config, store storage.Store) error {
				t, err := resolveTranscript(store, args[0])
				if err != nil {
					return err
				}

				toStdout := output == "" || output == "-"
				if format == "" && !toStdout {
					format = export.FormatForPath(output)
				}
				opts := export.DefaultOptions()
				opts.IncludeMetadata = !noMetadata
				exp, err := export.ForFormat(format, opts)
				if err != nil {
					return &ValidationError{Field: "format", Value: format, Reason: err.Error()}
				}

				if toStdout {
					data, err := exp.Export(t)
					if err != nil {
						return NewCommandError("history", "export", t.ID, err)
					}
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				path, err := export.ToFile(t, exp, output)
				if err != nil {
					return NewCommandError("history", "export", "cannot write "+output, err)
				}
				a.logger.Printf("TRANSCRIPT_EXPORTED | id=%s format=%s path=%s", t.ID, exp.MimeType(), path)
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %q to %s\n", t.Title, path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file or directory instead of stdout")
	cmd.Flags().StringVarP(&format, "format", "f", "", "markdown, html or json (default: from --output, else markdown)")
	cmd.Flags().BoolVar(&noMetadata, "no-metadata", false, "omit front matter and the metadata header")
	return cmd
}

func (a *app) newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <number|id>",
		Aliases: []string{"rm"},
		Short:   "Delete a saved conversation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withTranscripts(cmd, func(cfg *config.Config, store storage.Store) error {
				t, err := resolveTranscript(store, args[0])
				if err != nil {
					return err
				}
				if err := store.Delete(t.ID); err != nil {
					return err
				}
				if a.jsonOutput {
					return NewJSONResponse("history delete", map[string]string{"id": t.ID}).Write(cmd.OutOrStdout())
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %q (%s)\n", t.Title, t.ID)
				return nil
			})
		},
	}
}
