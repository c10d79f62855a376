package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"modvault/internal/store"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List artifacts in the local library",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(app *app) error {
				artifacts, err := app.store.ListArtifacts(cmd.Context())
				if err != nil {
					return fmt.Errorf("list artifacts: %w", err)
				}
				if asJSON {
					return writeJSON(cmd, artifacts)
				}
				out := cmd.OutOrStdout()
				if len(artifacts) == 0 {
					fmt.Fprintln(out, "Library is empty")
					return nil
				}
				rows := make([][]string, 0, len(artifacts))
				var total int64
				for _, artifact := range artifacts {
					rows = append(rows, []string{
						artifact.ID,
						artifact.Name,
						artifact.Author,
						strings.Join(artifact.Tags, ", "),
						formatBytes(artifact.SizeBytes),
						formatTime(artifact.DownloadedAt),
					})
					total += artifact.SizeBytes
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "NAME", "AUTHOR", "TAGS", "SIZE", "DOWNLOADED"},
					rows, 4,
				))
				fmt.Fprintf(out, "%d artifacts, %s\n", len(artifacts), formatBytes(total))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent download history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(app *app) error {
				entries, err := app.store.History(cmd.Context(), limit)
				if err != nil {
					return fmt.Errorf("load history: %w", err)
				}
				if asJSON {
					return writeJSON(cmd, entries)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No download history")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{
						formatTime(entry.CreatedAt),
						entry.ArtifactID,
						entry.Name,
						string(entry.Status),
						entry.Error,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"TIME", "ARTIFACT", "NAME", "STATUS", "ERROR"},
					rows,
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show library and disk status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(app *app) error {
				artifacts, err := app.store.ListArtifacts(cmd.Context())
				if err != nil {
					return fmt.Errorf("list artifacts: %w", err)
				}
				var total int64
				for _, artifact := range artifacts {
					total += artifact.SizeBytes
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Data directory:  %s\n", app.cfg.Paths.DataDir)
				fmt.Fprintf(out, "Mods directory:  %s\n", app.cfg.Paths.ModsDir)
				fmt.Fprintf(out, "Artifacts:       %d (%s)\n", len(artifacts), formatBytes(total))

				free, err := store.FreeBytes(app.cfg.Paths.DataDir)
				if err != nil || free == 0 {
					fmt.Fprintln(out, "Free space:      unknown")
					return nil
				}
				fmt.Fprintf(out, "Free space:      %s\n", formatBytes(int64(free)))
				if minFree := app.cfg.Downloads.MinFreeMiB * 1024 * 1024; minFree > 0 && int64(free) < minFree {
					printWarning(out, fmt.Sprintf("free space below the %s download floor", formatBytes(minFree)))
				}
				return nil
			})
		},
	}
}
