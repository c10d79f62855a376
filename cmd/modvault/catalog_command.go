package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"modvault/internal/catalog"
	"modvault/internal/config"
	"modvault/internal/media"
	"modvault/internal/transport"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "catalog [query]",
		Short: "Browse the remote mod catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(func(cfg *config.Config, cat *catalog.Client, tc *transport.Client, logger *slog.Logger) error {
				index, err := cat.FetchIndex(cmd.Context())
				if err != nil {
					return err
				}
				if len(args) == 1 {
					index = catalog.Search(index, args[0])
				}
				if asJSON {
					return writeJSON(cmd, index)
				}
				out := cmd.OutOrStdout()
				if len(index) == 0 {
					fmt.Fprintln(out, "No catalog entries match")
					return nil
				}
				rows := make([][]string, 0, len(index))
				for _, desc := range index {
					rows = append(rows, []string{
						desc.ID,
						catalog.DisplayName(desc.Name),
						desc.Author,
						strings.Join(desc.Tags, ", "),
						formatBytes(desc.SizeBytes),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "NAME", "AUTHOR", "TAGS", "SIZE"},
					rows, 4,
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newPreloadCommand(ctx *commandContext) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "preload",
		Short: "Warm the preview cache for catalog entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(func(cfg *config.Config, cat *catalog.Client, tc *transport.Client, logger *slog.Logger) error {
				index, err := cat.FetchIndex(cmd.Context())
				if err != nil {
					return err
				}
				if query != "" {
					index = catalog.Search(index, query)
				}
				urls := make([]string, 0, len(index))
				for _, desc := range index {
					if desc.PreviewURL != "" {
						urls = append(urls, desc.PreviewURL)
					}
				}
				out := cmd.OutOrStdout()
				if len(urls) == 0 {
					fmt.Fprintln(out, "No previews to preload")
					return nil
				}

				loader := media.NewLoader(&media.TransportFetcher{Client: tc}, media.OptionsFromConfig(cfg), logger)
				loaded, failed := 0, 0
				for _, done := range loader.PreloadMany(cmd.Context(), urls, media.PriorityHigh) {
					select {
					case err := <-done:
						if err != nil {
							failed++
						} else {
							loaded++
						}
					case <-cmd.Context().Done():
						return cmd.Context().Err()
					}
				}
				status := loader.Status()
				fmt.Fprintf(out, "Preloaded %d previews (%d failed), cache holds %s\n",
					loaded, failed, formatBytes(status.MemoryBytes))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "Only preload entries matching this query")
	return cmd
}
