package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"modvault/internal/catalog"
	"modvault/internal/store"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <artifact-id>...",
		Short: "Download artifacts from the catalog into the local library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(app *app) error {
				out := cmd.OutOrStdout()
				failures := 0
				for _, id := range args {
					desc, err := app.catalog.Lookup(cmd.Context(), id)
					if err != nil {
						printResult(out, id, err.Error(), false)
						failures++
						continue
					}
					if err := app.orchestrator.Download(cmd.Context(), desc); err != nil {
						printResult(out, id, err.Error(), false)
						failures++
						continue
					}
					printResult(out, id, fmt.Sprintf("%s downloaded", catalog.DisplayName(desc.Name)), true)
				}
				if failures > 0 {
					return fmt.Errorf("%d of %d downloads failed", failures, len(args))
				}
				return nil
			})
		},
	}
	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <artifact-id>...",
		Short: "Remove artifacts from the local library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(app *app) error {
				out := cmd.OutOrStdout()
				failures := 0
				for _, id := range args {
					if _, err := app.store.GetArtifact(cmd.Context(), id); errors.Is(err, store.ErrNotFound) {
						printResult(out, id, "not in library", false)
						failures++
						continue
					} else if err != nil {
						printResult(out, id, err.Error(), false)
						failures++
						continue
					}
					if err := app.store.DeleteArtifact(cmd.Context(), id); err != nil {
						printResult(out, id, err.Error(), false)
						failures++
						continue
					}
					if err := os.RemoveAll(filepath.Join(app.cfg.Paths.ModsDir, id)); err != nil {
						printWarning(out, fmt.Sprintf("%s: package files not removed: %v", id, err))
					}
					printResult(out, id, "removed", true)
				}
				if failures > 0 {
					return fmt.Errorf("%d of %d removals failed", failures, len(args))
				}
				return nil
			})
		},
	}
}
