package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"modvault/internal/config"
	"modvault/internal/fileutil"
	"modvault/internal/store"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export <artifact-id> <destination>",
		Short: "Copy an installed package out of the library with verification",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(app *app) error {
				id := args[0]
				artifact, err := app.store.GetArtifact(cmd.Context(), id)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("artifact %s is not in the library", id)
				} else if err != nil {
					return err
				}
				if artifact.LocalPath == "" {
					return fmt.Errorf("artifact %s has no local package", id)
				}

				dest, err := config.ExpandPath(args[1])
				if err != nil {
					return err
				}
				dest = filepath.Join(dest, id)

				copied, err := fileutil.CopyTreeVerified(artifact.LocalPath, dest)
				if err != nil {
					return fmt.Errorf("export %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d files to %s\n", copied, dest)
				return nil
			})
		},
	}
}
