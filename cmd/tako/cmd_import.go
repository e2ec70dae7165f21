package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menta2k/tako/internal/utils"
	"github.com/menta2k/tako/pkg/imagestore"
)

func newImportCmd(a *app) *cobra.Command {
	var appendImages bool
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import the input directory into image chunks",
		Long: `Decodes every image under the input directory and stores it as one or
more chunks no larger than storage.max_chunk_bytes. Files that are not
images are skipped.

Without --append the image and classification directories are reset first.
With --append the new chunks are numbered after the existing ones and get
empty shards the next time a session is opened.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if appendImages && !a.cfg.Reset {
				return runAppend(cmd, a)
			}
			a.cfg.Reset = true
			s, err := a.open()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d chunks into %s\n", s.Len(), s.Images().Dir())
			return nil
		},
	}
	cmd.Flags().BoolVar(&appendImages, "append", false, "append to the existing chunks instead of resetting")
	return cmd
}

func runAppend(cmd *cobra.Command, a *app) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	if err := a.cfg.ValidateInputDir(); err != nil {
		return err
	}
	store, err := imagestore.Open(a.cfg.Storage.ImageDir, a.logger)
	if err != nil {
		return err
	}
	stats, err := store.Import(a.cfg.Input.InputDir, a.cfg.Storage.MaxChunkBytes, false)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "files:   %d\n", stats.Files)
	fmt.Fprintf(out, "images:  %d\n", stats.Images)
	fmt.Fprintf(out, "skipped: %d\n", stats.Skipped)
	fmt.Fprintf(out, "chunks:  %d (%s)\n", stats.Chunks, utils.FormatFileSize(stats.Bytes))
	fmt.Fprintf(out, "total:   %d chunks\n", store.Len())
	return nil
}
