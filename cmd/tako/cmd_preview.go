package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/menta2k/tako"
	"github.com/menta2k/tako/pkg/render"
)

func newPreviewCmd(a *app) *cobra.Command {
	var index, quality int
	var lossless bool
	var out string
	var opts tako.PreviewOptions
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Render an image chunk with its labelled windows tinted",
		Long: `Writes image chunk --image to --out with every labelled window tinted in
the color of its label. The output format follows the file extension
(png, jpg, webp, gif, tif or bmp).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open()
			if err != nil {
				return err
			}
			img, err := s.Preview(index, opts)
			if err != nil {
				return err
			}
			if err := render.Save(img, out, quality, lossless); err != nil {
				return fmt.Errorf("failed to save preview: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "preview of image %d written to %s\n", index, out)
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVarP(&index, "image", "i", 0, "image chunk index")
	f.IntVar(&opts.MaxDim, "max", 1024, "maximum long side in pixels, 0 for full size")
	f.BoolVar(&opts.Grid, "grid", false, "draw the window grid")
	f.Float64Var(&opts.Opacity, "opacity", 0.35, "label tint opacity (0..1)")
	f.StringVar(&out, "out", "preview.png", "output image file")
	f.IntVar(&quality, "quality", 90, "JPEG/WebP quality (1-100)")
	f.BoolVar(&lossless, "lossless", false, "WebP lossless mode")
	return cmd
}
