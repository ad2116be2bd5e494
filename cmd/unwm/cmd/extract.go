package cmd

import (
	"fmt"
	"image"
	"image/color"

	"github.com/spf13/cobra"

	watermark "github.com/unwm/watermark-go"
)

// NewExtractCmd reconstructs a watermark from two samples over different
// flat backgrounds.
func NewExtractCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract SAMPLE_A SAMPLE_B",
		Short: "reconstruct a watermark from two samples",
		Long:  "SAMPLE_B is placed at (--x, --y) in SAMPLE_A's frame; --window selects the region in SAMPLE_A's frame (defaults to all of it).",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			x, _ := f.GetInt("x")
			y, _ := f.GetInt("y")
			bgA, err := flagColor(cmd, "bg-a")
			if err != nil {
				return err
			}
			bgB, err := flagColor(cmd, "bg-b")
			if err != nil {
				return err
			}
			sa, err := watermark.DecodeFile(args[0])
			if err != nil {
				return err
			}
			sb, err := watermark.DecodeFile(args[1])
			if err != nil {
				return err
			}
			window := sa.Bounds()
			if win, _ := f.GetIntSlice("window"); len(win) > 0 {
				if len(win) != 4 {
					return fmt.Errorf("--window wants x0,y0,x1,y1")
				}
				window = image.Rect(win[0], win[1], win[2], win[3])
			}

			out, ok, err := a.eng.Extract(sa, sb, x, y, window, bgA, bgB)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("window %v does not overlap both samples", window)
			}
			if stretch, _ := f.GetBool("stretch"); stretch {
				out = watermark.ContrastStretch(out)
			}
			outPath := outputPath(cmd, args[0], "_watermark")
			if err := watermark.EncodePNGFile(outPath, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Extracted %dx%d watermark -> %s\n", out.Bounds().Dx(), out.Bounds().Dy(), outPath)
			return nil
		},
	}
	f := cmd.Flags()
	f.Int("x", 0, "x offset of sample B in sample A")
	f.Int("y", 0, "y offset of sample B in sample A")
	f.IntSlice("window", nil, "x0,y0,x1,y1 region in sample A")
	f.String("bg-a", "#000000", "background colour of sample A")
	f.String("bg-b", "#ffffff", "background colour of sample B")
	f.Bool("stretch", false, "contrast stretch the result")
	f.StringP("out", "o", "", "output path (defaults to <A>_watermark.png)")
	return cmd
}

// NewStretchCmd applies the contrast stretch on its own.
func NewStretchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stretch IMAGE",
		Short: "stretch an image's brightness to the full range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := watermark.DecodeFile(args[0])
			if err != nil {
				return err
			}
			outPath := outputPath(cmd, args[0], "_stretched")
			if err := watermark.EncodePNGFile(outPath, watermark.ContrastStretch(img)); err != nil {
				return err
			}
			a.log.DebugContext(cmd.Context(), "stretched", "in", args[0], "out", outPath)
			fmt.Fprintln(cmd.OutOrStdout(), outPath)
			return nil
		},
	}
	cmd.Flags().StringP("out", "o", "", "output path (defaults to <name>_stretched.png)")
	return cmd
}

func flagColor(cmd *cobra.Command, name string) (color.NRGBA, error) {
	s, _ := cmd.Flags().GetString(name)
	c, err := watermark.ParseColor(s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("--%s: %w", name, err)
	}
	return c, nil
}
