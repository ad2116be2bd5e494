package cmd

import (
	"encoding/json"
	"fmt"
	"image"
	"math"

	"github.com/spf13/cobra"

	watermark "github.com/unwm/watermark-go"
)

// NewRemoveCmd unblends a watermark at an explicit position, a preset
// position or the strongest detection, in that order of precedence.
func NewRemoveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove --watermark WM [--x X --y Y | --preset NAME] BASE",
		Short: "remove a watermark by inverting its alpha blending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wmPath, err := readWatermark(cmd)
			if err != nil {
				return err
			}
			base, err := watermark.DecodeFile(args[0])
			if err != nil {
				return err
			}
			wm, err := watermark.DecodeFile(wmPath)
			if err != nil {
				return err
			}

			f := cmd.Flags()
			p := a.cfg.RemoveParams()
			var at image.Point
			auto := true
			switch {
			case f.Changed("x") || f.Changed("y"):
				at.X, _ = f.GetInt("x")
				at.Y, _ = f.GetInt("y")
				auto = false
			case f.Changed("preset"):
				name, _ := f.GetString("preset")
				preset, err := a.cfg.Preset(name)
				if err != nil {
					return err
				}
				b, w := base.Bounds(), wm.Bounds()
				at = preset.Resolve(b.Dx(), b.Dy(), w.Dx(), w.Dy())
				p = preset.Params(p)
				auto = false
			}
			if p, err = paramOverrides(cmd, p); err != nil {
				return err
			}
			if guess, _ := f.GetBool("guess-alpha"); guess && !auto {
				if adj, ok, err := a.eng.GuessAlpha(cmd.Context(), base, wm, at.X, at.Y, p.TransparencyClamp, p.OpaqueClamp); err != nil {
					return err
				} else if ok {
					a.log.InfoContext(cmd.Context(), "estimated alpha adjust", "alpha_adjust", adj)
					p.AlphaAdjust = adj
				}
			}

			var out *image.NRGBA
			if auto {
				opts, err := a.detectOptions(cmd)
				if err != nil {
					return err
				}
				var det *watermark.Detection
				if out, det, err = a.eng.Clean(cmd.Context(), base, wm, opts, p); err != nil {
					return err
				}
				if det == nil {
					return fmt.Errorf("%s: no watermark detected", args[0])
				}
				at = image.Pt(int(math.Round(det.OffsetX)), int(math.Round(det.OffsetY)))
				a.log.InfoContext(cmd.Context(), "detected", "x", det.OffsetX, "y", det.OffsetY, "score", det.Score, "scale", det.Scale)
			} else if out, err = a.eng.RemoveWatermark(base, wm, at.X, at.Y, p); err != nil {
				return err
			}

			if asBase64, _ := f.GetBool("base64"); asBase64 {
				encoded, err := watermark.EncodePNGToBase64(out)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), encoded)
				return nil
			}
			outPath := outputPath(cmd, args[0], "_unwatermarked")
			if err := watermark.EncodePNGFile(outPath, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Processed %s -> %s [watermark at %d,%d]\n", args[0], outPath, at.X, at.Y)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringP("watermark", "w", "", "watermark image (with alpha)")
	f.Int("x", 0, "watermark x offset")
	f.Int("y", 0, "watermark y offset")
	f.String("preset", "", "named placement from the config or the built-in presets")
	f.Bool("guess-alpha", false, "estimate the alpha adjust before removing")
	f.StringP("out", "o", "", "output path (defaults to <name>_unwatermarked.png)")
	f.Bool("base64", false, "write the cleaned PNG as base64 to stdout")
	paramFlags(cmd)
	detectFlags(cmd)
	return cmd
}

type alphaResult struct {
	Found       bool    `json:"found"`
	AlphaAdjust float64 `json:"alphaAdjust,omitempty"`
}

// NewGuessAlphaCmd estimates the alpha adjust for a placed watermark.
func NewGuessAlphaCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guess-alpha --watermark WM --x X --y Y BASE",
		Short: "estimate the watermark strength",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wmPath, err := readWatermark(cmd)
			if err != nil {
				return err
			}
			p, err := paramOverrides(cmd, a.cfg.RemoveParams())
			if err != nil {
				return err
			}
			x, _ := cmd.Flags().GetInt("x")
			y, _ := cmd.Flags().GetInt("y")
			base, err := watermark.DecodeFile(args[0])
			if err != nil {
				return err
			}
			wm, err := watermark.DecodeFile(wmPath)
			if err != nil {
				return err
			}
			adj, ok, err := a.eng.GuessAlpha(cmd.Context(), base, wm, x, y, p.TransparencyClamp, p.OpaqueClamp)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(alphaResult{Found: ok, AlphaAdjust: adj})
		},
	}
	f := cmd.Flags()
	f.StringP("watermark", "w", "", "watermark image (with alpha)")
	f.Int("x", 0, "watermark x offset")
	f.Int("y", 0, "watermark y offset")
	paramFlags(cmd)
	return cmd
}
