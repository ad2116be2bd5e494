package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	watermark "github.com/unwm/watermark-go"
)

type detectResult struct {
	File       string                `json:"file"`
	Detections []watermark.Detection `json:"detections"`
}

// NewDetectCmd searches one or more base images for a watermark and prints a
// JSON line per image.
func NewDetectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect --watermark WM BASE...",
		Short: "find watermark placements",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wmPath, err := readWatermark(cmd)
			if err != nil {
				return err
			}
			opts, err := a.detectOptions(cmd)
			if err != nil {
				return err
			}
			wm, err := watermark.DecodeFile(wmPath)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, path := range args {
				base, err := watermark.DecodeFile(path)
				if err != nil {
					return err
				}
				dets, err := a.eng.Detect(cmd.Context(), base, wm, opts)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				a.log.InfoContext(cmd.Context(), "detected", "file", path, "count", len(dets))
				if dets == nil {
					dets = []watermark.Detection{}
				}
				if err := enc.Encode(detectResult{File: path, Detections: dets}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringP("watermark", "w", "", "watermark image (with alpha)")
	detectFlags(cmd)
	return cmd
}

// NewRefineCmd snaps an approximate position to the best nearby placement.
func NewRefineCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refine --watermark WM --x X --y Y BASE",
		Short: "refine an approximate watermark position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wmPath, err := readWatermark(cmd)
			if err != nil {
				return err
			}
			opts, err := a.detectOptions(cmd)
			if err != nil {
				return err
			}
			x, _ := cmd.Flags().GetFloat64("x")
			y, _ := cmd.Flags().GetFloat64("y")
			scale, _ := cmd.Flags().GetFloat64("search-scale")

			base, err := watermark.DecodeFile(args[0])
			if err != nil {
				return err
			}
			wm, err := watermark.DecodeFile(wmPath)
			if err != nil {
				return err
			}
			det, err := a.eng.RefinePosition(cmd.Context(), base, wm, x, y, scale, opts)
			if err != nil {
				return err
			}
			if det == nil {
				return fmt.Errorf("no watermark near (%g, %g)", x, y)
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(det)
		},
	}
	f := cmd.Flags()
	f.StringP("watermark", "w", "", "watermark image (with alpha)")
	f.Float64("x", 0, "approximate x offset")
	f.Float64("y", 0, "approximate y offset")
	f.Float64("search-scale", 2, "search window size as a multiple of the watermark size")
	detectFlags(cmd)
	return cmd
}
