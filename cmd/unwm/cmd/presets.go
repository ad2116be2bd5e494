package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewPresetsCmd lists the built-in and configured placements.
func NewPresetsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "list named watermark placements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			presets, err := a.cfg.AllPresets()
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(presets)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tANCHOR\tOFFSET\tALPHA")
			for _, p := range presets {
				alpha := "-"
				if p.AlphaAdjust > 0 {
					alpha = fmt.Sprintf("%.2f", p.AlphaAdjust)
				}
				fmt.Fprintf(tw, "%s\t%s\t%g,%g\t%s\n", p.Name, p.Anchor, p.OffsetX, p.OffsetY, alpha)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Bool("json", false, "print as JSON")
	return cmd
}
