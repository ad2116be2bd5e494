// Package cmd holds the cobra commands of the unwm CLI.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	watermark "github.com/unwm/watermark-go"
	"github.com/unwm/watermark-go/config"
	"github.com/unwm/watermark-go/internal/logging"
	"github.com/unwm/watermark-go/match"
)

// app is the state shared by the subcommands, filled in by the root's
// PersistentPreRunE.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	eng    *watermark.Engine
	closer io.Closer
}

func NewRoot(ctx context.Context, gitsha string) *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "unwm",
		Short:         "detect, remove and extract semi-transparent watermarks",
		Long:          "unwm locates a known watermark in images, inverts its alpha blending, estimates its strength and reconstructs unknown watermarks from two samples.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closer != nil {
				return a.closer.Close()
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			printCommandTree(cmd.OutOrStdout(), cmd, 0)
		},
	}
	cmd.SetContext(ctx)
	cmd.AddCommand(
		NewVersionCmd(gitsha),
		NewDetectCmd(a),
		NewRefineCmd(a),
		NewRemoveCmd(a),
		NewGuessAlphaCmd(a),
		NewExtractCmd(a),
		NewStretchCmd(a),
		NewPresetsCmd(a),
		NewServeCmd(a),
	)
	pf := cmd.PersistentFlags()
	pf.String("config", "unwm.yaml", "YAML config file (missing file means defaults)")
	pf.String("log-level", "", "Log level (DEBUG, INFO, WARN, ERROR); overrides the config")
	pf.Bool("log-json", false, "Log as JSON; overrides the config")
	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = strings.ToLower(lvl)
	}
	if cmd.Flags().Changed("log-json") {
		cfg.Log.JSON, _ = cmd.Flags().GetBool("log-json")
	}
	log, closer, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(log)
	a.cfg, a.log, a.closer = cfg, log, closer
	a.eng = watermark.NewEngine(watermark.WithLogger(log), watermark.WithWorkers(cfg.Detect.Workers))
	return nil
}

func printCommandTree(w io.Writer, cmd *cobra.Command, indent int) {
	fmt.Fprintln(w, strings.Repeat("\t", indent), cmd.Use+":", cmd.Short)
	for _, subCmd := range cmd.Commands() {
		printCommandTree(w, subCmd, indent+1)
	}
}

func NewVersionCmd(gitsha string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "git sha for this build",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), gitsha)
		},
	}
}

// detectFlags registers the detection overrides shared by detect, refine
// and remove.
func detectFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64("threshold", 0, "match threshold in (0, 1]")
	f.Int("max-results", 0, "maximum detections (0 = no cap)")
	f.String("method", "", "correlation method (ccorr|ccoeff)")
	f.Bool("verify", false, "apply the colour/overflow verification penalty")
}

func (a *app) detectOptions(cmd *cobra.Command) (watermark.DetectOptions, error) {
	opts := a.cfg.DetectOptions()
	f := cmd.Flags()
	if f.Changed("threshold") {
		opts.MatchThreshold, _ = f.GetFloat64("threshold")
	}
	if f.Changed("max-results") {
		opts.MaxResults, _ = f.GetInt("max-results")
	}
	if f.Changed("verify") {
		opts.Verify, _ = f.GetBool("verify")
	}
	if f.Changed("method") {
		m, _ := f.GetString("method")
		var err error
		if opts.Method, err = match.ParseMethod(m); err != nil {
			return opts, err
		}
	}
	return opts, opts.Validate()
}

// paramFlags registers the unblend parameter overrides.
func paramFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64("alpha-adjust", 1, "alpha multiplier")
	f.Int("transparency-clamp", 0, "leave pixels with adjusted alpha at or below this untouched")
	f.Int("opaque-clamp", 255, "blend with the left neighbour above this adjusted alpha")
}

func paramOverrides(cmd *cobra.Command, p watermark.Params) (watermark.Params, error) {
	f := cmd.Flags()
	if f.Changed("alpha-adjust") {
		p.AlphaAdjust, _ = f.GetFloat64("alpha-adjust")
	}
	if f.Changed("transparency-clamp") {
		p.TransparencyClamp, _ = f.GetInt("transparency-clamp")
	}
	if f.Changed("opaque-clamp") {
		p.OpaqueClamp, _ = f.GetInt("opaque-clamp")
	}
	return p, p.Validate()
}

func readWatermark(cmd *cobra.Command) (string, error) {
	path, _ := cmd.Flags().GetString("watermark")
	if path == "" {
		return "", fmt.Errorf("--watermark is required")
	}
	return path, nil
}

// outputPath defaults to <name><suffix>.png next to the input.
func outputPath(cmd *cobra.Command, input, suffix string) string {
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		return out
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(filepath.Dir(input), base+suffix+".png")
}
