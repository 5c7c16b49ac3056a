package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Yutarop/img-cli/internal/pipeline"
	"github.com/Yutarop/img-cli/internal/plot"
	"github.com/Yutarop/img-cli/internal/selection"
)

var (
	maxClusters int
	strictSweep bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep [flags]",
	Short: "Compute elbow and silhouette curves to choose a cluster count",
	Long: `Run K-means for every cluster count from 1 to --max-clusters on the PCA-reduced
images and report the inertia (elbow method) and the mean silhouette
coefficient of each count. Nothing is chosen automatically: inspect the
curves, then run 'imgcli cluster -k N'.

Counts larger than the number of images are skipped, or abort the sweep
with --strict-sweep.`,
	Example: `  # Print the curves for counts 1..10
  imgcli sweep -i ./photos

  # Write elbow.png and silhouette.png
  imgcli sweep -i ./photos --max-clusters 15 --plots ./charts`,
	PreRunE: validateSweepFlags,
	RunE:    runSweep,
}

func init() {
	addPipelineFlags(sweepCmd)

	f := sweepCmd.Flags()
	f.IntVar(&maxClusters, "max-clusters", selection.DefaultMaxClusters, "Largest cluster count to evaluate")
	f.BoolVar(&strictSweep, "strict-sweep", false, "Fail instead of skipping counts larger than the number of images")
}

func validateSweepFlags(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return openLogger(cfg, cmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	defer closeLogger()
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	p, err := pipeline.New(pipelineConfig(runCfg), logger)
	if err != nil {
		return err
	}

	printConfiguration(out, runCfg, "sweep")

	prep, err := p.Prepare(ctx, runCfg.Input)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	curve, err := p.Sweep(ctx, prep)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	if runCfg.Plots != "" {
		if err := renderSweepCharts(plot.NewFileSink(runCfg.Plots), curve); err != nil {
			return err
		}
	}

	rep := newReport(runCfg, prep)
	rep.Curve = curve
	if err := saveReport(ctx, out, runCfg, rep); err != nil {
		return err
	}

	showCurve(out, curve)
	return nil
}
