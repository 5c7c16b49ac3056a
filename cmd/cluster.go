package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/Yutarop/img-cli/internal/config"
	"github.com/Yutarop/img-cli/internal/organize"
	"github.com/Yutarop/img-cli/internal/pipeline"
	"github.com/Yutarop/img-cli/internal/plot"
	"github.com/Yutarop/img-cli/internal/project"
)

var (
	clusters   int
	outputDir  string
	force      bool
	projection string
	dbFile     string
)

var clusterCmd = &cobra.Command{
	Use:   "cluster [flags]",
	Short: "Cluster images by visual similarity",
	Long: `Cluster images based on visual similarity using raw RGB features, PCA and K-means.
By default, it processes all images in the current directory.

The clustering process involves:
1. Loading images and flattening each one into an RGB vector
2. PCA dimensionality reduction
3. K-means clustering with a fixed seed
4. Optionally organizing images into cluster-specific folders
5. Optionally writing charts, a run report and a SQLite catalog entry`,
	Example: `  # Cluster images in current directory into 5 groups
  imgcli cluster

  # Specify input and output directories
  imgcli cluster -i ./photos -o ./clustered_photos

  # Use 3 clusters and 10 principal components
  imgcli cluster -k 3 --components 10

  # Write charts and a report
  imgcli cluster -i ./photos --plots ./charts --report run.yaml

  # Force overwrite existing output
  imgcli cluster -o ./clustered_photos --force`,
	PreRunE: validateClusterFlags,
	RunE:    runCluster,
}

func init() {
	addPipelineFlags(clusterCmd)

	f := clusterCmd.Flags()
	f.IntVarP(&clusters, "clusters", "k", config.DefaultClusters, "Number of clusters")
	f.StringVarP(&outputDir, "output", "o", "", "Copy images into cluster_<n> folders under this directory")
	f.BoolVar(&force, "force", false, "Force overwrite existing output directory")
	f.StringVar(&projection, "projection", string(project.PCA), "2-D projection of the cluster chart (pca, tsne)")
	f.StringVar(&dbFile, "db", "", "Append the assignments to this SQLite catalog")
}

func validateClusterFlags(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Check output directory conflicts
	if cfg.Output != "" && !cfg.Force {
		if _, err := os.Stat(cfg.Output); err == nil {
			return fmt.Errorf("output directory already exists: %s (use --force to overwrite)", cfg.Output)
		}
	}

	return openLogger(cfg, cmd)
}

func runCluster(cmd *cobra.Command, args []string) error {
	defer closeLogger()
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	p, err := pipeline.New(pipelineConfig(runCfg), logger)
	if err != nil {
		return err
	}

	printConfiguration(out, runCfg, "cluster")
	fmt.Fprintln(out, "Starting image clustering pipeline...")

	res, err := p.Run(ctx, runCfg.Input, runCfg.Clusters)
	if err != nil {
		return fmt.Errorf("clustering pipeline failed: %w", err)
	}

	var summary *organize.Summary
	if runCfg.Output != "" {
		if err := organize.PrepareOutput(runCfg.Output, runCfg.Force); err != nil {
			return err
		}
		summary, err = organize.New(runCfg.Workers, logger).
			Organize(ctx, res.Corpus.Paths, res.Labels(), res.Clusters, runCfg.Output)
		if err != nil {
			return fmt.Errorf("failed to organize images: %w", err)
		}
	}

	var coords *mat.Dense
	if runCfg.Plots != "" || runCfg.Report != "" || runCfg.DB != "" {
		method, err := project.ParseMethod(runCfg.Projection)
		if err != nil {
			return err
		}
		coords, err = project.Project(res.Reduced, method, project.TSNEParams{})
		if err != nil {
			return fmt.Errorf("failed to project clusters: %w", err)
		}
	}

	if runCfg.Plots != "" {
		if err := renderClusterCharts(plot.NewFileSink(runCfg.Plots), res, coords); err != nil {
			return err
		}
	}

	rep := newReport(runCfg, res.Prepared)
	rep.Clusters = res.Clusters
	rep.Inertia = res.Clustering.Inertia
	rep.Assignments = assignments(res, coords)
	if err := saveReport(ctx, out, runCfg, rep); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nClustering completed successfully!\n")
	if runCfg.Output != "" {
		fmt.Fprintf(out, "Results saved to: %s\n", runCfg.Output)
	}
	showClusterSummary(out, runCfg, res, summary)
	return nil
}
