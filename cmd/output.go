package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/Yutarop/img-cli/internal/config"
	"github.com/Yutarop/img-cli/internal/organize"
	"github.com/Yutarop/img-cli/internal/pipeline"
	"github.com/Yutarop/img-cli/internal/plot"
	"github.com/Yutarop/img-cli/internal/report"
	"github.com/Yutarop/img-cli/internal/selection"
)

// Chart names, written as <name>.png under --plots.
const (
	chartExplainedVariance = "explained_variance"
	chartClusters          = "clusters"
	chartElbow             = "elbow"
	chartSilhouette        = "silhouette"
)

func printConfiguration(w io.Writer, cfg config.Config, mode string) {
	fmt.Fprintf(w, "\nConfiguration:\n")
	fmt.Fprintf(w, "  Input directory: %s\n", cfg.Input)
	fmt.Fprintf(w, "  Resize: %dx%d (%s)\n", cfg.Width, cfg.Height, cfg.Resampler)
	if cfg.VarianceRatio > 0 {
		fmt.Fprintf(w, "  PCA components: up to %d, variance ratio %.2f\n", cfg.Components, cfg.VarianceRatio)
	} else {
		fmt.Fprintf(w, "  PCA components: %d\n", cfg.Components)
	}
	switch mode {
	case "cluster":
		fmt.Fprintf(w, "  Number of clusters: %d\n", cfg.Clusters)
		if cfg.Output != "" {
			fmt.Fprintf(w, "  Output directory: %s\n", cfg.Output)
		}
	case "sweep":
		fmt.Fprintf(w, "  Cluster counts: 1-%d\n", cfg.MaxClusters)
	}
	fmt.Fprintf(w, "  K-means: seed %d, max iter %d, tol %g, %d restarts\n",
		cfg.KMeans.Seed, cfg.KMeans.MaxIter, cfg.KMeans.Tol, cfg.KMeans.NInit)
	if cfg.Workers > 0 {
		fmt.Fprintf(w, "  Parallel workers: %d\n", cfg.Workers)
	}
	fmt.Fprintln(w)
}

func showClusterSummary(w io.Writer, cfg config.Config, res *pipeline.Result, summary *organize.Summary) {
	fmt.Fprintln(w, "\nCluster Summary:")
	for c, size := range res.Clustering.Sizes() {
		fmt.Fprintf(w, "  %s: %d images\n", organize.FolderName(c), size)
	}
	if summary != nil && summary.Copied != summary.Total {
		fmt.Fprintf(w, "  copied %d of %d images\n", summary.Copied, summary.Total)
	}
	if n := len(res.Corpus.Skipped); n > 0 {
		fmt.Fprintf(w, "  skipped %d unreadable images\n", n)
	}
	if cfg.Plots != "" {
		sink := plot.NewFileSink(cfg.Plots)
		fmt.Fprintf(w, "\nVisualization saved: %s\n", sink.Path(chartClusters))
	}
}

func showCurve(w io.Writer, curve *selection.Curve) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLUSTERS\tINERTIA\tSILHOUETTE\t")
	for _, c := range curve.Candidates {
		switch {
		case c.Skipped:
			fmt.Fprintf(tw, "%d\tskipped\t-\t\n", c.Clusters)
		case c.HasSilhouette:
			fmt.Fprintf(tw, "%d\t%.4g\t%.4f\t\n", c.Clusters, c.Inertia, c.Silhouette)
		default:
			fmt.Fprintf(tw, "%d\t%.4g\t-\t\n", c.Clusters, c.Inertia)
		}
	}
	tw.Flush()
}

func renderClusterCharts(sink plot.Sink, res *pipeline.Result, coords *mat.Dense) error {
	ratios := res.Model.ExplainedVarianceRatio
	if err := sink.Series(plot.SeriesChart{
		Name:   chartExplainedVariance,
		Kind:   plot.Bar,
		Title:  "Explained variance by principal component",
		XLabel: "Principal component",
		YLabel: "Explained variance ratio",
		Values: ratios,
	}); err != nil {
		return err
	}

	n, _ := coords.Dims()
	points := make([][2]float64, n)
	for i := range points {
		points[i] = [2]float64{coords.At(i, 0), coords.At(i, 1)}
	}
	return sink.Scatter(plot.ScatterChart{
		Name:   chartClusters,
		Title:  fmt.Sprintf("Image clusters (k=%d)", res.Clusters),
		XLabel: "Component 1",
		YLabel: "Component 2",
		Points: points,
		Labels: res.Labels(),
	})
}

func renderSweepCharts(sink plot.Sink, curve *selection.Curve) error {
	counts, inertia := curve.Inertia()
	if err := sink.Series(plot.SeriesChart{
		Name:   chartElbow,
		Kind:   plot.Line,
		Title:  "Elbow method",
		XLabel: "Number of clusters",
		YLabel: "Inertia",
		X:      floats(counts),
		Values: inertia,
	}); err != nil {
		return err
	}

	counts, silhouette := curve.Silhouette()
	if len(counts) == 0 {
		return nil
	}
	return sink.Series(plot.SeriesChart{
		Name:   chartSilhouette,
		Kind:   plot.Line,
		Title:  "Silhouette score",
		XLabel: "Number of clusters",
		YLabel: "Mean silhouette coefficient",
		X:      floats(counts),
		Values: silhouette,
	})
}

func floats(ints []int) []float64 {
	out := make([]float64, len(ints))
	for i, v := range ints {
		out[i] = float64(v)
	}
	return out
}

func newReport(cfg config.Config, prep *pipeline.Prepared) *report.Report {
	input, err := filepath.Abs(cfg.Input)
	if err != nil {
		input = cfg.Input
	}
	return &report.Report{
		GeneratedAt:            time.Now(),
		Input:                  input,
		Images:                 prep.Corpus.Len(),
		Skipped:                prep.Corpus.Skipped,
		FeatureLength:          prep.Corpus.Dims(),
		Components:             prep.Components(),
		ExplainedVarianceRatio: prep.Model.ExplainedVarianceRatio,
		Seed:                   cfg.KMeans.Seed,
	}
}

func assignments(res *pipeline.Result, coords *mat.Dense) []report.Assignment {
	out := make([]report.Assignment, len(res.Corpus.Paths))
	for i, path := range res.Corpus.Paths {
		out[i] = report.Assignment{Path: path, Cluster: res.Labels()[i]}
		if coords != nil {
			out[i].X = coords.At(i, 0)
			out[i].Y = coords.At(i, 1)
		}
	}
	return out
}

func saveReport(ctx context.Context, w io.Writer, cfg config.Config, rep *report.Report) error {
	if cfg.Report != "" {
		if err := report.WriteFile(cfg.Report, rep); err != nil {
			return err
		}
		fmt.Fprintf(w, "Report saved: %s\n", cfg.Report)
	}

	if cfg.DB == "" || len(rep.Assignments) == 0 {
		return nil
	}
	store, err := report.OpenSQLite(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer store.Close()

	id, err := store.Save(ctx, rep)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	logger.WithField("action", "catalog_save").Infof("saved run %d to %s", id, cfg.DB)
	fmt.Fprintf(w, "Run %d saved to catalog: %s\n", id, cfg.DB)

	sizes, err := store.ClusterSizes(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to read run %d: %w", id, err)
	}
	clusters := make([]int, 0, len(sizes))
	for c := range sizes {
		clusters = append(clusters, c)
	}
	sort.Ints(clusters)
	for _, c := range clusters {
		fmt.Fprintf(w, "  catalog %s: %d images\n", organize.FolderName(c), sizes[c])
	}
	return nil
}
