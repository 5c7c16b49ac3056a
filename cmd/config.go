package cmd

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Yutarop/img-cli/internal/config"
	"github.com/Yutarop/img-cli/internal/corpus"
	"github.com/Yutarop/img-cli/internal/features"
	"github.com/Yutarop/img-cli/internal/logging"
	"github.com/Yutarop/img-cli/internal/pipeline"
)

// Global flags
var (
	configFile string
	envFiles   []string
	verbose    bool
	logLevel   string
	logFormat  string
	logFile    string
)

// Flags shared by cluster and sweep
var (
	inputDir        string
	extensions      []string
	recursive       bool
	skipInvalid     bool
	workers         int
	width           int
	height          int
	resampler       string
	components      int
	varRatio        float64
	clampComponents bool
	seed            int64
	maxIter         int
	tol             float64
	nInit           int
	plotsDir        string
	reportFile      string
)

// State of the running command, set by openLogger.
var (
	runCfg    config.Config
	logger    *logrus.Logger
	logCloser io.Closer
)

func addPipelineFlags(cmd *cobra.Command) {
	def := config.Default()
	f := cmd.Flags()

	f.StringVarP(&inputDir, "input", "i", def.Input, "Input directory containing images")
	f.StringSliceVar(&extensions, "ext", def.Extensions, "Image file extensions to load")
	f.BoolVarP(&recursive, "recursive", "r", false, "Also load images from subdirectories")
	f.BoolVar(&skipInvalid, "skip-invalid", false, "Skip images that fail to decode instead of aborting")
	f.IntVarP(&workers, "workers", "w", 0, "Number of parallel workers (0 = number of CPUs)")
	f.IntVar(&width, "width", def.Width, "Resize width in pixels")
	f.IntVar(&height, "height", def.Height, "Resize height in pixels")
	f.StringVar(&resampler, "resampler", def.Resampler, fmt.Sprintf("Interpolation %v", features.ResamplerNames()))
	f.IntVar(&components, "components", def.Components, "Number of principal components")
	f.Float64Var(&varRatio, "variance-ratio", 0, "Keep only the components needed to reach this explained-variance ratio (0 = off)")
	f.BoolVar(&clampComponents, "clamp-components", false, "Lower --components to min(images, features) instead of failing")
	f.Int64Var(&seed, "seed", def.KMeans.Seed, "Random seed for k-means")
	f.IntVar(&maxIter, "max-iter", def.KMeans.MaxIter, "Maximum k-means iterations per run")
	f.Float64Var(&tol, "tol", def.KMeans.Tol, "K-means convergence tolerance, relative to the mean feature variance")
	f.IntVar(&nInit, "n-init", def.KMeans.NInit, "Number of k-means restarts")
	f.StringVar(&plotsDir, "plots", "", "Write charts to this directory")
	f.StringVar(&reportFile, "report", "", "Write a YAML or JSON run report to this file")
}

// loadConfig merges defaults, the config file, the environment and the
// flags set on the command line, in increasing order of precedence.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	lookup, err := config.EnvLookup(envFiles...)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return cfg, fmt.Errorf("invalid environment: %w", err)
	}

	applyFlags(cmd, &cfg)
	if verbose {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	set := func(name string, apply func()) {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			apply()
		}
	}

	set("input", func() { cfg.Input = inputDir })
	set("ext", func() { cfg.Extensions = extensions })
	set("recursive", func() { cfg.Recursive = recursive })
	set("skip-invalid", func() { cfg.SkipInvalid = skipInvalid })
	set("workers", func() { cfg.Workers = workers })
	set("width", func() { cfg.Width = width })
	set("height", func() { cfg.Height = height })
	set("resampler", func() { cfg.Resampler = resampler })
	set("components", func() { cfg.Components = components })
	set("variance-ratio", func() { cfg.VarianceRatio = varRatio })
	set("clamp-components", func() { cfg.ClampComponents = clampComponents })
	set("seed", func() { cfg.KMeans.Seed = seed })
	set("max-iter", func() { cfg.KMeans.MaxIter = maxIter })
	set("tol", func() { cfg.KMeans.Tol = tol })
	set("n-init", func() { cfg.KMeans.NInit = nInit })
	set("plots", func() { cfg.Plots = plotsDir })
	set("report", func() { cfg.Report = reportFile })

	set("clusters", func() { cfg.Clusters = clusters })
	set("output", func() { cfg.Output = outputDir })
	set("force", func() { cfg.Force = force })
	set("projection", func() { cfg.Projection = projection })
	set("db", func() { cfg.DB = dbFile })

	set("max-clusters", func() { cfg.MaxClusters = maxClusters })
	set("strict-sweep", func() { cfg.StrictSweep = strictSweep })

	set("log-level", func() { cfg.Log.Level = logLevel })
	set("log-format", func() { cfg.Log.Format = logFormat })
	set("log-file", func() { cfg.Log.File = logFile })
}

func openLogger(cfg config.Config, cmd *cobra.Command) error {
	l, closer, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	runCfg, logger, logCloser = cfg, l, closer
	return nil
}

func closeLogger() {
	if logCloser != nil {
		logCloser.Close()
		logCloser = nil
	}
}

func pipelineConfig(cfg config.Config) pipeline.Config {
	return pipeline.Config{
		Width:     cfg.Width,
		Height:    cfg.Height,
		Resampler: cfg.Resampler,
		Corpus: corpus.Options{
			Extensions:  cfg.Extensions,
			Recursive:   cfg.Recursive,
			Workers:     cfg.Workers,
			SkipInvalid: cfg.SkipInvalid,
		},
		Components:      cfg.Components,
		VarianceRatio:   cfg.VarianceRatio,
		ClampComponents: cfg.ClampComponents,
		MaxClusters:     cfg.MaxClusters,
		StrictSweep:     cfg.StrictSweep,
		KMeans:          cfg.KMeans,
		Workers:         cfg.Workers,
	}
}
