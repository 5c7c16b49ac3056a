// Package config holds the run configuration of imgcli and loads it from
// YAML files and IMGCLI_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"

	"github.com/Yutarop/img-cli/internal/corpus"
	"github.com/Yutarop/img-cli/internal/features"
	"github.com/Yutarop/img-cli/internal/kmeans"
	"github.com/Yutarop/img-cli/internal/project"
	"github.com/Yutarop/img-cli/internal/selection"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "IMGCLI_"

// Defaults.
const (
	DefaultComponents = 50
	DefaultClusters   = 5
)

// Log configures logging.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file,omitempty"`
}

// Config is the full set of run parameters.
type Config struct {
	Input       string   `yaml:"input"`
	Extensions  []string `yaml:"extensions"`
	Recursive   bool     `yaml:"recursive"`
	SkipInvalid bool     `yaml:"skip_invalid"`
	Workers     int      `yaml:"workers"`

	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	Resampler string `yaml:"resampler"`

	Components      int     `yaml:"components"`
	VarianceRatio   float64 `yaml:"variance_ratio,omitempty"`
	ClampComponents bool    `yaml:"clamp_components"`

	MaxClusters int           `yaml:"max_clusters"`
	StrictSweep bool          `yaml:"strict_sweep"`
	Clusters    int           `yaml:"clusters"`
	KMeans      kmeans.Config `yaml:"kmeans"`

	Projection string `yaml:"projection"`
	Output     string `yaml:"output,omitempty"`
	Force      bool   `yaml:"force"`
	Plots      string `yaml:"plots,omitempty"`
	Report     string `yaml:"report,omitempty"`
	DB         string `yaml:"db,omitempty"`

	Log Log `yaml:"log"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Input:      ".",
		Extensions: append([]string(nil), corpus.DefaultExtensions...),
		Width:      features.DefaultWidth,
		Height:     features.DefaultHeight,
		Resampler:  features.DefaultResampler,

		Components:  DefaultComponents,
		MaxClusters: selection.DefaultMaxClusters,
		Clusters:    DefaultClusters,
		KMeans:      kmeans.DefaultConfig(),

		Projection: string(project.PCA),
		Log:        Log{Level: "info", Format: "text"},
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file
// keep their default value.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// EnvLookup resolves variables from the process environment first, then
// from the given .env files. Missing files are an error.
func EnvLookup(envFiles ...string) (LookupFunc, error) {
	fileVars := map[string]string{}
	if len(envFiles) > 0 {
		vars, err := godotenv.Read(envFiles...)
		if err != nil {
			return nil, fmt.Errorf("failed to read env file: %w", err)
		}
		fileVars = vars
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVars[key]
		return v, ok
	}, nil
}

// ApplyEnv overrides fields from IMGCLI_* variables, e.g. IMGCLI_CLUSTERS
// or IMGCLI_KMEANS_SEED. Every malformed value is reported.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	var errs *multierror.Error

	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	integer64 := func(key string, dst *int64) {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("INPUT", &c.Input)
	if v, ok := lookup(EnvPrefix + "EXTENSIONS"); ok {
		c.Extensions = splitList(v)
	}
	boolean("RECURSIVE", &c.Recursive)
	boolean("SKIP_INVALID", &c.SkipInvalid)
	integer("WORKERS", &c.Workers)
	integer("WIDTH", &c.Width)
	integer("HEIGHT", &c.Height)
	str("RESAMPLER", &c.Resampler)
	integer("COMPONENTS", &c.Components)
	float("VARIANCE_RATIO", &c.VarianceRatio)
	boolean("CLAMP_COMPONENTS", &c.ClampComponents)
	integer("MAX_CLUSTERS", &c.MaxClusters)
	boolean("STRICT_SWEEP", &c.StrictSweep)
	integer("CLUSTERS", &c.Clusters)
	integer64("KMEANS_SEED", &c.KMeans.Seed)
	integer("KMEANS_MAX_ITER", &c.KMeans.MaxIter)
	float("KMEANS_TOL", &c.KMeans.Tol)
	integer("KMEANS_N_INIT", &c.KMeans.NInit)
	str("PROJECTION", &c.Projection)
	str("OUTPUT", &c.Output)
	boolean("FORCE", &c.Force)
	str("PLOTS", &c.Plots)
	str("REPORT", &c.Report)
	str("DB", &c.DB)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_FILE", &c.Log.File)

	return errs.ErrorOrNil()
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs *multierror.Error
	add := func(format string, args ...any) {
		errs = multierror.Append(errs, fmt.Errorf(format, args...))
	}

	if c.Input == "" {
		add("input directory is required")
	}
	if c.Width < 1 || c.Height < 1 {
		add("target size must be positive, got %dx%d", c.Width, c.Height)
	}
	if _, err := features.ResamplerByName(c.Resampler); err != nil {
		add("%v", err)
	}
	if c.Components < 1 {
		add("components must be at least 1, got %d", c.Components)
	}
	if c.VarianceRatio < 0 || c.VarianceRatio > 1 {
		add("variance ratio must be between 0 and 1, got %g", c.VarianceRatio)
	}
	if c.MaxClusters < 1 {
		add("max clusters must be at least 1, got %d", c.MaxClusters)
	}
	if c.Clusters < 1 {
		add("clusters must be at least 1, got %d", c.Clusters)
	}
	if c.KMeans.MaxIter < 1 {
		add("kmeans max_iter must be at least 1, got %d", c.KMeans.MaxIter)
	}
	if c.KMeans.Tol < 0 {
		add("kmeans tol must not be negative, got %g", c.KMeans.Tol)
	}
	if c.KMeans.NInit < 1 {
		add("kmeans n_init must be at least 1, got %d", c.KMeans.NInit)
	}
	if c.Workers < 0 {
		add("workers must not be negative, got %d", c.Workers)
	}
	if _, err := project.ParseMethod(c.Projection); err != nil {
		add("%v", err)
	}

	return errs.ErrorOrNil()
}
