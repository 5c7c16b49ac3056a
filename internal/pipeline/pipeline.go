// Package pipeline wires the corpus loader, the principal component
// reducer and k-means into the two runs imgcli offers: a sweep over
// candidate cluster counts and a single partition at a chosen count.
package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/Yutarop/img-cli/internal/corpus"
	"github.com/Yutarop/img-cli/internal/features"
	"github.com/Yutarop/img-cli/internal/kmeans"
	"github.com/Yutarop/img-cli/internal/logging"
	"github.com/Yutarop/img-cli/internal/pca"
	"github.com/Yutarop/img-cli/internal/selection"
)

// Config holds the parameters of the numeric pipeline.
type Config struct {
	Width     int
	Height    int
	Resampler string
	Corpus    corpus.Options

	// Components is the number of principal axes kept.
	Components int
	// VarianceRatio, when positive, lowers Components to the smallest
	// number of axes reaching that cumulative explained-variance ratio.
	VarianceRatio float64
	// ClampComponents lowers Components to min(samples, features) instead
	// of failing with a pca.DimensionError.
	ClampComponents bool

	MaxClusters int
	StrictSweep bool
	KMeans      kmeans.Config
	// Workers bounds the sweep's concurrent fits.
	Workers int
}

// DefaultConfig returns the documented defaults: 100×100 bilinear resize,
// 50 components and a sweep up to 10 clusters with seed 42.
func DefaultConfig() Config {
	return Config{
		Width:       features.DefaultWidth,
		Height:      features.DefaultHeight,
		Resampler:   features.DefaultResampler,
		Components:  50,
		MaxClusters: selection.DefaultMaxClusters,
		KMeans:      kmeans.DefaultConfig(),
	}
}

// Prepared is a loaded and reduced corpus. Row i of Reduced is the image
// Corpus.Paths[i].
type Prepared struct {
	Corpus  *corpus.Corpus
	Model   *pca.Model
	Reduced *mat.Dense
}

// Components is the number of columns of Reduced.
func (p *Prepared) Components() int {
	_, k := p.Reduced.Dims()
	return k
}

// Result is a partitioned corpus.
type Result struct {
	*Prepared
	Clusters   int
	Clustering *kmeans.Result
}

// Labels returns the cluster of every image, aligned with Corpus.Paths.
func (r *Result) Labels() []int {
	return r.Clustering.Labels
}

// Pipeline runs the numeric stages on a directory.
type Pipeline struct {
	cfg    Config
	loader *corpus.Loader
	logger logrus.FieldLogger
}

// New builds a pipeline. A nil logger discards output.
func New(cfg Config, logger logrus.FieldLogger) (*Pipeline, error) {
	resampler, err := features.ResamplerByName(cfg.Resampler)
	if err != nil {
		return nil, err
	}
	extractor, err := features.NewExtractor(cfg.Width, cfg.Height, resampler)
	if err != nil {
		return nil, err
	}
	if cfg.Components < 1 {
		return nil, errors.Errorf("components must be at least 1, got %d", cfg.Components)
	}
	if cfg.VarianceRatio < 0 || cfg.VarianceRatio > 1 {
		return nil, errors.Errorf("variance ratio must be between 0 and 1, got %g", cfg.VarianceRatio)
	}

	logger = logging.OrDiscard(logger)
	return &Pipeline{
		cfg:    cfg,
		loader: corpus.NewLoader(extractor, cfg.Corpus, logger),
		logger: logger,
	}, nil
}

// Prepare loads dir and reduces its feature matrix.
func (p *Pipeline) Prepare(ctx context.Context, dir string) (*Prepared, error) {
	start := time.Now()
	c, err := p.loader.Load(ctx, dir)
	if err != nil {
		return nil, err
	}
	p.logger.WithFields(logrus.Fields{
		"action":   "corpus_load",
		"images":   c.Len(),
		"skipped":  len(c.Skipped),
		"features": c.Dims(),
		"took":     time.Since(start).String(),
	}).Info("extracted features")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	model, reduced, err := p.Reduce(c)
	if err != nil {
		return nil, err
	}
	return &Prepared{Corpus: c, Model: model, Reduced: reduced}, nil
}

// Reduce fits the principal axes of c and projects it onto them.
func (p *Pipeline) Reduce(c *corpus.Corpus) (*pca.Model, *mat.Dense, error) {
	n, l := c.Features.Dims()
	k := p.cfg.Components
	if limit := pca.MaxComponents(n, l); k > limit && p.cfg.ClampComponents {
		p.logger.WithFields(logrus.Fields{
			"action":    "pca_fit",
			"requested": k,
			"samples":   n,
			"features":  l,
		}).Warnf("clamping components to %d", limit)
		k = limit
	}

	start := time.Now()
	model, reduced, err := pca.FitTransform(c.Features, k)
	if err != nil {
		return nil, nil, errors.Wrap(err, "dimensionality reduction")
	}

	if r := p.cfg.VarianceRatio; r > 0 {
		if kr := model.ComponentsForVariance(r); kr < k {
			p.logger.WithFields(logrus.Fields{
				"action":         "pca_fit",
				"variance_ratio": r,
				"components":     kr,
			}).Info("reducing components to reach variance ratio")
			model, err = model.Truncate(kr)
			if err != nil {
				return nil, nil, errors.Wrap(err, "dimensionality reduction")
			}
			reduced = pca.KeepColumns(reduced, kr)
		}
	}

	cum := model.CumulativeRatio()
	p.logger.WithFields(logrus.Fields{
		"action":     "pca_fit",
		"components": model.NumComponents(),
		"explained":  cum[len(cum)-1],
		"took":       time.Since(start).String(),
	}).Info("fitted principal components")
	return model, reduced, nil
}

// Sweep computes the elbow and silhouette curves on prep.
func (p *Pipeline) Sweep(ctx context.Context, prep *Prepared) (*selection.Curve, error) {
	return selection.Sweep(ctx, prep.Reduced, selection.Options{
		MaxClusters: p.cfg.MaxClusters,
		KMeans:      p.cfg.KMeans,
		Workers:     p.cfg.Workers,
		Strict:      p.cfg.StrictSweep,
		Logger:      p.logger,
	})
}

// Partition assigns every image of prep to one of clusters groups.
func (p *Pipeline) Partition(prep *Prepared, clusters int) (*kmeans.Result, error) {
	res, err := kmeans.Fit(prep.Reduced, clusters, p.cfg.KMeans)
	if err != nil {
		return nil, errors.Wrap(err, "partitioning")
	}
	p.logger.WithFields(logrus.Fields{
		"action":     "kmeans_fit",
		"clusters":   clusters,
		"inertia":    res.Inertia,
		"iterations": res.Iterations,
		"converged":  res.Converged,
	}).Info("partitioned images")
	return res, nil
}

// Run prepares dir and partitions it into clusters groups.
func (p *Pipeline) Run(ctx context.Context, dir string, clusters int) (*Result, error) {
	if clusters < 1 {
		return nil, errors.Wrap(kmeans.Validate(clusters, 1), "partitioning")
	}
	prep, err := p.Prepare(ctx, dir)
	if err != nil {
		return nil, err
	}
	res, err := p.Partition(prep, clusters)
	if err != nil {
		return nil, err
	}
	return &Result{Prepared: prep, Clusters: clusters, Clustering: res}, nil
}
