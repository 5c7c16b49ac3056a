// Package selection computes the quality curves used to pick a cluster
// count by hand: inertia for every candidate count (elbow method) and the
// mean silhouette coefficient from two clusters upwards.
//
// The package never picks a count itself.
package selection

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/Yutarop/img-cli/internal/kmeans"
	"github.com/Yutarop/img-cli/internal/logging"
)

// DefaultMaxClusters is the largest candidate count swept by default.
const DefaultMaxClusters = 10

// Options configures a sweep.
type Options struct {
	// MaxClusters is the largest candidate count; candidates are 1..MaxClusters.
	MaxClusters int
	// KMeans is used unchanged, seed included, for every candidate.
	KMeans kmeans.Config
	// Workers bounds how many candidates are fitted at once.
	Workers int
	// Strict aborts the sweep on a candidate larger than the sample count
	// instead of skipping it.
	Strict bool
	Logger logrus.FieldLogger
}

// Candidate holds the quality signals for one cluster count.
type Candidate struct {
	Clusters      int     `yaml:"clusters" json:"clusters"`
	Inertia       float64 `yaml:"inertia" json:"inertia"`
	Silhouette    float64 `yaml:"silhouette,omitempty" json:"silhouette,omitempty"`
	HasSilhouette bool    `yaml:"has_silhouette" json:"has_silhouette"`
	Iterations    int     `yaml:"iterations,omitempty" json:"iterations,omitempty"`
	Skipped       bool    `yaml:"skipped,omitempty" json:"skipped,omitempty"`
	Reason        string  `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// Curve is the result of a sweep, one candidate per count in order.
type Curve struct {
	MaxClusters int         `yaml:"max_clusters" json:"max_clusters"`
	Candidates  []Candidate `yaml:"candidates" json:"candidates"`
}

// Inertia returns the evaluated counts and their inertia.
func (c *Curve) Inertia() ([]int, []float64) {
	var counts []int
	var values []float64
	for _, cand := range c.Candidates {
		if cand.Skipped {
			continue
		}
		counts = append(counts, cand.Clusters)
		values = append(values, cand.Inertia)
	}
	return counts, values
}

// Silhouette returns the counts with a defined silhouette and its value.
func (c *Curve) Silhouette() ([]int, []float64) {
	var counts []int
	var values []float64
	for _, cand := range c.Candidates {
		if cand.Skipped || !cand.HasSilhouette {
			continue
		}
		counts = append(counts, cand.Clusters)
		values = append(values, cand.Silhouette)
	}
	return counts, values
}

// Sweep fits k-means for every count in [1, MaxClusters] on x.
func Sweep(ctx context.Context, x mat.Matrix, opts Options) (*Curve, error) {
	if opts.MaxClusters < 1 {
		return nil, errors.Errorf("max clusters must be at least 1, got %d", opts.MaxClusters)
	}
	if opts.Workers < 1 {
		opts.Workers = runtime.NumCPU()
	}
	logger := logging.OrDiscard(opts.Logger)
	n, _ := x.Dims()

	if opts.Strict && opts.MaxClusters > n {
		return nil, errors.Wrap(kmeans.Validate(opts.MaxClusters, n), "cluster count sweep")
	}

	curve := &Curve{
		MaxClusters: opts.MaxClusters,
		Candidates:  make([]Candidate, opts.MaxClusters),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := range curve.Candidates {
		i := i
		c := i + 1
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cand, err := evaluate(x, c, opts.KMeans)
			if err != nil {
				return err
			}
			if cand.Skipped {
				logger.WithFields(logrus.Fields{
					"action":   "cluster_sweep",
					"clusters": c,
					"samples":  n,
				}).Warn("skipping candidate cluster count")
			} else {
				logger.WithFields(logrus.Fields{
					"action":     "cluster_sweep",
					"clusters":   c,
					"inertia":    cand.Inertia,
					"silhouette": cand.Silhouette,
					"iterations": cand.Iterations,
				}).Debug("evaluated candidate")
			}
			curve.Candidates[i] = cand
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return curve, nil
}

func evaluate(x mat.Matrix, c int, cfg kmeans.Config) (Candidate, error) {
	cand := Candidate{Clusters: c}

	res, err := kmeans.Fit(x, c, cfg)
	if err != nil {
		var ice *kmeans.InvalidClusterCountError
		if errors.As(err, &ice) {
			cand.Skipped = true
			cand.Reason = err.Error()
			return cand, nil
		}
		return cand, err
	}
	cand.Inertia = res.Inertia
	cand.Iterations = res.Iterations

	if c < 2 {
		return cand, nil
	}
	s, err := Silhouette(x, res.Labels)
	switch {
	case errors.Is(err, ErrSilhouetteUndefined):
		cand.Reason = err.Error()
	case err != nil:
		return cand, err
	default:
		cand.Silhouette = s
		cand.HasSilhouette = true
	}
	return cand, nil
}
