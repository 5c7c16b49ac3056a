// Package project maps reduced feature vectors onto a plane for the
// cluster scatter chart.
package project

import (
	"fmt"
	"strings"

	"github.com/danaugrs/go-tsne/tsne"
	"github.com/hashicorp/go-multierror"
	"gonum.org/v1/gonum/mat"
)

// Method selects how points are placed on the plane.
type Method string

const (
	// PCA uses the first two principal axes. The reduced matrix is already
	// expressed in principal axes, so this takes its first two columns.
	PCA Method = "pca"
	// TSNE runs t-SNE on the reduced matrix.
	TSNE Method = "tsne"
)

// ParseMethod accepts "pca" or "tsne", case-insensitively.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(s)); m {
	case PCA, TSNE:
		return m, nil
	case "":
		return PCA, nil
	default:
		return "", fmt.Errorf("unknown projection %q: must be one of pca, tsne", s)
	}
}

// TSNEParams tunes the t-SNE projection. Zero values are replaced by
// defaults derived from the number of points.
type TSNEParams struct {
	Perplexity   float64
	LearningRate float64
	Iterations   int
}

func (p TSNEParams) withDefaults(n int) TSNEParams {
	if p.Perplexity == 0 {
		p.Perplexity = float64(min(n-1, 5))
	}
	if p.LearningRate == 0 {
		p.LearningRate = 25
	}
	if p.Iterations == 0 {
		p.Iterations = 100
	}
	return p
}

func (p TSNEParams) validate(n int) error {
	var result *multierror.Error
	if n < 2 {
		result = multierror.Append(result, fmt.Errorf("t-SNE needs at least 2 points, got %d", n))
	}
	if p.Perplexity <= 0 || p.Perplexity >= float64(n) {
		result = multierror.Append(result,
			fmt.Errorf("perplexity must be in (0, %d), got %g", n, p.Perplexity))
	}
	if p.LearningRate <= 0 {
		result = multierror.Append(result, fmt.Errorf("learning rate must be positive, got %g", p.LearningRate))
	}
	if p.Iterations < 1 {
		result = multierror.Append(result, fmt.Errorf("iterations must be at least 1, got %d", p.Iterations))
	}
	return result.ErrorOrNil()
}

// Project returns an n×2 matrix whose row i places row i of reduced.
func Project(reduced *mat.Dense, method Method, params TSNEParams) (*mat.Dense, error) {
	switch method {
	case PCA, "":
		return principalPlane(reduced), nil
	case TSNE:
		return embedTSNE(reduced, params)
	default:
		return nil, fmt.Errorf("unknown projection %q", method)
	}
}

// principalPlane keeps the first two columns, padding with zeros when the
// matrix has only one.
func principalPlane(reduced *mat.Dense) *mat.Dense {
	n, k := reduced.Dims()
	out := mat.NewDense(n, 2, nil)
	out.Copy(reduced.Slice(0, n, 0, min(k, 2)))
	return out
}

// embedTSNE draws its initial layout from the package-level math/rand
// source, so the layout differs between runs. It only affects the chart.
func embedTSNE(reduced *mat.Dense, params TSNEParams) (*mat.Dense, error) {
	n, _ := reduced.Dims()
	params = params.withDefaults(n)
	if err := params.validate(n); err != nil {
		return nil, fmt.Errorf("invalid t-SNE parameters: %w", err)
	}

	t := tsne.NewTSNE(2, params.Perplexity, params.LearningRate, params.Iterations, false)
	t.EmbedData(reduced, nil)

	rows, cols := t.Y.Dims()
	if rows != n || cols != 2 {
		return nil, fmt.Errorf("unexpected t-SNE output %dx%d for %d points", rows, cols, n)
	}
	out := mat.NewDense(n, 2, nil)
	out.Copy(t.Y)
	return out, nil
}
