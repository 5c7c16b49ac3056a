// Package pca implements principal component analysis on dense feature
// matrices.
package pca

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DimensionError reports a requested number of components that the data
// cannot support.
type DimensionError struct {
	Requested int
	Samples   int
	Features  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("cannot reduce to %d components: need 1 <= k <= min(samples=%d, features=%d)",
		e.Requested, e.Samples, e.Features)
}

// MaxComponents is the largest k Fit accepts for an n×l matrix.
func MaxComponents(n, l int) int {
	return min(n, l)
}

// Model is a fitted projection.
type Model struct {
	// Mean is the per-feature mean removed before projecting.
	Mean []float64
	// Components holds one principal axis per row (k×l), ordered by
	// descending explained variance.
	Components *mat.Dense
	// SingularValues of the kept axes.
	SingularValues []float64
	// ExplainedVariance is the sample variance captured by each kept axis.
	ExplainedVariance []float64
	// ExplainedVarianceRatio is ExplainedVariance divided by the total
	// variance of the input.
	ExplainedVarianceRatio []float64

	// allRatios covers every axis of the decomposition, not only the kept ones.
	allRatios []float64
}

// NumComponents is the number of kept axes.
func (m *Model) NumComponents() int {
	return len(m.SingularValues)
}

// Fit computes the first k principal axes of x (n samples × l features).
func Fit(x *mat.Dense, k int) (*Model, error) {
	n, l := x.Dims()
	if k < 1 || k > MaxComponents(n, l) {
		return nil, &DimensionError{Requested: k, Samples: n, Features: l}
	}

	mean := make([]float64, l)
	for j := 0; j < l; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += x.At(i, j)
		}
		mean[j] = sum / float64(n)
	}

	centered := mat.NewDense(n, l, nil)
	centered.Apply(func(i, j int, v float64) float64 {
		return v - mean[j]
	}, x)

	var svd mat.SVD
	if ok := svd.Factorize(centered, mat.SVDThin); !ok {
		return nil, errors.New("singular value decomposition did not converge")
	}
	values := svd.Values(nil)

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	flipSigns(&u, &v)

	var total float64
	for _, s := range values {
		total += s * s
	}
	dof := float64(max(n-1, 1))

	allRatios := make([]float64, len(values))
	for i, s := range values {
		if total > 0 {
			allRatios[i] = s * s / total
		}
	}

	components := mat.NewDense(k, l, nil)
	components.Copy(v.Slice(0, l, 0, k).T())

	variance := make([]float64, k)
	for i := 0; i < k; i++ {
		variance[i] = values[i] * values[i] / dof
	}

	return &Model{
		Mean:                   mean,
		Components:             components,
		SingularValues:         append([]float64(nil), values[:k]...),
		ExplainedVariance:      variance,
		ExplainedVarianceRatio: append([]float64(nil), allRatios[:k]...),
		allRatios:              allRatios,
	}, nil
}

// flipSigns makes the entry of largest magnitude in each column of u
// positive, flipping the matching column of v, so the decomposition does
// not depend on the solver's sign choice.
func flipSigns(u, v *mat.Dense) {
	rows, cols := u.Dims()
	vRows, _ := v.Dims()
	for j := 0; j < cols; j++ {
		best, bestAbs := 0.0, -1.0
		for i := 0; i < rows; i++ {
			if a := math.Abs(u.At(i, j)); a > bestAbs {
				best, bestAbs = u.At(i, j), a
			}
		}
		if best >= 0 {
			continue
		}
		for i := 0; i < rows; i++ {
			u.Set(i, j, -u.At(i, j))
		}
		for i := 0; i < vRows; i++ {
			v.Set(i, j, -v.At(i, j))
		}
	}
}

// Transform projects x onto the kept axes, returning an n×k matrix whose
// row i corresponds to row i of x.
func (m *Model) Transform(x mat.Matrix) (*mat.Dense, error) {
	n, l := x.Dims()
	if l != len(m.Mean) {
		return nil, errors.Errorf("matrix has %d features, model was fitted on %d", l, len(m.Mean))
	}

	centered := mat.NewDense(n, l, nil)
	centered.Apply(func(i, j int, v float64) float64 {
		return v - m.Mean[j]
	}, x)

	var out mat.Dense
	out.Mul(centered, m.Components.T())
	return &out, nil
}

// FitTransform fits k axes on x and returns the projection of x.
func FitTransform(x *mat.Dense, k int) (*Model, *mat.Dense, error) {
	m, err := Fit(x, k)
	if err != nil {
		return nil, nil, err
	}
	reduced, err := m.Transform(x)
	if err != nil {
		return nil, nil, err
	}
	return m, reduced, nil
}

// Truncate returns a model keeping only the first k axes of m. Projections
// through it equal the first k columns of projections through m.
func (m *Model) Truncate(k int) (*Model, error) {
	if k < 1 || k > m.NumComponents() {
		return nil, errors.Errorf("cannot keep %d of %d components", k, m.NumComponents())
	}
	_, l := m.Components.Dims()
	components := mat.NewDense(k, l, nil)
	components.Copy(m.Components.Slice(0, k, 0, l))

	return &Model{
		Mean:                   m.Mean,
		Components:             components,
		SingularValues:         append([]float64(nil), m.SingularValues[:k]...),
		ExplainedVariance:      append([]float64(nil), m.ExplainedVariance[:k]...),
		ExplainedVarianceRatio: append([]float64(nil), m.ExplainedVarianceRatio[:k]...),
		allRatios:              m.allRatios,
	}, nil
}

// KeepColumns copies the first k columns of reduced.
func KeepColumns(reduced *mat.Dense, k int) *mat.Dense {
	n, _ := reduced.Dims()
	out := mat.NewDense(n, k, nil)
	out.Copy(reduced.Slice(0, n, 0, k))
	return out
}

// ComponentsForVariance returns the smallest number of axes whose
// cumulative explained-variance ratio reaches ratio. It considers every
// axis of the decomposition, so the result may exceed NumComponents.
func (m *Model) ComponentsForVariance(ratio float64) int {
	var cum float64
	for i, r := range m.allRatios {
		cum += r
		if cum >= ratio-1e-12 {
			return i + 1
		}
	}
	return len(m.allRatios)
}

// CumulativeRatio returns the running sum of ExplainedVarianceRatio.
func (m *Model) CumulativeRatio() []float64 {
	out := make([]float64, len(m.ExplainedVarianceRatio))
	var cum float64
	for i, r := range m.ExplainedVarianceRatio {
		cum += r
		out[i] = cum
	}
	return out
}
