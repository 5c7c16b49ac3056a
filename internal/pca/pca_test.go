package pca

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func randomMatrix(n, l int, seed int64) *mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	data := make([]float64, n*l)
	for i := range data {
		data[i] = rng.Float64() * 255
	}
	return mat.NewDense(n, l, data)
}

func TestFitExplainedVarianceProperties(t *testing.T) {
	x := randomMatrix(12, 300, 1)

	m, err := Fit(x, 10)
	require.NoError(t, err)
	require.Len(t, m.ExplainedVarianceRatio, 10)

	var sum float64
	for i, r := range m.ExplainedVarianceRatio {
		assert.GreaterOrEqual(t, r, 0.0)
		assert.LessOrEqual(t, r, 1.0)
		if i > 0 {
			assert.LessOrEqual(t, r, m.ExplainedVarianceRatio[i-1]+1e-12)
		}
		sum += r
	}
	assert.LessOrEqual(t, sum, 1.0+1e-9)

	cum := m.CumulativeRatio()
	assert.InDelta(t, sum, cum[len(cum)-1], 1e-12)
}

func TestFitAllComponentsCaptureEverything(t *testing.T) {
	x := randomMatrix(6, 4, 2)

	m, err := Fit(x, 4)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, floats.Sum(m.ExplainedVarianceRatio), 1e-9)
	assert.Equal(t, 4, m.ComponentsForVariance(1.0))
}

func TestFitExplainedVarianceMatchesColumnVariance(t *testing.T) {
	// Points on the line y = 2x: one axis holds all variance.
	x := mat.NewDense(5, 2, []float64{
		0, 0,
		1, 2,
		2, 4,
		3, 6,
		4, 8,
	})

	m, err := Fit(x, 2)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, m.ExplainedVarianceRatio[0], 1e-9)
	assert.InDelta(t, 0.0, m.ExplainedVarianceRatio[1], 1e-9)
	// var(x) + var(y) with n-1 denominator = 2.5 + 10.
	assert.InDelta(t, 12.5, m.ExplainedVariance[0], 1e-9)

	axis := mat.Row(nil, 0, m.Components)
	assert.InDelta(t, 1.0, floats.Norm(axis, 2), 1e-9)
	assert.InDelta(t, 2.0, math.Abs(axis[1]/axis[0]), 1e-9)
}

func TestTransformShapeAndRowCorrespondence(t *testing.T) {
	x := randomMatrix(9, 40, 3)

	m, reduced, err := FitTransform(x, 5)
	require.NoError(t, err)
	rows, cols := reduced.Dims()
	assert.Equal(t, 9, rows)
	assert.Equal(t, 5, cols)

	// Transforming a single row gives the same coordinates as its row in
	// the batch projection.
	for i := 0; i < rows; i++ {
		single, err := m.Transform(x.Slice(i, i+1, 0, 40))
		require.NoError(t, err)
		for j := 0; j < cols; j++ {
			assert.InDelta(t, reduced.At(i, j), single.At(0, j), 1e-9)
		}
	}

	// Projected columns are centered.
	for j := 0; j < cols; j++ {
		assert.InDelta(t, 0, floats.Sum(mat.Col(nil, j, reduced)), 1e-6)
	}

	_, err = m.Transform(randomMatrix(2, 39, 4))
	assert.Error(t, err)
}

func TestFitDeterministic(t *testing.T) {
	x := randomMatrix(8, 30, 5)

	_, a, err := FitTransform(x, 4)
	require.NoError(t, err)
	_, b, err := FitTransform(x, 4)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, b))
}

func TestFitDimensionError(t *testing.T) {
	x := randomMatrix(12, 30, 6)

	tests := []struct {
		name string
		k    int
		ok   bool
	}{
		{"zero", 0, false},
		{"negative", -1, false},
		{"more than samples", 13, false},
		{"equal to samples", 12, true},
		{"typical", 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fit(x, tt.k)
			if tt.ok {
				require.NoError(t, err)
				return
			}
			var de *DimensionError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tt.k, de.Requested)
			assert.Equal(t, 12, de.Samples)
			assert.Equal(t, 30, de.Features)
		})
	}

	wide := randomMatrix(40, 3, 7)
	_, err := Fit(wide, 4)
	var de *DimensionError
	assert.True(t, errors.As(err, &de))
}

func TestFitConstantData(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{5, 5, 5, 5, 5, 5})

	m, reduced, err := FitTransform(x, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, m.ExplainedVarianceRatio)
	assert.Equal(t, 0.0, mat.Norm(reduced, 2))
}

func TestComponentsForVariance(t *testing.T) {
	// Orthogonal, centered columns with variances in ratio 400 : 4 : 0.04.
	x := mat.NewDense(4, 3, []float64{
		10, 1, 0.1,
		-10, 1, -0.1,
		10, -1, -0.1,
		-10, -1, 0.1,
	})
	m, err := Fit(x, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, m.NumComponents())

	assert.Equal(t, 1, m.ComponentsForVariance(0.9))
	assert.Equal(t, 2, m.ComponentsForVariance(0.999))
	assert.Equal(t, 2, m.ComponentsForVariance(0.9999))
	assert.Equal(t, 3, m.ComponentsForVariance(1.0))
}

func TestTruncateMatchesSmallerFit(t *testing.T) {
	x := randomMatrix(10, 40, 5)

	full, reduced, err := FitTransform(x, 8)
	require.NoError(t, err)
	small, want, err := FitTransform(x, 3)
	require.NoError(t, err)

	got, err := full.Truncate(3)
	require.NoError(t, err)
	assert.Equal(t, 3, got.NumComponents())
	assert.InDeltaSlice(t, small.SingularValues, got.SingularValues, 1e-9)
	assert.InDeltaSlice(t, small.ExplainedVarianceRatio, got.ExplainedVarianceRatio, 1e-12)
	assert.True(t, mat.EqualApprox(small.Components, got.Components, 1e-9))
	assert.Equal(t, full.ComponentsForVariance(0.99), got.ComponentsForVariance(0.99))

	assert.True(t, mat.EqualApprox(want, KeepColumns(reduced, 3), 1e-9))
	projected, err := got.Transform(x)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, projected, 1e-9))

	_, err = full.Truncate(0)
	assert.Error(t, err)
	_, err = full.Truncate(9)
	assert.Error(t, err)
}
