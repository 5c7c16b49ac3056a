package selection

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrSilhouetteUndefined is returned when a labelling has fewer than two
// non-empty clusters, or one cluster per sample.
var ErrSilhouetteUndefined = errors.New("silhouette undefined: need between 2 and n-1 non-empty clusters")

// SilhouetteSamples returns the silhouette coefficient of every row of x
// under labels, using Euclidean distance. A row alone in its cluster
// scores 0.
func SilhouetteSamples(x mat.Matrix, labels []int) ([]float64, error) {
	n, _ := x.Dims()
	if len(labels) != n {
		return nil, errors.Errorf("got %d labels for %d samples", len(labels), n)
	}

	sizes := map[int]int{}
	for _, l := range labels {
		sizes[l]++
	}
	if len(sizes) < 2 || len(sizes) >= n {
		return nil, ErrSilhouetteUndefined
	}

	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(nil, i, x)
	}

	scores := make([]float64, n)
	sums := make(map[int]float64, len(sizes))
	for i := 0; i < n; i++ {
		if sizes[labels[i]] == 1 {
			continue
		}
		clear(sums)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			sums[labels[j]] += floats.Distance(rows[i], rows[j], 2)
		}

		a := sums[labels[i]] / float64(sizes[labels[i]]-1)
		b := -1.0
		for l, s := range sums {
			if l == labels[i] {
				continue
			}
			if mean := s / float64(sizes[l]); b < 0 || mean < b {
				b = mean
			}
		}

		if m := max(a, b); m > 0 {
			scores[i] = (b - a) / m
		}
	}
	return scores, nil
}

// Silhouette returns the mean silhouette coefficient over all rows.
func Silhouette(x mat.Matrix, labels []int) (float64, error) {
	scores, err := SilhouetteSamples(x, labels)
	if err != nil {
		return 0, err
	}
	return floats.Sum(scores) / float64(len(scores)), nil
}
