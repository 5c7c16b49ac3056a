// Package kmeans partitions the rows of a matrix into k groups by
// minimising the within-cluster sum of squared Euclidean distances.
//
// Centers are seeded with greedy k-means++ and refined with Lloyd
// iterations. All randomness comes from a generator built from
// Config.Seed, so a given input, k and seed always yield the same labels.
package kmeans

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Defaults for Config.
const (
	DefaultSeed    int64   = 42
	DefaultMaxIter         = 300
	DefaultTol     float64 = 1e-4
	DefaultNInit           = 10
)

// Config holds the parameters shared by every fit.
type Config struct {
	// Seed initialises the random generator used for center seeding.
	Seed int64 `yaml:"seed" json:"seed"`
	// MaxIter caps the Lloyd iterations of a single run.
	MaxIter int `yaml:"max_iter" json:"max_iter"`
	// Tol is the convergence tolerance, relative to the mean per-feature
	// variance of the data. A run stops once the squared center shift of an
	// iteration falls to or below it.
	Tol float64 `yaml:"tol" json:"tol"`
	// NInit is the number of seeded runs; the one with lowest inertia wins.
	NInit int `yaml:"n_init" json:"n_init"`
}

// DefaultConfig returns the default parameters.
func DefaultConfig() Config {
	return Config{
		Seed:    DefaultSeed,
		MaxIter: DefaultMaxIter,
		Tol:     DefaultTol,
		NInit:   DefaultNInit,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxIter < 1 {
		c.MaxIter = DefaultMaxIter
	}
	if c.Tol < 0 {
		c.Tol = DefaultTol
	}
	if c.NInit < 1 {
		c.NInit = DefaultNInit
	}
	return c
}

// InvalidClusterCountError reports a cluster count outside [1, samples].
type InvalidClusterCountError struct {
	Requested int
	Samples   int
}

func (e *InvalidClusterCountError) Error() string {
	return fmt.Sprintf("invalid cluster count %d: must be between 1 and the number of samples (%d)",
		e.Requested, e.Samples)
}

// Validate checks that k clusters can be formed from n samples.
func Validate(k, n int) error {
	if k < 1 || k > n {
		return &InvalidClusterCountError{Requested: k, Samples: n}
	}
	return nil
}

// Result is the outcome of a fit.
type Result struct {
	// Labels holds one cluster index in [0,k) per input row.
	Labels []int
	// Centers holds one center per row (k×d).
	Centers *mat.Dense
	// Inertia is the sum of squared distances of rows to their center.
	Inertia float64
	// Iterations of the winning run.
	Iterations int
	// Converged reports whether the winning run stopped before MaxIter.
	Converged bool
}

// Sizes returns the number of rows assigned to each cluster.
func (r *Result) Sizes() []int {
	k, _ := r.Centers.Dims()
	sizes := make([]int, k)
	for _, l := range r.Labels {
		sizes[l]++
	}
	return sizes
}

// Partition returns one label in [0,k) per row of x.
func Partition(x mat.Matrix, k int, cfg Config) ([]int, error) {
	res, err := Fit(x, k, cfg)
	if err != nil {
		return nil, err
	}
	return res.Labels, nil
}

// Fit clusters the rows of x into k groups.
func Fit(x mat.Matrix, k int, cfg Config) (*Result, error) {
	n, _ := x.Dims()
	if err := Validate(k, n); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	rows := toRows(x)
	tol := cfg.Tol * meanVariance(x)
	rng := rand.New(rand.NewSource(cfg.Seed))

	var best *Result
	for run := 0; run < cfg.NInit; run++ {
		centers := seedPlusPlus(rows, k, rng)
		res := lloyd(rows, centers, cfg.MaxIter, tol)
		if best == nil || res.Inertia < best.Inertia {
			best = res
		}
	}
	return best, nil
}

func toRows(x mat.Matrix) [][]float64 {
	n, _ := x.Dims()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = mat.Row(nil, i, x)
	}
	return rows
}

// meanVariance is the mean over features of the per-feature population
// variance.
func meanVariance(x mat.Matrix) float64 {
	n, d := x.Dims()
	if d == 0 {
		return 0
	}
	col := make([]float64, n)
	var total float64
	for j := 0; j < d; j++ {
		mat.Col(col, j, x)
		total += stat.PopVariance(col, nil)
	}
	return total / float64(d)
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

// seedPlusPlus picks k initial centers with greedy k-means++: each new
// center is the best of several candidates drawn with probability
// proportional to the squared distance to the nearest chosen center.
func seedPlusPlus(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(rows)
	trials := 2 + int(math.Log(float64(k)))

	centers := make([][]float64, 0, k)
	first := rng.Intn(n)
	centers = append(centers, append([]float64(nil), rows[first]...))

	closest := make([]float64, n)
	var potential float64
	for i, r := range rows {
		closest[i] = sqDist(r, centers[0])
		potential += closest[i]
	}

	for len(centers) < k {
		bestCandidate := -1
		var bestPotential float64
		var bestClosest []float64

		for t := 0; t < trials; t++ {
			cand := sample(closest, potential, rng)
			next := make([]float64, n)
			var pot float64
			for i, r := range rows {
				next[i] = math.Min(closest[i], sqDist(r, rows[cand]))
				pot += next[i]
			}
			if bestCandidate < 0 || pot < bestPotential {
				bestCandidate, bestPotential, bestClosest = cand, pot, next
			}
		}

		centers = append(centers, append([]float64(nil), rows[bestCandidate]...))
		closest, potential = bestClosest, bestPotential
	}
	return centers
}

// sample draws an index with probability weights[i]/total, or uniformly
// when every weight is zero (all rows coincide with chosen centers).
func sample(weights []float64, total float64, rng *rand.Rand) int {
	if total <= 0 {
		return rng.Intn(len(weights))
	}
	target := rng.Float64() * total
	var cum float64
	for i, w := range weights {
		cum += w
		if cum > target {
			return i
		}
	}
	// Rounding left target past the last positive weight.
	for i := len(weights) - 1; i >= 0; i-- {
		if weights[i] > 0 {
			return i
		}
	}
	return len(weights) - 1
}

// assign labels every row with its nearest center and returns the inertia.
func assign(rows, centers [][]float64, labels []int) (float64, bool) {
	var inertia float64
	changed := false
	for i, r := range rows {
		best, bestDist := 0, math.Inf(1)
		for c, center := range centers {
			if d := sqDist(r, center); d < bestDist {
				best, bestDist = c, d
			}
		}
		if labels[i] != best {
			labels[i] = best
			changed = true
		}
		inertia += bestDist
	}
	return inertia, changed
}

// lloyd refines centers until they settle or maxIter is reached. A center
// that loses all its rows stays where it is.
func lloyd(rows, centers [][]float64, maxIter int, tol float64) *Result {
	n, k, d := len(rows), len(centers), len(rows[0])
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}

	sums := make([][]float64, k)
	for c := range sums {
		sums[c] = make([]float64, d)
	}
	counts := make([]int, k)

	iter, converged := 0, false
	for iter < maxIter {
		_, changed := assign(rows, centers, labels)
		iter++
		if !changed && iter > 1 {
			converged = true
			break
		}

		for c := range sums {
			floats.Scale(0, sums[c])
			counts[c] = 0
		}
		for i, r := range rows {
			floats.Add(sums[labels[i]], r)
			counts[labels[i]]++
		}

		var shift float64
		for c := range centers {
			if counts[c] == 0 {
				continue
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			shift += sqDist(centers[c], sums[c])
			copy(centers[c], sums[c])
		}
		if shift <= tol {
			converged = true
			break
		}
	}

	// Labels must match the final centers.
	inertia, _ := assign(rows, centers, labels)

	flat := make([]float64, 0, k*d)
	for _, c := range centers {
		flat = append(flat, c...)
	}
	return &Result{
		Labels:     labels,
		Centers:    mat.NewDense(k, d, flat),
		Inertia:    inertia,
		Iterations: iter,
		Converged:  converged,
	}
}
