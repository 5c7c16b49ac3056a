package plot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertFile(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestFileSinkSeries(t *testing.T) {
	sink := NewFileSink(filepath.Join(t.TempDir(), "charts"))

	require.NoError(t, sink.Series(SeriesChart{
		Name:   "variance",
		Kind:   Bar,
		Title:  "Explained variance",
		XLabel: "component",
		YLabel: "ratio",
		Values: []float64{0.5, 0.25, 0.1},
	}))
	assertFile(t, sink.Path("variance"))

	require.NoError(t, sink.Series(SeriesChart{
		Name:   "elbow",
		Kind:   Line,
		Title:  "Elbow",
		XLabel: "clusters",
		YLabel: "inertia",
		X:      []float64{1, 2, 3},
		Values: []float64{30, 12, 10},
	}))
	assertFile(t, filepath.Join(sink.Dir, "elbow.png"))
}

func TestFileSinkSVG(t *testing.T) {
	sink := NewFileSink(t.TempDir())
	sink.Ext = ".svg"

	require.NoError(t, sink.Series(SeriesChart{Name: "s", Kind: Line, Values: []float64{1, 2}}))
	assertFile(t, filepath.Join(sink.Dir, "s.svg"))
}

func TestFileSinkSeriesErrors(t *testing.T) {
	sink := NewFileSink(t.TempDir())

	assert.Error(t, sink.Series(SeriesChart{Name: "empty", Kind: Bar}))
	assert.Error(t, sink.Series(SeriesChart{Name: "mismatch", Kind: Line, X: []float64{1}, Values: []float64{1, 2}}))
	assert.Error(t, sink.Series(SeriesChart{Kind: Line, Values: []float64{1}}))
	assert.Error(t, sink.Series(SeriesChart{Name: "kind", Kind: Kind(9), Values: []float64{1}}))
}

func TestFileSinkScatter(t *testing.T) {
	sink := NewFileSink(t.TempDir())

	require.NoError(t, sink.Scatter(ScatterChart{
		Name:   "clusters",
		Title:  "Clusters",
		XLabel: "PC1",
		YLabel: "PC2",
		Points: [][2]float64{{0, 0}, {1, 1}, {5, 5}, {6, 5}},
		Labels: []int{0, 0, 2, 2},
	}))
	assertFile(t, sink.Path("clusters"))

	assert.Error(t, sink.Scatter(ScatterChart{Name: "bad", Points: [][2]float64{{0, 0}}, Labels: []int{0, 1}}))
	assert.Error(t, sink.Scatter(ScatterChart{Name: "none"}))
}
