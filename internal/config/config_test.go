package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yutarop/img-cli/internal/kmeans"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 100, cfg.Height)
	assert.Equal(t, 50, cfg.Components)
	assert.Equal(t, 10, cfg.MaxClusters)
	assert.Equal(t, 5, cfg.Clusters)
	assert.Equal(t, int64(42), cfg.KMeans.Seed)
	assert.Equal(t, kmeans.DefaultMaxIter, cfg.KMeans.MaxIter)
	assert.Equal(t, kmeans.DefaultTol, cfg.KMeans.Tol)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imgcli.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
input: ./photos
width: 64
components: 10
clusters: 3
extensions: [".png"]
kmeans:
  seed: 7
  n_init: 4
log:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "./photos", cfg.Input)
	assert.Equal(t, 64, cfg.Width)
	assert.Equal(t, 100, cfg.Height, "unset keys keep defaults")
	assert.Equal(t, 10, cfg.Components)
	assert.Equal(t, 3, cfg.Clusters)
	assert.Equal(t, []string{".png"}, cfg.Extensions)
	assert.Equal(t, int64(7), cfg.KMeans.Seed)
	assert.Equal(t, 4, cfg.KMeans.NInit)
	assert.Equal(t, kmeans.DefaultMaxIter, cfg.KMeans.MaxIter)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("width: [1, 2\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Clusters = 8
	data, err := cfg.Marshal()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func mapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(mapLookup(map[string]string{
		"IMGCLI_INPUT":          "/data",
		"IMGCLI_CLUSTERS":       "3",
		"IMGCLI_KMEANS_SEED":    "-9",
		"IMGCLI_KMEANS_TOL":     "0.5",
		"IMGCLI_RECURSIVE":      "true",
		"IMGCLI_EXTENSIONS":     ".png, .jpg ,",
		"IMGCLI_LOG_FORMAT":     "json",
		"IMGCLI_VARIANCE_RATIO": "0.9",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/data", cfg.Input)
	assert.Equal(t, 3, cfg.Clusters)
	assert.Equal(t, int64(-9), cfg.KMeans.Seed)
	assert.Equal(t, 0.5, cfg.KMeans.Tol)
	assert.True(t, cfg.Recursive)
	assert.Equal(t, []string{".png", ".jpg"}, cfg.Extensions)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 0.9, cfg.VarianceRatio)
}

func TestApplyEnvReportsAllErrors(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(mapLookup(map[string]string{
		"IMGCLI_CLUSTERS":  "three",
		"IMGCLI_RECURSIVE": "maybe",
		"IMGCLI_WIDTH":     "12",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IMGCLI_CLUSTERS")
	assert.Contains(t, err.Error(), "IMGCLI_RECURSIVE")
	assert.Equal(t, 12, cfg.Width)
	assert.Equal(t, DefaultClusters, cfg.Clusters)
}

func TestEnvLookupReadsDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("IMGCLI_TEST_ONLY_KEY=from-file\nIMGCLI_TEST_SHADOWED=file\n"), 0o644))
	t.Setenv("IMGCLI_TEST_SHADOWED", "process")

	lookup, err := EnvLookup(path)
	require.NoError(t, err)

	v, ok := lookup("IMGCLI_TEST_ONLY_KEY")
	assert.True(t, ok)
	assert.Equal(t, "from-file", v)

	v, ok = lookup("IMGCLI_TEST_SHADOWED")
	assert.True(t, ok)
	assert.Equal(t, "process", v)

	_, ok = lookup("IMGCLI_TEST_NOT_SET_ANYWHERE")
	assert.False(t, ok)

	_, err = EnvLookup(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Width = 0
	cfg.Components = 0
	cfg.Clusters = -1
	cfg.MaxClusters = 0
	cfg.Resampler = "sinc"
	cfg.Projection = "umap"
	cfg.VarianceRatio = 2
	cfg.KMeans.NInit = 0

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"target size", "components", "clusters must", "max clusters", "sinc", "umap", "variance ratio", "n_init"} {
		assert.Contains(t, err.Error(), want)
	}
}
