package corpus

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yutarop/img-cli/internal/features"
)

func writePNG(t *testing.T, path string, w, h int, c color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func newLoader(t *testing.T, opts Options) *Loader {
	t.Helper()
	e, err := features.NewExtractor(4, 4, nil)
	require.NoError(t, err)
	return NewLoader(e, opts, nil)
}

func TestLoadRowCorrespondence(t *testing.T) {
	dir := t.TempDir()
	want := map[string]uint8{}
	// Names deliberately out of creation order.
	for i, name := range []string{"k.png", "b.png", "z.png", "a.png", "m.png", "c.png"} {
		shade := uint8(20 + 35*i)
		writePNG(t, filepath.Join(dir, name), 10+i, 7, color.NRGBA{R: shade, G: 255 - shade, B: 9, A: 255})
		want[filepath.Join(dir, name)] = shade
	}

	for _, workers := range []int{1, 3, 16} {
		c, err := newLoader(t, Options{Workers: workers}).Load(context.Background(), dir)
		require.NoError(t, err)
		require.Equal(t, 6, c.Len())
		assert.Equal(t, 3*4*4, c.Dims())
		assert.IsNonDecreasing(t, c.Paths)

		for i, path := range c.Paths {
			assert.InDelta(t, float64(want[path]), c.Features.At(i, 0), 1, "row %d (%s)", i, path)
			assert.InDelta(t, float64(255-want[path]), c.Features.At(i, 1), 1, "row %d (%s)", i, path)
		}
	}
}

func TestLoadExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "one.png"), 3, 3, color.NRGBA{A: 255})
	writePNG(t, filepath.Join(dir, "TWO.PNG"), 3, 3, color.NRGBA{A: 255})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o755))

	c, err := newLoader(t, Options{}).Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "TWO.PNG"), filepath.Join(dir, "one.png")}, c.Paths)

	c, err = newLoader(t, Options{Extensions: []string{"jpg"}}).Load(context.Background(), filepath.Join(dir))
	assert.Nil(t, c)
	assert.True(t, errors.Is(err, ErrEmptyCorpus))
}

func TestLoadRecursive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested", "deeper"), 0o755))
	writePNG(t, filepath.Join(dir, "top.png"), 3, 3, color.NRGBA{A: 255})
	writePNG(t, filepath.Join(dir, "nested", "deeper", "low.png"), 3, 3, color.NRGBA{A: 255})

	flat, err := newLoader(t, Options{}).Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, flat.Len())

	deep, err := newLoader(t, Options{Recursive: true}).Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, deep.Len())
}

func TestLoadEmptyDirectory(t *testing.T) {
	c, err := newLoader(t, Options{}).Load(context.Background(), t.TempDir())
	assert.Nil(t, c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyCorpus))
}

func TestLoadNotFound(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing", func(t *testing.T) {
		missing := filepath.Join(dir, "missing")
		_, err := newLoader(t, Options{}).Load(context.Background(), missing)
		var nf *NotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, missing, nf.Dir)
	})

	t.Run("file instead of directory", func(t *testing.T) {
		file := filepath.Join(dir, "a.png")
		writePNG(t, file, 2, 2, color.NRGBA{A: 255})
		_, err := newLoader(t, Options{}).Load(context.Background(), file)
		var nf *NotFoundError
		require.True(t, errors.As(err, &nf))
	})
}

func TestLoadDecodeFailure(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "good.png"), 5, 5, color.NRGBA{R: 1, A: 255})
	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not a png"), 0o644))

	t.Run("fatal by default", func(t *testing.T) {
		c, err := newLoader(t, Options{}).Load(context.Background(), dir)
		assert.Nil(t, c)
		var de *features.DecodeError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, bad, de.Path)
	})

	t.Run("skip invalid", func(t *testing.T) {
		c, err := newLoader(t, Options{SkipInvalid: true}).Load(context.Background(), dir)
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "good.png")}, c.Paths)
		assert.Equal(t, []string{bad}, c.Skipped)
	})

	t.Run("skip invalid with nothing left", func(t *testing.T) {
		only := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(only, "x.png"), []byte("nope"), 0o644))
		_, err := newLoader(t, Options{SkipInvalid: true}).Load(context.Background(), only)
		assert.True(t, errors.Is(err, ErrEmptyCorpus))
	})
}

func TestLoadCancelled(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		writePNG(t, filepath.Join(dir, name), 3, 3, color.NRGBA{A: 255})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newLoader(t, Options{Workers: 1}).Load(ctx, dir)
	assert.True(t, errors.Is(err, context.Canceled))
}
