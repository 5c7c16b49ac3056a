// Package corpus enumerates the images of a directory and stacks their
// feature vectors into one matrix.
package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/Yutarop/img-cli/internal/features"
	"github.com/Yutarop/img-cli/internal/logging"
)

// DefaultExtensions is the file-extension filter used when none is set.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".tif", ".gif", ".webp"}

// ErrEmptyCorpus is returned when no eligible image is found.
var ErrEmptyCorpus = errors.New("no eligible images")

// NotFoundError reports a missing or unreadable input directory.
type NotFoundError struct {
	Dir string
	Err error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("input directory %s: %v", e.Dir, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// Corpus is the feature matrix of a directory. Row i of Features belongs
// to Paths[i].
type Corpus struct {
	Paths    []string
	Features *mat.Dense
	// Skipped lists files dropped because they could not be decoded. It is
	// only populated when Options.SkipInvalid is set.
	Skipped []string
}

// Len is the number of images.
func (c *Corpus) Len() int { return len(c.Paths) }

// Dims is the length of each feature vector.
func (c *Corpus) Dims() int {
	_, cols := c.Features.Dims()
	return cols
}

// Options controls enumeration and extraction.
type Options struct {
	Extensions  []string
	Recursive   bool
	Workers     int
	SkipInvalid bool
}

// Loader builds a Corpus from a directory.
type Loader struct {
	extractor *features.Extractor
	opts      Options
	exts      map[string]bool
	logger    logrus.FieldLogger
}

// NewLoader returns a loader that applies extractor to every eligible file.
func NewLoader(extractor *features.Extractor, opts Options, logger logrus.FieldLogger) *Loader {
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	if opts.Workers < 1 {
		opts.Workers = runtime.NumCPU()
	}

	exts := make(map[string]bool, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = true
	}

	return &Loader{
		extractor: extractor,
		opts:      opts,
		exts:      exts,
		logger:    logging.OrDiscard(logger),
	}
}

func (l *Loader) eligible(name string) bool {
	return l.exts[strings.ToLower(filepath.Ext(name))]
}

// Scan returns the eligible image paths of dir in sorted order.
func (l *Loader) Scan(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &NotFoundError{Dir: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &NotFoundError{Dir: dir, Err: errors.New("not a directory")}
	}

	var paths []string
	if l.opts.Recursive {
		err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && l.eligible(d.Name()) {
				paths = append(paths, path)
			}
			return nil
		})
	} else {
		var entries []os.DirEntry
		entries, err = os.ReadDir(dir)
		for _, entry := range entries {
			if !entry.IsDir() && l.eligible(entry.Name()) {
				paths = append(paths, filepath.Join(dir, entry.Name()))
			}
		}
	}
	if err != nil {
		return nil, &NotFoundError{Dir: dir, Err: err}
	}

	sort.Strings(paths)
	return paths, nil
}

// Load scans dir and extracts every eligible image. Any extraction failure
// aborts the load unless Options.SkipInvalid is set.
func (l *Loader) Load(ctx context.Context, dir string) (*Corpus, error) {
	paths, err := l.Scan(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.Wrapf(ErrEmptyCorpus, "directory %s (extensions %s)",
			dir, strings.Join(l.opts.Extensions, ", "))
	}

	l.logger.WithFields(logrus.Fields{
		"action":  "corpus_scan",
		"dir":     dir,
		"images":  len(paths),
		"workers": l.opts.Workers,
	}).Info("found images")

	dims := l.extractor.Len()
	vectors := make([][]float64, len(paths))

	var (
		mu      sync.Mutex
		skipped []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Workers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vec, err := l.extractor.ExtractFile(path)
			if err != nil {
				if !l.opts.SkipInvalid {
					return err
				}
				l.logger.WithField("action", "corpus_extract").WithError(err).
					Warnf("skipping %s", path)
				mu.Lock()
				skipped = append(skipped, path)
				mu.Unlock()
				return nil
			}
			l.logger.WithField("action", "corpus_extract").Debugf("processed %s", path)
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	kept := make([]string, 0, len(paths))
	data := make([]float64, 0, len(paths)*dims)
	for i, vec := range vectors {
		if vec == nil {
			continue
		}
		kept = append(kept, paths[i])
		data = append(data, vec...)
	}
	if len(kept) == 0 {
		return nil, errors.Wrapf(ErrEmptyCorpus, "directory %s (all %d images failed to decode)",
			dir, len(paths))
	}

	sort.Strings(skipped)
	return &Corpus{
		Paths:    kept,
		Features: mat.NewDense(len(kept), dims, data),
		Skipped:  skipped,
	}, nil
}
