// Package organize copies clustered images into one folder per cluster.
package organize

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Yutarop/img-cli/internal/logging"
)

// FolderName is the directory that receives images labelled cluster.
func FolderName(cluster int) string {
	return fmt.Sprintf("cluster_%d", cluster)
}

// Task copies one image into its cluster folder.
type Task struct {
	SourcePath      string
	DestinationPath string
	ClusterID       int
}

// Summary reports what Organize did.
type Summary struct {
	Copied   int           `yaml:"copied" json:"copied"`
	Total    int           `yaml:"total" json:"total"`
	Sizes    map[int]int   `yaml:"sizes" json:"sizes"`
	Duration time.Duration `yaml:"duration" json:"duration"`
}

// Organizer copies images with a bounded number of workers.
type Organizer struct {
	workers int
	logger  logrus.FieldLogger
}

// New returns an organizer. workers < 1 selects runtime.NumCPU().
func New(workers int, logger logrus.FieldLogger) *Organizer {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Organizer{workers: workers, logger: logging.OrDiscard(logger)}
}

// Plan builds the copy tasks. Images sharing a base name within a cluster
// get an index suffix so none overwrites another.
func Plan(paths []string, labels []int, outDir string) ([]Task, error) {
	if len(paths) != len(labels) {
		return nil, fmt.Errorf("%d paths but %d labels", len(paths), len(labels))
	}

	used := map[string]bool{}
	tasks := make([]Task, 0, len(paths))
	for i, src := range paths {
		folder := filepath.Join(outDir, FolderName(labels[i]))
		name := filepath.Base(src)
		dst := filepath.Join(folder, name)
		if used[dst] {
			ext := filepath.Ext(name)
			stem := strings.TrimSuffix(name, ext)
			// A source file may already carry the suffixed name.
			for n := i; used[dst]; n++ {
				dst = filepath.Join(folder, fmt.Sprintf("%s_%d%s", stem, n, ext))
			}
		}
		used[dst] = true

		tasks = append(tasks, Task{SourcePath: src, DestinationPath: dst, ClusterID: labels[i]})
	}
	return tasks, nil
}

// Organize copies paths[i] into outDir/cluster_<labels[i]>/. Folders are
// created for every cluster in [0, clusters), including empty ones. All
// copy failures are collected and returned together.
func (o *Organizer) Organize(ctx context.Context, paths []string, labels []int, clusters int, outDir string) (*Summary, error) {
	start := time.Now()

	tasks, err := Plan(paths, labels, outDir)
	if err != nil {
		return nil, err
	}

	for c := 0; c < clusters; c++ {
		if err := os.MkdirAll(filepath.Join(outDir, FolderName(c)), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cluster folder: %w", err)
		}
	}

	var (
		mu     sync.Mutex
		errs   *multierror.Error
		copied int
		sizes  = map[int]int{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := copyFile(task.SourcePath, task.DestinationPath)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("%s -> %s: %w", task.SourcePath, task.DestinationPath, err))
				return nil
			}
			copied++
			sizes[task.ClusterID]++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := &Summary{
		Copied:   copied,
		Total:    len(tasks),
		Sizes:    sizes,
		Duration: time.Since(start),
	}
	o.logger.WithFields(logrus.Fields{
		"action": "organize_clusters",
		"copied": copied,
		"total":  len(tasks),
		"output": outDir,
	}).Info("organized images into cluster folders")

	return summary, errs.ErrorOrNil()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy file content: %w", err)
	}
	return out.Close()
}

// PrepareOutput creates outDir. If it exists and force is false, an error
// is returned; with force it is removed first.
func PrepareOutput(outDir string, force bool) error {
	if _, err := os.Stat(outDir); err == nil {
		if !force {
			return fmt.Errorf("output directory already exists: %s (use --force to overwrite)", outDir)
		}
		if err := os.RemoveAll(outDir); err != nil {
			return fmt.Errorf("failed to remove existing output directory: %w", err)
		}
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}
