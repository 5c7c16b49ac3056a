// Package report serializes the outcome of a run.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/Yutarop/img-cli/internal/selection"
)

// Format is a serialization format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks a format from the file extension; anything that is
// not .json is YAML.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Assignment is the cluster of one image and its place on the scatter chart.
type Assignment struct {
	Path    string  `yaml:"path" json:"path"`
	Cluster int     `yaml:"cluster" json:"cluster"`
	X       float64 `yaml:"x" json:"x"`
	Y       float64 `yaml:"y" json:"y"`
}

// Report describes one run.
type Report struct {
	GeneratedAt            time.Time        `yaml:"generated_at" json:"generated_at"`
	Input                  string           `yaml:"input" json:"input"`
	Images                 int              `yaml:"images" json:"images"`
	Skipped                []string         `yaml:"skipped,omitempty" json:"skipped,omitempty"`
	FeatureLength          int              `yaml:"feature_length" json:"feature_length"`
	Components             int              `yaml:"components" json:"components"`
	ExplainedVarianceRatio []float64        `yaml:"explained_variance_ratio" json:"explained_variance_ratio"`
	Clusters               int              `yaml:"clusters,omitempty" json:"clusters,omitempty"`
	Seed                   int64            `yaml:"seed" json:"seed"`
	Inertia                float64          `yaml:"inertia,omitempty" json:"inertia,omitempty"`
	Assignments            []Assignment     `yaml:"assignments,omitempty" json:"assignments,omitempty"`
	Curve                  *selection.Curve `yaml:"curve,omitempty" json:"curve,omitempty"`
}

// Encode writes r to w in the given format.
func Encode(w io.Writer, r *Report, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML, "":
		data, err := yaml.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to format report: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
}

// WriteFile writes r to path, choosing the format from its extension.
func WriteFile(path string, r *Report) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := Encode(f, r, FormatFromPath(path)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Read loads a report written by WriteFile.
func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r Report
	if FormatFromPath(path) == FormatJSON {
		err = json.Unmarshal(data, &r)
	} else {
		err = yaml.Unmarshal(data, &r)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &r, nil
}
