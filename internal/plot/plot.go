// Package plot renders the pipeline's diagnostic charts.
//
// The pipeline talks to a Sink; FileSink is the implementation that writes
// image files with gonum.org/v1/plot. The file format follows the file
// extension (.png, .svg, .pdf, ...).
package plot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Kind is the chart style of a SeriesChart.
type Kind int

const (
	Bar Kind = iota
	Line
)

// SeriesChart is a single numeric series.
type SeriesChart struct {
	Name   string
	Kind   Kind
	Title  string
	XLabel string
	YLabel string
	// X holds the x position of each value. When empty, values are placed
	// at 1, 2, 3, ...
	X      []float64
	Values []float64
}

// ScatterChart is a set of 2-D points grouped by integer label.
type ScatterChart struct {
	Name   string
	Title  string
	XLabel string
	YLabel string
	Points [][2]float64
	Labels []int
}

// Sink consumes charts. Nothing it returns is used by the pipeline
// except errors.
type Sink interface {
	Series(SeriesChart) error
	Scatter(ScatterChart) error
}

// FileSink writes each chart to Dir/<Name><Ext>.
type FileSink struct {
	Dir    string
	Ext    string
	Width  vg.Length
	Height vg.Length
}

// NewFileSink returns a sink writing PNG files of 6×4 inches to dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{Dir: dir, Ext: ".png", Width: 6 * vg.Inch, Height: 4 * vg.Inch}
}

func (s *FileSink) path(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("chart name is required")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create chart directory: %w", err)
	}
	return s.Path(name), nil
}

// Path returns the file a chart with the given name is written to.
func (s *FileSink) Path(name string) string {
	ext := s.Ext
	if ext == "" {
		ext = ".png"
	}
	return filepath.Join(s.Dir, name+ext)
}

func newPlot(title, xLabel, yLabel string) *gplot.Plot {
	p := gplot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())
	return p
}

// Series renders a bar or line chart.
func (s *FileSink) Series(c SeriesChart) error {
	if len(c.Values) == 0 {
		return fmt.Errorf("chart %s: no values", c.Name)
	}
	if len(c.X) != 0 && len(c.X) != len(c.Values) {
		return fmt.Errorf("chart %s: %d x positions for %d values", c.Name, len(c.X), len(c.Values))
	}
	path, err := s.path(c.Name)
	if err != nil {
		return err
	}

	p := newPlot(c.Title, c.XLabel, c.YLabel)
	switch c.Kind {
	case Bar:
		bars, err := plotter.NewBarChart(plotter.Values(c.Values), vg.Points(12))
		if err != nil {
			return fmt.Errorf("chart %s: %w", c.Name, err)
		}
		bars.Color = plotutil.Color(0)
		bars.LineStyle.Width = 0
		p.Add(bars)

		names := make([]string, len(c.Values))
		for i := range names {
			if len(c.X) != 0 {
				names[i] = strconv.FormatFloat(c.X[i], 'g', -1, 64)
			} else {
				names[i] = strconv.Itoa(i + 1)
			}
		}
		p.NominalX(names...)
	case Line:
		xys := make(plotter.XYs, len(c.Values))
		for i, v := range c.Values {
			xys[i].X = float64(i + 1)
			if len(c.X) != 0 {
				xys[i].X = c.X[i]
			}
			xys[i].Y = v
		}
		line, points, err := plotter.NewLinePoints(xys)
		if err != nil {
			return fmt.Errorf("chart %s: %w", c.Name, err)
		}
		line.Color = plotutil.Color(0)
		points.Color = plotutil.Color(0)
		points.Shape = plotutil.Shape(0)
		p.Add(line, points)
	default:
		return fmt.Errorf("chart %s: unknown kind %d", c.Name, c.Kind)
	}

	if err := p.Save(s.Width, s.Height, path); err != nil {
		return fmt.Errorf("failed to save chart %s: %w", path, err)
	}
	return nil
}

// Scatter renders one glyph series per label, with a legend keyed by label.
func (s *FileSink) Scatter(c ScatterChart) error {
	if len(c.Points) == 0 {
		return fmt.Errorf("chart %s: no points", c.Name)
	}
	if len(c.Points) != len(c.Labels) {
		return fmt.Errorf("chart %s: %d points but %d labels", c.Name, len(c.Points), len(c.Labels))
	}
	path, err := s.path(c.Name)
	if err != nil {
		return err
	}

	groups := map[int]plotter.XYs{}
	for i, pt := range c.Points {
		groups[c.Labels[i]] = append(groups[c.Labels[i]], plotter.XY{X: pt[0], Y: pt[1]})
	}
	labels := make([]int, 0, len(groups))
	for l := range groups {
		labels = append(labels, l)
	}
	sort.Ints(labels)

	p := newPlot(c.Title, c.XLabel, c.YLabel)
	p.Legend.Top = true
	for i, l := range labels {
		sc, err := plotter.NewScatter(groups[l])
		if err != nil {
			return fmt.Errorf("chart %s: %w", c.Name, err)
		}
		sc.GlyphStyle.Color = plotutil.Color(i)
		sc.GlyphStyle.Shape = plotutil.Shape(i)
		sc.GlyphStyle.Radius = vg.Points(3)
		p.Add(sc)
		p.Legend.Add(fmt.Sprintf("cluster %d", l), sc)
	}

	if err := p.Save(s.Width, s.Height, path); err != nil {
		return fmt.Errorf("failed to save chart %s: %w", path, err)
	}
	return nil
}
