// Package chart renders the PNG artifacts that accompany each CSV. All
// charts go through gonum/plot; the helpers here fix the fonts, palette,
// and time axis so every artifact looks like it came from the same hand.
package chart

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/policypulse/policypulse/internal/metrics"
	"github.com/policypulse/policypulse/internal/report"
)

const (
	defaultWidth  = 12 * vg.Inch
	defaultHeight = 6 * vg.Inch
)

// Series is one line on a time-series chart.
type Series struct {
	Name   string
	Times  []time.Time
	Values []float64
	Color  color.Color
	Dashed bool
}

// VLine is a vertical marker, typically the policy date.
type VLine struct {
	Name string
	At   time.Time
}

// Options carries the chart furniture.
type Options struct {
	Title  string
	XLabel string
	YLabel string
	VLines []VLine
}

var palette = []color.Color{
	color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}, // blue
	color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}, // orange
	color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}, // green
	color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}, // red
	color.RGBA{R: 0x94, G: 0x67, B: 0xbd, A: 0xff}, // purple
	color.RGBA{R: 0x8c, G: 0x56, B: 0x4b, A: 0xff}, // brown
	color.RGBA{R: 0xe3, G: 0x77, B: 0xc2, A: 0xff}, // pink
	color.RGBA{R: 0x7f, G: 0x7f, B: 0x7f, A: 0xff}, // gray
	color.RGBA{R: 0xbc, G: 0xbd, B: 0x22, A: 0xff}, // olive
	color.RGBA{R: 0x17, G: 0xbe, B: 0xcf, A: 0xff}, // cyan
}

var ruleColor = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}

// PaletteColor returns the i-th default series color, cycling.
func PaletteColor(i int) color.Color {
	return palette[i%len(palette)]
}

// SaveTimeSeries renders one or more series over time and saves a PNG.
func SaveTimeSeries(path string, opts Options, series ...Series) error {
	p := newPlot(opts)

	var all [][]float64
	for i, s := range series {
		line, err := plotter.NewLine(timeXYs(s.Times, s.Values))
		if err != nil {
			return fmt.Errorf("build line %q: %w", s.Name, err)
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = s.Color
		if line.LineStyle.Color == nil {
			line.LineStyle.Color = PaletteColor(i)
		}
		if s.Dashed {
			line.LineStyle.Dashes = []vg.Length{vg.Points(5), vg.Points(3)}
		}
		p.Add(line)
		if s.Name != "" {
			p.Legend.Add(s.Name, line)
		}
		all = append(all, s.Values)
	}

	if err := addVLines(p, opts.VLines, all); err != nil {
		return err
	}

	return save(p, path)
}

// SaveBand renders an observed line, a dashed reference line, and a shaded
// interval between lower and upper. Used for the counterfactual chart.
func SaveBand(path string, opts Options, times []time.Time, observed, reference, lower, upper []float64, observedName, referenceName string) error {
	p := newPlot(opts)

	if len(lower) == len(times) && len(upper) == len(times) && len(times) > 0 {
		band := make(plotter.XYs, 0, 2*len(times))
		for i, t := range times {
			band = append(band, plotter.XY{X: float64(t.Unix()), Y: upper[i]})
		}
		for i := len(times) - 1; i >= 0; i-- {
			band = append(band, plotter.XY{X: float64(times[i].Unix()), Y: lower[i]})
		}
		poly, err := plotter.NewPolygon(band)
		if err != nil {
			return fmt.Errorf("build interval band: %w", err)
		}
		poly.Color = color.NRGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0x33}
		poly.LineStyle.Width = 0
		p.Add(poly)
	}

	obs, err := plotter.NewLine(timeXYs(times, observed))
	if err != nil {
		return fmt.Errorf("build observed line: %w", err)
	}
	obs.LineStyle.Width = vg.Points(1.5)
	obs.LineStyle.Color = PaletteColor(0)

	ref, err := plotter.NewLine(timeXYs(times, reference))
	if err != nil {
		return fmt.Errorf("build reference line: %w", err)
	}
	ref.LineStyle.Width = vg.Points(1.5)
	ref.LineStyle.Color = PaletteColor(1)
	ref.LineStyle.Dashes = []vg.Length{vg.Points(5), vg.Points(3)}

	p.Add(obs, ref)
	p.Legend.Add(observedName, obs)
	p.Legend.Add(referenceName, ref)

	if err := addVLines(p, opts.VLines, [][]float64{observed, reference, lower, upper}); err != nil {
		return err
	}

	return save(p, path)
}

func newPlot(opts Options) *plot.Plot {
	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = opts.XLabel
	p.Y.Label.Text = opts.YLabel
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01"}
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
	return p
}

func addVLines(p *plot.Plot, vlines []VLine, series [][]float64) error {
	if len(vlines) == 0 {
		return nil
	}
	lo, hi := valueRange(series)
	for _, v := range vlines {
		x := float64(v.At.Unix())
		rule, err := plotter.NewLine(plotter.XYs{{X: x, Y: lo}, {X: x, Y: hi}})
		if err != nil {
			return fmt.Errorf("build rule %q: %w", v.Name, err)
		}
		rule.LineStyle.Width = vg.Points(1.25)
		rule.LineStyle.Color = ruleColor
		rule.LineStyle.Dashes = []vg.Length{vg.Points(3), vg.Points(3)}
		p.Add(rule)
		if v.Name != "" {
			p.Legend.Add(v.Name, rule)
		}
	}
	return nil
}

func valueRange(series [][]float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, vals := range series {
		for _, v := range vals {
			if math.IsNaN(v) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if math.IsInf(lo, 1) || math.IsInf(hi, -1) {
		return 0, 1
	}
	if lo == hi {
		return lo - 1, hi + 1
	}
	pad := (hi - lo) * 0.05
	return lo - pad, hi + pad
}

func timeXYs(times []time.Time, values []float64) plotter.XYs {
	n := len(times)
	if len(values) < n {
		n = len(values)
	}
	xys := make(plotter.XYs, 0, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(values[i]) {
			continue
		}
		xys = append(xys, plotter.XY{X: float64(times[i].Unix()), Y: values[i]})
	}
	return xys
}

func save(p *plot.Plot, path string) error {
	if err := report.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := p.Save(defaultWidth, defaultHeight, path); err != nil {
		return fmt.Errorf("save chart %s: %w", path, err)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("save chart %s: %w", path, err)
	}
	metrics.ArtifactsWrittenTotal.WithLabelValues("png").Inc()
	return nil
}
