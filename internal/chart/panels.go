package chart

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/policypulse/policypulse/internal/metrics"
	"github.com/policypulse/policypulse/internal/report"
)

// SaveTrendWithVolume renders the daily sentiment chart: the average
// compound score as a line on the top panel and the post volume as bars on
// the bottom panel, sharing the PNG.
func SaveTrendWithVolume(path, title string, days []time.Time, avg []float64, counts []int) error {
	top := newPlot(Options{Title: title, YLabel: "avg compound"})
	line, err := plotter.NewLine(timeXYs(days, avg))
	if err != nil {
		return fmt.Errorf("build sentiment line: %w", err)
	}
	line.LineStyle.Width = vg.Points(1.5)
	line.LineStyle.Color = PaletteColor(0)
	top.Add(line)

	scatter, err := plotter.NewScatter(timeXYs(days, avg))
	if err != nil {
		return fmt.Errorf("build sentiment markers: %w", err)
	}
	scatter.GlyphStyle.Radius = vg.Points(2)
	scatter.GlyphStyle.Color = PaletteColor(0)
	top.Add(scatter)

	bottom := plot.New()
	bottom.Y.Label.Text = "posts"
	bottom.X.Label.Text = "date"

	values := make(plotter.Values, len(counts))
	for i, c := range counts {
		values[i] = float64(c)
	}
	bars, err := plotter.NewBarChart(values, vg.Points(4))
	if err != nil {
		return fmt.Errorf("build volume bars: %w", err)
	}
	bars.Color = PaletteColor(7)
	bars.LineStyle.Width = 0
	bottom.Add(bars)
	bottom.NominalX(thinnedLabels(days)...)

	return saveStacked(path, top, bottom)
}

// thinnedLabels renders roughly eight date labels and blanks the rest so a
// long daily axis stays readable.
func thinnedLabels(days []time.Time) []string {
	labels := make([]string, len(days))
	step := len(days) / 8
	if step < 1 {
		step = 1
	}
	for i, d := range days {
		if i%step == 0 {
			labels[i] = d.Format("2006-01-02")
		}
	}
	return labels
}

func saveStacked(path string, top, bottom *plot.Plot) error {
	if err := report.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	img := vgimg.New(defaultWidth, 8*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: 2,
		Cols: 1,
		PadY: vg.Millimeter * 2,
	}

	plots := [][]*plot.Plot{{top}, {bottom}}
	canvases := plot.Align(plots, tiles, dc)
	top.Draw(canvases[0][0])
	bottom.Draw(canvases[1][0])

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(f); err != nil {
		return fmt.Errorf("save chart %s: %w", path, err)
	}

	metrics.ArtifactsWrittenTotal.WithLabelValues("png").Inc()
	return nil
}
