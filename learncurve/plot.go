package learncurve

import "io"
import "os"
import "path/filepath"
import "strings"

import "github.com/pkg/errors"
import "gonum.org/v1/plot"
import "gonum.org/v1/plot/plotter"
import "gonum.org/v1/plot/plotutil"
import "gonum.org/v1/plot/vg"
import "gonum.org/v1/plot/vg/draw"
import "gonum.org/v1/plot/vg/vgimg"
import "gonum.org/v1/plot/vg/vgsvg"

// Size of the rendered figure.
const (
	Width  = 10 * vg.Inch
	Height = 4 * vg.Inch
)

// series returns the training and validation losses against x, leaving out
// non-finite losses.
func (c *Curve) series(x func(i int, p Point) float64) (train, valid plotter.XYs) {
	for i, p := range c.Points {
		if finite(p.Train) {
			train = append(train, plotter.XY{X: x(i, p), Y: p.Train})
		}
		if finite(p.Valid) {
			valid = append(valid, plotter.XY{X: x(i, p), Y: p.Valid})
		}
	}
	return
}

func newPanel(xlabel string, train, valid plotter.XYs) (*plot.Plot, error) {
	p := plot.New()
	p.X.Label.Text = xlabel
	p.Y.Label.Text = "Average cross entropy"
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
	if err := plotutil.AddLines(p, "training", train, "validation", valid); err != nil {
		return nil, err
	}
	return p, nil
}

// Plots returns the loss by epoch and the loss by training time panels.
func (c *Curve) Plots() (byEpoch, byTime *plot.Plot, err error) {
	train, valid := c.series(func(i int, p Point) float64 { return float64(i + 1) })
	if byEpoch, err = newPanel("Number of epochs", train, valid); err != nil {
		return nil, nil, errors.Wrap(err, "epoch panel")
	}
	train, valid = c.series(func(i int, p Point) float64 { return p.Time })
	if byTime, err = newPanel("Training time (sec)", train, valid); err != nil {
		return nil, nil, errors.Wrap(err, "time panel")
	}
	return byEpoch, byTime, nil
}

// Render draws both panels side by side in the given format, "svg" or "png".
func (c *Curve) Render(w io.Writer, format string) error {
	byEpoch, byTime, err := c.Plots()
	if err != nil {
		return err
	}
	var cv vg.CanvasWriterTo
	switch strings.ToLower(format) {
	case "svg":
		cv = vgsvg.New(Width, Height)
	case "png":
		cv = vgimg.PngCanvas{Canvas: vgimg.New(Width, Height)}
	default:
		return errors.Errorf("unsupported plot format %q", format)
	}
	dc := draw.New(cv)
	tiles := draw.Tiles{
		Rows: 1,
		Cols: 2,
		PadX: vg.Millimeter * 4,
		PadY: vg.Millimeter * 2,
	}
	canvases := plot.Align([][]*plot.Plot{{byEpoch, byTime}}, tiles, dc)
	byEpoch.Draw(canvases[0][0])
	byTime.Draw(canvases[0][1])
	_, err = cv.WriteTo(w)
	return errors.Wrap(err, "writing plot")
}

// SavePlot renders to a file whose extension picks the format.
func (c *Curve) SavePlot(name string) error {
	f, err := os.Create(name)
	if err != nil {
		return errors.Wrapf(err, "creating %q", name)
	}
	err = c.Render(f, strings.TrimPrefix(filepath.Ext(name), "."))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
