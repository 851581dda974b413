package main

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// savePlots saves one plot with the utilities u and another with their derivatives d, to
// "<prefix>_u.png" and "<prefix>_d.png". It returns the paths of the files written.
func savePlots(prefix string, lambda float64, curves []curve) ([]string, error) {
	uPath, dPath := prefix+"_u.png", prefix+"_d.png"
	err := savePlot(uPath, fmt.Sprintf("u(x+y)-y, lambda=%g", lambda), "u", curves,
		func(c curve) []float64 { return c.u })
	if err != nil {
		return nil, err
	}
	err = savePlot(dPath, fmt.Sprintf("d = du/dx, lambda=%g", lambda), "d", curves,
		func(c curve) []float64 { return c.d })
	if err != nil {
		return nil, err
	}
	return []string{uPath, dPath}, nil
}

func savePlot(path, title, yLabel string, curves []curve, values func(c curve) []float64) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x"
	p.Y.Label.Text = yLabel
	p.Legend.Top = true
	p.Legend.Left = true
	p.Add(plotter.NewGrid())

	for ii, c := range curves {
		ys := values(c)
		points := make(plotter.XYs, len(c.x))
		for jj := range points {
			points[jj].X = c.x[jj]
			points[jj].Y = ys[jj]
		}
		line, err := plotter.NewLine(points)
		if err != nil {
			return errors.Wrapf(err, "failed to plot utility %s", c.utility)
		}
		line.Color = plotutil.Color(ii)
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(c.utility.String(), line)
	}
	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "failed to save plot to %q", path)
	}
	return nil
}
