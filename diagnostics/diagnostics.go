// Package diagnostics renders best-effort hydrograph plots for operator
// review. A plotting failure is always logged and never propagated: a
// bad diagnostic image must never fail the forecast cycle it describes
// (spec §4.7).
package diagnostics

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Hydrograph is one reach's plotted series: a time axis in hours since
// cycle issuance, and parallel ensemble-mean/upper-envelope series.
type Hydrograph struct {
	Rivid      int64
	Hours      []float64
	Mean       []float64
	UpperBound []float64
}

// Render draws h to a PNG at path. Any failure (bad data, plotting
// library error, file I/O) is logged via log and swallowed -- the caller
// always continues the cycle regardless of this function's return value,
// so Render has no error return at all.
func Render(h Hydrograph, path string, log *logrus.Entry) {
	if err := render(h, path); err != nil {
		log.WithError(err).WithField("rivid", h.Rivid).Warn("skipping hydrograph plot")
	}
}

func render(h Hydrograph, path string) error {
	if len(h.Hours) == 0 || len(h.Hours) != len(h.Mean) {
		return fmt.Errorf("hydrograph for rivid %d has mismatched or empty series", h.Rivid)
	}

	p, err := plot.New()
	if err != nil {
		return fmt.Errorf("creating plot: %w", err)
	}
	p.Title.Text = fmt.Sprintf("Reach %d forecast discharge", h.Rivid)
	p.X.Label.Text = "Forecast hour"
	p.Y.Label.Text = "Discharge (m3/s)"

	meanPts := toXYs(h.Hours, h.Mean)
	meanLine, err := plotter.NewLine(meanPts)
	if err != nil {
		return fmt.Errorf("building mean line: %w", err)
	}
	p.Add(meanLine)
	p.Legend.Add("ensemble mean", meanLine)

	if len(h.UpperBound) == len(h.Hours) {
		upperPts := toXYs(h.Hours, h.UpperBound)
		upperLine, err := plotter.NewLine(upperPts)
		if err != nil {
			return fmt.Errorf("building upper-envelope line: %w", err)
		}
		p.Add(upperLine)
		p.Legend.Add("upper envelope", upperLine)
	}

	p.Add(plotter.NewGrid())

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("saving plot to %s: %w", path, err)
	}
	return nil
}

func toXYs(x, y []float64) plotter.XYs {
	pts := make(plotter.XYs, len(x))
	for i := range x {
		pts[i].X = x[i]
		pts[i].Y = y[i]
	}
	return pts
}
