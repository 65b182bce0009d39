// Copyright © 2024-2026 Jose Cantu
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package sweep

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PlotCurve renders the passing-sample count as a function of the
// identity cutoff, at a fixed coverage cutoff, and saves it to file.
// The image format follows the file extension (png, svg, pdf, ...).
// The target count, when positive, is drawn as a dashed reference line.
func PlotCurve(file string, samples []Sample, coverage int, opt Options) error {
	if err := opt.Check(); err != nil {
		return err
	}

	pts := make(plotter.XYs, 0, (opt.IDMax-opt.IDMin)/opt.Step+1)
	for identity := opt.IDMin; identity <= opt.IDMax; identity += opt.Step {
		pts = append(pts, plotter.XY{
			X: float64(identity),
			Y: float64(CountPassing(samples, identity, coverage)),
		})
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("samples passing at coverage >= %d%%", coverage)
	p.X.Label.Text = "identity cutoff (%)"
	p.Y.Label.Text = "samples passing"
	p.Add(plotter.NewGrid())

	curve, err := plotter.NewLine(pts)
	if err != nil {
		return errors.Wrap(err, "build identity curve")
	}
	curve.Color = plotutil.Color(0)
	curve.Width = vg.Points(1.5)
	p.Add(curve)
	p.Legend.Add(fmt.Sprintf("coverage >= %d%%", coverage), curve)
	p.Legend.Top = true

	if opt.Target > 0 {
		ref, err := plotter.NewLine(plotter.XYs{
			{X: float64(opt.IDMin), Y: float64(opt.Target)},
			{X: float64(opt.IDMax), Y: float64(opt.Target)},
		})
		if err != nil {
			return errors.Wrap(err, "build target line")
		}
		ref.Color = plotutil.Color(1)
		ref.Dashes = plotutil.Dashes(1)
		p.Add(ref)
		p.Legend.Add(fmt.Sprintf("target = %d", opt.Target), ref)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, file); err != nil {
		return errors.Wrapf(err, "save plot %s", file)
	}
	return nil
}
