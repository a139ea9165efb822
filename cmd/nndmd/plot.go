package main

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/hammal/koopman"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// plotEigenvalues saves the eigenvalues in the complex plane together with
// the unit circle.
func plotEigenvalues(eigenvalues []complex128, path string) error {
	p := plot.New()
	p.Title.Text = "Koopman eigenvalues"
	p.X.Label.Text = "Re"
	p.Y.Label.Text = "Im"

	circle := make(plotter.XYs, 201)
	for index := range circle {
		z := cmplx.Rect(1, 2*math.Pi*float64(index)/float64(len(circle)-1))
		circle[index].X, circle[index].Y = real(z), imag(z)
	}
	points := make(plotter.XYs, len(eigenvalues))
	for index, value := range eigenvalues {
		points[index].X, points[index].Y = real(value), imag(value)
	}

	if err := plotutil.AddLines(p, "unit circle", circle); err != nil {
		return err
	}
	if err := plotutil.AddScatters(p, "eigenvalues", points); err != nil {
		return err
	}
	return p.Save(4*vg.Inch, 4*vg.Inch, path)
}

// plotForecast saves the trajectory against the forecast of the model from
// its initial state.
func plotForecast(model *koopman.NNDMD, trajectory *mat.Dense, horizon int, path string) error {
	length, dim := trajectory.Dims()
	if horizon < 1 {
		horizon = length - 1
	}
	if horizon < 1 {
		return fmt.Errorf("trajectory of length %d has nothing to forecast", length)
	}
	forecast, err := model.PredictSequence(trajectory.RawRowView(0), horizon)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = "Forecast"
	p.X.Label.Text = "step"
	p.Y.Label.Text = "state"

	var lines []any
	for j := 0; j < dim; j++ {
		measured := make(plotter.XYs, length)
		for i := range measured {
			measured[i].X, measured[i].Y = float64(i), trajectory.At(i, j)
		}
		predicted := make(plotter.XYs, horizon+1)
		predicted[0].X, predicted[0].Y = 0, trajectory.At(0, j)
		for i, state := range forecast {
			predicted[i+1].X, predicted[i+1].Y = float64(i+1), state.At(0, j)
		}
		lines = append(lines, fmt.Sprintf("x%d", j), measured, fmt.Sprintf("x%d forecast", j), predicted)
	}
	if err := plotutil.AddLines(p, lines...); err != nil {
		return err
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
