package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescriptives(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	assert.InDelta(t, 5.0, Mean(xs), 1e-9)
	assert.InDelta(t, 2.138, StdDev(xs), 1e-3)
	assert.InDelta(t, 2.0, Min(xs), 1e-9)
	assert.InDelta(t, 9.0, Max(xs), 1e-9)
	assert.InDelta(t, 40.0, Sum(xs), 1e-9)
}

func TestMedian(t *testing.T) {
	assert.InDelta(t, 3.0, Median([]float64{1, 3, 5}), 1e-9)
	assert.InDelta(t, 2.0, Median([]float64{4, 1, 3, 2}), 1.0)
}

func TestPanicsOnUndersizedSamples(t *testing.T) {
	assert.PanicsWithValue(t,
		"stats: insufficient sample size for mean (no observations)",
		func() { Mean(nil) })
	assert.Panics(t, func() { StdDev([]float64{1}) })
	assert.Panics(t, func() { Correlation([]float64{1}, []float64{1}) })
	assert.Panics(t, func() { Correlation([]float64{1, 2}, []float64{1}) })
	assert.Panics(t, func() { WelchTTest([]float64{1}, []float64{1, 2}) })
}

func TestCorrelation(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{2, 4, 6, 8, 10}
	assert.InDelta(t, 1.0, Correlation(x, y), 1e-9)

	yInv := []float64{10, 8, 6, 4, 2}
	assert.InDelta(t, -1.0, Correlation(x, yInv), 1e-9)
}

func TestSpearmanMonotone(t *testing.T) {
	// Monotone but non-linear: Spearman is 1, Pearson is not.
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{1, 8, 27, 64, 125}
	assert.InDelta(t, 1.0, Spearman(x, y), 1e-9)
	assert.Less(t, Correlation(x, y), 1.0)
}

func TestSpearmanTies(t *testing.T) {
	got := ranks([]float64{10, 20, 20, 30})
	assert.Equal(t, []float64{1, 2.5, 2.5, 4}, got)
}

func TestWelchTTest(t *testing.T) {
	a := []float64{118, 121, 119, 122, 120, 117}
	b := []float64{131, 133, 130, 135, 132, 134}

	r := WelchTTest(a, b)
	assert.Less(t, r.T, 0.0)
	assert.Less(t, r.P, 0.001)
	assert.InDelta(t, 119.5, r.MeanA, 1e-9)
	assert.InDelta(t, 132.5, r.MeanB, 1e-9)
	assert.Greater(t, r.DF, 2.0)

	// Identical groups: t is 0, p is 1.
	same := WelchTTest([]float64{1, 2, 3}, []float64{1, 2, 3})
	assert.InDelta(t, 0.0, same.T, 1e-9)
	assert.InDelta(t, 1.0, same.P, 1e-9)
}

func TestOneSampleTTest(t *testing.T) {
	xs := []float64{5.1, 4.9, 5.2, 5.0, 4.8}
	r := OneSampleTTest(xs, 5.0)
	assert.InDelta(t, 0.0, r.T, 1.0)
	assert.Greater(t, r.P, 0.05)
	assert.InDelta(t, 4.0, r.DF, 1e-9)
}

func TestPairedTTest(t *testing.T) {
	before := []float64{140, 138, 145, 142, 139}
	after := []float64{132, 131, 135, 133, 130}

	r := PairedTTest(before, after)
	assert.Less(t, r.T, 0.0)
	assert.Less(t, r.P, 0.01)
	assert.InDelta(t, 140.8, r.MeanA, 1e-9)
	assert.InDelta(t, 132.2, r.MeanB, 1e-9)
}

func TestLinearRegression(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	y := []float64{3, 5, 7, 9} // y = 1 + 2x

	r := LinearRegression(x, y)
	assert.InDelta(t, 1.0, r.Intercept, 1e-9)
	assert.InDelta(t, 2.0, r.Slope, 1e-9)
	assert.InDelta(t, 1.0, r.R2, 1e-9)
}
