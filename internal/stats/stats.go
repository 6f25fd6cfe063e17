// Package stats wraps the gonum statistics routines behind the small surface
// exposed to generated analysis code. Functions panic on misuse (empty or
// undersized samples) so that failures inside the sandbox surface as
// classified runtime errors instead of silent NaNs.
package stats

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Mean returns the arithmetic mean of xs.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		panic("stats: insufficient sample size for mean (no observations)")
	}
	return stat.Mean(xs, nil)
}

// StdDev returns the sample standard deviation of xs.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		panic("stats: insufficient sample size for standard deviation (need at least 2 observations)")
	}
	return stat.StdDev(xs, nil)
}

// Median returns the middle value of xs.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		panic("stats: insufficient sample size for median (no observations)")
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// Min returns the smallest value of xs.
func Min(xs []float64) float64 {
	if len(xs) == 0 {
		panic("stats: min of empty sample")
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

// Max returns the largest value of xs.
func Max(xs []float64) float64 {
	if len(xs) == 0 {
		panic("stats: max of empty sample")
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

// Sum returns the total of xs.
func Sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

// Correlation returns the Pearson correlation coefficient of two
// equal-length samples.
func Correlation(x, y []float64) float64 {
	if len(x) != len(y) {
		panic(fmt.Sprintf("stats: correlation requires equal-length samples (%d vs %d)", len(x), len(y)))
	}
	if len(x) < 2 {
		panic("stats: insufficient sample size for correlation (need at least 2 pairs)")
	}
	return stat.Correlation(x, y, nil)
}

// Spearman returns the Spearman rank correlation of two equal-length samples.
func Spearman(x, y []float64) float64 {
	return Correlation(ranks(x), ranks(y))
}

func ranks(xs []float64) []float64 {
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	r := make([]float64, len(xs))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		// Ties share the average rank of their run.
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			r[idx[k]] = avg
		}
		i = j + 1
	}
	return r
}

// TTestResult carries the outcome of a t-test.
type TTestResult struct {
	T     float64 // test statistic
	DF    float64 // degrees of freedom
	P     float64 // two-sided p-value
	MeanA float64
	MeanB float64
}

func (r TTestResult) String() string {
	return fmt.Sprintf("t=%.4f df=%.1f p=%.6f", r.T, r.DF, r.P)
}

// WelchTTest performs a two-sample t-test without assuming equal variances.
func WelchTTest(a, b []float64) TTestResult {
	if len(a) < 2 || len(b) < 2 {
		panic("stats: insufficient sample size for t-test (need at least 2 observations per group)")
	}
	ma, mb := stat.Mean(a, nil), stat.Mean(b, nil)
	va, vb := stat.Variance(a, nil), stat.Variance(b, nil)
	na, nb := float64(len(a)), float64(len(b))

	se := math.Sqrt(va/na + vb/nb)
	if se == 0 {
		panic("stats: t-test undefined for zero-variance samples")
	}
	t := (ma - mb) / se

	// Welch-Satterthwaite degrees of freedom.
	df := math.Pow(va/na+vb/nb, 2) /
		(math.Pow(va/na, 2)/(na-1) + math.Pow(vb/nb, 2)/(nb-1))

	return TTestResult{T: t, DF: df, P: twoSidedP(t, df), MeanA: ma, MeanB: mb}
}

// OneSampleTTest tests whether the mean of xs differs from mu.
func OneSampleTTest(xs []float64, mu float64) TTestResult {
	if len(xs) < 2 {
		panic("stats: insufficient sample size for t-test (need at least 2 observations)")
	}
	m := stat.Mean(xs, nil)
	sd := stat.StdDev(xs, nil)
	if sd == 0 {
		panic("stats: t-test undefined for zero-variance samples")
	}
	n := float64(len(xs))
	t := (m - mu) / (sd / math.Sqrt(n))
	df := n - 1
	return TTestResult{T: t, DF: df, P: twoSidedP(t, df), MeanA: m, MeanB: mu}
}

// PairedTTest tests whether the mean difference of paired samples is zero.
func PairedTTest(before, after []float64) TTestResult {
	if len(before) != len(after) {
		panic(fmt.Sprintf("stats: paired t-test requires equal-length samples (%d vs %d)", len(before), len(after)))
	}
	diffs := make([]float64, len(before))
	for i := range before {
		diffs[i] = after[i] - before[i]
	}
	r := OneSampleTTest(diffs, 0)
	r.MeanA = stat.Mean(before, nil)
	r.MeanB = stat.Mean(after, nil)
	return r
}

func twoSidedP(t, df float64) float64 {
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.CDF(-math.Abs(t))
}

// RegressionResult carries a simple least-squares fit.
type RegressionResult struct {
	Intercept float64
	Slope     float64
	R2        float64
}

func (r RegressionResult) String() string {
	return fmt.Sprintf("y=%.4f+%.4fx r2=%.4f", r.Intercept, r.Slope, r.R2)
}

// LinearRegression fits y = intercept + slope*x by ordinary least squares.
func LinearRegression(x, y []float64) RegressionResult {
	if len(x) != len(y) {
		panic(fmt.Sprintf("stats: regression requires equal-length samples (%d vs %d)", len(x), len(y)))
	}
	if len(x) < 2 {
		panic("stats: insufficient sample size for regression (need at least 2 points)")
	}
	alpha, beta := stat.LinearRegression(x, y, nil, false)
	r2 := stat.RSquared(x, y, nil, alpha, beta)
	return RegressionResult{Intercept: alpha, Slope: beta, R2: r2}
}
