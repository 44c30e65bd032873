package grading

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Distribution is the statistical class a reference metric column falls in.
// It decides between mean/std tiering and percentile tiering.
type Distribution string

const (
	DistNormal         Distribution = "normal"
	DistNonNormal      Distribution = "non-normal"
	DistCountNonNormal Distribution = "count-non-normal"
	DistZeroInflated   Distribution = "zero-inflated"
)

// Percentile reports whether tier borders come from empirical percentiles
// rather than mean/std.
func (d Distribution) Percentile() bool {
	return d != DistNormal
}

// preparation is a classified reference column ready for tier-boundary
// computation. Transform is nil unless a normalizing transform was retained,
// in which case Transformed holds the column in transformed space.
type preparation struct {
	Distribution Distribution
	Values       []float64
	Transform    pointTransform
	Transformed  []float64
}

// classifyAndPrepare runs the distribution-classification chain over one
// reference column: outlier trim, excess-zeros check, the degenerate cases,
// then increasingly aggressive normalization attempts.
func classifyAndPrepare(column []float64, alpha float64) preparation {
	trimmed := trimOutliers(column)

	if isZeroInflated(trimmed, alpha) && isNonNegativeIntegers(trimmed) {
		return preparation{Distribution: DistZeroInflated, Values: trimmed}
	}

	if len(trimmed) == 0 || distinctCount(trimmed) == 1 {
		return preparation{Distribution: DistNonNormal, Values: column}
	}

	if IsNormal(trimmed, alpha) {
		return preparation{Distribution: DistNormal, Values: trimmed}
	}

	if allPositive(trimmed) {
		transformed, point := powerTransform(trimmed, "box-cox")
		if IsNormal(transformed, alpha) {
			return preparation{Distribution: DistNormal, Values: trimmed, Transform: point, Transformed: transformed}
		}
	}
	transformed, point := powerTransform(trimmed, "yeo-johnson")
	if IsNormal(transformed, alpha) {
		return preparation{Distribution: DistNormal, Values: trimmed, Transform: point, Transformed: transformed}
	}

	transformed, point = quantileTransform(trimmed)
	if IsNormal(transformed, alpha) {
		return preparation{Distribution: DistNormal, Values: trimmed, Transform: point, Transformed: transformed}
	}

	if isNonNegativeIntegers(column) {
		return preparation{Distribution: DistCountNonNormal, Values: trimmed}
	}
	return preparation{Distribution: DistNonNormal, Values: trimmed}
}

// trimOutliers drops values beyond three standard deviations from the
// column mean. One pass only, the cut is not reapplied to the survivors.
func trimOutliers(column []float64) []float64 {
	mean := stat.Mean(column, nil)
	sd := math.Sqrt(stat.Variance(column, nil))

	out := make([]float64, 0, len(column))
	for _, v := range column {
		if v >= mean-3*sd && v <= mean+3*sd {
			out = append(out, v)
		}
	}
	return out
}

// isZeroInflated tests for more zeros than a Poisson model predicts, after
// Jan van den Broek's score test against a chi-square with one degree of
// freedom. An all-zero column is trivially zero-inflated.
func isZeroInflated(column []float64, alpha float64) bool {
	n := len(column)
	if n == 0 {
		return false
	}

	zeros := 0
	for _, v := range column {
		if v == 0 {
			zeros++
		}
	}
	if zeros == n {
		return true
	}
	if zeros == 0 {
		return false
	}

	mu := stat.Mean(column, nil)
	p0 := math.Exp(-mu)
	nf := float64(n)

	expected := nf * p0
	denominator := nf*p0*(1-p0) - nf*mu*p0*p0
	if denominator <= 0 {
		return false
	}

	statistic := (float64(zeros) - expected) * (float64(zeros) - expected) / denominator
	chi2 := distuv.ChiSquared{K: 1}
	return chi2.Survival(statistic) < alpha
}

func isNonNegativeIntegers(column []float64) bool {
	for _, v := range column {
		if v < 0 || v != math.Trunc(v) {
			return false
		}
	}
	return true
}

func allPositive(column []float64) bool {
	for _, v := range column {
		if v <= 0 {
			return false
		}
	}
	return len(column) > 0
}

func distinctCount(column []float64) int {
	seen := make(map[float64]struct{}, len(column))
	for _, v := range column {
		seen[v] = struct{}{}
	}
	return len(seen)
}
