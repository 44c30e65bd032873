package grading

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// giniWeights derives per-metric importance weights from the spread of each
// reference column, normalized to sum 1. Constant columns carry no
// information and get weight 0.
func giniWeights(columns [][]float64) []float64 {
	weights := make([]float64, len(columns))

	for j, column := range columns {
		m := len(column)
		if m < 2 || distinctCount(column) == 1 {
			continue
		}

		mean := stat.Mean(column, nil)
		sum := 0.0
		for _, a := range column {
			for _, b := range column {
				sum += math.Abs(a - b)
			}
		}

		mf := float64(m)
		if mean != 0 {
			weights[j] = sum / (2 * mf * mf * mean)
		} else {
			weights[j] = sum / (mf*mf - mf)
		}
	}

	return normalizeWeights(weights)
}

// criticWeights is the CRITIC variant: contrast intensity times conflict
// with the other criteria, over a min-max normalized decision matrix. The
// columns must be row-aligned.
func criticWeights(columns [][]float64) []float64 {
	n := len(columns)
	weights := make([]float64, n)
	if n == 0 {
		return weights
	}

	normalized := make([][]float64, n)
	constant := make([]bool, n)
	for j, column := range columns {
		lo, hi := minMax(column)
		if hi == lo {
			constant[j] = true
			normalized[j] = make([]float64, len(column))
			continue
		}
		scaled := make([]float64, len(column))
		for i, v := range column {
			scaled[i] = (v - lo) / (hi - lo)
		}
		normalized[j] = scaled
	}

	for j := range columns {
		if constant[j] {
			continue
		}
		sd := math.Sqrt(populationVariance(normalized[j]))
		conflict := 0.0
		for k := range columns {
			if constant[k] {
				conflict += 1
				continue
			}
			conflict += 1 - stat.Correlation(normalized[j], normalized[k], nil)
		}
		weights[j] = sd * conflict
	}

	return normalizeWeights(weights)
}

func normalizeWeights(weights []float64) []float64 {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return weights
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights
}

func minMax(column []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range column {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
