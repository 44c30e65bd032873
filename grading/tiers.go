package grading

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Tier is one of the five ordered performance buckets, plus the bucket for
// metrics excluded from grading.
type Tier string

const (
	TierExcellent   Tier = "Excellent"
	TierGood        Tier = "Good"
	TierNormal      Tier = "Normal"
	TierPoor        Tier = "Poor"
	TierVeryPoor    Tier = "Very Poor"
	TierNotTierable Tier = "Not Tierable"
)

// Tiers lists the gradable buckets from best to worst
var Tiers = []Tier{TierExcellent, TierGood, TierNormal, TierPoor, TierVeryPoor}

// tierFactors convert a tier into its score contribution, lower is better
var tierFactors = map[Tier]float64{
	TierExcellent: 1,
	TierGood:      2,
	TierNormal:    3,
	TierPoor:      4,
	TierVeryPoor:  5,
}

// TieredMetric is the grading result for one metric of one test flight
type TieredMetric struct {
	Name         string       `json:"name"`
	Value        float64      `json:"value"`
	Mean         float64      `json:"mean"`
	Std          float64      `json:"std"`
	Distribution Distribution `json:"distribution"`
	Borders      [4]float64   `json:"borders"`
	Tier         Tier         `json:"tier"`
	Percentile   float64      `json:"percentile"`
	Weight       float64      `json:"weight"`
}

// tierMetric buckets one test value against a prepared reference column
func tierMetric(name string, value float64, prep preparation, optional bool) TieredMetric {
	out := TieredMetric{
		Name:         name,
		Value:        value,
		Distribution: prep.Distribution,
	}
	out.Mean = stat.Mean(prep.Values, nil)
	out.Std = math.Sqrt(stat.Variance(prep.Values, nil))

	if prep.Distribution.Percentile() {
		out.Borders = percentileBorders(prep.Values)
		out.Percentile = percentileRank(prep.Values, value)
		out.Tier = bucket(value, out.Borders)
	} else {
		compare := value
		refMean, refStd := out.Mean, out.Std
		clamp := true
		if prep.Transform != nil {
			compare = prep.Transform(value)
			refMean = stat.Mean(prep.Transformed, nil)
			refStd = math.Sqrt(stat.Variance(prep.Transformed, nil))
			// Transformed space is standardized; negative borders are
			// meaningful there.
			clamp = false
		}

		for i, k := range []float64{-2, -1, 1, 2} {
			border := refMean + k*refStd
			if clamp {
				border = math.Max(0, border)
			}
			out.Borders[i] = border
		}

		// No occurrence at all is definitionally best, regardless of how
		// the reference population distributes.
		if value == 0 {
			out.Tier = TierExcellent
		} else {
			out.Tier = bucket(compare, out.Borders)
		}
	}

	if optional {
		out.Tier = TierNotTierable
	}
	return out
}

// bucket places a value into the five tiers delimited by four ascending
// borders.
func bucket(value float64, borders [4]float64) Tier {
	switch {
	case value <= borders[0]:
		return TierExcellent
	case value <= borders[1]:
		return TierGood
	case value <= borders[2]:
		return TierNormal
	case value <= borders[3]:
		return TierPoor
	default:
		return TierVeryPoor
	}
}

// percentileRanks are the empirical equivalents of the -2, -1, +1 and +2
// sigma cut points under a normal reference.
var percentileRanks = [4]float64{0.023, 0.159, 0.841, 0.977}

// percentileBorders selects the four tier borders by nearest rank
func percentileBorders(column []float64) [4]float64 {
	sorted := append([]float64(nil), column...)
	sort.Float64s(sorted)

	var borders [4]float64
	n := len(sorted)
	if n == 0 {
		return borders
	}
	for i, p := range percentileRanks {
		rank := int(math.Round(float64(n)*p + 0.5))
		if rank < 1 {
			rank = 1
		}
		if rank > n {
			rank = n
		}
		borders[i] = sorted[rank-1]
	}
	return borders
}

// percentileRank is the fraction of reference values at or below the test
// value, 0 when it undercuts the whole reference population.
func percentileRank(column []float64, value float64) float64 {
	if len(column) == 0 {
		return 0
	}
	n := 0
	for _, v := range column {
		if v <= value {
			n++
		}
	}
	return float64(n) / float64(len(column))
}
