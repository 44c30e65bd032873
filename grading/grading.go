// Package grading classifies a test flight's metrics against the historical
// population of prior flights and buckets each one into a performance tier.
package grading

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mkessler/flight-data-evaluation-tool/evaluation"
)

// DefaultAlpha is the significance level of every statistical test in the
// grading chain.
const DefaultAlpha = 0.05

// ErrNoReferenceData reports that the scenario has no historical flights to
// grade against. A hard precondition failure, checked before any
// computation.
var ErrNoReferenceData = errors.New("no reference data for scenario")

// Capability gates the scoring feature. Obtained by presenting the
// configured unlock token; a zero Capability grades but never scores.
type Capability struct {
	scoring bool
}

// Unlock exchanges a presented token for a scoring capability
func Unlock(token, expected string) Capability {
	return Capability{scoring: expected != "" && token == expected}
}

// ScoringEnabled reports whether weighted final scores may be computed
func (c Capability) ScoringEnabled() bool {
	return c.scoring
}

// totalOnlyMetrics are whole-flight fields without a phase suffix
var totalOnlyMetrics = []string{"Time_Dock", "LatOffsetAt_Dock"}

// phaseMetrics lists the schema columns belonging to one phase, in schema
// order.
func phaseMetrics(schema *evaluation.Schema, phase string) []string {
	suffix := "_" + phase
	var names []string
	for _, name := range schema.Columns() {
		if evaluation.IsMetadataField(name) {
			continue
		}
		if strings.HasSuffix(name, suffix) {
			names = append(names, name)
			continue
		}
		if phase == "Total" {
			for _, extra := range totalOnlyMetrics {
				if name == extra {
					names = append(names, name)
				}
			}
		}
	}
	return names
}

// Grade buckets every computed metric of one phase of the test flight
// against the reference records. It returns the tiered metrics in schema
// order and the raw reference columns keyed by metric name.
func Grade(rec *evaluation.Record, phase string, reference []*evaluation.Record, schema *evaluation.Schema, alpha float64) ([]TieredMetric, map[string][]float64, error) {
	if len(reference) == 0 {
		return nil, nil, fmt.Errorf("phase %s: %w", phase, ErrNoReferenceData)
	}
	if alpha <= 0 {
		alpha = DefaultAlpha
	}

	var tiered []TieredMetric
	columns := make(map[string][]float64)

	for _, name := range phaseMetrics(schema, phase) {
		value, ok := rec.Value(name)
		if !ok {
			continue
		}

		column := referenceColumn(reference, name)
		if len(column) == 0 {
			continue
		}
		columns[name] = column

		prep := classifyAndPrepare(column, alpha)
		tiered = append(tiered, tierMetric(name, value, prep, schema.Optional(name)))
	}

	attachWeights(tiered, columns)
	return tiered, columns, nil
}

// referenceColumn collects the metric across all reference records that
// carry it.
func referenceColumn(reference []*evaluation.Record, name string) []float64 {
	var column []float64
	for _, rec := range reference {
		if v, ok := rec.Value(name); ok {
			column = append(column, v)
		}
	}
	return column
}

// attachWeights computes Gini importance weights over the tierable metrics
// and writes them back onto the tiered results. Not Tierable metrics keep
// weight 0 and stay out of the normalization.
func attachWeights(tiered []TieredMetric, columns map[string][]float64) {
	var indices []int
	var matrix [][]float64
	for i, tm := range tiered {
		if tm.Tier == TierNotTierable {
			continue
		}
		indices = append(indices, i)
		matrix = append(matrix, columns[tm.Name])
	}
	if len(matrix) == 0 {
		return
	}

	weights := giniWeights(matrix)
	for k, i := range indices {
		tiered[i].Weight = weights[k]
	}
}

// phaseRelevance are the fixed relevance weights of the final score. The
// whole-flight phase is informational only and excluded.
var phaseRelevance = map[string]float64{
	"Align": 0.2,
	"Appr":  0.3,
	"FA":    0.5,
}

// PhaseScore folds one phase's tiered metrics into a weighted sub-score.
// Lower is better, 1 is a flight of nothing but Excellent metrics.
func PhaseScore(tiered []TieredMetric) float64 {
	score := 0.0
	for _, tm := range tiered {
		if tm.Tier == TierNotTierable {
			continue
		}
		score += tm.Weight * tierFactors[tm.Tier]
	}
	return score
}

// FinalGrade computes the weighted overall score of one test flight across
// the three approach phases. Requires a scoring capability.
func FinalGrade(rec *evaluation.Record, reference []*evaluation.Record, schema *evaluation.Schema, alpha float64, capability Capability) (float64, map[string]float64, error) {
	if !capability.ScoringEnabled() {
		return 0, nil, errors.New("scoring is locked: no valid capability presented")
	}

	subScores := make(map[string]float64, len(phaseRelevance))
	total := 0.0
	for phase, relevance := range phaseRelevance {
		tiered, _, err := Grade(rec, phase, reference, schema, alpha)
		if err != nil {
			return 0, nil, err
		}
		score := PhaseScore(tiered)
		subScores[phase] = score
		total += score * relevance
	}
	return total, subScores, nil
}
