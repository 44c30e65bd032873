package grading_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/mkessler/flight-data-evaluation-tool/evaluation"
	"github.com/mkessler/flight-data-evaluation-tool/grading"
	"github.com/mkessler/flight-data-evaluation-tool/telemetry"
)

// normalSample returns n evenly spaced quantiles of N(mu, sigma), a
// deterministic stand-in for a normally distributed reference column.
func normalSample(n int, mu, sigma float64) []float64 {
	dist := distuv.Normal{Mu: mu, Sigma: sigma}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = dist.Quantile((float64(i) + 0.5) / float64(n))
	}
	return out
}

func TestIsNormal(t *testing.T) {
	convey.Convey("Given the normality decision", t, func() {
		convey.Convey("A sample following the normal quantiles passes", func() {
			convey.So(grading.IsNormal(normalSample(50, 10, 2), grading.DefaultAlpha), convey.ShouldBeTrue)
		})

		convey.Convey("A strongly skewed sample is rejected", func() {
			skewed := normalSample(50, 0, 1)
			for i, v := range skewed {
				skewed[i] = math.Exp(2 * v)
			}
			convey.So(grading.IsNormal(skewed, grading.DefaultAlpha), convey.ShouldBeFalse)
		})

		convey.Convey("Samples below the minimum size never pass", func() {
			convey.So(grading.IsNormal(normalSample(7, 0, 1), grading.DefaultAlpha), convey.ShouldBeFalse)
		})
	})
}

// referenceRecords builds one reference record per row of the given columns
func referenceRecords(columns map[string][]float64) []*evaluation.Record {
	n := 0
	for _, column := range columns {
		n = len(column)
		break
	}
	records := make([]*evaluation.Record, n)
	for i := range records {
		rec := evaluation.NewRecord(telemetry.SessionMeta{Scenario: "ISS Docking"})
		for name, column := range columns {
			rec.Set(name, column[i])
		}
		records[i] = rec
	}
	return records
}

func gradingSchema(t *testing.T, body string) *evaluation.Schema {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results_template.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	schema, err := evaluation.LoadSchema(path)
	if err != nil {
		t.Fatal(err)
	}
	return schema
}

func TestGrade(t *testing.T) {
	convey.Convey("Given a normally distributed reference population", t, func() {
		schema := gradingSchema(t, `{"columns": {"Fuel_FA": {}, "Start_FA": {"Unit": "[s]", "optional": true}}}`)
		reference := referenceRecords(map[string][]float64{
			"Fuel_FA":  normalSample(30, 10, 2),
			"Start_FA": normalSample(30, 80, 5),
		})

		convey.Convey("A value at the population mean lands in the middle tier", func() {
			rec := evaluation.NewRecord(telemetry.SessionMeta{})
			rec.Set("Fuel_FA", 10)
			rec.Set("Start_FA", 80)

			tiered, columns, err := grading.Grade(rec, "FA", reference, schema, grading.DefaultAlpha)
			convey.So(err, convey.ShouldBeNil)
			convey.So(tiered, convey.ShouldHaveLength, 2)
			convey.So(columns["Fuel_FA"], convey.ShouldHaveLength, 30)

			fuel := tiered[0]
			convey.So(fuel.Name, convey.ShouldEqual, "Fuel_FA")
			convey.So(fuel.Distribution, convey.ShouldEqual, grading.DistNormal)
			convey.So(fuel.Tier, convey.ShouldEqual, grading.TierNormal)
			convey.So(fuel.Mean, convey.ShouldAlmostEqual, 10, 0.1)

			convey.Convey("And the borders ascend around the mean", func() {
				for i := 0; i < 3; i++ {
					convey.So(fuel.Borders[i], convey.ShouldBeLessThanOrEqualTo, fuel.Borders[i+1])
				}
			})
		})

		convey.Convey("A value far above the population is Very Poor", func() {
			rec := evaluation.NewRecord(telemetry.SessionMeta{})
			rec.Set("Fuel_FA", 30)

			tiered, _, err := grading.Grade(rec, "FA", reference, schema, grading.DefaultAlpha)
			convey.So(err, convey.ShouldBeNil)
			convey.So(tiered[0].Tier, convey.ShouldEqual, grading.TierVeryPoor)
		})

		convey.Convey("A zero value is Excellent regardless of the population", func() {
			rec := evaluation.NewRecord(telemetry.SessionMeta{})
			rec.Set("Fuel_FA", 0)

			tiered, _, err := grading.Grade(rec, "FA", reference, schema, grading.DefaultAlpha)
			convey.So(err, convey.ShouldBeNil)
			convey.So(tiered[0].Tier, convey.ShouldEqual, grading.TierExcellent)
		})

		convey.Convey("Optional metrics are graded as Not Tierable with zero weight", func() {
			rec := evaluation.NewRecord(telemetry.SessionMeta{})
			rec.Set("Fuel_FA", 10)
			rec.Set("Start_FA", 80)

			tiered, _, err := grading.Grade(rec, "FA", reference, schema, grading.DefaultAlpha)
			convey.So(err, convey.ShouldBeNil)

			start := tiered[1]
			convey.So(start.Name, convey.ShouldEqual, "Start_FA")
			convey.So(start.Tier, convey.ShouldEqual, grading.TierNotTierable)
			convey.So(start.Weight, convey.ShouldEqual, 0)

			convey.Convey("And the tierable weights normalize to one", func() {
				sum := 0.0
				for _, tm := range tiered {
					sum += tm.Weight
				}
				convey.So(sum, convey.ShouldAlmostEqual, 1)
			})
		})
	})

	convey.Convey("Given a reference column of nothing but zeros", t, func() {
		schema := gradingSchema(t, `{"columns": {"THCyErr_Appr": {}}}`)
		reference := referenceRecords(map[string][]float64{
			"THCyErr_Appr": make([]float64, 20),
		})
		rec := evaluation.NewRecord(telemetry.SessionMeta{})
		rec.Set("THCyErr_Appr", 0)

		tiered, _, err := grading.Grade(rec, "Appr", reference, schema, grading.DefaultAlpha)
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("The column classifies as zero-inflated and the value as Excellent", func() {
			convey.So(tiered[0].Distribution, convey.ShouldEqual, grading.DistZeroInflated)
			convey.So(tiered[0].Distribution.Percentile(), convey.ShouldBeTrue)
			convey.So(tiered[0].Tier, convey.ShouldEqual, grading.TierExcellent)
		})
	})

	convey.Convey("Given a constant non-zero reference column", t, func() {
		schema := gradingSchema(t, `{"columns": {"Duration_Align": {}}}`)
		column := make([]float64, 15)
		for i := range column {
			column[i] = 5
		}
		reference := referenceRecords(map[string][]float64{"Duration_Align": column})

		convey.Convey("It degrades to percentile grading over the raw values", func() {
			rec := evaluation.NewRecord(telemetry.SessionMeta{})
			rec.Set("Duration_Align", 5)

			tiered, _, err := grading.Grade(rec, "Align", reference, schema, grading.DefaultAlpha)
			convey.So(err, convey.ShouldBeNil)
			convey.So(tiered[0].Distribution, convey.ShouldEqual, grading.DistNonNormal)
			convey.So(tiered[0].Tier, convey.ShouldEqual, grading.TierExcellent)
			convey.So(tiered[0].Percentile, convey.ShouldAlmostEqual, 1)
		})

		convey.Convey("A value above the constant falls off the scale", func() {
			rec := evaluation.NewRecord(telemetry.SessionMeta{})
			rec.Set("Duration_Align", 6)

			tiered, _, err := grading.Grade(rec, "Align", reference, schema, grading.DefaultAlpha)
			convey.So(err, convey.ShouldBeNil)
			convey.So(tiered[0].Tier, convey.ShouldEqual, grading.TierVeryPoor)
		})
	})

	convey.Convey("Given a skewed reference that a power transform can normalize", t, func() {
		schema := gradingSchema(t, `{"columns": {"Fuel_Appr": {}}}`)
		column := normalSample(40, 0, 1)
		for i, v := range column {
			column[i] = math.Exp(v)
		}
		reference := referenceRecords(map[string][]float64{"Fuel_Appr": column})
		rec := evaluation.NewRecord(telemetry.SessionMeta{})
		rec.Set("Fuel_Appr", 1)

		tiered, _, err := grading.Grade(rec, "Appr", reference, schema, grading.DefaultAlpha)
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("It still grades on the normal path, in transformed space", func() {
			convey.So(tiered[0].Distribution, convey.ShouldEqual, grading.DistNormal)
			// exp(0) = 1 is the median of the population
			convey.So(tiered[0].Tier, convey.ShouldEqual, grading.TierNormal)
		})
	})

	convey.Convey("Given no reference data at all", t, func() {
		schema := gradingSchema(t, `{"columns": {"Fuel_FA": {}}}`)
		rec := evaluation.NewRecord(telemetry.SessionMeta{})

		_, _, err := grading.Grade(rec, "FA", nil, schema, grading.DefaultAlpha)
		convey.So(errors.Is(err, grading.ErrNoReferenceData), convey.ShouldBeTrue)
	})
}

func TestPhaseScore(t *testing.T) {
	convey.Convey("Given tiered metrics with weights", t, func() {
		tiered := []grading.TieredMetric{
			{Name: "a", Tier: grading.TierExcellent, Weight: 0.5},
			{Name: "b", Tier: grading.TierPoor, Weight: 0.5},
			{Name: "c", Tier: grading.TierNotTierable, Weight: 0},
		}

		convey.Convey("The score is the weighted tier factor sum", func() {
			convey.So(grading.PhaseScore(tiered), convey.ShouldAlmostEqual, 0.5*1+0.5*4)
		})
	})
}

func TestCapability(t *testing.T) {
	convey.Convey("Given the scoring capability exchange", t, func() {
		convey.So(grading.Unlock("s3cret", "s3cret").ScoringEnabled(), convey.ShouldBeTrue)
		convey.So(grading.Unlock("wrong", "s3cret").ScoringEnabled(), convey.ShouldBeFalse)
		convey.So(grading.Unlock("", "").ScoringEnabled(), convey.ShouldBeFalse)
	})
}

func TestFinalGrade(t *testing.T) {
	schemaBody := `{"columns": {"Fuel_Align": {}, "Fuel_Appr": {}, "Fuel_FA": {}}}`

	convey.Convey("Given a locked capability", t, func() {
		schema := gradingSchema(t, schemaBody)
		rec := evaluation.NewRecord(telemetry.SessionMeta{})

		_, _, err := grading.FinalGrade(rec, nil, schema, grading.DefaultAlpha, grading.Capability{})
		convey.So(err, convey.ShouldNotBeNil)
		convey.So(err.Error(), convey.ShouldContainSubstring, "scoring is locked")
	})

	convey.Convey("Given an unlocked capability and a reference population", t, func() {
		schema := gradingSchema(t, schemaBody)
		reference := referenceRecords(map[string][]float64{
			"Fuel_Align": normalSample(30, 4, 1),
			"Fuel_Appr":  normalSample(30, 8, 2),
			"Fuel_FA":    normalSample(30, 10, 2),
		})
		capability := grading.Unlock("s3cret", "s3cret")

		convey.Convey("A flawless flight scores the theoretical minimum", func() {
			rec := evaluation.NewRecord(telemetry.SessionMeta{})
			rec.Set("Fuel_Align", 0)
			rec.Set("Fuel_Appr", 0)
			rec.Set("Fuel_FA", 0)

			total, subScores, err := grading.FinalGrade(rec, reference, schema, grading.DefaultAlpha, capability)
			convey.So(err, convey.ShouldBeNil)
			convey.So(subScores, convey.ShouldHaveLength, 3)
			for _, phase := range []string{"Align", "Appr", "FA"} {
				convey.So(subScores[phase], convey.ShouldAlmostEqual, 1)
			}
			// relevance weights 0.2 + 0.3 + 0.5 over all-Excellent phases
			convey.So(total, convey.ShouldAlmostEqual, 1)
		})

		convey.Convey("A uniformly poor flight scores worse", func() {
			rec := evaluation.NewRecord(telemetry.SessionMeta{})
			rec.Set("Fuel_Align", 100)
			rec.Set("Fuel_Appr", 100)
			rec.Set("Fuel_FA", 100)

			total, _, err := grading.FinalGrade(rec, reference, schema, grading.DefaultAlpha, capability)
			convey.So(err, convey.ShouldBeNil)
			convey.So(total, convey.ShouldAlmostEqual, 5)
		})
	})
}
