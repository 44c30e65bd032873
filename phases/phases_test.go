package phases_test

import (
	"fmt"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/mkessler/flight-data-evaluation-tool/diagnostics"
	"github.com/mkessler/flight-data-evaluation-tool/phases"
	"github.com/mkessler/flight-data-evaluation-tool/telemetry"
)

var phaseColumns = []string{
	telemetry.ColSimTime,
	"THC.x", "THC.y", "THC.z", "RHC.x", "RHC.y", "RHC.z",
	telemetry.ColCOGVelX,
	telemetry.ColCOGPosX,
	telemetry.ColPortPosX,
}

// buildSeries fills rows as {SimTime, 6 controller axes, Vel.x, Pos.x, Port.x}
func buildSeries(t *testing.T, rows [][]float64) *telemetry.FlightSeries {
	t.Helper()
	series, err := telemetry.NewFlightSeries(phaseColumns, rows)
	if err != nil {
		t.Fatal(err)
	}
	return series
}

func TestDetect(t *testing.T) {
	convey.Convey("Given a nominal approach profile", t, func() {
		var rows [][]float64
		for i := 0; i <= 150; i++ {
			t := float64(i)
			row := make([]float64, len(phaseColumns))
			row[0] = t
			if t >= 10 {
				row[5] = 0.3 // RHC.y deflection marks the first input
			}
			switch {
			case t < 50:
				row[7] = 0
			default:
				row[7] = -0.1 - 0.01*(t-50)
			}
			row[8] = 99.9 - t
			if t < 120 {
				row[9] = 120 - t
			}
			rows = append(rows, row)
		}
		series := buildSeries(t, rows)

		convey.Convey("When the phases are detected", func() {
			collector := &diagnostics.Collector{}
			boundaries := phases.Detect(series, collector)

			convey.Convey("Then every rule resolves to its intended timestamp", func() {
				convey.So(boundaries.Times, convey.ShouldResemble, [4]float64{10, 50, 80, 120})
				convey.So(boundaries.Backup, convey.ShouldBeFalse)
				convey.So(boundaries.Docked, convey.ShouldBeTrue)
				convey.So(boundaries.Ascending(), convey.ShouldBeTrue)
				convey.So(collector.Messages(), convey.ShouldBeEmpty)
			})
		})
	})

	convey.Convey("Given a log without any controller input", t, func() {
		rows := [][]float64{
			{0, 0, 0, 0, 0, 0, 0, 0, 100, 96},
			{1, 0, 0, 0, 0, 0, 0, -0.2, 15, 11},
			{2, 0, 0, 0, 0, 0, 0, -0.3, 5, 1},
			{3, 0, 0, 0, 0, 0, 0, -0.05, 0.1, 0},
		}
		series := buildSeries(t, rows)
		collector := &diagnostics.Collector{}
		boundaries := phases.Detect(series, collector)

		convey.Convey("The first sample backs up the alignment start", func() {
			convey.So(boundaries.Times[phases.AlignmentStart], convey.ShouldEqual, 0)
			convey.So(boundaries.Backup, convey.ShouldBeTrue)
			convey.So(collector.Messages(), convey.ShouldContain,
				"No Controller Input, check Log-File integrity, BACKUP value t=0 is used.")
		})
	})

	convey.Convey("Given a flight that never reaches port contact", t, func() {
		rows := [][]float64{
			{0, 0, 1, 0, 0, 0, 0, 0, 100, 96},
			{1, 0, 1, 0, 0, 0, 0, -0.2, 80, 76},
			{2, 0, 1, 0, 0, 0, 0, -0.3, 15, 11},
			{3, 0, 1, 0, 0, 0, 0, -0.05, 12, 8},
		}
		series := buildSeries(t, rows)
		collector := &diagnostics.Collector{}
		boundaries := phases.Detect(series, collector)

		convey.Convey("The last sample backs up the docking time", func() {
			convey.So(boundaries.Times[phases.DockingTime], convey.ShouldEqual, 3)
			convey.So(boundaries.Backup, convey.ShouldBeTrue)
			convey.So(boundaries.Docked, convey.ShouldBeFalse)
			convey.So(collector.Messages(), convey.ShouldContain,
				"Vessel not docked, BACKUP value t=3 is used.")
		})
	})

	convey.Convey("Given a log where neither the approach nor the final approach rule fires", t, func() {
		var rows [][]float64
		for i := 0; i <= 12; i++ {
			t := float64(i)
			row := make([]float64, len(phaseColumns))
			row[0] = t
			row[2] = 1 // constant THC.y input from the start
			row[7] = -0.05
			row[8] = 50
			if t < 12 {
				row[9] = 12 - t
			}
			rows = append(rows, row)
		}
		series := buildSeries(t, rows)
		collector := &diagnostics.Collector{}
		boundaries := phases.Detect(series, collector)

		convey.Convey("Both inner slots interpolate at the third points of the flight", func() {
			convey.So(boundaries.Times, convey.ShouldResemble, [4]float64{0, 4, 8, 12})
			convey.So(boundaries.Backup, convey.ShouldBeTrue)
			convey.So(boundaries.Ascending(), convey.ShouldBeTrue)
			convey.So(collector.Messages(), convey.ShouldContain,
				"End of alignment phase could not be calculated, BACKUP value t=4 is used.")
			convey.So(collector.Messages(), convey.ShouldContain,
				"No Final Approach Phase, BACKUP value t=8 is used.")
		})
	})

	convey.Convey("Given a log where only the final approach rule fails", t, func() {
		rows := [][]float64{
			{0, 0, 1, 0, 0, 0, 0, 0, 100, 96},
			{1, 0, 1, 0, 0, 0, 0, -0.2, 80, 76},
			{2, 0, 1, 0, 0, 0, 0, -0.3, 60, 56},
			{3, 0, 1, 0, 0, 0, 0, -0.3, 40, 36},
			{4, 0, 1, 0, 0, 0, 0, -0.05, 25, 0},
		}
		series := buildSeries(t, rows)
		collector := &diagnostics.Collector{}
		boundaries := phases.Detect(series, collector)

		convey.Convey("The slot interpolates at the midpoint between its neighbours", func() {
			convey.So(boundaries.Times[phases.ApproachStart], convey.ShouldEqual, 1)
			convey.So(boundaries.Times[phases.FinalApproachStart], convey.ShouldEqual, 2)
			convey.So(boundaries.Backup, convey.ShouldBeTrue)
			convey.So(collector.Messages(), convey.ShouldContain,
				"No Final Approach Phase, BACKUP value t=2 is used.")
		})
	})

	convey.Convey("Given a degenerate two-sample log", t, func() {
		rows := [][]float64{
			{0, 0, 0, 0, 0, 0, 0, 0, 100, 96},
			{1, 0, 0, 0, 0, 0, 0, 0, 100, 96},
		}
		series := buildSeries(t, rows)
		boundaries := phases.Detect(series, diagnostics.Discard)

		convey.Convey("All four slots still get filled in ascending order", func() {
			convey.So(boundaries.Backup, convey.ShouldBeTrue)
			convey.So(boundaries.Ascending(), convey.ShouldBeTrue)
			convey.So(boundaries.Times[phases.DockingTime], convey.ShouldEqual, 1)
		})
	})
}

func TestBoundariesOrdering(t *testing.T) {
	convey.Convey("Given boundary timestamp validation", t, func() {
		convey.Convey("Ascending boundaries pass", func() {
			b := phases.Boundaries{Times: [4]float64{1, 2, 2, 5}}
			convey.So(b.Ascending(), convey.ShouldBeTrue)
			convey.So(b.AscendingError(), convey.ShouldBeNil)
		})

		convey.Convey("Out-of-order boundaries report the offending values", func() {
			b := phases.Boundaries{Times: [4]float64{1, 5, 2, 6}}
			convey.So(b.Ascending(), convey.ShouldBeFalse)
			err := b.AscendingError()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "ascending order")
			convey.So(err.Error(), convey.ShouldContainSubstring, fmt.Sprintf("%v", b.Times))
		})
	})
}

func TestSnap(t *testing.T) {
	convey.Convey("Given manually adjusted boundaries between samples", t, func() {
		rows := [][]float64{
			{0, 0, 1, 0, 0, 0, 0, 0, 100, 96},
			{2, 0, 1, 0, 0, 0, 0, -0.2, 15, 11},
			{4, 0, 1, 0, 0, 0, 0, -0.2, 5, 0},
		}
		series := buildSeries(t, rows)
		snapped := phases.Snap(series, phases.Boundaries{Times: [4]float64{0.4, 1.2, 2.9, 3.6}})

		convey.Convey("Every boundary lands on the nearest real sample", func() {
			convey.So(snapped.Times, convey.ShouldResemble, [4]float64{0, 2, 2, 4})
		})
	})
}
