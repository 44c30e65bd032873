package telemetry_test

import (
	"math"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/mkessler/flight-data-evaluation-tool/telemetry"
)

func rawSeries(t *testing.T, columns []string, rows [][]float64) *telemetry.FlightSeries {
	t.Helper()
	series, err := telemetry.NewFlightSeries(columns, rows)
	if err != nil {
		t.Fatal(err)
	}
	return series
}

func TestStructure(t *testing.T) {
	columns := []string{
		telemetry.ColSimTime,
		telemetry.ColCOGPosX, telemetry.ColCOGPosY, telemetry.ColCOGPosZ,
		telemetry.ColCOGVelX, telemetry.ColCOGVelY, telemetry.ColCOGVelZ,
		telemetry.ColPortPosX, telemetry.ColPortPosY, telemetry.ColPortPosZ,
		"THC.x", "THC.y", "THC.z",
		"RHC.x", "RHC.y", "RHC.z",
		"Rot. Rate.Z [deg/s]",
	}

	convey.Convey("Given a freshly parsed series", t, func() {
		rows := [][]float64{
			// pos (100,3,4), port (96,3,4), vel (-0.5, 0.3, 0.4), THC (1,2,3), RHC (4,5,6)
			{0, 100, 3, 4, -0.5, 0.3, 0.4, 96, 3, 4, 1, 2, 3, 4, 5, 6, 0.7},
			// inside final corridor, port contact
			{1, 10, 0, 0, -0.1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		}
		series := rawSeries(t, columns, rows)
		convey.So(telemetry.Structure(series), convey.ShouldBeNil)

		convey.Convey("The hand controller axes are remapped into the target frame", func() {
			// x and z swap on both sticks, translations additionally flip sign
			convey.So(series.Value("THC.x", 0), convey.ShouldEqual, -3)
			convey.So(series.Value("THC.y", 0), convey.ShouldEqual, 2)
			convey.So(series.Value("THC.z", 0), convey.ShouldEqual, -1)
			convey.So(series.Value("RHC.x", 0), convey.ShouldEqual, 6)
			convey.So(series.Value("RHC.y", 0), convey.ShouldEqual, 5)
			convey.So(series.Value("RHC.z", 0), convey.ShouldEqual, 4)
		})

		convey.Convey("The miscased rotation rate column is renamed", func() {
			convey.So(series.HasColumn("Rot. Rate.z [deg/s]"), convey.ShouldBeTrue)
			convey.So(series.HasColumn("Rot. Rate.Z [deg/s]"), convey.ShouldBeFalse)
			convey.So(series.Value("Rot. Rate.z [deg/s]", 0), convey.ShouldEqual, 0.7)
		})

		convey.Convey("Lateral offset and velocity are the off-axis magnitudes", func() {
			convey.So(series.Value(telemetry.ColLateralOffset, 0), convey.ShouldAlmostEqual, 5)
			convey.So(series.Value(telemetry.ColLateralVel, 0), convey.ShouldAlmostEqual, 0.5)
		})

		convey.Convey("The ideal approach velocity follows the profile and saturates in the corridor", func() {
			convey.So(series.Value(telemetry.ColIdealApprVel, 0), convey.ShouldAlmostEqual, -0.5)
			convey.So(series.Value(telemetry.ColIdealApprVel, 1), convey.ShouldAlmostEqual, -0.1)
		})

		convey.Convey("The approach cone radius scales with the axial distance", func() {
			convey.So(series.Value(telemetry.ColApproachCone, 0), convey.ShouldAlmostEqual, 100*math.Tan(10*math.Pi/180))
		})

		convey.Convey("The angle to the port is zero on a centered approach and NaN at contact", func() {
			// Row 0 sits on the corridor axis laterally shifted; the port and
			// vessel share the same lateral offset so the sight line points
			// straight down the x axis while the origin direction does not.
			convey.So(series.Value(telemetry.ColAngleToPort, 0), convey.ShouldBeGreaterThan, 0)
			convey.So(math.IsNaN(series.Value(telemetry.ColAngleToPort, 1)), convey.ShouldBeFalse)
		})

		convey.Convey("Rotational limits only exist between contact range and corridor entry", func() {
			convey.So(math.IsNaN(series.Value(telemetry.ColMaxRotAngle, 0)), convey.ShouldBeTrue)
			convey.So(math.IsNaN(series.Value(telemetry.ColMaxRotVelocity, 0)), convey.ShouldBeTrue)
			// port contact at row 1 means the limit window is closed again
			convey.So(math.IsNaN(series.Value(telemetry.ColMaxRotAngle, 1)), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given rows inside the limit window", t, func() {
		rows := [][]float64{
			{0, 15, 1, 1, -0.1, 0, 0, 11, 1, 1, 0, 0, 0, 0, 0, 0, 0},
		}
		series := rawSeries(t, columns, rows)
		convey.So(telemetry.Structure(series), convey.ShouldBeNil)

		convey.Convey("The rotation limits carry their fixed values", func() {
			convey.So(series.Value(telemetry.ColMaxRotAngle, 0), convey.ShouldEqual, 1.5)
			convey.So(series.Value(telemetry.ColMaxRotVelocity, 0), convey.ShouldEqual, 0.15)
		})
	})

	convey.Convey("Given a series missing a required column", t, func() {
		series := rawSeries(t, []string{telemetry.ColSimTime, telemetry.ColCOGPosX}, [][]float64{{0, 100}})

		convey.Convey("Structuring fails naming the column", func() {
			err := telemetry.Structure(series)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, telemetry.ColCOGPosY)
		})
	})
}
