package telemetry_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/mkessler/flight-data-evaluation-tool/diagnostics"
	"github.com/mkessler/flight-data-evaluation-tool/telemetry"
)

func writeSessionFiles(t *testing.T, dir string, contents []string) []string {
	t.Helper()
	var paths []string
	for i, content := range contents {
		path := filepath.Join(dir, fmt.Sprintf("FDL_test_%04d.log", i))
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, path)
	}
	return paths
}

const simpleHeader = "SimTime; COG Pos.x [m]; Tank mass [kg]"

func TestParseSession(t *testing.T) {
	convey.Convey("Given a complete two-file session", t, func() {
		dir := t.TempDir()
		paths := writeSessionFiles(t, dir, []string{
			"# Logger Version: 1.4\n" +
				"# SESSION_ID: S-42\n" +
				"# PILOT: P007\n" +
				"# TIME: 2024-05-13 14:02:11\n" +
				"# SCENARIO: ISS Docking\n" +
				simpleHeader + "\n" +
				"0.0; 100.0; 500.0\n" +
				"1.0; 99.0; 499.5\n",
			simpleHeader + "\n" +
				"2.0; 98.0; 499.0\n" +
				"# Log stopped.\n",
		})

		convey.Convey("When the session is parsed", func() {
			series, meta, err := telemetry.ParseSession(paths, diagnostics.Discard)

			convey.Convey("Then all data rows and the metadata are recovered", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(series.Len(), convey.ShouldEqual, 3)
				convey.So(series.Times(), convey.ShouldResemble, []float64{0, 1, 2})
				convey.So(meta.LoggerVersion, convey.ShouldEqual, "1.4")
				convey.So(meta.SessionID, convey.ShouldEqual, "S-42")
				convey.So(meta.Pilot, convey.ShouldEqual, "P007")
				convey.So(meta.Date, convey.ShouldEqual, 13)
				convey.So(meta.Scenario, convey.ShouldEqual, "ISS Docking")
			})
		})

		convey.Convey("When the same session is parsed twice", func() {
			first, firstMeta, err1 := telemetry.ParseSession(paths, diagnostics.Discard)
			second, secondMeta, err2 := telemetry.ParseSession(paths, diagnostics.Discard)

			convey.Convey("Then the result is identical including the flight ID", func() {
				convey.So(err1, convey.ShouldBeNil)
				convey.So(err2, convey.ShouldBeNil)
				convey.So(firstMeta.FlightID, convey.ShouldEqual, secondMeta.FlightID)
				convey.So(firstMeta.FlightID, convey.ShouldNotBeEmpty)
				convey.So(first.ColumnNames(), convey.ShouldResemble, second.ColumnNames())
				for _, name := range first.ColumnNames() {
					convey.So(first.Column(name), convey.ShouldResemble, second.Column(name))
				}
			})
		})
	})

	convey.Convey("Given a session without the terminating sentinel", t, func() {
		dir := t.TempDir()
		paths := writeSessionFiles(t, dir, []string{
			simpleHeader + "\n0.0; 100.0; 500.0\n1.0; 99.0; 499.5\n",
		})

		convey.Convey("Then parsing fails with the missing-log reason", func() {
			_, _, err := telemetry.ParseSession(paths, diagnostics.Discard)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "Last Log of the session is missing")
		})
	})

	convey.Convey("Given a data line that does not match the header width", t, func() {
		dir := t.TempDir()
		paths := writeSessionFiles(t, dir, []string{
			simpleHeader + "\n0.0; 100.0\n# Log stopped.\n",
		})

		convey.Convey("Then parsing fails naming the file and line", func() {
			_, _, err := telemetry.ParseSession(paths, diagnostics.Discard)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "FDL_test_0000.log line 2")
		})
	})

	convey.Convey("Given a data line with a malformed float", t, func() {
		dir := t.TempDir()
		paths := writeSessionFiles(t, dir, []string{
			simpleHeader + "\n0.0; 100.0; abc\n# Log stopped.\n",
		})

		convey.Convey("Then parsing fails with the offending value", func() {
			_, _, err := telemetry.ParseSession(paths, diagnostics.Discard)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, `invalid value "abc"`)
		})
	})
}

func TestHeaderFixups(t *testing.T) {
	convey.Convey("Given a raw header with the logger concatenation bug and unlabeled matrix columns", t, func() {
		matrixElements := []string{"m12", "m13", "m21", "m22", "m23", "m31", "m32", "m33"}
		header := "SimTime; MFDRightMyROT.m11"
		for i := 0; i < 2; i++ {
			header += "; " + strings.Join(matrixElements, "; ")
		}

		values := make([]string, 19)
		for i := range values {
			values[i] = fmt.Sprintf("%d.0", i)
		}
		values[0] = "0.5"

		dir := t.TempDir()
		paths := writeSessionFiles(t, dir, []string{
			header + "\n" + strings.Join(values, "; ") + "\n# Log stopped.\n",
		})

		convey.Convey("When the session is parsed", func() {
			series, _, err := telemetry.ParseSession(paths, diagnostics.Discard)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the merged field is split and each element is labeled by occurrence", func() {
				names := series.ColumnNames()
				convey.So(names[0], convey.ShouldEqual, "SimTime")
				convey.So(names[1], convey.ShouldEqual, "MFDRight")
				convey.So(names[2], convey.ShouldEqual, "MyROT.m11")

				for _, element := range matrixElements {
					convey.So(names, convey.ShouldContain, "MyROT."+element)
					convey.So(names, convey.ShouldContain, "TgtRot."+element)
					convey.So(indexOf(names, "MyROT."+element), convey.ShouldBeLessThan, indexOf(names, "TgtRot."+element))
				}
			})
		})
	})
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func TestValidateSession(t *testing.T) {
	convey.Convey("Given session file name validation", t, func() {
		convey.Convey("A wrong extension is rejected", func() {
			_, err := telemetry.ValidateSession([]string{"FDL_test_0000.txt"})
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "'.log' is required")
		})

		convey.Convey("A missing FDL prefix is rejected", func() {
			_, err := telemetry.ValidateSession([]string{"XYZ_test_0000.log"})
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "don't starts with FDL")
		})

		convey.Convey("Logs from different sessions are rejected", func() {
			_, err := telemetry.ValidateSession([]string{"FDL_a_0000.log", "FDL_b_0001.log"})
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "same Session")
		})

		convey.Convey("A gap in the numbering is rejected", func() {
			_, err := telemetry.ValidateSession([]string{"FDL_test_0000.log", "FDL_test_0002.log"})
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "Not all Logs of the Session are provided")
		})

		convey.Convey("A contiguous session is sorted by basename", func() {
			sorted, err := telemetry.ValidateSession([]string{"FDL_test_0001.log", "FDL_test_0000.log"})
			convey.So(err, convey.ShouldBeNil)
			convey.So(filepath.Base(sorted[0]), convey.ShouldEqual, "FDL_test_0000.log")
		})
	})
}
