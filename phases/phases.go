// Package phases segments a docking approach into its four sequential
// flight phases: Alignment, Approach, Final Approach and Docking.
package phases

import (
	"fmt"

	"github.com/mkessler/flight-data-evaluation-tool/diagnostics"
	"github.com/mkessler/flight-data-evaluation-tool/telemetry"
)

// Boundary slot indices
const (
	AlignmentStart = iota
	ApproachStart
	FinalApproachStart
	DockingTime
)

// Boundaries holds the four phase-boundary timestamps of one flight. Backup
// reports that at least one slot was filled with a fallback estimate and
// should be treated as lower confidence. Docked reports that the
// port-contact rule matched, as opposed to the end-of-log fallback.
type Boundaries struct {
	Times  [4]float64 `json:"times"`
	Backup bool       `json:"backup"`
	Docked bool       `json:"docked"`
}

// Ascending reports whether the boundaries are in non-decreasing order.
// Downstream windowed computations are ill-defined otherwise, so callers
// must check before evaluation or database insertion.
func (b Boundaries) Ascending() bool {
	for i := 0; i < len(b.Times)-1; i++ {
		if b.Times[i] > b.Times[i+1] {
			return false
		}
	}
	return true
}

// AscendingError mirrors Ascending as a typed validation failure
func (b Boundaries) AscendingError() error {
	if b.Ascending() {
		return nil
	}
	return fmt.Errorf("phase timestamps have to be in ascending order (from smallest to largest) but are actually not: %v; "+
		"make sure that the order of the phases is: Alignment Start <= Approach Start <= Final Approach Start <= Docking Time", b.Times)
}

var controllerAxes = []string{"THC.x", "THC.y", "THC.z", "RHC.x", "RHC.y", "RHC.z"}

// Detect calculates the timestamps of the different flight phases based on
// rule predicates over the structured series. It never fails: slots whose
// rule finds no match are filled with interpolated backup values and a
// diagnostic is emitted for each.
func Detect(series *telemetry.FlightSeries, sink diagnostics.Sink) Boundaries {
	n := series.Len()
	times := series.Times()

	resolved := [4]bool{}
	boundaries := Boundaries{}

	// Checkout -> Alignment: first sample with any controller input
	alignmentFound := false
	for i := 0; i < n && !alignmentFound; i++ {
		for _, axis := range controllerAxes {
			if series.Value(axis, i) != 0 {
				boundaries.Times[AlignmentStart] = times[i]
				alignmentFound = true
				break
			}
		}
	}
	if alignmentFound {
		resolved[AlignmentStart] = true
	} else {
		boundaries.Times[AlignmentStart] = times[0]
		boundaries.Backup = true
		resolved[AlignmentStart] = true
		diagnostics.Warningf(sink, "phases",
			"No Controller Input, check Log-File integrity, BACKUP value t=%v is used.", times[0])
	}

	// Alignment -> Approach: closing velocity at or past -0.1 and still
	// increasing towards the station, strictly after the alignment start
	for i := 0; i < n-1; i++ {
		velocity := series.Value(telemetry.ColCOGVelX, i)
		if velocity <= -0.1 &&
			velocity > series.Value(telemetry.ColCOGVelX, i+1) &&
			times[i] > boundaries.Times[AlignmentStart] {
			boundaries.Times[ApproachStart] = times[i]
			resolved[ApproachStart] = true
			break
		}
	}

	// Approach -> Final Approach: axial distance below 20 m
	for i := 0; i < n; i++ {
		if series.Value(telemetry.ColCOGPosX, i) < 20 {
			boundaries.Times[FinalApproachStart] = times[i]
			resolved[FinalApproachStart] = true
			break
		}
	}

	// Final Approach -> Docked: the port-contact flag in the telemetry
	dockingFound := false
	for i := 0; i < n; i++ {
		if series.Value(telemetry.ColPortPosX, i) == 0 {
			boundaries.Times[DockingTime] = times[i]
			dockingFound = true
			break
		}
	}
	if dockingFound {
		resolved[DockingTime] = true
		boundaries.Docked = true
	} else {
		boundaries.Times[DockingTime] = times[n-1]
		boundaries.Backup = true
		resolved[DockingTime] = true
		diagnostics.Warningf(sink, "phases",
			"Vessel not docked, BACKUP value t=%v is used.", times[n-1])
	}

	if !resolved[ApproachStart] || !resolved[FinalApproachStart] {
		interpolateBackup(series, &boundaries, &resolved, sink)
	}

	return boundaries
}

// interpolateBackup fills unresolved boundary slots from the time-index
// range between their resolved neighbours: two consecutive unresolved slots
// take the 1/3 and 2/3 index points, a single one takes the midpoint. The
// fractions are a rough heuristic kept for output compatibility, not a
// validated model.
func interpolateBackup(series *telemetry.FlightSeries, boundaries *Boundaries, resolved *[4]bool, sink diagnostics.Sink) {
	boundaries.Backup = true
	times := series.Times()

	for index := 0; index < len(boundaries.Times)-1; index++ {
		switch {
		case !resolved[index] && !resolved[index+1]:
			startIndex := rowIndexOf(series, boundaries.Times[index-1])
			stopIndex := rowIndexOf(series, boundaries.Times[index+2])

			boundaries.Times[index] = times[startIndex+(stopIndex-startIndex)*1/3]
			boundaries.Times[index+1] = times[startIndex+(stopIndex-startIndex)*2/3]
			resolved[index] = true
			resolved[index+1] = true

			diagnostics.Warningf(sink, "phases",
				"End of alignment phase could not be calculated, BACKUP value t=%v is used.", boundaries.Times[index])
			diagnostics.Warningf(sink, "phases",
				"No Final Approach Phase, BACKUP value t=%v is used.", boundaries.Times[index+1])
			return

		case !resolved[index]:
			startIndex := rowIndexOf(series, boundaries.Times[index-1])
			stopIndex := rowIndexOf(series, boundaries.Times[index+1])

			boundaries.Times[index] = times[startIndex+(stopIndex-startIndex)*1/2]
			resolved[index] = true

			if index == ApproachStart {
				diagnostics.Warningf(sink, "phases",
					"End of alignment phase could not be calculated, BACKUP value t=%v is used.", boundaries.Times[index])
			} else {
				diagnostics.Warningf(sink, "phases",
					"No Final Approach Phase, BACKUP value t=%v is used.", boundaries.Times[index])
			}
			return
		}
	}
}

func rowIndexOf(series *telemetry.FlightSeries, t float64) int {
	if i, ok := series.IndexOfTime(t); ok {
		return i
	}
	// Boundary values always come from real samples; snapping keeps the
	// lookup total for manually adjusted values.
	i, _ := series.IndexOfTime(series.SnapTime(t))
	return i
}

// Snap maps every boundary onto the nearest real SimTime sample. Manual
// adjustments from the caller must pass through here before evaluation.
func Snap(series *telemetry.FlightSeries, boundaries Boundaries) Boundaries {
	for i, t := range boundaries.Times {
		boundaries.Times[i] = series.SnapTime(t)
	}
	return boundaries
}
