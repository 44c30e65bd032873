// Package evaluation derives the named performance metrics of one docking
// flight from its structured telemetry and phase boundaries. Which metrics
// get computed is driven by the external schema resource.
package evaluation

import (
	"errors"
	"fmt"
	"math"

	"github.com/mkessler/flight-data-evaluation-tool/diagnostics"
	"github.com/mkessler/flight-data-evaluation-tool/phases"
	"github.com/mkessler/flight-data-evaluation-tool/telemetry"
)

// MetricKind tags the algorithm family a result column is derived with
type MetricKind int

const (
	KindStart MetricKind = iota
	KindDuration
	KindOutOfCone
	KindAboveClosingVel
	KindFuel
	KindLatOffsetAtStart
	KindNoVisTime
	KindControllerActivity
	KindSteeringErrors
	KindCombinedInput
	KindSpectralPower
	KindAverageRMS
)

// phaseEvaluators lists the metric families in computation order. Each
// evaluator checks the schema for the columns it owns and fills the record.
var phaseEvaluators = []struct {
	kind MetricKind
	eval func(w *window, schema *Schema, rec *Record) (map[string][]float64, error)
}{
	{KindStart, evalStart},
	{KindDuration, evalDuration},
	{KindOutOfCone, evalOutOfCone},
	{KindAboveClosingVel, evalAboveClosingVel},
	{KindFuel, evalFuel},
	{KindLatOffsetAtStart, evalLatOffsetAtStart},
	{KindNoVisTime, evalNoVisTime},
	{KindControllerActivity, evalControllerActivity},
	{KindSteeringErrors, evalSteeringErrors},
	{KindCombinedInput, evalCombinedInput},
	{KindSpectralPower, evalSpectralPower},
	{KindAverageRMS, evalAverageRMS},
}

// Phase window definitions: boundary-array index pairs per phase name
var phaseWindows = []struct {
	Name  string
	Start int
	Stop  int
}{
	{"Align", 0, 1},
	{"Appr", 1, 2},
	{"FA", 2, 3},
	{"Total", 0, 3},
}

var controllers = []string{"THC", "RHC"}
var axes = []string{"x", "y", "z"}

func axisColumn(controller, axis string) string { return controller + "." + axis }
func positionColumn(axis string) string         { return "COG Pos." + axis + " [m]" }
func velocityColumn(axis string) string         { return "COG Vel." + axis + " [m]" }
func rotAngleColumn(axis string) string         { return "Rot Angle." + axis + " [deg]" }
func rotRateColumn(axis string) string          { return "Rot. Rate." + axis + " [deg/s]" }

// EvaluateFlight runs every phase evaluation over one flight and fills the
// record. The returned map carries the whole-flight steering-error
// timestamps per controller axis, for cross-referencing in plots.
func EvaluateFlight(series *telemetry.FlightSeries, boundaries phases.Boundaries, schema *Schema, rec *Record, sink diagnostics.Sink) (map[string][]float64, error) {
	var totalErrors map[string][]float64

	for _, pw := range phaseWindows {
		errorTimes, err := EvaluatePhase(series, pw.Name, pw.Start, pw.Stop, boundaries.Times, schema, rec, sink)
		if err != nil {
			return nil, fmt.Errorf("phase %s: %w", pw.Name, err)
		}
		if pw.Name == "Total" {
			totalErrors = errorTimes
		}
	}

	w := &window{series: series, phase: "Total", stamps: boundaries.Times, start: 0, stop: 3, sink: sink}
	if schema.Has("Time_Dock") {
		rec.Set("Time_Dock", boundaries.Times[phases.DockingTime])
	}
	if schema.Has("LatOffsetAt_Dock") {
		v, err := w.valueAt(telemetry.ColLateralOffset, boundaries.Times[phases.DockingTime], "LatOffsetAt_Dock")
		if err != nil {
			if herr := handleLookup(err, schema, "LatOffsetAt_Dock", sink); herr != nil {
				return nil, herr
			}
		} else {
			rec.Set("LatOffsetAt_Dock", v)
		}
	}

	return totalErrors, nil
}

// EvaluatePhase computes all schema-declared metrics of one phase window.
// For the Total phase the returned map holds the steering-error timestamps
// per controller axis; it is nil for the other phases.
func EvaluatePhase(series *telemetry.FlightSeries, phase string, startIndex, stopIndex int, stamps [4]float64, schema *Schema, rec *Record, sink diagnostics.Sink) (map[string][]float64, error) {
	if sink == nil {
		sink = diagnostics.Discard
	}
	w := &window{series: series, phase: phase, stamps: stamps, start: startIndex, stop: stopIndex, sink: sink}

	var totalErrors map[string][]float64
	for _, family := range phaseEvaluators {
		errorTimes, err := family.eval(w, schema, rec)
		if err != nil {
			return nil, err
		}
		if errorTimes != nil {
			totalErrors = errorTimes
		}
	}
	return totalErrors, nil
}

// handleLookup downgrades a lookup miss on an optional metric to a
// diagnostic; required metrics propagate the failure.
func handleLookup(err error, schema *Schema, metric string, sink diagnostics.Sink) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPhaseDataUnavailable) && schema.Optional(metric) {
		diagnostics.Warningf(sink, "evaluation", "skipping optional metric %s: %v", metric, err)
		return nil
	}
	return err
}

func evalStart(w *window, schema *Schema, rec *Record) (map[string][]float64, error) {
	name := "Start_" + w.phase
	if schema.Has(name) {
		rec.Set(name, w.startTime())
	}
	return nil, nil
}

func evalDuration(w *window, schema *Schema, rec *Record) (map[string][]float64, error) {
	name := "Duration_" + w.phase
	if schema.Has(name) {
		rec.Set(name, w.stopTime()-w.startTime())
	}
	return nil, nil
}

func evalOutOfCone(w *window, schema *Schema, rec *Record) (map[string][]float64, error) {
	name := "OutOfCone_" + w.phase
	if !schema.Has(name) {
		return nil, nil
	}
	s := w.series

	start := func(i int) bool {
		return s.Value(telemetry.ColLateralOffset, i) > s.Value(telemetry.ColApproachCone, i) &&
			(s.Prev(telemetry.ColLateralOffset, i) <= s.Prev(telemetry.ColApproachCone, i) || w.atStart(i))
	}
	stop := func(i int) bool {
		return s.Value(telemetry.ColLateralOffset, i) <= s.Value(telemetry.ColApproachCone, i) &&
			(s.Prev(telemetry.ColLateralOffset, i) > s.Prev(telemetry.ColApproachCone, i) || w.atStop(i))
	}

	rec.Set(name, w.accumulatedTime(start, stop, name))
	return nil, nil
}

func evalAboveClosingVel(w *window, schema *Schema, rec *Record) (map[string][]float64, error) {
	name := "AboveClosingVel_" + w.phase
	if !schema.Has(name) {
		return nil, nil
	}
	s := w.series

	start := func(i int) bool {
		return s.Value(telemetry.ColCOGVelX, i) < s.Value(telemetry.ColIdealApprVel, i) &&
			(s.Prev(telemetry.ColCOGVelX, i) >= s.Prev(telemetry.ColIdealApprVel, i) || w.atStart(i))
	}
	stop := func(i int) bool {
		return s.Value(telemetry.ColCOGVelX, i) >= s.Value(telemetry.ColIdealApprVel, i) &&
			(s.Prev(telemetry.ColCOGVelX, i) < s.Prev(telemetry.ColIdealApprVel, i) || w.atStop(i))
	}

	rec.Set(name, w.accumulatedTime(start, stop, name))
	return nil, nil
}

func evalFuel(w *window, schema *Schema, rec *Record) (map[string][]float64, error) {
	name := "Fuel_" + w.phase
	if !schema.Has(name) {
		return nil, nil
	}

	atStart, err := w.valueAt(telemetry.ColTankMass, w.startTime(), name)
	if err != nil {
		return nil, handleLookup(err, schema, name, w.sink)
	}
	atStop, err := w.valueAt(telemetry.ColTankMass, w.stopTime(), name)
	if err != nil {
		return nil, handleLookup(err, schema, name, w.sink)
	}

	rec.Set(name, atStart-atStop)
	return nil, nil
}

func evalLatOffsetAtStart(w *window, schema *Schema, rec *Record) (map[string][]float64, error) {
	name := "LatOffsetAtStart_" + w.phase
	if !schema.Has(name) {
		return nil, nil
	}

	v, err := w.valueAt(telemetry.ColLateralOffset, w.startTime(), name)
	if err != nil {
		return nil, handleLookup(err, schema, name, w.sink)
	}

	rec.Set(name, v)
	return nil, nil
}

// visibilityLimit is the port angle in degrees beyond which the docking
// target leaves the periscope's field of view.
const visibilityLimit = 7.5

func evalNoVisTime(w *window, schema *Schema, rec *Record) (map[string][]float64, error) {
	name := "NoVisTime_" + w.phase
	if !schema.Has(name) {
		return nil, nil
	}
	s := w.series

	start := func(i int) bool {
		return s.Value(telemetry.ColAngleToPort, i) > visibilityLimit &&
			(s.Prev(telemetry.ColAngleToPort, i) <= visibilityLimit || w.atStart(i))
	}
	stop := func(i int) bool {
		return s.Value(telemetry.ColAngleToPort, i) <= visibilityLimit &&
			(s.Prev(telemetry.ColAngleToPort, i) > visibilityLimit || w.atStop(i))
	}

	rec.Set(name, w.accumulatedTime(start, stop, name))
	return nil, nil
}

func evalControllerActivity(w *window, schema *Schema, rec *Record) (map[string][]float64, error) {
	s := w.series

	for _, controller := range controllers {
		for _, axis := range axes {
			countName := fmt.Sprintf("%s%s_%s", controller, axis, w.phase)
			avgName := fmt.Sprintf("%s%sAvgTime_%s", controller, axis, w.phase)
			if !schema.Has(countName) && !schema.Has(avgName) {
				continue
			}
			column := axisColumn(controller, axis)

			start := func(i int) bool {
				return s.Value(column, i) != 0 && s.Prev(column, i) == 0
			}
			stop := func(i int) bool {
				return s.Value(column, i) == 0 && s.Prev(column, i) != 0
			}

			if schema.Has(countName) {
				rec.Set(countName, float64(w.count(start)))
			}
			if schema.Has(avgName) {
				starts, stops := w.reconcile(w.timestamps(start), w.timestamps(stop), countName)
				rec.Set(avgName, meanRunDuration(starts, stops))
			}
		}
	}
	return nil, nil
}

// axialSteeringError flags the three translational error modes on the
// approach axis: accelerating although already faster than the ideal
// approach velocity, crossing past it while still accelerating inward, and
// accelerating outward once the vessel is already moving away.
func (w *window) axialSteeringError(i int) bool {
	s := w.series
	stick := s.Value("THC.x", i)
	stickPrev := s.Prev("THC.x", i)
	vel := s.Value(telemetry.ColCOGVelX, i)

	tooFast := vel < s.Value(telemetry.ColIdealApprVel, i)
	freshInput := tooFast && stick < 0 && stickPrev == 0
	crossing := tooFast && stick < 0 &&
		s.Prev(telemetry.ColCOGVelX, i) >= s.Prev(telemetry.ColIdealApprVel, i)
	outward := vel > 0 && stick > 0 && stickPrev == 0

	return freshInput || crossing || outward
}

// translationalErrorConditions builds the start/stop predicates of the
// lateral THC error flags. Braking inputs are gated out by the velocity
// sign, which the rotational variant deliberately omits.
func (w *window) translationalErrorConditions(axis string) (start, stop predicate) {
	s := w.series
	stickCol := axisColumn("THC", axis)
	valueCol := positionColumn(axis)
	velCol := velocityColumn(axis)

	start = func(i int) bool {
		value, stick, vel := s.Value(valueCol, i), s.Value(stickCol, i), s.Value(velCol, i)
		valuePrev, stickPrev, velPrev := s.Prev(valueCol, i), s.Prev(stickCol, i), s.Prev(velCol, i)

		leavingZero := value == 0 && stick != 0
		positive := value > 0 && stick > 0 && vel >= 0 &&
			(stickPrev == 0 || valuePrev <= 0 || velPrev < 0)
		negative := value < 0 && stick < 0 && vel <= 0 &&
			(stickPrev == 0 || valuePrev >= 0 || velPrev > 0)
		return leavingZero || positive || negative
	}

	stop = func(i int) bool {
		value, stick, vel := s.Value(valueCol, i), s.Value(stickCol, i), s.Value(velCol, i)
		valuePrev, stickPrev, velPrev := s.Prev(valueCol, i), s.Prev(stickCol, i), s.Prev(velCol, i)

		backAtZero := value != 0 && stickPrev != 0 && valuePrev == 0
		positive := value > 0 && stick <= 0 && vel >= 0 &&
			stickPrev > 0 && valuePrev > 0 && velPrev >= 0
		negative := value < 0 && stick >= 0 && vel <= 0 &&
			stickPrev < 0 && valuePrev < 0 && velPrev <= 0
		return backAtZero || positive || negative
	}
	return start, stop
}

// rotationalErrorConditions builds the start/stop predicates of the RHC
// error flags over the rotation angles. No rate gating here.
func (w *window) rotationalErrorConditions(axis string) (start, stop predicate) {
	s := w.series
	stickCol := axisColumn("RHC", axis)
	valueCol := rotAngleColumn(axis)

	start = func(i int) bool {
		value, stick := s.Value(valueCol, i), s.Value(stickCol, i)
		valuePrev, stickPrev := s.Prev(valueCol, i), s.Prev(stickCol, i)

		leavingZero := value == 0 && stick != 0
		positive := value > 0 && stick > 0 && (stickPrev == 0 || valuePrev <= 0)
		negative := value < 0 && stick < 0 && (stickPrev == 0 || valuePrev >= 0)
		return leavingZero || positive || negative
	}

	stop = func(i int) bool {
		value, stick := s.Value(valueCol, i), s.Value(stickCol, i)
		valuePrev, stickPrev := s.Prev(valueCol, i), s.Prev(stickCol, i)

		backAtZero := stickPrev != 0 && valuePrev == 0
		positive := value > 0 && stick <= 0 && stickPrev > 0 && valuePrev > 0
		negative := value < 0 && stick >= 0 && stickPrev < 0 && valuePrev < 0
		return backAtZero || positive || negative
	}
	return start, stop
}

// otherAxes lists the sibling axes checked for simultaneous input during an
// error event. Only the secondary THC axes count as independent, all three
// RHC axes do.
func otherAxes(controller, axis string) []string {
	var pool []string
	if controller == "THC" {
		pool = []string{"THC.y", "THC.z"}
	} else {
		pool = []string{"RHC.x", "RHC.y", "RHC.z"}
	}
	out := pool[:0]
	for _, name := range pool {
		if name != axisColumn(controller, axis) {
			out = append(out, name)
		}
	}
	return out
}

func evalSteeringErrors(w *window, schema *Schema, rec *Record) (map[string][]float64, error) {
	s := w.series

	var totalErrors map[string][]float64
	if w.phase == "Total" {
		totalErrors = make(map[string][]float64)
	}

	// THC.x has its own velocity-based rule and no stop condition, so it
	// never contributes to the fuel-on-error accumulation.
	axialErrors := w.timestamps(w.axialSteeringError)
	if name := "THCxErr_" + w.phase; schema.Has(name) {
		rec.Set(name, float64(len(axialErrors)))
	}
	if totalErrors != nil {
		totalErrors["THC.x"] = axialErrors
	}
	if name := "THCxIndErr_" + w.phase; schema.Has(name) {
		n := 0
		for i := 0; i < s.Len(); i++ {
			if w.contains(i) && w.axialSteeringError(i) &&
				(s.Value("THC.y", i) != 0 || s.Value("THC.z", i) != 0) {
				n++
			}
		}
		rec.Set(name, float64(n))
	}

	fuelName := "Fuel_on_Error_" + w.phase
	fuelOnError := 0.0
	haveFuel := schema.Has(fuelName)

	for _, axis := range axes {
		for _, controller := range controllers {
			if controller == "THC" && axis == "x" {
				continue
			}

			var start, stop predicate
			if controller == "THC" {
				start, stop = w.translationalErrorConditions(axis)
			} else {
				start, stop = w.rotationalErrorConditions(axis)
			}

			errorTimes := w.timestamps(start)
			if totalErrors != nil {
				totalErrors[axisColumn(controller, axis)] = errorTimes
			}

			if name := fmt.Sprintf("%s%sErr_%s", controller, axis, w.phase); schema.Has(name) {
				rec.Set(name, float64(len(errorTimes)))
			}

			if name := fmt.Sprintf("%s%sIndErr_%s", controller, axis, w.phase); schema.Has(name) {
				siblings := otherAxes(controller, axis)
				n := 0
				for i := 0; i < s.Len(); i++ {
					if !w.contains(i) || !start(i) {
						continue
					}
					for _, sibling := range siblings {
						if s.Value(sibling, i) != 0 {
							n++
							break
						}
					}
				}
				rec.Set(name, float64(n))
			}

			if haveFuel {
				starts, stops := w.reconcile(errorTimes, w.timestamps(stop), axisColumn(controller, axis))
				for i := range starts {
					atStart, err := w.valueAt(telemetry.ColTankMass, starts[i], fuelName)
					if err != nil {
						if herr := handleLookup(err, schema, fuelName, w.sink); herr != nil {
							return nil, herr
						}
						continue
					}
					atStop, err := w.valueAt(telemetry.ColTankMass, stops[i], fuelName)
					if err != nil {
						if herr := handleLookup(err, schema, fuelName, w.sink); herr != nil {
							return nil, herr
						}
						continue
					}
					fuelOnError += atStart - atStop
				}
			}
		}
	}

	if haveFuel {
		rec.Set(fuelName, fuelOnError)
	}
	return totalErrors, nil
}

func evalCombinedInput(w *window, schema *Schema, rec *Record) (map[string][]float64, error) {
	s := w.series

	anyAxis := func(controller string, i int) bool {
		for _, axis := range axes {
			if s.Value(axisColumn(controller, axis), i) != 0 {
				return true
			}
		}
		return false
	}
	anyAxisPrev := func(controller string, i int) bool {
		for _, axis := range axes {
			if s.Prev(axisColumn(controller, axis), i) != 0 {
				return true
			}
		}
		return false
	}

	if countName, timeName := "CombJoy_"+w.phase, "CombJoyTime_"+w.phase; schema.Has(countName) || schema.Has(timeName) {
		start := func(i int) bool {
			return anyAxis("THC", i) && anyAxis("RHC", i) &&
				(!anyAxisPrev("THC", i) || !anyAxisPrev("RHC", i))
		}
		stop := func(i int) bool {
			return (!anyAxis("THC", i) || !anyAxis("RHC", i)) &&
				anyAxisPrev("THC", i) && anyAxisPrev("RHC", i)
		}

		if schema.Has(countName) {
			rec.Set(countName, float64(w.count(start)))
		}
		if schema.Has(timeName) {
			rec.Set(timeName, w.accumulatedTime(start, stop, countName))
		}
	}

	for _, controller := range controllers {
		countName := fmt.Sprintf("CombJoy%syz_%s", controller, w.phase)
		timeName := fmt.Sprintf("CombJoy%syzTime_%s", controller, w.phase)
		if !schema.Has(countName) && !schema.Has(timeName) {
			continue
		}
		yCol, zCol := axisColumn(controller, "y"), axisColumn(controller, "z")

		start := func(i int) bool {
			return s.Value(yCol, i) != 0 && s.Value(zCol, i) != 0 &&
				(s.Prev(yCol, i) == 0 || s.Prev(zCol, i) == 0)
		}
		stop := func(i int) bool {
			return (s.Value(yCol, i) == 0 || s.Value(zCol, i) == 0) &&
				s.Prev(yCol, i) != 0 && s.Prev(zCol, i) != 0
		}

		if schema.Has(countName) {
			rec.Set(countName, float64(w.count(start)))
		}
		if schema.Has(timeName) {
			rec.Set(timeName, w.accumulatedTime(start, stop, countName))
		}
	}

	for _, controller := range controllers {
		countName := fmt.Sprintf("CombJoy%sxyz_%s", controller, w.phase)
		timeName := fmt.Sprintf("CombJoy%sxyzTime_%s", controller, w.phase)
		if !schema.Has(countName) && !schema.Has(timeName) {
			continue
		}
		xCol, yCol, zCol := axisColumn(controller, "x"), axisColumn(controller, "y"), axisColumn(controller, "z")

		start := func(i int) bool {
			return (s.Value(yCol, i) != 0 || s.Value(zCol, i) != 0) && s.Value(xCol, i) != 0 &&
				(s.Prev(xCol, i) == 0 || (s.Prev(yCol, i) == 0 && s.Prev(zCol, i) == 0))
		}
		stop := func(i int) bool {
			return (s.Value(xCol, i) == 0 || (s.Value(yCol, i) == 0 && s.Value(zCol, i) == 0)) &&
				(s.Prev(yCol, i) != 0 || s.Prev(zCol, i) != 0) && s.Prev(xCol, i) != 0
		}

		if schema.Has(countName) {
			rec.Set(countName, float64(w.count(start)))
		}
		if schema.Has(timeName) {
			rec.Set(timeName, w.accumulatedTime(start, stop, countName))
		}
	}

	return nil, nil
}

func evalSpectralPower(w *window, schema *Schema, rec *Record) (map[string][]float64, error) {
	for _, controller := range controllers {
		for _, axis := range axes {
			name := fmt.Sprintf("%s%sPSD_%s", controller, axis, w.phase)
			if !schema.Has(name) {
				continue
			}

			var signal []float64
			for i := 0; i < w.series.Len(); i++ {
				if w.contains(i) {
					signal = append(signal, w.series.Value(axisColumn(controller, axis), i))
				}
			}
			rec.Set(name, meanSpectralPower(signal))
		}
	}
	return nil, nil
}

var averageSignals = []struct {
	Name   string
	Column string
}{
	{"LatOff", telemetry.ColLateralOffset},
	{"ApprVel", telemetry.ColCOGVelX},
	{"LatVel", telemetry.ColLateralVel},
	{"Roll", "Rot Angle.x [deg]"},
	{"Yaw", "Rot Angle.y [deg]"},
	{"Pitch", "Rot Angle.z [deg]"},
	{"RollRate", "Rot. Rate.x [deg/s]"},
	{"YawRate", "Rot. Rate.y [deg/s]"},
	{"PitchRate", "Rot. Rate.z [deg/s]"},
}

func evalAverageRMS(w *window, schema *Schema, rec *Record) (map[string][]float64, error) {
	for _, signal := range averageSignals {
		avgName := fmt.Sprintf("%sAvg_%s", signal.Name, w.phase)
		rmsName := fmt.Sprintf("%sRms_%s", signal.Name, w.phase)
		if !schema.Has(avgName) && !schema.Has(rmsName) {
			continue
		}

		sum, sumSquares, n := 0.0, 0.0, 0
		for i := 0; i < w.series.Len(); i++ {
			if !w.contains(i) {
				continue
			}
			v := w.series.Value(signal.Column, i)
			sum += v
			sumSquares += v * v
			n++
		}

		if schema.Has(avgName) {
			if n == 0 {
				rec.Set(avgName, math.NaN())
			} else {
				rec.Set(avgName, sum/float64(n))
			}
		}
		if schema.Has(rmsName) {
			if n == 0 {
				rec.Set(rmsName, math.NaN())
			} else {
				rec.Set(rmsName, math.Sqrt(sumSquares/float64(n)))
			}
		}
	}
	return nil, nil
}
