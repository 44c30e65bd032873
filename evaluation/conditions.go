package evaluation

import (
	"errors"
	"fmt"

	"github.com/mkessler/flight-data-evaluation-tool/diagnostics"
	"github.com/mkessler/flight-data-evaluation-tool/telemetry"
)

// ErrPhaseDataUnavailable reports that a windowed exact-time lookup found no
// matching sample, usually because backup boundary interpolation produced a
// degenerate window. Callers downgrade it to a warning for optional metrics.
var ErrPhaseDataUnavailable = errors.New("phase data unavailable")

type lookupError struct {
	Phase  string
	Metric string
	Time   float64
}

func (e *lookupError) Error() string {
	return fmt.Sprintf("%s: no sample at t=%v for %s: %v", e.Metric, e.Time, e.Phase, ErrPhaseDataUnavailable)
}

func (e *lookupError) Unwrap() error { return ErrPhaseDataUnavailable }

// predicate is a row-wise boolean condition over the flight series
type predicate func(i int) bool

// window scopes condition evaluation to one phase of one flight
type window struct {
	series *telemetry.FlightSeries
	phase  string
	stamps [4]float64
	start  int
	stop   int
	sink   diagnostics.Sink
}

func (w *window) startTime() float64 { return w.stamps[w.start] }
func (w *window) stopTime() float64  { return w.stamps[w.stop] }

// contains implements the half-open phase window over SimTime
func (w *window) contains(i int) bool {
	t := w.series.Value(telemetry.ColSimTime, i)
	return t >= w.startTime() && t < w.stopTime()
}

// timestamps collects the SimTime of every window row matching the predicate
func (w *window) timestamps(cond predicate) []float64 {
	var out []float64
	for i := 0; i < w.series.Len(); i++ {
		if w.contains(i) && cond(i) {
			out = append(out, w.series.Value(telemetry.ColSimTime, i))
		}
	}
	return out
}

// count returns the number of window rows matching the predicate
func (w *window) count(cond predicate) int {
	n := 0
	for i := 0; i < w.series.Len(); i++ {
		if w.contains(i) && cond(i) {
			n++
		}
	}
	return n
}

// reconcile pairs rising-edge timestamps with falling-edge timestamps.
// A missing leading start means the condition was already active at window
// entry, a missing trailing stop means it was still active at window exit.
// If the lists still disagree after that single-element correction the
// condition pair itself is inconsistent; each start is then paired with the
// immediately following sample and a diagnostic is surfaced.
func (w *window) reconcile(starts, stops []float64, label string) ([]float64, []float64) {
	if len(starts) < len(stops) {
		starts = append([]float64{w.startTime()}, starts...)
	}
	if len(starts) > len(stops) {
		stops = append(stops, w.stopTime())
	}

	if len(starts) != len(stops) {
		diagnostics.Warningf(w.sink, "evaluation",
			"%s: Different number of start (%d)/stop (%d) timestamps found. Check your start/stop condition",
			label, len(starts), len(stops))
		diagnostics.Warningf(w.sink, "evaluation",
			"Backup values for stop timestamps are calculated for 'Fuel on Error' value.")

		stops = stops[:0]
		for _, t := range starts {
			i, ok := w.series.IndexOfTime(t)
			if !ok || i+1 >= w.series.Len() {
				stops = append(stops, t)
				continue
			}
			stops = append(stops, w.series.Value(telemetry.ColSimTime, i+1))
		}
	}

	return starts, stops
}

// runDurations sums the per-pair run lengths of a reconciled edge pair
func runDurations(starts, stops []float64) float64 {
	total := 0.0
	for i := range starts {
		total += stops[i] - starts[i]
	}
	return total
}

// meanRunDuration averages the per-pair run lengths, 0 when no run occurred
func meanRunDuration(starts, stops []float64) float64 {
	if len(starts) == 0 {
		return 0
	}
	return runDurations(starts, stops) / float64(len(starts))
}

// accumulatedTime evaluates an edge pair and returns the total time the
// condition was active inside the window.
func (w *window) accumulatedTime(startCond, stopCond predicate, label string) float64 {
	starts, stops := w.reconcile(w.timestamps(startCond), w.timestamps(stopCond), label)
	return runDurations(starts, stops)
}

// valueAt returns the named column at an exact SimTime match
func (w *window) valueAt(column string, t float64, metric string) (float64, error) {
	i, ok := w.series.IndexOfTime(t)
	if !ok {
		return 0, &lookupError{Phase: w.phase, Metric: metric, Time: t}
	}
	return w.series.Value(column, i), nil
}

// atStart reports whether row i is the window's boundary-start sample
func (w *window) atStart(i int) bool {
	return w.series.Value(telemetry.ColSimTime, i) == w.startTime()
}

// atStop reports whether row i is the window's boundary-stop sample
func (w *window) atStop(i int) bool {
	return w.series.Value(telemetry.ColSimTime, i) == w.stopTime()
}
