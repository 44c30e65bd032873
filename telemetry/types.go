package telemetry

import (
	"fmt"
	"math"
	"sort"
)

// Column names of the raw logger signals used across the analysis pipeline.
const (
	ColSimTime  = "SimTime"
	ColCOGPosX  = "COG Pos.x [m]"
	ColCOGPosY  = "COG Pos.y [m]"
	ColCOGPosZ  = "COG Pos.z [m]"
	ColCOGVelX  = "COG Vel.x [m]"
	ColCOGVelY  = "COG Vel.y [m]"
	ColCOGVelZ  = "COG Vel.z [m]"
	ColPortPosX = "Port Pos.x [m]"
	ColPortPosY = "Port Pos.y [m]"
	ColPortPosZ = "Port Pos.z [m]"
	ColTankMass = "Tank mass [kg]"
)

// Derived columns appended by Structure.
const (
	ColLateralOffset  = "Lateral Offset"
	ColLateralVel     = "Lateral Velocity"
	ColIdealApprVel   = "Ideal Approach Vel"
	ColAngleToPort    = "Angle to Port"
	ColApproachCone   = "Approach Cone"
	ColMaxRotAngle    = "Max Rot Angle"
	ColMaxRotVelocity = "Max Rot Velocity"
)

// FlightSeries is the structured time series of one flight: one row per
// logged sample, columns keyed by signal name, ordered by ascending SimTime.
// It is created once per evaluation session by the parser and only extended
// by the structurer's derived-column pass, never mutated afterwards.
type FlightSeries struct {
	columnOrder []string
	columns     map[string][]float64
	rows        int
}

// NewFlightSeries builds a series from positional data rows. Every row must
// have exactly one value per column.
func NewFlightSeries(columnNames []string, rows [][]float64) (*FlightSeries, error) {
	series := &FlightSeries{
		columnOrder: append([]string(nil), columnNames...),
		columns:     make(map[string][]float64, len(columnNames)),
		rows:        len(rows),
	}

	for _, name := range columnNames {
		if _, exists := series.columns[name]; exists {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		series.columns[name] = make([]float64, 0, len(rows))
	}

	for i, row := range rows {
		if len(row) != len(columnNames) {
			return nil, fmt.Errorf("row %d has %d values but %d columns are declared", i, len(row), len(columnNames))
		}
		for j, name := range columnNames {
			series.columns[name] = append(series.columns[name], row[j])
		}
	}

	return series, nil
}

// Len returns the number of samples
func (s *FlightSeries) Len() int {
	return s.rows
}

// ColumnNames returns the column names in declaration order
func (s *FlightSeries) ColumnNames() []string {
	return append([]string(nil), s.columnOrder...)
}

// HasColumn reports whether the named column exists
func (s *FlightSeries) HasColumn(name string) bool {
	_, ok := s.columns[name]
	return ok
}

// Column returns the named column's values, or nil if it does not exist.
// The returned slice is the backing storage and must not be modified.
func (s *FlightSeries) Column(name string) []float64 {
	return s.columns[name]
}

// Value returns the value of the named column at row i
func (s *FlightSeries) Value(name string, i int) float64 {
	column, ok := s.columns[name]
	if !ok || i < 0 || i >= len(column) {
		return math.NaN()
	}
	return column[i]
}

// Prev returns the value of the named column at row i-1, with 0 for the
// first row (matching a one-sample shift with zero fill).
func (s *FlightSeries) Prev(name string, i int) float64 {
	if i <= 0 {
		return 0
	}
	return s.Value(name, i-1)
}

// AddColumn appends a derived column. The column must not exist yet and must
// carry one value per row.
func (s *FlightSeries) AddColumn(name string, values []float64) error {
	if _, exists := s.columns[name]; exists {
		return fmt.Errorf("column %q already exists", name)
	}
	if len(values) != s.rows {
		return fmt.Errorf("column %q has %d values but the series has %d rows", name, len(values), s.rows)
	}
	s.columnOrder = append(s.columnOrder, name)
	s.columns[name] = values
	return nil
}

func (s *FlightSeries) renameColumn(oldName, newName string) {
	column, ok := s.columns[oldName]
	if !ok {
		return
	}
	delete(s.columns, oldName)
	s.columns[newName] = column
	for i, name := range s.columnOrder {
		if name == oldName {
			s.columnOrder[i] = newName
		}
	}
}

// Times returns the SimTime column
func (s *FlightSeries) Times() []float64 {
	return s.columns[ColSimTime]
}

// IndexOfTime returns the row index whose SimTime equals t exactly
func (s *FlightSeries) IndexOfTime(t float64) (int, bool) {
	times := s.Times()
	i := sort.SearchFloat64s(times, t)
	if i < len(times) && times[i] == t {
		return i, true
	}
	return 0, false
}

// SnapTime returns the real SimTime value closest to t. Interpolated or
// manually adjusted boundary values must be snapped before use.
func (s *FlightSeries) SnapTime(t float64) float64 {
	times := s.Times()
	if len(times) == 0 {
		return t
	}
	i := sort.SearchFloat64s(times, t)
	if i == 0 {
		return times[0]
	}
	if i == len(times) {
		return times[len(times)-1]
	}
	if t-times[i-1] <= times[i]-t {
		return times[i-1]
	}
	return times[i]
}

// SessionMeta carries the identity fields extracted from the log metadata
// lines of one session.
type SessionMeta struct {
	FlightID      string `json:"flight_id"`
	LoggerVersion string `json:"logger_version"`
	SessionID     string `json:"session_id"`
	Pilot         string `json:"pilot"`
	Date          int    `json:"date"` // day of month, per the historical schema
	Scenario      string `json:"scenario"`
}
