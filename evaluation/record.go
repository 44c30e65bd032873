package evaluation

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/mkessler/flight-data-evaluation-tool/telemetry"
)

// Metadata field names shared with the schema resource and the database
const (
	FieldFlightID       = "Flight ID"
	FieldScenario       = "Scenario"
	FieldPilot          = "Pilot"
	FieldSessionID      = "Session ID"
	FieldDate           = "Date"
	FieldLoggerVersion  = "Logger Version"
	FieldModifiedPhases = "Manually modified Phases"
)

var metadataFields = map[string]bool{
	FieldFlightID:       true,
	FieldScenario:       true,
	FieldPilot:          true,
	FieldSessionID:      true,
	FieldDate:           true,
	FieldLoggerVersion:  true,
	FieldModifiedPhases: true,
}

// IsMetadataField reports whether the named result column carries flight
// identity rather than a computed metric.
func IsMetadataField(name string) bool {
	return metadataFields[name]
}

// Record is the single-row evaluation result of one flight: identity fields
// plus the named scalar metrics the schema requested. Metrics absent from
// the map were either undeclared or skipped.
type Record struct {
	telemetry.SessionMeta

	ManuallyModifiedPhases bool
	Metrics                map[string]float64

	// Docked is set by the pipeline when the port-contact rule resolved
	// without a fallback. Undocked flights stay out of the historical
	// database. Not serialized.
	Docked bool
}

// NewRecord builds an empty result record for one parsed session
func NewRecord(meta telemetry.SessionMeta) *Record {
	return &Record{
		SessionMeta: meta,
		Metrics:     make(map[string]float64),
	}
}

// Set stores one metric value
func (r *Record) Set(name string, value float64) {
	r.Metrics[name] = value
}

// Value returns the named metric and whether it was computed
func (r *Record) Value(name string) (float64, bool) {
	v, ok := r.Metrics[name]
	return v, ok
}

// MarshalJSON flattens metadata and metrics into one object, the record
// layout of the historical database. NaN metrics are dropped since json
// cannot carry them.
func (r *Record) MarshalJSON() ([]byte, error) {
	flat := make(map[string]interface{}, len(r.Metrics)+7)
	flat[FieldFlightID] = r.FlightID
	flat[FieldScenario] = r.Scenario
	flat[FieldPilot] = r.Pilot
	flat[FieldSessionID] = r.SessionID
	flat[FieldDate] = r.Date
	flat[FieldLoggerVersion] = r.LoggerVersion
	flat[FieldModifiedPhases] = r.ManuallyModifiedPhases

	for name, value := range r.Metrics {
		if math.IsNaN(value) {
			continue
		}
		flat[name] = value
	}
	return json.Marshal(flat)
}

// UnmarshalJSON splits a flat database record back into metadata and metrics
func (r *Record) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	r.Metrics = make(map[string]float64, len(flat))
	for name, raw := range flat {
		switch name {
		case FieldFlightID:
			if err := json.Unmarshal(raw, &r.FlightID); err != nil {
				return fmt.Errorf("field %q: %w", name, err)
			}
		case FieldScenario:
			if err := json.Unmarshal(raw, &r.Scenario); err != nil {
				return fmt.Errorf("field %q: %w", name, err)
			}
		case FieldPilot:
			if err := json.Unmarshal(raw, &r.Pilot); err != nil {
				return fmt.Errorf("field %q: %w", name, err)
			}
		case FieldSessionID:
			if err := json.Unmarshal(raw, &r.SessionID); err != nil {
				return fmt.Errorf("field %q: %w", name, err)
			}
		case FieldDate:
			if err := json.Unmarshal(raw, &r.Date); err != nil {
				return fmt.Errorf("field %q: %w", name, err)
			}
		case FieldLoggerVersion:
			if err := json.Unmarshal(raw, &r.LoggerVersion); err != nil {
				return fmt.Errorf("field %q: %w", name, err)
			}
		case FieldModifiedPhases:
			if err := json.Unmarshal(raw, &r.ManuallyModifiedPhases); err != nil {
				return fmt.Errorf("field %q: %w", name, err)
			}
		default:
			var value float64
			if err := json.Unmarshal(raw, &value); err != nil {
				return fmt.Errorf("metric %q: %w", name, err)
			}
			r.Metrics[name] = value
		}
	}
	return nil
}
