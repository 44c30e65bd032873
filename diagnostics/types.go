package diagnostics

import "time"

// Event represents a single diagnostic message produced by the analysis core
type Event struct {
	Level     string    `json:"level"`     // "info", "warning", "error"
	Source    string    `json:"source"`    // "parser", "phases", "evaluation", "grading", "database"
	Message   string    `json:"message"`   // human-readable reason string
	Timestamp time.Time `json:"timestamp"` // when the event occurred
}

// Sink receives diagnostic events from the analysis core. The core emits
// structured events; the caller decides how to display them.
type Sink interface {
	Emit(event Event)
}

// SinkFunc adapts a plain function to the Sink interface
type SinkFunc func(event Event)

func (f SinkFunc) Emit(event Event) {
	f(event)
}
