package evaluation

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/mkessler/flight-data-evaluation-tool/diagnostics"
	"github.com/mkessler/flight-data-evaluation-tool/metrics"
	"github.com/mkessler/flight-data-evaluation-tool/phases"
	"github.com/mkessler/flight-data-evaluation-tool/telemetry"
)

// Session is one parsed flight held in memory between the parse, manual
// boundary adjustment and evaluation steps.
type Session struct {
	ID          string                  `json:"id"`
	Meta        telemetry.SessionMeta   `json:"meta"`
	Boundaries  phases.Boundaries       `json:"boundaries"`
	Record      *Record                 `json:"-"`
	Series      *telemetry.FlightSeries `json:"-"`
	ErrorTimes  map[string][]float64    `json:"-"`
	Diagnostics []diagnostics.Event     `json:"diagnostics"`
	Evaluated   bool                    `json:"evaluated"`
}

var (
	sessions      = map[string]*Session{}
	sessionsMutex = &sync.Mutex{}
	schema        *Schema
)

// GetSession returns the in-memory session with the given id
func GetSession(id string) (*Session, bool) {
	sessionsMutex.Lock()
	defer sessionsMutex.Unlock()
	session, ok := sessions[id]
	return session, ok
}

// SetupHandlers registers the evaluation endpoints
func SetupHandlers(s *Schema) {
	schema = s

	http.HandleFunc("/evaluation/sessions", handleSessions)
	http.HandleFunc("/evaluation/sessions/boundaries", handleBoundaries)
	http.HandleFunc("/evaluation/sessions/evaluate", handleEvaluate)
}

func handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		id := r.URL.Query().Get("id")
		session, ok := GetSession(id)
		if !ok {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(session)
	case http.MethodPost:
		handleCreateSession(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paths []string `json:"paths"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	collector := &diagnostics.Collector{}
	sink := diagnostics.Multi(collector, diagnostics.Recorder{})

	series, meta, err := telemetry.ParseSession(req.Paths, sink)
	if err != nil {
		metrics.ParseFailures.Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := telemetry.Structure(series); err != nil {
		metrics.ParseFailures.Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	metrics.SessionsParsed.Inc()

	boundaries := phases.Detect(series, sink)
	if boundaries.Backup {
		metrics.BackupBoundaries.Inc()
	}

	session := &Session{
		ID:          uuid.NewString(),
		Meta:        meta,
		Boundaries:  boundaries,
		Record:      NewRecord(meta),
		Series:      series,
		Diagnostics: collector.Events(),
	}
	session.Record.Docked = boundaries.Docked

	sessionsMutex.Lock()
	sessions[session.ID] = session
	sessionsMutex.Unlock()

	log.Printf("Parsed session %s (%d samples, flight %s)", session.ID, series.Len(), meta.FlightID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

func handleBoundaries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID    string     `json:"id"`
		Times [4]float64 `json:"times"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, ok := GetSession(req.ID)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	adjusted := phases.Snap(session.Series, phases.Boundaries{
		Times:  req.Times,
		Docked: session.Boundaries.Docked,
	})
	if err := adjusted.AscendingError(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sessionsMutex.Lock()
	session.Boundaries = adjusted
	session.Record.ManuallyModifiedPhases = true
	session.Evaluated = false
	sessionsMutex.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(adjusted)
}

func handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, ok := GetSession(req.ID)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	if err := session.Boundaries.AscendingError(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	record := NewRecord(session.Meta)
	record.ManuallyModifiedPhases = session.Record.ManuallyModifiedPhases
	record.Docked = session.Boundaries.Docked

	errorTimes, err := EvaluateFlight(session.Series, session.Boundaries, schema, record, diagnostics.Recorder{})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.FlightsEvaluated.Inc()

	sessionsMutex.Lock()
	session.Record = record
	session.ErrorTimes = errorTimes
	session.Evaluated = true
	sessionsMutex.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Record     *Record              `json:"record"`
		ErrorTimes map[string][]float64 `json:"error_timestamps"`
		Boundaries phases.Boundaries    `json:"boundaries"`
	}{record, errorTimes, session.Boundaries})
}
