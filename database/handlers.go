package database

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mkessler/flight-data-evaluation-tool/diagnostics"
	"github.com/mkessler/flight-data-evaluation-tool/evaluation"
	"github.com/mkessler/flight-data-evaluation-tool/metrics"
)

var handlerSchema *evaluation.Schema

// SetupHandlers registers the database endpoints
func SetupHandlers(schema *evaluation.Schema) {
	handlerSchema = schema

	http.HandleFunc("/database/scenarios", handleScenarios)
	http.HandleFunc("/database/records", handleRecords)
	http.HandleFunc("/database/add", handleAdd)
	http.HandleFunc("/database/rebuild", handleRebuild)
}

func handleScenarios(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	summaries, err := Scenarios()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

func handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := Load(r.URL.Query().Get("scenario"))
	if err != nil {
		if errors.Is(err, ErrNoDatabase) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

func handleAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, ok := evaluation.GetSession(req.SessionID)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if !session.Evaluated {
		http.Error(w, "Session is not evaluated yet", http.StatusConflict)
		return
	}

	if err := Append(session.Record, session.Series); err != nil {
		if errors.Is(err, ErrNotDocked) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.DatabaseAppends.Inc()

	w.WriteHeader(http.StatusNoContent)
}

func handleRebuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := Rebuild(handlerSchema, diagnostics.Recorder{}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
