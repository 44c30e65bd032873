package grading

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mkessler/flight-data-evaluation-tool/database"
	"github.com/mkessler/flight-data-evaluation-tool/evaluation"
	"github.com/mkessler/flight-data-evaluation-tool/metrics"
)

var (
	handlerSchema *evaluation.Schema
	handlerAlpha  float64
	unlockToken   string
)

// SetupHandlers registers the grading endpoints. The unlock token gates the
// weighted final score; grading itself is always available.
func SetupHandlers(schema *evaluation.Schema, alpha float64, token string) {
	handlerSchema = schema
	handlerAlpha = alpha
	unlockToken = token

	http.HandleFunc("/grading/grade", handleGrade)
	http.HandleFunc("/grading/score", handleScore)
}

func loadSessionReference(sessionID string) (*evaluation.Session, []*evaluation.Record, int, error) {
	session, ok := evaluation.GetSession(sessionID)
	if !ok {
		return nil, nil, http.StatusNotFound, errors.New("Session not found")
	}
	if !session.Evaluated {
		return nil, nil, http.StatusConflict, errors.New("Session is not evaluated yet")
	}

	reference, err := database.Load(session.Meta.Scenario)
	if err != nil {
		if errors.Is(err, database.ErrNoDatabase) {
			return nil, nil, http.StatusPreconditionFailed, err
		}
		return nil, nil, http.StatusInternalServerError, err
	}
	return session, reference, http.StatusOK, nil
}

func handleGrade(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
		Phase     string `json:"phase"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, reference, status, err := loadSessionReference(req.SessionID)
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}

	started := time.Now()
	tiered, columns, err := Grade(session.Record, req.Phase, reference, handlerSchema, handlerAlpha)
	if err != nil {
		if errors.Is(err, ErrNoReferenceData) {
			http.Error(w, err.Error(), http.StatusPreconditionFailed)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.Gradings.Inc()
	metrics.GradingDuration.Observe(time.Since(started).Seconds())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Tiered  []TieredMetric       `json:"tiered_metrics"`
		Columns map[string][]float64 `json:"reference_columns"`
	}{tiered, columns})
}

func handleScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
		Token     string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	capability := Unlock(req.Token, unlockToken)
	if !capability.ScoringEnabled() {
		http.Error(w, "Scoring is locked", http.StatusForbidden)
		return
	}

	session, reference, status, err := loadSessionReference(req.SessionID)
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}

	total, subScores, err := FinalGrade(session.Record, reference, handlerSchema, handlerAlpha, capability)
	if err != nil {
		if errors.Is(err, ErrNoReferenceData) {
			http.Error(w, err.Error(), http.StatusPreconditionFailed)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.Gradings.Inc()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Score      float64            `json:"score"`
		PhaseScore map[string]float64 `json:"phase_scores"`
	}{total, subScores})
}
