// Package database keeps the historical per-scenario collections of
// evaluated flights, the reference populations the grading engine works
// against, plus the raw series dumps needed to rebuild them.
package database

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/mkessler/flight-data-evaluation-tool/diagnostics"
	"github.com/mkessler/flight-data-evaluation-tool/evaluation"
	"github.com/mkessler/flight-data-evaluation-tool/phases"
	"github.com/mkessler/flight-data-evaluation-tool/telemetry"
)

var (
	databaseDir = "database"
	dataDir     = "data"
	mutex       = &sync.Mutex{}
)

// ErrNotDocked reports an attempt to store a flight that never reached
// port contact.
var ErrNotDocked = errors.New("flight is not docked, record not added to database")

// ErrNoDatabase reports a missing per-scenario database file
var ErrNoDatabase = errors.New("no database for scenario")

// Init sets up the storage directories
func Init(database, data string) error {
	if database != "" {
		databaseDir = database
	}
	if data != "" {
		dataDir = data
	}
	if err := os.MkdirAll(databaseDir, 0o755); err != nil {
		return fmt.Errorf("failed to create database dir: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	return nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}

func scenarioPath(scenario string) string {
	return filepath.Join(databaseDir, sanitize(scenario)+flightDataSuffix)
}

func dumpPath(scenario, flightID string) string {
	return filepath.Join(dataDir, sanitize(scenario), sanitize(flightID)+".csv")
}

// Load reads all historical records of one scenario, in file order
func Load(scenario string) ([]*evaluation.Record, error) {
	mutex.Lock()
	defer mutex.Unlock()
	return loadLocked(scenario)
}

func loadLocked(scenario string) ([]*evaluation.Record, error) {
	f, err := os.Open(scenarioPath(scenario))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoDatabase, scenario)
		}
		return nil, fmt.Errorf("failed to open database for %s: %w", scenario, err)
	}
	defer f.Close()

	var records []*evaluation.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rec := &evaluation.Record{}
		if err := json.Unmarshal([]byte(line), rec); err != nil {
			return nil, fmt.Errorf("corrupt record in %s database: %w", scenario, err)
		}
		rec.Docked = true
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read database for %s: %w", scenario, err)
	}
	return records, nil
}

// exportFields strips the identity fields that do not belong in the
// reference population before a record is written out.
var droppedOnExport = []string{
	evaluation.FieldLoggerVersion,
	evaluation.FieldSessionID,
	evaluation.FieldPilot,
}

func marshalRecord(rec *evaluation.Record) ([]byte, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, err
	}
	for _, field := range droppedOnExport {
		delete(flat, field)
	}
	return json.Marshal(flat)
}

// Append stores one evaluated flight in its scenario's database, replacing
// any earlier record with the same flight ID, and dumps the raw structured
// series for later rebuilds. Undocked flights are rejected.
func Append(rec *evaluation.Record, series *telemetry.FlightSeries) error {
	if !rec.Docked {
		return ErrNotDocked
	}

	mutex.Lock()
	defer mutex.Unlock()

	records, err := loadLocked(rec.Scenario)
	if err != nil && !errors.Is(err, ErrNoDatabase) {
		return err
	}

	kept := records[:0]
	for _, existing := range records {
		if existing.FlightID != rec.FlightID {
			kept = append(kept, existing)
		}
	}
	kept = append(kept, rec)

	if err := writeRecordsLocked(rec.Scenario, kept); err != nil {
		return err
	}
	if err := dumpSeries(rec.Scenario, rec.FlightID, series); err != nil {
		return err
	}

	diagnostics.Infof(diagnostics.Recorder{}, "database", "added flight %s to %s database (%d records)",
		rec.FlightID, rec.Scenario, len(kept))
	return nil
}

func writeRecordsLocked(scenario string, records []*evaluation.Record) error {
	path := scenarioPath(scenario)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to write database for %s: %w", scenario, err)
	}

	w := bufio.NewWriter(f)
	for _, rec := range records {
		line, err := marshalRecord(rec)
		if err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("failed to encode record %s: %w", rec.FlightID, err)
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write database for %s: %w", scenario, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write database for %s: %w", scenario, err)
	}
	return os.Rename(tmp, path)
}

// dumpSeries writes the full structured series as a plain tabular file
func dumpSeries(scenario, flightID string, series *telemetry.FlightSeries) error {
	path := dumpPath(scenario, flightID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create dump dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create series dump: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	names := series.ColumnNames()
	if err := w.Write(names); err != nil {
		return fmt.Errorf("failed to write series dump: %w", err)
	}

	row := make([]string, len(names))
	for i := 0; i < series.Len(); i++ {
		for j, name := range names {
			v := series.Value(name, i)
			if math.IsNaN(v) {
				row[j] = ""
			} else {
				row[j] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write series dump: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// readDump loads a raw series dump back into a FlightSeries
func readDump(path string) (*telemetry.FlightSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open series dump: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read series dump header: %w", err)
	}

	var rows [][]float64
	for {
		fields, err := r.Read()
		if err != nil {
			break
		}
		row := make([]float64, len(fields))
		for i, field := range fields {
			if field == "" {
				row[i] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("corrupt series dump %s: %w", path, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}

	return telemetry.NewFlightSeries(header, rows)
}

// Scenarios lists every scenario database with its record count
func Scenarios() ([]Summary, error) {
	mutex.Lock()
	defer mutex.Unlock()

	entries, err := os.ReadDir(databaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}

	var out []Summary
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, flightDataSuffix) {
			continue
		}
		scenario := strings.TrimSuffix(name, flightDataSuffix)
		records, err := loadLocked(scenario)
		if err != nil {
			return nil, err
		}
		out = append(out, Summary{Scenario: scenario, Flights: len(records)})
	}
	return out, nil
}

// Rebuild re-evaluates every stored flight from its raw series dump using
// the boundaries recorded in the database. Run after a metric-calculation
// change to bring the historical records up to date.
func Rebuild(schema *evaluation.Schema, sink diagnostics.Sink) error {
	mutex.Lock()
	defer mutex.Unlock()

	scenarios, err := os.ReadDir(dataDir)
	if err != nil {
		return fmt.Errorf("failed to list series dumps: %w", err)
	}

	for _, scenarioDir := range scenarios {
		if !scenarioDir.IsDir() {
			continue
		}
		scenario := scenarioDir.Name()

		records, err := loadLocked(scenario)
		if err != nil {
			return err
		}
		byID := make(map[string]*evaluation.Record, len(records))
		for _, rec := range records {
			byID[rec.FlightID] = rec
		}

		dumps, err := os.ReadDir(filepath.Join(dataDir, scenario))
		if err != nil {
			return fmt.Errorf("failed to list series dumps for %s: %w", scenario, err)
		}

		for _, dump := range dumps {
			if !strings.HasSuffix(dump.Name(), ".csv") {
				continue
			}
			flightID := strings.TrimSuffix(dump.Name(), ".csv")
			old, ok := byID[flightID]
			if !ok {
				diagnostics.Warningf(sink, "database",
					"series dump %s/%s has no database record, skipping", scenario, dump.Name())
				continue
			}

			series, err := readDump(filepath.Join(dataDir, scenario, dump.Name()))
			if err != nil {
				return err
			}

			boundaries, err := storedBoundaries(old)
			if err != nil {
				return fmt.Errorf("flight %s: %w", flightID, err)
			}

			fresh := evaluation.NewRecord(old.SessionMeta)
			fresh.ManuallyModifiedPhases = old.ManuallyModifiedPhases
			fresh.Docked = true
			if _, err := evaluation.EvaluateFlight(series, boundaries, schema, fresh, sink); err != nil {
				return fmt.Errorf("flight %s: %w", flightID, err)
			}
			*old = *fresh
		}

		if err := writeRecordsLocked(scenario, records); err != nil {
			return err
		}
		diagnostics.Infof(sink, "database", "rebuilt %s database (%d records)", scenario, len(records))
	}
	return nil
}

// storedBoundaries recovers the phase boundaries a record was evaluated
// with from its own start metrics.
func storedBoundaries(rec *evaluation.Record) (phases.Boundaries, error) {
	names := [4]string{"Start_Align", "Start_Appr", "Start_FA", "Time_Dock"}
	b := phases.Boundaries{Docked: true}
	for i, name := range names {
		v, ok := rec.Value(name)
		if !ok {
			return b, fmt.Errorf("record is missing %s, cannot rebuild", name)
		}
		b.Times[i] = v
	}
	return b, nil
}
