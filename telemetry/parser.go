package telemetry

import (
	"bufio"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/mkessler/flight-data-evaluation-tool/diagnostics"
)

const (
	// sentinelLine terminates every complete session capture
	sentinelLine = "# Log stopped."

	logExtension = ".log"
	logPrefix    = "FDL"
)

// ValidationError is an input-validation failure surfaced to the caller.
// The Reason string is suitable for direct display.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ValidateSession checks that the given paths form one complete session:
// all files end in .log, start with the FDL prefix, share one session prefix
// and carry contiguous zero-based numeric suffixes. It returns the paths
// sorted by basename.
func ValidateSession(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, &ValidationError{Reason: "No Flight Logs selected."}
	}

	sorted := append([]string(nil), paths...)
	sort.Slice(sorted, func(i, j int) bool {
		return filepath.Base(sorted[i]) < filepath.Base(sorted[j])
	})

	var sessionIdentifiers []string
	var logNumbers []int

	for _, path := range sorted {
		base := filepath.Base(path)
		ext := filepath.Ext(base)
		name := strings.TrimSuffix(base, ext)

		if ext != logExtension {
			return nil, &ValidationError{Reason: fmt.Sprintf(
				"The Format of the Flight Log '%s' is '%s' but '.log' is required", base, ext)}
		}
		if !strings.HasPrefix(name, logPrefix) {
			return nil, &ValidationError{Reason: fmt.Sprintf(
				"The Name of the Flight Log '%s' don't starts with FDL.", base)}
		}

		splitAt := strings.LastIndex(name, "_")
		if splitAt < 0 {
			return nil, &ValidationError{Reason: fmt.Sprintf(
				"The last part of the Log filename should be a numerical identifier like 0000, 0001 etc. but '%s' has none", base)}
		}
		sessionIdentifiers = append(sessionIdentifiers, name[:splitAt])

		number, err := strconv.Atoi(name[splitAt+1:])
		if err != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf(
				"The last part of the Log filename should be a numerical identifier like 0000, 0001 etc. but is actually '%s'", name[splitAt+1:])}
		}
		logNumbers = append(logNumbers, number)
	}

	for _, identifier := range sessionIdentifiers {
		if identifier != sessionIdentifiers[0] {
			return nil, &ValidationError{Reason: "Not all selected Logs are from the same Session."}
		}
	}

	for i, number := range logNumbers {
		if number != i {
			return nil, &ValidationError{Reason: fmt.Sprintf(
				"Not all Logs of the Session are provided. Only the Logs %v are selected.", logNumbers)}
		}
	}

	return sorted, nil
}

// ParseSession reads one validated session's log files, assembles the raw
// data rows and extracts the session metadata. The Flight ID is the SHA-256
// digest of the first file's basename so that re-parsing the same session
// reproduces the same identifier.
func ParseSession(paths []string, sink diagnostics.Sink) (*FlightSeries, SessionMeta, error) {
	paths, err := ValidateSession(paths)
	if err != nil {
		return nil, SessionMeta{}, err
	}

	meta := SessionMeta{
		FlightID: fmt.Sprintf("%x", sha256.Sum256([]byte(filepath.Base(paths[0])))),
	}

	var columns []string
	var rows [][]float64

	for fileIndex, path := range paths {
		lines, err := readLines(path)
		if err != nil {
			return nil, SessionMeta{}, fmt.Errorf("failed to read flight log %s: %w", path, err)
		}

		if fileIndex == len(paths)-1 && lastNonEmptyLine(lines) != sentinelLine {
			return nil, SessionMeta{}, &ValidationError{Reason: "Last Log of the session is missing. Please select it and try again."}
		}

		for lineIndex, line := range lines {
			switch {
			case strings.HasPrefix(line, "#"):
				parseMetadataLine(line, &meta)

			case strings.HasPrefix(line, "SimTime"):
				columns = parseHeaderLine(line)

			case strings.TrimSpace(line) == "":
				continue

			default:
				if columns == nil {
					return nil, SessionMeta{}, fmt.Errorf("%s line %d: data before the SimTime header", filepath.Base(path), lineIndex+1)
				}
				row, err := parseDataLine(line)
				if err != nil {
					return nil, SessionMeta{}, fmt.Errorf("%s line %d: %w", filepath.Base(path), lineIndex+1, err)
				}
				if len(row) != len(columns) {
					return nil, SessionMeta{}, fmt.Errorf("%s line %d: %d values but the header declares %d columns",
						filepath.Base(path), lineIndex+1, len(row), len(columns))
				}
				rows = append(rows, row)
			}
		}
	}

	if columns == nil {
		return nil, SessionMeta{}, &ValidationError{Reason: "No SimTime header found in the selected Logs."}
	}

	series, err := NewFlightSeries(columns, rows)
	if err != nil {
		return nil, SessionMeta{}, err
	}

	times := series.Times()
	for i := 1; i < len(times); i++ {
		if times[i] <= times[i-1] {
			return nil, SessionMeta{}, fmt.Errorf("SimTime is not strictly increasing at sample %d (t=%v after t=%v)", i, times[i], times[i-1])
		}
	}

	diagnostics.Infof(sink, "parser", "Parsed %d samples with %d columns from %d log file(s).", series.Len(), len(columns), len(paths))

	return series, meta, nil
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r\n"))
	}
	return lines, scanner.Err()
}

func lastNonEmptyLine(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return strings.TrimSpace(lines[i])
		}
	}
	return ""
}

// parseMetadataLine fills the session metadata from a comment line. TIME
// deliberately keeps only the day of month, matching the historical schema's
// Date field.
func parseMetadataLine(line string, meta *SessionMeta) {
	line = strings.TrimSpace(strings.TrimLeft(line, "#"))

	value := func() string {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) < 2 {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}

	switch {
	case strings.HasPrefix(line, "Logger Version:"):
		meta.LoggerVersion = value()
	case strings.HasPrefix(line, "SESSION_ID:"):
		meta.SessionID = value()
	case strings.HasPrefix(line, "PILOT:"):
		meta.Pilot = value()
	case strings.HasPrefix(line, "TIME:"):
		// "TIME: YYYY-MM-DD hh:mm:ss" -> day of month
		dateToken := strings.Split(value(), " ")[0]
		dateParts := strings.Split(dateToken, "-")
		if len(dateParts) == 3 {
			if day, err := strconv.Atoi(dateParts[2]); err == nil {
				meta.Date = day
			}
		}
	case strings.HasPrefix(line, "SCENARIO:"):
		meta.Scenario = value()
	}
}

// parseHeaderLine applies the two logger fixups and splits the header into
// column names.
func parseHeaderLine(line string) []string {
	// Fixup 1: the logger merges two adjacent fields into one token
	line = strings.Replace(line, "MFDRightMyROT.m11", "MFDRight; MyROT.m11", 1)

	// Fixup 2: the raw header carries two unlabeled rotation-matrix column
	// groups. The first occurrence of each element belongs to the vessel's
	// matrix, the second to the target's.
	for _, element := range []string{"m12", "m13", "m21", "m22", "m23", "m31", "m32", "m33"} {
		line = strings.Replace(line, "; "+element, "; MyROT."+element, 1)
		line = strings.Replace(line, "; "+element, "; TgtRot."+element, 1)
	}

	var columns []string
	for _, token := range strings.Split(line, ";") {
		token = strings.TrimSpace(token)
		if token != "" {
			columns = append(columns, token)
		}
	}
	return columns
}

func parseDataLine(line string) ([]float64, error) {
	var row []float64
	for _, token := range strings.Split(line, ";") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		value, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q", token)
		}
		row = append(row, value)
	}
	return row, nil
}
