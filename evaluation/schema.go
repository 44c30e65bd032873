package evaluation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// ColumnSpec describes one result column of the external schema resource.
// Optional columns are computed when possible but never graded.
type ColumnSpec struct {
	Unit        string `json:"Unit,omitempty"`
	Description string `json:"Description,omitempty"`
	AltName     string `json:"alt_name,omitempty"`
	Optional    bool   `json:"optional,omitempty"`
}

// Schema is the externally owned declaration of every possible result
// column. Presence of a metric name gates whether the evaluation engine
// computes it.
type Schema struct {
	order   []string
	columns map[string]ColumnSpec
}

// LoadSchema reads the result-column declaration from a json resource file.
func LoadSchema(path string) (*Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema resource: %w", err)
	}

	var config struct {
		Columns map[string]ColumnSpec `json:"columns"`
	}
	if err := json.Unmarshal(raw, &config); err != nil {
		return nil, fmt.Errorf("failed to parse schema resource %s: %w", path, err)
	}
	if len(config.Columns) == 0 {
		return nil, fmt.Errorf("schema resource %s declares no columns", path)
	}

	// json objects are unordered, re-read to recover declaration order
	order, err := columnOrder(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema resource %s: %w", path, err)
	}

	return &Schema{order: order, columns: config.Columns}, nil
}

func columnOrder(raw []byte) ([]string, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(top["columns"]))
	if _, err := dec.Token(); err != nil { // opening brace
		return nil, err
	}

	var order []string
	for dec.More() {
		token, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := token.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v in columns object", token)
		}
		order = append(order, name)

		var spec json.RawMessage
		if err := dec.Decode(&spec); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Has reports whether the named column is declared. Undeclared metrics are
// skipped by the evaluation engine.
func (s *Schema) Has(name string) bool {
	_, ok := s.columns[name]
	return ok
}

// Optional reports whether the named column is declared optional. Optional
// metrics land in the Not Tierable bucket and never contribute to scores.
func (s *Schema) Optional(name string) bool {
	return s.columns[name].Optional
}

// Spec returns the declaration of the named column
func (s *Schema) Spec(name string) (ColumnSpec, bool) {
	spec, ok := s.columns[name]
	return spec, ok
}

// Columns returns the declared column names in declaration order
func (s *Schema) Columns() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// DisplayName returns the column's alternative presentation name when the
// schema declares one, otherwise the column name itself.
func (s *Schema) DisplayName(name string) string {
	if spec, ok := s.columns[name]; ok && spec.AltName != "" {
		return spec.AltName
	}
	return name
}
