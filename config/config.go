// Package config defines the process configuration and its loading order.
package config

import "github.com/mkessler/flight-data-evaluation-tool/grading"

// Config contains process configuration
type Config struct {
	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DatabaseDir holds the per-scenario historical databases.
	DatabaseDir string `koanf:"database_dir"`

	// DataDir holds the raw per-flight series dumps used for rebuilds.
	DataDir string `koanf:"data_dir"`

	// SchemaPath points at the result-column declaration resource.
	SchemaPath string `koanf:"schema_path"`

	// Alpha is the significance level of the grading statistics.
	Alpha float64 `koanf:"alpha"`

	// UnlockToken enables the weighted final score when presented by a
	// client. Empty keeps scoring locked.
	UnlockToken string `koanf:"unlock_token"`
}

// New creates a Config with defaults
func New() *Config {
	return &Config{
		Addr:        ":8080",
		DatabaseDir: "database",
		DataDir:     "data",
		SchemaPath:  "results_template.json",
		Alpha:       grading.DefaultAlpha,
	}
}
