package database

// flightDataSuffix is appended to the scenario name to form the
// per-scenario database file name.
const flightDataSuffix = "_flight_data.json"

// Summary describes one scenario's database file for listings
type Summary struct {
	Scenario string `json:"scenario"`
	Flights  int    `json:"flights"`
}
