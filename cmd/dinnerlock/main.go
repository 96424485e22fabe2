// Package main provides the dinnerlock CLI.
//
// The CLI supports:
//   - migrate: Apply the dinnerlock schema to PostgreSQL
//   - vet: Run the isolation analyzer over the adapter's statement corpus
//   - config: Show the effective configuration
//   - version: Print version information
//
// Commands that require database access (migrate) need --db, config, or
// DINNERLOCK_DATABASE_* environment variables. vet is fully offline.
package main

func main() {
	Execute()
}
