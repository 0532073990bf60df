// Package store keeps users and game records in SQLite.
//
// Open creates the database file if needed, turns on WAL journaling and
// foreign keys, and applies the embedded migrations in order. Applied
// migrations are recorded in the _migrations table so reopening is cheap.
//
// Store implements service.UserRepository and service.GameRepository.
package store
