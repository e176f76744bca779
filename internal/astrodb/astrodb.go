// Package astrodb is the SQLite archive for extraction runs: run
// metadata, fit metrics, and the compressed model coefficients of every
// finished extraction.
package astrodb

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "modernc.org/sqlite"
)

type AstroDB struct {
	*sql.DB
}

// schema.sql holds the idempotent baseline schema for the run archive.
//
//go:embed schema.sql
var schemaSQL string

// New opens (creating if needed) the archive at path and applies the
// baseline schema.
func New(path string) (*AstroDB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

// Open connects to the archive at path without touching the schema.
// The migrate subcommand uses this so migrations stay in charge of the
// schema.
func Open(path string) (*AstroDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	return &AstroDB{db}, nil
}

// applyPragmas configures the connection for a long-running service
// sharing the file with the migrate and sweep tools.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}
