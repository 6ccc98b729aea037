// Package library keeps the music library index in SQLite: one row per
// audio file in music_table plus the artist/album/recording names waiting
// to be resolved against MusicBrainz in music_brain_z_mapping.
package library

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed sql/schema.sql
var schema string

var (
	ErrNotFound   = errors.New("not found")
	ErrFileExists = errors.New("file already exists in library")
)

// Open opens the SQLite database at path, creating its parent directory,
// and verifies the connection. Use ":memory:" in tests.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	return db, nil
}

// Init creates the tables if they do not exist yet.
func Init(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
