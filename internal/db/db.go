package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const defaultDBName = "emulator.db"

// Config selects the database file. Path wins over Workspace.
type Config struct {
	Workspace string
	Path      string
}

func (c Config) file() string {
	if c.Path != "" {
		return c.Path
	}
	workspace := c.Workspace
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".launchpad", defaultDBName)
}

// Open opens the SQLite database with foreign keys on, creating the parent
// directory when missing.
func Open(cfg Config) (*sql.DB, error) {
	path := cfg.file()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; serialize through a single connection
	conn.SetMaxOpenConns(1)
	return conn, nil
}

// Path returns the database file the config points at.
func Path(cfg Config) string {
	return cfg.file()
}
