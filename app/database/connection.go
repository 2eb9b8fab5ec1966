package database

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

func NewConnection(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc sqlite serialises writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn := &DB{DB: db}

	version, dirty, err := RunMigrations(conn)
	if err != nil {
		db.Close()
		return nil, err
	}

	slog.Debug("Database migrations applied", "path", path, "version", version, "dirty", dirty)

	return conn, nil
}
