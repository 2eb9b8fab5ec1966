package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var _ BlobStore = (*SQLiteStore)(nil)

// SQLiteStore keeps snapshots as rows of the snapshots table.
type SQLiteStore struct {
	db *DB
}

func NewSQLiteStore(db *DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Load(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", name, err)
	}
	return data, nil
}

func (s *SQLiteStore) Save(ctx context.Context, name string, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (name, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		name, blob, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", name, err)
	}
	return nil
}
