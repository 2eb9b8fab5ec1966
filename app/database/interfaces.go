package database

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("snapshot not found")

// BlobStore persists named snapshots. Each Save replaces the whole blob.
type BlobStore interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, blob []byte) error
}
